// Package turn runs push-to-talk voice turns: capture an utterance until
// the user presses stop, submit it to a realtime session, and stream the
// response back with playback the user can interrupt.
package turn

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/yok-tottii/EzS2T-Realtime/internal/audio"
	"github.com/yok-tottii/EzS2T-Realtime/internal/realtime"
	"github.com/yok-tottii/EzS2T-Realtime/internal/recording"
)

var (
	// ErrNoInput means the turn ended without anything to submit
	ErrNoInput = errors.New("no input")
	// ErrQuit means the user asked to end the program
	ErrQuit = errors.New("quit requested")
	// ErrRetriesExhausted means the connection failed too many times
	ErrRetriesExhausted = errors.New("max retries reached")
	// ErrDegradedResponse marks a response that finished without text or audio
	ErrDegradedResponse = errors.New("incomplete response")
)

// PlaybackPolicy selects when response audio reaches the sink
type PlaybackPolicy int

const (
	// PlaybackStream plays each audio delta as it arrives
	PlaybackStream PlaybackPolicy = iota
	// PlaybackBuffered plays the whole response once it is done
	PlaybackBuffered
)

// ParsePlayback converts a config string. Unknown values stream.
func ParsePlayback(s string) PlaybackPolicy {
	if s == "buffer" || s == "buffered" {
		return PlaybackBuffered
	}
	return PlaybackStream
}

// Config holds controller settings
type Config struct {
	Recording        recording.Config
	OutputSampleRate int
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		Recording:        recording.DefaultConfig(),
		OutputSampleRate: 24000,
	}
}

// Hooks observe a controller. Nil hooks are skipped.
type Hooks struct {
	// OnSilence fires once per silence stretch during capture
	OnSilence func(silence time.Duration)
	// OnText receives response text and transcript deltas as they arrive
	OnText func(delta string)
}

// Response is the outcome of streaming one response
type Response struct {
	Text            string
	Transcript      string
	InputTranscript string
	AudioPresent    bool
	AudioSamples    int
	Interrupted     bool
	Degraded        bool
	Status          string
	Warnings        []string
	// FirstEventLatency is the wait between stream start and the first event
	FirstEventLatency time.Duration
}

// Content returns the response text, falling back to the spoken transcript
func (r Response) Content() string {
	if r.Text != "" {
		return r.Text
	}
	return r.Transcript
}

// Controller is the voice turn controller. It owns the audio source, the
// playback sink and the stop token for the lifetime of the program; all
// per-turn state lives on the stack of its methods.
type Controller struct {
	source   audio.Source
	sink     audio.Sink
	stop     *Stop
	config   Config
	hooks    Hooks
	log      *slog.Logger
	capturer *recording.Capturer

	mu        sync.RWMutex
	phase     Phase
	observers []func(Phase)
}

// NewController creates a controller
func NewController(source audio.Source, sink audio.Sink, stop *Stop, config Config, hooks Hooks, log *slog.Logger) *Controller {
	if log == nil {
		log = slog.Default()
	}

	c := &Controller{
		source: source,
		sink:   sink,
		stop:   stop,
		config: config,
		hooks:  hooks,
		log:    log,
	}
	c.capturer = recording.New(config.Recording, recording.Hooks{
		OnStateChange: func(s recording.State) { c.setPhase(phaseFromRecording(s)) },
		OnSilence:     hooks.OnSilence,
	}, log)
	return c
}

// Observe registers fn for every phase transition. Must be called before the first turn.
func (c *Controller) Observe(fn func(Phase)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, fn)
}

// Phase returns the current phase
func (c *Controller) Phase() Phase {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.phase
}

// Stop returns the stop token
func (c *Controller) Stop() *Stop {
	return c.stop
}

func (c *Controller) setPhase(p Phase) {
	c.mu.Lock()
	if c.phase == p {
		c.mu.Unlock()
		return
	}
	c.phase = p
	observers := c.observers
	c.mu.Unlock()

	c.log.Debug("turn phase", "phase", p.String())
	for _, fn := range observers {
		fn(p)
	}
}

// CaptureUtterance listens until stop and returns the utterance, or nil
// when nothing long enough was said. Stale presses and frames queued
// before the turn started are discarded.
func (c *Controller) CaptureUtterance(ctx context.Context) (*recording.Utterance, error) {
	c.stop.Reset()
	c.discardQueued()
	c.setPhase(PhaseIdle)

	utt, err := c.capturer.Capture(ctx, c.source.Frames(), c.stop.C())
	if err != nil {
		c.setPhase(PhaseIdle)
		return nil, err
	}
	if utt == nil {
		c.setPhase(PhaseIdle)
		return nil, nil
	}

	c.setPhase(PhaseFinalizing)
	c.log.Info("utterance captured",
		"frames", utt.Frames,
		"speech", utt.SpeechDuration,
		"duration", utt.Duration,
	)
	return utt, nil
}

func (c *Controller) discardQueued() {
	frames := c.source.Frames()
	for {
		select {
		case _, ok := <-frames:
			if !ok {
				return
			}
		default:
			return
		}
	}
}

// Submit sends p on sess and enters the Submitted phase
func (c *Controller) Submit(ctx context.Context, sess realtime.Session, p realtime.Payload) error {
	c.setPhase(PhaseFinalizing)
	if err := sess.Submit(ctx, p); err != nil {
		return err
	}
	c.setPhase(PhaseSubmitted)
	return nil
}

// StreamResponse consumes events until the response is done, the user
// presses stop, or the stream breaks. On stop, playback halts at once and
// nothing more is read from events; the caller must discard the session.
// A stream that ends before ResponseDone returns realtime.ErrConnectionLost.
func (c *Controller) StreamResponse(ctx context.Context, events <-chan realtime.Event, policy PlaybackPolicy) (Response, error) {
	var resp Response
	var buffered []int16
	start := time.Now()
	first := true

	// The output device is exclusive; anything left from a previous turn goes.
	c.stopPlayback()

	for done := false; !done; {
		// A pending stop wins over events that are already queued.
		select {
		case <-c.stop.C():
			return c.interrupt(resp), nil
		default:
		}

		select {
		case <-ctx.Done():
			c.stopPlayback()
			return resp, ctx.Err()

		case <-c.stop.C():
			return c.interrupt(resp), nil

		case ev, ok := <-events:
			if !ok {
				c.stopPlayback()
				c.setPhase(PhaseIdle)
				return resp, realtime.ErrConnectionLost
			}
			if first {
				first = false
				resp.FirstEventLatency = time.Since(start)
				c.setPhase(PhaseResponding)
			}
			done = c.apply(&resp, ev, policy, &buffered)
		}
	}

	if policy == PlaybackBuffered && len(buffered) > 0 {
		c.play(&resp, buffered)
	}

	if resp.AudioPresent {
		if interrupted := c.waitPlayback(ctx); interrupted {
			return c.interrupt(resp), nil
		}
	}

	if resp.Content() == "" || !resp.AudioPresent {
		resp.Degraded = true
		resp.Warnings = append(resp.Warnings, ErrDegradedResponse.Error())
		c.log.Warn("incomplete response",
			"text", resp.Content() != "",
			"audio", resp.AudioPresent,
		)
	}

	c.setPhase(PhaseDone)
	return resp, nil
}

// apply folds ev into resp and reports whether the response is done
func (c *Controller) apply(resp *Response, ev realtime.Event, policy PlaybackPolicy, buffered *[]int16) bool {
	switch ev.Kind {
	case realtime.EventTextDelta:
		resp.Text += ev.Text
		c.emitText(ev.Text)

	case realtime.EventTranscriptDelta:
		resp.Transcript += ev.Text
		if resp.Text == "" {
			c.emitText(ev.Text)
		}

	case realtime.EventTranscriptDone:
		if ev.Text != "" {
			resp.Transcript = ev.Text
		}

	case realtime.EventInputTranscript:
		resp.InputTranscript = ev.Text

	case realtime.EventAudioDelta:
		if len(ev.Audio) == 0 {
			return false
		}
		resp.AudioPresent = true
		resp.AudioSamples += len(ev.Audio)
		if policy == PlaybackBuffered {
			*buffered = append(*buffered, ev.Audio...)
		} else {
			c.play(resp, ev.Audio)
		}

	case realtime.EventError:
		c.log.Warn("remote error event", "code", ev.Code, "message", ev.Text)
		resp.Warnings = append(resp.Warnings, ev.Text)

	case realtime.EventResponseDone:
		resp.Status = ev.Status
		return true
	}
	return false
}

func (c *Controller) play(resp *Response, samples []int16) {
	if err := c.sink.Play(samples, c.config.OutputSampleRate); err != nil {
		c.log.Warn("playback failed", "err", err)
		resp.Warnings = append(resp.Warnings, err.Error())
	}
}

func (c *Controller) emitText(delta string) {
	if c.hooks.OnText != nil && delta != "" {
		c.hooks.OnText(delta)
	}
}

// waitPlayback blocks until queued audio has played. It reports true if
// stop fired first.
func (c *Controller) waitPlayback(ctx context.Context) bool {
	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- c.sink.Wait(waitCtx) }()

	select {
	case <-c.stop.C():
		cancel()
		<-done
		return true
	case err := <-done:
		if err != nil && ctx.Err() == nil {
			c.log.Warn("waiting for playback failed", "err", err)
		}
		return false
	}
}

func (c *Controller) interrupt(resp Response) Response {
	c.stopPlayback()
	resp.Interrupted = true
	c.log.Info("response interrupted")
	c.setPhase(PhaseInterrupted)
	return resp
}

func (c *Controller) stopPlayback() {
	if err := c.sink.StopPlayback(); err != nil {
		c.log.Warn("failed to stop playback", "err", err)
	}
}

// CollectTranscript consumes one response and returns its spoken
// transcript. Audio is discarded. It reports interrupted when stop fired.
func (c *Controller) CollectTranscript(ctx context.Context, events <-chan realtime.Event) (transcript string, interrupted bool, err error) {
	var partial string
	first := true

	for {
		select {
		case <-c.stop.C():
			c.setPhase(PhaseInterrupted)
			return "", true, nil

		case <-ctx.Done():
			return "", false, ctx.Err()

		case ev, ok := <-events:
			if !ok {
				return "", false, realtime.ErrConnectionLost
			}
			if first {
				first = false
				c.setPhase(PhaseResponding)
			}
			switch ev.Kind {
			case realtime.EventTranscriptDelta:
				partial += ev.Text
			case realtime.EventTranscriptDone:
				transcript = ev.Text
				if transcript == "" {
					transcript = partial
				}
			case realtime.EventError:
				c.log.Warn("remote error event", "code", ev.Code, "message", ev.Text)
			case realtime.EventResponseDone:
				if transcript == "" {
					transcript = partial
				}
				return transcript, false, nil
			}
		}
	}
}
