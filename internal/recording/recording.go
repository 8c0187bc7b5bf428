package recording

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/yok-tottii/EzS2T-Realtime/internal/audio"
)

// ErrSourceClosed is returned when the frame channel closes mid-capture
var ErrSourceClosed = errors.New("audio source closed")

// State represents the current recording state
type State int

const (
	// Idle means no frame has crossed the threshold yet
	Idle State = iota
	// SpeechActive means the last loud frame has not been followed by enough silence
	SpeechActive
	// SilencePending means the utterance looks finished and waits for stop
	SilencePending
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case SpeechActive:
		return "SpeechActive"
	case SilencePending:
		return "SilencePending"
	default:
		return "Unknown"
	}
}

// Config holds the silence detection thresholds
type Config struct {
	// SilenceThreshold is the peak amplitude at or above which a frame counts as speech
	SilenceThreshold int
	// SilenceDuration of trailing silence triggers the finalize hint
	SilenceDuration time.Duration
	// MinSpeechDuration below which an utterance is discarded
	MinSpeechDuration time.Duration
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		SilenceThreshold:  500,
		SilenceDuration:   time.Second,
		MinSpeechDuration: 300 * time.Millisecond,
	}
}

// Hooks observe a capture. Nil hooks are skipped.
type Hooks struct {
	// OnStateChange is called on every state transition
	OnStateChange func(State)
	// OnSilence is called once per silence stretch when the utterance may be finalized
	OnSilence func(silence time.Duration)
}

// Utterance is one finalized capture
type Utterance struct {
	Samples        []int16
	Frames         int
	SpeechDuration time.Duration
	Duration       time.Duration
}

// Capturer turns a frame stream into utterances gated by a stop signal
type Capturer struct {
	config Config
	hooks  Hooks
	log    *slog.Logger
}

// New creates a new capturer
func New(config Config, hooks Hooks, log *slog.Logger) *Capturer {
	if log == nil {
		log = slog.Default()
	}
	return &Capturer{config: config, hooks: hooks, log: log}
}

// GetConfig returns the capture thresholds
func (c *Capturer) GetConfig() Config {
	return c.config
}

// capture holds the state of a single Capture call
type capture struct {
	state   State
	frames  []audio.Frame
	speech  time.Duration
	silence time.Duration
	total   time.Duration
	hinted  bool
}

// Capture consumes frames until stop fires and returns the utterance.
// Silence never ends a capture on its own. A nil Utterance with a nil
// error means nothing worth submitting was said. Frames already queued
// when stop fires are included.
func (c *Capturer) Capture(ctx context.Context, frames <-chan audio.Frame, stop <-chan struct{}) (*Utterance, error) {
	st := &capture{state: Idle}

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()

		case <-stop:
			if err := c.drain(st, frames); err != nil {
				return nil, err
			}
			return c.finalize(st), nil

		case frame, ok := <-frames:
			if !ok {
				return nil, ErrSourceClosed
			}
			c.process(st, frame)
		}
	}
}

func (c *Capturer) drain(st *capture, frames <-chan audio.Frame) error {
	for {
		select {
		case frame, ok := <-frames:
			if !ok {
				return nil
			}
			c.process(st, frame)
		default:
			return nil
		}
	}
}

func (c *Capturer) process(st *capture, frame audio.Frame) {
	if len(frame.Samples) == 0 {
		c.log.Warn("dropping empty audio frame")
		return
	}

	if audio.PeakAmplitude(frame.Samples) >= c.config.SilenceThreshold {
		c.setState(st, SpeechActive)
		st.frames = append(st.frames, frame)
		st.speech += frame.Duration
		st.total += frame.Duration
		st.silence = 0
		st.hinted = false
		return
	}

	if st.state == Idle {
		return
	}

	st.frames = append(st.frames, frame)
	st.total += frame.Duration
	st.silence += frame.Duration

	if !st.hinted && st.silence >= c.config.SilenceDuration && st.speech >= c.config.MinSpeechDuration {
		st.hinted = true
		c.setState(st, SilencePending)
		c.log.Info("silence detected, waiting for stop", "silence", st.silence, "speech", st.speech)
		if c.hooks.OnSilence != nil {
			c.hooks.OnSilence(st.silence)
		}
	}
}

func (c *Capturer) setState(st *capture, state State) {
	if st.state == state {
		return
	}
	st.state = state
	if c.hooks.OnStateChange != nil {
		c.hooks.OnStateChange(state)
	}
}

func (c *Capturer) finalize(st *capture) *Utterance {
	if st.speech < c.config.MinSpeechDuration || len(st.frames) == 0 {
		c.log.Info("no utterance captured", "speech", st.speech, "frames", len(st.frames))
		return nil
	}

	return &Utterance{
		Samples:        concat(st.frames),
		Frames:         len(st.frames),
		SpeechDuration: st.speech,
		Duration:       st.total,
	}
}

func concat(frames []audio.Frame) []int16 {
	n := 0
	for _, f := range frames {
		n += len(f.Samples)
	}
	out := make([]int16, 0, n)
	for _, f := range frames {
		out = append(out, f.Samples...)
	}
	return out
}
