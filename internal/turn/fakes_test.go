package turn

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yok-tottii/EzS2T-Realtime/internal/audio"
	"github.com/yok-tottii/EzS2T-Realtime/internal/realtime"
	"github.com/yok-tottii/EzS2T-Realtime/internal/search"
)

const block = 100 * time.Millisecond

func loud() audio.Frame {
	samples := make([]int16, 1600)
	for i := range samples {
		samples[i] = 3000
	}
	return audio.Frame{Samples: samples, Duration: block}
}

func quiet() audio.Frame {
	return audio.Frame{Samples: make([]int16, 1600), Duration: block}
}

// fakeSource hands out a buffered channel. ready closes once a capture
// has subscribed, after the controller discarded stale frames.
type fakeSource struct {
	ch    chan audio.Frame
	calls int32
	ready chan struct{}
}

func newFakeSource() *fakeSource {
	return &fakeSource{ch: make(chan audio.Frame, 64), ready: make(chan struct{})}
}

func (s *fakeSource) Frames() <-chan audio.Frame {
	if atomic.AddInt32(&s.calls, 1) == 2 {
		close(s.ready)
	}
	return s.ch
}

func (s *fakeSource) Close() error { return nil }

type fakeSink struct {
	mu      sync.Mutex
	played  [][]int16
	rates   []int
	stops   int
	waits   int
	block   chan struct{}
	waiting chan struct{}
	once    sync.Once
	playErr error
}

func newFakeSink() *fakeSink {
	return &fakeSink{waiting: make(chan struct{})}
}

func (s *fakeSink) Play(samples []int16, rate int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.playErr != nil {
		return s.playErr
	}
	s.played = append(s.played, append([]int16(nil), samples...))
	s.rates = append(s.rates, rate)
	return nil
}

func (s *fakeSink) StopPlayback() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stops++
	return nil
}

func (s *fakeSink) Wait(ctx context.Context) error {
	s.mu.Lock()
	s.waits++
	block := s.block
	s.mu.Unlock()
	s.once.Do(func() { close(s.waiting) })

	if block == nil {
		return nil
	}
	select {
	case <-block:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *fakeSink) snapshot() (played [][]int16, stops int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]int16(nil), s.played...), s.stops
}

type fakeSession struct {
	events chan realtime.Event

	mu        sync.Mutex
	submitted []realtime.Payload
	cancels   int
	closed    int
	err       error
	submitErr error
}

func newFakeSession(events ...realtime.Event) *fakeSession {
	ch := make(chan realtime.Event, len(events)+1)
	for _, ev := range events {
		ch <- ev
	}
	return &fakeSession{events: ch}
}

func (s *fakeSession) Submit(_ context.Context, p realtime.Payload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.submitErr != nil {
		return s.submitErr
	}
	s.submitted = append(s.submitted, p)
	return nil
}

func (s *fakeSession) Events() <-chan realtime.Event { return s.events }

func (s *fakeSession) Cancel(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancels++
	return nil
}

func (s *fakeSession) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

type fakeProvider struct {
	mu       sync.Mutex
	sessions []*fakeSession
	err      error
	opens    int
	configs  []realtime.SessionConfig
}

func (p *fakeProvider) Open(_ context.Context, cfg realtime.SessionConfig) (realtime.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.opens++
	p.configs = append(p.configs, cfg)
	if p.err != nil {
		return nil, p.err
	}
	if len(p.sessions) == 0 {
		return nil, errors.New("no more sessions")
	}
	s := p.sessions[0]
	p.sessions = p.sessions[1:]
	return s, nil
}

type fakeSearcher struct {
	results []search.Result
	err     error
	queries []string
}

func (s *fakeSearcher) Search(_ context.Context, query string) ([]search.Result, error) {
	s.queries = append(s.queries, query)
	return s.results, s.err
}

func audioDelta(n int) realtime.Event {
	return realtime.Event{Kind: realtime.EventAudioDelta, Audio: make([]int16, n)}
}

func textDelta(s string) realtime.Event {
	return realtime.Event{Kind: realtime.EventTextDelta, Text: s}
}

func transcriptDelta(s string) realtime.Event {
	return realtime.Event{Kind: realtime.EventTranscriptDelta, Text: s}
}

func responseDone() realtime.Event {
	return realtime.Event{Kind: realtime.EventResponseDone, Status: "completed"}
}

func newTestController(source audio.Source, sink audio.Sink, hooks Hooks) *Controller {
	if source == nil {
		source = newFakeSource()
	}
	return NewController(source, sink, NewStop(), DefaultConfig(), hooks, nil)
}
