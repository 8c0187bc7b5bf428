package turn

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/yok-tottii/EzS2T-Realtime/internal/realtime"
	"github.com/yok-tottii/EzS2T-Realtime/internal/recording"
	"github.com/yok-tottii/EzS2T-Realtime/internal/search"
)

// Strategy names
const (
	StrategyReply       = "reply"
	StrategySearch      = "search"
	StrategyTypedSearch = "typed-search"
)

// Default instructions sent in session.update
const (
	ReplyInstructions       = "Transcribe the user's audio input and respond with a short greeting in both text and audio formats."
	SearchInstructions      = "Transcribe the user's audio input and wait for further instructions to summarize search results in text and audio."
	TypedSearchInstructions = "Output the exact provided input text as both streaming text and audio, without generating additional content or transcribing the audio output."
)

// Input is what a strategy acquired for one turn
type Input struct {
	Utterance *recording.Utterance
	Text      string
}

// Result is the outcome of running a strategy on a session
type Result struct {
	// Input is what the user said or typed, for the journal
	Input string
	// Summary is the search summary submitted to the model, if any
	Summary  string
	Response Response
}

// Strategy is one kind of turn. Acquire runs before a session exists;
// Run owns the session exchange.
type Strategy interface {
	Name() string
	SessionConfig() realtime.SessionConfig
	Acquire(ctx context.Context, c *Controller) (Input, error)
	Run(ctx context.Context, c *Controller, sess realtime.Session, in Input) (Result, error)
}

// ── reply ──────────────────────────────────────────────────────────────────────

// Reply submits the utterance and plays the model's answer
type Reply struct {
	Session  realtime.SessionConfig
	Playback PlaybackPolicy
}

var _ Strategy = (*Reply)(nil)

// NewReply returns a reply strategy with default instructions
func NewReply(voice string) *Reply {
	return &Reply{Session: realtime.SessionConfig{
		Instructions: ReplyInstructions,
		Voice:        voice,
		Modalities:   []string{"audio", "text"},
	}}
}

func (r *Reply) Name() string                          { return StrategyReply }
func (r *Reply) SessionConfig() realtime.SessionConfig { return r.Session }

func (r *Reply) Acquire(ctx context.Context, c *Controller) (Input, error) {
	return acquireUtterance(ctx, c)
}

func (r *Reply) Run(ctx context.Context, c *Controller, sess realtime.Session, in Input) (Result, error) {
	if err := c.Submit(ctx, sess, realtime.AudioPayload(in.Utterance.Samples)); err != nil {
		return Result{}, err
	}

	resp, err := c.StreamResponse(ctx, sess.Events(), r.Playback)
	input := resp.InputTranscript
	if input == "" {
		input = resp.Transcript
	}
	return Result{Input: input, Response: resp}, err
}

func acquireUtterance(ctx context.Context, c *Controller) (Input, error) {
	utt, err := c.CaptureUtterance(ctx)
	if err != nil {
		return Input{}, err
	}
	if utt == nil {
		return Input{}, ErrNoInput
	}
	return Input{Utterance: utt}, nil
}

// ── search ─────────────────────────────────────────────────────────────────────

// Search asks the model to transcribe the utterance, searches the web for
// the transcript and has the model read back a summary
type Search struct {
	Session          realtime.SessionConfig
	Playback         PlaybackPolicy
	Searcher         search.Searcher
	DescriptionLimit int
	Log              *slog.Logger
}

var _ Strategy = (*Search)(nil)

// NewSearch returns a search strategy with default instructions
func NewSearch(voice string, searcher search.Searcher, log *slog.Logger) *Search {
	return &Search{
		Session: realtime.SessionConfig{
			Instructions: SearchInstructions,
			Voice:        voice,
			Modalities:   []string{"audio", "text"},
		},
		Searcher:         searcher,
		DescriptionLimit: 100,
		Log:              log,
	}
}

func (s *Search) Name() string                          { return StrategySearch }
func (s *Search) SessionConfig() realtime.SessionConfig { return s.Session }

func (s *Search) Acquire(ctx context.Context, c *Controller) (Input, error) {
	return acquireUtterance(ctx, c)
}

func (s *Search) Run(ctx context.Context, c *Controller, sess realtime.Session, in Input) (Result, error) {
	if err := c.Submit(ctx, sess, realtime.AudioPayload(in.Utterance.Samples)); err != nil {
		return Result{}, err
	}

	transcript, interrupted, err := c.CollectTranscript(ctx, sess.Events())
	if err != nil {
		return Result{}, err
	}
	if interrupted {
		return Result{Response: Response{Interrupted: true}}, nil
	}

	query := strings.TrimSpace(transcript)
	if query == "" {
		return Result{}, fmt.Errorf("no valid query transcribed: %w", ErrNoInput)
	}
	logger(s.Log).Info("recognized query", "query", query)

	return searchAndSpeak(ctx, c, sess, s.Searcher, query, s.DescriptionLimit, s.Playback, s.Log)
}

func searchAndSpeak(ctx context.Context, c *Controller, sess realtime.Session, searcher search.Searcher,
	query string, limit int, playback PlaybackPolicy, log *slog.Logger) (Result, error) {

	results, err := searcher.Search(ctx, query)
	if err != nil {
		return Result{Input: query}, fmt.Errorf("search failed: %w", err)
	}

	summary := search.Summarize(results, limit)
	logger(log).Debug("search summary prepared", "results", len(results), "summary", summary)

	if err := c.Submit(ctx, sess, realtime.TextPayload(summary)); err != nil {
		return Result{Input: query, Summary: summary}, err
	}

	resp, err := c.StreamResponse(ctx, sess.Events(), playback)
	return Result{Input: query, Summary: summary, Response: resp}, err
}

// ── typed-search ───────────────────────────────────────────────────────────────

// TypedSearch reads a query line, searches the web and has the model read
// back the summary. Entering "quit" ends the program.
type TypedSearch struct {
	Session          realtime.SessionConfig
	Playback         PlaybackPolicy
	Searcher         search.Searcher
	DescriptionLimit int
	Prompt           string
	Out              io.Writer
	Log              *slog.Logger

	lines <-chan string
}

var _ Strategy = (*TypedSearch)(nil)

// NewTypedSearch starts reading queries from in. Responses play once complete.
func NewTypedSearch(voice string, searcher search.Searcher, in io.Reader, out io.Writer, log *slog.Logger) *TypedSearch {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	return &TypedSearch{
		Session: realtime.SessionConfig{
			Instructions: TypedSearchInstructions,
			Voice:        voice,
			Modalities:   []string{"audio", "text"},
		},
		Playback: PlaybackBuffered,
		Searcher: searcher,
		Prompt:   "Enter your search query (or 'quit' to exit): ",
		Out:      out,
		Log:      log,
		lines:    lines,
	}
}

func (t *TypedSearch) Name() string                          { return StrategyTypedSearch }
func (t *TypedSearch) SessionConfig() realtime.SessionConfig { return t.Session }

func (t *TypedSearch) Acquire(ctx context.Context, c *Controller) (Input, error) {
	c.setPhase(PhaseIdle)
	if t.Out != nil && t.Prompt != "" {
		fmt.Fprint(t.Out, t.Prompt)
	}

	select {
	case <-ctx.Done():
		return Input{}, ctx.Err()
	case line, ok := <-t.lines:
		if !ok {
			return Input{}, ErrQuit
		}
		// Presses made while the prompt waited belong to no turn.
		c.stop.Reset()
		query := strings.TrimSpace(line)
		if strings.EqualFold(query, "quit") {
			return Input{}, ErrQuit
		}
		if query == "" {
			return Input{}, ErrNoInput
		}
		return Input{Text: query}, nil
	}
}

func (t *TypedSearch) Run(ctx context.Context, c *Controller, sess realtime.Session, in Input) (Result, error) {
	result, err := searchAndSpeak(ctx, c, sess, t.Searcher, in.Text, t.DescriptionLimit, t.Playback, t.Log)
	if err != nil {
		return result, err
	}

	// No text came back; show what the model was asked to read.
	if !result.Response.Interrupted && result.Response.Text == "" && t.Out != nil {
		fmt.Fprintf(t.Out, "\nResponse (from search): %s\n", result.Summary)
	}
	return result, nil
}

func logger(log *slog.Logger) *slog.Logger {
	if log == nil {
		return slog.Default()
	}
	return log
}
