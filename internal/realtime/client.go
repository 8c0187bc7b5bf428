package realtime

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/yok-tottii/EzS2T-Realtime/internal/audio"
)

var _ Provider = (*Client)(nil)
var _ Session = (*session)(nil)

const (
	// BackendOpenAI connects to api.openai.com
	BackendOpenAI = "openai"
	// BackendAzure connects to an Azure OpenAI resource
	BackendAzure = "azure"

	defaultModel      = "gpt-4o-realtime-preview"
	defaultAPIVersion = "2024-10-01-preview"
	openAIBaseURL     = "wss://api.openai.com/v1/realtime"

	// Response audio deltas routinely exceed the library's 32KiB default.
	readLimit = 16 << 20
)

// Config selects the backend and credentials
type Config struct {
	Backend    string
	Endpoint   string // Azure resource endpoint, e.g. https://name.openai.azure.com
	APIKey     string
	Model      string // model name, or deployment name on Azure
	APIVersion string
}

// ── Options ────────────────────────────────────────────────────────────────────

// Option configures a Client
type Option func(*Client)

// WithBaseURL overrides the WebSocket URL up to the query string. Used by tests.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithLogger sets the logger for session diagnostics
func WithLogger(log *slog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// WithDialTimeout bounds connection setup
func WithDialTimeout(d time.Duration) Option {
	return func(c *Client) { c.dialTimeout = d }
}

// WithEventBuffer sets the capacity of the session event channel
func WithEventBuffer(n int) Option {
	return func(c *Client) { c.eventBuffer = n }
}

// ── Client ─────────────────────────────────────────────────────────────────────

// Client opens realtime sessions over WebSocket
type Client struct {
	config      Config
	baseURL     string
	log         *slog.Logger
	dialTimeout time.Duration
	eventBuffer int
}

// New creates a client for config
func New(config Config, opts ...Option) *Client {
	if config.Model == "" {
		config.Model = defaultModel
	}
	if config.APIVersion == "" {
		config.APIVersion = defaultAPIVersion
	}
	if config.Backend == "" {
		config.Backend = BackendOpenAI
	}

	c := &Client{
		config:      config,
		log:         slog.Default(),
		dialTimeout: 15 * time.Second,
		eventBuffer: 256,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Endpoint returns the WebSocket URL and auth headers for the configured backend
func (c *Client) Endpoint() (string, http.Header, error) {
	header := http.Header{}
	query := url.Values{}
	base := c.baseURL

	switch c.config.Backend {
	case BackendOpenAI:
		if base == "" {
			base = openAIBaseURL
		}
		query.Set("model", c.config.Model)
		header.Set("Authorization", "Bearer "+c.config.APIKey)
		header.Set("OpenAI-Beta", "realtime=v1")

	case BackendAzure:
		if base == "" {
			host := c.config.Endpoint
			host = strings.TrimPrefix(host, "https://")
			host = strings.TrimPrefix(host, "wss://")
			host = strings.TrimSuffix(host, "/")
			if host == "" {
				return "", nil, fmt.Errorf("azure endpoint is empty")
			}
			base = "wss://" + host + "/openai/realtime"
		}
		query.Set("api-version", c.config.APIVersion)
		query.Set("deployment", c.config.Model)
		header.Set("api-key", c.config.APIKey)

	default:
		return "", nil, fmt.Errorf("unknown realtime backend %q", c.config.Backend)
	}

	return base + "?" + query.Encode(), header, nil
}

// Open dials the backend and sends the session configuration
func (c *Client) Open(ctx context.Context, cfg SessionConfig) (Session, error) {
	wsURL, header, err := c.Endpoint()
	if err != nil {
		return nil, err
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.dialTimeout)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, wsURL, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDial, err)
	}
	conn.SetReadLimit(readLimit)

	sessCtx, sessCancel := context.WithCancel(context.Background())
	s := &session{
		conn:   conn,
		events: make(chan Event, c.eventBuffer),
		log:    c.log.With("backend", c.config.Backend, "model", c.config.Model),
		ctx:    sessCtx,
		cancel: sessCancel,
	}

	if err := s.sendSessionUpdate(ctx, cfg); err != nil {
		sessCancel()
		conn.Close(websocket.StatusInternalError, "session update failed")
		return nil, fmt.Errorf("%w: session update: %v", ErrDial, err)
	}

	go s.receiveLoop()

	s.log.Debug("realtime session opened")
	return s, nil
}

// ── Protocol message types (outgoing) ─────────────────────────────────────────

type sessionUpdateMessage struct {
	EventID string        `json:"event_id"`
	Type    string        `json:"type"`
	Session sessionParams `json:"session"`
}

type sessionParams struct {
	Modalities              []string            `json:"modalities,omitempty"`
	Instructions            string              `json:"instructions,omitempty"`
	Voice                   string              `json:"voice,omitempty"`
	InputAudioFormat        string              `json:"input_audio_format"`
	OutputAudioFormat       string              `json:"output_audio_format"`
	InputAudioTranscription *transcriptionParam `json:"input_audio_transcription,omitempty"`
	// Push-to-talk: the server must not segment turns on its own.
	TurnDetection json.RawMessage `json:"turn_detection"`
}

type transcriptionParam struct {
	Model string `json:"model"`
}

type conversationItemMessage struct {
	EventID string           `json:"event_id"`
	Type    string           `json:"type"`
	Item    conversationItem `json:"item"`
}

type conversationItem struct {
	Type    string             `json:"type"`
	Role    string             `json:"role"`
	Content []conversationPart `json:"content"`
}

type conversationPart struct {
	Type  string `json:"type"`
	Text  string `json:"text,omitempty"`
	Audio string `json:"audio,omitempty"`
}

type controlMessage struct {
	EventID string `json:"event_id"`
	Type    string `json:"type"`
}

// ── Protocol message types (incoming) ─────────────────────────────────────────

type serverEvent struct {
	Type       string             `json:"type"`
	Delta      string             `json:"delta,omitempty"`
	Transcript string             `json:"transcript,omitempty"`
	Response   *serverResponse    `json:"response,omitempty"`
	Error      *serverErrorDetail `json:"error,omitempty"`
}

type serverResponse struct {
	Status string `json:"status"`
}

type serverErrorDetail struct {
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

func newEventID() string {
	return "evt_" + uuid.NewString()
}

// ── session ────────────────────────────────────────────────────────────────────

type session struct {
	conn   *websocket.Conn
	events chan Event
	log    *slog.Logger

	mu         sync.Mutex
	errVal     error
	closed     bool
	transcript strings.Builder

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

func (s *session) sendSessionUpdate(ctx context.Context, cfg SessionConfig) error {
	modalities := cfg.Modalities
	if len(modalities) == 0 {
		modalities = []string{"audio", "text"}
	}

	params := sessionParams{
		Modalities:        modalities,
		Instructions:      cfg.Instructions,
		Voice:             cfg.Voice,
		InputAudioFormat:  "pcm16",
		OutputAudioFormat: "pcm16",
		TurnDetection:     json.RawMessage("null"),
	}
	if cfg.InputTranscriptionModel != "" {
		params.InputAudioTranscription = &transcriptionParam{Model: cfg.InputTranscriptionModel}
	}

	return s.writeJSON(ctx, sessionUpdateMessage{
		EventID: newEventID(),
		Type:    "session.update",
		Session: params,
	})
}

func (s *session) writeJSON(ctx context.Context, v any) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrSessionClosed
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal client event: %w", err)
	}
	if err := s.conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionLost, err)
	}
	return nil
}

// receiveLoop owns s.events and closes it on exit
func (s *session) receiveLoop() {
	defer s.closeEvents()

	for {
		_, data, err := s.conn.Read(s.ctx)
		if err != nil {
			if s.ctx.Err() != nil {
				s.setErr(ErrSessionClosed)
				return
			}
			s.log.Warn("realtime connection ended", "err", err)
			s.setErr(fmt.Errorf("%w: %v", ErrConnectionLost, err))
			return
		}

		var evt serverEvent
		if err := json.Unmarshal(data, &evt); err != nil {
			s.log.Warn("dropping malformed server event", "err", err)
			continue
		}

		if ev, ok := s.translate(&evt); ok {
			select {
			case s.events <- ev:
			case <-s.ctx.Done():
				s.setErr(ErrSessionClosed)
				return
			}
		}
	}
}

// translate maps a wire event to an Event. Unhandled types are skipped.
func (s *session) translate(evt *serverEvent) (Event, bool) {
	switch evt.Type {
	case "response.audio.delta":
		raw, err := base64.StdEncoding.DecodeString(evt.Delta)
		if err != nil {
			s.log.Warn("dropping undecodable audio delta", "err", err)
			return Event{}, false
		}
		if len(raw) == 0 {
			return Event{}, false
		}
		return Event{Kind: EventAudioDelta, Audio: audio.BytesToInt16(raw)}, true

	case "response.audio_transcript.delta":
		s.mu.Lock()
		s.transcript.WriteString(evt.Delta)
		s.mu.Unlock()
		return Event{Kind: EventTranscriptDelta, Text: evt.Delta}, true

	case "response.audio_transcript.done":
		s.mu.Lock()
		text := evt.Transcript
		if text == "" {
			text = s.transcript.String()
		}
		s.transcript.Reset()
		s.mu.Unlock()
		return Event{Kind: EventTranscriptDone, Text: text}, true

	case "response.text.delta":
		return Event{Kind: EventTextDelta, Text: evt.Delta}, true

	case "conversation.item.input_audio_transcription.completed":
		return Event{Kind: EventInputTranscript, Text: evt.Transcript}, true

	case "response.done":
		status := ""
		if evt.Response != nil {
			status = evt.Response.Status
		}
		return Event{Kind: EventResponseDone, Status: status}, true

	case "error":
		ev := Event{Kind: EventError, Text: "unknown error"}
		if evt.Error != nil {
			if evt.Error.Message != "" {
				ev.Text = evt.Error.Message
			}
			ev.Code = evt.Error.Code
		}
		return ev, true

	default:
		return Event{}, false
	}
}

func (s *session) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.errVal == nil {
		s.errVal = err
	}
}

func (s *session) closeEvents() {
	s.closeOnce.Do(func() { close(s.events) })
}

// ── Session methods ────────────────────────────────────────────────────────────

// Submit creates a user message and requests a response
func (s *session) Submit(ctx context.Context, p Payload) error {
	var part conversationPart
	switch p.Kind {
	case PayloadAudio:
		if len(p.Audio) == 0 {
			return fmt.Errorf("empty audio payload")
		}
		part = conversationPart{
			Type:  "input_audio",
			Audio: base64.StdEncoding.EncodeToString(audio.Int16ToBytes(p.Audio)),
		}
	case PayloadText:
		if p.Text == "" {
			return fmt.Errorf("empty text payload")
		}
		part = conversationPart{Type: "input_text", Text: p.Text}
	default:
		return fmt.Errorf("unknown payload kind %d", p.Kind)
	}

	if err := s.writeJSON(ctx, conversationItemMessage{
		EventID: newEventID(),
		Type:    "conversation.item.create",
		Item: conversationItem{
			Type:    "message",
			Role:    "user",
			Content: []conversationPart{part},
		},
	}); err != nil {
		return err
	}

	return s.writeJSON(ctx, controlMessage{EventID: newEventID(), Type: "response.create"})
}

// Events returns the response event stream
func (s *session) Events() <-chan Event { return s.events }

// Cancel sends response.cancel
func (s *session) Cancel(ctx context.Context) error {
	return s.writeJSON(ctx, controlMessage{EventID: newEventID(), Type: "response.cancel"})
}

// Err returns the error that ended the event stream
func (s *session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errVal
}

// Close terminates the session and releases all resources. Idempotent.
func (s *session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.conn.Close(websocket.StatusNormalClosure, "session closed")
	s.log.Debug("realtime session closed")
	return nil
}
