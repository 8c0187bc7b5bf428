// Package realtime talks to a remote realtime speech model. A Session
// accepts one user message at a time and streams the model's response
// back as a sequence of Events.
package realtime

import (
	"context"
	"errors"
)

var (
	// ErrConnectionLost means the transport dropped before the response finished
	ErrConnectionLost = errors.New("realtime connection lost")
	// ErrSessionClosed is returned by operations on a closed session
	ErrSessionClosed = errors.New("realtime session closed")
	// ErrDial wraps failures to establish the connection
	ErrDial = errors.New("realtime dial failed")
)

// IsTransportFailure reports whether err is a connection level failure
// that the turn loop should retry.
func IsTransportFailure(err error) bool {
	return errors.Is(err, ErrConnectionLost) || errors.Is(err, ErrDial)
}

// EventKind identifies a response event
type EventKind int

const (
	// EventTranscriptDelta carries a fragment of the spoken response transcript
	EventTranscriptDelta EventKind = iota
	// EventTranscriptDone carries the full spoken response transcript
	EventTranscriptDone
	// EventTextDelta carries a fragment of the text response
	EventTextDelta
	// EventAudioDelta carries PCM16 response audio
	EventAudioDelta
	// EventInputTranscript carries the server-side transcription of the user's audio
	EventInputTranscript
	// EventResponseDone ends a response
	EventResponseDone
	// EventError reports a remote, non-fatal error
	EventError
)

// String returns the string representation of the kind
func (k EventKind) String() string {
	switch k {
	case EventTranscriptDelta:
		return "TranscriptDelta"
	case EventTranscriptDone:
		return "TranscriptDone"
	case EventTextDelta:
		return "TextDelta"
	case EventAudioDelta:
		return "AudioDelta"
	case EventInputTranscript:
		return "InputTranscript"
	case EventResponseDone:
		return "ResponseDone"
	case EventError:
		return "Error"
	default:
		return "Unknown"
	}
}

// Event is one server-side response event
type Event struct {
	Kind EventKind
	// Text for transcript/text kinds, message for EventError
	Text string
	// Audio for EventAudioDelta
	Audio []int16
	// Code for EventError
	Code string
	// Status for EventResponseDone ("completed", "cancelled", ...)
	Status string
}

// PayloadKind selects how a submitted message is encoded
type PayloadKind int

const (
	// PayloadAudio submits PCM16 audio as input_audio
	PayloadAudio PayloadKind = iota
	// PayloadText submits a text message
	PayloadText
)

// Payload is one user message
type Payload struct {
	Kind  PayloadKind
	Audio []int16
	Text  string
}

// AudioPayload returns an audio payload
func AudioPayload(samples []int16) Payload {
	return Payload{Kind: PayloadAudio, Audio: samples}
}

// TextPayload returns a text payload
func TextPayload(text string) Payload {
	return Payload{Kind: PayloadText, Text: text}
}

// SessionConfig is sent once when the session opens
type SessionConfig struct {
	Instructions string
	Voice        string
	Modalities   []string
	// InputTranscriptionModel enables server-side transcription of user audio when set
	InputTranscriptionModel string
}

// Session is one open connection to the model
type Session interface {
	// Submit adds a user message and requests a response
	Submit(ctx context.Context, p Payload) error

	// Events returns the response event stream. The channel is closed when
	// the connection ends; Err then reports why.
	Events() <-chan Event

	// Cancel asks the server to abandon the in-flight response
	Cancel(ctx context.Context) error

	// Err returns the error that ended the event stream, if any
	Err() error

	// Close terminates the session. Idempotent.
	Close() error
}

// Provider opens sessions
type Provider interface {
	Open(ctx context.Context, cfg SessionConfig) (Session, error)
}
