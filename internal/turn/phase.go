package turn

import "github.com/yok-tottii/EzS2T-Realtime/internal/recording"

// Phase is the per-turn state
type Phase int

const (
	// PhaseIdle means listening, no speech yet
	PhaseIdle Phase = iota
	// PhaseSpeechActive means speech is being captured
	PhaseSpeechActive
	// PhaseSilencePending means the utterance looks complete and waits for stop
	PhaseSilencePending
	// PhaseFinalizing means input is being prepared for submission
	PhaseFinalizing
	// PhaseSubmitted means the input was sent and no response event arrived yet
	PhaseSubmitted
	// PhaseResponding means the response is streaming
	PhaseResponding
	// PhaseDone means the response finished
	PhaseDone
	// PhaseInterrupted means the user stopped the response
	PhaseInterrupted
)

// String returns the string representation of the phase
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "Idle"
	case PhaseSpeechActive:
		return "SpeechActive"
	case PhaseSilencePending:
		return "SilencePending"
	case PhaseFinalizing:
		return "Finalizing"
	case PhaseSubmitted:
		return "Submitted"
	case PhaseResponding:
		return "Responding"
	case PhaseDone:
		return "Done"
	case PhaseInterrupted:
		return "Interrupted"
	default:
		return "Unknown"
	}
}

// Busy reports whether the phase is past capture
func (p Phase) Busy() bool {
	return p >= PhaseFinalizing && p <= PhaseResponding
}

func phaseFromRecording(s recording.State) Phase {
	switch s {
	case recording.SpeechActive:
		return PhaseSpeechActive
	case recording.SilencePending:
		return PhaseSilencePending
	default:
		return PhaseIdle
	}
}
