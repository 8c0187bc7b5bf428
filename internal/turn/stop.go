package turn

// Stop is an edge-triggered stop token shared by every stop source
// (hotkey, tray, HTTP) and the turn loop. A press is held until a single
// receiver consumes it; further presses before that are coalesced.
type Stop struct {
	ch chan struct{}
}

// NewStop returns an unarmed stop token
func NewStop() *Stop {
	return &Stop{ch: make(chan struct{}, 1)}
}

// Fire arms the token without blocking. It reports false when a press
// was already pending.
func (s *Stop) Fire() bool {
	select {
	case s.ch <- struct{}{}:
		return true
	default:
		return false
	}
}

// C returns the channel that yields one value per consumed press
func (s *Stop) C() <-chan struct{} {
	return s.ch
}

// Reset discards a pending press
func (s *Stop) Reset() {
	select {
	case <-s.ch:
	default:
	}
}

// Pending reports whether a press is waiting to be consumed
func (s *Stop) Pending() bool {
	return len(s.ch) > 0
}
