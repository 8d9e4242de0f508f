package call

import (
	"errors"
	"fmt"
)

var (
	ErrTerminalStatus    = errors.New("call session already terminal")
	ErrInvalidTransition = errors.New("invalid call status transition")
)

// Session tracks one outbound call. Status only moves forward and never
// changes once terminal.
type Session struct {
	ID         string  `json:"id"`
	ProviderID string  `json:"provider_id"`
	Status     Status  `json:"status"`
	Transcript *string `json:"transcript,omitempty"`
}

func NewSession(id, providerID string) *Session {
	return &Session{
		ID:         id,
		ProviderID: providerID,
		Status:     StatusPending,
	}
}

func (s *Session) Terminal() bool {
	return s.Status.Terminal()
}

// Advance moves the session to next. Repeating the current status is a no-op.
func (s *Session) Advance(next Status) error {
	if next == s.Status {
		return nil
	}
	if s.Terminal() {
		return fmt.Errorf("%w: %s is %s, cannot become %s", ErrTerminalStatus, s.ID, s.Status, next)
	}
	if !canTransition(s.Status, next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.Status, next)
	}
	s.Status = next
	return nil
}

// SetTranscript attaches captured text. Blank text leaves the transcript absent.
func (s *Session) SetTranscript(text string) {
	if text == "" {
		return
	}
	s.Transcript = &text
}
