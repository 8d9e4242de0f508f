package call

import (
	"context"

	contractx "github.com/tanpawarit/servicesaver/agent/contract"
)

// Gateway is the telephony transport.
type Gateway interface {
	// Initiate dials phone with script as the agent's instruction and returns
	// the gateway session id.
	Initiate(ctx context.Context, phone, script string) (string, error)
	Status(ctx context.Context, sessionID string) (Status, error)
	// Transcript returns the captured text; ok is false when none exists.
	Transcript(ctx context.Context, sessionID string) (text string, ok bool, err error)
}

// Terminator is implemented by gateways that can end a call early.
type Terminator interface {
	Hangup(ctx context.Context, sessionID string) error
}

type Request struct {
	Vertical string
	Profile  contractx.CustomerProfile
	Provider contractx.Provider
	Strategy string
}

// Caller runs one negotiation call to completion. A non-nil error means the
// call could not be carried out; the returned session, when present, holds
// the last known status.
type Caller interface {
	Call(ctx context.Context, req Request) (*Session, error)
}
