package call

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	contractx "github.com/tanpawarit/servicesaver/agent/contract"
)

// SimulatedCaller produces calls from the simulator specialist instead of a
// telephony gateway. Sessions follow the same lifecycle as live ones.
type SimulatedCaller struct {
	simulator contractx.Simulator
	newID     func() string
}

var _ Caller = (*SimulatedCaller)(nil)

func NewSimulatedCaller(simulator contractx.Simulator) (*SimulatedCaller, error) {
	if simulator == nil {
		return nil, errors.New("simulator is required")
	}
	return &SimulatedCaller{
		simulator: simulator,
		newID: func() string {
			return "sim-" + uuid.NewString()
		},
	}, nil
}

func (c *SimulatedCaller) Call(ctx context.Context, req Request) (*Session, error) {
	session := NewSession(c.newID(), req.Provider.ID)
	if err := session.Advance(StatusDialing); err != nil {
		return session, err
	}
	if err := session.Advance(StatusInProgress); err != nil {
		return session, err
	}

	transcript, err := c.simulator.Simulate(ctx, contractx.SimulationRequest{
		Vertical: req.Vertical,
		Profile:  req.Profile.Clone(),
		Provider: req.Provider,
		Strategy: req.Strategy,
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			_ = session.Advance(StatusCanceled)
			return session, ctxErr
		}
		_ = session.Advance(StatusFailed)
		return session, fmt.Errorf("simulate call: %w", err)
	}

	if err := session.Advance(StatusCompleted); err != nil {
		return session, err
	}
	session.SetTranscript(strings.TrimSpace(transcript))
	return session, nil
}
