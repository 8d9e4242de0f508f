package orchestratornode

import (
	"context"
	"fmt"

	contractx "github.com/tanpawarit/servicesaver/agent/contract"
	statex "github.com/tanpawarit/servicesaver/agent/state"
)

// NegotiateFunc runs the per-provider call loop.
type NegotiateFunc func(ctx context.Context, in *GraphState) (*statex.NegotiationState, error)

func Negotiate(ctx context.Context, in *GraphState, run NegotiateFunc) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}
	negotiation, err := run(ctx, in)
	if err != nil {
		return nil, err
	}
	in.Negotiation = negotiation
	return in, nil
}
