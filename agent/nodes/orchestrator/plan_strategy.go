package orchestratornode

import (
	"context"
	"fmt"
	"strings"

	contractx "github.com/tanpawarit/servicesaver/agent/contract"
	statex "github.com/tanpawarit/servicesaver/agent/state"
)

func PlanStrategy(
	ctx context.Context,
	in *GraphState,
	strategist contractx.Strategist,
	store contractx.RecordStore,
) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	strategy, err := strategist.Plan(ctx, contractx.PlanRequest{
		Vertical:  in.Vertical,
		Profile:   in.Profile.Clone(),
		Shortlist: in.Shortlist,
	})
	if err != nil {
		return nil, fmt.Errorf("plan strategy: %w", err)
	}
	strategy = strings.TrimSpace(strategy)
	if strategy == "" {
		return nil, fmt.Errorf("%w: strategist returned an empty strategy", contractx.ErrSchemaViolation)
	}
	in.Strategy = strategy

	if err := Persist(ctx, store, in.UserID, map[string]any{
		statex.FieldStatus:     statex.StatusNegotiating,
		statex.FieldStrategy:   strategy,
		statex.FieldStrategies: []string{strategy},
	}); err != nil {
		return nil, err
	}
	return in, nil
}
