package specialist

import (
	"context"
	"fmt"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"

	contractx "github.com/tanpawarit/servicesaver/agent/contract"
	promptx "github.com/tanpawarit/servicesaver/agent/prompt"
)

type simulatorImpl struct {
	verticals *promptx.Registry
	runner    compose.Runnable[map[string]any, string]
}

var _ contractx.Simulator = (*simulatorImpl)(nil)

func newSimulator(ctx context.Context, chatModel einomodel.BaseChatModel, systemPrompt string, verticals *promptx.Registry) (*simulatorImpl, error) {
	runner, err := compileTextLLMGraph(ctx, chatModel, systemPrompt, "simulator.model_graph")
	if err != nil {
		return nil, fmt.Errorf("%w: compile simulator graph: %v", contractx.ErrModelInvoke, err)
	}
	return &simulatorImpl{verticals: verticals, runner: runner}, nil
}

// Simulate generates a call transcript between the negotiating agent and a
// representative bound by the provider's rating, specialties and price range.
func (s *simulatorImpl) Simulate(ctx context.Context, req contractx.SimulationRequest) (string, error) {
	vars, err := templateVars(s.verticals, req.Vertical, map[string]any{
		"customer": profilePayload(req.Profile),
		"provider": providerPayload(req.Provider),
		"strategy": req.Strategy,
	})
	if err != nil {
		return "", err
	}

	out, err := s.runner.Invoke(ctx, vars)
	if err != nil {
		return "", fmt.Errorf("%w: simulator invoke: %v", contractx.ErrModelInvoke, err)
	}
	return out, nil
}
