package specialist

import (
	"context"
	"fmt"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"

	contractx "github.com/tanpawarit/servicesaver/agent/contract"
	promptx "github.com/tanpawarit/servicesaver/agent/prompt"
)

type strategistImpl struct {
	verticals    *promptx.Registry
	planRunner   compose.Runnable[map[string]any, string]
	replanRunner compose.Runnable[map[string]any, string]
}

var _ contractx.Strategist = (*strategistImpl)(nil)

func newStrategist(
	ctx context.Context,
	chatModel einomodel.BaseChatModel,
	planPrompt string,
	replanPrompt string,
	verticals *promptx.Registry,
) (*strategistImpl, error) {
	planRunner, err := compileTextLLMGraph(ctx, chatModel, planPrompt, "strategist.plan_graph")
	if err != nil {
		return nil, fmt.Errorf("%w: compile strategist graph: %v", contractx.ErrModelInvoke, err)
	}
	replanRunner, err := compileTextLLMGraph(ctx, chatModel, replanPrompt, "strategist.replan_graph")
	if err != nil {
		return nil, fmt.Errorf("%w: compile replanner graph: %v", contractx.ErrModelInvoke, err)
	}
	return &strategistImpl{
		verticals:    verticals,
		planRunner:   planRunner,
		replanRunner: replanRunner,
	}, nil
}

// Plan writes the initial negotiation instruction for the whole shortlist.
func (s *strategistImpl) Plan(ctx context.Context, req contractx.PlanRequest) (string, error) {
	vars, err := templateVars(s.verticals, req.Vertical, map[string]any{
		"customer":  profilePayload(req.Profile),
		"providers": providersPayload(req.Shortlist.Providers),
		"rationale": req.Shortlist.Rationale,
	})
	if err != nil {
		return "", err
	}

	out, err := s.planRunner.Invoke(ctx, vars)
	if err != nil {
		return "", fmt.Errorf("%w: strategist invoke: %v", contractx.ErrModelInvoke, err)
	}
	return out, nil
}

// Replan rewrites the instruction using the outcomes of earlier calls.
func (s *strategistImpl) Replan(ctx context.Context, req contractx.ReplanRequest) (string, error) {
	summaries := make([]map[string]any, 0, len(req.PriorSummaries))
	for i, summary := range req.PriorSummaries {
		summaries = append(summaries, map[string]any{
			"call":    i + 1,
			"summary": summary,
		})
	}

	vars, err := templateVars(s.verticals, req.Vertical, map[string]any{
		"customer":         profilePayload(req.Profile),
		"current_strategy": req.CurrentStrategy,
		"call_summaries":   summaries,
		"next_provider":    providerPayload(req.NextProvider),
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", contractx.ErrStrategyReplan, err)
	}

	out, err := s.replanRunner.Invoke(ctx, vars)
	if err != nil {
		return "", fmt.Errorf("%w: %v", contractx.ErrStrategyReplan, err)
	}
	return out, nil
}
