package specialist

import (
	"context"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"

	contractx "github.com/tanpawarit/servicesaver/agent/contract"
	promptx "github.com/tanpawarit/servicesaver/agent/prompt"
)

type rankerLLMOutput struct {
	ProviderIDs []string `json:"provider_ids"`
	Rationale   string   `json:"rationale"`
}

type rankerImpl struct {
	verticals *promptx.Registry
	runner    compose.Runnable[map[string]any, rankerLLMOutput]
}

var _ contractx.Ranker = (*rankerImpl)(nil)

func newRanker(ctx context.Context, chatModel einomodel.BaseChatModel, systemPrompt string, verticals *promptx.Registry) (*rankerImpl, error) {
	runner, err := compileStructuredLLMGraph[rankerLLMOutput](ctx, chatModel, systemPrompt, "ranker.model_graph")
	if err != nil {
		return nil, fmt.Errorf("%w: compile ranker graph: %v", contractx.ErrModelInvoke, err)
	}
	return &rankerImpl{verticals: verticals, runner: runner}, nil
}

func (r *rankerImpl) Rank(ctx context.Context, req contractx.RankRequest) (contractx.RankResponse, error) {
	if len(req.Catalog) == 0 {
		return contractx.RankResponse{}, fmt.Errorf("%w: catalog is empty", contractx.ErrValidation)
	}

	vars, err := templateVars(r.verticals, req.Vertical, map[string]any{
		"customer":       profilePayload(req.Profile),
		"catalog":        providersPayload(req.Catalog),
		"max_candidates": req.MaxCandidates,
	})
	if err != nil {
		return contractx.RankResponse{}, err
	}

	out, err := r.runner.Invoke(ctx, vars)
	if err != nil {
		return contractx.RankResponse{}, fmt.Errorf("%w: ranker invoke: %v", contractx.ErrModelInvoke, err)
	}

	ids := make([]string, 0, len(out.ProviderIDs))
	for _, id := range out.ProviderIDs {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return contractx.RankResponse{}, fmt.Errorf("%w: provider_ids is empty", contractx.ErrSchemaViolation)
	}

	return contractx.RankResponse{
		ProviderIDs: ids,
		Rationale:   strings.TrimSpace(out.Rationale),
	}, nil
}
