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

type summarizerImpl struct {
	verticals *promptx.Registry
	runner    compose.Runnable[map[string]any, string]
}

var _ contractx.Summarizer = (*summarizerImpl)(nil)

func newSummarizer(ctx context.Context, chatModel einomodel.BaseChatModel, systemPrompt string, verticals *promptx.Registry) (*summarizerImpl, error) {
	runner, err := compileTextLLMGraph(ctx, chatModel, systemPrompt, "summarizer.model_graph")
	if err != nil {
		return nil, fmt.Errorf("%w: compile summarizer graph: %v", contractx.ErrModelInvoke, err)
	}
	return &summarizerImpl{verticals: verticals, runner: runner}, nil
}

func (s *summarizerImpl) Summarize(ctx context.Context, req contractx.SummaryRequest) (string, error) {
	if strings.TrimSpace(req.Transcript) == "" {
		return "", fmt.Errorf("%w: transcript is empty", contractx.ErrValidation)
	}

	vars, err := templateVars(s.verticals, req.Vertical, map[string]any{
		"provider":   providerPayload(req.Provider),
		"transcript": req.Transcript,
	})
	if err != nil {
		return "", err
	}

	out, err := s.runner.Invoke(ctx, vars)
	if err != nil {
		return "", fmt.Errorf("%w: summarizer invoke: %v", contractx.ErrModelInvoke, err)
	}
	return out, nil
}
