package specialist

import (
	"context"
	"errors"
	"fmt"

	einomodel "github.com/cloudwego/eino/components/model"

	contractx "github.com/tanpawarit/servicesaver/agent/contract"
	llmx "github.com/tanpawarit/servicesaver/agent/llm"
	promptx "github.com/tanpawarit/servicesaver/agent/prompt"
)

type registryImpl struct {
	ranker     contractx.Ranker
	strategist contractx.Strategist
	summarizer contractx.Summarizer
	analyst    contractx.Analyst
	simulator  contractx.Simulator
}

func (r *registryImpl) Ranker() contractx.Ranker {
	return r.ranker
}

func (r *registryImpl) Strategist() contractx.Strategist {
	return r.strategist
}

func (r *registryImpl) Summarizer() contractx.Summarizer {
	return r.summarizer
}

func (r *registryImpl) Analyst() contractx.Analyst {
	return r.analyst
}

func (r *registryImpl) Simulator() contractx.Simulator {
	return r.simulator
}

// Models holds one chat model per role.
type Models struct {
	Ranker     einomodel.BaseChatModel
	Strategist einomodel.BaseChatModel
	Summarizer einomodel.BaseChatModel
	Analyst    einomodel.ToolCallingChatModel
	Simulator  einomodel.BaseChatModel
}

func NewRegistry(ctx context.Context, cfg llmx.Config, verticals *promptx.Registry) (contractx.Registry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	build := func(agentType contractx.AgentType) (einomodel.ToolCallingChatModel, error) {
		modelCfg := cfg.OpenRouterFor(agentType)
		m, err := modelCfg.New(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: create %s model: %v", contractx.ErrModelInvoke, agentType, err)
		}
		return m, nil
	}

	var models Models
	var err error
	if models.Ranker, err = build(contractx.AgentTypeRanker); err != nil {
		return nil, err
	}
	if models.Strategist, err = build(contractx.AgentTypeStrategist); err != nil {
		return nil, err
	}
	if models.Summarizer, err = build(contractx.AgentTypeSummarizer); err != nil {
		return nil, err
	}
	if models.Analyst, err = build(contractx.AgentTypeAnalyst); err != nil {
		return nil, err
	}
	if models.Simulator, err = build(contractx.AgentTypeSimulator); err != nil {
		return nil, err
	}

	return NewRegistryFromModels(ctx, models, promptx.LoadPromptSet(), verticals)
}

func NewRegistryFromModels(ctx context.Context, models Models, prompts promptx.PromptSet, verticals *promptx.Registry) (contractx.Registry, error) {
	if verticals == nil {
		return nil, errors.New("vertical registry is required")
	}
	if models.Ranker == nil || models.Strategist == nil || models.Summarizer == nil || models.Analyst == nil || models.Simulator == nil {
		return nil, fmt.Errorf("%w: every role needs a chat model", contractx.ErrValidation)
	}
	if err := prompts.Validate(); err != nil {
		return nil, err
	}

	ranker, err := newRanker(ctx, models.Ranker, prompts.Ranker, verticals)
	if err != nil {
		return nil, err
	}
	strategist, err := newStrategist(ctx, models.Strategist, prompts.Strategist, prompts.Replanner, verticals)
	if err != nil {
		return nil, err
	}
	summarizer, err := newSummarizer(ctx, models.Summarizer, prompts.Summarizer, verticals)
	if err != nil {
		return nil, err
	}
	analyst, err := newAnalyst(ctx, models.Analyst, prompts.Analyst, verticals)
	if err != nil {
		return nil, err
	}
	simulator, err := newSimulator(ctx, models.Simulator, prompts.Simulator, verticals)
	if err != nil {
		return nil, err
	}

	return &registryImpl{
		ranker:     ranker,
		strategist: strategist,
		summarizer: summarizer,
		analyst:    analyst,
		simulator:  simulator,
	}, nil
}
