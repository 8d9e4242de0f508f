package tool

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/schema"

	contractx "github.com/tanpawarit/servicesaver/agent/contract"
)

type Executor func(ctx context.Context, tool string, args map[string]any) (contractx.ToolResult, error)

// BuildForAgent returns the tools a role may call and the executor serving them.
func BuildForAgent(agentType contractx.AgentType) ([]*schema.ToolInfo, Executor) {
	return infosForAgent(agentType), NewExecutor(agentType)
}

func NewExecutor(agentType contractx.AgentType) Executor {
	fallback := DefaultExecutor(agentType)
	return func(ctx context.Context, tool string, args map[string]any) (contractx.ToolResult, error) {
		if agentType != contractx.AgentTypeAnalyst {
			return fallback(ctx, tool, args)
		}
		switch tool {
		case ToolQuoteCompare:
			return executeQuoteCompare(tool, args)
		case ToolQuoteSavings:
			return executeQuoteSavings(tool, args)
		default:
			return fallback(ctx, tool, args)
		}
	}
}

func DefaultExecutor(agentType contractx.AgentType) Executor {
	return func(ctx context.Context, tool string, _ map[string]any) (contractx.ToolResult, error) {
		return contractx.ToolResult{
			Tool:  tool,
			Error: fmt.Sprintf("tool=%s is unavailable for agent=%s", tool, agentType),
		}, nil
	}
}

func infosForAgent(agentType contractx.AgentType) []*schema.ToolInfo {
	switch agentType {
	case contractx.AgentTypeAnalyst:
		return []*schema.ToolInfo{
			{
				Name: ToolQuoteCompare,
				Desc: "Rank quoted prices from several providers and report the lowest, highest, spread and average.",
				ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
					"quotes": {
						Type:     schema.Array,
						Desc:     "One entry per provider quote",
						Required: true,
						ElemInfo: &schema.ParameterInfo{
							Type: schema.Object,
							SubParams: map[string]*schema.ParameterInfo{
								"provider": {Type: schema.String, Desc: "Provider id or name", Required: true},
								"amount":   {Type: schema.Number, Desc: "Final quoted price", Required: true},
							},
						},
					},
				}),
			},
			{
				Name: ToolQuoteSavings,
				Desc: "Compute the saving of an offer against a reference price, absolute and in percent.",
				ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
					"reference": {Type: schema.Number, Desc: "Reference price, e.g. the first or highest quote", Required: true},
					"offer":     {Type: schema.Number, Desc: "Negotiated price", Required: true},
				}),
			},
		}
	default:
		return nil
	}
}
