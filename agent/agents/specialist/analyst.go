package specialist

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/servicesaver/agent/contract"
	promptx "github.com/tanpawarit/servicesaver/agent/prompt"
	toolx "github.com/tanpawarit/servicesaver/agent/tool"
)

const minQuotesForTools = 2

type analystImpl struct {
	verticals     *promptx.Registry
	toolRunner    compose.Runnable[map[string]any, *schema.Message]
	finalRunner   compose.Runnable[map[string]any, string]
	runtimeRunner compose.Runnable[contractx.SynthesisRequest, string]
	execute       toolx.Executor
	allowedTools  map[string]struct{}
}

var _ contractx.Analyst = (*analystImpl)(nil)

type analystGraphState struct {
	Req         contractx.SynthesisRequest
	Payload     map[string]any
	Direct      string
	ToolResults []contractx.ToolResult
}

func newAnalyst(
	ctx context.Context,
	chatModel einomodel.ToolCallingChatModel,
	systemPrompt string,
	verticals *promptx.Registry,
) (*analystImpl, error) {
	finalRunner, err := compileTextLLMGraph(ctx, chatModel, systemPrompt, "analyst.final_graph")
	if err != nil {
		return nil, fmt.Errorf("%w: compile analyst graph: %v", contractx.ErrModelInvoke, err)
	}

	tools, executor := toolx.BuildForAgent(contractx.AgentTypeAnalyst)
	toolModel, err := chatModel.WithTools(tools)
	if err != nil {
		return nil, fmt.Errorf("%w: bind tools for analyst: %v", contractx.ErrModelInvoke, err)
	}
	toolRunner, err := compileToolPlanningGraph(ctx, toolModel, systemPrompt, "analyst.tool_planning_graph")
	if err != nil {
		return nil, fmt.Errorf("%w: compile analyst tool graph: %v", contractx.ErrModelInvoke, err)
	}

	allowed := make(map[string]struct{}, len(tools))
	for _, t := range tools {
		if t == nil || strings.TrimSpace(t.Name) == "" {
			continue
		}
		allowed[t.Name] = struct{}{}
	}

	a := &analystImpl{
		verticals:    verticals,
		toolRunner:   toolRunner,
		finalRunner:  finalRunner,
		execute:      executor,
		allowedTools: allowed,
	}

	runtimeRunner, err := compileAnalystRuntimeGraph(ctx, a.prepare, a.planTools, a.finalize)
	if err != nil {
		return nil, fmt.Errorf("%w: compile analyst runtime graph: %v", contractx.ErrModelInvoke, err)
	}
	a.runtimeRunner = runtimeRunner
	return a, nil
}

// Synthesize compares every provider outcome, failed calls included, and
// returns the final recommendation.
func (a *analystImpl) Synthesize(ctx context.Context, req contractx.SynthesisRequest) (string, error) {
	out, err := a.runtimeRunner.Invoke(ctx, req)
	if err != nil {
		return "", err
	}
	return out, nil
}

func (a *analystImpl) prepare(_ context.Context, req contractx.SynthesisRequest) (*analystGraphState, error) {
	outcomes := make([]map[string]any, 0, len(req.Outcomes))
	for _, o := range req.Outcomes {
		outcomes = append(outcomes, map[string]any{
			"provider":   providerPayload(o.Provider),
			"summary":    o.Summary,
			"transcript": o.Transcript,
			"connected":  o.Transcript != nil,
		})
	}
	return &analystGraphState{
		Req: req,
		Payload: map[string]any{
			"customer": profilePayload(req.Profile),
			"outcomes": outcomes,
		},
	}, nil
}

// planTools lets the model call the quote tools once. Tool planning is best
// effort: on failure the recommendation is written without tool results.
func (a *analystImpl) planTools(ctx context.Context, in *analystGraphState) (*analystGraphState, error) {
	if countConnected(in.Req.Outcomes) < minQuotesForTools {
		return in, nil
	}

	vars, err := templateVars(a.verticals, in.Req.Vertical, in.Payload)
	if err != nil {
		return nil, err
	}
	msg, err := a.toolRunner.Invoke(ctx, vars)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		log.Warn().Err(err).Str("vertical", in.Req.Vertical).Msg("analyst tool planning failed")
		return in, nil
	}
	if msg == nil {
		return in, nil
	}

	requests, err := toToolRequests(msg.ToolCalls)
	if err != nil {
		log.Warn().Err(err).Msg("analyst proposed malformed tool calls")
		return in, nil
	}
	if len(requests) == 0 {
		in.Direct = strings.TrimSpace(msg.Content)
		return in, nil
	}

	for _, tr := range requests {
		if _, ok := a.allowedTools[tr.Tool]; !ok {
			in.ToolResults = append(in.ToolResults, contractx.ToolResult{
				Tool:  tr.Tool,
				Error: fmt.Sprintf("tool=%s is not allowed", tr.Tool),
			})
			continue
		}
		result, err := a.execute(ctx, tr.Tool, tr.Args)
		if err != nil {
			return nil, fmt.Errorf("execute tool %s: %w", tr.Tool, err)
		}
		in.ToolResults = append(in.ToolResults, result)
	}
	return in, nil
}

func (a *analystImpl) finalize(ctx context.Context, in *analystGraphState) (string, error) {
	payload := in.Payload
	if len(in.ToolResults) > 0 {
		payload["tool_results"] = in.ToolResults
	}
	vars, err := templateVars(a.verticals, in.Req.Vertical, payload)
	if err != nil {
		return "", err
	}
	out, err := a.finalRunner.Invoke(ctx, vars)
	if err != nil {
		return "", fmt.Errorf("%w: analyst invoke: %v", contractx.ErrModelInvoke, err)
	}
	return out, nil
}

func compileAnalystRuntimeGraph(
	ctx context.Context,
	prepare func(context.Context, contractx.SynthesisRequest) (*analystGraphState, error),
	planTools func(context.Context, *analystGraphState) (*analystGraphState, error),
	finalize func(context.Context, *analystGraphState) (string, error),
) (compose.Runnable[contractx.SynthesisRequest, string], error) {
	graph := compose.NewGraph[contractx.SynthesisRequest, string]()

	if err := graph.AddLambdaNode("prepare", compose.InvokableLambda(prepare)); err != nil {
		return nil, fmt.Errorf("add analyst prepare node: %w", err)
	}
	if err := graph.AddLambdaNode("plan_tools",
		compose.InvokableLambda(func(ctx context.Context, in *analystGraphState) (*analystGraphState, error) {
			if in == nil {
				return nil, fmt.Errorf("%w: analyst graph state is nil", contractx.ErrValidation)
			}
			return planTools(ctx, in)
		}),
	); err != nil {
		return nil, fmt.Errorf("add analyst tool node: %w", err)
	}
	if err := graph.AddLambdaNode("direct",
		compose.InvokableLambda(func(ctx context.Context, in *analystGraphState) (string, error) {
			return in.Direct, nil
		}),
	); err != nil {
		return nil, fmt.Errorf("add analyst direct node: %w", err)
	}
	if err := graph.AddLambdaNode("finalize",
		compose.InvokableLambda(func(ctx context.Context, in *analystGraphState) (string, error) {
			if in == nil {
				return "", fmt.Errorf("%w: analyst graph state is nil", contractx.ErrValidation)
			}
			return finalize(ctx, in)
		}),
	); err != nil {
		return nil, fmt.Errorf("add analyst finalize node: %w", err)
	}

	branch := compose.NewGraphBranch(
		func(ctx context.Context, in *analystGraphState) (string, error) {
			if in == nil {
				return "", fmt.Errorf("%w: analyst graph state is nil", contractx.ErrValidation)
			}
			if in.Direct != "" {
				return "direct", nil
			}
			return "finalize", nil
		},
		map[string]bool{
			"direct":   true,
			"finalize": true,
		},
	)

	if err := graph.AddEdge(compose.START, "prepare"); err != nil {
		return nil, fmt.Errorf("add analyst edge start->prepare: %w", err)
	}
	if err := graph.AddEdge("prepare", "plan_tools"); err != nil {
		return nil, fmt.Errorf("add analyst edge prepare->plan_tools: %w", err)
	}
	if err := graph.AddBranch("plan_tools", branch); err != nil {
		return nil, fmt.Errorf("add analyst branch: %w", err)
	}
	if err := graph.AddEdge("direct", compose.END); err != nil {
		return nil, fmt.Errorf("add analyst edge direct->end: %w", err)
	}
	if err := graph.AddEdge("finalize", compose.END); err != nil {
		return nil, fmt.Errorf("add analyst edge finalize->end: %w", err)
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName("analyst.runtime_graph"))
	if err != nil {
		return nil, fmt.Errorf("compile analyst runtime graph: %w", err)
	}
	return runner, nil
}

func countConnected(outcomes []contractx.ProviderOutcome) int {
	n := 0
	for _, o := range outcomes {
		if o.Transcript != nil {
			n++
		}
	}
	return n
}

func toToolRequests(calls []schema.ToolCall) ([]contractx.ToolRequest, error) {
	if len(calls) == 0 {
		return nil, nil
	}
	reqs := make([]contractx.ToolRequest, 0, len(calls))
	for _, call := range calls {
		tool := strings.TrimSpace(call.Function.Name)
		if tool == "" {
			return nil, fmt.Errorf("%w: tool call name is empty", contractx.ErrSchemaViolation)
		}

		args := map[string]any{}
		rawArgs := strings.TrimSpace(call.Function.Arguments)
		if rawArgs != "" {
			if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
				return nil, fmt.Errorf("%w: invalid tool args for tool=%s: %v", contractx.ErrSchemaViolation, tool, err)
			}
		}

		reqs = append(reqs, contractx.ToolRequest{
			Tool: tool,
			Args: args,
		})
	}
	return reqs, nil
}
