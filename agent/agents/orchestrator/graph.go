package orchestrator

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/compose"

	nodex "github.com/tanpawarit/servicesaver/agent/nodes/orchestrator"
	statex "github.com/tanpawarit/servicesaver/agent/state"
)

func (o *Orchestrator) compileRunGraph(
	ctx context.Context,
) (compose.Runnable[nodex.GraphInput, nodex.GraphOutput], error) {
	graph := compose.NewGraph[nodex.GraphInput, nodex.GraphOutput]()

	if err := graph.AddLambdaNode("validate_request",
		compose.InvokableLambda(func(ctx context.Context, in nodex.GraphInput) (*nodex.GraphState, error) {
			return nodex.ValidateRequest(in, o.defaultVertical, o.now)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node validate_request: %w", err)
	}

	if err := graph.AddLambdaNode("load_catalog",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.LoadCatalog(ctx, in, o.catalog)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node load_catalog: %w", err)
	}

	if err := graph.AddLambdaNode("select_providers",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.SelectProviders(ctx, in, o.selector, o.maxCandidates, o.store)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node select_providers: %w", err)
	}

	if err := graph.AddLambdaNode("plan_strategy",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.PlanStrategy(ctx, in, o.strategist, o.store)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node plan_strategy: %w", err)
	}

	if err := graph.AddLambdaNode("negotiate",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.Negotiate(ctx, in, func(ctx context.Context, st *nodex.GraphState) (*statex.NegotiationState, error) {
				return o.Negotiate(ctx, NegotiateInput{
					UserID:          st.UserID,
					Vertical:        st.Vertical,
					Profile:         st.Profile,
					Shortlist:       st.Shortlist,
					InitialStrategy: st.Strategy,
				})
			})
		}),
	); err != nil {
		return nil, fmt.Errorf("add node negotiate: %w", err)
	}

	if err := graph.AddLambdaNode("synthesize",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.Synthesize(ctx, in, o.analyst, o.store)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node synthesize: %w", err)
	}

	if err := graph.AddLambdaNode("finalize",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (nodex.GraphOutput, error) {
			return nodex.Finalize(in)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node finalize: %w", err)
	}

	edges := [][2]string{
		{compose.START, "validate_request"},
		{"validate_request", "load_catalog"},
		{"load_catalog", "select_providers"},
		{"select_providers", "plan_strategy"},
		{"plan_strategy", "negotiate"},
		{"negotiate", "synthesize"},
		{"synthesize", "finalize"},
		{"finalize", compose.END},
	}

	for _, edge := range edges {
		if err := graph.AddEdge(edge[0], edge[1]); err != nil {
			return nil, fmt.Errorf("add edge %s->%s: %w", edge[0], edge[1], err)
		}
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName("orchestrator.run_negotiation"))
	if err != nil {
		return nil, fmt.Errorf("compile orchestrator graph: %w", err)
	}
	return runner, nil
}
