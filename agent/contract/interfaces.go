package contract

import "context"

type Ranker interface {
	Rank(ctx context.Context, req RankRequest) (RankResponse, error)
}

type Strategist interface {
	Plan(ctx context.Context, req PlanRequest) (string, error)
	Replan(ctx context.Context, req ReplanRequest) (string, error)
}

type Summarizer interface {
	Summarize(ctx context.Context, req SummaryRequest) (string, error)
}

type Analyst interface {
	Synthesize(ctx context.Context, req SynthesisRequest) (string, error)
}

type Simulator interface {
	Simulate(ctx context.Context, req SimulationRequest) (string, error)
}

type Registry interface {
	Ranker() Ranker
	Strategist() Strategist
	Summarizer() Summarizer
	Analyst() Analyst
	Simulator() Simulator
}

type CatalogSource interface {
	Load(ctx context.Context, vertical string) ([]Provider, error)
}

type RecordStore interface {
	Upsert(ctx context.Context, userID string, fields map[string]any) error
}

// CatalogLoader resolves the provider catalog for a vertical, falling back to
// the default vertical.
type CatalogLoader interface {
	Load(ctx context.Context, vertical string) ([]Provider, error)
}

type ProviderSelector interface {
	Select(ctx context.Context, profile CustomerProfile, catalog []Provider, maxCandidates int) (Shortlist, error)
}
