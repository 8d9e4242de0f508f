package orchestrator

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cloudwego/eino/compose"

	"github.com/tanpawarit/servicesaver/agent/call"
	contractx "github.com/tanpawarit/servicesaver/agent/contract"
	nodex "github.com/tanpawarit/servicesaver/agent/nodes/orchestrator"
	statex "github.com/tanpawarit/servicesaver/agent/state"
)

var ErrInvalidUser = nodex.ErrInvalidUser

const (
	defaultMaxCandidates   = 3
	defaultDefaultVertical = "movers"
)

// Deps are the service handles the orchestrator drives. All are required.
type Deps struct {
	Catalog    contractx.CatalogLoader
	Selector   contractx.ProviderSelector
	Strategist contractx.Strategist
	Summarizer contractx.Summarizer
	Analyst    contractx.Analyst
	Caller     call.Caller
	Store      contractx.RecordStore
}

type Config struct {
	MaxCandidates   int
	DefaultVertical string
}

type Orchestrator struct {
	catalog    contractx.CatalogLoader
	selector   contractx.ProviderSelector
	strategist contractx.Strategist
	summarizer contractx.Summarizer
	analyst    contractx.Analyst
	caller     call.Caller
	store      contractx.RecordStore

	graphRunner compose.Runnable[nodex.GraphInput, nodex.GraphOutput]

	maxCandidates   int
	defaultVertical string

	now func() time.Time
}

func New(deps Deps, cfg Config) (*Orchestrator, error) {
	switch {
	case deps.Catalog == nil:
		return nil, errors.New("provider catalog is required")
	case deps.Selector == nil:
		return nil, errors.New("provider selector is required")
	case deps.Strategist == nil:
		return nil, errors.New("strategist is required")
	case deps.Summarizer == nil:
		return nil, errors.New("summarizer is required")
	case deps.Analyst == nil:
		return nil, errors.New("analyst is required")
	case deps.Caller == nil:
		return nil, errors.New("caller is required")
	case deps.Store == nil:
		return nil, errors.New("record store is required")
	}

	maxCandidates := cfg.MaxCandidates
	if maxCandidates <= 0 {
		maxCandidates = defaultMaxCandidates
	}
	defaultVertical := strings.TrimSpace(cfg.DefaultVertical)
	if defaultVertical == "" {
		defaultVertical = defaultDefaultVertical
	}

	o := &Orchestrator{
		catalog:         deps.Catalog,
		selector:        deps.Selector,
		strategist:      deps.Strategist,
		summarizer:      deps.Summarizer,
		analyst:         deps.Analyst,
		caller:          deps.Caller,
		store:           deps.Store,
		maxCandidates:   maxCandidates,
		defaultVertical: defaultVertical,
		now:             time.Now,
	}

	graphRunner, err := o.compileRunGraph(context.Background())
	if err != nil {
		return nil, err
	}
	o.graphRunner = graphRunner

	return o, nil
}

type RunRequest struct {
	UserID  string
	Profile contractx.CustomerProfile
}

type RunResult struct {
	Vertical       string
	Shortlist      contractx.Shortlist
	Negotiation    *statex.NegotiationState
	Recommendation string
}

// Run executes the whole workflow for a complete profile: catalog, shortlist,
// strategy, the negotiation loop and the final recommendation.
func (o *Orchestrator) Run(ctx context.Context, req RunRequest) (RunResult, error) {
	out, err := o.graphRunner.Invoke(ctx, nodex.GraphInput{
		UserID:  req.UserID,
		Profile: req.Profile,
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return RunResult{}, ctxErr
		}
		return RunResult{}, err
	}
	return RunResult{
		Vertical:       out.Vertical,
		Shortlist:      out.Shortlist,
		Negotiation:    out.Negotiation,
		Recommendation: out.Recommendation,
	}, nil
}
