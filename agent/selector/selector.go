package selector

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/servicesaver/agent/contract"
)

const DefaultMaxCandidates = 3

// Selector narrows a catalog to the ordered shortlist the negotiation calls.
type Selector struct {
	ranker contractx.Ranker
}

func New(ranker contractx.Ranker) (*Selector, error) {
	if ranker == nil {
		return nil, errors.New("ranker is required")
	}
	return &Selector{ranker: ranker}, nil
}

// Select asks the ranker for provider ids and keeps those that exist in the
// catalog, in ranked order, without duplicates and at most maxCandidates.
// Ranking failures produce an empty shortlist; only cancellation is returned.
func (s *Selector) Select(ctx context.Context, profile contractx.CustomerProfile, catalog []contractx.Provider, maxCandidates int) (contractx.Shortlist, error) {
	if maxCandidates <= 0 {
		maxCandidates = DefaultMaxCandidates
	}
	logger := log.With().Str("user_id", profile.UserID).Str("vertical", profile.Vertical).Logger()

	if len(catalog) == 0 {
		logger.Warn().Msg("selection skipped: empty catalog")
		return contractx.Shortlist{}, nil
	}

	resp, err := s.ranker.Rank(ctx, contractx.RankRequest{
		Vertical:      profile.Vertical,
		Profile:       profile.Clone(),
		Catalog:       catalog,
		MaxCandidates: maxCandidates,
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return contractx.Shortlist{}, ctxErr
		}
		logger.Warn().Err(err).Msg("provider ranking failed, continuing with empty shortlist")
		return contractx.Shortlist{}, nil
	}

	byID := make(map[string]contractx.Provider, len(catalog))
	for _, p := range catalog {
		byID[strings.TrimSpace(p.ID)] = p
	}

	picked := make(map[string]struct{}, maxCandidates)
	providers := make([]contractx.Provider, 0, maxCandidates)
	for _, raw := range resp.ProviderIDs {
		if len(providers) == maxCandidates {
			break
		}
		id := strings.TrimSpace(raw)
		p, ok := byID[id]
		if !ok {
			logger.Debug().Str("provider_id", raw).Msg("ranker returned unknown provider id")
			continue
		}
		if _, dup := picked[id]; dup {
			continue
		}
		picked[id] = struct{}{}
		providers = append(providers, p)
	}

	if len(providers) == 0 {
		logger.Warn().Int("ranked", len(resp.ProviderIDs)).Msg("ranker returned no catalog providers")
		return contractx.Shortlist{}, nil
	}

	return contractx.Shortlist{
		Providers: providers,
		Rationale: strings.TrimSpace(resp.Rationale),
	}, nil
}
