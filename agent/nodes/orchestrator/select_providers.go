package orchestratornode

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/servicesaver/agent/contract"
	statex "github.com/tanpawarit/servicesaver/agent/state"
)

func SelectProviders(
	ctx context.Context,
	in *GraphState,
	selector contractx.ProviderSelector,
	maxCandidates int,
	store contractx.RecordStore,
) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	shortlist, err := selector.Select(ctx, in.Profile, in.Catalog, maxCandidates)
	if err != nil {
		return nil, err
	}
	if shortlist.Providers == nil {
		shortlist.Providers = []contractx.Provider{}
	}
	in.Shortlist = shortlist

	log.Info().
		Str("user_id", in.UserID).
		Str("vertical", in.Vertical).
		Int("shortlisted", shortlist.Len()).
		Int("catalog", len(in.Catalog)).
		Msg("providers selected")

	if err := Persist(ctx, store, in.UserID, map[string]any{
		statex.FieldStatus:            statex.StatusStrategizing,
		statex.FieldProviders:         shortlist.Providers,
		statex.FieldProviderRationale: shortlist.Rationale,
	}); err != nil {
		return nil, err
	}
	return in, nil
}
