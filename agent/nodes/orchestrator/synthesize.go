package orchestratornode

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/servicesaver/agent/contract"
	statex "github.com/tanpawarit/servicesaver/agent/state"
)

// Synthesize hands every provider outcome to the analyst and records the
// recommendation. An analyst failure is recorded in place of the
// recommendation so the run still completes.
func Synthesize(
	ctx context.Context,
	in *GraphState,
	analyst contractx.Analyst,
	store contractx.RecordStore,
) (*GraphState, error) {
	if in == nil || in.Negotiation == nil {
		return nil, fmt.Errorf("%w: negotiation state is nil", contractx.ErrValidation)
	}

	recommendation, err := analyst.Synthesize(ctx, contractx.SynthesisRequest{
		Vertical: in.Vertical,
		Profile:  in.Profile.Clone(),
		Outcomes: Outcomes(in.Shortlist, in.Negotiation),
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		log.Error().Err(err).Str("user_id", in.UserID).Msg("recommendation failed")
		recommendation = "Recommendation unavailable: " + err.Error()
	}
	in.Recommendation = recommendation

	if err := Persist(ctx, store, in.UserID, map[string]any{
		statex.FieldRecommendation: recommendation,
		statex.FieldStatus:         statex.StatusCompleted,
	}); err != nil {
		return nil, err
	}
	return in, nil
}

// Outcomes pairs each shortlisted provider with its transcript and summary.
func Outcomes(shortlist contractx.Shortlist, negotiation *statex.NegotiationState) []contractx.ProviderOutcome {
	n := min(shortlist.Len(), negotiation.Processed())
	outcomes := make([]contractx.ProviderOutcome, 0, n)
	for i := 0; i < n; i++ {
		outcomes = append(outcomes, contractx.ProviderOutcome{
			Provider:   shortlist.Providers[i],
			Transcript: negotiation.Transcripts[i],
			Summary:    negotiation.Summaries[i],
		})
	}
	return outcomes
}
