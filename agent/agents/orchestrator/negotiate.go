package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tanpawarit/servicesaver/agent/call"
	contractx "github.com/tanpawarit/servicesaver/agent/contract"
	nodex "github.com/tanpawarit/servicesaver/agent/nodes/orchestrator"
	statex "github.com/tanpawarit/servicesaver/agent/state"
)

type NegotiateInput struct {
	UserID          string
	Vertical        string
	Profile         contractx.CustomerProfile
	Shortlist       contractx.Shortlist
	InitialStrategy string
}

// Negotiate calls every shortlisted provider in order. Before each call after
// the first the strategy is replanned from the summaries so far. Call and
// summary failures become placeholder summaries; store failures and
// cancellation end the run.
func (o *Orchestrator) Negotiate(ctx context.Context, in NegotiateInput) (*statex.NegotiationState, error) {
	userID := strings.TrimSpace(in.UserID)
	if userID == "" {
		return nil, ErrInvalidUser
	}
	negotiation, err := statex.NewNegotiationState(in.InitialStrategy)
	if err != nil {
		return nil, err
	}
	profile := in.Profile.Clone()

	for i, provider := range in.Shortlist.Providers {
		if err := ctx.Err(); err != nil {
			return negotiation, err
		}
		logger := log.With().
			Str("user_id", userID).
			Str("vertical", in.Vertical).
			Str("provider_id", provider.ID).
			Int("index", i).
			Logger()

		if negotiation.NeedsReplan() {
			if err := o.replan(ctx, logger, negotiation, in.Vertical, profile, provider); err != nil {
				return negotiation, err
			}
			if err := nodex.Persist(ctx, o.store, userID, map[string]any{
				statex.FieldStrategy:   negotiation.CurrentStrategy,
				statex.FieldStrategies: negotiation.StrategyHistory,
			}); err != nil {
				return negotiation, err
			}
		}

		if err := nodex.Persist(ctx, o.store, userID, map[string]any{
			statex.FieldActiveCall: statex.ActiveCall{
				Index:      i,
				ProviderID: provider.ID,
				Status:     string(call.StatusPending),
			},
		}); err != nil {
			return negotiation, err
		}

		transcript, summary, active, err := o.callProvider(ctx, logger, i, in.Vertical, profile, provider, negotiation.CurrentStrategy)
		if err != nil {
			return negotiation, err
		}
		if err := negotiation.RecordOutcome(transcript, summary); err != nil {
			return negotiation, err
		}

		fields := negotiation.Fields()
		fields[statex.FieldActiveCall] = active
		if err := nodex.Persist(ctx, o.store, userID, fields); err != nil {
			return negotiation, err
		}
	}

	if err := negotiation.Validate(); err != nil {
		return negotiation, err
	}
	return negotiation, nil
}

// replan appends the next strategy. A failed replan keeps the current
// strategy and appends it again.
func (o *Orchestrator) replan(
	ctx context.Context,
	logger zerolog.Logger,
	negotiation *statex.NegotiationState,
	vertical string,
	profile contractx.CustomerProfile,
	next contractx.Provider,
) error {
	strategy, err := o.strategist.Replan(ctx, contractx.ReplanRequest{
		Vertical:        vertical,
		Profile:         profile.Clone(),
		PriorSummaries:  negotiation.PriorSummaries(),
		CurrentStrategy: negotiation.CurrentStrategy,
		NextProvider:    next,
	})
	if err == nil {
		err = negotiation.AppendStrategy(strategy)
	}
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if !errors.Is(err, contractx.ErrStrategyReplan) {
		err = fmt.Errorf("%w: %v", contractx.ErrStrategyReplan, err)
	}
	logger.Warn().Err(err).Msg("replan failed, reusing previous strategy")
	return negotiation.AppendStrategy(negotiation.CurrentStrategy)
}

// callProvider runs one call and turns its result into the provider's
// transcript slot and summary. Only cancellation is returned as an error.
func (o *Orchestrator) callProvider(
	ctx context.Context,
	logger zerolog.Logger,
	index int,
	vertical string,
	profile contractx.CustomerProfile,
	provider contractx.Provider,
	strategy string,
) (*string, string, statex.ActiveCall, error) {
	active := statex.ActiveCall{Index: index, ProviderID: provider.ID}

	session, err := o.caller.Call(ctx, call.Request{
		Vertical: vertical,
		Profile:  profile.Clone(),
		Provider: provider,
		Strategy: strategy,
	})
	if session != nil {
		active.SessionID = session.ID
		active.Status = string(session.Status)
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, "", active, ctxErr
		}
		if active.Status == "" {
			active.Status = string(call.StatusFailed)
		}
		logger.Warn().Err(err).Msg("call failed")
		return nil, "Call failed: " + err.Error(), active, nil
	}

	logger.Info().
		Str("session_id", session.ID).
		Str("status", string(session.Status)).
		Bool("transcript", session.Transcript != nil).
		Msg("call finished")

	if session.Transcript == nil {
		return nil, fmt.Sprintf("Call transcript not found (status=%s)", session.Status), active, nil
	}

	transcript := *session.Transcript
	summary, err := o.summarizer.Summarize(ctx, contractx.SummaryRequest{
		Vertical:   vertical,
		Provider:   provider,
		Transcript: transcript,
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, "", active, ctxErr
		}
		logger.Warn().Err(err).Msg("call summary failed")
		return &transcript, "Call summary failed: " + err.Error(), active, nil
	}
	return &transcript, summary, active, nil
}
