package orchestratornode

import (
	"errors"
	"fmt"
	"strings"
	"time"

	contractx "github.com/tanpawarit/servicesaver/agent/contract"
	statex "github.com/tanpawarit/servicesaver/agent/state"
)

var ErrInvalidUser = errors.New("user id is empty")

type GraphInput struct {
	UserID  string
	Profile contractx.CustomerProfile
}

type GraphOutput struct {
	Vertical       string
	Shortlist      contractx.Shortlist
	Negotiation    *statex.NegotiationState
	Recommendation string
}

// GraphState is carried through the run graph. Profile is a private copy.
type GraphState struct {
	UserID   string
	Vertical string
	Profile  contractx.CustomerProfile
	Now      time.Time

	Catalog        []contractx.Provider
	Shortlist      contractx.Shortlist
	Strategy       string
	Negotiation    *statex.NegotiationState
	Recommendation string
}

func ValidateRequest(in GraphInput, defaultVertical string, nowFn func() time.Time) (*GraphState, error) {
	userID := strings.TrimSpace(in.UserID)
	if userID == "" {
		userID = strings.TrimSpace(in.Profile.UserID)
	}
	if userID == "" {
		return nil, ErrInvalidUser
	}
	if !in.Profile.Complete {
		return nil, fmt.Errorf("%w: profile for %s is not complete", contractx.ErrIntakeIncomplete, userID)
	}

	profile := in.Profile.Clone()
	profile.UserID = userID
	vertical := strings.TrimSpace(profile.Vertical)
	if vertical == "" {
		vertical = defaultVertical
	}
	profile.Vertical = vertical

	return &GraphState{
		UserID:   userID,
		Vertical: vertical,
		Profile:  profile,
		Now:      nowFn().UTC(),
	}, nil
}
