package state

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

var (
	ErrNilNegotiation     = errors.New("negotiation state is nil")
	ErrEmptyStrategy      = errors.New("strategy is empty")
	ErrReplanOutOfOrder   = errors.New("replan out of order")
	ErrOutcomeOutOfOrder  = errors.New("outcome recorded out of order")
	ErrNegotiationCorrupt = errors.New("negotiation state corrupt")
)

// NegotiationState is the loop-carried record of one negotiation run.
// The orchestrator is its only writer; every mutation is an append.
//   - Transcripts and Summaries hold one slot per processed provider.
//   - StrategyHistory starts with the initial strategy and gains one entry per
//     replan, which happens before every provider after the first.
type NegotiationState struct {
	StrategyHistory []string  `json:"strategies"`
	Transcripts     []*string `json:"transcripts"`
	Summaries       []string  `json:"call_summaries"`
	CurrentStrategy string    `json:"current_strategy"`
}

func NewNegotiationState(initialStrategy string) (*NegotiationState, error) {
	initialStrategy = strings.TrimSpace(initialStrategy)
	if initialStrategy == "" {
		return nil, ErrEmptyStrategy
	}
	return &NegotiationState{
		StrategyHistory: []string{initialStrategy},
		Transcripts:     make([]*string, 0, 4),
		Summaries:       make([]string, 0, 4),
		CurrentStrategy: initialStrategy,
	}, nil
}

// Processed is the number of providers whose outcome has been recorded.
func (s *NegotiationState) Processed() int {
	if s == nil {
		return 0
	}
	return len(s.Summaries)
}

// NeedsReplan reports whether the next provider must be preceded by a replan.
func (s *NegotiationState) NeedsReplan() bool {
	return s != nil && s.Processed() > 0 && len(s.StrategyHistory) == s.Processed()
}

// PriorSummaries returns a copy of the summaries of fully processed providers.
func (s *NegotiationState) PriorSummaries() []string {
	if s == nil {
		return nil
	}
	return slices.Clone(s.Summaries)
}

// AppendStrategy records a replanned strategy and makes it current.
func (s *NegotiationState) AppendStrategy(strategy string) error {
	if s == nil {
		return ErrNilNegotiation
	}
	strategy = strings.TrimSpace(strategy)
	if strategy == "" {
		return ErrEmptyStrategy
	}
	if !s.NeedsReplan() {
		return fmt.Errorf("%w: processed=%d strategies=%d", ErrReplanOutOfOrder, s.Processed(), len(s.StrategyHistory))
	}
	s.StrategyHistory = append(s.StrategyHistory, strategy)
	s.CurrentStrategy = strategy
	return nil
}

// RecordOutcome appends the next provider's slot. A nil transcript marks a
// failed call or one that captured nothing.
func (s *NegotiationState) RecordOutcome(transcript *string, summary string) error {
	if s == nil {
		return ErrNilNegotiation
	}
	if len(s.StrategyHistory) != s.Processed()+1 {
		return fmt.Errorf("%w: processed=%d strategies=%d", ErrOutcomeOutOfOrder, s.Processed(), len(s.StrategyHistory))
	}
	if transcript != nil {
		t := *transcript
		transcript = &t
	}
	s.Transcripts = append(s.Transcripts, transcript)
	s.Summaries = append(s.Summaries, summary)
	return nil
}

func (s *NegotiationState) Validate() error {
	if s == nil {
		return ErrNilNegotiation
	}
	if len(s.Transcripts) != len(s.Summaries) {
		return fmt.Errorf("%w: transcripts=%d summaries=%d", ErrNegotiationCorrupt, len(s.Transcripts), len(s.Summaries))
	}
	processed := s.Processed()
	strategies := len(s.StrategyHistory)
	switch {
	case strategies == 0:
		return fmt.Errorf("%w: no strategy", ErrNegotiationCorrupt)
	case processed == 0 && strategies != 1:
		return fmt.Errorf("%w: %d strategies before first call", ErrNegotiationCorrupt, strategies)
	case processed > 0 && strategies != processed && strategies != processed+1:
		return fmt.Errorf("%w: processed=%d strategies=%d", ErrNegotiationCorrupt, processed, strategies)
	}
	if s.CurrentStrategy != s.StrategyHistory[strategies-1] {
		return fmt.Errorf("%w: current strategy is not the latest", ErrNegotiationCorrupt)
	}
	return nil
}

// Fields returns the record-store projection of the state.
func (s *NegotiationState) Fields() map[string]any {
	if s == nil {
		return map[string]any{}
	}
	return map[string]any{
		FieldStrategies:    slices.Clone(s.StrategyHistory),
		FieldTranscripts:   slices.Clone(s.Transcripts),
		FieldCallSummaries: slices.Clone(s.Summaries),
	}
}
