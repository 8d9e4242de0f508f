package state

import (
	"encoding/json"
	"fmt"
	"time"
)

type AppStatus string

const (
	StatusInfoCollection AppStatus = "info_collection"
	StatusStrategizing   AppStatus = "strategizing"
	StatusNegotiating    AppStatus = "negotiating"
	StatusCompleted      AppStatus = "completed"
	StatusFailed         AppStatus = "failed"
)

// Record field names, shared with the client that renders the session.
const (
	FieldStatus            = "status"
	FieldCustomerInfo      = "customerInfo"
	FieldProviders         = "providers"
	FieldProviderRationale = "providerRationale"
	FieldStrategy          = "strategy"
	FieldStrategies        = "strategies"
	FieldTranscripts       = "transcripts"
	FieldCallSummaries     = "callSummaries"
	FieldActiveCall        = "activeCall"
	FieldRecommendation    = "recommendation"
	FieldRunID             = "runId"
	FieldError             = "error"
	FieldUpdatedAt         = "updatedAt"
)

// ActiveCall is the progress marker of the call currently in flight.
type ActiveCall struct {
	Index      int    `json:"index"`
	ProviderID string `json:"provider_id"`
	SessionID  string `json:"session_id,omitempty"`
	Status     string `json:"status"`
}

// Record is the read-back view of a user's stored fields.
type Record struct {
	Status            AppStatus       `json:"status"`
	CustomerInfo      json.RawMessage `json:"customerInfo,omitempty"`
	Providers         json.RawMessage `json:"providers,omitempty"`
	ProviderRationale string          `json:"providerRationale,omitempty"`
	Strategy          string          `json:"strategy,omitempty"`
	Strategies        []string        `json:"strategies,omitempty"`
	Transcripts       []*string       `json:"transcripts,omitempty"`
	CallSummaries     []string        `json:"callSummaries,omitempty"`
	ActiveCall        *ActiveCall     `json:"activeCall,omitempty"`
	Recommendation    string          `json:"recommendation,omitempty"`
	RunID             string          `json:"runId,omitempty"`
	Error             string          `json:"error,omitempty"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}

func decodeRecord(fields map[string]json.RawMessage) (*Record, error) {
	raw, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("marshal record fields: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal record: %w", err)
	}
	return &rec, nil
}
