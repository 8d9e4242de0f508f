package contract

import "maps"

type AgentType string

const (
	AgentTypeRanker     AgentType = "ranker"
	AgentTypeStrategist AgentType = "strategist"
	AgentTypeSummarizer AgentType = "summarizer"
	AgentTypeAnalyst    AgentType = "analyst"
	AgentTypeSimulator  AgentType = "simulator"
	AgentTypeExtractor  AgentType = "extractor"
)

// CustomerProfile is the structured requirement set produced by intake.
type CustomerProfile struct {
	UserID   string            `json:"user_id"`
	Vertical string            `json:"vertical"`
	Fields   map[string]string `json:"fields"`
	Complete bool              `json:"complete"`
}

// Clone returns a copy whose Fields map is not shared with p.
func (p CustomerProfile) Clone() CustomerProfile {
	out := p
	out.Fields = maps.Clone(p.Fields)
	return out
}

type Provider struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Rating         float64  `json:"rating"`
	PriceRangeLow  float64  `json:"price_range_low"`
	PriceRangeHigh float64  `json:"price_range_high"`
	Specialties    []string `json:"specialties,omitempty"`
	Phone          string   `json:"phone,omitempty"`
}

// Shortlist is the ordered set of providers to negotiate with. Order is call order.
type Shortlist struct {
	Providers []Provider `json:"providers"`
	Rationale string     `json:"rationale"`
}

func (s Shortlist) Len() int {
	return len(s.Providers)
}

type RankRequest struct {
	Vertical      string          `json:"vertical"`
	Profile       CustomerProfile `json:"profile"`
	Catalog       []Provider      `json:"catalog"`
	MaxCandidates int             `json:"max_candidates"`
}

type RankResponse struct {
	ProviderIDs []string `json:"provider_ids"`
	Rationale   string   `json:"rationale"`
}

type PlanRequest struct {
	Vertical  string          `json:"vertical"`
	Profile   CustomerProfile `json:"profile"`
	Shortlist Shortlist       `json:"shortlist"`
}

type ReplanRequest struct {
	Vertical        string          `json:"vertical"`
	Profile         CustomerProfile `json:"profile"`
	PriorSummaries  []string        `json:"prior_summaries"`
	CurrentStrategy string          `json:"current_strategy"`
	NextProvider    Provider        `json:"next_provider"`
}

type SummaryRequest struct {
	Vertical   string   `json:"vertical"`
	Provider   Provider `json:"provider"`
	Transcript string   `json:"transcript"`
}

type SimulationRequest struct {
	Vertical string          `json:"vertical"`
	Profile  CustomerProfile `json:"profile"`
	Provider Provider        `json:"provider"`
	Strategy string          `json:"strategy"`
}

// ProviderOutcome is one provider's slot in the final synthesis. Transcript is
// nil when the call failed or captured nothing.
type ProviderOutcome struct {
	Provider   Provider `json:"provider"`
	Transcript *string  `json:"transcript"`
	Summary    string   `json:"summary"`
}

type SynthesisRequest struct {
	Vertical string            `json:"vertical"`
	Profile  CustomerProfile   `json:"profile"`
	Outcomes []ProviderOutcome `json:"outcomes"`
}

// ToolRequest is a tool call proposed by a model.
type ToolRequest struct {
	Tool string         `json:"tool"`
	Args map[string]any `json:"args,omitempty"`
}

// ToolResult carries either Result or Error back to the model.
type ToolResult struct {
	Tool   string `json:"tool"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}
