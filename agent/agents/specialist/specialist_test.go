package specialist

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	contractx "github.com/tanpawarit/servicesaver/agent/contract"
	promptx "github.com/tanpawarit/servicesaver/agent/prompt"
)

type fakeToolCallingModel struct {
	mu        sync.Mutex
	responses []*schema.Message
	err       error
	idx       int
	inputs    [][]*schema.Message
	tools     []*schema.ToolInfo
}

func (f *fakeToolCallingModel) Generate(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = append(f.inputs, input)
	if f.err != nil {
		return nil, f.err
	}
	if f.idx >= len(f.responses) {
		return nil, errors.New("no fake response left")
	}
	msg := f.responses[f.idx]
	f.idx++
	return msg, nil
}

func (f *fakeToolCallingModel) Stream(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("stream not implemented in fake model")
}

func (f *fakeToolCallingModel) WithTools(tools []*schema.ToolInfo) (einomodel.ToolCallingChatModel, error) {
	f.tools = tools
	return f, nil
}

func (f *fakeToolCallingModel) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.inputs)
}

func (f *fakeToolCallingModel) lastInput(t *testing.T) (system, user string) {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.inputs) == 0 {
		t.Fatal("model was not invoked")
	}
	in := f.inputs[len(f.inputs)-1]
	if len(in) != 2 {
		t.Fatalf("expected system+user messages, got %d", len(in))
	}
	return in[0].Content, in[1].Content
}

func textModel(contents ...string) *fakeToolCallingModel {
	f := &fakeToolCallingModel{}
	for _, c := range contents {
		f.responses = append(f.responses, &schema.Message{Role: schema.Assistant, Content: c})
	}
	return f
}

func verticals(t *testing.T) *promptx.Registry {
	t.Helper()
	reg, err := promptx.LoadRegistry()
	if err != nil {
		t.Fatalf("LoadRegistry() error = %v", err)
	}
	return reg
}

func sampleProfile() contractx.CustomerProfile {
	return contractx.CustomerProfile{
		UserID:   "u1",
		Vertical: "movers",
		Fields:   map[string]string{"origin_zip": "94103", "destination_zip": "94110", "budget": "1000"},
		Complete: true,
	}
}

func sampleCatalog() []contractx.Provider {
	return []contractx.Provider{
		{ID: "mv-1", Name: "A Movers", Rating: 4.5, PriceRangeLow: 800, PriceRangeHigh: 1500},
		{ID: "mv-2", Name: "B Movers", Rating: 4.1, PriceRangeLow: 600, PriceRangeHigh: 1200},
	}
}

func TestRankerRankSuccess(t *testing.T) {
	t.Parallel()

	fake := textModel(`{"provider_ids":[" mv-2 ","mv-1",""],"rationale":"cheapest first"}`)
	ranker, err := newRanker(context.Background(), fake, promptx.LoadPromptSet().Ranker, verticals(t))
	if err != nil {
		t.Fatalf("newRanker() error = %v", err)
	}

	out, err := ranker.Rank(context.Background(), contractx.RankRequest{
		Vertical:      "movers",
		Profile:       sampleProfile(),
		Catalog:       sampleCatalog(),
		MaxCandidates: 2,
	})
	if err != nil {
		t.Fatalf("Rank() error = %v", err)
	}
	if len(out.ProviderIDs) != 2 || out.ProviderIDs[0] != "mv-2" || out.ProviderIDs[1] != "mv-1" {
		t.Fatalf("unexpected ids: %#v", out.ProviderIDs)
	}
	if out.Rationale != "cheapest first" {
		t.Fatalf("unexpected rationale: %q", out.Rationale)
	}

	system, user := fake.lastInput(t)
	if !strings.Contains(system, "moving companies") || strings.Contains(system, "{service_name}") {
		t.Fatalf("system prompt not templated: %s", system)
	}
	if !strings.Contains(user, `"mv-1"`) || !strings.Contains(user, `"max_candidates":2`) {
		t.Fatalf("unexpected user payload: %s", user)
	}
}

func TestRankerParsesFencedJSON(t *testing.T) {
	t.Parallel()

	fake := textModel("```json\n{\"provider_ids\":[\"mv-1\"],\"rationale\":\"ok\"}\n```")
	ranker, err := newRanker(context.Background(), fake, "rank {service_name}", verticals(t))
	if err != nil {
		t.Fatalf("newRanker() error = %v", err)
	}

	out, err := ranker.Rank(context.Background(), contractx.RankRequest{Vertical: "movers", Catalog: sampleCatalog()})
	if err != nil {
		t.Fatalf("Rank() error = %v", err)
	}
	if len(out.ProviderIDs) != 1 || out.ProviderIDs[0] != "mv-1" {
		t.Fatalf("unexpected ids: %#v", out.ProviderIDs)
	}
}

func TestRankerErrors(t *testing.T) {
	t.Parallel()

	empty := textModel(`{"provider_ids":[],"rationale":"none fit"}`)
	ranker, err := newRanker(context.Background(), empty, "rank", verticals(t))
	if err != nil {
		t.Fatalf("newRanker() error = %v", err)
	}
	_, err = ranker.Rank(context.Background(), contractx.RankRequest{Catalog: sampleCatalog()})
	if !errors.Is(err, contractx.ErrSchemaViolation) {
		t.Fatalf("expected ErrSchemaViolation, got %v", err)
	}

	failing := &fakeToolCallingModel{err: errors.New("429")}
	ranker, err = newRanker(context.Background(), failing, "rank", verticals(t))
	if err != nil {
		t.Fatalf("newRanker() error = %v", err)
	}
	_, err = ranker.Rank(context.Background(), contractx.RankRequest{Catalog: sampleCatalog()})
	if !errors.Is(err, contractx.ErrModelInvoke) {
		t.Fatalf("expected ErrModelInvoke, got %v", err)
	}

	_, err = ranker.Rank(context.Background(), contractx.RankRequest{})
	if !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("expected ErrValidation for empty catalog, got %v", err)
	}
}

func TestStrategistPlanAndReplan(t *testing.T) {
	t.Parallel()

	fake := textModel("  Open at $700, walk away above $1000.  ", "Mention the $850 quote from A Movers.")
	prompts := promptx.LoadPromptSet()
	strategist, err := newStrategist(context.Background(), fake, prompts.Strategist, prompts.Replanner, verticals(t))
	if err != nil {
		t.Fatalf("newStrategist() error = %v", err)
	}

	plan, err := strategist.Plan(context.Background(), contractx.PlanRequest{
		Vertical:  "movers",
		Profile:   sampleProfile(),
		Shortlist: contractx.Shortlist{Providers: sampleCatalog(), Rationale: "good ratings"},
	})
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if plan != "Open at $700, walk away above $1000." {
		t.Fatalf("unexpected plan: %q", plan)
	}

	replan, err := strategist.Replan(context.Background(), contractx.ReplanRequest{
		Vertical:        "movers",
		Profile:         sampleProfile(),
		PriorSummaries:  []string{"A Movers quoted **$850**"},
		CurrentStrategy: plan,
		NextProvider:    sampleCatalog()[1],
	})
	if err != nil {
		t.Fatalf("Replan() error = %v", err)
	}
	if replan != "Mention the $850 quote from A Movers." {
		t.Fatalf("unexpected replan: %q", replan)
	}

	system, user := fake.lastInput(t)
	if !strings.Contains(system, "moving services") {
		t.Fatalf("replanner prompt not templated: %s", system)
	}
	if !strings.Contains(user, "A Movers quoted **$850**") || !strings.Contains(user, `"current_strategy"`) {
		t.Fatalf("unexpected replan payload: %s", user)
	}
}

func TestStrategistReplanFailureWrapsSentinel(t *testing.T) {
	t.Parallel()

	fake := &fakeToolCallingModel{err: errors.New("timeout")}
	strategist, err := newStrategist(context.Background(), fake, "plan", "replan", verticals(t))
	if err != nil {
		t.Fatalf("newStrategist() error = %v", err)
	}

	_, err = strategist.Replan(context.Background(), contractx.ReplanRequest{CurrentStrategy: "x"})
	if !errors.Is(err, contractx.ErrStrategyReplan) {
		t.Fatalf("expected ErrStrategyReplan, got %v", err)
	}
}

func TestTextGraphRejectsEmptyContent(t *testing.T) {
	t.Parallel()

	summarizer, err := newSummarizer(context.Background(), textModel("   "), "summarize", verticals(t))
	if err != nil {
		t.Fatalf("newSummarizer() error = %v", err)
	}
	_, err = summarizer.Summarize(context.Background(), contractx.SummaryRequest{Transcript: "Customer: hi"})
	if err == nil {
		t.Fatal("expected error for empty model content")
	}
}

func TestSummarizerRequiresTranscript(t *testing.T) {
	t.Parallel()

	fake := textModel("- **$900**")
	summarizer, err := newSummarizer(context.Background(), fake, "summarize", verticals(t))
	if err != nil {
		t.Fatalf("newSummarizer() error = %v", err)
	}

	if _, err := summarizer.Summarize(context.Background(), contractx.SummaryRequest{Transcript: "  "}); !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if fake.calls() != 0 {
		t.Fatal("model must not be invoked for empty transcript")
	}

	out, err := summarizer.Summarize(context.Background(), contractx.SummaryRequest{
		Vertical:   "telecom",
		Provider:   contractx.Provider{ID: "tc-1", Name: "Fiber"},
		Transcript: "Representative: $45 a month",
	})
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if out != "- **$900**" {
		t.Fatalf("unexpected summary: %q", out)
	}
}

func TestSimulatorUsesDefaultWordingForUnknownVertical(t *testing.T) {
	t.Parallel()

	fake := textModel("Customer: hello\nRepresentative: hi")
	simulator, err := newSimulator(context.Background(), fake, promptx.LoadPromptSet().Simulator, verticals(t))
	if err != nil {
		t.Fatalf("newSimulator() error = %v", err)
	}

	out, err := simulator.Simulate(context.Background(), contractx.SimulationRequest{
		Vertical: "space_travel",
		Provider: sampleCatalog()[0],
		Strategy: "be firm",
	})
	if err != nil {
		t.Fatalf("Simulate() error = %v", err)
	}
	if !strings.HasPrefix(out, "Customer:") {
		t.Fatalf("unexpected transcript: %q", out)
	}

	system, user := fake.lastInput(t)
	if !strings.Contains(system, "moving companies") {
		t.Fatalf("expected default vertical wording: %s", system)
	}
	if !strings.Contains(user, `"price_range":[800,1500]`) || !strings.Contains(user, "be firm") {
		t.Fatalf("unexpected simulator payload: %s", user)
	}
}

func transcript(s string) *string {
	return &s
}

func TestAnalystRunsQuoteToolsBeforeFinalAnswer(t *testing.T) {
	t.Parallel()

	fake := &fakeToolCallingModel{responses: []*schema.Message{
		{
			Role: schema.Assistant,
			ToolCalls: []schema.ToolCall{{
				ID:   "call_1",
				Type: "function",
				Function: schema.FunctionCall{
					Name:      "quote.compare",
					Arguments: `{"quotes":[{"provider":"A Movers","amount":850},{"provider":"B Movers","amount":780}]}`,
				},
			}},
		},
		{Role: schema.Assistant, Content: "Go with B Movers at $780."},
	}}

	analyst, err := newAnalyst(context.Background(), fake, promptx.LoadPromptSet().Analyst, verticals(t))
	if err != nil {
		t.Fatalf("newAnalyst() error = %v", err)
	}
	if len(fake.tools) != 2 {
		t.Fatalf("expected quote tools bound, got %d", len(fake.tools))
	}

	out, err := analyst.Synthesize(context.Background(), contractx.SynthesisRequest{
		Vertical: "movers",
		Profile:  sampleProfile(),
		Outcomes: []contractx.ProviderOutcome{
			{Provider: sampleCatalog()[0], Transcript: transcript("..."), Summary: "**$850**"},
			{Provider: sampleCatalog()[1], Transcript: transcript("..."), Summary: "**$780**"},
			{Provider: contractx.Provider{ID: "mv-3", Name: "C"}, Summary: "Call failed: busy"},
		},
	})
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if out != "Go with B Movers at $780." {
		t.Fatalf("unexpected recommendation: %q", out)
	}
	if fake.calls() != 2 {
		t.Fatalf("expected tool round and final round, got %d calls", fake.calls())
	}
	_, user := fake.lastInput(t)
	if !strings.Contains(user, `"tool_results"`) || !strings.Contains(user, `"lowest":{"provider":"B Movers","amount":780}`) {
		t.Fatalf("tool results missing from final payload: %s", user)
	}
	if !strings.Contains(user, "Call failed: busy") {
		t.Fatalf("failed outcome missing from payload: %s", user)
	}
}

func TestAnalystSkipsToolsWithSingleQuote(t *testing.T) {
	t.Parallel()

	fake := textModel("Only A Movers answered; book them or retry others.")
	analyst, err := newAnalyst(context.Background(), fake, "analyze {service_name}", verticals(t))
	if err != nil {
		t.Fatalf("newAnalyst() error = %v", err)
	}

	out, err := analyst.Synthesize(context.Background(), contractx.SynthesisRequest{
		Vertical: "movers",
		Outcomes: []contractx.ProviderOutcome{
			{Provider: sampleCatalog()[0], Transcript: transcript("..."), Summary: "**$850**"},
		},
	})
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if out == "" || fake.calls() != 1 {
		t.Fatalf("unexpected result %q after %d calls", out, fake.calls())
	}
}

func TestAnalystDirectAnswerFromToolRound(t *testing.T) {
	t.Parallel()

	fake := textModel("Pick B Movers.")
	analyst, err := newAnalyst(context.Background(), fake, "analyze", verticals(t))
	if err != nil {
		t.Fatalf("newAnalyst() error = %v", err)
	}

	out, err := analyst.Synthesize(context.Background(), contractx.SynthesisRequest{
		Vertical: "movers",
		Outcomes: []contractx.ProviderOutcome{
			{Provider: sampleCatalog()[0], Transcript: transcript("a"), Summary: "$850"},
			{Provider: sampleCatalog()[1], Transcript: transcript("b"), Summary: "$780"},
		},
	})
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if out != "Pick B Movers." || fake.calls() != 1 {
		t.Fatalf("unexpected result %q after %d calls", out, fake.calls())
	}
}

func TestAnalystHandlesNoOutcomes(t *testing.T) {
	t.Parallel()

	fake := textModel("No provider could be reached. Try again tomorrow.")
	analyst, err := newAnalyst(context.Background(), fake, "analyze", verticals(t))
	if err != nil {
		t.Fatalf("newAnalyst() error = %v", err)
	}

	out, err := analyst.Synthesize(context.Background(), contractx.SynthesisRequest{Vertical: "movers"})
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if !strings.Contains(out, "No provider") {
		t.Fatalf("unexpected recommendation: %q", out)
	}
}

func TestNewRegistryFromModelsValidation(t *testing.T) {
	t.Parallel()

	_, err := NewRegistryFromModels(context.Background(), Models{}, promptx.LoadPromptSet(), verticals(t))
	if !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}

	fake := textModel()
	reg, err := NewRegistryFromModels(context.Background(), Models{
		Ranker: fake, Strategist: fake, Summarizer: fake, Analyst: fake, Simulator: fake,
	}, promptx.LoadPromptSet(), verticals(t))
	if err != nil {
		t.Fatalf("NewRegistryFromModels() error = %v", err)
	}
	if reg.Ranker() == nil || reg.Strategist() == nil || reg.Summarizer() == nil || reg.Analyst() == nil || reg.Simulator() == nil {
		t.Fatal("registry must expose every role")
	}
}
