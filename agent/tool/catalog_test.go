package tool

import (
	"context"
	"testing"

	contractx "github.com/tanpawarit/servicesaver/agent/contract"
)

func TestBuildForAgentAnalyst(t *testing.T) {
	t.Parallel()

	infos, executor := BuildForAgent(contractx.AgentTypeAnalyst)
	if len(infos) != 2 {
		t.Fatalf("expected 2 tool infos, got %d", len(infos))
	}
	if infos[0].Name != ToolQuoteCompare || infos[1].Name != ToolQuoteSavings {
		t.Fatalf("unexpected tools: %s, %s", infos[0].Name, infos[1].Name)
	}
	if executor == nil {
		t.Fatal("executor must not be nil")
	}

	if infos, _ := BuildForAgent(contractx.AgentTypeRanker); len(infos) != 0 {
		t.Fatalf("ranker must not get tools, got %d", len(infos))
	}
}

func TestExecutorUnavailableForOtherAgents(t *testing.T) {
	t.Parallel()

	executor := NewExecutor(contractx.AgentTypeStrategist)
	out, err := executor(context.Background(), ToolQuoteSavings, map[string]any{"reference": 10, "offer": 5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Error == "" {
		t.Fatal("expected unavailable error")
	}
}

func TestQuoteCompare(t *testing.T) {
	t.Parallel()

	executor := NewExecutor(contractx.AgentTypeAnalyst)
	out, err := executor(context.Background(), ToolQuoteCompare, map[string]any{
		"quotes": []any{
			map[string]any{"provider": "B", "amount": 1100},
			map[string]any{"provider": "A", "amount": 950},
			map[string]any{"provider": "C", "amount": 1000.5},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Error != "" {
		t.Fatalf("unexpected tool error: %s", out.Error)
	}
	result, ok := out.Result.(QuoteCompareOutput)
	if !ok {
		t.Fatalf("unexpected result type: %T", out.Result)
	}
	if result.Lowest.Provider != "A" || result.Highest.Provider != "B" {
		t.Fatalf("unexpected extremes: %#v", result)
	}
	if result.Spread != 150 || result.Average != 1016.83 {
		t.Fatalf("unexpected spread/average: %v %v", result.Spread, result.Average)
	}
}

func TestQuoteCompareInvalidArgs(t *testing.T) {
	t.Parallel()

	executor := NewExecutor(contractx.AgentTypeAnalyst)
	for _, args := range []map[string]any{
		{},
		{"quotes": "cheap"},
		{"quotes": []any{map[string]any{"provider": "", "amount": 10}}},
		{"quotes": []any{map[string]any{"provider": "A", "amount": -1}}},
	} {
		out, err := executor(context.Background(), ToolQuoteCompare, args)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if out.Error == "" {
			t.Fatalf("expected tool error for %#v", args)
		}
	}
}

func TestQuoteSavings(t *testing.T) {
	t.Parallel()

	executor := NewExecutor(contractx.AgentTypeAnalyst)
	out, err := executor(context.Background(), ToolQuoteSavings, map[string]any{"reference": 1200, "offer": 900})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	result, ok := out.Result.(QuoteSavingsOutput)
	if !ok {
		t.Fatalf("unexpected result type: %T (%s)", out.Result, out.Error)
	}
	if result.Savings != 300 || result.Percent != 25 {
		t.Fatalf("unexpected savings: %#v", result)
	}

	out, _ = executor(context.Background(), ToolQuoteSavings, map[string]any{"reference": 0, "offer": 900})
	if out.Error == "" {
		t.Fatal("expected error for zero reference")
	}
}
