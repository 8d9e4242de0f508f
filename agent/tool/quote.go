package tool

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	contractx "github.com/tanpawarit/servicesaver/agent/contract"
)

const (
	ToolQuoteCompare = "quote.compare"
	ToolQuoteSavings = "quote.savings"
)

type Quote struct {
	Provider string  `json:"provider"`
	Amount   float64 `json:"amount"`
}

type QuoteCompareOutput struct {
	Ranked  []Quote `json:"ranked"`
	Lowest  Quote   `json:"lowest"`
	Highest Quote   `json:"highest"`
	Spread  float64 `json:"spread"`
	Average float64 `json:"average"`
}

type QuoteSavingsOutput struct {
	Reference float64 `json:"reference"`
	Offer     float64 `json:"offer"`
	Savings   float64 `json:"savings"`
	Percent   float64 `json:"percent"`
}

func executeQuoteCompare(tool string, args map[string]any) (contractx.ToolResult, error) {
	var in struct {
		Quotes []Quote `json:"quotes"`
	}
	if err := decodeArgs(args, &in); err != nil {
		return contractx.ToolResult{Tool: tool, Error: err.Error()}, nil
	}

	quotes := make([]Quote, 0, len(in.Quotes))
	for _, q := range in.Quotes {
		q.Provider = strings.TrimSpace(q.Provider)
		if q.Provider == "" {
			return contractx.ToolResult{Tool: tool, Error: "quote provider is required"}, nil
		}
		if q.Amount < 0 || math.IsNaN(q.Amount) || math.IsInf(q.Amount, 0) {
			return contractx.ToolResult{Tool: tool, Error: fmt.Sprintf("invalid amount for %s", q.Provider)}, nil
		}
		quotes = append(quotes, q)
	}
	if len(quotes) == 0 {
		return contractx.ToolResult{Tool: tool, Error: "at least one quote is required"}, nil
	}

	sort.SliceStable(quotes, func(i, j int) bool {
		return quotes[i].Amount < quotes[j].Amount
	})

	var total float64
	for _, q := range quotes {
		total += q.Amount
	}
	lowest, highest := quotes[0], quotes[len(quotes)-1]

	return contractx.ToolResult{
		Tool: tool,
		Result: QuoteCompareOutput{
			Ranked:  quotes,
			Lowest:  lowest,
			Highest: highest,
			Spread:  round2(highest.Amount - lowest.Amount),
			Average: round2(total / float64(len(quotes))),
		},
	}, nil
}

func executeQuoteSavings(tool string, args map[string]any) (contractx.ToolResult, error) {
	var in struct {
		Reference *float64 `json:"reference"`
		Offer     *float64 `json:"offer"`
	}
	if err := decodeArgs(args, &in); err != nil {
		return contractx.ToolResult{Tool: tool, Error: err.Error()}, nil
	}
	if in.Reference == nil || in.Offer == nil {
		return contractx.ToolResult{Tool: tool, Error: "reference and offer are required"}, nil
	}
	if *in.Reference <= 0 {
		return contractx.ToolResult{Tool: tool, Error: "reference must be > 0"}, nil
	}

	savings := *in.Reference - *in.Offer
	return contractx.ToolResult{
		Tool: tool,
		Result: QuoteSavingsOutput{
			Reference: *in.Reference,
			Offer:     *in.Offer,
			Savings:   round2(savings),
			Percent:   round2(savings / *in.Reference * 100),
		},
	}, nil
}

func decodeArgs(args map[string]any, out any) error {
	raw, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("invalid tool args: %v", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("invalid tool args: %v", err)
	}
	return nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
