package specialist

import (
	"encoding/json"
	"fmt"
	"maps"

	contractx "github.com/tanpawarit/servicesaver/agent/contract"
	promptx "github.com/tanpawarit/servicesaver/agent/prompt"
)

// templateVars builds the FString variables for one invoke: the vertical's
// wording plus the JSON payload as {input}.
func templateVars(verticals *promptx.Registry, vertical string, payload any) (map[string]any, error) {
	input, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal payload: %v", contractx.ErrValidation, err)
	}
	vars := maps.Clone(verticals.Resolve(vertical).Variables())
	vars["input"] = string(input)
	return vars, nil
}

func profilePayload(p contractx.CustomerProfile) map[string]any {
	return map[string]any{
		"vertical": p.Vertical,
		"fields":   p.Fields,
	}
}

func providerPayload(p contractx.Provider) map[string]any {
	return map[string]any{
		"id":          p.ID,
		"name":        p.Name,
		"rating":      p.Rating,
		"price_range": []float64{p.PriceRangeLow, p.PriceRangeHigh},
		"specialties": p.Specialties,
	}
}

func providersPayload(providers []contractx.Provider) []map[string]any {
	out := make([]map[string]any, 0, len(providers))
	for _, p := range providers {
		out = append(out, providerPayload(p))
	}
	return out
}
