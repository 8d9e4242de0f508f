package prompt

import (
	_ "embed"
	"fmt"
	"strings"

	contractx "github.com/tanpawarit/servicesaver/agent/contract"
)

var (
	//go:embed template/ranker.txt
	rankerRaw string

	//go:embed template/strategist.txt
	strategistRaw string

	//go:embed template/replanner.txt
	replannerRaw string

	//go:embed template/summarizer.txt
	summarizerRaw string

	//go:embed template/analyst.txt
	analystRaw string

	//go:embed template/simulator.txt
	simulatorRaw string

	//go:embed template/extractor.txt
	extractorRaw string
)

// PromptSet holds the system prompt of every role. Prompts are FString
// templates filled with Vertical.Variables at invoke time.
type PromptSet struct {
	Ranker     string
	Strategist string
	Replanner  string
	Summarizer string
	Analyst    string
	Simulator  string
	Extractor  string
}

// LoadPromptSet returns a PromptSet with trimmed prompt strings.
func LoadPromptSet() PromptSet {
	return PromptSet{
		Ranker:     strings.TrimSpace(rankerRaw),
		Strategist: strings.TrimSpace(strategistRaw),
		Replanner:  strings.TrimSpace(replannerRaw),
		Summarizer: strings.TrimSpace(summarizerRaw),
		Analyst:    strings.TrimSpace(analystRaw),
		Simulator:  strings.TrimSpace(simulatorRaw),
		Extractor:  strings.TrimSpace(extractorRaw),
	}
}

func (p PromptSet) Validate() error {
	prompts := map[string]string{
		"ranker":     p.Ranker,
		"strategist": p.Strategist,
		"replanner":  p.Replanner,
		"summarizer": p.Summarizer,
		"analyst":    p.Analyst,
		"simulator":  p.Simulator,
		"extractor":  p.Extractor,
	}
	for name, text := range prompts {
		if strings.TrimSpace(text) == "" {
			return fmt.Errorf("%w: %s", contractx.ErrPromptMissing, name)
		}
	}
	return nil
}
