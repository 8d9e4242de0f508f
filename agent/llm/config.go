package llm

import (
	"fmt"
	"strings"
	"time"

	contractx "github.com/tanpawarit/servicesaver/agent/contract"
	openrouterx "github.com/tanpawarit/servicesaver/pkg/openrouter"
)

// Config is the OPENROUTER_* block. Role overrides fall back to Model and
// Temperature; a negative temperature means "not set".
type Config struct {
	BaseURL            string        `envconfig:"BASE_URL" split_words:"true" default:"https://openrouter.ai/api/v1"`
	APIKey             string        `envconfig:"API_KEY" split_words:"true" required:"true"`
	Model              string        `envconfig:"MODEL" split_words:"true" required:"true"`
	MaxCompletionToken int           `envconfig:"MAX_COMPLETION_TOKEN" split_words:"true" default:"2000"`
	Temperature        float32       `envconfig:"TEMPERATURE" split_words:"true" default:"0.5"`
	Timeout            time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"60s"`
	SiteURL            string        `envconfig:"SITE_URL" split_words:"true"`
	SiteName           string        `envconfig:"SITE_NAME" split_words:"true"`

	RankerModel     string `envconfig:"RANKER_MODEL" split_words:"true"`
	StrategistModel string `envconfig:"STRATEGIST_MODEL" split_words:"true"`
	SummarizerModel string `envconfig:"SUMMARIZER_MODEL" split_words:"true"`
	AnalystModel    string `envconfig:"ANALYST_MODEL" split_words:"true"`
	SimulatorModel  string `envconfig:"SIMULATOR_MODEL" split_words:"true"`
	ExtractorModel  string `envconfig:"EXTRACTOR_MODEL" split_words:"true"`

	RankerTemperature     float32 `envconfig:"RANKER_TEMPERATURE" split_words:"true" default:"0"`
	StrategistTemperature float32 `envconfig:"STRATEGIST_TEMPERATURE" split_words:"true" default:"-1"`
	SummarizerTemperature float32 `envconfig:"SUMMARIZER_TEMPERATURE" split_words:"true" default:"0.2"`
	AnalystTemperature    float32 `envconfig:"ANALYST_TEMPERATURE" split_words:"true" default:"-1"`
	SimulatorTemperature  float32 `envconfig:"SIMULATOR_TEMPERATURE" split_words:"true" default:"0.8"`
	ExtractorTemperature  float32 `envconfig:"EXTRACTOR_TEMPERATURE" split_words:"true" default:"0"`
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("%w: openrouter api key is required", contractx.ErrValidation)
	}
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("%w: default model is required", contractx.ErrValidation)
	}
	if c.MaxCompletionToken <= 0 {
		return fmt.Errorf("%w: max completion token must be > 0", contractx.ErrValidation)
	}
	return nil
}

func (c Config) OpenRouterFor(agentType contractx.AgentType) openrouterx.Config {
	modelName, temp := c.roleOverride(agentType)
	if modelName == "" {
		modelName = strings.TrimSpace(c.Model)
	}
	if temp < 0 {
		temp = c.Temperature
	}

	maxCompletionToken := c.MaxCompletionToken
	return openrouterx.Config{
		BaseURL:            strings.TrimSpace(c.BaseURL),
		APIKey:             strings.TrimSpace(c.APIKey),
		Model:              modelName,
		MaxCompletionToken: &maxCompletionToken,
		Temperature:        temp,
		Timeout:            c.Timeout,
		SiteURL:            strings.TrimSpace(c.SiteURL),
		SiteName:           strings.TrimSpace(c.SiteName),
	}
}

func (c Config) roleOverride(agentType contractx.AgentType) (string, float32) {
	switch agentType {
	case contractx.AgentTypeRanker:
		return strings.TrimSpace(c.RankerModel), c.RankerTemperature
	case contractx.AgentTypeStrategist:
		return strings.TrimSpace(c.StrategistModel), c.StrategistTemperature
	case contractx.AgentTypeSummarizer:
		return strings.TrimSpace(c.SummarizerModel), c.SummarizerTemperature
	case contractx.AgentTypeAnalyst:
		return strings.TrimSpace(c.AnalystModel), c.AnalystTemperature
	case contractx.AgentTypeSimulator:
		return strings.TrimSpace(c.SimulatorModel), c.SimulatorTemperature
	case contractx.AgentTypeExtractor:
		return strings.TrimSpace(c.ExtractorModel), c.ExtractorTemperature
	default:
		return "", -1
	}
}
