package intake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	einoprompt "github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/servicesaver/agent/contract"
	"github.com/tanpawarit/servicesaver/agent/prompt"
)

var ErrEmptyDialogue = errors.New("intake dialogue is empty")

// Completer returns a JSON object conforming to the given schema.
type Completer interface {
	CompleteJSON(ctx context.Context, req CompletionRequest) (string, error)
}

type CompletionRequest struct {
	Messages   []*schema.Message
	SchemaName string
	Schema     map[string]any
}

// Extraction is the typed result of one intake pass. Missing lists required
// fields the dialogue did not fill.
type Extraction struct {
	UserID   string
	Vertical string
	Fields   map[string]string
	Missing  []string
}

// Profile converts the extraction into a customer profile. It fails with
// *contract.IncompleteFieldsError while required fields are missing.
func (x Extraction) Profile() (contractx.CustomerProfile, error) {
	if len(x.Missing) > 0 {
		return contractx.CustomerProfile{}, &contractx.IncompleteFieldsError{Missing: slices.Clone(x.Missing)}
	}
	return contractx.CustomerProfile{
		UserID:   x.UserID,
		Vertical: x.Vertical,
		Fields:   maps.Clone(x.Fields),
		Complete: true,
	}, nil
}

type Request struct {
	UserID   string
	Vertical string
	Dialogue string
}

// Extractor turns a finished intake conversation into profile fields for the
// conversation's vertical.
type Extractor struct {
	completer    Completer
	verticals    *prompt.Registry
	systemPrompt string
}

func New(completer Completer, verticals *prompt.Registry, systemPrompt string) (*Extractor, error) {
	if completer == nil {
		return nil, errors.New("completer is required")
	}
	if verticals == nil {
		return nil, errors.New("vertical registry is required")
	}
	if strings.TrimSpace(systemPrompt) == "" {
		return nil, fmt.Errorf("%w: extractor", contractx.ErrPromptMissing)
	}
	return &Extractor{
		completer:    completer,
		verticals:    verticals,
		systemPrompt: systemPrompt,
	}, nil
}

func (e *Extractor) Extract(ctx context.Context, req Request) (Extraction, error) {
	if strings.TrimSpace(req.Dialogue) == "" {
		return Extraction{}, ErrEmptyDialogue
	}
	vertical := e.verticals.Resolve(req.Vertical)
	if vertical.ID != strings.TrimSpace(req.Vertical) {
		log.Debug().
			Str("user_id", req.UserID).
			Str("requested", req.Vertical).
			Str("vertical", vertical.ID).
			Msg("intake vertical resolved to default")
	}

	vars := vertical.Variables()
	vars["input"] = req.Dialogue
	messages, err := einoprompt.FromMessages(
		schema.FString,
		schema.SystemMessage(e.systemPrompt),
		schema.UserMessage("{input}"),
	).Format(ctx, vars)
	if err != nil {
		return Extraction{}, fmt.Errorf("format extractor prompt: %w", err)
	}

	fields := fieldNames(vertical)
	raw, err := e.completer.CompleteJSON(ctx, CompletionRequest{
		Messages:   messages,
		SchemaName: vertical.ID + "_profile",
		Schema:     profileSchema(fields),
	})
	if err != nil {
		return Extraction{}, fmt.Errorf("%w: extractor: %v", contractx.ErrModelInvoke, err)
	}

	values, err := decodeFields(raw, fields)
	if err != nil {
		return Extraction{}, err
	}

	missing := make([]string, 0)
	for _, name := range vertical.RequiredFields {
		if values[name] == "" {
			missing = append(missing, name)
		}
	}

	return Extraction{
		UserID:   strings.TrimSpace(req.UserID),
		Vertical: vertical.ID,
		Fields:   values,
		Missing:  missing,
	}, nil
}

func fieldNames(v prompt.Vertical) []string {
	names := make([]string, 0, len(v.RequiredFields)+len(v.OptionalFields))
	names = append(names, v.RequiredFields...)
	for _, name := range v.OptionalFields {
		if !slices.Contains(names, name) {
			names = append(names, name)
		}
	}
	return names
}

// profileSchema is a strict JSON schema with one string property per field.
// Unknown values come back as empty strings.
func profileSchema(fields []string) map[string]any {
	properties := make(map[string]any, len(fields))
	for _, name := range fields {
		properties[name] = map[string]any{
			"type":        "string",
			"description": strings.ReplaceAll(name, "_", " ") + ", empty when unknown",
		}
	}
	return map[string]any{
		"type":                 "object",
		"properties":           properties,
		"required":             slices.Clone(fields),
		"additionalProperties": false,
	}
}

// decodeFields keeps the known fields with non-blank values. Numbers and
// booleans are accepted and rendered as text.
func decodeFields(raw string, fields []string) (map[string]string, error) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &obj); err != nil {
		return nil, fmt.Errorf("%w: extractor output: %v", contractx.ErrSchemaViolation, err)
	}

	values := make(map[string]string, len(fields))
	for _, name := range fields {
		v, ok := obj[name]
		if !ok || v == nil {
			continue
		}
		var text string
		switch typed := v.(type) {
		case string:
			text = typed
		case float64, bool:
			text = fmt.Sprint(typed)
		default:
			return nil, fmt.Errorf("%w: field %s has type %T", contractx.ErrSchemaViolation, name, v)
		}
		if text = strings.TrimSpace(text); text != "" {
			values[name] = text
		}
	}
	return values, nil
}
