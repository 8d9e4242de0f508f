package prompt

import (
	_ "embed"
	"errors"
	"fmt"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed verticals.yaml
var verticalsRaw []byte

var ErrUnknownVertical = errors.New("unknown vertical")

// Vertical describes one service category.
type Vertical struct {
	ID             string   `yaml:"id"`
	DisplayName    string   `yaml:"display_name"`
	ServiceName    string   `yaml:"service_name"`
	ServiceType    string   `yaml:"service_type"`
	ProviderNoun   string   `yaml:"provider_noun"`
	RequiredFields []string `yaml:"required_fields"`
	OptionalFields []string `yaml:"optional_fields,omitempty"`
}

// Variables returns the template values substituted into role prompts.
func (v Vertical) Variables() map[string]any {
	return map[string]any{
		"vertical":      v.ID,
		"display_name":  v.DisplayName,
		"service_name":  v.ServiceName,
		"service_type":  v.ServiceType,
		"provider_noun": v.ProviderNoun,
	}
}

type registryFile struct {
	Version   int        `yaml:"version"`
	Default   string     `yaml:"default"`
	Verticals []Vertical `yaml:"verticals"`
}

// Registry is the immutable vertical table, loaded once at startup.
type Registry struct {
	defaultID string
	order     []string
	byID      map[string]Vertical
}

// LoadRegistry parses the embedded vertical table.
func LoadRegistry() (*Registry, error) {
	return ParseRegistry(verticalsRaw)
}

func MustLoadRegistry() *Registry {
	reg, err := LoadRegistry()
	if err != nil {
		panic(err)
	}
	return reg
}

func ParseRegistry(data []byte) (*Registry, error) {
	var file registryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse vertical registry: %w", err)
	}

	reg := &Registry{
		defaultID: strings.TrimSpace(file.Default),
		order:     make([]string, 0, len(file.Verticals)),
		byID:      make(map[string]Vertical, len(file.Verticals)),
	}
	for _, v := range file.Verticals {
		v.ID = strings.TrimSpace(v.ID)
		if v.ID == "" {
			return nil, errors.New("vertical registry: entry without id")
		}
		if _, dup := reg.byID[v.ID]; dup {
			return nil, fmt.Errorf("vertical registry: duplicate id %q", v.ID)
		}
		if len(v.RequiredFields) == 0 {
			return nil, fmt.Errorf("vertical registry: %s has no required fields", v.ID)
		}
		if v.ServiceName == "" || v.ServiceType == "" || v.ProviderNoun == "" {
			return nil, fmt.Errorf("vertical registry: %s is missing prompt wording", v.ID)
		}
		v.RequiredFields = slices.Clone(v.RequiredFields)
		v.OptionalFields = slices.Clone(v.OptionalFields)
		reg.byID[v.ID] = v
		reg.order = append(reg.order, v.ID)
	}
	if _, ok := reg.byID[reg.defaultID]; !ok {
		return nil, fmt.Errorf("vertical registry: default %q is not defined", reg.defaultID)
	}
	return reg, nil
}

// Lookup returns the vertical with the given id.
func (r *Registry) Lookup(id string) (Vertical, bool) {
	v, ok := r.byID[strings.TrimSpace(id)]
	if !ok {
		return Vertical{}, false
	}
	return cloneVertical(v), true
}

// Resolve returns the vertical with the given id, or the default one when the
// id is unknown.
func (r *Registry) Resolve(id string) Vertical {
	if v, ok := r.Lookup(id); ok {
		return v
	}
	return r.Default()
}

func (r *Registry) Default() Vertical {
	return cloneVertical(r.byID[r.defaultID])
}

func (r *Registry) DefaultID() string {
	return r.defaultID
}

// IDs lists vertical ids in declaration order.
func (r *Registry) IDs() []string {
	return slices.Clone(r.order)
}

func cloneVertical(v Vertical) Vertical {
	v.RequiredFields = slices.Clone(v.RequiredFields)
	v.OptionalFields = slices.Clone(v.OptionalFields)
	return v
}
