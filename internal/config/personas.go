package config

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Persona is a selectable agent voice. Empty fields inherit the agent defaults.
type Persona struct {
	ID         string `yaml:"id" json:"id"`
	Name       string `yaml:"name" json:"name"`
	SpeakModel string `yaml:"speak_model" json:"speak_model"`
	Greeting   string `yaml:"greeting,omitempty" json:"greeting,omitempty"`
}

// Personas is the read-only persona catalog shared by all connections.
type Personas struct {
	byID map[string]Persona
}

type personasFile struct {
	Personas []Persona `yaml:"personas"`
}

// DefaultPersonas returns the built-in catalog.
func DefaultPersonas() *Personas {
	p, _ := NewPersonas([]Persona{
		{ID: "thalia", Name: "Thalia", SpeakModel: "aura-2-thalia-en"},
		{ID: "helena", Name: "Helena", SpeakModel: "aura-2-helena-en"},
		{ID: "apollo", Name: "Apollo", SpeakModel: "aura-2-apollo-en"},
	})
	return p
}

// NewPersonas builds a catalog, rejecting entries without an id or voice and
// duplicate ids.
func NewPersonas(list []Persona) (*Personas, error) {
	p := &Personas{byID: make(map[string]Persona, len(list))}
	for i, persona := range list {
		persona.ID = strings.ToLower(strings.TrimSpace(persona.ID))
		if persona.ID == "" {
			return nil, fmt.Errorf("persona %d: id is required", i)
		}
		if strings.TrimSpace(persona.SpeakModel) == "" {
			return nil, fmt.Errorf("persona %s: speak_model is required", persona.ID)
		}
		if _, dup := p.byID[persona.ID]; dup {
			return nil, fmt.Errorf("persona %s: duplicate id", persona.ID)
		}
		if persona.Name == "" {
			persona.Name = persona.ID
		}
		p.byID[persona.ID] = persona
	}
	return p, nil
}

// LoadPersonas reads a YAML catalog from path, or returns the built-in
// catalog when path is empty.
func LoadPersonas(path string) (*Personas, error) {
	if path == "" {
		return DefaultPersonas(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read personas file: %w", err)
	}

	var file personasFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse personas file: %w", err)
	}
	if len(file.Personas) == 0 {
		return nil, fmt.Errorf("personas file %s defines no personas", path)
	}
	return NewPersonas(file.Personas)
}

// Lookup finds a persona by id, case-insensitively.
func (p *Personas) Lookup(id string) (Persona, bool) {
	persona, ok := p.byID[strings.ToLower(strings.TrimSpace(id))]
	return persona, ok
}

// IDs returns the sorted persona ids.
func (p *Personas) IDs() []string {
	ids := make([]string, 0, len(p.byID))
	for id := range p.byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
