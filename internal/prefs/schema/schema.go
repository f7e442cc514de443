// Package schema provides JSON Schema-based validation for preference documents.
//
// The shape of a preferences document is declared once, in the embedded
// preferences.schema.json. Every field carries its type, numeric bounds or
// enum membership, and its default. The Validator checks full documents and
// partial updates against that declaration.
package schema

import (
	"embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

//go:embed preferences.schema.json
var schemaFS embed.FS

// Schema represents the subset of JSON Schema used to describe preferences.
type Schema struct {
	// ID is the schema identifier ($id).
	ID string `json:"$id,omitempty"`

	// SchemaVersion is the JSON Schema dialect ($schema).
	SchemaVersion string `json:"$schema,omitempty"`

	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`

	// Type is the JSON type (string, number, integer, boolean, object, null).
	Type SchemaType `json:"type,omitempty"`

	// Properties defines object properties (for type: object).
	Properties map[string]*Schema `json:"properties,omitempty"`

	// AdditionalProperties controls whether extra properties are allowed.
	AdditionalProperties *bool `json:"additionalProperties,omitempty"`

	// Required lists required property names.
	Required []string `json:"required,omitempty"`

	// Enum lists allowed values.
	Enum []any `json:"enum,omitempty"`

	// Default is the value a freshly created document carries.
	Default any `json:"default,omitempty"`

	Minimum *float64 `json:"minimum,omitempty"`
	Maximum *float64 `json:"maximum,omitempty"`

	// Format is a semantic format hint ("date-time", "semver").
	Format string `json:"format,omitempty"`

	// Since is the document version that introduced the property.
	Since string `json:"x-since,omitempty"`
}

// SchemaType represents JSON Schema type(s).
// Can be a single type or an array of types.
type SchemaType struct {
	Types []string
}

// UnmarshalJSON handles both single type and array of types.
func (t *SchemaType) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		t.Types = []string{single}
		return nil
	}

	var arr []string
	if err := json.Unmarshal(data, &arr); err != nil {
		return fmt.Errorf("type must be string or array of strings: %w", err)
	}
	t.Types = arr
	return nil
}

// Is checks if the schema type includes the given type.
func (t SchemaType) Is(typ string) bool {
	for _, st := range t.Types {
		if st == typ {
			return true
		}
	}
	return false
}

// IsEmpty returns true if no types are defined.
func (t SchemaType) IsEmpty() bool {
	return len(t.Types) == 0
}

func (t SchemaType) String() string {
	if len(t.Types) == 1 {
		return t.Types[0]
	}
	return fmt.Sprintf("%v", t.Types)
}

var (
	schemaCache     *Schema
	schemaCacheOnce sync.Once
	schemaCacheErr  error
)

// LoadEmbedded loads the embedded preferences schema.
// The result is shared; callers must not mutate it.
func LoadEmbedded() (*Schema, error) {
	schemaCacheOnce.Do(func() {
		data, err := schemaFS.ReadFile("preferences.schema.json")
		if err != nil {
			schemaCacheErr = fmt.Errorf("reading embedded schema: %w", err)
			return
		}
		schemaCache, schemaCacheErr = Parse(data)
	})

	return schemaCache, schemaCacheErr
}

// MustLoadEmbedded is LoadEmbedded for package initialisation.
func MustLoadEmbedded() *Schema {
	s, err := LoadEmbedded()
	if err != nil {
		panic(err)
	}
	return s
}

// Parse parses a JSON Schema from bytes.
func Parse(data []byte) (*Schema, error) {
	s := &Schema{}
	if err := json.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("parsing schema: %w", err)
	}
	return s, nil
}

// GetProperty returns the schema for a nested property path.
// Path is dot-separated (e.g., "sensory.fontSize").
func (s *Schema) GetProperty(path string) *Schema {
	if s == nil || path == "" {
		return s
	}

	current := s
	for _, part := range strings.Split(path, ".") {
		if part == "" {
			continue
		}
		prop, ok := current.Properties[part]
		if !ok {
			return nil
		}
		current = prop
	}

	return current
}

// AllowsAdditionalProperties returns whether additional properties are allowed.
func (s *Schema) AllowsAdditionalProperties() bool {
	if s.AdditionalProperties == nil {
		return true
	}
	return *s.AdditionalProperties
}

// Defaults builds a document holding every declared default.
// Object properties without their own default are descended into; the
// returned map is freshly allocated on every call.
func (s *Schema) Defaults() map[string]any {
	out := make(map[string]any)
	for name, prop := range s.Properties {
		if v, ok := prop.defaultValue(); ok {
			out[name] = v
		}
	}
	return out
}

func (s *Schema) defaultValue() (any, bool) {
	if s.Default != nil {
		return cloneDefault(s.Default), true
	}
	if s.Type.Is(TypeNameObject) && len(s.Properties) > 0 {
		return s.Defaults(), true
	}
	return nil, false
}

func cloneDefault(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = cloneDefault(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneDefault(item)
		}
		return out
	default:
		return v
	}
}
