// Package codec converts preference documents between their generic map
// form and the transfer formats used for export, import and storage.
package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Format names a transfer format.
type Format string

const (
	JSON Format = "json"
	YAML Format = "yaml"
	TOML Format = "toml"
)

// Formats returns every supported format.
func Formats() []Format {
	return []Format{JSON, YAML, TOML}
}

// ParseFormat maps a name (case-insensitive, "yml" accepted) to a Format.
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "json":
		return JSON, nil
	case "yaml", "yml":
		return YAML, nil
	case "toml":
		return TOML, nil
	default:
		return "", fmt.Errorf("unknown format %q", name)
	}
}

// DecodeError reports input that is not a well-formed document.
type DecodeError struct {
	Format  Format
	Message string
	Err     error
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoding %s: %s", e.Format, e.Message)
}

// Unwrap returns the underlying error.
func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Encode serializes a document. JSON output is indented with two spaces;
// object keys are sorted in every format.
func Encode(f Format, doc map[string]any) ([]byte, error) {
	if doc == nil {
		doc = map[string]any{}
	}

	switch f {
	case JSON, "":
		data, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("encoding json: %w", err)
		}
		return data, nil
	case YAML:
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return nil, fmt.Errorf("encoding yaml: %w", err)
		}
		if err := enc.Close(); err != nil {
			return nil, fmt.Errorf("encoding yaml: %w", err)
		}
		return buf.Bytes(), nil
	case TOML:
		data, err := toml.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("encoding toml: %w", err)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("unknown format %q", f)
	}
}

// Decode parses serialized input into a generic document. The input must
// hold a single object. Timestamps decoded natively by YAML or TOML are
// turned back into RFC 3339 strings so every format yields the same shape.
func Decode(f Format, data []byte) (map[string]any, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, &DecodeError{Format: f, Message: "empty input"}
	}

	var raw any
	var err error
	switch f {
	case JSON, "":
		f = JSON
		dec := json.NewDecoder(bytes.NewReader(data))
		if err = dec.Decode(&raw); err == nil && dec.More() {
			return nil, &DecodeError{Format: f, Message: "trailing data after document"}
		}
	case YAML:
		err = yaml.Unmarshal(data, &raw)
	case TOML:
		var m map[string]any
		err = toml.Unmarshal(data, &m)
		raw = m
	default:
		return nil, fmt.Errorf("unknown format %q", f)
	}
	if err != nil {
		return nil, &DecodeError{Format: f, Message: err.Error(), Err: err}
	}

	doc, ok := normalize(raw).(map[string]any)
	if !ok {
		return nil, &DecodeError{Format: f, Message: fmt.Sprintf("document must be an object, got %T", raw)}
	}
	return doc, nil
}

func normalize(v any) any {
	switch val := v.(type) {
	case map[string]any:
		for k, item := range val {
			val[k] = normalize(item)
		}
		return val
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[fmt.Sprint(k)] = normalize(item)
		}
		return out
	case []any:
		for i, item := range val {
			val[i] = normalize(item)
		}
		return val
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano)
	default:
		return v
	}
}
