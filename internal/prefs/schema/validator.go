package schema

import (
	"fmt"
	"math"
	"sort"
	"time"

	"golang.org/x/mod/semver"
)

// Validator validates preference documents against a schema.
//
// Properties are visited in sorted order so the error list for a given
// input is always the same.
type Validator struct {
	schema *Schema

	strictMode bool // reject properties the schema does not declare
}

// NewValidator creates a validator for the given schema.
func NewValidator(schema *Schema) *Validator {
	return &Validator{schema: schema}
}

// WithStrictMode enables strict mode (undeclared properties are errors
// wherever the schema sets additionalProperties to false).
func (v *Validator) WithStrictMode(strict bool) *Validator {
	v.strictMode = strict
	return v
}

// Schema returns the schema the validator checks against.
func (v *Validator) Schema() *Schema {
	return v.schema
}

// Validate checks a complete document. Missing required fields are errors.
func (v *Validator) Validate(data map[string]any) error {
	if v.schema == nil {
		return nil
	}

	w := &walk{v: v, errs: &ValidationErrors{}}
	w.value("", data, v.schema)
	return w.errs.AsError()
}

// ValidatePartial checks only the fields present in data. Required
// constraints are skipped; types, bounds, enums and unknown properties are
// enforced exactly as Validate does.
func (v *Validator) ValidatePartial(data map[string]any) error {
	if v.schema == nil {
		return nil
	}

	w := &walk{v: v, errs: &ValidationErrors{}, partial: true}
	w.value("", data, v.schema)
	return w.errs.AsError()
}

// walk carries the state of one validation pass.
type walk struct {
	v       *Validator
	errs    *ValidationErrors
	partial bool
}

func (w *walk) value(path string, value any, schema *Schema) {
	if schema == nil {
		return
	}

	if !schema.Type.IsEmpty() {
		if !w.typ(path, value, schema) {
			return
		}
	}

	if len(schema.Enum) > 0 {
		w.enum(path, value, schema.Enum)
	}
}

// typ validates the value against the expected type(s) and reports whether
// it matched.
func (w *walk) typ(path string, value any, schema *Schema) bool {
	for _, typ := range schema.Type.Types {
		if !matchesType(value, typ) {
			continue
		}
		switch typ {
		case TypeNameString:
			w.str(path, value.(string), schema)
		case TypeNameNumber, TypeNameInteger:
			w.number(path, value, schema)
		case TypeNameObject:
			w.object(path, value.(map[string]any), schema)
		}
		return true
	}

	w.errs.AddError(NewTypeError(path, schema.Type.String(), value))
	return false
}

func (w *walk) str(path, value string, schema *Schema) {
	switch schema.Format {
	case FormatDateTime:
		if _, err := time.Parse(time.RFC3339Nano, value); err != nil {
			w.errs.AddError(NewFormatError(path, value, schema.Format))
		}
	case FormatSemver:
		if !semver.IsValid("v" + value) {
			w.errs.AddError(NewFormatError(path, value, schema.Format))
		}
	}
}

// number enforces bounds. Out-of-range values are reported, never clamped.
// NaN and the infinities are never in range.
func (w *walk) number(path string, value any, schema *Schema) {
	f := toFloat64(value)

	if nonFinite(f) ||
		(schema.Minimum != nil && f < *schema.Minimum) || (schema.Maximum != nil && f > *schema.Maximum) {
		w.errs.AddError(NewRangeError(path, value, schema.Minimum, schema.Maximum))
	}
}

func (w *walk) object(path string, obj map[string]any, schema *Schema) {
	if !w.partial {
		for _, req := range schema.Required {
			if _, exists := obj[req]; !exists {
				w.errs.AddError(NewRequiredError(joinPath(path, req)))
			}
		}
	}

	names := make([]string, 0, len(obj))
	for name := range obj {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		propPath := joinPath(path, name)
		if propSchema, ok := schema.Properties[name]; ok {
			w.value(propPath, obj[name], propSchema)
		} else if w.v.strictMode && !schema.AllowsAdditionalProperties() {
			w.errs.AddError(NewUnknownPropertyError(propPath))
		} else {
			w.finite(propPath, obj[name])
		}
	}
}

// finite checks values the schema does not describe. Anything is allowed
// except numbers JSON cannot encode.
func (w *walk) finite(path string, value any) {
	switch v := value.(type) {
	case map[string]any:
		names := make([]string, 0, len(v))
		for name := range v {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			w.finite(joinPath(path, name), v[name])
		}
	case []any:
		for i, item := range v {
			w.finite(fmt.Sprintf("%s[%d]", path, i), item)
		}
	default:
		if isNumber(v) && nonFinite(toFloat64(v)) {
			w.errs.AddError(NewRangeError(path, v, nil, nil))
		}
	}
}

func nonFinite(f float64) bool {
	return math.IsNaN(f) || math.IsInf(f, 0)
}

func (w *walk) enum(path string, value any, allowed []any) {
	for _, a := range allowed {
		if valuesEqual(value, a) {
			return
		}
	}
	w.errs.AddError(NewEnumError(path, value, allowed))
}

func matchesType(value any, typ string) bool {
	switch typ {
	case TypeNameString:
		_, ok := value.(string)
		return ok
	case TypeNameNumber:
		return isNumber(value)
	case TypeNameInteger:
		return isInteger(value)
	case TypeNameBoolean:
		_, ok := value.(bool)
		return ok
	case TypeNameObject:
		_, ok := value.(map[string]any)
		return ok
	case TypeNameNull:
		return value == nil
	default:
		return false
	}
}

func isNumber(v any) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return true
	default:
		return false
	}
}

func isInteger(v any) bool {
	switch val := v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return true
	case float32:
		return float32(int32(val)) == val
	case float64:
		return float64(int64(val)) == val
	default:
		return false
	}
}

func toFloat64(v any) float64 {
	switch val := v.(type) {
	case int:
		return float64(val)
	case int8:
		return float64(val)
	case int16:
		return float64(val)
	case int32:
		return float64(val)
	case int64:
		return float64(val)
	case uint:
		return float64(val)
	case uint8:
		return float64(val)
	case uint16:
		return float64(val)
	case uint32:
		return float64(val)
	case uint64:
		return float64(val)
	case float32:
		return float64(val)
	case float64:
		return val
	default:
		return 0
	}
}

func valuesEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if isNumber(a) && isNumber(b) {
		return toFloat64(a) == toFloat64(b)
	}
	return a == b
}

func joinPath(base, name string) string {
	if base == "" {
		return name
	}
	return base + "." + name
}
