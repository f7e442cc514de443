package schema

import (
	"errors"
	"testing"
	"time"
)

func TestLoadEmbedded(t *testing.T) {
	s, err := LoadEmbedded()
	if err != nil {
		t.Fatalf("LoadEmbedded() error = %v", err)
	}

	for _, section := range []string{"sensory", "cognitive", "ai", "vr", "motor", "audio", "metadata"} {
		if s.GetProperty(section) == nil {
			t.Errorf("schema missing section %q", section)
		}
	}

	font := s.GetProperty("sensory.fontSize")
	if font == nil || font.Minimum == nil || font.Maximum == nil {
		t.Fatal("sensory.fontSize must declare bounds")
	}
	if *font.Minimum != 0.75 || *font.Maximum != 3.0 {
		t.Errorf("fontSize bounds = [%v, %v], want [0.75, 3.0]", *font.Minimum, *font.Maximum)
	}

	if got := s.GetProperty("vr").Since; got != "1.1.0" {
		t.Errorf("vr Since = %q, want 1.1.0", got)
	}
}

func TestSchema_Defaults(t *testing.T) {
	s := MustLoadEmbedded()
	defaults := s.Defaults()

	sensory, ok := defaults["sensory"].(map[string]any)
	if !ok {
		t.Fatalf("sensory defaults missing: %v", defaults)
	}
	if sensory["fontSize"] != 1.0 {
		t.Errorf("fontSize default = %v, want 1.0", sensory["fontSize"])
	}
	if sensory["colorVisionFilter"] != "none" {
		t.Errorf("colorVisionFilter default = %v, want none", sensory["colorVisionFilter"])
	}
	if defaults["schemaVersion"] != "1.2.0" {
		t.Errorf("schemaVersion default = %v", defaults["schemaVersion"])
	}
	if _, ok := defaults["lastModified"]; ok {
		t.Error("lastModified must not have a default")
	}

	// Every declared default must itself validate once lastModified is stamped.
	defaults["lastModified"] = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).Format(time.RFC3339Nano)
	if err := NewValidator(s).WithStrictMode(true).Validate(defaults); err != nil {
		t.Errorf("defaults do not validate: %v", err)
	}
}

func TestSchema_DefaultsAreFreshCopies(t *testing.T) {
	s := MustLoadEmbedded()
	a := s.Defaults()
	a["metadata"].(map[string]any)["poisoned"] = true
	a["sensory"].(map[string]any)["fontSize"] = 2.0

	b := s.Defaults()
	if _, ok := b["metadata"].(map[string]any)["poisoned"]; ok {
		t.Error("metadata default shared between calls")
	}
	if b["sensory"].(map[string]any)["fontSize"] != 1.0 {
		t.Error("sensory default shared between calls")
	}
}

func TestSchema_BoundsRejection(t *testing.T) {
	s := MustLoadEmbedded()
	doc := s.Defaults()
	doc["lastModified"] = "2026-10-18T00:00:00Z"
	doc["sensory"].(map[string]any)["fontSize"] = 5.0

	err := NewValidator(s).WithStrictMode(true).Validate(doc)
	var errs *ValidationErrors
	if !errors.As(err, &errs) {
		t.Fatalf("expected *ValidationErrors, got %v", err)
	}
	if got := errs.Paths(); len(got) != 1 || got[0] != "sensory.fontSize" {
		t.Errorf("expected one error at sensory.fontSize, got %v", errs)
	}
}

func TestSchemaType_UnmarshalJSON(t *testing.T) {
	s, err := Parse([]byte(`{"type": ["string", "null"], "properties": {"a": {"type": "integer"}}}`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if !s.Type.Is("null") || !s.Type.Is("string") {
		t.Errorf("Type = %v", s.Type)
	}
	if s.GetProperty("a").Type.String() != "integer" {
		t.Errorf("a type = %v", s.GetProperty("a").Type)
	}

	if _, err := Parse([]byte(`{"type": 5}`)); err == nil {
		t.Error("expected error for numeric type")
	}
}

func TestCode_String(t *testing.T) {
	tests := []struct {
		code Code
		want string
	}{
		{CodeTypeMismatch, "type_mismatch"},
		{CodeOutOfRange, "out_of_range"},
		{CodeInvalidEnum, "invalid_enum"},
		{CodeRequiredMissing, "required_missing"},
		{CodeUnknownProperty, "unknown_property"},
		{Code(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.code.String(); got != tt.want {
			t.Errorf("%d.String() = %q, want %q", tt.code, got, tt.want)
		}
	}
}

func TestValidationErrors_Error(t *testing.T) {
	errs := &ValidationErrors{}
	if errs.AsError() != nil {
		t.Error("empty ValidationErrors should be nil error")
	}

	errs.Add("sensory.fontSize", CodeOutOfRange, "too big")
	if got := errs.Error(); got != "sensory.fontSize: too big" {
		t.Errorf("Error() = %q", got)
	}

	errs.Add("ai.tone", CodeInvalidEnum, "bad tone")
	want := "2 validation errors:\n  - sensory.fontSize: too big\n  - ai.tone: bad tone"
	if got := errs.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}
