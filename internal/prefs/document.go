package prefs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dshills/prefstore/internal/prefs/merge"
	"github.com/dshills/prefstore/internal/prefs/schema"
)

// ColorVisionFilter selects a colour-blindness compensation filter.
type ColorVisionFilter string

const (
	FilterNone         ColorVisionFilter = "none"
	FilterProtanopia   ColorVisionFilter = "protanopia"
	FilterDeuteranopia ColorVisionFilter = "deuteranopia"
	FilterTritanopia   ColorVisionFilter = "tritanopia"
)

// ReadingSpeed is the pace content is paged at.
type ReadingSpeed string

const (
	ReadingSlow   ReadingSpeed = "slow"
	ReadingMedium ReadingSpeed = "medium"
	ReadingFast   ReadingSpeed = "fast"
)

// ExplanationLevel is the depth explanations are pitched at.
type ExplanationLevel string

const (
	ExplanationSimple    ExplanationLevel = "simple"
	ExplanationModerate  ExplanationLevel = "moderate"
	ExplanationDetailed  ExplanationLevel = "detailed"
	ExplanationExpert    ExplanationLevel = "expert"
	ExplanationTechnical ExplanationLevel = "technical"
)

// ProcessingPace is how quickly new information is introduced.
type ProcessingPace string

const (
	PaceRelaxed  ProcessingPace = "relaxed"
	PaceStandard ProcessingPace = "standard"
	PaceQuick    ProcessingPace = "quick"
)

// Tone is the voice assistants answer in.
type Tone string

const (
	ToneNeutral     Tone = "neutral"
	ToneFriendly    Tone = "friendly"
	ToneEncouraging Tone = "encouraging"
	ToneFormal      Tone = "formal"
	ToneCasual      Tone = "casual"
)

// ResponseLength bounds how long assistant answers are.
type ResponseLength string

const (
	LengthConcise       ResponseLength = "concise"
	LengthBalanced      ResponseLength = "balanced"
	LengthComprehensive ResponseLength = "comprehensive"
)

// ConsistencyLevel is how strongly assistants keep to a stable format.
type ConsistencyLevel string

const (
	ConsistencyLow    ConsistencyLevel = "low"
	ConsistencyMedium ConsistencyLevel = "medium"
	ConsistencyHigh   ConsistencyLevel = "high"
)

// LocomotionType is how the user moves through immersive scenes.
type LocomotionType string

const (
	LocomotionTeleport LocomotionType = "teleport"
	LocomotionSmooth   LocomotionType = "smooth"
	LocomotionComfort  LocomotionType = "comfort"
)

// Sensory holds visual and perceptual adaptations.
type Sensory struct {
	MotionReduction   bool              `json:"motionReduction" yaml:"motionReduction"`
	HighContrast      bool              `json:"highContrast" yaml:"highContrast"`
	ColorVisionFilter ColorVisionFilter `json:"colorVisionFilter" yaml:"colorVisionFilter"`
	FontSize          float64           `json:"fontSize" yaml:"fontSize"`
	ReducedFlashing   bool              `json:"reducedFlashing" yaml:"reducedFlashing"`
	DarkMode          bool              `json:"darkMode" yaml:"darkMode"`
}

// Cognitive holds pacing and information density settings.
type Cognitive struct {
	ReadingSpeed       ReadingSpeed     `json:"readingSpeed" yaml:"readingSpeed"`
	ExplanationLevel   ExplanationLevel `json:"explanationLevel" yaml:"explanationLevel"`
	ProcessingPace     ProcessingPace   `json:"processingPace" yaml:"processingPace"`
	ChunkSize          int              `json:"chunkSize" yaml:"chunkSize"`
	AllowInterruptions bool             `json:"allowInterruptions" yaml:"allowInterruptions"`
	PreferVisualCues   bool             `json:"preferVisualCues" yaml:"preferVisualCues"`
}

// AI holds assistant interaction settings.
type AI struct {
	Tone             Tone             `json:"tone" yaml:"tone"`
	ResponseLength   ResponseLength   `json:"responseLength" yaml:"responseLength"`
	SimplifyLanguage bool             `json:"simplifyLanguage" yaml:"simplifyLanguage"`
	ConsistencyLevel ConsistencyLevel `json:"consistencyLevel" yaml:"consistencyLevel"`
	UseAnalogies     bool             `json:"useAnalogies" yaml:"useAnalogies"`
	AllowUndo        bool             `json:"allowUndo" yaml:"allowUndo"`
}

// VR holds comfort and safety settings for immersive scenes.
// Distances are in metres.
type VR struct {
	ComfortRadius      float64        `json:"comfortRadius" yaml:"comfortRadius"`
	SafeSpaceEnabled   bool           `json:"safeSpaceEnabled" yaml:"safeSpaceEnabled"`
	LocomotionType     LocomotionType `json:"locomotionType" yaml:"locomotionType"`
	PersonalSpace      float64        `json:"personalSpace" yaml:"personalSpace"`
	PanicButtonEnabled bool           `json:"panicButtonEnabled" yaml:"panicButtonEnabled"`
}

// Motor holds input assistance settings.
type Motor struct {
	KeyboardNavigation bool    `json:"keyboardNavigation" yaml:"keyboardNavigation"`
	TargetSizeIncrease float64 `json:"targetSizeIncrease" yaml:"targetSizeIncrease"`
	DwellTime          int     `json:"dwellTime" yaml:"dwellTime"` // milliseconds
	StickyKeys         bool    `json:"stickyKeys" yaml:"stickyKeys"`
}

// Audio holds sound output settings.
type Audio struct {
	Volume            float64 `json:"volume" yaml:"volume"`
	Captions          bool    `json:"captions" yaml:"captions"`
	AudioDescriptions bool    `json:"audioDescriptions" yaml:"audioDescriptions"`
	MonoAudio         bool    `json:"monoAudio" yaml:"monoAudio"`
}

// Document is the complete preferences document for one key.
type Document struct {
	SchemaVersion string         `json:"schemaVersion" yaml:"schemaVersion"`
	LastModified  time.Time      `json:"lastModified" yaml:"lastModified"`
	Sensory       Sensory        `json:"sensory" yaml:"sensory"`
	Cognitive     Cognitive      `json:"cognitive" yaml:"cognitive"`
	AI            AI             `json:"ai" yaml:"ai"`
	VR            VR             `json:"vr" yaml:"vr"`
	Motor         Motor          `json:"motor" yaml:"motor"`
	Audio         Audio          `json:"audio" yaml:"audio"`
	Metadata      map[string]any `json:"metadata" yaml:"metadata"`
}

// Section names in document order.
const (
	SectionSensory   = "sensory"
	SectionCognitive = "cognitive"
	SectionAI        = "ai"
	SectionVR        = "vr"
	SectionMotor     = "motor"
	SectionAudio     = "audio"
	SectionMetadata  = "metadata"
)

// Sections returns the section names in document order.
func Sections() []string {
	return []string{SectionSensory, SectionCognitive, SectionAI, SectionVR, SectionMotor, SectionAudio, SectionMetadata}
}

// Defaults returns a fully populated default document stamped with now.
func Defaults(now time.Time) Document {
	m := schema.MustLoadEmbedded().Defaults()
	m["lastModified"] = formatTime(now)

	doc, err := documentFromMap(m)
	if err != nil {
		// The embedded schema is compiled in; its defaults always decode.
		panic(fmt.Sprintf("prefs: decoding schema defaults: %v", err))
	}
	return doc
}

// Clone returns a deep copy of d.
func (d Document) Clone() Document {
	out := d
	out.Metadata = merge.Clone(d.Metadata)
	if out.Metadata == nil {
		out.Metadata = make(map[string]any)
	}
	return out
}

// Equal reports whether d and other hold the same preferences.
// lastModified is ignored.
func (d Document) Equal(other Document) bool {
	a, errA := d.toMap()
	b, errB := other.toMap()
	if errA != nil || errB != nil {
		return false
	}
	delete(a, "lastModified")
	delete(b, "lastModified")
	return merge.Equal(a, b)
}

// Section returns one section of d as a generic map, or nil if name is not
// a section.
func (d Document) Section(name string) map[string]any {
	m, err := d.toMap()
	if err != nil {
		return nil
	}
	sec, _ := m[name].(map[string]any)
	return sec
}

// ToMap returns d in its generic map form, as stored and validated.
func (d Document) ToMap() (map[string]any, error) {
	return d.toMap()
}

func (d Document) toMap() (map[string]any, error) {
	if d.Metadata == nil {
		d.Metadata = map[string]any{}
	}
	d.LastModified = d.LastModified.UTC()

	data, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("encoding document: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decoding document: %w", err)
	}
	return m, nil
}

// documentFromMap decodes a validated generic document.
func documentFromMap(m map[string]any) (Document, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return Document{}, fmt.Errorf("encoding document: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Document{}, fmt.Errorf("decoding document: %w", err)
	}
	if doc.Metadata == nil {
		doc.Metadata = make(map[string]any)
	}
	doc.LastModified = doc.LastModified.UTC()
	return doc, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
