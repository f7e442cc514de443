package prefs

import (
	"encoding/json"
	"fmt"

	"github.com/dshills/prefstore/internal/prefs/merge"
)

// Ptr returns a pointer to v. It is a convenience for building patches.
func Ptr[T any](v T) *T {
	return &v
}

// SensoryPatch is a partial Sensory section. Nil fields are left unchanged.
type SensoryPatch struct {
	MotionReduction   *bool              `json:"motionReduction,omitempty" yaml:"motionReduction,omitempty"`
	HighContrast      *bool              `json:"highContrast,omitempty" yaml:"highContrast,omitempty"`
	ColorVisionFilter *ColorVisionFilter `json:"colorVisionFilter,omitempty" yaml:"colorVisionFilter,omitempty"`
	FontSize          *float64           `json:"fontSize,omitempty" yaml:"fontSize,omitempty"`
	ReducedFlashing   *bool              `json:"reducedFlashing,omitempty" yaml:"reducedFlashing,omitempty"`
	DarkMode          *bool              `json:"darkMode,omitempty" yaml:"darkMode,omitempty"`
}

// CognitivePatch is a partial Cognitive section.
type CognitivePatch struct {
	ReadingSpeed       *ReadingSpeed     `json:"readingSpeed,omitempty" yaml:"readingSpeed,omitempty"`
	ExplanationLevel   *ExplanationLevel `json:"explanationLevel,omitempty" yaml:"explanationLevel,omitempty"`
	ProcessingPace     *ProcessingPace   `json:"processingPace,omitempty" yaml:"processingPace,omitempty"`
	ChunkSize          *int              `json:"chunkSize,omitempty" yaml:"chunkSize,omitempty"`
	AllowInterruptions *bool             `json:"allowInterruptions,omitempty" yaml:"allowInterruptions,omitempty"`
	PreferVisualCues   *bool             `json:"preferVisualCues,omitempty" yaml:"preferVisualCues,omitempty"`
}

// AIPatch is a partial AI section.
type AIPatch struct {
	Tone             *Tone             `json:"tone,omitempty" yaml:"tone,omitempty"`
	ResponseLength   *ResponseLength   `json:"responseLength,omitempty" yaml:"responseLength,omitempty"`
	SimplifyLanguage *bool             `json:"simplifyLanguage,omitempty" yaml:"simplifyLanguage,omitempty"`
	ConsistencyLevel *ConsistencyLevel `json:"consistencyLevel,omitempty" yaml:"consistencyLevel,omitempty"`
	UseAnalogies     *bool             `json:"useAnalogies,omitempty" yaml:"useAnalogies,omitempty"`
	AllowUndo        *bool             `json:"allowUndo,omitempty" yaml:"allowUndo,omitempty"`
}

// VRPatch is a partial VR section.
type VRPatch struct {
	ComfortRadius      *float64        `json:"comfortRadius,omitempty" yaml:"comfortRadius,omitempty"`
	SafeSpaceEnabled   *bool           `json:"safeSpaceEnabled,omitempty" yaml:"safeSpaceEnabled,omitempty"`
	LocomotionType     *LocomotionType `json:"locomotionType,omitempty" yaml:"locomotionType,omitempty"`
	PersonalSpace      *float64        `json:"personalSpace,omitempty" yaml:"personalSpace,omitempty"`
	PanicButtonEnabled *bool           `json:"panicButtonEnabled,omitempty" yaml:"panicButtonEnabled,omitempty"`
}

// MotorPatch is a partial Motor section.
type MotorPatch struct {
	KeyboardNavigation *bool    `json:"keyboardNavigation,omitempty" yaml:"keyboardNavigation,omitempty"`
	TargetSizeIncrease *float64 `json:"targetSizeIncrease,omitempty" yaml:"targetSizeIncrease,omitempty"`
	DwellTime          *int     `json:"dwellTime,omitempty" yaml:"dwellTime,omitempty"`
	StickyKeys         *bool    `json:"stickyKeys,omitempty" yaml:"stickyKeys,omitempty"`
}

// AudioPatch is a partial Audio section.
type AudioPatch struct {
	Volume            *float64 `json:"volume,omitempty" yaml:"volume,omitempty"`
	Captions          *bool    `json:"captions,omitempty" yaml:"captions,omitempty"`
	AudioDescriptions *bool    `json:"audioDescriptions,omitempty" yaml:"audioDescriptions,omitempty"`
	MonoAudio         *bool    `json:"monoAudio,omitempty" yaml:"monoAudio,omitempty"`
}

// Patch is a partial update. A nil section or field means "absent"; a
// non-nil pointer carries the new value even when it is the zero value.
// Metadata is deep-merged into the document's metadata.
type Patch struct {
	Sensory   *SensoryPatch   `json:"sensory,omitempty" yaml:"sensory,omitempty"`
	Cognitive *CognitivePatch `json:"cognitive,omitempty" yaml:"cognitive,omitempty"`
	AI        *AIPatch        `json:"ai,omitempty" yaml:"ai,omitempty"`
	VR        *VRPatch        `json:"vr,omitempty" yaml:"vr,omitempty"`
	Motor     *MotorPatch     `json:"motor,omitempty" yaml:"motor,omitempty"`
	Audio     *AudioPatch     `json:"audio,omitempty" yaml:"audio,omitempty"`
	Metadata  map[string]any  `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// IsEmpty reports whether p changes nothing.
func (p Patch) IsEmpty() bool {
	m, err := p.ToMap()
	return err == nil && len(m) == 0
}

// numbers returns the present floating-point fields of p by path.
func (p Patch) numbers() map[string]*float64 {
	out := map[string]*float64{}
	if p.Sensory != nil {
		out["sensory.fontSize"] = p.Sensory.FontSize
	}
	if p.VR != nil {
		out["vr.comfortRadius"] = p.VR.ComfortRadius
		out["vr.personalSpace"] = p.VR.PersonalSpace
	}
	if p.Motor != nil {
		out["motor.targetSizeIncrease"] = p.Motor.TargetSizeIncrease
	}
	if p.Audio != nil {
		out["audio.volume"] = p.Audio.Volume
	}
	for path, v := range out {
		if v == nil {
			delete(out, path)
		}
	}
	return out
}

// ToMap returns the fields present in p as a nested map.
func (p Patch) ToMap() (map[string]any, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encoding patch: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decoding patch: %w", err)
	}
	return m, nil
}

// PatchFromMap decodes a nested map into a Patch. Keys that are not
// document fields are ignored; callers validate the map first.
func PatchFromMap(m map[string]any) (Patch, error) {
	var p Patch
	if len(m) == 0 {
		return p, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return p, fmt.Errorf("encoding patch: %w", err)
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("decoding patch: %w", err)
	}
	return p, nil
}

// Clone returns a deep copy of p.
func (p Patch) Clone() Patch {
	out := Patch{Metadata: merge.Clone(p.Metadata)}
	if p.Sensory != nil {
		s := *p.Sensory
		out.Sensory = &s
	}
	if p.Cognitive != nil {
		c := *p.Cognitive
		out.Cognitive = &c
	}
	if p.AI != nil {
		a := *p.AI
		out.AI = &a
	}
	if p.VR != nil {
		v := *p.VR
		out.VR = &v
	}
	if p.Motor != nil {
		m := *p.Motor
		out.Motor = &m
	}
	if p.Audio != nil {
		a := *p.Audio
		out.Audio = &a
	}
	return out
}

// Merge applies p to a copy of base, field by field, and returns the
// candidate. Neither argument is modified.
func Merge(base Document, p Patch) Document {
	out := base.Clone()

	if s := p.Sensory; s != nil {
		assign(&out.Sensory.MotionReduction, s.MotionReduction)
		assign(&out.Sensory.HighContrast, s.HighContrast)
		assign(&out.Sensory.ColorVisionFilter, s.ColorVisionFilter)
		assign(&out.Sensory.FontSize, s.FontSize)
		assign(&out.Sensory.ReducedFlashing, s.ReducedFlashing)
		assign(&out.Sensory.DarkMode, s.DarkMode)
	}
	if c := p.Cognitive; c != nil {
		assign(&out.Cognitive.ReadingSpeed, c.ReadingSpeed)
		assign(&out.Cognitive.ExplanationLevel, c.ExplanationLevel)
		assign(&out.Cognitive.ProcessingPace, c.ProcessingPace)
		assign(&out.Cognitive.ChunkSize, c.ChunkSize)
		assign(&out.Cognitive.AllowInterruptions, c.AllowInterruptions)
		assign(&out.Cognitive.PreferVisualCues, c.PreferVisualCues)
	}
	if a := p.AI; a != nil {
		assign(&out.AI.Tone, a.Tone)
		assign(&out.AI.ResponseLength, a.ResponseLength)
		assign(&out.AI.SimplifyLanguage, a.SimplifyLanguage)
		assign(&out.AI.ConsistencyLevel, a.ConsistencyLevel)
		assign(&out.AI.UseAnalogies, a.UseAnalogies)
		assign(&out.AI.AllowUndo, a.AllowUndo)
	}
	if v := p.VR; v != nil {
		assign(&out.VR.ComfortRadius, v.ComfortRadius)
		assign(&out.VR.SafeSpaceEnabled, v.SafeSpaceEnabled)
		assign(&out.VR.LocomotionType, v.LocomotionType)
		assign(&out.VR.PersonalSpace, v.PersonalSpace)
		assign(&out.VR.PanicButtonEnabled, v.PanicButtonEnabled)
	}
	if m := p.Motor; m != nil {
		assign(&out.Motor.KeyboardNavigation, m.KeyboardNavigation)
		assign(&out.Motor.TargetSizeIncrease, m.TargetSizeIncrease)
		assign(&out.Motor.DwellTime, m.DwellTime)
		assign(&out.Motor.StickyKeys, m.StickyKeys)
	}
	if a := p.Audio; a != nil {
		assign(&out.Audio.Volume, a.Volume)
		assign(&out.Audio.Captions, a.Captions)
		assign(&out.Audio.AudioDescriptions, a.AudioDescriptions)
		assign(&out.Audio.MonoAudio, a.MonoAudio)
	}
	if len(p.Metadata) > 0 {
		out.Metadata = merge.DeepMerge(out.Metadata, p.Metadata)
	}

	return out
}

func assign[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}
