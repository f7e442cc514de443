package prefs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMerge_IsPure(t *testing.T) {
	base := Defaults(epoch)
	base.Metadata["source"] = "web"
	p := Patch{
		Sensory:  &SensoryPatch{FontSize: Ptr(2.0)},
		Metadata: map[string]any{"device": "headset"},
	}

	out := Merge(base, p)

	assert.Equal(t, 2.0, out.Sensory.FontSize)
	assert.Equal(t, "web", out.Metadata["source"])
	assert.Equal(t, "headset", out.Metadata["device"])

	assert.Equal(t, 1.0, base.Sensory.FontSize)
	assert.NotContains(t, base.Metadata, "device")
}

func TestMerge_OnlyPresentFields(t *testing.T) {
	base := Defaults(epoch)
	out := Merge(base, Patch{VR: &VRPatch{SafeSpaceEnabled: Ptr(false)}})

	assert.False(t, out.VR.SafeSpaceEnabled)
	assert.Equal(t, base.VR.ComfortRadius, out.VR.ComfortRadius)
	assert.Equal(t, base.Sensory, out.Sensory)
	assert.Equal(t, base.Audio, out.Audio)
}

func TestPatch_ToMapAndBack(t *testing.T) {
	p := Patch{
		Cognitive: &CognitivePatch{ChunkSize: Ptr(3), AllowInterruptions: Ptr(false)},
		AI:        &AIPatch{Tone: Ptr(ToneCasual)},
	}

	m, err := p.ToMap()
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"cognitive": map[string]any{"chunkSize": float64(3), "allowInterruptions": false},
		"ai":        map[string]any{"tone": "casual"},
	}, m)

	back, err := PatchFromMap(m)
	require.NoError(t, err)
	assert.Equal(t, p, back)
}

func TestPatch_IsEmpty(t *testing.T) {
	assert.True(t, Patch{}.IsEmpty())
	assert.True(t, Patch{Metadata: map[string]any{}}.IsEmpty())
	assert.False(t, Patch{Motor: &MotorPatch{StickyKeys: Ptr(false)}}.IsEmpty())
	assert.False(t, Patch{Metadata: map[string]any{"k": "v"}}.IsEmpty())
}

func TestPatch_CloneIsDeep(t *testing.T) {
	p := Patch{
		Audio:    &AudioPatch{Volume: Ptr(0.5)},
		Metadata: map[string]any{"nested": map[string]any{"a": 1}},
	}
	c := p.Clone()

	*c.Audio.Volume = 0.1
	c.Audio.Captions = Ptr(true)
	c.Metadata["nested"].(map[string]any)["a"] = 2

	assert.Nil(t, p.Audio.Captions)
	assert.Equal(t, 1, p.Metadata["nested"].(map[string]any)["a"])
	assert.NotSame(t, p.Audio, c.Audio)
}

func TestDocument_EqualIgnoresLastModified(t *testing.T) {
	a := Defaults(epoch)
	b := Defaults(epoch.AddDate(1, 0, 0))
	assert.True(t, a.Equal(b))

	b.Motor.KeyboardNavigation = true
	assert.False(t, a.Equal(b))
}

func TestDocument_Section(t *testing.T) {
	d := Defaults(epoch)

	ai := d.Section(SectionAI)
	require.NotNil(t, ai)
	assert.Equal(t, "friendly", ai["tone"])
	assert.Nil(t, d.Section("lastModified"))
	assert.Nil(t, d.Section("haptics"))
}

func TestDocument_ToMapFormatsTime(t *testing.T) {
	m, err := Defaults(epoch).ToMap()
	require.NoError(t, err)
	assert.Equal(t, "2026-10-18T09:00:00Z", m["lastModified"])
	assert.Equal(t, map[string]any{}, m["metadata"])
}
