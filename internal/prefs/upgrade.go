package prefs

import (
	"time"

	"github.com/dshills/prefstore/internal/prefs/merge"
	"github.com/dshills/prefstore/internal/prefs/schema"
)

// upgradeResult describes how a stored document was brought up to date.
type upgradeResult struct {
	doc       map[string]any
	steps     []MigrationResult
	preserved []string
	// changed is true when doc differs from what was stored.
	changed bool
}

// upgrade turns a stored document into a complete current one: migrate,
// preserve unknown fields, fill defaults, stamp a missing lastModified and
// validate. raw is consumed.
func upgrade(raw map[string]any, reg *Registry, v *schema.Validator, now time.Time) (upgradeResult, error) {
	original := merge.Clone(raw)

	migrated, steps, err := reg.Apply(raw)
	if err != nil {
		return upgradeResult{}, err
	}
	preserved := preserveUnknown(migrated, v.Schema())

	full := merge.DeepMerge(v.Schema().Defaults(), migrated)
	if lm, ok := full["lastModified"]; !ok || lm == nil {
		full["lastModified"] = formatTime(now)
	}

	if verr := newValidationError(v.Validate(full)); verr != nil {
		return upgradeResult{}, verr
	}

	return upgradeResult{
		doc:       full,
		steps:     steps,
		preserved: preserved,
		changed:   !merge.Equal(original, full),
	}, nil
}
