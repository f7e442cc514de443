package prefs

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/mod/semver"

	"github.com/dshills/prefstore/internal/prefs/merge"
	"github.com/dshills/prefstore/internal/prefs/schema"
)

// CurrentVersion is the schema version documents are migrated to.
const CurrentVersion = "1.2.0"

// BaselineVersion is assumed for documents that carry no schemaVersion.
const BaselineVersion = "1.0.0"

// Version is a semantic document version.
type Version struct {
	Major int
	Minor int
	Patch int
}

// ParseVersion parses "MAJOR.MINOR.PATCH". Pre-release and build suffixes
// are not accepted.
func ParseVersion(s string) (Version, error) {
	v := "v" + s
	if !semver.IsValid(v) || strings.Count(s, ".") != 2 || semver.Prerelease(v) != "" || semver.Build(v) != "" {
		return Version{}, fmt.Errorf("invalid version %q", s)
	}

	var out Version
	if _, err := fmt.Sscanf(s, "%d.%d.%d", &out.Major, &out.Minor, &out.Patch); err != nil {
		return Version{}, fmt.Errorf("invalid version %q: %w", s, err)
	}
	return out, nil
}

// MustParseVersion is like ParseVersion but panics on error.
func MustParseVersion(s string) Version {
	v, err := ParseVersion(s)
	if err != nil {
		panic(err)
	}
	return v
}

// String returns the version as "MAJOR.MINOR.PATCH".
func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Compare returns -1 if v < other, 0 if equal, 1 if v > other.
func (v Version) Compare(other Version) int {
	return semver.Compare("v"+v.String(), "v"+other.String())
}

// Transform rewrites a document from one shape to the next. It receives a
// private deep copy and must not touch storage or the network.
type Transform func(doc map[string]any) (map[string]any, error)

// Migration moves a document from one version to the next.
type Migration struct {
	From        Version
	To          Version
	Description string
	Migrate     Transform
}

// MigrationResult records one applied step.
type MigrationResult struct {
	From        Version
	To          Version
	Description string
}

// Registry is an ordered chain of migrations ending at a current version.
type Registry struct {
	current Version
	steps   map[Version]Migration
}

// NewRegistry builds a registry. Every migration must move forward, at most
// one migration may start at a given version, and none may go past current.
func NewRegistry(current Version, migrations ...Migration) (*Registry, error) {
	r := &Registry{
		current: current,
		steps:   make(map[Version]Migration, len(migrations)),
	}

	for _, m := range migrations {
		if m.Migrate == nil {
			return nil, &MigrationConfigError{Message: fmt.Sprintf("migration %s -> %s has no transform", m.From, m.To)}
		}
		if m.To.Compare(m.From) <= 0 {
			return nil, &MigrationConfigError{Message: fmt.Sprintf("migration %s -> %s does not move forward", m.From, m.To)}
		}
		if m.To.Compare(current) > 0 {
			return nil, &MigrationConfigError{Message: fmt.Sprintf("migration %s -> %s goes past current version %s", m.From, m.To, current)}
		}
		if _, dup := r.steps[m.From]; dup {
			return nil, &MigrationConfigError{Message: fmt.Sprintf("duplicate migration from %s", m.From)}
		}
		r.steps[m.From] = m
	}

	return r, nil
}

// MustNewRegistry is like NewRegistry but panics on error.
func MustNewRegistry(current Version, migrations ...Migration) *Registry {
	r, err := NewRegistry(current, migrations...)
	if err != nil {
		panic(err)
	}
	return r
}

// Current returns the version Apply migrates to.
func (r *Registry) Current() Version {
	return r.current
}

// Migrations returns the registered migrations ordered by source version.
func (r *Registry) Migrations() []Migration {
	out := make([]Migration, 0, len(r.steps))
	for _, m := range r.steps {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].From.Compare(out[j].From) < 0
	})
	return out
}

// VersionOf returns the version stamped on doc. A document without a
// schemaVersion is treated as BaselineVersion.
func VersionOf(doc map[string]any) (Version, error) {
	raw, ok := doc["schemaVersion"]
	if !ok || raw == nil {
		return MustParseVersion(BaselineVersion), nil
	}
	s, ok := raw.(string)
	if !ok {
		return Version{}, &VersionError{Version: fmt.Sprint(raw), Err: fmt.Errorf("expected string, got %T", raw)}
	}
	v, err := ParseVersion(s)
	if err != nil {
		return Version{}, &VersionError{Version: s, Err: err}
	}
	return v, nil
}

// NeedsMigration reports whether doc is older than the current version.
func (r *Registry) NeedsMigration(doc map[string]any) (bool, error) {
	v, err := VersionOf(doc)
	if err != nil {
		return false, err
	}
	if v.Compare(r.current) > 0 {
		return false, &VersionError{Version: v.String(), Current: r.current.String()}
	}
	return v.Compare(r.current) < 0, nil
}

// Apply migrates doc to the current version. A document already at the
// current version is returned as is. Otherwise each step whose source
// matches the running version is applied to a deep copy until no step
// matches; the result must then be at the current version.
//
// The input map is never modified.
func (r *Registry) Apply(doc map[string]any) (map[string]any, []MigrationResult, error) {
	running, err := VersionOf(doc)
	if err != nil {
		var ve *VersionError
		if errors.As(err, &ve) {
			ve.Current = r.current.String()
		}
		return nil, nil, err
	}

	switch running.Compare(r.current) {
	case 0:
		return doc, nil, nil
	case 1:
		return nil, nil, &VersionError{Version: running.String(), Current: r.current.String()}
	}

	var results []MigrationResult
	out := doc
	for {
		step, ok := r.steps[running]
		if !ok {
			break
		}

		migrated, err := step.Migrate(merge.Clone(out))
		if err != nil {
			return nil, results, &MigrationConfigError{
				Reached: running.String(),
				Current: r.current.String(),
				Message: fmt.Sprintf("migrating %s -> %s: %v", step.From, step.To, err),
			}
		}
		if migrated == nil {
			migrated = make(map[string]any)
		}
		migrated["schemaVersion"] = step.To.String()

		results = append(results, MigrationResult{
			From:        step.From,
			To:          step.To,
			Description: step.Description,
		})
		out = migrated
		running = step.To
	}

	if running.Compare(r.current) != 0 {
		return nil, results, &MigrationConfigError{
			Reached: running.String(),
			Current: r.current.String(),
		}
	}
	return out, results, nil
}

// SetDefault returns a transform that sets path to value when it is absent.
// A parent that holds something other than an object is left for validation
// to report.
func SetDefault(path string, value any) Transform {
	return func(doc map[string]any) (map[string]any, error) {
		if !merge.CanSet(doc, path) {
			return doc, nil
		}
		if _, exists := merge.GetByPath(doc, path); !exists {
			merge.SetByPath(doc, path, merge.CloneValue(value))
		}
		return doc, nil
	}
}

// AddSection returns a transform that adds a section filled with defaults.
// Fields already present in the section are kept; a section that is not an
// object is left for validation to report.
func AddSection(name string, defaults map[string]any) Transform {
	return func(doc map[string]any) (map[string]any, error) {
		existing, isMap := doc[name].(map[string]any)
		if _, present := doc[name]; present && !isMap {
			return doc, nil
		}
		doc[name] = merge.DeepMerge(defaults, existing)
		return doc, nil
	}
}

// Rename returns a transform that moves the value at oldPath to newPath.
func Rename(oldPath, newPath string) Transform {
	return func(doc map[string]any) (map[string]any, error) {
		value, found := merge.GetByPath(doc, oldPath)
		if !found || !merge.CanSet(doc, newPath) {
			return doc, nil
		}
		merge.DeleteByPath(doc, oldPath)
		merge.SetByPath(doc, newPath, value)
		return doc, nil
	}
}

// Compose chains transforms into one.
func Compose(transforms ...Transform) Transform {
	return func(doc map[string]any) (map[string]any, error) {
		var err error
		for _, t := range transforms {
			if doc, err = t(doc); err != nil {
				return nil, err
			}
		}
		return doc, nil
	}
}

// MigrationSetDefault creates a migration that defaults one field.
func MigrationSetDefault(from, to Version, path string, value any, description string) Migration {
	return Migration{From: from, To: to, Description: description, Migrate: SetDefault(path, value)}
}

// MigrationAddSection creates a migration that adds a whole section.
func MigrationAddSection(from, to Version, name string, defaults map[string]any, description string) Migration {
	return Migration{From: from, To: to, Description: description, Migrate: AddSection(name, defaults)}
}

// MigrationRename creates a migration that moves a field.
func MigrationRename(from, to Version, oldPath, newPath, description string) Migration {
	return Migration{From: from, To: to, Description: description, Migrate: Rename(oldPath, newPath)}
}

// DefaultRegistry returns the built-in chain 1.0.0 -> 1.1.0 -> 1.2.0.
// Section defaults come from the embedded schema.
func DefaultRegistry() *Registry {
	defaults := schema.MustLoadEmbedded().Defaults()
	section := func(name string) map[string]any {
		m, _ := defaults[name].(map[string]any)
		return m
	}
	consistency, _ := merge.GetByPath(defaults, "ai.consistencyLevel")

	return MustNewRegistry(MustParseVersion(CurrentVersion),
		Migration{
			From:        MustParseVersion("1.0.0"),
			To:          MustParseVersion("1.1.0"),
			Description: "add ai.consistencyLevel and the vr section",
			Migrate: Compose(
				SetDefault("ai.consistencyLevel", consistency),
				AddSection(SectionVR, section(SectionVR)),
			),
		},
		Migration{
			From:        MustParseVersion("1.1.0"),
			To:          MustParseVersion("1.2.0"),
			Description: "add the motor and audio sections",
			Migrate: Compose(
				AddSection(SectionMotor, section(SectionMotor)),
				AddSection(SectionAudio, section(SectionAudio)),
			),
		},
	)
}
