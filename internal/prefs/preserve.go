package prefs

import (
	"github.com/dshills/prefstore/internal/prefs/merge"
	"github.com/dshills/prefstore/internal/prefs/schema"
)

// MetadataPreserved is the metadata key unknown at-rest fields are kept under.
const MetadataPreserved = "preserved"

// preserveUnknown moves every field the schema does not declare, at the top
// level or inside a closed section, into metadata.preserved keyed by its dot
// path. doc is modified in place. It returns the preserved paths in sorted
// order.
//
// If metadata is present but not an object nothing is moved; validation
// reports the problem.
func preserveUnknown(doc map[string]any, sch *schema.Schema) []string {
	if sch == nil {
		return nil
	}

	var metadata map[string]any
	switch m := doc[SectionMetadata].(type) {
	case nil:
		metadata = make(map[string]any)
	case map[string]any:
		metadata = m
	default:
		return nil
	}

	unknown := make(map[string]any)
	for _, key := range merge.SortedKeys(doc) {
		prop := sch.Properties[key]
		if prop == nil {
			unknown[key] = doc[key]
			delete(doc, key)
			continue
		}
		section, ok := doc[key].(map[string]any)
		if !ok || prop.AllowsAdditionalProperties() {
			continue
		}
		for _, field := range merge.SortedKeys(section) {
			if _, declared := prop.Properties[field]; !declared {
				unknown[key+"."+field] = section[field]
				delete(section, field)
			}
		}
	}
	if len(unknown) == 0 {
		return nil
	}

	preserved, _ := metadata[MetadataPreserved].(map[string]any)
	if preserved == nil {
		preserved = make(map[string]any)
	}
	for path, value := range unknown {
		preserved[path] = value
	}
	metadata[MetadataPreserved] = preserved
	doc[SectionMetadata] = metadata

	return merge.SortedKeys(unknown)
}
