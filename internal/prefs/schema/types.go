package schema

// Common type constants for JSON Schema.
const (
	TypeNameString  = "string"
	TypeNameNumber  = "number"
	TypeNameInteger = "integer"
	TypeNameBoolean = "boolean"
	TypeNameArray   = "array"
	TypeNameObject  = "object"
	TypeNameNull    = "null"
)

// Supported format constants.
const (
	FormatDateTime = "date-time"
	FormatSemver   = "semver"
)
