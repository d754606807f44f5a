package ir

// Version constants for the key schema and tool.
const (
	// IRVersion is the key digest schema version. Bump when the canonical
	// form of an arc or selection changes.
	IRVersion = "1"

	// ToolVersion is the instkey version.
	ToolVersion = "0.1.0"
)
