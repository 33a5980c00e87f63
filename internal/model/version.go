package model

// Version constants for the schema and the binary.
const (
	// SchemaVersion is the relational schema version recorded in PRAGMA user_version.
	SchemaVersion = 2

	// Version is the shelfwise release version.
	Version = "0.3.0"
)
