// Package batchscorer provides version information for the batch scoring server.
//
// The version follows semantic versioning and is reported by the CLI and in
// the startup log line.
package batchscorer

// Version represents the current semantic version of the batch scoring server.
const Version = "0.1.0"

// VersionInfo encapsulates version metadata.
type VersionInfo struct {
	// Version contains the semantic version string following semver format
	Version string

	// Name contains the canonical program name
	Name string
}

// GetVersion returns structured version information.
//
// Usage:
//
//	info := GetVersion()
//	slog.Info("starting", "name", info.Name, "version", info.Version)
func GetVersion() VersionInfo {
	return VersionInfo{
		Version: Version,
		Name:    "batch-scorer",
	}
}
