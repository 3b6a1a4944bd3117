package evaluator

// Version represents the current semantic version of prompt-evaluator.
//
// It is reported by the CLI and sent in the User-Agent of hub requests.
const Version = "0.3.0"

// VersionInfo encapsulates version metadata for prompt-evaluator.
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
		Name:    "prompt-evaluator",
	}
}

// UserAgent returns the name/version pair used in HTTP requests
func (v VersionInfo) UserAgent() string {
	return v.Name + "/" + v.Version
}
