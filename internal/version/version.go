package version

// Build information, overridden at link time via -ldflags "-X".
var (
	Version = "v0.1.0"
	Commit  = "unknown"
	BuiltAt = "unknown"
)

// UserAgent is sent on every backend and voice request.
func UserAgent() string {
	return "rizztempo-core/" + Version
}

// FullInfo returns complete build information.
func FullInfo() string {
	return "version=" + Version + " commit=" + Commit + " built_at=" + BuiltAt
}
