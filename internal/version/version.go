package version

// Version information set via ldflags during build
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// FullVersion returns a formatted version string for the named binary
func FullVersion(name string) string {
	if Version == "dev" {
		return name + " development build"
	}
	return name + " " + Version + " (commit: " + GitCommit + ", built: " + BuildDate + ")"
}
