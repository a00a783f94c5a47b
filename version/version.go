package version

var (
	// GitCommit is the current HEAD set using ldflags.
	GitCommit string

	// Version is the built softwares version.
	Version = CoinnodeSemVer
)

func init() {
	if GitCommit != "" {
		Version += "-" + GitCommit
	}
}

const (
	// CoinnodeSemVer is the current version of coinnode.
	// It's the Semantic Version of the software.
	CoinnodeSemVer = "0.1.0"
)
