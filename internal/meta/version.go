package meta

// Version is the release of the protocol server, reported to clients by the VERSION command.
const Version = "1.0.0"

// VersionSHA is a build-time injected variable describing the Git commit SHA at which mtastsd was
// built.
var VersionSHA string

// VersionString is the full version identifier: the release, followed by the commit SHA when
// known.
func VersionString() string {
	if VersionSHA == "" {
		return "mtastsd/" + Version
	}

	return "mtastsd/" + Version + "+" + VersionSHA
}
