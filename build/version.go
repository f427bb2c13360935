package build

import (
	"fmt"
	"strings"
)

// Commit stores the current commit hash of this build, this should be set
// using the -ldflags during compilation.
var Commit string

const (
	// AppMajor defines the major version of this binary.
	AppMajor uint = 0

	// AppMinor defines the minor version of this binary.
	AppMinor uint = 1

	// AppPatch defines the application patch for this binary.
	AppPatch uint = 0

	// AppPreRelease MUST only contain characters from the semantic
	// versioning alphabet per the semantic versioning spec. It must not
	// contain leading hyphens or any other separators.
	AppPreRelease = "beta"

	// semanticAlphabet is the set of characters that are permitted in the
	// AppPreRelease string.
	semanticAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz-"
)

// Version returns the application version as a properly formed string per the
// semantic versioning 2.0.0 spec (http://semver.org/).
func Version() string {
	version := fmt.Sprintf("%d.%d.%d", AppMajor, AppMinor, AppPatch)

	// Append pre-release version if there is one. The hyphen called for by
	// the semantic versioning spec is automatically appended and should not
	// be contained in the pre-release string.
	preRelease := normalizeVerString(AppPreRelease)
	if preRelease != "" {
		version = fmt.Sprintf("%s-%s", version, preRelease)
	}

	// Append commit hash of current build to version.
	if Commit != "" {
		version = fmt.Sprintf("%s commit=%s", version, Commit)
	}

	return version
}

// normalizeVerString returns the passed string stripped of all characters
// which are not valid according to the semantic versioning guidelines for
// pre-release strings. In particular they MUST only contain characters in
// the semantic alphabet.
func normalizeVerString(str string) string {
	var result strings.Builder

	for _, r := range str {
		if strings.ContainsRune(semanticAlphabet, r) {
			// Writing a rune to a string builder never returns an
			// error.
			_, _ = result.WriteRune(r)
		}
	}

	return result.String()
}
