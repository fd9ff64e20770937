// Package identity manages the durable UUID that correlates a local spec
// document with exactly one remote record, independent of any
// platform-assigned numeric id.
package identity

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// Markers are hidden HTML comments embedded at the top of a remote record's
// body. They survive platform round-trips without rendering.
const (
	markerPrefix = "<!-- spec-id: "
	markerSuffix = " -->"
)

var (
	// Strict UUID v4: version nibble 4, variant nibble in {8,9,a,b}.
	v4Re = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-4[0-9a-fA-F]{3}-[89abAB][0-9a-fA-F]{3}-[0-9a-fA-F]{12}$`)

	markerRe = regexp.MustCompile(`<!--\s*spec-id:\s*([0-9a-fA-F-]{36})\s*-->`)
)

// Generate returns a new version-4 UUID string.
func Generate() string {
	return uuid.NewString()
}

// IsValid reports whether s is a well-formed version-4 UUID,
// case-insensitively.
func IsValid(s string) bool {
	return v4Re.MatchString(s)
}

// Embed inserts the marker for id at the start of body, replacing any prior
// marker. The result always contains exactly one marker.
func Embed(body, id string) string {
	stripped := Strip(body)
	marker := markerPrefix + id + markerSuffix
	if stripped == "" {
		return marker
	}
	return marker + "\n\n" + stripped
}

// Extract returns the first well-formed embedded UUID in body, or "".
func Extract(body string) string {
	for _, m := range markerRe.FindAllStringSubmatch(body, -1) {
		if IsValid(m[1]) {
			return m[1]
		}
	}
	return ""
}

// Strip removes all embedded markers from body and trims the whitespace the
// removal leaves behind.
func Strip(body string) string {
	if !strings.Contains(body, "spec-id") {
		return strings.TrimSpace(body)
	}
	out := markerRe.ReplaceAllString(body, "")
	// Collapse runs of blank lines left by removed markers.
	for strings.Contains(out, "\n\n\n") {
		out = strings.ReplaceAll(out, "\n\n\n", "\n\n")
	}
	return strings.TrimSpace(out)
}
