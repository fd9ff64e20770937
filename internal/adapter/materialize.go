package adapter

import (
	"sort"
	"strings"

	"github.com/starford/ansuz/internal/frontmatter"
	"github.com/starford/ansuz/internal/identity"
	"github.com/starford/ansuz/internal/scanner"
)

// Materialize turns a remote record back into a SpecDocument. Pull must
// round-trip through Push without semantic loss for the schema's fields:
// the embedded marker becomes spec_id, the marker-free body becomes the
// canonical markdown, and the platform fields land in the github block.
func Materialize(rec *Record, opts PullOptions) *scanner.SpecDocument {
	name := opts.DirName
	if name == "" {
		name = slug(rec.Title)
	}

	meta := frontmatter.Meta{
		SpecID:     identity.Extract(rec.Body),
		SyncStatus: frontmatter.StatusSynced,
		IssueType:  string(rec.Ref.Type),
		GitHub: &frontmatter.GitHubMeta{
			IssueNumber: rec.Ref.Number(),
			Labels:      rec.Labels,
			Assignees:   rec.Assignees,
			Milestone:   rec.Milestone,
		},
	}

	body := identity.Strip(rec.Body)
	return &scanner.SpecDocument{
		Name: name,
		Files: map[string]*scanner.SpecFile{
			scanner.CanonicalFile: {
				Filename: scanner.CanonicalFile,
				Markdown: body,
				Meta:     meta,
			},
		},
	}
}

// SubtaskFiles returns the dependent markdown files of a document, in
// stable order: everything except the canonical file and contract files.
func SubtaskFiles(doc *scanner.SpecDocument) []string {
	var out []string
	for name := range doc.Files {
		if name == scanner.CanonicalFile || strings.Contains(name, "/") {
			continue
		}
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// slug derives a directory-safe name from a record title.
func slug(title string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
