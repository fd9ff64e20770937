// Package frontmatter encodes and decodes the YAML metadata block carried at
// the top of spec markdown files, and validates it against the fixed schema.
package frontmatter

import (
	"regexp"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/ansuz/internal/apperr"
)

// Sync statuses.
const (
	StatusDraft    = "draft"
	StatusSynced   = "synced"
	StatusConflict = "conflict"
)

// Issue types.
const (
	TypeParent  = "parent"
	TypeSubtask = "subtask"
)

var syncHashRe = regexp.MustCompile(`^[0-9a-f]{12}$`)

// Meta is the structured frontmatter record of a spec file. Only the
// canonical file (spec.md) carries identity and sync-state fields.
//
// SpecID, once valid, is immutable for the life of the document. SyncHash
// and LastSync are only updated together, atomically with a successful
// push or pull.
type Meta struct {
	SpecID     string      `yaml:"spec_id,omitempty" json:"spec_id,omitempty"`
	SyncStatus string      `yaml:"sync_status,omitempty" json:"sync_status,omitempty"`
	IssueType  string      `yaml:"issue_type,omitempty" json:"issue_type,omitempty"`
	AutoSync   bool        `yaml:"auto_sync,omitempty" json:"auto_sync,omitempty"`
	LastSync   string      `yaml:"last_sync,omitempty" json:"last_sync,omitempty"`
	SyncHash   string      `yaml:"sync_hash,omitempty" json:"sync_hash,omitempty"`
	GitHub     *GitHubMeta `yaml:"github,omitempty" json:"github,omitempty"`

	// Extra preserves fields outside the fixed schema opaquely across a
	// decode/encode round-trip.
	Extra map[string]any `yaml:",inline" json:"-"`
}

// GitHubMeta is the GitHub-shaped platform sub-record.
type GitHubMeta struct {
	IssueNumber int      `yaml:"issue_number,omitempty" json:"issue_number,omitempty"`
	ParentIssue int      `yaml:"parent_issue,omitempty" json:"parent_issue,omitempty"`
	Labels      []string `yaml:"labels,omitempty" json:"labels,omitempty"`
	Assignees   []string `yaml:"assignees,omitempty" json:"assignees,omitempty"`
	Milestone   string   `yaml:"milestone,omitempty" json:"milestone,omitempty"`
}

// IsZero reports whether the record carries no schema fields at all.
// Extra-only records are not zero: they still need a block on encode.
func (m Meta) IsZero() bool {
	return m.SpecID == "" && m.SyncStatus == "" && m.IssueType == "" &&
		!m.AutoSync && m.LastSync == "" && m.SyncHash == "" &&
		m.GitHub == nil && len(m.Extra) == 0
}

// LastSyncTime parses the last_sync timestamp. ok is false when the field is
// absent or unparseable.
func (m Meta) LastSyncTime() (t time.Time, ok bool) {
	if m.LastSync == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, m.LastSync)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Validate checks the record against the fixed schema. It returns a
// *apperr.FrontmatterError naming every offending field.
//
// spec_id format is deliberately not checked here: a malformed id is the
// scanner's signal to regenerate, not a schema violation.
func (m Meta) Validate() error {
	err := validation.ValidateStruct(&m,
		validation.Field(&m.SyncStatus, validation.In(StatusDraft, StatusSynced, StatusConflict)),
		validation.Field(&m.IssueType, validation.In(TypeParent, TypeSubtask)),
		validation.Field(&m.SyncHash, validation.Match(syncHashRe)),
		validation.Field(&m.LastSync, validation.Date(time.RFC3339)),
		validation.Field(&m.GitHub),
	)
	if err == nil {
		return nil
	}

	fields := make(map[string]string)
	if verrs, ok := err.(validation.Errors); ok {
		for name, ferr := range verrs {
			fields[name] = ferr.Error()
		}
	} else {
		fields["frontmatter"] = err.Error()
	}
	return &apperr.FrontmatterError{Fields: fields}
}

// Validate checks the platform sub-record.
func (g GitHubMeta) Validate() error {
	return validation.ValidateStruct(&g,
		validation.Field(&g.IssueNumber, validation.Min(0)),
		validation.Field(&g.ParentIssue, validation.Min(0)),
	)
}
