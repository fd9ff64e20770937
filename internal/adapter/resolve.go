package adapter

import (
	"context"
	"fmt"
	"strings"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/identity"
	"github.com/starford/ansuz/internal/scanner"
)

// RecordSource is the minimal lookup surface an adapter exposes to the
// identity-resolution protocol. Both methods return (nil, nil) when no
// record matches.
type RecordSource interface {
	// FindByUUID locates the record whose body embeds the given identity.
	FindByUUID(ctx context.Context, specID string) (*Record, error)
	// GetByNumber fetches a record by its platform-native numeric id.
	GetByNumber(ctx context.Context, number int) (*Record, error)
}

// Resolve binds a local document identity to at most one remote record.
//
// The embedded UUID is authoritative: a record found by UUID wins regardless
// of the stored numeric id, because numeric ids are not portable across
// forks and can be reused. The numeric id is only a fast-path and legacy
// fallback. When both identifiers are present, the UUID search found
// nothing, and the record fetched by number embeds a different UUID, that
// is a hard conflict unless force is set.
func Resolve(ctx context.Context, src RecordSource, specID string, number int, force bool) (*Record, error) {
	if specID != "" {
		rec, err := src.FindByUUID(ctx, specID)
		if err != nil {
			return nil, err
		}
		if rec != nil {
			return rec, nil
		}
	}

	if number <= 0 {
		return nil, nil
	}
	rec, err := src.GetByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, nil
	}

	if specID != "" {
		if embedded := identity.Extract(rec.Body); embedded != "" && !strings.EqualFold(embedded, specID) && !force {
			return nil, &apperr.IdentityMismatchError{
				LocalID:  specID,
				RemoteID: embedded,
				Number:   number,
			}
		}
	}
	return rec, nil
}

// Status implements the read-only status check shared by adapters: resolve
// the document's identity through src, then classify. An identity mismatch
// is reported as a conflict status rather than an error, since a status
// check must not fail on a reportable condition.
func Status(ctx context.Context, src RecordSource, doc *scanner.SpecDocument) (*SyncStatus, error) {
	c := doc.Canonical()
	if c == nil {
		return &SyncStatus{State: StateUnknown, HasChanges: true}, nil
	}

	rec, err := Resolve(ctx, src, c.Meta.SpecID, IssueNumber(c), false)
	if err != nil {
		if mm, ok := err.(*apperr.IdentityMismatchError); ok {
			return &SyncStatus{
				State:      StateConflict,
				HasChanges: true,
				Conflicts:  []string{mm.Error()},
			}, nil
		}
		return nil, err
	}
	return Classify(doc, rec), nil
}

// ApplyStrategy implements conflict resolution shared by adapters: "ours"
// re-pushes local content with force, "theirs" binds to the remote record
// without pushing, "manual" fails reportably, and "interactive" is an
// explicit not-implemented outcome.
func ApplyStrategy(ctx context.Context, a Adapter, src RecordSource, doc *scanner.SpecDocument, strategy Strategy, opts PushOptions) (RemoteRef, error) {
	switch strategy {
	case StrategyOurs:
		opts.Force = true
		return a.Push(ctx, doc, opts)
	case StrategyTheirs:
		c := doc.Canonical()
		if c == nil {
			return RemoteRef{}, fmt.Errorf("adapter: %s has no canonical file", doc.Name)
		}
		rec, err := Resolve(ctx, src, c.Meta.SpecID, IssueNumber(c), true)
		if err != nil {
			return RemoteRef{}, err
		}
		if rec == nil {
			return RemoteRef{}, fmt.Errorf("adapter: no remote record for %s: %w", doc.Name, apperr.ErrNotFound)
		}
		return rec.Ref, nil
	case StrategyInteractive:
		return RemoteRef{}, fmt.Errorf("adapter: interactive resolution: %w", apperr.ErrNotSupported)
	default:
		return RemoteRef{}, fmt.Errorf("adapter: conflict requires an explicit strategy: %w", apperr.ErrConflict)
	}
}

// IssueNumber returns the platform-stored issue number of a file, 0 when
// absent.
func IssueNumber(f *scanner.SpecFile) int {
	if f.Meta.GitHub == nil {
		return 0
	}
	return f.Meta.GitHub.IssueNumber
}

// Classify derives the SyncStatus of a document given its resolved remote
// record (nil when none was found).
//
// A document that has diverged without any prior last_sync is conservatively
// a conflict: there is no baseline to diff against. A sync_hash that matches
// while last_sync is absent violates the update-together invariant and is
// treated the same way.
func Classify(doc *scanner.SpecDocument, rec *Record) *SyncStatus {
	c := doc.Canonical()
	if c == nil {
		return &SyncStatus{State: StateUnknown, HasChanges: true}
	}

	if rec == nil {
		return &SyncStatus{State: StateDraft, HasChanges: true}
	}

	st := &SyncStatus{
		Remote:   &rec.Ref,
		LastSync: c.Meta.LastSync,
	}
	changed := c.HasChanged()
	_, hasBaseline := c.Meta.LastSyncTime()

	switch {
	case !changed && hasBaseline:
		st.State = StateSynced
	case changed && hasBaseline:
		st.State = StateDraft
		st.HasChanges = true
	default:
		st.State = StateConflict
		st.HasChanges = true
		st.Conflicts = append(st.Conflicts,
			"local content diverged with no sync baseline to compare against")
	}
	return st
}

// BuildRecord projects a document into the record pushed to the remote
// platform. The body is the canonical markdown with the identity marker
// embedded; the title is the first H1 heading, falling back to the
// directory name.
func BuildRecord(doc *scanner.SpecDocument, opts PushOptions) *Record {
	c := doc.Canonical()

	recType := RecordParent
	if c.Meta.IssueType == "subtask" {
		recType = RecordSubtask
	}

	labels := mergeUnique(ghLabels(c), opts.Labels)
	assignees := mergeUnique(ghAssignees(c), opts.Assignees)

	return &Record{
		Ref:       RemoteRef{Type: recType},
		Title:     deriveTitle(c.Markdown, doc.Name),
		Body:      identity.Embed(c.Markdown, c.Meta.SpecID),
		Labels:    labels,
		Assignees: assignees,
		Milestone: ghMilestone(c),
		State:     "open",
	}
}

func ghLabels(f *scanner.SpecFile) []string {
	if f.Meta.GitHub == nil {
		return nil
	}
	return f.Meta.GitHub.Labels
}

func ghAssignees(f *scanner.SpecFile) []string {
	if f.Meta.GitHub == nil {
		return nil
	}
	return f.Meta.GitHub.Assignees
}

func ghMilestone(f *scanner.SpecFile) string {
	if f.Meta.GitHub == nil {
		return ""
	}
	return f.Meta.GitHub.Milestone
}

// deriveTitle returns the first H1 heading, otherwise fallback.
func deriveTitle(markdown, fallback string) string {
	for _, line := range strings.Split(markdown, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(trimmed[2:])
		}
	}
	return fallback
}

func mergeUnique(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	var out []string
	for _, s := range append(append([]string{}, a...), b...) {
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
