// Package adapter defines the platform-neutral contract between the sync
// engine and a remote issue-tracking platform, plus the identity-resolution
// protocol every concrete adapter must honor.
package adapter

import (
	"context"
	"strconv"

	"github.com/starford/ansuz/internal/scanner"
)

// RecordType distinguishes a specification's record from its sub-records.
type RecordType string

const (
	RecordParent  RecordType = "parent"
	RecordSubtask RecordType = "subtask"
)

// RemoteRef is a platform-neutral handle to a remote record.
type RemoteRef struct {
	ID   string     `json:"id"` // platform-native identifier
	Type RecordType `json:"type"`
	URL  string     `json:"url,omitempty"`
}

// Number returns the ref's id as an integer, or 0 when it is not numeric.
func (r RemoteRef) Number() int {
	n, err := strconv.Atoi(r.ID)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// State is the derived sync state of a document.
type State string

const (
	StateUnknown  State = "unknown"
	StateDraft    State = "draft"
	StateSynced   State = "synced"
	StateConflict State = "conflict"
)

// SyncStatus is the derived status of one document. It is never stored
// directly; only its summarized fields persist via frontmatter.
type SyncStatus struct {
	State      State      `json:"state"`
	HasChanges bool       `json:"has_changes"`
	Remote     *RemoteRef `json:"remote,omitempty"`
	LastSync   string     `json:"last_sync,omitempty"`
	Conflicts  []string   `json:"conflicts,omitempty"`
}

// Record is a snapshot of a remote record's fields relevant to sync.
type Record struct {
	Ref       RemoteRef
	Title     string
	Body      string // includes the embedded identity marker, if any
	Labels    []string
	Assignees []string
	Milestone string
	State     string // "open" or "closed"
}

// Capabilities describes what a concrete adapter supports, so the engine can
// branch on optional behavior without inspecting types.
type Capabilities struct {
	Name        string `json:"name"`
	Batch       bool   `json:"batch"`
	Subtasks    bool   `json:"subtasks"`
	Comments    bool   `json:"comments"`
	CloseReopen bool   `json:"close_reopen"`
}

// Strategy selects how a conflict is resolved.
type Strategy string

const (
	StrategyOurs        Strategy = "ours"
	StrategyTheirs      Strategy = "theirs"
	StrategyManual      Strategy = "manual"
	StrategyInteractive Strategy = "interactive"
)

// PushOptions controls push behavior.
type PushOptions struct {
	// Force authorizes overriding a detected identity mismatch and pushes
	// regardless of change detection.
	Force bool
	// Labels and Assignees are applied in addition to the document's own
	// frontmatter values.
	Labels    []string
	Assignees []string
}

// PullOptions controls pull behavior.
type PullOptions struct {
	// DirName names the directory of the materialized document. When empty
	// the adapter derives one from the record title.
	DirName string
}

// BatchItem is the per-document outcome of a batch push.
type BatchItem struct {
	Name string
	Ref  RemoteRef
	Err  error
}

// Adapter is the capability-described client for one remote platform.
// Optional operations return apperr.ErrNotSupported when the corresponding
// Capabilities field is false.
//
// Push is idempotent create-or-update keyed by identity: it never creates a
// duplicate record for a document whose canonical identity already resolves
// to one, unless opts.Force authorizes an override after a detected
// mismatch. GetStatus is read-only and mutates nothing on either side.
type Adapter interface {
	Capabilities() Capabilities

	Push(ctx context.Context, doc *scanner.SpecDocument, opts PushOptions) (RemoteRef, error)
	Pull(ctx context.Context, ref RemoteRef, opts PullOptions) (*scanner.SpecDocument, error)
	GetStatus(ctx context.Context, doc *scanner.SpecDocument) (*SyncStatus, error)
	ResolveConflict(ctx context.Context, doc *scanner.SpecDocument, strategy Strategy, opts PushOptions) (RemoteRef, error)

	// Optional, advertised via Capabilities.
	PushBatch(ctx context.Context, docs []*scanner.SpecDocument, opts PushOptions) ([]BatchItem, error)
	PushSubtasks(ctx context.Context, doc *scanner.SpecDocument, parent RemoteRef) ([]RemoteRef, error)
	Comment(ctx context.Context, ref RemoteRef, body string) error
	Close(ctx context.Context, ref RemoteRef) error
	Reopen(ctx context.Context, ref RemoteRef) error
}
