// Package memory implements the full adapter contract against an in-process
// record store. It is the reference adapter: engine tests run against it,
// and it backs offline dry-runs.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/starford/ansuz/internal/adapter"
	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/identity"
	"github.com/starford/ansuz/internal/scanner"
)

// Adapter stores records in memory, keyed by a monotonically assigned
// number. Safe for concurrent use.
type Adapter struct {
	mu      sync.Mutex
	next    int
	records map[int]*adapter.Record
	parents map[int]int // subtask number -> parent number
}

var _ adapter.Adapter = (*Adapter)(nil)
var _ adapter.RecordSource = (*Adapter)(nil)

// New creates an empty in-memory adapter.
func New() *Adapter {
	return &Adapter{
		next:    1,
		records: make(map[int]*adapter.Record),
		parents: make(map[int]int),
	}
}

// Capabilities advertises full support.
func (a *Adapter) Capabilities() adapter.Capabilities {
	return adapter.Capabilities{
		Name:        "memory",
		Batch:       true,
		Subtasks:    true,
		Comments:    true,
		CloseReopen: true,
	}
}

// Seed inserts a record directly, returning its assigned ref. Test setup
// helper.
func (a *Adapter) Seed(rec adapter.Record) adapter.RemoteRef {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.insertLocked(&rec)
}

// Get returns a copy of the stored record, or nil.
func (a *Adapter) Get(number int) *adapter.Record {
	a.mu.Lock()
	defer a.mu.Unlock()
	rec, ok := a.records[number]
	if !ok {
		return nil
	}
	cp := *rec
	return &cp
}

// Len returns the number of stored records.
func (a *Adapter) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.records)
}

// FindByUUID scans record bodies for the embedded identity marker.
func (a *Adapter) FindByUUID(_ context.Context, specID string) (*adapter.Record, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, rec := range a.records {
		if strings.EqualFold(identity.Extract(rec.Body), specID) {
			cp := *rec
			return &cp, nil
		}
	}
	return nil, nil
}

// GetByNumber fetches a record by its assigned number.
func (a *Adapter) GetByNumber(_ context.Context, number int) (*adapter.Record, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	rec, ok := a.records[number]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

// Push creates or updates the record bound to doc's identity.
func (a *Adapter) Push(ctx context.Context, doc *scanner.SpecDocument, opts adapter.PushOptions) (adapter.RemoteRef, error) {
	c := doc.Canonical()
	if c == nil {
		return adapter.RemoteRef{}, fmt.Errorf("memory: %s has no canonical file", doc.Name)
	}

	existing, err := adapter.Resolve(ctx, a, c.Meta.SpecID, adapter.IssueNumber(c), opts.Force)
	if err != nil {
		return adapter.RemoteRef{}, err
	}

	rec := adapter.BuildRecord(doc, opts)

	a.mu.Lock()
	defer a.mu.Unlock()
	if existing != nil {
		n := existing.Ref.Number()
		rec.Ref = existing.Ref
		rec.Ref.Type = adapter.RecordParent
		a.records[n] = rec
		return rec.Ref, nil
	}
	return a.insertLocked(rec), nil
}

// Pull materializes a document from a stored record.
func (a *Adapter) Pull(ctx context.Context, ref adapter.RemoteRef, opts adapter.PullOptions) (*scanner.SpecDocument, error) {
	rec, err := a.GetByNumber(ctx, ref.Number())
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("memory: record %s: %w", ref.ID, apperr.ErrNotFound)
	}
	return adapter.Materialize(rec, opts), nil
}

// GetStatus resolves identity and classifies the document.
func (a *Adapter) GetStatus(ctx context.Context, doc *scanner.SpecDocument) (*adapter.SyncStatus, error) {
	return adapter.Status(ctx, a, doc)
}

// ResolveConflict applies a conflict strategy.
func (a *Adapter) ResolveConflict(ctx context.Context, doc *scanner.SpecDocument, strategy adapter.Strategy, opts adapter.PushOptions) (adapter.RemoteRef, error) {
	return adapter.ApplyStrategy(ctx, a, a, doc, strategy, opts)
}

// PushBatch pushes documents with bounded concurrency.
func (a *Adapter) PushBatch(ctx context.Context, docs []*scanner.SpecDocument, opts adapter.PushOptions) ([]adapter.BatchItem, error) {
	return adapter.PushAll(ctx, a, docs, opts, adapter.DefaultBatchLimit), nil
}

// PushSubtasks publishes the document's dependent files as subtask records
// keyed off the canonical identity.
func (a *Adapter) PushSubtasks(_ context.Context, doc *scanner.SpecDocument, parent adapter.RemoteRef) ([]adapter.RemoteRef, error) {
	c := doc.Canonical()
	if c == nil {
		return nil, fmt.Errorf("memory: %s has no canonical file", doc.Name)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	var refs []adapter.RemoteRef
	for _, name := range adapter.SubtaskFiles(doc) {
		f := doc.Files[name]
		rec := &adapter.Record{
			Ref:   adapter.RemoteRef{Type: adapter.RecordSubtask},
			Title: fmt.Sprintf("%s: %s", doc.Name, name),
			Body:  identity.Embed(f.Markdown, c.Meta.SpecID),
			State: "open",
		}
		ref := a.insertLocked(rec)
		a.parents[ref.Number()] = parent.Number()
		refs = append(refs, ref)
	}
	return refs, nil
}

// Comment appends a comment to the record body. The in-memory store keeps
// no separate comment stream.
func (a *Adapter) Comment(_ context.Context, ref adapter.RemoteRef, body string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	rec, ok := a.records[ref.Number()]
	if !ok {
		return fmt.Errorf("memory: record %s: %w", ref.ID, apperr.ErrNotFound)
	}
	rec.Body += "\n\n---\n" + body
	return nil
}

// Close marks the record closed.
func (a *Adapter) Close(_ context.Context, ref adapter.RemoteRef) error {
	return a.setState(ref, "closed")
}

// Reopen marks the record open.
func (a *Adapter) Reopen(_ context.Context, ref adapter.RemoteRef) error {
	return a.setState(ref, "open")
}

func (a *Adapter) setState(ref adapter.RemoteRef, state string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	rec, ok := a.records[ref.Number()]
	if !ok {
		return fmt.Errorf("memory: record %s: %w", ref.ID, apperr.ErrNotFound)
	}
	rec.State = state
	return nil
}

func (a *Adapter) insertLocked(rec *adapter.Record) adapter.RemoteRef {
	n := a.next
	a.next++
	rec.Ref.ID = fmt.Sprintf("%d", n)
	if rec.Ref.Type == "" {
		rec.Ref.Type = adapter.RecordParent
	}
	rec.Ref.URL = fmt.Sprintf("memory://records/%d", n)
	a.records[n] = rec
	return rec.Ref
}

