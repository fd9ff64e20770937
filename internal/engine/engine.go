// Package engine drives synchronization between scanned spec documents and
// a remote adapter. It owns the write-through rule: after a successful push
// the canonical frontmatter gets its new baseline (sync_hash and last_sync
// together) before the operation is reported as done.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/starford/ansuz/internal/adapter"
	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/checksum"
	"github.com/starford/ansuz/internal/frontmatter"
	"github.com/starford/ansuz/internal/scanner"
)

// Recorder receives one journal entry per completed operation. Implementations
// must tolerate being called concurrently.
type Recorder interface {
	Record(ctx context.Context, e JournalEntry) error
}

// Publisher receives sync lifecycle events.
type Publisher interface {
	Publish(event string, payload any)
}

// JournalEntry describes one finished operation for the audit trail.
type JournalEntry struct {
	SpecID    string
	Name      string
	Operation string
	Outcome   string
	RemoteID  string
	Detail    string
}

// Operation names used in journal entries and events.
const (
	OpSync    = "sync"
	OpDryRun  = "dry-run"
	OpResolve = "resolve"
)

// Action is what a sync did (or, in a dry run, would do) for one document.
type Action string

const (
	ActionCreate   Action = "create"
	ActionUpdate   Action = "update"
	ActionSkip     Action = "skip"
	ActionConflict Action = "conflict"
	ActionError    Action = "error"
)

// Options control a sync pass.
type Options struct {
	Force     bool
	Strategy  adapter.Strategy // empty means: fail on conflict
	Labels    []string
	Assignees []string
	Subtasks  bool
}

// Result reports the outcome for one document.
type Result struct {
	Name   string            `json:"name"`
	Action Action            `json:"action"`
	Ref    adapter.RemoteRef `json:"ref"`
	Err    error             `json:"-"`
	Detail string            `json:"detail,omitempty"` // Err rendered for transport
}

// Summary aggregates a full sync pass.
type Summary struct {
	Created int      `json:"created"`
	Updated int      `json:"updated"`
	Skipped int      `json:"skipped"`
	Errors  int      `json:"errors"`
	Results []Result `json:"results"`
}

// OK reports whether the pass finished without a single failure.
func (s *Summary) OK() bool { return s.Errors == 0 }

// Engine coordinates scanning, pushing, and baseline bookkeeping.
type Engine struct {
	scanner    *scanner.Scanner
	adapter    adapter.Adapter
	journal    Recorder
	events     Publisher
	logger     *slog.Logger
	batchLimit int
	now        func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithJournal records every completed operation.
func WithJournal(r Recorder) Option { return func(e *Engine) { e.journal = r } }

// WithEvents publishes sync lifecycle events.
func WithEvents(p Publisher) Option { return func(e *Engine) { e.events = p } }

// WithBatchLimit caps sequential-path concurrency. Zero keeps the default.
func WithBatchLimit(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.batchLimit = n
		}
	}
}

// New creates an Engine bound to one scanner and one adapter.
func New(sc *scanner.Scanner, a adapter.Adapter, logger *slog.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		scanner:    sc,
		adapter:    a,
		logger:     logger,
		batchLimit: adapter.DefaultBatchLimit,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// GetStatus classifies one document against its remote record.
func (e *Engine) GetStatus(ctx context.Context, name string) (*adapter.SyncStatus, error) {
	doc, err := e.load(name)
	if err != nil {
		return nil, err
	}
	return e.adapter.GetStatus(ctx, doc)
}

// SyncOne synchronizes a single document by directory name.
func (e *Engine) SyncOne(ctx context.Context, name string, opts Options) (*Result, error) {
	doc, err := e.load(name)
	if err != nil {
		return nil, err
	}
	res := e.syncDoc(ctx, doc, opts)
	e.record(ctx, doc, OpSync, res)
	if res.Err != nil {
		return res, res.Err
	}
	return res, nil
}

// SyncAll synchronizes every document under the specs root. Individual
// failures are collected, not fatal, so one broken document cannot block the
// rest of the tree. Adapters advertising batch support get plain pushes
// coalesced into a single PushBatch call.
func (e *Engine) SyncAll(ctx context.Context, opts Options) (*Summary, error) {
	docs, err := e.scanner.ScanAll()
	if err != nil {
		return nil, err
	}

	var summary *Summary
	if e.adapter.Capabilities().Batch {
		summary = e.syncAllBatch(ctx, docs, opts)
	} else {
		summary = e.syncAllSequential(ctx, docs, opts)
	}

	for i := range summary.Results {
		switch summary.Results[i].Action {
		case ActionCreate:
			summary.Created++
		case ActionUpdate:
			summary.Updated++
		case ActionSkip:
			summary.Skipped++
		default:
			summary.Errors++
		}
	}

	e.logger.Info("sync pass finished",
		slog.Int("created", summary.Created),
		slog.Int("updated", summary.Updated),
		slog.Int("skipped", summary.Skipped),
		slog.Int("errors", summary.Errors))
	e.publish("sync.finished", summary)
	return summary, nil
}

// syncAllSequential runs the per-document decision tree with bounded
// concurrency.
func (e *Engine) syncAllSequential(ctx context.Context, docs []*scanner.SpecDocument, opts Options) *Summary {
	summary := &Summary{Results: make([]Result, len(docs))}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.batchLimit)
	for i, doc := range docs {
		g.Go(func() error {
			res := e.syncDoc(ctx, doc, opts)
			e.record(ctx, doc, OpSync, res)
			summary.Results[i] = *res
			return nil
		})
	}
	_ = g.Wait()
	return summary
}

// syncAllBatch coalesces plain pushes into one PushBatch call. Skips are
// decided up front; conflicts keep the per-document path because strategy
// resolution stays one call per record.
func (e *Engine) syncAllBatch(ctx context.Context, docs []*scanner.SpecDocument, opts Options) *Summary {
	summary := &Summary{Results: make([]Result, len(docs))}

	var pending []*scanner.SpecDocument
	var pendingIdx []int
	var pendingNew []bool
	for i, doc := range docs {
		status, err := e.adapter.GetStatus(ctx, doc)
		switch {
		case err != nil:
			res := &Result{Name: doc.Name, Action: ActionError, Err: err, Detail: err.Error()}
			e.record(ctx, doc, OpSync, res)
			summary.Results[i] = *res
		case !opts.Force && status.State == adapter.StateSynced:
			res := &Result{Name: doc.Name, Action: ActionSkip}
			e.record(ctx, doc, OpSync, res)
			summary.Results[i] = *res
		case status.State == adapter.StateConflict && !opts.Force:
			res := e.syncDoc(ctx, doc, opts)
			e.record(ctx, doc, OpSync, res)
			summary.Results[i] = *res
		default:
			pending = append(pending, doc)
			pendingIdx = append(pendingIdx, i)
			pendingNew = append(pendingNew, status.Remote == nil)
		}
	}

	if len(pending) == 0 {
		return summary
	}

	pushOpts := adapter.PushOptions{
		Force:     opts.Force,
		Labels:    opts.Labels,
		Assignees: opts.Assignees,
	}
	items, err := e.adapter.PushBatch(ctx, pending, pushOpts)
	if err == nil && len(items) != len(pending) {
		err = fmt.Errorf("engine: batch returned %d outcomes for %d documents", len(items), len(pending))
	}
	if err != nil {
		for j, doc := range pending {
			res := &Result{Name: doc.Name, Action: ActionError, Err: err, Detail: err.Error()}
			e.record(ctx, doc, OpSync, res)
			summary.Results[pendingIdx[j]] = *res
		}
		return summary
	}

	for j, item := range items {
		doc := pending[j]
		res := &Result{Name: doc.Name, Ref: item.Ref}
		if pendingNew[j] {
			res.Action = ActionCreate
		} else {
			res.Action = ActionUpdate
		}

		err := item.Err
		if err == nil && opts.Subtasks {
			err = e.pushSubtasks(ctx, doc, item.Ref)
		}
		if err == nil {
			err = e.commit(doc, doc.Canonical(), item.Ref)
		}
		if err != nil {
			res.Action, res.Err, res.Detail = ActionError, err, err.Error()
		} else {
			e.publish("sync."+string(res.Action), res)
		}
		e.record(ctx, doc, OpSync, res)
		summary.Results[pendingIdx[j]] = *res
	}
	return summary
}

// DryRun predicts what SyncOne would do without touching the remote or the
// local files.
func (e *Engine) DryRun(ctx context.Context, name string, opts Options) (*Result, error) {
	doc, err := e.load(name)
	if err != nil {
		return nil, err
	}
	res := e.predict(ctx, doc, opts)
	e.record(ctx, doc, OpDryRun, res)
	return res, nil
}

// DryRunAll predicts a full sync pass.
func (e *Engine) DryRunAll(ctx context.Context, opts Options) ([]Result, error) {
	docs, err := e.scanner.ScanAll()
	if err != nil {
		return nil, err
	}
	results := make([]Result, len(docs))
	for i, doc := range docs {
		res := e.predict(ctx, doc, opts)
		e.record(ctx, doc, OpDryRun, res)
		results[i] = *res
	}
	return results, nil
}

func (e *Engine) load(name string) (*scanner.SpecDocument, error) {
	doc, err := e.scanner.ScanDirectory(name)
	if err != nil {
		return nil, err
	}
	if doc == nil || doc.Canonical() == nil {
		return nil, fmt.Errorf("%s: %w", name, apperr.ErrNotFound)
	}
	return doc, nil
}

// syncDoc runs the core decision tree for one document.
func (e *Engine) syncDoc(ctx context.Context, doc *scanner.SpecDocument, opts Options) *Result {
	res := e.runSync(ctx, doc, opts)
	if res.Err != nil {
		res.Detail = res.Err.Error()
	}
	return res
}

func (e *Engine) runSync(ctx context.Context, doc *scanner.SpecDocument, opts Options) *Result {
	res := &Result{Name: doc.Name}
	c := doc.Canonical()

	status, err := e.adapter.GetStatus(ctx, doc)
	if err != nil {
		res.Action, res.Err = ActionError, err
		return res
	}

	if !opts.Force && status.State == adapter.StateSynced {
		res.Action = ActionSkip
		return res
	}

	pushOpts := adapter.PushOptions{
		Force:     opts.Force,
		Labels:    opts.Labels,
		Assignees: opts.Assignees,
	}

	var ref adapter.RemoteRef
	if status.State == adapter.StateConflict && !opts.Force {
		if opts.Strategy == "" || opts.Strategy == adapter.StrategyManual {
			res.Action = ActionConflict
			res.Err = fmt.Errorf("%s: %w", doc.Name, apperr.ErrConflict)
			return res
		}
		ref, err = e.adapter.ResolveConflict(ctx, doc, opts.Strategy, pushOpts)
		if err == nil && opts.Strategy == adapter.StrategyTheirs {
			// "theirs" accepts the remote version, so the local body must
			// follow before the baseline is written.
			err = e.adopt(ctx, c, ref)
		}
	} else {
		ref, err = e.adapter.Push(ctx, doc, pushOpts)
	}
	if err != nil {
		res.Action, res.Err = ActionError, err
		return res
	}

	res.Ref = ref
	if status.Remote == nil {
		res.Action = ActionCreate
	} else {
		res.Action = ActionUpdate
	}

	if opts.Subtasks {
		if err := e.pushSubtasks(ctx, doc, ref); err != nil {
			res.Action, res.Err = ActionError, err
			return res
		}
	}

	if err := e.commit(doc, c, ref); err != nil {
		res.Action, res.Err = ActionError, err
		return res
	}

	e.publish("sync."+string(res.Action), res)
	return res
}

// adopt replaces the canonical body with the remote record's content.
func (e *Engine) adopt(ctx context.Context, c *scanner.SpecFile, ref adapter.RemoteRef) error {
	remote, err := e.adapter.Pull(ctx, ref, adapter.PullOptions{})
	if err != nil {
		return err
	}
	if rc := remote.Canonical(); rc != nil {
		c.Markdown = rc.Markdown
	}
	return nil
}

func (e *Engine) pushSubtasks(ctx context.Context, doc *scanner.SpecDocument, parent adapter.RemoteRef) error {
	if !e.adapter.Capabilities().Subtasks {
		return nil
	}
	if len(adapter.SubtaskFiles(doc)) == 0 {
		return nil
	}
	_, err := e.adapter.PushSubtasks(ctx, doc, parent)
	return err
}

// commit writes the new baseline into the canonical frontmatter. sync_hash
// and last_sync move together; a half-written baseline would make the next
// status pass report a phantom conflict.
func (e *Engine) commit(doc *scanner.SpecDocument, c *scanner.SpecFile, ref adapter.RemoteRef) error {
	c.Meta.SyncStatus = frontmatter.StatusSynced
	c.Meta.SyncHash = checksum.Fingerprint([]byte(c.Markdown))
	c.Meta.LastSync = e.now().UTC().Format(time.RFC3339)
	if n := ref.Number(); n > 0 {
		if c.Meta.GitHub == nil {
			c.Meta.GitHub = &frontmatter.GitHubMeta{}
		}
		c.Meta.GitHub.IssueNumber = n
	}
	if err := e.scanner.Persist(doc, c); err != nil {
		return fmt.Errorf("record sync baseline for %s: %w", doc.Name, err)
	}
	return nil
}

// predict mirrors syncDoc's decision tree without side effects.
func (e *Engine) predict(ctx context.Context, doc *scanner.SpecDocument, opts Options) *Result {
	res := &Result{Name: doc.Name}

	status, err := e.adapter.GetStatus(ctx, doc)
	if err != nil {
		res.Action, res.Err = ActionError, err
		return res
	}

	// The conflict check comes first: an identity mismatch classifies as a
	// conflict with no resolved remote, and must not look like a create.
	switch {
	case status.State == adapter.StateConflict && !opts.Force:
		switch {
		case opts.Strategy == "" || opts.Strategy == adapter.StrategyManual:
			res.Action = ActionConflict
		case status.Remote == nil:
			res.Action = ActionCreate
		default:
			res.Action = ActionUpdate
		}
	case status.Remote == nil:
		res.Action = ActionCreate
	case !opts.Force && status.State == adapter.StateSynced:
		res.Action = ActionSkip
	default:
		res.Action = ActionUpdate
	}
	if status.Remote != nil {
		res.Ref = *status.Remote
	}
	return res
}

func (e *Engine) record(ctx context.Context, doc *scanner.SpecDocument, op string, res *Result) {
	if e.journal == nil {
		return
	}
	entry := JournalEntry{
		Name:      doc.Name,
		Operation: op,
		Outcome:   string(res.Action),
		RemoteID:  res.Ref.ID,
	}
	if c := doc.Canonical(); c != nil {
		entry.SpecID = c.Meta.SpecID
	}
	if res.Err != nil {
		entry.Detail = res.Err.Error()
	}
	if err := e.journal.Record(ctx, entry); err != nil && !errors.Is(err, context.Canceled) {
		e.logger.Warn("journal write failed",
			slog.String("name", doc.Name), slog.String("error", err.Error()))
	}
}

func (e *Engine) publish(event string, payload any) {
	if e.events != nil {
		e.events.Publish(event, payload)
	}
}
