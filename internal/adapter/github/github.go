// Package github implements the adapter contract on top of the gh CLI.
// All network calls, authentication, and pagination belong to gh itself;
// this adapter only shapes arguments and parses JSON output.
package github

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"

	"github.com/starford/ansuz/internal/adapter"
	"github.com/starford/ansuz/internal/identity"
	"github.com/starford/ansuz/internal/scanner"
)

const issueFields = "number,title,body,url,state,labels,assignees,milestone"

// listLimit caps how many issues a marker scan fetches.
const listLimit = 200

// runner executes one gh invocation. Swapped for a fake in tests.
type runner func(ctx context.Context, args ...string) ([]byte, error)

// Adapter talks to one GitHub repository through the gh CLI.
type Adapter struct {
	repo   string // "owner/name"
	labels []string
	run    runner
	logger *slog.Logger
}

var _ adapter.Adapter = (*Adapter)(nil)
var _ adapter.RecordSource = (*Adapter)(nil)

// New creates a GitHub adapter for repo ("owner/name"). labels are applied
// to every record the adapter creates.
func New(repo string, labels []string, logger *slog.Logger) (*Adapter, error) {
	if repo == "" || !strings.Contains(repo, "/") {
		return nil, fmt.Errorf("github: repo must be owner/name, got %q", repo)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{repo: repo, labels: labels, run: runGH, logger: logger}, nil
}

// runGH executes gh with combined stderr folded into the error.
func runGH(ctx context.Context, args ...string) ([]byte, error) {
	if _, err := exec.LookPath("gh"); err != nil {
		return nil, fmt.Errorf("github: gh CLI not found: %w", err)
	}
	cmd := exec.CommandContext(ctx, "gh", args...)
	out, err := cmd.Output()
	if err != nil {
		if ee, ok := err.(*exec.ExitError); ok && len(ee.Stderr) > 0 {
			return nil, fmt.Errorf("github: gh %s: %s", args[0], strings.TrimSpace(string(ee.Stderr)))
		}
		return nil, fmt.Errorf("github: gh %s: %w", args[0], err)
	}
	return out, nil
}

// Capabilities advertises everything gh can do for us.
func (a *Adapter) Capabilities() adapter.Capabilities {
	return adapter.Capabilities{
		Name:        "github",
		Batch:       true,
		Subtasks:    true,
		Comments:    true,
		CloseReopen: true,
	}
}

// issueJSON mirrors the gh --json output shape.
type issueJSON struct {
	Number    int    `json:"number"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	URL       string `json:"url"`
	State     string `json:"state"`
	Labels    []struct {
		Name string `json:"name"`
	} `json:"labels"`
	Assignees []struct {
		Login string `json:"login"`
	} `json:"assignees"`
	Milestone *struct {
		Title string `json:"title"`
	} `json:"milestone"`
}

func (j *issueJSON) record() *adapter.Record {
	rec := &adapter.Record{
		Ref: adapter.RemoteRef{
			ID:   strconv.Itoa(j.Number),
			Type: adapter.RecordParent,
			URL:  j.URL,
		},
		Title: j.Title,
		Body:  j.Body,
		State: strings.ToLower(j.State),
	}
	for _, l := range j.Labels {
		if l.Name == "subtask" {
			rec.Ref.Type = adapter.RecordSubtask
		}
		rec.Labels = append(rec.Labels, l.Name)
	}
	for _, as := range j.Assignees {
		rec.Assignees = append(rec.Assignees, as.Login)
	}
	if j.Milestone != nil {
		rec.Milestone = j.Milestone.Title
	}
	return rec
}

// FindByUUID lists the repository's issues and scans their bodies for the
// embedded marker. GitHub's search index ignores HTML comments, so the scan
// runs client-side.
func (a *Adapter) FindByUUID(ctx context.Context, specID string) (*adapter.Record, error) {
	issues, err := a.list(ctx)
	if err != nil {
		return nil, err
	}
	for i := range issues {
		if strings.EqualFold(identity.Extract(issues[i].Body), specID) {
			return issues[i].record(), nil
		}
	}
	return nil, nil
}

// GetByNumber fetches one issue. A missing issue yields (nil, nil).
func (a *Adapter) GetByNumber(ctx context.Context, number int) (*adapter.Record, error) {
	out, err := a.run(ctx, "issue", "view", strconv.Itoa(number),
		"--repo", a.repo, "--json", issueFields)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	var j issueJSON
	if err := json.Unmarshal(out, &j); err != nil {
		return nil, fmt.Errorf("github: parse issue %d: %w", number, err)
	}
	return j.record(), nil
}

// Push creates or updates the issue bound to doc's identity.
func (a *Adapter) Push(ctx context.Context, doc *scanner.SpecDocument, opts adapter.PushOptions) (adapter.RemoteRef, error) {
	c := doc.Canonical()
	if c == nil {
		return adapter.RemoteRef{}, fmt.Errorf("github: %s has no canonical file", doc.Name)
	}

	existing, err := adapter.Resolve(ctx, a, c.Meta.SpecID, adapter.IssueNumber(c), opts.Force)
	if err != nil {
		return adapter.RemoteRef{}, err
	}

	opts.Labels = append(opts.Labels, a.labels...)
	rec := adapter.BuildRecord(doc, opts)

	if existing != nil {
		return a.update(ctx, existing.Ref, rec)
	}
	return a.create(ctx, rec)
}

// Pull fetches the issue behind ref and materializes a document from it.
func (a *Adapter) Pull(ctx context.Context, ref adapter.RemoteRef, opts adapter.PullOptions) (*scanner.SpecDocument, error) {
	rec, err := a.GetByNumber(ctx, ref.Number())
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("github: issue %s does not exist", ref.ID)
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

// PushBatch pushes documents with bounded concurrency to respect API rate
// limits.
func (a *Adapter) PushBatch(ctx context.Context, docs []*scanner.SpecDocument, opts adapter.PushOptions) ([]adapter.BatchItem, error) {
	return adapter.PushAll(ctx, a, docs, opts, adapter.DefaultBatchLimit), nil
}

// PushSubtasks publishes the document's dependent files as issues labeled
// "subtask", keyed off the canonical identity. Existing subtask issues are
// matched by title and updated in place.
func (a *Adapter) PushSubtasks(ctx context.Context, doc *scanner.SpecDocument, parent adapter.RemoteRef) ([]adapter.RemoteRef, error) {
	c := doc.Canonical()
	if c == nil {
		return nil, fmt.Errorf("github: %s has no canonical file", doc.Name)
	}

	issues, err := a.list(ctx)
	if err != nil {
		return nil, err
	}
	byTitle := make(map[string]*issueJSON, len(issues))
	for i := range issues {
		byTitle[issues[i].Title] = &issues[i]
	}

	var refs []adapter.RemoteRef
	for _, name := range adapter.SubtaskFiles(doc) {
		f := doc.Files[name]
		rec := &adapter.Record{
			Ref:    adapter.RemoteRef{Type: adapter.RecordSubtask},
			Title:  fmt.Sprintf("%s: %s", doc.Name, name),
			Body:   identity.Embed(f.Markdown+fmt.Sprintf("\n\nParent: #%d", parent.Number()), c.Meta.SpecID),
			Labels: append([]string{"subtask"}, a.labels...),
			State:  "open",
		}

		var ref adapter.RemoteRef
		if prev, ok := byTitle[rec.Title]; ok {
			ref, err = a.update(ctx, prev.record().Ref, rec)
		} else {
			ref, err = a.create(ctx, rec)
		}
		if err != nil {
			return refs, err
		}
		ref.Type = adapter.RecordSubtask
		refs = append(refs, ref)
	}
	return refs, nil
}

// Comment adds an issue comment.
func (a *Adapter) Comment(ctx context.Context, ref adapter.RemoteRef, body string) error {
	_, err := a.run(ctx, "issue", "comment", ref.ID, "--repo", a.repo, "--body", body)
	return err
}

// Close closes the issue.
func (a *Adapter) Close(ctx context.Context, ref adapter.RemoteRef) error {
	_, err := a.run(ctx, "issue", "close", ref.ID, "--repo", a.repo)
	return err
}

// Reopen reopens the issue.
func (a *Adapter) Reopen(ctx context.Context, ref adapter.RemoteRef) error {
	_, err := a.run(ctx, "issue", "reopen", ref.ID, "--repo", a.repo)
	return err
}

func (a *Adapter) list(ctx context.Context) ([]issueJSON, error) {
	out, err := a.run(ctx, "issue", "list", "--repo", a.repo,
		"--state", "all", "--limit", strconv.Itoa(listLimit),
		"--json", issueFields)
	if err != nil {
		return nil, err
	}
	var issues []issueJSON
	if err := json.Unmarshal(out, &issues); err != nil {
		return nil, fmt.Errorf("github: parse issue list: %w", err)
	}
	return issues, nil
}

func (a *Adapter) create(ctx context.Context, rec *adapter.Record) (adapter.RemoteRef, error) {
	args := []string{"issue", "create", "--repo", a.repo,
		"--title", rec.Title, "--body", rec.Body}
	for _, l := range rec.Labels {
		args = append(args, "--label", l)
	}
	for _, as := range rec.Assignees {
		args = append(args, "--assignee", as)
	}
	if rec.Milestone != "" {
		args = append(args, "--milestone", rec.Milestone)
	}

	out, err := a.run(ctx, args...)
	if err != nil {
		return adapter.RemoteRef{}, err
	}

	url := strings.TrimSpace(string(out))
	number, err := numberFromURL(url)
	if err != nil {
		return adapter.RemoteRef{}, err
	}
	a.logger.Info("github: issue created",
		slog.Int("number", number), slog.String("title", rec.Title))

	return adapter.RemoteRef{
		ID:   strconv.Itoa(number),
		Type: rec.Ref.Type,
		URL:  url,
	}, nil
}

func (a *Adapter) update(ctx context.Context, ref adapter.RemoteRef, rec *adapter.Record) (adapter.RemoteRef, error) {
	args := []string{"issue", "edit", ref.ID, "--repo", a.repo,
		"--title", rec.Title, "--body", rec.Body}
	for _, l := range rec.Labels {
		args = append(args, "--add-label", l)
	}

	if _, err := a.run(ctx, args...); err != nil {
		return adapter.RemoteRef{}, err
	}
	a.logger.Debug("github: issue updated", slog.String("id", ref.ID))

	ref.Type = rec.Ref.Type
	return ref, nil
}

// numberFromURL parses the trailing issue number from a gh create URL like
// https://github.com/owner/repo/issues/123.
func numberFromURL(url string) (int, error) {
	i := strings.LastIndexByte(url, '/')
	if i < 0 {
		return 0, fmt.Errorf("github: unexpected create output %q", url)
	}
	n, err := strconv.Atoi(url[i+1:])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("github: unexpected create output %q", url)
	}
	return n, nil
}

func isNotFound(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "could not resolve") ||
		strings.Contains(msg, "not found")
}
