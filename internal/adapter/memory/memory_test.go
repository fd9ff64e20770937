package memory

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/starford/ansuz/internal/adapter"
	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/frontmatter"
	"github.com/starford/ansuz/internal/identity"
	"github.com/starford/ansuz/internal/scanner"
)

func newDoc(name, specID, markdown string, issueNumber int) *scanner.SpecDocument {
	meta := frontmatter.Meta{SpecID: specID}
	if issueNumber > 0 {
		meta.GitHub = &frontmatter.GitHubMeta{IssueNumber: issueNumber}
	}
	return &scanner.SpecDocument{
		Name: name,
		Files: map[string]*scanner.SpecFile{
			scanner.CanonicalFile: {
				Filename: scanner.CanonicalFile,
				Markdown: markdown,
				Meta:     meta,
			},
		},
	}
}

func TestPush_CreateThenUpdateIsIdempotent(t *testing.T) {
	a := New()
	ctx := context.Background()
	u := identity.Generate()
	doc := newDoc("001-demo", u, "# Demo\n\nv1\n", 0)

	ref1, err := a.Push(ctx, doc, adapter.PushOptions{})
	if err != nil {
		t.Fatalf("first Push: %v", err)
	}
	if a.Len() != 1 {
		t.Fatalf("records = %d, want 1", a.Len())
	}

	doc.Canonical().Markdown = "# Demo\n\nv2\n"
	ref2, err := a.Push(ctx, doc, adapter.PushOptions{})
	if err != nil {
		t.Fatalf("second Push: %v", err)
	}
	if ref2.ID != ref1.ID {
		t.Errorf("second push created a new record: %s vs %s", ref2.ID, ref1.ID)
	}
	if a.Len() != 1 {
		t.Errorf("records = %d, want 1 (no duplicate)", a.Len())
	}

	rec := a.Get(ref1.Number())
	if rec == nil || !strings.Contains(rec.Body, "v2") {
		t.Errorf("record body not updated: %+v", rec)
	}
	if got := identity.Extract(rec.Body); got != u {
		t.Errorf("embedded id = %q, want %q", got, u)
	}
}

func TestPush_MismatchRequiresForce(t *testing.T) {
	a := New()
	ctx := context.Background()
	local := identity.Generate()
	other := identity.Generate()

	ref := a.Seed(adapter.Record{
		Title: "Old",
		Body:  identity.Embed("old body", other),
		State: "open",
	})

	doc := newDoc("001-demo", local, "# Demo\n", ref.Number())

	_, err := a.Push(ctx, doc, adapter.PushOptions{})
	var mm *apperr.IdentityMismatchError
	if !errors.As(err, &mm) {
		t.Fatalf("expected IdentityMismatchError, got %v", err)
	}

	forced, err := a.Push(ctx, doc, adapter.PushOptions{Force: true})
	if err != nil {
		t.Fatalf("forced Push: %v", err)
	}
	if forced.ID != ref.ID {
		t.Errorf("forced push created a new record")
	}
	rec := a.Get(ref.Number())
	if got := identity.Extract(rec.Body); got != local {
		t.Errorf("remote body embeds %q after force, want %q", got, local)
	}
}

func TestPullRoundTrip(t *testing.T) {
	a := New()
	ctx := context.Background()
	u := identity.Generate()
	doc := newDoc("001-demo", u, "# Round Trip\n\nContent.\n", 0)

	ref, err := a.Push(ctx, doc, adapter.PushOptions{Labels: []string{"spec"}})
	if err != nil {
		t.Fatalf("Push: %v", err)
	}

	pulled, err := a.Pull(ctx, ref, adapter.PullOptions{DirName: "001-demo"})
	if err != nil {
		t.Fatalf("Pull: %v", err)
	}
	c := pulled.Canonical()
	if c == nil {
		t.Fatal("pulled doc has no canonical file")
	}
	if c.Meta.SpecID != u {
		t.Errorf("spec_id = %q, want %q", c.Meta.SpecID, u)
	}
	if c.Meta.GitHub == nil || c.Meta.GitHub.IssueNumber != ref.Number() {
		t.Errorf("github block = %+v", c.Meta.GitHub)
	}
	if c.Markdown != "# Round Trip\n\nContent." {
		t.Errorf("markdown = %q", c.Markdown)
	}
}

func TestPull_Missing(t *testing.T) {
	a := New()
	_, err := a.Pull(context.Background(), adapter.RemoteRef{ID: "404"}, adapter.PullOptions{})
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestGetStatus_MismatchReportsConflict(t *testing.T) {
	a := New()
	ctx := context.Background()
	other := identity.Generate()
	ref := a.Seed(adapter.Record{Body: identity.Embed("x", other), State: "open"})

	doc := newDoc("001-demo", identity.Generate(), "# D\n", ref.Number())
	st, err := a.GetStatus(ctx, doc)
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if st.State != adapter.StateConflict || len(st.Conflicts) == 0 {
		t.Errorf("status = %+v", st)
	}
}

func TestResolveConflict_Strategies(t *testing.T) {
	ctx := context.Background()

	t.Run("ours repushes with force", func(t *testing.T) {
		a := New()
		local := identity.Generate()
		ref := a.Seed(adapter.Record{Body: identity.Embed("remote", identity.Generate()), State: "open"})
		doc := newDoc("001-demo", local, "# Local\n", ref.Number())

		got, err := a.ResolveConflict(ctx, doc, adapter.StrategyOurs, adapter.PushOptions{})
		if err != nil {
			t.Fatalf("ResolveConflict: %v", err)
		}
		if got.ID != ref.ID {
			t.Errorf("ref = %+v", got)
		}
		if id := identity.Extract(a.Get(ref.Number()).Body); id != local {
			t.Errorf("remote embeds %q, want %q", id, local)
		}
	})

	t.Run("theirs binds without pushing", func(t *testing.T) {
		a := New()
		local := identity.Generate()
		ref := a.Seed(adapter.Record{Body: identity.Embed("remote body", local), State: "open"})
		doc := newDoc("001-demo", local, "# Local\n", 0)

		got, err := a.ResolveConflict(ctx, doc, adapter.StrategyTheirs, adapter.PushOptions{})
		if err != nil {
			t.Fatalf("ResolveConflict: %v", err)
		}
		if got.ID != ref.ID {
			t.Errorf("ref = %+v", got)
		}
		if body := a.Get(ref.Number()).Body; !strings.Contains(body, "remote body") {
			t.Errorf("remote body mutated: %q", body)
		}
	})

	t.Run("interactive is not implemented", func(t *testing.T) {
		a := New()
		doc := newDoc("001-demo", identity.Generate(), "# D\n", 0)
		_, err := a.ResolveConflict(ctx, doc, adapter.StrategyInteractive, adapter.PushOptions{})
		if !errors.Is(err, apperr.ErrNotSupported) {
			t.Errorf("err = %v, want ErrNotSupported", err)
		}
	})

	t.Run("manual fails reportably", func(t *testing.T) {
		a := New()
		doc := newDoc("001-demo", identity.Generate(), "# D\n", 0)
		_, err := a.ResolveConflict(ctx, doc, adapter.StrategyManual, adapter.PushOptions{})
		if !errors.Is(err, apperr.ErrConflict) {
			t.Errorf("err = %v, want ErrConflict", err)
		}
	})
}

func TestPushSubtasks(t *testing.T) {
	a := New()
	ctx := context.Background()
	u := identity.Generate()
	doc := newDoc("001-demo", u, "# Demo\n", 0)
	doc.Files["plan.md"] = &scanner.SpecFile{Filename: "plan.md", Markdown: "# Plan\n"}
	doc.Files["tasks.md"] = &scanner.SpecFile{Filename: "tasks.md", Markdown: "# Tasks\n"}
	doc.Files["contracts/api.md"] = &scanner.SpecFile{Filename: "contracts/api.md", Markdown: "# API\n"}

	parent, err := a.Push(ctx, doc, adapter.PushOptions{})
	if err != nil {
		t.Fatalf("Push: %v", err)
	}
	refs, err := a.PushSubtasks(ctx, doc, parent)
	if err != nil {
		t.Fatalf("PushSubtasks: %v", err)
	}
	if len(refs) != 2 {
		t.Fatalf("subtasks = %d, want 2 (contracts excluded)", len(refs))
	}
	for _, ref := range refs {
		rec := a.Get(ref.Number())
		if rec.Ref.Type != adapter.RecordSubtask {
			t.Errorf("type = %q", rec.Ref.Type)
		}
		if identity.Extract(rec.Body) != u {
			t.Errorf("subtask not keyed off canonical identity")
		}
	}
}

func TestCloseReopen(t *testing.T) {
	a := New()
	ctx := context.Background()
	ref := a.Seed(adapter.Record{Title: "T", State: "open"})

	if err := a.Close(ctx, ref); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if st := a.Get(ref.Number()).State; st != "closed" {
		t.Errorf("state = %q", st)
	}
	if err := a.Reopen(ctx, ref); err != nil {
		t.Fatalf("Reopen: %v", err)
	}
	if st := a.Get(ref.Number()).State; st != "open" {
		t.Errorf("state = %q", st)
	}
}
