package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/starford/ansuz/internal/engine"
	"github.com/starford/ansuz/internal/identity"
	"github.com/starford/ansuz/internal/scanner"
	"github.com/starford/ansuz/internal/testutil"
)

type fakeSyncer struct {
	mu    sync.Mutex
	names []string
}

func (f *fakeSyncer) SyncOne(_ context.Context, name string, _ engine.Options) (*engine.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.names = append(f.names, name)
	return &engine.Result{Name: name, Action: engine.ActionUpdate}, nil
}

func (f *fakeSyncer) synced() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.names...)
}

func startWatcher(t *testing.T, sc *scanner.Scanner, syn Syncer) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := Watch(ctx, syn, sc, slog.New(slog.DiscardHandler), 100*time.Millisecond); err != nil {
			t.Errorf("Watch: %v", err)
		}
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	// Give the watcher time to register the root.
	time.Sleep(100 * time.Millisecond)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(25 * time.Millisecond)
	}
	return cond()
}

func autoSpec(id string) string {
	return fmt.Sprintf("---\nspec_id: %s\nauto_sync: true\n---\n# Demo\n", id)
}

func TestWatch_SyncsAutoSyncDocuments(t *testing.T) {
	sc, root := testutil.TestScanner(t)
	testutil.WriteSpec(t, root, "001-demo", autoSpec(identity.Generate()))

	syn := &fakeSyncer{}
	startWatcher(t, sc, syn)

	testutil.WriteSpec(t, root, "001-demo", autoSpec(identity.Generate()))

	if !waitFor(t, 3*time.Second, func() bool { return len(syn.synced()) > 0 }) {
		t.Fatal("edit never triggered a sync")
	}
	if names := syn.synced(); names[0] != "001-demo" {
		t.Fatalf("synced %v, want 001-demo", names)
	}
}

func TestWatch_IgnoresOptedOutDocuments(t *testing.T) {
	sc, root := testutil.TestScanner(t)
	if err := os.MkdirAll(filepath.Join(root, "001-quiet"), 0o755); err != nil {
		t.Fatal(err)
	}

	syn := &fakeSyncer{}
	startWatcher(t, sc, syn)

	testutil.WriteSpec(t, root, "001-quiet", "# No auto sync here\n")

	time.Sleep(500 * time.Millisecond)
	if names := syn.synced(); len(names) != 0 {
		t.Fatalf("opted-out document must not sync, got %v", names)
	}
}

func TestWatch_PicksUpNewDirectories(t *testing.T) {
	sc, root := testutil.TestScanner(t)

	syn := &fakeSyncer{}
	startWatcher(t, sc, syn)

	// Directory created after the watcher started.
	if err := os.MkdirAll(filepath.Join(root, "002-late"), 0o755); err != nil {
		t.Fatal(err)
	}
	time.Sleep(200 * time.Millisecond)

	testutil.WriteSpec(t, root, "002-late", autoSpec(identity.Generate()))

	if !waitFor(t, 3*time.Second, func() bool { return len(syn.synced()) > 0 }) {
		t.Fatal("new directory never triggered a sync")
	}
}

func TestDocumentName(t *testing.T) {
	root := string(filepath.Separator) + filepath.Join("specs")
	cases := []struct {
		abs  string
		want string
		ok   bool
	}{
		{filepath.Join(root, "001-demo", "spec.md"), "001-demo", true},
		{filepath.Join(root, "001-demo", "contracts", "api.md"), "001-demo", true},
		{filepath.Join(root, "loose.md"), "", false},
		{filepath.Join(root, ".hidden", "spec.md"), "", false},
		{string(filepath.Separator) + filepath.Join("elsewhere", "spec.md"), "", false},
	}
	for _, tc := range cases {
		got, ok := documentName(root, tc.abs)
		if got != tc.want || ok != tc.ok {
			t.Errorf("documentName(%q) = %q, %v; want %q, %v", tc.abs, got, ok, tc.want, tc.ok)
		}
	}
}
