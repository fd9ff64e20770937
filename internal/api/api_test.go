package api

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/starford/ansuz/internal/adapter/memory"
	"github.com/starford/ansuz/internal/engine"
	"github.com/starford/ansuz/internal/journal"
	"github.com/starford/ansuz/internal/testutil"
)

// testEnv sets up a temp specs root, journal, engine, and router.
// authToken == "" means auth disabled.
func testEnv(t *testing.T, authToken string) (http.Handler, string) {
	t.Helper()

	sc, root := testutil.TestScanner(t)

	db, err := journal.Open(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	eng := engine.New(sc, memory.New(), slog.New(slog.DiscardHandler), engine.WithJournal(db))

	h := NewHandler(eng, sc, db)
	router := NewRouter(h, authToken != "", authToken, nil)
	return router, root
}

func writeSpec(t *testing.T, root, dir, content string) {
	t.Helper()
	testutil.WriteSpec(t, root, dir, content)
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		rd = bytes.NewReader(raw)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var decoded map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &decoded)
	return w, decoded
}

func TestListSpecs(t *testing.T) {
	router, root := testEnv(t, "")
	writeSpec(t, root, "001-demo", "# Demo\n")
	writeSpec(t, root, "002-more", "# More\n")

	w, body := doJSON(t, router, http.MethodGet, "/specs", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	if got := body["total"].(float64); got != 2 {
		t.Fatalf("total = %v, want 2", got)
	}
	specs := body["specs"].([]any)
	first := specs[0].(map[string]any)
	if first["name"] != "001-demo" {
		t.Errorf("first spec = %v", first["name"])
	}
	if first["spec_id"] == "" {
		t.Error("scan must have assigned an identity")
	}
}

func TestSyncSpecAndStatus(t *testing.T) {
	router, root := testEnv(t, "")
	writeSpec(t, root, "001-demo", "# Demo\n")

	w, body := doJSON(t, router, http.MethodPost, "/specs/001-demo/sync", map[string]any{})
	if w.Code != http.StatusOK {
		t.Fatalf("sync status = %d: %s", w.Code, w.Body.String())
	}
	if body["action"] != "create" {
		t.Fatalf("action = %v, want create", body["action"])
	}

	w, body = doJSON(t, router, http.MethodGet, "/specs/001-demo/status", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status code = %d", w.Code)
	}
	if body["state"] != "synced" {
		t.Errorf("state = %v, want synced", body["state"])
	}
}

func TestSyncSpec_NotFound(t *testing.T) {
	router, _ := testEnv(t, "")
	w, _ := doJSON(t, router, http.MethodPost, "/specs/404-nope/sync", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestSyncAllEndpoint(t *testing.T) {
	router, root := testEnv(t, "")
	writeSpec(t, root, "001-demo", "# Demo\n")
	writeSpec(t, root, "002-more", "# More\n")

	w, body := doJSON(t, router, http.MethodPost, "/sync", map[string]any{})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	if got := body["created"].(float64); got != 2 {
		t.Fatalf("created = %v, want 2", got)
	}
}

func TestDryRunEndpoint(t *testing.T) {
	router, root := testEnv(t, "")
	writeSpec(t, root, "001-demo", "# Demo\n")

	w, body := doJSON(t, router, http.MethodGet, "/specs/001-demo/dry-run", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	if body["action"] != "create" {
		t.Fatalf("action = %v, want create", body["action"])
	}
}

func TestJournalEndpoint(t *testing.T) {
	router, root := testEnv(t, "")
	writeSpec(t, root, "001-demo", "# Demo\n")

	if w, _ := doJSON(t, router, http.MethodPost, "/specs/001-demo/sync", nil); w.Code != http.StatusOK {
		t.Fatalf("sync failed: %d", w.Code)
	}

	w, body := doJSON(t, router, http.MethodGet, "/journal?name=001-demo", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	entries := body["entries"].([]any)
	if len(entries) != 1 {
		t.Fatalf("expected 1 journal entry, got %d", len(entries))
	}
	entry := entries[0].(map[string]any)
	if entry["outcome"] != "create" {
		t.Errorf("outcome = %v", entry["outcome"])
	}
}

func TestAuthMiddleware(t *testing.T) {
	router, root := testEnv(t, "secret-token")
	writeSpec(t, root, "001-demo", "# Demo\n")

	req := httptest.NewRequest(http.MethodGet, "/specs", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("missing token must 401, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/specs", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("wrong token must 401, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/specs", nil)
	req.Header.Set("Authorization", "Bearer secret-token")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("valid token must pass, got %d", w.Code)
	}
}
