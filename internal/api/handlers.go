package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/ansuz/internal/adapter"
	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/engine"
	"github.com/starford/ansuz/internal/journal"
	"github.com/starford/ansuz/internal/scanner"
)

// Journaler is the read side of the operation journal. May be absent.
type Journaler interface {
	History(ctx context.Context, name string, limit int) ([]journal.Entry, error)
	Recent(ctx context.Context, limit int) ([]journal.Entry, error)
}

// Handler holds API route handlers.
type Handler struct {
	eng     *engine.Engine
	sc      *scanner.Scanner
	journal Journaler
}

// NewHandler creates a new Handler. jr may be nil when no journal is
// configured.
func NewHandler(eng *engine.Engine, sc *scanner.Scanner, jr Journaler) *Handler {
	return &Handler{eng: eng, sc: sc, journal: jr}
}

// SpecSummary is the list-view projection of one document.
type SpecSummary struct {
	Name        string `json:"name"`
	SpecID      string `json:"spec_id,omitempty"`
	SyncStatus  string `json:"sync_status,omitempty"`
	IssueNumber int    `json:"issue_number,omitempty"`
	AutoSync    bool   `json:"auto_sync,omitempty"`
	LastSync    string `json:"last_sync,omitempty"`
	Files       int    `json:"files"`
}

// syncRequest is the POST body for sync endpoints. All fields are optional.
type syncRequest struct {
	Force     bool     `json:"force"`
	Strategy  string   `json:"strategy"`
	Subtasks  bool     `json:"subtasks"`
	Labels    []string `json:"labels"`
	Assignees []string `json:"assignees"`
}

func (req *syncRequest) options() engine.Options {
	return engine.Options{
		Force:     req.Force,
		Strategy:  adapter.Strategy(req.Strategy),
		Subtasks:  req.Subtasks,
		Labels:    req.Labels,
		Assignees: req.Assignees,
	}
}

func decodeSyncRequest(r *http.Request) (syncRequest, error) {
	var req syncRequest
	if r.Body == nil {
		return req, nil
	}
	err := json.NewDecoder(r.Body).Decode(&req)
	if err != nil && !errors.Is(err, io.EOF) {
		return req, err
	}
	return req, nil
}

// writeError maps domain errors onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	var mismatch *apperr.IdentityMismatchError
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	case errors.Is(err, apperr.ErrConflict), errors.As(err, &mismatch):
		writeJSON(w, http.StatusConflict, errorBody(err.Error()))
	case errors.Is(err, apperr.ErrNotSupported):
		writeJSON(w, http.StatusNotImplemented, errorBody(err.Error()))
	default:
		slog.Error("request failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}

// ListSpecs handles GET /api/specs. It reports local state only and never
// contacts the remote platform.
func (h *Handler) ListSpecs(w http.ResponseWriter, r *http.Request) {
	docs, err := h.sc.ScanAll()
	if err != nil {
		writeError(w, err)
		return
	}

	specs := make([]SpecSummary, 0, len(docs))
	for _, doc := range docs {
		s := SpecSummary{Name: doc.Name, Files: len(doc.Files)}
		if c := doc.Canonical(); c != nil {
			s.SpecID = c.Meta.SpecID
			s.SyncStatus = c.Meta.SyncStatus
			s.AutoSync = c.Meta.AutoSync
			s.LastSync = c.Meta.LastSync
			s.IssueNumber = adapter.IssueNumber(c)
		}
		specs = append(specs, s)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"specs": specs,
		"total": len(specs),
	})
}

// GetSpecStatus handles GET /api/specs/{name}/status. This resolves the
// remote record and classifies the document.
func (h *Handler) GetSpecStatus(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	status, err := h.eng.GetStatus(r.Context(), name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// SyncSpec handles POST /api/specs/{name}/sync.
func (h *Handler) SyncSpec(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	req, err := decodeSyncRequest(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid request body"))
		return
	}

	res, err := h.eng.SyncOne(r.Context(), name, req.options())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"name":   res.Name,
		"action": res.Action,
		"ref":    res.Ref,
	})
}

// SyncAll handles POST /api/sync.
func (h *Handler) SyncAll(w http.ResponseWriter, r *http.Request) {
	req, err := decodeSyncRequest(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid request body"))
		return
	}

	summary, err := h.eng.SyncAll(r.Context(), req.options())
	if err != nil {
		writeError(w, err)
		return
	}
	status := http.StatusOK
	if !summary.OK() {
		// Partial failure: report the summary, flag it in the status.
		status = http.StatusMultiStatus
	}
	writeJSON(w, status, summary)
}

// DryRunSpec handles GET /api/specs/{name}/dry-run.
func (h *Handler) DryRunSpec(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	res, err := h.eng.DryRun(r.Context(), name, engine.Options{
		Force: r.URL.Query().Get("force") == "true",
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"name":   res.Name,
		"action": res.Action,
		"ref":    res.Ref,
	})
}

// DryRunAll handles GET /api/dry-run.
func (h *Handler) DryRunAll(w http.ResponseWriter, r *http.Request) {
	results, err := h.eng.DryRunAll(r.Context(), engine.Options{
		Force: r.URL.Query().Get("force") == "true",
	})
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]map[string]any, len(results))
	for i, res := range results {
		out[i] = map[string]any{"name": res.Name, "action": res.Action}
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": out})
}

// GetJournal handles GET /api/journal with optional name and limit query
// parameters.
func (h *Handler) GetJournal(w http.ResponseWriter, r *http.Request) {
	if h.journal == nil {
		writeJSON(w, http.StatusNotImplemented, errorBody("journal not configured"))
		return
	}

	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))

	var entries []journal.Entry
	var err error
	if name := q.Get("name"); name != "" {
		entries, err = h.journal.History(r.Context(), name, limit)
	} else {
		entries, err = h.journal.Recent(r.Context(), limit)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	if entries == nil {
		entries = []journal.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}
