package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/leadstream/internal/ingest"
	"github.com/ignite/leadstream/internal/mapping"
	"github.com/ignite/leadstream/internal/pkg/logger"
	"github.com/ignite/leadstream/internal/store"
)

// CreateUpload accepts a multipart file, stores it under the upload
// dir, classifies its headers and opens a mapping session. The
// response carries the per-column classification for the mapping UI.
func (h *Handlers) CreateUpload(w http.ResponseWriter, r *http.Request) {
	maxBytes := h.cfg.Ingest.MaxUploadMB << 20
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	if err := os.MkdirAll(h.cfg.Ingest.UploadDir, 0755); err != nil {
		respondError(w, http.StatusInternalServerError, "upload storage unavailable")
		return
	}

	src, path, err := h.storeAndOpen(file, header.Filename)
	if err != nil {
		logger.Warn("upload rejected", "file", header.Filename, "error", err.Error())
		respondError(w, http.StatusBadRequest, fmt.Sprintf("unreadable file: %v", err))
		return
	}
	defer src.Close()

	session := mapping.NewSession(h.newClassifier(), src.Headers())
	state := &uploadState{
		session:  session,
		fileName: header.Filename,
		filePath: path,
	}

	h.mu.Lock()
	h.uploads[session.ID] = state
	h.mu.Unlock()

	h.snapshot(r, session, state)
	logger.Info("upload session created",
		"session_id", session.ID, "file", header.Filename, "columns", len(src.Headers()))

	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"session_id": session.ID,
		"file_name":  header.Filename,
		"columns":    session.Columns(),
	})
}

// storeAndOpen copies the upload to disk and opens the source matching
// its extension. The header row is read here, so a garbage file fails
// before a session exists.
func (h *Handlers) storeAndOpen(file io.Reader, name string) (ingest.RowSource, string, error) {
	ext := strings.ToLower(filepath.Ext(name))
	tmp, err := os.CreateTemp(h.cfg.Ingest.UploadDir, "upload-*"+ext)
	if err != nil {
		return nil, "", err
	}
	path := tmp.Name()
	if _, err := io.Copy(tmp, file); err != nil {
		tmp.Close()
		os.Remove(path)
		return nil, "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(path)
		return nil, "", err
	}

	src, err := openSourceFile(path)
	if err != nil {
		os.Remove(path)
		return nil, "", err
	}
	return src, path, nil
}

func openSourceFile(path string) (ingest.RowSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if strings.ToLower(filepath.Ext(path)) == ".xlsx" {
		src, err := ingest.NewExcelSource(f)
		f.Close()
		if err != nil {
			return nil, err
		}
		return src, nil
	}
	src, err := ingest.NewCSVSource(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return src, nil
}

// GetUpload returns the current column state for a session.
func (h *Handlers) GetUpload(w http.ResponseWriter, r *http.Request) {
	state, ok := h.lookup(chi.URLParam(r, "id"))
	if !ok {
		respondError(w, http.StatusNotFound, "session not found")
		return
	}

	h.mu.Lock()
	cols := state.session.Columns()
	h.mu.Unlock()

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"session_id": chi.URLParam(r, "id"),
		"file_name":  state.fileName,
		"columns":    cols,
	})
}

type decisionRequest struct {
	Decisions []columnDecision `json:"decisions"`
}

type columnDecision struct {
	Index  int    `json:"index"`
	Action string `json:"action"` // accept, override, ignore
	Field  string `json:"field,omitempty"`
}

// ApplyDecisions applies a batch of user mapping decisions.
func (h *Handlers) ApplyDecisions(w http.ResponseWriter, r *http.Request) {
	state, ok := h.lookup(chi.URLParam(r, "id"))
	if !ok {
		respondError(w, http.StatusNotFound, "session not found")
		return
	}

	var req decisionRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for _, d := range req.Decisions {
		var err error
		switch d.Action {
		case "accept":
			err = state.session.Accept(d.Index)
		case "override":
			err = state.session.Override(d.Index, mapping.BusinessField(d.Field))
		case "ignore":
			err = state.session.Ignore(d.Index)
		default:
			err = fmt.Errorf("unknown action %q", d.Action)
		}
		if err != nil {
			respondError(w, http.StatusUnprocessableEntity,
				fmt.Sprintf("column %d: %v", d.Index, err))
			return
		}
	}

	h.snapshot(r, state.session, state)
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"columns": state.session.Columns(),
	})
}

// FinalizeUpload locks the mapping. Unresolved columns come back as a
// 409 with the offending headers so the UI can re-prompt.
func (h *Handlers) FinalizeUpload(w http.ResponseWriter, r *http.Request) {
	state, ok := h.lookup(chi.URLParam(r, "id"))
	if !ok {
		respondError(w, http.StatusNotFound, "session not found")
		return
	}

	h.mu.Lock()
	final, err := state.session.Finalize()
	if err == nil {
		state.final = final
	}
	h.mu.Unlock()

	var incomplete *mapping.IncompleteMappingError
	if errors.As(err, &incomplete) {
		respondJSON(w, http.StatusConflict, map[string]interface{}{
			"error":              "mapping incomplete",
			"unresolved_columns": incomplete.Columns,
		})
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.snapshot(r, state.session, state)
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"session_id": chi.URLParam(r, "id"),
		"mapping":    final.Columns,
	})
}

// DeleteUpload destroys a session once its results are acknowledged,
// or abandons one mid-flight. The upload file and Redis state go with
// it; the imported leads in Postgres stay.
func (h *Handlers) DeleteUpload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	h.mu.Lock()
	state, ok := h.uploads[id]
	delete(h.uploads, id)
	h.mu.Unlock()

	if !ok {
		respondError(w, http.StatusNotFound, "session not found")
		return
	}

	h.removeUpload(r.Context(), id, state)
	logger.Info("upload session destroyed", "session_id", id, "file", state.fileName)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) lookup(id string) (*uploadState, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	state, ok := h.uploads[id]
	return state, ok
}

// snapshot persists the session's column state for reconnecting
// clients. Persistence failures are logged, not surfaced; the live
// session remains authoritative.
func (h *Handlers) snapshot(r *http.Request, session *mapping.Session, state *uploadState) {
	snap := &store.SessionSnapshot{
		ID:        session.ID,
		FileName:  state.fileName,
		FilePath:  state.filePath,
		CreatedAt: session.CreatedAt,
		Finalized: state.final != nil,
		Columns:   session.Columns(),
	}
	if err := h.sessions.SaveSession(r.Context(), snap); err != nil {
		logger.Warn("session snapshot failed", "session_id", session.ID, "error", err.Error())
	}
}

func decodeJSON(r *http.Request, dst interface{}) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}
