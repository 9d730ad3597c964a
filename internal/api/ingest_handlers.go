package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/leadstream/internal/export"
	"github.com/ignite/leadstream/internal/ingest"
	"github.com/ignite/leadstream/internal/mapping"
	"github.com/ignite/leadstream/internal/pkg/logger"
	"github.com/ignite/leadstream/internal/store"
	"github.com/ignite/leadstream/internal/validate"
)

type s3UploadRequest struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
}

// CreateS3Upload pulls a file from S3 into the upload dir and opens a
// mapping session over it, mirroring CreateUpload for bucket drops.
func (h *Handlers) CreateS3Upload(w http.ResponseWriter, r *http.Request) {
	if h.s3Client == nil {
		respondError(w, http.StatusNotImplemented, "s3 ingestion not configured")
		return
	}

	var req s3UploadRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Bucket == "" {
		req.Bucket = h.cfg.S3.Bucket
	}
	if req.Bucket == "" || req.Key == "" {
		respondError(w, http.StatusBadRequest, "bucket and key are required")
		return
	}

	if err := os.MkdirAll(h.cfg.Ingest.UploadDir, 0755); err != nil {
		respondError(w, http.StatusInternalServerError, "upload storage unavailable")
		return
	}

	path, err := ingest.FetchS3Object(r.Context(), h.s3Client, req.Bucket, req.Key, h.cfg.Ingest.UploadDir)
	if err != nil {
		logger.Error("s3 fetch failed", "bucket", req.Bucket, "key", req.Key, "error", err.Error())
		respondError(w, http.StatusBadGateway, "could not fetch object")
		return
	}

	src, err := openSourceFile(path)
	if err != nil {
		os.Remove(path)
		respondError(w, http.StatusBadRequest, fmt.Sprintf("unreadable file: %v", err))
		return
	}
	defer src.Close()

	session := mapping.NewSession(h.newClassifier(), src.Headers())
	state := &uploadState{
		session:  session,
		fileName: filepath.Base(req.Key),
		filePath: path,
	}

	h.mu.Lock()
	h.uploads[session.ID] = state
	h.mu.Unlock()

	h.snapshot(r, session, state)
	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"session_id": session.ID,
		"file_name":  state.fileName,
		"columns":    session.Columns(),
	})
}

// RunIngest streams the uploaded file through the pipeline, validates
// each record and lands the chunk in Postgres. It runs synchronously
// and reports the final tallies; progress snapshots go to Redis per
// chunk for anyone polling.
func (h *Handlers) RunIngest(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	state, ok := h.lookup(id)
	if !ok {
		respondError(w, http.StatusNotFound, "session not found")
		return
	}

	h.mu.Lock()
	final := state.final
	alreadyRun := state.ingested
	if final != nil && !alreadyRun {
		state.ingested = true
	}
	h.mu.Unlock()

	if final == nil {
		respondError(w, http.StatusConflict, "mapping not finalized")
		return
	}
	if alreadyRun {
		respondError(w, http.StatusConflict, "ingestion already ran for this session")
		return
	}

	src, err := openSourceFile(state.filePath)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "upload file no longer readable")
		return
	}

	pipeline, err := ingest.NewPipeline(src, final, h.cfg.Ingest.ChunkSize)
	if err != nil {
		src.Close()
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer pipeline.Close()

	validator := validate.NewValidator(nil)
	progress := &store.Progress{SessionID: id, Status: "ingesting"}

	var (
		chunk    []*ingest.Record
		imported int
	)
	flush := func() error {
		if len(chunk) == 0 {
			return nil
		}
		if h.sink != nil {
			if err := h.sink.InsertBatch(r.Context(), id, chunk); err != nil {
				return err
			}
		}
		imported += len(chunk)
		chunk = chunk[:0]

		progress.RowsRead = pipeline.RowsRead()
		progress.Imported = imported
		progress.Malformed = pipeline.Malformed()
		if err := h.sessions.SaveProgress(r.Context(), progress); err != nil {
			logger.Warn("progress snapshot failed", "session_id", id, "error", err.Error())
		}
		return nil
	}

	runErr := func() error {
		for {
			rec, err := pipeline.Next()
			if err == io.EOF {
				return flush()
			}
			if err != nil {
				return err
			}

			findings, err := validator.Validate(rec)
			if err != nil {
				return err
			}
			if validate.HasBlocking(findings) {
				progress.Errors++
				continue
			}
			if len(findings) > 0 {
				progress.Warnings++
			}

			chunk = append(chunk, rec)
			if len(chunk) >= h.cfg.Ingest.ChunkSize {
				if err := flush(); err != nil {
					return err
				}
			}
		}
	}()

	if runErr != nil {
		progress.Status = "failed"
		progress.Message = runErr.Error()
		h.sessions.SaveProgress(r.Context(), progress)
		logger.Error("ingestion failed", "session_id", id, "error", runErr.Error())
		respondError(w, http.StatusInternalServerError, "ingestion failed")
		return
	}

	progress.Status = "completed"
	progress.RowsRead = pipeline.RowsRead()
	progress.Imported = imported
	progress.Malformed = pipeline.Malformed()
	h.sessions.SaveProgress(r.Context(), progress)

	logger.Info("ingestion completed", "session_id", id,
		"rows_read", pipeline.RowsRead(), "imported", imported,
		"malformed", pipeline.Malformed(), "errors", progress.Errors, "warnings", progress.Warnings)

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"session_id": id,
		"rows_read":  pipeline.RowsRead(),
		"imported":   imported,
		"malformed":  pipeline.Malformed(),
		"errors":     progress.Errors,
		"warnings":   progress.Warnings,
	})
}

// GetProgress reports the latest ingestion progress for a session.
func (h *Handlers) GetProgress(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	progress, err := h.sessions.GetProgress(r.Context(), id)
	if errors.Is(err, store.ErrSessionNotFound) {
		respondError(w, http.StatusNotFound, "no progress for session")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, progress)
}

// ExportUpload re-runs the pipeline over the stored file and streams
// an XLSX of every record with its validation findings. Unlike
// ingestion, blocked records are included so reviewers can see what
// was rejected and why.
func (h *Handlers) ExportUpload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	state, ok := h.lookup(id)
	if !ok {
		respondError(w, http.StatusNotFound, "session not found")
		return
	}

	h.mu.Lock()
	final := state.final
	h.mu.Unlock()
	if final == nil {
		respondError(w, http.StatusConflict, "mapping not finalized")
		return
	}

	src, err := openSourceFile(state.filePath)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "upload file no longer readable")
		return
	}
	pipeline, err := ingest.NewPipeline(src, final, h.cfg.Ingest.ChunkSize)
	if err != nil {
		src.Close()
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer pipeline.Close()

	ww, err := export.NewWorkbookWriter()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "export failed")
		return
	}

	// Each record goes straight from the pipeline into the stream
	// writer, so export holds at most one chunk like ingestion does.
	validator := validate.NewValidator(nil)
	err = pipeline.Drain(func(rec *ingest.Record) error {
		findings, err := validator.Validate(rec)
		if err != nil {
			return err
		}
		return ww.Append(rec, findings)
	})
	if err != nil {
		ww.Discard()
		respondError(w, http.StatusInternalServerError, "export failed")
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", exportName(state.fileName)))
	if err := ww.Finish(w); err != nil {
		logger.Error("export write failed", "session_id", id, "error", err.Error())
	}
}

func exportName(original string) string {
	base := original[:len(original)-len(filepath.Ext(original))]
	if base == "" {
		base = "leads"
	}
	return base + "-validated.xlsx"
}

type previewRequest struct {
	Template string `json:"template"`
	Limit    int    `json:"limit"`
}

// PreviewPersonalization renders a Liquid template against the first
// records of the file so template authors can check merge output
// before a send.
func (h *Handlers) PreviewPersonalization(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	state, ok := h.lookup(id)
	if !ok {
		respondError(w, http.StatusNotFound, "session not found")
		return
	}

	h.mu.Lock()
	final := state.final
	h.mu.Unlock()
	if final == nil {
		respondError(w, http.StatusConflict, "mapping not finalized")
		return
	}

	var req previewRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.engine.Validate(req.Template); err != nil {
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if req.Limit <= 0 || req.Limit > 50 {
		req.Limit = 5
	}

	src, err := openSourceFile(state.filePath)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "upload file no longer readable")
		return
	}
	pipeline, err := ingest.NewPipeline(src, final, h.cfg.Ingest.ChunkSize)
	if err != nil {
		src.Close()
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer pipeline.Close()

	type preview struct {
		Row    int    `json:"row"`
		Output string `json:"output"`
	}
	var previews []preview
	for len(previews) < req.Limit {
		rec, err := pipeline.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			respondError(w, http.StatusInternalServerError, "preview failed")
			return
		}
		out, err := h.engine.Render(req.Template, rec)
		if err != nil {
			respondError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		previews = append(previews, preview{Row: rec.Row, Output: out})
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"previews": previews})
}
