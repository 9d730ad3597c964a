// Package api exposes the upload, mapping and ingestion flow over HTTP.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/ignite/leadstream/internal/config"
	"github.com/ignite/leadstream/internal/mapping"
	"github.com/ignite/leadstream/internal/personalize"
	"github.com/ignite/leadstream/internal/pkg/logger"
	"github.com/ignite/leadstream/internal/store"
)

// uploadState is the live, in-memory side of one upload session. The
// mapping session itself is not safe for concurrent use, so all access
// goes through Handlers.mu.
type uploadState struct {
	session  *mapping.Session
	fileName string
	filePath string
	final    *mapping.FinalMapping
	ingested bool
}

// Handlers carries the wiring for all HTTP endpoints.
type Handlers struct {
	cfg      *config.Config
	dict     *mapping.Dictionary
	sessions *store.SessionStore
	sink     *store.RecordSink
	engine   *personalize.Engine
	s3Client *s3.Client

	mu      sync.Mutex
	uploads map[string]*uploadState
}

// NewHandlers builds the handler set. sink and s3Client may be nil
// when Postgres or S3 ingestion is not configured.
func NewHandlers(cfg *config.Config, dict *mapping.Dictionary, sessions *store.SessionStore, sink *store.RecordSink, s3Client *s3.Client) *Handlers {
	return &Handlers{
		cfg:      cfg,
		dict:     dict,
		sessions: sessions,
		sink:     sink,
		engine:   personalize.NewEngine(),
		s3Client: s3Client,
		uploads:  make(map[string]*uploadState),
	}
}

func (h *Handlers) newClassifier() *mapping.Classifier {
	matcher := mapping.NewMatcher(h.dict, h.cfg.Mapping.FuzzyFloor)
	return mapping.NewClassifier(matcher, h.cfg.Mapping.ConfirmThreshold, h.cfg.Mapping.SuggestThreshold)
}

// removeUpload destroys everything a session owns: the stored upload
// file and the Redis keys. The caller has already dropped the map
// entry under h.mu.
func (h *Handlers) removeUpload(ctx context.Context, id string, state *uploadState) {
	if state.filePath != "" {
		if err := os.Remove(state.filePath); err != nil && !os.IsNotExist(err) {
			logger.Warn("upload file cleanup failed", "session_id", id, "error", err.Error())
		}
	}
	if err := h.sessions.DeleteSession(ctx, id); err != nil {
		logger.Warn("session delete failed", "session_id", id, "error", err.Error())
	}
}

// Sweep evicts sessions older than maxAge, mirroring the Redis TTL so
// abandoned uploads do not pin memory or disk for the process
// lifetime. Returns the number of sessions evicted.
func (h *Handlers) Sweep(ctx context.Context, maxAge time.Duration) int {
	cutoff := time.Now().UTC().Add(-maxAge)

	h.mu.Lock()
	expired := make(map[string]*uploadState)
	for id, state := range h.uploads {
		if state.session.CreatedAt.Before(cutoff) {
			expired[id] = state
			delete(h.uploads, id)
		}
	}
	h.mu.Unlock()

	for id, state := range expired {
		h.removeUpload(ctx, id, state)
		logger.Info("expired upload session evicted", "session_id", id, "file", state.fileName)
	}
	return len(expired)
}

// HealthCheck responds with service status.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetFields lists the business fields and their known header variants.
func (h *Handlers) GetFields(w http.ResponseWriter, r *http.Request) {
	fields := make([]map[string]interface{}, 0, len(h.dict.Fields()))
	for _, f := range h.dict.Fields() {
		fields = append(fields, map[string]interface{}{
			"field":    f,
			"variants": h.dict.Variants(f),
		})
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"fields": fields})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
