package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/leadstream/internal/config"
	"github.com/ignite/leadstream/internal/mapping"
	"github.com/ignite/leadstream/internal/store"
)

func newTestEnv(t *testing.T) (*httptest.Server, *Handlers, *config.Config) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	cfg := &config.Config{}
	cfg.Ingest.ChunkSize = 1000
	cfg.Ingest.UploadDir = t.TempDir()
	cfg.Ingest.MaxUploadMB = 16
	cfg.Mapping.ConfirmThreshold = 0.80
	cfg.Mapping.SuggestThreshold = 0.50
	cfg.Mapping.FuzzyFloor = 0.30

	h := NewHandlers(cfg, mapping.DefaultDictionary(), store.NewSessionStore(client), nil, nil)
	srv := httptest.NewServer(SetupRoutes(h))
	t.Cleanup(srv.Close)
	return srv, h, cfg
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv, _, _ := newTestEnv(t)
	return srv
}

func uploadCSV(t *testing.T, srv *httptest.Server, name, content string) map[string]interface{} {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := http.Post(srv.URL+"/api/uploads", mw.FormDataContentType(), &body)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func postJSON(t *testing.T, url string, payload interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()

	data, err := json.Marshal(payload)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	var out map[string]interface{}
	json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func TestHealthCheck(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestGetFields(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/fields")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Fields []struct {
			Field    string   `json:"field"`
			Variants []string `json:"variants"`
		} `json:"fields"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.NotEmpty(t, out.Fields)
}

func TestUploadClassifiesHeaders(t *testing.T) {
	srv := newTestServer(t)

	out := uploadCSV(t, srv, "leads.csv",
		"First Name,Company_Name,JOB TITLE,industry/sector\nAnn,Acme,CTO,Software\n")

	require.NotEmpty(t, out["session_id"])
	cols := out["columns"].([]interface{})
	require.Len(t, cols, 4)
	for i, want := range []string{"first_name", "company_name", "job_title", "industry"} {
		col := cols[i].(map[string]interface{})
		assert.Equal(t, want, col["field"], "column %d", i)
		assert.Equal(t, "confirmed", col["tier"], "column %d", i)
	}
}

func TestUploadRejectsEmptyFile(t *testing.T) {
	srv := newTestServer(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, _ := mw.CreateFormFile("file", "empty.csv")
	part.Write(nil)
	mw.Close()

	resp, err := http.Post(srv.URL+"/api/uploads", mw.FormDataContentType(), &body)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMappingDecisionFlow(t *testing.T) {
	srv := newTestServer(t)

	out := uploadCSV(t, srv, "leads.csv",
		"email,Company Org,Misc Notes\na@example.com,Acme,hello\n")
	id := out["session_id"].(string)
	base := fmt.Sprintf("%s/api/uploads/%s", srv.URL, id)

	// Finalize with unresolved columns fails with the offenders listed.
	resp, body := postJSON(t, base+"/finalize", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Len(t, body["unresolved_columns"], 2)

	// Accept the company suggestion, ignore the notes column.
	resp, _ = postJSON(t, base+"/decisions", decisionRequest{Decisions: []columnDecision{
		{Index: 1, Action: "accept"},
		{Index: 2, Action: "ignore"},
	}})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = postJSON(t, base+"/finalize", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	m := body["mapping"].(map[string]interface{})
	assert.Equal(t, "email", m["0"])
	assert.Equal(t, "company_name", m["1"])
	_, hasIgnored := m["2"]
	assert.False(t, hasIgnored)
}

func TestDecisionErrors(t *testing.T) {
	srv := newTestServer(t)

	out := uploadCSV(t, srv, "leads.csv", "email,Misc Notes\na@example.com,x\n")
	id := out["session_id"].(string)
	base := fmt.Sprintf("%s/api/uploads/%s", srv.URL, id)

	resp, _ := postJSON(t, base+"/decisions", decisionRequest{Decisions: []columnDecision{
		{Index: 1, Action: "override", Field: "not_a_field"},
	}})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp, _ = postJSON(t, base+"/decisions", decisionRequest{Decisions: []columnDecision{
		{Index: 1, Action: "transmogrify"},
	}})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestIngestFlow(t *testing.T) {
	srv := newTestServer(t)

	csv := "email,first_name\n" +
		"a@example.com,Ann\n" +
		"bad-address,Bob\n" + // blocked by validation
		"c@example.com,Cam,extra\n" + // malformed
		"d@example.com,Dee\n"
	out := uploadCSV(t, srv, "leads.csv", csv)
	id := out["session_id"].(string)
	base := fmt.Sprintf("%s/api/uploads/%s", srv.URL, id)

	// Ingest before finalize is refused.
	resp, _ := postJSON(t, base+"/ingest", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = postJSON(t, base+"/finalize", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := postJSON(t, base+"/ingest", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(4), body["rows_read"])
	assert.Equal(t, float64(2), body["imported"])
	assert.Equal(t, float64(1), body["malformed"])
	assert.Equal(t, float64(1), body["errors"])

	// Progress reflects the completed run.
	presp, err := http.Get(base + "/progress")
	require.NoError(t, err)
	defer presp.Body.Close()
	var progress store.Progress
	require.NoError(t, json.NewDecoder(presp.Body).Decode(&progress))
	assert.Equal(t, "completed", progress.Status)
	assert.Equal(t, 2, progress.Imported)

	// A second run is refused; the source was consumed.
	resp, _ = postJSON(t, base+"/ingest", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestExportUpload(t *testing.T) {
	srv := newTestServer(t)

	out := uploadCSV(t, srv, "leads.csv", "email\na@example.com\nbad-address\n")
	id := out["session_id"].(string)
	base := fmt.Sprintf("%s/api/uploads/%s", srv.URL, id)

	resp, _ := postJSON(t, base+"/finalize", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	eresp, err := http.Get(base + "/export")
	require.NoError(t, err)
	defer eresp.Body.Close()
	require.Equal(t, http.StatusOK, eresp.StatusCode)
	assert.Contains(t, eresp.Header.Get("Content-Type"), "spreadsheetml")
	assert.Contains(t, eresp.Header.Get("Content-Disposition"), "leads-validated.xlsx")
}

func TestPreviewPersonalization(t *testing.T) {
	srv := newTestServer(t)

	out := uploadCSV(t, srv, "leads.csv",
		"email,first_name,company_name\na@example.com,ann,Acme\nb@example.com,,Globex\n")
	id := out["session_id"].(string)
	base := fmt.Sprintf("%s/api/uploads/%s", srv.URL, id)

	resp, _ := postJSON(t, base+"/finalize", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := postJSON(t, base+"/preview", previewRequest{
		Template: `Hi {{ first_name | default: "there" }} at {{ company_name }}`,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	previews := body["previews"].([]interface{})
	require.Len(t, previews, 2)

	first := previews[0].(map[string]interface{})
	assert.Equal(t, "Hi Ann at Acme", first["output"])
	second := previews[1].(map[string]interface{})
	assert.Equal(t, "Hi there at Globex", second["output"])

	// Bad templates are rejected upfront.
	resp, _ = postJSON(t, base+"/preview", previewRequest{Template: "{% if x %}unclosed"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestDeleteUploadCleansUp(t *testing.T) {
	srv, _, cfg := newTestEnv(t)

	out := uploadCSV(t, srv, "leads.csv", "email\na@example.com\n")
	id := out["session_id"].(string)
	base := fmt.Sprintf("%s/api/uploads/%s", srv.URL, id)

	resp, _ := postJSON(t, base+"/finalize", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = postJSON(t, base+"/ingest", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	req, err := http.NewRequest(http.MethodDelete, base, nil)
	require.NoError(t, err)
	dresp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	dresp.Body.Close()
	require.Equal(t, http.StatusNoContent, dresp.StatusCode)

	// Live session, stored file and Redis state are all gone.
	gresp, err := http.Get(base)
	require.NoError(t, err)
	gresp.Body.Close()
	assert.Equal(t, http.StatusNotFound, gresp.StatusCode)

	entries, err := os.ReadDir(cfg.Ingest.UploadDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "upload dir should be empty after delete")

	presp, err := http.Get(base + "/progress")
	require.NoError(t, err)
	presp.Body.Close()
	assert.Equal(t, http.StatusNotFound, presp.StatusCode)

	// A second delete finds nothing.
	req, err = http.NewRequest(http.MethodDelete, base, nil)
	require.NoError(t, err)
	dresp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	dresp.Body.Close()
	assert.Equal(t, http.StatusNotFound, dresp.StatusCode)
}

func TestSweepEvictsExpiredSessions(t *testing.T) {
	srv, h, cfg := newTestEnv(t)

	out := uploadCSV(t, srv, "leads.csv", "email\na@example.com\n")
	id := out["session_id"].(string)

	// A fresh session survives the standard horizon.
	assert.Equal(t, 0, h.Sweep(context.Background(), store.SessionTTL))

	// A zero horizon expires everything created before now.
	require.Equal(t, 1, h.Sweep(context.Background(), 0))

	entries, err := os.ReadDir(cfg.Ingest.UploadDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "upload dir should be empty after sweep")

	gresp, err := http.Get(srv.URL + "/api/uploads/" + id)
	require.NoError(t, err)
	gresp.Body.Close()
	assert.Equal(t, http.StatusNotFound, gresp.StatusCode)

	assert.Equal(t, 0, h.Sweep(context.Background(), 0))
}

func TestUnknownSession(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/uploads/nope")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp2, _ := postJSON(t, srv.URL+"/api/uploads/nope/finalize", nil)
	assert.Equal(t, http.StatusNotFound, resp2.StatusCode)
}

func TestS3UploadNotConfigured(t *testing.T) {
	srv := newTestServer(t)

	resp, _ := postJSON(t, srv.URL+"/api/uploads/s3",
		s3UploadRequest{Bucket: "b", Key: "k.csv"})
	assert.Equal(t, http.StatusNotImplemented, resp.StatusCode)
}

func TestUploadGetState(t *testing.T) {
	srv := newTestServer(t)

	out := uploadCSV(t, srv, "leads.csv", "email\na@example.com\n")
	id := out["session_id"].(string)

	resp, err := http.Get(srv.URL + "/api/uploads/" + id)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "leads.csv", body["file_name"])
	cols := body["columns"].([]interface{})
	require.Len(t, cols, 1)
	assert.NotEmpty(t, id)
}
