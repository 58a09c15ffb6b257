package httpapp

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cesargomez89/keepoffline/internal/app"
	"github.com/cesargomez89/keepoffline/internal/http/dto"
	"github.com/cesargomez89/keepoffline/internal/logger"
	"github.com/cesargomez89/keepoffline/internal/store"
	"github.com/cesargomez89/keepoffline/internal/transfer"
)

func setupTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	db, err := store.NewSQLiteDB(filepath.Join(t.TempDir(), "test_http.db"))
	if err != nil {
		t.Fatalf("Failed to open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	svc := app.NewJobService(db, store.NewSettingsRepo(db), transfer.NewFake(), nil, logger.Discard())
	srv := httptest.NewServer(NewRouter(NewHandler(svc, logger.Discard())))
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, url, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return v
}

func TestHealth(t *testing.T) {
	srv := setupTestServer(t)
	resp := do(t, http.MethodGet, srv.URL+"/healthz", "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestJobsLifecycle(t *testing.T) {
	srv := setupTestServer(t)

	resp := do(t, http.MethodPost, srv.URL+"/jobs", `{"media_id":"s1","kind":"series","title":"Show","count":2}`)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("create status = %d, want 202", resp.StatusCode)
	}
	created := decode[dto.JobResponse](t, resp)
	if created.ID == "" || created.Status != "pending" || created.Count != 2 {
		t.Errorf("unexpected job %+v", created)
	}

	list := decode[[]dto.JobResponse](t, do(t, http.MethodGet, srv.URL+"/jobs", ""))
	if len(list) != 1 || list[0].ID != created.ID {
		t.Fatalf("unexpected list %+v", list)
	}

	resp = do(t, http.MethodPut, srv.URL+"/jobs/"+created.ID+"/count", `{"count":5}`)
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("set count status = %d, want 204", resp.StatusCode)
	}
	got := decode[dto.JobResponse](t, do(t, http.MethodGet, srv.URL+"/jobs/"+created.ID, ""))
	if got.Count != 5 {
		t.Errorf("count = %d, want 5", got.Count)
	}

	resp = do(t, http.MethodPut, srv.URL+"/jobs/"+created.ID+"/count", `{"count":0}`)
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("zero count status = %d, want 204", resp.StatusCode)
	}
	resp = do(t, http.MethodGet, srv.URL+"/jobs/"+created.ID, "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("deleted job status = %d, want 404", resp.StatusCode)
	}
}

func TestCreateJobValidation(t *testing.T) {
	srv := setupTestServer(t)

	resp := do(t, http.MethodPost, srv.URL+"/jobs", `{"media_id":"","kind":"album"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	body := decode[struct {
		Fields map[string]string `json:"fields"`
	}](t, resp)
	if _, ok := body.Fields["media_id"]; !ok {
		t.Errorf("expected media_id error, got %v", body.Fields)
	}
	if _, ok := body.Fields["kind"]; !ok {
		t.Errorf("expected kind error, got %v", body.Fields)
	}

	resp = do(t, http.MethodPost, srv.URL+"/jobs", `{not json`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("malformed body status = %d, want 400", resp.StatusCode)
	}
}

func TestDeleteMissingJob(t *testing.T) {
	srv := setupTestServer(t)
	resp := do(t, http.MethodDelete, srv.URL+"/jobs/missing", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestPlaybackCompleted(t *testing.T) {
	srv := setupTestServer(t)
	do(t, http.MethodPost, srv.URL+"/jobs", `{"media_id":"m1","kind":"movie"}`)

	resp := do(t, http.MethodPost, srv.URL+"/playback/m1/completed", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body := decode[dto.CompletedResponse](t, resp)
	if body.ItemID != "m1" || len(body.JobIDs) != 1 {
		t.Errorf("unexpected response %+v", body)
	}
}

func TestSettings(t *testing.T) {
	srv := setupTestServer(t)

	if resp := do(t, http.MethodPut, srv.URL+"/settings/profile", `{"profile_id":"kids"}`); resp.StatusCode != http.StatusNoContent {
		t.Errorf("profile status = %d, want 204", resp.StatusCode)
	}
	if resp := do(t, http.MethodPut, srv.URL+"/settings/metered", `{"allow_metered":true}`); resp.StatusCode != http.StatusNoContent {
		t.Errorf("metered status = %d, want 204", resp.StatusCode)
	}
	if resp := do(t, http.MethodPut, srv.URL+"/settings/metered", `{}`); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing metered status = %d, want 400", resp.StatusCode)
	}

	prefs := decode[app.Preferences](t, do(t, http.MethodGet, srv.URL+"/settings", ""))
	if prefs.ActiveProfile != "kids" || !prefs.AllowMetered {
		t.Errorf("unexpected preferences %+v", prefs)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := setupTestServer(t)
	resp := do(t, http.MethodGet, srv.URL+"/metrics", "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}
