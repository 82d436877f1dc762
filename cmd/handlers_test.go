package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-api/internal/model"
	"github.com/sells-group/prospect-api/internal/notify"
	"github.com/sells-group/prospect-api/internal/queue"
	"github.com/sells-group/prospect-api/internal/registry"
	"github.com/sells-group/prospect-api/internal/search"
	"github.com/sells-group/prospect-api/internal/store"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

// newTestEnv wires an appEnv over a fresh sqlite store with no external
// clients, which is the shape of a deployment without API keys.
func newTestEnv(t *testing.T) *appEnv {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	reg, err := registry.Load("")
	require.NoError(t, err)

	hub := notify.NewHub()
	t.Cleanup(func() { hub.Close() }) //nolint:errcheck

	return &appEnv{
		Store:    st,
		Registry: reg,
		Hub:      hub,
		Notifier: hub,
		Queue:    queue.New(st, hub),
		Search:   search.NewService(st, nil, nil, reg),
	}
}

func seedCompany(t *testing.T, env *appEnv, c model.Company) model.Company {
	t.Helper()
	inserted, err := env.Store.InsertCompanies(context.Background(), []model.Company{c})
	require.NoError(t, err)
	return inserted[0]
}

func doRequest(t *testing.T, env *appEnv, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	newRouter(env, nil).ServeHTTP(rr, req)
	return rr
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v))
	return v
}

func TestHealth(t *testing.T) {
	rr := doRequest(t, newTestEnv(t), http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", decodeBody[map[string]string](t, rr)["status"])
}

func TestSearchCompanies(t *testing.T) {
	env := newTestEnv(t)
	seedCompany(t, env, model.Company{Name: "Acme Robotics", Industry: "Robotics", Country: "Germany", Size: "1-10"})
	seedCompany(t, env, model.Company{Name: "Globex", Industry: "Software", Country: "France", Size: "11-50"})

	rr := doRequest(t, env, http.MethodGet, "/api/companies/search?country=Germany", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	page := decodeBody[model.Page[model.Company]](t, rr)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "Acme Robotics", page.Items[0].Name)
	assert.Equal(t, 1, page.TotalItems)

	// Size aliases resolve through the registry.
	rr = doRequest(t, env, http.MethodGet, "/api/companies/search?size=startup", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	page = decodeBody[model.Page[model.Company]](t, rr)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "Acme Robotics", page.Items[0].Name)
}

func TestSearchCompanies_Pagination(t *testing.T) {
	env := newTestEnv(t)
	for i := 0; i < 15; i++ {
		seedCompany(t, env, model.Company{Name: "Co " + string(rune('A'+i)), Industry: "Software"})
	}

	rr := doRequest(t, env, http.MethodGet, "/api/companies/search?page=2&limit=10", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	page := decodeBody[model.Page[model.Company]](t, rr)
	assert.Equal(t, 2, page.CurrentPage)
	assert.Equal(t, 2, page.TotalPages)
	assert.Equal(t, 15, page.TotalItems)
	assert.Len(t, page.Items, 5)
}

func TestNaturalSearch_NotConfigured(t *testing.T) {
	rr := doRequest(t, newTestEnv(t), http.MethodGet, "/api/companies/natural-search?query=fintech", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAISearch_NotConfigured(t *testing.T) {
	rr := doRequest(t, newTestEnv(t), http.MethodPost, "/api/companies/ai-search",
		map[string]any{"query": "fintech"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAISearch_InvalidBody(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodPost, "/api/companies/ai-search", strings.NewReader("{not json"))
	rr := httptest.NewRecorder()
	newRouter(env, nil).ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestDistinctValues(t *testing.T) {
	env := newTestEnv(t)
	seedCompany(t, env, model.Company{Name: "A", Industry: "Robotics", Country: "Germany"})
	seedCompany(t, env, model.Company{Name: "B", Industry: "Software", Country: "France"})

	rr := doRequest(t, env, http.MethodGet, "/api/companies/industries", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []string{"Robotics", "Software"}, decodeBody[[]string](t, rr))

	rr = doRequest(t, env, http.MethodGet, "/api/companies/countries", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []string{"France", "Germany"}, decodeBody[[]string](t, rr))
}

func TestGetCompany(t *testing.T) {
	env := newTestEnv(t)
	c := seedCompany(t, env, model.Company{Name: "Acme"})

	rr := doRequest(t, env, http.MethodGet, "/api/companies/"+c.ID, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "Acme", decodeBody[model.Company](t, rr).Name)

	rr = doRequest(t, env, http.MethodGet, "/api/companies/missing", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestSaveUnsave(t *testing.T) {
	env := newTestEnv(t)
	c := seedCompany(t, env, model.Company{Name: "Acme"})

	rr := doRequest(t, env, http.MethodPost, "/api/companies/"+c.ID+"/save", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, decodeBody[model.Company](t, rr).Saved)

	rr = doRequest(t, env, http.MethodGet, "/api/companies/saved/list", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	page := decodeBody[model.Page[model.Company]](t, rr)
	require.Len(t, page.Items, 1)
	assert.Equal(t, c.ID, page.Items[0].ID)

	rr = doRequest(t, env, http.MethodPost, "/api/companies/"+c.ID+"/unsave", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.False(t, decodeBody[model.Company](t, rr).Saved)

	rr = doRequest(t, env, http.MethodPost, "/api/companies/missing/save", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestDescribeAndJobStatus(t *testing.T) {
	env := newTestEnv(t)
	c := seedCompany(t, env, model.Company{Name: "Acme"})

	rr := doRequest(t, env, http.MethodPost, "/api/companies/"+c.ID+"/describe", nil)
	require.Equal(t, http.StatusAccepted, rr.Code)
	jobID := decodeBody[map[string]string](t, rr)["jobId"]
	require.NotEmpty(t, jobID)

	rr = doRequest(t, env, http.MethodGet, "/api/jobs/"+jobID, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	status := decodeBody[queue.Status](t, rr)
	assert.Equal(t, model.JobStatusPending, status.Status)

	// Unknown ids answer 200 with a not_found status, never an error.
	rr = doRequest(t, env, http.MethodGet, "/api/jobs/unknown", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	status = decodeBody[queue.Status](t, rr)
	assert.Equal(t, model.JobStatusNotFound, status.Status)

	// Enqueue does not check company existence; the worker fails the job.
	rr = doRequest(t, env, http.MethodPost, "/api/companies/missing/describe", nil)
	assert.Equal(t, http.StatusAccepted, rr.Code)
}

func TestCompanyJobs(t *testing.T) {
	env := newTestEnv(t)
	c := seedCompany(t, env, model.Company{Name: "Acme"})

	for i := 0; i < 3; i++ {
		rr := doRequest(t, env, http.MethodPost, "/api/companies/"+c.ID+"/describe", nil)
		require.Equal(t, http.StatusAccepted, rr.Code)
	}

	rr := doRequest(t, env, http.MethodGet, "/api/companies/"+c.ID+"/jobs?limit=2", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	jobs := decodeBody[[]model.Job](t, rr)
	assert.Len(t, jobs, 2)
}

func TestJobEvents_TerminalSnapshotEndsStream(t *testing.T) {
	env := newTestEnv(t)
	c := seedCompany(t, env, model.Company{Name: "Acme"})

	jobID, err := env.Queue.Enqueue(context.Background(), c.ID)
	require.NoError(t, err)

	claimed, err := env.Store.ClaimJobs(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	require.NoError(t, env.Store.CompleteJob(context.Background(), jobID, json.RawMessage(`{"ok":true}`)))

	rr := doRequest(t, env, http.MethodGet, "/api/events/jobs/"+jobID, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "text/event-stream", rr.Header().Get("Content-Type"))

	scanner := bufio.NewScanner(rr.Body)
	require.True(t, scanner.Scan())
	line := scanner.Text()
	require.True(t, strings.HasPrefix(line, "data: "))

	var status queue.Status
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &status))
	assert.Equal(t, model.JobStatusCompleted, status.Status)
}
