package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"pageanalyzer/internal/inspector"
	"pageanalyzer/internal/storage"
	"pageanalyzer/internal/storage/memory"
)

// fakeInspector returns a canned result or error without touching the
// network.
type fakeInspector struct {
	result inspector.CheckResult
	err    error
	calls  int
}

func (f *fakeInspector) Check(_ context.Context, _ string) (inspector.CheckResult, error) {
	f.calls++
	return f.result, f.err
}

func newTestServer(insp Inspector) (*Server, *memory.Store) {
	store := memory.New()
	return NewServer(store, insp, zap.NewNop()), store
}

func postURL(t *testing.T, server *Server, raw string) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(map[string]string{"url": raw})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/v1/urls", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	return rec
}

func TestCreateURL(t *testing.T) {
	t.Parallel()

	server, _ := newTestServer(&fakeInspector{})

	rec := postURL(t, server, "https://example.com/page?x=1#frag")
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp struct {
		URL storage.URLEntry `json:"url"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "https://example.com", resp.URL.Name)
}

func TestCreateURLInvalid(t *testing.T) {
	t.Parallel()

	server, _ := newTestServer(&fakeInspector{})

	rec := postURL(t, server, "not a url")
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Contains(t, rec.Body.String(), "invalid url")
}

func TestCreateURLInvalidJSON(t *testing.T) {
	t.Parallel()

	server, _ := newTestServer(&fakeInspector{})

	req := httptest.NewRequest(http.MethodPost, "/v1/urls", bytes.NewBufferString("{invalid"))
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateURLDedup(t *testing.T) {
	t.Parallel()

	server, store := newTestServer(&fakeInspector{})

	first := postURL(t, server, "https://example.com")
	require.Equal(t, http.StatusCreated, first.Code)

	// Same canonical URL spelled differently resolves to the same entry.
	second := postURL(t, server, "https://example.com/other/path")
	require.Equal(t, http.StatusOK, second.Code)

	var firstResp, secondResp struct {
		URL storage.URLEntry `json:"url"`
	}
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &firstResp))
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &secondResp))
	require.Equal(t, firstResp.URL.ID, secondResp.URL.ID)

	entries, err := store.ListEntries(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestGetURLNotFound(t *testing.T) {
	t.Parallel()

	server, _ := newTestServer(&fakeInspector{})

	req := httptest.NewRequest(http.MethodGet, "/v1/urls/99", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetURLWithChecks(t *testing.T) {
	t.Parallel()

	insp := &fakeInspector{result: inspector.CheckResult{
		StatusCode: 200,
		Title:      "Hi",
		H1:         "Hello",
	}}
	server, _ := newTestServer(insp)

	require.Equal(t, http.StatusCreated, postURL(t, server, "https://example.com").Code)

	checkReq := httptest.NewRequest(http.MethodPost, "/v1/urls/1/checks", nil)
	checkRec := httptest.NewRecorder()
	server.Handler().ServeHTTP(checkRec, checkReq)
	require.Equal(t, http.StatusCreated, checkRec.Code)

	req := httptest.NewRequest(http.MethodGet, "/v1/urls/1", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		URL    storage.URLEntry `json:"url"`
		Checks []storage.Check  `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "https://example.com", resp.URL.Name)
	require.Len(t, resp.Checks, 1)
	require.Equal(t, "Hi", resp.Checks[0].Title)
	require.Equal(t, "Hello", resp.Checks[0].H1)
	require.NotNil(t, resp.Checks[0].StatusCode)
	require.Equal(t, 200, *resp.Checks[0].StatusCode)
}

func TestRunCheckEntryNotFound(t *testing.T) {
	t.Parallel()

	insp := &fakeInspector{}
	server, _ := newTestServer(insp)

	req := httptest.NewRequest(http.MethodPost, "/v1/urls/7/checks", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Zero(t, insp.calls)
}

func TestRunCheckFetchFailureWritesNothing(t *testing.T) {
	t.Parallel()

	insp := &fakeInspector{err: &inspector.FetchError{
		URL: "https://example.com",
		Err: context.DeadlineExceeded,
	}}
	server, store := newTestServer(insp)

	require.Equal(t, http.StatusCreated, postURL(t, server, "https://example.com").Code)

	req := httptest.NewRequest(http.MethodPost, "/v1/urls/1/checks", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadGateway, rec.Code)
	require.Contains(t, rec.Body.String(), "check failed")

	checks, err := store.ListChecks(context.Background(), 1)
	require.NoError(t, err)
	require.Empty(t, checks)
}

func TestListURLsMergedListing(t *testing.T) {
	t.Parallel()

	insp := &fakeInspector{result: inspector.CheckResult{StatusCode: 200}}
	server, _ := newTestServer(insp)

	require.Equal(t, http.StatusCreated, postURL(t, server, "https://a.example").Code)
	require.Equal(t, http.StatusCreated, postURL(t, server, "https://b.example").Code)

	checkReq := httptest.NewRequest(http.MethodPost, "/v1/urls/1/checks", nil)
	server.Handler().ServeHTTP(httptest.NewRecorder(), checkReq)

	req := httptest.NewRequest(http.MethodGet, "/v1/urls", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		URLs []storage.MergedEntry `json:"urls"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.URLs, 2)
	require.Equal(t, int64(2), resp.URLs[0].ID)
	require.Nil(t, resp.URLs[0].LastCheckStatus)
	require.Equal(t, int64(1), resp.URLs[1].ID)
	require.NotNil(t, resp.URLs[1].LastCheckStatus)
	require.Equal(t, 200, *resp.URLs[1].LastCheckStatus)
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	server, _ := newTestServer(&fakeInspector{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}
