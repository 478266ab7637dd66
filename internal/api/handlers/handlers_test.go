package handlers

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/foundry/artifactview/internal/adapters/auth"
	"github.com/foundry/artifactview/internal/core/models"
	"github.com/foundry/artifactview/internal/core/services"
	"github.com/foundry/artifactview/internal/core/services/servicestest"
	"github.com/foundry/artifactview/internal/core/views"
	"github.com/foundry/artifactview/internal/util/metrics"
)

const (
	testProject = "home:tom"
	testPackage = "my_package"
	testRepo    = "openSUSE_Tumbleweed"
	testArch    = "x86_64"
	basePath    = "/api/v1/projects/home:tom/packages/my_package"
)

type testEnv struct {
	backend *servicestest.SpyBackend
	metrics *metrics.Metrics
	router  http.Handler
}

func setupTestHandler(t *testing.T, opts Options) *testEnv {
	t.Helper()
	b := servicestest.NewSpyBackend()
	b.AddPackage(testProject, testPackage, testRepo, testArch)

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	view := views.New(b, views.DefaultConfig(), zerolog.Nop())
	authenticator := auth.NewTokenAuth([]string{"test-token"})

	h := New(view, authenticator, reg, m, zerolog.Nop(), opts)
	return &testEnv{backend: b, metrics: m, router: h.Router()}
}

func doRequest(t *testing.T, router http.Handler, method, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil {
		t.Fatalf("decoding response %q: %v", rr.Body.String(), err)
	}
}

func TestAuthRequired(t *testing.T) {
	env := setupTestHandler(t, Options{})

	rr := doRequest(t, env.router, "GET", basePath+"/revisions", "")
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rr.Code)
	}
	if len(env.backend.Calls()) != 0 {
		t.Errorf("backend called without auth: %v", env.backend.Calls())
	}
}

func TestInvalidToken(t *testing.T) {
	env := setupTestHandler(t, Options{})

	rr := doRequest(t, env.router, "GET", basePath+"/revisions", "bad-token")
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rr.Code)
	}
}

func TestHealthAndMetricsSkipAuth(t *testing.T) {
	env := setupTestHandler(t, Options{})

	rr := doRequest(t, env.router, "GET", "/healthz", "")
	if rr.Code != http.StatusOK {
		t.Errorf("healthz: expected 200, got %d", rr.Code)
	}

	env.metrics.CountView("revisions", "success")
	rr = doRequest(t, env.router, "GET", "/metrics", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("metrics: expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "artifactview_view_results_total") {
		t.Error("metrics output missing view results")
	}
}

func TestRevisions(t *testing.T) {
	env := setupTestHandler(t, Options{})
	env.backend.Revisions[testProject+"/"+testPackage] = 25

	rr := doRequest(t, env.router, "GET", basePath+"/revisions", "test-token")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var page views.RevisionsPage
	decodeJSON(t, rr, &page)
	if len(page.Revisions) != 20 || page.Revisions[0] != 25 || page.Revisions[19] != 6 {
		t.Errorf("page 1 revisions = %v", page.Revisions)
	}
	if !page.HasMore || page.TotalPages != 2 {
		t.Errorf("has_more = %v, total_pages = %d", page.HasMore, page.TotalPages)
	}

	rr = doRequest(t, env.router, "GET", basePath+"/revisions?page=2", "test-token")
	decodeJSON(t, rr, &page)
	if len(page.Revisions) != 5 || page.Revisions[0] != 5 || page.Revisions[4] != 1 {
		t.Errorf("page 2 revisions = %v", page.Revisions)
	}

	rr = doRequest(t, env.router, "GET", basePath+"/revisions?rev=23&show_all=yes", "test-token")
	decodeJSON(t, rr, &page)
	if len(page.Revisions) != 23 || page.Ceiling != 23 {
		t.Errorf("show_all revisions = %v, ceiling = %d", page.Revisions, page.Ceiling)
	}
}

func TestRevisionsPageParsing(t *testing.T) {
	env := setupTestHandler(t, Options{})
	env.backend.Revisions[testProject+"/"+testPackage] = 3

	rr := doRequest(t, env.router, "GET", basePath+"/revisions?page=abc", "test-token")
	if rr.Code != http.StatusBadRequest {
		t.Errorf("non-numeric page: expected 400, got %d", rr.Code)
	}

	rr = doRequest(t, env.router, "GET", basePath+"/revisions?page=-4", "test-token")
	var page views.RevisionsPage
	decodeJSON(t, rr, &page)
	if page.Page != 1 || len(page.Revisions) != 3 {
		t.Errorf("negative page: page = %d, revisions = %v", page.Page, page.Revisions)
	}
}

func TestRevisionsAccessDeniedRedirects(t *testing.T) {
	env := setupTestHandler(t, Options{})
	env.backend.Packages[testProject+"/"+testPackage].SourceAccessDisabled = true

	rr := doRequest(t, env.router, "GET", basePath+"/revisions", "test-token")
	if rr.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", rr.Code)
	}
	if loc := rr.Header().Get("Location"); loc != "/api/v1/projects/home:tom" {
		t.Errorf("Location = %q", loc)
	}
	var body models.RedirectResponse
	decodeJSON(t, rr, &body)
	if body.Error != "access_denied" {
		t.Errorf("error = %q, want access_denied", body.Error)
	}
	if !strings.HasPrefix(body.Message, "You don't have access to the sources of this package") {
		t.Errorf("message = %q", body.Message)
	}
	if env.backend.Count(servicestest.CallListRevisions) != 0 {
		t.Error("revisions listed for a protected package")
	}
}

func TestRdiffEmptyRevision(t *testing.T) {
	env := setupTestHandler(t, Options{})

	rr := doRequest(t, env.router, "GET", basePath+"/rdiff?rev=", "test-token")
	if rr.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", rr.Code)
	}
	var body models.RedirectResponse
	decodeJSON(t, rr, &body)
	if body.Message != "Error getting diff: revision is empty" || body.Error != "validation_error" {
		t.Errorf("body = %+v", body)
	}
	if env.backend.Count(servicestest.CallFetchDiff) != 0 {
		t.Error("diff fetched for an empty revision")
	}
}

func TestRdiffTruncation(t *testing.T) {
	env := setupTestHandler(t, Options{})
	var big bytes.Buffer
	for i := 0; i < 11000; i++ {
		big.WriteString("+line\n")
	}
	env.backend.Diffs[testProject+"/"+testPackage] = []models.DiffFile{
		{Path: "big.spec", State: "changed", Content: big.Bytes()},
	}

	rr := doRequest(t, env.router, "GET", basePath+"/rdiff?orev=1&rev=2", "test-token")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var page views.RdiffPage
	decodeJSON(t, rr, &page)
	if !page.NotFullDiff || len(page.Files) != 1 || !page.Files[0].Truncated {
		t.Fatalf("expected truncated diff, got %+v", page)
	}
	if n := strings.Count(page.Files[0].Diff, "\n"); n != 203 {
		t.Errorf("truncated diff has %d lines, want 203", n)
	}

	rr = doRequest(t, env.router, "GET", basePath+"/rdiff?orev=1&rev=2&full_diff=1", "test-token")
	decodeJSON(t, rr, &page)
	if page.NotFullDiff || page.Files[0].Truncated {
		t.Error("full_diff should not truncate")
	}

	queries := env.backend.DiffQueries()
	if len(queries) != 2 || queries[0].Rev != "2" || queries[0].OldRev != "1" {
		t.Errorf("diff queries = %+v", queries)
	}
}

func TestLiveBuildLog(t *testing.T) {
	env := setupTestHandler(t, Options{})
	composite := testPackage + ":flavor"
	env.backend.Flavors[testProject+"/"+testPackage] = []string{"flavor"}
	env.backend.Logs[composite] = []byte("[   1s] building\n")
	env.backend.Statuses[composite] = "building"
	env.backend.Jobs[composite] = &models.RawJobStatus{WorkerID: "w1", Code: "building"}

	rr := doRequest(t, env.router, "GET", basePath+":flavor/builds/"+testRepo+"/"+testArch+"/log", "test-token")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if rr.Header().Get("Cache-Control") != "no-store" {
		t.Error("log responses must not be cached")
	}
	var page views.LivePage
	decodeJSON(t, rr, &page)
	if page.Package != testPackage || page.PackageName != composite {
		t.Errorf("package = %q, package_name = %q", page.Package, page.PackageName)
	}
	if page.Log != "[   1s] building\n" || page.Status != "building" || page.WorkerID != "w1" {
		t.Errorf("page = %+v", page)
	}

	rr = doRequest(t, env.router, "GET", "/metrics", "")
	want := fmt.Sprintf("artifactview_log_bytes_served_total %d", len(page.Log))
	if !strings.Contains(rr.Body.String(), want) {
		t.Errorf("metrics output missing %q", want)
	}
}

func TestLiveBuildLogUnknownArch(t *testing.T) {
	env := setupTestHandler(t, Options{})

	rr := doRequest(t, env.router, "GET", basePath+"/builds/"+testRepo+"/s390x/log", "test-token")
	if rr.Code != http.StatusSeeOther {
		t.Fatalf("expected 303, got %d", rr.Code)
	}
	if loc := rr.Header().Get("Location"); loc != basePath {
		t.Errorf("Location = %q, want %q", loc, basePath)
	}
	if n := env.backend.Count(servicestest.CallFetchLogChunk); n != 0 {
		t.Errorf("fetched %d chunks for an unknown arch", n)
	}
}

func TestPollBuildLog(t *testing.T) {
	env := setupTestHandler(t, Options{})
	env.backend.Logs[testPackage] = []byte("first")
	env.backend.Jobs[testPackage] = &models.RawJobStatus{WorkerID: "w1", Code: "building"}
	pollPath := basePath + "/builds/" + testRepo + "/" + testArch + "/log/poll"

	var page views.PollPage
	rr := doRequest(t, env.router, "GET", pollPath+"?offset=0", "test-token")
	decodeJSON(t, rr, &page)
	if page.LogChunk != "first" || page.Offset != 5 {
		t.Fatalf("first poll = %+v", page)
	}

	rr = doRequest(t, env.router, "GET", pollPath+"?offset=5", "test-token")
	decodeJSON(t, rr, &page)
	if page.LogChunk != "" || page.Offset != 5 || page.Finished {
		t.Errorf("idle poll = %+v", page)
	}

	env.backend.Jobs[testPackage] = nil
	rr = doRequest(t, env.router, "GET", pollPath+"?offset=5", "test-token")
	decodeJSON(t, rr, &page)
	if !page.Finished {
		t.Error("poll should report finished once the job is gone")
	}
}

func TestPollBuildLogInlineErrors(t *testing.T) {
	env := setupTestHandler(t, Options{})
	env.backend.Logs[testPackage] = []byte("data")
	pollPath := basePath + "/builds/" + testRepo + "/" + testArch + "/log/poll"

	tests := []struct {
		name   string
		query  string
		setup  func()
		offset int64
	}{
		{"non-numeric offset", "?offset=abc", func() {}, 0},
		{"negative offset", "?offset=-1", func() {}, -1},
		{"backend down", "?offset=2", func() {
			env.backend.Err[servicestest.CallFetchLogChunk] = services.ErrBackendUnavailable
		}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.setup()
			rr := doRequest(t, env.router, "GET", pollPath+tt.query, "test-token")
			if rr.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d", rr.Code)
			}
			var page views.PollPage
			decodeJSON(t, rr, &page)
			if page.Errors == "" {
				t.Error("expected inline errors")
			}
			if page.Offset != tt.offset {
				t.Errorf("offset = %d, want %d", page.Offset, tt.offset)
			}
		})
	}
}

func TestCompression(t *testing.T) {
	env := setupTestHandler(t, Options{Compress: true})
	env.backend.Logs[testPackage] = bytes.Repeat([]byte("compressible log line\n"), 500)

	req := httptest.NewRequest("GET", basePath+"/builds/"+testRepo+"/"+testArch+"/log", nil)
	req.Header.Set("Authorization", "Bearer test-token")
	req.Header.Set("Accept-Encoding", "gzip")
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)

	if rr.Header().Get("Content-Encoding") != "gzip" {
		t.Fatalf("expected gzip response, headers = %v", rr.Header())
	}
	zr, err := gzip.NewReader(rr.Body)
	if err != nil {
		t.Fatalf("gzip reader: %v", err)
	}
	body, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("reading gzip body: %v", err)
	}
	var page views.LivePage
	if err := json.Unmarshal(body, &page); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if len(page.Log) != 500*len("compressible log line\n") {
		t.Errorf("log length = %d", len(page.Log))
	}
}

func TestRateLimit(t *testing.T) {
	env := setupTestHandler(t, Options{RateLimit: 2})

	for i := 0; i < 2; i++ {
		if rr := doRequest(t, env.router, "GET", "/healthz", ""); rr.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, rr.Code)
		}
	}
	if rr := doRequest(t, env.router, "GET", "/healthz", ""); rr.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", rr.Code)
	}
}

func TestRouteNotFound(t *testing.T) {
	env := setupTestHandler(t, Options{})

	rr := doRequest(t, env.router, "GET", "/api/v2/nothing", "test-token")
	if rr.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rr.Code)
	}
}

func TestPathParamsDecodedOnce(t *testing.T) {
	tests := []struct {
		name    string
		escaped string
		pkg     string
	}{
		{"literal percent", "a%2541", "a%41"},
		{"escaped slash", "a%2Fb", "a/b"},
		{"plain", "plain", "plain"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupTestHandler(t, Options{})
			env.backend.AddPackage(testProject, tt.pkg, "")
			env.backend.Revisions[testProject+"/"+tt.pkg] = 3

			path := "/api/v1/projects/" + testProject + "/packages/" + tt.escaped + "/revisions"
			rr := doRequest(t, env.router, "GET", path, "test-token")
			if rr.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
			}
			var page views.RevisionsPage
			decodeJSON(t, rr, &page)
			if page.Package != tt.pkg || len(page.Revisions) != 3 {
				t.Errorf("package = %q, revisions = %v; want %q with 3 revisions", page.Package, page.Revisions, tt.pkg)
			}
		})
	}
}

func TestParseHelpers(t *testing.T) {
	for in, want := range map[string]bool{"1": true, "true": true, "YES": true, "0": false, "": false, "no": false} {
		if got := parseBool(in); got != want {
			t.Errorf("parseBool(%q) = %v, want %v", in, got, want)
		}
	}
	for in, want := range map[string]int{"": 1, "0": 1, "-3": 1, "4": 4} {
		got, err := parsePage(in)
		if err != nil || got != want {
			t.Errorf("parsePage(%q) = %d, %v; want %d", in, got, err, want)
		}
	}
	if _, err := parsePage("x"); err == nil {
		t.Error("parsePage(x) should fail")
	}
}
