package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/crypto/bcrypt"

	"github.com/jonathan/applications-dashboard/internal/dashboard"
	"github.com/jonathan/applications-dashboard/internal/db"
	"github.com/jonathan/applications-dashboard/internal/fetch"
	"github.com/jonathan/applications-dashboard/internal/parsing"
	"github.com/jonathan/applications-dashboard/internal/rendering"
	"github.com/jonathan/applications-dashboard/internal/server/ratelimit"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const twoApplications = "date,company,position\n1/5/2024,Acme,Engineer\n1/6/2024,Globex,Designer\n"

var testNow = time.Date(2024, time.January, 10, 9, 0, 0, 0, time.UTC)

type fakeHistory struct {
	snapshots []db.Snapshot
	err       error
	gotLimit  int
}

func (f *fakeHistory) ListSnapshots(_ context.Context, limit int) ([]db.Snapshot, error) {
	f.gotLimit = limit
	return f.snapshots, f.err
}

// testServer bundles a server with the applications file it reads.
type testServer struct {
	*Server
	path string
}

func (ts *testServer) writeSource(t *testing.T, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(ts.path, []byte(content), 0644))
}

func (ts *testServer) do(method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	w := httptest.NewRecorder()
	ts.Handler().ServeHTTP(w, req)
	return w
}

func newTestServer(t *testing.T, mutate func(*Config)) *testServer {
	t.Helper()
	path := filepath.Join(t.TempDir(), "applications.txt")
	require.NoError(t, os.WriteFile(path, []byte(twoApplications), 0644))

	d := dashboard.New(fetch.NewLoader(path, nil), dashboard.Options{Parse: parsing.DefaultOptions()},
		func() time.Time { return testNow }, nil)

	cfg := Config{
		Port:       0,
		Dashboard:  d,
		Render:     rendering.DefaultOptions(),
		Parse:      parsing.DefaultOptions(),
		SourcePath: path,
	}
	if mutate != nil {
		mutate(&cfg)
	}

	s, err := New(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
	})
	return &testServer{Server: s, path: path}
}

func decodeView(t *testing.T, w *httptest.ResponseRecorder) rendering.View {
	t.Helper()
	var v rendering.View
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

func TestNew_RequiresDashboard(t *testing.T) {
	_, err := New(Config{}, nil)
	assert.Error(t, err)
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)

	w := ts.do(http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestIndex_LoadsAndRenders(t *testing.T) {
	ts := newTestServer(t, nil)

	w := ts.do(http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")

	doc, err := goquery.NewDocumentFromReader(w.Body)
	require.NoError(t, err)
	assert.Equal(t, "2", strings.TrimSpace(doc.Find("#total-applications").Text()))
	assert.Equal(t, "1.0", strings.TrimSpace(doc.Find("#daily-average").Text()))
	assert.Equal(t, "Jan 5, 2024 - Jan 6, 2024", strings.TrimSpace(doc.Find("#date-range").Text()))
	assert.Equal(t, 2, doc.Find("#applications-list tr").Length())
	assert.Equal(t, dashboard.MessageLoaded, strings.TrimSpace(doc.Find("#status-message").Text()))
}

func TestIndex_LoadFailureStillRenders(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.writeSource(t, "when,who,what\n1/5/2024,Acme,Engineer\n")

	w := ts.do(http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, w.Code)

	doc, err := goquery.NewDocumentFromReader(w.Body)
	require.NoError(t, err)
	status := doc.Find("#status-message")
	assert.True(t, status.HasClass("error"))
	assert.Contains(t, status.Text(), "Error: ")
	assert.Equal(t, "0", strings.TrimSpace(doc.Find("#total-applications").Text()))
}

func TestUnknownPath(t *testing.T) {
	ts := newTestServer(t, nil)
	assert.Equal(t, http.StatusNotFound, ts.do(http.MethodGet, "/nope", "").Code)
}

func TestDashboard_IdleBeforeLoad(t *testing.T) {
	ts := newTestServer(t, nil)

	w := ts.do(http.MethodGet, "/api/dashboard", "")
	require.Equal(t, http.StatusOK, w.Code)

	v := decodeView(t, w)
	assert.Equal(t, "idle", v.State)
	assert.Equal(t, 0, v.Total)
	assert.Equal(t, rendering.NeverUpdated, v.LastUpdated)
}

func TestRefresh(t *testing.T) {
	tests := []struct {
		name       string
		source     string
		remove     bool
		wantCode   int
		wantState  string
		wantStatus string
	}{
		{"two valid records", twoApplications, false, http.StatusOK, "loaded", dashboard.MessageLoaded},
		{"no rows", "date,company,position\n", false, http.StatusOK, "loaded", dashboard.MessageNoRows},
		{"bad header", "when,who,what\n1/5/2024,Acme,Engineer\n", false, http.StatusUnprocessableEntity, "errored", "Error: "},
		{"bad date", "date,company,position\n13/45/2024,Acme,Engineer\n", false, http.StatusUnprocessableEntity, "errored", "Error: "},
		{"missing file", "", true, http.StatusBadGateway, "errored", "Error: "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, nil)
			if tt.remove {
				require.NoError(t, os.Remove(ts.path))
			} else {
				ts.writeSource(t, tt.source)
			}

			w := ts.do(http.MethodPost, "/api/refresh", "")
			assert.Equal(t, tt.wantCode, w.Code)

			v := decodeView(t, w)
			assert.Equal(t, tt.wantState, v.State)
			require.NotNil(t, v.Status)
			assert.True(t, strings.HasPrefix(v.Status.Message, tt.wantStatus), v.Status.Message)
		})
	}
}

func TestRefresh_ErrorKeepsPreviousView(t *testing.T) {
	ts := newTestServer(t, nil)
	require.Equal(t, http.StatusOK, ts.do(http.MethodPost, "/api/refresh", "").Code)

	ts.writeSource(t, "date,company\n")
	w := ts.do(http.MethodPost, "/api/refresh", "")
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	v := decodeView(t, w)
	assert.Equal(t, 2, v.Total)
	assert.Len(t, v.Rows, 2)
	assert.Equal(t, "error", v.Status.Severity)
}

func TestRefresh_MethodNotAllowed(t *testing.T) {
	ts := newTestServer(t, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, ts.do(http.MethodGet, "/api/refresh", "").Code)
}

func TestCheck(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantCode  int
		wantCount int
		wantErr   string
	}{
		{"valid", twoApplications, http.StatusOK, 2, ""},
		{"duplicates kept", twoApplications + "1/6/2024,Globex,Designer\n", http.StatusOK, 3, ""},
		{"bad header", "when,who,what\n", http.StatusUnprocessableEntity, 0, "format error"},
		{"bad date", "date,company,position\n2024-01-05,Acme,Engineer\n", http.StatusUnprocessableEntity, 0, "invalid date"},
		{"short line", "date,company,position\n1/5/2024,Acme\n", http.StatusUnprocessableEntity, 0, "line 2 has 2 field(s)"},
		{"empty", "", http.StatusUnprocessableEntity, 0, "file is empty"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, nil)

			w := ts.do(http.MethodPost, "/api/check", tt.body)
			assert.Equal(t, tt.wantCode, w.Code)

			var resp CheckResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantCount, resp.Records)
			assert.Equal(t, tt.wantErr == "", resp.Valid)
			if tt.wantErr != "" {
				assert.Contains(t, resp.Error, tt.wantErr)
			}
		})
	}
}

func TestCheck_DoesNotTouchDashboard(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.do(http.MethodPost, "/api/check", twoApplications)

	assert.Equal(t, "idle", decodeView(t, ts.do(http.MethodGet, "/api/dashboard", "")).State)
}

func TestCheck_UsesConfiguredOptions(t *testing.T) {
	ts := newTestServer(t, func(c *Config) {
		c.Parse.DateMode = parsing.DateLenient
		c.Parse.Dedupe = true
	})

	w := ts.do(http.MethodPost, "/api/check", twoApplications+"1/6/2024,Globex,Designer\nsoon,Initech,Analyst\n")
	require.Equal(t, http.StatusOK, w.Code)

	var resp CheckResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.Records)
}

func TestHistory(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		ts := newTestServer(t, nil)
		w := ts.do(http.MethodGet, "/api/history", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"enabled":false,"snapshots":[]}`, w.Body.String())
	})

	t.Run("lists snapshots", func(t *testing.T) {
		history := &fakeHistory{snapshots: []db.Snapshot{{Total: 2, Weekly: 2, Monthly: 2, DailyAverage: 1}}}
		ts := newTestServer(t, func(c *Config) { c.History = history })

		w := ts.do(http.MethodGet, "/api/history?limit=5", "")
		require.Equal(t, http.StatusOK, w.Code)

		var resp HistoryResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.True(t, resp.Enabled)
		require.Len(t, resp.Snapshots, 1)
		assert.Equal(t, 2, resp.Snapshots[0].Total)
		assert.Equal(t, 5, history.gotLimit)
	})

	t.Run("default limit", func(t *testing.T) {
		history := &fakeHistory{}
		ts := newTestServer(t, func(c *Config) { c.History = history })

		w := ts.do(http.MethodGet, "/api/history", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, db.DefaultListLimit, history.gotLimit)
		assert.JSONEq(t, `{"enabled":true,"snapshots":[]}`, w.Body.String())
	})

	t.Run("bad limit", func(t *testing.T) {
		ts := newTestServer(t, nil)
		for _, limit := range []string{"0", "-3", "ten"} {
			w := ts.do(http.MethodGet, "/api/history?limit="+limit, "")
			assert.Equal(t, http.StatusBadRequest, w.Code, limit)
		}
	})

	t.Run("store error", func(t *testing.T) {
		ts := newTestServer(t, func(c *Config) { c.History = &fakeHistory{err: errors.New("connection refused")} })
		w := ts.do(http.MethodGet, "/api/history", "")
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}

func TestDeleteAndClear_NotImplemented(t *testing.T) {
	tests := []struct {
		path    string
		message string
	}{
		{"/api/applications/delete-last", MessageDeleteNotImplemented},
		{"/api/applications/clear", MessageClearNotImplemented},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			ts := newTestServer(t, nil)
			require.Equal(t, http.StatusOK, ts.do(http.MethodPost, "/api/refresh", "").Code)

			w := ts.do(http.MethodPost, tt.path, "")
			assert.Equal(t, http.StatusNotImplemented, w.Code)
			var body NotImplementedResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.message, body.Error)
			assert.Equal(t, tt.message, body.Status.Message)
			assert.Equal(t, "info", body.Status.Severity)

			v := decodeView(t, ts.do(http.MethodGet, "/api/dashboard", ""))
			assert.Equal(t, 2, v.Total, "nothing is removed")
			require.NotNil(t, v.Status)
			assert.Equal(t, "info", v.Status.Severity)
			assert.Equal(t, tt.message, v.Status.Message)

			data, err := os.ReadFile(ts.path)
			require.NoError(t, err)
			assert.Equal(t, twoApplications, string(data))
		})
	}
}

func TestSourceFile(t *testing.T) {
	ts := newTestServer(t, nil)

	w := ts.do(http.MethodGet, "/applications.txt", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, twoApplications, w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Type"), "text/plain")

	remote := newTestServer(t, func(c *Config) { c.SourcePath = "" })
	assert.Equal(t, http.StatusNotFound, remote.do(http.MethodGet, "/applications.txt", "").Code)
}

func TestCORS_Preflight(t *testing.T) {
	ts := newTestServer(t, nil)

	w := ts.do(http.MethodOptions, "/api/refresh", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimit_Refresh(t *testing.T) {
	ts := newTestServer(t, func(c *Config) { c.RateLimit = ratelimit.RefreshConfig(0.01, 2) })

	for i := 0; i < 2; i++ {
		w := ts.do(http.MethodPost, "/api/refresh", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
	}

	w := ts.do(http.MethodPost, "/api/refresh", "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.Contains(t, w.Body.String(), "rate_limit_exceeded")

	// Reads are not limited.
	assert.Equal(t, http.StatusOK, ts.do(http.MethodGet, "/api/dashboard", "").Code)
}

func TestBasicAuth(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	ts := newTestServer(t, func(c *Config) {
		c.AuthUser = "me"
		c.AuthPasswordHash = string(hash)
	})

	assert.Equal(t, http.StatusOK, ts.do(http.MethodGet, "/health", "").Code)
	assert.Equal(t, http.StatusUnauthorized, ts.do(http.MethodGet, "/", "").Code)
	assert.Equal(t, http.StatusUnauthorized, ts.do(http.MethodGet, "/api/dashboard", "").Code)

	req := httptest.NewRequest(http.MethodGet, "/api/dashboard", nil)
	req.SetBasicAuth("me", "s3cret")
	w := httptest.NewRecorder()
	ts.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequestLog_IncludesAuthenticatedUser(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "applications.txt")
	require.NoError(t, os.WriteFile(path, []byte(twoApplications), 0644))
	d := dashboard.New(fetch.NewLoader(path, nil), dashboard.Options{Parse: parsing.DefaultOptions()},
		func() time.Time { return testNow }, nil)

	core, logs := observer.New(zap.InfoLevel)
	s, err := New(Config{Dashboard: d, AuthUser: "me", AuthPasswordHash: string(hash)}, zap.New(core))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })

	req := httptest.NewRequest(http.MethodGet, "/api/dashboard", nil)
	req.SetBasicAuth("me", "s3cret")
	s.Handler().ServeHTTP(httptest.NewRecorder(), req)
	s.Handler().ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	entries := logs.FilterMessage("request").All()
	require.Len(t, entries, 2)
	assert.Equal(t, "me", entries[0].ContextMap()["user"])
	assert.Equal(t, int64(http.StatusOK), entries[0].ContextMap()["status"])
	_, hasUser := entries[1].ContextMap()["user"]
	assert.False(t, hasUser, "unauthenticated routes log no user")
}

// readEvent reads one server-sent event.
func readEvent(t *testing.T, r *bufio.Reader) (string, rendering.View) {
	t.Helper()
	var event, data string
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		case line == "" && data != "":
			var v rendering.View
			require.NoError(t, json.Unmarshal([]byte(data), &v))
			return event, v
		}
	}
}

func TestEvents_StreamsDashboardChanges(t *testing.T) {
	ts := newTestServer(t, nil)
	httpServer := httptest.NewServer(ts.Handler())
	defer httpServer.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, httpServer.URL+"/api/events", nil)
	require.NoError(t, err)
	resp, err := httpServer.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	event, v := readEvent(t, reader)
	assert.Equal(t, "dashboard", event)
	assert.Equal(t, "idle", v.State)

	refreshResp, err := httpServer.Client().Post(httpServer.URL+"/api/refresh", "text/plain", nil)
	require.NoError(t, err)
	refreshResp.Body.Close()

	for i := 0; i < 3; i++ {
		event, v = readEvent(t, reader)
		if v.State == "loaded" {
			break
		}
	}
	assert.Equal(t, "dashboard", event)
	assert.Equal(t, "loaded", v.State)
	assert.Equal(t, 2, v.Total)

	cancel()
}

func TestEvents_EndOnShutdown(t *testing.T) {
	ts := newTestServer(t, nil)
	httpServer := httptest.NewServer(ts.Handler())
	defer httpServer.Close()

	resp, err := httpServer.Client().Get(httpServer.URL + "/api/events")
	require.NoError(t, err)
	defer resp.Body.Close()

	reader := bufio.NewReader(resp.Body)
	readEvent(t, reader)

	require.NoError(t, ts.Shutdown(context.Background()))

	// The handler returns, so the stream ends.
	_, err = reader.ReadString('\n')
	assert.Error(t, err)
}
