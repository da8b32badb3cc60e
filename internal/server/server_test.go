package server_test

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ubuntu/recordfeed/internal/api"
	"github.com/ubuntu/recordfeed/internal/api/catalog"
	"github.com/ubuntu/recordfeed/internal/api/httpapi"
	"github.com/ubuntu/recordfeed/internal/constants"
	"github.com/ubuntu/recordfeed/internal/model"
	"github.com/ubuntu/recordfeed/internal/server"
	"github.com/ubuntu/recordfeed/internal/testutils"
)

var defaultConfig = server.StaticConfig{
	Prefix:         "/records",
	ReadTimeout:    5 * time.Second,
	WriteTimeout:   5 * time.Second,
	RequestTimeout: 3 * time.Second,
	MaxHeaderBytes: 1 << 13,
	ListenHost:     "127.0.0.1",
}

// startServer runs a server over a copy of the test catalog and returns its base URL.
func startServer(t *testing.T, sc server.StaticConfig, args ...server.Options) (*server.Server, string, <-chan error) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "catalog.json")
	testutils.CopyFile(t, filepath.Join("testdata", "catalog.json"), path)

	s, err := server.New(t.Context(), catalog.New(path), sc, args...)
	require.NoError(t, err, "Setup: New should not fail")

	errCh := make(chan error, 1)
	go func() { errCh <- s.Run() }()
	t.Cleanup(func() { s.Quit(true) })

	require.Eventually(t, func() bool { return s.Addr() != "" }, 5*time.Second, 10*time.Millisecond, "Setup: server did not start")
	return s, "http://" + s.Addr(), errCh
}

func TestNew(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		catalog string
		prefix  string

		wantErr bool
	}{
		"Valid":                {catalog: "catalog.json", prefix: "/records"},
		"Prefix is normalized": {catalog: "catalog.json", prefix: "records/"},

		"Error on missing catalog": {catalog: "missing.json", prefix: "/records", wantErr: true},
		"Error on root prefix":     {catalog: "catalog.json", prefix: "/", wantErr: true},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			sc := defaultConfig
			sc.Prefix = tc.prefix
			s, err := server.New(t.Context(), catalog.New(filepath.Join("testdata", tc.catalog)), sc)
			if tc.wantErr {
				require.Error(t, err, "New should fail")
				assert.Nil(t, s, "New should not return a server on error")
				return
			}
			require.NoError(t, err, "New should not fail")
			assert.NotNil(t, s, "New should return a server")
		})
	}
}

func TestServe(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		path string

		wantStatus int
		wantBody   string
	}{
		"Record":                    {path: "/records/42", wantStatus: http.StatusOK, wantBody: `{"description":"A small widget","id":"42","name":"Widget","price":9.5}`},
		"Record with escaped id":    {path: "/records/a%2Fb", wantStatus: http.StatusOK, wantBody: `{"id":"a/b","name":"Widget"}`},
		"Records":                   {path: "/records", wantStatus: http.StatusOK, wantBody: `[{"description":"A small widget","id":"42","name":"Widget","price":9.5},{"id":"7","name":"Gadget"},{"id":"a/b","name":"Widget"}]`},
		"Filtered records":          {path: "/records?name=Gadget", wantStatus: http.StatusOK, wantBody: `[{"id":"7","name":"Gadget"}]`},
		"Filtered records by price": {path: "/records?price=9.5", wantStatus: http.StatusOK, wantBody: `[{"description":"A small widget","id":"42","name":"Widget","price":9.5}]`},
		"No matching records":       {path: "/records?name=None", wantStatus: http.StatusOK, wantBody: `[]`},
		"Version":                   {path: "/version", wantStatus: http.StatusOK, wantBody: `{"version":"` + constants.Version + `"}`},

		"Unknown record":  {path: "/records/1", wantStatus: http.StatusNotFound},
		"Unknown filter":  {path: "/records?color=blue", wantStatus: http.StatusBadRequest},
		"Repeated filter": {path: "/records?name=a&name=b", wantStatus: http.StatusBadRequest},
		"Unknown path":    {path: "/other", wantStatus: http.StatusNotFound},
	}

	_, base, _ := startServer(t, defaultConfig)

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			resp, err := http.Get(base + tc.path)
			require.NoError(t, err, "Request should not fail")
			defer resp.Body.Close()

			assert.Equal(t, tc.wantStatus, resp.StatusCode, "Unexpected status")
			if tc.wantBody == "" {
				return
			}
			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err, "Could not read body")
			assert.JSONEq(t, tc.wantBody, string(body), "Unexpected body")
			assert.Equal(t, "application/json", resp.Header.Get("Content-Type"), "Unexpected content type")
		})
	}
}

func TestRequestID(t *testing.T) {
	t.Parallel()

	_, base, _ := startServer(t, defaultConfig)

	req, err := http.NewRequest(http.MethodGet, base+"/records/42", nil)
	require.NoError(t, err, "Setup: could not build request")
	req.Header.Set(constants.RequestIDHeader, "my-id")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err, "Request should not fail")
	resp.Body.Close()
	assert.Equal(t, "my-id", resp.Header.Get(constants.RequestIDHeader), "Server should echo the request id")

	resp, err = http.Get(base + "/records/42")
	require.NoError(t, err, "Request should not fail")
	resp.Body.Close()
	assert.NotEmpty(t, resp.Header.Get(constants.RequestIDHeader), "Server should generate a request id")
}

func TestServeThroughClient(t *testing.T) {
	t.Parallel()

	keys := model.KeyMap{"name": "title"}
	_, base, _ := startServer(t, defaultConfig, server.WithKeyMap(keys))

	c := httpapi.New(base+"/records", httpapi.WithKeyMap(keys))

	rec, err := c.Record(context.Background(), "a/b")
	require.NoError(t, err, "Record should not fail")
	assert.Equal(t, model.Record{ID: "a/b", Name: "Widget"}, rec, "Record returned an unexpected record")

	recs, err := c.Records(context.Background(), api.Query{"name": "Widget"})
	require.NoError(t, err, "Records should not fail")
	assert.Len(t, recs, 2, "Records should return the matching records")

	_, err = c.Record(context.Background(), "unknown")
	var re *api.RemoteError
	require.ErrorAs(t, err, &re, "Record should fail with a remote error")
	assert.Equal(t, http.StatusNotFound, re.StatusCode, "Unknown records should be 404")
}

func TestRateLimit(t *testing.T) {
	t.Parallel()

	sc := defaultConfig
	sc.RateLimit = 0.001
	sc.RateBurst = 2
	reg := prometheus.NewRegistry()
	_, base, _ := startServer(t, sc, server.WithRegistry(reg))

	var got []int
	var retryAfter string
	for range 3 {
		resp, err := http.Get(base + "/version")
		require.NoError(t, err, "Request should not fail")
		resp.Body.Close()
		got = append(got, resp.StatusCode)
		retryAfter = resp.Header.Get("Retry-After")
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, got, "Requests over the burst should be limited")
	assert.NotEmpty(t, retryAfter, "Limited requests should tell when to retry")

	want := `
# HELP recordfeed_http_requests_rejected_total Tracks the number of HTTP requests rejected before being handled.
# TYPE recordfeed_http_requests_rejected_total counter
recordfeed_http_requests_rejected_total{reason="rate_limit"} 1
`
	require.NoError(t, testutil.CollectAndCompare(reg, strings.NewReader(want), "recordfeed_http_requests_rejected_total"),
		"Limited requests should be counted")
}

func TestMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, base, _ := startServer(t, defaultConfig, server.WithRegistry(reg))

	for _, p := range []string{"/records/42", "/records/42", "/records/1", "/records"} {
		resp, err := http.Get(base + p)
		require.NoError(t, err, "Request should not fail")
		resp.Body.Close()
	}

	want := `
# HELP recordfeed_http_requests_total Tracks the number of HTTP requests.
# TYPE recordfeed_http_requests_total counter
recordfeed_http_requests_total{code="200",handler="record",method="get"} 2
recordfeed_http_requests_total{code="200",handler="records",method="get"} 1
recordfeed_http_requests_total{code="404",handler="record",method="get"} 1
`
	require.NoError(t, testutil.CollectAndCompare(reg, strings.NewReader(want), "recordfeed_http_requests_total"),
		"Request counters do not match")
}

func TestReloadsCatalog(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "catalog.json")
	testutils.CopyFile(t, filepath.Join("testdata", "catalog.json"), path)

	s, err := server.New(t.Context(), catalog.New(path), defaultConfig)
	require.NoError(t, err, "Setup: New should not fail")
	go func() { _ = s.Run() }()
	t.Cleanup(func() { s.Quit(true) })
	require.Eventually(t, func() bool { return s.Addr() != "" }, 5*time.Second, 10*time.Millisecond, "Setup: server did not start")

	testutils.ReplaceFile(t, path, []byte(`[{"id": "1", "name": "Fresh"}]`))

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + s.Addr() + "/records/1")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		var doc map[string]any
		if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
			return false
		}
		return resp.StatusCode == http.StatusOK && doc["name"] == "Fresh"
	}, 5*time.Second, 50*time.Millisecond, "Server should serve the reloaded catalog")
}

func TestQuit(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		force bool
	}{
		"Graceful": {},
		"Forced":   {force: true},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			s, base, errCh := startServer(t, defaultConfig)

			s.Quit(tc.force)

			select {
			case err := <-errCh:
				require.NoError(t, err, "Run should return without error on Quit")
			case <-time.After(5 * time.Second):
				t.Fatal("Run did not return after Quit")
			}

			_, err := http.Get(base + "/version")
			require.Error(t, err, "Server should not answer after Quit")
			require.Error(t, s.Run(), "Run should fail once the server quit")
		})
	}
}

func TestForcedQuitInterruptsGracefulShutdown(t *testing.T) {
	t.Parallel()

	sc := defaultConfig
	sc.ReadTimeout = time.Minute
	s, _, errCh := startServer(t, sc)

	// A connection with a partial request keeps the graceful shutdown waiting.
	conn, err := net.Dial("tcp", s.Addr())
	require.NoError(t, err, "Setup: dialing the server should not fail")
	t.Cleanup(func() { conn.Close() })
	_, err = conn.Write([]byte("GET /version HTTP/1.1\r\n"))
	require.NoError(t, err, "Setup: writing a partial request should not fail")
	time.Sleep(100 * time.Millisecond)

	s.Quit(false)
	select {
	case err := <-errCh:
		t.Fatalf("Run should wait for the open connection, returned %v", err)
	case <-time.After(200 * time.Millisecond):
	}

	s.Quit(true)
	select {
	case err := <-errCh:
		require.NoError(t, err, "Run should return without error on a forced quit")
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after the forced quit")
	}
}
