package graph_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/fussgo/fuss/graph"
	"github.com/fussgo/fuss/logger"
	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// fakeGraph is a small stand-in for the Graph API. It checks the request
// signature like the real service and serves the app node.
type fakeGraph struct {
	t *testing.T

	mu           sync.Mutex
	restrictions json.RawMessage
	userAgents   []string
}

func (f *fakeGraph) writeError(rw http.ResponseWriter, status int, typ string, code int, msg string) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	fmt.Fprintf(rw, `{"error":{"message":%q,"type":%q,"code":%d,"fbtrace_id":"AbCdEf"}}`, msg, typ, code) //nolint:errcheck // The test would still fail
}

func (f *fakeGraph) ServeHTTP(rw http.ResponseWriter, req *http.Request) {
	f.mu.Lock()
	f.userAgents = append(f.userAgents, req.Header.Get("User-Agent"))
	f.mu.Unlock()

	q := req.URL.Query()
	token := q.Get("access_token")
	if token == "" || q.Get("appsecret_proof") != appSecretProof(token) {
		f.writeError(rw, http.StatusBadRequest, "GraphMethodException", 100, "Invalid appsecret_proof provided in the API argument")
		return
	}

	switch {
	case req.URL.Path == "/app" && req.Method == http.MethodGet,
		req.URL.Path == "/v2.1/app" && req.Method == http.MethodGet:
		f.mu.Lock()
		defer f.mu.Unlock()
		rw.Header().Set("Content-Type", "application/json")
		if q.Get("fields") == "restrictions" {
			fmt.Fprintf(rw, `{"restrictions":%s,"id":%q}`, f.restrictions, testAppID) //nolint:errcheck // The test would still fail
			return
		}
		fmt.Fprintf(rw, `{"id":%q,"name":"fuss-test"}`, testAppID) //nolint:errcheck // The test would still fail

	case req.URL.Path == "/app" && req.Method == http.MethodPost:
		if got, want := req.Header.Get("Content-Type"), "application/x-www-form-urlencoded"; got != want {
			http.Error(rw, fmt.Sprintf("Content-Type = %q, want %q", got, want), http.StatusBadRequest)
			return
		}
		if err := req.ParseForm(); err != nil {
			http.Error(rw, err.Error(), http.StatusBadRequest)
			return
		}
		raw := req.PostForm.Get("restrictions")
		if !json.Valid([]byte(raw)) {
			f.writeError(rw, http.StatusBadRequest, "OAuthException", 100, "Param restrictions must be a JSON object")
			return
		}
		f.mu.Lock()
		f.restrictions = json.RawMessage(raw)
		f.mu.Unlock()
		fmt.Fprint(rw, `true`) //nolint:errcheck // The test would still fail

	case req.URL.Path == "/throttled":
		f.writeError(rw, http.StatusBadRequest, "OAuthException", 4, "Application request limit reached")

	case req.URL.Path == "/teapot":
		http.Error(rw, "short and stout", http.StatusTeapot)

	case req.URL.Path == "/garbage":
		fmt.Fprint(rw, `{"id":`) //nolint:errcheck // The test would still fail

	default:
		alias := strings.TrimPrefix(req.URL.Path, "/")
		f.writeError(rw, http.StatusNotFound, "OAuthException", 803, "Some of the aliases you requested do not exist: "+alias)
	}
}

func newFakeGraph(t *testing.T) (*fakeGraph, *httptest.Server) {
	t.Helper()
	fake := &fakeGraph{t: t, restrictions: json.RawMessage(`{}`)}
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)
	return fake, server
}

func newTestClient(t *testing.T, server *httptest.Server, conf graph.Config) *graph.Client {
	t.Helper()
	conf.Endpoint = server.URL
	return graph.NewClient(logger.Discard, conf)
}

func mustRequest(t *testing.T, session graph.Session, method, path string, query map[string]string) *graph.Request {
	t.Helper()
	req, err := graph.NewRequest(session, method, path, query)
	if err != nil {
		t.Fatalf("graph.NewRequest(%q, %q, %v) error = %v", method, path, query, err)
	}
	return req
}

func TestMakeRequest(t *testing.T) {
	t.Parallel()

	_, server := newFakeGraph(t)
	client := newTestClient(t, server, graph.Config{})
	app := newTestApp(t)

	response, err := client.Make(context.Background(), mustRequest(t, app, http.MethodGet, "app", nil))
	if err != nil {
		t.Fatalf("client.Make() error = %v", err)
	}

	m, ok := response.(map[string]any)
	if !ok {
		t.Fatalf("client.Make() = %T, want map[string]any", response)
	}
	if got, want := m["id"], testAppID; got != want {
		t.Errorf("response[id] = %v, want %q", got, want)
	}
}

func TestMakeRequestWithVersion(t *testing.T) {
	t.Parallel()

	_, server := newFakeGraph(t)
	client := newTestClient(t, server, graph.Config{})
	app := newTestApp(t, graph.WithVersion("v2.0"))

	if _, err := client.Make(context.Background(), mustRequest(t, app, http.MethodGet, "v2.1/app", nil)); err != nil {
		t.Fatalf("client.Make(GET v2.1/app) error = %v", err)
	}

	// The fake only knows v2.1, so the App default v2.0 ends up as an alias lookup.
	_, err := client.Make(context.Background(), mustRequest(t, app, http.MethodGet, "app", nil))
	if got, want := fmt.Sprint(err), "[OAuthException] (#803) Some of the aliases you requested do not exist: v2.0/app"; got != want {
		t.Errorf("client.Make(GET app) error = %q, want %q", got, want)
	}
}

func TestMakeInvalidRequestPath(t *testing.T) {
	t.Parallel()

	_, server := newFakeGraph(t)
	client := newTestClient(t, server, graph.Config{})
	app := newTestApp(t)

	_, err := client.Make(context.Background(), mustRequest(t, app, http.MethodGet, "4o4", nil))

	var apiErr *graph.RemoteAPIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("client.Make() error = %v (%T), want *RemoteAPIError", err, err)
	}
	if got, want := err.Error(), "[OAuthException] (#803) Some of the aliases you requested do not exist: 4o4"; got != want {
		t.Errorf("client.Make() error = %q, want %q", got, want)
	}
	if got, want := apiErr.FBTraceID, "AbCdEf"; got != want {
		t.Errorf("apiErr.FBTraceID = %q, want %q", got, want)
	}
	if !graph.IsErrHavingStatus(err, http.StatusNotFound) {
		t.Errorf("graph.IsErrHavingStatus(err, 404) = false, want true")
	}
	if graph.IsRetryableError(err) {
		t.Errorf("graph.IsRetryableError(%v) = true, want false", err)
	}
}

func TestNonStringBodyParameters(t *testing.T) {
	t.Parallel()

	for _, test := range []struct {
		name         string
		restrictions *graph.Params
		want         map[string]any
	}{
		{
			name:         "age_and_type",
			restrictions: graph.NewParams(graph.P("age", "17+"), graph.P("type", "alcohol")),
			want:         map[string]any{"age": "17+", "type": "alcohol"},
		},
		{
			name:         "age",
			restrictions: graph.NewParams(graph.P("age", "17+")),
			want:         map[string]any{"age": "17+"},
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			ctx := context.Background()
			_, server := newFakeGraph(t)
			client := newTestClient(t, server, graph.Config{})
			app := newTestApp(t)

			post := mustRequest(t, app, http.MethodPost, "app", nil)
			if err := post.SetBody(graph.NewParams(graph.P("restrictions", test.restrictions))); err != nil {
				t.Fatalf("post.SetBody() error = %v", err)
			}

			result, err := client.Make(ctx, post)
			if err != nil {
				t.Fatalf("client.Make(POST app) error = %v", err)
			}
			if result != true {
				t.Errorf("client.Make(POST app) = %v, want true", result)
			}

			get := mustRequest(t, app, http.MethodGet, "app", map[string]string{"fields": "restrictions"})
			response, err := client.Make(ctx, get)
			if err != nil {
				t.Fatalf("client.Make(GET app) error = %v", err)
			}
			got := response.(map[string]any)["restrictions"]
			if diff := cmp.Diff(test.want, got); diff != "" {
				t.Errorf("restrictions diff (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRequestIsSingleUse(t *testing.T) {
	t.Parallel()

	_, server := newFakeGraph(t)
	client := newTestClient(t, server, graph.Config{})
	req := mustRequest(t, newTestApp(t), http.MethodGet, "app", nil)

	if _, err := client.Make(context.Background(), req); err != nil {
		t.Fatalf("first client.Make() error = %v", err)
	}
	if _, err := client.Make(context.Background(), req); !errors.Is(err, graph.ErrRequestSpent) {
		t.Errorf("second client.Make() error = %v, want %v", err, graph.ErrRequestSpent)
	}

	// Building the URL stays possible after the request is spent.
	if _, err := req.URL(context.Background()); err != nil {
		t.Errorf("req.URL() after Make error = %v", err)
	}
}

func TestDoDecodesIntoValue(t *testing.T) {
	t.Parallel()

	_, server := newFakeGraph(t)
	client := newTestClient(t, server, graph.Config{})
	app := newTestApp(t)

	var node struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	resp, err := client.Do(context.Background(), mustRequest(t, app, http.MethodGet, "app", nil), &node)
	if err != nil {
		t.Fatalf("client.Do() error = %v", err)
	}
	if got, want := resp.StatusCode, http.StatusOK; got != want {
		t.Errorf("resp.StatusCode = %d, want %d", got, want)
	}
	if got, want := node.Name, "fuss-test"; got != want {
		t.Errorf("node.Name = %q, want %q", got, want)
	}

	var buf bytes.Buffer
	if _, err := client.Do(context.Background(), mustRequest(t, app, http.MethodGet, "app", nil), &buf); err != nil {
		t.Fatalf("client.Do(io.Writer) error = %v", err)
	}
	if got, want := buf.String(), fmt.Sprintf(`{"id":%q,"name":"fuss-test"}`, testAppID); got != want {
		t.Errorf("raw body = %q, want %q", got, want)
	}
}

func TestDecodeError(t *testing.T) {
	t.Parallel()

	_, server := newFakeGraph(t)
	client := newTestClient(t, server, graph.Config{})

	_, err := client.Make(context.Background(), mustRequest(t, newTestApp(t), http.MethodGet, "garbage", nil))
	if err == nil || !strings.Contains(err.Error(), "failed to decode JSON response") {
		t.Errorf("client.Make(garbage) error = %v, want a decode error", err)
	}
}

func TestStatusError(t *testing.T) {
	t.Parallel()

	_, server := newFakeGraph(t)
	client := newTestClient(t, server, graph.Config{})
	app := newTestApp(t)

	_, err := client.Make(context.Background(), mustRequest(t, app, http.MethodGet, "teapot", nil))

	var statusErr *graph.StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("client.Make() error = %v (%T), want *StatusError", err, err)
	}
	if got, want := statusErr.StatusCode, http.StatusTeapot; got != want {
		t.Errorf("statusErr.StatusCode = %d, want %d", got, want)
	}
	if got, want := statusErr.Body, "short and stout"; got != want {
		t.Errorf("statusErr.Body = %q, want %q", got, want)
	}
	if strings.Contains(err.Error(), testAppSecret) {
		t.Errorf("error message leaks the app secret: %q", err)
	}
}

func TestSpecialCharactersInPathStaySigned(t *testing.T) {
	t.Parallel()

	type seen struct {
		path      string
		signedOK  bool
		tokenSent bool
	}
	var (
		mu   sync.Mutex
		hits []seen
	)
	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
		q := req.URL.Query()
		token := q.Get("access_token")
		mu.Lock()
		hits = append(hits, seen{
			path:      req.URL.Path,
			signedOK:  q.Get("appsecret_proof") == appSecretProof(token),
			tokenSent: token != "",
		})
		mu.Unlock()
		http.Error(rw, "oops", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := newTestClient(t, server, graph.Config{})
	app := newTestApp(t)

	paths := []string{"me#x", "100%", "my photos"}
	for _, path := range paths {
		_, err := client.Make(context.Background(), mustRequest(t, app, http.MethodGet, path, nil))

		var statusErr *graph.StatusError
		if !errors.As(err, &statusErr) {
			t.Fatalf("client.Make(%q) error = %v (%T), want *StatusError", path, err, err)
		}
		if strings.Contains(err.Error(), testAppSecret) {
			t.Errorf("client.Make(%q) error leaks the app secret: %q", path, err)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	want := []seen{
		{path: "/me#x", signedOK: true, tokenSent: true},
		{path: "/100%", signedOK: true, tokenSent: true},
		{path: "/my photos", signedOK: true, tokenSent: true},
	}
	if diff := cmp.Diff(want, hits, cmp.AllowUnexported(seen{})); diff != "" {
		t.Errorf("requests seen by server diff (-want +got):\n%s", diff)
	}
}

func TestTransportError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.NotFoundHandler())
	endpoint := server.URL
	server.Close()

	client := graph.NewClient(logger.Discard, graph.Config{Endpoint: endpoint})
	_, err := client.Make(context.Background(), mustRequest(t, newTestApp(t), http.MethodGet, "app", nil))

	var transportErr *graph.TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("client.Make() error = %v (%T), want *TransportError", err, err)
	}
	var apiErr *graph.RemoteAPIError
	if errors.As(err, &apiErr) {
		t.Errorf("transport failure reported as *RemoteAPIError")
	}
	if strings.Contains(err.Error(), testAppSecret) {
		t.Errorf("error message leaks the app secret: %q", err)
	}
	if !graph.IsRetryableError(err) {
		t.Errorf("graph.IsRetryableError(%v) = false, want true", err)
	}
}

func TestUserAgent(t *testing.T) {
	t.Parallel()

	fake, server := newFakeGraph(t)
	client := newTestClient(t, server, graph.Config{UserAgent: "fuss-test/1.0"})

	if _, err := client.Make(context.Background(), mustRequest(t, newTestApp(t), http.MethodGet, "app", nil)); err != nil {
		t.Fatalf("client.Make() error = %v", err)
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if diff := cmp.Diff([]string{"fuss-test/1.0"}, fake.userAgents); diff != "" {
		t.Errorf("User-Agent headers diff (-want +got):\n%s", diff)
	}
}

func TestConcurrentRequests(t *testing.T) {
	t.Parallel()

	_, server := newFakeGraph(t)
	client := newTestClient(t, server, graph.Config{})
	app := newTestApp(t)

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for range 16 {
		wg.Go(func() {
			req, err := graph.NewRequest(app, http.MethodGet, "app", nil)
			if err != nil {
				errs <- err
				return
			}
			if _, err := client.Make(context.Background(), req); err != nil {
				errs <- err
			}
		})
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("concurrent client.Make() error = %v", err)
	}
}

func TestMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	metrics, err := graph.NewMetrics(reg)
	if err != nil {
		t.Fatalf("graph.NewMetrics() error = %v", err)
	}

	_, server := newFakeGraph(t)
	client := newTestClient(t, server, graph.Config{Metrics: metrics})
	app := newTestApp(t)

	ctx := context.Background()
	client.Make(ctx, mustRequest(t, app, http.MethodGet, "app", nil))       //nolint:errcheck // outcome is what's measured
	client.Make(ctx, mustRequest(t, app, http.MethodGet, "app", nil))       //nolint:errcheck // outcome is what's measured
	client.Make(ctx, mustRequest(t, app, http.MethodGet, "4o4", nil))       //nolint:errcheck // outcome is what's measured
	client.Make(ctx, mustRequest(t, app, http.MethodDelete, "teapot", nil)) //nolint:errcheck // outcome is what's measured

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("reg.Gather() error = %v", err)
	}

	got := make(map[string]float64)
	for _, family := range families {
		if family.GetName() != "fuss_graph_requests_total" {
			continue
		}
		for _, m := range family.GetMetric() {
			var method, outcome string
			for _, label := range m.GetLabel() {
				switch label.GetName() {
				case "method":
					method = label.GetValue()
				case "outcome":
					outcome = label.GetValue()
				}
			}
			got[method+"/"+outcome] = m.GetCounter().GetValue()
		}
	}

	want := map[string]float64{
		"GET/success":         2,
		"GET/api_error":       1,
		"DELETE/status_error": 1,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("fuss_graph_requests_total diff (-want +got):\n%s", diff)
	}

	if _, err := graph.NewMetrics(reg); err == nil {
		t.Errorf("registering metrics twice: error = nil, want non-nil")
	}
}

func TestTracing(t *testing.T) {
	t.Parallel()

	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { tp.Shutdown(context.Background()) }) //nolint:errcheck // test teardown

	_, server := newFakeGraph(t)
	client := newTestClient(t, server, graph.Config{TracerProvider: tp})
	req := mustRequest(t, newTestApp(t), http.MethodGet, "4o4", nil)

	client.Make(context.Background(), req) //nolint:errcheck // the span is what's checked

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("recorded %d spans, want 1", len(spans))
	}
	span := spans[0]
	if got, want := span.Name(), "graph.request"; got != want {
		t.Errorf("span.Name() = %q, want %q", got, want)
	}

	attrs := make(map[string]string)
	for _, kv := range span.Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	for key, want := range map[string]string{
		"http.request.method":       "GET",
		"graph.path":                "4o4",
		"graph.request_id":          req.ID(),
		"http.response.status_code": "404",
	} {
		if got := attrs[key]; got != want {
			t.Errorf("span attribute %s = %q, want %q", key, got, want)
		}
	}
	if got := span.Status().Description; !strings.Contains(got, "(#803)") {
		t.Errorf("span.Status().Description = %q, want the API error", got)
	}
}

func TestRetryableAPIError(t *testing.T) {
	t.Parallel()

	_, server := newFakeGraph(t)
	client := newTestClient(t, server, graph.Config{})

	_, err := client.Make(context.Background(), mustRequest(t, newTestApp(t), http.MethodGet, "throttled", nil))
	if !graph.IsRetryableError(err) {
		t.Errorf("graph.IsRetryableError(%v) = false, want true", err)
	}
}
