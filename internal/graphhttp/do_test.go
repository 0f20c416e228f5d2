package graphhttp

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fussgo/fuss/logger"
)

func TestDoRedactsCredentials(t *testing.T) {
	t.Parallel()

	const token = "1234|supersecretvalue"

	server := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
		if got, want := req.URL.Query().Get("access_token"), token; got != want {
			http.Error(rw, fmt.Sprintf("access_token = %q, want %q", got, want), http.StatusUnauthorized)
			return
		}
		if got := req.Header.Get("User-Agent"); got != "fuss-test" {
			http.Error(rw, fmt.Sprintf("User-Agent = %q", got), http.StatusBadRequest)
			return
		}
		fmt.Fprint(rw, `{"id":"1234"}`) //nolint:errcheck // the test would still fail
	}))
	defer server.Close()

	l := logger.NewBuffer()
	client := NewClient(WithUserAgent("fuss-test"), WithAllowHTTP2(false))

	req, err := http.NewRequest(http.MethodGet, server.URL+"/app?access_token=1234%7Csupersecretvalue&appsecret_proof=deadbeefcafe", nil)
	if err != nil {
		t.Fatalf("http.NewRequest() error = %v", err)
	}

	resp, err := Do(l, client, req, WithDebugHTTP(true), WithTraceHTTP(true))
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	defer resp.Body.Close()

	if got, want := resp.StatusCode, http.StatusOK; got != want {
		t.Errorf("resp.StatusCode = %d, want %d", got, want)
	}

	messages := l.Snapshot()
	if len(messages) == 0 {
		t.Fatalf("Do() logged nothing with debug enabled")
	}
	for _, msg := range messages {
		if strings.Contains(msg, "supersecretvalue") || strings.Contains(msg, "deadbeefcafe") {
			t.Errorf("log message leaked a credential: %q", msg)
		}
	}
}

func TestNewClientCachesTransport(t *testing.T) {
	t.Parallel()

	a := NewClient(WithAllowHTTP2(false))
	b := NewClient(WithAllowHTTP2(false), WithTimeout(0))

	if a.Transport != b.Transport {
		t.Errorf("NewClient() built two transports for the same options")
	}
	if got := b.Timeout; got != 0 {
		t.Errorf("b.Timeout = %v, want 0", got)
	}
}
