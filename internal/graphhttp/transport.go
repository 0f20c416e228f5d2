package graphhttp

import (
	"net/http"
)

// headerTransport stamps common headers onto every outgoing request.
type headerTransport struct {
	UserAgent string

	// Delegate is the underlying HTTP transport
	Delegate http.RoundTripper
}

// RoundTrip invoked each time a request is made.
func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// RoundTrip must always close the body, including on errors.
	reqBodyClosed := false
	if req.Body != nil {
		defer func() {
			if !reqBodyClosed {
				req.Body.Close() //nolint:errcheck // req.Body is only read
			}
		}()
	}

	// RoundTrip must not modify req, so hand a clone to the delegate.
	req = req.Clone(req.Context())
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", t.UserAgent)
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}

	reqBodyClosed = true
	return t.Delegate.RoundTrip(req)
}

// CloseIdleConnections forwards the call to t.Delegate, if it implements
// CloseIdleConnections itself.
func (t *headerTransport) CloseIdleConnections() {
	closer, ok := t.Delegate.(interface{ CloseIdleConnections() })
	if !ok {
		return
	}
	closer.CloseIdleConnections()
}
