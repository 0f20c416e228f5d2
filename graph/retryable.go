package graph

import (
	"errors"
	"io"
	"net"
	"net/http"
	"slices"
	"strings"
	"syscall"
)

var retryableErrorSuffixes = []string{
	syscall.ECONNREFUSED.Error(),
	syscall.ECONNRESET.Error(),
	syscall.ETIMEDOUT.Error(),
	"no such host",
	"remote error: handshake failure",
	io.ErrUnexpectedEOF.Error(),
	io.EOF.Error(),
}

var retryableStatuses = []int{
	http.StatusTooManyRequests,     // 429
	http.StatusInternalServerError, // 500
	http.StatusBadGateway,          // 502
	http.StatusServiceUnavailable,  // 503
	http.StatusGatewayTimeout,      // 504
}

// Graph API error codes that mean "try again later": unknown error, service
// unavailable, app and user throttling.
var retryableAPICodes = []int{1, 2, 4, 17, 341}

// IsRetryableError reports whether the failed call may succeed if repeated.
// Client never retries by itself; this is for callers building a retry loop
// around Client.Do.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *RemoteAPIError
	if errors.As(err, &apiErr) {
		return apiErr.IsTransient || slices.Contains(retryableAPICodes, apiErr.Code)
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return slices.Contains(retryableStatuses, statusErr.StatusCode)
	}

	var transportErr *TransportError
	if !errors.As(err, &transportErr) {
		return false
	}
	return isRetryableNetError(transportErr.Err)
}

func isRetryableNetError(err error) bool {
	var neterr net.Error
	if errors.As(err, &neterr) && neterr.Timeout() {
		return true
	}

	s := err.Error()
	if strings.Contains(s, "use of closed network connection") ||
		strings.Contains(s, "request canceled while waiting for connection") {
		return true
	}

	for _, suffix := range retryableErrorSuffixes {
		if strings.HasSuffix(s, suffix) {
			return true
		}
	}
	return false
}
