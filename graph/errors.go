package graph

import (
	"errors"
	"fmt"
	"net/http"
)

// Errors returned by NewRequest. The messages are matched by existing
// callers and must not change.
var (
	ErrInvalidMethod     = errors.New("Invalid request method.")
	ErrInvalidPath       = errors.New("Path must not have hard-coded query parameters.")
	ErrReservedParameter = errors.New("Cannot overwrite session parameters.")
	ErrNilSession        = errors.New("request has no session")

	errNoToken = errors.New("session returned no access token")

	// ErrRequestSpent is returned when a Request is executed a second time.
	ErrRequestSpent = errors.New("request has already been made")
)

// IncompatibleMethodError is returned by SetBody for methods that cannot
// carry a body.
type IncompatibleMethodError struct {
	Method string
}

func (e *IncompatibleMethodError) Error() string {
	return e.Method + " request method must not have body."
}

// AuthenticationError is returned when a Session cannot produce an access
// token.
type AuthenticationError struct {
	AppID string
	Err   error
}

func (e *AuthenticationError) Error() string {
	if e.AppID == "" {
		return fmt.Sprintf("getting access token: %v", e.Err)
	}
	return fmt.Sprintf("getting access token for app %s: %v", e.AppID, e.Err)
}

func (e *AuthenticationError) Unwrap() error {
	return e.Err
}

// RemoteAPIError is the error envelope returned by the Graph API:
//
//	{"error": {"message": "...", "type": "OAuthException", "code": 803}}
type RemoteAPIError struct {
	Message     string `json:"message"`
	Type        string `json:"type"`
	Code        int    `json:"code"`
	Subcode     int    `json:"error_subcode,omitempty"`
	UserTitle   string `json:"error_user_title,omitempty"`
	UserMessage string `json:"error_user_msg,omitempty"`
	IsTransient bool   `json:"is_transient,omitempty"`
	FBTraceID   string `json:"fbtrace_id,omitempty"`

	// StatusCode is the HTTP status the envelope arrived with.
	StatusCode int `json:"-"`
}

func (e *RemoteAPIError) Error() string {
	return fmt.Sprintf("[%s] (#%d) %s", e.Type, e.Code, e.Message)
}

// StatusError is returned for unsuccessful responses that carry no error
// envelope.
type StatusError struct {
	Method     string
	URL        string // redacted
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	s := fmt.Sprintf("%s %s: %d %s", e.Method, e.URL, e.StatusCode, http.StatusText(e.StatusCode))
	if e.Body != "" {
		s += ": " + e.Body
	}
	return s
}

// TransportError is a failure to get any response at all: connection
// refused, DNS, TLS, timeouts and cancellation.
type TransportError struct {
	Method string
	URL    string // redacted
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsErrHavingStatus reports whether err is a RemoteAPIError or StatusError
// for the given HTTP status code.
func IsErrHavingStatus(err error, code int) bool {
	var apierr *RemoteAPIError
	if errors.As(err, &apierr) {
		return apierr.StatusCode == code
	}
	var serr *StatusError
	return errors.As(err, &serr) && serr.StatusCode == code
}
