package graph

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
)

// DefaultEndpoint is the Graph API host that request URLs are built against.
const DefaultEndpoint = "https://graph.facebook.com"

// Query parameters that the request sets itself when it is signed.
const (
	paramAccessToken    = "access_token"
	paramAppSecretProof = "appsecret_proof"
)

var (
	versionPathRE = regexp.MustCompile(`^(v\d+\.\d+)(?:/|$)`)
	versionRE     = regexp.MustCompile(`^v\d+\.\d+$`)
)

func isAPIVersion(s string) bool {
	return versionRE.MatchString(s)
}

// Request is a single call to the Graph API: one method against one path,
// authorized by one Session. The method, path, session and query are fixed
// by NewRequest; the body may be set with SetBody. A Request can be made
// once.
type Request struct {
	id      string
	session Session
	method  string
	path    string
	version string
	query   map[string]string
	body    *Params

	spent atomic.Bool
}

// NewRequest validates its arguments and returns a Request. It does not
// fetch an access token.
//
// path is relative to the API root, e.g. "me/feed", and may begin with an
// API version ("v2.1/app"), which takes precedence over the App default. It
// must not contain a query string; pass parameters in query instead.
func NewRequest(session Session, method, path string, query map[string]string) (*Request, error) {
	if session == nil {
		return nil, ErrNilSession
	}

	switch method {
	case http.MethodGet, http.MethodPost, http.MethodDelete:
	default:
		return nil, ErrInvalidMethod
	}

	if strings.Contains(path, "?") {
		return nil, ErrInvalidPath
	}

	for _, reserved := range []string{paramAccessToken, paramAppSecretProof} {
		if _, ok := query[reserved]; ok {
			return nil, ErrReservedParameter
		}
	}

	path = strings.TrimLeft(path, "/")
	var version string
	if m := versionPathRE.FindStringSubmatch(path); m != nil {
		version = m[1]
		path = strings.TrimLeft(strings.TrimPrefix(path, version), "/")
	}

	return &Request{
		id:      uuid.NewString(),
		session: session,
		method:  method,
		path:    path,
		version: version,
		query:   maps.Clone(query),
	}, nil
}

// ID identifies the request in logs and traces.
func (r *Request) ID() string { return r.id }

// Method returns the HTTP method.
func (r *Request) Method() string { return r.method }

// Path returns the path without any version prefix.
func (r *Request) Path() string { return r.path }

// Version returns the API version named in the path, or "".
func (r *Request) Version() string { return r.version }

// Session returns the session that authorizes the request.
func (r *Request) Session() Session { return r.session }

// Query returns a copy of the caller supplied query parameters.
func (r *Request) Query() map[string]string { return maps.Clone(r.query) }

// Body returns the body set by SetBody, or nil.
func (r *Request) Body() *Params { return r.body }

// SetBody sets the request body. Only POST requests can have a body. Calling
// SetBody again replaces the previous body.
func (r *Request) SetBody(body *Params) error {
	if r.method != http.MethodPost {
		return &IncompatibleMethodError{Method: r.method}
	}
	r.body = body
	return nil
}

// URL returns the signed request URL against DefaultEndpoint. It fetches the
// session's access token and computes a fresh appsecret_proof on every call.
func (r *Request) URL(ctx context.Context) (string, error) {
	return r.signedURL(ctx, DefaultEndpoint)
}

func (r *Request) signedURL(ctx context.Context, endpoint string) (string, error) {
	token, err := r.session.AccessToken(ctx)
	if err != nil {
		var authErr *AuthenticationError
		if errors.As(err, &authErr) {
			return "", err
		}
		return "", &AuthenticationError{Err: err}
	}
	if token == nil || token.App() == nil {
		return "", &AuthenticationError{Err: errNoToken}
	}
	app := token.App()

	q := make(url.Values, len(r.query)+2)
	for k, v := range r.query {
		q.Set(k, v)
	}
	q.Set(paramAccessToken, token.Plain())
	q.Set(paramAppSecretProof, app.SecretProof(token.Plain()))

	version := r.version
	if version == "" {
		version = app.Version()
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("parsing endpoint: %w", err)
	}
	segments := []string{strings.TrimRight(u.Path, "/")}
	if version != "" {
		segments = append(segments, version)
	}
	segments = append(segments, r.path)

	// Path is escaped on output, so '#', '%' and spaces in it stay part of
	// the path.
	u.Path = strings.Join(segments, "/")
	u.RawPath = ""
	u.Fragment = ""
	u.RawFragment = ""
	// Encode sorts by key.
	u.RawQuery = q.Encode()
	return u.String(), nil
}
