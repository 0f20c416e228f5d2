package graph

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/sync/singleflight"
)

// App is the app-level identity: an app id and the app secret. The secret is
// never exposed; it is only used to sign tokens and verify signed requests.
type App struct {
	id      string
	secret  string
	version string

	// Optional OAuth2 client-credentials exchange for the app token.
	tokenConf  *clientcredentials.Config
	httpClient *http.Client
	tokens     oauth2.TokenSource
	fetch      singleflight.Group
}

type AppOption func(*App) error

// WithVersion sets the API version (e.g. "v2.0") used for requests whose
// path does not name one.
func WithVersion(version string) AppOption {
	return func(a *App) error {
		if !isAPIVersion(version) {
			return fmt.Errorf("invalid API version %q (want v<major>.<minor>)", version)
		}
		a.version = version
		return nil
	}
}

// WithTokenEndpoint makes the App obtain its access token from tokenURL
// using the OAuth2 client-credentials grant. Without it, the app token is
// the literal "<id>|<secret>".
func WithTokenEndpoint(tokenURL string) AppOption {
	return func(a *App) error {
		if tokenURL == "" {
			return errors.New("token endpoint must not be empty")
		}
		a.tokenConf = &clientcredentials.Config{
			TokenURL:  tokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		}
		return nil
	}
}

// WithAppHTTPClient sets the HTTP client used for the token exchange.
func WithAppHTTPClient(c *http.Client) AppOption {
	return func(a *App) error {
		a.httpClient = c
		return nil
	}
}

// NewApp returns the App identified by id and secret.
func NewApp(id, secret string, opts ...AppOption) (*App, error) {
	if id == "" {
		return nil, errors.New("app id must not be empty")
	}
	if secret == "" {
		return nil, errors.New("app secret must not be empty")
	}

	a := &App{id: id, secret: secret}
	for _, opt := range opts {
		if err := opt(a); err != nil {
			return nil, err
		}
	}
	if a.tokenConf != nil {
		a.tokenConf.ClientID = id
		a.tokenConf.ClientSecret = secret

		// The source outlives any one caller, so it must not carry a
		// caller's deadline. clientcredentials wraps it in
		// oauth2.ReuseTokenSource, which caches the token until it expires.
		ctx := context.Background()
		if a.httpClient != nil {
			ctx = context.WithValue(ctx, oauth2.HTTPClient, a.httpClient)
		}
		a.tokens = a.tokenConf.TokenSource(ctx)
	}
	return a, nil
}

// ID returns the app id.
func (a *App) ID() string { return a.id }

// Version returns the default API version, or "" when none is configured.
func (a *App) Version() string { return a.version }

// AccessToken returns the app access token.
func (a *App) AccessToken(ctx context.Context) (*AccessToken, error) {
	if a.tokenConf == nil {
		return NewAccessToken(a, a.id+"|"+a.secret, TokenTypeApp), nil
	}

	// Concurrent callers share one exchange. A caller that gives up stops
	// waiting without cancelling it for the others.
	ch := a.fetch.DoChan("token", func() (any, error) {
		return a.tokens.Token()
	})
	select {
	case <-ctx.Done():
		return nil, &AuthenticationError{AppID: a.id, Err: ctx.Err()}
	case res := <-ch:
		if res.Err != nil {
			return nil, &AuthenticationError{AppID: a.id, Err: res.Err}
		}
		return NewAccessToken(a, res.Val.(*oauth2.Token).AccessToken, TokenTypeApp), nil
	}
}

// SecretProof returns the appsecret_proof for token: the lowercase hex
// HMAC-SHA256 of the token keyed with the app secret.
func (a *App) SecretProof(token string) string {
	mac := hmac.New(sha256.New, []byte(a.secret))
	mac.Write([]byte(token))
	return hex.EncodeToString(mac.Sum(nil))
}
