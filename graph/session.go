package graph

import (
	"context"
	"fmt"
)

// TokenType distinguishes app access tokens from user access tokens.
type TokenType int

const (
	TokenTypeApp TokenType = iota + 1
	TokenTypeUser
)

func (t TokenType) String() string {
	switch t {
	case TokenTypeApp:
		return "app"
	case TokenTypeUser:
		return "user"
	default:
		return fmt.Sprintf("TokenType(%d)", int(t))
	}
}

// AccessToken is an access token together with the App it was issued to. The
// App's secret signs every request made with the token.
type AccessToken struct {
	app   *App
	plain string
	typ   TokenType
}

// NewAccessToken wraps a raw token string.
func NewAccessToken(app *App, plain string, typ TokenType) *AccessToken {
	return &AccessToken{app: app, plain: plain, typ: typ}
}

// Plain returns the raw token string.
func (t *AccessToken) Plain() string { return t.plain }

// Type reports whether this is an app or a user token.
func (t *AccessToken) Type() TokenType { return t.typ }

// App returns the App that issued the token.
func (t *AccessToken) App() *App { return t.app }

// String is safe to log.
func (t *AccessToken) String() string {
	if t.app == nil {
		return t.typ.String() + " access token"
	}
	return fmt.Sprintf("%s access token for app %s", t.typ, t.app.ID())
}

// Session is an identity that can authorize requests. Both *App and *User
// satisfy it.
//
// AccessToken is only called when a request URL is built, so credential
// failures surface from Request.URL and Client.Do rather than NewRequest.
// Implementations return the same token on every call unless the
// underlying credentials change.
type Session interface {
	AccessToken(ctx context.Context) (*AccessToken, error)
}
