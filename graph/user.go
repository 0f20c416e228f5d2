package graph

import (
	"context"
	"errors"
)

// User is the user-level identity, backed by a user access token.
type User struct {
	token *AccessToken
}

// NewUser returns the User authorized by token.
func NewUser(token *AccessToken) (*User, error) {
	switch {
	case token == nil || token.Plain() == "":
		return nil, errors.New("user access token must not be empty")
	case token.App() == nil:
		return nil, errors.New("user access token has no app")
	case token.Type() != TokenTypeUser:
		return nil, errors.New("user session requires a user access token")
	}
	return &User{token: token}, nil
}

func (u *User) AccessToken(context.Context) (*AccessToken, error) {
	return u.token, nil
}
