package graph

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidSignedRequest   = errors.New("invalid signed request")
	ErrSignedRequestAlgorithm = errors.New("signed request must use HMAC-SHA256")
	ErrSignedRequestSignature = errors.New("signed request signature does not match")
)

// SignedRequest is the verified payload of a signed_request parameter, as
// posted to canvas and page tab apps or set in the JS SDK cookie.
type SignedRequest struct {
	Algorithm  string      `json:"algorithm"`
	IssuedAt   int64       `json:"issued_at"`
	Expires    int64       `json:"expires,omitempty"`
	UserID     json.Number `json:"user_id,omitempty"`
	OAuthToken string      `json:"oauth_token,omitempty"`
	Code       string      `json:"code,omitempty"`

	// Payload holds every field of the payload, including those above.
	Payload map[string]any `json:"-"`
}

// User returns a User session for the embedded oauth_token. It returns nil
// when the person has not authorized the app.
func (s *SignedRequest) User(app *App) *User {
	if s.OAuthToken == "" {
		return nil
	}
	return &User{token: NewAccessToken(app, s.OAuthToken, TokenTypeUser)}
}

// ParseSignedRequest verifies raw ("<signature>.<payload>", both base64url)
// against the app secret and decodes the payload.
func (a *App) ParseSignedRequest(raw string) (*SignedRequest, error) {
	encodedSig, encodedPayload, ok := strings.Cut(raw, ".")
	if !ok || encodedSig == "" || encodedPayload == "" {
		return nil, ErrInvalidSignedRequest
	}

	sig, err := decodeBase64URL(encodedSig)
	if err != nil {
		return nil, fmt.Errorf("%w: signature: %w", ErrInvalidSignedRequest, err)
	}
	payload, err := decodeBase64URL(encodedPayload)
	if err != nil {
		return nil, fmt.Errorf("%w: payload: %w", ErrInvalidSignedRequest, err)
	}

	// The signature covers the encoded payload, not the decoded bytes.
	mac := hmac.New(sha256.New, []byte(a.secret))
	mac.Write([]byte(encodedPayload))
	if !hmac.Equal(sig, mac.Sum(nil)) {
		return nil, ErrSignedRequestSignature
	}

	sr := new(SignedRequest)
	if err := json.Unmarshal(payload, sr); err != nil {
		return nil, fmt.Errorf("%w: payload: %w", ErrInvalidSignedRequest, err)
	}
	if !strings.EqualFold(sr.Algorithm, "HMAC-SHA256") {
		return nil, ErrSignedRequestAlgorithm
	}
	if err := json.Unmarshal(payload, &sr.Payload); err != nil {
		return nil, fmt.Errorf("%w: payload: %w", ErrInvalidSignedRequest, err)
	}

	return sr, nil
}

// SignRequest encodes payload as a signed request. It is the inverse of
// ParseSignedRequest; the "algorithm" field is always set.
func (a *App) SignRequest(payload map[string]any) (string, error) {
	withAlg := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		withAlg[k] = v
	}
	withAlg["algorithm"] = "HMAC-SHA256"

	data, err := json.Marshal(withAlg)
	if err != nil {
		return "", err
	}
	encodedPayload := base64.RawURLEncoding.EncodeToString(data)

	mac := hmac.New(sha256.New, []byte(a.secret))
	mac.Write([]byte(encodedPayload))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil)) + "." + encodedPayload, nil
}

// Facebook omits padding, but tolerate it.
func decodeBase64URL(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
}
