package graph_test

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"github.com/fussgo/fuss/graph"
)

// signPayload signs payload the way Facebook does, with the test app secret.
func signPayload(payload string) string {
	encoded := base64.RawURLEncoding.EncodeToString([]byte(payload))
	mac := hmac.New(sha256.New, []byte(testAppSecret))
	mac.Write([]byte(encoded))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil)) + "." + encoded
}

func TestSignedRequestRoundTrip(t *testing.T) {
	t.Parallel()

	app := newTestApp(t)
	raw, err := app.SignRequest(map[string]any{
		"issued_at":   1400000000,
		"user_id":     "1000001",
		"oauth_token": "EAAB-user-token",
	})
	if err != nil {
		t.Fatalf("app.SignRequest() error = %v", err)
	}

	sr, err := app.ParseSignedRequest(raw)
	if err != nil {
		t.Fatalf("app.ParseSignedRequest(%q) error = %v", raw, err)
	}

	if got, want := sr.UserID.String(), "1000001"; got != want {
		t.Errorf("sr.UserID = %q, want %q", got, want)
	}
	if got, want := sr.IssuedAt, int64(1400000000); got != want {
		t.Errorf("sr.IssuedAt = %d, want %d", got, want)
	}
	if got, want := sr.Payload["algorithm"], "HMAC-SHA256"; got != want {
		t.Errorf("sr.Payload[algorithm] = %v, want %q", got, want)
	}

	user := sr.User(app)
	if user == nil {
		t.Fatalf("sr.User(app) = nil, want a user session")
	}
	req, err := graph.NewRequest(user, "GET", "me", nil)
	if err != nil {
		t.Fatalf("graph.NewRequest(user, GET, me, nil) error = %v", err)
	}
	if _, err := req.URL(t.Context()); err != nil {
		t.Errorf("req.URL() error = %v", err)
	}
}

func TestSignedRequestWithoutToken(t *testing.T) {
	t.Parallel()

	app := newTestApp(t)
	raw, err := app.SignRequest(map[string]any{"issued_at": 1})
	if err != nil {
		t.Fatalf("app.SignRequest() error = %v", err)
	}
	sr, err := app.ParseSignedRequest(raw)
	if err != nil {
		t.Fatalf("app.ParseSignedRequest() error = %v", err)
	}
	if user := sr.User(app); user != nil {
		t.Errorf("sr.User(app) = %v, want nil", user)
	}
}

func TestParseSignedRequestErrors(t *testing.T) {
	t.Parallel()

	app := newTestApp(t)
	other, err := graph.NewApp(testAppID, "some-other-secret")
	if err != nil {
		t.Fatalf("graph.NewApp() error = %v", err)
	}

	signedElsewhere, err := other.SignRequest(map[string]any{"user_id": "1"})
	if err != nil {
		t.Fatalf("other.SignRequest() error = %v", err)
	}

	sig, _, _ := strings.Cut(signedElsewhere, ".")
	unsignedMD5 := sig + "." + base64.RawURLEncoding.EncodeToString([]byte(`{"algorithm":"HMAC-MD5"}`))

	for _, test := range []struct {
		name string
		raw  string
		want error
	}{
		{name: "empty", raw: "", want: graph.ErrInvalidSignedRequest},
		{name: "no_dot", raw: "abc", want: graph.ErrInvalidSignedRequest},
		{name: "bad_base64", raw: "!!!.@@@", want: graph.ErrInvalidSignedRequest},
		{name: "bad_json", raw: signPayload("not json"), want: graph.ErrInvalidSignedRequest},
		{name: "unsigned_bad_json", raw: "c2ln." + base64.RawURLEncoding.EncodeToString([]byte("not json")), want: graph.ErrSignedRequestSignature},
		{name: "wrong_algorithm", raw: signPayload(`{"algorithm":"HMAC-MD5"}`), want: graph.ErrSignedRequestAlgorithm},
		{name: "unsigned_wrong_algorithm", raw: unsignedMD5, want: graph.ErrSignedRequestSignature},
		{name: "wrong_secret", raw: signedElsewhere, want: graph.ErrSignedRequestSignature},
	} {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			if _, err := app.ParseSignedRequest(test.raw); !errors.Is(err, test.want) {
				t.Errorf("app.ParseSignedRequest(%q) error = %v, want %v", test.raw, err, test.want)
			}
		})
	}
}

func TestParseSignedRequestNumericUserID(t *testing.T) {
	t.Parallel()

	app := newTestApp(t)
	raw := signPayload(`{"algorithm":"HMAC-SHA256","issued_at":1400000000,"user_id":1000001}`)

	sr, err := app.ParseSignedRequest(raw)
	if err != nil {
		t.Fatalf("app.ParseSignedRequest() error = %v", err)
	}
	if got, want := sr.UserID.String(), "1000001"; got != want {
		t.Errorf("sr.UserID = %q, want %q", got, want)
	}
}
