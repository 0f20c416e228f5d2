package clicommand

import (
	"errors"
	"net/http"
	"time"

	"github.com/fussgo/fuss/graph"
	"github.com/oleiade/reflections"
)

func stringField(cfg any, name string) string {
	value, err := reflections.GetField(cfg, name)
	if err != nil {
		return ""
	}
	s, _ := value.(string)
	return s
}

func boolField(cfg any, name string) bool {
	value, err := reflections.GetField(cfg, name)
	return err == nil && value == true
}

// loadApp builds the App from the AppID, AppSecret, APIVersion and
// TokenEndpoint fields of cfg. Token exchanges use httpClient.
func loadApp(cfg any, httpClient *http.Client) (*graph.App, error) {
	var opts []graph.AppOption

	if version := stringField(cfg, "APIVersion"); version != "" {
		opts = append(opts, graph.WithVersion(version))
	}
	if endpoint := stringField(cfg, "TokenEndpoint"); endpoint != "" {
		opts = append(opts, graph.WithTokenEndpoint(endpoint))
	}
	if httpClient != nil {
		opts = append(opts, graph.WithAppHTTPClient(httpClient))
	}

	return graph.NewApp(stringField(cfg, "AppID"), stringField(cfg, "AppSecret"), opts...)
}

// loadSession returns a User session when cfg has a UserAccessToken, and
// the app itself otherwise.
func loadSession(cfg any, app *graph.App) (graph.Session, error) {
	token := stringField(cfg, "UserAccessToken")
	if token == "" {
		return app, nil
	}

	user, err := graph.NewUser(graph.NewAccessToken(app, token, graph.TokenTypeUser))
	if err != nil {
		return nil, errors.New("invalid user access token")
	}
	return user, nil
}

func loadClientConfig(cfg any) graph.Config {
	conf := graph.Config{
		Endpoint:     stringField(cfg, "Endpoint"),
		DisableHTTP2: boolField(cfg, "NoHTTP2"),
		DebugHTTP:    boolField(cfg, "DebugHTTP"),
		TraceHTTP:    boolField(cfg, "TraceHTTP"),
	}

	if timeout, err := reflections.GetField(cfg, "Timeout"); err == nil {
		if d, ok := timeout.(time.Duration); ok {
			conf.Timeout = d
		}
	}

	return conf
}
