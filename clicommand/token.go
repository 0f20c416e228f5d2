package clicommand

import (
	"context"
	"io"
	"time"

	"github.com/fussgo/fuss/graph"
	"github.com/fussgo/fuss/logger"
	"github.com/urfave/cli"
)

const tokenHelpDescription = `Usage:

    fuss token [options...]

Description:

Prints the access token that requests would be signed with, its type and
the matching appsecret_proof as JSON.

Without --user-access-token this is the app access token, either "id|secret"
or one fetched from --token-endpoint.

Example:

    $ fuss token --app-id 1234 --app-secret s3cr3t
    $ fuss token --user-access-token "$TOKEN"`

type TokenConfig struct {
	Pretty bool `cli:"pretty"`

	// Global flags
	Debug     bool   `cli:"debug"`
	LogLevel  string `cli:"log-level"`
	LogFormat string `cli:"log-format"`
	NoColor   bool   `cli:"no-color"`

	// App config
	AppID         string `cli:"app-id" validate:"required"`
	AppSecret     string `cli:"app-secret" validate:"required"`
	APIVersion    string `cli:"api-version"`
	TokenEndpoint string `cli:"token-endpoint"`

	// API config
	UserAccessToken string        `cli:"user-access-token"`
	Endpoint        string        `cli:"endpoint"`
	Timeout         time.Duration `cli:"timeout"`
	NoHTTP2         bool          `cli:"no-http2"`
	DebugHTTP       bool          `cli:"debug-http"`
	TraceHTTP       bool          `cli:"trace-http"`
}

var TokenCommand = cli.Command{
	Name:        "token",
	Usage:       "Print the access token and appsecret_proof requests are signed with",
	Description: tokenHelpDescription,
	Flags: flatten(
		[]cli.Flag{
			cli.BoolFlag{
				Name:   "pretty",
				Usage:  "Indent the JSON output",
				EnvVar: "FUSS_PRETTY",
			},
		},
		appFlags,
		apiFlags,
		globalFlags,
	),
	Action: func(c *cli.Context) error {
		ctx := context.Background()

		cfg, l, err := setupLoggerAndConfig[TokenConfig](c)
		if err != nil {
			return err
		}

		return runToken(ctx, l, *cfg, c.App.Writer)
	},
}

type tokenOutput struct {
	Type           string `json:"type"`
	AccessToken    string `json:"access_token"`
	AppSecretProof string `json:"appsecret_proof"`
	AppID          string `json:"app_id"`
	APIVersion     string `json:"api_version,omitempty"`
}

func runToken(ctx context.Context, l logger.Logger, cfg TokenConfig, w io.Writer) error {
	client := graph.NewClient(l, loadClientConfig(cfg))

	app, err := loadApp(cfg, client.HTTPClient())
	if err != nil {
		return err
	}
	session, err := loadSession(cfg, app)
	if err != nil {
		return err
	}

	token, err := session.AccessToken(ctx)
	if err != nil {
		return err
	}
	l.Debug("Loaded %s", token)

	return writeJSON(w, tokenOutput{
		Type:           token.Type().String(),
		AccessToken:    token.Plain(),
		AppSecretProof: app.SecretProof(token.Plain()),
		AppID:          app.ID(),
		APIVersion:     app.Version(),
	}, cfg.Pretty)
}
