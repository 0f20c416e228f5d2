package clicommand

import (
	"io"

	"github.com/fussgo/fuss/logger"
	"github.com/urfave/cli"
)

const signedRequestHelpDescription = `Usage:

    fuss signed-request <signed-request> [options...]

Description:

Verifies a signed_request, as posted by Facebook to canvas and page tab apps
or set by the JavaScript SDK, against the app secret and prints its payload
as JSON.

The command fails if the signature doesn't match or the algorithm isn't
HMAC-SHA256.

Example:

    $ fuss signed-request --app-secret s3cr3t "$SIGNED_REQUEST"`

type SignedRequestConfig struct {
	SignedRequest string `cli:"arg:0" label:"signed request" env:"FUSS_SIGNED_REQUEST" validate:"required"`
	Pretty        bool   `cli:"pretty"`

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
}

var SignedRequestCommand = cli.Command{
	Name:        "signed-request",
	Usage:       "Verify a signed_request and print its payload",
	Description: signedRequestHelpDescription,
	Flags: flatten(
		[]cli.Flag{
			cli.BoolFlag{
				Name:   "pretty",
				Usage:  "Indent the JSON output",
				EnvVar: "FUSS_PRETTY",
			},
		},
		appFlags,
		globalFlags,
	),
	Action: func(c *cli.Context) error {
		cfg, l, err := setupLoggerAndConfig[SignedRequestConfig](c)
		if err != nil {
			return err
		}

		return runSignedRequest(l, *cfg, c.App.Writer)
	},
}

func runSignedRequest(l logger.Logger, cfg SignedRequestConfig, w io.Writer) error {
	app, err := loadApp(cfg, nil)
	if err != nil {
		return err
	}

	sr, err := app.ParseSignedRequest(cfg.SignedRequest)
	if err != nil {
		return err
	}

	if sr.UserID != "" {
		l.Debug("Signed request for user %s", sr.UserID)
	}

	return writeJSON(w, sr.Payload, cfg.Pretty)
}
