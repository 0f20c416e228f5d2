package clicommand

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/buildkite/interpolate"
	"github.com/buildkite/roko"
	"github.com/fussgo/fuss/graph"
	"github.com/fussgo/fuss/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli"
	"gopkg.in/yaml.v3"
)

const requestHelpDescription = `Usage:

    fuss request <method> <path> [options...]

Description:

Signs a request with the app's access token (or --user-access-token) and its
appsecret_proof, sends it to the Graph API and prints the JSON response.

The method is one of GET, POST or DELETE. The path may start with an API
version, e.g. "v2.1/me/feed", which takes precedence over --api-version.
Query parameters are given with --query; a POST body is read from a YAML or
JSON file with --body-file. $VARIABLES in the body file are replaced from the
environment unless --no-interpolation is given.

Graph API errors exit with status 2; all other failures exit with status 1.

Example:

    $ fuss request GET app --app-id 1234 --app-secret s3cr3t
    $ fuss request GET me --user-access-token "$TOKEN" --query fields=id,name
    $ fuss request POST app --body-file ./restrictions.yml --retries 3`

type RequestConfig struct {
	Method          string   `cli:"arg:0" label:"request method" validate:"required"`
	Path            string   `cli:"arg:1" label:"request path" validate:"required"`
	Query           []string `cli:"query"`
	BodyFile        string   `cli:"body-file" normalize:"filepath" validate:"file-exists"`
	NoInterpolation bool     `cli:"no-interpolation"`
	Retries         int      `cli:"retries"`
	Pretty          bool     `cli:"pretty"`
	MetricsFile     string   `cli:"metrics-file" normalize:"filepath"`

	// Tracing
	TracingBackend     string `cli:"tracing-backend"`
	TracingServiceName string `cli:"tracing-service-name"`

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
	Endpoint        string        `cli:"endpoint" validate:"required"`
	Timeout         time.Duration `cli:"timeout"`
	NoHTTP2         bool          `cli:"no-http2"`
	DebugHTTP       bool          `cli:"debug-http"`
	TraceHTTP       bool          `cli:"trace-http"`
}

var RequestCommand = cli.Command{
	Name:        "request",
	Usage:       "Make a signed request to the Graph API",
	Description: requestHelpDescription,
	Flags: flatten(
		[]cli.Flag{
			cli.StringSliceFlag{
				Name:  "query",
				Value: &cli.StringSlice{},
				Usage: "A query parameter as key=value. Can be given multiple times",
			},
			cli.StringFlag{
				Name:   "body-file",
				Value:  "",
				Usage:  "Read the POST body parameters from this YAML or JSON file",
				EnvVar: "FUSS_BODY_FILE",
			},
			cli.BoolFlag{
				Name:   "no-interpolation",
				Usage:  "Skip variable interpolation of the body file",
				EnvVar: "FUSS_NO_INTERPOLATION",
			},
			cli.IntFlag{
				Name:   "retries",
				Value:  0,
				Usage:  "How many times to retry rate limited or transient failures",
				EnvVar: "FUSS_RETRIES",
			},
			cli.BoolFlag{
				Name:   "pretty",
				Usage:  "Indent the JSON response",
				EnvVar: "FUSS_PRETTY",
			},
			cli.StringFlag{
				Name:   "metrics-file",
				Value:  "",
				Usage:  "Write request metrics to this file in the Prometheus text format",
				EnvVar: "FUSS_METRICS_FILE",
			},
		},
		appFlags,
		apiFlags,
		tracingFlags,
		globalFlags,
	),
	Action: func(c *cli.Context) error {
		ctx := context.Background()

		cfg, l, err := setupLoggerAndConfig[RequestConfig](c)
		if err != nil {
			return err
		}

		return apiExitError(runRequest(ctx, l, *cfg, c.App.Writer, time.Sleep))
	},
}

// runRequest makes the request described by cfg and writes the response to
// w. Retries wait using sleep.
func runRequest(ctx context.Context, l logger.Logger, cfg RequestConfig, w io.Writer, sleep func(time.Duration)) error {
	if cfg.Retries < 0 {
		return fmt.Errorf("--retries must not be negative, got %d", cfg.Retries)
	}

	query, err := parseQuery(cfg.Query)
	if err != nil {
		return err
	}

	var env interpolate.Env
	if !cfg.NoInterpolation {
		env = interpolate.NewSliceEnv(os.Environ())
	}
	body, err := loadBody(cfg.BodyFile, env)
	if err != nil {
		return err
	}

	conf := loadClientConfig(cfg)

	tp, stopTracing, err := startTracing(ctx, l, cfg)
	if err != nil {
		return err
	}
	defer stopTracing()
	if tp != nil {
		conf.TracerProvider = tp
	}

	var reg *prometheus.Registry
	if cfg.MetricsFile != "" {
		reg = prometheus.NewRegistry()
		if conf.Metrics, err = graph.NewMetrics(reg); err != nil {
			return fmt.Errorf("registering metrics: %w", err)
		}
	}

	client := graph.NewClient(l, conf)

	app, err := loadApp(cfg, client.HTTPClient())
	if err != nil {
		return err
	}
	session, err := loadSession(cfg, app)
	if err != nil {
		return err
	}

	var result any
	err = roko.NewRetrier(
		roko.WithMaxAttempts(cfg.Retries+1),
		roko.WithStrategy(roko.ExponentialSubsecond(2*time.Second)),
		roko.WithJitter(),
		roko.WithSleepFunc(sleep),
	).DoWithContext(ctx, func(r *roko.Retrier) error {
		// A Request can only be made once, so each attempt gets its own.
		req, err := graph.NewRequest(session, cfg.Method, cfg.Path, query)
		if err != nil {
			r.Break()
			return err
		}
		if body != nil {
			if err := req.SetBody(body); err != nil {
				r.Break()
				return err
			}
		}

		l.Debug("%s %s (request %s)", req.Method(), req.Path(), req.ID())

		result, err = client.Make(ctx, req)
		if err != nil {
			if !graph.IsRetryableError(err) {
				r.Break()
				return err
			}
			l.WithFields(logger.ErrorField(err)).Warn("Request failed (%s)", r)
			return err
		}
		return nil
	})

	if reg != nil {
		if werr := prometheus.WriteToTextfile(cfg.MetricsFile, reg); werr != nil {
			l.WithFields(logger.ErrorField(werr)).Error("Couldn't write metrics to %s", cfg.MetricsFile)
		}
	}

	if err != nil {
		return err
	}

	return writeJSON(w, result, cfg.Pretty)
}

// parseQuery turns key=value pairs into a query mapping. A later pair for
// the same key replaces an earlier one.
func parseQuery(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}

	query := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid query parameter %q, expected key=value", pair)
		}
		query[key] = value
	}
	return query, nil
}

// loadBody reads body parameters from a YAML or JSON file. Mapping order is
// kept, so the body is sent in the order it was written. When env is not nil
// variables in the file are interpolated from it first.
func loadBody(path string, env interpolate.Env) (*graph.Params, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading body file: %w", err)
	}

	if env != nil {
		interpolated, err := interpolate.Interpolate(env, string(data))
		if err != nil {
			return nil, fmt.Errorf("interpolating body file %s: %w", path, err)
		}
		data = []byte(interpolated)
	}

	body := graph.NewParams()
	if err := yaml.Unmarshal(data, body); err != nil {
		return nil, fmt.Errorf("parsing body file %s: %w", path, err)
	}
	return body, nil
}

func writeJSON(w io.Writer, v any, pretty bool) error {
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("writing response: %w", err)
	}
	return nil
}
