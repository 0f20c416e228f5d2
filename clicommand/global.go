package clicommand

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/fussgo/fuss/cliconfig"
	"github.com/fussgo/fuss/graph"
	"github.com/fussgo/fuss/logger"
	"github.com/oleiade/reflections"
	"github.com/urfave/cli"
)

var ConfigFlag = cli.StringFlag{
	Name:   "config",
	Value:  "",
	Usage:  "Path to a YAML configuration file",
	EnvVar: "FUSS_CONFIG",
}

var AppIDFlag = cli.StringFlag{
	Name:   "app-id",
	Value:  "",
	Usage:  "The Facebook app ID",
	EnvVar: "FUSS_APP_ID",
}

var AppSecretFlag = cli.StringFlag{
	Name:   "app-secret",
	Value:  "",
	Usage:  "The Facebook app secret, used for the app access token and appsecret_proof",
	EnvVar: "FUSS_APP_SECRET",
}

var UserAccessTokenFlag = cli.StringFlag{
	Name:   "user-access-token",
	Value:  "",
	Usage:  "Make requests as a user with this access token instead of as the app",
	EnvVar: "FUSS_USER_ACCESS_TOKEN",
}

var APIVersionFlag = cli.StringFlag{
	Name:   "api-version",
	Value:  "",
	Usage:  "Default Graph API version, e.g. v2.1. A version at the start of the request path wins",
	EnvVar: "FUSS_API_VERSION",
}

var TokenEndpointFlag = cli.StringFlag{
	Name:   "token-endpoint",
	Value:  "",
	Usage:  "Fetch the app access token from this OAuth2 endpoint instead of using \"id|secret\"",
	EnvVar: "FUSS_TOKEN_ENDPOINT",
}

var EndpointFlag = cli.StringFlag{
	Name:   "endpoint",
	Value:  graph.DefaultEndpoint,
	Usage:  "The Graph API endpoint",
	EnvVar: "FUSS_ENDPOINT",
}

var TimeoutFlag = cli.DurationFlag{
	Name:   "timeout",
	Value:  0,
	Usage:  "Timeout for each HTTP request, 0 for the default",
	EnvVar: "FUSS_TIMEOUT",
}

var NoHTTP2Flag = cli.BoolFlag{
	Name:   "no-http2",
	Usage:  "Disable HTTP2 when communicating with the Graph API",
	EnvVar: "FUSS_NO_HTTP2",
}

var DebugHTTPFlag = cli.BoolFlag{
	Name:   "debug-http",
	Usage:  "Enable HTTP debug mode, which dumps all request and response bodies to the log with credentials redacted",
	EnvVar: "FUSS_DEBUG_HTTP",
}

var TraceHTTPFlag = cli.BoolFlag{
	Name:   "trace-http",
	Usage:  "Log connection timings for each HTTP request",
	EnvVar: "FUSS_TRACE_HTTP",
}

var DebugFlag = cli.BoolFlag{
	Name:   "debug",
	Usage:  "Enable debug mode. Synonym for `--log-level debug`",
	EnvVar: "FUSS_DEBUG",
}

var LogLevelFlag = cli.StringFlag{
	Name:   "log-level",
	Value:  "notice",
	Usage:  "Set the log level, one of: debug, info, notice, warn, error, fatal",
	EnvVar: "FUSS_LOG_LEVEL",
}

var LogFormatFlag = cli.StringFlag{
	Name:   "log-format",
	Value:  "text",
	Usage:  "The format to use for the logger output, one of: text, json",
	EnvVar: "FUSS_LOG_FORMAT",
}

var NoColorFlag = cli.BoolFlag{
	Name:   "no-color",
	Usage:  "Don't show colors in logging",
	EnvVar: "FUSS_NO_COLOR",
}

var globalFlags = []cli.Flag{
	ConfigFlag,
	NoColorFlag,
	DebugFlag,
	LogLevelFlag,
	LogFormatFlag,
}

var appFlags = []cli.Flag{
	AppIDFlag,
	AppSecretFlag,
	APIVersionFlag,
	TokenEndpointFlag,
}

var apiFlags = []cli.Flag{
	UserAccessTokenFlag,
	EndpointFlag,
	TimeoutFlag,
	NoHTTP2Flag,
	DebugHTTPFlag,
	TraceHTTPFlag,
}

// DefaultConfigFilePaths lists where a config file is looked for when
// --config isn't given. The first one that exists is used.
func DefaultConfigFilePaths() (paths []string) {
	if runtime.GOOS == "windows" {
		paths = []string{
			"$USERPROFILE\\AppData\\Local\\fuss\\fuss.yml",
		}
	} else {
		paths = []string{
			"$HOME/.config/fuss/fuss.yml",
			"/etc/fuss/fuss.yml",
		}
	}

	// Also check next to the binary
	pathToBinary, err := filepath.Abs(filepath.Dir(os.Args[0]))
	if err == nil {
		paths = append([]string{filepath.Join(pathToBinary, "fuss.yml")}, paths...)
	}

	return paths
}

// CreateLogger builds the logger described by the LogFormat and NoColor
// fields of cfg.
func CreateLogger(cfg any) (logger.Logger, error) {
	var printer logger.Printer

	logFormat := "text"
	if value, err := reflections.GetField(cfg, "LogFormat"); err == nil {
		if s, ok := value.(string); ok && s != "" {
			logFormat = s
		}
	}

	switch logFormat {
	case "text":
		p := logger.NewTextPrinter(os.Stderr)
		if noColor, err := reflections.GetField(cfg, "NoColor"); err == nil && noColor == true {
			p.Colors = false
		}
		printer = p
	case "json":
		printer = logger.NewJSONPrinter(os.Stderr)
	default:
		return nil, fmt.Errorf("invalid log format %q, only 'text' or 'json' are allowed", logFormat)
	}

	return logger.NewConsoleLogger(printer, os.Exit), nil
}

// HandleGlobalFlags applies the Debug and LogLevel fields of cfg to l.
func HandleGlobalFlags(l logger.Logger, cfg any) error {
	if debug, err := reflections.GetField(cfg, "Debug"); err == nil && debug == true {
		l.SetLevel(logger.DEBUG)
		return nil
	}

	logLevel, err := reflections.GetField(cfg, "LogLevel")
	if err != nil {
		return nil
	}
	if s, ok := logLevel.(string); ok && s != "" {
		level, err := logger.LevelFromString(s)
		if err != nil {
			return err
		}
		l.SetLevel(level)
	}
	return nil
}

// setupLoggerAndConfig loads the command's config of type T and the logger it
// describes.
func setupLoggerAndConfig[T any](c *cli.Context) (*T, logger.Logger, error) {
	cfg := new(T)

	loader := cliconfig.Loader{
		CLI:                    c,
		Config:                 cfg,
		DefaultConfigFilePaths: DefaultConfigFilePaths(),
	}
	warnings, err := loader.Load()
	if err != nil {
		return nil, nil, err
	}

	l, err := CreateLogger(cfg)
	if err != nil {
		return nil, nil, err
	}

	// Now that we have a logger, log out the warnings that loading config generated
	for _, warning := range warnings {
		l.Warn("%s", warning)
	}

	if err := HandleGlobalFlags(l, cfg); err != nil {
		return nil, nil, err
	}

	return cfg, l, nil
}

func flatten(flagSets ...[]cli.Flag) []cli.Flag {
	length := 0
	for _, flagSet := range flagSets {
		length += len(flagSet)
	}

	flat := make([]cli.Flag, 0, length)
	for _, flagSet := range flagSets {
		flat = append(flat, flagSet...)
	}

	return flat
}
