// Package version provides the fuss version strings.
package version

import (
	_ "embed"
	"runtime"
	"strings"
)

//go:embed VERSION
var baseVersion string

// buildVersion can be overridden at compile time with:
//
//	go build -ldflags "-X github.com/fussgo/fuss/version.buildVersion=abc" ./cmd/fuss
var buildVersion string

func Version() string {
	return strings.TrimSpace(baseVersion)
}

func BuildVersion() string {
	if buildVersion == "" {
		return "x"
	}
	return buildVersion
}

func UserAgent() string {
	return "fuss/" + Version() + "." + BuildVersion() + " (" + runtime.GOOS + "; " + runtime.GOARCH + ")"
}
