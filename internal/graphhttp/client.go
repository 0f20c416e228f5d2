// Package graphhttp creates standard Go [net/http.Client]s configured for
// talking to the Graph API.
package graphhttp

import (
	"crypto/tls"
	"net/http"
	"sync"
	"time"

	"golang.org/x/net/http2"
)

// NewClient creates a HTTP client. The default timeout is 60 seconds; use
// [WithNoTimeout] to leave cancellation entirely to the request context.
func NewClient(opts ...ClientOption) *http.Client {
	conf := clientConfig{
		UserAgent:  "",
		AllowHTTP2: true,
		Timeout:    60 * time.Second,
		TLSConfig:  nil,
	}
	for _, opt := range opts {
		opt(&conf)
	}

	cacheKey := transportCacheKey{
		AllowHTTP2: conf.AllowHTTP2,
		TLSConfig:  conf.TLSConfig,
	}

	transportCacheMu.Lock()
	transport := transportCache[cacheKey]
	if transport == nil {
		transport = newTransport(&conf)
		transportCache[cacheKey] = transport
	}
	transportCacheMu.Unlock()

	if conf.UserAgent == "" {
		return &http.Client{
			Timeout:   conf.Timeout,
			Transport: transport,
		}
	}

	return &http.Client{
		Timeout: conf.Timeout,
		Transport: &headerTransport{
			UserAgent: conf.UserAgent,
			Delegate:  transport,
		},
	}
}

// Various NewClient options.
func WithUserAgent(ua string) ClientOption     { return func(c *clientConfig) { c.UserAgent = ua } }
func WithAllowHTTP2(a bool) ClientOption       { return func(c *clientConfig) { c.AllowHTTP2 = a } }
func WithTimeout(d time.Duration) ClientOption { return func(c *clientConfig) { c.Timeout = d } }
func WithNoTimeout(c *clientConfig)            { c.Timeout = 0 }
func WithTLSConfig(t *tls.Config) ClientOption { return func(c *clientConfig) { c.TLSConfig = t } }

type ClientOption = func(*clientConfig)

func newTransport(conf *clientConfig) *http.Transport {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	// TLSClientConfig must be in place before http2.ConfigureTransports.
	if conf.TLSConfig != nil {
		transport.TLSClientConfig = conf.TLSConfig
	}

	if conf.AllowHTTP2 {
		// Dead HTTP/2 connections are only noticed if something pings them.
		// See https://github.com/golang/go/issues/59690
		tr2, err := http2.ConfigureTransports(transport)
		if err != nil {
			// Only possible if transport already speaks HTTP/2, and a fresh
			// clone of the default transport does not.
			panic("http2.ConfigureTransports: " + err.Error())
		}
		if tr2 != nil {
			tr2.ReadIdleTimeout = 30 * time.Second
		}
	} else {
		transport.TLSNextProto = make(map[string]func(string, *tls.Conn) http.RoundTripper)
		if transport.TLSClientConfig == nil {
			transport.TLSClientConfig = &tls.Config{}
		}
		transport.TLSClientConfig.NextProtos = []string{"http/1.1"}
	}

	return transport
}

type clientConfig struct {
	// Sent as the User-Agent header on every request when set
	UserAgent string

	// If false, HTTP2 is disabled
	AllowHTTP2 bool

	// Timeout used as the client timeout.
	Timeout time.Duration

	// optional TLS configuration primarily used for testing
	TLSConfig *tls.Config
}

// The underlying http.Transport is cached so that clients built with the
// same options share a connection pool.
type transportCacheKey struct {
	AllowHTTP2 bool
	TLSConfig  *tls.Config
}

var (
	transportCacheMu sync.Mutex
	transportCache   = make(map[transportCacheKey]*http.Transport)
)
