// Package httpclient builds pooled HTTP clients for calling a pick server.
package httpclient

import (
	"net"
	"net/http"
	"time"
)

// Options tunes the pool; zero values take the defaults below.
type Options struct {
	Timeout             time.Duration
	MaxIdleConnsPerHost int
}

const (
	defaultTimeout    = 10 * time.Second
	defaultIdlePerHst = 128
)

// New returns a client whose pool is sized for concurrent workers hitting
// a single host.
func New(o Options) *http.Client {
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	if o.MaxIdleConnsPerHost <= 0 {
		o.MaxIdleConnsPerHost = defaultIdlePerHst
	}
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         (&net.Dialer{Timeout: 4 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		MaxIdleConns:        2 * o.MaxIdleConnsPerHost,
		MaxIdleConnsPerHost: o.MaxIdleConnsPerHost,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 4 * time.Second,
	}
	return &http.Client{Transport: transport, Timeout: o.Timeout}
}
