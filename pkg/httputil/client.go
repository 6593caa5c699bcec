// Package httputil provides shared HTTP plumbing for talking to specimen
// backends: pooled clients per timeout tier and safe response handling.
package httputil

import (
	"io"
	"net"
	"net/http"
	"sync"
	"time"
)

// MaxResponseSize caps how much of a backend response body is read. Specimen
// backends are local but not trusted to be well behaved.
const MaxResponseSize = 10 * 1024 * 1024 // 10MB

// Shared transport with connection pooling. All tier clients reuse this so
// repeated calls to the same backend keep their TCP connections warm.
var sharedTransport = &http.Transport{
	Proxy: http.ProxyFromEnvironment,
	DialContext: (&net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}).DialContext,
	ForceAttemptHTTP2:     true,
	MaxIdleConns:          100,
	MaxIdleConnsPerHost:   10,
	IdleConnTimeout:       90 * time.Second,
	TLSHandshakeTimeout:   10 * time.Second,
	ExpectContinueTimeout: 1 * time.Second,
}

// TimeoutTier selects a timeout budget by operation type.
type TimeoutTier int

const (
	// TierFast for health checks against /api/tags (5s)
	TierFast TimeoutTier = iota
	// TierMedium for embeddings and other auxiliary calls (30s)
	TierMedium
	// TierGenerate for specimen text generation, which can be slow (60s)
	TierGenerate
)

var timeoutDurations = map[TimeoutTier]time.Duration{
	TierFast:     5 * time.Second,
	TierMedium:   30 * time.Second,
	TierGenerate: 60 * time.Second,
}

// One client per tier, initialized once and shared.
var (
	clientFast     *http.Client
	clientMedium   *http.Client
	clientGenerate *http.Client
	clientOnce     sync.Once
)

func initClients() {
	clientFast = &http.Client{Timeout: timeoutDurations[TierFast], Transport: sharedTransport}
	clientMedium = &http.Client{Timeout: timeoutDurations[TierMedium], Transport: sharedTransport}
	clientGenerate = &http.Client{Timeout: timeoutDurations[TierGenerate], Transport: sharedTransport}
}

// Client returns the shared HTTP client for the given timeout tier. Use these
// instead of constructing http.Client per request so the connection pool is
// actually shared.
func Client(tier TimeoutTier) *http.Client {
	clientOnce.Do(initClients)
	switch tier {
	case TierFast:
		return clientFast
	case TierGenerate:
		return clientGenerate
	default:
		return clientMedium
	}
}

// FastClient returns the 5s client (health checks).
func FastClient() *http.Client {
	return Client(TierFast)
}

// MediumClient returns the 30s client (embeddings, auxiliary calls).
func MediumClient() *http.Client {
	return Client(TierMedium)
}

// GenerateClient returns the 60s client (specimen generation).
func GenerateClient() *http.Client {
	return Client(TierGenerate)
}

// ReadResponseBody reads a response body with a size limit.
func ReadResponseBody(r io.Reader, maxSize int64) ([]byte, error) {
	if maxSize <= 0 {
		maxSize = MaxResponseSize
	}
	return io.ReadAll(io.LimitReader(r, maxSize))
}

// DrainAndClose drains and closes a response body so the underlying
// connection goes back to the pool.
func DrainAndClose(body io.ReadCloser) {
	if body != nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(body, MaxResponseSize))
		_ = body.Close()
	}
}
