package ratelimit

import (
	"net/http"
	"time"
)

// readMultiplier scales the write limits into the read limits.
const readMultiplier = 10

// Tier is a named limiter.
type Tier struct {
	Name    string
	Limiter *Limiter
}

// Config holds the limiters of each tier. Buckets are per client IP.
type Config struct {
	Read  Tier
	Write Tier
}

// NewConfig allows requests commands per window per client, with burst
// capacity. Queries get ten times as much.
func NewConfig(requests int, window time.Duration, burst int) *Config {
	return &Config{
		Read:  Tier{Name: "read", Limiter: NewLimiter(requests*readMultiplier, window, burst*readMultiplier)},
		Write: Tier{Name: "write", Limiter: NewLimiter(requests, window, burst)},
	}
}

// Match returns the tier of a request, nil when it is not limited.
func (c *Config) Match(method, path string) *Tier {
	if path == "/api/health" {
		return nil
	}
	switch method {
	case http.MethodGet, http.MethodHead:
		return &c.Read
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return &c.Write
	default:
		return nil
	}
}

// Close stops all limiter cleanup goroutines.
func (c *Config) Close() {
	c.Read.Limiter.Close()
	c.Write.Limiter.Close()
}
