package ratelimit

import (
	"net/http"
	"time"

	"github.com/maruel/jsondb/internal/config"
)

// Tier is a named Limiter.
type Tier struct {
	Name    string
	Limiter *Limiter
}

// Tiers holds the limiters applied to API requests. A nil tier disables
// limiting for its class of requests.
type Tiers struct {
	Read  *Tier
	Write *Tier
}

// NewTiers builds the tiers from the rate_limits section of the server
// configuration. A zero rate disables the tier.
func NewTiers(c config.RateLimits) *Tiers {
	return &Tiers{
		Read:  newTier("read", c.ReadRatePerMin),
		Write: newTier("write", c.WriteRatePerMin),
	}
}

func newTier(name string, perMin int) *Tier {
	if perMin <= 0 {
		return nil
	}
	return &Tier{Name: name, Limiter: NewLimiter(perMin, time.Minute, max(perMin/6, 1))}
}

// Match returns the tier for a request, or nil when it is not limited.
func (t *Tiers) Match(method, path string) *Tier {
	if t == nil || path == "/api/health" || path == "/metrics" {
		return nil
	}
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return t.Write
	case http.MethodGet, http.MethodHead:
		return t.Read
	}
	return nil
}

// Close stops every limiter.
func (t *Tiers) Close() {
	if t == nil {
		return
	}
	for _, tier := range []*Tier{t.Read, t.Write} {
		if tier != nil {
			tier.Limiter.Close()
		}
	}
}
