package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"

	"github.com/pdq-signal-server/internal/domain"
)

const (
	maxTrackedClients = 4096
	clientIdleTTL     = 10 * time.Minute
)

// ClientLimiter hands out one token bucket per client IP. Idle clients are
// forgotten after ten minutes.
type ClientLimiter struct {
	mu       sync.Mutex
	limiters *expirable.LRU[string, *rate.Limiter]
	limit    rate.Limit
	burst    int
}

// NewClientLimiter creates a limiter allowing rps requests per second with
// the given burst for every client
func NewClientLimiter(rps float64, burst int) *ClientLimiter {
	if burst < 1 {
		burst = 1
	}
	return &ClientLimiter{
		limiters: expirable.NewLRU[string, *rate.Limiter](maxTrackedClients, nil, clientIdleTTL),
		limit:    rate.Limit(rps),
		burst:    burst,
	}
}

// Allow reports whether the client may make a request now
func (l *ClientLimiter) Allow(client string) bool {
	l.mu.Lock()
	lim, ok := l.limiters.Get(client)
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters.Add(client, lim)
	}
	l.mu.Unlock()
	return lim.Allow()
}

// RateLimit rejects clients exceeding their bucket with 429
func RateLimit(l *ClientLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if l.Allow(c.ClientIP()) {
			c.Next()
			return
		}
		c.Header("Retry-After", "1")
		c.AbortWithStatusJSON(http.StatusTooManyRequests, domain.NewPDQError(
			domain.ErrRateLimit,
			"Too many requests",
			"",
			c.GetString(CorrelationIDKey),
		))
	}
}
