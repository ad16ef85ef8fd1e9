package api

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v5"
	"golang.org/x/time/rate"
)

const visitorTTL = 3 * time.Minute

// RateLimiter limits each client IP to rps requests per second with the
// given burst. Clients are keyed on the connection's peer address, never on
// X-Forwarded-For or X-Real-IP. Idle clients are forgotten after visitorTTL;
// the sweeper stops when ctx is done.
func RateLimiter(ctx context.Context, rps float64, burst int) echo.MiddlewareFunc {
	type visitor struct {
		limiter  *rate.Limiter
		lastSeen time.Time
	}
	var (
		mu       sync.Mutex
		visitors = make(map[string]*visitor)
	)
	if burst < 1 {
		burst = 1
	}

	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				mu.Lock()
				for ip, v := range visitors {
					if time.Since(v.lastSeen) > visitorTTL {
						delete(visitors, ip)
					}
				}
				mu.Unlock()
			}
		}
	}()

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			ip := clientIP(c.Request().RemoteAddr)
			mu.Lock()
			v, ok := visitors[ip]
			if !ok {
				v = &visitor{limiter: rate.NewLimiter(rate.Limit(rps), burst)}
				visitors[ip] = v
			}
			v.lastSeen = time.Now()
			mu.Unlock()

			if !v.limiter.Allow() {
				return writeError(c, http.StatusTooManyRequests, "rate_limit_exceeded", "too many requests")
			}
			return next(c)
		}
	}
}

// clientIP strips the port from a peer address. Addresses without a port
// are used as they are.
func clientIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}
