// Package ratelimit provides a per-client token bucket used to guard
// the credential endpoints (login, register, refresh) against
// brute-force attempts.
package ratelimit

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Surya1712/VideoTubes/httputil"
)

// Limiter tracks one token bucket per client IP. In-memory and
// per-process, which is enough for a single-instance deployment.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rate    int           // tokens granted per window
	window  time.Duration // refill window
}

type bucket struct {
	tokens   int
	refilled time.Time
}

// New creates a Limiter allowing rate requests per window per IP and
// starts a background sweep that drops idle buckets.
func New(rate int, window time.Duration) *Limiter {
	l := &Limiter{
		buckets: make(map[string]*bucket),
		rate:    rate,
		window:  window,
	}
	go func() {
		for {
			time.Sleep(5 * time.Minute)
			l.sweep()
		}
	}()
	return l
}

func (l *Limiter) sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := time.Now().Add(-2 * l.window)
	for ip, b := range l.buckets {
		if b.refilled.Before(cutoff) {
			delete(l.buckets, ip)
		}
	}
}

// Allow reports whether the given IP still has budget in the current
// window, consuming one token when it does.
func (l *Limiter) Allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	b, ok := l.buckets[ip]
	if !ok || now.Sub(b.refilled) >= l.window {
		l.buckets[ip] = &bucket{tokens: l.rate - 1, refilled: now}
		return true
	}
	if b.tokens <= 0 {
		return false
	}
	b.tokens--
	return true
}

// trustedCIDRs are the loopback and private networks whose forwarding
// headers we accept. Anything else identifies by RemoteAddr so the
// limit cannot be dodged with a spoofed X-Forwarded-For.
var trustedCIDRs = func() []*net.IPNet {
	cidrs := []string{
		"127.0.0.0/8",
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"::1/128",
		"fc00::/7",
	}
	var nets []*net.IPNet
	for _, c := range cidrs {
		_, n, _ := net.ParseCIDR(c)
		nets = append(nets, n)
	}
	return nets
}()

func fromTrustedProxy(remoteAddr string) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	for _, cidr := range trustedCIDRs {
		if cidr.Contains(ip) {
			return true
		}
	}
	return false
}

// ClientIP resolves the address a request should be limited under.
func ClientIP(r *http.Request) string {
	if fromTrustedProxy(r.RemoteAddr) {
		if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
			return strings.TrimSpace(realIP)
		}
		if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
			// First entry is set by the outermost proxy.
			if idx := strings.IndexByte(forwarded, ','); idx != -1 {
				return strings.TrimSpace(forwarded[:idx])
			}
			return strings.TrimSpace(forwarded)
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Middleware rejects requests over the per-IP budget with 429.
func Middleware(l *Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.Allow(ClientIP(r)) {
				w.Header().Set("Retry-After", "60")
				httputil.WriteFailure(w, 429, "Too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
