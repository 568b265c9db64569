package auth

import (
	"context"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/HanTheDev/llm-fusion-gateway/internal/models"
	"golang.org/x/crypto/blake2b"
)

type contextKey string

const CallerContextKey contextKey = "caller"

const (
	HeaderSessionID    = "X-Session-ID"
	HeaderCapabilities = "X-Client-Capabilities"
	HeaderForwardedFor = "X-Forwarded-For"
	HeaderAdminKey     = "X-Admin-Key"
)

type Middleware struct {
	salt    string
	trusted []*net.IPNet
}

// NewMiddleware returns the identity middleware. salt keeps caller ids from
// being derivable from a known IP. X-Forwarded-For is only read when the
// connection comes from one of trustedProxies.
func NewMiddleware(salt string, trustedProxies ...*net.IPNet) *Middleware {
	return &Middleware{salt: salt, trusted: trustedProxies}
}

// ParseTrustedProxies accepts CIDR blocks and bare addresses.
func ParseTrustedProxies(entries []string) ([]*net.IPNet, error) {
	var nets []*net.IPNet
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if !strings.Contains(e, "/") {
			ip := net.ParseIP(e)
			if ip == nil {
				return nil, fmt.Errorf("invalid trusted proxy %q", e)
			}
			bits := 8 * net.IPv6len
			if ip4 := ip.To4(); ip4 != nil {
				ip, bits = ip4, 8*net.IPv4len
			}
			nets = append(nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
			continue
		}
		_, n, err := net.ParseCIDR(e)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", e, err)
		}
		nets = append(nets, n)
	}
	return nets, nil
}

// Identify derives the caller identity of every request. It never rejects:
// admission decides what an anonymous or malformed caller may do.
func (m *Middleware) Identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller := models.CallerInfo{
			OriginIP:      m.OriginIP(r),
			UserAgent:     r.UserAgent(),
			SessionID:     strings.TrimSpace(r.Header.Get(HeaderSessionID)),
			HasCapability: strings.TrimSpace(r.Header.Get(HeaderCapabilities)) != "",
		}

		if authHeader := r.Header.Get("Authorization"); authHeader != "" {
			parts := strings.Split(authHeader, " ")
			if len(parts) == 2 && parts[0] == "Bearer" {
				caller.PrivilegeToken = parts[1]
			}
		}
		caller.CallerID = CallerID(m.salt, caller.OriginIP)

		ctx := context.WithValue(r.Context(), CallerContextKey, caller)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// CallerID is a stable pseudonymous id for an origin address. Session ids
// and user agents are client controlled and never split an origin into
// several callers.
func CallerID(salt, originIP string) string {
	sum := blake2b.Sum256([]byte(salt + "|ip:" + originIP))
	return hex.EncodeToString(sum[:12])
}

// OriginIP is the connection address. When the peer is a trusted proxy the
// X-Forwarded-For chain is walked from the right and the first hop that is
// not itself a trusted proxy wins.
func (m *Middleware) OriginIP(r *http.Request) string {
	origin, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		origin = r.RemoteAddr
	}
	if !m.isTrusted(origin) {
		return origin
	}

	hops := strings.Split(r.Header.Get(HeaderForwardedFor), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		ip := net.ParseIP(strings.TrimSpace(hops[i]))
		if ip == nil {
			break
		}
		origin = ip.String()
		if !m.isTrusted(origin) {
			break
		}
	}
	return origin
}

func (m *Middleware) isTrusted(addr string) bool {
	ip := net.ParseIP(addr)
	if ip == nil {
		return false
	}
	for _, n := range m.trusted {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

func GetCallerFromContext(ctx context.Context) (models.CallerInfo, bool) {
	caller, ok := ctx.Value(CallerContextKey).(models.CallerInfo)
	return caller, ok
}

// RequireAdminKey guards operator routes. An empty key disables them.
func RequireAdminKey(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if key == "" {
				http.Error(w, "Admin API disabled", http.StatusForbidden)
				return
			}
			got := r.Header.Get(HeaderAdminKey)
			if got == "" {
				http.Error(w, "Missing admin key", http.StatusUnauthorized)
				return
			}
			if subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
				http.Error(w, "Invalid admin key", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
