// clientip.go: определение IP клиента с учётом доверенных прокси.
package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"
)

// ContextKeyClientIP: IP клиента в контексте запроса.
const ContextKeyClientIP contextKey = "client_ip"

// ClientIP возвращает middleware, вычисляющий IP клиента.
//
// X-Forwarded-For и X-Real-IP учитываются только если непосредственный
// собеседник (RemoteAddr) входит в trusted. В X-Forwarded-For берётся
// самый правый адрес, не принадлежащий доверенным прокси.
func ClientIP(trusted []*net.IPNet) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := resolveClientIP(r, trusted)
			ctx := context.WithValue(r.Context(), ContextKeyClientIP, ip)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClientIPFromContext возвращает IP, вычисленный ClientIP, или адрес из
// RemoteAddr, если middleware не подключён.
func ClientIPFromContext(ctx context.Context, r *http.Request) string {
	if ip, ok := ctx.Value(ContextKeyClientIP).(string); ok && ip != "" {
		return ip
	}
	return remoteHost(r.RemoteAddr)
}

func resolveClientIP(r *http.Request, trusted []*net.IPNet) string {
	remote := remoteHost(r.RemoteAddr)
	if !isTrusted(remote, trusted) {
		return remote
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			if net.ParseIP(hop) == nil {
				continue
			}
			if !isTrusted(hop, trusted) {
				return hop
			}
		}
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); net.ParseIP(xri) != nil {
		return xri
	}
	return remote
}

func remoteHost(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

func isTrusted(ip string, trusted []*net.IPNet) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	for _, n := range trusted {
		if n.Contains(parsed) {
			return true
		}
	}
	return false
}
