// ratelimit.go: ограничение частоты запросов на HTTP-уровне.
package middleware

import (
	"net/http"
	"strconv"
	"time"

	apierrors "github.com/bigkaa/eventgate/internal/api/errors"
	"github.com/bigkaa/eventgate/internal/ratelimit"
)

// KeyFunc вычисляет ключ лимита для запроса.
type KeyFunc func(r *http.Request) string

// ByClientIP: ключ лимита по IP клиента (публичные формы).
func ByClientIP(r *http.Request) string {
	return "ip:" + ClientIPFromContext(r.Context(), r)
}

// ByPrincipal: ключ по сотруднику, для анонимных запросов, по IP.
func ByPrincipal(r *http.Request) string {
	if p := PrincipalFromContext(r.Context()); p != nil {
		return "user:" + p.ID
	}
	return ByClientIP(r)
}

// RateLimit возвращает middleware, ограничивающий частоту запросов.
// Заголовки X-RateLimit-* выставляются на каждый ответ. При превышении
// лимита ответ 429 RATE_LIMITED с Retry-After.
func RateLimit(limiter *ratelimit.Limiter, name string, key KeyFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res := limiter.Allow(r.Context(), key(r))
			addRateLimitHeaders(w, res)

			if !res.Allowed {
				rateLimitedTotal.WithLabelValues(name).Inc()
				retry := res.RetryAfter(time.Now())
				w.Header().Set("Retry-After", strconv.Itoa(int((retry+time.Second-1)/time.Second)))
				apierrors.RateLimited(w, "Слишком много запросов, повторите позже")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func addRateLimitHeaders(w http.ResponseWriter, res *ratelimit.Result) {
	h := w.Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(max(res.Remaining, 0)))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))
}
