// Пакет ratelimit: ограничение частоты запросов скользящим окном.
//
// Хранилище окон: Redis (общий лимит для всех реплик) или память процесса,
// если Redis не настроен. Ошибка хранилища не блокирует запрос: Limiter
// пропускает его и пишет предупреждение в лог.
package ratelimit

import (
	"context"
	"log/slog"
	"time"
)

// Result: результат проверки лимита.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	// ResetAt: момент, когда освободится место в окне
	ResetAt time.Time
}

// RetryAfter: через сколько повторить запрос (0, если разрешён).
func (r *Result) RetryAfter(now time.Time) time.Duration {
	if r.Allowed {
		return 0
	}
	d := r.ResetAt.Sub(now)
	if d < time.Second {
		return time.Second
	}
	return d
}

// Store: хранилище скользящих окон.
type Store interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (*Result, error)
}

// Limiter проверяет лимит для ключа, при сбое хранилища пропуская запрос.
type Limiter struct {
	store  Store
	limit  int
	window time.Duration
	prefix string
	logger *slog.Logger
}

// NewLimiter создаёт Limiter с лимитом limit запросов за window.
// prefix отделяет ключи разных лимитов (registration, api).
func NewLimiter(store Store, prefix string, limit int, window time.Duration, logger *slog.Logger) *Limiter {
	return &Limiter{
		store:  store,
		limit:  limit,
		window: window,
		prefix: prefix,
		logger: logger.With(slog.String("component", "ratelimit"), slog.String("limiter", prefix)),
	}
}

// Allow проверяет лимит для ключа.
func (l *Limiter) Allow(ctx context.Context, key string) *Result {
	res, err := l.store.Allow(ctx, l.prefix+":"+key, l.limit, l.window)
	if err != nil {
		l.logger.Warn("Хранилище лимитов недоступно, запрос пропущен",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return &Result{Allowed: true, Limit: l.limit, Remaining: l.limit, ResetAt: time.Now().Add(l.window)}
	}
	return res
}

// Limit возвращает лимит запросов в окне.
func (l *Limiter) Limit() int {
	return l.limit
}
