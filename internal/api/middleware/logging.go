package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
)

type requestNotesKey struct{}

// requestNotes: сведения, которые обработчики глубже по цепочке сообщают
// журналу запроса. Middleware аутентификации меняет контекст только для
// вложенных обработчиков, поэтому заметка передаётся через указатель.
type requestNotes struct {
	userID string
}

func noteUser(ctx context.Context, userID string) {
	if n, ok := ctx.Value(requestNotesKey{}).(*requestNotes); ok {
		n.userID = userID
	}
}

// statusOf возвращает код ответа; 0 означает, что обработчик ничего не записал.
func statusOf(ww chimw.WrapResponseWriter) int {
	if s := ww.Status(); s != 0 {
		return s
	}
	return http.StatusOK
}

// RequestLogger пишет по записи на каждый HTTP-запрос.
// Успешные запросы идут на DEBUG (health-пробы, опрос статистики),
// 4xx на WARN, 5xx на ERROR.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			notes := &requestNotes{}
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r.WithContext(context.WithValue(r.Context(), requestNotesKey{}, notes)))

			status := statusOf(ww)
			level := slog.LevelDebug
			switch {
			case status >= http.StatusInternalServerError:
				level = slog.LevelError
			case status >= http.StatusBadRequest:
				level = slog.LevelWarn
			}

			attrs := make([]slog.Attr, 0, 8)
			attrs = append(attrs,
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", status),
				slog.Duration("duration", time.Since(start)),
				slog.Int("bytes", ww.BytesWritten()),
				slog.String("remote_addr", ClientIPFromContext(r.Context(), r)),
			)
			if reqID := chimw.GetReqID(r.Context()); reqID != "" {
				attrs = append(attrs, slog.String("request_id", reqID))
			}
			if notes.userID != "" {
				attrs = append(attrs, slog.String("user_id", notes.userID))
			}

			logger.LogAttrs(r.Context(), level, "HTTP запрос", attrs...)
		})
	}
}
