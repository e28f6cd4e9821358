// stream.go: SSE-поток публичной статистики.
// Все подключения читают общий кэш StatsService, поэтому число клиентов
// не увеличивает нагрузку на БД.
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/bigkaa/eventgate/internal/api/middleware"
)

// StreamPublicStats: GET /api/v1/public/stats/stream.
// Формат: event: stats\ndata: {json}\n\n, сразу при подключении и далее
// с периодом streamInterval, пока клиент не отключится.
func (h *APIHandler) StreamPublicStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	// ResponseController находит http.Flusher через Unwrap() обёрток middleware
	rc := http.NewResponseController(w)
	// Поток живёт дольше WriteTimeout сервера
	_ = rc.SetWriteDeadline(time.Time{})
	if err := rc.Flush(); err != nil {
		http.Error(w, "SSE не поддерживается", http.StatusInternalServerError)
		return
	}

	ctx := r.Context()
	remote := middleware.ClientIPFromContext(ctx, r)
	h.logger.Debug("SSE клиент подключён", slog.String("remote_addr", remote))

	if !h.sendStats(ctx, w, rc) {
		return
	}

	ticker := time.NewTicker(h.streamInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.logger.Debug("SSE клиент отключён", slog.String("remote_addr", remote))
			return
		case <-h.streamsDone:
			return
		case <-ticker.C:
			if !h.sendStats(ctx, w, rc) {
				return
			}
		}
	}
}

// sendStats отправляет одно событие stats. Ошибка чтения статистики
// пропускает тик; false: соединение потеряно.
func (h *APIHandler) sendStats(ctx context.Context, w http.ResponseWriter, rc *http.ResponseController) bool {
	stats, err := h.svc.Stats.Public(ctx)
	if err != nil {
		if ctx.Err() == nil {
			h.logger.Warn("Ошибка получения статистики для SSE", slog.String("error", err.Error()))
		}
		return ctx.Err() == nil
	}

	data, err := json.Marshal(mapPublicStats(stats))
	if err != nil {
		h.logger.Error("Ошибка сериализации stats", slog.String("error", err.Error()))
		return true
	}

	if _, err := fmt.Fprintf(w, "event: stats\ndata: %s\n\n", data); err != nil {
		return false
	}
	return rc.Flush() == nil
}
