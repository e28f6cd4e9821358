package handlers

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bigkaa/eventgate/internal/config"
)

const serviceName = "eventgate"

// Статусы проверок в порядке ухудшения.
const (
	probeOK       = "ok"
	probeDegraded = "degraded"
	probeFail     = "fail"
)

var probeRank = map[string]int{probeOK: 0, probeDegraded: 1, probeFail: 2}

// ReadinessChecker проверяет обязательную зависимость (PostgreSQL).
type ReadinessChecker interface {
	// CheckReady возвращает "ok", "degraded" или "fail" и пояснение.
	CheckReady() (status string, message string)
}

// DependencyHealth: текущее состояние зависимостей по данным topologymetrics.
type DependencyHealth interface {
	Health() map[string]bool
}

// HealthHandler обслуживает /health/live, /health/ready и /metrics.
type HealthHandler struct {
	pgChecker ReadinessChecker
	deps      DependencyHealth
	metrics   http.Handler
}

// NewHealthHandler создаёт обработчик. deps может быть nil, если
// мониторинг зависимостей не запустился.
func NewHealthHandler(pgChecker ReadinessChecker, deps DependencyHealth) *HealthHandler {
	return &HealthHandler{pgChecker: pgChecker, deps: deps, metrics: promhttp.Handler()}
}

type probeResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type readinessChecks struct {
	PostgreSQL   probeResult            `json:"postgresql"`
	Dependencies map[string]probeResult `json:"dependencies,omitempty"`
}

// healthReadyResponse используется обоими endpoint'ами; у liveness нет checks.
type healthReadyResponse struct {
	Status    string           `json:"status"`
	Service   string           `json:"service"`
	Version   string           `json:"version"`
	Timestamp string           `json:"timestamp"`
	Checks    *readinessChecks `json:"checks,omitempty"`
}

func newHealthResponse(status string) healthReadyResponse {
	return healthReadyResponse{
		Status:    status,
		Service:   serviceName,
		Version:   config.Version,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// HealthLive отвечает 200, пока процесс обслуживает запросы.
func (h *HealthHandler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, newHealthResponse(probeOK))
}

// HealthReady: без PostgreSQL сервис не готов (503). Недоступность
// провайдера идентификации только понижает статус до degraded, так как
// публичная регистрация продолжает работать.
func (h *HealthHandler) HealthReady(w http.ResponseWriter, _ *http.Request) {
	checks := &readinessChecks{PostgreSQL: probeResult{Status: probeFail, Message: "проверка не настроена"}}
	if h.pgChecker != nil {
		st, msg := h.pgChecker.CheckReady()
		checks.PostgreSQL = probeResult{Status: st, Message: msg}
	}

	overall := checks.PostgreSQL.Status
	if h.deps != nil {
		states := h.deps.Health()
		checks.Dependencies = make(map[string]probeResult, len(states))
		for name, healthy := range states {
			res := probeResult{Status: probeOK}
			if !healthy {
				res = probeResult{Status: probeDegraded, Message: "зависимость недоступна"}
			}
			checks.Dependencies[name] = res
			overall = worse(overall, res.Status)
		}
	}

	resp := newHealthResponse(overall)
	resp.Checks = checks

	code := http.StatusOK
	if overall == probeFail {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

// GetMetrics отдаёт метрики в формате Prometheus.
func (h *HealthHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.metrics.ServeHTTP(w, r)
}

// worse возвращает худший из двух статусов. Неизвестный статус считается fail.
func worse(a, b string) string {
	ra, ok := probeRank[a]
	if !ok {
		return probeFail
	}
	rb, ok := probeRank[b]
	if !ok {
		return probeFail
	}
	if rb > ra {
		return b
	}
	return a
}
