// metrics.go: бизнес-метрики Prometheus.
package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Созданные регистрации, kind = primary | family.
	registrationsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventgate_registrations_created_total",
			Help: "Количество созданных регистраций.",
		},
		[]string{"kind"},
	)

	// familySkipped: члены семьи, пропущенные из-за уже занятого QID.
	familySkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "eventgate_registrations_family_skipped_total",
			Help: "Количество пропущенных членов семьи с уже зарегистрированным QID.",
		},
	)

	// checkIns: попытки отметки прохода по результату
	// (ok, not_found, already_checked_in, cancelled, error).
	checkIns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventgate_checkins_total",
			Help: "Количество попыток отметки прохода по результату.",
		},
		[]string{"result"},
	)
)
