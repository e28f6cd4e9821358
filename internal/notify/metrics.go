package notify

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var emailsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "eventgate_emails_total",
		Help: "Количество попыток отправки писем по транспорту и результату.",
	},
	[]string{"transport", "result"},
)

// instrumented: Sender, учитывающий результат отправки в метриках.
type instrumented struct {
	next      Sender
	transport string
}

// Instrument оборачивает транспорт счётчиком eventgate_emails_total.
func Instrument(next Sender, transport string) Sender {
	return &instrumented{next: next, transport: transport}
}

func (s *instrumented) Send(ctx context.Context, msg *Message) error {
	err := s.next.Send(ctx, msg)
	result := "ok"
	if err != nil {
		result = "error"
	}
	emailsTotal.WithLabelValues(s.transport, result).Inc()
	return err
}
