package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	EvaluationsTotal        prometheus.Counter
	EvaluationErrorsTotal   prometheus.Counter
	FiringsTotal            prometheus.Counter
	DebounceSuppressedTotal prometheus.Counter
	ActionAttemptsTotal     prometheus.Counter
	ActionFailuresTotal     prometheus.Counter
	UploadEventsTotal       prometheus.Counter
	ActiveRules             prometheus.Gauge
}

func New() *Metrics {
	return &Metrics{
		EvaluationsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "nimbus_automation_evaluations_total",
			Help: "Total number of trigger evaluations performed",
		}),
		EvaluationErrorsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "nimbus_automation_evaluation_errors_total",
			Help: "Total number of trigger evaluations that failed",
		}),
		FiringsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "nimbus_automation_firings_total",
			Help: "Total number of matched triggers handed to action dispatch",
		}),
		DebounceSuppressedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "nimbus_automation_debounce_suppressed_total",
			Help: "Total number of matches suppressed by per-rule cool-down",
		}),
		ActionAttemptsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "nimbus_automation_action_attempts_total",
			Help: "Total number of action send attempts, including retries",
		}),
		ActionFailuresTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "nimbus_automation_action_failures_total",
			Help: "Total number of firings whose action finally failed",
		}),
		UploadEventsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "nimbus_automation_upload_events_total",
			Help: "Total number of upload events consumed",
		}),
		ActiveRules: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "nimbus_automation_active_rules",
			Help: "Active, enforced rules seen on the last scheduler tick",
		}),
	}
}
