package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	PollCount        prometheus.Counter
	WhitelistedCount prometheus.Counter
	DebitedCount     prometheus.Counter
	ParkedCount      prometheus.Counter
	ReconciledCount  prometheus.Counter
	ProcessFailures  prometheus.Counter
	WebhookFailures  prometheus.Counter
	ProcessingTime   prometheus.Histogram
}

// NewMetrics creates new Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		PollCount: promauto.NewCounter(prometheus.CounterOpts{
			Name: "inbox_tollbooth_poll_count",
			Help: "Total number of poll runs",
		}),
		WhitelistedCount: promauto.NewCounter(prometheus.CounterOpts{
			Name: "inbox_tollbooth_whitelisted_count",
			Help: "Total number of messages admitted via whitelist",
		}),
		DebitedCount: promauto.NewCounter(prometheus.CounterOpts{
			Name: "inbox_tollbooth_debited_count",
			Help: "Total number of messages admitted by balance debit",
		}),
		ParkedCount: promauto.NewCounter(prometheus.CounterOpts{
			Name: "inbox_tollbooth_parked_count",
			Help: "Total number of messages parked pending payment",
		}),
		ReconciledCount: promauto.NewCounter(prometheus.CounterOpts{
			Name: "inbox_tollbooth_reconciled_count",
			Help: "Total number of top-up completions reconciled",
		}),
		ProcessFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "inbox_tollbooth_process_failures",
			Help: "Total number of per-message processing failures",
		}),
		WebhookFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "inbox_tollbooth_webhook_failures",
			Help: "Total number of webhook handling failures",
		}),
		ProcessingTime: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "inbox_tollbooth_poll_duration_seconds",
			Help:    "Time spent in a poll run",
			Buckets: prometheus.DefBuckets,
		}),
	}
}
