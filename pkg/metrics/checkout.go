package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CheckoutMetrics records checkout pipeline outcomes.
type CheckoutMetrics struct {
	duration  *prometheus.HistogramVec
	completed prometheus.Counter
	failed    *prometheus.CounterVec
	refunds   *prometheus.CounterVec
}

// NewCheckoutMetrics registers the checkout metrics on the provided registerer.
func NewCheckoutMetrics(reg prometheus.Registerer) *CheckoutMetrics {
	if reg == nil {
		return &CheckoutMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "checkout_duration_seconds",
		Help:    "End to end checkout duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})
	completed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "checkout_completed_total",
		Help: "Checkouts that produced a confirmed order.",
	})
	failed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_failed_total",
		Help: "Checkouts that failed, by failing step.",
	}, []string{"step"})
	refunds := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "refund_total",
		Help: "Refunds issued, by trigger.",
	}, []string{"trigger"})
	reg.MustRegister(duration, completed, failed, refunds)
	return &CheckoutMetrics{
		duration:  duration,
		completed: completed,
		failed:    failed,
		refunds:   refunds,
	}
}

// ObserveDuration records a checkout attempt duration under its outcome.
func (c *CheckoutMetrics) ObserveDuration(outcome string, duration time.Duration) {
	if c == nil || c.duration == nil {
		return
	}
	c.duration.WithLabelValues(normalizeLabel(outcome)).Observe(duration.Seconds())
}

// IncCompleted counts a confirmed checkout.
func (c *CheckoutMetrics) IncCompleted() {
	if c == nil || c.completed == nil {
		return
	}
	c.completed.Inc()
}

// IncFailed counts a failed checkout under the step that broke.
func (c *CheckoutMetrics) IncFailed(step string) {
	if c == nil || c.failed == nil {
		return
	}
	c.failed.WithLabelValues(normalizeLabel(step)).Inc()
}

// IncRefund counts a refund under its trigger (cancellation, compensation).
func (c *CheckoutMetrics) IncRefund(trigger string) {
	if c == nil || c.refunds == nil {
		return
	}
	c.refunds.WithLabelValues(normalizeLabel(trigger)).Inc()
}
