// Package metrics collects and exposes Prometheus metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector gathers the portal's Prometheus metrics. It satisfies the
// recorder interfaces declared by the auth service, the Airtable client
// and the webhook relay.
type Collector struct {
	validations      *prometheus.CounterVec
	otpDispatches    *prometheus.CounterVec
	verifications    *prometheus.CounterVec
	directoryLatency *prometheus.HistogramVec
	webhookDelivery  *prometheus.CounterVec
}

// NewCollector builds a Collector and registers its metrics.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		validations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_login_validations_total",
			Help: "Login validations by outcome",
		}, []string{"outcome"}),
		otpDispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_otp_dispatches_total",
			Help: "One-time passcode dispatches by channel and result",
		}, []string{"method", "result"}),
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_otp_verifications_total",
			Help: "One-time passcode verifications by outcome",
		}, []string{"outcome"}),
		directoryLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "portal_directory_request_seconds",
			Help:    "Directory-store request latency in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"table", "method", "status"}),
		webhookDelivery: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_webhook_deliveries_total",
			Help: "Automation webhook deliveries by result",
		}, []string{"result"}),
	}

	reg.MustRegister(
		c.validations,
		c.otpDispatches,
		c.verifications,
		c.directoryLatency,
		c.webhookDelivery,
	)

	return c
}

// RecordValidation counts a login validation outcome.
func (c *Collector) RecordValidation(outcome string) {
	c.validations.WithLabelValues(outcome).Inc()
}

// RecordOTPDispatch counts a passcode dispatch.
func (c *Collector) RecordOTPDispatch(method string, ok bool) {
	c.otpDispatches.WithLabelValues(method, resultLabel(ok)).Inc()
}

// RecordVerification counts a passcode verification outcome.
func (c *Collector) RecordVerification(outcome string) {
	c.verifications.WithLabelValues(outcome).Inc()
}

// ObserveDirectoryRequest records a directory-store request.
func (c *Collector) ObserveDirectoryRequest(table, method string, status int, duration time.Duration) {
	c.directoryLatency.WithLabelValues(table, method, strconv.Itoa(status)).Observe(duration.Seconds())
}

// RecordWebhookDelivery counts a webhook delivery result.
func (c *Collector) RecordWebhookDelivery(ok bool) {
	c.webhookDelivery.WithLabelValues(resultLabel(ok)).Inc()
}

func resultLabel(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

// Handler returns the HTTP handler for Prometheus scrapes.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
