package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/grainlly/fraudline/internal/database"
)

// ReportStatsProvider supplies aggregate report counts
type ReportStatsProvider interface {
	GetStats(ctx context.Context) (*database.ReportStats, error)
}

// Collector manages Prometheus metrics for the fraud line service
type Collector struct {
	logger *slog.Logger
	store  ReportStatsProvider

	webhookEvents   *prometheus.CounterVec
	callsInitiated  *prometheus.CounterVec
	classifications *prometheus.CounterVec

	reportsTotal      prometheus.Gauge
	reportsByStatus   *prometheus.GaugeVec
	reportsBySeverity *prometheus.GaugeVec

	collectionInterval time.Duration
}

// NewCollector creates a new metrics collector
func NewCollector(logger *slog.Logger, store ReportStatsProvider) *Collector {
	return &Collector{
		logger:             logger,
		store:              store,
		collectionInterval: 30 * time.Second,
	}
}

// RegisterMetrics registers all Prometheus metrics
func (c *Collector) RegisterMetrics() {
	c.webhookEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fraudline_webhook_events_total",
			Help: "Total number of provider webhook events received",
		},
		[]string{"endpoint", "outcome"},
	)

	c.callsInitiated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fraudline_calls_initiated_total",
			Help: "Total number of outbound calls initiated",
		},
		[]string{"kind", "result"},
	)

	c.classifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fraudline_classifications_total",
			Help: "Total number of transcripts classified",
		},
		[]string{"severity"},
	)

	c.reportsTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fraudline_reports_total",
			Help: "Number of fraud reports stored",
		},
	)

	c.reportsByStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fraudline_reports_by_status",
			Help: "Number of fraud reports grouped by call status",
		},
		[]string{"status"},
	)

	c.reportsBySeverity = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fraudline_reports_by_severity",
			Help: "Number of fraud reports grouped by severity",
		},
		[]string{"severity"},
	)
}

// Start runs the periodic stats collection loop until the context is done
func (c *Collector) Start(ctx context.Context) error {
	ticker := time.NewTicker(c.collectionInterval)
	defer ticker.Stop()

	c.collect(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			c.collect(ctx)
		}
	}
}

func (c *Collector) collect(ctx context.Context) {
	stats, err := c.store.GetStats(ctx)
	if err != nil {
		c.logger.Error("Failed to collect report stats", "error", err)
		return
	}

	c.reportsTotal.Set(float64(stats.Total))
	c.reportsByStatus.WithLabelValues("initiated").Set(float64(stats.Initiated))
	c.reportsByStatus.WithLabelValues("completed").Set(float64(stats.Completed))
	c.reportsByStatus.WithLabelValues("failed").Set(float64(stats.Failed))
	c.reportsBySeverity.WithLabelValues(database.SeverityCritical).Set(float64(stats.Critical))
	c.reportsBySeverity.WithLabelValues(database.SeverityHigh).Set(float64(stats.High))
	c.reportsBySeverity.WithLabelValues(database.SeverityMedium).Set(float64(stats.Medium))
	c.reportsBySeverity.WithLabelValues(database.SeverityLow).Set(float64(stats.Low))
}

// RecordWebhookEvent counts one provider webhook delivery
func (c *Collector) RecordWebhookEvent(endpoint, outcome string) {
	if c.webhookEvents != nil {
		c.webhookEvents.WithLabelValues(endpoint, outcome).Inc()
	}
}

// RecordCallInitiated counts one outbound call attempt
func (c *Collector) RecordCallInitiated(kind, result string) {
	if c.callsInitiated != nil {
		c.callsInitiated.WithLabelValues(kind, result).Inc()
	}
}

// RecordClassification counts one classified transcript
func (c *Collector) RecordClassification(severity string) {
	if c.classifications != nil {
		c.classifications.WithLabelValues(severity).Inc()
	}
}
