package receipt

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/zombor/receipt-catcher/internal/classify"
)

const metricsNamespace = "receipt_catcher"

// Metrics counts what the session does. A nil *Metrics records nothing.
type Metrics struct {
	imagesUploaded   prometheus.Counter
	imagesFailed     prometheus.Counter
	classifications  *prometheus.CounterVec
	classifyDuration prometheus.Histogram
	receiptsSent     prometheus.Counter
	sends            *prometheus.CounterVec
	livePreviews     prometheus.Gauge
}

// NewMetrics registers the session metrics with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		imagesUploaded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "images_uploaded_total",
			Help:      "Images added to the wizard.",
		}),
		imagesFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "images_failed_total",
			Help:      "Images whose normalization failed.",
		}),
		classifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "classifications_total",
			Help:      "Classified images by outcome.",
		}, []string{"outcome"}),
		classifyDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "classification_duration_seconds",
			Help:      "Time spent extracting and scoring the text of an image.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 8),
		}),
		receiptsSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "receipts_sent_total",
			Help:      "Receipts emailed successfully.",
		}),
		sends: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "sends_total",
			Help:      "Send attempts by result.",
		}, []string{"result"}),
		livePreviews: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "previews_live",
			Help:      "Preview resources not yet released.",
		}),
	}
}

// ObserveClassification is a classify.Observer
func (m *Metrics) ObserveClassification(result classify.Result, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "not_receipt"
	switch {
	case err != nil:
		outcome = "error"
	case result.IsReceipt:
		outcome = "receipt"
	}
	m.classifications.WithLabelValues(outcome).Inc()
	m.classifyDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) uploaded(n int) {
	if m == nil {
		return
	}
	m.imagesUploaded.Add(float64(n))
}

func (m *Metrics) failed() {
	if m == nil {
		return
	}
	m.imagesFailed.Inc()
}

func (m *Metrics) sent(n int, success bool) {
	if m == nil {
		return
	}
	m.receiptsSent.Add(float64(n))
	result := "failure"
	if success {
		result = "success"
	}
	m.sends.WithLabelValues(result).Inc()
}

// SetLivePreviews records the number of live preview resources
func (m *Metrics) SetLivePreviews(n int) {
	if m == nil {
		return
	}
	m.livePreviews.Set(float64(n))
}
