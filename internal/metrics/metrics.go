// Package metrics records prediction and feedback observations on a
// Prometheus registry owned by the caller.
//
// Recording is fire-and-forget: a failure to update a collector is logged
// and dropped, never returned to the classification or feedback path.
package metrics

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/crimson-sun/wastenot/internal/model"
)

// DefaultNamespace prefixes every series name.
const DefaultNamespace = "wastenot"

// Sink receives observations from the classification service and the
// feedback ledger.
type Sink interface {
	// ObservePrediction counts one classification under its resolved label
	// (including "unknown"), sets the confidence gauge, and records latency.
	ObservePrediction(resolved string, confidence float64, elapsed time.Duration)
	// ObserveFeedback counts one feedback submission.
	ObserveFeedback(rec model.FeedbackRecord)
}

// Nop is a Sink that discards every observation.
type Nop struct{}

func (Nop) ObservePrediction(string, float64, time.Duration) {}
func (Nop) ObserveFeedback(model.FeedbackRecord)             {}

// BackendError reports a failure to update a collector.
type BackendError struct {
	Series string
	Err    error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("metrics: %s: %v", e.Series, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// Option configures a Recorder.
type Option func(*options)

type options struct {
	namespace      string
	processMetrics bool
	onError        func(error)
}

// WithNamespace overrides the series name prefix. Default: "wastenot".
func WithNamespace(ns string) Option {
	return func(o *options) { o.namespace = ns }
}

// WithProcessMetrics also registers the Go runtime and process collectors.
func WithProcessMetrics() Option {
	return func(o *options) { o.processMetrics = true }
}

// WithOnError sets the callback for collector failures.
// Default: logs a warning via slog.
func WithOnError(f func(error)) Option {
	return func(o *options) { o.onError = f }
}

// Recorder implements Sink on a private registry.
type Recorder struct {
	registry    *prometheus.Registry
	predictions *prometheus.CounterVec
	confidence  prometheus.Gauge
	latency     prometheus.Summary
	feedback    *prometheus.CounterVec
	comments    *prometheus.CounterVec
	onError     func(error)
}

// NewRecorder creates a Recorder and registers its collectors.
func NewRecorder(opts ...Option) *Recorder {
	o := options{
		namespace: DefaultNamespace,
		onError:   func(err error) { slog.Warn("metrics update failed", "error", err) },
	}
	for _, opt := range opts {
		opt(&o)
	}

	r := &Recorder{
		registry: prometheus.NewRegistry(),
		predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: o.namespace,
			Name:      "predictions_total",
			Help:      "Total predictions made",
		}, []string{"ingredient"}),
		confidence: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: o.namespace,
			Name:      "prediction_confidence",
			Help:      "Confidence score of the most recent prediction",
		}),
		latency: prometheus.NewSummary(prometheus.SummaryOpts{
			Namespace:  o.namespace,
			Name:       "prediction_request_seconds",
			Help:       "Time spent processing prediction",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		}),
		feedback: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: o.namespace,
			Name:      "feedback_total",
			Help:      "User feedback entries collected",
		}, []string{"feedback_type", "predicted_ingredient"}),
		comments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: o.namespace,
			Name:      "feedback_comment_total",
			Help:      "Counts user feedback comments",
		}, []string{"predicted_ingredient", "feedback_type", "comment", "feedback_id"}),
		onError: o.onError,
	}

	r.registry.MustRegister(r.predictions, r.confidence, r.latency, r.feedback, r.comments)
	if o.processMetrics {
		r.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return r
}

// Registry returns the underlying registry, e.g. for tests or extra collectors.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// ObservePrediction implements Sink.
func (r *Recorder) ObservePrediction(resolved string, confidence float64, elapsed time.Duration) {
	defer r.recoverPanic("predictions")

	c, err := r.predictions.GetMetricWithLabelValues(resolved)
	if err != nil {
		r.onError(&BackendError{Series: "predictions_total", Err: err})
	} else {
		c.Inc()
	}
	r.confidence.Set(confidence)
	r.latency.Observe(elapsed.Seconds())
}

// ObserveFeedback implements Sink.
func (r *Recorder) ObserveFeedback(rec model.FeedbackRecord) {
	defer r.recoverPanic("feedback")

	typ := string(rec.Type)
	if c, err := r.feedback.GetMetricWithLabelValues(typ, rec.PredictedLabel); err != nil {
		r.onError(&BackendError{Series: "feedback_total", Err: err})
	} else {
		c.Inc()
	}
	if c, err := r.comments.GetMetricWithLabelValues(rec.PredictedLabel, typ, rec.Comment, rec.ID); err != nil {
		r.onError(&BackendError{Series: "feedback_comment_total", Err: err})
	} else {
		c.Inc()
	}
}

func (r *Recorder) recoverPanic(series string) {
	if v := recover(); v != nil {
		r.onError(&BackendError{Series: series, Err: fmt.Errorf("panic: %v", v)})
	}
}
