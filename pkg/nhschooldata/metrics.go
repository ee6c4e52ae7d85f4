package nhschooldata

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricsNamespace = "nhschooldata"
	sourceNetwork    = "network"
	sourceCache      = "cache"
	resultOK         = "ok"
	resultError      = "error"
	resultMiss       = "miss"
)

type metrics struct {
	fetches  *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// newMetrics registers the client's collectors on reg.  Collectors that
// are already registered (by another Client sharing reg) are reused.
func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	fetches := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "fetch_total",
			Help:      "Total number of enrollment export loads and cache lookups, by source and result",
		},
		[]string{"source", "result"},
	)
	duration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "fetch_duration_seconds",
			Help:      "Time spent loading an enrollment export in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"source"},
	)

	m := &metrics{}
	var err error
	if m.fetches, err = registerCounterVec(reg, fetches); err != nil {
		return nil, err
	}
	if m.duration, err = registerHistogramVec(reg, duration); err != nil {
		return nil, err
	}
	return m, nil
}

func registerCounterVec(reg prometheus.Registerer, c *prometheus.CounterVec) (*prometheus.CounterVec, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
		}
		return nil, err
	}
	return c, nil
}

func registerHistogramVec(reg prometheus.Registerer, h *prometheus.HistogramVec) (*prometheus.HistogramVec, error) {
	if err := reg.Register(h); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
		}
		return nil, err
	}
	return h, nil
}

func (m *metrics) observe(source string, start time.Time, err error) {
	result := resultOK
	if err != nil {
		result = resultError
	}
	m.observeResult(source, result, start)
}

func (m *metrics) observeResult(source, result string, start time.Time) {
	m.fetches.WithLabelValues(source, result).Inc()
	m.duration.WithLabelValues(source).Observe(time.Since(start).Seconds())
}
