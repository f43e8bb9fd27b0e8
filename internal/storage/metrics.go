package storage

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics метрики бэкендов хранилища с метками backend и op
type Metrics struct {
	ops        *prometheus.CounterVec
	errors     *prometheus.CounterVec
	bytes      *prometheus.CounterVec
	opDuration *prometheus.HistogramVec
	inflight   *prometheus.GaugeVec
}

// Операции для меток
const (
	opLoad  = "load"
	opSave  = "save"
	opState = "state"
	opAsync = "async_save"
)

// NewMetrics создаёт метрики и регистрирует их в reg, если он не nil
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chunkstream",
			Subsystem: "storage",
			Name:      "operations_total",
			Help:      "Операций с записями чанков.",
		}, []string{"backend", "op"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chunkstream",
			Subsystem: "storage",
			Name:      "errors_total",
			Help:      "Ошибок операций с записями чанков.",
		}, []string{"backend", "op"}),
		bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chunkstream",
			Subsystem: "storage",
			Name:      "bytes_total",
			Help:      "Байт записей чанков (до сжатия).",
		}, []string{"backend", "direction"}),
		opDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "chunkstream",
			Subsystem: "storage",
			Name:      "operation_duration_seconds",
			Help:      "Длительность операций хранилища.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}, []string{"backend", "op"}),
		inflight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "chunkstream",
			Subsystem: "storage",
			Name:      "async_saves_inflight",
			Help:      "Фоновых сохранений в процессе.",
		}, []string{"backend"}),
	}

	if reg != nil {
		reg.MustRegister(m.ops, m.errors, m.bytes, m.opDuration, m.inflight)
	}
	return m
}

// observe учитывает операцию и её результат
func (m *Metrics) observe(backend, op string, start time.Time, err error) {
	m.ops.WithLabelValues(backend, op).Inc()
	m.opDuration.WithLabelValues(backend, op).Observe(time.Since(start).Seconds())
	if err != nil {
		m.errors.WithLabelValues(backend, op).Inc()
	}
}
