package world

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics Prometheus-метрики стриминга чанков.
// Без Registerer метрики считаются, но никуда не экспортируются.
type Metrics struct {
	generated prometheus.Counter
	hydrated  prometheus.Counter
	evicted   prometheus.Counter
	loadErrs  prometheus.Counter
	refused   *prometheus.CounterVec

	resident     prometheus.Gauge
	pendingTasks prometheus.Gauge
	poolFree     prometheus.Gauge
	tickDuration prometheus.Histogram
}

// Причины отказа в выселении
const (
	refusePinned    = "pinned"
	refuseNeighbour = "neighbour"
	refuseDirty     = "dirty"
)

// NewMetrics создаёт метрики и регистрирует их в reg, если он не nil
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		generated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chunkstream",
			Name:      "chunks_generated_total",
			Help:      "Чанков, сгенерированных генератором рельефа.",
		}),
		hydrated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chunkstream",
			Name:      "chunks_hydrated_total",
			Help:      "Чанков, загруженных из хранилища.",
		}),
		evicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chunkstream",
			Name:      "chunks_evicted_total",
			Help:      "Чанков, выгруженных из памяти и возвращённых в пул.",
		}),
		loadErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chunkstream",
			Name:      "chunk_load_errors_total",
			Help:      "Ошибок чтения записей чанков.",
		}),
		refused: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chunkstream",
			Name:      "unload_refused_total",
			Help:      "Отказов в выселении по причинам.",
		}, []string{"reason"}),
		resident: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "chunkstream",
			Name:      "chunks_resident",
			Help:      "Чанков в реестре.",
		}),
		pendingTasks: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "chunkstream",
			Name:      "loader_pending_tasks",
			Help:      "Задач загрузчика, ожидающих выполнения.",
		}),
		poolFree: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "chunkstream",
			Name:      "pool_free_chunks",
			Help:      "Свободных чанков в пуле.",
		}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "chunkstream",
			Name:      "tick_duration_seconds",
			Help:      "Длительность Manager.Tick.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 10),
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.generated, m.hydrated, m.evicted, m.loadErrs, m.refused,
			m.resident, m.pendingTasks, m.poolFree, m.tickDuration,
		)
	}
	return m
}
