package observability

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/annel0/chunkstream/internal/logging"
	"github.com/annel0/chunkstream/internal/world"
)

// StatsProvider источник статистики стриминга (world.Manager)
type StatsProvider interface {
	Stats() world.Stats
}

// MetricsExporter обслуживает /metrics и раз в секунду обновляет gauge-метрики
// процесса и менеджера чанков.
type MetricsExporter struct {
	registry *prometheus.Registry
	provider StatsProvider
	sampler  *ProcessSampler
	logger   *logging.Logger
	server   *http.Server

	quit chan struct{}
	done chan struct{}

	rss            prometheus.Gauge
	cpu            prometheus.Gauge
	relevant       prometheus.Gauge
	pendingUnloads prometheus.Gauge
}

// NewMetricsExporter создаёт экспортер над собственным реестром Prometheus.
// Метрики компонентов регистрируются через Registerer().
func NewMetricsExporter(provider StatsProvider, logger *logging.Logger) (*MetricsExporter, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	sampler, err := NewProcessSampler()
	if err != nil {
		return nil, err
	}

	me := &MetricsExporter{
		registry: prometheus.NewRegistry(),
		provider: provider,
		sampler:  sampler,
		logger:   logger,
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
		rss: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "chunkstream",
			Name:      "process_rss_megabytes",
			Help:      "Резидентная память процесса.",
		}),
		cpu: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "chunkstream",
			Name:      "process_cpu_percent",
			Help:      "Загрузка CPU процессом.",
		}),
		relevant: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "chunkstream",
			Name:      "chunks_relevant",
			Help:      "Чанков в желаемом наборе.",
		}),
		pendingUnloads: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "chunkstream",
			Name:      "pending_unloads",
			Help:      "Чанков, ожидающих выгрузки.",
		}),
	}
	me.registry.MustRegister(me.rss, me.cpu, me.relevant, me.pendingUnloads)
	return me, nil
}

// Registerer возвращает реестр для метрик world и storage
func (m *MetricsExporter) Registerer() prometheus.Registerer {
	return m.registry
}

// SetProvider задаёт источник статистики; вызывать до StartHTTP
func (m *MetricsExporter) SetProvider(p StatsProvider) {
	m.provider = p
}

// Handler возвращает HTTP-обработчик /metrics
func (m *MetricsExporter) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// StartHTTP запускает HTTP-эндпоинт Prometheus на указанном адресе (например, ":2112").
// Метод неблокирующий: HTTP-сервер стартует в отдельной горутине.
func (m *MetricsExporter) StartHTTP(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	m.server = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		m.logger.Info("📈 Prometheus /metrics доступен по адресу %s", addr)
		if err := m.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error("Ошибка Prometheus HTTP сервера: %v", err)
		}
	}()
	go m.loop()
}

// Stop останавливает обновление метрик и HTTP-сервер
func (m *MetricsExporter) Stop(ctx context.Context) error {
	if m.server == nil {
		return nil
	}
	close(m.quit)
	<-m.done
	return m.server.Shutdown(ctx)
}

// Collect обновляет gauge-метрики один раз
func (m *MetricsExporter) Collect() {
	if m.provider != nil {
		stats := m.provider.Stats()
		m.relevant.Set(float64(stats.Relevant))
		m.pendingUnloads.Set(float64(stats.PendingUnloads))
	}
	ps, err := m.sampler.Sample()
	if err != nil {
		m.logger.Debug("Статистика процесса недоступна: %v", err)
	}
	m.rss.Set(ps.RSSMB)
	m.cpu.Set(ps.CPUPercent)
}

func (m *MetricsExporter) loop() {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()
	defer close(m.done)

	for {
		select {
		case <-ticker.C:
			m.Collect()
		case <-m.quit:
			return
		}
	}
}
