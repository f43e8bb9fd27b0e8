package storage

import (
	"sync"
	"time"

	"github.com/annel0/chunkstream/internal/logging"
	"github.com/annel0/chunkstream/internal/world"
)

// asyncSaver запускает фоновые сохранения и ждёт их при закрытии.
// Чанк закрепляется через saverRefs до конца сохранения; второе сохранение
// того же чанка не запускается, пока первое не завершилось.
type asyncSaver struct {
	backend string
	save    func(c *world.Chunk) error
	logger  *logging.Logger
	metrics *Metrics

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func newAsyncSaver(backend string, save func(c *world.Chunk) error, logger *logging.Logger, metrics *Metrics) *asyncSaver {
	return &asyncSaver{backend: backend, save: save, logger: logger, metrics: metrics}
}

func (s *asyncSaver) start(c *world.Chunk) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.logger.Warn("Фоновое сохранение %v отклонено: хранилище закрывается", c.Position())
		return false
	}
	pin, ok := c.TryPinSaver()
	if !ok {
		s.mu.Unlock()
		return false
	}
	s.wg.Add(1)
	s.mu.Unlock()

	s.metrics.inflight.WithLabelValues(s.backend).Inc()
	go func() {
		defer s.wg.Done()
		defer pin.Release()
		defer s.metrics.inflight.WithLabelValues(s.backend).Dec()

		start := time.Now()
		err := s.save(c)
		s.metrics.observe(s.backend, opAsync, start, err)
		if err != nil {
			// чанк остаётся грязным, выгрузчик повторит сохранение
			s.logger.Error("Фоновое сохранение чанка %v: %v", c.Position(), err)
		}
	}()
	return true
}

// wait ждёт завершения уже запущенных сохранений
func (s *asyncSaver) wait() {
	s.wg.Wait()
}

// shutdown запрещает новые сохранения и ждёт текущие
func (s *asyncSaver) shutdown() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.wg.Wait()
}
