package world

import (
	"github.com/annel0/chunkstream/internal/logging"
	"github.com/annel0/chunkstream/internal/vec"
)

// Unloader решает, можно ли выгрузить чанк, и выгружает его.
// Выселение кооперативное: отказ не является ошибкой, вызывающий повторяет позже.
type Unloader struct {
	registry *Registry
	pool     *Pool
	storage  ChunkStorage
	logger   *logging.Logger
	metrics  *Metrics
}

// NewUnloader создаёт выгрузчик
func NewUnloader(registry *Registry, pool *Pool, storage ChunkStorage, logger *logging.Logger, metrics *Metrics) *Unloader {
	if logger == nil {
		logger = logging.Discard()
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Unloader{
		registry: registry,
		pool:     pool,
		storage:  storage,
		logger:   logger,
		metrics:  metrics,
	}
}

// TryUnload пытается выгрузить чанк в позиции pos. Возвращает true, если чанка
// в памяти больше нет. Порядок проверок:
//  1. чанк закреплён загрузчиком или сохранением: отказ;
//  2. отрисовываемый чанк понижается до StateBlockGenerated;
//  3. соседу нужен этот чанк для отрисовки: отказ;
//  4. грязный чанк отправляется на фоновое сохранение, отказ до его завершения;
//  5. иначе чанк удаляется из реестра и возвращается в пул.
func (u *Unloader) TryUnload(pos vec.Vec3) bool {
	c, present, claimed := u.registry.claimForEviction(pos)
	if !present {
		return true
	}
	if !claimed {
		return false
	}

	if c.Pinned() {
		c.endEvict()
		u.metrics.refused.WithLabelValues(refusePinned).Inc()
		return false
	}

	if c.demote() {
		u.logger.Trace("Чанк %v понижен до %s перед выгрузкой", pos, StateBlockGenerated)
	}

	if RequiredByNeighbours(u.registry, pos) > StateEmpty {
		c.endEvict()
		u.metrics.refused.WithLabelValues(refuseNeighbour).Inc()
		return false
	}

	if c.IsDirty() {
		if u.storage.SaveChunkAsync(c) {
			u.logger.Debug("Чанк %v грязный, запущено фоновое сохранение", pos)
		}
		c.endEvict()
		u.metrics.refused.WithLabelValues(refuseDirty).Inc()
		return false
	}

	if !u.registry.removeIfIdle(pos, c) {
		c.endEvict()
		u.metrics.refused.WithLabelValues(refusePinned).Inc()
		return false
	}

	c.endEvict()
	u.pool.Return(c)
	u.metrics.evicted.Inc()
	return true
}

// RequiredByNeighbours возвращает минимальное состояние, которое соседи по граням
// требуют от чанка в позиции pos. Отрисовываемому соседу нужен этот чанк не ниже
// StateBlockGenerated. Единственная проверка безопасности выселения по соседям.
func RequiredByNeighbours(registry *Registry, pos vec.Vec3) ChunkState {
	required := StateEmpty
	for _, npos := range pos.FaceNeighbors() {
		n, ok := registry.Peek(npos)
		if !ok {
			continue
		}
		if n.State() >= StateDrawable {
			return StateBlockGenerated
		}
	}
	return required
}
