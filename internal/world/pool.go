package world

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/annel0/chunkstream/internal/vec"
)

// Pool переиспользует объекты Chunk и решает, генерировать ли чанк заново
// или загрузить его из хранилища.
type Pool struct {
	mu       sync.Mutex
	free     []*Chunk
	capacity int

	storage   ChunkStorage
	generator TerrainGenerator
	metrics   *Metrics

	allocated atomic.Int64
	reused    atomic.Int64
}

// PoolStats статистика пула
type PoolStats struct {
	Free      int
	Allocated int64
	Reused    int64
}

// NewPool создаёт пул; capacity ограничивает число свободных чанков (при 0 пул отключён)
func NewPool(capacity int, storage ChunkStorage, generator TerrainGenerator, metrics *Metrics) *Pool {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Pool{
		free:      make([]*Chunk, 0, min(capacity, 256)),
		capacity:  capacity,
		storage:   storage,
		generator: generator,
		metrics:   metrics,
	}
}

// Get возвращает чанк в состоянии StateUnknown, готовый к продвижению в StateEmpty
func (p *Pool) Get(pos vec.Vec3) *Chunk {
	p.mu.Lock()
	n := len(p.free)
	if n == 0 {
		p.mu.Unlock()
		p.allocated.Add(1)
		return NewChunk(pos)
	}
	c := p.free[n-1]
	p.free[n-1] = nil
	p.free = p.free[:n-1]
	p.mu.Unlock()

	p.reused.Add(1)
	c.reset(pos)
	p.metrics.poolFree.Dec()
	return c
}

// Return полностью очищает чанк и кладёт его в пул.
// Чанк уже не должен находиться в реестре.
func (p *Pool) Return(c *Chunk) {
	if c.Pinned() {
		panic(fmt.Sprintf("world: возврат в пул закреплённого чанка %v", c.Position()))
	}
	c.reset(vec.Vec3{})

	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.free) >= p.capacity {
		return
	}
	p.free = append(p.free, c)
	p.metrics.poolFree.Inc()
}

// Populate выполняет шаг EMPTY -> GENERATEDTERRAIN|BLOCKGENERATED: загружает чанк,
// если в хранилище есть запись выше StateEmpty, иначе генерирует рельеф.
// Если чанк тем временем продвинул другой загрузчик, его блоки не трогаются.
func (p *Pool) Populate(c *Chunk) error {
	pos := c.Position()

	stored, err := p.storage.ChunkStateInStorage(pos)
	if err != nil {
		return fmt.Errorf("состояние чанка %v в хранилище: %w", pos, err)
	}

	if stored > StateEmpty {
		if err := p.storage.LoadChunk(c); err != nil {
			return fmt.Errorf("загрузка чанка %v: %w", pos, err)
		}
		p.metrics.hydrated.Inc()
		return nil
	}

	if c.tryAdvance(StateEmpty, StateGeneratedTerrain, func(w ChunkWriter) {
		p.generator.GenerateTerrain(pos, w)
	}) {
		p.metrics.generated.Inc()
	}
	return nil
}

// Stats возвращает статистику пула
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	free := len(p.free)
	p.mu.Unlock()
	return PoolStats{
		Free:      free,
		Allocated: p.allocated.Load(),
		Reused:    p.reused.Load(),
	}
}
