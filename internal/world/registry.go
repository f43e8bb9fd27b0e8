package world

import (
	"fmt"
	"sync"

	"github.com/annel0/chunkstream/internal/vec"
)

// Registry единственный источник истины о том, какие чанки находятся в памяти.
// На каждую позицию одновременно существует не более одного объекта Chunk.
type Registry struct {
	mu     sync.RWMutex
	chunks map[vec.Vec3]*Chunk
	pool   *Pool
}

// NewRegistry создаёт реестр, получающий новые чанки из пула
func NewRegistry(pool *Pool) *Registry {
	return &Registry{
		chunks: make(map[vec.Vec3]*Chunk),
		pool:   pool,
	}
}

// GetOrCreate возвращает чанк в позиции, создавая его через пул при отсутствии
func (r *Registry) GetOrCreate(pos vec.Vec3) *Chunk {
	c, pin := r.acquire(pos, false)
	pin.Release()
	return c
}

// Acquire возвращает чанк (создавая при необходимости) и закрепляет его за загрузчиком.
// Закрепление происходит под блокировкой реестра, поэтому чанк не может быть
// удалён между поиском и закреплением.
func (r *Registry) Acquire(pos vec.Vec3) (*Chunk, *Pin) {
	return r.acquire(pos, true)
}

func (r *Registry) acquire(pos vec.Vec3, pin bool) (*Chunk, *Pin) {
	if !pos.IsChunkAligned() {
		panic(fmt.Sprintf("world: позиция чанка %v не кратна %d", pos, ChunkEdge))
	}

	r.mu.RLock()
	if c, ok := r.chunks[pos]; ok {
		var p *Pin
		if pin {
			p = c.PinLoader()
		}
		r.mu.RUnlock()
		return c, p
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	// Проверяем еще раз под блокировкой записи
	c, ok := r.chunks[pos]
	if !ok {
		c = r.pool.Get(pos)
		r.chunks[pos] = c
	}
	var p *Pin
	if pin {
		p = c.PinLoader()
	}
	return c, p
}

// Peek возвращает чанк, если он в памяти, не создавая новый
func (r *Registry) Peek(pos vec.Vec3) (*Chunk, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.chunks[pos]
	return c, ok
}

// Len возвращает количество чанков в памяти
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.chunks)
}

// Positions возвращает позиции всех чанков в памяти
func (r *Registry) Positions() []vec.Vec3 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]vec.Vec3, 0, len(r.chunks))
	for pos := range r.chunks {
		out = append(out, pos)
	}
	return out
}

// Snapshot возвращает чанки, удовлетворяющие filter (при nil все).
// filter вызывается под блокировкой чтения и не должен обращаться к реестру.
func (r *Registry) Snapshot(filter func(c *Chunk) bool) []*Chunk {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Chunk, 0, len(r.chunks))
	for _, c := range r.chunks {
		if filter == nil || filter(c) {
			out = append(out, c)
		}
	}
	return out
}

// claimForEviction захватывает флаг выселения чанка в позиции pos.
// Захват под блокировкой реестра гарантирует, что чанк всё ещё стоит в pos.
func (r *Registry) claimForEviction(pos vec.Vec3) (c *Chunk, present, claimed bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, present = r.chunks[pos]
	if !present {
		return nil, false, false
	}
	return c, true, c.beginEvict()
}

// removeIfIdle удаляет чанк c из позиции pos, если он не закреплён.
// Вызывающий должен удерживать флаг выселения чанка; исчезновение записи
// в этом случае означает ошибку в коде.
func (r *Registry) removeIfIdle(pos vec.Vec3, c *Chunk) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.chunks[pos]
	if !ok || cur != c {
		panic(fmt.Sprintf("world: чанк %v пропал из реестра во время выселения", pos))
	}
	if c.Pinned() {
		return false
	}
	delete(r.chunks, pos)
	return true
}
