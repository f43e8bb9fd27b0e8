package world

import (
	"errors"
	"sync"

	"github.com/annel0/chunkstream/internal/vec"
	"github.com/annel0/chunkstream/internal/world/block"
)

// flatGenerator заполняет камнем всё ниже y = 8
type flatGenerator struct{}

func (flatGenerator) GenerateTerrain(origin vec.Vec3, w ChunkWriter) {
	for ly := 0; ly < ChunkEdge; ly++ {
		if origin.Y+ly >= 8 {
			break
		}
		for lz := 0; lz < ChunkEdge; lz++ {
			for lx := 0; lx < ChunkEdge; lx++ {
				w.SetBlock(vec.Vec3{X: lx, Y: ly, Z: lz}, block.Of(block.StoneBlockID))
			}
		}
	}
}

func (flatGenerator) HasFeatureAt(x, z int) bool { return false }

var errCorruptRecord = errors.New("повреждённая запись")

type memRecord struct {
	state  ChunkState
	blocks []block.BlockData
}

// memStorage хранилище в памяти для тестов. Фоновое сохранение ждёт gate,
// если он задан. stateHook вызывается при каждом запросе состояния.
type memStorage struct {
	mu        sync.Mutex
	records   map[vec.Vec3]memRecord
	corrupt   map[vec.Vec3]bool
	gate      chan struct{}
	saves     int
	stateHook func(pos vec.Vec3)
}

func newMemStorage() *memStorage {
	return &memStorage{
		records: make(map[vec.Vec3]memRecord),
		corrupt: make(map[vec.Vec3]bool),
	}
}

func (s *memStorage) ChunkStateInStorage(pos vec.Vec3) (ChunkState, error) {
	if s.stateHook != nil {
		s.stateHook(pos)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[pos]
	if !ok {
		return StateEmpty, nil
	}
	return rec.state, nil
}

func (s *memStorage) LoadChunk(c *Chunk) error {
	s.mu.Lock()
	rec, ok := s.records[c.Position()]
	bad := s.corrupt[c.Position()]
	s.mu.Unlock()
	if !ok {
		return errors.New("нет записи")
	}
	if bad {
		return errCorruptRecord
	}
	return c.Hydrate(rec.state, func(blocks []block.BlockData) error {
		copy(blocks, rec.blocks)
		return nil
	})
}

func (s *memStorage) LoadChunks(chunks []*Chunk) error {
	for _, c := range chunks {
		if err := s.LoadChunk(c); err != nil {
			return err
		}
	}
	return nil
}

func (s *memStorage) SaveChunk(c *Chunk) error {
	var rec memRecord
	gen := c.View(func(pos vec.Vec3, state ChunkState, blocks []block.BlockData) {
		rec.state = state.Persisted()
		rec.blocks = append([]block.BlockData(nil), blocks...)
	})
	s.mu.Lock()
	s.records[c.Position()] = rec
	s.saves++
	s.mu.Unlock()
	c.MarkSaved(gen)
	return nil
}

func (s *memStorage) SaveChunks(chunks []*Chunk) error {
	for _, c := range chunks {
		if err := s.SaveChunk(c); err != nil {
			return err
		}
	}
	return nil
}

func (s *memStorage) SaveChunkAsync(c *Chunk) bool {
	pin, ok := c.TryPinSaver()
	if !ok {
		return false
	}
	go func() {
		defer pin.Release()
		if s.gate != nil {
			<-s.gate
		}
		_ = s.SaveChunk(c)
	}()
	return true
}

func (s *memStorage) ExistsInStorage(pos vec.Vec3) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.records[pos]
	return ok, nil
}

func (s *memStorage) put(pos vec.Vec3, state ChunkState, fill block.BlockData) {
	blocks := make([]block.BlockData, ChunkVolume)
	for i := range blocks {
		blocks[i] = fill
	}
	s.mu.Lock()
	s.records[pos] = memRecord{state: state, blocks: blocks}
	s.mu.Unlock()
}

// testWorld собранные вместе компоненты над одним реестром
type testWorld struct {
	storage  *memStorage
	pool     *Pool
	registry *Registry
	loader   *Loader
	unloader *Unloader
}

func newTestWorld(poolCapacity int) *testWorld {
	st := newMemStorage()
	pool := NewPool(poolCapacity, st, flatGenerator{}, nil)
	reg := NewRegistry(pool)
	return &testWorld{
		storage:  st,
		pool:     pool,
		registry: reg,
		loader:   NewLoader(reg, pool, flatGenerator{}, nil, nil),
		unloader: NewUnloader(reg, pool, st, nil, nil),
	}
}

func chunkAt(x, y, z int) vec.Vec3 {
	return vec.Vec3{X: x * ChunkEdge, Y: y * ChunkEdge, Z: z * ChunkEdge}
}
