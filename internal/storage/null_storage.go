package storage

import (
	"github.com/annel0/chunkstream/internal/vec"
	"github.com/annel0/chunkstream/internal/world"
)

// BackendNull имя бэкенда для метрик и метаданных
const BackendNull = "null"

// NullStorage ничего не хранит: каждый чанк генерируется заново,
// а сохранение сразу считается успешным.
type NullStorage struct {
	meta WorldMeta
}

var _ world.ChunkStorage = (*NullStorage)(nil)

// NewNullStorage создаёт пустое хранилище
func NewNullStorage(seed int64) *NullStorage {
	return &NullStorage{meta: NewWorldMeta(seed, BackendNull)}
}

// Meta возвращает метаданные мира, существующие только в памяти
func (n *NullStorage) Meta() WorldMeta { return n.meta }

func (n *NullStorage) ChunkStateInStorage(pos vec.Vec3) (world.ChunkState, error) {
	return world.StateEmpty, nil
}

func (n *NullStorage) LoadChunk(c *world.Chunk) error {
	return ErrNotFound
}

func (n *NullStorage) LoadChunks(chunks []*world.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	return ErrNotFound
}

func (n *NullStorage) SaveChunk(c *world.Chunk) error {
	c.MarkSaved(c.Generation())
	return nil
}

func (n *NullStorage) SaveChunks(chunks []*world.Chunk) error {
	for _, c := range chunks {
		c.MarkSaved(c.Generation())
	}
	return nil
}

// SaveChunkAsync завершает «сохранение» до возврата
func (n *NullStorage) SaveChunkAsync(c *world.Chunk) bool {
	pin, ok := c.TryPinSaver()
	if !ok {
		return false
	}
	defer pin.Release()
	c.MarkSaved(c.Generation())
	return true
}

func (n *NullStorage) ExistsInStorage(pos vec.Vec3) (bool, error) {
	return false, nil
}

func (n *NullStorage) Wait() {}

func (n *NullStorage) Close() error { return nil }
