package world

import "github.com/annel0/chunkstream/internal/vec"

// ChunkStorage определяет интерфейс постоянного хранилища чанков.
// Реализации: storage.RegionStorage (BadgerDB), storage.FileStorage (файл на чанк),
// storage.NullStorage (ничего не хранит). Все методы потокобезопасны.
type ChunkStorage interface {
	// ChunkStateInStorage возвращает сохранённое состояние чанка без полного чтения блоков.
	// Для отсутствующей записи возвращает StateEmpty.
	ChunkStateInStorage(pos vec.Vec3) (ChunkState, error)

	// LoadChunk заполняет блоки чанка, уже стоящего в своей позиции.
	// Возвращает ошибку, если записи нет.
	LoadChunk(c *Chunk) error

	// LoadChunks загружает несколько чанков за один проход.
	LoadChunks(chunks []*Chunk) error

	// SaveChunk синхронно сохраняет чанк и снимает пометку грязности при успехе.
	SaveChunk(c *Chunk) error

	// SaveChunks сохраняет несколько чанков пакетом.
	SaveChunks(chunks []*Chunk) error

	// SaveChunkAsync запускает фоновое сохранение, удерживая чанк через saverRefs
	// до завершения. Возвращает false, если сохранение этого чанка уже идёт.
	SaveChunkAsync(c *Chunk) bool

	// ExistsInStorage сообщает, есть ли запись для позиции.
	ExistsInStorage(pos vec.Vec3) (bool, error)
}
