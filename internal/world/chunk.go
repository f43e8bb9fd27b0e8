package world

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/annel0/chunkstream/internal/vec"
	"github.com/annel0/chunkstream/internal/world/block"
)

// Размеры чанка
const (
	ChunkEdge   = vec.ChunkEdge
	ChunkArea   = ChunkEdge * ChunkEdge
	ChunkVolume = ChunkArea * ChunkEdge
)

// Chunk представляет куб мира 16x16x16 блоков.
//
// Блоки и состояние защищены мьютексом. Грязность отслеживается поколениями:
// каждое изменение блока увеличивает modGen, успешное сохранение поднимает
// savedGen до поколения сохранённого снимка.
type Chunk struct {
	mu     sync.RWMutex
	pos    vec.Vec3
	blocks [ChunkVolume]block.BlockData
	state  ChunkState
	// loadErr ошибка чтения записи из хранилища; такой чанк не продвигается
	loadErr error

	modGen   atomic.Uint64
	savedGen atomic.Uint64

	loaderRefs atomic.Int32
	saverRefs  atomic.Int32

	evicting      atomic.Bool
	verticesReady atomic.Bool
}

// NewChunk создаёт пустой чанк в указанной позиции
func NewChunk(pos vec.Vec3) *Chunk {
	return &Chunk{pos: pos, state: StateUnknown}
}

// BlockIndex возвращает индекс блока в плоском массиве по локальным координатам
func BlockIndex(local vec.Vec3) int {
	return (local.Y*ChunkEdge+local.Z)*ChunkEdge + local.X
}

// LocalFromIndex обратное преобразование к BlockIndex
func LocalFromIndex(i int) vec.Vec3 {
	return vec.Vec3{X: i % ChunkEdge, Z: (i / ChunkEdge) % ChunkEdge, Y: i / ChunkArea}
}

func checkLocal(local vec.Vec3) {
	if local.X < 0 || local.X >= ChunkEdge || local.Y < 0 || local.Y >= ChunkEdge || local.Z < 0 || local.Z >= ChunkEdge {
		panic(fmt.Sprintf("world: локальные координаты %v вне чанка", local))
	}
}

// Position возвращает начало чанка в мировых координатах
func (c *Chunk) Position() vec.Vec3 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pos
}

// State возвращает текущее состояние чанка
func (c *Chunk) State() ChunkState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// LoadErr возвращает ошибку загрузки из хранилища, если она была
func (c *Chunk) LoadErr() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loadErr
}

// BlockAt возвращает блок по локальным координатам
func (c *Chunk) BlockAt(local vec.Vec3) block.BlockData {
	checkLocal(local)
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.blocks[BlockIndex(local)]
}

// SetBlock устанавливает блок по локальным координатам и помечает чанк грязным
func (c *Chunk) SetBlock(local vec.Vec3, b block.BlockData) {
	checkLocal(local)
	c.mu.Lock()
	c.blocks[BlockIndex(local)] = b
	c.mu.Unlock()

	c.modGen.Add(1)
	c.verticesReady.Store(false)
}

// SetLight меняет освещённость блока. Свет не сохраняется, поэтому чанк не становится грязным.
func (c *Chunk) SetLight(local vec.Vec3, level uint8) {
	checkLocal(local)
	c.mu.Lock()
	defer c.mu.Unlock()
	i := BlockIndex(local)
	c.blocks[i] = c.blocks[i].WithLight(level)
}

// IsDirty сообщает, изменились ли блоки после последнего успешного сохранения
func (c *Chunk) IsDirty() bool {
	return c.modGen.Load() != c.savedGen.Load()
}

// MarkDirty помечает чанк как изменённый
func (c *Chunk) MarkDirty() {
	c.modGen.Add(1)
}

// Generation возвращает текущее поколение изменений
func (c *Chunk) Generation() uint64 {
	return c.modGen.Load()
}

// MarkSaved фиксирует успешное сохранение снимка поколения gen.
// Изменения, сделанные после снимка, оставляют чанк грязным.
func (c *Chunk) MarkSaved(gen uint64) {
	for {
		cur := c.savedGen.Load()
		if gen <= cur {
			return
		}
		if c.savedGen.CompareAndSwap(cur, gen) {
			return
		}
	}
}

// View вызывает fn с позицией, состоянием и блоками под блокировкой чтения
// и возвращает поколение изменений, соответствующее снимку.
// fn не должна сохранять ссылку на срез.
func (c *Chunk) View(fn func(pos vec.Vec3, state ChunkState, blocks []block.BlockData)) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	gen := c.modGen.Load()
	fn(c.pos, c.state, c.blocks[:])
	return gen
}

// Hydrate заполняет блоки данными из хранилища и поднимает состояние до stored.
// Загруженный чанк совпадает с записью, поэтому считается чистым.
// Чанк, уже продвинутый дальше StateEmpty, не перезаписывается: fill не вызывается.
func (c *Chunk) Hydrate(stored ChunkState, fill func(blocks []block.BlockData) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state > StateEmpty {
		return nil
	}
	if err := fill(c.blocks[:]); err != nil {
		return err
	}
	if stored > c.state {
		c.state = stored
	}
	c.savedGen.Store(c.modGen.Load())
	return nil
}

// VerticesReady сигнал для отрисовки: данные для построения меша готовы.
// Имеет смысл только при состоянии не ниже StateDrawable.
func (c *Chunk) VerticesReady() bool {
	return c.verticesReady.Load() && c.State() >= StateDrawable
}

// LoaderRefs количество задач загрузчика, удерживающих чанк
func (c *Chunk) LoaderRefs() int32 {
	return c.loaderRefs.Load()
}

// SaverRefs количество фоновых сохранений, удерживающих чанк
func (c *Chunk) SaverRefs() int32 {
	return c.saverRefs.Load()
}

// Pinned сообщает, удерживается ли чанк загрузчиком или сохранением
func (c *Chunk) Pinned() bool {
	return c.loaderRefs.Load() > 0 || c.saverRefs.Load() > 0
}

// PinLoader закрепляет чанк за задачей загрузчика
func (c *Chunk) PinLoader() *Pin {
	return newPin(&c.loaderRefs)
}

// TryPinSaver закрепляет чанк за фоновым сохранением.
// Возвращает false, если сохранение уже выполняется: два сохранения одного чанка
// одновременно не запускаются.
func (c *Chunk) TryPinSaver() (*Pin, bool) {
	if !c.saverRefs.CompareAndSwap(0, 1) {
		return nil, false
	}
	return &Pin{counter: &c.saverRefs}, true
}

// tryAdvance переводит чанк из from в to, если он всё ещё в состоянии from.
// fn (может быть nil) пишет блоки под той же блокировкой. Если чанк уже продвинул
// другой загрузчик, ничего не меняется и возвращается false.
func (c *Chunk) tryAdvance(from, to ChunkState, fn func(w ChunkWriter)) bool {
	if to <= from {
		panic(fmt.Sprintf("world: переход чанка %v из %s в %s не ведёт вперёд", c.pos, from, to))
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != from {
		return false
	}
	if fn != nil {
		fn(&rawWriter{chunk: c})
	}
	c.state = to
	if to == StateDrawable {
		c.verticesReady.Store(true)
	}
	return true
}

// demote понижает отрисовываемый чанк до StateBlockGenerated, отбрасывая только
// данные отрисовки. Блоки не затрагиваются.
func (c *Chunk) demote() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateDrawable {
		return false
	}
	c.state = StateBlockGenerated
	c.verticesReady.Store(false)
	return true
}

// failAt запоминает ошибку загрузки, если чанк всё ещё в состоянии from.
// Ошибка опоздавшего загрузчика для уже продвинутого чанка отбрасывается.
func (c *Chunk) failAt(from ChunkState, err error) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != from {
		return false
	}
	c.loadErr = err
	return true
}

func (c *Chunk) beginEvict() bool {
	return c.evicting.CompareAndSwap(false, true)
}

func (c *Chunk) endEvict() {
	c.evicting.Store(false)
}

// reset полностью очищает чанк для повторного использования пулом
func (c *Chunk) reset(pos vec.Vec3) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.loaderRefs.Load() != 0 || c.saverRefs.Load() != 0 {
		panic(fmt.Sprintf("world: сброс закреплённого чанка %v", c.pos))
	}
	c.pos = pos
	c.blocks = [ChunkVolume]block.BlockData{}
	c.state = StateUnknown
	c.loadErr = nil
	c.modGen.Store(0)
	c.savedGen.Store(0)
	c.evicting.Store(false)
	c.verticesReady.Store(false)
}

// rawWriter пишет блоки напрямую; вызывается под блокировкой записи чанка
type rawWriter struct {
	chunk *Chunk
}

func (w *rawWriter) Origin() vec.Vec3 {
	return w.chunk.pos
}

func (w *rawWriter) SetBlock(local vec.Vec3, b block.BlockData) {
	checkLocal(local)
	w.chunk.blocks[BlockIndex(local)] = b
}

func (w *rawWriter) BlockAt(local vec.Vec3) block.BlockData {
	checkLocal(local)
	return w.chunk.blocks[BlockIndex(local)]
}
