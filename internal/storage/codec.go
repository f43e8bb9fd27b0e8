package storage

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/annel0/chunkstream/internal/vec"
	"github.com/annel0/chunkstream/internal/world"
	"github.com/annel0/chunkstream/internal/world/block"
)

// FormatVersion версия двоичного формата записи чанка. Записи другой версии не читаются.
const FormatVersion int32 = 1

// Заголовок записи: version:int32, state:uint8, tick:int32, paletteCount:int32.
// Все числа little-endian.
const (
	headerSize     = 4 + 1 + 4 + 4
	paletteRecSize = 4
)

var (
	// ErrVersionMismatch запись другой версии формата
	ErrVersionMismatch = errors.New("storage: несовпадение версии формата")
	// ErrCorrupt запись повреждена или обрезана
	ErrCorrupt = errors.New("storage: повреждённая запись чанка")
	// ErrNotFound записи для позиции нет
	ErrNotFound = errors.New("storage: запись чанка не найдена")
	// ErrClosed хранилище закрыто
	ErrClosed = errors.New("storage: хранилище закрыто")
)

// palette сопоставляет различные ID блоков чанка плотным индексам 0..N-1.
// Порядок определяется первым появлением и имеет смысл только внутри одной записи.
type palette struct {
	ids   []block.BlockID
	index map[block.BlockID]int
}

func newPalette() *palette {
	return &palette{index: make(map[block.BlockID]int)}
}

// indexOf возвращает индекс ID, добавляя его в палитру при первом появлении
func (p *palette) indexOf(id block.BlockID) int {
	if i, ok := p.index[id]; ok {
		return i
	}
	i := len(p.ids)
	p.ids = append(p.ids, id)
	p.index[id] = i
	return i
}

func (p *palette) len() int { return len(p.ids) }

// bytesPerIndex возвращает ceil(log256(count)): 0 для однородного чанка,
// 1 до 256 различных блоков, 2 до 65536
func bytesPerIndex(count int) int {
	n := 0
	for v := count - 1; v > 0; v >>= 8 {
		n++
	}
	return n
}

// EncodeChunk кодирует снимок чанка и возвращает поколение изменений снимка.
// Состояние выше StateBlockGenerated записывается как StateBlockGenerated.
func EncodeChunk(c *world.Chunk) ([]byte, uint64) {
	var data []byte
	gen := c.View(func(_ vec.Vec3, state world.ChunkState, blocks []block.BlockData) {
		data = encodeBlocks(state, blocks)
	})
	return data, gen
}

func encodeBlocks(state world.ChunkState, blocks []block.BlockData) []byte {
	pal := newPalette()
	indices := make([]int, len(blocks))
	for i, b := range blocks {
		indices[i] = pal.indexOf(b.ID)
	}

	count := pal.len()
	bpi := bytesPerIndex(count)
	out := make([]byte, headerSize+count*paletteRecSize+bpi*len(blocks))

	binary.LittleEndian.PutUint32(out[0:], uint32(FormatVersion))
	out[4] = state.Persisted().Log2()
	binary.LittleEndian.PutUint32(out[5:], 0) // tick зарезервирован
	binary.LittleEndian.PutUint32(out[9:], uint32(count))

	off := headerSize
	for _, id := range pal.ids {
		binary.LittleEndian.PutUint32(out[off:], uint32(int32(id)))
		off += paletteRecSize
	}

	if bpi == 0 {
		return out
	}
	for _, idx := range indices {
		for k := 0; k < bpi; k++ {
			out[off] = byte(idx >> (8 * k))
			off++
		}
	}
	return out
}

// DecodeState читает из записи только заголовок и возвращает сохранённое состояние
func DecodeState(data []byte) (world.ChunkState, error) {
	if len(data) < headerSize {
		return 0, fmt.Errorf("%w: длина %d меньше заголовка", ErrCorrupt, len(data))
	}
	if v := int32(binary.LittleEndian.Uint32(data[0:])); v != FormatVersion {
		return 0, fmt.Errorf("%w: %d, ожидалась %d", ErrVersionMismatch, v, FormatVersion)
	}
	state, err := world.StateFromLog2(data[4])
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if state > world.MaxPersistedState {
		return 0, fmt.Errorf("%w: сохранено состояние %s", ErrCorrupt, state)
	}
	return state, nil
}

// decodeBlocks разбирает запись в dst (длиной world.ChunkVolume)
func decodeBlocks(data []byte, dst []block.BlockData) (world.ChunkState, error) {
	state, err := DecodeState(data)
	if err != nil {
		return 0, err
	}

	count := int(int32(binary.LittleEndian.Uint32(data[9:])))
	if count < 1 || count > len(dst) {
		return 0, fmt.Errorf("%w: размер палитры %d", ErrCorrupt, count)
	}
	bpi := bytesPerIndex(count)
	if want := headerSize + count*paletteRecSize + bpi*len(dst); len(data) != want {
		return 0, fmt.Errorf("%w: длина %d, ожидалась %d", ErrCorrupt, len(data), want)
	}

	ids := make([]block.BlockID, count)
	off := headerSize
	for i := range ids {
		raw := int32(binary.LittleEndian.Uint32(data[off:]))
		if raw < 0 || raw > math.MaxUint16 {
			return 0, fmt.Errorf("%w: ID блока %d вне диапазона", ErrCorrupt, raw)
		}
		ids[i] = block.BlockID(raw)
		off += paletteRecSize
	}

	if bpi == 0 {
		for i := range dst {
			dst[i] = block.Of(ids[0])
		}
		return state, nil
	}

	for i := range dst {
		idx := 0
		for k := 0; k < bpi; k++ {
			idx |= int(data[off]) << (8 * k)
			off++
		}
		if idx >= count {
			return 0, fmt.Errorf("%w: индекс %d вне палитры из %d", ErrCorrupt, idx, count)
		}
		dst[i] = block.Of(ids[idx])
	}
	return state, nil
}

// DecodeInto заполняет чанк из записи. Чанк поднимается до сохранённого состояния
// и считается чистым. При ошибке блоки чанка могут быть частично перезаписаны.
// Чанк, уже продвинутый дальше StateEmpty, остаётся без изменений.
func DecodeInto(c *world.Chunk, data []byte) error {
	state, err := DecodeState(data)
	if err != nil {
		return err
	}
	return c.Hydrate(state, func(blocks []block.BlockData) error {
		_, err := decodeBlocks(data, blocks)
		return err
	})
}
