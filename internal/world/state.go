package world

import (
	"fmt"
	"math/bits"
)

// ChunkState упорядоченная степень готовности чанка.
// Каждое значение является степенью двойки: «не ниже» проверяется обычным
// сравнением чисел, а в хранилище состояние кодируется как log2.
type ChunkState uint8

const (
	StateUnknown          ChunkState = 1 << iota // только что выдан пулом
	StateEmpty                                   // инициализирован, блоков нет
	StateGeneratedTerrain                        // заполнен рельеф
	StateBlockGenerated                          // расставлены объекты, блоки окончательные
	StateDrawable                                // готов к отрисовке
)

// MaxPersistedState наибольшее состояние, которое попадает в хранилище.
// Данные отрисовки никогда не сохраняются.
const MaxPersistedState = StateBlockGenerated

// String возвращает строковое представление состояния
func (s ChunkState) String() string {
	switch s {
	case StateUnknown:
		return "UNKNOWN"
	case StateEmpty:
		return "EMPTY"
	case StateGeneratedTerrain:
		return "GENERATEDTERRAIN"
	case StateBlockGenerated:
		return "BLOCKGENERATED"
	case StateDrawable:
		return "DRAWABLE"
	default:
		return fmt.Sprintf("ChunkState(%d)", uint8(s))
	}
}

// Valid сообщает, является ли значение одним из известных состояний
func (s ChunkState) Valid() bool {
	return s >= StateUnknown && s <= StateDrawable && bits.OnesCount8(uint8(s)) == 1
}

// AtLeast сообщает, достигнуто ли состояние other
func (s ChunkState) AtLeast(other ChunkState) bool {
	return s >= other
}

// Next возвращает следующее состояние; для StateDrawable возвращает его же
func (s ChunkState) Next() ChunkState {
	if s >= StateDrawable {
		return StateDrawable
	}
	return s << 1
}

// Log2 возвращает показатель степени, используемый в формате хранения
func (s ChunkState) Log2() uint8 {
	return uint8(bits.TrailingZeros8(uint8(s)))
}

// Persisted возвращает состояние, которое будет записано в хранилище
func (s ChunkState) Persisted() ChunkState {
	if s > MaxPersistedState {
		return MaxPersistedState
	}
	return s
}

// StateFromLog2 восстанавливает состояние из байта формата хранения
func StateFromLog2(b uint8) (ChunkState, error) {
	if b > StateDrawable.Log2() {
		return 0, fmt.Errorf("недопустимый байт состояния %d", b)
	}
	return ChunkState(1 << b), nil
}
