package block

// BlockID представляет идентификатор типа блока
type BlockID uint16

// Константы ID блоков
const (
	// Базовые типы блоков
	AirBlockID   BlockID = iota // 0
	StoneBlockID                // 1
	GrassBlockID                // 2
	WaterBlockID                // 3
	SandBlockID                 // 4
	DirtBlockID                 // 5

	// Декоративные блоки (начиная с 100)
	FlowerBlockID BlockID = 100 // Цветок
	LogBlockID    BlockID = 101 // Ствол дерева
	LeavesBlockID BlockID = 102 // Листва
)

// MaxLight максимальный уровень освещённости
const MaxLight = 15

// BlockData компактное значение вокселя: ID типа и упакованные метаданные.
// Младшие 4 бита Meta хранят освещённость, старшие 4 хранят подсказку ambient occlusion.
// Для палитры блоки сравниваются только по ID.
type BlockData struct {
	ID   BlockID
	Meta uint8
}

// Air пустой блок
var Air = BlockData{ID: AirBlockID}

// Of возвращает блок с указанным ID без метаданных
func Of(id BlockID) BlockData {
	return BlockData{ID: id}
}

// Light возвращает уровень освещённости 0..15
func (b BlockData) Light() uint8 {
	return b.Meta & 0x0F
}

// AO возвращает подсказку ambient occlusion 0..15
func (b BlockData) AO() uint8 {
	return b.Meta >> 4
}

// WithLight возвращает копию блока с новым уровнем освещённости
func (b BlockData) WithLight(level uint8) BlockData {
	if level > MaxLight {
		level = MaxLight
	}
	b.Meta = b.Meta&0xF0 | level
	return b
}

// WithAO возвращает копию блока с новой подсказкой ambient occlusion
func (b BlockData) WithAO(ao uint8) BlockData {
	if ao > 0x0F {
		ao = 0x0F
	}
	b.Meta = b.Meta&0x0F | ao<<4
	return b
}

// SameType сообщает, совпадает ли тип блоков (без учёта метаданных)
func (b BlockData) SameType(other BlockData) bool {
	return b.ID == other.ID
}

// IsAir проверяет, является ли блок воздухом
func (b BlockData) IsAir() bool {
	return b.ID == AirBlockID
}
