package vec

import "math"

// ChunkEdge длина ребра чанка в блоках
const ChunkEdge = 16

const chunkMask = ChunkEdge - 1

// Vec3 представляет трехмерный вектор с целочисленными координатами
type Vec3 struct {
	X int
	Y int
	Z int
}

// Vec3Float представляет трехмерный вектор с плавающими координатами
type Vec3Float struct {
	X float64
	Y float64
	Z float64
}

// Floor округляет координаты вниз до целых
func (v Vec3Float) Floor() Vec3 {
	return Vec3{
		X: int(math.Floor(v.X)),
		Y: int(math.Floor(v.Y)),
		Z: int(math.Floor(v.Z)),
	}
}

// Add складывает два вектора
func (v Vec3Float) Add(other Vec3Float) Vec3Float {
	return Vec3Float{X: v.X + other.X, Y: v.Y + other.Y, Z: v.Z + other.Z}
}

// Add складывает два вектора
func (v Vec3) Add(other Vec3) Vec3 {
	return Vec3{
		X: v.X + other.X,
		Y: v.Y + other.Y,
		Z: v.Z + other.Z,
	}
}

// Scale умножает вектор на скаляр
func (v Vec3) Scale(k int) Vec3 {
	return Vec3{X: v.X * k, Y: v.Y * k, Z: v.Z * k}
}

// ChunkOrigin возвращает начало чанка, содержащего точку.
// Результат всегда кратен ChunkEdge, в том числе для отрицательных координат.
func (v Vec3) ChunkOrigin() Vec3 {
	return Vec3{X: v.X &^ chunkMask, Y: v.Y &^ chunkMask, Z: v.Z &^ chunkMask}
}

// LocalInChunk возвращает локальные координаты внутри чанка
func (v Vec3) LocalInChunk() Vec3 {
	return Vec3{X: v.X & chunkMask, Y: v.Y & chunkMask, Z: v.Z & chunkMask}
}

// IsChunkAligned сообщает, кратны ли все координаты ChunkEdge
func (v Vec3) IsChunkAligned() bool {
	return v.X&chunkMask == 0 && v.Y&chunkMask == 0 && v.Z&chunkMask == 0
}

// Faces шесть единичных направлений по граням куба
var Faces = [6]Vec3{
	{X: 1}, {X: -1},
	{Y: 1}, {Y: -1},
	{Z: 1}, {Z: -1},
}

// FaceNeighbors возвращает начала шести соседних по граням чанков
func (v Vec3) FaceNeighbors() [6]Vec3 {
	var out [6]Vec3
	for i, f := range Faces {
		out[i] = v.Add(f.Scale(ChunkEdge))
	}
	return out
}
