package util

import (
	"github.com/aquilax/go-perlin"
)

// Noise2D детерминированный двумерный шум Перлина с фиксированным сидом.
// Только читает предвычисленные таблицы, поэтому безопасен для параллельных вызовов.
type Noise2D struct {
	perlin *perlin.Perlin
}

// NewNoise2D создаёт генератор шума Перлина с указанным сидом
func NewNoise2D(seed int64) *Noise2D {
	alpha := 2.0  // Сглаживание шума
	beta := 2.0   // Частота шума
	n := int32(3) // Количество октав
	return &Noise2D{perlin: perlin.NewPerlin(alpha, beta, n, seed)}
}

// Normalized возвращает значение шума для указанных координат (от 0 до 1)
func (n *Noise2D) Normalized(x, y float64) float64 {
	// Получаем значение шума (около -1..1)
	v := (n.perlin.Noise2D(x, y) + 1.0) / 2.0

	if v < 0 {
		return 0
	} else if v > 1 {
		return 1
	}
	return v
}
