package world

import (
	"github.com/annel0/chunkstream/internal/util"
	"github.com/annel0/chunkstream/internal/vec"
	"github.com/annel0/chunkstream/internal/world/block"
)

// ChunkWriter даёт генератору доступ к блокам одного чанка
type ChunkWriter interface {
	// Origin возвращает начало чанка в мировых координатах
	Origin() vec.Vec3
	SetBlock(local vec.Vec3, b block.BlockData)
	BlockAt(local vec.Vec3) block.BlockData
}

// TerrainGenerator внешний генератор мира. Должен быть чистой функцией координат:
// повторная генерация того же чанка даёт те же блоки.
type TerrainGenerator interface {
	// GenerateTerrain заполняет рельеф чанка с началом origin
	GenerateTerrain(origin vec.Vec3, w ChunkWriter)
	// HasFeatureAt сообщает, стоит ли в колонке (x, z) объект (например, дерево)
	HasFeatureAt(x, z int) bool
}

// FeaturePlacer необязательное расширение генератора со своей расстановкой объектов.
// Если генератор его не реализует, используется PlaceTrees с DefaultTreeBlocks.
type FeaturePlacer interface {
	PlaceFeatures(origin vec.Vec3, w ChunkWriter)
}

// Параметры генерации по умолчанию
const (
	DefaultSeaLevel     = 0
	DefaultBaseHeight   = -8
	DefaultHeightRange  = 40
	DefaultNoiseScale   = 0.01
	DefaultTreeDensity  = 0.02
	beachHeightAboveSea = 1
)

// PerlinGenerator генератор рельефа на шуме Перлина
type PerlinGenerator struct {
	Seed        int64
	NoiseScale  float64 // Масштаб основного шума (высота)
	BaseHeight  int     // Минимальная высота поверхности
	HeightRange int     // Разброс высоты поверхности
	SeaLevel    int
	TreeDensity float64 // Доля колонок с деревьями (от 0 до 1)

	noise *util.Noise2D
	ids   generatorIDs
	trees TreeBlocks
}

type generatorIDs struct {
	stone, dirt, grass, sand, water block.BlockID
}

// TreeBlocks ID блоков, из которых PlaceTrees строит деревья
type TreeBlocks struct {
	Grass  block.BlockID // Блок, на который ставится дерево
	Log    block.BlockID
	Leaves block.BlockID
}

// DefaultTreeBlocks ID из стандартного набора блоков
var DefaultTreeBlocks = TreeBlocks{
	Grass:  block.GrassBlockID,
	Log:    block.LogBlockID,
	Leaves: block.LeavesBlockID,
}

// TreeBlocksFrom берёт ID блоков деревьев из реестра
func TreeBlocksFrom(registry *block.Registry) TreeBlocks {
	return TreeBlocks{
		Grass:  registry.MustID("grass"),
		Log:    registry.MustID("log"),
		Leaves: registry.MustID("leaves"),
	}
}

// NewPerlinGenerator создаёт генератор; ID блоков берутся из реестра
func NewPerlinGenerator(seed int64, registry *block.Registry) *PerlinGenerator {
	return &PerlinGenerator{
		Seed:        seed,
		NoiseScale:  DefaultNoiseScale,
		BaseHeight:  DefaultBaseHeight,
		HeightRange: DefaultHeightRange,
		SeaLevel:    DefaultSeaLevel,
		TreeDensity: DefaultTreeDensity,
		noise:       util.NewNoise2D(seed),
		ids: generatorIDs{
			stone: registry.MustID("stone"),
			dirt:  registry.MustID("dirt"),
			grass: registry.MustID("grass"),
			sand:  registry.MustID("sand"),
			water: registry.MustID("water"),
		},
		trees: TreeBlocksFrom(registry),
	}
}

// SurfaceHeight возвращает мировую высоту поверхности в колонке (x, z)
func (g *PerlinGenerator) SurfaceHeight(x, z int) int {
	h := g.noise.Normalized(float64(x)*g.NoiseScale, float64(z)*g.NoiseScale)
	return g.BaseHeight + int(h*float64(g.HeightRange))
}

// GenerateTerrain реализует TerrainGenerator
func (g *PerlinGenerator) GenerateTerrain(origin vec.Vec3, w ChunkWriter) {
	for lz := 0; lz < ChunkEdge; lz++ {
		for lx := 0; lx < ChunkEdge; lx++ {
			surface := g.SurfaceHeight(origin.X+lx, origin.Z+lz)
			for ly := 0; ly < ChunkEdge; ly++ {
				y := origin.Y + ly
				if b, ok := g.blockFor(y, surface); ok {
					w.SetBlock(vec.Vec3{X: lx, Y: ly, Z: lz}, b)
				}
			}
		}
	}
}

func (g *PerlinGenerator) blockFor(y, surface int) (block.BlockData, bool) {
	switch {
	case y > surface:
		if y <= g.SeaLevel {
			return block.Of(g.ids.water), true
		}
		return block.Air, false
	case y == surface:
		if surface <= g.SeaLevel+beachHeightAboveSea {
			return block.Of(g.ids.sand), true
		}
		return block.Of(g.ids.grass), true
	case y > surface-4:
		return block.Of(g.ids.dirt), true
	default:
		return block.Of(g.ids.stone), true
	}
}

// PlaceFeatures реализует FeaturePlacer: деревья из блоков реестра генератора
func (g *PerlinGenerator) PlaceFeatures(_ vec.Vec3, w ChunkWriter) {
	PlaceTrees(g, w, g.trees)
}

// HasFeatureAt реализует TerrainGenerator: деревья только на суше
func (g *PerlinGenerator) HasFeatureAt(x, z int) bool {
	if g.SurfaceHeight(x, z) <= g.SeaLevel+beachHeightAboveSea {
		return false
	}
	return columnChance(g.Seed, vec.Vec2{X: x, Y: z}) < g.TreeDensity
}

// columnChance детерминированное псевдослучайное число [0, 1) для колонки
func columnChance(seed int64, col vec.Vec2) float64 {
	h := uint64(seed) ^ uint64(int64(col.X))*0x9E3779B97F4A7C15 ^ uint64(int64(col.Y))*0xC2B2AE3D27D4EB4F
	h ^= h >> 30
	h *= 0xBF58476D1CE4E5B9
	h ^= h >> 27
	h *= 0x94D049BB133111EB
	h ^= h >> 31
	return float64(h>>11) / float64(1<<53)
}

// Размеры деревьев
const (
	treeTrunkHeight = 4
)

// PlaceTrees расставляет деревья в колонках, где gen.HasFeatureAt истинно.
// Дерево ставится на самый верхний блок blocks.Grass колонки и целиком помещается в чанк.
func PlaceTrees(gen TerrainGenerator, w ChunkWriter, blocks TreeBlocks) {
	origin := w.Origin()
	for lz := 0; lz < ChunkEdge; lz++ {
		for lx := 0; lx < ChunkEdge; lx++ {
			if !gen.HasFeatureAt(origin.X+lx, origin.Z+lz) {
				continue
			}
			base := -1
			for ly := ChunkEdge - 2; ly >= 0; ly-- {
				if w.BlockAt(vec.Vec3{X: lx, Y: ly, Z: lz}).ID == blocks.Grass &&
					w.BlockAt(vec.Vec3{X: lx, Y: ly + 1, Z: lz}).IsAir() {
					base = ly
					break
				}
			}
			if base < 0 || base+treeTrunkHeight+1 >= ChunkEdge {
				continue
			}
			for ly := base + 1; ly <= base+treeTrunkHeight; ly++ {
				w.SetBlock(vec.Vec3{X: lx, Y: ly, Z: lz}, block.Of(blocks.Log))
			}
			w.SetBlock(vec.Vec3{X: lx, Y: base + treeTrunkHeight + 1, Z: lz}, block.Of(blocks.Leaves))
		}
	}
}

// placeFeatures выполняет шаг GENERATEDTERRAIN -> BLOCKGENERATED
func placeFeatures(gen TerrainGenerator, w ChunkWriter) {
	if fp, ok := gen.(FeaturePlacer); ok {
		fp.PlaceFeatures(w.Origin(), w)
		return
	}
	PlaceTrees(gen, w, DefaultTreeBlocks)
}
