package world

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/chunkstream/internal/vec"
	"github.com/annel0/chunkstream/internal/world/block"
)

func generate(g TerrainGenerator, origin vec.Vec3) *Chunk {
	c := NewChunk(origin)
	c.tryAdvance(StateUnknown, StateBlockGenerated, func(w ChunkWriter) {
		g.GenerateTerrain(origin, w)
		placeFeatures(g, w)
	})
	return c
}

func TestPerlinGeneratorIsDeterministic(t *testing.T) {
	origin := vec.Vec3{X: 32, Y: 0, Z: -16}
	a := generate(NewPerlinGenerator(5, block.NewDefaultRegistry()), origin)
	b := generate(NewPerlinGenerator(5, block.NewDefaultRegistry()), origin)
	assert.Equal(t, a.blocks, b.blocks)
	assert.False(t, a.IsDirty(), "генерация не делает чанк грязным")
}

func TestPerlinGeneratorLayers(t *testing.T) {
	g := NewPerlinGenerator(11, block.NewDefaultRegistry())
	x, z := 7, 9
	surface := g.SurfaceHeight(x, z)
	origin := vec.Vec3{X: x, Y: surface, Z: z}.ChunkOrigin()
	c := generate(g, origin)

	local := vec.Vec3{X: x, Y: surface, Z: z}.LocalInChunk()
	top := c.BlockAt(local).ID
	assert.Contains(t, []block.BlockID{block.GrassBlockID, block.SandBlockID}, top)

	deep := generate(g, vec.Vec3{X: 0, Y: -64, Z: 0})
	assert.Equal(t, block.StoneBlockID, deep.BlockAt(vec.Vec3{X: x, Y: 5, Z: z}).ID)

	sky := generate(g, vec.Vec3{X: 0, Y: 128, Z: 0})
	assert.True(t, sky.BlockAt(vec.Vec3{X: x, Y: 5, Z: z}).IsAir())
}

// oneTree ставит траву на y = 3 и дерево в колонке (3, 3)
type oneTree struct{}

func (oneTree) GenerateTerrain(origin vec.Vec3, w ChunkWriter) {
	for lz := 0; lz < ChunkEdge; lz++ {
		for lx := 0; lx < ChunkEdge; lx++ {
			w.SetBlock(vec.Vec3{X: lx, Y: 3, Z: lz}, block.Of(block.GrassBlockID))
		}
	}
}

func (oneTree) HasFeatureAt(x, z int) bool { return x == 3 && z == 3 }

func TestPlaceTrees(t *testing.T) {
	c := generate(oneTree{}, vec.Vec3{})

	for y := 4; y < 4+treeTrunkHeight; y++ {
		assert.Equal(t, block.LogBlockID, c.BlockAt(vec.Vec3{X: 3, Y: y, Z: 3}).ID, "y=%d", y)
	}
	assert.Equal(t, block.LeavesBlockID, c.BlockAt(vec.Vec3{X: 3, Y: 4 + treeTrunkHeight, Z: 3}).ID)
	assert.True(t, c.BlockAt(vec.Vec3{X: 4, Y: 4, Z: 3}).IsAir())
}

func TestPerlinTreesUseRegistryIDs(t *testing.T) {
	reg := block.NewRegistry()
	for id, name := range map[block.BlockID]string{
		1: "stone", 2: "dirt", 3: "sand", 4: "water",
		50: "grass", 60: "log", 61: "leaves",
	} {
		require.NoError(t, reg.Register(id, name))
	}

	g := NewPerlinGenerator(3, reg)
	g.SeaLevel = -1000 // вся поверхность считается сушей
	g.TreeDensity = 1

	c := NewChunk(vec.Vec3{})
	c.tryAdvance(StateUnknown, StateBlockGenerated, func(w ChunkWriter) {
		for lz := 0; lz < ChunkEdge; lz++ {
			for lx := 0; lx < ChunkEdge; lx++ {
				w.SetBlock(vec.Vec3{X: lx, Y: 3, Z: lz}, block.Of(50))
			}
		}
		placeFeatures(g, w)
	})

	for y := 4; y < 4+treeTrunkHeight; y++ {
		assert.Equal(t, block.BlockID(60), c.BlockAt(vec.Vec3{X: 3, Y: y, Z: 3}).ID, "y=%d", y)
	}
	assert.Equal(t, block.BlockID(61), c.BlockAt(vec.Vec3{X: 3, Y: 4 + treeTrunkHeight, Z: 3}).ID)
}
