package storage

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/annel0/chunkstream/internal/vec"
	"github.com/annel0/chunkstream/internal/world"
	"github.com/annel0/chunkstream/internal/world/block"
)

// filledChunk создаёт чанк в состоянии state, блок i которого равен idAt(i)
func filledChunk(t *testing.T, pos vec.Vec3, state world.ChunkState, idAt func(i int) block.BlockID) *world.Chunk {
	t.Helper()
	c := world.NewChunk(pos)
	err := c.Hydrate(state, func(blocks []block.BlockData) error {
		for i := range blocks {
			blocks[i] = block.Of(idAt(i))
		}
		return nil
	})
	require.NoError(t, err)
	return c
}

func uniform(id block.BlockID) func(int) block.BlockID {
	return func(int) block.BlockID { return id }
}

func blocksOf(c *world.Chunk) []block.BlockData {
	var out []block.BlockData
	c.View(func(_ vec.Vec3, _ world.ChunkState, blocks []block.BlockData) {
		out = append(out, blocks...)
	})
	return out
}

func chunkPos(x, y, z int) vec.Vec3 {
	return vec.Vec3{X: x * world.ChunkEdge, Y: y * world.ChunkEdge, Z: z * world.ChunkEdge}
}
