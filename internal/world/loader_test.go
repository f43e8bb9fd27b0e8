package world

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/chunkstream/internal/world/block"
)

func TestLoaderDrawableLoadsNeighbours(t *testing.T) {
	w := newTestWorld(16)
	origin := chunkAt(0, 0, 0)

	var built []*Chunk
	w.loader.OnDrawable(func(c *Chunk) { built = append(built, c) })

	w.loader.Request(origin, StateDrawable)
	w.loader.LoadAllChunks()

	assert.Equal(t, 7, w.registry.Len())
	c, ok := w.registry.Peek(origin)
	require.True(t, ok)
	assert.Equal(t, StateDrawable, c.State())
	assert.True(t, c.VerticesReady())
	assert.Len(t, built, 1)

	for _, npos := range origin.FaceNeighbors() {
		n, ok := w.registry.Peek(npos)
		require.True(t, ok, "сосед %v не загружен", npos)
		assert.Equal(t, StateBlockGenerated, n.State())
		assert.Equal(t, int32(0), n.LoaderRefs())
	}
	assert.Equal(t, int32(0), c.LoaderRefs())
	assert.Equal(t, 0, w.loader.Pending())
}

func TestLoaderRespectsBudget(t *testing.T) {
	w := newTestWorld(16)

	var clock time.Time
	w.loader.now = func() time.Time {
		clock = clock.Add(5 * time.Millisecond)
		return clock
	}

	w.loader.Request(chunkAt(0, 0, 0), StateBlockGenerated)
	steps := w.loader.Update(10 * time.Millisecond)
	assert.Equal(t, 2, steps)
	assert.Equal(t, 1, w.loader.Pending())

	c, _ := w.registry.Peek(chunkAt(0, 0, 0))
	assert.Equal(t, StateGeneratedTerrain, c.State())

	w.loader.Update(time.Hour)
	assert.Equal(t, StateBlockGenerated, c.State())
	assert.Equal(t, 0, w.loader.Pending())
}

func TestLoaderHydratesFromStorage(t *testing.T) {
	w := newTestWorld(16)
	pos := chunkAt(1, 0, 0)
	w.storage.put(pos, StateBlockGenerated, block.Of(block.SandBlockID))

	c, pin, err := w.loader.AcquireLoaded(pos, StateBlockGenerated)
	require.NoError(t, err)
	defer pin.Release()

	assert.Equal(t, StateBlockGenerated, c.State())
	assert.Equal(t, block.SandBlockID, c.BlockAt(LocalFromIndex(100)).ID)
	assert.False(t, c.IsDirty())
	assert.Equal(t, int32(1), c.LoaderRefs())
}

func TestLoaderCorruptChunkActsAsBorder(t *testing.T) {
	w := newTestWorld(16)
	bad := chunkAt(1, 0, 0)
	w.storage.put(bad, StateBlockGenerated, block.Of(block.StoneBlockID))
	w.storage.corrupt[bad] = true

	_, _, err := w.loader.AcquireLoaded(bad, StateBlockGenerated)
	require.ErrorIs(t, err, errCorruptRecord)

	c, ok := w.registry.Peek(bad)
	require.True(t, ok)
	assert.Equal(t, StateEmpty, c.State())
	assert.Equal(t, int32(0), c.LoaderRefs())

	// соседний чанк всё равно становится отрисовываемым
	w.loader.Request(chunkAt(0, 0, 0), StateDrawable)
	w.loader.LoadAllChunks()
	n, _ := w.registry.Peek(chunkAt(0, 0, 0))
	assert.Equal(t, StateDrawable, n.State())
}

func TestLoaderRefsNeverLeakUnderChurn(t *testing.T) {
	w := newTestWorld(8)
	rng := rand.New(rand.NewSource(42))

	for round := 0; round < 200; round++ {
		p := chunkAt(rng.Intn(6), 0, 0)
		switch rng.Intn(3) {
		case 0:
			w.loader.Request(p, StateDrawable)
		case 1:
			w.loader.Update(time.Duration(rng.Intn(3)) * time.Millisecond)
		case 2:
			c, present := w.registry.Peek(p)
			refs := int32(0)
			if present {
				refs = c.LoaderRefs()
			}
			if w.unloader.TryUnload(p) && present {
				assert.Equal(t, int32(0), refs, "выгружен закреплённый чанк %v", p)
			}
		}
	}

	w.loader.LoadAllChunks()
	for _, c := range w.registry.Snapshot(nil) {
		assert.Equal(t, int32(0), c.LoaderRefs(), "чанк %v остался закреплён", c.Position())
	}
}
