package storage

import (
	"testing"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/chunkstream/internal/vec"
	"github.com/annel0/chunkstream/internal/world"
	"github.com/annel0/chunkstream/internal/world/block"
)

func setupRegionStorage(t *testing.T, opts Options) (*RegionStorage, string) {
	t.Helper()
	dir := t.TempDir()
	rs, err := OpenRegionStorage(dir, opts)
	require.NoError(t, err, "Не удалось создать хранилище")
	t.Cleanup(func() { rs.Close() })
	return rs, dir
}

func TestChunkKeyLayout(t *testing.T) {
	key := chunkKey(vec.Vec3{X: 16, Y: -16, Z: 32})
	require.Len(t, key, 12)
	assert.Equal(t, []byte{16, 0, 0, 0, 0xF0, 0xFF, 0xFF, 0xFF, 32, 0, 0, 0}, key)
	assert.NotEqual(t, len(metaKey), len(key))
}

func TestRegionSaveAndLoadChunk(t *testing.T) {
	rs, _ := setupRegionStorage(t, Options{})
	pos := chunkPos(2, 0, -1)

	state, err := rs.ChunkStateInStorage(pos)
	require.NoError(t, err)
	assert.Equal(t, world.StateEmpty, state)

	exists, err := rs.ExistsInStorage(pos)
	require.NoError(t, err)
	assert.False(t, exists)
	assert.ErrorIs(t, rs.LoadChunk(world.NewChunk(pos)), ErrNotFound)

	c := filledChunk(t, pos, world.StateBlockGenerated, func(i int) block.BlockID { return block.BlockID(i % 7) })
	c.SetBlock(vec.Vec3{X: 1, Y: 1, Z: 1}, block.Of(block.LogBlockID))
	require.True(t, c.IsDirty())

	require.NoError(t, rs.SaveChunk(c))
	assert.False(t, c.IsDirty())

	state, err = rs.ChunkStateInStorage(pos)
	require.NoError(t, err)
	assert.Equal(t, world.StateBlockGenerated, state)

	loaded := world.NewChunk(pos)
	require.NoError(t, rs.LoadChunk(loaded))
	assert.Equal(t, blocksOf(c), blocksOf(loaded))
	assert.Equal(t, world.StateBlockGenerated, loaded.State())
}

func TestRegionSaveChunksInBatches(t *testing.T) {
	rs, _ := setupRegionStorage(t, Options{BatchSize: 3})

	var chunks []*world.Chunk
	for i := 0; i < 10; i++ {
		c := filledChunk(t, chunkPos(i, 0, 0), world.StateBlockGenerated, uniform(block.BlockID(i+1)))
		c.MarkDirty()
		chunks = append(chunks, c)
	}
	require.NoError(t, rs.SaveChunks(chunks))

	reloaded := make([]*world.Chunk, len(chunks))
	for i, c := range chunks {
		assert.False(t, c.IsDirty())
		reloaded[i] = world.NewChunk(c.Position())
	}
	require.NoError(t, rs.LoadChunks(reloaded))
	for i, c := range reloaded {
		assert.Equal(t, block.BlockID(i+1), c.BlockAt(vec.Vec3{}).ID)
	}
}

func TestRegionLoadChunksReportsPerChunkErrors(t *testing.T) {
	rs, _ := setupRegionStorage(t, Options{})
	good := filledChunk(t, chunkPos(0, 0, 0), world.StateBlockGenerated, uniform(block.SandBlockID))
	require.NoError(t, rs.SaveChunk(good))

	require.NoError(t, rs.db.Update(func(txn *badger.Txn) error {
		return txn.Set(chunkKey(chunkPos(1, 0, 0)), []byte{1, 0, 0})
	}))

	a, b, missing := world.NewChunk(chunkPos(0, 0, 0)), world.NewChunk(chunkPos(1, 0, 0)), world.NewChunk(chunkPos(2, 0, 0))
	err := rs.LoadChunks([]*world.Chunk{a, b, missing})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCorrupt)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, block.SandBlockID, a.BlockAt(vec.Vec3{}).ID)

	_, err = rs.ChunkStateInStorage(chunkPos(1, 0, 0))
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestRegionAsyncSaveClearsDirty(t *testing.T) {
	rs, _ := setupRegionStorage(t, Options{})
	c := filledChunk(t, chunkPos(0, 1, 0), world.StateBlockGenerated, uniform(block.StoneBlockID))
	c.SetBlock(vec.Vec3{X: 3}, block.Of(block.WaterBlockID))

	require.True(t, rs.SaveChunkAsync(c))
	require.Eventually(t, func() bool { return c.SaverRefs() == 0 }, 5*time.Second, 5*time.Millisecond)
	assert.False(t, c.IsDirty())

	exists, err := rs.ExistsInStorage(c.Position())
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestRegionMetaPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	rs, err := OpenRegionStorage(dir, Options{Seed: 99})
	require.NoError(t, err)
	meta := rs.Meta()
	assert.Equal(t, int64(99), meta.Seed)
	assert.Equal(t, FormatVersion, meta.FormatVersion)

	c := filledChunk(t, chunkPos(0, 0, 0), world.StateGeneratedTerrain, uniform(block.GrassBlockID))
	require.NoError(t, rs.SaveChunk(c))
	require.NoError(t, rs.Close())

	reopened, err := OpenRegionStorage(dir, Options{Seed: 1})
	require.NoError(t, err)
	defer reopened.Close()
	assert.Equal(t, meta.ID, reopened.Meta().ID)
	assert.Equal(t, int64(99), reopened.Meta().Seed)

	state, err := reopened.ChunkStateInStorage(chunkPos(0, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, world.StateGeneratedTerrain, state)
}

func TestRegionClosed(t *testing.T) {
	rs, err := OpenRegionStorage("", Options{})
	require.NoError(t, err)
	require.NoError(t, rs.Close())
	require.NoError(t, rs.Close())

	c := world.NewChunk(chunkPos(0, 0, 0))
	assert.ErrorIs(t, rs.SaveChunk(c), ErrClosed)
	assert.False(t, rs.SaveChunkAsync(c))
	_, err = rs.ChunkStateInStorage(c.Position())
	assert.ErrorIs(t, err, ErrClosed)
}
