package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/chunkstream/internal/vec"
	"github.com/annel0/chunkstream/internal/world"
	"github.com/annel0/chunkstream/internal/world/block"
)

func setupFileStorage(t *testing.T, opts Options) (*FileStorage, string) {
	t.Helper()
	dir := t.TempDir()
	fsg, err := OpenFileStorage(dir, opts)
	require.NoError(t, err)
	t.Cleanup(func() { fsg.Close() })
	return fsg, dir
}

func TestFileSaveAndLoadChunk(t *testing.T) {
	fsg, dir := setupFileStorage(t, Options{})
	pos := vec.Vec3{X: 0, Y: 16, Z: -32}

	c := filledChunk(t, pos, world.StateBlockGenerated, func(i int) block.BlockID { return block.BlockID(i % 300) })
	c.MarkDirty()
	require.NoError(t, fsg.SaveChunk(c))
	assert.False(t, c.IsDirty())

	assert.FileExists(t, filepath.Join(dir, "0 16 -32"))
	assert.FileExists(t, filepath.Join(dir, metaFileName))

	exists, err := fsg.ExistsInStorage(pos)
	require.NoError(t, err)
	assert.True(t, exists)

	state, err := fsg.ChunkStateInStorage(pos)
	require.NoError(t, err)
	assert.Equal(t, world.StateBlockGenerated, state)

	loaded := world.NewChunk(pos)
	require.NoError(t, fsg.LoadChunk(loaded))
	assert.Equal(t, blocksOf(c), blocksOf(loaded))

	// во временных файлах ничего не осталось
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestFileMissingAndCorruptChunks(t *testing.T) {
	fsg, _ := setupFileStorage(t, Options{})
	pos := chunkPos(5, 5, 5)

	state, err := fsg.ChunkStateInStorage(pos)
	require.NoError(t, err)
	assert.Equal(t, world.StateEmpty, state)
	assert.ErrorIs(t, fsg.LoadChunk(world.NewChunk(pos)), ErrNotFound)

	require.NoError(t, os.WriteFile(fsg.chunkPath(pos), []byte("not zstd"), 0644))
	_, err = fsg.ChunkStateInStorage(pos)
	assert.ErrorIs(t, err, ErrCorrupt)
	assert.ErrorIs(t, fsg.LoadChunk(world.NewChunk(pos)), ErrCorrupt)
}

func TestFileSaveChunksParallel(t *testing.T) {
	fsg, _ := setupFileStorage(t, Options{WriteWorkers: 3, ZstdLevel: 4})

	var chunks []*world.Chunk
	for i := 0; i < 12; i++ {
		c := filledChunk(t, chunkPos(i, -i, 0), world.StateBlockGenerated, uniform(block.BlockID(i)))
		c.MarkDirty()
		chunks = append(chunks, c)
	}
	require.NoError(t, fsg.SaveChunks(chunks))

	reloaded := make([]*world.Chunk, len(chunks))
	for i, c := range chunks {
		assert.False(t, c.IsDirty())
		reloaded[i] = world.NewChunk(c.Position())
	}
	require.NoError(t, fsg.LoadChunks(reloaded))
	for i, c := range reloaded {
		assert.Equal(t, block.BlockID(i), c.BlockAt(vec.Vec3{X: 15, Y: 15, Z: 15}).ID)
	}
}

func TestFileAsyncSaveAndClose(t *testing.T) {
	dir := t.TempDir()
	fsg, err := OpenFileStorage(dir, Options{})
	require.NoError(t, err)

	c := filledChunk(t, chunkPos(0, 0, 0), world.StateBlockGenerated, uniform(block.StoneBlockID))
	c.SetBlock(vec.Vec3{}, block.Of(block.SandBlockID))
	require.True(t, fsg.SaveChunkAsync(c))

	// Close дожидается фонового сохранения
	require.NoError(t, fsg.Close())
	assert.Equal(t, int32(0), c.SaverRefs())
	assert.False(t, c.IsDirty())
	assert.FileExists(t, filepath.Join(dir, "0 0 0"))

	_, err = fsg.ExistsInStorage(c.Position())
	assert.ErrorIs(t, err, ErrClosed)
	assert.False(t, fsg.SaveChunkAsync(c))
}

func TestFileMetaVersionMismatch(t *testing.T) {
	dir := t.TempDir()
	fsg, err := OpenFileStorage(dir, Options{Seed: 5})
	require.NoError(t, err)
	id := fsg.Meta().ID
	require.NoError(t, fsg.Close())

	again, err := OpenFileStorage(dir, Options{})
	require.NoError(t, err)
	assert.Equal(t, id, again.Meta().ID)
	assert.Equal(t, int64(5), again.Meta().Seed)
	require.NoError(t, again.Close())

	meta := NewWorldMeta(5, BackendFile)
	meta.FormatVersion = FormatVersion + 1
	data, err := meta.marshal()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, metaFileName), data, 0644))

	_, err = OpenFileStorage(dir, Options{})
	assert.ErrorIs(t, err, ErrVersionMismatch)
}
