package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/chunkstream/internal/vec"
	"github.com/annel0/chunkstream/internal/world"
	"github.com/annel0/chunkstream/internal/world/block"
)

// Полный цикл над настоящим бэкендом: правка, выгрузка через фоновое сохранение,
// повторная загрузка из хранилища.
func TestManagerEvictsThroughStorage(t *testing.T) {
	for _, backend := range []string{BackendRegion, BackendFile} {
		t.Run(backend, func(t *testing.T) {
			var st Backend
			var err error
			if backend == BackendRegion {
				st, err = OpenRegionStorage(t.TempDir(), Options{})
			} else {
				st, err = OpenFileStorage(t.TempDir(), Options{})
			}
			require.NoError(t, err)
			defer st.Close()

			m, err := world.NewManager(world.Options{
				Storage:    st,
				Generator:  world.NewPerlinGenerator(42, block.NewDefaultRegistry()),
				SyncLoader: true,
			})
			require.NoError(t, err)

			at := vec.Vec3{X: 3, Y: 200, Z: 3}
			pos := at.ChunkOrigin()
			require.NoError(t, m.SetBlock(at, block.Of(block.FlowerBlockID)))

			m.UpdateRelevantChunks(nil)
			_, resident := m.ChunkState(pos)
			assert.True(t, resident, "грязный чанк не должен выгружаться до сохранения")

			require.Eventually(t, func() bool {
				m.Tick(time.Millisecond)
				_, ok := m.ChunkState(pos)
				return !ok
			}, 5*time.Second, 10*time.Millisecond)

			state, err := st.ChunkStateInStorage(pos)
			require.NoError(t, err)
			assert.Equal(t, world.StateBlockGenerated, state)

			b, err := m.BlockAt(at)
			require.NoError(t, err)
			assert.Equal(t, block.FlowerBlockID, b.ID)
		})
	}
}

func TestManagerSaveAllBatches(t *testing.T) {
	st, err := OpenRegionStorage("", Options{BatchSize: 2})
	require.NoError(t, err)
	defer st.Close()

	m, err := world.NewManager(world.Options{
		Storage:    st,
		Generator:  world.NewPerlinGenerator(1, block.NewDefaultRegistry()),
		SyncLoader: true,
	})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, m.SetBlock(vec.Vec3{X: i * world.ChunkEdge, Y: 100}, block.Of(block.SandBlockID)))
	}
	require.NoError(t, m.SaveAll())

	for i := 0; i < 5; i++ {
		exists, err := st.ExistsInStorage(vec.Vec3{X: i * world.ChunkEdge, Y: 96})
		require.NoError(t, err)
		assert.True(t, exists)
	}
}
