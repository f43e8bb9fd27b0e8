package storage

import (
	"fmt"

	"github.com/annel0/chunkstream/internal/config"
	"github.com/annel0/chunkstream/internal/world"
)

// Backend хранилище чанков с метаданными мира и управлением жизненным циклом
type Backend interface {
	world.ChunkStorage
	Meta() WorldMeta
	// Wait ждёт завершения фоновых сохранений
	Wait()
	// Close ждёт фоновые сохранения и освобождает ресурсы
	Close() error
}

var (
	_ Backend = (*RegionStorage)(nil)
	_ Backend = (*FileStorage)(nil)
	_ Backend = (*NullStorage)(nil)
)

// Open открывает бэкенд, выбранный в конфигурации. Параметры из cfg
// переопределяют соответствующие поля opts.
func Open(cfg config.StorageConfig, opts Options) (Backend, error) {
	opts.BatchSize = cfg.BatchSize
	opts.ZstdLevel = cfg.ZstdLevel
	opts.WriteWorkers = cfg.WriteWorkers

	switch cfg.Backend {
	case config.BackendRegion:
		return OpenRegionStorage(cfg.Path, opts)
	case config.BackendFile:
		return OpenFileStorage(cfg.Path, opts)
	case config.BackendNull:
		return NewNullStorage(opts.Seed), nil
	default:
		return nil, fmt.Errorf("неизвестный бэкенд хранилища %q", cfg.Backend)
	}
}
