package storage

import (
	"github.com/annel0/chunkstream/internal/logging"
)

// Значения по умолчанию
const (
	DefaultBatchSize    = 256
	DefaultZstdLevel    = 2
	DefaultWriteWorkers = 4
)

// Options общие параметры бэкендов хранилища
type Options struct {
	Logger       *logging.Logger
	Metrics      *Metrics
	BatchSize    int   // чанков в одной транзакции RegionStorage
	ZstdLevel    int   // 1 (быстро) .. 4 (лучшее сжатие) для FileStorage
	WriteWorkers int   // параллельных записей FileStorage
	Seed         int64 // сид для метаданных нового мира
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = logging.Discard()
	}
	if o.Metrics == nil {
		o.Metrics = NewMetrics(nil)
	}
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.ZstdLevel <= 0 {
		o.ZstdLevel = DefaultZstdLevel
	}
	if o.WriteWorkers <= 0 {
		o.WriteWorkers = DefaultWriteWorkers
	}
	return o
}
