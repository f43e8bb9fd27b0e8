package storage

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v3"

	"github.com/annel0/chunkstream/internal/logging"
	"github.com/annel0/chunkstream/internal/vec"
	"github.com/annel0/chunkstream/internal/world"
)

// BackendRegion имя бэкенда для метрик и метаданных
const BackendRegion = "region"

// RegionStorage хранит все чанки мира в одной базе BadgerDB.
// Ключ занимает 12 байт: координаты X, Y, Z как int32 little-endian.
type RegionStorage struct {
	db        *badger.DB
	path      string
	mu        sync.RWMutex
	closed    bool
	meta      WorldMeta
	batchSize int

	logger  *logging.Logger
	metrics *Metrics
	saver   *asyncSaver
}

var _ world.ChunkStorage = (*RegionStorage)(nil)

// OpenRegionStorage открывает (или создаёт) базу в каталоге path.
// Пустой path открывает базу в памяти.
func OpenRegionStorage(path string, opts Options) (*RegionStorage, error) {
	opts = opts.withDefaults()

	bopts := badger.DefaultOptions(path)
	if path == "" {
		bopts = bopts.WithInMemory(true)
	}
	bopts.Logger = nil // Отключаем логирование BadgerDB

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть BadgerDB: %w", err)
	}

	rs := &RegionStorage{
		db:        db,
		path:      path,
		batchSize: opts.BatchSize,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
	}
	rs.saver = newAsyncSaver(BackendRegion, rs.SaveChunk, opts.Logger, opts.Metrics)

	if rs.meta, err = rs.loadOrCreateMeta(opts.Seed); err != nil {
		db.Close()
		return nil, err
	}
	rs.logger.Info("Открыто хранилище регионов %q (мир %s, сид %d)", path, rs.meta.ID, rs.meta.Seed)
	return rs, nil
}

func (rs *RegionStorage) loadOrCreateMeta(seed int64) (WorldMeta, error) {
	var data []byte
	err := rs.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(metaKey)
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if err == nil {
		return parseWorldMeta(data)
	}
	if !errors.Is(err, badger.ErrKeyNotFound) {
		return WorldMeta{}, fmt.Errorf("чтение метаданных мира: %w", err)
	}

	meta := NewWorldMeta(seed, BackendRegion)
	if data, err = meta.marshal(); err != nil {
		return WorldMeta{}, err
	}
	err = rs.db.Update(func(txn *badger.Txn) error {
		return txn.Set(metaKey, data)
	})
	if err != nil {
		return WorldMeta{}, fmt.Errorf("запись метаданных мира: %w", err)
	}
	return meta, nil
}

// Meta возвращает метаданные мира
func (rs *RegionStorage) Meta() WorldMeta {
	return rs.meta
}

// chunkKey кодирует позицию чанка в 12-байтовый ключ
func chunkKey(pos vec.Vec3) []byte {
	key := make([]byte, 12)
	binary.LittleEndian.PutUint32(key[0:], uint32(int32(pos.X)))
	binary.LittleEndian.PutUint32(key[4:], uint32(int32(pos.Y)))
	binary.LittleEndian.PutUint32(key[8:], uint32(int32(pos.Z)))
	return key
}

// get читает запись; при отсутствии возвращает ErrNotFound
func (rs *RegionStorage) get(txn *badger.Txn, pos vec.Vec3) ([]byte, error) {
	item, err := txn.Get(chunkKey(pos))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения из BadgerDB: %w", err)
	}
	return item.ValueCopy(nil)
}

func (rs *RegionStorage) view(fn func(txn *badger.Txn) error) error {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	if rs.closed {
		return ErrClosed
	}
	return rs.db.View(fn)
}

// ChunkStateInStorage возвращает сохранённое состояние чанка, разбирая только заголовок
func (rs *RegionStorage) ChunkStateInStorage(pos vec.Vec3) (world.ChunkState, error) {
	start := time.Now()
	state := world.StateEmpty
	err := rs.view(func(txn *badger.Txn) error {
		item, err := txn.Get(chunkKey(pos))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			state, err = DecodeState(val)
			return err
		})
	})
	rs.metrics.observe(BackendRegion, opState, start, err)
	if err != nil {
		return 0, fmt.Errorf("состояние чанка %v: %w", pos, err)
	}
	return state, nil
}

// LoadChunk заполняет чанк из базы
func (rs *RegionStorage) LoadChunk(c *world.Chunk) error {
	start := time.Now()
	pos := c.Position()
	err := rs.view(func(txn *badger.Txn) error {
		data, err := rs.get(txn, pos)
		if err != nil {
			return err
		}
		rs.metrics.bytes.WithLabelValues(BackendRegion, "read").Add(float64(len(data)))
		return DecodeInto(c, data)
	})
	rs.metrics.observe(BackendRegion, opLoad, start, err)
	if err != nil {
		return fmt.Errorf("чанк %v: %w", pos, err)
	}
	return nil
}

// LoadChunks загружает чанки в одной транзакции чтения. Ошибка одного чанка
// не прерывает загрузку остальных; ошибки объединяются.
func (rs *RegionStorage) LoadChunks(chunks []*world.Chunk) error {
	return rs.LoadChunksContext(context.Background(), chunks)
}

// LoadChunksContext как LoadChunks, с трассировкой в ctx
func (rs *RegionStorage) LoadChunksContext(ctx context.Context, chunks []*world.Chunk) (err error) {
	_, span := startSpan(ctx, "RegionStorage.LoadChunks", BackendRegion, len(chunks))
	defer func() { endSpan(span, err) }()

	var errs []error
	err = rs.view(func(txn *badger.Txn) error {
		for _, c := range chunks {
			start := time.Now()
			pos := c.Position()
			data, err := rs.get(txn, pos)
			if err == nil {
				err = DecodeInto(c, data)
			}
			rs.metrics.observe(BackendRegion, opLoad, start, err)
			if err != nil {
				errs = append(errs, fmt.Errorf("чанк %v: %w", pos, err))
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	return errors.Join(errs...)
}

// SaveChunk синхронно сохраняет чанк и снимает пометку грязности
func (rs *RegionStorage) SaveChunk(c *world.Chunk) error {
	start := time.Now()
	data, gen := EncodeChunk(c)
	pos := c.Position()

	rs.mu.RLock()
	var err error
	if rs.closed {
		err = ErrClosed
	} else {
		err = rs.db.Update(func(txn *badger.Txn) error {
			return txn.Set(chunkKey(pos), data)
		})
	}
	rs.mu.RUnlock()

	rs.metrics.observe(BackendRegion, opSave, start, err)
	if err != nil {
		return fmt.Errorf("ошибка сохранения чанка %v в BadgerDB: %w", pos, err)
	}
	rs.metrics.bytes.WithLabelValues(BackendRegion, "write").Add(float64(len(data)))
	c.MarkSaved(gen)
	return nil
}

// SaveChunks сохраняет чанки пакетами транзакций не более batchSize записей
func (rs *RegionStorage) SaveChunks(chunks []*world.Chunk) error {
	return rs.SaveChunksContext(context.Background(), chunks)
}

// pendingSave закодированный чанк, ожидающий коммита транзакции
type pendingSave struct {
	chunk *world.Chunk
	gen   uint64
}

// SaveChunksContext как SaveChunks, с трассировкой в ctx.
// Чанки из закоммиченных транзакций помечаются сохранёнными даже при ошибке
// в последующих.
func (rs *RegionStorage) SaveChunksContext(ctx context.Context, chunks []*world.Chunk) (err error) {
	_, span := startSpan(ctx, "RegionStorage.SaveChunks", BackendRegion, len(chunks))
	defer func() { endSpan(span, err) }()

	rs.mu.RLock()
	defer rs.mu.RUnlock()
	if rs.closed {
		return ErrClosed
	}

	start := time.Now()
	defer func() { rs.metrics.observe(BackendRegion, opSave, start, err) }()

	txn := rs.db.NewTransaction(true)
	defer func() { txn.Discard() }()
	var batch []pendingSave

	commit := func() error {
		if err := txn.Commit(); err != nil {
			return fmt.Errorf("коммит пакета из %d чанков: %w", len(batch), err)
		}
		for _, p := range batch {
			p.chunk.MarkSaved(p.gen)
		}
		batch = batch[:0]
		txn = rs.db.NewTransaction(true)
		return nil
	}

	for _, c := range chunks {
		data, gen := EncodeChunk(c)
		key := chunkKey(c.Position())

		err := txn.Set(key, data)
		if errors.Is(err, badger.ErrTxnTooBig) {
			if err := commit(); err != nil {
				return err
			}
			err = txn.Set(key, data)
		}
		if err != nil {
			return fmt.Errorf("запись чанка %v: %w", c.Position(), err)
		}
		rs.metrics.bytes.WithLabelValues(BackendRegion, "write").Add(float64(len(data)))

		batch = append(batch, pendingSave{chunk: c, gen: gen})
		if len(batch) >= rs.batchSize {
			if err := commit(); err != nil {
				return err
			}
		}
	}
	if len(batch) > 0 {
		return commit()
	}
	return nil
}

// SaveChunkAsync запускает фоновое сохранение чанка
func (rs *RegionStorage) SaveChunkAsync(c *world.Chunk) bool {
	return rs.saver.start(c)
}

// ExistsInStorage сообщает, есть ли запись для позиции
func (rs *RegionStorage) ExistsInStorage(pos vec.Vec3) (bool, error) {
	exists := false
	err := rs.view(func(txn *badger.Txn) error {
		_, err := txn.Get(chunkKey(pos))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		exists = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("проверка чанка %v: %w", pos, err)
	}
	return exists, nil
}

// Wait ждёт завершения запущенных фоновых сохранений
func (rs *RegionStorage) Wait() {
	rs.saver.wait()
}

// Close дожидается фоновых сохранений и закрывает базу
func (rs *RegionStorage) Close() error {
	rs.saver.shutdown()

	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.closed {
		return nil
	}
	rs.closed = true
	return rs.db.Close()
}
