package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
	"golang.org/x/sync/errgroup"

	"github.com/annel0/chunkstream/internal/logging"
	"github.com/annel0/chunkstream/internal/vec"
	"github.com/annel0/chunkstream/internal/world"
)

// BackendFile имя бэкенда для метрик и метаданных
const BackendFile = "file"

// FileStorage хранит каждый чанк в отдельном файле, сжатом zstd.
// Сохранение целиком перезаписывает файл через временный файл и rename.
type FileStorage struct {
	dir     string
	encoder *zstd.Encoder
	decoder *zstd.Decoder
	workers int

	mu     sync.RWMutex
	closed bool
	meta   WorldMeta

	logger  *logging.Logger
	metrics *Metrics
	saver   *asyncSaver
}

var _ world.ChunkStorage = (*FileStorage)(nil)

// OpenFileStorage открывает каталог мира, создавая его и метаданные при необходимости
func OpenFileStorage(dir string, opts Options) (*FileStorage, error) {
	opts = opts.withDefaults()

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию %s: %w", dir, err)
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevel(opts.ZstdLevel)))
	if err != nil {
		return nil, fmt.Errorf("инициализация zstd: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("инициализация zstd: %w", err)
	}

	fsg := &FileStorage{
		dir:     dir,
		encoder: enc,
		decoder: dec,
		workers: opts.WriteWorkers,
		logger:  opts.Logger,
		metrics: opts.Metrics,
	}
	fsg.saver = newAsyncSaver(BackendFile, fsg.SaveChunk, opts.Logger, opts.Metrics)

	if fsg.meta, err = fsg.loadOrCreateMeta(opts.Seed); err != nil {
		fsg.closeCodecs()
		return nil, err
	}
	fsg.logger.Info("Открыто файловое хранилище %q (мир %s, сид %d)", dir, fsg.meta.ID, fsg.meta.Seed)
	return fsg, nil
}

func (fsg *FileStorage) loadOrCreateMeta(seed int64) (WorldMeta, error) {
	path := filepath.Join(fsg.dir, metaFileName)
	data, err := os.ReadFile(path)
	if err == nil {
		return parseWorldMeta(data)
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return WorldMeta{}, fmt.Errorf("чтение %s: %w", path, err)
	}

	meta := NewWorldMeta(seed, BackendFile)
	if data, err = meta.marshal(); err != nil {
		return WorldMeta{}, err
	}
	if err := writeFileAtomic(fsg.dir, path, data); err != nil {
		return WorldMeta{}, err
	}
	return meta, nil
}

// Meta возвращает метаданные мира
func (fsg *FileStorage) Meta() WorldMeta {
	return fsg.meta
}

// chunkPath путь к файлу чанка: <dir>/<x> <y> <z>
func (fsg *FileStorage) chunkPath(pos vec.Vec3) string {
	return filepath.Join(fsg.dir, fmt.Sprintf("%d %d %d", pos.X, pos.Y, pos.Z))
}

// read читает и распаковывает запись; при отсутствии файла возвращает ErrNotFound
func (fsg *FileStorage) read(pos vec.Vec3) ([]byte, error) {
	fsg.mu.RLock()
	defer fsg.mu.RUnlock()
	if fsg.closed {
		return nil, ErrClosed
	}

	compressed, err := os.ReadFile(fsg.chunkPath(pos))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения файла чанка: %w", err)
	}
	data, err := fsg.decoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: распаковка: %v", ErrCorrupt, err)
	}
	fsg.metrics.bytes.WithLabelValues(BackendFile, "read").Add(float64(len(data)))
	return data, nil
}

// ChunkStateInStorage возвращает сохранённое состояние чанка по заголовку записи
func (fsg *FileStorage) ChunkStateInStorage(pos vec.Vec3) (world.ChunkState, error) {
	start := time.Now()
	data, err := fsg.read(pos)
	if errors.Is(err, ErrNotFound) {
		fsg.metrics.observe(BackendFile, opState, start, nil)
		return world.StateEmpty, nil
	}
	var state world.ChunkState
	if err == nil {
		state, err = DecodeState(data)
	}
	fsg.metrics.observe(BackendFile, opState, start, err)
	if err != nil {
		return 0, fmt.Errorf("состояние чанка %v: %w", pos, err)
	}
	return state, nil
}

// LoadChunk заполняет чанк из его файла
func (fsg *FileStorage) LoadChunk(c *world.Chunk) error {
	start := time.Now()
	pos := c.Position()
	data, err := fsg.read(pos)
	if err == nil {
		err = DecodeInto(c, data)
	}
	fsg.metrics.observe(BackendFile, opLoad, start, err)
	if err != nil {
		return fmt.Errorf("чанк %v: %w", pos, err)
	}
	return nil
}

// LoadChunks загружает чанки параллельно; ошибки отдельных чанков объединяются
func (fsg *FileStorage) LoadChunks(chunks []*world.Chunk) error {
	return fsg.LoadChunksContext(context.Background(), chunks)
}

// LoadChunksContext как LoadChunks, с трассировкой в ctx
func (fsg *FileStorage) LoadChunksContext(ctx context.Context, chunks []*world.Chunk) (err error) {
	_, span := startSpan(ctx, "FileStorage.LoadChunks", BackendFile, len(chunks))
	defer func() { endSpan(span, err) }()

	errs := make([]error, len(chunks))
	var g errgroup.Group
	g.SetLimit(fsg.workers)
	for i, c := range chunks {
		i, c := i, c
		g.Go(func() error {
			errs[i] = fsg.LoadChunk(c)
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// SaveChunk сжимает запись и атомарно заменяет файл чанка
func (fsg *FileStorage) SaveChunk(c *world.Chunk) error {
	start := time.Now()
	data, gen := EncodeChunk(c)
	pos := c.Position()

	err := fsg.write(pos, data)
	fsg.metrics.observe(BackendFile, opSave, start, err)
	if err != nil {
		return fmt.Errorf("сохранение чанка %v: %w", pos, err)
	}
	fsg.metrics.bytes.WithLabelValues(BackendFile, "write").Add(float64(len(data)))
	c.MarkSaved(gen)
	return nil
}

func (fsg *FileStorage) write(pos vec.Vec3, data []byte) error {
	fsg.mu.RLock()
	defer fsg.mu.RUnlock()
	if fsg.closed {
		return ErrClosed
	}
	compressed := fsg.encoder.EncodeAll(data, make([]byte, 0, len(data)/4))
	return writeFileAtomic(fsg.dir, fsg.chunkPath(pos), compressed)
}

// SaveChunks сохраняет чанки параллельно не более чем в workers потоков.
// Возвращает первую ошибку; остальные чанки при этом всё равно сохраняются.
func (fsg *FileStorage) SaveChunks(chunks []*world.Chunk) error {
	return fsg.SaveChunksContext(context.Background(), chunks)
}

// SaveChunksContext как SaveChunks, с трассировкой в ctx
func (fsg *FileStorage) SaveChunksContext(ctx context.Context, chunks []*world.Chunk) (err error) {
	_, span := startSpan(ctx, "FileStorage.SaveChunks", BackendFile, len(chunks))
	defer func() { endSpan(span, err) }()

	var g errgroup.Group
	g.SetLimit(fsg.workers)
	for _, c := range chunks {
		c := c
		g.Go(func() error {
			return fsg.SaveChunk(c)
		})
	}
	return g.Wait()
}

// SaveChunkAsync запускает фоновое сохранение чанка
func (fsg *FileStorage) SaveChunkAsync(c *world.Chunk) bool {
	return fsg.saver.start(c)
}

// ExistsInStorage сообщает, есть ли файл чанка
func (fsg *FileStorage) ExistsInStorage(pos vec.Vec3) (bool, error) {
	fsg.mu.RLock()
	defer fsg.mu.RUnlock()
	if fsg.closed {
		return false, ErrClosed
	}
	_, err := os.Stat(fsg.chunkPath(pos))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("проверка чанка %v: %w", pos, err)
	}
	return true, nil
}

// Wait ждёт завершения запущенных фоновых сохранений
func (fsg *FileStorage) Wait() {
	fsg.saver.wait()
}

// Close дожидается фоновых сохранений и освобождает кодеки
func (fsg *FileStorage) Close() error {
	fsg.saver.shutdown()

	fsg.mu.Lock()
	defer fsg.mu.Unlock()
	if fsg.closed {
		return nil
	}
	fsg.closed = true
	fsg.closeCodecs()
	return nil
}

func (fsg *FileStorage) closeCodecs() {
	fsg.encoder.Close()
	fsg.decoder.Close()
}

// writeFileAtomic пишет данные во временный файл в dir и переименовывает его в path
func writeFileAtomic(dir, path string, data []byte) error {
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("создание временного файла: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("запись %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("закрытие %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("переименование в %s: %w", path, err)
	}
	return nil
}
