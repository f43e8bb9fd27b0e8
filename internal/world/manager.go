package world

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/annel0/chunkstream/internal/logging"
	"github.com/annel0/chunkstream/internal/vec"
	"github.com/annel0/chunkstream/internal/world/block"
)

// Options параметры менеджера чанков
type Options struct {
	Storage      ChunkStorage
	Generator    TerrainGenerator
	Logger       *logging.Logger
	Metrics      *Metrics
	TickBudget   time.Duration // 0 означает DefaultTickBudget
	PoolCapacity int
	SyncLoader   bool // догружать все задачи синхронно в каждом тике
}

// Manager управляет набором чанков в памяти: по желаемому набору позиций
// ставит загрузку новых и выгрузку ненужных, а в каждом тике продвигает загрузчик.
type Manager struct {
	registry *Registry
	pool     *Pool
	loader   *Loader
	unloader *Unloader
	storage  ChunkStorage
	logger   *logging.Logger
	metrics  *Metrics

	tickBudget time.Duration
	syncLoader bool

	mu            sync.Mutex
	relevant      map[vec.Vec3]struct{}
	pendingUnload map[vec.Vec3]struct{}
	onUpdate      func(c *Chunk, dt time.Duration)
}

// Stats снимок состояния менеджера
type Stats struct {
	Resident       int
	Relevant       int
	PendingTasks   int
	PendingUnloads int
	Pool           PoolStats
}

// NewManager создаёт менеджер чанков
func NewManager(opts Options) (*Manager, error) {
	if opts.Storage == nil {
		return nil, errors.New("world: не задано хранилище чанков")
	}
	if opts.Generator == nil {
		return nil, errors.New("world: не задан генератор мира")
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics(nil)
	}
	if opts.TickBudget <= 0 {
		opts.TickBudget = DefaultTickBudget
	}

	pool := NewPool(opts.PoolCapacity, opts.Storage, opts.Generator, opts.Metrics)
	registry := NewRegistry(pool)

	return &Manager{
		registry:      registry,
		pool:          pool,
		loader:        NewLoader(registry, pool, opts.Generator, opts.Logger, opts.Metrics),
		unloader:      NewUnloader(registry, pool, opts.Storage, opts.Logger, opts.Metrics),
		storage:       opts.Storage,
		logger:        opts.Logger,
		metrics:       opts.Metrics,
		tickBudget:    opts.TickBudget,
		syncLoader:    opts.SyncLoader,
		relevant:      make(map[vec.Vec3]struct{}),
		pendingUnload: make(map[vec.Vec3]struct{}),
	}, nil
}

// Loader возвращает загрузчик менеджера
func (m *Manager) Loader() *Loader { return m.loader }

// Unloader возвращает выгрузчик менеджера
func (m *Manager) Unloader() *Unloader { return m.unloader }

// Registry возвращает реестр чанков
func (m *Manager) Registry() *Registry { return m.registry }

// OnChunkUpdate задаёт покадровое обновление для каждого отрисовываемого чанка
func (m *Manager) OnChunkUpdate(fn func(c *Chunk, dt time.Duration)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onUpdate = fn
}

// GetChunk возвращает чанк в позиции pos, создавая его при отсутствии.
// Ссылку не стоит хранить долго: реестр остаётся источником истины.
func (m *Manager) GetChunk(pos vec.Vec3) *Chunk {
	return m.registry.GetOrCreate(pos)
}

// ChunkState возвращает состояние чанка, если он в памяти
func (m *Manager) ChunkState(pos vec.Vec3) (ChunkState, bool) {
	c, ok := m.registry.Peek(pos)
	if !ok {
		return 0, false
	}
	return c.State(), true
}

// UpdateRelevantChunks принимает полный желаемый набор позиций в памяти.
// Новые позиции ставятся на загрузку до StateDrawable, остальные чанки реестра
// предлагаются выгрузчику.
func (m *Manager) UpdateRelevantChunks(positions []vec.Vec3) {
	next := make(map[vec.Vec3]struct{}, len(positions))
	var toLoad []vec.Vec3

	m.mu.Lock()
	for _, pos := range positions {
		pos = pos.ChunkOrigin()
		if _, dup := next[pos]; dup {
			continue
		}
		next[pos] = struct{}{}
		if _, was := m.relevant[pos]; !was {
			toLoad = append(toLoad, pos)
		}
		delete(m.pendingUnload, pos)
	}
	for _, pos := range m.registry.Positions() {
		if _, keep := next[pos]; !keep {
			m.pendingUnload[pos] = struct{}{}
		}
	}
	m.relevant = next
	m.mu.Unlock()

	for _, pos := range toLoad {
		m.loader.Request(pos, StateDrawable)
	}
	if len(toLoad) > 0 {
		m.logger.Debug("Запрошено %d новых чанков", len(toLoad))
	}

	m.drainUnloads()
}

// drainUnloads повторяет попытки выгрузки ожидающих позиций
func (m *Manager) drainUnloads() {
	m.mu.Lock()
	candidates := make([]vec.Vec3, 0, len(m.pendingUnload))
	for pos := range m.pendingUnload {
		candidates = append(candidates, pos)
	}
	m.mu.Unlock()

	var reload []vec.Vec3
	for _, pos := range candidates {
		if !m.unloader.TryUnload(pos) {
			continue
		}
		m.mu.Lock()
		delete(m.pendingUnload, pos)
		if _, ok := m.relevant[pos]; ok {
			// позиция снова стала нужной, пока шла выгрузка
			reload = append(reload, pos)
		}
		m.mu.Unlock()
	}
	for _, pos := range reload {
		m.loader.Request(pos, StateDrawable)
	}
}

// Tick выполняет порцию работы загрузчика в пределах бюджета, повторяет
// выгрузки и вызывает покадровые обновления чанков
func (m *Manager) Tick(dt time.Duration) {
	start := time.Now()

	if m.syncLoader {
		m.loader.LoadAllChunks()
	} else {
		m.loader.Update(m.tickBudget)
	}
	m.drainUnloads()

	m.mu.Lock()
	onUpdate := m.onUpdate
	m.mu.Unlock()
	if onUpdate != nil {
		for _, c := range m.registry.Snapshot(func(c *Chunk) bool { return c.State() >= StateDrawable }) {
			onUpdate(c, dt)
		}
	}

	m.metrics.resident.Set(float64(m.registry.Len()))
	m.metrics.tickDuration.Observe(time.Since(start).Seconds())
}

// BlockAt возвращает блок по мировым координатам, при необходимости синхронно
// загружая чанк до StateBlockGenerated
func (m *Manager) BlockAt(worldPos vec.Vec3) (block.BlockData, error) {
	c, pin, err := m.loader.AcquireLoaded(worldPos.ChunkOrigin(), StateBlockGenerated)
	if err != nil {
		return block.Air, fmt.Errorf("блок %v: %w", worldPos, err)
	}
	defer pin.Release()
	return c.BlockAt(worldPos.LocalInChunk()), nil
}

// SetBlock устанавливает блок по мировым координатам и помечает чанк грязным
func (m *Manager) SetBlock(worldPos vec.Vec3, b block.BlockData) error {
	c, pin, err := m.loader.AcquireLoaded(worldPos.ChunkOrigin(), StateBlockGenerated)
	if err != nil {
		return fmt.Errorf("блок %v: %w", worldPos, err)
	}
	defer pin.Release()
	c.SetBlock(worldPos.LocalInChunk(), b)
	return nil
}

// SaveAll синхронно сохраняет все грязные чанки пакетом.
// Чанки с уже идущим фоновым сохранением пропускаются.
func (m *Manager) SaveAll() error {
	var pins []*Pin
	chunks := m.registry.Snapshot(func(c *Chunk) bool {
		if !c.IsDirty() {
			return false
		}
		pin, ok := c.TryPinSaver()
		if !ok {
			return false
		}
		pins = append(pins, pin)
		return true
	})
	defer func() {
		for _, p := range pins {
			p.Release()
		}
	}()

	if len(chunks) == 0 {
		return nil
	}
	if err := m.storage.SaveChunks(chunks); err != nil {
		return fmt.Errorf("сохранение %d чанков: %w", len(chunks), err)
	}
	m.logger.Info("Сохранено чанков: %d", len(chunks))
	return nil
}

// Stats возвращает снимок состояния менеджера
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	relevant := len(m.relevant)
	pendingUnloads := len(m.pendingUnload)
	m.mu.Unlock()

	return Stats{
		Resident:       m.registry.Len(),
		Relevant:       relevant,
		PendingTasks:   m.loader.Pending(),
		PendingUnloads: pendingUnloads,
		Pool:           m.pool.Stats(),
	}
}

// RelevantAround возвращает позиции чанков в кубе радиуса radius (в чанках)
// вокруг мировой точки center
func RelevantAround(center vec.Vec3, radius int) []vec.Vec3 {
	origin := center.ChunkOrigin()
	side := 2*radius + 1
	out := make([]vec.Vec3, 0, side*side*side)
	for dy := -radius; dy <= radius; dy++ {
		for dz := -radius; dz <= radius; dz++ {
			for dx := -radius; dx <= radius; dx++ {
				out = append(out, origin.Add(vec.Vec3{X: dx, Y: dy, Z: dz}.Scale(ChunkEdge)))
			}
		}
	}
	return out
}
