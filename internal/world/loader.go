package world

import (
	"fmt"
	"sync"
	"time"

	"github.com/annel0/chunkstream/internal/logging"
	"github.com/annel0/chunkstream/internal/vec"
)

// DefaultTickBudget бюджет времени загрузчика на один кадр
const DefaultTickBudget = 10 * time.Millisecond

const noParent = -1

// loaderTask задача «довести чанк до состояния wanted».
// Задачи живут в арене Loader.tasks и ссылаются друг на друга индексами.
// Задача с pending > 0 ждёт завершения задач-зависимостей и не находится
// в рабочем списке; последняя завершившаяся зависимость возвращает её туда.
type loaderTask struct {
	chunk   *Chunk
	pin     *Pin
	wanted  ChunkState
	parent  int
	pending int
	live    bool
}

// dependency требование к соседнему чанку
type dependency struct {
	pos   vec.Vec3
	state ChunkState
}

// Loader планировщик задач, доводящий чанки до нужного состояния с учётом
// зависимостей от соседей. Рабочий список обрабатывается в одном потоке за вызов
// Update; несколько загрузчиков могут работать над одним реестром.
type Loader struct {
	mu        sync.Mutex
	registry  *Registry
	pool      *Pool
	generator TerrainGenerator
	logger    *logging.Logger
	metrics   *Metrics

	tasks []loaderTask
	free  []int
	work  []int // LIFO, вершина в конце среза

	parked     int
	onDrawable func(c *Chunk)
	now        func() time.Time
}

// NewLoader создаёт загрузчик
func NewLoader(registry *Registry, pool *Pool, generator TerrainGenerator, logger *logging.Logger, metrics *Metrics) *Loader {
	if logger == nil {
		logger = logging.Discard()
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Loader{
		registry:  registry,
		pool:      pool,
		generator: generator,
		logger:    logger,
		metrics:   metrics,
		now:       time.Now,
	}
}

// OnDrawable задаёт обработчик, вызываемый перед переводом чанка в StateDrawable
// (например, построение меша внешним рендером). При нескольких загрузчиках
// обработчик может быть вызван для чанка повторно.
func (l *Loader) OnDrawable(fn func(c *Chunk)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onDrawable = fn
}

// Request ставит задачу довести чанк в позиции pos до состояния wanted.
// Чанк создаётся в реестре, если его там нет, и закрепляется до завершения задачи.
func (l *Loader) Request(pos vec.Vec3, wanted ChunkState) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.push(l.newTask(pos, wanted, noParent))
}

// Pending возвращает число незавершённых задач (в очереди и ожидающих зависимостей)
func (l *Loader) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.work) + l.parked
}

// Update обрабатывает задачи, пока очередь не опустеет или не истечёт бюджет.
// Возвращает число выполненных шагов.
func (l *Loader) Update(budget time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	start := l.now()
	steps := 0
	for len(l.work) > 0 {
		l.step()
		steps++
		if l.now().Sub(start) >= budget {
			break
		}
	}
	l.metrics.pendingTasks.Set(float64(len(l.work) + l.parked))
	return steps
}

// LoadAllChunks синхронно выполняет все задачи до конца
func (l *Loader) LoadAllChunks() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	steps := 0
	for len(l.work) > 0 {
		l.step()
		steps++
	}
	if l.parked != 0 {
		panic(fmt.Sprintf("world: после опустошения очереди осталось %d ожидающих задач", l.parked))
	}
	l.metrics.pendingTasks.Set(0)
	return steps
}

// AcquireLoaded синхронно доводит чанк до состояния wanted и возвращает его
// закреплённым. Вызывающий обязан вызвать Release у возвращённого Pin.
func (l *Loader) AcquireLoaded(pos vec.Vec3, wanted ChunkState) (*Chunk, *Pin, error) {
	c, pin := l.registry.Acquire(pos)
	l.Request(pos, wanted)
	l.LoadAllChunks()

	if err := c.LoadErr(); err != nil {
		pin.Release()
		return nil, nil, err
	}
	if c.State() < wanted {
		pin.Release()
		return nil, nil, fmt.Errorf("чанк %v остановился в состоянии %s", pos, c.State())
	}
	return c, pin, nil
}

func (l *Loader) newTask(pos vec.Vec3, wanted ChunkState, parent int) int {
	c, pin := l.registry.Acquire(pos)
	t := loaderTask{chunk: c, pin: pin, wanted: wanted, parent: parent, live: true}

	if n := len(l.free); n > 0 {
		idx := l.free[n-1]
		l.free = l.free[:n-1]
		l.tasks[idx] = t
		return idx
	}
	l.tasks = append(l.tasks, t)
	return len(l.tasks) - 1
}

func (l *Loader) push(idx int) {
	l.work = append(l.work, idx)
}

func (l *Loader) pop() int {
	n := len(l.work)
	idx := l.work[n-1]
	l.work = l.work[:n-1]
	return idx
}

// step выполняет один шаг для задачи на вершине рабочего списка
func (l *Loader) step() {
	idx := l.pop()
	c := l.tasks[idx].chunk
	wanted := l.tasks[idx].wanted

	state := c.State()
	if state >= wanted || c.LoadErr() != nil {
		l.finish(idx)
		return
	}

	next := state.Next()
	if deps := l.missingDependencies(c, next); len(deps) > 0 {
		// задача паркуется родителем для задач-зависимостей
		l.tasks[idx].pending = len(deps)
		l.parked++
		for _, d := range deps {
			l.push(l.newTask(d.pos, d.state, idx))
		}
		return
	}

	if err := l.advance(c, state, next); err != nil {
		if c.failAt(state, err) {
			l.logger.Error("Чанк %v не продвинут в %s: %v", c.Position(), next, err)
			l.metrics.loadErrs.Inc()
			l.finish(idx)
			return
		}
		l.logger.Debug("Чанк %v уже продвинут другим загрузчиком, ошибка %v отброшена", c.Position(), err)
	}

	if c.State() >= wanted {
		l.finish(idx)
		return
	}
	l.push(idx)
}

// missingDependencies возвращает соседей, которые должны подняться до нужного
// состояния раньше, чем чанк перейдёт в next. Соседи всегда запрашиваются
// в состоянии ниже next, поэтому граф задач ацикличен.
func (l *Loader) missingDependencies(c *Chunk, next ChunkState) []dependency {
	if next != StateDrawable {
		return nil
	}
	var deps []dependency
	for _, npos := range c.Position().FaceNeighbors() {
		n, ok := l.registry.Peek(npos)
		if ok && (n.State() >= StateBlockGenerated || n.LoadErr() != nil) {
			continue
		}
		deps = append(deps, dependency{pos: npos, state: StateBlockGenerated})
	}
	return deps
}

// advance выполняет ровно один переход состояния from -> next.
// Каждый переход срабатывает, только если чанк всё ещё в состоянии from,
// поэтому несколько загрузчиков над одним реестром не откатывают друг друга.
func (l *Loader) advance(c *Chunk, from, next ChunkState) error {
	switch next {
	case StateEmpty:
		c.tryAdvance(from, StateEmpty, nil)
	case StateGeneratedTerrain:
		// пул может сразу поднять чанк до сохранённого состояния
		return l.pool.Populate(c)
	case StateBlockGenerated:
		c.tryAdvance(from, StateBlockGenerated, func(w ChunkWriter) {
			placeFeatures(l.generator, w)
		})
	case StateDrawable:
		if l.onDrawable != nil {
			l.onDrawable(c)
		}
		c.tryAdvance(from, StateDrawable, nil)
	default:
		return fmt.Errorf("неизвестный переход в %s", next)
	}
	return nil
}

// finish завершает задачу и, если это была последняя зависимость родителя,
// возвращает родителя на вершину рабочего списка
func (l *Loader) finish(idx int) {
	t := &l.tasks[idx]
	parent := t.parent
	t.pin.Release()
	*t = loaderTask{parent: noParent}
	l.free = append(l.free, idx)

	if parent == noParent {
		return
	}
	p := &l.tasks[parent]
	if !p.live || p.pending <= 0 {
		panic(fmt.Sprintf("world: задача %d завершила зависимость неактивного родителя %d", idx, parent))
	}
	p.pending--
	if p.pending == 0 {
		l.parked--
		l.push(parent)
	}
}
