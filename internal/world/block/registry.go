package block

import (
	"fmt"
	"sync"
)

// Registry хранит соответствие имён блоков и их ID.
// Передаётся явно в генератор и инструменты вместо глобального реестра.
type Registry struct {
	mu    sync.RWMutex
	byID  map[BlockID]string
	byKey map[string]BlockID
}

// NewRegistry создаёт пустой реестр
func NewRegistry() *Registry {
	return &Registry{
		byID:  make(map[BlockID]string),
		byKey: make(map[string]BlockID),
	}
}

// NewDefaultRegistry создаёт реестр со стандартным набором блоков
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	for id, name := range map[BlockID]string{
		AirBlockID:    "air",
		StoneBlockID:  "stone",
		GrassBlockID:  "grass",
		WaterBlockID:  "water",
		SandBlockID:   "sand",
		DirtBlockID:   "dirt",
		FlowerBlockID: "flower",
		LogBlockID:    "log",
		LeavesBlockID: "leaves",
	} {
		// стандартный набор не содержит конфликтов
		_ = r.Register(id, name)
	}
	return r
}

// Register добавляет блок в реестр
func (r *Registry) Register(id BlockID, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byID[id]; ok {
		return fmt.Errorf("ID %d уже занят блоком %q", id, existing)
	}
	if existing, ok := r.byKey[name]; ok {
		return fmt.Errorf("имя %q уже занято блоком %d", name, existing)
	}
	r.byID[id] = name
	r.byKey[name] = id
	return nil
}

// ID возвращает ID блока по имени
func (r *Registry) ID(name string) (BlockID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byKey[name]
	return id, ok
}

// MustID возвращает ID блока по имени или паникует
func (r *Registry) MustID(name string) BlockID {
	id, ok := r.ID(name)
	if !ok {
		panic(fmt.Sprintf("блок %q не зарегистрирован", name))
	}
	return id
}

// Name возвращает имя блока по ID
func (r *Registry) Name(id BlockID) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.byID[id]
	return name, ok
}

// IsValidBlockID проверяет, является ли ID допустимым идентификатором блока
func (r *Registry) IsValidBlockID(id BlockID) bool {
	_, ok := r.Name(id)
	return ok
}
