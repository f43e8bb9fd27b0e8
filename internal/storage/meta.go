package storage

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// metaKey зарезервированный ключ метаданных в RegionStorage.
// Длина отличается от 12-байтовых ключей чанков, поэтому пересечений нет.
var metaKey = []byte("meta:world")

// metaFileName файл метаданных в каталоге FileStorage
const metaFileName = "world.yaml"

// WorldMeta метаданные мира, хранимые рядом с записями чанков
type WorldMeta struct {
	ID            string    `yaml:"id"`
	FormatVersion int32     `yaml:"format_version"`
	Seed          int64     `yaml:"seed"`
	Backend       string    `yaml:"backend"`
	CreatedAt     time.Time `yaml:"created_at"`
}

// NewWorldMeta создаёт метаданные нового мира
func NewWorldMeta(seed int64, backend string) WorldMeta {
	return WorldMeta{
		ID:            uuid.NewString(),
		FormatVersion: FormatVersion,
		Seed:          seed,
		Backend:       backend,
		CreatedAt:     time.Now().UTC().Truncate(time.Second),
	}
}

func (m WorldMeta) marshal() ([]byte, error) {
	data, err := yaml.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("сериализация метаданных мира: %w", err)
	}
	return data, nil
}

// parseWorldMeta разбирает метаданные и проверяет версию формата
func parseWorldMeta(data []byte) (WorldMeta, error) {
	var m WorldMeta
	if err := yaml.Unmarshal(data, &m); err != nil {
		return WorldMeta{}, fmt.Errorf("%w: метаданные мира: %v", ErrCorrupt, err)
	}
	if _, err := uuid.Parse(m.ID); err != nil {
		return WorldMeta{}, fmt.Errorf("%w: идентификатор мира %q", ErrCorrupt, m.ID)
	}
	if m.FormatVersion != FormatVersion {
		return WorldMeta{}, fmt.Errorf("%w: мир в формате %d, поддерживается %d",
			ErrVersionMismatch, m.FormatVersion, FormatVersion)
	}
	return m, nil
}
