package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config корневая структура конфигурации стриминга чанков.
type Config struct {
	Stream    StreamConfig    `yaml:"stream"`
	Storage   StorageConfig   `yaml:"storage"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Log       LogConfig       `yaml:"log"`
}

type StreamConfig struct {
	Seed         int64 `yaml:"seed"`
	ViewRadius   int   `yaml:"view_radius"`    // Радиус в чанках вокруг наблюдателя
	TickBudgetMs int   `yaml:"tick_budget_ms"` // Бюджет загрузчика на один тик
	PoolCapacity int   `yaml:"pool_capacity"`  // Максимум свободных чанков в пуле
	SyncLoader   bool  `yaml:"sync_loader"`    // Догружать всё синхронно в каждом тике
}

// Бэкенды хранилища
const (
	BackendRegion = "region"
	BackendFile   = "file"
	BackendNull   = "null"
)

type StorageConfig struct {
	Backend      string `yaml:"backend"`
	Path         string `yaml:"path"`
	BatchSize    int    `yaml:"batch_size"`    // Чанков на одну транзакцию
	ZstdLevel    int    `yaml:"zstd_level"`    // 1..4, см. zstd.EncoderLevel
	WriteWorkers int    `yaml:"write_workers"` // Параллельные записи файлового бэкенда
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"service_name"`
}

type LogConfig struct {
	Dir          string `yaml:"dir"`
	ConsoleLevel string `yaml:"console_level"`
	FileLevel    string `yaml:"file_level"`
}

// Default возвращает конфигурацию по умолчанию
func Default() *Config {
	return &Config{
		Stream: StreamConfig{
			Seed:         1337,
			ViewRadius:   4,
			TickBudgetMs: 10,
			PoolCapacity: 1024,
		},
		Storage: StorageConfig{
			Backend:      BackendRegion,
			Path:         "data/world",
			BatchSize:    256,
			ZstdLevel:    2,
			WriteWorkers: 4,
		},
		Metrics: MetricsConfig{
			Port: 2112,
		},
		Telemetry: TelemetryConfig{
			ServiceName: "chunkstream",
		},
		Log: LogConfig{
			Dir:          "logs",
			ConsoleLevel: "info",
			FileLevel:    "debug",
		},
	}
}

// TickBudget возвращает бюджет тика загрузчика
func (s StreamConfig) TickBudget() time.Duration {
	return time.Duration(s.TickBudgetMs) * time.Millisecond
}

// GetMetricsPort возвращает порт метрик с поддержкой fallback значений
func (m *MetricsConfig) GetMetricsPort() int {
	return getPortWithEnvFallback(m.Port, "CHUNKSTREAM_METRICS_PORT", 2112)
}

// getPortWithEnvFallback возвращает порт с приоритетом: config -> env -> default
func getPortWithEnvFallback(configPort int, envVar string, defaultPort int) int {
	if configPort > 0 {
		return configPort
	}

	if envVal := os.Getenv(envVar); envVal != "" {
		if port, err := strconv.Atoi(envVal); err == nil && port > 0 {
			return port
		}
	}

	return defaultPort
}

// Validate проверяет значения конфигурации
func (c *Config) Validate() error {
	if c.Stream.ViewRadius < 0 {
		return fmt.Errorf("stream.view_radius должен быть >= 0, получено %d", c.Stream.ViewRadius)
	}
	if c.Stream.TickBudgetMs <= 0 {
		return fmt.Errorf("stream.tick_budget_ms должен быть > 0, получено %d", c.Stream.TickBudgetMs)
	}
	if c.Stream.PoolCapacity < 0 {
		return fmt.Errorf("stream.pool_capacity должен быть >= 0, получено %d", c.Stream.PoolCapacity)
	}
	switch c.Storage.Backend {
	case BackendRegion, BackendFile:
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path обязателен для бэкенда %q", c.Storage.Backend)
		}
	case BackendNull:
	default:
		return fmt.Errorf("неизвестный storage.backend %q", c.Storage.Backend)
	}
	if c.Storage.BatchSize <= 0 {
		return fmt.Errorf("storage.batch_size должен быть > 0, получено %d", c.Storage.BatchSize)
	}
	if c.Storage.ZstdLevel < 1 || c.Storage.ZstdLevel > 4 {
		return fmt.Errorf("storage.zstd_level должен быть в диапазоне 1..4, получено %d", c.Storage.ZstdLevel)
	}
	return nil
}

// Load читает YAML файл конфигурации поверх значений по умолчанию.
// Если path == "", пытается прочитать из ENV CHUNKSTREAM_CONFIG или возвращает Default().
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("CHUNKSTREAM_CONFIG")
		if path == "" {
			return cfg, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("чтение конфигурации %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("разбор конфигурации %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
