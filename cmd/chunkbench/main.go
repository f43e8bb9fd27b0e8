package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/annel0/chunkstream/internal/config"
	"github.com/annel0/chunkstream/internal/logging"
	"github.com/annel0/chunkstream/internal/observability"
	"github.com/annel0/chunkstream/internal/storage"
	"github.com/annel0/chunkstream/internal/vec"
	"github.com/annel0/chunkstream/internal/world"
	"github.com/annel0/chunkstream/internal/world/block"
)

func main() {
	configPath := flag.String("config", "", "путь к YAML конфигурации (по умолчанию $CHUNKSTREAM_CONFIG)")
	ticks := flag.Int("ticks", 600, "число тиков прогона")
	speed := flag.Int("speed", 2, "скорость наблюдателя, блоков за тик")
	tickRate := flag.Duration("tick", 16*time.Millisecond, "длительность кадра")
	edit := flag.Bool("edit", true, "ставить блок под наблюдателем каждые 20 тиков")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("❌ Ошибка загрузки конфигурации: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("❌ Некорректная конфигурация: %v", err)
	}

	logOpts, err := loggingOptions(cfg.Log)
	if err != nil {
		log.Fatalf("❌ Ошибка конфигурации логирования: %v", err)
	}
	if err := logging.InitDefaultLogger("chunkbench", logOpts); err != nil {
		log.Fatalf("❌ Ошибка инициализации логирования: %v", err)
	}
	defer logging.CloseDefaultLogger()

	loggers := logging.NewLoggerManager(logOpts)
	defer loggers.CloseAll()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, loggers, *ticks, *speed, *tickRate, *edit); err != nil {
		logging.Error("❌ %v", err)
		logging.CloseDefaultLogger()
		os.Exit(1)
	}
}

func loggingOptions(lc config.LogConfig) (logging.Options, error) {
	opts := logging.DefaultOptions()
	opts.Dir = lc.Dir
	if lc.ConsoleLevel != "" {
		lvl, err := logging.ParseLevel(lc.ConsoleLevel)
		if err != nil {
			return opts, err
		}
		opts.MinConsoleLevel = lvl
	}
	if lc.FileLevel != "" {
		lvl, err := logging.ParseLevel(lc.FileLevel)
		if err != nil {
			return opts, err
		}
		opts.MinFileLevel = lvl
	}
	return opts, nil
}

func run(ctx context.Context, cfg *config.Config, loggers *logging.LoggerManager, ticks, speed int, tickRate time.Duration, edit bool) error {
	if cfg.Telemetry.Enabled {
		shutdown, err := observability.InitTelemetry(ctx, cfg.Telemetry.ServiceName, logging.Default())
		if err != nil {
			return fmt.Errorf("инициализация телеметрии: %w", err)
		}
		defer shutdown(context.Background())
	}

	var exporter *observability.MetricsExporter
	var worldMetrics *world.Metrics
	var storageMetrics *storage.Metrics
	if cfg.Metrics.Enabled {
		var err error
		exporter, err = observability.NewMetricsExporter(nil, logging.Default())
		if err != nil {
			return fmt.Errorf("экспортер метрик: %w", err)
		}
		worldMetrics = world.NewMetrics(exporter.Registerer())
		storageMetrics = storage.NewMetrics(exporter.Registerer())
	}

	backend, err := storage.Open(cfg.Storage, storage.Options{
		Logger:  loggers.StorageLogger(),
		Metrics: storageMetrics,
		Seed:    cfg.Stream.Seed,
	})
	if err != nil {
		return fmt.Errorf("открытие хранилища: %w", err)
	}
	defer func() {
		if err := backend.Close(); err != nil {
			logging.Error("Ошибка закрытия хранилища: %v", err)
		}
	}()

	// сид существующего мира важнее сида из конфигурации
	meta := backend.Meta()
	generator := world.NewPerlinGenerator(meta.Seed, block.NewDefaultRegistry())

	manager, err := world.NewManager(world.Options{
		Storage:      backend,
		Generator:    generator,
		Logger:       loggers.LoaderLogger(),
		Metrics:      worldMetrics,
		TickBudget:   cfg.Stream.TickBudget(),
		PoolCapacity: cfg.Stream.PoolCapacity,
		SyncLoader:   cfg.Stream.SyncLoader,
	})
	if err != nil {
		return err
	}

	if exporter != nil {
		exporter.SetProvider(manager)
		exporter.StartHTTP(fmt.Sprintf(":%d", cfg.Metrics.GetMetricsPort()))
		defer exporter.Stop(context.Background())
	}

	worldLog := loggers.WorldLogger()
	worldLog.Info("🌍 Мир %s (сид %d, бэкенд %s), радиус %d, %d тиков",
		meta.ID, meta.Seed, cfg.Storage.Backend, cfg.Stream.ViewRadius, ticks)

	viewer := vec.Vec3Float{X: 0.5, Y: float64(generator.SurfaceHeight(0, 0)) + 2, Z: 0.5}
	step := vec.Vec3Float{X: float64(speed), Z: float64(speed) / 2}
	ticker := time.NewTicker(tickRate)
	defer ticker.Stop()

	start := time.Now()
	lastChunk := vec.Vec3{X: 1}
	for i := 0; i < ticks; i++ {
		select {
		case <-ctx.Done():
			worldLog.Info("📡 Прерывание, завершаем прогон на тике %d", i)
			ticks = i
		case <-ticker.C:
		}
		if ctx.Err() != nil {
			break
		}

		pos := viewer.Floor()
		if origin := pos.ChunkOrigin(); origin != lastChunk {
			manager.UpdateRelevantChunks(world.RelevantAround(pos, cfg.Stream.ViewRadius))
			lastChunk = origin
		}
		manager.Tick(tickRate)

		if edit && i%20 == 0 {
			marker := pos.Add(vec.Vec3{Y: -1})
			if err := manager.SetBlock(marker, block.Of(block.FlowerBlockID)); err != nil {
				worldLog.Warn("Не удалось поставить блок в %v: %v", marker, err)
			}
		}
		viewer = viewer.Add(step)
	}
	elapsed := time.Since(start)

	if err := manager.SaveAll(); err != nil {
		return fmt.Errorf("сохранение мира: %w", err)
	}
	backend.Wait()

	stats := manager.Stats()
	worldLog.Info("✅ %d тиков за %v: в памяти %d чанков, в очереди %d задач, ожидают выгрузки %d",
		ticks, elapsed.Round(time.Millisecond), stats.Resident, stats.PendingTasks, stats.PendingUnloads)
	worldLog.Info("   пул: свободно %d, создано %d, переиспользовано %d",
		stats.Pool.Free, stats.Pool.Allocated, stats.Pool.Reused)

	if sampler, err := observability.NewProcessSampler(); err == nil {
		if ps, err := sampler.Sample(); err == nil {
			worldLog.Info("   процесс: RSS %.1f MB, heap %.1f MB, горутин %d, GC %d",
				ps.RSSMB, ps.HeapAllocMB, ps.Goroutines, ps.NumGC)
		}
	}
	return nil
}
