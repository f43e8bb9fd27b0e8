package observability

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/process"
)

// ProcessStats снимок ресурсов процесса
type ProcessStats struct {
	RSSMB       float64
	HeapAllocMB float64
	CPUPercent  float64
	Goroutines  int
	NumGC       uint32
}

// ProcessSampler снимает статистику текущего процесса
type ProcessSampler struct {
	StartTime time.Time
	proc      *process.Process
}

// NewProcessSampler создаёт сэмплер для текущего процесса
func NewProcessSampler() (*ProcessSampler, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, fmt.Errorf("процесс %d: %w", os.Getpid(), err)
	}
	return &ProcessSampler{StartTime: time.Now(), proc: proc}, nil
}

// Sample возвращает текущую статистику. Если CPU процесса недоступен,
// подставляется общая загрузка системы.
func (s *ProcessSampler) Sample() (ProcessStats, error) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	stats := ProcessStats{
		HeapAllocMB: float64(m.HeapAlloc) / 1024 / 1024,
		Goroutines:  runtime.NumGoroutine(),
		NumGC:       m.NumGC,
	}

	mem, err := s.proc.MemoryInfo()
	if err != nil {
		return stats, fmt.Errorf("память процесса: %w", err)
	}
	stats.RSSMB = float64(mem.RSS) / 1024 / 1024

	cpuPercent, err := s.proc.CPUPercent()
	if err != nil {
		cpuPercents, err := cpu.Percent(100*time.Millisecond, false)
		if err != nil || len(cpuPercents) == 0 {
			return stats, err
		}
		cpuPercent = cpuPercents[0]
	}
	stats.CPUPercent = cpuPercent
	return stats, nil
}

// Uptime возвращает время работы в читаемом виде
func (s *ProcessSampler) Uptime() string {
	uptime := time.Since(s.StartTime)

	hours := int(uptime.Hours())
	minutes := int(uptime.Minutes()) % 60
	seconds := int(uptime.Seconds()) % 60

	if hours > 0 {
		return fmt.Sprintf("%dч %dм %dс", hours, minutes, seconds)
	} else if minutes > 0 {
		return fmt.Sprintf("%dм %dс", minutes, seconds)
	}
	return fmt.Sprintf("%dс", seconds)
}
