package services

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"

	"pantau/internal/logging"
	"pantau/internal/models"
)

const (
	GB = 1024 * 1024 * 1024
	MB = 1024 * 1024
)

// ClientCounter reports the number of connected WebSocket clients.
type ClientCounter interface {
	Count() int
}

// SystemService samples host and process resource usage of the server itself.
type SystemService struct {
	clients ClientCounter
	started time.Time
	logger  zerolog.Logger
}

// NewSystemService creates the sampler. clients may be nil.
func NewSystemService(clients ClientCounter, logger zerolog.Logger) *SystemService {
	return &SystemService{
		clients: clients,
		started: time.Now(),
		logger:  logging.Component(logger, "system"),
	}
}

// Status collects one snapshot. CPU, memory and hostname are required; the
// remaining readings degrade to zero values.
func (s *SystemService) Status() (*models.SystemStatus, error) {
	percent, err := cpu.Percent(0, false)
	if err != nil {
		return nil, fmt.Errorf("cpu usage: %w", err)
	}
	vm, err := mem.VirtualMemory()
	if err != nil {
		return nil, fmt.Errorf("memory usage: %w", err)
	}
	info, err := host.Info()
	if err != nil {
		return nil, fmt.Errorf("host info: %w", err)
	}

	status := &models.SystemStatus{
		Hostname:      info.Hostname,
		MemoryTotalGB: float64(vm.Total) / GB,
		MemoryUsedGB:  float64(vm.Used) / GB,
		MemoryPercent: vm.UsedPercent,
		Uptime:        time.Since(s.started).Round(time.Second).String(),
		Timestamp:     time.Now(),
	}
	if len(percent) > 0 {
		status.CPUPercent = percent[0]
	}

	if cores, err := cpu.Counts(true); err == nil {
		status.CoreCount = cores
	} else {
		s.logger.Warn().Err(err).Msg("could not get CPU core count")
	}

	if usage, err := disk.Usage("/"); err == nil {
		status.DiskPercent = usage.UsedPercent
	} else {
		s.logger.Warn().Err(err).Msg("could not get disk usage")
	}

	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if memInfo, err := proc.MemoryInfo(); err == nil {
			status.ProcessRSSMB = float64(memInfo.RSS) / MB
		}
		if threads, err := proc.NumThreads(); err == nil {
			status.ProcessThreads = threads
		}
	} else {
		s.logger.Warn().Err(err).Msg("could not inspect own process")
	}

	if s.clients != nil {
		status.ConnectedClients = s.clients.Count()
	}
	return status, nil
}
