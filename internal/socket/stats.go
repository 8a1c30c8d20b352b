package socket

import (
	"log/slog"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/glizzus/soundlink/internal/loss"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"
)

type Stats struct {
	Op             string           `json:"op"`
	Players        int              `json:"players"`
	PlayingPlayers int              `json:"playingPlayers"`
	Uptime         int64            `json:"uptime"`
	Memory         MemoryStats      `json:"memory"`
	CPU            CPUStats         `json:"cpu"`
	FrameStats     *FrameStatsTotal `json:"frameStats,omitempty"`
}

type MemoryStats struct {
	Free       uint64 `json:"free"`
	Used       uint64 `json:"used"`
	Allocated  uint64 `json:"allocated"`
	Reservable uint64 `json:"reservable"`
}

type CPUStats struct {
	Cores      int     `json:"cores"`
	SystemLoad float64 `json:"systemLoad"`
	NodeLoad   float64 `json:"nodeLoad"`
}

// FrameStatsTotal averages the last minute of frame delivery over playing
// players whose statistics are usable.
type FrameStatsTotal struct {
	Sent    int `json:"sent"`
	Nulled  int `json:"nulled"`
	Deficit int `json:"deficit"`
}

// hostSampler reads host and process load. Load values are fractions of the
// whole machine.
type hostSampler struct {
	once sync.Once
	proc *process.Process
}

func (h *hostSampler) cpu() CPUStats {
	stats := CPUStats{Cores: runtime.NumCPU()}
	if cores, err := cpu.Counts(true); err == nil && cores > 0 {
		stats.Cores = cores
	}

	if percent, err := cpu.Percent(0, false); err == nil && len(percent) > 0 {
		stats.SystemLoad = percent[0] / 100
	} else if err != nil {
		slog.Debug("Failed to read system load", "error", err)
	}

	h.once.Do(func() {
		proc, err := process.NewProcess(int32(os.Getpid()))
		if err != nil {
			slog.Debug("Failed to open own process", "error", err)
			return
		}
		h.proc = proc
	})
	if h.proc != nil {
		if percent, err := h.proc.Percent(0); err == nil {
			stats.NodeLoad = percent / 100 / float64(stats.Cores)
		}
	}
	return stats
}

func (h *hostSampler) memory() MemoryStats {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	stats := MemoryStats{
		Used:      ms.HeapAlloc,
		Allocated: ms.Sys,
		Free:      ms.Sys - ms.HeapAlloc,
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		stats.Reservable = vm.Available
	} else {
		slog.Debug("Failed to read virtual memory", "error", err)
	}
	return stats
}

// frameStats returns nil when no playing player has usable statistics.
func (c *Context) frameStats() *FrameStatsTotal {
	var total FrameStatsTotal
	var count int
	for _, p := range c.PlayingPlayers() {
		counter := p.LossCounter()
		if !counter.IsDataUsable() {
			continue
		}
		sent := counter.LastMinuteSent()
		nulled := counter.LastMinuteNulled()
		total.Sent += sent
		total.Nulled += nulled
		total.Deficit += loss.ExpectedPacketCountPerMin - (sent + nulled)
		count++
	}
	if count == 0 {
		return nil
	}
	return &FrameStatsTotal{
		Sent:    total.Sent / count,
		Nulled:  total.Nulled / count,
		Deficit: total.Deficit / count,
	}
}

func uptime(start, now time.Time) int64 {
	return now.Sub(start).Milliseconds()
}
