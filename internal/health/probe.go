package health

import (
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/agent-hub/backend/internal/session"
)

// ClientCounter reports connected protocol clients.
type ClientCounter interface {
	ClientCount() int
}

// Probe samples host and own-process resource usage for /api/health.
// Sampling failures leave the affected fields at zero; the probe itself
// never fails.
type Probe struct {
	start   time.Time
	proc    *process.Process
	store   *session.Store
	clients ClientCounter
}

func NewProbe(store *session.Store, clients ClientCounter) *Probe {
	proc, _ := process.NewProcess(int32(os.Getpid()))
	return &Probe{
		start:   time.Now(),
		proc:    proc,
		store:   store,
		clients: clients,
	}
}

type Snapshot struct {
	Status         string  `json:"status"`
	UptimeSeconds  int64   `json:"uptimeSeconds"`
	Goroutines     int     `json:"goroutines"`
	Sessions       int     `json:"sessions"`
	Clients        int     `json:"clients"`
	HostCPUPercent float64 `json:"hostCpuPercent"`
	HostMemPercent float64 `json:"hostMemPercent"`
	ProcRSSBytes   uint64  `json:"procRssBytes"`
	ProcCPUPercent float64 `json:"procCpuPercent"`
}

func (p *Probe) Snapshot() Snapshot {
	snap := Snapshot{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(p.start).Seconds()),
		Goroutines:    runtime.NumGoroutine(),
	}
	if p.store != nil {
		snap.Sessions = p.store.Count()
	}
	if p.clients != nil {
		snap.Clients = p.clients.ClientCount()
	}

	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		snap.HostCPUPercent = percents[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		snap.HostMemPercent = vm.UsedPercent
	}
	if p.proc != nil {
		if mi, err := p.proc.MemoryInfo(); err == nil {
			snap.ProcRSSBytes = mi.RSS
		}
		if pct, err := p.proc.CPUPercent(); err == nil {
			snap.ProcCPUPercent = pct
		}
	}
	return snap
}
