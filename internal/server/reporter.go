package server

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/process"
)

// Reporter periodically logs how many peers are connected and what the
// process costs.  It only reads, so a missed tick loses nothing.
type Reporter struct {
	log      *slog.Logger
	server   *Server
	interval time.Duration
}

func NewReporter(log *slog.Logger, server *Server, interval time.Duration) *Reporter {
	return &Reporter{log: log, server: server, interval: interval}
}

// Run logs one line per interval until ctx is done.
func (r *Reporter) Run(ctx context.Context) error {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.report(p)
		}
	}
}

func (r *Reporter) report(p *process.Process) {
	attrs := []any{
		"peers", r.server.Peers(),
		"goroutines", runtime.NumGoroutine(),
	}
	if mem, err := p.MemoryInfo(); err != nil {
		r.log.Warn("Failed to read process memory", "error", err)
	} else {
		attrs = append(attrs, "rss_bytes", mem.RSS)
	}
	if cpu, err := p.CPUPercent(); err != nil {
		r.log.Warn("Failed to read process CPU", "error", err)
	} else {
		attrs = append(attrs, "cpu_percent", cpu)
	}
	r.log.Info("Relay stats", attrs...)
}
