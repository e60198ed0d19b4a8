// Package connectivity tracks whether the remote is reachable and whether
// the device is on an unmetered (Wi-Fi) network.
package connectivity

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Checker answers the two questions the sync and media layers ask.
type Checker interface {
	IsOnline() bool
	IsOnWifi() bool
}

// Prober checks that the remote answers.
type Prober interface {
	Health(ctx context.Context) error
}

const DefaultProbeInterval = 15 * time.Second

// Monitor probes the remote periodically. Wi-Fi cannot be detected portably,
// so it is a setting the user flips.
type Monitor struct {
	prober   Prober
	interval time.Duration
	logger   *zap.Logger

	online atomic.Bool
	wifi   atomic.Bool

	mu       sync.Mutex
	onChange []func(online bool)
}

func NewMonitor(p Prober, interval time.Duration, wifi bool, logger *zap.Logger) *Monitor {
	if interval <= 0 {
		interval = DefaultProbeInterval
	}
	m := &Monitor{prober: p, interval: interval, logger: logger.Named("connectivity")}
	m.wifi.Store(wifi)
	return m
}

func (m *Monitor) IsOnline() bool { return m.online.Load() }
func (m *Monitor) IsOnWifi() bool { return m.wifi.Load() }

// SetWifi records whether the current network is Wi-Fi.
func (m *Monitor) SetWifi(on bool) { m.wifi.Store(on) }

// OnChange registers fn for online/offline transitions.
func (m *Monitor) OnChange(fn func(online bool)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChange = append(m.onChange, fn)
}

// Run probes immediately and then every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	m.Probe(ctx)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Probe(ctx)
		}
	}
}

// Probe checks the remote once and reports whether it is reachable.
func (m *Monitor) Probe(ctx context.Context) bool {
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	err := m.prober.Health(pctx)
	if ctx.Err() != nil {
		return m.online.Load()
	}
	online := err == nil
	if m.online.Swap(online) == online {
		return online
	}
	if online {
		m.logger.Info("remote reachable")
	} else {
		m.logger.Warn("remote unreachable", zap.Error(err))
	}
	m.mu.Lock()
	fns := append([]func(bool){}, m.onChange...)
	m.mu.Unlock()
	for _, fn := range fns {
		fn(online)
	}
	return online
}

// Static is a fixed Checker.
type Static struct {
	Online bool
	Wifi   bool
}

func (s Static) IsOnline() bool { return s.Online }
func (s Static) IsOnWifi() bool { return s.Wifi }
