// Package connectivity decides whether the remote database is reachable.
package connectivity

import (
	"context"
	"time"

	"go.uber.org/zap"

	"trakn-sync-service/internal/logger"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

// Listener receives the probe outcome. Coordinator.SetOnline satisfies it and ignores
// repeated values.
type Listener interface {
	SetOnline(online bool)
}

type Monitor struct {
	pinger   Pinger
	listener Listener
	interval time.Duration
	timeout  time.Duration
}

func NewMonitor(pinger Pinger, listener Listener, interval, timeout time.Duration) *Monitor {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Monitor{
		pinger:   pinger,
		listener: listener,
		interval: interval,
		timeout:  timeout,
	}
}

// Run probes once immediately and then every interval until ctx is done. A non-positive
// interval disables probing and leaves connectivity to manual overrides.
func (m *Monitor) Run(ctx context.Context) error {
	if m.interval <= 0 {
		logger.Log.Info("Connectivity probing disabled")
		return nil
	}

	m.Probe(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.Probe(ctx)
		}
	}
}

// Probe pings the remote once and reports the result.
func (m *Monitor) Probe(ctx context.Context) bool {
	pctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	err := m.pinger.Ping(pctx)
	if err != nil && ctx.Err() != nil {
		return false
	}
	if err != nil {
		logger.Log.Debug("Remote probe failed", zap.Error(err))
	}

	online := err == nil
	m.listener.SetOnline(online)
	return online
}
