package sse

import (
	"context"
	"log/slog"
	"time"
)

// Heartbeat sends keep-alive frames on a long-lived subscription so idle
// connections survive proxies. SSE writes a comment line, WebSocket a ping.
type Heartbeat struct {
	cancel  context.CancelFunc
	dead    chan struct{}
	stopped chan struct{}
}

// StartHeartbeat calls beat every interval until Stop is called or beat
// fails. A failed beat means the client is gone and closes Dead.
func StartHeartbeat(interval time.Duration, beat func() error, logger *slog.Logger) *Heartbeat {
	ctx, cancel := context.WithCancel(context.Background())
	hb := &Heartbeat{
		cancel:  cancel,
		dead:    make(chan struct{}),
		stopped: make(chan struct{}),
	}

	go func() {
		defer close(hb.stopped)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := beat(); err != nil {
					logger.Debug("heartbeat failed, client gone", "error", err)
					close(hb.dead)
					return
				}
			}
		}
	}()
	return hb
}

// Dead is closed once a beat has failed
func (hb *Heartbeat) Dead() <-chan struct{} { return hb.dead }

// Stop ends the heartbeat and waits for its goroutine. Safe to call twice.
func (hb *Heartbeat) Stop() {
	hb.cancel()
	<-hb.stopped
}
