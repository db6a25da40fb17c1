package peersync

import (
	"sync"
	"time"
)

// DefaultHeartbeatInterval is the interval used when none is configured.
const DefaultHeartbeatInterval = 30 * time.Second

// HeartbeatLoop is a running liveness loop. Peers silent for more than three
// intervals are disconnected.
type HeartbeatLoop struct {
	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// Stop ends the loop and waits for it to exit. Safe to call more than once.
func (h *HeartbeatLoop) Stop() {
	h.once.Do(func() { close(h.stop) })
	<-h.done
}

// StartHeartbeat starts the liveness loop. If one is already running it is
// returned unchanged.
func (e *Engine) StartHeartbeat(interval time.Duration) *HeartbeatLoop {
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if h := e.heartbeat; h != nil {
		select {
		case <-h.done:
		default:
			return h
		}
	}

	h := &HeartbeatLoop{stop: make(chan struct{}), done: make(chan struct{})}
	e.heartbeat = h
	go func() {
		defer close(h.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				e.heartbeatTick(interval)
			case <-h.stop:
				return
			}
		}
	}()
	return h
}

// StopHeartbeat stops the running liveness loop, if any.
func (e *Engine) StopHeartbeat() {
	e.mu.Lock()
	h := e.heartbeat
	e.heartbeat = nil
	e.mu.Unlock()

	if h != nil {
		h.Stop()
	}
}
