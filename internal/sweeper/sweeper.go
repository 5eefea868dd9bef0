// Package sweeper expires idle exam sessions on a fixed interval.
package sweeper

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"proctor/pkg/interfaces"
)

// Sweeper periodically removes sessions whose timeout deadline has passed.
type Sweeper struct {
	registry interfaces.SessionRegistry
	interval time.Duration
	logger   *zap.Logger

	mu       sync.Mutex
	running  bool
	shutdown chan struct{}
	done     chan struct{}
}

func New(registry interfaces.SessionRegistry, interval time.Duration, logger *zap.Logger) *Sweeper {
	return &Sweeper{
		registry: registry,
		interval: interval,
		logger:   logger,
	}
}

// Start launches the sweep loop. Calling Start on a running sweeper is a no-op.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.shutdown = make(chan struct{})
	s.done = make(chan struct{})

	go s.run(ctx, s.shutdown, s.done)
	s.logger.Info("sweeper started", zap.Duration("interval", s.interval))
}

// Stop halts the sweep loop and waits for it to exit.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	shutdown, done := s.shutdown, s.done
	s.mu.Unlock()

	close(shutdown)
	<-done
	s.logger.Info("sweeper stopped")
}

func (s *Sweeper) run(ctx context.Context, shutdown <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-shutdown:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Sweeper) sweep() {
	removed := s.registry.Sweep(time.Now())
	if removed > 0 {
		s.logger.Info("expired sessions removed", zap.Int("count", removed))
	}
}
