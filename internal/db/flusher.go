package db

import (
	"context"
	"log"
	"sync"
	"time"
)

// Flusher periodically checks a Buffer for time-based flushes and performs
// a final drain on shutdown. It provides context-aware lifecycle management
// around the buffer's age check.
type Flusher struct {
	buffer   *Buffer
	interval time.Duration
	logger   *log.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewFlusher returns a Flusher checking buffer every interval. A nil logger
// falls back to log.Default().
func NewFlusher(buffer *Buffer, interval time.Duration, logger *log.Logger) *Flusher {
	if logger == nil {
		logger = log.Default()
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &Flusher{
		buffer:   buffer,
		interval: interval,
		logger:   logger,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Run starts the flush loop. It blocks until the context is cancelled or
// Stop() is called, draining the buffer before returning.
func (f *Flusher) Run(ctx context.Context) error {
	f.mu.Lock()
	if f.running {
		f.mu.Unlock()
		return nil // already running
	}
	f.running = true
	f.stopCh = make(chan struct{})
	f.doneCh = make(chan struct{})
	f.mu.Unlock()

	defer func() {
		close(f.doneCh)
		f.mu.Lock()
		f.running = false
		f.mu.Unlock()
	}()

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			f.drain()
			return nil
		case <-f.stopCh:
			f.drain()
			return nil
		case <-ticker.C:
			if err := f.buffer.FlushIfStale(); err != nil {
				// The batch remains buffered; the next tick retries it.
				f.logger.Printf("flusher: flush failed, keeping batch buffered: %v", err)
			}
		}
	}
}

// Stop requests the flusher to stop and waits for the final drain. Safe to
// call multiple times.
func (f *Flusher) Stop() {
	f.mu.Lock()
	if !f.running {
		f.mu.Unlock()
		return
	}
	select {
	case <-f.stopCh:
	default:
		close(f.stopCh)
	}
	f.mu.Unlock()

	<-f.doneCh
}

func (f *Flusher) drain() {
	if err := f.buffer.FlushAll(); err != nil {
		f.logger.Printf("flusher: final drain failed: %v", err)
	}
}
