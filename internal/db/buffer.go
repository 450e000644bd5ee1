package db

import (
	"sync"
	"time"
)

// PositionRow is a buffered positions insert.
type PositionRow struct {
	MMSI      string
	Timestamp string
	Lat       float64
	Lon       float64
	SOG       float64
	COG       float64
	Heading   float64
}

// EncounterPositionRow is a buffered encounter_positions insert.
type EncounterPositionRow struct {
	EncounterID int64
	MMSI        string
	Timestamp   string
	Lat         float64
	Lon         float64
	SOG         float64
	COG         float64
	Heading     float64
}

// BatchWriter performs the bulk writes a Buffer flushes into. *DB satisfies
// it; tests substitute a failing writer.
type BatchWriter interface {
	InsertPositions(batch []PositionRow) error
	InsertEncounterPositions(batch []EncounterPositionRow) error
}

// Buffer accumulates position and encounter-position rows and flushes them
// in batches, triggered by size or elapsed time. On a failed flush the batch
// is pushed back to the front of its queue in original order; nothing is
// partially written or silently dropped.
//
// A single mutex guards both queues. Contention is low: there is one
// ingestion path and one periodic flusher.
type Buffer struct {
	mu sync.Mutex

	writer    BatchWriter
	batchSize int
	maxAge    time.Duration

	positions    []PositionRow
	encPositions []EncounterPositionRow

	// bufferedSince is the wall-clock time of the first insert after an
	// empty state; zero while everything is flushed.
	bufferedSince time.Time

	now func() time.Time
}

// NewBuffer returns a Buffer flushing into w at the given batch size, with
// maxAge bounding how long rows may sit before a time-based flush is due.
func NewBuffer(w BatchWriter, batchSize int, maxAge time.Duration) *Buffer {
	if batchSize <= 0 {
		batchSize = 100
	}
	if maxAge <= 0 {
		maxAge = 5 * time.Second
	}
	return &Buffer{
		writer:    w,
		batchSize: batchSize,
		maxAge:    maxAge,
		now:       time.Now,
	}
}

// AddPosition enqueues a position row, flushing the position queue
// synchronously once it reaches the batch size. The row stays buffered if
// the flush fails.
func (b *Buffer) AddPosition(row PositionRow) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.markBuffered()
	b.positions = append(b.positions, row)

	if len(b.positions) >= b.batchSize {
		return b.flushPositionsLocked()
	}
	return nil
}

// AddEncounterPosition enqueues an encounter position row, flushing that
// queue synchronously once it reaches the batch size.
func (b *Buffer) AddEncounterPosition(row EncounterPositionRow) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.markBuffered()
	b.encPositions = append(b.encPositions, row)

	if len(b.encPositions) >= b.batchSize {
		return b.flushEncounterPositionsLocked()
	}
	return nil
}

// FlushAll drains both queues. Used by the periodic flusher and for the
// final drain at shutdown.
func (b *Buffer) FlushAll() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.flushPositionsLocked(); err != nil {
		return err
	}
	return b.flushEncounterPositionsLocked()
}

// FlushIfStale drains both queues when the oldest buffered row has exceeded
// the configured age. It is a no-op while nothing is due.
func (b *Buffer) FlushIfStale() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.bufferedSince.IsZero() || b.now().Sub(b.bufferedSince) < b.maxAge {
		return nil
	}
	if err := b.flushPositionsLocked(); err != nil {
		return err
	}
	return b.flushEncounterPositionsLocked()
}

// Depth reports the current queue lengths, for stats and backlog
// observability.
func (b *Buffer) Depth() (positions, encounterPositions int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.positions), len(b.encPositions)
}

func (b *Buffer) markBuffered() {
	if b.bufferedSince.IsZero() {
		b.bufferedSince = b.now()
	}
}

func (b *Buffer) clearBufferedLocked() {
	if len(b.positions) == 0 && len(b.encPositions) == 0 {
		b.bufferedSince = time.Time{}
	}
}

func (b *Buffer) flushPositionsLocked() error {
	if len(b.positions) == 0 {
		b.clearBufferedLocked()
		return nil
	}

	batch := b.positions
	b.positions = nil

	if err := b.writer.InsertPositions(batch); err != nil {
		// Re-buffer the whole batch ahead of anything enqueued meanwhile.
		b.positions = append(batch, b.positions...)
		return err
	}

	b.clearBufferedLocked()
	return nil
}

func (b *Buffer) flushEncounterPositionsLocked() error {
	if len(b.encPositions) == 0 {
		b.clearBufferedLocked()
		return nil
	}

	batch := b.encPositions
	b.encPositions = nil

	if err := b.writer.InsertEncounterPositions(batch); err != nil {
		b.encPositions = append(batch, b.encPositions...)
		return err
	}

	b.clearBufferedLocked()
	return nil
}
