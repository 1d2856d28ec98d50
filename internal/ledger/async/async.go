package async

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/rizztempo/rizztempo/internal/ledger"
)

// Store wraps a ledger.Store so that session end never waits on journal I/O.
// Entries are queued in memory and written in batches by a background worker.
// Entries still queued when the process dies are lost; the journal is advisory.
type Store struct {
	underlying    ledger.Store
	entryChan     chan ledger.Entry
	batchSize     int
	flushInterval time.Duration
	wg            sync.WaitGroup
	stopOnce      sync.Once
	stopChan      chan struct{}
	logger        *log.Logger

	mu      sync.Mutex
	dropped int64
}

// Config configures the async journal behaviour.
type Config struct {
	BatchSize     int           // entries per write burst (default 16)
	FlushInterval time.Duration // maximum time an entry waits (default 1s)
	ChannelBuffer int           // queue size before entries are dropped (default 256)
	Logger        *log.Logger
}

// New wraps an existing store with a queued writer.
func New(underlying ledger.Store, cfg Config) *Store {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 16
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = time.Second
	}
	if cfg.ChannelBuffer <= 0 {
		cfg.ChannelBuffer = 256
	}

	s := &Store{
		underlying:    underlying,
		entryChan:     make(chan ledger.Entry, cfg.ChannelBuffer),
		batchSize:     cfg.BatchSize,
		flushInterval: cfg.FlushInterval,
		stopChan:      make(chan struct{}),
		logger:        cfg.Logger,
	}
	s.wg.Add(1)
	go s.batchWriter()
	return s
}

func (s *Store) batchWriter() {
	defer s.wg.Done()

	batch := make([]ledger.Entry, 0, s.batchSize)
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		ctx := context.Background()
		written := 0
		for _, entry := range batch {
			if err := s.underlying.Record(ctx, entry); err != nil {
				s.logf("ERROR writing journal entry: %v", err)
				continue
			}
			written++
		}
		if written != len(batch) {
			s.logf("flushed %d/%d journal entries", written, len(batch))
		}
		batch = batch[:0]
	}

	for {
		select {
		case entry := <-s.entryChan:
			batch = append(batch, entry)
			if len(batch) >= s.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-s.stopChan:
			for {
				select {
				case entry := <-s.entryChan:
					batch = append(batch, entry)
				default:
					flush()
					return
				}
			}
		}
	}
}

func (s *Store) logf(format string, args ...any) {
	if s.logger != nil {
		s.logger.Printf("[async-journal] "+format, args...)
	}
}

// Record validates and queues an entry; it never blocks. A full queue drops
// the entry and counts it.
func (s *Store) Record(_ context.Context, entry ledger.Entry) error {
	if err := entry.Validate(); err != nil {
		return err
	}
	select {
	case s.entryChan <- entry:
	default:
		s.mu.Lock()
		s.dropped++
		s.mu.Unlock()
		s.logf("WARNING: queue full, dropping entry for %s", entry.UserID)
	}
	return nil
}

// Dropped returns how many entries were discarded because the queue was full.
func (s *Store) Dropped() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Summary delegates to the underlying store; queued entries are not included.
func (s *Store) Summary(ctx context.Context, userID string) (ledger.Summary, error) {
	return s.underlying.Summary(ctx, userID)
}

// ListRecent delegates to the underlying store.
func (s *Store) ListRecent(ctx context.Context, userID string, limit int) ([]ledger.Entry, error) {
	return s.underlying.ListRecent(ctx, userID, limit)
}

// Ping delegates to the underlying store when it can be pinged.
func (s *Store) Ping(ctx context.Context) error {
	if p, ok := s.underlying.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Close writes whatever is queued and closes the underlying store.
func (s *Store) Close() error {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
	return s.underlying.Close()
}
