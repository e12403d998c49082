package store

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const defaultMaxPending = 1024

// RetryQueue shields hand settlement from persistence outages: a
// failed write is parked and replayed on a timer instead of blocking
// or losing the result.
type RetryQueue struct {
	log      logrus.FieldLogger
	gw       Gateway
	interval time.Duration

	mu      sync.Mutex
	pending []HandRecord

	stop chan struct{}
	done chan struct{}
}

func NewRetryQueue(gw Gateway, log logrus.FieldLogger, interval time.Duration) *RetryQueue {
	return &RetryQueue{
		log:      log,
		gw:       gw,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Record attempts the write immediately and parks it on failure.
func (q *RetryQueue) Record(ctx context.Context, rec HandRecord) {
	err := q.gw.RecordHandResult(ctx, rec)
	if err == nil {
		return
	}
	q.log.WithError(err).WithField("hand", rec.HandID).Warn("hand result write failed, queued for retry")
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) >= defaultMaxPending {
		dropped := q.pending[0]
		q.pending = q.pending[1:]
		q.log.WithField("hand", dropped.HandID).Error("retry queue full, dropping oldest hand result")
	}
	q.pending = append(q.pending, rec)
}

// Start launches the background flusher. Stop drains once more and
// then returns.
func (q *RetryQueue) Start() {
	go func() {
		defer close(q.done)
		ticker := time.NewTicker(q.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				q.Flush(context.Background())
			case <-q.stop:
				q.Flush(context.Background())
				return
			}
		}
	}()
}

func (q *RetryQueue) Stop() {
	close(q.stop)
	<-q.done
}

// Flush retries everything parked; failures stay queued.
func (q *RetryQueue) Flush(ctx context.Context) {
	q.mu.Lock()
	batch := q.pending
	q.pending = nil
	q.mu.Unlock()
	if len(batch) == 0 {
		return
	}

	kept := batch[:0]
	for _, rec := range batch {
		if err := q.gw.RecordHandResult(ctx, rec); err != nil {
			kept = append(kept, rec)
		}
	}
	if len(kept) > 0 {
		q.log.WithField("pending", len(kept)).Warn("hand results still unflushed")
		q.mu.Lock()
		q.pending = append(kept, q.pending...)
		q.mu.Unlock()
	}
}

func (q *RetryQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
