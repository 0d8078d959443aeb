package signals

import (
	"context"
	"log"
	"sync"

	"github.com/Netflix/dispatch-sub003/internal/database"
	"github.com/Netflix/dispatch-sub003/internal/errs"
)

// DefaultQueueDepth bounds the ingest queue; DefaultWorkers sizes the pool
// draining it.
const (
	DefaultQueueDepth = 1000
	DefaultWorkers    = 4
)

// item is one queued payload.
type item struct {
	projectID uint
	raw       database.JSONB
}

// Queue decouples ingestion from processing: producers enqueue raw
// payloads and a fixed worker pool drains them through the processor.
// A full queue rejects instead of blocking the producer.
type Queue struct {
	processor *Processor

	mu    sync.Mutex
	items []item
	ready chan struct{}
	depth int

	wg   sync.WaitGroup
	stop chan struct{}
	once sync.Once
}

// NewQueue creates a queue of the given depth, 0 meaning the default.
func NewQueue(processor *Processor, depth int) *Queue {
	if depth <= 0 {
		depth = DefaultQueueDepth
	}
	return &Queue{
		processor: processor,
		ready:     make(chan struct{}, depth),
		depth:     depth,
		stop:      make(chan struct{}),
	}
}

// Enqueue appends a payload, rejecting with a conflict when the queue is
// at depth.
func (q *Queue) Enqueue(projectID uint, raw database.JSONB) error {
	q.mu.Lock()
	if len(q.items) >= q.depth {
		q.mu.Unlock()
		return &errs.ConflictError{Msg: "signal queue is full"}
	}
	q.items = append(q.items, item{projectID: projectID, raw: raw})
	q.mu.Unlock()
	q.ready <- struct{}{}
	return nil
}

// Len reports the number of queued payloads.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Start launches the worker pool. Workers run until Stop.
func (q *Queue) Start(ctx context.Context, workers int) {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go q.work(ctx)
	}
}

// Stop halts the workers after in-flight items finish.
func (q *Queue) Stop() {
	q.once.Do(func() { close(q.stop) })
	q.wg.Wait()
}

func (q *Queue) work(ctx context.Context) {
	defer q.wg.Done()
	for {
		select {
		case <-q.stop:
			return
		case <-ctx.Done():
			return
		case <-q.ready:
			q.mu.Lock()
			if len(q.items) == 0 {
				q.mu.Unlock()
				continue
			}
			next := q.items[0]
			q.items = q.items[1:]
			q.mu.Unlock()

			if _, err := q.processor.Process(ctx, next.projectID, next.raw); err != nil {
				log.Printf("Signal processing failed for project %d: %v", next.projectID, err)
			}
		}
	}
}
