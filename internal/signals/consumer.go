package signals

import (
	"context"
	"log"

	"github.com/Netflix/dispatch-sub003/internal/errs"
	"github.com/Netflix/dispatch-sub003/internal/plugins"
)

// DefaultBatchSize is how many raw signals one consume pass pulls.
const DefaultBatchSize = 100

// Consumer pulls raw signals from the project's consumer plugin into the
// queue.
type Consumer struct {
	registry *plugins.Registry
	queue    *Queue
}

// NewConsumer creates a consumer feeding the given queue.
func NewConsumer(registry *plugins.Registry, queue *Queue) *Consumer {
	return &Consumer{registry: registry, queue: queue}
}

// ConsumeProject pulls one batch for the project and enqueues it. Returns
// how many payloads were accepted. A project without a consumer plugin is
// not an error, it simply has nothing to pull.
func (c *Consumer) ConsumeProject(ctx context.Context, projectID uint, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	consumer, err := c.registry.SignalConsumer(projectID)
	if err != nil {
		if errs.IsNotFound(err) {
			return 0, nil
		}
		return 0, err
	}

	var batch []plugins.RawSignal
	err = plugins.Call(ctx, "signal.consume", 0, func(ctx context.Context) error {
		var callErr error
		batch, callErr = consumer.Consume(ctx, batchSize)
		return callErr
	})
	if err != nil {
		return 0, err
	}

	accepted := 0
	for _, raw := range batch {
		if err := c.queue.Enqueue(projectID, raw.Payload); err != nil {
			log.Printf("Dropping signal %s: %v", raw.MessageID, err)
			continue
		}
		accepted++
	}
	return accepted, nil
}
