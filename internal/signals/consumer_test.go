package signals

import (
	"context"
	"testing"

	"github.com/Netflix/dispatch-sub003/internal/database"
	"github.com/Netflix/dispatch-sub003/internal/plugins"
	"github.com/Netflix/dispatch-sub003/internal/testhelpers"
)

func TestConsumeProject_EnqueuesBatch(t *testing.T) {
	p := newPipeline(t)
	p.seed.Consumer.Push(
		plugins.RawSignal{MessageID: "m1", Payload: database.JSONB{"variant": "test-variant", "host": "web-1"}},
		plugins.RawSignal{MessageID: "m2", Payload: database.JSONB{"variant": "test-variant", "host": "web-2"}},
	)

	q := NewQueue(p.proc, 0)
	c := NewConsumer(p.reg, q)
	accepted, err := c.ConsumeProject(context.Background(), p.project.ID, 10)
	if err != nil {
		t.Fatalf("ConsumeProject failed: %v", err)
	}
	if accepted != 2 {
		t.Errorf("accepted = %d, want 2", accepted)
	}
	if q.Len() != 2 {
		t.Errorf("queue Len = %d, want 2", q.Len())
	}
	if len(p.seed.Consumer.Queued) != 0 {
		t.Errorf("producer should be drained, %d left", len(p.seed.Consumer.Queued))
	}
}

func TestConsumeProject_NoPluginIsQuiet(t *testing.T) {
	db := testhelpers.SetupDB(t)
	project := testhelpers.SeedProject(t, db)
	reg := plugins.NewRegistry(db)

	c := NewConsumer(reg, NewQueue(nil, 0))
	accepted, err := c.ConsumeProject(context.Background(), project.ID, 10)
	if err != nil {
		t.Fatalf("missing consumer plugin must not error: %v", err)
	}
	if accepted != 0 {
		t.Errorf("accepted = %d, want 0", accepted)
	}
}

func TestConsumeProject_FullQueueDropsRemainder(t *testing.T) {
	p := newPipeline(t)
	p.seed.Consumer.Push(
		plugins.RawSignal{MessageID: "m1", Payload: database.JSONB{"variant": "test-variant", "host": "web-1"}},
		plugins.RawSignal{MessageID: "m2", Payload: database.JSONB{"variant": "test-variant", "host": "web-2"}},
	)

	q := NewQueue(p.proc, 1)
	c := NewConsumer(p.reg, q)
	accepted, err := c.ConsumeProject(context.Background(), p.project.ID, 10)
	if err != nil {
		t.Fatalf("ConsumeProject failed: %v", err)
	}
	if accepted != 1 {
		t.Errorf("accepted = %d, want 1 (second dropped)", accepted)
	}
}

func TestConsumeProject_BatchSizeRespected(t *testing.T) {
	p := newPipeline(t)
	for i := 0; i < 5; i++ {
		p.seed.Consumer.Push(plugins.RawSignal{Payload: database.JSONB{"variant": "test-variant"}})
	}

	q := NewQueue(p.proc, 0)
	c := NewConsumer(p.reg, q)
	accepted, err := c.ConsumeProject(context.Background(), p.project.ID, 3)
	if err != nil {
		t.Fatalf("ConsumeProject failed: %v", err)
	}
	if accepted != 3 {
		t.Errorf("accepted = %d, want 3", accepted)
	}
	if len(p.seed.Consumer.Queued) != 2 {
		t.Errorf("producer should hold 2 remaining, has %d", len(p.seed.Consumer.Queued))
	}
}
