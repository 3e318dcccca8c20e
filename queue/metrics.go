package queue

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	queueMeter       = otel.Meter("financify/queue")
	opsEnqueued, _   = queueMeter.Int64Counter("queue.operations.enqueued", metric.WithDescription("Operations added to the offline queue"))
	opsCompleted, _  = queueMeter.Int64Counter("queue.operations.completed", metric.WithDescription("Operations applied to the remote backend"))
	opsRetried, _    = queueMeter.Int64Counter("queue.operations.retried", metric.WithDescription("Failed attempts that will be retried"))
	opsFailed, _     = queueMeter.Int64Counter("queue.operations.failed", metric.WithDescription("Operations that reached a terminal failure"))
	drainDuration, _ = queueMeter.Float64Histogram("queue.drain.duration", metric.WithDescription("Queue drain pass duration in seconds"), metric.WithUnit("s"))
)

func record(c metric.Int64Counter, kind string) {
	c.Add(context.Background(), 1, metric.WithAttributes(attribute.String("entity.kind", kind)))
}
