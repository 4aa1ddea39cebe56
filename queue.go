package postbox

import "context"

// QueueService is the interface that wraps methods related to the new post queue
type QueueService interface {
	Publish(ctx context.Context, topic string, body []byte) error
	Consume(ctx context.Context, topic string) (<-chan []byte, error)
	Close() error
}
