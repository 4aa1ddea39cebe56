package rabbitmq

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/quantonganh/postbox"
)

// NewPostTopic is the default queue for new feed items
const NewPostTopic = "new_posts"

const publishTimeout = 5 * time.Second

// ErrQueueClosed is returned by Worker.Run when the broker stops delivering
var ErrQueueClosed = errors.New("queue closed")

// Publisher hands feed items over to the queue instead of mailing them directly
type Publisher struct {
	queue postbox.QueueService
	topic string
}

// Ensure Publisher implements postbox.Consumer
var _ postbox.Consumer = (*Publisher)(nil)

// NewPublisher returns a consumer publishing to topic
func NewPublisher(queue postbox.QueueService, topic string) *Publisher {
	if topic == "" {
		topic = NewPostTopic
	}
	return &Publisher{
		queue: queue,
		topic: topic,
	}
}

// Consume publishes item as JSON
func (p *Publisher) Consume(item postbox.FeedItem) error {
	body, err := json.Marshal(item)
	if err != nil {
		return errors.Wrap(err, "marshal feed item")
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	return p.queue.Publish(ctx, p.topic, body)
}

// Worker feeds queued items to a consumer
type Worker struct {
	queue    postbox.QueueService
	topic    string
	consumer postbox.Consumer

	Logger zerolog.Logger
}

// NewWorker returns new worker
func NewWorker(queue postbox.QueueService, topic string, consumer postbox.Consumer) *Worker {
	if topic == "" {
		topic = NewPostTopic
	}
	return &Worker{
		queue:    queue,
		topic:    topic,
		consumer: consumer,
		Logger:   zerolog.Nop(),
	}
}

// Run blocks until ctx is done or the queue stops delivering, in which case it
// returns ErrQueueClosed. Undecodable messages and consumer failures are logged
// and dropped.
func (w *Worker) Run(ctx context.Context) error {
	messages, err := w.queue.Consume(ctx, w.topic)
	if err != nil {
		return err
	}

	for body := range messages {
		var item postbox.FeedItem
		if err := json.Unmarshal(body, &item); err != nil {
			w.Logger.Error().Err(err).Bytes("body", body).Msg("Failed to decode feed item")
			continue
		}

		if err := w.consumer.Consume(item); err != nil {
			w.Logger.Error().Err(err).Str("link", item.Link).Msg("Failed to deliver feed item")
			continue
		}

		w.Logger.Info().Str("link", item.Link).Msg("Delivered feed item")
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	return ErrQueueClosed
}
