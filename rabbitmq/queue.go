package rabbitmq

import (
	"context"

	"github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/quantonganh/postbox"
)

// QueueService carries new posts between the notifier and the mail worker
type QueueService struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

// Ensure QueueService implements postbox.QueueService
var _ postbox.QueueService = (*QueueService)(nil)

// NewQueueService connects to the broker at url
func NewQueueService(url string) (*QueueService, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, errors.Wrap(err, "dial amqp")
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "open channel")
	}

	return &QueueService{
		conn: conn,
		ch:   ch,
	}, nil
}

func (s *QueueService) declare(topic string) (amqp.Queue, error) {
	q, err := s.ch.QueueDeclare(
		topic,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return q, errors.Wrapf(err, "declare queue %s", topic)
	}
	return q, nil
}

// Publish sends body to the queue named topic
func (s *QueueService) Publish(ctx context.Context, topic string, body []byte) error {
	q, err := s.declare(topic)
	if err != nil {
		return err
	}

	err = s.ch.PublishWithContext(ctx,
		"",
		q.Name,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
	if err != nil {
		return errors.Wrapf(err, "publish to %s", q.Name)
	}

	return nil
}

// Consume streams message bodies from the queue named topic until ctx is done
// or the channel is closed
func (s *QueueService) Consume(ctx context.Context, topic string) (<-chan []byte, error) {
	q, err := s.declare(topic)
	if err != nil {
		return nil, err
	}

	deliveries, err := s.ch.Consume(
		q.Name,
		"",
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return nil, errors.Wrapf(err, "consume %s", q.Name)
	}

	messages := make(chan []byte)

	go func() {
		defer close(messages)

		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				select {
				case messages <- d.Body:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return messages, nil
}

// Close closes the channel and the connection
func (s *QueueService) Close() error {
	if err := s.ch.Close(); err != nil {
		return errors.Wrap(err, "close channel")
	}
	return s.conn.Close()
}
