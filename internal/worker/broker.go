package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/antonkozlov/imgmatch/constants"
	"github.com/antonkozlov/imgmatch/internal/common"
)

// Publisher sends messages back into the broker.
type Publisher interface {
	Publish(ctx context.Context, queue string, body []byte) error
	DeadLetter(ctx context.Context, body []byte, reason string) error
}

// Source delivers consumed messages.
type Source interface {
	Consume(queue string) (<-chan amqp.Delivery, error)
}

// Broker owns the AMQP connection and topology. Separate channels are used
// for consuming and publishing; amqp channels are not safe for concurrent
// publishes, so the publish channel is mutex-guarded.
type Broker struct {
	conn      *amqp.Connection
	consumeCh *amqp.Channel
	publishCh *amqp.Channel
	pubMu     sync.Mutex
	logger    *slog.Logger
}

// Dial connects, declares the dead-letter topology and application queues,
// and sets the consumer prefetch.
func Dial(cfg common.BrokerConfig, prefetch int, logger *slog.Logger) (*Broker, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := amqp.DialConfig(cfg.URL(), amqp.Config{Heartbeat: cfg.Heartbeat})
	if err != nil {
		return nil, fmt.Errorf("dial broker: %w", err)
	}
	consumeCh, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open consume channel: %w", err)
	}
	publishCh, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open publish channel: %w", err)
	}

	b := &Broker{conn: conn, consumeCh: consumeCh, publishCh: publishCh, logger: logger}
	if err := b.declareTopology(prefetch); err != nil {
		_ = conn.Close()
		return nil, err
	}
	logger.Info("connected to broker", "host", cfg.Host, "port", cfg.Port)
	return b, nil
}

func (b *Broker) declareTopology(prefetch int) error {
	if err := b.consumeCh.ExchangeDeclare(
		constants.DLXExchange, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare dlx exchange: %w", err)
	}
	if _, err := b.consumeCh.QueueDeclare(
		constants.DLXQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare dlx queue: %w", err)
	}
	if err := b.consumeCh.QueueBind(
		constants.DLXQueue, constants.DLXRoutingKey, constants.DLXExchange, false, nil); err != nil {
		return fmt.Errorf("bind dlx queue: %w", err)
	}

	deadLetterArgs := amqp.Table{
		"x-dead-letter-exchange":    constants.DLXExchange,
		"x-dead-letter-routing-key": constants.DLXRoutingKey,
	}
	for _, q := range []string{
		constants.OCRImageQueue,
		constants.CompareImagesQueue,
		constants.ResponseQueue,
		constants.MaintenanceQueue,
	} {
		if _, err := b.consumeCh.QueueDeclare(q, true, false, false, false, deadLetterArgs); err != nil {
			return fmt.Errorf("declare queue %s: %w", q, err)
		}
	}

	if err := b.consumeCh.Qos(prefetch, 0, false); err != nil {
		return fmt.Errorf("set prefetch: %w", err)
	}
	return nil
}

// Consume starts delivering messages from the queue. Acknowledgment is
// manual; the worker acks or dead-letters every delivery exactly once.
func (b *Broker) Consume(queue string) (<-chan amqp.Delivery, error) {
	deliveries, err := b.consumeCh.Consume(queue, "imgmatch-"+queue, false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("consume %s: %w", queue, err)
	}
	return deliveries, nil
}

// Publish sends a persistent JSON message to a queue via the default
// exchange.
func (b *Broker) Publish(ctx context.Context, queue string, body []byte) error {
	b.pubMu.Lock()
	defer b.pubMu.Unlock()
	err := b.publishCh.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", queue, err)
	}
	return nil
}

// DeadLetter publishes a failed message to the dead-letter exchange with the
// failure reason in a header, so every rejected job leaves an observable
// record.
func (b *Broker) DeadLetter(ctx context.Context, body []byte, reason string) error {
	b.pubMu.Lock()
	defer b.pubMu.Unlock()
	err := b.publishCh.PublishWithContext(ctx, constants.DLXExchange, constants.DLXRoutingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Headers:      amqp.Table{"x-failure-reason": reason},
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish dead letter: %w", err)
	}
	return nil
}

// Close shuts the channels and connection down.
func (b *Broker) Close() {
	if err := b.consumeCh.Close(); err != nil {
		b.logger.Warn("closing consume channel", "err", err)
	}
	if err := b.publishCh.Close(); err != nil {
		b.logger.Warn("closing publish channel", "err", err)
	}
	if err := b.conn.Close(); err != nil {
		b.logger.Warn("closing broker connection", "err", err)
	}
	b.logger.Info("broker connection closed")
}
