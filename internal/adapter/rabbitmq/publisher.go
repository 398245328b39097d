package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/pulsenotify/orchestrator/internal/domain"
	"github.com/pulsenotify/orchestrator/pkg/config"
)

type boundQueue struct {
	name       string
	routingKey string
}

// channelQueues is the fixed per-channel topology. Consumers declare the
// same queues on their side; declaration is idempotent.
var channelQueues = []boundQueue{
	{name: "email_queue", routingKey: "notification.email"},
	{name: "push_queue", routingKey: "notification.push"},
}

// Publisher sends enriched notifications through a topic exchange with
// per-channel routing keys. The channel runs in confirm mode: Publish does
// not return success until the broker acks the message.
type Publisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	logger   *zap.Logger
}

func NewPublisher(cfg config.RabbitMQConfig, logger *zap.Logger) (*Publisher, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := channel.Confirm(false); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable confirm mode: %w", err)
	}

	if err := declareTopology(channel, cfg); err != nil {
		conn.Close()
		return nil, err
	}

	logger.Info("connected to rabbitmq",
		zap.String("exchange", cfg.ExchangeName),
		zap.Int("queues", len(channelQueues)),
	)

	return &Publisher{
		conn:     conn,
		channel:  channel,
		exchange: cfg.ExchangeName,
		logger:   logger,
	}, nil
}

func declareTopology(channel *amqp.Channel, cfg config.RabbitMQConfig) error {
	err := channel.ExchangeDeclare(
		cfg.ExchangeName,
		cfg.ExchangeType,
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("declare exchange %s: %w", cfg.ExchangeName, err)
	}

	queues := channelQueues
	if cfg.QueueName != "" && cfg.RoutingKey != "" {
		// wildcard audit queue, e.g. orchestrator_queue on notification.*
		queues = append(queues, boundQueue{name: cfg.QueueName, routingKey: cfg.RoutingKey})
	}

	for _, q := range queues {
		_, err := channel.QueueDeclare(
			q.name,
			true,  // durable
			false, // auto-delete
			false, // exclusive
			false, // no-wait
			nil,
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", q.name, err)
		}

		err = channel.QueueBind(q.name, q.routingKey, cfg.ExchangeName, false, nil)
		if err != nil {
			return fmt.Errorf("bind queue %s: %w", q.name, err)
		}
	}

	return nil
}

// Publish routes the message to notification.{channel} and waits for the
// broker confirm. The amqp channel is not safe for concurrent publishers,
// hence the mutex.
func (p *Publisher) Publish(ctx context.Context, msg domain.EnrichedMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal enriched message: %w", err)
	}

	routingKey := fmt.Sprintf("notification.%s", msg.Channel)

	p.mu.Lock()
	confirm, err := p.channel.PublishWithDeferredConfirmWithContext(ctx,
		p.exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:   "application/json",
			Body:          body,
			DeliveryMode:  amqp.Persistent,
			MessageId:     msg.NotificationID,
			CorrelationId: msg.CorrelationID,
			Timestamp:     time.Now().UTC(),
			Headers: amqp.Table{
				"channel":  msg.Channel,
				"priority": msg.Priority,
			},
		},
	)
	p.mu.Unlock()
	if err != nil {
		return fmt.Errorf("publish to %s: %w", routingKey, err)
	}

	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("await confirm for %s: %w", msg.NotificationID, err)
	}
	if !acked {
		return fmt.Errorf("broker nacked message %s", msg.NotificationID)
	}

	p.logger.Debug("message confirmed",
		zap.String("notification_id", msg.NotificationID),
		zap.String("routing_key", routingKey),
	)
	return nil
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channel != nil {
		if err := p.channel.Close(); err != nil {
			p.logger.Warn("closing rabbitmq channel", zap.Error(err))
		}
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
