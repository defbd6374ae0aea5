package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/Tobikorais/Mealy/internal/model"
)

// ExchangeName имя fanout-обменника для событий по заказам.
const ExchangeName = "order_events"

// AMQPPublisher публикует события по заказам в RabbitMQ.
type AMQPPublisher struct {
	conn   *amqp.Connection
	logger *zap.Logger

	mu sync.Mutex
	ch *amqp.Channel
}

// NewAMQPPublisher подключается к брокеру и объявляет обменник.
func NewAMQPPublisher(url string, logger *zap.Logger) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		ExchangeName, // name
		"fanout",     // type
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	return &AMQPPublisher{conn: conn, ch: ch, logger: logger}, nil
}

// Publish отправляет событие в обменник. Ошибки только логируются.
func (p *AMQPPublisher) Publish(ctx context.Context, ev model.OrderEvent) {
	msg, err := encodeEvent(ev)
	if err != nil {
		p.logger.Error("marshal order event", zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.ch.PublishWithContext(ctx, ExchangeName, "", false, false, msg); err != nil {
		p.logger.Error("publish order event",
			zap.Error(err),
			zap.Int64("order_id", ev.Order.ID),
			zap.String("event", string(ev.Type)),
		)
	}
}

// Close закрывает канал и соединение с брокером.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch != nil {
		p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

func encodeEvent(ev model.OrderEvent) (amqp.Publishing, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return amqp.Publishing{}, err
	}
	return amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		Type:         string(ev.Type),
		MessageId:    fmt.Sprintf("%d-%s-%s", ev.Order.ID, ev.Type, ev.Order.Status),
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}, nil
}
