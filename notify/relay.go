package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// Relay is the one-way transport notifications leave through.
type Relay interface {
	Publish(ctx context.Context, event Event) error
}

// LogRelay writes events to the log. Used when no broker is configured
// and in tests.
type LogRelay struct {
	Log *logrus.Logger
}

func (r *LogRelay) Publish(_ context.Context, event Event) error {
	r.Log.WithFields(logrus.Fields{
		"type":      event.Type,
		"recipient": event.Recipient,
	}).Info("notification")
	return nil
}

// AMQPRelay publishes events to a topic exchange. Routing key is
// "<recipient>.<type>" so consumers can bind per audience.
type AMQPRelay struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
}

func NewAMQPRelay(url, exchange string) (*AMQPRelay, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &AMQPRelay{conn: conn, channel: ch, exchange: exchange}, nil
}

func (r *AMQPRelay) Publish(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return r.channel.PublishWithContext(ctx, r.exchange, event.Recipient+"."+event.Type, false, false, amqp.Publishing{
		ContentType: "application/json",
		Timestamp:   event.OccurredAt,
		Body:        body,
	})
}

func (r *AMQPRelay) Close() error {
	r.channel.Close()
	return r.conn.Close()
}

// Dispatcher drains outbox events asynchronously, best-effort. Publish
// failures are logged and swallowed.
type Dispatcher struct {
	relay Relay
	log   *logrus.Logger
}

func NewDispatcher(relay Relay, log *logrus.Logger) *Dispatcher {
	return &Dispatcher{relay: relay, log: log}
}

// Dispatch fires the events without blocking the caller.
func (d *Dispatcher) Dispatch(events []Event) {
	if len(events) == 0 {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		for _, e := range events {
			if err := d.relay.Publish(ctx, e); err != nil {
				d.log.WithError(err).WithFields(logrus.Fields{
					"type":      e.Type,
					"recipient": e.Recipient,
				}).Warn("failed to publish notification")
			}
		}
	}()
}
