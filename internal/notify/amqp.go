package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

// Publisher is the subset of *amqp091.Channel used for delivery.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
}

// AMQPNotifier publishes messages to a topic exchange with routing key
// notification.<kind>.
type AMQPNotifier struct {
	pub      Publisher
	exchange string
	conn     *amqp091.Connection
	ch       *amqp091.Channel
}

func DialAMQP(url, exchange string) (*AMQPNotifier, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	err = ch.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("amqp exchange %s: %w", exchange, err)
	}
	return &AMQPNotifier{pub: ch, exchange: exchange, conn: conn, ch: ch}, nil
}

// NewAMQPNotifier wraps an existing publisher.
func NewAMQPNotifier(pub Publisher, exchange string) *AMQPNotifier {
	return &AMQPNotifier{pub: pub, exchange: exchange}
}

func (*AMQPNotifier) Name() string { return "amqp" }

func RoutingKey(k Kind) string { return "notification." + string(k) }

func (a *AMQPNotifier) Notify(ctx context.Context, m Message) error {
	body, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return a.pub.PublishWithContext(ctx, a.exchange, RoutingKey(m.Kind), false, false, amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		MessageId:    m.ID,
		Timestamp:    time.Now(),
		Body:         body,
		Headers: amqp091.Table{
			"kind":    string(m.Kind),
			"exam_id": m.ExamID,
		},
	})
}

func (a *AMQPNotifier) Close() error {
	if a.ch != nil {
		a.ch.Close()
	}
	if a.conn != nil {
		return a.conn.Close()
	}
	return nil
}
