package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/kirinyoku/classgo/internal/domain"
	amqp "github.com/rabbitmq/amqp091-go"
)

type AMQPConfig struct {
	URL   string
	Queue string
}

// AMQPSink publishes seat events as persistent JSON messages to a durable
// queue. The channel is reopened after the broker closes it.
type AMQPSink struct {
	cfg  AMQPConfig
	conn *amqp.Connection

	mu sync.Mutex
	ch *amqp.Channel
}

func NewAMQPSink(cfg AMQPConfig) (*AMQPSink, error) {
	const op = "notify.NewAMQPSink"

	if cfg.Queue == "" {
		cfg.Queue = "classgo.seat_events"
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	s := &AMQPSink{cfg: cfg, conn: conn}
	if _, err := s.channel(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return s, nil
}

func (s *AMQPSink) channel() (*amqp.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ch != nil && !s.ch.IsClosed() {
		return s.ch, nil
	}

	ch, err := s.conn.Channel()
	if err != nil {
		return nil, err
	}

	if _, err := ch.QueueDeclare(
		s.cfg.Queue,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,
	); err != nil {
		_ = ch.Close()
		return nil, err
	}

	s.ch = ch
	return ch, nil
}

func (s *AMQPSink) Publish(ctx context.Context, ev domain.SeatEvent) error {
	const op = "notify.AMQPSink.Publish"

	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	ch, err := s.channel()
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	if err := ch.PublishWithContext(ctx,
		"",          // default exchange
		s.cfg.Queue, // routing key = queue name
		false,       // mandatory
		false,       // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    ev.ID,
			Type:         string(ev.Type),
			Timestamp:    ev.At,
			Body:         body,
		},
	); err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	return nil
}

func (s *AMQPSink) Close() error {
	s.mu.Lock()
	if s.ch != nil {
		_ = s.ch.Close()
	}
	s.mu.Unlock()

	return s.conn.Close()
}
