package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/streadway/amqp"
	"go.uber.org/zap"

	"github.com/satriahrh/intake-bridge/domain/entities"
	"github.com/satriahrh/intake-bridge/domain/repositories"
	"github.com/satriahrh/intake-bridge/internal/config"
	"github.com/satriahrh/intake-bridge/internal/metrics"
)

const (
	dialTimeout = 5 * time.Second
	// Snapshots nobody consumed within a day are dropped by the broker.
	messageExpiration = "86400000"
	messageType       = "intake.snapshot"
)

// ErrNotConnected is returned when the broker connection was lost.
var ErrNotConnected = errors.New("not connected to AMQP server")

// publishChannel is the part of *amqp.Channel the publisher uses.
type publishChannel interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher sends intake snapshots to a durable AMQP queue.
type Publisher struct {
	queue   string
	conn    *amqp.Connection
	metrics *metrics.Metrics
	logger  *zap.Logger

	mu        sync.RWMutex
	channel   publishChannel
	connected bool
}

var _ repositories.IntakePublisher = (*Publisher)(nil)

// NewPublisher connects to the broker and declares the queue.
func NewPublisher(cfg config.AMQPConfig, m *metrics.Metrics, logger *zap.Logger) (*Publisher, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("AMQP URL or queue name not configured")
	}

	conn, err := amqp.DialConfig(cfg.URL, amqp.Config{
		Dial: amqp.DefaultDial(dialTimeout),
	})
	if err != nil {
		m.SetAMQPConnected(false)
		return nil, fmt.Errorf("failed to connect to AMQP server: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open AMQP channel: %w", err)
	}

	if _, err := ch.QueueDeclare(
		cfg.Queue,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare AMQP queue: %w", err)
	}

	p := newPublisher(cfg.Queue, ch, m, logger)
	p.conn = conn
	go p.monitor(conn.NotifyClose(make(chan *amqp.Error, 1)))

	logger.Info("Connected to AMQP server", zap.String("queue", cfg.Queue))
	return p, nil
}

func newPublisher(queue string, ch publishChannel, m *metrics.Metrics, logger *zap.Logger) *Publisher {
	m.SetAMQPConnected(true)
	return &Publisher{
		queue:     queue,
		channel:   ch,
		connected: true,
		metrics:   m,
		logger:    logger,
	}
}

// monitor marks the publisher disconnected when the broker drops the connection.
func (p *Publisher) monitor(closed <-chan *amqp.Error) {
	err, ok := <-closed
	p.mu.Lock()
	p.connected = false
	p.mu.Unlock()
	p.metrics.SetAMQPConnected(false)

	if ok && err != nil {
		p.logger.Error("AMQP connection closed", zap.String("reason", err.Reason), zap.Int("code", err.Code))
	}
}

// PublishIntake publishes one snapshot as persistent JSON.
func (p *Publisher) PublishIntake(ctx context.Context, snapshot entities.IntakeSnapshot) error {
	body, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal intake snapshot: %w", err)
	}

	p.mu.RLock()
	ch, connected := p.channel, p.connected
	p.mu.RUnlock()
	if !connected || ch == nil {
		return ErrNotConnected
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    snapshot.ConnectionID,
		Type:         messageType,
		Timestamp:    snapshot.EndedAt,
		Expiration:   messageExpiration,
		Body:         body,
	}

	// Channel.Publish takes no context, so bound it from outside.
	result := make(chan error, 1)
	go func() {
		result <- ch.Publish("", p.queue, false, false, msg)
	}()

	select {
	case err := <-result:
		if err != nil {
			return fmt.Errorf("failed to publish intake snapshot: %w", err)
		}
	case <-ctx.Done():
		return fmt.Errorf("publishing intake snapshot: %w", ctx.Err())
	}

	p.logger.Debug("Published intake snapshot", zap.String("connectionID", snapshot.ConnectionID))
	return nil
}

// Close closes the channel and the connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.connected && p.channel == nil {
		return nil
	}
	p.connected = false

	var errs []error
	if p.channel != nil {
		errs = append(errs, p.channel.Close())
		p.channel = nil
	}
	if p.conn != nil {
		errs = append(errs, p.conn.Close())
	}
	p.metrics.SetAMQPConnected(false)
	p.logger.Info("Disconnected from AMQP server")
	return errors.Join(errs...)
}
