// Package queue consumes provider replies bridged onto RabbitMQ.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/streadway/amqp"
	"go.uber.org/multierr"

	appErrors "github.com/unclebandit/prospect-pipeline/internal/errors"
	"github.com/unclebandit/prospect-pipeline/internal/logger"
	"github.com/unclebandit/prospect-pipeline/internal/service"
)

// InboundHandler consumes one decoded reply.
type InboundHandler interface {
	HandleInbound(ctx context.Context, msg service.InboundMessage) (bool, error)
}

// Verdict is how a delivery gets settled.
type Verdict int

const (
	Ack Verdict = iota
	Requeue
	Reject
)

// Consumer reads inbound replies from a durable queue with manual acks.
type Consumer struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	queue    string
	prefetch int
	handler  InboundHandler
	logg     *logger.Logger
}

// Dial connects to the broker and opens the consumer channel.
func Dial(url, queue string, handler InboundHandler, logg *logger.Logger) (*Consumer, error) {
	if url == "" {
		return nil, appErrors.NewConfigError("AMQP_URL")
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	c := NewConsumer(queue, handler, logg)
	c.conn, c.ch = conn, ch
	return c, nil
}

// NewConsumer builds a consumer without a broker connection; Handle works on it.
func NewConsumer(queue string, handler InboundHandler, logg *logger.Logger) *Consumer {
	if logg == nil {
		logg = logger.Nop()
	}
	if queue == "" {
		queue = "inbound_messages"
	}
	return &Consumer{queue: queue, prefetch: 10, handler: handler, logg: logg}
}

// Run consumes until ctx is canceled or the broker closes the channel.
func (c *Consumer) Run(ctx context.Context) error {
	if c.ch == nil {
		return errors.New("consumer not connected")
	}
	q, err := c.ch.QueueDeclare(
		c.queue,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("declare queue %s: %w", c.queue, err)
	}
	if err := c.ch.Qos(c.prefetch, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}
	msgs, err := c.ch.Consume(q.Name, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("register consumer: %w", err)
	}

	c.logg.Info(c.logg.WithField(ctx, "queue", q.Name), "waiting for inbound messages")
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return errors.New("delivery channel closed")
			}
			if err := settle(d, c.Handle(ctx, d.Body, d.Redelivered)); err != nil {
				c.logg.Error(ctx, "settling delivery failed", err)
			}
		}
	}
}

// Handle processes one delivery body. Malformed payloads are rejected; a
// storage failure is requeued once and rejected on redelivery.
func (c *Consumer) Handle(ctx context.Context, body []byte, redelivered bool) Verdict {
	var msg service.InboundMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		c.logg.Warn(ctx, "dropping undecodable inbound message")
		return Reject
	}

	ctx = c.logg.WithField(ctx, "sender", msg.Sender())
	optedOut, err := c.handler.HandleInbound(ctx, msg)
	switch {
	case err == nil:
		if optedOut {
			c.logg.Info(ctx, "inbound opt-out applied")
		}
		return Ack
	case appErrors.IsValidation(err):
		c.logg.Warn(ctx, "dropping invalid inbound message: "+err.Error())
		return Reject
	case redelivered:
		c.logg.Error(ctx, "inbound message failed twice, dropping", err)
		return Reject
	default:
		c.logg.Error(ctx, "inbound message failed, requeueing", err)
		return Requeue
	}
}

func settle(d amqp.Delivery, v Verdict) error {
	switch v {
	case Requeue:
		return d.Nack(false, true)
	case Reject:
		return d.Nack(false, false)
	default:
		return d.Ack(false)
	}
}

func (c *Consumer) Close() error {
	var err error
	if c.ch != nil {
		err = multierr.Append(err, c.ch.Close())
	}
	if c.conn != nil {
		err = multierr.Append(err, c.conn.Close())
	}
	return err
}
