package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AmqpChannel implements DeliveryChannel on top of a RabbitMQ headers
// exchange. Each subscription is a durable queue bound to the exchange with
// header arguments; the binding headers are the filter policy, so RabbitMQ
// evaluates the filter on the broker side exactly once per publish.
type AmqpChannel struct {
	mu       sync.Mutex
	ch       *amqp.Channel
	exchange string

	// Last-bound endpoint per subscription ref so a policy overwrite can
	// drop the stale binding first.
	bound map[string]string
}

// NewAmqpChannel declares the headers exchange and returns the channel client.
func NewAmqpChannel(ch *amqp.Channel, exchange string) (*AmqpChannel, error) {
	if err := ch.ExchangeDeclare(exchange, "headers", true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &AmqpChannel{ch: ch, exchange: exchange, bound: make(map[string]string)}, nil
}

func bindingArgs(policy FilterPolicy) amqp.Table {
	args := amqp.Table{"x-match": "all"}
	// Each subscription allows exactly one endpoint value.
	for _, v := range policy.AllowedValues {
		args[policy.AttributeKey] = v
	}
	return args
}

func (c *AmqpChannel) SetFilterPolicy(_ context.Context, ref string, policy FilterPolicy) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.ch.QueueDeclare(ref, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare subscription queue: %w", err)
	}

	args := bindingArgs(policy)
	if prev, ok := c.bound[ref]; ok {
		if len(policy.AllowedValues) == 1 && prev == policy.AllowedValues[0] {
			return nil // same policy, binding already in place
		}
		old := amqp.Table{"x-match": "all", policy.AttributeKey: prev}
		if err := c.ch.QueueUnbind(ref, "", c.exchange, old); err != nil {
			return fmt.Errorf("unbind stale filter: %w", err)
		}
	}

	if err := c.ch.QueueBind(ref, "", c.exchange, false, args); err != nil {
		return fmt.Errorf("bind filter: %w", err)
	}
	if len(policy.AllowedValues) == 1 {
		c.bound[ref] = policy.AllowedValues[0]
	}
	return nil
}

func (c *AmqpChannel) Publish(ctx context.Context, msg Message) error {
	body, err := json.Marshal(map[string]string{
		"subject": msg.Subject,
		"body":    msg.Body,
	})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	headers := amqp.Table{}
	for k, v := range msg.Attributes {
		headers[k] = v
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	err = c.ch.PublishWithContext(ctx, c.exchange, "", false, false, amqp.Publishing{
		ContentType: "application/json",
		Headers:     headers,
		Body:        body,
	})
	if err != nil {
		return fmt.Errorf("publish to exchange: %w", err)
	}
	return nil
}

var _ DeliveryChannel = (*AmqpChannel)(nil)
