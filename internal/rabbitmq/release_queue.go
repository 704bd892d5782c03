// Package rabbitmq holds the durable queue of seat releases that could not
// reach the flight service when a booking was cancelled.
package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/Domenick1991/flightbooking/config"
	"github.com/Domenick1991/flightbooking/internal/domain"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

const maxReconnectBackoff = 30 * time.Second

// ReleaseQueue publishes and consumes domain.SeatReleaseTask messages.
// Delayed tasks wait in a companion "<queue>.retry" queue whose messages
// dead-letter back into the main queue when their TTL expires.
type ReleaseQueue struct {
	url    string
	queue  string
	logger logrus.FieldLogger
}

func NewReleaseQueue(cfg config.RabbitMQConfig, logger logrus.FieldLogger) *ReleaseQueue {
	return &ReleaseQueue{url: cfg.URL, queue: cfg.ReleaseQueue, logger: logger}
}

func (q *ReleaseQueue) retryQueue() string {
	return q.queue + ".retry"
}

// Schedule enqueues a release. A positive delay parks the task in the retry
// queue first.
func (q *ReleaseQueue) Schedule(ctx context.Context, task domain.SeatReleaseTask, delay time.Duration) error {
	conn, err := amqp.Dial(q.url)
	if err != nil {
		return fmt.Errorf("rabbitmq dial: %w", err)
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("rabbitmq channel: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := q.declare(ch); err != nil {
		return err
	}

	pub, err := newPublishing(task, delay)
	if err != nil {
		return err
	}
	routingKey := q.queue
	if delay > 0 {
		routingKey = q.retryQueue()
	}
	if err := ch.PublishWithContext(ctx, "", routingKey, false, false, pub); err != nil {
		return fmt.Errorf("rabbitmq publish: %w", err)
	}

	q.logger.WithFields(logrus.Fields{
		"pnr":       task.PNR,
		"flight_id": task.FlightID,
		"attempt":   task.Attempt,
		"delay":     delay.String(),
	}).Info("seat release scheduled")
	return nil
}

// Consume runs handler for every queued task until ctx is done, reconnecting
// with backoff when the broker goes away. A task is acked once handler
// returns, whatever the result; rescheduling is the handler's call.
func (q *ReleaseQueue) Consume(ctx context.Context, handler func(context.Context, domain.SeatReleaseTask) error) error {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return nil
		}

		conn, err := amqp.Dial(q.url)
		if err != nil {
			q.logger.WithError(err).WithField("retry_in", backoff.String()).Warn("release queue dial failed")
			if !sleep(ctx, backoff) {
				return nil
			}
			backoff = min(backoff*2, maxReconnectBackoff)
			continue
		}
		backoff = time.Second

		err = q.consumeLoop(ctx, conn, handler)
		_ = conn.Close()
		if err == nil {
			return nil
		}
		q.logger.WithError(err).Warn("release queue consume loop ended, reconnecting")
		if !sleep(ctx, 2*time.Second) {
			return nil
		}
	}
}

func (q *ReleaseQueue) consumeLoop(ctx context.Context, conn *amqp.Connection, handler func(context.Context, domain.SeatReleaseTask) error) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(10, 0, false); err != nil {
		q.logger.WithError(err).Warn("release queue qos failed")
	}
	if err := q.declare(ch); err != nil {
		return err
	}

	deliveries, err := ch.Consume(q.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			q.handleDelivery(ctx, d, handler)
		}
	}
}

func (q *ReleaseQueue) handleDelivery(ctx context.Context, d amqp.Delivery, handler func(context.Context, domain.SeatReleaseTask) error) {
	var task domain.SeatReleaseTask
	if err := json.Unmarshal(d.Body, &task); err != nil {
		q.logger.WithError(err).Error("dropping malformed seat release task")
		_ = d.Nack(false, false)
		return
	}
	if err := handler(ctx, task); err != nil {
		q.logger.WithError(err).WithField("pnr", task.PNR).Error("seat release task failed, requeueing")
		_ = d.Nack(false, true)
		return
	}
	_ = d.Ack(false)
}

func (q *ReleaseQueue) declare(ch *amqp.Channel) error {
	if _, err := ch.QueueDeclare(q.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare %s: %w", q.queue, err)
	}
	args := amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": q.queue,
	}
	if _, err := ch.QueueDeclare(q.retryQueue(), true, false, false, false, args); err != nil {
		return fmt.Errorf("queue declare %s: %w", q.retryQueue(), err)
	}
	return nil
}

func newPublishing(task domain.SeatReleaseTask, delay time.Duration) (amqp.Publishing, error) {
	body, err := json.Marshal(task)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("marshal release task: %w", err)
	}
	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		MessageId:    task.PNR + "-" + strconv.Itoa(task.Attempt),
		Body:         body,
	}
	if delay > 0 {
		pub.Expiration = strconv.FormatInt(delay.Milliseconds(), 10)
	}
	return pub, nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
