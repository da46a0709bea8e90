package queue

import (
	"context"
	"errors"
	"fmt"

	"github.com/OFFIS-RIT/graphrag/pkg/logger"

	"github.com/rabbitmq/amqp091-go"
)

// HandleFunc processes one message body from queue.
type HandleFunc func(ctx context.Context, queue string, body []byte) error

// retries reads the retry counter set by HandleFailure.
func retries(msg amqp091.Delivery) int {
	switch v := msg.Headers["x-retries"].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	}
	return 0
}

// HandleFailure routes a failed message. Invalid messages and messages
// that were retried maxRetries times go to the dead letter queue, all
// others to the retry queue with an incremented counter. The original
// delivery is acked once the copy is published and requeued otherwise.
func HandleFailure(ctx context.Context, pub Publisher, msg amqp091.Delivery, queue string, cause error) {
	n := retries(msg)
	headers := amqp091.Table{}
	for k, v := range msg.Headers {
		headers[k] = v
	}

	target := queue + retrySuffix
	if n >= maxRetries || errors.Is(cause, ErrInvalidMessage) {
		target = queue + dlqSuffix
		headers["x-error"] = cause.Error()
		logger.Warn("[Queue] Sending message to DLQ", "dlq", target, "retries", n, "err", cause)
	} else {
		headers["x-retries"] = int32(n + 1)
		logger.Info("[Queue] Scheduling retry", "retry_queue", target, "retry", n+1)
	}

	if err := PublishFIFO(ctx, pub, target, msg.Body, headers); err != nil {
		logger.Error("[Queue] Failed to publish failed message", "queue", target, "err", err)
		if err := msg.Nack(false, true); err != nil {
			logger.Error("[Queue] Failed to nack message", "err", err)
		}
		return
	}
	if err := msg.Ack(false); err != nil {
		logger.Error("[Queue] Failed to ack message", "err", err)
	}
}

// Consume delivers messages of all queues to handle one at a time until
// ctx is done. Successful messages are acked, failed ones go through
// HandleFailure.
func Consume(ctx context.Context, conn *amqp091.Connection, queues []string, handle HandleFunc) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open consumer channel: %w", err)
	}
	defer ch.Close()

	// One unacked message per channel serializes work across all queues.
	if err := ch.Qos(1, 0, true); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}

	type delivery struct {
		msg   amqp091.Delivery
		queue string
	}
	deliveries := make(chan delivery)

	for _, name := range queues {
		msgs, err := ch.Consume(name, name+"_consumer", false, false, false, false, nil)
		if err != nil {
			return fmt.Errorf("consume %s: %w", name, err)
		}
		go func() {
			for msg := range msgs {
				select {
				case deliveries <- delivery{msg: msg, queue: name}:
				case <-ctx.Done():
					return
				}
			}
			logger.Info("[Queue] Message channel closed", "queue", name)
		}()
	}

	logger.Info("[Queue] Listening for messages", "queues", queues)
	for {
		select {
		case <-ctx.Done():
			logger.Info("[Queue] Stopping consumer")
			return nil
		case d := <-deliveries:
			Dispatch(ctx, ch, d.msg, d.queue, handle)
		}
	}
}

// Dispatch runs handle for one delivery and acks or routes the failure.
func Dispatch(ctx context.Context, pub Publisher, msg amqp091.Delivery, queue string, handle HandleFunc) {
	logger.Info("[Queue] Received message", "queue", queue)
	if err := handle(ctx, queue, msg.Body); err != nil {
		logger.Error("[Queue] Error processing message", "queue", queue, "err", err)
		HandleFailure(ctx, pub, msg, queue, err)
		return
	}
	if err := msg.Ack(false); err != nil {
		logger.Error("[Queue] Failed to ack message", "err", err)
	}
	logger.Info("[Queue] Message processed successfully", "queue", queue)
}
