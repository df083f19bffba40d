package queue

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/streadway/amqp"
)

// SendJob is the wire format of one queued send.
type SendJob struct {
	RecipientID int `json:"recipient_id"`
}

const maxDeliveryRetries = 3

// AMQPQueue publishes send jobs to RabbitMQ. It satisfies Queue for
// the publishing side; consumption runs in the worker binary.
type AMQPQueue struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

func DialAMQP(url string) (*AMQPQueue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}
	if _, err := declareSendQueue(ch); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	return &AMQPQueue{conn: conn, ch: ch}, nil
}

func declareSendQueue(ch *amqp.Channel) (amqp.Queue, error) {
	return ch.QueueDeclare(
		TopicSendJobs, // name
		true,          // durable
		false,         // delete when unused
		false,         // exclusive
		false,         // no-wait
		nil,           // arguments
	)
}

func (q *AMQPQueue) Publish(topic string, payload any) error {
	recipientID, ok := payload.(int)
	if !ok {
		return fmt.Errorf("expected recipient id payload, got %T", payload)
	}
	body, err := json.Marshal(SendJob{RecipientID: recipientID})
	if err != nil {
		return err
	}
	return q.ch.Publish(
		"",
		topic,
		false,
		false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		},
	)
}

// Subscribe consumes send jobs with manual acks. Failed deliveries are
// requeued up to maxDeliveryRetries, then dropped.
func (q *AMQPQueue) Subscribe(topic string, handler func(payload any) error) error {
	msgs, err := q.ch.Consume(
		topic,
		"",
		false, // autoAck = false for reliability
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	go func() {
		for d := range msgs {
			var job SendJob
			if err := json.Unmarshal(d.Body, &job); err != nil {
				log.Println("Invalid job:", err)
				d.Ack(false)
				continue
			}

			if err := handler(job.RecipientID); err != nil {
				log.Println("Failed to process job:", err)
				var retryCount int32
				if v, ok := d.Headers["x-retry-count"].(int32); ok {
					retryCount = v
				}
				if retryCount < maxDeliveryRetries {
					d.Nack(false, true) // requeue
					continue
				}
			}
			d.Ack(false)
		}
	}()
	return nil
}

func (q *AMQPQueue) Close() {
	q.ch.Close()
	q.conn.Close()
}

var _ Queue = (*AMQPQueue)(nil)
