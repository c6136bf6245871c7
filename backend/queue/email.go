package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/streadway/amqp"

	"github.com/lifetrack-app/lifetrack/backend/server/notifications/email"
	storage "github.com/lifetrack-app/lifetrack/backend/storage/cache"
)

// globalCount drives the round-robin assignment of producers to outgoing
// confirmation email messages.
var globalCount int

// EmailProducerFactory creates EmailProducer instances.
type EmailProducerFactory struct{}

// EmailConsumerFactory creates EmailConsumer instances. It carries the
// cache used to deduplicate already-sent messages.
type EmailConsumerFactory struct {
	Cache storage.CacheInterface
}

// EmailProducer publishes confirmation email messages to the broker.
type EmailProducer struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   *amqp.Queue
}

// EmailConsumer reads confirmation email messages off the broker, checks
// the dedup cache, and hands them to the SMTP sender.
type EmailConsumer struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   *amqp.Queue
	cache   storage.CacheInterface
}

// EmailMessage is the wire format of one queued confirmation email.
type EmailMessage struct {
	Id    string `json:"id"`    // unique message id, used as the dedup key
	Token string `json:"token"` // the confirmation code the user must enter
	To    string `json:"to"`    // recipient address
}

// CreateProducer instantiates a new EmailProducer bound to the given
// connection, channel, and queue.
func (f *EmailProducerFactory) CreateProducer(conn *amqp.Connection, ch *amqp.Channel, queue *amqp.Queue) (Producer, error) {
	return &EmailProducer{
		conn:    conn,
		channel: ch,
		queue:   queue,
	}, nil
}

// CreateConsumer instantiates a new EmailConsumer bound to the given
// connection, channel, and queue, carrying the factory's dedup cache.
func (f *EmailConsumerFactory) CreateConsumer(conn *amqp.Connection, ch *amqp.Channel, queue *amqp.Queue) (Consumer, error) {
	return &EmailConsumer{
		conn:    conn,
		channel: ch,
		queue:   queue,
		cache:   f.Cache,
	}, nil
}

// Publish publishes the given message body to the email queue.
func (ep *EmailProducer) Publish(body []byte) error {
	err := ep.channel.Publish(
		"",            // exchange
		ep.queue.Name, // routing key
		false,         // mandatory
		false,         // immediate
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		})
	if err != nil {
		return fmt.Errorf("failed to publish a message: %w", err)
	}

	return nil
}

// Consume sets up a consumer on the email queue and launches a goroutine
// that reads from it until the context is cancelled. Each message is
// unmarshalled, checked against the dedup cache, and either sent over SMTP
// and acked, or nacked with requeue on transient failure.
func (ec *EmailConsumer) Consume(ctx context.Context) (<-chan amqp.Delivery, error) {
	msgs, err := ec.channel.Consume(
		ec.queue.Name,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return nil, err
	}

	go func() {
		for {
			select {
			case d, ok := <-msgs:

				if !ok {
					return
				}

				message := &EmailMessage{}
				if err := json.Unmarshal(d.Body, message); err != nil {
					log.Printf("failed to unmarshal email message: %v", err)
					d.Nack(false, true)
					continue
				}

				processed, err := ec.cache.Get(ctx, "email_"+message.Id)
				if err != nil {
					// Cache misses are expected; anything else is transient.
					if err.Error() != "key does not exist" {
						log.Printf("error checking cache: %v", err)
						d.Nack(false, true)
						continue
					}
				}

				if processed != nil {
					d.Ack(false)
					continue
				}

				if err := email.SendConfirmation(message.To, message.Token); err != nil {
					log.Printf("failed to send email: %v", err)
					d.Nack(false, true)
				} else {
					d.Ack(false)
					if err := ec.cache.Set(ctx, "email_"+message.Id, true); err != nil {
						log.Printf("failed to set key in cache: %v", err)
					}
				}

			case <-ctx.Done():
				return
			}
		}
	}()

	return msgs, nil
}

// BuildEmailQueue initializes the confirmation-email Queue with the given
// number of producers and consumers, sharing one dedup cache.
func BuildEmailQueue(rabbitMQURL string, numProducers int, numConsumers int, emailCache storage.CacheInterface) (*Queue, error) {
	prodFactories := make([]ProducerFactory, numProducers)
	for i := 0; i < numProducers; i++ {
		prodFactories[i] = &EmailProducerFactory{}
	}

	consFactories := make([]ConsumerFactory, numConsumers)
	for i := 0; i < numConsumers; i++ {
		consFactories[i] = &EmailConsumerFactory{Cache: emailCache}
	}

	return InitQueue(rabbitMQURL, "emailQueue", prodFactories, consFactories)
}

// InitEmailCache initializes the cache that records which confirmation
// emails have already been sent.
func InitEmailCache(url string) (storage.CacheInterface, error) {
	c, err := storage.NewCache(url)
	if err != nil {
		return nil, fmt.Errorf("error connecting to cache: %w", err)
	}
	return c, nil
}

// ProcessEmail serializes a confirmation email message and publishes it
// onto the queue using one of the producers in round-robin order.
func ProcessEmail(emailMsg *EmailMessage, emailQueue *Queue) error {
	body, err := json.Marshal(emailMsg)
	if err != nil {
		return errors.New("failed to marshal email message: " + err.Error())
	}

	producerCount := len(emailQueue.Producers)
	if producerCount == 0 {
		return errors.New("no producers available")
	}

	producer := emailQueue.Producers[globalCount%producerCount]
	globalCount++

	if err := producer.Publish(body); err != nil {
		return errors.New("failed to publish email message: " + err.Error())
	}

	return nil
}
