package events

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/streadway/amqp"

	"github.com/unclebandit/campaign-engine/internal/model"
)

const EventsQueue = "campaign_events"

// Event is one lifecycle transition, published best-effort for
// operational visibility.
type Event struct {
	CampaignID string       `json:"campaign_id"`
	Type       string       `json:"type"`
	Status     model.Status `json:"status"`
	Processed  int          `json:"processed"`
	At         time.Time    `json:"at"`
}

type Publisher interface {
	Publish(e Event) error
}

// AMQPPublisher pushes lifecycle events onto a durable RabbitMQ queue.
type AMQPPublisher struct {
	ch *amqp.Channel
}

func NewAMQPPublisher(conn *amqp.Connection) (*AMQPPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}
	if _, err := ch.QueueDeclare(
		EventsQueue,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	); err != nil {
		ch.Close()
		return nil, err
	}
	return &AMQPPublisher{ch: ch}, nil
}

func (p *AMQPPublisher) Publish(e Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return p.ch.Publish(
		"",
		EventsQueue,
		false,
		false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		},
	)
}

func (p *AMQPPublisher) Close() error { return p.ch.Close() }

// MemoryPublisher records events in memory. Used when no broker is
// configured, and in tests.
type MemoryPublisher struct {
	mu     sync.Mutex
	events []Event
}

func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

func (p *MemoryPublisher) Publish(e Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *MemoryPublisher) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Event(nil), p.events...)
}
