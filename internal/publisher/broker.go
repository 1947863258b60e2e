package publisher

import (
	"sync"

	"github.com/reconquest/pkg/log"
)

// Message is what a subscriber receives from its topic channel.
type Message struct {
	Topic   string
	Payload interface{}
}

// Broker is an in-process topic broker. It is not a durable queue:
// subscribers that are not attached when an event fires never see it,
// and a subscriber that cannot keep up loses messages instead of
// blocking the webhook path.
type Broker struct {
	mutex  sync.RWMutex
	topics map[string]map[chan Message]struct{}
}

func NewBroker() *Broker {
	return &Broker{
		topics: map[string]map[chan Message]struct{}{},
	}
}

// Subscribe attaches a buffered channel to the topic.
func (broker *Broker) Subscribe(topic string) chan Message {
	broker.mutex.Lock()
	defer broker.mutex.Unlock()

	channel := make(chan Message, 16)

	subscribers, ok := broker.topics[topic]
	if !ok {
		subscribers = map[chan Message]struct{}{}
		broker.topics[topic] = subscribers
	}

	subscribers[channel] = struct{}{}

	return channel
}

func (broker *Broker) Unsubscribe(topic string, channel chan Message) {
	broker.mutex.Lock()
	defer broker.mutex.Unlock()

	subscribers, ok := broker.topics[topic]
	if !ok {
		return
	}

	if _, ok := subscribers[channel]; !ok {
		return
	}

	delete(subscribers, channel)
	close(channel)

	if len(subscribers) == 0 {
		delete(broker.topics, topic)
	}
}

// Emit delivers the payload to every subscriber of the topic without
// blocking: a full subscriber buffer drops the message for that
// subscriber only.
func (broker *Broker) Emit(topic string, payload interface{}) {
	broker.mutex.RLock()
	defer broker.mutex.RUnlock()

	subscribers := broker.topics[topic]
	if len(subscribers) == 0 {
		return
	}

	message := Message{
		Topic:   topic,
		Payload: payload,
	}

	for channel := range subscribers {
		select {
		case channel <- message:
		default:
			log.Debugf(nil, "subscriber of %s is behind, message dropped", topic)
		}
	}
}
