package notify

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// kafkaWriter is the subset of kafka.Writer used by the notifier, extracted
// so tests can substitute a recorder.
type kafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type kafkaEvent struct {
	Topic   string
	Payload any
}

// KafkaNotifier publishes events to a single Kafka topic, keyed by the
// logical topic string. Delivery runs on a background loop; queue overflow
// drops the event rather than blocking the publisher.
type KafkaNotifier struct {
	writer    kafkaWriter
	events    chan kafkaEvent
	closeChan chan struct{}
	done      chan struct{}
}

// NewKafkaNotifier connects a writer to brokers publishing on topic.
func NewKafkaNotifier(brokers []string, topic string) *KafkaNotifier {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
	}
	n := &KafkaNotifier{
		writer:    w,
		events:    make(chan kafkaEvent, 1000),
		closeChan: make(chan struct{}),
		done:      make(chan struct{}),
	}
	go n.eventLoop()
	return n
}

func (n *KafkaNotifier) Publish(topic string, payload any) {
	select {
	case n.events <- kafkaEvent{Topic: topic, Payload: payload}:
	default:
		zap.L().Warn("notify: kafka queue full, dropping event",
			zap.String("topic", topic))
	}
}

func (n *KafkaNotifier) eventLoop() {
	defer close(n.done)
	for {
		select {
		case ev := <-n.events:
			n.send(context.Background(), ev)
		case <-n.closeChan:
			return
		}
	}
}

func (n *KafkaNotifier) send(ctx context.Context, ev kafkaEvent) {
	value, err := json.Marshal(ev.Payload)
	if err != nil {
		zap.L().Error("notify: serialize event failed",
			zap.Error(err), zap.String("topic", ev.Topic))
		return
	}
	if err := n.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(ev.Topic),
		Value: value,
	}); err != nil {
		zap.L().Error("notify: produce event failed",
			zap.Error(err), zap.String("topic", ev.Topic))
	}
}

func (n *KafkaNotifier) Close() error {
	close(n.closeChan)
	<-n.done
	return n.writer.Close()
}
