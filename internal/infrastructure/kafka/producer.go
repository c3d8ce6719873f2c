package kafka

import (
	"fmt"
	"time"

	"github.com/IBM/sarama"
)

// Message is one keyed record for the configured topic.
type Message struct {
	Key   string
	Value []byte
}

type SaramaProducer struct {
	producer sarama.SyncProducer
	topic    string
}

func NewConfig() *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Timeout = 5 * time.Second
	return cfg
}

func NewSaramaProducer(brokers []string, topic string) (*SaramaProducer, error) {
	prod, err := sarama.NewSyncProducer(brokers, NewConfig())
	if err != nil {
		return nil, fmt.Errorf("creating kafka producer: %w", err)
	}
	return NewSaramaProducerFrom(prod, topic), nil
}

// NewSaramaProducerFrom wraps an existing sync producer.
func NewSaramaProducerFrom(producer sarama.SyncProducer, topic string) *SaramaProducer {
	return &SaramaProducer{producer: producer, topic: topic}
}

func (p *SaramaProducer) Publish(messages []Message) error {
	if len(messages) == 0 {
		return nil
	}
	if err := p.producer.SendMessages(toKafkaMessages(messages, p.topic)); err != nil {
		return fmt.Errorf("publishing to topic %s: %w", p.topic, err)
	}
	return nil
}

func (p *SaramaProducer) Close() error {
	return p.producer.Close()
}

func toKafkaMessages(messages []Message, topic string) []*sarama.ProducerMessage {
	res := make([]*sarama.ProducerMessage, 0, len(messages))
	for _, m := range messages {
		res = append(res, &sarama.ProducerMessage{
			Topic: topic,
			Key:   sarama.StringEncoder(m.Key),
			Value: sarama.ByteEncoder(m.Value),
		})
	}
	return res
}
