package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/twmb/franz-go/pkg/kgo"
)

// ErrClosed is returned when publishing on a closed producer.
var ErrClosed = errors.New("bus: producer is closed")

// Message is one record published to or consumed from Kafka.
type Message struct {
	Topic     string
	Key       string // partition key; the wallet address for analysis events
	Value     []byte
	Headers   map[string]string
	Timestamp time.Time
}

// Producer publishes messages. Implementations are safe for concurrent use.
type Producer interface {
	// Publish sends msg and waits for the broker acknowledgement.
	Publish(ctx context.Context, msg Message) error
	// PublishJSON marshals value and publishes it synchronously.
	PublishJSON(ctx context.Context, topic, key string, value any) error
	// Flush waits for buffered records to be delivered.
	Flush(ctx context.Context) error
	// Close flushes and shuts down the producer.
	Close()
}

// Config configures the Kafka client.
type Config struct {
	Enabled            bool          `yaml:"enabled"`
	Brokers            []string      `yaml:"brokers"`
	ClientID           string        `yaml:"client_id"`            // default: walletscope
	Linger             time.Duration `yaml:"linger"`               // default: 5ms
	MaxBufferedRecords int           `yaml:"max_buffered_records"` // default: 10000
	BatchMaxBytes      int32         `yaml:"batch_max_bytes"`      // default: 1MB
	ConsumerGroup      string        `yaml:"consumer_group"`       // default: walletscope-workers
	ConsumeRequests    bool          `yaml:"consume_requests"`
}

// DefaultConfig returns production defaults with Kafka disabled.
func DefaultConfig() Config {
	return Config{
		Brokers:            []string{"localhost:9092"},
		ClientID:           "walletscope",
		Linger:             5 * time.Millisecond,
		MaxBufferedRecords: 10000,
		BatchMaxBytes:      1024 * 1024,
		ConsumerGroup:      "walletscope-workers",
	}
}

// KafkaProducer is a Producer backed by franz-go.
type KafkaProducer struct {
	client         *kgo.Client
	defaultHeaders map[string]string
	mu             sync.RWMutex
	closed         bool
}

// NewProducer creates a franz-go producer with Snappy compression and
// all-ISR acknowledgements.
func NewProducer(cfg Config) (*KafkaProducer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("bus: at least one broker is required")
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ClientID(cfg.ClientID),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerLinger(cfg.Linger),
		kgo.MaxBufferedRecords(cfg.MaxBufferedRecords),
		kgo.ProducerBatchMaxBytes(cfg.BatchMaxBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("bus: create kafka producer: %w", err)
	}

	log.Info().Strs("brokers", cfg.Brokers).Str("client_id", cfg.ClientID).Msg("bus: kafka producer created")
	return &KafkaProducer{
		client: client,
		defaultHeaders: map[string]string{
			"producer":       cfg.ClientID,
			"schema_version": SchemaVersion,
		},
	}, nil
}

// toRecord converts msg to a kgo.Record, adding default headers and an
// event id when missing.
func (p *KafkaProducer) toRecord(msg Message) *kgo.Record {
	headers := make([]kgo.RecordHeader, 0, len(msg.Headers)+len(p.defaultHeaders)+1)
	for k, v := range msg.Headers {
		headers = append(headers, kgo.RecordHeader{Key: k, Value: []byte(v)})
	}
	for k, v := range p.defaultHeaders {
		if _, ok := msg.Headers[k]; !ok {
			headers = append(headers, kgo.RecordHeader{Key: k, Value: []byte(v)})
		}
	}
	if _, ok := msg.Headers["event_id"]; !ok {
		headers = append(headers, kgo.RecordHeader{Key: "event_id", Value: []byte(uuid.NewString())})
	}

	ts := msg.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return &kgo.Record{
		Topic:     msg.Topic,
		Key:       []byte(msg.Key),
		Value:     msg.Value,
		Headers:   headers,
		Timestamp: ts,
	}
}

func (p *KafkaProducer) isClosed() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.closed
}

// Publish sends msg synchronously.
func (p *KafkaProducer) Publish(ctx context.Context, msg Message) error {
	if p.isClosed() {
		return ErrClosed
	}
	results := p.client.ProduceSync(ctx, p.toRecord(msg))
	if err := results.FirstErr(); err != nil {
		log.Error().Err(err).Str("topic", msg.Topic).Str("key", msg.Key).Msg("bus: publish failed")
		return fmt.Errorf("bus: publish to %s: %w", msg.Topic, err)
	}
	r := results[0].Record
	log.Debug().Str("topic", r.Topic).Int32("partition", r.Partition).Int64("offset", r.Offset).Msg("bus: published")
	return nil
}

// PublishJSON marshals value and publishes it synchronously.
func (p *KafkaProducer) PublishJSON(ctx context.Context, topic, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("bus: marshal %s: %w", topic, err)
	}
	return p.Publish(ctx, Message{Topic: topic, Key: key, Value: data})
}

// Flush waits for all buffered records.
func (p *KafkaProducer) Flush(ctx context.Context) error {
	return p.client.Flush(ctx)
}

// Close flushes pending records and shuts down the client.
func (p *KafkaProducer) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	p.client.Close()
	log.Info().Msg("bus: kafka producer closed")
}

// --- Stub producer for development/testing ---

// StubProducer captures messages in memory.
type StubProducer struct {
	mu       sync.Mutex
	messages []Message
	err      error
}

// NewStubProducer creates an in-memory producer.
func NewStubProducer() *StubProducer {
	return &StubProducer{}
}

// SetError makes every subsequent publish fail with err.
func (p *StubProducer) SetError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

// Messages returns a copy of the captured messages.
func (p *StubProducer) Messages() []Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Message, len(p.messages))
	copy(out, p.messages)
	return out
}

// Topic returns the captured messages published to topic.
func (p *StubProducer) Topic(topic string) []Message {
	var out []Message
	for _, m := range p.Messages() {
		if m.Topic == topic {
			out = append(out, m)
		}
	}
	return out
}

func (p *StubProducer) Publish(_ context.Context, msg Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.messages = append(p.messages, msg)
	return nil
}

func (p *StubProducer) PublishJSON(ctx context.Context, topic, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return p.Publish(ctx, Message{Topic: topic, Key: key, Value: data})
}

func (p *StubProducer) Flush(context.Context) error { return nil }

func (p *StubProducer) Close() {
	log.Debug().Msg("bus: stub producer closed")
}
