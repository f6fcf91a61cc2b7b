package bus

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/twmb/franz-go/pkg/kgo"
)

// Topic names. Pattern: walletscope.<category>.<entity>
const (
	TopicWalletAnalyzed   = "walletscope.analysis.completed"
	TopicAlerts           = "walletscope.alerts"
	TopicAudit            = "walletscope.audit"
	TopicAnalysisRequests = "walletscope.requests.analyze"
	TopicHeartbeat        = "walletscope.heartbeat"
)

// TopicRetention maps topics to their retention in hours.
var TopicRetention = map[string]int{
	TopicWalletAnalyzed:   720,
	TopicAlerts:           720,
	TopicAudit:            8760,
	TopicAnalysisRequests: 72,
	TopicHeartbeat:        24,
}

// MessageHandler processes a consumed message. A returned error is logged;
// the offset is still committed.
type MessageHandler func(ctx context.Context, msg Message) error

// Consumer reads messages from subscribed topics.
type Consumer interface {
	// Consume runs the poll loop until ctx is cancelled.
	Consume(ctx context.Context, handler MessageHandler) error
	Close()
}

// KafkaConsumer is a consumer-group member backed by franz-go.
type KafkaConsumer struct {
	client  *kgo.Client
	groupID string
	topics  []string
	mu      sync.Mutex
	closed  bool
}

// NewConsumer joins cfg.ConsumerGroup and subscribes to topics, starting
// from the earliest offset for a new group.
func NewConsumer(cfg Config, topics ...string) (*KafkaConsumer, error) {
	if len(topics) == 0 {
		return nil, fmt.Errorf("bus: at least one topic is required")
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ClientID(cfg.ClientID),
		kgo.ConsumerGroup(cfg.ConsumerGroup),
		kgo.ConsumeTopics(topics...),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	if err != nil {
		return nil, fmt.Errorf("bus: create kafka consumer: %w", err)
	}

	log.Info().Strs("brokers", cfg.Brokers).Str("group_id", cfg.ConsumerGroup).Strs("topics", topics).
		Msg("bus: kafka consumer created")
	return &KafkaConsumer{client: client, groupID: cfg.ConsumerGroup, topics: topics}, nil
}

// Consume polls until ctx is cancelled. Handler errors do not stop the loop.
func (c *KafkaConsumer) Consume(ctx context.Context, handler MessageHandler) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("bus: consumer is closed")
	}
	c.mu.Unlock()

	for {
		fetches := c.client.PollFetches(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		for _, fe := range fetches.Errors() {
			log.Error().Err(fe.Err).Str("topic", fe.Topic).Int32("partition", fe.Partition).Msg("bus: fetch error")
		}
		fetches.EachRecord(func(r *kgo.Record) {
			if err := handler(ctx, recordToMessage(r)); err != nil {
				log.Error().Err(err).Str("topic", r.Topic).Int64("offset", r.Offset).Msg("bus: handler error")
			}
		})
		c.client.AllowRebalance()
	}
}

// Close leaves the group and commits final offsets.
func (c *KafkaConsumer) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.client.Close()
	log.Info().Str("group", c.groupID).Msg("bus: kafka consumer closed")
}

func recordToMessage(r *kgo.Record) Message {
	headers := make(map[string]string, len(r.Headers))
	for _, h := range r.Headers {
		headers[h.Key] = string(h.Value)
	}
	return Message{
		Topic:     r.Topic,
		Key:       string(r.Key),
		Value:     r.Value,
		Headers:   headers,
		Timestamp: r.Timestamp,
	}
}
