package bus

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"
)

func TestStubProducer_CapturesJSON(t *testing.T) {
	p := NewStubProducer()
	ev := WalletAnalyzed{
		BaseEvent:  NewBaseEvent("test", time.Unix(1700000000, 0)),
		Wallet:     "w1",
		TrustScore: 42,
		RiskRating: "Medium",
	}
	require.NoError(t, p.PublishJSON(context.Background(), TopicWalletAnalyzed, "w1", ev))

	msgs := p.Topic(TopicWalletAnalyzed)
	require.Len(t, msgs, 1)
	assert.Equal(t, "w1", msgs[0].Key)

	var got WalletAnalyzed
	require.NoError(t, json.Unmarshal(msgs[0].Value, &got))
	assert.Equal(t, 42, got.TrustScore)
	assert.Equal(t, SchemaVersion, got.SchemaVersion)
	assert.NotEmpty(t, got.EventID)
	assert.Empty(t, p.Topic(TopicAlerts))
}

func TestStubProducer_Error(t *testing.T) {
	p := NewStubProducer()
	p.SetError(errors.New("broker down"))
	assert.Error(t, p.Publish(context.Background(), Message{Topic: TopicAudit}))
	assert.Empty(t, p.Messages())
}

func TestKafkaProducer_ToRecordHeaders(t *testing.T) {
	p := &KafkaProducer{defaultHeaders: map[string]string{"producer": "walletscope", "schema_version": SchemaVersion}}

	rec := p.toRecord(Message{
		Topic:   TopicAlerts,
		Key:     "w1",
		Value:   []byte(`{}`),
		Headers: map[string]string{"producer": "override"},
	})

	headers := map[string]string{}
	for _, h := range rec.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, "override", headers["producer"])
	assert.Equal(t, SchemaVersion, headers["schema_version"])
	assert.NotEmpty(t, headers["event_id"])
	assert.False(t, rec.Timestamp.IsZero())
	assert.Equal(t, []byte("w1"), rec.Key)
}

func TestRecordToMessage(t *testing.T) {
	ts := time.Unix(1700000000, 0)
	msg := recordToMessage(&kgo.Record{
		Topic:     TopicAnalysisRequests,
		Key:       []byte("w1"),
		Value:     []byte(`{"wallet":"w1"}`),
		Headers:   []kgo.RecordHeader{{Key: "event_id", Value: []byte("e1")}},
		Timestamp: ts,
	})
	assert.Equal(t, TopicAnalysisRequests, msg.Topic)
	assert.Equal(t, "w1", msg.Key)
	assert.Equal(t, "e1", msg.Headers["event_id"])
	assert.Equal(t, ts, msg.Timestamp)
}

func TestNewProducer_RequiresBrokers(t *testing.T) {
	_, err := NewProducer(Config{})
	assert.Error(t, err)

	_, err = NewConsumer(DefaultConfig())
	assert.Error(t, err)
}
