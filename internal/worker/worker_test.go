package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexus-trading/walletscope/internal/bus"
	"github.com/nexus-trading/walletscope/internal/coordinator"
	"github.com/nexus-trading/walletscope/internal/solana"
)

const testWallet = "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"

type recordingSink struct {
	mu      sync.Mutex
	reports []*coordinator.Report
}

func (s *recordingSink) Record(_ context.Context, r *coordinator.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = append(s.reports, r)
	return nil
}

func (s *recordingSink) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.reports)
}

// queueConsumer replays a fixed set of messages, then waits for ctx.
type queueConsumer struct{ msgs []bus.Message }

func (q *queueConsumer) Consume(ctx context.Context, handler bus.MessageHandler) error {
	for _, m := range q.msgs {
		_ = handler(ctx, m)
	}
	<-ctx.Done()
	return ctx.Err()
}

func (q *queueConsumer) Close() {}

func newCoordinator(sink coordinator.Sink) *coordinator.Coordinator {
	stub := solana.NewStubRPCClient()
	return coordinator.New(coordinator.DefaultConfig(), coordinator.Deps{
		Holdings: stub,
		Activity: solana.NewActivityReader(stub, 2),
		Sinks:    []coordinator.Sink{sink},
	})
}

func TestHandle_RunsAnalysis(t *testing.T) {
	sink := &recordingSink{}
	w := New(&queueConsumer{}, newCoordinator(sink))

	err := w.Handle(context.Background(), bus.Message{
		Topic: bus.TopicAnalysisRequests,
		Value: []byte(`{"request_id":"r1","wallet":"` + testWallet + `"}`),
	})
	require.NoError(t, err)
	require.Len(t, sink.reports, 1)
	assert.Equal(t, testWallet, sink.reports[0].Wallet)
}

func TestHandle_WalletFromKey(t *testing.T) {
	sink := &recordingSink{}
	w := New(&queueConsumer{}, newCoordinator(sink))

	require.NoError(t, w.Handle(context.Background(), bus.Message{Key: testWallet, Value: []byte(`{}`)}))
	require.Len(t, sink.reports, 1)
}

func TestHandle_Errors(t *testing.T) {
	sink := &recordingSink{}
	w := New(&queueConsumer{}, newCoordinator(sink))

	assert.Error(t, w.Handle(context.Background(), bus.Message{Value: []byte(`not json`)}))

	err := w.Handle(context.Background(), bus.Message{Value: []byte(`{"wallet":"bad!"}`)})
	assert.ErrorIs(t, err, coordinator.ErrInvalidInput)
	assert.Empty(t, sink.reports)
}

func TestRun_StopsOnCancel(t *testing.T) {
	sink := &recordingSink{}
	q := &queueConsumer{msgs: []bus.Message{{Value: []byte(`{"wallet":"` + testWallet + `"}`)}}}
	w := New(q, newCoordinator(sink))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool { return sink.len() == 1 }, 2*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}
