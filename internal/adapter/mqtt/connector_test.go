package mqtt

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xj1core/cloud-bridge/internal/domain/model"
)

var testEndpoint = Endpoint{Host: "10.0.0.1", Port: 1883, KeepaliveSeconds: 60}

type recordingSink struct {
	mu   sync.Mutex
	recs []model.Record
}

func (s *recordingSink) Deliver(_ context.Context, rec model.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs = append(s.recs, rec)
	return nil
}

func (s *recordingSink) records() []model.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Record(nil), s.recs...)
}

type recordingListener struct {
	mu     sync.Mutex
	states []model.ConnectionState
}

func (l *recordingListener) OnBrokerState(st model.BrokerStatus) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.states = append(l.states, st.State)
}

func (l *recordingListener) seen() []model.ConnectionState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]model.ConnectionState(nil), l.states...)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestConnector(t *testing.T, broker *fakeBroker, opts ...Option) (*Connector, *recordingSink) {
	t.Helper()
	sink := &recordingSink{}
	opts = append([]Option{WithClientFactory(broker.factory)}, opts...)
	c := NewConnector(discardLogger(), sink, opts...)
	t.Cleanup(c.Close)
	return c, sink
}

func TestConnector_ConnectSucceeds(t *testing.T) {
	broker := newFakeBroker()
	c, _ := newTestConnector(t, broker)

	require.NoError(t, c.Connect(context.Background(), testEndpoint, time.Second))

	st := c.Status()
	assert.Equal(t, model.StateConnected, st.State)
	assert.Equal(t, "10.0.0.1", st.Host)
	assert.Equal(t, 1883, st.Port)

	// Already connected: no new client is dialed.
	require.NoError(t, c.Connect(context.Background(), testEndpoint, time.Second))
	assert.Equal(t, 1, broker.clientCount())
}

func TestConnector_ConnectTimeout(t *testing.T) {
	broker := newFakeBroker()
	broker.acceptConnect = false
	clock := clockwork.NewFakeClock()
	c, _ := newTestConnector(t, broker, WithClock(clock))

	errCh := make(chan error, 1)
	go func() {
		errCh <- c.Connect(context.Background(), testEndpoint, 10*time.Second)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	assert.Equal(t, model.StateConnecting, c.State())

	clock.Advance(10 * time.Second)

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, model.ErrConnectTimeout)
	case <-time.After(2 * time.Second):
		t.Fatal("connect did not give up after the timeout")
	}
	assert.Equal(t, model.StateDisconnected, c.State())
}

func TestConnector_ConnectRefused(t *testing.T) {
	broker := newFakeBroker()
	broker.connectErr = errors.New("connection refused")
	c, _ := newTestConnector(t, broker)

	err := c.Connect(context.Background(), testEndpoint, time.Second)
	require.ErrorIs(t, err, model.ErrConnectFailed)
	assert.Equal(t, model.StateDisconnected, c.State())
}

func TestConnector_ConnectCancelled(t *testing.T) {
	broker := newFakeBroker()
	broker.acceptConnect = false
	c, _ := newTestConnector(t, broker)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := c.Connect(ctx, testEndpoint, time.Minute)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, model.StateDisconnected, c.State())
}

func TestConnector_DisconnectIsIdempotent(t *testing.T) {
	broker := newFakeBroker()
	c, _ := newTestConnector(t, broker)
	require.NoError(t, c.Connect(context.Background(), testEndpoint, time.Second))

	c.Disconnect()
	c.Disconnect()

	assert.Equal(t, model.StateDisconnected, c.State())
	assert.Equal(t, 1, broker.last().disconnects)
}

func TestConnector_PublishRequiresConnection(t *testing.T) {
	broker := newFakeBroker()
	c, _ := newTestConnector(t, broker)

	err := c.Publish(context.Background(), "xj1core/data/send", []byte(`{}`))
	require.ErrorIs(t, err, model.ErrNotConnected)
	assert.Zero(t, broker.publishedCount())
}

func TestConnector_PublishDelivers(t *testing.T) {
	broker := newFakeBroker()
	c, _ := newTestConnector(t, broker)
	require.NoError(t, c.Connect(context.Background(), testEndpoint, time.Second))

	require.NoError(t, c.Publish(context.Background(), "xj1core/data/send", []byte(`{"message":"hi"}`)))

	require.Equal(t, 1, broker.publishedCount())
	assert.Equal(t, "xj1core/data/send", broker.published[0].topic)
	assert.JSONEq(t, `{"message":"hi"}`, string(broker.published[0].payload))
}

func TestConnector_PublishFailureAndBreaker(t *testing.T) {
	broker := newFakeBroker()
	c, _ := newTestConnector(t, broker, WithBreaker(2, time.Minute))
	require.NoError(t, c.Connect(context.Background(), testEndpoint, time.Second))

	broker.mu.Lock()
	broker.publishErr = errors.New("write: broken pipe")
	broker.mu.Unlock()

	for range 2 {
		err := c.Publish(context.Background(), "t", []byte("x"))
		require.ErrorIs(t, err, model.ErrPublishFailed)
	}

	broker.mu.Lock()
	broker.publishErr = nil
	broker.mu.Unlock()

	// Breaker is open now: the client is not even asked.
	err := c.Publish(context.Background(), "t", []byte("x"))
	require.ErrorIs(t, err, model.ErrPublishFailed)
	require.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Zero(t, broker.publishedCount())
}

func TestConnector_ResubscribesAfterReconnect(t *testing.T) {
	broker := newFakeBroker()
	c, _ := newTestConnector(t, broker)

	// Recorded while disconnected, applied on connect.
	require.NoError(t, c.Subscribe("xj1core/data/receive"))
	assert.Empty(t, broker.subscriptions())

	require.NoError(t, c.Connect(context.Background(), testEndpoint, time.Second))
	require.Eventually(t, func() bool { return len(broker.subscriptions()) == 1 }, time.Second, 5*time.Millisecond)

	broker.last().drop(errors.New("EOF"))
	require.Eventually(t, func() bool { return c.State() == model.StateDisconnected }, time.Second, 5*time.Millisecond)

	require.NoError(t, c.Reconnect(context.Background(), time.Second))
	require.Eventually(t, func() bool { return len(broker.subscriptions()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"xj1core/data/receive", "xj1core/data/receive"}, broker.subscriptions())
}

func TestConnector_ReconnectWithoutEndpoint(t *testing.T) {
	c, _ := newTestConnector(t, newFakeBroker())

	err := c.Reconnect(context.Background(), time.Second)
	require.ErrorIs(t, err, model.ErrConnectFailed)
}

func TestConnector_InboundOrderAndDecode(t *testing.T) {
	broker := newFakeBroker()
	c, sink := newTestConnector(t, broker)
	require.NoError(t, c.Subscribe("xj1core/data/receive"))
	require.NoError(t, c.Connect(context.Background(), testEndpoint, time.Second))
	require.Eventually(t, func() bool { return len(broker.subscriptions()) == 1 }, time.Second, 5*time.Millisecond)

	client := broker.last()
	client.deliver("xj1core/data/receive", []byte("first"))
	client.deliver("xj1core/data/receive", []byte{0xff, 0xfe, 0xfd})
	client.deliver("xj1core/data/receive", []byte("第二"))
	client.deliver("xj1core/data/receive", []byte("third"))

	require.Eventually(t, func() bool { return len(sink.records()) == 3 }, time.Second, 5*time.Millisecond)

	recs := sink.records()
	got := make([]string, 0, len(recs))
	for _, r := range recs {
		got = append(got, r.Content)
		assert.Equal(t, model.DirectionReceived, r.Direction)
		assert.Equal(t, "xj1core/data/receive", r.Topic)
	}
	assert.Equal(t, []string{"first", "第二", "third"}, got)
}

func TestConnector_MailboxOverflowIsCounted(t *testing.T) {
	broker := newFakeBroker()
	block := make(chan struct{})
	sink := &blockingSink{release: block}
	c := NewConnector(discardLogger(), sink, WithClientFactory(broker.factory), WithMailboxSize(1))
	t.Cleanup(func() {
		close(block)
		c.Close()
	})
	require.NoError(t, c.Connect(context.Background(), testEndpoint, time.Second))

	client := broker.last()
	// One message is held by the blocked sink, one fills the mailbox, the rest overflow.
	for range 5 {
		client.deliver("t", []byte("m"))
	}

	require.Eventually(t, func() bool { return c.Dropped() >= 3 }, time.Second, 5*time.Millisecond)
}

type blockingSink struct {
	release chan struct{}
}

func (s *blockingSink) Deliver(ctx context.Context, _ model.Record) error {
	select {
	case <-s.release:
	case <-ctx.Done():
	}
	return nil
}

func TestConnector_NotifiesListenersInOrder(t *testing.T) {
	broker := newFakeBroker()
	c, _ := newTestConnector(t, broker)
	l := &recordingListener{}
	c.AddStateListener(l)

	require.NoError(t, c.Connect(context.Background(), testEndpoint, time.Second))
	c.Disconnect()

	want := []model.ConnectionState{model.StateConnecting, model.StateConnected, model.StateDisconnected}
	require.Eventually(t, func() bool { return len(l.seen()) == len(want) }, time.Second, 5*time.Millisecond)
	assert.Equal(t, want, l.seen())
}

func TestConnector_StaleConnectIgnored(t *testing.T) {
	broker := newFakeBroker()
	broker.acceptConnect = false
	c, _ := newTestConnector(t, broker)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.Error(t, c.Connect(ctx, testEndpoint, time.Minute))

	stale := broker.last()
	c.onConnect(stale)

	assert.Equal(t, model.StateDisconnected, c.State())
	assert.False(t, stale.IsConnected())
}

func TestEndpoint_URL(t *testing.T) {
	assert.Equal(t, "tcp://localhost:1883", Endpoint{Host: "localhost", Port: 1883}.URL())
	assert.Equal(t, "tcp://[::1]:8883", Endpoint{Host: "::1", Port: 8883}.URL())
}

func TestConnector_ConnectAfterCloseFails(t *testing.T) {
	broker := newFakeBroker()
	c, _ := newTestConnector(t, broker)
	c.Close()

	err := c.Connect(context.Background(), testEndpoint, time.Second)
	require.ErrorIs(t, err, model.ErrConnectFailed)
	assert.Zero(t, broker.clientCount())
}

func TestConnector_CancelledPublishDoesNotTripBreaker(t *testing.T) {
	broker := newFakeBroker()
	c, _ := newTestConnector(t, broker, WithBreaker(2, time.Minute))
	require.NoError(t, c.Connect(context.Background(), testEndpoint, time.Second))

	broker.mu.Lock()
	broker.holdPublish = true
	broker.mu.Unlock()

	for range 3 {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := c.Publish(ctx, "t", []byte("x"))
		require.ErrorIs(t, err, context.Canceled)
		assert.NotErrorIs(t, err, model.ErrPublishFailed)
	}

	broker.mu.Lock()
	broker.holdPublish = false
	broker.mu.Unlock()

	require.NoError(t, c.Publish(context.Background(), "t", []byte("x")))
	assert.Equal(t, 1, broker.publishedCount())
}

// blockingListener holds the dispatcher inside its first callback until released.
type blockingListener struct {
	recordingListener
	release chan struct{}
	once    sync.Once
}

func (l *blockingListener) OnBrokerState(st model.BrokerStatus) {
	l.once.Do(func() { <-l.release })
	l.recordingListener.OnBrokerState(st)
}

func TestConnector_TransitionsNeverBlockOnSlowListener(t *testing.T) {
	broker := newFakeBroker()
	c, _ := newTestConnector(t, broker)
	l := &blockingListener{release: make(chan struct{})}
	c.AddStateListener(l)

	const cycles = 40
	done := make(chan struct{})
	go func() {
		defer close(done)
		for range cycles {
			if err := c.Connect(context.Background(), testEndpoint, time.Second); err != nil {
				return
			}
			c.Disconnect()
			_ = c.Status()
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		close(l.release)
		t.Fatal("state transitions blocked behind a slow listener")
	}
	close(l.release)

	want := make([]model.ConnectionState, 0, cycles*3)
	for range cycles {
		want = append(want, model.StateConnecting, model.StateConnected, model.StateDisconnected)
	}
	require.Eventually(t, func() bool { return len(l.seen()) == len(want) }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, want, l.seen())
}
