package mqtt

import (
	"errors"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// fakeToken completes immediately (or never, when pending is set).
type fakeToken struct {
	done chan struct{}
	err  error
}

func doneToken(err error) *fakeToken {
	t := &fakeToken{done: make(chan struct{}), err: err}
	close(t.done)
	return t
}

func pendingToken() *fakeToken {
	return &fakeToken{done: make(chan struct{})}
}

func (t *fakeToken) Wait() bool {
	<-t.done
	return true
}

func (t *fakeToken) WaitTimeout(d time.Duration) bool {
	select {
	case <-t.done:
		return true
	case <-time.After(d):
		return false
	}
}

func (t *fakeToken) Done() <-chan struct{} { return t.done }
func (t *fakeToken) Error() error          { return t.err }

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 0 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 0 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

type published struct {
	topic   string
	payload []byte
}

// fakeBroker hands out fakeClients and records what they were asked to do.
type fakeBroker struct {
	mu sync.Mutex

	// behaviour
	acceptConnect bool  // fire OnConnect on Connect
	connectErr    error // complete the connect token with this error
	publishErr    error
	holdPublish   bool // leave publish tokens pending

	// observations
	clients    []*fakeClient
	published  []published
	subscribed []string
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{acceptConnect: true}
}

func (b *fakeBroker) factory(opts *paho.ClientOptions) paho.Client {
	b.mu.Lock()
	defer b.mu.Unlock()
	c := &fakeClient{broker: b, opts: opts}
	b.clients = append(b.clients, c)
	return c
}

func (b *fakeBroker) last() *fakeClient {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.clients) == 0 {
		return nil
	}
	return b.clients[len(b.clients)-1]
}

func (b *fakeBroker) clientCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

func (b *fakeBroker) publishedCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.published)
}

func (b *fakeBroker) subscriptions() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.subscribed...)
}

type fakeClient struct {
	broker *fakeBroker
	opts   *paho.ClientOptions

	mu          sync.Mutex
	connected   bool
	disconnects int
	handler     paho.MessageHandler
}

var _ paho.Client = (*fakeClient)(nil)

func (c *fakeClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *fakeClient) IsConnectionOpen() bool { return c.IsConnected() }

func (c *fakeClient) Connect() paho.Token {
	c.broker.mu.Lock()
	accept, connErr := c.broker.acceptConnect, c.broker.connectErr
	c.broker.mu.Unlock()

	if connErr != nil {
		return doneToken(connErr)
	}
	if !accept {
		return pendingToken()
	}

	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()
	go c.opts.OnConnect(c)
	return doneToken(nil)
}

func (c *fakeClient) Disconnect(uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	c.disconnects++
}

func (c *fakeClient) Publish(topic string, _ byte, _ bool, payload interface{}) paho.Token {
	c.broker.mu.Lock()
	defer c.broker.mu.Unlock()
	if c.broker.publishErr != nil {
		return doneToken(c.broker.publishErr)
	}
	if c.broker.holdPublish {
		return pendingToken()
	}
	data, _ := payload.([]byte)
	c.broker.published = append(c.broker.published, published{topic: topic, payload: data})
	return doneToken(nil)
}

func (c *fakeClient) Subscribe(topic string, _ byte, cb paho.MessageHandler) paho.Token {
	c.mu.Lock()
	c.handler = cb
	c.mu.Unlock()

	c.broker.mu.Lock()
	c.broker.subscribed = append(c.broker.subscribed, topic)
	c.broker.mu.Unlock()
	return doneToken(nil)
}

func (c *fakeClient) SubscribeMultiple(map[string]byte, paho.MessageHandler) paho.Token {
	return doneToken(errors.New("not supported"))
}

func (c *fakeClient) Unsubscribe(...string) paho.Token { return doneToken(nil) }

func (c *fakeClient) AddRoute(string, paho.MessageHandler) {}

func (c *fakeClient) OptionsReader() paho.ClientOptionsReader {
	return paho.NewOptionsReader(c.opts)
}

// deliver simulates the broker pushing a message on the network loop.
func (c *fakeClient) deliver(topic string, payload []byte) {
	c.mu.Lock()
	h := c.handler
	c.mu.Unlock()
	if h == nil {
		h = c.opts.DefaultPublishHandler
	}
	h(c, fakeMessage{topic: topic, payload: payload})
}

// drop simulates an unexpected connection loss.
func (c *fakeClient) drop(err error) {
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
	c.opts.OnConnectionLost(c, err)
}
