// Package mqtt owns the single broker connection: its state machine, subscriptions,
// publishing and the hand-off of inbound traffic away from the network loop.
package mqtt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/sony/gobreaker"
	"github.com/xj1core/cloud-bridge/internal/domain/model"
)

// disconnectQuiesce is how long paho may spend flushing in-flight work on Disconnect, in ms.
const disconnectQuiesce = 250

var errPublishWait = errors.New("publish result not reported in time")

// InboundSink receives provisional records in broker delivery order.
type InboundSink interface {
	Deliver(ctx context.Context, rec model.Record) error
}

// StateListener observes every connection state transition.
type StateListener interface {
	OnBrokerState(st model.BrokerStatus)
}

// Endpoint identifies the broker to dial.
type Endpoint struct {
	Host             string
	Port             int
	KeepaliveSeconds int
}

func (e Endpoint) URL() string {
	return "tcp://" + net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// Connector implements the broker link.
//
// [OWNERSHIP]
// The connector is the only writer of the connection state. Readers go through Status.
type Connector struct {
	cfg     connectorConfig
	logger  *slog.Logger
	sink    InboundSink
	breaker *gobreaker.CircuitBreaker

	// connectMu serializes Connect/Reconnect callers.
	connectMu sync.Mutex

	mu        sync.RWMutex
	state     model.ConnectionState
	client    paho.Client
	endpoint  Endpoint
	ready     chan struct{}
	topics    []string
	listeners []StateListener

	// [MAILBOX]
	// Decouples the paho network loop from downstream consumers.
	mailbox chan model.Record
	dropped atomic.Uint64

	// [STATE_QUEUE]
	// Transitions are queued under mu and never block; the dispatcher drains them in order.
	stateMu     sync.Mutex
	states      []model.BrokerStatus
	stateSignal chan struct{}

	doneCh    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func NewConnector(logger *slog.Logger, sink InboundSink, opts ...Option) *Connector {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	c := &Connector{
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "mqtt")),
		sink:    sink,
		mailbox:     make(chan model.Record, cfg.mailboxSize),
		stateSignal: make(chan struct{}, 1),
		doneCh:      make(chan struct{}),
	}

	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "mqtt-publish",
		Timeout: cfg.breakerCooloff,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return cfg.breakerTrips > 0 && counts.ConsecutiveFailures >= cfg.breakerTrips
		},
		// A caller that gave up says nothing about the broker.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn("PUBLISH_BREAKER_STATE", "breaker", name, "from", from.String(), "to", to.String())
		},
	})

	c.wg.Add(1)
	go c.loop()
	return c
}

// AddStateListener registers l for all subsequent transitions.
func (c *Connector) AddStateListener(l StateListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, l)
}

// Status returns the current connection state and the configured endpoint.
func (c *Connector) Status() model.BrokerStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.statusLocked()
}

func (c *Connector) statusLocked() model.BrokerStatus {
	return model.BrokerStatus{State: c.state, Host: c.endpoint.Host, Port: c.endpoint.Port}
}

func (c *Connector) State() model.ConnectionState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Dropped reports how many inbound messages were shed because the mailbox was full.
func (c *Connector) Dropped() uint64 { return c.dropped.Load() }

// Connect dials ep and blocks until the broker acknowledges the session or timeout elapses.
// It is a no-op when already connected.
func (c *Connector) Connect(ctx context.Context, ep Endpoint, timeout time.Duration) error {
	c.connectMu.Lock()
	defer c.connectMu.Unlock()

	select {
	case <-c.doneCh:
		return fmt.Errorf("%w: connector closed", model.ErrConnectFailed)
	default:
	}

	c.mu.Lock()
	if c.state == model.StateConnected {
		c.mu.Unlock()
		return nil
	}
	ready := make(chan struct{})
	client := c.cfg.newClient(c.clientOptions(ep, timeout))
	c.client = client
	c.endpoint = ep
	c.ready = ready
	c.setStateLocked(model.StateConnecting)
	c.mu.Unlock()

	c.logger.Info("MQTT_CONNECTING", "broker", ep.URL(), "timeout", timeout)

	timer := c.cfg.clock.NewTimer(timeout)
	defer timer.Stop()

	token := client.Connect()
	tokenDone := token.Done()

	for {
		select {
		case <-ready:
			return nil

		case <-tokenDone:
			if err := token.Error(); err != nil {
				c.abandon(client)
				c.logger.Error("MQTT_CONNECT_FAILED", "broker", ep.URL(), "err", err)
				return fmt.Errorf("%w: %w", model.ErrConnectFailed, err)
			}
			// Session accepted; OnConnect closes ready shortly.
			tokenDone = nil

		case <-timer.Chan():
			c.abandon(client)
			c.logger.Error("MQTT_CONNECT_TIMEOUT", "broker", ep.URL(), "timeout", timeout)
			return fmt.Errorf("%w after %s", model.ErrConnectTimeout, timeout)

		case <-ctx.Done():
			c.abandon(client)
			return ctx.Err()
		}
	}
}

// abandon tears down a connect attempt that did not complete. Late callbacks from
// the abandoned client are ignored because it is no longer the current client.
func (c *Connector) abandon(client paho.Client) {
	c.mu.Lock()
	if c.client == client {
		c.client = nil
		c.setStateLocked(model.StateDisconnected)
	}
	c.mu.Unlock()

	client.Disconnect(0)
}

// Disconnect closes the broker link. Safe to call repeatedly.
func (c *Connector) Disconnect() {
	c.mu.Lock()
	client := c.client
	c.client = nil
	c.setStateLocked(model.StateDisconnected)
	c.mu.Unlock()

	if client != nil {
		client.Disconnect(disconnectQuiesce)
		c.logger.Info("MQTT_DISCONNECTED")
	}
}

// Reconnect drops the current link and dials the last endpoint again.
func (c *Connector) Reconnect(ctx context.Context, timeout time.Duration) error {
	c.mu.RLock()
	ep := c.endpoint
	c.mu.RUnlock()

	if ep.Host == "" {
		return fmt.Errorf("%w: no endpoint has been dialed yet", model.ErrConnectFailed)
	}

	c.Disconnect()
	return c.Connect(ctx, ep, timeout)
}

// Subscribe records topic and subscribes right away when connected.
// Recorded topics are re-applied after every successful (re)connect.
func (c *Connector) Subscribe(topic string) error {
	c.mu.Lock()
	known := false
	for _, t := range c.topics {
		if t == topic {
			known = true
			break
		}
	}
	if !known {
		c.topics = append(c.topics, topic)
	}
	client, state := c.client, c.state
	c.mu.Unlock()

	if state != model.StateConnected || client == nil {
		c.logger.Debug("MQTT_SUBSCRIBE_DEFERRED", "topic", topic)
		return nil
	}
	return c.subscribe(client, topic)
}

func (c *Connector) subscribe(client paho.Client, topic string) error {
	token := client.Subscribe(topic, c.cfg.qos, c.onMessage)
	if !token.WaitTimeout(c.cfg.publishTimeout) {
		return fmt.Errorf("mqtt: subscribe %q: %w", topic, errPublishWait)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt: subscribe %q: %w", topic, err)
	}
	c.logger.Info("MQTT_SUBSCRIBED", "topic", topic)
	return nil
}

// Publish hands payload to the client. It never waits for broker acknowledgement
// beyond the client's own send result, bounded by the publish timeout.
func (c *Connector) Publish(ctx context.Context, topic string, payload []byte) error {
	c.mu.RLock()
	client, state := c.client, c.state
	c.mu.RUnlock()

	if state != model.StateConnected || client == nil {
		return model.ErrNotConnected
	}

	_, err := c.breaker.Execute(func() (any, error) {
		token := client.Publish(topic, c.cfg.qos, false, payload)

		timer := c.cfg.clock.NewTimer(c.cfg.publishTimeout)
		defer timer.Stop()

		select {
		case <-token.Done():
			return nil, token.Error()
		case <-timer.Chan():
			return nil, errPublishWait
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return ctxErr
		}
		return fmt.Errorf("%w: %w", model.ErrPublishFailed, err)
	}
	return nil
}

// Close disconnects and stops the dispatcher. The connector is unusable afterwards.
func (c *Connector) Close() {
	c.Disconnect()
	c.closeOnce.Do(func() {
		close(c.doneCh)
	})
	c.wg.Wait()
}

func (c *Connector) clientOptions(ep Endpoint, timeout time.Duration) *paho.ClientOptions {
	opts := paho.NewClientOptions().
		AddBroker(ep.URL()).
		SetClientID(c.cfg.clientID).
		SetKeepAlive(time.Duration(ep.KeepaliveSeconds) * time.Second).
		SetCleanSession(true).
		SetOrderMatters(true).
		SetAutoReconnect(false).
		SetConnectRetry(false).
		SetConnectTimeout(timeout).
		SetDefaultPublishHandler(c.onMessage).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(c.onConnectionLost)

	if c.cfg.username != "" {
		opts.SetUsername(c.cfg.username)
		opts.SetPassword(c.cfg.password)
	}
	return opts
}

// --- paho callbacks (run on paho goroutines) ---

func (c *Connector) onConnect(client paho.Client) {
	c.mu.Lock()
	if c.client != client {
		c.mu.Unlock()
		c.logger.Warn("MQTT_STALE_CONNECT_IGNORED")
		client.Disconnect(0)
		return
	}
	c.setStateLocked(model.StateConnected)
	topics := append([]string(nil), c.topics...)
	ready := c.ready
	c.ready = nil
	ep := c.endpoint
	c.mu.Unlock()

	if ready != nil {
		close(ready)
	}
	c.logger.Info("MQTT_CONNECTED", "broker", ep.URL())

	for _, topic := range topics {
		if err := c.subscribe(client, topic); err != nil {
			c.logger.Error("MQTT_RESUBSCRIBE_FAILED", "topic", topic, "err", err)
		}
	}
}

func (c *Connector) onConnectionLost(client paho.Client, err error) {
	c.mu.Lock()
	if c.client != client {
		c.mu.Unlock()
		return
	}
	c.setStateLocked(model.StateDisconnected)
	c.mu.Unlock()

	c.logger.Warn("MQTT_CONNECTION_LOST", "err", err)
}

func (c *Connector) onMessage(_ paho.Client, msg paho.Message) {
	payload := msg.Payload()
	if !utf8.Valid(payload) {
		c.logger.Error("MQTT_DECODE_FAILED", "topic", msg.Topic(), "err", model.ErrDecode, "bytes", len(payload))
		return
	}

	rec := model.Record{
		Timestamp: c.cfg.clock.Now(),
		Topic:     msg.Topic(),
		Content:   string(payload),
		Direction: model.DirectionReceived,
	}

	select {
	case c.mailbox <- rec:
	default:
		c.dropped.Add(1)
		c.logger.Warn("MQTT_MAILBOX_FULL", "topic", rec.Topic, "dropped_total", c.dropped.Load())
	}
}

// setStateLocked must be called with mu held. Listeners are notified from the dispatcher.
func (c *Connector) setStateLocked(s model.ConnectionState) {
	if c.state == s {
		return
	}
	c.state = s

	c.stateMu.Lock()
	c.states = append(c.states, c.statusLocked())
	c.stateMu.Unlock()

	select {
	case c.stateSignal <- struct{}{}:
	default:
	}
}

func (c *Connector) takeStates() []model.BrokerStatus {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	states := c.states
	c.states = nil
	return states
}

// loop is the single dispatcher: it preserves the broker's delivery order and
// the order of state transitions.
func (c *Connector) loop() {
	defer c.wg.Done()
	for {
		select {
		case <-c.doneCh:
			return

		case <-c.stateSignal:
			c.mu.RLock()
			listeners := append([]StateListener(nil), c.listeners...)
			c.mu.RUnlock()
			for _, st := range c.takeStates() {
				for _, l := range listeners {
					l.OnBrokerState(st)
				}
			}

		case rec := <-c.mailbox:
			if err := c.sink.Deliver(context.Background(), rec); err != nil {
				c.logger.Error("MQTT_INBOUND_DELIVERY_FAILED", "topic", rec.Topic, "err", err)
			}
		}
	}
}
