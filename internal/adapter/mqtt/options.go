package mqtt

import (
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/jonboulle/clockwork"
)

// ClientFactory builds the underlying paho client. Swappable for tests.
type ClientFactory func(opts *paho.ClientOptions) paho.Client

type connectorConfig struct {
	clientID       string
	username       string
	password       string
	qos            byte
	mailboxSize    int
	publishTimeout time.Duration
	breakerTrips   uint32
	breakerCooloff time.Duration
	newClient      ClientFactory
	clock          clockwork.Clock
}

func defaultConfig() connectorConfig {
	return connectorConfig{
		clientID:       "xj1cloud-bridge",
		mailboxSize:    1024,
		publishTimeout: 5 * time.Second,
		breakerTrips:   5,
		breakerCooloff: 10 * time.Second,
		newClient:      paho.NewClient,
		clock:          clockwork.NewRealClock(),
	}
}

// Option defines a functional configuration type for the Connector.
type Option func(*connectorConfig)

func WithClientID(id string) Option {
	return func(c *connectorConfig) { c.clientID = id }
}

func WithCredentials(username, password string) Option {
	return func(c *connectorConfig) {
		c.username = username
		c.password = password
	}
}

func WithQoS(qos byte) Option {
	return func(c *connectorConfig) { c.qos = qos }
}

// WithMailboxSize sets the [BACKPRESSURE] threshold between the paho network loop
// and the inbound dispatcher.
func WithMailboxSize(size int) Option {
	return func(c *connectorConfig) {
		if size > 0 {
			c.mailboxSize = size
		}
	}
}

// WithPublishTimeout bounds how long Publish waits for the client to report the send result.
func WithPublishTimeout(d time.Duration) Option {
	return func(c *connectorConfig) {
		if d > 0 {
			c.publishTimeout = d
		}
	}
}

// WithBreaker configures the publish circuit breaker: it opens after trips
// consecutive failures and half-opens after cooloff.
func WithBreaker(trips uint32, cooloff time.Duration) Option {
	return func(c *connectorConfig) {
		c.breakerTrips = trips
		c.breakerCooloff = cooloff
	}
}

func WithClientFactory(f ClientFactory) Option {
	return func(c *connectorConfig) { c.newClient = f }
}

func WithClock(clock clockwork.Clock) Option {
	return func(c *connectorConfig) { c.clock = clock }
}
