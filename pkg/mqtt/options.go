package mqtt

import (
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// Connection constants.
const (
	// DefaultConnectTimeout is the maximum time to wait for a connect attempt.
	DefaultConnectTimeout = 30 * time.Second

	// defaultAckTimeout bounds how long the transport waits for a publish
	// acknowledgement before failing the write.
	defaultAckTimeout = 30 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending operations on disconnect.
	defaultDisconnectQuiesce = 250 // milliseconds

	// defaultKeepAlive is the keepalive interval for the connection.
	defaultKeepAlive = 60 * time.Second

	// maxPayloadSize bounds outgoing payloads (131072 bytes is the broker limit).
	maxPayloadSize = 128 << 10

	// inboundQueueSize is the number of received messages buffered between
	// the transport and the delivery goroutine.
	inboundQueueSize = 256

	// tlsMinVersion is the minimum TLS version for secure connections.
	tlsMinVersion = tls.VersionTLS12
)

// Options configures a session and its connection manager.
type Options struct {
	// BrokerURL is scheme://host:port, scheme one of tcp, ssl, ws, wss.
	BrokerURL string

	ClientID string
	Username string
	Password string

	// TLSConfig is used for ssl:// and wss:// brokers. A nil value gets a
	// TLS 1.2 minimum default.
	TLSConfig *tls.Config

	// CleanSession discards broker-side session state on connect.
	CleanSession bool

	KeepAlive time.Duration

	// ConnectTimeout bounds each connect attempt, including reconnects.
	ConnectTimeout time.Duration

	// AckTimeout bounds the wait for a QoS 1/2 acknowledgement.
	AckTimeout time.Duration

	// Backoff schedules reconnect attempts after a lost connection.
	Backoff Backoff

	// Logger receives lifecycle logs. Nil discards them.
	Logger Logger
}

// withDefaults fills zero values.
func (o Options) withDefaults() Options {
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = DefaultConnectTimeout
	}
	if o.AckTimeout <= 0 {
		o.AckTimeout = defaultAckTimeout
	}
	if o.KeepAlive <= 0 {
		o.KeepAlive = defaultKeepAlive
	}
	if o.Backoff == (Backoff{}) {
		o.Backoff = DefaultBackoff()
	}
	o.Logger = orNop(o.Logger)
	return o
}

// secure reports whether the broker URL uses TLS.
func (o Options) secure() bool {
	return strings.HasPrefix(o.BrokerURL, "ssl://") ||
		strings.HasPrefix(o.BrokerURL, "tls://") ||
		strings.HasPrefix(o.BrokerURL, "wss://")
}

// validate checks the fields the transport cannot default.
func (o Options) validate() error {
	if o.BrokerURL == "" {
		return fmt.Errorf("%w: broker URL is required", ErrInvalidOptions)
	}
	if o.ClientID == "" {
		return fmt.Errorf("%w: client ID is required", ErrInvalidOptions)
	}
	return nil
}

// buildClientOptions creates paho MQTT options.
//
// This configures:
//   - Broker URL and client ID
//   - Authentication credentials (if provided)
//   - TLS configuration for secure schemes
//   - Ordered delivery on a single router goroutine
//   - Auto-reconnect disabled: the Manager owns the reconnect loop
func buildClientOptions(o Options) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	opts.AddBroker(o.BrokerURL)
	opts.SetClientID(o.ClientID)

	if o.Username != "" {
		opts.SetUsername(o.Username)
		opts.SetPassword(o.Password)
	}

	opts.SetCleanSession(o.CleanSession)
	opts.SetOrderMatters(true)

	opts.SetAutoReconnect(false)
	opts.SetConnectRetry(false)

	opts.SetConnectTimeout(o.ConnectTimeout)
	opts.SetWriteTimeout(o.AckTimeout)
	opts.SetKeepAlive(o.KeepAlive)

	if o.secure() {
		tlsConfig := o.TLSConfig
		if tlsConfig == nil {
			tlsConfig = &tls.Config{MinVersion: tlsMinVersion}
		}
		opts.SetTLSConfig(tlsConfig)
	}

	return opts
}
