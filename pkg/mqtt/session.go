package mqtt

import (
	"context"
	"errors"
	"fmt"
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/eclipse/paho.mqtt.golang/packets"
)

// Session is the transport primitive the Manager drives.
//
// Implementations deliver inbound messages in transport order on a single
// goroutine and report an unexpected loss of connection exactly once per
// established connection. Blocking calls must return when ctx is done.
type Session interface {
	Connect(ctx context.Context) error
	Disconnect()
	Publish(ctx context.Context, topic string, qos QoS, retain bool, payload []byte) error
	Subscribe(ctx context.Context, filter string, qos QoS) error
	Unsubscribe(ctx context.Context, filters ...string) error
	SetHandlers(onMessage func(topic string, payload []byte), onLost func(err error))
}

// PahoSession is a Session backed by eclipse/paho.mqtt.golang.
type PahoSession struct {
	client pahomqtt.Client

	mu        sync.RWMutex
	onMessage func(topic string, payload []byte)
	onLost    func(err error)
}

// NewPahoSession creates an unconnected paho-backed session.
func NewPahoSession(opts Options) (*PahoSession, error) {
	opts = opts.withDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}

	s := &PahoSession{}
	po := buildClientOptions(opts)
	po.SetDefaultPublishHandler(s.deliver)
	po.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		s.connectionLost(err)
	})
	s.client = pahomqtt.NewClient(po)
	return s, nil
}

// newSessionWithClient wraps an existing paho client. Used by tests.
func newSessionWithClient(c pahomqtt.Client) *PahoSession {
	return &PahoSession{client: c}
}

// SetHandlers implements Session.
func (s *PahoSession) SetHandlers(onMessage func(topic string, payload []byte), onLost func(err error)) {
	s.mu.Lock()
	s.onMessage = onMessage
	s.onLost = onLost
	s.mu.Unlock()
}

// Connect implements Session. Broker refusals for bad credentials map to
// ErrAuthentication, other failures to ErrNetwork, expiry of ctx to ErrTimeout.
func (s *PahoSession) Connect(ctx context.Context) error {
	token := s.client.Connect()
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return classifyConnectError(err)
		}
		return nil
	case <-ctx.Done():
		s.client.Disconnect(0)
		return fmt.Errorf("%w: connect: %w", ErrTimeout, ctx.Err())
	}
}

// Disconnect implements Session.
func (s *PahoSession) Disconnect() {
	if s.client.IsConnectionOpen() {
		s.client.Disconnect(defaultDisconnectQuiesce)
	}
}

// Publish implements Session.
func (s *PahoSession) Publish(ctx context.Context, topic string, qos QoS, retain bool, payload []byte) error {
	return wait(ctx, s.client.Publish(topic, byte(qos), retain, payload))
}

// Subscribe implements Session. Messages on the filter are routed to the
// handler installed by SetHandlers.
func (s *PahoSession) Subscribe(ctx context.Context, filter string, qos QoS) error {
	return wait(ctx, s.client.Subscribe(filter, byte(qos), s.deliver))
}

// Unsubscribe implements Session.
func (s *PahoSession) Unsubscribe(ctx context.Context, filters ...string) error {
	return wait(ctx, s.client.Unsubscribe(filters...))
}

// deliver is the paho message callback.
func (s *PahoSession) deliver(_ pahomqtt.Client, msg pahomqtt.Message) {
	s.mu.RLock()
	h := s.onMessage
	s.mu.RUnlock()
	if h != nil {
		h(msg.Topic(), msg.Payload())
	}
}

func (s *PahoSession) connectionLost(err error) {
	s.mu.RLock()
	h := s.onLost
	s.mu.RUnlock()
	if h != nil {
		h(err)
	}
}

// wait blocks until the token completes or ctx is done.
func wait(ctx context.Context, token pahomqtt.Token) error {
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func classifyConnectError(err error) error {
	switch {
	case errors.Is(err, packets.ErrorRefusedBadUsernameOrPassword),
		errors.Is(err, packets.ErrorRefusedNotAuthorised):
		return fmt.Errorf("%w: %w", ErrAuthentication, err)
	default:
		return fmt.Errorf("%w: %w", ErrNetwork, err)
	}
}
