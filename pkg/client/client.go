package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/ibm-messaging/iot-go/pkg/config"
	"github.com/ibm-messaging/iot-go/pkg/dispatch"
	"github.com/ibm-messaging/iot-go/pkg/envelope"
	"github.com/ibm-messaging/iot-go/pkg/message"
	"github.com/ibm-messaging/iot-go/pkg/mqtt"
	"github.com/ibm-messaging/iot-go/pkg/topic"
)

// ErrNilConfig is returned when a client is created without configuration.
var ErrNilConfig = errors.New("client: nil configuration")

// Filter narrows a subscription. Empty fields match anything, but a field
// may only be set when every field before it is set (type, id, name,
// format).
type Filter struct {
	DeviceType string
	DeviceID   string
	Name       string
	Format     string
}

func (f Filter) topic(d topic.Direction) topic.Topic {
	return topic.Topic{Direction: d, DeviceType: f.DeviceType, DeviceID: f.DeviceID, Name: f.Name, Format: f.Format}
}

// Option configures a client.
type Option func(*settings)

type settings struct {
	logger  mqtt.Logger
	session mqtt.Session
}

// WithLogger sets the logger shared by the connection manager and the
// dispatcher.
func WithLogger(l mqtt.Logger) Option {
	return func(s *settings) { s.logger = l }
}

// WithSession replaces the paho transport, mainly for tests.
func WithSession(sess mqtt.Session) Option {
	return func(s *settings) { s.session = sess }
}

// base holds what every role shares.
type base struct {
	cfg        *config.Config
	builder    topic.Builder
	manager    *mqtt.Manager
	dispatcher *dispatch.Dispatcher
	logger     mqtt.Logger
}

func newBase(cfg *config.Config, role topic.Role, opts []Option) (*base, error) {
	if cfg == nil {
		return nil, ErrNilConfig
	}
	if got := cfg.Role(); got != role {
		return nil, fmt.Errorf("%w: configuration is for %s, not %s", topic.ErrRoleMismatch, got, role)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var s settings
	for _, opt := range opts {
		opt(&s)
	}
	if s.logger == nil {
		s.logger = mqtt.NopLogger()
	}

	mopts, err := managerOptions(cfg, s.logger)
	if err != nil {
		return nil, err
	}

	sess := s.session
	if sess == nil {
		ps, err := mqtt.NewPahoSession(mopts)
		if err != nil {
			return nil, err
		}
		sess = ps
	}

	b := &base{
		cfg:     cfg,
		builder: topic.NewBuilder(role),
		manager: mqtt.NewManager(sess, mopts),
		logger:  s.logger,
	}

	dopts := []dispatch.Option{dispatch.WithLogger(s.logger)}
	if role == topic.RoleDevice {
		dopts = append(dopts, dispatch.WithScope(cfg.Identity.TypeID, cfg.Identity.DeviceID))
	}
	b.dispatcher = dispatch.New(b.builder, b.manager, dopts...)
	b.manager.SetMessageHandler(b.dispatcher.HandleMessage)

	return b, nil
}

func managerOptions(cfg *config.Config, logger mqtt.Logger) (mqtt.Options, error) {
	tlsCfg, err := cfg.TLSConfig()
	if err != nil {
		return mqtt.Options{}, err
	}

	backoff := mqtt.DefaultBackoff()
	backoff.Initial = cfg.Options.Reconnect.InitialDelay
	backoff.Max = cfg.Options.Reconnect.MaxDelay

	return mqtt.Options{
		BrokerURL:      cfg.BrokerURL(),
		ClientID:       cfg.ClientID(),
		Username:       cfg.Username(),
		Password:       cfg.Password(),
		TLSConfig:      tlsCfg,
		CleanSession:   cfg.Options.MQTT.CleanStart,
		KeepAlive:      cfg.Options.MQTT.KeepAlive,
		ConnectTimeout: cfg.Options.ConnectTimeout,
		Backoff:        backoff,
		Logger:         logger,
	}, nil
}

// Connect connects to the broker. The attempt is bounded by ctx and by
// the configured connect timeout.
func (b *base) Connect(ctx context.Context) error {
	return b.manager.Connect(ctx)
}

// connectWithCommands connects and subscribes to t at QoS 1 when
// AutoSubscribeCommands is set. A failed subscribe disconnects again, so an
// error always leaves the client disconnected.
func (b *base) connectWithCommands(ctx context.Context, t topic.Topic) error {
	if err := b.manager.Connect(ctx); err != nil {
		return err
	}
	if !b.cfg.Options.AutoSubscribeCommands || b.cfg.Quickstart() {
		return nil
	}
	if err := b.subscribe(ctx, t, mqtt.AtLeastOnce, message.KindCommand); err != nil {
		b.manager.Disconnect()
		return fmt.Errorf("subscribing to commands: %w", err)
	}
	return nil
}

// Disconnect closes the connection, stops reconnecting and forgets every
// subscription. Safe to call from callbacks.
func (b *base) Disconnect() {
	b.manager.Disconnect()
}

// IsConnected reports whether the client is connected.
func (b *base) IsConnected() bool {
	return b.manager.IsConnected()
}

// State returns the connection state.
func (b *base) State() mqtt.State {
	return b.manager.State()
}

// HealthCheck returns nil while connected.
func (b *base) HealthCheck(ctx context.Context) error {
	return b.manager.HealthCheck(ctx)
}

// SetOnConnect is called after every successful connect or reconnect.
func (b *base) SetOnConnect(callback func()) {
	b.manager.SetOnConnect(callback)
}

// SetOnConnectionLost is called when an established connection drops.
func (b *base) SetOnConnectionLost(callback func(err error)) {
	b.manager.SetOnConnectionLost(callback)
}

// ClientID returns the MQTT client identifier.
func (b *base) ClientID() string {
	return b.cfg.ClientID()
}

// PublishedCount returns the number of messages accepted by the transport.
func (b *base) PublishedCount() uint64 {
	return b.manager.PublishedCount()
}

// SubscriptionCount returns the number of active subscriptions.
func (b *base) SubscriptionCount() int {
	return b.manager.SubscriptionCount()
}

// DispatchStats returns the inbound delivery counters.
func (b *base) DispatchStats() dispatch.Stats {
	return b.dispatcher.Stats()
}

// qos applies the quickstart restriction to QoS 0.
func (b *base) qos(q mqtt.QoS) mqtt.QoS {
	if b.cfg.Quickstart() {
		return mqtt.AtMostOnce
	}
	return q
}

func (b *base) publish(ctx context.Context, t topic.Topic, data any, q mqtt.QoS) error {
	if t.Format == "" {
		t.Format = envelope.FormatJSON
	}
	name, err := b.builder.Encode(t)
	if err != nil {
		return err
	}
	payload, err := envelope.Encode(t.Format, data)
	if err != nil {
		return err
	}
	return b.manager.Publish(ctx, name, payload, b.qos(q), false)
}

func (b *base) subscribe(ctx context.Context, t topic.Topic, q mqtt.QoS, kind message.Kind) error {
	filter, err := b.builder.Filter(t)
	if err != nil {
		return err
	}
	if _, _, err := b.manager.Subscribe(ctx, filter, b.qos(q), kind); err != nil {
		return err
	}
	return nil
}

func (b *base) unsubscribe(ctx context.Context, t topic.Topic) error {
	filter, err := b.builder.Filter(t)
	if err != nil {
		return err
	}
	return b.manager.Unsubscribe(ctx, filter)
}

func (b *base) setHandler(kind message.Kind, h dispatch.Handler) {
	if b.dispatcher.Handlers().Set(kind, h) {
		b.logger.Debug("callback replaced", "kind", kind.String())
	}
}

// Tap wraps the handler currently registered for kind, for example to
// record messages after delivery. Later Set*Callback calls replace the
// wrapped handler.
func (b *base) Tap(kind message.Kind, wrap func(next dispatch.Handler) dispatch.Handler) {
	t := b.dispatcher.Handlers()
	t.Set(kind, wrap(t.Get(kind)))
}

// Typed callback adapters. A nil callback clears the slot.

func eventHandler(cb func(*message.Event)) dispatch.Handler {
	if cb == nil {
		return nil
	}
	return func(m message.Message) {
		if e, ok := m.(*message.Event); ok {
			cb(e)
		}
	}
}

func commandHandler(cb func(*message.Command)) dispatch.Handler {
	if cb == nil {
		return nil
	}
	return func(m message.Message) {
		if c, ok := m.(*message.Command); ok {
			cb(c)
		}
	}
}

func statusHandler(cb func(*message.StatusUpdate)) dispatch.Handler {
	if cb == nil {
		return nil
	}
	return func(m message.Message) {
		if s, ok := m.(*message.StatusUpdate); ok {
			cb(s)
		}
	}
}

func notificationHandler(cb func(*message.Notification)) dispatch.Handler {
	if cb == nil {
		return nil
	}
	return func(m message.Message) {
		if n, ok := m.(*message.Notification); ok {
			cb(n)
		}
	}
}
