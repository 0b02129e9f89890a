package mqtt

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ibm-messaging/iot-go/pkg/message"
	"github.com/ibm-messaging/iot-go/pkg/topic"
)

// MessageHandler receives every inbound message on the delivery goroutine.
type MessageHandler func(topic string, payload []byte)

// inbound is a received message waiting for delivery.
type inbound struct {
	topic   string
	payload []byte
}

// Manager owns a Session: it connects, reconnects with backoff after a lost
// connection, replays the subscription registry and publishes.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines,
//     including from inside the message handler and connection callbacks.
//   - Inbound messages are delivered in transport order on one goroutine.
//   - Subscribe, Unsubscribe and replay-on-reconnect are mutually exclusive.
type Manager struct {
	session Session
	opts    Options
	logger  Logger

	registry *Registry
	subMu    sync.Mutex

	// mu guards the lifecycle fields below. Lock order: subMu before mu.
	mu      sync.Mutex
	state   State
	life    context.Context
	cancel  context.CancelFunc
	inbound chan inbound
	// dropped records a loss reported while Connecting; establish refuses
	// to report Connected over that transport.
	dropped bool

	handlerMu sync.RWMutex
	onMessage MessageHandler

	callbackMu   sync.RWMutex
	onConnect    func()
	onConnLost   func(err error)
	connectCount atomic.Uint64
	published    atomic.Uint64
}

// NewManager creates a disconnected Manager driving session.
func NewManager(session Session, opts Options) *Manager {
	opts = opts.withDefaults()
	m := &Manager{
		session:  session,
		opts:     opts,
		logger:   opts.Logger,
		registry: NewRegistry(),
		state:    StateDisconnected,
	}
	session.SetHandlers(m.receive, m.connectionLost)
	return m
}

// =============================================================================
// Lifecycle
// =============================================================================

// Connect performs one connect attempt bounded by the configured timeout
// and ctx, then replays any recorded subscriptions before reporting the
// client ready.
//
// Returns:
//   - error: ErrAuthentication, ErrNetwork or ErrTimeout from the attempt,
//     ErrDisconnected if Disconnect interrupted it, ErrConnectInProgress if
//     a reconnect loop is already running
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	switch m.state {
	case StateConnected:
		m.mu.Unlock()
		return nil
	case StateConnecting, StateConnectionLost:
		m.mu.Unlock()
		return ErrConnectInProgress
	}
	life, cancel := context.WithCancel(context.Background())
	queue := make(chan inbound, inboundQueueSize)
	m.life, m.cancel, m.inbound = life, cancel, queue
	m.state = StateConnecting
	m.dropped = false
	m.mu.Unlock()

	go m.deliverLoop(life, queue)

	err := m.attempt(ctx, life)
	if err == nil {
		err = m.establish(life)
		if err != nil {
			m.session.Disconnect()
		}
	}
	if err != nil {
		interrupted := life.Err() != nil
		m.abandon(life)
		if interrupted {
			return fmt.Errorf("%w: connect interrupted", ErrDisconnected)
		}
		m.logger.Error("MQTT connect failed", "broker", m.opts.BrokerURL, "error", err)
		return err
	}

	m.connectCount.Add(1)
	m.logger.Info("MQTT connected", "broker", m.opts.BrokerURL, "client_id", m.opts.ClientID)
	m.fireConnect()
	return nil
}

// Disconnect terminates the session, stops any reconnect loop, fails
// pending publish and subscribe waits with ErrDisconnected and clears the
// subscription registry. It is safe to call from any goroutine, including
// message handlers and connection callbacks, and is idempotent.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	if m.state == StateDisconnected {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.state = StateDisconnected
	m.life, m.cancel, m.inbound = nil, nil, nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	m.subMu.Lock()
	m.registry.Clear()
	m.subMu.Unlock()

	m.session.Disconnect()
	m.logger.Info("MQTT disconnected", "client_id", m.opts.ClientID)
}

// attempt makes one bounded connect call.
func (m *Manager) attempt(ctx context.Context, life context.Context) error {
	actx, cancel := context.WithTimeout(ctx, m.opts.ConnectTimeout)
	defer cancel()
	stop := context.AfterFunc(life, cancel)
	defer stop()

	m.logger.Debug("MQTT connecting", "broker", m.opts.BrokerURL, "timeout", m.opts.ConnectTimeout)
	return m.session.Connect(actx)
}

// establish replays the registry and moves to Connected. Holding subMu
// across both steps means no subscription recorded meanwhile is missed.
func (m *Manager) establish(life context.Context) error {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	subs := m.registry.Snapshot()
	for _, sub := range subs {
		rctx, cancel := context.WithTimeout(life, m.opts.AckTimeout)
		err := m.session.Subscribe(rctx, sub.Filter, sub.QoS)
		cancel()
		if err != nil {
			return fmt.Errorf("%w: replay %s: %w", ErrSubscribeFailed, sub.Filter, err)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if life.Err() != nil || m.life != life {
		return ErrDisconnected
	}
	if m.dropped {
		m.dropped = false
		return fmt.Errorf("%w: connection lost during subscription replay", ErrNetwork)
	}
	m.state = StateConnected

	if len(subs) > 0 {
		m.logger.Info("MQTT subscriptions replayed", "count", len(subs))
	}
	return nil
}

// abandon returns a failed initial connect to Disconnected.
func (m *Manager) abandon(life context.Context) {
	m.mu.Lock()
	if m.life == life {
		m.cancel()
		m.state = StateDisconnected
		m.life, m.cancel, m.inbound = nil, nil, nil
	}
	m.mu.Unlock()
}

// connectionLost is called by the session when an established connection
// drops. A loss while Connecting is left for establish to act on.
func (m *Manager) connectionLost(err error) {
	m.mu.Lock()
	switch m.state {
	case StateConnecting:
		m.dropped = true
		m.mu.Unlock()
		m.logger.Warn("MQTT connection lost while connecting", "error", err)
		return
	case StateConnected:
	default:
		m.mu.Unlock()
		return
	}
	m.state = StateConnectionLost
	life := m.life
	m.mu.Unlock()

	m.logger.Warn("MQTT connection lost", "error", err)
	m.fireConnectionLost(err)

	go m.reconnect(life)
}

// reconnect retries with bounded exponential backoff until connected or
// until Disconnect cancels life.
func (m *Manager) reconnect(life context.Context) {
	for attempt := 0; ; attempt++ {
		delay := m.opts.Backoff.Delay(attempt)
		m.logger.Info("MQTT reconnect scheduled", "attempt", attempt+1, "delay", delay)

		timer := time.NewTimer(delay)
		select {
		case <-life.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		if !m.transition(life, StateConnectionLost, StateConnecting) {
			return
		}

		err := m.attempt(context.Background(), life)
		if err == nil {
			if err = m.establish(life); err != nil {
				m.session.Disconnect()
			}
		}
		if err == nil {
			m.connectCount.Add(1)
			m.logger.Info("MQTT reconnected", "attempt", attempt+1)
			m.fireConnect()
			return
		}
		if life.Err() != nil {
			return
		}

		m.logger.Warn("MQTT reconnect failed", "attempt", attempt+1, "error", err)
		if !m.transition(life, StateConnecting, StateConnectionLost) {
			return
		}
	}
}

// transition moves from -> to if life is still current.
func (m *Manager) transition(life context.Context, from, to State) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.life != life || m.state != from {
		return false
	}
	m.state = to
	if to == StateConnecting {
		m.dropped = false
	}
	return true
}

// current returns the state and lifecycle context together.
func (m *Manager) current() (State, context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state, m.life
}

// bind derives a context cancelled by ctx or by Disconnect.
func bind(ctx, life context.Context) (context.Context, context.CancelFunc) {
	cctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(life, cancel)
	return cctx, func() {
		stop()
		cancel()
	}
}

// =============================================================================
// Publish
// =============================================================================

// Publish sends payload to a concrete topic.
//
// For QoS 0 success means the local transport accepted the message, never
// that it was delivered. For QoS 1 and 2 Publish waits for the broker's
// acknowledgement, bounded by the transport ack timeout.
//
// Returns:
//   - error: ErrNotConnected unless Connected, ErrDisconnected if Disconnect
//     interrupted the wait, ErrPublishFailed on transport failure
func (m *Manager) Publish(ctx context.Context, t string, payload []byte, qos QoS, retain bool) error {
	if t == "" || strings.ContainsAny(t, "+#") {
		return fmt.Errorf("%w: %q", ErrInvalidTopic, t)
	}
	if !qos.Valid() {
		return ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}

	state, life := m.current()
	if state != StateConnected {
		return ErrNotConnected
	}

	pctx, cancel := bind(ctx, life)
	defer cancel()

	if err := m.session.Publish(pctx, t, qos, retain, payload); err != nil {
		if life.Err() != nil {
			return fmt.Errorf("%w: publish to %s", ErrDisconnected, t)
		}
		return fmt.Errorf("%w: %s: %w", ErrPublishFailed, t, err)
	}

	m.published.Add(1)
	return nil
}

// PublishedCount returns the number of messages accepted by the transport.
func (m *Manager) PublishedCount() uint64 {
	return m.published.Load()
}

// =============================================================================
// Subscriptions
// =============================================================================

// Subscribe records filter in the registry and subscribes on the broker.
//
// While a reconnect is in progress the subscription is only recorded and
// is issued by the replay. Subscribing an existing filter with the same QoS
// does not contact the broker.
//
// Returns:
//   - Subscription: The entry that was replaced, if any
//   - bool: true when the filter was already subscribed
//   - error: ErrNotConnected when Disconnected, ErrSubscribeFailed when the
//     broker rejects the subscription (the registry is rolled back)
func (m *Manager) Subscribe(ctx context.Context, filter string, qos QoS, kind message.Kind) (Subscription, bool, error) {
	if err := topic.ValidateFilter(filter); err != nil {
		return Subscription{}, false, fmt.Errorf("%w: %w", ErrInvalidTopic, err)
	}
	if !qos.Valid() {
		return Subscription{}, false, ErrInvalidQoS
	}

	m.subMu.Lock()
	defer m.subMu.Unlock()

	state, life := m.current()
	if state == StateDisconnected {
		return Subscription{}, false, ErrNotConnected
	}

	prev, existed := m.registry.Put(Subscription{Filter: filter, QoS: qos, Kind: kind})
	if state != StateConnected {
		m.logger.Debug("MQTT subscription recorded for replay", "filter", filter, "state", state)
		return prev, existed, nil
	}
	if existed && prev.QoS == qos {
		return prev, existed, nil
	}

	sctx, cancel := bind(ctx, life)
	defer cancel()

	if err := m.session.Subscribe(sctx, filter, qos); err != nil {
		if life.Err() != nil {
			return prev, existed, fmt.Errorf("%w: subscribe %s", ErrDisconnected, filter)
		}
		if existed {
			m.registry.Put(prev)
		} else {
			m.registry.Remove(filter)
		}
		return prev, existed, fmt.Errorf("%w: %s: %w", ErrSubscribeFailed, filter, err)
	}
	return prev, existed, nil
}

// Unsubscribe removes filters from the registry and the broker. Filters
// that are not subscribed are ignored.
func (m *Manager) Unsubscribe(ctx context.Context, filters ...string) error {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	present := make([]string, 0, len(filters))
	for _, f := range filters {
		if _, ok := m.registry.Remove(f); ok {
			present = append(present, f)
		}
	}

	state, life := m.current()
	if len(present) == 0 || state != StateConnected {
		return nil
	}

	uctx, cancel := bind(ctx, life)
	defer cancel()

	if err := m.session.Unsubscribe(uctx, present...); err != nil {
		if life.Err() != nil {
			return fmt.Errorf("%w: unsubscribe", ErrDisconnected)
		}
		return fmt.Errorf("%w: %s: %w", ErrUnsubscribeFailed, strings.Join(present, ","), err)
	}
	return nil
}

// Lookup returns the most specific subscription matching a concrete topic.
func (m *Manager) Lookup(concrete string) (Subscription, bool) {
	return m.registry.Match(concrete)
}

// Subscriptions returns the registry contents in insertion order.
func (m *Manager) Subscriptions() []Subscription {
	return m.registry.Snapshot()
}

// SubscriptionCount returns the number of active subscriptions.
func (m *Manager) SubscriptionCount() int {
	return m.registry.Len()
}

// HasSubscription checks if a subscription exists for the given filter.
//
// Note: This checks only the exact filter string, not pattern matching.
func (m *Manager) HasSubscription(filter string) bool {
	_, ok := m.registry.Get(filter)
	return ok
}

// =============================================================================
// Delivery
// =============================================================================

// SetMessageHandler installs the handler for all inbound messages.
func (m *Manager) SetMessageHandler(h MessageHandler) {
	m.handlerMu.Lock()
	m.onMessage = h
	m.handlerMu.Unlock()
}

// receive is the session callback; it queues for the delivery goroutine.
func (m *Manager) receive(t string, payload []byte) {
	m.mu.Lock()
	life, queue := m.life, m.inbound
	m.mu.Unlock()
	if queue == nil {
		return
	}

	select {
	case queue <- inbound{topic: t, payload: payload}:
	case <-life.Done():
	}
}

func (m *Manager) deliverLoop(life context.Context, queue <-chan inbound) {
	for {
		select {
		case <-life.Done():
			return
		case in := <-queue:
			m.deliver(in)
		}
	}
}

// deliver invokes the handler with panic recovery.
func (m *Manager) deliver(in inbound) {
	m.handlerMu.RLock()
	h := m.onMessage
	m.handlerMu.RUnlock()
	if h == nil {
		m.logger.Debug("MQTT message dropped: no handler", "topic", in.topic)
		return
	}

	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("MQTT handler panic recovered",
				"topic", in.topic,
				"panic", r,
			)
		}
	}()
	h(in.topic, in.payload)
}

// =============================================================================
// State and callbacks
// =============================================================================

// State returns the current lifecycle state.
func (m *Manager) State() State {
	s, _ := m.current()
	return s
}

// IsConnected reports whether the manager is in the Connected state.
func (m *Manager) IsConnected() bool {
	return m.State() == StateConnected
}

// ConnectCount returns the number of successful connects and reconnects.
func (m *Manager) ConnectCount() uint64 {
	return m.connectCount.Load()
}

// HealthCheck verifies the MQTT connection is alive.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
func (m *Manager) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("mqtt health check: %w", ctx.Err())
	default:
	}

	if state := m.State(); state != StateConnected {
		return fmt.Errorf("%w: state %s", ErrNotConnected, state)
	}
	return nil
}

// SetOnConnect sets a callback to be invoked when connection is established.
// This is called on initial connect and on every reconnect, after the
// subscription replay.
func (m *Manager) SetOnConnect(callback func()) {
	m.callbackMu.Lock()
	m.onConnect = callback
	m.callbackMu.Unlock()
}

// SetOnConnectionLost sets a callback to be invoked when an established
// connection drops. The reconnect loop starts after it returns.
func (m *Manager) SetOnConnectionLost(callback func(err error)) {
	m.callbackMu.Lock()
	m.onConnLost = callback
	m.callbackMu.Unlock()
}

func (m *Manager) fireConnect() {
	m.callbackMu.RLock()
	callback := m.onConnect
	m.callbackMu.RUnlock()
	if callback != nil {
		callback()
	}
}

func (m *Manager) fireConnectionLost(err error) {
	m.callbackMu.RLock()
	callback := m.onConnLost
	m.callbackMu.RUnlock()
	if callback != nil {
		callback(err)
	}
}
