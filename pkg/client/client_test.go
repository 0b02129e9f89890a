package client

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ibm-messaging/iot-go/pkg/config"
	"github.com/ibm-messaging/iot-go/pkg/dispatch"
	"github.com/ibm-messaging/iot-go/pkg/envelope"
	"github.com/ibm-messaging/iot-go/pkg/message"
	"github.com/ibm-messaging/iot-go/pkg/mqtt"
	"github.com/ibm-messaging/iot-go/pkg/topic"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

// =============================================================================
// In-memory broker
// =============================================================================

// fakeBroker routes publishes between its sessions the way the platform
// does: device-scoped topics are qualified with the publisher's identity,
// and qualified commands reach the addressed device on its scoped topic.
type fakeBroker struct {
	mu       sync.Mutex
	sessions []*brokerSession
}

type brokerSession struct {
	broker   *fakeBroker
	device   bool
	typeID   string
	deviceID string

	mu           sync.Mutex
	connected    bool
	subscribeErr error
	subs         map[string]mqtt.QoS
	subQoS       []mqtt.QoS
	published    []string
	publishQoS   []mqtt.QoS
	onMessage    func(string, []byte)
	onLost       func(error)
}

func (b *fakeBroker) deviceSession(typeID, deviceID string) *brokerSession {
	return b.add(&brokerSession{device: true, typeID: typeID, deviceID: deviceID})
}

func (b *fakeBroker) gatewaySession(typeID, deviceID string) *brokerSession {
	return b.add(&brokerSession{typeID: typeID, deviceID: deviceID})
}

func (b *fakeBroker) appSession() *brokerSession {
	return b.add(&brokerSession{})
}

func (b *fakeBroker) add(s *brokerSession) *brokerSession {
	s.broker = b
	s.subs = make(map[string]mqtt.QoS)
	b.mu.Lock()
	b.sessions = append(b.sessions, s)
	b.mu.Unlock()
	return s
}

// route delivers a qualified topic to every matching session.
func (b *fakeBroker) route(qualified string, payload []byte) {
	b.mu.Lock()
	sessions := append([]*brokerSession(nil), b.sessions...)
	b.mu.Unlock()

	for _, s := range sessions {
		local, ok := s.localTopic(qualified)
		if !ok {
			continue
		}
		s.mu.Lock()
		var deliver func(string, []byte)
		if s.connected {
			for f := range s.subs {
				if topic.Match(f, local) {
					deliver = s.onMessage
					break
				}
			}
		}
		s.mu.Unlock()
		if deliver != nil {
			deliver(local, payload)
		}
	}
}

func (s *brokerSession) prefix() string {
	return "iot-2/type/" + s.typeID + "/id/" + s.deviceID + "/"
}

func (s *brokerSession) localTopic(qualified string) (string, bool) {
	if !s.device {
		return qualified, true
	}
	rest, ok := strings.CutPrefix(qualified, s.prefix()+"cmd/")
	if !ok {
		return "", false
	}
	return "iot-2/cmd/" + rest, true
}

// drop simulates an unexpected connection loss. Like a clean-session
// broker it forgets the session's subscriptions.
func (s *brokerSession) drop() {
	s.mu.Lock()
	s.connected = false
	s.subs = make(map[string]mqtt.QoS)
	lost := s.onLost
	s.mu.Unlock()
	if lost != nil {
		lost(errors.New("connection reset by peer"))
	}
}

func (s *brokerSession) SetHandlers(onMessage func(string, []byte), onLost func(error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onMessage, s.onLost = onMessage, onLost
}

func (s *brokerSession) Connect(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = true
	return nil
}

func (s *brokerSession) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
	s.subs = make(map[string]mqtt.QoS)
}

func (s *brokerSession) Publish(_ context.Context, t string, qos mqtt.QoS, _ bool, payload []byte) error {
	s.mu.Lock()
	if !s.connected {
		s.mu.Unlock()
		return errors.New("not connected")
	}
	s.published = append(s.published, t)
	s.publishQoS = append(s.publishQoS, qos)
	s.mu.Unlock()

	if s.device {
		if rest, ok := strings.CutPrefix(t, "iot-2/"); ok && !strings.HasPrefix(rest, "type/") {
			t = s.prefix() + rest
		}
	}
	s.broker.route(t, payload)
	return nil
}

func (s *brokerSession) Subscribe(_ context.Context, filter string, qos mqtt.QoS) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subscribeErr != nil {
		return s.subscribeErr
	}
	s.subs[filter] = qos
	s.subQoS = append(s.subQoS, qos)
	return nil
}

func (s *brokerSession) Unsubscribe(_ context.Context, filters ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range filters {
		delete(s.subs, f)
	}
	return nil
}

func (s *brokerSession) hasSub(filter string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.subs[filter]
	return ok
}

func (s *brokerSession) lastPublished() (string, mqtt.QoS) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.published) == 0 {
		return "", 0
	}
	n := len(s.published) - 1
	return s.published[n], s.publishQoS[n]
}

// =============================================================================
// Helpers
// =============================================================================

func deviceConfig() *config.Config {
	cfg := config.Default()
	cfg.Identity.OrgID = "myorg"
	cfg.Identity.TypeID = "T"
	cfg.Identity.DeviceID = "D"
	cfg.Auth.Token = "device-token"
	cfg.Options.Reconnect.InitialDelay = 10 * time.Millisecond
	cfg.Options.Reconnect.MaxDelay = 50 * time.Millisecond
	return cfg
}

func gatewayConfig() *config.Config {
	cfg := deviceConfig()
	cfg.Identity.Role = topic.RoleGateway
	cfg.Identity.TypeID = "GT"
	cfg.Identity.DeviceID = "GW"
	return cfg
}

func appConfig(appID string) *config.Config {
	cfg := config.Default()
	cfg.Identity.AppID = appID
	cfg.Auth.Key = "a-myorg-abcdefgh"
	cfg.Auth.Token = "app-token"
	cfg.Options.Reconnect.InitialDelay = 10 * time.Millisecond
	cfg.Options.Reconnect.MaxDelay = 50 * time.Millisecond
	return cfg
}

// collector gathers callback invocations.
type collector[T any] struct {
	mu    sync.Mutex
	items []T
}

func (c *collector[T]) add(v T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = append(c.items, v)
}

func (c *collector[T]) all() []T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]T(nil), c.items...)
}

func (c *collector[T]) len() int {
	return len(c.all())
}

func connectDevice(t *testing.T, b *fakeBroker, cfg *config.Config) (*Device, *brokerSession) {
	t.Helper()
	sess := b.deviceSession(cfg.Identity.TypeID, cfg.Identity.DeviceID)
	d, err := NewDevice(cfg, WithSession(sess))
	require.NoError(t, err)
	require.NoError(t, d.Connect(context.Background()))
	t.Cleanup(d.Disconnect)
	return d, sess
}

func connectApp(t *testing.T, b *fakeBroker, appID string) (*Application, *brokerSession) {
	t.Helper()
	sess := b.appSession()
	a, err := NewApplication(appConfig(appID), WithSession(sess))
	require.NoError(t, err)
	require.NoError(t, a.Connect(context.Background()))
	t.Cleanup(a.Disconnect)
	return a, sess
}

// =============================================================================
// Construction
// =============================================================================

func TestNewClientValidation(t *testing.T) {
	_, err := NewDevice(nil)
	assert.ErrorIs(t, err, ErrNilConfig)

	_, err = NewDevice(appConfig("app1"))
	assert.ErrorIs(t, err, topic.ErrRoleMismatch)

	_, err = NewApplication(deviceConfig())
	assert.ErrorIs(t, err, topic.ErrRoleMismatch)

	_, err = NewGateway(deviceConfig())
	assert.ErrorIs(t, err, topic.ErrRoleMismatch)

	cfg := deviceConfig()
	cfg.Auth.Token = "some token"
	_, err = NewDevice(cfg)
	assert.ErrorIs(t, err, config.ErrAuthentication)
}

func TestNewDeviceBuildsPahoSession(t *testing.T) {
	d, err := NewDevice(deviceConfig())
	require.NoError(t, err)

	assert.Equal(t, "d:myorg:T:D", d.ClientID())
	assert.Equal(t, mqtt.StateDisconnected, d.State())
	assert.False(t, d.IsConnected())
}

func TestPublishBeforeConnect(t *testing.T) {
	b := &fakeBroker{}
	d, err := NewDevice(deviceConfig(), WithSession(b.deviceSession("T", "D")))
	require.NoError(t, err)

	err = d.PublishEvent(context.Background(), "status", map[string]any{"cpu": 1}, mqtt.AtMostOnce)
	assert.ErrorIs(t, err, mqtt.ErrNotConnected)
}

// =============================================================================
// Device
// =============================================================================

func TestDeviceAutoSubscribesToCommands(t *testing.T) {
	b := &fakeBroker{}
	d, sess := connectDevice(t, b, deviceConfig())
	app, _ := connectApp(t, b, "controller")

	assert.True(t, sess.hasSub(topic.AllScopedCommands))
	assert.Equal(t, 1, d.SubscriptionCount())

	var got collector[*message.Command]
	d.SetCommandCallback(got.add)

	require.NoError(t, app.PublishCommand(context.Background(), "T", "D", "reboot", map[string]any{"delay": 5}, mqtt.AtLeastOnce))
	require.NoError(t, app.PublishCommand(context.Background(), "T", "other", "reboot", nil, mqtt.AtLeastOnce))

	require.Eventually(t, func() bool { return got.len() == 1 }, waitFor, tick)
	cmd := got.all()[0]
	assert.Equal(t, "reboot", cmd.Name)
	assert.Equal(t, "T", cmd.DeviceType)
	assert.Equal(t, "D", cmd.DeviceID)
	delay, ok := cmd.Field("delay")
	require.True(t, ok)
	assert.Equal(t, float64(5), delay)

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, got.len(), "commands for another device must not arrive")
}

func TestDeviceAutoSubscribeDisabled(t *testing.T) {
	cfg := deviceConfig()
	cfg.Options.AutoSubscribeCommands = false
	d, sess := connectDevice(t, &fakeBroker{}, cfg)

	assert.Zero(t, d.SubscriptionCount())
	assert.False(t, sess.hasSub(topic.AllScopedCommands))

	require.NoError(t, d.SubscribeToCommands(context.Background(), "reboot", "", mqtt.AtLeastOnce))
	assert.True(t, sess.hasSub("iot-2/cmd/reboot/fmt/+"))

	require.NoError(t, d.UnsubscribeFromCommands(context.Background(), "reboot", ""))
	assert.False(t, sess.hasSub("iot-2/cmd/reboot/fmt/+"))
}

func TestDeviceAutoSubscribeFailureDisconnects(t *testing.T) {
	sess := (&fakeBroker{}).deviceSession("T", "D")
	sess.subscribeErr = errors.New("not authorized")
	d, err := NewDevice(deviceConfig(), WithSession(sess))
	require.NoError(t, err)
	t.Cleanup(d.Disconnect)

	err = d.Connect(context.Background())
	require.ErrorIs(t, err, mqtt.ErrSubscribeFailed)
	assert.Equal(t, mqtt.StateDisconnected, d.State())
	assert.Zero(t, d.SubscriptionCount())

	sess.mu.Lock()
	sess.subscribeErr = nil
	sess.mu.Unlock()

	require.NoError(t, d.Connect(context.Background()))
	assert.True(t, d.IsConnected())
	assert.True(t, sess.hasSub(topic.AllScopedCommands), "a retried connect subscribes")
}

func TestDeviceFormatWithoutName(t *testing.T) {
	d, _ := connectDevice(t, &fakeBroker{}, deviceConfig())

	err := d.SubscribeToCommands(context.Background(), "", "json", mqtt.AtLeastOnce)
	assert.ErrorIs(t, err, topic.ErrInvalidSubscriptionShape)
}

func TestDevicePublishFormats(t *testing.T) {
	d, sess := connectDevice(t, &fakeBroker{}, deviceConfig())
	ctx := context.Background()

	require.NoError(t, d.PublishEventWithFormat(ctx, "frame", "bin", []byte{0x01, 0x02}, mqtt.AtLeastOnce))
	got, qos := sess.lastPublished()
	assert.Equal(t, "iot-2/evt/frame/fmt/bin", got)
	assert.Equal(t, mqtt.AtLeastOnce, qos)

	err := d.PublishEventWithFormat(ctx, "frame", "bin", map[string]any{"a": 1}, mqtt.AtLeastOnce)
	assert.ErrorIs(t, err, envelope.ErrUnsupportedFormat)

	err = d.PublishEvent(ctx, "bad/name", nil, mqtt.AtLeastOnce)
	assert.ErrorIs(t, err, topic.ErrMalformedTopic)
}

func TestQuickstartForcesQoS0(t *testing.T) {
	cfg := config.Default()
	cfg.Identity.TypeID = "T"
	cfg.Identity.DeviceID = "D"
	require.True(t, cfg.Quickstart())

	d, sess := connectDevice(t, &fakeBroker{}, cfg)
	assert.Zero(t, d.SubscriptionCount(), "quickstart devices do not auto-subscribe")

	require.NoError(t, d.PublishEvent(context.Background(), "status", map[string]any{"cpu": 1}, mqtt.ExactlyOnce))
	_, qos := sess.lastPublished()
	assert.Equal(t, mqtt.AtMostOnce, qos)

	require.NoError(t, d.SubscribeToCommands(context.Background(), "", "", mqtt.AtLeastOnce))
	sess.mu.Lock()
	assert.Equal(t, []mqtt.QoS{mqtt.AtMostOnce}, sess.subQoS)
	sess.mu.Unlock()
}

// =============================================================================
// Application
// =============================================================================

func TestBlinkScenario(t *testing.T) {
	b := &fakeBroker{}
	ctx := context.Background()

	dev, _ := connectDevice(t, b, deviceConfig())
	watcher, _ := connectApp(t, b, "watcher")
	other, _ := connectApp(t, b, "other")

	var events, others collector[*message.Event]
	watcher.SetEventCallback(events.add)
	other.SetEventCallback(others.add)

	require.NoError(t, watcher.SubscribeToEvents(ctx, Filter{DeviceType: "T", DeviceID: "D"}, mqtt.AtLeastOnce))
	require.NoError(t, other.SubscribeToEvents(ctx, Filter{DeviceType: "T", DeviceID: "D", Name: "other"}, mqtt.AtLeastOnce))

	require.NoError(t, dev.PublishEvent(ctx, "blink", map[string]any{"cpu": 90}, mqtt.AtLeastOnce))

	require.Eventually(t, func() bool { return events.len() == 1 }, waitFor, tick)
	evt := events.all()[0]
	assert.Equal(t, "blink", evt.Name)
	assert.Equal(t, "T", evt.DeviceType)
	assert.Equal(t, "D", evt.DeviceID)
	assert.Equal(t, envelope.FormatJSON, evt.Format)

	var data struct {
		CPU int `json:"cpu"`
	}
	require.NoError(t, evt.Unmarshal(&data))
	assert.Equal(t, 90, data.CPU)

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, events.len())
	assert.Zero(t, others.len())
}

func TestApplicationRawPayloadFallback(t *testing.T) {
	b := &fakeBroker{}
	ctx := context.Background()
	app, _ := connectApp(t, b, "watcher")

	var events collector[*message.Event]
	app.SetEventCallback(events.add)
	require.NoError(t, app.SubscribeToEvents(ctx, Filter{}, mqtt.AtLeastOnce))

	b.route("iot-2/type/T/id/D/evt/blink/fmt/json", []byte("not json"))

	require.Eventually(t, func() bool { return events.len() == 1 }, waitFor, tick)
	evt := events.all()[0]
	assert.False(t, evt.Structured())
	assert.Nil(t, evt.Data)
	assert.Equal(t, []byte("not json"), evt.Raw)
	assert.Equal(t, uint64(1), app.DispatchStats().Downgraded)
}

func TestApplicationStatus(t *testing.T) {
	b := &fakeBroker{}
	ctx := context.Background()
	app, sess := connectApp(t, b, "watcher")

	var got collector[*message.StatusUpdate]
	app.SetStatusCallback(got.add)
	require.NoError(t, app.SubscribeToDeviceStatus(ctx, "T", "", mqtt.AtLeastOnce))
	require.NoError(t, app.SubscribeToApplicationStatus(ctx, "", mqtt.AtLeastOnce))
	assert.True(t, sess.hasSub("iot-2/type/T/id/+/mon"))
	assert.True(t, sess.hasSub("iot-2/app/+/mon"))

	b.route("iot-2/type/T/id/D/mon", []byte(`{"Action":"Connect","ClientID":"d:myorg:T:D","Port":8883}`))
	b.route("iot-2/app/dashboard/mon", []byte(`{"Action":"Disconnect","Reason":"The connection has completed normally."}`))

	require.Eventually(t, func() bool { return got.len() == 2 }, waitFor, tick)
	updates := got.all()

	assert.Equal(t, "D", updates[0].DeviceID)
	assert.True(t, updates[0].Connected())
	assert.Equal(t, 8883, updates[0].Port)

	assert.True(t, updates[1].IsApplication())
	assert.Equal(t, "dashboard", updates[1].AppID)
	assert.Equal(t, message.ActionDisconnect, updates[1].Action)

	require.NoError(t, app.UnsubscribeFromDeviceStatus(ctx, "T", ""))
	require.NoError(t, app.UnsubscribeFromApplicationStatus(ctx, ""))
	assert.Zero(t, app.SubscriptionCount())
}

func TestApplicationUnsubscribeSuppressesDelivery(t *testing.T) {
	b := &fakeBroker{}
	ctx := context.Background()
	dev, _ := connectDevice(t, b, deviceConfig())
	app, _ := connectApp(t, b, "watcher")

	var events collector[*message.Event]
	app.SetEventCallback(events.add)

	f := Filter{DeviceType: "T", DeviceID: "D", Name: "blink"}
	require.NoError(t, app.SubscribeToEvents(ctx, f, mqtt.AtLeastOnce))
	require.NoError(t, dev.PublishEvent(ctx, "blink", 1, mqtt.AtLeastOnce))
	require.Eventually(t, func() bool { return events.len() == 1 }, waitFor, tick)

	require.NoError(t, app.UnsubscribeFromEvents(ctx, f))
	require.NoError(t, dev.PublishEvent(ctx, "blink", 2, mqtt.AtLeastOnce))

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, events.len())

	// unsubscribing again is a no-op
	assert.NoError(t, app.UnsubscribeFromEvents(ctx, f))
}

func TestApplicationSubscriptionsReplayedAfterReconnect(t *testing.T) {
	b := &fakeBroker{}
	ctx := context.Background()
	dev, _ := connectDevice(t, b, deviceConfig())
	app, sess := connectApp(t, b, "watcher")

	var events collector[*message.Event]
	app.SetEventCallback(events.add)

	var reconnects collector[struct{}]
	var lost collector[error]
	app.SetOnConnect(func() { reconnects.add(struct{}{}) })
	app.SetOnConnectionLost(lost.add)

	require.NoError(t, app.SubscribeToEvents(ctx, Filter{DeviceType: "T"}, mqtt.AtLeastOnce))
	sess.drop()

	require.Eventually(t, func() bool {
		return reconnects.len() == 1 && sess.hasSub("iot-2/type/T/id/+/evt/+/fmt/+")
	}, waitFor, tick)
	assert.Equal(t, 1, lost.len())
	require.NoError(t, app.HealthCheck(ctx))

	require.NoError(t, dev.PublishEvent(ctx, "blink", map[string]any{"cpu": 1}, mqtt.AtLeastOnce))
	require.Eventually(t, func() bool { return events.len() == 1 }, waitFor, tick)
}

func TestApplicationDisconnectClearsSubscriptions(t *testing.T) {
	b := &fakeBroker{}
	sess := b.appSession()
	app, err := NewApplication(appConfig("watcher"), WithSession(sess))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, app.Connect(ctx))
	require.NoError(t, app.SubscribeToEvents(ctx, Filter{}, mqtt.AtLeastOnce))
	assert.Equal(t, 1, app.SubscriptionCount())

	app.Disconnect()
	assert.Zero(t, app.SubscriptionCount())
	assert.Error(t, app.HealthCheck(ctx))
	assert.ErrorIs(t, app.SubscribeToEvents(ctx, Filter{}, mqtt.AtLeastOnce), mqtt.ErrNotConnected)
}

func TestApplicationTapRunsAfterCallback(t *testing.T) {
	b := &fakeBroker{}
	ctx := context.Background()
	app, _ := connectApp(t, b, "watcher")

	var order collector[string]
	app.SetEventCallback(func(*message.Event) { order.add("callback") })
	app.Tap(message.KindEvent, func(next dispatch.Handler) dispatch.Handler {
		return func(m message.Message) {
			next(m)
			order.add("tap")
		}
	})
	require.NoError(t, app.SubscribeToEvents(ctx, Filter{}, mqtt.AtLeastOnce))

	b.route("iot-2/type/T/id/D/evt/blink/fmt/json", []byte(`{"d":{}}`))

	require.Eventually(t, func() bool { return order.len() == 2 }, waitFor, tick)
	assert.Equal(t, []string{"callback", "tap"}, order.all())
}

// =============================================================================
// Gateway
// =============================================================================

func TestGatewayPublishesOnBehalfOfDevices(t *testing.T) {
	b := &fakeBroker{}
	ctx := context.Background()

	gsess := b.gatewaySession("GT", "GW")
	gw, err := NewGateway(gatewayConfig(), WithSession(gsess))
	require.NoError(t, err)
	require.NoError(t, gw.Connect(ctx))
	t.Cleanup(gw.Disconnect)
	assert.Equal(t, "g:myorg:GT:GW", gw.ClientID())
	assert.Equal(t, 1, gw.SubscriptionCount(), "own commands only")

	app, _ := connectApp(t, b, "watcher")
	var events collector[*message.Event]
	app.SetEventCallback(events.add)
	require.NoError(t, app.SubscribeToEvents(ctx, Filter{}, mqtt.AtLeastOnce))

	require.NoError(t, gw.PublishEvent(ctx, "heartbeat", map[string]any{"up": true}, mqtt.AtLeastOnce))
	got, _ := gsess.lastPublished()
	assert.Equal(t, "iot-2/type/GT/id/GW/evt/heartbeat/fmt/json", got)

	require.NoError(t, gw.PublishDeviceEvent(ctx, "sensor", "s1", "reading", map[string]any{"t": 21.5}, mqtt.AtLeastOnce))

	require.Eventually(t, func() bool { return events.len() == 2 }, waitFor, tick)
	evts := events.all()
	assert.Equal(t, "GW", evts[0].DeviceID)
	assert.Equal(t, "sensor", evts[1].DeviceType)
	assert.Equal(t, "s1", evts[1].DeviceID)
	assert.Equal(t, "reading", evts[1].Name)
}

func TestGatewayAutoSubscribesToCommands(t *testing.T) {
	b := &fakeBroker{}
	ctx := context.Background()

	gsess := b.gatewaySession("GT", "GW")
	gw, err := NewGateway(gatewayConfig(), WithSession(gsess))
	require.NoError(t, err)
	require.NoError(t, gw.Connect(ctx))
	t.Cleanup(gw.Disconnect)

	assert.True(t, gsess.hasSub("iot-2/type/GT/id/GW/cmd/+/fmt/+"))
	assert.Equal(t, []mqtt.QoS{mqtt.AtLeastOnce}, gsess.subQoS)

	var cmds collector[*message.Command]
	gw.SetCommandCallback(cmds.add)

	app, _ := connectApp(t, b, "controller")
	require.NoError(t, app.PublishCommand(ctx, "GT", "GW", "reboot", map[string]any{"delay": 1}, mqtt.AtLeastOnce))
	require.NoError(t, app.PublishCommand(ctx, "sensor", "s1", "reboot", nil, mqtt.AtLeastOnce))

	require.Eventually(t, func() bool { return cmds.len() == 1 }, waitFor, tick)
	assert.Equal(t, "GW", cmds.all()[0].DeviceID)
	assert.Equal(t, "reboot", cmds.all()[0].Name)

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, cmds.len(), "attached devices need an explicit subscription")
}

func TestGatewayAutoSubscribeFailureDisconnects(t *testing.T) {
	gsess := (&fakeBroker{}).gatewaySession("GT", "GW")
	gsess.subscribeErr = errors.New("not authorized")
	gw, err := NewGateway(gatewayConfig(), WithSession(gsess))
	require.NoError(t, err)
	t.Cleanup(gw.Disconnect)

	require.ErrorIs(t, gw.Connect(context.Background()), mqtt.ErrSubscribeFailed)
	assert.False(t, gw.IsConnected())
}

func TestGatewayAutoSubscribeDisabled(t *testing.T) {
	cfg := gatewayConfig()
	cfg.Options.AutoSubscribeCommands = false
	gsess := (&fakeBroker{}).gatewaySession("GT", "GW")
	gw, err := NewGateway(cfg, WithSession(gsess))
	require.NoError(t, err)
	require.NoError(t, gw.Connect(context.Background()))
	t.Cleanup(gw.Disconnect)

	assert.Zero(t, gw.SubscriptionCount())
}

func TestGatewayCommandsAndNotifications(t *testing.T) {
	b := &fakeBroker{}
	ctx := context.Background()

	gsess := b.gatewaySession("GT", "GW")
	gw, err := NewGateway(gatewayConfig(), WithSession(gsess))
	require.NoError(t, err)
	require.NoError(t, gw.Connect(ctx))
	t.Cleanup(gw.Disconnect)

	var cmds collector[*message.Command]
	var notes collector[*message.Notification]
	gw.SetCommandCallback(cmds.add)
	gw.SetNotificationCallback(notes.add)

	require.NoError(t, gw.SubscribeToCommands(ctx, "", "", mqtt.AtLeastOnce))
	require.NoError(t, gw.SubscribeToDeviceCommands(ctx, Filter{DeviceType: "sensor"}, mqtt.AtLeastOnce))
	require.NoError(t, gw.SubscribeToNotifications(ctx, mqtt.AtLeastOnce))
	assert.True(t, gsess.hasSub("iot-2/type/GT/id/GW/cmd/+/fmt/+"))
	assert.True(t, gsess.hasSub("iot-2/type/sensor/id/+/cmd/+/fmt/+"))
	assert.True(t, gsess.hasSub("iot-2/type/GT/id/GW/notify"))

	app, _ := connectApp(t, b, "controller")
	require.NoError(t, app.PublishCommand(ctx, "sensor", "s1", "calibrate", map[string]any{"offset": 2}, mqtt.AtLeastOnce))
	b.route("iot-2/type/GT/id/GW/notify", []byte(`{"Request":"GatewayCommandSubscribe","Time":"2026-03-01T09:00:00Z"}`))

	require.Eventually(t, func() bool { return cmds.len() == 1 && notes.len() == 1 }, waitFor, tick)
	assert.Equal(t, "s1", cmds.all()[0].DeviceID)
	assert.Equal(t, "calibrate", cmds.all()[0].Name)
	assert.Equal(t, "GW", notes.all()[0].DeviceID)

	require.NoError(t, gw.PublishCommand(ctx, "sensor", "s2", "reset", nil, mqtt.AtMostOnce))
	got, qos := gsess.lastPublished()
	assert.Equal(t, "iot-2/type/sensor/id/s2/cmd/reset/fmt/json", got)
	assert.Equal(t, mqtt.AtMostOnce, qos)

	require.NoError(t, gw.UnsubscribeFromDeviceCommands(ctx, Filter{DeviceType: "sensor"}))
	require.NoError(t, gw.UnsubscribeFromNotifications(ctx))
	assert.False(t, gsess.hasSub("iot-2/type/GT/id/GW/notify"))
	assert.Equal(t, 1, gw.SubscriptionCount())
}
