//go:build integration

package mqtt

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ibm-messaging/iot-go/pkg/message"
)

// Integration tests against a real broker.
// These tests require a running MQTT broker at 127.0.0.1:1883.
//
// Run with:
//   go test -tags=integration -v ./pkg/mqtt/...

func integrationManager(t *testing.T, clientID string) *Manager {
	t.Helper()
	opts := Options{
		BrokerURL:      "tcp://127.0.0.1:1883",
		ClientID:       clientID,
		CleanSession:   true,
		ConnectTimeout: 5 * time.Second,
	}
	s, err := NewPahoSession(opts)
	require.NoError(t, err)

	m := NewManager(s, opts)
	require.NoError(t, m.Connect(context.Background()))
	t.Cleanup(m.Disconnect)
	return m
}

func TestIntegration_PublishSubscribe(t *testing.T) {
	sub := integrationManager(t, "wiotp-int-sub")
	pub := integrationManager(t, "wiotp-int-pub")

	got := make(chan string, 1)
	sub.SetMessageHandler(func(topic string, payload []byte) {
		got <- string(payload)
	})

	_, _, err := sub.Subscribe(context.Background(), "iot-2/type/int/id/+/evt/+/fmt/+", AtLeastOnce, message.KindEvent)
	require.NoError(t, err)

	require.NoError(t, pub.Publish(context.Background(), "iot-2/type/int/id/d1/evt/ping/fmt/text", []byte("hello"), AtLeastOnce, false))

	select {
	case payload := <-got:
		assert.Equal(t, "hello", payload)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestIntegration_ConnectUnreachable(t *testing.T) {
	opts := Options{
		BrokerURL:      "tcp://127.0.0.1:19999",
		ClientID:       "wiotp-int-unreachable",
		ConnectTimeout: 2 * time.Second,
	}
	s, err := NewPahoSession(opts)
	require.NoError(t, err)

	m := NewManager(s, opts)
	err = m.Connect(context.Background())
	assert.ErrorIs(t, err, ErrNetwork)
	assert.Equal(t, StateDisconnected, m.State())
}
