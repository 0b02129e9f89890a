// Package mqtt manages the broker connection shared by every client role.
//
// This package manages:
//   - The transport Session (paho.mqtt.golang by default)
//   - The subscription Registry, replayed after every reconnect
//   - The connection Manager state machine with bounded exponential backoff
//   - Publish with QoS and retain flags
//
// # Architecture
//
//	Manager ──► Session (PahoSession) ──► broker
//	   │
//	   ├─ Registry: filter → (QoS, handler kind), insertion ordered
//	   └─ delivery goroutine ──► MessageHandler (the dispatcher)
//
// Paho's own auto-reconnect is disabled. When an established connection
// drops, the Manager moves to ConnectionLost and retries on its own
// goroutine until it is connected again or Disconnect is called. Before the
// reconnected client is reported ready, every registry entry is
// re-subscribed.
//
// # Delivery Semantics
//
//   - QoS 0 publish success means "accepted by the local transport"
//   - QoS 1/2 publish waits for the broker acknowledgement
//   - Inbound messages are delivered in transport order on one goroutine
//   - Disconnect is safe from inside a handler and unblocks pending waits
//
// # Usage
//
//	opts := mqtt.Options{BrokerURL: "tcp://quickstart.messaging.internetofthings.ibmcloud.com:1883", ClientID: "a:quickstart:demo"}
//	session, err := mqtt.NewPahoSession(opts)
//	if err != nil {
//	    return err
//	}
//	m := mqtt.NewManager(session, opts)
//	if err := m.Connect(ctx); err != nil {
//	    return err
//	}
//	defer m.Disconnect()
//
//	m.SetMessageHandler(func(topic string, payload []byte) { ... })
//	_, _, err = m.Subscribe(ctx, topic.AllEvents, mqtt.AtMostOnce, message.KindEvent)
package mqtt
