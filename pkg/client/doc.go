// Package client provides the device, gateway and application clients.
//
// Each client composes a topic.Builder for its role, an mqtt.Manager
// driving a paho session, and a dispatch.Dispatcher routing inbound
// messages to the callbacks registered on the client. The role decides
// which topics a client may publish to and subscribe under:
//
//   - Device publishes its own events and receives its own commands.
//   - Gateway publishes events for itself and its attached devices,
//     sends commands, and receives commands and notifications.
//   - Application publishes events and commands for any device and
//     receives events, commands and connection status.
//
// A typical device:
//
//	cfg, err := config.Load("device.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	dev, err := client.NewDevice(cfg, client.WithLogger(logger))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	dev.SetCommandCallback(func(c *message.Command) { ... })
//	if err := dev.Connect(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer dev.Disconnect()
//	err = dev.PublishEvent(ctx, "status", map[string]any{"cpu": 90}, mqtt.AtLeastOnce)
package client
