package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/ibm-messaging/iot-go/internal/historian"
	"github.com/ibm-messaging/iot-go/pkg/client"
	"github.com/ibm-messaging/iot-go/pkg/message"
	"github.com/ibm-messaging/iot-go/pkg/mqtt"
	"github.com/ibm-messaging/iot-go/pkg/topic"
)

// errUsage marks invalid flag combinations.
var errUsage = errors.New("invalid usage")

// payload turns --data into publishable data. Valid JSON is embedded
// as-is, anything else is sent as a JSON string.
func payload(data string) any {
	if data == "" {
		return nil
	}
	if json.Valid([]byte(data)) {
		return json.RawMessage(data)
	}
	return data
}

// connected runs fn between Connect and Disconnect.
func connected(ctx context.Context, c interface {
	Connect(context.Context) error
	Disconnect()
}, fn func() error) error {
	if err := c.Connect(ctx); err != nil {
		return fmt.Errorf("connecting: %w", err)
	}
	defer c.Disconnect()
	return fn()
}

func publishEventCmd(f *flags) *cli.Command {
	var (
		typeID, deviceID, name, data string
		qos                          int
	)

	return &cli.Command{
		Name:      "publish-event",
		Usage:     "Publish one event",
		UsageText: "wiotp publish-event --name <name> [--data <json>] [--qos 0|1|2] [--type <type> --id <id>]",
		Description: `Publishes an event with the configured identity.

Devices and gateways publish their own events; gateways and applications
can publish for another device with --type and --id.`,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Usage: "event name", Required: true, Destination: &name},
			&cli.StringFlag{Name: "data", Aliases: []string{"d"}, Usage: "event data, JSON or a plain string", Destination: &data},
			&cli.IntFlag{Name: "qos", Usage: "quality of service", Value: 1, Destination: &qos},
			&cli.StringFlag{Name: "type", Usage: "device type to publish for", Destination: &typeID},
			&cli.StringFlag{Name: "id", Usage: "device id to publish for", Destination: &deviceID},
		},
		Action: func(ctx context.Context, _ *cli.Command) error {
			q, err := mqtt.ParseQoS(qos)
			if err != nil {
				return err
			}
			if err := f.setup(); err != nil {
				return err
			}
			return publishEvent(ctx, f, typeID, deviceID, name, payload(data), q)
		},
	}
}

func publishEvent(ctx context.Context, f *flags, typeID, deviceID, name string, data any, q mqtt.QoS) error {
	opts := []client.Option{client.WithLogger(f.log.Component("client"))}

	switch f.cfg.Role() {
	case topic.RoleDevice:
		if typeID != "" || deviceID != "" {
			return fmt.Errorf("%w: devices publish only their own events", errUsage)
		}
		d, err := client.NewDevice(f.cfg, opts...)
		if err != nil {
			return err
		}
		return connected(ctx, d, func() error {
			return d.PublishEvent(ctx, name, data, q)
		})

	case topic.RoleGateway:
		g, err := client.NewGateway(f.cfg, opts...)
		if err != nil {
			return err
		}
		return connected(ctx, g, func() error {
			if typeID == "" && deviceID == "" {
				return g.PublishEvent(ctx, name, data, q)
			}
			return g.PublishDeviceEvent(ctx, typeID, deviceID, name, data, q)
		})

	default:
		if typeID == "" || deviceID == "" {
			return fmt.Errorf("%w: applications need --type and --id", errUsage)
		}
		a, err := client.NewApplication(f.cfg, opts...)
		if err != nil {
			return err
		}
		return connected(ctx, a, func() error {
			return a.PublishEvent(ctx, typeID, deviceID, name, data, q)
		})
	}
}

func publishCommandCmd(f *flags) *cli.Command {
	var (
		typeID, deviceID, name, data string
		qos                          int
	)

	return &cli.Command{
		Name:      "publish-command",
		Usage:     "Send one command to a device",
		UsageText: "wiotp publish-command --type <type> --id <id> --name <name> [--data <json>] [--qos 0|1|2]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "type", Usage: "device type", Required: true, Destination: &typeID},
			&cli.StringFlag{Name: "id", Usage: "device id", Required: true, Destination: &deviceID},
			&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Usage: "command name", Required: true, Destination: &name},
			&cli.StringFlag{Name: "data", Aliases: []string{"d"}, Usage: "command data, JSON or a plain string", Destination: &data},
			&cli.IntFlag{Name: "qos", Usage: "quality of service", Value: 1, Destination: &qos},
		},
		Action: func(ctx context.Context, _ *cli.Command) error {
			q, err := mqtt.ParseQoS(qos)
			if err != nil {
				return err
			}
			if err := f.setup(); err != nil {
				return err
			}

			opts := []client.Option{client.WithLogger(f.log.Component("client"))}
			switch f.cfg.Role() {
			case topic.RoleGateway:
				g, err := client.NewGateway(f.cfg, opts...)
				if err != nil {
					return err
				}
				return connected(ctx, g, func() error {
					return g.PublishCommand(ctx, typeID, deviceID, name, payload(data), q)
				})
			case topic.RoleApplication:
				a, err := client.NewApplication(f.cfg, opts...)
				if err != nil {
					return err
				}
				return connected(ctx, a, func() error {
					return a.PublishCommand(ctx, typeID, deviceID, name, payload(data), q)
				})
			default:
				return fmt.Errorf("%w: devices cannot send commands", errUsage)
			}
		},
	}
}

func watchCmd(f *flags) *cli.Command {
	var (
		filter        client.Filter
		record        bool
		statsInterval time.Duration
	)

	return &cli.Command{
		Name:      "watch",
		Usage:     "Print events and device status until interrupted",
		UsageText: "wiotp watch [--type <type> [--id <id> [--name <name> [--format <fmt>]]]] [--record]",
		Description: `Subscribes as an application and prints every matching event and
device status update, one per line.

With --record each message is also written to the historian backend from
the config file (sqlite, influxdb or kafka).`,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "type", Usage: "device type", Destination: &filter.DeviceType},
			&cli.StringFlag{Name: "id", Usage: "device id", Destination: &filter.DeviceID},
			&cli.StringFlag{Name: "name", Usage: "event name", Destination: &filter.Name},
			&cli.StringFlag{Name: "format", Usage: "event format", Destination: &filter.Format},
			&cli.BoolFlag{Name: "record", Usage: "write messages to the historian", Destination: &record},
			&cli.DurationFlag{Name: "stats-interval", Usage: "log delivery counters at this interval (0 disables)", Destination: &statsInterval},
		},
		Action: func(ctx context.Context, _ *cli.Command) error {
			if err := f.setup(); err != nil {
				return err
			}
			if f.cfg.Role() != topic.RoleApplication {
				return fmt.Errorf("%w: watch needs an application configuration", errUsage)
			}
			return watch(ctx, f, filter, record, statsInterval)
		},
	}
}

func watch(ctx context.Context, f *flags, filter client.Filter, record bool, statsInterval time.Duration) error {
	log := f.log.Component("watch")

	app, err := client.NewApplication(f.cfg, client.WithLogger(f.log.Component("client")))
	if err != nil {
		return err
	}

	show := func(m message.Message) { fmt.Fprintln(f.out, m) }
	app.SetEventCallback(func(e *message.Event) { show(e) })
	app.SetStatusCallback(func(s *message.StatusUpdate) { show(s) })

	var rec historian.Recorder
	if record {
		hcfg := f.cfg.Historian
		hcfg.Enabled = true
		backend, err := historian.Open(ctx, hcfg, log)
		if err != nil {
			return fmt.Errorf("opening historian: %w", err)
		}
		rec = historian.NewBuffered(backend, historian.DefaultQueueSize, log)
		tap := historian.Tap(rec, log)
		app.Tap(message.KindEvent, tap)
		app.Tap(message.KindStatus, tap)
		log.Info("recording messages", "backend", hcfg.Backend)
	}

	app.SetOnConnectionLost(func(err error) {
		log.Warn("connection lost, reconnecting", "error", err)
	})

	if err := app.Connect(ctx); err != nil {
		if rec != nil {
			_ = rec.Close()
		}
		return fmt.Errorf("connecting: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		<-gctx.Done()
		app.Disconnect()
		if rec != nil {
			return rec.Close()
		}
		return nil
	})

	g.Go(func() error {
		err := app.SubscribeToEvents(gctx, filter, mqtt.AtLeastOnce)
		if err == nil {
			err = app.SubscribeToDeviceStatus(gctx, filter.DeviceType, filter.DeviceID, mqtt.AtLeastOnce)
		}
		if gctx.Err() != nil {
			return nil
		}
		return err
	})

	if statsInterval > 0 {
		g.Go(func() error {
			ticker := time.NewTicker(statsInterval)
			defer ticker.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-ticker.C:
					s := app.DispatchStats()
					log.Info("delivery stats",
						"delivered", s.Delivered,
						"dropped", s.Dropped,
						"downgraded", s.Downgraded,
						"state", app.State().String(),
					)
				}
			}
		})
	}

	log.Info("watching", "client_id", app.ClientID(), "filter", filter)
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func versionCmd(f *flags) *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Print version information",
		Action: func(context.Context, *cli.Command) error {
			_, err := fmt.Fprintf(f.out, "wiotp %s\n", build())
			return err
		},
	}
}
