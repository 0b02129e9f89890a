package historian

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ibm-messaging/iot-go/internal/infrastructure/database"
	"github.com/ibm-messaging/iot-go/internal/infrastructure/influxdb"
	"github.com/ibm-messaging/iot-go/internal/infrastructure/kafka"
	"github.com/ibm-messaging/iot-go/migrations"
	"github.com/ibm-messaging/iot-go/pkg/config"
	"github.com/ibm-messaging/iot-go/pkg/dispatch"
	"github.com/ibm-messaging/iot-go/pkg/message"
	"github.com/ibm-messaging/iot-go/pkg/mqtt"
)

// recordTimeout bounds one Record call made by Tap.
const recordTimeout = 5 * time.Second

// ErrDisabled is returned by Open when the historian is turned off.
var ErrDisabled = errors.New("historian: disabled in configuration")

// Recorder persists inbound messages.
type Recorder interface {
	Record(ctx context.Context, msg message.Message) error
	Close() error
}

// Entry is the flattened form of a recorded message.
type Entry struct {
	ID         string
	Kind       string
	DeviceType string
	DeviceID   string
	AppID      string
	Name       string
	Format     string
	Payload    []byte
	ReceivedAt time.Time
}

// NewEntry flattens msg and assigns it a fresh id.
func NewEntry(msg message.Message) Entry {
	src := msg.Source()
	env := msg.Payload()
	return Entry{
		ID:         uuid.NewString(),
		Kind:       msg.Kind().String(),
		DeviceType: src.DeviceType,
		DeviceID:   src.DeviceID,
		AppID:      src.AppID,
		Name:       src.Name,
		Format:     env.Format,
		Payload:    env.Raw,
		ReceivedAt: env.Timestamp,
	}
}

// Key identifies the message source: "type/id" for devices, "app/<id>"
// for application status.
func (e Entry) Key() string {
	if e.AppID != "" {
		return "app/" + e.AppID
	}
	return e.DeviceType + "/" + e.DeviceID
}

// Open builds the recorder selected by cfg.Backend. Asynchronous write
// failures from the InfluxDB and Kafka backends are logged to logger.
func Open(ctx context.Context, cfg config.HistorianConfig, logger mqtt.Logger) (Recorder, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}
	if logger == nil {
		logger = mqtt.NopLogger()
	}
	writeFailed := func(err error) {
		logger.Warn("historian write failed", "backend", cfg.Backend, "error", err)
	}

	switch cfg.Backend {
	case config.BackendSQLite:
		db, err := database.Open(ctx, cfg.SQLite)
		if err != nil {
			return nil, fmt.Errorf("opening historian database: %w", err)
		}
		if err := db.Migrate(ctx, migrations.FS); err != nil {
			db.Close() //nolint:errcheck // Best effort cleanup on error path
			return nil, fmt.Errorf("migrating historian database: %w", err)
		}
		return NewSQLite(db), nil

	case config.BackendInfluxDB:
		client, err := influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			return nil, err
		}
		client.SetOnError(writeFailed)
		return NewInflux(client), nil

	case config.BackendKafka:
		p, err := kafka.NewProducer(cfg.Kafka)
		if err != nil {
			return nil, err
		}
		p.SetOnError(writeFailed)
		return NewKafka(p), nil
	}
	return nil, fmt.Errorf("historian: unknown backend %q", cfg.Backend)
}

// Tap returns a middleware that hands each message to next and then
// records it on the delivery goroutine. Record failures are logged, never
// propagated. Wrap slow backends in Buffered.
func Tap(rec Recorder, logger mqtt.Logger) func(next dispatch.Handler) dispatch.Handler {
	if logger == nil {
		logger = mqtt.NopLogger()
	}
	return func(next dispatch.Handler) dispatch.Handler {
		return func(msg message.Message) {
			if next != nil {
				next(msg)
			}

			ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
			defer cancel()

			if err := rec.Record(ctx, msg); err != nil {
				src := msg.Source()
				logger.Warn("historian record failed",
					"kind", msg.Kind().String(),
					"type_id", src.DeviceType,
					"device_id", src.DeviceID,
					"error", err,
				)
			}
		}
	}
}
