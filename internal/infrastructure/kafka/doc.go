// Package kafka provides a Kafka producer for the message historian.
//
// It wraps segmentio/kafka-go's Writer with hash partitioning by key, so
// every message from one device lands on the same partition in order.
//
// # Usage
//
//	p, err := kafka.NewProducer(cfg.Historian.Kafka)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer p.Close()
//
//	err = p.Publish(ctx, kafka.Record{Key: "raspi/dev-01", Value: payload})
package kafka
