package ledger

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/yourorg/tradesim/pkg/types"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes each recorded action as a JSON message keyed by lane.
type KafkaSink struct {
	w messageWriter
}

func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	return &KafkaSink{w: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}}
}

func (k *KafkaSink) Publish(ctx context.Context, rec types.GeoActionRecord) error {
	value, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return k.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(rec.Origin + "->" + rec.Destination),
		Value: value,
		Time:  rec.Timestamp,
		Headers: []kafka.Header{
			{Key: "action", Value: []byte(rec.Action)},
		},
	})
}

func (k *KafkaSink) Close() error { return k.w.Close() }
