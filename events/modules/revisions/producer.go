// Package revision handles Kafka event production for revision snapshot
// events.
package revision

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/ortelius/vuln2rev-mapper/model"
	"github.com/segmentio/kafka-go"
)

// RevisionProducer sends revision snapshot events to Kafka.
type RevisionProducer struct {
	Writer *kafka.Writer
}

// NewRevisionProducer initializes a new Kafka writer for revision events.
func NewRevisionProducer(brokers []string, topic string) *RevisionProducer {
	return &RevisionProducer{
		Writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.LeastBytes{},
		},
	}
}

// PublishRevisionSnapshotCreated sends the event to the Kafka topic.
func (p *RevisionProducer) PublishRevisionSnapshotCreated(ctx context.Context, snap *model.RevisionSnapshot) error {
	event := RevisionSnapshotCreatedEvent{
		EventType:     "revision.snapshot.created",
		EventID:       uuid.New().String(),
		EventTime:     time.Now().UTC(),
		SchemaVersion: "v1",
		Snapshot:      *snap,
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	return p.Writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(snap.RepoName),
		Value: payload,
	})
}

// Close cleans up the Kafka writer.
func (p *RevisionProducer) Close() error {
	return p.Writer.Close()
}
