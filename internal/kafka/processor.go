package kafka

import (
	"context"
	"crypto/tls"
	"log"
	"os"
	"time"

	"github.com/ortelius/vuln2rev-mapper/config"
	"github.com/ortelius/vuln2rev-mapper/database"
	revision "github.com/ortelius/vuln2rev-mapper/events/modules/revisions"
	"github.com/ortelius/vuln2rev-mapper/internal/services"
	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl/plain"
)

// RunEventProcessor starts the background consumer for revision analysis
// requests. It returns after the connection check; the read loop runs until
// the context is canceled.
func RunEventProcessor(ctx context.Context, db database.DBConnection, cfg *config.Config) error {
	brokers := cfg.KafkaBrokers
	if len(brokers) == 0 {
		brokers = []string{"localhost:9092"}
	}

	username := os.Getenv("KAFKA_API_KEY")
	password := os.Getenv("KAFKA_API_SECRET")

	var dialer *kafka.Dialer

	// Only configure SASL/TLS when credentials are provided
	if username != "" && password != "" {
		mechanism := plain.Mechanism{
			Username: username,
			Password: password,
		}

		dialer = &kafka.Dialer{
			Timeout:       10 * time.Second,
			DualStack:     true,
			SASLMechanism: mechanism,
			TLS:           &tls.Config{},
		}
	} else {
		// Default dialer for local development (no SASL/TLS)
		dialer = &kafka.Dialer{
			Timeout:   10 * time.Second,
			DualStack: true,
		}
	}

	topic := cfg.KafkaTopic
	var conn *kafka.Conn
	var err error

	// Retry logic: 3 tries
	for i := 1; i <= 3; i++ {
		log.Printf("Kafka connection attempt %d/3...", i)
		conn, err = dialer.DialContext(ctx, "tcp", brokers[0])
		if err == nil {
			conn.Close()
			break
		}
		if i < 3 {
			time.Sleep(2 * time.Second)
		}
	}

	if err != nil {
		return err
	}

	readerConfig := kafka.ReaderConfig{
		Brokers:  brokers,
		GroupID:  "vuln2rev-mapper-worker",
		Topic:    topic,
		MaxBytes: 10e6,
		Dialer:   dialer,
	}

	reader := kafka.NewReader(readerConfig)

	go func() {
		defer reader.Close()
		service := &services.AnalysisServiceWrapper{DB: db, Cfg: cfg}

		log.Println("Kafka Event Processor started. Listening for revision events...")

		for {
			select {
			case <-ctx.Done():
				return
			default:
				msg, err := reader.ReadMessage(ctx)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					continue
				}
				_ = revision.HandleRevisionAnalyzeRequested(ctx, msg.Value, service)
			}
		}
	}()

	return nil
}
