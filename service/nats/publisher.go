package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/stellar-explain/service/metrics"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Publisher publishes explanation events.
type Publisher interface {
	// PublishExplanation publishes one event to "explanations.tx.{hash}".
	PublishExplanation(ctx context.Context, event *ExplanationEvent) error

	// PublishExplanationBatch publishes several events, continuing past
	// individual failures. It returns how many were published and the
	// joined failures.
	PublishExplanationBatch(ctx context.Context, events []*ExplanationEvent) (int, error)

	Close() error
}

// JetStreamPublisher publishes explanation events to NATS JetStream.
type JetStreamPublisher struct {
	nc      *nats.Conn
	js      jetstream.JetStream
	metrics *metrics.Metrics
	logger  *slog.Logger
}

const (
	// StreamName is the JetStream stream holding explanation events.
	StreamName = "EXPLANATIONS"

	// SubjectPrefix prefixes the transaction hash in event subjects.
	SubjectPrefix = "explanations.tx."

	// StreamSubjects is the subject pattern for the stream.
	StreamSubjects = SubjectPrefix + "*"

	// StreamRetention is how long events are retained.
	StreamRetention = 7 * 24 * time.Hour
)

// NewPublisher connects to NATS and ensures the stream exists.
// If metrics is nil, no metrics will be recorded.
func NewPublisher(natsURL string, m *metrics.Metrics, logger *slog.Logger) (*JetStreamPublisher, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name("stellar-explain-publisher"),
		nats.Timeout(10*time.Second),
		nats.ReconnectWait(1*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	publisher := &JetStreamPublisher{
		nc:      nc,
		js:      js,
		metrics: m,
		logger:  logger,
	}

	if err := publisher.ensureStream(); err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to ensure stream exists: %w", err)
	}

	logger.Info("NATS publisher initialized",
		"url", natsURL,
		"stream", StreamName,
	)

	return publisher, nil
}

func (p *JetStreamPublisher) ensureStream() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stream, err := p.js.Stream(ctx, StreamName)
	if err == nil {
		if info, err := stream.Info(ctx); err == nil {
			p.logger.Debug("JetStream stream already exists",
				"stream", StreamName,
				"messages", info.State.Msgs,
			)
		}
		return nil
	}

	p.logger.Info("creating JetStream stream", "stream", StreamName)

	_, err = p.js.CreateStream(ctx, StreamConfig())
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	p.logger.Info("JetStream stream created successfully", "stream", StreamName)
	return nil
}

// StreamConfig is the configuration of the explanations stream. Duplicate
// publishes of the same hash within the window are dropped by JetStream.
func StreamConfig() jetstream.StreamConfig {
	return jetstream.StreamConfig{
		Name:        StreamName,
		Description: "Stellar transaction explanations",
		Subjects:    []string{StreamSubjects},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      StreamRetention,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Duplicates:  10 * time.Minute,
	}
}

// PublishExplanation publishes a single event. The transaction hash is the
// message ID so replays of the same explanation are deduplicated.
func (p *JetStreamPublisher) PublishExplanation(ctx context.Context, event *ExplanationEvent) error {
	start := time.Now()
	subject := event.Subject()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal explanation event: %w", err)
	}

	_, err = p.js.Publish(ctx, subject, data, jetstream.WithMsgID(event.TransactionHash))
	if err != nil {
		p.metrics.RecordNATSPublish(StreamSubjects, "error", time.Since(start).Seconds())
		return fmt.Errorf("failed to publish explanation: %w", err)
	}
	p.metrics.RecordNATSPublish(StreamSubjects, "success", time.Since(start).Seconds())

	p.logger.DebugContext(ctx, "published explanation event",
		"subject", subject,
		"hash", event.TransactionHash,
	)

	return nil
}

// PublishExplanationBatch publishes events one by one, continuing past failures.
func (p *JetStreamPublisher) PublishExplanationBatch(ctx context.Context, events []*ExplanationEvent) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}

	var errs []error
	for _, event := range events {
		if err := p.PublishExplanation(ctx, event); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", event.TransactionHash, err))
			p.logger.ErrorContext(ctx, "failed to publish explanation in batch",
				"hash", event.TransactionHash,
				"error", err,
			)
		}
	}

	published := len(events) - len(errs)
	p.logger.DebugContext(ctx, "published explanation batch",
		"count", len(events),
		"failed", len(errs),
	)
	return published, errors.Join(errs...)
}

// Close closes the connection to NATS.
func (p *JetStreamPublisher) Close() error {
	if p.nc != nil {
		p.nc.Close()
		p.logger.Info("NATS publisher closed")
	}
	return nil
}
