package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/distadmin/service/metrics"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Publisher defines the interface for publishing reconciliation events to NATS.
type Publisher interface {
	// PublishOutcome publishes one version outcome to "distributor.{kind}.{version}".
	PublishOutcome(ctx context.Context, event *OutcomeEvent) error

	// PublishRun publishes a run lifecycle event to "distributor.runs.{status}".
	PublishRun(ctx context.Context, event *RunEvent) error

	// Close closes the connection to NATS.
	Close() error
}

// JetStreamPublisher publishes reconciliation events to NATS JetStream.
type JetStreamPublisher struct {
	nc      *nats.Conn
	js      jetstream.JetStream
	metrics *metrics.Metrics
	logger  *slog.Logger
}

const (
	// StreamName is the name of the JetStream stream for audit events.
	StreamName = "DISTRIBUTOR_ADMIN"

	// StreamSubjects is the subject pattern for the stream.
	StreamSubjects = "distributor.>"

	// StreamRetention is how long messages are retained (90 days by default).
	StreamRetention = 90 * 24 * time.Hour
)

// OutcomeSubject returns the subject an outcome for kind and version is published to.
func OutcomeSubject(kind string, version uint64) string {
	return fmt.Sprintf("distributor.%s.%d", kind, version)
}

// RunSubject returns the subject a run lifecycle event is published to.
func RunSubject(status string) string {
	return fmt.Sprintf("distributor.runs.%s", status)
}

// NewPublisher creates a new JetStream publisher.
// It connects to NATS and ensures the stream exists. metrics may be nil.
func NewPublisher(natsURL string, m *metrics.Metrics, logger *slog.Logger) (*JetStreamPublisher, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name("distadmin-publisher"),
		nats.Timeout(10*time.Second),
		nats.ReconnectWait(1*time.Second),
		nats.MaxReconnects(-1), // Unlimited reconnects
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

// ensureStream creates the JetStream stream if it doesn't exist.
func (p *JetStreamPublisher) ensureStream() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stream, err := p.js.Stream(ctx, StreamName)
	if err == nil {
		info, err := stream.Info(ctx)
		if err == nil {
			p.logger.Debug("JetStream stream already exists",
				"stream", StreamName,
				"messages", info.State.Msgs,
			)
		}
		return nil
	}

	p.logger.Info("creating JetStream stream", "stream", StreamName)

	streamConfig := jetstream.StreamConfig{
		Name:        StreamName,
		Description: "Merkle distributor administrative changes",
		Subjects:    []string{StreamSubjects},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      StreamRetention,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
	}

	if _, err := p.js.CreateStream(ctx, streamConfig); err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	p.logger.Info("JetStream stream created successfully", "stream", StreamName)
	return nil
}

func (p *JetStreamPublisher) publish(ctx context.Context, subject string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal event for %s: %w", subject, err)
	}

	_, err = p.js.Publish(ctx, subject, data)
	if p.metrics != nil {
		p.metrics.RecordNATSPublish(subject, err)
	}
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	return nil
}

// PublishOutcome publishes a single version outcome.
func (p *JetStreamPublisher) PublishOutcome(ctx context.Context, event *OutcomeEvent) error {
	subject := OutcomeSubject(event.Kind, event.Version)
	if err := p.publish(ctx, subject, event); err != nil {
		return err
	}

	p.logger.Debug("published outcome event",
		"subject", subject,
		"outcome", event.Outcome,
		"run_id", event.RunID,
	)
	return nil
}

// PublishRun publishes a run lifecycle event.
func (p *JetStreamPublisher) PublishRun(ctx context.Context, event *RunEvent) error {
	return p.publish(ctx, RunSubject(event.Status), event)
}

// Close closes the connection to NATS.
func (p *JetStreamPublisher) Close() error {
	if p.nc != nil {
		// Drain flushes pending publishes before closing.
		if err := p.nc.Drain(); err != nil {
			p.nc.Close()
		}
		p.logger.Info("NATS publisher closed")
	}
	return nil
}
