// Package redpanda provides Redpanda/Kafka queue integration.
//
// The producer publishes one analysis task per session; the consumer
// hands each task to the session processor with bounded concurrency and
// commits offsets only after the batch was handled.
package redpanda

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/plugin/kotel"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/ai-interview-auditor/internal/adapter/observability"
	"github.com/fairyhunter13/ai-interview-auditor/internal/domain"
	obsctx "github.com/fairyhunter13/ai-interview-auditor/internal/observability"
)

// DefaultTopic is used when no topic is configured.
const DefaultTopic = "interview-analysis"

const (
	headerSessionID = "session_id"
	headerRequestID = "request_id"
)

// syncProducer is the subset of *kgo.Client used by Producer.
type syncProducer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
	Ping(ctx context.Context) error
	Close()
}

// Producer publishes analysis tasks and implements domain.Queue.
type Producer struct {
	client syncProducer
	topic  string
}

var _ domain.Queue = (*Producer)(nil)

func tracingHooks() kgo.Opt {
	tracer := kotel.NewTracer(kotel.TracerProvider(otel.GetTracerProvider()))
	return kgo.WithHooks(kotel.NewKotel(kotel.WithTracer(tracer)).Hooks()...)
}

// NewProducer connects to brokers and makes sure topic exists.
func NewProducer(ctx context.Context, brokers []string, topic string) (*Producer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("no seed brokers provided")
	}
	if topic == "" {
		topic = DefaultTopic
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.RequestRetries(10),
		kgo.ProducerBatchMaxBytes(1000000),
		tracingHooks(),
	)
	if err != nil {
		return nil, fmt.Errorf("redpanda client: %w", err)
	}
	if err := EnsureTopic(ctx, client, topic, 1, 1); err != nil {
		slog.Warn("failed to ensure topic", slog.String("topic", topic), slog.Any("error", err))
	}
	slog.Info("redpanda producer created", slog.Any("brokers", brokers), slog.String("topic", topic))
	return &Producer{client: client, topic: topic}, nil
}

// EnqueueAnalysis publishes payload keyed by session id so redeliveries of one
// session land on one partition.
func (p *Producer) EnqueueAnalysis(ctx domain.Context, payload domain.AnalysisTaskPayload) (string, error) {
	if payload.SessionID == "" {
		return "", fmt.Errorf("op=queue.enqueue: %w: session id required", domain.ErrInvalidArgument)
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("op=queue.enqueue: %w", err)
	}
	rec := &kgo.Record{
		Topic:   p.topic,
		Key:     []byte(payload.SessionID),
		Value:   b,
		Headers: []kgo.RecordHeader{{Key: headerSessionID, Value: []byte(payload.SessionID)}},
	}
	if rid := obsctx.RequestIDFromContext(ctx); rid != "" {
		rec.Headers = append(rec.Headers, kgo.RecordHeader{Key: headerRequestID, Value: []byte(rid)})
	}

	if err := p.client.ProduceSync(ctx, rec).FirstErr(); err != nil {
		obsctx.LoggerFromContext(ctx).Error("produce failed",
			slog.String("session_id", payload.SessionID),
			slog.String("topic", p.topic),
			slog.Any("error", err))
		return "", fmt.Errorf("op=queue.enqueue: %w", err)
	}
	observability.EnqueueTask(p.topic)
	obsctx.LoggerFromContext(ctx).Info("analysis task enqueued",
		slog.String("session_id", payload.SessionID),
		slog.String("topic", p.topic))
	return payload.SessionID, nil
}

// Ping checks that at least one broker answers.
func (p *Producer) Ping(ctx context.Context) error {
	if err := p.client.Ping(ctx); err != nil {
		return fmt.Errorf("op=queue.ping: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying client.
func (p *Producer) Close() error {
	if p.client != nil {
		p.client.Close()
	}
	return nil
}
