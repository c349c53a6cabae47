package redpanda

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/twmb/franz-go/pkg/kgo"
	"golang.org/x/sync/errgroup"

	"github.com/fairyhunter13/ai-interview-auditor/internal/adapter/observability"
	"github.com/fairyhunter13/ai-interview-auditor/internal/domain"
	obsctx "github.com/fairyhunter13/ai-interview-auditor/internal/observability"
)

// Processor runs the analysis of one session.
type Processor interface {
	Process(ctx context.Context, sessionID string) error
}

// pollClient is the subset of *kgo.Client used by Consumer.
type pollClient interface {
	PollFetches(ctx context.Context) kgo.Fetches
	MarkCommitRecords(rs ...*kgo.Record)
	CommitMarkedOffsets(ctx context.Context) error
	Close()
}

// ConsumerConfig configures a Consumer.
type ConsumerConfig struct {
	Brokers        []string
	Group          string
	Topic          string
	MaxConcurrency int
}

// Consumer polls analysis tasks and hands each one to a Processor.
type Consumer struct {
	client         pollClient
	proc           Processor
	topic          string
	maxConcurrency int
	newBackoff     func() backoff.BackOff
}

// NewConsumer joins the consumer group and makes sure the topic exists.
func NewConsumer(ctx context.Context, cfg ConsumerConfig, proc Processor) (*Consumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("no seed brokers provided")
	}
	if cfg.Group == "" {
		return nil, fmt.Errorf("missing required group ID")
	}
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumerGroup(cfg.Group),
		kgo.ConsumeTopics(cfg.Topic),
		kgo.DisableAutoCommit(),
		kgo.FetchIsolationLevel(kgo.ReadCommitted()),
		kgo.RequireStableFetchOffsets(),
		kgo.SessionTimeout(30*time.Second),
		kgo.HeartbeatInterval(3*time.Second),
		kgo.FetchMaxWait(5*time.Second),
		tracingHooks(),
	)
	if err != nil {
		return nil, fmt.Errorf("redpanda consumer: %w", err)
	}
	if err := EnsureTopic(ctx, client, cfg.Topic, 1, 1); err != nil {
		slog.Warn("failed to ensure topic", slog.String("topic", cfg.Topic), slog.Any("error", err))
	}

	slog.Info("redpanda consumer created",
		slog.String("group_id", cfg.Group),
		slog.String("topic", cfg.Topic),
		slog.Int("max_concurrency", cfg.MaxConcurrency))
	return newConsumer(client, proc, cfg.Topic, cfg.MaxConcurrency), nil
}

func newConsumer(client pollClient, proc Processor, topic string, maxConcurrency int) *Consumer {
	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}
	return &Consumer{
		client:         client,
		proc:           proc,
		topic:          topic,
		maxConcurrency: maxConcurrency,
		newBackoff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxInterval = 10 * time.Second
			b.MaxElapsedTime = 0
			return b
		},
	}
}

// Run polls until ctx is done or the client is closed. Offsets of a batch are
// committed once every record in it has been handled, unless ctx ended while
// the batch was running.
func (c *Consumer) Run(ctx context.Context) error {
	bo := c.newBackoff()
	for {
		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		if errs := fetches.Errors(); len(errs) > 0 {
			for _, fe := range errs {
				slog.Error("fetch error",
					slog.String("topic", fe.Topic),
					slog.Int("partition", int(fe.Partition)),
					slog.Any("error", fe.Err))
			}
			wait := bo.NextBackOff()
			if wait == backoff.Stop {
				wait = 10 * time.Second
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		} else {
			bo.Reset()
		}

		recs := fetches.Records()
		if len(recs) == 0 {
			continue
		}
		c.handleBatch(ctx, recs)
		if err := ctx.Err(); err != nil {
			// Leave the batch uncommitted so interrupted sessions are redelivered.
			slog.Warn("shutdown during batch, offsets not committed", slog.Int("records", len(recs)))
			return err
		}

		c.client.MarkCommitRecords(recs...)
		commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		if err := c.client.CommitMarkedOffsets(commitCtx); err != nil {
			slog.Error("commit offsets failed", slog.Int("records", len(recs)), slog.Any("error", err))
		}
		cancel()
	}
}

func (c *Consumer) handleBatch(ctx context.Context, recs []*kgo.Record) {
	var g errgroup.Group
	g.SetLimit(c.maxConcurrency)
	for _, rec := range recs {
		g.Go(func() error {
			c.handle(ctx, rec)
			return nil
		})
	}
	_ = g.Wait()
}

func (c *Consumer) handle(ctx context.Context, rec *kgo.Record) {
	var p domain.AnalysisTaskPayload
	if err := json.Unmarshal(rec.Value, &p); err != nil || p.SessionID == "" {
		slog.Warn("dropping invalid analysis task",
			slog.String("topic", rec.Topic),
			slog.Int64("offset", rec.Offset),
			slog.Any("error", err))
		observability.HandleTask(c.topic, "invalid")
		return
	}

	if rid := headerValue(rec, headerRequestID); rid != "" {
		ctx = obsctx.ContextWithRequestID(ctx, rid)
		ctx = obsctx.ContextWithLogger(ctx, obsctx.LoggerFromContext(ctx).With(slog.String("request_id", rid)))
	}
	ctx = obsctx.WithSession(ctx, p.SessionID)
	lg := obsctx.LoggerFromContext(ctx)

	start := time.Now()
	if err := c.proc.Process(ctx, p.SessionID); err != nil {
		lg.Error("analysis task failed", slog.Duration("elapsed", time.Since(start)), slog.Any("error", err))
		observability.HandleTask(c.topic, "error")
		return
	}
	lg.Info("analysis task done", slog.Duration("elapsed", time.Since(start)))
	observability.HandleTask(c.topic, "ok")
}

func headerValue(rec *kgo.Record, key string) string {
	for _, h := range rec.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

// Close leaves the group and closes the client.
func (c *Consumer) Close() {
	if c.client != nil {
		c.client.Close()
	}
}
