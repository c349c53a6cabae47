package redpanda

import (
	"context"
	"errors"
	"sync"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/kmsg"

	obsctx "github.com/fairyhunter13/ai-interview-auditor/internal/observability"
)

type fakeProducer struct {
	mu      sync.Mutex
	records []*kgo.Record
	err     error
	pingErr error
	closed  bool
}

func (f *fakeProducer) ProduceSync(_ context.Context, rs ...*kgo.Record) kgo.ProduceResults {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(kgo.ProduceResults, 0, len(rs))
	for _, r := range rs {
		if f.err == nil {
			f.records = append(f.records, r)
		}
		out = append(out, kgo.ProduceResult{Record: r, Err: f.err})
	}
	return out
}

func (f *fakeProducer) Ping(context.Context) error { return f.pingErr }

func (f *fakeProducer) Close() { f.closed = true }

// fakePoller replays canned fetches and then blocks until the context ends.
type fakePoller struct {
	mu        sync.Mutex
	fetches   []kgo.Fetches
	onDrained func()
	marked    []*kgo.Record
	commits   int
	commitErr error
	closed    bool
}

func (f *fakePoller) PollFetches(ctx context.Context) kgo.Fetches {
	f.mu.Lock()
	if len(f.fetches) > 0 {
		next := f.fetches[0]
		f.fetches = f.fetches[1:]
		f.mu.Unlock()
		return next
	}
	drained := f.onDrained
	f.onDrained = nil
	f.mu.Unlock()
	if drained != nil {
		drained()
	}
	<-ctx.Done()
	return kgo.NewErrFetch(ctx.Err())
}

func (f *fakePoller) MarkCommitRecords(rs ...*kgo.Record) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marked = append(f.marked, rs...)
}

func (f *fakePoller) CommitMarkedOffsets(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commits++
	return f.commitErr
}

func (f *fakePoller) Close() { f.closed = true }

func recordsFetch(topic string, recs ...*kgo.Record) kgo.Fetches {
	for i, r := range recs {
		r.Topic = topic
		r.Offset = int64(i)
	}
	return kgo.Fetches{{Topics: []kgo.FetchTopic{{
		Topic:      topic,
		Partitions: []kgo.FetchPartition{{Partition: 0, Records: recs}},
	}}}}
}

func errorFetch(topic string, err error) kgo.Fetches {
	return kgo.Fetches{{Topics: []kgo.FetchTopic{{
		Topic:      topic,
		Partitions: []kgo.FetchPartition{{Partition: 0, Err: err}},
	}}}}
}

type fakeProcessor struct {
	mu       sync.Mutex
	seen     []string
	requests []string
	fail     map[string]error
	onCall   func()
}

func (p *fakeProcessor) Process(ctx context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seen = append(p.seen, id)
	p.requests = append(p.requests, obsctx.RequestIDFromContext(ctx))
	if p.onCall != nil {
		p.onCall()
	}
	return p.fail[id]
}

type fakeRequester struct {
	resp kmsg.Response
	err  error
	got  *kmsg.CreateTopicsRequest
}

func (f *fakeRequester) Request(_ context.Context, req kmsg.Request) (kmsg.Response, error) {
	ct, ok := req.(*kmsg.CreateTopicsRequest)
	if !ok {
		return nil, errors.New("unexpected request")
	}
	f.got = ct
	return f.resp, f.err
}
