// Package bridge drains an external durable, score-ordered action queue into
// local executor submissions. Multiple processes may enqueue; exactly one
// bridge must poll a given queue key, since concurrent pollers would race on
// dispatch and need a claim protocol this package does not provide.
package bridge

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/neuroshield/neuroshield/automation"
	"github.com/neuroshield/neuroshield/observability"
)

const defaultPollInterval = 5 * time.Second

// Submitter is the local action submission seam; the automation executor
// satisfies it.
type Submitter interface {
	Submit(kind automation.ActionKind, device string, params map[string]any, priority int, autoExecute bool) (string, error)
}

// kindAliases maps the policy evaluator's action vocabulary onto executor
// kinds. Canonical kind names pass through unchanged.
var kindAliases = map[string]automation.ActionKind{
	"bandwidth_optimization": automation.KindBandwidthAdjustment,
	"latency_optimization":   automation.KindQoSUpdate,
	"anomaly_investigation":  automation.KindMonitoringEnable,
}

// Bridge polls the durable queue and reconciles it into local submissions.
// Semantics are at-least-once: a record is removed only after successful
// submission, so a remove failure can produce a duplicate submission.
type Bridge struct {
	queue     Queue
	submitter Submitter
	interval  time.Duration

	stop context.CancelFunc
	done chan struct{}
}

// New wires a bridge. interval <= 0 selects the 5s default.
func New(queue Queue, submitter Submitter, interval time.Duration) *Bridge {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	return &Bridge{queue: queue, submitter: submitter, interval: interval}
}

// Start launches the poll loop.
func (b *Bridge) Start(ctx context.Context) {
	ctx, b.stop = context.WithCancel(ctx)
	b.done = make(chan struct{})
	go b.pollLoop(ctx)
	log.Printf("durable queue bridge started (interval=%s)", b.interval)
}

// Stop halts the poll loop.
func (b *Bridge) Stop() {
	if b.stop != nil {
		b.stop()
		<-b.done
	}
	log.Printf("durable queue bridge stopped")
}

func (b *Bridge) pollLoop(ctx context.Context) {
	defer close(b.done)
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := b.Poll(ctx); err != nil {
				log.Printf("bridge poll failed: %v", err)
			}
		}
	}
}

// Enqueue writes a record into the durable queue, assigning its id and
// timestamp when absent. Usable by in-process producers; external producers
// write the same shape directly.
func (b *Bridge) Enqueue(ctx context.Context, rec Record) error {
	now := time.Now()
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp == "" {
		rec.Timestamp = now.Format(time.RFC3339Nano)
	}
	member, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if err := b.queue.Add(ctx, string(member), Score(rec.Priority, now)); err != nil {
		return err
	}
	log.Printf("durable action enqueued: %s for %s", rec.ActionType, rec.Device)
	return nil
}

// Poll reads the entire queue in score order and dispatches each record.
// Unparseable or unknown-kind records are removed (poison discard); records
// whose submission fails stay for the next poll.
func (b *Bridge) Poll(ctx context.Context) error {
	start := time.Now()
	defer func() {
		observability.BridgePollDuration.Observe(time.Since(start).Seconds())
	}()

	members, err := b.queue.List(ctx)
	if err != nil {
		return err
	}
	if len(members) == 0 {
		return nil
	}
	log.Printf("processing %d pending durable actions", len(members))

	for _, m := range members {
		b.dispatch(ctx, m.Member)
	}
	return nil
}

func (b *Bridge) dispatch(ctx context.Context, member string) {
	var rec Record
	if err := json.Unmarshal([]byte(member), &rec); err != nil {
		log.Printf("discarding unparseable durable record: %v", err)
		b.remove(ctx, member, "poison")
		return
	}

	kind := automation.ActionKind(rec.ActionType)
	if alias, ok := kindAliases[rec.ActionType]; ok {
		kind = alias
	}
	if !automation.KnownKind(kind) {
		log.Printf("discarding durable record with unknown kind %q", rec.ActionType)
		b.remove(ctx, member, "poison")
		return
	}

	if _, err := b.submitter.Submit(kind, rec.Device, rec.Parameters, rec.Priority, true); err != nil {
		// Left in place for the next poll (at-least-once).
		observability.BridgeDispatches.WithLabelValues("deferred").Inc()
		log.Printf("durable record submission failed, deferring: %v", err)
		return
	}

	b.remove(ctx, member, "submitted")
	log.Printf("durable action dispatched: %s for %s", kind, rec.Device)
}

func (b *Bridge) remove(ctx context.Context, member, outcome string) {
	if err := b.queue.Remove(ctx, member); err != nil {
		// The record will be seen again next poll; duplicates are a known,
		// bounded risk of the at-least-once contract.
		log.Printf("failed to remove durable record (%s): %v", outcome, err)
		return
	}
	observability.BridgeDispatches.WithLabelValues(outcome).Inc()
}

// SnapshotEntry is one pending record with its sort score.
type SnapshotEntry struct {
	Record Record  `json:"record"`
	Score  float64 `json:"priority_score"`
}

// Snapshot returns the current queue contents for the status surface.
// Unparseable members are skipped.
func (b *Bridge) Snapshot(ctx context.Context) ([]SnapshotEntry, error) {
	members, err := b.queue.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]SnapshotEntry, 0, len(members))
	for _, m := range members {
		var rec Record
		if err := json.Unmarshal([]byte(m.Member), &rec); err != nil {
			continue
		}
		out = append(out, SnapshotEntry{Record: rec, Score: m.Score})
	}
	return out, nil
}
