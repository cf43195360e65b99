package automation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/neuroshield/neuroshield/observability"
)

var (
	// ErrUnknownKind tags submissions whose kind is outside the closed enumeration.
	ErrUnknownKind = errors.New("unknown action kind")
	// ErrNotFound tags lookups for an action id the executor has never seen
	// or has already evicted from history.
	ErrNotFound = errors.New("action not found")
)

// EventSink receives lifecycle notifications from the executor. The coupling
// is one-way: the executor never waits on delivery.
type EventSink interface {
	EmitActionExecuted(device, action string, result map[string]any)
	EmitSystemAlert(message, alertType, device string)
}

// Archive persists action records for the dashboard's historical views.
// Failures are logged and counted, never surfaced to submitters.
type Archive interface {
	SaveAction(ctx context.Context, a *Action) error
	UpdateAction(ctx context.Context, a *Action) error
}

// Config holds executor tuning knobs.
type Config struct {
	// MaxConcurrency is the ceiling on simultaneously in-progress actions.
	MaxConcurrency int
	// MaxHistory bounds the completed-action buffer (oldest evicted first).
	MaxHistory int
	// EffectTimeout is the hard deadline for a single effect. A timed-out
	// effect fails the action and frees its concurrency slot.
	EffectTimeout time.Duration
	// LatencyUnit scales the simulated effect durations. Tests shrink it.
	LatencyUnit time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 3,
		MaxHistory:     100,
		EffectTimeout:  60 * time.Second,
		LatencyUnit:    time.Second,
	}
}

// Executor accepts action submissions, enforces the concurrency ceiling and
// drives each action's state machine to a terminal state.
type Executor struct {
	cfg       Config
	queue     *pendingQueue
	inventory *DeviceInventory
	fx        *effects
	sink      EventSink
	archive   Archive

	mu       sync.RWMutex
	queued   map[string]*Action // in pendingQueue
	awaiting map[string]*Action // autoExecute=false, held for approval
	running  map[string]*Action // in progress
	history  []*Action          // terminal, bounded

	inFlight atomic.Int32
	notify   chan struct{}
	stop     context.CancelFunc
	done     chan struct{}
}

// NewExecutor wires an executor with injected collaborators. sink and archive
// may be nil for isolated use.
func NewExecutor(cfg Config, sink EventSink, archive Archive) *Executor {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 3
	}
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = 100
	}
	if cfg.EffectTimeout <= 0 {
		cfg.EffectTimeout = 60 * time.Second
	}
	if cfg.LatencyUnit <= 0 {
		cfg.LatencyUnit = time.Second
	}
	inv := NewDeviceInventory()
	return &Executor{
		cfg:       cfg,
		queue:     newPendingQueue(),
		inventory: inv,
		fx:        &effects{inventory: inv, latencyUnit: cfg.LatencyUnit},
		sink:      sink,
		archive:   archive,
		queued:    make(map[string]*Action),
		awaiting:  make(map[string]*Action),
		running:   make(map[string]*Action),
		notify:    make(chan struct{}, 1),
	}
}

// Inventory exposes the simulated device fleet.
func (e *Executor) Inventory() *DeviceInventory { return e.inventory }

// Start launches the dispatch loop. It returns immediately.
func (e *Executor) Start(ctx context.Context) {
	ctx, e.stop = context.WithCancel(ctx)
	e.done = make(chan struct{})
	go e.dispatchLoop(ctx)
	log.Printf("automation executor started (concurrency=%d)", e.cfg.MaxConcurrency)
}

// Stop halts the dispatch loop. In-flight effects run to completion.
func (e *Executor) Stop() {
	if e.stop != nil {
		e.stop()
		<-e.done
	}
	log.Printf("automation executor stopped")
}

// Submit enqueues a new action and returns its id without waiting for
// execution. Unknown kinds are rejected at the boundary.
func (e *Executor) Submit(kind ActionKind, device string, params map[string]any, priority int, autoExecute bool) (string, error) {
	if !KnownKind(kind) {
		return "", fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}

	a := NewAction(kind, device, params, priority, autoExecute)

	e.mu.Lock()
	if autoExecute {
		e.queued[a.ID] = a
	} else {
		e.awaiting[a.ID] = a
	}
	e.mu.Unlock()

	if autoExecute {
		e.queue.Push(a)
		e.wake()
	} else if e.sink != nil {
		e.sink.EmitSystemAlert(
			fmt.Sprintf("Action pending approval: %s", kind), "pending_action", device)
	}

	e.archiveSave(a)
	observability.ActionsSubmitted.WithLabelValues(string(kind)).Inc()
	log.Printf("action queued: %s (auto_execute=%t)", a.ID, autoExecute)
	return a.ID, nil
}

// Approve releases an action submitted with autoExecute=false into the
// dispatchable queue. Returns false if the id is not awaiting approval.
func (e *Executor) Approve(actionID string) bool {
	e.mu.Lock()
	a, ok := e.awaiting[actionID]
	if ok {
		delete(e.awaiting, actionID)
		a.AutoExecute = true
		e.queued[actionID] = a
	}
	e.mu.Unlock()
	if !ok {
		return false
	}
	e.queue.Push(a)
	e.wake()
	log.Printf("action approved: %s", actionID)
	return true
}

// Cancel transitions a Queued or InProgress action toward Cancelled. A
// mid-flight effect is not preempted; its natural terminal state supersedes
// the cancellation. Returns false once the action is terminal or unknown.
func (e *Executor) Cancel(actionID string) bool {
	var cancelled *Action

	e.mu.Lock()
	if a, ok := e.queued[actionID]; ok {
		delete(e.queued, actionID)
		e.queue.Remove(actionID)
		e.finishLocked(a, StatusCancelled, nil, "Action cancelled by user")
		cancelled = a
	} else if a, ok := e.awaiting[actionID]; ok {
		delete(e.awaiting, actionID)
		e.finishLocked(a, StatusCancelled, nil, "Action cancelled by user")
		cancelled = a
	} else if a, ok := e.running[actionID]; ok {
		// The effect is not preempted; its natural terminal state will
		// supersede these fields when it lands.
		now := time.Now()
		a.Status = StatusCancelled
		a.CompletedAt = &now
		a.ErrorMsg = "Action cancelled by user"
		cancelled = a
	} else {
		e.mu.Unlock()
		return false
	}
	e.mu.Unlock()

	e.archiveUpdate(cancelled)
	return true
}

// GetStatus returns a copy of the action, or ErrNotFound.
func (e *Executor) GetStatus(actionID string) (*Action, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, set := range []map[string]*Action{e.queued, e.awaiting, e.running} {
		if a, ok := set[actionID]; ok {
			return a.Clone(), nil
		}
	}
	for _, a := range e.history {
		if a.ID == actionID {
			return a.Clone(), nil
		}
	}
	return nil, ErrNotFound
}

// ListActions returns up to limit actions newest-first, drawn from the union
// of live and completed sets, optionally filtered by device.
func (e *Executor) ListActions(device string, limit int) []*Action {
	if limit <= 0 {
		limit = 50
	}
	e.mu.RLock()
	all := make([]*Action, 0, len(e.queued)+len(e.awaiting)+len(e.running)+len(e.history))
	for _, set := range []map[string]*Action{e.queued, e.awaiting, e.running} {
		for _, a := range set {
			all = append(all, a)
		}
	}
	all = append(all, e.history...)
	e.mu.RUnlock()

	// Newest first; seq breaks ties within one millisecond.
	for i := 1; i < len(all); i++ {
		for j := i; j > 0 && newer(all[j], all[j-1]); j-- {
			all[j], all[j-1] = all[j-1], all[j]
		}
	}
	// Filter before truncating so a device query sees its full recent set.
	out := make([]*Action, 0, limit)
	for _, a := range all {
		if device != "" && a.Device != device {
			continue
		}
		out = append(out, a.Clone())
		if len(out) == limit {
			break
		}
	}
	return out
}

func newer(a, b *Action) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.seq > b.seq
}

// Convenience submitters for the common remediation paths.

// AdjustBandwidth queues a bandwidth adjustment for the device.
func (e *Executor) AdjustBandwidth(device string, bandwidth float64, autoExecute bool) (string, error) {
	return e.Submit(KindBandwidthAdjustment, device, map[string]any{"bandwidth": bandwidth}, 1, autoExecute)
}

// MitigateCongestion queues a high-priority congestion mitigation.
func (e *Executor) MitigateCongestion(device, severity string, autoExecute bool) (string, error) {
	return e.Submit(KindCongestionMitigation, device,
		map[string]any{"type": "bandwidth_limit", "severity": severity}, 2, autoExecute)
}

// SendAlert queues an alert notification for the device.
func (e *Executor) SendAlert(device, message, alertType string) (string, error) {
	return e.Submit(KindAlertNotification, device, map[string]any{
		"message":    message,
		"alert_type": alertType,
		"recipients": []string{"admin@company.com"},
	}, 1, true)
}

func (e *Executor) wake() {
	select {
	case e.notify <- struct{}{}:
	default:
	}
}

func (e *Executor) dispatchLoop(ctx context.Context) {
	defer close(e.done)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.notify:
		case <-ticker.C:
		}
		e.dispatchReady(ctx)
		observability.ActionQueueDepth.Set(float64(e.queue.Len()))
	}
}

// dispatchReady starts pending actions while capacity remains. The capacity
// check precedes every pop, so the ceiling holds by construction.
func (e *Executor) dispatchReady(ctx context.Context) {
	for int(e.inFlight.Load()) < e.cfg.MaxConcurrency {
		a := e.queue.Pop()
		if a == nil {
			return
		}

		e.mu.Lock()
		if _, ok := e.queued[a.ID]; !ok {
			// Cancelled between pop and lock; already moved to history.
			e.mu.Unlock()
			continue
		}
		delete(e.queued, a.ID)
		now := time.Now()
		a.Status = StatusInProgress
		a.StartedAt = &now
		e.running[a.ID] = a
		e.mu.Unlock()

		e.inFlight.Add(1)
		observability.ActionsInFlight.Set(float64(e.inFlight.Load()))
		go e.executeAction(ctx, a)
	}
}

func (e *Executor) executeAction(ctx context.Context, a *Action) {
	defer func() {
		e.inFlight.Add(-1)
		observability.ActionsInFlight.Set(float64(e.inFlight.Load()))
		e.wake()
	}()

	if e.sink != nil {
		e.sink.EmitActionExecuted(a.Device, string(a.Kind), map[string]any{
			"status":     "started",
			"parameters": a.Parameters,
		})
	}
	e.archiveUpdate(a)

	effCtx, cancel := context.WithTimeout(ctx, e.cfg.EffectTimeout)
	start := time.Now()
	result, err := e.fx.run(effCtx, a)
	cancel()
	observability.ActionDuration.WithLabelValues(string(a.Kind)).Observe(time.Since(start).Seconds())

	e.mu.Lock()
	delete(e.running, a.ID)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			observability.ActionTimeouts.WithLabelValues(string(a.Kind)).Inc()
			err = fmt.Errorf("effect timed out after %s", e.cfg.EffectTimeout)
		}
		e.finishLocked(a, StatusFailed, nil, err.Error())
	} else {
		e.finishLocked(a, StatusCompleted, result, "")
	}
	e.mu.Unlock()
	e.archiveUpdate(a)

	if err != nil {
		if e.sink != nil {
			e.sink.EmitSystemAlert(fmt.Sprintf("Action failed: %s", err), "error", a.Device)
		}
		log.Printf("action failed: %s - %v", a.ID, err)
		return
	}
	if e.sink != nil {
		e.sink.EmitActionExecuted(a.Device, string(a.Kind), map[string]any{
			"status": "completed",
			"result": result,
		})
	}
	log.Printf("action completed: %s", a.ID)
}

// finishLocked records a terminal transition and moves the action into the
// bounded history. Caller holds e.mu.
func (e *Executor) finishLocked(a *Action, status ActionStatus, result map[string]any, errMsg string) {
	now := time.Now()
	a.Status = status
	a.CompletedAt = &now
	a.Result = result
	a.ErrorMsg = errMsg

	e.history = append(e.history, a)
	if len(e.history) > e.cfg.MaxHistory {
		e.history = e.history[1:]
	}
	observability.ActionsCompleted.WithLabelValues(string(a.Kind), string(status)).Inc()
}

// snapshot clones an action under the read lock; Cancel may mutate a running
// action's status concurrently.
func (e *Executor) snapshot(a *Action) *Action {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return a.Clone()
}

func (e *Executor) archiveSave(a *Action) {
	if e.archive == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := e.archive.SaveAction(ctx, e.snapshot(a)); err != nil {
		observability.ArchiveErrors.Inc()
		log.Printf("action archive save failed for %s: %v", a.ID, err)
	}
}

func (e *Executor) archiveUpdate(a *Action) {
	if e.archive == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := e.archive.UpdateAction(ctx, e.snapshot(a)); err != nil {
		observability.ArchiveErrors.Inc()
		log.Printf("action archive update failed for %s: %v", a.ID, err)
	}
}
