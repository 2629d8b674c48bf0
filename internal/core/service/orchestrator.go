package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/spaolacci/murmur3"
	"golang.org/x/sync/singleflight"

	"github.com/yndnr/meshsync/internal/core/domain"
	"github.com/yndnr/meshsync/internal/storage/snapshot"
	"github.com/yndnr/meshsync/internal/telemetry/journal"
	"github.com/yndnr/meshsync/internal/telemetry/logger"
	"github.com/yndnr/meshsync/pkg/cmap"
)

// DefaultOperationTimeout bounds a single push, pull or retry.
const DefaultOperationTimeout = 30 * time.Second

// lockStripes is the number of per-workspace mutexes.
const lockStripes = 32

// OutcomeKind classifies a completed sync operation.
type OutcomeKind string

const (
	// OutcomeSuccess means the snapshot was pushed or hydrated.
	OutcomeSuccess OutcomeKind = "success"
	// OutcomeSkipped means a guard was unmet or the backend was unreachable.
	OutcomeSkipped OutcomeKind = "skipped"
	// OutcomeEmpty means pull found no snapshot for the workspace.
	OutcomeEmpty OutcomeKind = "empty"
	// OutcomeUnchanged means Sync found nothing new to send or apply.
	OutcomeUnchanged OutcomeKind = "unchanged"
)

// SkipReason says why an operation was skipped.
type SkipReason string

const (
	SkipPremium     SkipReason = "premium_inactive"
	SkipOnboarding  SkipReason = "onboarding_incomplete"
	SkipOffline     SkipReason = "offline"
	SkipUnreachable SkipReason = "endpoint_unreachable"
	SkipNoPending   SkipReason = "nothing_pending"
	SkipCancelled   SkipReason = "cancelled"
)

// Outcome is the non-error result of a sync operation.
type Outcome struct {
	Kind        OutcomeKind            `json:"kind"`
	Reason      SkipReason             `json:"reason,omitempty"`
	WorkspaceID string                 `json:"workspace_id,omitempty"`
	Record      *domain.SnapshotRecord `json:"record,omitempty"`
}

func skipped(reason SkipReason) Outcome {
	return Outcome{Kind: OutcomeSkipped, Reason: reason}
}

// SyncResult is the outcome of each step of Sync.
type SyncResult struct {
	Retry Outcome `json:"retry"`
	Push  Outcome `json:"push"`
	Pull  Outcome `json:"pull"`
}

// OrchestratorDeps are the collaborators of an Orchestrator. Journal and
// Metrics may be nil.
type OrchestratorDeps struct {
	Keys       *KeyManager
	Workspaces *WorkspaceManager
	Remote     SnapshotBackend
	Network    Connectivity
	Prefs      PrefStore
	Codec      SnapshotCodec
	State      StateAggregator
	Pending    PendingStore
	Journal    Journal
	Metrics    Metrics
	Logger     *slog.Logger
}

// syncMemo remembers what the last successful push or pull left behind.
type syncMemo struct {
	digest   uint64
	recordID string
}

// Orchestrator drives push and pull. It owns the process-wide sync status.
//
// Operations on the same workspace are serialized; concurrent duplicate
// calls of the same operation share one execution.
type Orchestrator struct {
	d       OrchestratorDeps
	status  *domain.StatusTracker
	timeout time.Duration
	logger  *slog.Logger

	locks [lockStripes]sync.Mutex
	group singleflight.Group
	memo  *cmap.Map[syncMemo]

	flightsMu sync.Mutex
	flights   map[string]*flight
	flightSeq uint64
}

// flight is one shared execution of an operation. Its context keeps the
// values of the caller that started it but is cancelled only once every
// caller waiting on it has given up.
type flight struct {
	id      uint64
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

// NewOrchestrator creates an Orchestrator. A zero timeout selects
// DefaultOperationTimeout.
func NewOrchestrator(d OrchestratorDeps, timeout time.Duration) *Orchestrator {
	if timeout <= 0 {
		timeout = DefaultOperationTimeout
	}
	log := d.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{
		d:       d,
		status:  domain.NewStatusTracker(),
		timeout: timeout,
		logger:  log,
		memo:    cmap.New[syncMemo](),
		flights: make(map[string]*flight),
	}
}

// Status returns the current sync status.
func (o *Orchestrator) Status() domain.SyncStatus {
	return o.status.Get()
}

// SubscribeStatus registers fn for status changes.
func (o *Orchestrator) SubscribeStatus(fn func(domain.StatusChange)) (unsubscribe func()) {
	return o.status.Subscribe(fn)
}

// Push aggregates local state, encrypts it and appends it to the workspace's
// snapshots. The blob is cached locally before sending so a failed push can
// be retried without re-aggregating.
func (o *Orchestrator) Push(ctx context.Context) (Outcome, error) {
	return o.run(ctx, "push", "push", func(ctx context.Context, op *operation) (Outcome, error) {
		return o.push(ctx, op, false)
	})
}

// Pull fetches the newest snapshot of the workspace and hydrates local state
// from it. An empty workspace is OutcomeEmpty, not an error.
func (o *Orchestrator) Pull(ctx context.Context) (Outcome, error) {
	return o.run(ctx, "pull", "pull", func(ctx context.Context, op *operation) (Outcome, error) {
		return o.pull(ctx, op, false)
	})
}

// RetryCachedPush re-sends the locally cached blob, if any.
func (o *Orchestrator) RetryCachedPush(ctx context.Context) (Outcome, error) {
	return o.run(ctx, "retry", "retry", o.retry)
}

// Sync is one daemon tick: retry a cached push, push local state if it
// changed since the last sync, then pull if the newest snapshot is one this
// device has not seen. A step skipped by a guard ends the tick.
func (o *Orchestrator) Sync(ctx context.Context) (SyncResult, error) {
	var res SyncResult
	var err error

	res.Retry, err = o.RetryCachedPush(ctx)
	if err != nil || guardSkip(res.Retry) {
		return res, err
	}
	res.Push, err = o.run(ctx, "push", "sync-push", func(ctx context.Context, op *operation) (Outcome, error) {
		return o.push(ctx, op, true)
	})
	if err != nil || guardSkip(res.Push) {
		return res, err
	}
	res.Pull, err = o.run(ctx, "pull", "sync-pull", func(ctx context.Context, op *operation) (Outcome, error) {
		return o.pull(ctx, op, true)
	})
	return res, err
}

func guardSkip(out Outcome) bool {
	return out.Kind == OutcomeSkipped && out.Reason != SkipNoPending
}

// operation carries per-call context through one run.
type operation struct {
	name        string
	id          string
	workspaceID string
	logger      *slog.Logger
}

// run applies the guards, serializes on the workspace and maps the result of
// fn onto the status machine. Concurrent calls with the same key on the same
// workspace share one execution; name labels logs and metrics.
func (o *Orchestrator) run(ctx context.Context, name, key string, fn func(context.Context, *operation) (Outcome, error)) (Outcome, error) {
	start := time.Now()

	if reason, err := o.checkGuards(ctx); err != nil {
		return Outcome{}, err
	} else if reason != "" {
		o.logger.Info("sync skipped", "op", name, "reason", string(reason))
		o.note(fmt.Sprintf("%s skipped: %s", name, reason), journal.StatusVerbose, nil)
		o.observe(name, string(OutcomeSkipped), start)
		return skipped(reason), nil
	}

	wsID, ok, err := o.d.Workspaces.CurrentWorkspaceID(ctx)
	if err != nil {
		return Outcome{}, err
	}
	if !ok {
		o.note(name+" failed: no workspace configured", journal.StatusWarning, nil)
		o.observe(name, "error", start)
		return Outcome{}, domain.ErrNoWorkspaceConfigured
	}

	key = key + "/" + wsID
	f := o.join(ctx, key)
	ch := o.group.DoChan(fmt.Sprintf("%s#%d", key, f.id), func() (any, error) {
		mu := &o.locks[cmap.ShardIndex(wsID, lockStripes)]
		mu.Lock()
		defer mu.Unlock()

		if f.ctx.Err() != nil {
			return Outcome{Kind: OutcomeSkipped, Reason: SkipCancelled, WorkspaceID: wsID}, context.Canceled
		}
		op := &operation{name: name, id: ulid.Make().String(), workspaceID: wsID}
		op.logger = o.logger.With("op", name, "operation_id", op.id, "workspace_id", wsID)
		return o.execute(f.ctx, op, fn)
	})

	var res singleflight.Result
	select {
	case res = <-ch:
		o.leave(key, f)
	case <-ctx.Done():
		if o.leave(key, f) {
			// Last waiter: the execution is cancelled now, let it unwind so
			// the status is settled before returning.
			res = <-ch
			if !errors.Is(res.Err, context.Canceled) {
				break
			}
		} else {
			res.Val = Outcome{Kind: OutcomeSkipped, Reason: SkipCancelled, WorkspaceID: wsID}
		}
		res.Err = callerErr(ctx)
		if errors.Is(res.Err, domain.ErrOperationTimeout) {
			res.Val = Outcome{}
		}
	}

	out, _ := res.Val.(Outcome)
	err = res.Err
	if err != nil {
		o.observe(name, "error", start)
		return out, err
	}
	o.observe(name, string(out.Kind), start)
	return out, nil
}

func (o *Orchestrator) execute(ctx context.Context, op *operation, fn func(context.Context, *operation) (Outcome, error)) (Outcome, error) {
	opCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()
	opCtx = logger.WithWorkspaceID(logger.WithOperationID(opCtx, op.id), op.workspaceID)

	prev := o.status.Set(domain.StatusSyncing)
	op.logger.Debug("sync started")

	out, err := fn(opCtx, op)
	out.WorkspaceID = op.workspaceID
	err = classify(ctx, opCtx, err)

	switch {
	case err == nil:
		o.status.Set(domain.StatusIdle)
		return out, nil

	case domain.IsSilentSkip(err):
		o.status.Set(prev)
		op.logger.Info("sync skipped silently", "error", err)
		o.note(op.name+" skipped: backend unreachable", journal.StatusVerbose, nil)
		return Outcome{Kind: OutcomeSkipped, Reason: SkipUnreachable, WorkspaceID: op.workspaceID}, nil

	case errors.Is(err, context.Canceled):
		o.status.Set(prev)
		op.logger.Info("sync cancelled")
		return Outcome{Kind: OutcomeSkipped, Reason: SkipCancelled, WorkspaceID: op.workspaceID}, err

	default:
		o.status.Set(domain.StatusError)
		op.logger.Error("sync failed", "error", err)
		o.note(op.name+" failed", journal.StatusError, err.Error())
		return Outcome{}, err
	}
}

// join registers the caller on the live flight for key, starting a new one
// when there is none.
func (o *Orchestrator) join(ctx context.Context, key string) *flight {
	o.flightsMu.Lock()
	defer o.flightsMu.Unlock()
	f, ok := o.flights[key]
	if !ok {
		o.flightSeq++
		fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		f = &flight{id: o.flightSeq, ctx: fctx, cancel: cancel}
		o.flights[key] = f
	}
	f.waiters++
	return f
}

// leave drops a waiter from f and reports whether it was the last one, in
// which case f is cancelled and forgotten.
func (o *Orchestrator) leave(key string, f *flight) bool {
	o.flightsMu.Lock()
	defer o.flightsMu.Unlock()
	f.waiters--
	if f.waiters > 0 {
		return false
	}
	f.cancel()
	if o.flights[key] == f {
		delete(o.flights, key)
	}
	return true
}

// callerErr maps a caller's own context expiry onto the taxonomy.
func callerErr(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return domain.ErrOperationTimeout.WithCause(ctx.Err())
	}
	return context.Canceled
}

// classify maps context expiry onto the domain taxonomy. A deadline hit by
// the operation's own timeout becomes ErrOperationTimeout; a caller
// cancellation passes through as context.Canceled.
func classify(parent, opCtx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, domain.ErrOperationTimeout) {
		return err
	}
	if parent.Err() != nil {
		if errors.Is(parent.Err(), context.DeadlineExceeded) {
			return domain.ErrOperationTimeout.WithCause(err)
		}
		return context.Canceled
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(opCtx.Err(), context.DeadlineExceeded) {
		return domain.ErrOperationTimeout.WithCause(err)
	}
	return err
}

// checkGuards evaluates premium, onboarding and connectivity in order and
// returns the first unmet one.
func (o *Orchestrator) checkGuards(ctx context.Context) (SkipReason, error) {
	premium, err := o.d.Prefs.Premium(ctx)
	if err != nil {
		return "", domain.ErrStorage.WithCause(err)
	}
	if !premium {
		return SkipPremium, nil
	}
	onboarded, err := o.d.Prefs.OnboardingComplete(ctx)
	if err != nil {
		return "", domain.ErrStorage.WithCause(err)
	}
	if !onboarded {
		return SkipOnboarding, nil
	}
	if !o.d.Network.CheckNetworkConnectivity(ctx) {
		return SkipOffline, nil
	}
	return "", nil
}

func (o *Orchestrator) push(ctx context.Context, op *operation, onlyIfChanged bool) (Outcome, error) {
	state, err := o.d.State.GetAllStoreStates()
	if err != nil {
		return Outcome{}, fmt.Errorf("aggregate state: %w", err)
	}
	digest, err := stateDigest(state)
	if err != nil {
		return Outcome{}, err
	}
	if onlyIfChanged {
		if m, ok := o.memo.Get(op.workspaceID); ok && m.digest == digest {
			return Outcome{Kind: OutcomeUnchanged}, nil
		}
	}

	identity, err := o.d.Keys.ResolveIdentity(ctx, op.workspaceID)
	if err != nil {
		return Outcome{}, err
	}
	blob, err := o.d.Codec.Encode(state, identity.SyncKey())
	if err != nil {
		return Outcome{}, err
	}

	if err := o.d.Pending.Save(snapshot.Pending{
		WorkspaceID: op.workspaceID,
		DeviceID:    identity.Device(),
		Blob:        blob,
		CreatedAt:   time.Now().UTC(),
	}); err != nil {
		return Outcome{}, domain.ErrStorage.WithCause(err)
	}
	o.setPending(true)

	rec, err := o.send(ctx, op, identity.Device(), blob)
	if err != nil {
		return Outcome{}, err
	}
	o.memo.Set(op.workspaceID, syncMemo{digest: digest, recordID: recordID(rec)})
	return Outcome{Kind: OutcomeSuccess, Record: rec}, nil
}

func (o *Orchestrator) retry(ctx context.Context, op *operation) (Outcome, error) {
	p, err := o.d.Pending.Load()
	if errors.Is(err, snapshot.ErrNoPending) {
		o.setPending(false)
		return skipped(SkipNoPending), nil
	}
	if err != nil {
		// An unreadable cache cannot be retried; drop it so the next push
		// starts clean.
		op.logger.Warn("discarding unreadable pending snapshot", "error", err)
		_ = o.d.Pending.Clear()
		o.setPending(false)
		return skipped(SkipNoPending), nil
	}
	if p.WorkspaceID != op.workspaceID {
		op.logger.Info("discarding pending snapshot of another workspace", "pending_workspace", p.WorkspaceID)
		_ = o.d.Pending.Clear()
		o.setPending(false)
		return skipped(SkipNoPending), nil
	}

	rec, err := o.send(ctx, op, p.DeviceID, p.Blob)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Kind: OutcomeSuccess, Record: rec}, nil
}

// send pushes blob and clears the pending cache on success. On failure the
// cache is kept for RetryCachedPush.
func (o *Orchestrator) send(ctx context.Context, op *operation, deviceID, blob string) (*domain.SnapshotRecord, error) {
	rec, err := o.d.Remote.PushSnapshotRecord(ctx, op.workspaceID, deviceID, blob)
	if err != nil {
		return nil, err
	}
	if err := o.d.Pending.Clear(); err != nil {
		op.logger.Warn("failed to clear pending snapshot", "error", err)
	} else {
		o.setPending(false)
	}
	if o.d.Metrics != nil {
		o.d.Metrics.ObserveSnapshot("push", len(blob))
	}
	op.logger.Info("snapshot pushed", "record_id", recordID(rec), "bytes", len(blob))
	o.note("Snapshot pushed", journal.StatusSuccess, nil)
	return rec, nil
}

func (o *Orchestrator) pull(ctx context.Context, op *operation, onlyIfNew bool) (Outcome, error) {
	rec, err := o.d.Remote.PullLatestSnapshotRecord(ctx, op.workspaceID)
	if err != nil {
		return Outcome{}, err
	}
	if rec == nil {
		op.logger.Info("workspace has no snapshot yet")
		return Outcome{Kind: OutcomeEmpty}, nil
	}
	if onlyIfNew {
		if m, ok := o.memo.Get(op.workspaceID); ok && m.recordID != "" && m.recordID == rec.ID {
			return Outcome{Kind: OutcomeUnchanged, Record: rec}, nil
		}
	}

	identity, err := o.d.Keys.ResolveIdentity(ctx, op.workspaceID)
	if err != nil {
		return Outcome{}, err
	}
	state, err := o.d.Codec.Decode(rec.Blob, identity.SyncKey())
	if err != nil {
		return Outcome{}, err
	}
	if o.d.Metrics != nil {
		o.d.Metrics.ObserveSnapshot("pull", len(rec.Blob))
	}

	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}
	o.status.Set(domain.StatusSyncing)
	if err := o.d.State.HydrateAll(state); err != nil {
		return Outcome{}, fmt.Errorf("hydrate state: %w", err)
	}

	digest, err := stateDigest(state)
	if err == nil {
		o.memo.Set(op.workspaceID, syncMemo{digest: digest, recordID: rec.ID})
	}
	op.logger.Info("snapshot applied", "record_id", rec.ID, "from_device", rec.DeviceID)
	o.note("Snapshot pulled", journal.StatusSuccess, map[string]any{"from_device": rec.DeviceID})
	return Outcome{Kind: OutcomeSuccess, Record: rec}, nil
}

func (o *Orchestrator) note(message string, status journal.Status, details any) {
	if o.d.Journal != nil {
		o.d.Journal.Add(message, status, details)
	}
}

func (o *Orchestrator) observe(op, outcome string, start time.Time) {
	if o.d.Metrics != nil {
		o.d.Metrics.ObserveSync(op, outcome, time.Since(start))
	}
}

func (o *Orchestrator) setPending(v bool) {
	if o.d.Metrics != nil {
		o.d.Metrics.SetPending(v)
	}
}

// stateDigest fingerprints the JSON form of state for change detection.
func stateDigest(state any) (uint64, error) {
	raw, err := json.Marshal(state)
	if err != nil {
		return 0, fmt.Errorf("aggregate state: %w", err)
	}
	return murmur3.Sum64(raw), nil
}

func recordID(rec *domain.SnapshotRecord) string {
	if rec == nil {
		return ""
	}
	return rec.ID
}
