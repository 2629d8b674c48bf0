package service

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/yndnr/meshsync/internal/core/domain"
	"github.com/yndnr/meshsync/internal/storage/snapshot"
	"github.com/yndnr/meshsync/internal/telemetry/journal"
)

type mockMetrics struct {
	mu        sync.Mutex
	syncs     map[string]int
	snapshots map[string]int
	pending   bool
}

func newMockMetrics() *mockMetrics {
	return &mockMetrics{syncs: map[string]int{}, snapshots: map[string]int{}}
}

func (m *mockMetrics) ObserveSync(op, outcome string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.syncs[op+"/"+outcome]++
}

func (m *mockMetrics) ObserveSnapshot(direction string, size int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[direction]++
}

func (m *mockMetrics) SetPending(pending bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = pending
}

func hasEntry(entries []journal.Entry, message string, status journal.Status) bool {
	for _, e := range entries {
		if e.Message == message && e.Status == status {
			return true
		}
	}
	return false
}

func TestOrchestrator_Guards(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(h *harness)
		reason SkipReason
		probes int
	}{
		{
			name:   "premium inactive",
			setup:  func(h *harness) { _ = h.prefs.SetPremium(context.Background(), false) },
			reason: SkipPremium,
		},
		{
			name:   "onboarding incomplete",
			setup:  func(h *harness) { _ = h.prefs.SetOnboardingComplete(context.Background(), false) },
			reason: SkipOnboarding,
		},
		{
			name:   "offline",
			setup:  func(h *harness) { h.net.online = false },
			reason: SkipOffline,
			probes: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.pair(t, testKeyA)
			tt.setup(h)

			var changes []domain.StatusChange
			h.orch.SubscribeStatus(func(c domain.StatusChange) { changes = append(changes, c) })

			ops := map[string]func(context.Context) (Outcome, error){
				"push":  h.orch.Push,
				"pull":  h.orch.Pull,
				"retry": h.orch.RetryCachedPush,
			}
			for name, op := range ops {
				out, err := op(context.Background())
				if err != nil {
					t.Fatalf("%s error = %v", name, err)
				}
				if out.Kind != OutcomeSkipped || out.Reason != tt.reason {
					t.Errorf("%s outcome = %+v, want skipped/%s", name, out, tt.reason)
				}
			}

			if n := h.backend.calls(); n != 0 {
				t.Errorf("backend calls = %d, want 0", n)
			}
			if len(changes) != 0 || h.orch.Status() != domain.StatusIdle {
				t.Errorf("status moved: %v, now %s", changes, h.orch.Status())
			}
			if h.net.probes != tt.probes {
				t.Errorf("connectivity probes = %d, want %d", h.net.probes, tt.probes)
			}
		})
	}
}

func TestOrchestrator_NoWorkspace(t *testing.T) {
	h := newHarness(t)

	_, err := h.orch.Push(context.Background())
	if !errors.Is(err, domain.ErrNoWorkspaceConfigured) {
		t.Fatalf("Push() error = %v, want ErrNoWorkspaceConfigured", err)
	}
	_, err = h.orch.Pull(context.Background())
	if !errors.Is(err, domain.ErrNoWorkspaceConfigured) {
		t.Fatalf("Pull() error = %v, want ErrNoWorkspaceConfigured", err)
	}
	if h.backend.calls() != 0 {
		t.Error("backend was contacted without a workspace")
	}
}

func TestOrchestrator_PushPull_AcrossDevices(t *testing.T) {
	a := newHarness(t)
	wsID := a.pair(t, testKeyA)
	b := newHarnessWithBackend(t, a.backend)
	if err := b.wsFile.Write(wsID); err != nil {
		t.Fatal(err)
	}
	b.state.state = map[string]any{"notes": []any{"stale"}}

	var changes []domain.StatusChange
	a.orch.SubscribeStatus(func(c domain.StatusChange) { changes = append(changes, c) })

	out, err := a.orch.Push(context.Background())
	if err != nil {
		t.Fatalf("Push() error = %v", err)
	}
	if out.Kind != OutcomeSuccess || out.Record == nil || out.WorkspaceID != wsID {
		t.Fatalf("Push() outcome = %+v", out)
	}
	if len(changes) != 2 || changes[0].To != domain.StatusSyncing || changes[1].To != domain.StatusIdle {
		t.Errorf("status changes = %+v, want syncing then idle", changes)
	}
	if _, err := a.pending.Load(); !errors.Is(err, snapshot.ErrNoPending) {
		t.Errorf("pending cache after successful push: %v", err)
	}
	if !hasEntry(a.journal.Recent(0), "Snapshot pushed", journal.StatusSuccess) {
		t.Error("push not journaled")
	}

	out, err = b.orch.Pull(context.Background())
	if err != nil {
		t.Fatalf("Pull() error = %v", err)
	}
	if out.Kind != OutcomeSuccess {
		t.Fatalf("Pull() outcome = %+v", out)
	}
	want := map[string]any{"notes": []any{"first"}}
	if !reflect.DeepEqual(b.state.state, want) {
		t.Errorf("hydrated state = %#v, want %#v", b.state.state, want)
	}
	if b.orch.Status() != domain.StatusIdle {
		t.Errorf("status = %s, want idle", b.orch.Status())
	}
}

func TestOrchestrator_PushFailureKeepsPending(t *testing.T) {
	h := newHarness(t)
	m := newMockMetrics()
	h.deps.Metrics = m
	h.orch = NewOrchestrator(h.deps, 5*time.Second)
	wsID := h.pair(t, testKeyA)

	h.backend.pushErr = domain.ErrRemote.WithDetails("500")
	_, err := h.orch.Push(context.Background())
	if !errors.Is(err, domain.ErrRemote) {
		t.Fatalf("Push() error = %v, want ErrRemote", err)
	}
	if h.orch.Status() != domain.StatusError {
		t.Errorf("status = %s, want error", h.orch.Status())
	}
	p, err := h.pending.Load()
	if err != nil {
		t.Fatalf("pending cache lost: %v", err)
	}
	if p.WorkspaceID != wsID || p.Blob == "" {
		t.Errorf("pending = %+v", p)
	}
	if !m.pending {
		t.Error("pending gauge not set")
	}
	if !hasEntry(h.journal.Recent(0), "push failed", journal.StatusError) {
		t.Error("failure not journaled")
	}

	h.backend.pushErr = nil
	out, err := h.orch.RetryCachedPush(context.Background())
	if err != nil {
		t.Fatalf("RetryCachedPush() error = %v", err)
	}
	if out.Kind != OutcomeSuccess {
		t.Errorf("retry outcome = %+v", out)
	}
	if h.orch.Status() != domain.StatusIdle {
		t.Errorf("status = %s, want idle", h.orch.Status())
	}
	if _, err := h.pending.Load(); !errors.Is(err, snapshot.ErrNoPending) {
		t.Errorf("pending after retry: %v", err)
	}
	if m.pending {
		t.Error("pending gauge not cleared")
	}
	if len(h.backend.snapshots) != 1 || h.backend.snapshots[0].Blob != p.Blob {
		t.Error("retry did not send the cached blob")
	}
	if m.syncs["push/error"] != 1 || m.syncs["retry/success"] != 1 {
		t.Errorf("sync metrics = %v", m.syncs)
	}
}

func TestOrchestrator_RetryNothingPending(t *testing.T) {
	h := newHarness(t)
	h.pair(t, testKeyA)

	out, err := h.orch.RetryCachedPush(context.Background())
	if err != nil || out.Kind != OutcomeSkipped || out.Reason != SkipNoPending {
		t.Errorf("RetryCachedPush() = %+v, %v", out, err)
	}
	if h.backend.pushes != 0 {
		t.Error("nothing should be pushed")
	}
}

func TestOrchestrator_RetryDropsOtherWorkspace(t *testing.T) {
	h := newHarness(t)
	h.pair(t, testKeyA)
	if err := h.pending.Save(snapshot.Pending{WorkspaceID: "elsewhere", DeviceID: "d", Blob: "b"}); err != nil {
		t.Fatal(err)
	}

	out, err := h.orch.RetryCachedPush(context.Background())
	if err != nil || out.Reason != SkipNoPending {
		t.Errorf("RetryCachedPush() = %+v, %v", out, err)
	}
	if _, err := h.pending.Load(); !errors.Is(err, snapshot.ErrNoPending) {
		t.Errorf("foreign pending entry kept: %v", err)
	}
	if h.backend.pushes != 0 {
		t.Error("foreign blob was pushed")
	}
}

func TestOrchestrator_UnreachableIsSilent(t *testing.T) {
	h := newHarness(t)
	h.pair(t, testKeyA)
	h.backend.pushErr = domain.ErrNoEndpointReachable

	out, err := h.orch.Push(context.Background())
	if err != nil {
		t.Fatalf("Push() error = %v, want nil", err)
	}
	if out.Kind != OutcomeSkipped || out.Reason != SkipUnreachable {
		t.Errorf("outcome = %+v", out)
	}
	if h.orch.Status() != domain.StatusIdle {
		t.Errorf("status = %s, want idle", h.orch.Status())
	}
	if _, err := h.pending.Load(); err != nil {
		t.Errorf("pending should survive an unreachable backend: %v", err)
	}
}

func TestOrchestrator_Timeout(t *testing.T) {
	h := newHarness(t)
	h.orch = NewOrchestrator(h.deps, 50*time.Millisecond)
	h.pair(t, testKeyA)
	h.backend.pushDelay = 2 * time.Second

	_, err := h.orch.Push(context.Background())
	if !errors.Is(err, domain.ErrOperationTimeout) {
		t.Fatalf("Push() error = %v, want ErrOperationTimeout", err)
	}
	if !domain.IsRetryable(err) {
		t.Error("timeout should be retryable")
	}
	if h.orch.Status() != domain.StatusError {
		t.Errorf("status = %s, want error", h.orch.Status())
	}
}

func TestOrchestrator_Cancelled(t *testing.T) {
	h := newHarness(t)
	h.pair(t, testKeyA)
	h.backend.pushDelay = 2 * time.Second

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(30*time.Millisecond, cancel)

	out, err := h.orch.Push(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Push() error = %v, want context.Canceled", err)
	}
	if out.Reason != SkipCancelled {
		t.Errorf("outcome = %+v", out)
	}
	if h.orch.Status() != domain.StatusIdle {
		t.Errorf("status = %s, want idle", h.orch.Status())
	}
}

func TestOrchestrator_PullEmpty(t *testing.T) {
	h := newHarness(t)
	h.pair(t, testKeyA)

	out, err := h.orch.Pull(context.Background())
	if err != nil {
		t.Fatalf("Pull() error = %v", err)
	}
	if out.Kind != OutcomeEmpty || out.Record != nil {
		t.Errorf("outcome = %+v, want empty", out)
	}
	if h.state.hydrations() != 0 {
		t.Error("empty pull must not hydrate")
	}
	if h.orch.Status() != domain.StatusIdle {
		t.Errorf("status = %s", h.orch.Status())
	}
}

func TestOrchestrator_PullCorrupt(t *testing.T) {
	h := newHarness(t)
	wsID := h.pair(t, testKeyA)
	h.backend.snapshots = append(h.backend.snapshots, domain.SnapshotRecord{
		ID: "bad", WorkspaceID: wsID, DeviceID: "other", Blob: "not a snapshot",
	})

	_, err := h.orch.Pull(context.Background())
	if !errors.Is(err, domain.ErrCorruptSnapshot) {
		t.Fatalf("Pull() error = %v, want ErrCorruptSnapshot", err)
	}
	if h.state.hydrations() != 0 {
		t.Error("corrupt snapshot must not hydrate")
	}
	if h.orch.Status() != domain.StatusError {
		t.Errorf("status = %s, want error", h.orch.Status())
	}
}

func TestOrchestrator_PullWrongKey(t *testing.T) {
	a := newHarness(t)
	wsID := a.pair(t, testKeyA)
	if _, err := a.orch.Push(context.Background()); err != nil {
		t.Fatal(err)
	}

	b := newHarnessWithBackend(t, a.backend)
	if err := b.wsFile.Write(wsID); err != nil {
		t.Fatal(err)
	}
	if err := b.keys.SetWorkspaceKey(context.Background(), wsID, testKeyB); err != nil {
		t.Fatal(err)
	}

	_, err := b.orch.Pull(context.Background())
	if !errors.Is(err, domain.ErrCorruptSnapshot) {
		t.Fatalf("Pull() error = %v, want ErrCorruptSnapshot", err)
	}
	if b.state.hydrations() != 0 {
		t.Error("undecryptable snapshot must not hydrate")
	}
}

func TestOrchestrator_SyncSkipsUnchanged(t *testing.T) {
	h := newHarness(t)
	h.pair(t, testKeyA)

	res, err := h.orch.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if res.Retry.Reason != SkipNoPending || res.Push.Kind != OutcomeSuccess || res.Pull.Kind != OutcomeUnchanged {
		t.Errorf("first Sync() = %+v", res)
	}

	res, err = h.orch.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if res.Push.Kind != OutcomeUnchanged || res.Pull.Kind != OutcomeUnchanged {
		t.Errorf("second Sync() = %+v", res)
	}
	if h.backend.pushes != 1 {
		t.Errorf("pushes = %d, want 1", h.backend.pushes)
	}
	if h.state.hydrations() != 0 {
		t.Errorf("hydrations = %d, want 0", h.state.hydrations())
	}

	h.state.state = map[string]any{"notes": []any{"first", "second"}}
	res, err = h.orch.Sync(context.Background())
	if err != nil || res.Push.Kind != OutcomeSuccess {
		t.Errorf("Sync() after edit = %+v, %v", res, err)
	}
}

func TestOrchestrator_SyncPullsForeignSnapshot(t *testing.T) {
	a := newHarness(t)
	wsID := a.pair(t, testKeyA)
	if _, err := a.orch.Sync(context.Background()); err != nil {
		t.Fatal(err)
	}

	b := newHarnessWithBackend(t, a.backend)
	if err := b.wsFile.Write(wsID); err != nil {
		t.Fatal(err)
	}
	b.state.state = map[string]any{"notes": []any{"from b"}}
	if _, err := b.orch.Push(context.Background()); err != nil {
		t.Fatal(err)
	}

	res, err := a.orch.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if res.Pull.Kind != OutcomeSuccess {
		t.Errorf("pull = %+v, want success", res.Pull)
	}
	want := map[string]any{"notes": []any{"from b"}}
	if !reflect.DeepEqual(a.state.state, want) {
		t.Errorf("state = %#v, want %#v", a.state.state, want)
	}
}

func TestOrchestrator_SyncStopsOnGuard(t *testing.T) {
	h := newHarness(t)
	h.pair(t, testKeyA)
	_ = h.prefs.SetPremium(context.Background(), false)

	res, err := h.orch.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if res.Retry.Reason != SkipPremium || res.Push.Kind != "" || res.Pull.Kind != "" {
		t.Errorf("Sync() = %+v", res)
	}
}

func TestOrchestrator_ConcurrentPushes(t *testing.T) {
	h := newHarness(t)
	h.pair(t, testKeyA)
	h.backend.pushDelay = 50 * time.Millisecond

	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n*2)
	for i := 0; i < n; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := h.orch.Push(context.Background())
			errs <- err
		}()
		go func() {
			defer wg.Done()
			_, err := h.orch.Pull(context.Background())
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("concurrent op error = %v", err)
		}
	}
	h.backend.mu.Lock()
	pushes := h.backend.pushes
	h.backend.mu.Unlock()
	if pushes < 1 || pushes > n {
		t.Errorf("pushes = %d, want between 1 and %d", pushes, n)
	}
	if h.orch.Status() != domain.StatusIdle {
		t.Errorf("status = %s, want idle", h.orch.Status())
	}
}

func TestOrchestrator_TagsOperationContext(t *testing.T) {
	h := newHarness(t)
	wsID := h.pair(t, testKeyA)

	if _, err := h.orch.Push(context.Background()); err != nil {
		t.Fatalf("Push() error = %v", err)
	}

	h.backend.mu.Lock()
	opID, gotWs := h.backend.pushOpID, h.backend.pushWsID
	h.backend.mu.Unlock()
	if opID == "" {
		t.Error("push context carried no operation id")
	}
	if gotWs != wsID {
		t.Errorf("push context workspace = %q, want %q", gotWs, wsID)
	}
}

func TestOrchestrator_JoinedCallerOutlivesFirstCancel(t *testing.T) {
	h := newHarness(t)
	h.pair(t, testKeyA)
	h.backend.pushDelay = 150 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	firstErr := make(chan error, 1)
	go func() {
		_, err := h.orch.Push(ctx)
		firstErr <- err
	}()
	time.Sleep(20 * time.Millisecond)

	type result struct {
		out Outcome
		err error
	}
	second := make(chan result, 1)
	go func() {
		out, err := h.orch.Push(context.Background())
		second <- result{out, err}
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	if err := <-firstErr; !errors.Is(err, context.Canceled) {
		t.Errorf("first Push() error = %v, want context.Canceled", err)
	}
	r := <-second
	if r.err != nil {
		t.Fatalf("joined Push() error = %v, want success", r.err)
	}
	if r.out.Kind != OutcomeSuccess {
		t.Errorf("joined Push() outcome = %+v, want success", r.out)
	}
	h.backend.mu.Lock()
	pushes := h.backend.pushes
	h.backend.mu.Unlock()
	if pushes != 1 {
		t.Errorf("pushes = %d, want one shared execution", pushes)
	}
}

func TestOrchestrator_SyncDoesNotAbsorbExplicitPush(t *testing.T) {
	h := newHarness(t)
	h.pair(t, testKeyA)
	h.state.state = map[string]any{"n": 1}
	if _, err := h.orch.Push(context.Background()); err != nil {
		t.Fatalf("seed Push() error = %v", err)
	}

	h.state.mu.Lock()
	h.state.aggDelay = 100 * time.Millisecond
	h.state.mu.Unlock()

	syncDone := make(chan SyncResult, 1)
	go func() {
		res, _ := h.orch.Sync(context.Background())
		syncDone <- res
	}()
	time.Sleep(30 * time.Millisecond)

	out, err := h.orch.Push(context.Background())
	if err != nil {
		t.Fatalf("Push() error = %v", err)
	}
	if out.Kind != OutcomeSuccess {
		t.Errorf("explicit Push() outcome = %+v, want success", out)
	}
	if res := <-syncDone; res.Push.Kind != OutcomeUnchanged {
		t.Errorf("Sync push step = %+v, want unchanged", res.Push)
	}
	h.backend.mu.Lock()
	pushes := h.backend.pushes
	h.backend.mu.Unlock()
	if pushes != 2 {
		t.Errorf("pushes = %d, want seed plus explicit push", pushes)
	}
}
