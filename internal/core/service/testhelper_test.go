package service

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/yndnr/meshsync/internal/core/domain"
	"github.com/yndnr/meshsync/internal/storage"
	"github.com/yndnr/meshsync/internal/storage/localfile"
	"github.com/yndnr/meshsync/internal/storage/memory"
	"github.com/yndnr/meshsync/internal/storage/snapshot"
	"github.com/yndnr/meshsync/internal/telemetry/journal"
	"github.com/yndnr/meshsync/internal/telemetry/logger"
)

const (
	testKeyA = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	testKeyB = "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
)

// mockBackend implements every remote interface with call counters and
// optional injected errors.
type mockBackend struct {
	mu sync.Mutex

	workspaces map[string]*domain.Workspace
	snapshots  []domain.SnapshotRecord
	premium    []domain.PremiumRecord
	exports    int

	creates, gets, updates int
	pushes, pulls          int
	premiumQueries         int
	lastCreate             domain.Workspace
	lastUpdate             domain.WorkspaceUpdate

	err        error // returned by every call when set
	pushErr    error
	exportErr  error
	pushDelay  time.Duration
	seq        int

	// pushCtx holds the operation and workspace ids seen by the last push.
	pushOpID, pushWsID string
}

func newMockBackend() *mockBackend {
	return &mockBackend{workspaces: make(map[string]*domain.Workspace)}
}

func (m *mockBackend) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.creates + m.gets + m.updates + m.pushes + m.pulls + m.premiumQueries
}

func (m *mockBackend) CreateWorkspace(ctx context.Context, ws domain.Workspace) (*domain.Workspace, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creates++
	m.lastCreate = ws
	if m.err != nil {
		return nil, m.err
	}
	m.seq++
	ws.ID = fmt.Sprintf("ws%d", m.seq)
	ws.DeviceIDs = append([]string(nil), ws.DeviceIDs...)
	m.workspaces[ws.ID] = &ws
	out := ws
	return &out, nil
}

func (m *mockBackend) GetWorkspace(ctx context.Context, id string) (*domain.Workspace, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	if m.err != nil {
		return nil, m.err
	}
	ws, ok := m.workspaces[id]
	if !ok {
		return nil, domain.ErrWorkspaceNotFound
	}
	out := *ws
	out.DeviceIDs = append([]string(nil), ws.DeviceIDs...)
	return &out, nil
}

func (m *mockBackend) UpdateWorkspace(ctx context.Context, id string, upd domain.WorkspaceUpdate) (*domain.Workspace, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates++
	m.lastUpdate = upd
	if m.err != nil {
		return nil, m.err
	}
	ws, ok := m.workspaces[id]
	if !ok {
		return nil, domain.ErrWorkspaceNotFound
	}
	if upd.DeviceIDs != nil {
		ws.DeviceIDs = append([]string(nil), (*upd.DeviceIDs)...)
	}
	if upd.SharedKey != nil {
		ws.SharedKey = *upd.SharedKey
	}
	out := *ws
	return &out, nil
}

func (m *mockBackend) PushSnapshotRecord(ctx context.Context, workspaceID, deviceID, blob string) (*domain.SnapshotRecord, error) {
	m.mu.Lock()
	m.pushes++
	m.pushOpID = logger.OperationIDFromContext(ctx)
	m.pushWsID = logger.WorkspaceIDFromContext(ctx)
	err := m.err
	if m.pushErr != nil {
		err = m.pushErr
	}
	delay := m.pushDelay
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	rec := domain.SnapshotRecord{
		ID:          fmt.Sprintf("snap%d", m.seq),
		WorkspaceID: workspaceID,
		DeviceID:    deviceID,
		Blob:        blob,
		CreatedAt:   time.Unix(int64(m.seq), 0).UTC(),
	}
	m.snapshots = append(m.snapshots, rec)
	return &rec, nil
}

func (m *mockBackend) PullLatestSnapshotRecord(ctx context.Context, workspaceID string) (*domain.SnapshotRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pulls++
	if m.err != nil {
		return nil, m.err
	}
	for i := len(m.snapshots) - 1; i >= 0; i-- {
		if m.snapshots[i].WorkspaceID == workspaceID {
			rec := m.snapshots[i]
			return &rec, nil
		}
	}
	return nil, nil
}

func (m *mockBackend) FindActivePremium(ctx context.Context, username, deviceID string) (*domain.PremiumRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.premiumQueries++
	if m.err != nil {
		return nil, m.err
	}
	for _, r := range m.premium {
		if r.Username == username && r.IsActive && (deviceID == "" || r.DeviceID == deviceID) {
			rec := r
			return &rec, nil
		}
	}
	return nil, domain.ErrRecordNotFound
}

func (m *mockBackend) ExportDebugLogs(ctx context.Context, deviceID, username string, entries any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exports++
	return m.exportErr
}

type mockNetwork struct {
	mu     sync.Mutex
	online bool
	probes int
}

func (n *mockNetwork) CheckNetworkConnectivity(ctx context.Context) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.probes++
	return n.online
}

// mockState is an in-memory StateAggregator.
type mockState struct {
	mu       sync.Mutex
	state    any
	hydrated []any
	aggErr   error
	aggDelay time.Duration
}

func (s *mockState) GetAllStoreStates() (any, error) {
	s.mu.Lock()
	delay := s.aggDelay
	s.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.aggErr
}

func (s *mockState) HydrateAll(state any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hydrated = append(s.hydrated, state)
	s.state = state
	return nil
}

func (s *mockState) hydrations() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.hydrated)
}

// countingFs wraps an afero.Fs and counts file creations.
type countingFs struct {
	afero.Fs
	mu     sync.Mutex
	writes int
}

func (c *countingFs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	if flag&(os.O_WRONLY|os.O_RDWR) != 0 {
		c.mu.Lock()
		c.writes++
		c.mu.Unlock()
	}
	return c.Fs.OpenFile(name, flag, perm)
}

func (c *countingFs) Create(name string) (afero.File, error) {
	c.mu.Lock()
	c.writes++
	c.mu.Unlock()
	return c.Fs.Create(name)
}

func (c *countingFs) writeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writes
}

// harness wires real local stores with mock remote collaborators.
type harness struct {
	backend *mockBackend
	net     *mockNetwork
	kv      *memory.Store
	keys    *storage.KeyCache
	prefs   *storage.Prefs
	fs      *countingFs
	wsFile  *localfile.WorkspaceFile
	pending *snapshot.PendingCache
	codec   *snapshot.Codec
	state   *mockState
	journal *journal.Journal

	keyMgr  *KeyManager
	wsMgr   *WorkspaceManager
	premium *PremiumVerifier
	deps    OrchestratorDeps
	orch    *Orchestrator
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWithBackend(t, newMockBackend())
}

// newHarnessWithBackend builds a second device against an existing backend.
func newHarnessWithBackend(t *testing.T, backend *mockBackend) *harness {
	t.Helper()
	ctx := context.Background()

	h := &harness{
		backend: backend,
		net:     &mockNetwork{online: true},
		kv:      memory.New(),
		fs:      &countingFs{Fs: afero.NewMemMapFs()},
		codec:   snapshot.NewCodec(),
		state:   &mockState{state: map[string]any{"notes": []any{"first"}}},
		journal: journal.New(journal.Config{Capacity: 100}, nil),
	}
	h.keys = storage.NewKeyCache(h.kv)
	h.prefs = storage.NewPrefs(h.kv)
	h.wsFile = localfile.NewWorkspaceFile(h.fs, "/data")
	pending, err := snapshot.NewPendingCache(h.fs, "/data")
	if err != nil {
		t.Fatalf("NewPendingCache: %v", err)
	}
	h.pending = pending

	log := logger.Discard()
	h.keyMgr = NewKeyManager(h.keys, h.backend, h.prefs, log)
	h.wsMgr = NewWorkspaceManager(h.backend, h.wsFile, h.pending, h.keyMgr, log)
	h.premium = NewPremiumVerifier(h.backend, h.net, h.prefs, h.journal, 0, log)
	h.deps = OrchestratorDeps{
		Keys:       h.keyMgr,
		Workspaces: h.wsMgr,
		Remote:     h.backend,
		Network:    h.net,
		Prefs:      h.prefs,
		Codec:      h.codec,
		State:      h.state,
		Pending:    h.pending,
		Journal:    h.journal,
		Logger:     log,
	}
	h.orch = NewOrchestrator(h.deps, 5*time.Second)

	if err := h.prefs.SetPremium(ctx, true); err != nil {
		t.Fatal(err)
	}
	if err := h.prefs.SetOnboardingComplete(ctx, true); err != nil {
		t.Fatal(err)
	}
	return h
}

// pair creates a workspace with key on the backend and pairs this device.
func (h *harness) pair(t *testing.T, key domain.SyncKey) string {
	t.Helper()
	h.backend.mu.Lock()
	h.backend.seq++
	id := fmt.Sprintf("ws%d", h.backend.seq)
	h.backend.workspaces[id] = &domain.Workspace{
		ID:            id,
		OwnerDeviceID: "owner",
		DeviceIDs:     []string{"owner"},
		InviteCode:    "ABCDEFGH",
		SharedKey:     key,
	}
	h.backend.mu.Unlock()
	if err := h.wsFile.Write(id); err != nil {
		t.Fatal(err)
	}
	return id
}
