// Package transporttest provides an in-memory backend for tests that need a
// real HTTP peer: the collection API, the health endpoint and request
// counters.
package transporttest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/yndnr/meshsync/internal/core/domain"
)

const timeLayout = "2006-01-02 15:04:05.000Z"

// Server is a fake backend. All methods are safe for concurrent use.
type Server struct {
	*httptest.Server

	mu         sync.Mutex
	healthy    bool
	seq        int
	clock      time.Time
	workspaces map[string]map[string]any
	snapshots  []map[string]any
	premium    []map[string]any
	debugLogs  []map[string]any
	failures   map[string]int
	calls      map[string]int
	requestIDs []string
	health     int
}

// NewServer starts a healthy, empty backend. Close it when done.
func NewServer() *Server {
	s := &Server{
		healthy:    true,
		clock:      time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		workspaces: make(map[string]map[string]any),
		failures:   make(map[string]int),
		calls:      make(map[string]int),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	return s
}

// SetHealthy toggles the health endpoint between 200 and 503.
func (s *Server) SetHealthy(ok bool) {
	s.mu.Lock()
	s.healthy = ok
	s.mu.Unlock()
}

// FailCollection makes every request to collection answer with status.
// Status 0 clears the failure.
func (s *Server) FailCollection(collection string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if status == 0 {
		delete(s.failures, collection)
		return
	}
	s.failures[collection] = status
}

// Calls returns how many requests hit "<METHOD> <collection>".
func (s *Server) Calls(method, collection string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method+" "+collection]
}

// TotalCalls returns the number of collection requests of any kind.
func (s *Server) TotalCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		n += c
	}
	return n
}

// RequestIDs returns the X-Request-Id values seen on collection requests, in
// arrival order.
func (s *Server) RequestIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requestIDs...)
}

// HealthChecks returns how many health probes were received.
func (s *Server) HealthChecks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.health
}

// PutWorkspace stores ws as is, returning its id (generated when empty).
func (s *Server) PutWorkspace(ws domain.Workspace) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ws.ID == "" {
		ws.ID = s.nextID()
	}
	s.workspaces[ws.ID] = toMap(ws)
	return ws.ID
}

// Workspace returns the stored workspace.
func (s *Server) Workspace(id string) (domain.Workspace, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.workspaces[id]
	if !ok {
		return domain.Workspace{}, false
	}
	var ws domain.Workspace
	fromMap(rec, &ws)
	return ws, true
}

// AddPremium stores an entitlement record.
func (s *Server) AddPremium(rec domain.PremiumRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.ID == "" {
		rec.ID = s.nextID()
	}
	s.premium = append(s.premium, toMap(rec))
}

// Snapshots returns the stored snapshots of a workspace, oldest first.
func (s *Server) Snapshots(workspaceID string) []domain.SnapshotRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.SnapshotRecord
	for _, rec := range s.snapshots {
		if rec["workspace_id"] != workspaceID {
			continue
		}
		created, _ := time.Parse(timeLayout, fmt.Sprint(rec["created"]))
		out = append(out, domain.SnapshotRecord{
			ID:          fmt.Sprint(rec["id"]),
			WorkspaceID: workspaceID,
			DeviceID:    fmt.Sprint(rec["device_id"]),
			Blob:        fmt.Sprint(rec["snapshot_blob"]),
			CreatedAt:   created,
		})
	}
	return out
}

// DebugLogs returns the uploaded diagnostic records.
func (s *Server) DebugLogs() []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]map[string]any(nil), s.debugLogs...)
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/api/health" {
		s.mu.Lock()
		s.health++
		ok := s.healthy
		s.mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		return
	}

	rest, ok := strings.CutPrefix(r.URL.Path, "/api/collections/")
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	parts := strings.Split(rest, "/")
	if len(parts) < 2 || parts[1] != "records" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	collection := parts[0]
	id := ""
	if len(parts) > 2 {
		id = parts[2]
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls[r.Method+" "+collection]++
	if rid := r.Header.Get("X-Request-Id"); rid != "" {
		s.requestIDs = append(s.requestIDs, rid)
	}
	if status, failing := s.failures[collection]; failing {
		writeError(w, status, "injected failure")
		return
	}

	switch collection {
	case "sync_workspaces":
		s.serveWorkspaces(w, r, id)
	case "registry_snapshots":
		s.serveList(w, r, &s.snapshots, true)
	case "premium_users":
		s.serveList(w, r, &s.premium, false)
	case "debug_logs":
		s.serveList(w, r, &s.debugLogs, false)
	default:
		writeError(w, http.StatusNotFound, "missing collection")
	}
}

func (s *Server) serveWorkspaces(w http.ResponseWriter, r *http.Request, id string) {
	switch {
	case r.Method == http.MethodPost && id == "":
		rec, err := decodeBody(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		rec["id"] = s.nextID()
		s.workspaces[rec["id"].(string)] = rec
		writeJSON(w, http.StatusOK, rec)
	case r.Method == http.MethodGet && id != "":
		rec, ok := s.workspaces[id]
		if !ok {
			writeError(w, http.StatusNotFound, "The requested resource wasn't found.")
			return
		}
		writeJSON(w, http.StatusOK, rec)
	case r.Method == http.MethodPatch && id != "":
		rec, ok := s.workspaces[id]
		if !ok {
			writeError(w, http.StatusNotFound, "The requested resource wasn't found.")
			return
		}
		patch, err := decodeBody(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		for k, v := range patch {
			rec[k] = v
		}
		writeJSON(w, http.StatusOK, rec)
	default:
		writeError(w, http.StatusMethodNotAllowed, "unsupported")
	}
}

func (s *Server) serveList(w http.ResponseWriter, r *http.Request, store *[]map[string]any, stamped bool) {
	switch r.Method {
	case http.MethodPost:
		rec, err := decodeBody(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		rec["id"] = s.nextID()
		if stamped {
			s.clock = s.clock.Add(time.Millisecond)
			rec["created"] = s.clock.Format(timeLayout)
		}
		*store = append(*store, rec)
		writeJSON(w, http.StatusOK, rec)
	case http.MethodGet:
		conds := parseFilter(r.URL.Query().Get("filter"))
		var items []map[string]any
		for _, rec := range *store {
			if matches(rec, conds) {
				items = append(items, rec)
			}
		}
		if r.URL.Query().Get("sort") == "-created" {
			sort.SliceStable(items, func(i, j int) bool {
				return fmt.Sprint(items[i]["created"]) > fmt.Sprint(items[j]["created"])
			})
		}
		total := len(items)
		if r.URL.Query().Get("perPage") == "1" && len(items) > 1 {
			items = items[:1]
		}
		if items == nil {
			items = []map[string]any{}
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"page": 1, "perPage": len(items), "totalItems": total, "items": items,
		})
	default:
		writeError(w, http.StatusMethodNotAllowed, "unsupported")
	}
}

func (s *Server) nextID() string {
	s.seq++
	return fmt.Sprintf("rec%012d", s.seq)
}

// parseFilter handles the "(a='x' && b=true)" subset the client emits.
func parseFilter(f string) map[string]string {
	f = strings.TrimSuffix(strings.TrimPrefix(strings.TrimSpace(f), "("), ")")
	conds := make(map[string]string)
	if f == "" {
		return conds
	}
	for _, part := range strings.Split(f, "&&") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		v = strings.TrimSpace(v)
		if strings.HasPrefix(v, "'") && strings.HasSuffix(v, "'") && len(v) >= 2 {
			v = strings.NewReplacer(`\'`, `'`, `\\`, `\`).Replace(v[1 : len(v)-1])
		}
		conds[strings.TrimSpace(k)] = v
	}
	return conds
}

func matches(rec map[string]any, conds map[string]string) bool {
	for k, v := range conds {
		if fmt.Sprint(rec[k]) != v {
			return false
		}
	}
	return true
}

func decodeBody(r *http.Request) (map[string]any, error) {
	var m map[string]any
	if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
		return nil, err
	}
	return m, nil
}

func toMap(v any) map[string]any {
	b, _ := json.Marshal(v)
	var m map[string]any
	_ = json.Unmarshal(b, &m)
	return m
}

func fromMap(m map[string]any, v any) {
	b, _ := json.Marshal(m)
	_ = json.Unmarshal(b, v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"code": status, "message": msg, "data": map[string]any{}})
}
