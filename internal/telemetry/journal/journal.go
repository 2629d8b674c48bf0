// Package journal is the in-process activity log surfaced to users and
// exported to the backend for remote diagnosis.
//
// Entries are kept in a bounded ring, published to subscribers as they are
// added, mirrored to the structured logger and optionally appended to a
// rotated JSON-lines file.
package journal

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Status classifies an entry.
type Status string

const (
	StatusInfo    Status = "info"
	StatusSuccess Status = "success"
	StatusWarning Status = "warning"
	StatusError   Status = "error"
	StatusVerbose Status = "verbose"
)

// ParseStatus maps a name to a Status. Unknown names map to StatusInfo.
func ParseStatus(s string) Status {
	switch Status(s) {
	case StatusSuccess, StatusWarning, StatusError, StatusVerbose:
		return Status(s)
	default:
		return StatusInfo
	}
}

func (s Status) level() slog.Level {
	switch s {
	case StatusWarning:
		return slog.LevelWarn
	case StatusError:
		return slog.LevelError
	case StatusVerbose:
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}

// Entry is one journal line. Entries are never mutated once added.
type Entry struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Status    Status    `json:"status"`
	Details   any       `json:"details,omitempty"`
}

// DefaultCapacity is the ring size when Config.Capacity is zero.
const DefaultCapacity = 500

// Config configures a Journal.
type Config struct {
	Capacity int

	// File, when set, receives every entry as a JSON line.
	File       string
	MaxSizeMB  int
	MaxBackups int
}

// Journal is safe for concurrent use.
type Journal struct {
	mu      sync.Mutex
	ring    []Entry
	next    int
	full    bool
	entropy io.Reader
	now     func() time.Time

	subMu  sync.RWMutex
	subs   map[int]func(Entry)
	nextID int

	logger *slog.Logger
	sink   io.WriteCloser
}

// New creates a journal. logger may be nil.
func New(cfg Config, logger *slog.Logger) *Journal {
	capacity := cfg.Capacity
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	j := &Journal{
		ring:    make([]Entry, capacity),
		entropy: ulid.Monotonic(rand.Reader, 0),
		now:     time.Now,
		subs:    make(map[int]func(Entry)),
		logger:  logger,
	}
	if cfg.File != "" {
		j.sink = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
		}
	}
	return j
}

// Add appends an entry and publishes it to subscribers.
func (j *Journal) Add(message string, status Status, details any) Entry {
	j.mu.Lock()
	now := j.now()
	e := Entry{
		ID:        ulid.MustNew(ulid.Timestamp(now), j.entropy).String(),
		Message:   message,
		Timestamp: now,
		Status:    status,
		Details:   details,
	}
	j.ring[j.next] = e
	j.next = (j.next + 1) % len(j.ring)
	if j.next == 0 {
		j.full = true
	}
	if j.sink != nil {
		if line, err := json.Marshal(e); err == nil {
			_, _ = j.sink.Write(append(line, '\n'))
		}
	}
	j.mu.Unlock()

	if j.logger != nil {
		args := []any{"journal_id", e.ID, "status", string(status)}
		if details != nil {
			args = append(args, "details", details)
		}
		j.logger.Log(context.Background(), status.level(), message, args...)
	}

	j.subMu.RLock()
	for _, fn := range j.subs {
		fn(e)
	}
	j.subMu.RUnlock()
	return e
}

// Info is shorthand for Add(message, StatusInfo, nil).
func (j *Journal) Info(message string) { j.Add(message, StatusInfo, nil) }

// Success is shorthand for Add(message, StatusSuccess, nil).
func (j *Journal) Success(message string) { j.Add(message, StatusSuccess, nil) }

// Warning is shorthand for Add(message, StatusWarning, details).
func (j *Journal) Warning(message string, details any) { j.Add(message, StatusWarning, details) }

// Error is shorthand for Add(message, StatusError, details).
func (j *Journal) Error(message string, details any) { j.Add(message, StatusError, details) }

// Subscribe registers fn for every subsequent entry. fn runs on the adding
// goroutine and must not call Subscribe or the returned func.
func (j *Journal) Subscribe(fn func(Entry)) (unsubscribe func()) {
	j.subMu.Lock()
	id := j.nextID
	j.nextID++
	j.subs[id] = fn
	j.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			j.subMu.Lock()
			delete(j.subs, id)
			j.subMu.Unlock()
		})
	}
}

// Recent returns up to n of the newest entries, oldest first. n <= 0 returns
// everything retained.
func (j *Journal) Recent(n int) []Entry {
	j.mu.Lock()
	defer j.mu.Unlock()

	size := j.next
	if j.full {
		size = len(j.ring)
	}
	if n <= 0 || n > size {
		n = size
	}
	out := make([]Entry, 0, n)
	start := j.next - n
	if start < 0 {
		start += len(j.ring)
	}
	for i := 0; i < n; i++ {
		out = append(out, j.ring[(start+i)%len(j.ring)])
	}
	return out
}

// Len returns the number of retained entries.
func (j *Journal) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.full {
		return len(j.ring)
	}
	return j.next
}

// Replay loads entries previously written by a file sink, so a new process
// starts with the history of the last one. Only the newest entries that fit
// the ring are kept; malformed lines are skipped. Replayed entries are not
// published, logged or written back.
func (j *Journal) Replay(r io.Reader) (int, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)

	j.mu.Lock()
	defer j.mu.Unlock()
	n := 0
	for sc.Scan() {
		var e Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil || e.ID == "" {
			continue
		}
		j.ring[j.next] = e
		j.next = (j.next + 1) % len(j.ring)
		if j.next == 0 {
			j.full = true
		}
		n++
	}
	return n, sc.Err()
}

// Close flushes and closes the file sink.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.sink == nil {
		return nil
	}
	err := j.sink.Close()
	j.sink = nil
	return err
}
