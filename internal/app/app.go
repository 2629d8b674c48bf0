// Package app assembles a meshsync install from its configuration: local
// stores, backend client, services and telemetry.
package app

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/spf13/afero"

	"github.com/yndnr/meshsync/internal/config"
	"github.com/yndnr/meshsync/internal/core/service"
	"github.com/yndnr/meshsync/internal/infra/tlsroots"
	"github.com/yndnr/meshsync/internal/storage"
	"github.com/yndnr/meshsync/internal/storage/localfile"
	"github.com/yndnr/meshsync/internal/storage/memory"
	"github.com/yndnr/meshsync/internal/storage/snapshot"
	"github.com/yndnr/meshsync/internal/telemetry/journal"
	"github.com/yndnr/meshsync/internal/telemetry/logger"
	"github.com/yndnr/meshsync/internal/telemetry/metric"
	"github.com/yndnr/meshsync/internal/transport"
)

type settings struct {
	fs         afero.Fs
	logOutput  io.Writer
	httpClient *http.Client
	kv         storage.KVEngine
}

// Option configures New.
type Option func(*settings)

// WithFs replaces the OS filesystem for the plain files (workspace id,
// pending snapshot, state document, CA bundles).
func WithFs(fs afero.Fs) Option {
	return func(s *settings) { s.fs = fs }
}

// WithLogOutput redirects the structured log. Default: stderr.
func WithLogOutput(w io.Writer) Option {
	return func(s *settings) { s.logOutput = w }
}

// WithHTTPClient replaces the backend HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(s *settings) { s.httpClient = hc }
}

// WithKV supplies an already open KV engine instead of opening the
// configured one. The App takes ownership and closes it.
func WithKV(kv storage.KVEngine) Option {
	return func(s *settings) { s.kv = kv }
}

// App holds every wired component of a meshsync install.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	Fs        afero.Fs
	KV        storage.KVEngine
	Keys      *storage.KeyCache
	Prefs     *storage.Prefs
	Workspace *localfile.WorkspaceFile
	State     *localfile.StateFile
	Pending   *snapshot.PendingCache
	Codec     *snapshot.Codec

	Journal   *journal.Journal
	Metrics   *metric.Registry
	Transport *transport.Client

	KeyManager   *service.KeyManager
	Workspaces   *service.WorkspaceManager
	Premium      *service.PremiumVerifier
	Orchestrator *service.Orchestrator

	log       logger.Logger
	closeOnce sync.Once
	closeErr  error
}

// New wires an App. On error everything opened so far is closed.
func New(cfg *config.Config, opts ...Option) (a *App, err error) {
	s := settings{fs: afero.NewOsFs(), logOutput: os.Stderr}
	for _, opt := range opts {
		opt(&s)
	}

	lc := cfg.LoggerConfig()
	lc.Output = s.logOutput
	log, err := logger.New(lc)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	logger.SetDefault(log)
	slogger := log.Slog()

	a = &App{Config: cfg, Logger: slogger, Fs: s.fs, log: log}
	slogger.Debug("configuration loaded", "config", config.Sanitize(cfg))
	defer func() {
		if err != nil {
			_ = a.Close()
			a = nil
		}
	}()

	if err := s.fs.MkdirAll(cfg.Storage.DataDir, 0o750); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	a.Metrics = metric.NewRegistry()

	a.KV = s.kv
	if a.KV == nil {
		if a.KV, err = openKV(cfg, a.Metrics, slogger); err != nil {
			return nil, err
		}
	}
	a.Keys = storage.NewKeyCache(a.KV)
	a.Prefs = storage.NewPrefs(a.KV)

	a.Workspace = localfile.NewWorkspaceFile(s.fs, cfg.Storage.DataDir)
	a.State = localfile.NewStateFile(s.fs, cfg.StatePath())
	if a.Pending, err = snapshot.NewPendingCache(s.fs, cfg.Storage.DataDir); err != nil {
		return nil, err
	}
	a.Codec = snapshot.NewCodec(snapshot.WithCipher(cfg.CipherType()))

	a.Journal = journal.New(cfg.JournalConfig(), slogger.With("component", "journal"))
	if file := cfg.Telemetry.JournalFile; file != "" {
		replayJournal(a.Journal, file, slogger)
	}

	topts := []transport.Option{transport.WithObserver(a.Metrics)}
	tlsCfg, err := tlsroots.Load(s.fs, cfg.Backend.CAFile, cfg.Backend.CADir)
	if err != nil {
		return nil, fmt.Errorf("load backend CA: %w", err)
	}
	if tlsCfg != nil {
		topts = append(topts, transport.WithTLSConfig(tlsCfg))
	}
	if s.httpClient != nil {
		topts = append(topts, transport.WithHTTPClient(s.httpClient))
	}
	a.Transport = transport.New(cfg.TransportConfig(), slogger.With("component", "transport"), topts...)

	svcLog := slogger.With("component", "sync")
	a.KeyManager = service.NewKeyManager(a.Keys, a.Transport, a.Prefs, svcLog)
	a.Workspaces = service.NewWorkspaceManager(a.Transport, a.Workspace, a.Pending, a.KeyManager, svcLog)
	a.Premium = service.NewPremiumVerifier(a.Transport, a.Transport, a.Prefs, a.Journal, cfg.Telemetry.ExportCount, svcLog)
	a.Orchestrator = service.NewOrchestrator(service.OrchestratorDeps{
		Keys:       a.KeyManager,
		Workspaces: a.Workspaces,
		Remote:     a.Transport,
		Network:    a.Transport,
		Prefs:      a.Prefs,
		Codec:      a.Codec,
		State:      a.State,
		Pending:    a.Pending,
		Journal:    a.Journal,
		Metrics:    a.Metrics,
		Logger:     svcLog,
	}, cfg.Sync.OperationTimeout)

	orch := a.Orchestrator
	a.Metrics.Registerer().MustRegister(metric.NewStatusCollector(func() string {
		return string(orch.Status())
	}))

	return a, nil
}

// replayJournal restores history from the rotated journal file. The file is
// written by lumberjack, so it is always on the OS filesystem.
func replayJournal(j *journal.Journal, file string, log *slog.Logger) {
	f, err := os.Open(file)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Warn("failed to open journal file", "path", file, "error", err)
		}
		return
	}
	defer f.Close()
	n, err := j.Replay(f)
	if err != nil {
		log.Warn("journal replay stopped early", "path", file, "error", err)
	}
	log.Debug("journal replayed", "path", file, "entries", n)
}

func openKV(cfg *config.Config, reg *metric.Registry, log *slog.Logger) (storage.KVEngine, error) {
	switch cfg.Storage.Engine {
	case "memory":
		return memory.New(), nil
	case "badger", "":
		engine, err := storage.NewBadgerEngine(cfg.KVConfig(), log.With("component", "badger"))
		if err != nil {
			return nil, err
		}
		return engine.RegisterMetrics(reg.Registerer()), nil
	default:
		return nil, fmt.Errorf("unknown storage engine %q", cfg.Storage.Engine)
	}
}

// Reload applies the settings that can change without a restart: the
// backend endpoint list and the log level.
func (a *App) Reload(cfg *config.Config) {
	a.Transport.SetEndpoints(cfg.Backend.Endpoints)
	logger.SetLevel(cfg.Log.Level)
	a.Config.Backend.Endpoints = append([]string(nil), cfg.Backend.Endpoints...)
	a.Config.Log.Level = cfg.Log.Level
	a.Logger.Info("configuration reloaded", "endpoints", len(cfg.Backend.Endpoints), "log_level", cfg.Log.Level)
}

// Close releases the KV engine, the journal file and the log file. Later
// calls return the first result.
func (a *App) Close() error {
	a.closeOnce.Do(func() {
		var errs []error
		if a.KV != nil {
			errs = append(errs, a.KV.Close())
		}
		if a.Journal != nil {
			errs = append(errs, a.Journal.Close())
		}
		if a.log != nil {
			errs = append(errs, logger.Close(a.log))
		}
		a.closeErr = errors.Join(errs...)
	})
	return a.closeErr
}
