package service

import (
	"context"
	"log/slog"

	"github.com/yndnr/meshsync/internal/core/domain"
)

// DefaultExportCount is how many journal entries ride along with each
// premium check.
const DefaultExportCount = 20

// PremiumVerifier checks entitlements against the backend. It never fails:
// anything short of a confirmed active record is "not premium".
type PremiumVerifier struct {
	remote  PremiumBackend
	net     Connectivity
	prefs   PrefStore
	journal Journal
	logger  *slog.Logger

	exportCount int
}

// NewPremiumVerifier creates a PremiumVerifier. journal may be nil, which
// disables the diagnostic export.
func NewPremiumVerifier(remote PremiumBackend, net Connectivity, prefs PrefStore, journal Journal, exportCount int, logger *slog.Logger) *PremiumVerifier {
	if logger == nil {
		logger = slog.Default()
	}
	if exportCount <= 0 {
		exportCount = DefaultExportCount
	}
	return &PremiumVerifier{
		remote:      remote,
		net:         net,
		prefs:       prefs,
		journal:     journal,
		logger:      logger,
		exportCount: exportCount,
	}
}

// CheckStatus looks up an active premium record for username, narrowed to
// deviceID when it is non-empty. Offline, unreachable, not found and any
// other failure all resolve to IsPremium false. The last journal entries are
// exported on every call; export failures are ignored.
func (p *PremiumVerifier) CheckStatus(ctx context.Context, username, deviceID string) domain.PremiumStatus {
	defer p.exportLogs(ctx, username, deviceID)

	if username == "" {
		return domain.PremiumStatus{}
	}
	if !p.net.CheckNetworkConnectivity(ctx) {
		p.logger.Debug("premium check skipped: offline")
		return domain.PremiumStatus{}
	}

	rec, err := p.remote.FindActivePremium(ctx, username, deviceID)
	if err != nil {
		p.logger.Debug("premium check negative", "error", err)
		return domain.PremiumStatus{}
	}
	if rec == nil || !rec.IsActive {
		return domain.PremiumStatus{}
	}
	return domain.PremiumStatus{IsPremium: true, Record: rec}
}

// VerifyAndActivate runs CheckStatus and, on success, turns on the local
// premium flag and remembers username. A negative result changes nothing.
func (p *PremiumVerifier) VerifyAndActivate(ctx context.Context, username, deviceID string) bool {
	status := p.CheckStatus(ctx, username, deviceID)
	if !status.IsPremium {
		return false
	}
	if err := p.prefs.SetPremium(ctx, true); err != nil {
		p.logger.Error("failed to persist premium flag", "error", err)
		return false
	}
	if err := p.prefs.SetUsername(ctx, username); err != nil {
		p.logger.Warn("failed to persist username", "error", err)
	}
	p.logger.Info("premium activated", "plan_id", status.Record.PlanID)
	return true
}

func (p *PremiumVerifier) exportLogs(ctx context.Context, username, deviceID string) {
	if p.journal == nil {
		return
	}
	entries := p.journal.Recent(p.exportCount)
	if len(entries) == 0 {
		return
	}
	if err := p.remote.ExportDebugLogs(ctx, deviceID, username, entries); err != nil {
		p.logger.Debug("debug log export failed", "error", err)
	}
}
