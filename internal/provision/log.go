package provision

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"

	"onboard/internal/docstore"
)

// Run statuses recorded on the log.
const (
	StatusDryRun  = "DRY-RUN"
	StatusSuccess = "SUCCESS"
	StatusFailed  = "FAILED"
)

// RunLog writes one Provision Log record per run. Writing is best-effort: a
// log failure never fails the run it describes.
type RunLog struct {
	store  docstore.Store
	logger *slog.Logger
}

func NewRunLog(store docstore.Store, logger *slog.Logger) *RunLog {
	return &RunLog{store: store, logger: logger}
}

// Write records the run. Returns the log name, "" when the write failed.
func (l *RunLog) Write(ctx context.Context, site, slug string, dryRun bool, summary string, plan *Plan, status, commitRef string) string {
	planJSON := "{}"
	if plan != nil {
		if raw, err := json.MarshalIndent(plan, "", "  "); err == nil {
			planJSON = string(raw)
		}
	}
	logID := uuid.NewString()[:8]
	name, err := l.store.Insert(ctx, &docstore.Document{
		Doctype: "Provision Log",
		Name:    logID,
		Fields: docstore.Fields{
			"log_id":     logID,
			"site":       site,
			"blueprint":  slug,
			"dry_run":    boolInt(dryRun),
			"summary":    summary,
			"plan":       planJSON,
			"status":     status,
			"commit_ref": commitRef,
		},
	})
	if err != nil {
		l.logger.Warn("provision log write failed", "blueprint", slug, "error", err)
		return ""
	}
	return name
}
