package audit

import (
	"context"

	"go.uber.org/zap"

	"github.com/eventdesk/backend/internal/models"
)

// Inserter persists audit entries.
type Inserter interface {
	Insert(ctx context.Context, entry *models.AuditLog) error
}

// Recorder writes audit entries and mirrors them to the application log.
type Recorder struct {
	repo   Inserter
	logger *zap.Logger
}

// NewRecorder creates a recorder over repo.
func NewRecorder(repo Inserter, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{repo: repo, logger: logger}
}

// Record persists entry.
func (r *Recorder) Record(ctx context.Context, entry *models.AuditLog) error {
	if err := r.repo.Insert(ctx, entry); err != nil {
		return err
	}
	Log(r.logger, entry)
	return nil
}

// Log writes entry to logger, at warn level for CRITICAL entries.
func Log(logger *zap.Logger, entry *models.AuditLog) {
	fields := []zap.Field{
		zap.String("audit_id", entry.ID.String()),
		zap.String("entity_type", entry.EntityType),
		zap.String("entity_id", entry.EntityID.String()),
		zap.String("action", entry.ActionType),
		zap.String("actor", entry.ActorName),
		zap.String("severity", string(entry.Severity)),
	}
	if entry.Severity == models.SeverityCritical {
		logger.Warn("audit", append(fields, zap.String("reason", entry.Reason))...)
		return
	}
	logger.Info("audit", fields...)
}
