package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/aegis-iam/aegis/internal/shared"
)

// AuditSweepHandler deletes audit records older than the retention window.
type AuditSweepHandler struct {
	audit     *shared.AuditLogger
	retention time.Duration
	logger    *slog.Logger
}

// NewAuditSweepHandler constructs the handler.
func NewAuditSweepHandler(audit *shared.AuditLogger, retention time.Duration, logger *slog.Logger) *AuditSweepHandler {
	return &AuditSweepHandler{audit: audit, retention: retention, logger: logger}
}

// Handle processes one TaskAuditSweep task.
func (h *AuditSweepHandler) Handle(ctx context.Context, t *asynq.Task) error {
	if err := h.audit.Cleanup(ctx, h.retention); err != nil {
		return err
	}
	h.logger.Info("audit retention sweep complete", slog.Duration("retention", h.retention))
	return nil
}
