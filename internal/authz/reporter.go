package authz

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/aegis-iam/aegis/internal/shared"
)

// Denial reasons recorded in server-side logs. Callers only ever see a
// generic access-denied response.
const (
	ReasonUnauthenticated        = "unauthenticated"
	ReasonInsufficientPermission = "insufficient_permission"
	ReasonResolutionUnavailable  = "resolution_unavailable"
)

// Denial describes a rejected request.
type Denial struct {
	PrincipalID int64
	Operation   string
	Required    []string
	Reason      string
	// Missing names the first absent permission for insufficient-permission
	// denials. Only the first is recorded.
	Missing string
}

// DenialReporter receives every denied decision exactly once. Implementations
// must not block the response path.
type DenialReporter interface {
	ReportDenied(ctx context.Context, d Denial)
}

// NewDenialReporter builds the production reporter: structured log plus an
// asynchronous audit record. Resolution failures log at error level since
// they signal infrastructure degradation rather than a permission gap.
func NewDenialReporter(logger *slog.Logger, audit *shared.AuditLogger) DenialReporter {
	return &denialReporter{logger: logger, audit: audit}
}

type denialReporter struct {
	logger *slog.Logger
	audit  *shared.AuditLogger
}

func (r *denialReporter) ReportDenied(ctx context.Context, d Denial) {
	attrs := []any{
		slog.Int64("principal", d.PrincipalID),
		slog.String("operation", d.Operation),
		slog.String("required", strings.Join(d.Required, ",")),
		slog.String("reason", d.Reason),
	}
	if d.Missing != "" {
		attrs = append(attrs, slog.String("missing", d.Missing))
	}
	if d.Reason == ReasonResolutionUnavailable {
		r.logger.Error("authorization denied", attrs...)
	} else {
		r.logger.Warn("authorization denied", attrs...)
	}

	if r.audit == nil {
		return
	}
	// Audit persistence must never delay the response. The write runs on a
	// detached context with its own deadline.
	go func(d Denial) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		err := r.audit.Record(ctx, shared.AuditLog{
			ActorID:  d.PrincipalID,
			Action:   "authz.denied",
			Entity:   "operation",
			EntityID: d.Operation,
			Meta: map[string]any{
				"required": d.Required,
				"reason":   d.Reason,
				"missing":  d.Missing,
			},
		})
		if err != nil {
			r.logger.Warn("record denial audit", slog.String("principal", strconv.FormatInt(d.PrincipalID, 10)), slog.Any("error", err))
		}
	}(d)
}
