package authz

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/aegis-iam/aegis/internal/platform/httpx"
	"github.com/aegis-iam/aegis/internal/shared"
)

// DecisionRecorder counts gate outcomes; implemented by the observability
// metrics registry.
type DecisionRecorder interface {
	ObserveDecision(outcome, reason string)
}

// Middleware is the request-path authorization gate. Per request it extracts
// the authenticated principal, looks up the operation's required permissions,
// resolves the principal's effective set cache-first, and allows or rejects
// before any handler code runs.
type Middleware struct {
	Service   *Service
	Registry  *Registry
	Reporter  DenialReporter
	Decisions DecisionRecorder
	Logger    *slog.Logger
}

// Protect gates an operation registered in the metadata registry. The
// requirement list is looked up once, when the route is mounted; the registry
// never changes at runtime. Mounting an unregistered operation panics: a
// typo'd identifier must not ship as an authenticated-only route.
func (m Middleware) Protect(operation string) func(http.Handler) http.Handler {
	required, ok := m.Registry.Lookup(operation)
	if !ok {
		panic(fmt.Sprintf("authz: operation %q is not registered", operation))
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principalID, ok := m.currentPrincipal(r)
			if !ok {
				// No principal: deny without spending a cache lookup.
				m.deny(w, r, Denial{Operation: operation, Required: required, Reason: ReasonUnauthenticated})
				return
			}
			if len(required) == 0 {
				m.observe("allowed", "")
				next.ServeHTTP(w, r)
				return
			}
			granted, err := m.Service.EffectivePermissions(r.Context(), principalID)
			if err != nil {
				reason := ReasonResolutionUnavailable
				if !errors.Is(err, ErrResolutionUnavailable) {
					m.Logger.Error("authz unexpected resolution error", slog.Any("error", err))
				}
				m.deny(w, r, Denial{PrincipalID: principalID, Operation: operation, Required: required, Reason: reason})
				return
			}
			if missing, ok := granted.Missing(required); !ok {
				m.deny(w, r, Denial{PrincipalID: principalID, Operation: operation, Required: required, Reason: ReasonInsufficientPermission, Missing: missing})
				return
			}
			m.observe("allowed", "")
			next.ServeHTTP(w, r)
		})
	}
}

func (m Middleware) deny(w http.ResponseWriter, r *http.Request, d Denial) {
	// A caller that already went away gets no side effects; the report is
	// emitted at most once per request and never after cancellation.
	if r.Context().Err() == nil && m.Reporter != nil {
		m.Reporter.ReportDenied(r.Context(), d)
	}
	m.observe("denied", d.Reason)
	// All denial reasons surface identically; the distinction lives only in
	// server-side logs.
	httpx.Problem(w, http.StatusForbidden, "Forbidden", "")
}

func (m Middleware) observe(outcome, reason string) {
	if m.Decisions != nil {
		m.Decisions.ObserveDecision(outcome, reason)
	}
}

func (m Middleware) currentPrincipal(r *http.Request) (int64, bool) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		return 0, false
	}
	raw := strings.TrimSpace(sess.User())
	if raw == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		if m.Logger != nil {
			m.Logger.Error("authz parse principal id", slog.String("value", raw))
		}
		return 0, false
	}
	return id, true
}
