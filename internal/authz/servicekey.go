package authz

import (
	"crypto/sha256"
	"crypto/subtle"
	"log/slog"
	"net/http"

	"github.com/aegis-iam/aegis/internal/platform/httpx"
)

// ServiceKeyHeader carries the static key on service-to-service calls.
const ServiceKeyHeader = "X-Service-Key"

// ServiceKeyGate is an independent checkpoint for trusted service callers.
// It runs before principal extraction and compares the supplied key against a
// single configured secret in constant time. Both sides are hashed first so
// the comparison never short-circuits on length or on the first differing
// byte.
type ServiceKeyGate struct {
	digest [sha256.Size]byte
	logger *slog.Logger
}

// NewServiceKeyGate constructs the gate. An empty secret leaves the gate
// rejecting every request; callers should treat that as misconfiguration.
func NewServiceKeyGate(secret string, logger *slog.Logger) *ServiceKeyGate {
	if secret == "" && logger != nil {
		logger.Warn("service key gate configured with empty secret, all service calls will be rejected")
	}
	return &ServiceKeyGate{digest: sha256.Sum256([]byte(secret)), logger: logger}
}

// Allow reports whether the supplied key matches the configured secret.
func (g *ServiceKeyGate) Allow(key string) bool {
	supplied := sha256.Sum256([]byte(key))
	return subtle.ConstantTimeCompare(supplied[:], g.digest[:]) == 1
}

// Middleware rejects requests whose service key is absent or wrong with a
// generic 401 before any principal work happens.
func (g *ServiceKeyGate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(ServiceKeyHeader)
		if key == "" || !g.Allow(key) {
			if g.logger != nil {
				g.logger.Warn("service key rejected", slog.String("path", r.URL.Path))
			}
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
			return
		}
		next.ServeHTTP(w, r)
	})
}
