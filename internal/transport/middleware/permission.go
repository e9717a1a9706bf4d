package middleware

import (
	"log/slog"
	"net/http"
	"slices"

	apperrors "github.com/frahmantamala/coaching-payments/internal"
	"github.com/frahmantamala/coaching-payments/internal/transport"
)

const (
	PermissionReadPayments = "payments:read"
	PermissionAdmin        = "admin"
)

// RequirePermissions lets the request through when the authenticated operator
// holds any of permissions or the admin permission. It must run after
// Authenticate.
func RequirePermissions(lg *slog.Logger, permissions ...string) func(http.Handler) http.Handler {
	base := transport.NewBaseHandler(lg)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				base.HandleError(w, apperrors.ErrMissingToken)
				return
			}

			if !HasAnyPermission(claims.Permissions, slices.Concat(permissions, []string{PermissionAdmin})...) {
				base.Logger.Warn("access denied: operator lacks required permissions",
					"operator", claims.Subject,
					"required_permissions", permissions,
					"operator_permissions", claims.Permissions)
				base.HandleError(w, apperrors.ErrForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func HasAnyPermission(granted []string, required ...string) bool {
	for _, p := range required {
		if slices.Contains(granted, p) {
			return true
		}
	}
	return false
}
