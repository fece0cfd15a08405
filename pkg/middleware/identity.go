package middleware

import (
	"net/http"
	apperrors "reservo/pkg/errors"
	"reservo/pkg/logger"
	"reservo/pkg/model"
	"reservo/pkg/sanitizer"
)

// Identity reads the caller forwarded by the gateway. Requests without a user id
// are rejected; a missing role defaults to a regular user.
func Identity(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller := model.Caller{
				UserID: sanitizer.SanitizeUserID(r.Header.Get(HeaderUserID)),
				Role:   sanitizer.SanitizeRole(r.Header.Get(HeaderUserRole)),
			}
			if caller.Role == "" {
				caller.Role = model.RoleUser
			}

			if caller.UserID == "" {
				rejectIdentity(w, log, r, "missing "+HeaderUserID+" header")
				return
			}
			if caller.Role != model.RoleAdmin && caller.Role != model.RoleUser {
				rejectIdentity(w, log, r, "unknown role "+caller.Role)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller)))
		})
	}
}

func rejectIdentity(w http.ResponseWriter, log *logger.Logger, r *http.Request, reason string) {
	log.Warn("Caller identity rejected",
		"request_id", requestID(r),
		"reason", reason,
		"path", r.URL.Path,
		"remote_addr", r.RemoteAddr,
	)

	_ = apperrors.WriteError(w, apperrors.Unauthorized("caller identity is required"))
}
