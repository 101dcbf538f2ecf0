package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/render"

	apperrors "keygate/internal/errors"
	"keygate/internal/identity"
	"keygate/internal/infrastructure"
)

// BearerAuth verifies the Authorization bearer token through the identity
// verifier and stores the resulting user id in the request context. No
// workflow is reached with an unverified identity.
func BearerAuth(verifier identity.Verifier, logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			token := bearerToken(r)
			userID, err := verifier.Verify(ctx, token)
			if err != nil {
				logger.WarnContext(ctx, "bearer authentication failed",
					"method", r.Method,
					"path", r.URL.Path,
					"remote_addr", r.RemoteAddr,
				)
				renderAuthFailure(w, r)
				return
			}

			ctx = infrastructure.WithUserID(ctx, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SharedSecret guards the trusted-peer routes (plan activation from the
// payment system). The secret travels in X-Webhook-Secret and is compared
// in constant time; absent or mismatched values are indistinguishable to
// the caller.
func SharedSecret(secret string, logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			provided := r.Header.Get("X-Webhook-Secret")

			if subtle.ConstantTimeCompare([]byte(provided), []byte(secret)) != 1 {
				logger.WarnContext(r.Context(), "shared secret rejected",
					"method", r.Method,
					"path", r.URL.Path,
					"remote_addr", r.RemoteAddr,
				)
				renderAuthFailure(w, r)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		return header[7:]
	}
	return ""
}

func renderAuthFailure(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	pd := apperrors.MapLifecycleError(apperrors.ErrAuthenticationFailed,
		infrastructure.GetTraceID(ctx), r.URL.Path)
	render.Render(w, r, pd)
}
