package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/wrenfall/terraclaim/internal/logger"
)

type contextKey string

const userIDKey contextKey = "user_id"

// ActivityRecorder marks a player as active. The defense activity bonus is
// derived from the timestamps recorded here, so every authenticated request
// counts toward it.
type ActivityRecorder interface {
	TouchActivity(ctx context.Context, userID string, at time.Time) error
}

// Middleware validates the Bearer access token, stores the user ID in the
// request context, and records the request as player activity.
func Middleware(jwtMgr *JWTManager, activity ActivityRecorder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				http.Error(w, `{"error":"missing authorization header"}`, http.StatusUnauthorized)
				return
			}

			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				http.Error(w, `{"error":"invalid authorization format"}`, http.StatusUnauthorized)
				return
			}

			claims, err := jwtMgr.ValidateToken(parts[1])
			if err != nil {
				http.Error(w, `{"error":"invalid or expired token"}`, http.StatusUnauthorized)
				return
			}

			if activity != nil {
				if err := activity.TouchActivity(r.Context(), claims.UserID, time.Now()); err != nil {
					log.Warn().Err(err).Str("userId", claims.UserID).
						Str("requestId", logger.RequestIDFromContext(r.Context())).
						Msg("Failed to record request activity")
				}
			}

			ctx := context.WithValue(r.Context(), userIDKey, claims.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserIDFromContext extracts the authenticated user ID from the request context.
func UserIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey).(string)
	return id
}

// SetUserIDForTest injects a user ID for handler tests that bypass the middleware.
func SetUserIDForTest(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}
