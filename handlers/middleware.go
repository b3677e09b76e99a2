package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/ferreirogomes/nftmarket/auth"
	"github.com/ferreirogomes/nftmarket/models"
	"github.com/ferreirogomes/nftmarket/services"
)

type logCtxKey struct{}

// RequestLogger logs one line per request and exposes a request-scoped
// entry to handlers.
func RequestLogger(log logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			entry := log.WithFields(logrus.Fields{
				"request_id": middleware.GetReqID(r.Context()),
				"method":     r.Method,
				"path":       r.URL.Path,
			})
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r.WithContext(context.WithValue(r.Context(), logCtxKey{}, entry)))

			entry.WithFields(logrus.Fields{
				"status":   ww.Status(),
				"bytes":    ww.BytesWritten(),
				"duration": time.Since(start).String(),
			}).Info("request completed")
		})
	}
}

func loggerFrom(r *http.Request) logrus.FieldLogger {
	if entry, ok := r.Context().Value(logCtxKey{}).(logrus.FieldLogger); ok {
		return entry
	}
	return logrus.StandardLogger()
}

// Authenticate requires a valid bearer token and stores its claims on the
// request context.
func Authenticate(issuer *auth.Issuer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
				writeError(w, r, services.ErrUnauthorized)
				return
			}
			claims, err := issuer.Verify(strings.TrimSpace(token))
			if err != nil {
				writeError(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithClaims(r.Context(), claims)))
		})
	}
}

// UserLookup loads the current state of an account.
type UserLookup interface {
	GetUser(ctx context.Context, id string) (models.User, error)
}

// RequireRole rejects requests whose session lacks role. The role is
// re-read from users, so a demotion takes effect before the token expires.
func RequireRole(role models.Role, users UserLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, _ := auth.ClaimsFrom(r.Context())
			if err := auth.RequireRole(claims, role); err != nil {
				writeError(w, r, err)
				return
			}

			user, err := users.GetUser(r.Context(), claims.UserID)
			if err != nil {
				if errors.Is(err, services.ErrNotFound) {
					err = services.ErrUnauthorized
				}
				writeError(w, r, err)
				return
			}
			current := *claims
			current.Role = user.Role
			if err := auth.RequireRole(&current, role); err != nil {
				writeError(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithClaims(r.Context(), &current)))
		})
	}
}
