package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"pulsewatch/internal/models"
	"pulsewatch/internal/storage"
)

type ctxKey int

const apiKeyCtxKey ctxKey = iota

// KeyStore resolves API keys.
type KeyStore interface {
	GetAPIKeyByHash(ctx context.Context, hash string) (*models.APIKey, error)
	TouchAPIKey(ctx context.Context, id string, at time.Time) error
}

// APIKeyFromContext returns the key attached by Authenticate.
func APIKeyFromContext(ctx context.Context) *models.APIKey {
	k, _ := ctx.Value(apiKeyCtxKey).(*models.APIKey)
	return k
}

// Authenticate resolves the X-API-Key header, or a bearer token, to an
// active unexpired key and attaches it to the request context.
func Authenticate(keys KeyStore, logger logrus.FieldLogger, now func() time.Time) func(http.Handler) http.Handler {
	log := logger.WithField("component", "auth")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := r.Header.Get("X-API-Key")
			if raw == "" {
				raw = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			}
			if raw == "" {
				writeError(w, http.StatusUnauthorized, "API key required")
				return
			}

			key, err := keys.GetAPIKeyByHash(r.Context(), HashKey(raw))
			if err != nil && !errors.Is(err, storage.ErrNotFound) {
				log.WithError(err).Error("api key lookup failed")
				writeError(w, http.StatusInternalServerError, "internal server error")
				return
			}
			at := now()
			if key == nil || !key.Usable(at) {
				writeError(w, http.StatusUnauthorized, "Invalid or expired API key")
				return
			}
			if err := keys.TouchAPIKey(r.Context(), key.ID, at); err != nil {
				log.WithError(err).WithField("key_id", key.ID).Warn("could not update api key last use")
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), apiKeyCtxKey, key)))
		})
	}
}

// RequireAny rejects requests whose key carries none of perms.
func RequireAny(perms ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := APIKeyFromContext(r.Context())
			if key == nil || !key.HasAny(perms...) {
				writeError(w, http.StatusForbidden, "API key does not have required permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequestLogger logs one line per request.
func RequestLogger(logger logrus.FieldLogger) func(http.Handler) http.Handler {
	log := logger.WithField("component", "http")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.WithFields(logrus.Fields{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      ww.Status(),
				"duration_ms": time.Since(start).Milliseconds(),
				"request_id":  middleware.GetReqID(r.Context()),
			}).Info("request handled")
		})
	}
}
