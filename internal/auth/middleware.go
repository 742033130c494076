// EVP Stream - Event Ingestion and Processing Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/evp-stream/ingestor

package auth

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/evp-stream/ingestor/internal/apiresponse"
	"github.com/evp-stream/ingestor/internal/logging"
)

type contextKey int

const credentialContextKey contextKey = iota

// APIKeyHeader is the header producers present their key in.
const APIKeyHeader = "x-api-key"

// CredentialFromContext returns the credential attached by Middleware, if
// any.
func CredentialFromContext(ctx context.Context) (Credential, bool) {
	cred, ok := ctx.Value(credentialContextKey).(Credential)
	return cred, ok
}

// Middleware authenticates every request against an x-api-key header,
// looking the hashed key up in store and rejecting missing, unknown,
// revoked, or expired credentials before the request reaches a handler.
func Middleware(store CredentialStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(APIKeyHeader)
			if key == "" {
				apiresponse.WriteError(w, r, http.StatusUnauthorized, apiresponse.ErrCodeMissingAPIKey, "x-api-key header is required")
				return
			}

			cred, err := store.LookupByHash(r.Context(), HashAPIKey(key))
			if err != nil {
				apiresponse.WriteError(w, r, http.StatusUnauthorized, apiresponse.ErrCodeInvalidAPIKey, "api key is not recognized")
				return
			}
			if !cred.Valid(nowFunc()) {
				apiresponse.WriteError(w, r, http.StatusUnauthorized, apiresponse.ErrCodeInvalidAPIKey, "api key is revoked or expired")
				return
			}

			ctx := context.WithValue(r.Context(), credentialContextKey, cred)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RateLimiter issues a per-credential token bucket, so one producer's burst
// cannot starve another's.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

// NewRateLimiter builds a limiter allowing rps sustained requests/sec with
// the given burst, per distinct credential (keyed by user id).
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		rps:      rate.Limit(rps),
		burst:    burst,
	}
}

func (rl *RateLimiter) limiterFor(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	l, ok := rl.limiters[key]
	if !ok {
		l = rate.NewLimiter(rl.rps, rl.burst)
		rl.limiters[key] = l
	}
	return l
}

// Middleware enforces the per-credential rate limit. It must run after
// Middleware (auth) in the chain, since it keys off the authenticated
// credential.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cred, ok := CredentialFromContext(r.Context())
		if !ok {
			logging.Warn().Msg("rate limiter ran before auth middleware, skipping")
			next.ServeHTTP(w, r)
			return
		}
		if !rl.limiterFor(cred.UserID).Allow() {
			apiresponse.WriteError(w, r, http.StatusTooManyRequests, "rate_limited", "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// nowFunc is overridable in tests.
var nowFunc = time.Now
