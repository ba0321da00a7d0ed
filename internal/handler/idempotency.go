package handler

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/boddenberg/ledger-settlement-go/internal/infra/observability"
	"github.com/boddenberg/ledger-settlement-go/internal/port"

	"go.uber.org/zap"
)

const (
	IdempotencyKeyHeader = "Idempotency-Key"
	IdempotencyHitHeader = "X-Idempotency-Hit"
)

// CachedResponse is what the idempotency cache stores per key. A zero
// Status marks a request that is still running.
type CachedResponse struct {
	Status      int
	ContentType string
	Body        []byte
}

// IdempotencyStore is satisfied by cache.InMemory[CachedResponse].
type IdempotencyStore interface {
	port.Cache[CachedResponse]
	SetIfAbsent(key string, value CachedResponse) bool
}

// unknownOutcome is replayed for a key whose first attempt timed out. The
// write may have committed, so the caller must re-read before retrying.
var unknownOutcome = func() CachedResponse {
	body, _ := json.Marshal(errorResponse{
		Error: "a previous request with this Idempotency-Key timed out with an unknown outcome; re-read the ledger before retrying with a new key",
	})
	return CachedResponse{Status: http.StatusConflict, ContentType: "application/json", Body: append(body, '\n')}
}()

// IdempotencyMiddleware replays the recorded response for a repeated
// Idempotency-Key. Keys are scoped by caller, method and path. A 504 pins
// the key to a 409 because the write may have committed; other 5xx
// responses are forgotten so the request can be retried.
func IdempotencyMiddleware(store IdempotencyStore, metrics *observability.Metrics, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(IdempotencyKeyHeader)
			if store == nil || key == "" || r.Method != http.MethodPost {
				next.ServeHTTP(w, r)
				return
			}

			subject := ""
			if p, ok := PrincipalFromContext(r.Context()); ok {
				subject = p.Role + ":" + p.Subject
			}
			scoped := subject + "|" + r.Method + "|" + r.URL.Path + "|" + key

			if !store.SetIfAbsent(scoped, CachedResponse{}) {
				cached, ok := store.Get(scoped)
				switch {
				case ok && cached.Status != 0:
					metrics.IncrIdempotencyHit()
					logger.Debug("idempotent replay", zap.String("path", r.URL.Path))
					w.Header().Set(IdempotencyHitHeader, "true")
					if cached.ContentType != "" {
						w.Header().Set("Content-Type", cached.ContentType)
					}
					w.WriteHeader(cached.Status)
					w.Write(cached.Body)
					return
				case ok:
					writeError(w, http.StatusConflict, "a request with this Idempotency-Key is still in progress")
					return
				}
				// Expired between the two calls; run as a fresh request.
				store.Set(scoped, CachedResponse{})
			}

			defer func() {
				if v := recover(); v != nil {
					store.Delete(scoped)
					panic(v)
				}
			}()

			rec := &recordingWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			switch {
			case rec.status == http.StatusGatewayTimeout:
				logger.Warn("idempotency key pinned after timeout", zap.String("path", r.URL.Path))
				store.Set(scoped, unknownOutcome)
				return
			case rec.status >= 500:
				store.Delete(scoped)
				return
			}
			store.Set(scoped, CachedResponse{
				Status:      rec.status,
				ContentType: rec.Header().Get("Content-Type"),
				Body:        rec.body.Bytes(),
			})
		})
	}
}

// recordingWriter tees the response body while passing it through.
type recordingWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	body        bytes.Buffer
}

func (rw *recordingWriter) WriteHeader(status int) {
	if !rw.wroteHeader {
		rw.status = status
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(status)
}

func (rw *recordingWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	rw.body.Write(b)
	return rw.ResponseWriter.Write(b)
}
