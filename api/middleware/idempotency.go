package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tobennaogbu/kobocart-backend/api/responses"
	"github.com/tobennaogbu/kobocart-backend/pkg/config"
	pkgerrors "github.com/tobennaogbu/kobocart-backend/pkg/errors"
	"github.com/tobennaogbu/kobocart-backend/pkg/logger"
	pkgredis "github.com/tobennaogbu/kobocart-backend/pkg/redis"
)

// Cancellations keep their replay window longer than checkout because a
// client retrying a cancel days later must still get the first answer back.
const criticalIdempotencyTTL = 7 * 24 * time.Hour

type idempotencyRule struct {
	method string
	match  func(string) bool
	ttl    time.Duration
}

func idempotencyRules(cfg config.IdempotencyConfig) []idempotencyRule {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return []idempotencyRule{
		{method: http.MethodPost, match: exactPath("/api/v1/orders/pending"), ttl: ttl},
		{method: http.MethodPost, match: wrappedPath("/api/v1/orders/pending/", "/cancel"), ttl: criticalIdempotencyTTL},
		{method: http.MethodPost, match: wrappedPath("/api/v1/orders/", "/cancel"), ttl: criticalIdempotencyTTL},
	}
}

type idempotencyRecord struct {
	Status      int               `json:"status"`
	Body        string            `json:"body"`
	Headers     map[string]string `json:"headers,omitempty"`
	RequestHash string            `json:"request_hash"`
}

type idempotencyGuard struct {
	rules []idempotencyRule
	store pkgredis.IdempotencyStore
	logg  *logger.Logger
}

// Idempotency replays the stored first response when a client retries a
// covered mutation with the same Idempotency-Key and body. A reused key with
// a different body is rejected. Rules match the concrete request path, not
// the chi pattern: Use-attached middleware runs before the route is
// resolved.
func Idempotency(cfg config.IdempotencyConfig, store pkgredis.IdempotencyStore, logg *logger.Logger) func(http.Handler) http.Handler {
	guard := &idempotencyGuard{
		rules: idempotencyRules(cfg),
		store: store,
		logg:  logg,
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			guard.handle(w, r, next)
		})
	}
}

func (g *idempotencyGuard) handle(w http.ResponseWriter, r *http.Request, next http.Handler) {
	ttl, covered := g.routeTTL(r.Method, r.URL.Path)
	if !covered || g.store == nil {
		next.ServeHTTP(w, r)
		return
	}
	clientKey := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if clientKey == "" {
		next.ServeHTTP(w, r)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		responses.WriteError(r.Context(), g.logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request"))
		return
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	requestHash := hashBody(body)
	key := g.store.IdempotencyKey(requestScope(r), clientKey)

	if replayed := g.tryReplay(w, r, key, requestHash); replayed {
		return
	}

	capture := &responseCapture{ResponseWriter: w}
	next.ServeHTTP(capture, r)
	g.record(r.Context(), key, requestHash, capture, ttl)
}

// tryReplay serves the stored first response if one exists. It reports true
// when it wrote anything, including the mismatched-body rejection.
func (g *idempotencyGuard) tryReplay(w http.ResponseWriter, r *http.Request, key, requestHash string) bool {
	stored, err := g.store.Get(r.Context(), key)
	if err != nil && !errors.Is(err, redis.Nil) {
		responses.WriteError(r.Context(), g.logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
		return true
	}
	if stored == "" {
		return false
	}

	var record idempotencyRecord
	if err := json.Unmarshal([]byte(stored), &record); err != nil {
		responses.WriteError(r.Context(), g.logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency record"))
		return true
	}
	if record.RequestHash != requestHash {
		responses.WriteError(r.Context(), g.logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body"))
		return true
	}

	if ct := record.Headers["Content-Type"]; ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.WriteHeader(record.Status)
	if decoded, err := base64.StdEncoding.DecodeString(record.Body); err == nil {
		_, _ = w.Write(decoded)
	}
	return true
}

// record stores the captured response for later replays. Storage failures
// are logged, not surfaced: the client already has its answer.
func (g *idempotencyGuard) record(ctx context.Context, key, requestHash string, capture *responseCapture, ttl time.Duration) {
	status := capture.status
	if status == 0 {
		status = http.StatusOK
	}
	record := idempotencyRecord{
		Status:      status,
		Body:        base64.StdEncoding.EncodeToString(capture.body.Bytes()),
		RequestHash: requestHash,
	}
	if ct := capture.Header().Get("Content-Type"); ct != "" {
		record.Headers = map[string]string{"Content-Type": ct}
	}

	payload, err := json.Marshal(record)
	if err != nil {
		g.logFailure(ctx, "marshal idempotency record", err)
		return
	}
	if _, err := g.store.SetNX(ctx, key, string(payload), ttl); err != nil {
		g.logFailure(ctx, "persist idempotency record", err)
	}
}

func (g *idempotencyGuard) routeTTL(method, path string) (time.Duration, bool) {
	if path == "" {
		return 0, false
	}
	for _, rule := range g.rules {
		if rule.method == method && rule.match(path) {
			return rule.ttl, true
		}
	}
	return 0, false
}

func (g *idempotencyGuard) logFailure(ctx context.Context, msg string, err error) {
	if g.logg == nil || err == nil {
		return
	}
	g.logg.Error(ctx, msg, err)
}

// requestScope ties the stored response to who asked for what, so the same
// client key on a different route or account never collides.
func requestScope(r *http.Request) string {
	return strings.Join([]string{
		UserIDFromContext(r.Context()),
		r.Method,
		r.URL.Path,
	}, "|")
}

func hashBody(payload []byte) string {
	sum := sha256.Sum256(payload)
	return base64.StdEncoding.EncodeToString(sum[:])
}

func exactPath(want string) func(string) bool {
	return func(path string) bool {
		return path == want
	}
}

func wrappedPath(prefix, suffix string) func(string) bool {
	return func(path string) bool {
		return strings.HasPrefix(path, prefix) &&
			strings.HasSuffix(path, suffix) &&
			len(path) > len(prefix)+len(suffix)
	}
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (r *responseCapture) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseCapture) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}
