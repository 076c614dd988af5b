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

	"github.com/angelmondragon/vendorlution-backend/api/responses"
	pkgerrors "github.com/angelmondragon/vendorlution-backend/pkg/errors"
	"github.com/angelmondragon/vendorlution-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/vendorlution-backend/pkg/redis"
)

const (
	idempotencyHeader = "Idempotency-Key"
	replayedHeader    = "Idempotent-Replayed"

	defaultIdempotencyTTL = 24 * time.Hour
	moneyIdempotencyTTL   = 7 * 24 * time.Hour
	// inFlightTTL bounds how long a crashed request can hold its key.
	inFlightTTL = 2 * time.Minute
)

type route struct {
	method string
	prefix string
	suffix string
	exact  bool
	ttl    time.Duration
}

func (rt route) matches(method, path string) bool {
	if rt.method != method {
		return false
	}
	if rt.exact {
		return path == rt.prefix
	}
	return strings.HasPrefix(path, rt.prefix) && strings.HasSuffix(path, rt.suffix)
}

// Routes that require an Idempotency-Key. Money movement keeps its record
// for a week.
var idempotentRoutes = []route{
	{method: http.MethodPost, prefix: "/api/v1/cart/items", exact: true, ttl: defaultIdempotencyTTL},
	{method: http.MethodPost, prefix: "/api/v1/wallet/vouchers", exact: true, ttl: defaultIdempotencyTTL},
	{method: http.MethodPost, prefix: "/api/v1/admin/", ttl: defaultIdempotencyTTL},
	{method: http.MethodPost, prefix: "/api/v1/checkout", exact: true, ttl: moneyIdempotencyTTL},
	{method: http.MethodPost, prefix: "/api/v1/wallet/deposits", exact: true, ttl: moneyIdempotencyTTL},
	{method: http.MethodPost, prefix: "/api/v1/wallet/payouts", exact: true, ttl: moneyIdempotencyTTL},
	{method: http.MethodPost, prefix: "/api/v1/orders/", suffix: "/payments", ttl: moneyIdempotencyTTL},
	{method: http.MethodPost, prefix: "/api/v1/orders/", suffix: "/confirm-delivery", ttl: moneyIdempotencyTTL},
}

// storedResponse is what a completed request leaves under its key. A record
// with InFlight set marks a request that is still running.
type storedResponse struct {
	InFlight    bool              `json:"in_flight,omitempty"`
	Status      int               `json:"status,omitempty"`
	Body        string            `json:"body,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	RequestHash string            `json:"request_hash"`
}

// Idempotency replays the first response for a repeated (user, route, key)
// and rejects a key reused with a different body. Server errors release the
// key so the client can retry.
func Idempotency(store pkgredis.IdempotencyStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ttl, ok := routeTTL(r.Method, routePattern(r))
			if !ok || store == nil {
				next.ServeHTTP(w, r)
				return
			}

			clientKey := strings.TrimSpace(r.Header.Get(idempotencyHeader))
			if clientKey == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header required"))
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			guard := &idempotencyGuard{
				store: store,
				logg:  logg,
				key:   store.IdempotencyKey(buildScope(r), clientKey),
				hash:  hashBody(body),
			}
			reserved, existing, err := guard.reserve(r.Context())
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			if !reserved {
				guard.answer(r.Context(), w, existing)
				return
			}

			capture := &responseCapture{ResponseWriter: w}
			defer func() {
				if rec := recover(); rec != nil {
					guard.release(r.Context())
					panic(rec)
				}
			}()
			next.ServeHTTP(capture, r)
			guard.commit(r.Context(), capture, ttl)
		})
	}
}

type idempotencyGuard struct {
	store pkgredis.IdempotencyStore
	logg  *logger.Logger
	key   string
	hash  string
}

// reserve claims the key. When another request already owns it, the stored
// record is returned instead.
func (g *idempotencyGuard) reserve(ctx context.Context) (bool, *storedResponse, error) {
	marker, _ := json.Marshal(storedResponse{InFlight: true, RequestHash: g.hash})
	ok, err := g.store.SetNX(ctx, g.key, string(marker), inFlightTTL)
	if err != nil {
		return false, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve idempotency key")
	}
	if ok {
		return true, nil, nil
	}

	raw, err := g.store.Get(ctx, g.key)
	if errors.Is(err, redis.Nil) {
		// The holder released between our SETNX and GET; ask for a retry.
		return false, &storedResponse{InFlight: true, RequestHash: g.hash}, nil
	}
	if err != nil {
		return false, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency")
	}
	var existing storedResponse
	if err := json.Unmarshal([]byte(raw), &existing); err != nil {
		return false, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency record")
	}
	return false, &existing, nil
}

func (g *idempotencyGuard) answer(ctx context.Context, w http.ResponseWriter, existing *storedResponse) {
	switch {
	case existing.RequestHash != g.hash:
		responses.WriteError(ctx, g.logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body"))
	case existing.InFlight:
		responses.WriteError(ctx, g.logg, w, pkgerrors.New(pkgerrors.CodeConflict, "a request with this idempotency key is still in progress"))
	default:
		writeStoredResponse(w, existing)
	}
}

func (g *idempotencyGuard) commit(ctx context.Context, capture *responseCapture, ttl time.Duration) {
	status := defaultStatus(capture.status)
	if status >= http.StatusInternalServerError {
		g.release(ctx)
		return
	}

	record := storedResponse{
		Status:      status,
		Body:        base64.StdEncoding.EncodeToString(capture.body.Bytes()),
		RequestHash: g.hash,
	}
	if ct := capture.Header().Get("Content-Type"); ct != "" {
		record.Headers = map[string]string{"Content-Type": ct}
	}
	payload, err := json.Marshal(record)
	if err != nil {
		logError(ctx, g.logg, "marshal idempotency record", err)
		g.release(ctx)
		return
	}
	if err := g.store.Set(context.WithoutCancel(ctx), g.key, string(payload), ttl); err != nil {
		logError(ctx, g.logg, "persist idempotency record", err)
	}
}

func (g *idempotencyGuard) release(ctx context.Context) {
	if err := g.store.Del(context.WithoutCancel(ctx), g.key); err != nil {
		logError(ctx, g.logg, "release idempotency key", err)
	}
}

func buildScope(r *http.Request) string {
	return strings.Join([]string{UserIDFromContext(r.Context()), r.Method, routePattern(r)}, "|")
}

func writeStoredResponse(w http.ResponseWriter, record *storedResponse) {
	if ct := record.Headers["Content-Type"]; ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.Header().Set(replayedHeader, "true")
	w.WriteHeader(defaultStatus(record.Status))
	if decoded, err := base64.StdEncoding.DecodeString(record.Body); err == nil {
		_, _ = w.Write(decoded)
	}
}

func hashBody(payload []byte) string {
	sum := sha256.Sum256(payload)
	return base64.StdEncoding.EncodeToString(sum[:])
}

func defaultStatus(value int) int {
	if value == 0 {
		return http.StatusOK
	}
	return value
}

// routePattern is the request path without a trailing slash. Middleware
// mounted on a sub-router only sees a partial chi pattern.
func routePattern(r *http.Request) string {
	if r == nil || r.URL == nil {
		return ""
	}
	if path := strings.TrimSuffix(r.URL.Path, "/"); path != "" {
		return path
	}
	return r.URL.Path
}

func routeTTL(method, path string) (time.Duration, bool) {
	if path == "" {
		return 0, false
	}
	for _, rt := range idempotentRoutes {
		if rt.matches(method, path) {
			return rt.ttl, true
		}
	}
	return 0, false
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (r *responseCapture) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseCapture) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

func logError(ctx context.Context, logg *logger.Logger, msg string, err error) {
	if logg == nil || err == nil {
		return
	}
	logg.Error(ctx, msg, err)
}
