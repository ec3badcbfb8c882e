package idempotency

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/muraguri00/zalora-luxury/internal/middleware"
	"github.com/muraguri00/zalora-luxury/pkg/logger"
)

// Header is the request header carrying the client key.
const Header = "Idempotency-Key"

const maxKeyLength = 255

// Middleware replays completed responses for repeated keys on POST
// requests. Keys are scoped to the principal, method and path. Responses with
// a 5xx status are not kept, so the client may retry them.
type Middleware struct {
	store  Store
	ttl    time.Duration
	logger *logger.Logger
}

// NewMiddleware creates the middleware. ttl bounds both the reservation and
// the stored response.
func NewMiddleware(store Store, ttl time.Duration, log *logger.Logger) *Middleware {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if log == nil {
		log = logger.NewDefault("idempotency")
	}
	return &Middleware{store: store, ttl: ttl, logger: log}
}

func scopedKey(r *http.Request, key string) string {
	subject := "anonymous"
	if p := middleware.PrincipalFrom(r.Context()); p != nil {
		subject = p.UserID
	}
	sum := sha256.Sum256([]byte(subject + "\x00" + r.Method + "\x00" + r.URL.Path + "\x00" + key))
	return hex.EncodeToString(sum[:])
}

// Handler returns the middleware handler
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(Header)
		if key == "" || r.Method != http.MethodPost {
			next.ServeHTTP(w, r)
			return
		}
		if len(key) > maxKeyLength {
			writeJSONError(w, http.StatusBadRequest, "idempotency key too long")
			return
		}

		ctx := r.Context()
		scoped := scopedKey(r, key)
		reserved, err := m.store.Reserve(ctx, scoped, m.ttl)
		if err != nil {
			m.logger.WithError(err).Warn("idempotency store unavailable, serving without replay")
			next.ServeHTTP(w, r)
			return
		}

		if !reserved {
			rec, err := m.store.Load(ctx, scoped)
			switch {
			case errors.Is(err, ErrInProgress):
				writeJSONError(w, http.StatusConflict, "a request with this idempotency key is in progress")
			case err != nil:
				m.logger.WithError(err).Warn("load idempotency record")
				writeJSONError(w, http.StatusServiceUnavailable, "idempotency store unavailable")
			case rec == nil:
				// expired between Reserve and Load
				next.ServeHTTP(w, r)
			default:
				replay(w, rec)
			}
			return
		}

		capture := &recorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(capture, r)

		if capture.status >= http.StatusInternalServerError {
			if err := m.store.Release(ctx, scoped); err != nil {
				m.logger.WithError(err).Warn("release idempotency key")
			}
			return
		}
		rec := Record{
			Status:      capture.status,
			ContentType: capture.Header().Get("Content-Type"),
			Body:        capture.body.Bytes(),
		}
		if err := m.store.Save(ctx, scoped, rec, m.ttl); err != nil {
			m.logger.WithError(err).Warn("save idempotency record")
		}
	})
}

func replay(w http.ResponseWriter, rec *Record) {
	if rec.ContentType != "" {
		w.Header().Set("Content-Type", rec.ContentType)
	}
	w.Header().Set(middleware.ReplayHeader, "true")
	w.WriteHeader(rec.Status)
	_, _ = w.Write(rec.Body)
}

type recorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	body        bytes.Buffer
}

func (r *recorder) WriteHeader(code int) {
	if r.wroteHeader {
		return
	}
	r.status = code
	r.wroteHeader = true
	r.ResponseWriter.WriteHeader(code)
}

func (r *recorder) Write(b []byte) (int, error) {
	if !r.wroteHeader {
		r.WriteHeader(http.StatusOK)
	}
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
