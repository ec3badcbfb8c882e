// Package middleware provides HTTP middleware for the storefront API
package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/muraguri00/zalora-luxury/internal/app/domain/profile"
	apperrors "github.com/muraguri00/zalora-luxury/internal/errors"
	"github.com/muraguri00/zalora-luxury/pkg/logger"
	"github.com/muraguri00/zalora-luxury/supabase/client"
)

// ErrInvalidToken is returned by verifiers for tokens they reject.
var ErrInvalidToken = errors.New("invalid token")

// Identity is the subject of a verified bearer token.
type Identity struct {
	UserID string
	Email  string
}

// Verifier turns a bearer token into an identity.
type Verifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

// Claims are the Supabase access-token claims the storefront reads.
type Claims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// JWTVerifier checks HS256 tokens signed with the project JWT secret.
type JWTVerifier struct {
	Secret []byte
}

func (v JWTVerifier) Verify(_ context.Context, token string) (Identity, error) {
	if len(v.Secret) == 0 {
		return Identity{}, fmt.Errorf("%w: no jwt secret configured", ErrInvalidToken)
	}
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.Secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid || claims.Subject == "" {
		return Identity{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return Identity{UserID: claims.Subject, Email: claims.Email}, nil
}

// UserLookup resolves an access token against Supabase Auth.
type UserLookup interface {
	GetUser(ctx context.Context, accessToken string) (*client.User, error)
}

type cachedIdentity struct {
	identity Identity
	expires  time.Time
}

const maxCachedTokens = 10000

// RemoteVerifier asks Supabase Auth for the token's user and caches positive
// answers for ttl.
type RemoteVerifier struct {
	users UserLookup
	ttl   time.Duration
	now   func() time.Time

	mu    sync.Mutex
	cache map[string]cachedIdentity
}

// NewRemoteVerifier creates a verifier. A non-positive ttl disables caching.
func NewRemoteVerifier(users UserLookup, ttl time.Duration) *RemoteVerifier {
	return &RemoteVerifier{
		users: users,
		ttl:   ttl,
		now:   time.Now,
		cache: make(map[string]cachedIdentity),
	}
}

func (v *RemoteVerifier) Verify(ctx context.Context, token string) (Identity, error) {
	if id, ok := v.cached(token); ok {
		return id, nil
	}
	user, err := v.users.GetUser(ctx, token)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	id := Identity{UserID: user.ID, Email: user.Email}
	v.store(token, id)
	return id, nil
}

func (v *RemoteVerifier) cached(token string) (Identity, bool) {
	if v.ttl <= 0 {
		return Identity{}, false
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	entry, ok := v.cache[token]
	if !ok || v.now().After(entry.expires) {
		return Identity{}, false
	}
	return entry.identity, true
}

func (v *RemoteVerifier) store(token string, id Identity) {
	if v.ttl <= 0 {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	now := v.now()
	if len(v.cache) >= maxCachedTokens {
		for k, entry := range v.cache {
			if now.After(entry.expires) {
				delete(v.cache, k)
			}
		}
	}
	if len(v.cache) < maxCachedTokens {
		v.cache[token] = cachedIdentity{identity: id, expires: now.Add(v.ttl)}
	}
}

// Chain tries each verifier in order and returns the first success.
type Chain []Verifier

func (c Chain) Verify(ctx context.Context, token string) (Identity, error) {
	errs := make([]error, 0, len(c))
	for _, v := range c {
		id, err := v.Verify(ctx, token)
		if err == nil {
			return id, nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return Identity{}, fmt.Errorf("%w: no verifier configured", ErrInvalidToken)
	}
	return Identity{}, errors.Join(errs...)
}

// PrincipalResolver maps a verified identity onto the principal that
// operations run as.
type PrincipalResolver interface {
	Resolve(ctx context.Context, id Identity) (*profile.Principal, error)
}

type principalKey struct{}

// WithPrincipal stores p in ctx.
func WithPrincipal(ctx context.Context, p *profile.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the request principal, or nil for anonymous callers.
func PrincipalFrom(ctx context.Context) *profile.Principal {
	p, _ := ctx.Value(principalKey{}).(*profile.Principal)
	return p
}

// AuthMiddleware authenticates bearer tokens. Requests without an
// Authorization header continue anonymously; handlers decide whether that is
// acceptable.
type AuthMiddleware struct {
	verifier Verifier
	resolver PrincipalResolver
	logger   *logger.Logger
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(verifier Verifier, resolver PrincipalResolver, log *logger.Logger) *AuthMiddleware {
	if log == nil {
		log = logger.NewDefault("auth")
	}
	return &AuthMiddleware{verifier: verifier, resolver: resolver, logger: log}
}

// Handler returns the middleware handler
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			next.ServeHTTP(w, r)
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
			writeError(w, http.StatusUnauthorized, "invalid authorization header format")
			return
		}

		id, err := m.verifier.Verify(r.Context(), strings.TrimSpace(parts[1]))
		if err != nil {
			m.logger.WithError(err).WithField("path", r.URL.Path).Warn("token validation failed")
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		principal, err := m.resolver.Resolve(r.Context(), id)
		if err != nil {
			m.logger.WithError(err).WithField("user_id", id.UserID).Warn("resolve principal")
			writeError(w, apperrors.HTTPStatus(err), apperrors.Message(err))
			return
		}

		m.logger.WithField("user_id", principal.UserID).WithField("role", principal.Role).Debug("authentication successful")
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
	})
}

// RequirePrincipal rejects anonymous requests.
func RequirePrincipal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if PrincipalFrom(r.Context()) == nil {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
