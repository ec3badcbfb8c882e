package httpapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	app "github.com/muraguri00/zalora-luxury/internal/app"
	"github.com/muraguri00/zalora-luxury/internal/app/domain/profile"
	"github.com/muraguri00/zalora-luxury/internal/app/idempotency"
	"github.com/muraguri00/zalora-luxury/internal/app/metrics"
	apperrors "github.com/muraguri00/zalora-luxury/internal/errors"
	"github.com/muraguri00/zalora-luxury/internal/middleware"
	"github.com/muraguri00/zalora-luxury/pkg/logger"
)

const maxBodyBytes = 1 << 20

// Options configure the HTTP surface around the application services.
type Options struct {
	// Verifier authenticates bearer tokens. Without one every request is
	// anonymous.
	Verifier middleware.Verifier
	// AdminUserIDs are always resolved as admins.
	AdminUserIDs []string
	// AllowedOrigins feeds CORS and the websocket origin check.
	AllowedOrigins []string

	// OrderRate and OrderBurst limit order creation per principal. A zero
	// rate disables the limit.
	OrderRate  float64
	OrderBurst int
	// OrderLimiter, when set, replaces the limiter built from OrderRate so
	// the caller can run its idle cleanup.
	OrderLimiter *middleware.RateLimiter

	Idempotency    idempotency.Store
	IdempotencyTTL time.Duration

	Logger *logger.Logger
}

// handler bundles HTTP endpoints for the application services.
type handler struct {
	app     *app.Application
	log     *logger.Logger
	origins *middleware.CORSMiddleware
}

// NewHandler returns the storefront REST API.
func NewHandler(application *app.Application, opts Options) http.Handler {
	log := opts.Logger
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	cors := middleware.NewCORSMiddleware(opts.AllowedOrigins)
	h := &handler{app: application, log: log, origins: cors}

	r := mux.NewRouter()
	r.Use(metrics.InstrumentHandler)
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeErrorStatus(w, http.StatusNotFound, "route not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeErrorStatus(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.HandleFunc("/healthz", h.health).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/v1").Subrouter()
	if opts.Idempotency != nil {
		api.Use(idempotency.NewMiddleware(opts.Idempotency, opts.IdempotencyTTL, log.Named("idempotency")).Handler)
	}

	api.HandleFunc("/events", h.events).Methods(http.MethodGet)
	api.HandleFunc("/audit", h.listAudit).Methods(http.MethodGet)

	api.HandleFunc("/products", h.listProducts).Methods(http.MethodGet)
	api.HandleFunc("/products", h.createProduct).Methods(http.MethodPost)
	api.HandleFunc("/products/{id}", h.getProduct).Methods(http.MethodGet)
	api.HandleFunc("/products/{id}", h.updateProduct).Methods(http.MethodPatch)
	api.HandleFunc("/products/{id}", h.deleteProduct).Methods(http.MethodDelete)
	api.HandleFunc("/products/{id}/stock", h.setStock).Methods(http.MethodPut)
	api.HandleFunc("/products/{id}/movements", h.listMovements).Methods(http.MethodGet)

	var createOrder http.Handler = http.HandlerFunc(h.createOrder)
	limiter := opts.OrderLimiter
	if limiter == nil && opts.OrderRate > 0 {
		limiter = middleware.NewRateLimiter(opts.OrderRate, opts.OrderBurst, log.Named("ratelimit"))
	}
	if limiter != nil {
		createOrder = limiter.Handler(createOrder)
	}
	api.HandleFunc("/orders", h.listOrders).Methods(http.MethodGet)
	api.Handle("/orders", createOrder).Methods(http.MethodPost)
	api.HandleFunc("/orders/stats", h.orderStats).Methods(http.MethodGet)
	api.HandleFunc("/orders/{id}", h.getOrder).Methods(http.MethodGet)
	api.HandleFunc("/orders/{id}/status", h.updateOrderStatus).Methods(http.MethodPatch)
	api.HandleFunc("/orders/{id}/cancel", h.cancelOrder).Methods(http.MethodPost)

	api.HandleFunc("/applications", h.listApplications).Methods(http.MethodGet)
	api.HandleFunc("/applications", h.createApplication).Methods(http.MethodPost)
	api.HandleFunc("/applications/mine", h.myApplication).Methods(http.MethodGet)
	api.HandleFunc("/applications/stats", h.applicationStats).Methods(http.MethodGet)
	api.HandleFunc("/applications/{id}", h.getApplication).Methods(http.MethodGet)
	api.HandleFunc("/applications/{id}/review", h.reviewApplication).Methods(http.MethodPost)

	api.HandleFunc("/wallets", h.listWallets).Methods(http.MethodGet)
	api.HandleFunc("/wallets", h.createWallet).Methods(http.MethodPost)
	api.HandleFunc("/wallets/deactivate-type", h.deactivateWalletType).Methods(http.MethodPost)
	api.HandleFunc("/wallets/active/{type}", h.activeWallet).Methods(http.MethodGet)
	api.HandleFunc("/wallets/{id}", h.getWallet).Methods(http.MethodGet)
	api.HandleFunc("/wallets/{id}", h.updateWallet).Methods(http.MethodPatch)
	api.HandleFunc("/wallets/{id}", h.deleteWallet).Methods(http.MethodDelete)
	api.HandleFunc("/wallets/{id}/activate", h.activateWallet).Methods(http.MethodPost)
	api.HandleFunc("/wallets/{id}/deactivate", h.deactivateWallet).Methods(http.MethodPost)

	api.HandleFunc("/profiles", h.listProfiles).Methods(http.MethodGet)
	api.HandleFunc("/profiles/me", h.currentProfile).Methods(http.MethodGet)
	api.HandleFunc("/profiles/stats", h.profileStats).Methods(http.MethodGet)
	api.HandleFunc("/profiles/{id}", h.getProfile).Methods(http.MethodGet)
	api.HandleFunc("/profiles/{id}", h.updateProfile).Methods(http.MethodPatch)
	api.HandleFunc("/profiles/{id}", h.deleteProfile).Methods(http.MethodDelete)
	api.HandleFunc("/profiles/{id}/role", h.updateRole).Methods(http.MethodPut)

	verifier := opts.Verifier
	if verifier == nil {
		verifier = middleware.Chain{}
	}
	auth := middleware.NewAuthMiddleware(verifier, NewProfileResolver(application.Profiles, opts.AdminUserIDs), log.Named("auth"))
	tracing := middleware.NewTracingMiddleware(log.Named("http"))

	return tracing.Handler(cors.Handler(auth.Handler(r)))
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func principal(r *http.Request) *profile.Principal {
	return middleware.PrincipalFrom(r.Context())
}

func pathID(r *http.Request) string {
	return mux.Vars(r)["id"]
}

func queryInt(r *http.Request, key string) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, apperrors.NewValidationError(key, "must be a non-negative integer")
	}
	return n, nil
}

func queryBool(r *http.Request, key string) (bool, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, apperrors.NewValidationError(key, "must be a boolean")
	}
	return b, nil
}

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(io.LimitReader(body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apperrors.NewValidationError("body", fmt.Sprintf("invalid JSON: %v", err))
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (h *handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.log.WithError(err).WithField("path", r.URL.Path).WithField("status", status).Warn("request failed")
	}
	writeErrorStatus(w, status, apperrors.Message(err))
}

func writeErrorStatus(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
