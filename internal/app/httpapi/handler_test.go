package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	app "github.com/muraguri00/zalora-luxury/internal/app"
	"github.com/muraguri00/zalora-luxury/internal/app/events"
	"github.com/muraguri00/zalora-luxury/internal/app/idempotency"
	"github.com/muraguri00/zalora-luxury/internal/app/storage/memory"
	"github.com/muraguri00/zalora-luxury/internal/middleware"
	"github.com/muraguri00/zalora-luxury/pkg/logger"
	"github.com/muraguri00/zalora-luxury/pkg/testutil"
)

var testSecret = []byte("storefront-test-secret-with-32-bytes!!")

type fixture struct {
	t       *testing.T
	handler http.Handler
	app     *app.Application
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	application, err := app.New(app.StoresFrom(memory.New()), app.Options{}, logger.NewNop())
	require.NoError(t, err)

	handler := NewHandler(application, Options{
		Verifier:       middleware.JWTVerifier{Secret: testSecret},
		AdminUserIDs:   []string{"admin-1"},
		AllowedOrigins: []string{"*"},
		OrderRate:      1000,
		OrderBurst:     1000,
		Idempotency:    idempotency.NewMemoryStore(),
		IdempotencyTTL: time.Hour,
		Logger:         logger.NewNop(),
	})
	return &fixture{t: t, handler: handler, app: application}
}

func token(t *testing.T, userID string) string {
	t.Helper()
	signed, err := testutil.SignToken(testSecret, userID, time.Hour)
	require.NoError(t, err)
	return signed
}

func (f *fixture) do(method, path, user string, body any, headers ...string) *httptest.ResponseRecorder {
	f.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(f.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("Authorization", "Bearer "+token(f.t, user))
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

// promoteStore registers user as a store owner through the API.
func (f *fixture) promoteStore(user string) {
	f.t.Helper()
	rec := f.do(http.MethodGet, "/v1/profiles/me", user, nil)
	require.Equal(f.t, http.StatusOK, rec.Code, rec.Body.String())
	rec = f.do(http.MethodPut, "/v1/profiles/"+user+"/role", "admin-1", map[string]string{"role": "store"})
	require.Equal(f.t, http.StatusOK, rec.Code, rec.Body.String())
}

func (f *fixture) createProduct(store string, price string, stock int) string {
	f.t.Helper()
	rec := f.do(http.MethodPost, "/v1/products", store, map[string]any{
		"name":     "Silk scarf",
		"price":    price,
		"stock":    stock,
		"category": "accessories",
	})
	require.Equal(f.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[map[string]any](f.t, rec)["id"].(string)
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(middleware.RequestIDHeader))

	rec = f.do(http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodGet, "/v1/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "route not found", decode[map[string]string](t, rec)["error"])
}

func TestAnonymousAndInvalidTokens(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/v1/products", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodPost, "/v1/orders", "", map[string]any{"product_id": "p", "quantity": 1})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(http.MethodGet, "/v1/profiles/me", "", nil, "Authorization", "Bearer garbage")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestOrderLifecycleOverHTTP(t *testing.T) {
	f := newFixture(t)
	f.promoteStore("store-1")
	productID := f.createProduct("store-1", "150.00", 3)

	rec := f.do(http.MethodPost, "/v1/orders", "cust-1", map[string]any{"product_id": productID, "quantity": 2})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[map[string]any](t, rec)
	orderID := created["id"].(string)
	assert.Equal(t, "300", created["total_amount"])
	assert.Equal(t, "60", created["commission"])
	assert.Equal(t, "pending", created["status"])

	rec = f.do(http.MethodGet, "/v1/products/"+productID, "", nil)
	assert.EqualValues(t, 1, decode[map[string]any](t, rec)["stock"])

	rec = f.do(http.MethodPost, "/v1/orders", "cust-1", map[string]any{"product_id": productID, "quantity": 2})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(http.MethodPost, "/v1/orders/"+orderID+"/cancel", "cust-2", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(http.MethodPost, "/v1/orders/"+orderID+"/cancel", "cust-1", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "cancelled", decode[map[string]any](t, rec)["status"])

	rec = f.do(http.MethodGet, "/v1/products/"+productID, "", nil)
	assert.EqualValues(t, 3, decode[map[string]any](t, rec)["stock"])

	rec = f.do(http.MethodPatch, "/v1/orders/"+orderID+"/status", "store-1", map[string]string{"status": "processing"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(http.MethodGet, "/v1/products/"+productID+"/movements", "store-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]map[string]any](t, rec), 2)
}

func TestOrderStatusAndStats(t *testing.T) {
	f := newFixture(t)
	f.promoteStore("store-1")
	productID := f.createProduct("store-1", "100", 10)

	rec := f.do(http.MethodPost, "/v1/orders", "cust-1", map[string]any{"product_id": productID, "quantity": 1})
	require.Equal(t, http.StatusCreated, rec.Code)
	orderID := decode[map[string]any](t, rec)["id"].(string)

	for _, status := range []string{"processing", "completed"} {
		rec = f.do(http.MethodPatch, "/v1/orders/"+orderID+"/status", "store-1", map[string]string{"status": status})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	rec = f.do(http.MethodPatch, "/v1/orders/"+orderID+"/status", "store-1", map[string]string{"status": "shipped"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodGet, "/v1/orders/stats", "store-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[map[string]any](t, rec)
	assert.EqualValues(t, 1, stats["completed"])
	assert.Equal(t, float64(100), stats["revenue"])
	assert.Contains(t, rec.Body.String(), `"revenue":100`)

	rec = f.do(http.MethodGet, "/v1/orders?status=completed", "cust-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]map[string]any](t, rec), 1)
}

func TestOrderIdempotencyHeader(t *testing.T) {
	f := newFixture(t)
	f.promoteStore("store-1")
	productID := f.createProduct("store-1", "10", 5)

	body := map[string]any{"product_id": productID, "quantity": 2}
	first := f.do(http.MethodPost, "/v1/orders", "cust-1", body, idempotency.Header, "retry-1")
	require.Equal(t, http.StatusCreated, first.Code)
	second := f.do(http.MethodPost, "/v1/orders", "cust-1", body, idempotency.Header, "retry-1")
	require.Equal(t, http.StatusCreated, second.Code)

	assert.Equal(t, "true", second.Header().Get(middleware.ReplayHeader))
	assert.Equal(t, decode[map[string]any](t, first)["id"], decode[map[string]any](t, second)["id"])

	rec := f.do(http.MethodGet, "/v1/products/"+productID, "", nil)
	assert.EqualValues(t, 3, decode[map[string]any](t, rec)["stock"])
}

func TestOrderRateLimit(t *testing.T) {
	application, err := app.New(app.Stores{}, app.Options{}, logger.NewNop())
	require.NoError(t, err)
	handler := NewHandler(application, Options{
		Verifier:   middleware.JWTVerifier{Secret: testSecret},
		OrderRate:  0.001,
		OrderBurst: 1,
		Logger:     logger.NewNop(),
	})
	f := &fixture{t: t, handler: handler, app: application}

	rec := f.do(http.MethodPost, "/v1/orders", "cust-1", map[string]any{"product_id": "missing", "quantity": 1})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = f.do(http.MethodPost, "/v1/orders", "cust-1", map[string]any{"product_id": "missing", "quantity": 1})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestApplicationReviewPromotes(t *testing.T) {
	f := newFixture(t)
	fields := map[string]any{
		"business_name":    "Maison Noor",
		"business_email":   "hello@maisonnoor.example",
		"business_phone":   "+62 21 555 0100",
		"business_address": "Jl. Senopati 10, Jakarta",
	}

	rec := f.do(http.MethodPost, "/v1/applications", "cust-9", fields)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	appID := decode[map[string]any](t, rec)["id"].(string)

	rec = f.do(http.MethodPost, "/v1/applications", "cust-9", fields)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(http.MethodGet, "/v1/applications/mine", "cust-9", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodPost, "/v1/applications/"+appID+"/review", "cust-9", map[string]string{"decision": "approved"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(http.MethodPost, "/v1/applications/"+appID+"/review", "admin-1", map[string]string{"decision": "maybe"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPost, "/v1/applications/"+appID+"/review", "admin-1", map[string]string{"decision": "approved"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(http.MethodGet, "/v1/profiles/me", "cust-9", nil)
	assert.Equal(t, "store", decode[map[string]any](t, rec)["role"])

	rec = f.do(http.MethodGet, "/v1/applications/stats", "admin-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decode[map[string]any](t, rec)["approved"])

	rec = f.do(http.MethodGet, "/v1/audit?entity_type=store_application", "admin-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, decode[[]map[string]any](t, rec))
}

func TestWalletEndpoints(t *testing.T) {
	f := newFixture(t)

	create := func(address string) string {
		rec := f.do(http.MethodPost, "/v1/wallets", "admin-1", map[string]any{
			"wallet_address": address,
			"wallet_type":    "USDT",
			"qr_code_url":    "https://cdn.example/qr.png",
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		res := decode[map[string]map[string]any](t, rec)
		return res["wallet"]["id"].(string)
	}
	first := create("TQ1111111111111111111111111111111")
	second := create("TQ2222222222222222222222222222222")

	rec := f.do(http.MethodGet, "/v1/wallets/active/USDT", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, second, decode[map[string]any](t, rec)["id"])

	rec = f.do(http.MethodPost, "/v1/wallets/"+first+"/activate", "admin-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodGet, "/v1/wallets?active=true", "admin-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	active := decode[[]map[string]any](t, rec)
	require.Len(t, active, 1)
	assert.Equal(t, first, active[0]["id"])

	rec = f.do(http.MethodPost, "/v1/wallets/deactivate-type", "admin-1", map[string]string{"wallet_type": "usdt"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decode[map[string]any](t, rec)["deactivated"])

	rec = f.do(http.MethodPost, "/v1/wallets", "cust-1", map[string]any{"wallet_address": "x", "wallet_type": "BTC"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(http.MethodDelete, "/v1/wallets/"+second, "admin-1", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRejectsUnknownFields(t *testing.T) {
	f := newFixture(t)
	rec := f.do(http.MethodPost, "/v1/orders", "cust-1", map[string]any{"product_id": "p", "quantity": 1, "price": "0"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEventsWebsocket(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(f.handler)
	defer srv.Close()

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	u.Scheme = "ws"
	u.Path = "/v1/events"

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token(t, "cust-1"))
	_, resp, err := websocket.DefaultDialer.Dial(u.String(), header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	header.Set("Authorization", "Bearer "+token(t, "admin-1"))
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), header)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return f.app.Events.Subscribers() == 1 }, time.Second, 10*time.Millisecond)
	f.app.Events.Publish(events.Event{Type: events.WalletChanged, EntityID: "w1"})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev events.Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, events.WalletChanged, ev.Type)
	assert.Equal(t, "w1", ev.EntityID)
}

func TestParseAdminIDs(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, ParseAdminIDs(" a, ,b ,"))
	assert.Nil(t, ParseAdminIDs(strings.TrimSpace("  ")))
}
