package httpapi

import (
	"context"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	app "github.com/muraguri00/zalora-luxury/internal/app"
	"github.com/muraguri00/zalora-luxury/internal/app/storage/postgres"
	"github.com/muraguri00/zalora-luxury/internal/middleware"
	"github.com/muraguri00/zalora-luxury/internal/platform/migrations"
	"github.com/muraguri00/zalora-luxury/pkg/logger"
)

// Integration test against Postgres to ensure migrations + core flows work with persistence.
func TestIntegrationPostgres(t *testing.T) {
	_ = godotenv.Load() // allow .env for local runs
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set; skipping Postgres integration")
	}

	ctx := context.Background()
	db, err := postgres.Open(ctx, dsn, 4, 2, time.Minute, 5*time.Second)
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, migrations.Apply(ctx, db.DB))

	application, err := app.New(app.StoresFrom(postgres.New(db)), app.Options{}, logger.NewNop())
	require.NoError(t, err)
	require.NoError(t, application.Start(ctx))
	t.Cleanup(func() { _ = application.Stop(ctx) })

	admin := "admin-" + uuid.NewString()
	store := "store-" + uuid.NewString()
	customer := "cust-" + uuid.NewString()
	f := &fixture{t: t, app: application, handler: NewHandler(application, Options{
		Verifier:     middleware.JWTVerifier{Secret: testSecret},
		AdminUserIDs: []string{admin},
		Logger:       logger.NewNop(),
	})}

	rec := f.do(http.MethodGet, "/v1/profiles/me", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = f.do(http.MethodGet, "/v1/profiles/me", store, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = f.do(http.MethodPut, "/v1/profiles/"+store+"/role", admin, map[string]string{"role": "store"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	productID := f.createProduct(store, "99.50", 2)

	rec = f.do(http.MethodPost, "/v1/orders", customer, map[string]any{"product_id": productID, "quantity": 2})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	orderID := decode[map[string]any](t, rec)["id"].(string)

	rec = f.do(http.MethodPost, "/v1/orders", customer, map[string]any{"product_id": productID, "quantity": 1})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(http.MethodPost, "/v1/orders/"+orderID+"/cancel", customer, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(http.MethodGet, "/v1/products/"+productID, "", nil)
	assert.EqualValues(t, 2, decode[map[string]any](t, rec)["stock"])
}
