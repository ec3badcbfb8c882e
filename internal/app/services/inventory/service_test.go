package inventory

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muraguri00/zalora-luxury/internal/app/domain/product"
	"github.com/muraguri00/zalora-luxury/internal/app/domain/profile"
	"github.com/muraguri00/zalora-luxury/internal/app/events"
	"github.com/muraguri00/zalora-luxury/internal/app/storage/memory"
	apperrors "github.com/muraguri00/zalora-luxury/internal/errors"
	"github.com/muraguri00/zalora-luxury/pkg/logger"
)

var (
	owner    = &profile.Principal{UserID: "store-1", Role: profile.RoleStore}
	rival    = &profile.Principal{UserID: "store-2", Role: profile.RoleStore}
	admin    = &profile.Principal{UserID: "admin", Role: profile.RoleAdmin}
	customer = &profile.Principal{UserID: "buyer", Role: profile.RoleCustomer}
)

func newService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	store := memory.New()
	return New(store, logger.NewNop()), store
}

func TestCreateProductAssignsOwnStore(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	p, err := svc.CreateProduct(ctx, owner, ProductInput{Name: "  Leather tote ", Price: decimal.NewFromInt(250), Stock: 4, StoreID: "someone-else"})
	require.NoError(t, err)
	assert.Equal(t, "Leather tote", p.Name)
	assert.Equal(t, "store-1", p.StoreID)
	assert.Equal(t, product.StatusActive, p.Status)

	byAdmin, err := svc.CreateProduct(ctx, admin, ProductInput{Name: "Clutch", Price: decimal.NewFromInt(90), StoreID: "store-9"})
	require.NoError(t, err)
	assert.Equal(t, "store-9", byAdmin.StoreID)
}

func TestCreateProductValidation(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	tests := []struct {
		name string
		in   ProductInput
	}{
		{"missing name", ProductInput{Price: decimal.NewFromInt(1)}},
		{"negative price", ProductInput{Name: "x", Price: decimal.NewFromInt(-1)}},
		{"negative stock", ProductInput{Name: "x", Stock: -2}},
		{"bad status", ProductInput{Name: "x", Status: "archived"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateProduct(ctx, owner, tt.in)
			assert.True(t, apperrors.IsValidationError(err), "got %v", err)
		})
	}

	_, err := svc.CreateProduct(ctx, customer, ProductInput{Name: "x"})
	assert.True(t, apperrors.IsForbidden(err))
	_, err = svc.CreateProduct(ctx, nil, ProductInput{Name: "x"})
	assert.True(t, apperrors.IsAuthenticationRequired(err))
}

func TestOwnershipEnforced(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	p, err := svc.CreateProduct(ctx, owner, ProductInput{Name: "Scarf", Price: decimal.NewFromInt(40), Stock: 3})
	require.NoError(t, err)

	name := "Stolen"
	_, err = svc.UpdateProduct(ctx, rival, p.ID, ProductPatch{Name: &name})
	assert.True(t, apperrors.IsForbidden(err))
	_, err = svc.SetStock(ctx, rival, p.ID, 100)
	assert.True(t, apperrors.IsForbidden(err))
	assert.True(t, apperrors.IsForbidden(svc.DeleteProduct(ctx, rival, p.ID)))

	updated, err := svc.UpdateProduct(ctx, admin, p.ID, ProductPatch{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Stolen", updated.Name)
	assert.Equal(t, 3, updated.Stock)
}

func TestDecrementAndIncrement(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()
	hub := events.NewHub(8, logger.NewNop())
	ch, cancel := hub.Subscribe(nil)
	defer cancel()
	svc.AttachObservers(nil, hub)

	p, err := svc.CreateProduct(ctx, owner, ProductInput{Name: "Belt", Price: decimal.NewFromInt(60), Stock: 5})
	require.NoError(t, err)

	got, err := svc.Decrement(ctx, owner, p.ID, 2, "restock-fix-1")
	require.NoError(t, err)
	assert.Equal(t, 3, got.Stock)

	got, err = svc.Decrement(ctx, owner, p.ID, 2, "restock-fix-1")
	require.NoError(t, err)
	assert.Equal(t, 3, got.Stock, "repeated key must not decrement twice")

	_, err = svc.Decrement(ctx, owner, p.ID, 4, "")
	assert.True(t, apperrors.IsInsufficientStock(err))

	got, err = svc.Increment(ctx, owner, p.ID, 7, "", "delivery-42")
	require.NoError(t, err)
	assert.Equal(t, 10, got.Stock)

	moves, err := svc.Movements(ctx, owner, p.ID)
	require.NoError(t, err)
	require.Len(t, moves, 2)
	assert.Equal(t, product.ReasonRestock, moves[0].Reason)
	assert.Equal(t, -2, moves[1].Delta)

	stored, _ := store.GetProduct(ctx, p.ID)
	assert.Equal(t, 10, stored.Stock)
	assert.Len(t, ch, 3, "replayed keys still report the current stock")
}

func TestIncrementRejectsOverflow(t *testing.T) {
	svc, store := newService(t)
	ctx := context.Background()
	p, err := svc.CreateProduct(ctx, owner, ProductInput{Name: "Gloves", Price: decimal.NewFromInt(80), Stock: 10})
	require.NoError(t, err)

	_, err = svc.Increment(ctx, owner, p.ID, product.MaxStock+1, "", "")
	assert.True(t, apperrors.IsValidationError(err))

	_, err = svc.Increment(ctx, owner, p.ID, product.MaxStock-5, "", "")
	assert.True(t, apperrors.IsValidationError(err), "10 + MaxStock-5 is past the bound")

	stored, _ := store.GetProduct(ctx, p.ID)
	assert.Equal(t, 10, stored.Stock)

	got, err := svc.Increment(ctx, owner, p.ID, product.MaxStock-10, "", "")
	require.NoError(t, err)
	assert.Equal(t, product.MaxStock, got.Stock)
}

func TestSetStock(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	p, err := svc.CreateProduct(ctx, owner, ProductInput{Name: "Watch", Price: decimal.NewFromInt(900), Stock: 1})
	require.NoError(t, err)

	got, err := svc.SetStock(ctx, owner, p.ID, 12)
	require.NoError(t, err)
	assert.Equal(t, 12, got.Stock)
	assert.False(t, got.UpdatedAt.Before(p.UpdatedAt))

	_, err = svc.SetStock(ctx, owner, p.ID, -1)
	assert.True(t, apperrors.IsValidationError(err))
	_, err = svc.SetStock(ctx, owner, p.ID, product.MaxStock+1)
	assert.True(t, apperrors.IsValidationError(err))
}

func TestAvailable(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	p, err := svc.CreateProduct(ctx, owner, ProductInput{Name: "Ring", Price: decimal.NewFromInt(500), Stock: 2})
	require.NoError(t, err)

	_, err = svc.Available(ctx, "missing", 1)
	assert.True(t, apperrors.IsNotFound(err))
	_, err = svc.Available(ctx, p.ID, 3)
	assert.True(t, apperrors.IsInsufficientStock(err))
	_, err = svc.Available(ctx, p.ID, 0)
	assert.True(t, apperrors.IsValidationError(err))

	inactive := product.StatusInactive
	_, err = svc.UpdateProduct(ctx, owner, p.ID, ProductPatch{Status: &inactive})
	require.NoError(t, err)
	_, err = svc.Available(ctx, p.ID, 1)
	assert.True(t, apperrors.IsInvalidState(err))
}

func TestListProductsFilters(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	_, _ = svc.CreateProduct(ctx, owner, ProductInput{Name: "A", Category: "bags"})
	_, _ = svc.CreateProduct(ctx, owner, ProductInput{Name: "B", Category: "shoes"})
	_, _ = svc.CreateProduct(ctx, rival, ProductInput{Name: "C", Category: "bags"})

	bags, err := svc.ListProducts(ctx, product.Filter{Category: "bags"})
	require.NoError(t, err)
	require.Len(t, bags, 2)
	assert.Equal(t, "C", bags[0].Name, "newest first")

	mine, _ := svc.ListProducts(ctx, product.Filter{StoreID: "store-1"})
	assert.Len(t, mine, 2)
}
