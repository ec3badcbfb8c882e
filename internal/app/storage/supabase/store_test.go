package supabase

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muraguri00/zalora-luxury/internal/app/domain/application"
	"github.com/muraguri00/zalora-luxury/internal/app/domain/audit"
	"github.com/muraguri00/zalora-luxury/internal/app/domain/order"
	"github.com/muraguri00/zalora-luxury/internal/app/domain/product"
	"github.com/muraguri00/zalora-luxury/internal/app/domain/profile"
	"github.com/muraguri00/zalora-luxury/internal/app/domain/wallet"
	apperrors "github.com/muraguri00/zalora-luxury/internal/errors"
)

func seedProduct(t *testing.T, s *Store, stock int) product.Product {
	t.Helper()
	p, err := s.CreateProduct(context.Background(), product.Product{
		Name:     "Quilted bag",
		Price:    decimal.NewFromInt(50),
		Category: "bags",
		StoreID:  "s1",
		Stock:    stock,
		Status:   product.StatusActive,
	})
	require.NoError(t, err)
	return p
}

func placeOrder(t *testing.T, s *Store, p product.Product, qty int, key string) (order.Order, error) {
	t.Helper()
	return s.PlaceOrder(context.Background(), order.Order{
		UserID:         "u1",
		ProductID:      p.ID,
		StoreID:        p.StoreID,
		Quantity:       qty,
		TotalAmount:    p.Price.Mul(decimal.NewFromInt(int64(qty))),
		IdempotencyKey: key,
	})
}

func intentStatuses(f *fakePostgREST) map[string]int {
	out := map[string]int{}
	for _, r := range f.rows(tableIntents) {
		out[r["kind"].(string)+":"+r["status"].(string)]++
	}
	return out
}

func TestProductCRUD(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	p := seedProduct(t, s, 5)
	got, err := s.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Quilted bag", got.Name)
	assert.True(t, got.Price.Equal(decimal.NewFromInt(50)))

	second := seedProduct(t, s, 1)
	list, err := s.ListProducts(ctx, product.Filter{StoreID: "s1", Category: "bags"})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID, "newest first")

	got.Name = "Renamed"
	got.Stock = 99
	updated, err := s.UpdateProduct(ctx, got)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Name)
	assert.Equal(t, 5, updated.Stock, "stock is not touched by updates")

	require.NoError(t, s.DeleteProduct(ctx, p.ID))
	_, err = s.GetProduct(ctx, p.ID)
	assert.True(t, apperrors.IsNotFound(err))
	assert.True(t, apperrors.IsNotFound(s.DeleteProduct(ctx, p.ID)))
}

func TestAdjustStock(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	p := seedProduct(t, s, 5)

	after, err := s.AdjustStock(ctx, product.Adjustment{ProductID: p.ID, Delta: -2, Reason: product.ReasonAdjust, IdempotencyKey: "k1"})
	require.NoError(t, err)
	assert.Equal(t, 3, after.Stock)

	replay, err := s.AdjustStock(ctx, product.Adjustment{ProductID: p.ID, Delta: -2, Reason: product.ReasonAdjust, IdempotencyKey: "k1"})
	require.NoError(t, err)
	assert.Equal(t, 3, replay.Stock)

	_, err = s.AdjustStock(ctx, product.Adjustment{ProductID: p.ID, Delta: -4, Reason: product.ReasonAdjust})
	var short *apperrors.InsufficientStockError
	require.ErrorAs(t, err, &short)
	assert.Equal(t, 3, short.Available)

	_, err = s.AdjustStock(ctx, product.Adjustment{ProductID: "missing", Delta: 1})
	assert.True(t, apperrors.IsNotFound(err))

	set, err := s.SetStock(ctx, p.ID, 10, "recount")
	require.NoError(t, err)
	assert.Equal(t, 10, set.Stock)

	moves, err := s.ListMovements(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, moves, 2)
	assert.Equal(t, product.ReasonRestock, moves[0].Reason)
	assert.Equal(t, 7, moves[0].Delta)
	assert.Equal(t, -2, moves[1].Delta)
}

func TestAdjustStockRetriesWhenStockMovedUnderneath(t *testing.T) {
	s, fake := newTestStore(t)
	p := seedProduct(t, s, 5)
	fake.beforeP["PATCH "+tableProducts] = func(f *fakePostgREST) {
		f.setLocked(tableProducts, p.ID, "stock", 4)
	}

	after, err := s.AdjustStock(context.Background(), product.Adjustment{ProductID: p.ID, Delta: -2, Reason: product.ReasonOrder})
	require.NoError(t, err)
	assert.Equal(t, 2, after.Stock, "the second attempt applies the delta to the concurrent value")
}

func TestAdjustStockGivesUpAfterBoundedAttempts(t *testing.T) {
	s, fake := newTestStore(t, WithCASAttempts(1))
	p := seedProduct(t, s, 5)
	fake.beforeP["PATCH "+tableProducts] = func(f *fakePostgREST) {
		f.setLocked(tableProducts, p.ID, "stock", 4)
	}
	_, err := s.AdjustStock(context.Background(), product.Adjustment{ProductID: p.ID, Delta: -1})
	assert.True(t, apperrors.IsStoreFailure(err))
}

func TestPlaceOrderReservesStockAndReplaysKeys(t *testing.T) {
	s, fake := newTestStore(t)
	ctx := context.Background()
	p := seedProduct(t, s, 10)

	o, err := placeOrder(t, s, p, 3, "checkout-1")
	require.NoError(t, err)
	assert.Equal(t, order.StatusPending, o.Status)
	assert.True(t, o.TotalAmount.Equal(decimal.NewFromInt(150)))

	again, err := placeOrder(t, s, p, 3, "checkout-1")
	require.NoError(t, err)
	assert.Equal(t, o.ID, again.ID)

	current, err := s.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 7, current.Stock)

	_, err = placeOrder(t, s, p, 8, "")
	assert.True(t, apperrors.IsInsufficientStock(err))

	assert.Equal(t, map[string]int{"order.place:done": 1, "order.place:compensated": 1}, intentStatuses(fake))
}

func TestPlaceOrderReleasesReservationWhenInsertFails(t *testing.T) {
	s, fake := newTestStore(t)
	ctx := context.Background()
	p := seedProduct(t, s, 5)
	fake.fail["POST "+tableOrders] = 1

	_, err := placeOrder(t, s, p, 2, "")
	require.Error(t, err)
	assert.True(t, apperrors.IsStoreFailure(err))

	current, err := s.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, current.Stock)
	assert.Empty(t, fake.rows(tableOrders))
	assert.Equal(t, map[string]int{"order.place:compensated": 1}, intentStatuses(fake))
}

func TestOrderTransitionsAndCancel(t *testing.T) {
	s, fake := newTestStore(t)
	ctx := context.Background()
	p := seedProduct(t, s, 5)
	o, err := placeOrder(t, s, p, 2, "")
	require.NoError(t, err)

	proof := "tx-hash"
	_, err = s.TransitionOrder(ctx, o.ID, order.StatusProcessing, order.StatusCompleted, nil)
	assert.True(t, apperrors.IsInvalidState(err), "stored status is pending")

	cancelled, err := s.CancelOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusCancelled, cancelled.Status)
	current, _ := s.GetProduct(ctx, p.ID)
	assert.Equal(t, 5, current.Stock)

	_, err = s.CancelOrder(ctx, o.ID)
	assert.True(t, apperrors.IsInvalidState(err))

	second, err := placeOrder(t, s, p, 1, "")
	require.NoError(t, err)
	moved, err := s.TransitionOrder(ctx, second.ID, order.StatusPending, order.StatusProcessing, &proof)
	require.NoError(t, err)
	assert.Equal(t, order.StatusProcessing, moved.Status)
	require.NotNil(t, moved.PaymentProof)
	assert.Equal(t, proof, *moved.PaymentProof)

	list, err := s.ListOrders(ctx, order.Filter{UserID: "u1", Status: order.StatusProcessing})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, second.ID, list[0].ID)

	assert.Equal(t, 1, intentStatuses(fake)["order.cancel:done"])
}

func TestReconcileResolvesStaleIntents(t *testing.T) {
	s, fake := newTestStore(t)
	ctx := context.Background()
	stale := "2025-03-01T11:00:00Z"

	// A placement that reserved stock and crashed before the order insert.
	lost := seedProduct(t, s, 5)
	fake.set(tableProducts, lost.ID, "stock", 3)
	fake.seed(tableMovements, row{"id": "m1", "product_id": lost.ID, "delta": -2, "reason": "order", "idempotency_key": "order:o-lost", "created_at": stale})
	fake.seed(tableIntents, row{"id": "i1", "kind": kindPlaceOrder, "step": stepReserved, "status": intentPending, "created_at": stale,
		"payload": row{"order": row{"id": "o-lost", "product_id": lost.ID, "quantity": 2, "user_id": "u1"}}})

	// A placement whose order landed but whose intent was never closed.
	p := seedProduct(t, s, 5)
	landed, err := placeOrder(t, s, p, 1, "")
	require.NoError(t, err)
	fake.seed(tableIntents, row{"id": "i2", "kind": kindPlaceOrder, "step": stepReserved, "status": intentPending, "created_at": stale,
		"payload": row{"order": row{"id": landed.ID, "product_id": p.ID, "quantity": 1}}})

	// A cancellation that flipped the status but never restored stock.
	cancelled, err := placeOrder(t, s, p, 2, "")
	require.NoError(t, err)
	fake.set(tableOrders, cancelled.ID, "status", "cancelled")
	fake.seed(tableIntents, row{"id": "i3", "kind": kindCancelOrder, "step": stepCancelled, "status": intentPending, "created_at": stale,
		"payload": row{"order_id": cancelled.ID, "product_id": p.ID, "quantity": 2}})

	// An approval that never promoted the applicant.
	_, err = s.CreateProfile(ctx, profile.Profile{ID: "u2", Email: "shop@example.com"})
	require.NoError(t, err)
	fake.seed(tableApplications, row{"id": "a1", "user_id": "u2", "status": "approved", "created_at": stale})
	fake.seed(tableIntents, row{"id": "i4", "kind": kindReviewApplication, "step": stepReviewed, "status": intentPending, "created_at": stale,
		"payload": row{"application_id": "a1", "user_id": "u2"}})

	fake.seed(tableIntents, row{"id": "i5", "kind": "mystery", "status": intentPending, "created_at": stale, "payload": row{}})

	report, err := s.Reconcile(ctx, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 5, report.Scanned)
	assert.Equal(t, 3, report.Completed)
	assert.Equal(t, 1, report.Compensated)
	assert.Equal(t, 1, report.Failed)

	restored, _ := s.GetProduct(ctx, lost.ID)
	assert.Equal(t, 5, restored.Stock)
	rolledForward, _ := s.GetProduct(ctx, p.ID)
	assert.Equal(t, 4, rolledForward.Stock, "one unit stays reserved by the landed order")
	promoted, _ := s.GetProfile(ctx, "u2")
	assert.Equal(t, profile.RoleStore, promoted.Role)

	again, err := s.Reconcile(ctx, time.Minute)
	require.NoError(t, err)
	assert.Zero(t, again.Scanned, "resolved intents are closed")
}

func TestCancelDefersRestockToReconcile(t *testing.T) {
	s, fake := newTestStore(t)
	ctx := context.Background()
	p := seedProduct(t, s, 5)
	o, err := placeOrder(t, s, p, 2, "")
	require.NoError(t, err)

	fake.fail["PATCH "+tableProducts] = 1
	cancelled, err := s.CancelOrder(ctx, o.ID)
	require.NoError(t, err, "the status change already landed")
	assert.Equal(t, order.StatusCancelled, cancelled.Status)

	held, _ := s.GetProduct(ctx, p.ID)
	assert.Equal(t, 3, held.Stock)
	assert.Equal(t, 1, intentStatuses(fake)[kindCancelOrder+":"+intentPending])

	report, err := s.Reconcile(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Completed)
	restored, _ := s.GetProduct(ctx, p.ID)
	assert.Equal(t, 5, restored.Stock)
	assert.Equal(t, 1, intentStatuses(fake)[kindCancelOrder+":"+intentDone])
}

func TestApproveDefersPromotionToReconcile(t *testing.T) {
	s, fake := newTestStore(t)
	ctx := context.Background()
	_, err := s.CreateProfile(ctx, profile.Profile{ID: "u1", Email: "a@example.com"})
	require.NoError(t, err)
	app, err := s.CreateApplication(ctx, application.Application{UserID: "u1", BusinessName: "Maison", BusinessEmail: "m@example.com", BusinessPhone: "1", BusinessAddress: "Nairobi"})
	require.NoError(t, err)

	fake.fail["PATCH "+tableProfiles] = 1
	reviewed, err := s.ReviewApplication(ctx, app.ID, application.Review{Decision: application.StatusApproved, ReviewerID: "admin"})
	require.NoError(t, err, "the review already landed")
	assert.Equal(t, application.StatusApproved, reviewed.Status)

	pending, _ := s.GetProfile(ctx, "u1")
	assert.Equal(t, profile.RoleCustomer, pending.Role)
	assert.Equal(t, 1, intentStatuses(fake)[kindReviewApplication+":"+intentPending])

	report, err := s.Reconcile(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Completed)
	promoted, _ := s.GetProfile(ctx, "u1")
	assert.Equal(t, profile.RoleStore, promoted.Role)
	assert.Equal(t, 1, intentStatuses(fake)[kindReviewApplication+":"+intentDone])
}

func TestApplications(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	_, err := s.CreateProfile(ctx, profile.Profile{ID: "u1", Email: "a@example.com"})
	require.NoError(t, err)

	app, err := s.CreateApplication(ctx, application.Application{UserID: "u1", BusinessName: "Maison", BusinessEmail: "m@example.com", BusinessPhone: "1", BusinessAddress: "Nairobi"})
	require.NoError(t, err)
	_, err = s.CreateApplication(ctx, application.Application{UserID: "u1", BusinessName: "Again"})
	assert.True(t, apperrors.IsDuplicatePending(err))

	reviewed, err := s.ReviewApplication(ctx, app.ID, application.Review{Decision: application.StatusApproved, ReviewerID: "admin"})
	require.NoError(t, err)
	assert.Equal(t, application.StatusApproved, reviewed.Status)
	require.NotNil(t, reviewed.ReviewedBy)
	assert.Equal(t, "admin", *reviewed.ReviewedBy)

	p, err := s.GetProfile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, profile.RoleStore, p.Role)

	_, err = s.ReviewApplication(ctx, app.ID, application.Review{Decision: application.StatusRejected, ReviewerID: "admin"})
	assert.True(t, apperrors.IsInvalidState(err))

	second, err := s.CreateApplication(ctx, application.Application{UserID: "u1", BusinessName: "Second"})
	require.NoError(t, err, "a reviewed application does not block a new one")
	rejected, err := s.ReviewApplication(ctx, second.ID, application.Review{Decision: application.StatusRejected, ReviewerID: "admin"})
	require.NoError(t, err)
	assert.Equal(t, application.StatusRejected, rejected.Status)

	list, err := s.ListApplications(ctx, application.Filter{UserID: "u1"})
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestWalletsKeepOneActivePerType(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	a, err := s.CreateWallet(ctx, wallet.Setting{Address: "bc1-a", Type: "Bitcoin", Active: true})
	require.NoError(t, err)
	b, err := s.CreateWallet(ctx, wallet.Setting{Address: "bc1-b", Type: "bitcoin", Active: true})
	require.NoError(t, err)

	prev, err := s.GetWallet(ctx, a.ID)
	require.NoError(t, err)
	assert.False(t, prev.Active, "creating an active wallet deactivates the type")

	active, err := s.ActiveWallet(ctx, "BITCOIN")
	require.NoError(t, err)
	assert.Equal(t, b.ID, active.ID)

	activated, err := s.ActivateWallet(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, activated.Active)
	list, err := s.ListWallets(ctx, wallet.Filter{ActiveOnly: true})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, a.ID, list[0].ID)
	byType, err := s.ListWallets(ctx, wallet.Filter{Type: "BITCOIN"})
	require.NoError(t, err)
	assert.Len(t, byType, 2)

	n, err := s.DeactivateWalletsOfType(ctx, "bitcoin")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	_, err = s.ActiveWallet(ctx, "Bitcoin")
	assert.True(t, apperrors.IsNotFound(err))

	require.NoError(t, s.DeleteWallet(ctx, b.ID))
	assert.True(t, apperrors.IsNotFound(s.DeleteWallet(ctx, b.ID)))
}

func TestProfilesAndAudit(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	p, err := s.CreateProfile(ctx, profile.Profile{ID: "u1", Email: "a@example.com"})
	require.NoError(t, err)
	assert.Equal(t, profile.RoleCustomer, p.Role)
	_, err = s.CreateProfile(ctx, profile.Profile{ID: "u2", Email: "b@example.com", Role: profile.RoleAdmin})
	require.NoError(t, err)

	name := "Alice"
	p.FullName = &name
	updated, err := s.UpdateProfile(ctx, p)
	require.NoError(t, err)
	require.NotNil(t, updated.FullName)
	assert.Equal(t, "Alice", *updated.FullName)

	admins, err := s.ListProfiles(ctx, profile.Filter{Role: profile.RoleAdmin})
	require.NoError(t, err)
	require.Len(t, admins, 1)
	assert.Equal(t, "u2", admins[0].ID)

	_, err = s.SetRole(ctx, "missing", profile.RoleStore)
	assert.True(t, apperrors.IsNotFound(err))

	for _, action := range []audit.Action{audit.ActionOrderCreated, audit.ActionOrderCancelled, audit.ActionRoleChanged} {
		_, err := s.AppendAudit(ctx, audit.Entry{ActorID: "u2", Action: action, EntityType: "order", EntityID: "o1", Details: map[string]string{"k": "v"}})
		require.NoError(t, err)
	}
	entries, err := s.ListAudit(ctx, audit.Filter{EntityID: "o1", Limit: 2})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, audit.ActionRoleChanged, entries[0].Action)
	assert.Equal(t, "v", entries[0].Details["k"])
}

func TestStockRPC(t *testing.T) {
	s, fake := newTestStore(t, WithStockRPC())
	p := seedProduct(t, s, 5)
	fake.rpc["adjust_stock"] = func(w http.ResponseWriter, r *http.Request) {
		var params map[string]any
		_ = json.NewDecoder(r.Body).Decode(&params)
		if params["p_delta"].(float64) < -5 {
			writeJSON(w, http.StatusBadRequest, row{"code": "23514", "message": "insufficient stock"})
			return
		}
		writeJSON(w, http.StatusOK, row{"id": params["p_product_id"], "stock": 5 + params["p_delta"].(float64), "price": "50"})
	}

	after, err := s.AdjustStock(context.Background(), product.Adjustment{ProductID: p.ID, Delta: -1, Reason: product.ReasonOrder})
	require.NoError(t, err)
	assert.Equal(t, 4, after.Stock)

	_, err = s.AdjustStock(context.Background(), product.Adjustment{ProductID: p.ID, Delta: -6, Reason: product.ReasonOrder})
	var short *apperrors.InsufficientStockError
	require.ErrorAs(t, err, &short)
	assert.Equal(t, 5, short.Available)
}

func TestStockRPCFallsBackWhenFunctionMissing(t *testing.T) {
	s, _ := newTestStore(t, WithStockRPC())
	p := seedProduct(t, s, 5)

	after, err := s.AdjustStock(context.Background(), product.Adjustment{ProductID: p.ID, Delta: -2, Reason: product.ReasonOrder})
	require.NoError(t, err)
	assert.Equal(t, 3, after.Stock)
	assert.False(t, s.rpc.Load())
}
