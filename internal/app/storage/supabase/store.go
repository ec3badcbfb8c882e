// Package supabase implements the storage interfaces over PostgREST.
//
// PostgREST gives no multi-statement transactions, so stock changes are
// compare-and-swap patches filtered on the previously read value, and
// writes that span two tables go through the tx_intents log. An intent is
// written before the first step, advanced after each step, and closed as
// done or compensated. Intents left open by a crash are resolved by
// Reconcile.
package supabase

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/muraguri00/zalora-luxury/internal/app/storage"
	apperrors "github.com/muraguri00/zalora-luxury/internal/errors"
	"github.com/muraguri00/zalora-luxury/pkg/logger"
	"github.com/muraguri00/zalora-luxury/supabase/client"
)

const (
	tableProducts     = "products"
	tableMovements    = "stock_movements"
	tableOrders       = "orders"
	tableApplications = "store_applications"
	tableWallets      = "wallet_settings"
	tableProfiles     = "user_profiles"
	tableAudit        = "audit_log"
	tableIntents      = "tx_intents"

	defaultCASAttempts = 8
)

var (
	_ storage.ProductStore     = (*Store)(nil)
	_ storage.OrderStore       = (*Store)(nil)
	_ storage.ApplicationStore = (*Store)(nil)
	_ storage.WalletStore      = (*Store)(nil)
	_ storage.ProfileStore     = (*Store)(nil)
	_ storage.AuditStore       = (*Store)(nil)
	_ storage.Reconciler       = (*Store)(nil)
)

// Store is a Supabase-backed store.
type Store struct {
	db          *client.Client
	log         *logger.Logger
	now         func() time.Time
	casAttempts int
	rpc         atomic.Bool
}

// Option configures a Store.
type Option func(*Store)

// WithCASAttempts bounds the compare-and-swap retries of a stock update.
func WithCASAttempts(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.casAttempts = n
		}
	}
}

// WithStockRPC routes stock adjustments through the adjust_stock database
// function. The store falls back to compare-and-swap when the function is
// not deployed.
func WithStockRPC() Option {
	return func(s *Store) { s.rpc.Store(true) }
}

// WithClock replaces the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates a store on top of db.
func New(db *client.Client, log *logger.Logger, opts ...Option) *Store {
	if log == nil {
		log = logger.NewDefault("supabase-store")
	}
	s := &Store{
		db:          db,
		log:         log,
		now:         func() time.Time { return time.Now().UTC() },
		casAttempts: defaultCASAttempts,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// check folds transport and API failures into a StoreFailure for op.
func check(op string, resp *client.Response, err error) error {
	if err != nil {
		return apperrors.WrapStore(op, err)
	}
	if apiErr := resp.Error(); apiErr != nil {
		return apperrors.WrapStore(op, apiErr)
	}
	return nil
}

// decode runs check and decodes the array body into out.
func decode(op string, resp *client.Response, err error, out any) error {
	if err := check(op, resp, err); err != nil {
		return err
	}
	if err := resp.JSON(out); err != nil {
		return apperrors.WrapStore(op+".decode", err)
	}
	return nil
}

// first returns rows[0], or a NotFoundError for resource/id.
func first[T any](rows []T, resource, id string) (T, error) {
	if len(rows) == 0 {
		var zero T
		return zero, apperrors.NewNotFoundError(resource, id)
	}
	return rows[0], nil
}

func (s *Store) fetch(ctx context.Context, table, id string, out any) error {
	resp, err := s.db.From(table).Select("*").Eq("id", id).Limit(1).Execute(ctx)
	return decode(table+".get", resp, err, out)
}

func (s *Store) remove(ctx context.Context, table, resource, id string) error {
	resp, err := s.db.From(table).Eq("id", id).ExecuteDelete(ctx)
	if err := check(table+".delete", resp, err); err != nil {
		return err
	}
	if resp.Rows() == 0 {
		return apperrors.NewNotFoundError(resource, id)
	}
	return nil
}

func pattern(v string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(v)
}

func ts(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
