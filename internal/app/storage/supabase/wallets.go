package supabase

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/muraguri00/zalora-luxury/internal/app/domain/wallet"
	apperrors "github.com/muraguri00/zalora-luxury/internal/errors"
	"github.com/muraguri00/zalora-luxury/supabase/client"
)

var errActivationContention = errors.New("another wallet of the type was activated concurrently on every attempt")

// deactivateType switches off every active wallet of walletType except
// exceptID. Types compare case-insensitively.
func (s *Store) deactivateType(ctx context.Context, walletType, exceptID string) (int, error) {
	q := s.db.From(tableWallets).ILike("wallet_type", pattern(walletType)).Eq("is_active", true)
	if exceptID != "" {
		q.Neq("id", exceptID)
	}
	resp, err := q.ExecuteUpdate(ctx, map[string]any{"is_active": false, "updated_at": ts(s.now())})
	if err := check("wallet_settings.deactivate_type", resp, err); err != nil {
		return 0, err
	}
	return resp.Rows(), nil
}

// withActivation runs write after clearing the other active wallets of
// walletType. The partial unique index on active types rejects a write that
// lost a race against a concurrent activation; the pair is then retried.
func (s *Store) withActivation(ctx context.Context, op, walletType, id string, write func() (*client.Response, error)) ([]wallet.Setting, error) {
	for attempt := 0; attempt < s.casAttempts; attempt++ {
		if _, err := s.deactivateType(ctx, walletType, id); err != nil {
			return nil, err
		}
		var rows []wallet.Setting
		resp, err := write()
		err = decode(op, resp, err, &rows)
		if client.IsCode(err, client.CodeUniqueViolation) {
			continue
		}
		return rows, err
	}
	return nil, apperrors.WrapStore(op, errActivationContention)
}

func (s *Store) CreateWallet(ctx context.Context, w wallet.Setting) (wallet.Setting, error) {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	now := s.now()
	w.CreatedAt = now
	w.UpdatedAt = now

	insert := func() (*client.Response, error) { return s.db.From(tableWallets).ExecuteInsert(ctx, w) }
	var rows []wallet.Setting
	var err error
	if w.Active {
		rows, err = s.withActivation(ctx, "wallet_settings.insert", w.Type, w.ID, insert)
	} else {
		resp, insErr := insert()
		err = decode("wallet_settings.insert", resp, insErr, &rows)
	}
	if err != nil {
		return wallet.Setting{}, err
	}
	return first(rows, "wallet", w.ID)
}

func (s *Store) UpdateWallet(ctx context.Context, w wallet.Setting) (wallet.Setting, error) {
	existing, err := s.GetWallet(ctx, w.ID)
	if err != nil {
		return wallet.Setting{}, err
	}
	patch := map[string]any{
		"wallet_address": w.Address,
		"wallet_type":    w.Type,
		"qr_code_url":    w.QRCodeURL,
		"updated_at":     ts(s.now()),
	}
	update := func() (*client.Response, error) {
		return s.db.From(tableWallets).Eq("id", w.ID).ExecuteUpdate(ctx, patch)
	}

	var rows []wallet.Setting
	if existing.Active && !strings.EqualFold(existing.Type, w.Type) {
		rows, err = s.withActivation(ctx, "wallet_settings.update", w.Type, w.ID, update)
	} else {
		resp, upErr := update()
		err = decode("wallet_settings.update", resp, upErr, &rows)
	}
	if err != nil {
		return wallet.Setting{}, err
	}
	return first(rows, "wallet", w.ID)
}

func (s *Store) GetWallet(ctx context.Context, id string) (wallet.Setting, error) {
	var rows []wallet.Setting
	if err := s.fetch(ctx, tableWallets, id, &rows); err != nil {
		return wallet.Setting{}, err
	}
	return first(rows, "wallet", id)
}

func (s *Store) ListWallets(ctx context.Context, filter wallet.Filter) ([]wallet.Setting, error) {
	q := s.db.From(tableWallets).Select("*")
	if filter.ActiveOnly {
		q.Eq("is_active", true)
	}
	if filter.Type != "" {
		q.ILike("wallet_type", pattern(filter.Type))
	}
	resp, err := q.Order("created_at", false).Execute(ctx)
	rows := []wallet.Setting{}
	if err := decode("wallet_settings.list", resp, err, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *Store) DeleteWallet(ctx context.Context, id string) error {
	return s.remove(ctx, tableWallets, "wallet", id)
}

func (s *Store) ActivateWallet(ctx context.Context, id string) (wallet.Setting, error) {
	target, err := s.GetWallet(ctx, id)
	if err != nil {
		return wallet.Setting{}, err
	}
	rows, err := s.withActivation(ctx, "wallet_settings.activate", target.Type, id, func() (*client.Response, error) {
		return s.db.From(tableWallets).Eq("id", id).ExecuteUpdate(ctx, map[string]any{"is_active": true, "updated_at": ts(s.now())})
	})
	if err != nil {
		return wallet.Setting{}, err
	}
	return first(rows, "wallet", id)
}

func (s *Store) DeactivateWallet(ctx context.Context, id string) (wallet.Setting, error) {
	var rows []wallet.Setting
	resp, err := s.db.From(tableWallets).Eq("id", id).ExecuteUpdate(ctx, map[string]any{"is_active": false, "updated_at": ts(s.now())})
	if err := decode("wallet_settings.deactivate", resp, err, &rows); err != nil {
		return wallet.Setting{}, err
	}
	return first(rows, "wallet", id)
}

func (s *Store) DeactivateWalletsOfType(ctx context.Context, walletType string) (int, error) {
	return s.deactivateType(ctx, walletType, "")
}

func (s *Store) ActiveWallet(ctx context.Context, walletType string) (wallet.Setting, error) {
	var rows []wallet.Setting
	resp, err := s.db.From(tableWallets).Select("*").
		ILike("wallet_type", pattern(walletType)).
		Eq("is_active", true).
		Order("created_at", false).
		Limit(1).
		Execute(ctx)
	if err := decode("wallet_settings.active", resp, err, &rows); err != nil {
		return wallet.Setting{}, err
	}
	return first(rows, "active wallet", walletType)
}
