package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/muraguri00/zalora-luxury/internal/app/domain/wallet"
	apperrors "github.com/muraguri00/zalora-luxury/internal/errors"
)

const walletColumns = `id, wallet_address, wallet_type, qr_code_url, is_active, created_at, updated_at`

// deactivateType clears the active flag on every wallet of walletType other
// than exceptID. Types compare case-insensitively.
func deactivateType(ctx context.Context, e sqlx.ExecerContext, walletType, exceptID string, at time.Time) (int, error) {
	res, err := e.ExecContext(ctx, `
		UPDATE wallet_settings SET is_active = false, updated_at = $1
		WHERE is_active AND lower(wallet_type) = lower($2) AND id <> $3
	`, at, walletType, exceptID)
	if err != nil {
		return 0, apperrors.WrapStore("wallet_settings.deactivate_type", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *Store) CreateWallet(ctx context.Context, w wallet.Setting) (wallet.Setting, error) {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	now := s.now()
	w.CreatedAt = now
	w.UpdatedAt = now
	err := s.withTx(ctx, "wallet_settings.create", func(tx *sqlx.Tx) error {
		if w.Active {
			if _, err := deactivateType(ctx, tx, w.Type, w.ID, now); err != nil {
				return err
			}
		}
		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO wallet_settings (`+walletColumns+`)
			VALUES (:id, :wallet_address, :wallet_type, :qr_code_url, :is_active, :created_at, :updated_at)
		`, w)
		return apperrors.WrapStore("wallet_settings.insert", err)
	})
	if err != nil {
		return wallet.Setting{}, err
	}
	return w, nil
}

func (s *Store) UpdateWallet(ctx context.Context, w wallet.Setting) (wallet.Setting, error) {
	var out wallet.Setting
	err := s.withTx(ctx, "wallet_settings.update", func(tx *sqlx.Tx) error {
		var existing wallet.Setting
		if err := getOne(ctx, tx, &existing, "wallet_settings.get", "wallet", w.ID,
			`SELECT `+walletColumns+` FROM wallet_settings WHERE id = $1 FOR UPDATE`, w.ID); err != nil {
			return err
		}
		now := s.now()
		if existing.Active {
			if _, err := deactivateType(ctx, tx, w.Type, w.ID, now); err != nil {
				return err
			}
		}
		return getOne(ctx, tx, &out, "wallet_settings.update", "wallet", w.ID, `
			UPDATE wallet_settings SET wallet_address = $1, wallet_type = $2, qr_code_url = $3, updated_at = $4
			WHERE id = $5
			RETURNING `+walletColumns, w.Address, w.Type, w.QRCodeURL, now, w.ID)
	})
	return out, err
}

func (s *Store) GetWallet(ctx context.Context, id string) (wallet.Setting, error) {
	var w wallet.Setting
	err := getOne(ctx, s.db, &w, "wallet_settings.get", "wallet", id,
		`SELECT `+walletColumns+` FROM wallet_settings WHERE id = $1`, id)
	return w, err
}

func (s *Store) ListWallets(ctx context.Context, filter wallet.Filter) ([]wallet.Setting, error) {
	var w where
	if filter.ActiveOnly {
		w.add("is_active = $%d", true)
	}
	if filter.Type != "" {
		w.add("lower(wallet_type) = lower($%d)", filter.Type)
	}
	out := []wallet.Setting{}
	err := s.db.SelectContext(ctx, &out,
		`SELECT `+walletColumns+` FROM wallet_settings`+w.String()+` ORDER BY created_at DESC`, w.args...)
	if err != nil {
		return nil, apperrors.WrapStore("wallet_settings.list", err)
	}
	return out, nil
}

func (s *Store) DeleteWallet(ctx context.Context, id string) error {
	return execOne(ctx, s.db, "wallet_settings.delete", "wallet", id, `DELETE FROM wallet_settings WHERE id = $1`, id)
}

func (s *Store) ActivateWallet(ctx context.Context, id string) (wallet.Setting, error) {
	var out wallet.Setting
	err := s.withTx(ctx, "wallet_settings.activate", func(tx *sqlx.Tx) error {
		var existing wallet.Setting
		if err := getOne(ctx, tx, &existing, "wallet_settings.get", "wallet", id,
			`SELECT `+walletColumns+` FROM wallet_settings WHERE id = $1 FOR UPDATE`, id); err != nil {
			return err
		}
		now := s.now()
		if _, err := deactivateType(ctx, tx, existing.Type, id, now); err != nil {
			return err
		}
		return getOne(ctx, tx, &out, "wallet_settings.activate", "wallet", id, `
			UPDATE wallet_settings SET is_active = true, updated_at = $1 WHERE id = $2
			RETURNING `+walletColumns, now, id)
	})
	return out, err
}

func (s *Store) DeactivateWallet(ctx context.Context, id string) (wallet.Setting, error) {
	var out wallet.Setting
	err := getOne(ctx, s.db, &out, "wallet_settings.deactivate", "wallet", id, `
		UPDATE wallet_settings SET is_active = false, updated_at = $1 WHERE id = $2
		RETURNING `+walletColumns, s.now(), id)
	return out, err
}

func (s *Store) DeactivateWalletsOfType(ctx context.Context, walletType string) (int, error) {
	return deactivateType(ctx, s.db, walletType, "", s.now())
}

func (s *Store) ActiveWallet(ctx context.Context, walletType string) (wallet.Setting, error) {
	var w wallet.Setting
	err := getOne(ctx, s.db, &w, "wallet_settings.active", "active wallet", walletType, `
		SELECT `+walletColumns+` FROM wallet_settings
		WHERE is_active AND lower(wallet_type) = lower($1)
		ORDER BY created_at DESC LIMIT 1`, walletType)
	return w, err
}
