package wallets

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muraguri00/zalora-luxury/internal/app/domain/audit"
	"github.com/muraguri00/zalora-luxury/internal/app/domain/profile"
	"github.com/muraguri00/zalora-luxury/internal/app/domain/wallet"
	"github.com/muraguri00/zalora-luxury/internal/app/services/auditlog"
	"github.com/muraguri00/zalora-luxury/internal/app/storage/memory"
	apperrors "github.com/muraguri00/zalora-luxury/internal/errors"
	"github.com/muraguri00/zalora-luxury/pkg/logger"
	"github.com/muraguri00/zalora-luxury/supabase/client"
)

var (
	admin    = &profile.Principal{UserID: "admin", Role: profile.RoleAdmin}
	customer = &profile.Principal{UserID: "c1", Role: profile.RoleCustomer}
)

type failingQR struct{}

func (failingQR) Generate(context.Context, string) (string, error) {
	return "", errors.New("encoder offline")
}

type fakeBucket struct {
	status   int
	paths    []string
	uploaded [][]byte
}

func (b *fakeBucket) Upload(_ context.Context, path string, data []byte, _ string) (*client.Response, error) {
	b.paths = append(b.paths, path)
	b.uploaded = append(b.uploaded, data)
	return &client.Response{StatusCode: b.status, Body: []byte(`{"message":"exists"}`)}, nil
}

func (b *fakeBucket) GetPublicURL(path string) string {
	return "https://cdn.example/qr/" + path
}

func TestCreateGeneratesQR(t *testing.T) {
	svc := New(memory.New(), PNGGenerator{}, logger.NewNop())
	res, err := svc.Create(context.Background(), admin, CreateInput{Address: " bc1qexample "})
	require.NoError(t, err)
	assert.Empty(t, res.Warnings)

	w := res.Wallet
	assert.Equal(t, "bc1qexample", w.Address)
	assert.Equal(t, wallet.DefaultType, w.Type)
	assert.True(t, w.Active)
	require.NotNil(t, w.QRCodeURL)
	require.True(t, strings.HasPrefix(*w.QRCodeURL, "data:image/png;base64,"))
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(*w.QRCodeURL, "data:image/png;base64,"))
	require.NoError(t, err)
	assert.Equal(t, "\x89PNG", string(raw[:4]))
}

func TestCreateSurvivesQRFailure(t *testing.T) {
	svc := New(memory.New(), failingQR{}, logger.NewNop())
	res, err := svc.Create(context.Background(), admin, CreateInput{Address: "0xabc", Type: "Ethereum"})
	require.NoError(t, err)
	assert.Nil(t, res.Wallet.QRCodeURL)
	assert.Equal(t, []string{WarnQRUnavailable}, res.Warnings)

	supplied := "https://example.com/qr.png"
	res, err = svc.Create(context.Background(), admin, CreateInput{Address: "0xdef", Type: "Ethereum", QRCodeURL: &supplied})
	require.NoError(t, err)
	assert.Empty(t, res.Warnings, "a supplied reference skips generation")
	assert.Equal(t, supplied, *res.Wallet.QRCodeURL)
}

func TestSingleActivePerType(t *testing.T) {
	store := memory.New()
	svc := New(store, nil, logger.NewNop())
	ctx := context.Background()

	first, err := svc.Create(ctx, admin, CreateInput{Address: "bc1-a"})
	require.NoError(t, err)
	second, err := svc.Create(ctx, admin, CreateInput{Address: "bc1-b"})
	require.NoError(t, err)
	inactive := false
	third, err := svc.Create(ctx, admin, CreateInput{Address: "bc1-c", Active: &inactive})
	require.NoError(t, err)
	assert.False(t, third.Wallet.Active)

	active, err := svc.ActiveByType(ctx, "Bitcoin")
	require.NoError(t, err)
	assert.Equal(t, second.Wallet.ID, active.ID)

	_, err = svc.ToggleActive(ctx, admin, first.Wallet.ID, true)
	require.NoError(t, err)
	actives, err := svc.List(ctx, admin, wallet.Filter{ActiveOnly: true})
	require.NoError(t, err)
	require.Len(t, actives, 1)
	assert.Equal(t, first.Wallet.ID, actives[0].ID)

	_, err = svc.ToggleActive(ctx, admin, first.Wallet.ID, false)
	require.NoError(t, err)
	_, err = svc.ActiveByType(ctx, "Bitcoin")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestDeactivateAllOfType(t *testing.T) {
	svc := New(memory.New(), nil, logger.NewNop())
	ctx := context.Background()
	_, _ = svc.Create(ctx, admin, CreateInput{Address: "bc1-a"})
	_, _ = svc.Create(ctx, admin, CreateInput{Address: "0x1", Type: "Ethereum"})

	n, err := svc.DeactivateAllOfType(ctx, admin, "bitcoin")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	eth, err := svc.ActiveByType(ctx, "Ethereum")
	require.NoError(t, err)
	assert.Equal(t, "0x1", eth.Address)
}

func TestMutationsRequireAdmin(t *testing.T) {
	svc := New(memory.New(), nil, logger.NewNop())
	ctx := context.Background()
	res, err := svc.Create(ctx, admin, CreateInput{Address: "bc1-a"})
	require.NoError(t, err)
	id := res.Wallet.ID

	_, err = svc.Create(ctx, customer, CreateInput{Address: "bc1-x"})
	assert.True(t, apperrors.IsForbidden(err))
	_, err = svc.Activate(ctx, customer, id)
	assert.True(t, apperrors.IsForbidden(err))
	_, err = svc.DeactivateAllOfType(ctx, customer, "Bitcoin")
	assert.True(t, apperrors.IsForbidden(err))
	assert.True(t, apperrors.IsForbidden(svc.Delete(ctx, customer, id)))
	assert.True(t, apperrors.IsAuthenticationRequired(svc.Delete(ctx, nil, id)))

	got, err := svc.Get(ctx, customer, id)
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
	_, err = svc.ActiveByType(ctx, "")
	assert.NoError(t, err, "anonymous read of the default type")

	require.NoError(t, svc.Delete(ctx, admin, id))
	_, err = svc.Get(ctx, admin, id)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestUpdateRegeneratesQR(t *testing.T) {
	svc := New(memory.New(), PNGGenerator{Size: 64}, logger.NewNop())
	ctx := context.Background()
	res, err := svc.Create(ctx, admin, CreateInput{Address: "bc1-old"})
	require.NoError(t, err)
	before := *res.Wallet.QRCodeURL

	addr := "bc1-new"
	upd, err := svc.Update(ctx, admin, res.Wallet.ID, UpdateInput{Address: &addr})
	require.NoError(t, err)
	require.NotNil(t, upd.Wallet.QRCodeURL)
	assert.NotEqual(t, before, *upd.Wallet.QRCodeURL)
	assert.Equal(t, "bc1-new", upd.Wallet.Address)

	empty := "  "
	_, err = svc.Update(ctx, admin, res.Wallet.ID, UpdateInput{Address: &empty})
	assert.True(t, apperrors.IsValidationError(err))
}

func TestUpdateRecordsAudit(t *testing.T) {
	store := memory.New()
	svc := New(store, nil, logger.NewNop())
	svc.AttachObservers(auditlog.New(store, logger.NewNop()), nil)
	ctx := context.Background()

	res, err := svc.Create(ctx, admin, CreateInput{Address: "TQ5N", Type: "USDT"})
	require.NoError(t, err)
	walletType := "USDT_TRC20"
	_, err = svc.Update(ctx, admin, res.Wallet.ID, UpdateInput{Type: &walletType})
	require.NoError(t, err)

	entries, err := store.ListAudit(ctx, audit.Filter{EntityID: res.Wallet.ID})
	require.NoError(t, err)
	actions := []audit.Action{}
	for _, e := range entries {
		actions = append(actions, e.Action)
		if e.Action == audit.ActionWalletUpdated {
			assert.Equal(t, admin.UserID, e.ActorID)
			assert.Equal(t, "USDT_TRC20", e.Details["wallet_type"])
		}
	}
	assert.ElementsMatch(t, []audit.Action{audit.ActionWalletCreated, audit.ActionWalletUpdated}, actions)
}

func TestBucketUploader(t *testing.T) {
	bucket := &fakeBucket{status: http.StatusOK}
	up := BucketUploader{Bucket: bucket, Prefix: "wallets", PNG: PNGGenerator{Size: 64}}

	url, err := up.Generate(context.Background(), "bc1-upload")
	require.NoError(t, err)
	require.Len(t, bucket.paths, 1)
	assert.True(t, strings.HasPrefix(bucket.paths[0], "wallets/"))
	assert.True(t, strings.HasSuffix(bucket.paths[0], ".png"))
	assert.Equal(t, "https://cdn.example/qr/"+bucket.paths[0], url)

	bucket.status = http.StatusConflict
	again, err := up.Generate(context.Background(), "bc1-upload")
	require.NoError(t, err)
	assert.Equal(t, url, again)

	bucket.status = http.StatusInternalServerError
	_, err = up.Generate(context.Background(), "bc1-upload")
	assert.Error(t, err)

	_, err = up.Generate(context.Background(), "")
	assert.Error(t, err)
}
