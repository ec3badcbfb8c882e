package auditlog

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muraguri00/zalora-luxury/internal/app/domain/audit"
	"github.com/muraguri00/zalora-luxury/internal/app/domain/profile"
	"github.com/muraguri00/zalora-luxury/internal/app/storage/memory"
	apperrors "github.com/muraguri00/zalora-luxury/internal/errors"
	"github.com/muraguri00/zalora-luxury/pkg/logger"
)

type failingStore struct{ *memory.Store }

func (failingStore) AppendAudit(context.Context, audit.Entry) (audit.Entry, error) {
	return audit.Entry{}, errors.New("mirror down")
}

func TestRecordWritesPrimaryAndMirrors(t *testing.T) {
	primary := memory.New()
	mirror := memory.New()
	svc := New(primary, logger.NewNop(), failingStore{memory.New()}, mirror)
	ctx := context.Background()

	svc.Record(ctx, audit.Entry{ActorID: "admin", Action: audit.ActionRoleChanged, EntityType: "profile", EntityID: "u1"})

	admin := &profile.Principal{UserID: "admin", Role: profile.RoleAdmin}
	entries, err := svc.List(ctx, admin, audit.Filter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)

	mirrored, _ := mirror.ListAudit(ctx, audit.Filter{})
	require.Len(t, mirrored, 1)
	assert.Equal(t, entries[0].ID, mirrored[0].ID)
}

func TestListRequiresAdmin(t *testing.T) {
	svc := New(memory.New(), logger.NewNop())
	_, err := svc.List(context.Background(), nil, audit.Filter{})
	assert.True(t, apperrors.IsAuthenticationRequired(err))
	_, err = svc.List(context.Background(), &profile.Principal{UserID: "u1", Role: profile.RoleStore}, audit.Filter{})
	assert.True(t, apperrors.IsForbidden(err))
}
