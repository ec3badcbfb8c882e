package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/muraguri00/zalora-luxury/internal/app/storage"
	apperrors "github.com/muraguri00/zalora-luxury/internal/errors"
)

const (
	kindPlaceOrder        = "order.place"
	kindCancelOrder       = "order.cancel"
	kindReviewApplication = "application.review"

	stepStarted   = "started"
	stepReserved  = "reserved"
	stepCancelled = "cancelled"
	stepReviewed  = "reviewed"

	intentPending     = "pending"
	intentDone        = "done"
	intentCompensated = "compensated"
	intentFailed      = "failed"

	reconcileBatch = 100
)

type intent struct {
	ID        string          `json:"id"`
	Kind      string          `json:"kind"`
	Step      string          `json:"step"`
	Status    string          `json:"status"`
	Payload   json.RawMessage `json:"payload"`
	LastError string          `json:"last_error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func (s *Store) beginIntent(ctx context.Context, kind string, payload any) (intent, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return intent{}, apperrors.WrapStore("tx_intents.insert", err)
	}
	now := s.now()
	in := intent{
		ID:        uuid.NewString(),
		Kind:      kind,
		Step:      stepStarted,
		Status:    intentPending,
		Payload:   raw,
		CreatedAt: now,
		UpdatedAt: now,
	}
	resp, err := s.db.From(tableIntents).ExecuteInsert(ctx, in)
	if err := check("tx_intents.insert", resp, err); err != nil {
		return intent{}, err
	}
	return in, nil
}

func (s *Store) patchIntent(ctx context.Context, id string, patch map[string]any) {
	patch["updated_at"] = ts(s.now())
	resp, err := s.db.From(tableIntents).Eq("id", id).ExecuteUpdate(ctx, patch)
	if err := check("tx_intents.update", resp, err); err != nil {
		s.log.WithError(err).WithField("intent_id", id).Warn("intent not updated, the sweeper will resolve it")
	}
}

func (s *Store) advance(ctx context.Context, id, step string) {
	s.patchIntent(ctx, id, map[string]any{"step": step})
}

func (s *Store) finish(ctx context.Context, id, status string, cause error) {
	patch := map[string]any{"status": status}
	if cause != nil {
		patch["last_error"] = cause.Error()
	}
	s.patchIntent(ctx, id, patch)
}

// Reconcile resolves intents that stayed pending for longer than olderThan.
// Order placements without an order row are rolled back. Cancellations and
// reviews whose first step landed are rolled forward.
func (s *Store) Reconcile(ctx context.Context, olderThan time.Duration) (storage.ReconcileReport, error) {
	var report storage.ReconcileReport
	cutoff := s.now().Add(-olderThan)

	var pending []intent
	resp, err := s.db.From(tableIntents).Select("*").
		Eq("status", intentPending).
		Lt("created_at", ts(cutoff)).
		Order("created_at", true).
		Limit(reconcileBatch).
		Execute(ctx)
	if err := decode("tx_intents.list", resp, err, &pending); err != nil {
		return report, err
	}

	for _, in := range pending {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		report.Scanned++
		status, err := s.resolve(ctx, in)
		switch {
		case err != nil:
			report.Failed++
			s.log.WithError(err).WithField("intent_id", in.ID).WithField("kind", in.Kind).Warn("intent not resolved")
			s.patchIntent(ctx, in.ID, map[string]any{"last_error": err.Error()})
			continue
		case status == intentDone:
			report.Completed++
		case status == intentCompensated:
			report.Compensated++
		default:
			report.Failed++
		}
		s.finish(ctx, in.ID, status, nil)
	}
	return report, nil
}

func (s *Store) resolve(ctx context.Context, in intent) (string, error) {
	switch in.Kind {
	case kindPlaceOrder:
		var p placePayload
		if err := json.Unmarshal(in.Payload, &p); err != nil {
			return intentFailed, nil
		}
		return s.resolvePlacement(ctx, p)
	case kindCancelOrder:
		var p cancelPayload
		if err := json.Unmarshal(in.Payload, &p); err != nil {
			return intentFailed, nil
		}
		return s.resolveCancellation(ctx, p)
	case kindReviewApplication:
		var p reviewPayload
		if err := json.Unmarshal(in.Payload, &p); err != nil {
			return intentFailed, nil
		}
		return s.resolveReview(ctx, p)
	}
	s.log.WithField("intent_id", in.ID).Warn(fmt.Sprintf("unknown intent kind %q", in.Kind))
	return intentFailed, nil
}
