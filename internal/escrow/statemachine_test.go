package escrow

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/promoplace/backend/internal/config"
	"github.com/promoplace/backend/internal/events"
	"github.com/promoplace/backend/internal/models"
)

func TestInvalidTransitionErrorIs(t *testing.T) {
	err := &InvalidTransitionError{
		DealID:  uuid.New(),
		Current: models.StatusDraft,
		Target:  models.StatusReleased,
	}

	if !errors.Is(err, ErrInvalidTransition) {
		t.Error("InvalidTransitionError should match ErrInvalidTransition")
	}
	if !errors.Is(fmt.Errorf("wrapped: %w", err), ErrInvalidTransition) {
		t.Error("wrapped InvalidTransitionError should match ErrInvalidTransition")
	}
	if errors.Is(errors.New("other"), ErrInvalidTransition) {
		t.Error("unrelated error should not match")
	}
}

type failingAuditLogger struct{ err error }

func (f failingAuditLogger) Log(ctx context.Context, entry models.AuditLog) error { return f.err }

type failingPublisher struct{ err error }

func (f failingPublisher) Publish(ctx context.Context, stream string, event events.Event) error {
	return f.err
}

// Audit and event failures after commit must surface in the logs instead of
// disappearing; the transition itself already stands.
func TestAnnounceLogsSecondaryWriteFailures(t *testing.T) {
	core, observed := observer.New(zap.ErrorLevel)
	m := &StateMachine{
		auditRepo: failingAuditLogger{err: errors.New("audit_log insert failed")},
		publisher: failingPublisher{err: errors.New("redis down")},
		log:       zap.New(core),
	}

	deal := &models.Deal{ID: uuid.New()}
	m.announce(context.Background(), deal, models.StatusAwaitingPayment, models.StatusFundsConfirmed, nil, "system")

	logs := observed.All()
	if len(logs) != 2 {
		t.Fatalf("expected 2 error logs, got %d: %v", len(logs), logs)
	}
	if logs[0].Message != "audit transition" {
		t.Errorf("first log %q, want audit failure", logs[0].Message)
	}
	if logs[1].Message != "publish deal event" {
		t.Errorf("second log %q, want publish failure", logs[1].Message)
	}
}

func TestApplyDeadlines(t *testing.T) {
	cfg := &config.Config{
		DealIdleTimeout:        48 * time.Hour,
		DealCreativeTimeout:    48 * time.Hour,
		DealAdminReviewTimeout: 24 * time.Hour,
		DealPaymentTimeout:     time.Hour,
	}
	m := &StateMachine{cfg: cfg}

	deadline := func(d *models.Deal, to models.EscrowStatus) *models.Deal {
		m.applyDeadlines(d, to)
		return d
	}

	t.Run("payment window opens on awaiting payment", func(t *testing.T) {
		d := deadline(&models.Deal{}, models.StatusAwaitingPayment)
		if d.PaymentDeadlineAt == nil || d.EscrowExpiresAt == nil {
			t.Fatal("payment deadline and escrow expiry must be set")
		}
		if !d.PaymentDeadlineAt.Equal(*d.EscrowExpiresAt) {
			t.Error("payment deadline and escrow expiry should coincide")
		}
		want := time.Now().Add(cfg.DealPaymentTimeout)
		if d.PaymentDeadlineAt.Sub(want) > time.Minute || want.Sub(*d.PaymentDeadlineAt) > time.Minute {
			t.Errorf("payment deadline %s not near %s", d.PaymentDeadlineAt, want)
		}
	})

	t.Run("stale deadlines cleared on transition", func(t *testing.T) {
		old := time.Now().Add(time.Hour)
		d := &models.Deal{
			IdleExpiresAt:     &old,
			PaymentDeadlineAt: &old,
		}
		deadline(d, models.StatusWaitingCreative)
		if d.IdleExpiresAt != nil || d.PaymentDeadlineAt != nil {
			t.Error("superseded deadlines should be cleared")
		}
		if d.CreativeDeadlineAt == nil {
			t.Error("creative deadline should be set")
		}
	})

	t.Run("terminal statuses clear escrow expiry", func(t *testing.T) {
		old := time.Now().Add(time.Hour)
		for _, status := range []models.EscrowStatus{models.StatusCanceled, models.StatusRefunded, models.StatusReleased} {
			d := &models.Deal{EscrowExpiresAt: &old}
			deadline(d, status)
			if d.EscrowExpiresAt != nil {
				t.Errorf("%s should clear escrow expiry", status)
			}
		}
	})

	t.Run("negotiating statuses set idle expiry", func(t *testing.T) {
		for _, status := range []models.EscrowStatus{models.StatusDraft, models.StatusWaitingSchedule, models.StatusSchedulingPending} {
			d := deadline(&models.Deal{}, status)
			if d.IdleExpiresAt == nil {
				t.Errorf("%s should set idle expiry", status)
			}
		}
	})
}
