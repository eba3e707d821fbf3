// Package escrow implements the deal escrow state machine. All escrow
// status changes go through Transition, which serializes per-deal updates
// with a row lock and commits the status change together with any ledger
// effect in one transaction.
package escrow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/promoplace/backend/internal/config"
	"github.com/promoplace/backend/internal/events"
	"github.com/promoplace/backend/internal/models"
	"github.com/promoplace/backend/internal/repositories"
	"go.uber.org/zap"
)

// InvalidTransitionError means the deal's current status was outside the
// caller's guard set. Callers must re-check the current state instead of
// retrying blindly.
type InvalidTransitionError struct {
	DealID  uuid.UUID
	Current models.EscrowStatus
	Target  models.EscrowStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition for deal %s: %s -> %s", e.DealID, e.Current, e.Target)
}

// ErrInvalidTransition matches any InvalidTransitionError via errors.Is.
var ErrInvalidTransition = errors.New("invalid escrow transition")

func (e *InvalidTransitionError) Is(target error) bool { return target == ErrInvalidTransition }

// Effect runs inside the transition's database transaction, after the guard
// check and before the status write. Typical effects are ledger writes and
// wallet/address bindings.
type Effect func(ctx context.Context, tx pgx.Tx, deal *models.Deal) error

type auditLogger interface {
	Log(ctx context.Context, entry models.AuditLog) error
}

type StateMachine struct {
	pool      *pgxpool.Pool
	dealRepo  *repositories.DealRepo
	auditRepo auditLogger
	publisher events.Publisher
	cfg       *config.Config
	log       *zap.Logger
}

func NewStateMachine(
	pool *pgxpool.Pool,
	dealRepo *repositories.DealRepo,
	auditRepo *repositories.AuditRepo,
	publisher events.Publisher,
	cfg *config.Config,
	log *zap.Logger,
) *StateMachine {
	return &StateMachine{
		pool:      pool,
		dealRepo:  dealRepo,
		auditRepo: auditRepo,
		publisher: publisher,
		cfg:       cfg,
		log:       log,
	}
}

// Transition moves a deal into toStatus if its current status is within the
// guard set. The deal row is locked for the duration, the effect and the
// status write commit atomically, lastActivityAt is bumped, and deadline
// fields are recomputed for the new status.
//
// If the deal is already in toStatus the call is a no-op returning the deal
// unchanged, so retried triggers (watchers, sweeps) stay idempotent.
func (m *StateMachine) Transition(
	ctx context.Context,
	dealID uuid.UUID,
	fromGuard []models.EscrowStatus,
	toStatus models.EscrowStatus,
	actorID *uuid.UUID,
	actorType string,
	effect Effect,
) (*models.Deal, error) {
	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transition tx: %w", err)
	}
	defer tx.Rollback(ctx)

	deal, err := m.dealRepo.GetByIDForUpdate(ctx, tx, dealID)
	if err != nil {
		return nil, fmt.Errorf("load deal %s: %w", dealID, err)
	}

	if deal.EscrowStatus == toStatus {
		// Already applied (a concurrent trigger won the race).
		return deal, nil
	}

	if !inGuard(deal.EscrowStatus, fromGuard) || !models.IsValidTransition(deal.EscrowStatus, toStatus) {
		return nil, &InvalidTransitionError{DealID: dealID, Current: deal.EscrowStatus, Target: toStatus}
	}

	oldStatus := deal.EscrowStatus

	if effect != nil {
		if err := effect(ctx, tx, deal); err != nil {
			return nil, fmt.Errorf("transition effect %s -> %s: %w", oldStatus, toStatus, err)
		}
	}

	deal.EscrowStatus = toStatus
	m.applyDeadlines(deal, toStatus)

	if err := m.dealRepo.UpdateTransition(ctx, tx, deal); err != nil {
		return nil, fmt.Errorf("persist transition: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transition: %w", err)
	}

	deal.LastActivityAt = time.Now()

	m.announce(ctx, deal, oldStatus, toStatus, actorID, actorType)

	m.log.Info("deal transition",
		zap.String("deal_id", deal.ID.String()),
		zap.String("from", string(oldStatus)),
		zap.String("to", string(toStatus)),
		zap.String("actor_type", actorType),
	)

	return deal, nil
}

// announce records the committed transition in the audit log and publishes
// the status-change event. The transition already stands, so failures here
// are logged rather than propagated.
func (m *StateMachine) announce(ctx context.Context, deal *models.Deal, oldStatus, toStatus models.EscrowStatus, actorID *uuid.UUID, actorType string) {
	if err := m.auditRepo.Log(ctx, models.AuditLog{
		ActorUserID: actorID,
		ActorType:   actorType,
		Action:      fmt.Sprintf("deal_status_%s_to_%s", oldStatus, toStatus),
		EntityType:  "deal",
		EntityID:    &deal.ID,
		Meta:        map[string]any{"old_status": oldStatus, "new_status": toStatus},
	}); err != nil {
		m.log.Error("audit transition",
			zap.String("deal_id", deal.ID.String()),
			zap.String("new_status", string(toStatus)),
			zap.Error(err),
		)
	}

	if err := m.publisher.Publish(ctx, "events:deal", events.Event{
		Type: events.EventDealStatusChanged,
		Payload: map[string]any{
			"deal_id":    deal.ID.String(),
			"old_status": string(oldStatus),
			"new_status": string(toStatus),
		},
	}); err != nil {
		m.log.Error("publish deal event",
			zap.String("deal_id", deal.ID.String()),
			zap.String("new_status", string(toStatus)),
			zap.Error(err),
		)
	}
}

func inGuard(current models.EscrowStatus, guard []models.EscrowStatus) bool {
	for _, s := range guard {
		if s == current {
			return true
		}
	}
	return false
}

// applyDeadlines clears deadline fields superseded by the new status and
// sets the ones the status implies. Durations come from config.
func (m *StateMachine) applyDeadlines(deal *models.Deal, to models.EscrowStatus) {
	now := time.Now()
	deal.IdleExpiresAt = nil
	deal.CreativeDeadlineAt = nil
	deal.AdminReviewDeadlineAt = nil
	deal.PaymentDeadlineAt = nil

	switch to {
	case models.StatusDraft, models.StatusWaitingSchedule, models.StatusSchedulingPending:
		at := now.Add(m.cfg.DealIdleTimeout)
		deal.IdleExpiresAt = &at
	case models.StatusWaitingCreative, models.StatusCreativeChangesRequested, models.StatusCreativeChangesNotesPending:
		at := now.Add(m.cfg.DealCreativeTimeout)
		deal.CreativeDeadlineAt = &at
	case models.StatusCreativeSubmitted, models.StatusAdminReview:
		at := now.Add(m.cfg.DealAdminReviewTimeout)
		deal.AdminReviewDeadlineAt = &at
	case models.StatusAwaitingPayment:
		at := now.Add(m.cfg.DealPaymentTimeout)
		deal.PaymentDeadlineAt = &at
		deal.EscrowExpiresAt = &at
	case models.StatusCanceled, models.StatusRefunded, models.StatusReleased:
		deal.EscrowExpiresAt = nil
	}
}
