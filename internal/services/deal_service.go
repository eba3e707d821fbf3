package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	tongo "github.com/xssnick/tonutils-go/ton"
	"go.uber.org/zap"

	"github.com/promoplace/backend/internal/config"
	"github.com/promoplace/backend/internal/escrow"
	"github.com/promoplace/backend/internal/events"
	"github.com/promoplace/backend/internal/keystore"
	"github.com/promoplace/backend/internal/models"
	"github.com/promoplace/backend/internal/repositories"
	"github.com/promoplace/backend/internal/ton"
)

// PayoutTrigger kicks off execution of a freshly created outgoing row.
// Implemented by the payout executor; the outgoing watcher also picks up
// rows whose trigger was lost.
type PayoutTrigger interface {
	Execute(ctx context.Context, transactionID uuid.UUID) error
}

// Statuses from which a deal can still be canceled by a participant.
var cancellableStatuses = []models.EscrowStatus{
	models.StatusDraft,
	models.StatusWaitingSchedule,
	models.StatusSchedulingPending,
	models.StatusWaitingCreative,
	models.StatusCreativeSubmitted,
	models.StatusCreativeChangesNotesPending,
	models.StatusCreativeChangesRequested,
	models.StatusAdminReview,
	models.StatusAwaitingPayment,
}

// Statuses from which funds can be sent back to the advertiser.
var refundableStatuses = []models.EscrowStatus{
	models.StatusFundsConfirmed,
	models.StatusScheduled,
	models.StatusPosting,
	models.StatusPostedVerifying,
	models.StatusCanceled,
	models.StatusDisputed,
}

type DealService struct {
	dealRepo    *repositories.DealRepo
	listingRepo *repositories.ListingRepo
	txRepo      *repositories.TransactionRepo
	walletRepo  *repositories.WalletRepo
	auditRepo   *repositories.AuditRepo
	sm          *escrow.StateMachine
	api         tongo.APIClientWrapped
	ks          *keystore.Keystore
	botClient   *BotClient
	publisher   events.Publisher
	payouts     PayoutTrigger
	cfg         *config.Config
	log         *zap.Logger
}

func NewDealService(
	dealRepo *repositories.DealRepo,
	listingRepo *repositories.ListingRepo,
	txRepo *repositories.TransactionRepo,
	walletRepo *repositories.WalletRepo,
	auditRepo *repositories.AuditRepo,
	sm *escrow.StateMachine,
	api tongo.APIClientWrapped,
	ks *keystore.Keystore,
	botClient *BotClient,
	publisher events.Publisher,
	payouts PayoutTrigger,
	cfg *config.Config,
	log *zap.Logger,
) *DealService {
	return &DealService{
		dealRepo:    dealRepo,
		listingRepo: listingRepo,
		txRepo:      txRepo,
		walletRepo:  walletRepo,
		auditRepo:   auditRepo,
		sm:          sm,
		api:         api,
		ks:          ks,
		botClient:   botClient,
		publisher:   publisher,
		payouts:     payouts,
		cfg:         cfg,
		log:         log,
	}
}

type CreateDealInput struct {
	AdvertiserUserID uuid.UUID
	PublisherUserID  uuid.UUID
	CreatorUserID    uuid.UUID
	InitiatorSide    string
	ListingID        uuid.UUID
	Brief            *string
	ScheduledAt      *time.Time
	AmountNano       int64 // 0 means "use the listing price"
}

// CreateDeal opens a DRAFT deal against a listing. The listing terms are
// snapshotted immediately; later listing edits never affect the deal.
func (s *DealService) CreateDeal(ctx context.Context, in CreateDealInput) (*models.Deal, error) {
	if in.InitiatorSide != models.SideAdvertiser && in.InitiatorSide != models.SidePublisher {
		return nil, fmt.Errorf("invalid initiator side %q", in.InitiatorSide)
	}

	listing, err := s.listingRepo.GetByID(ctx, in.ListingID)
	if err != nil {
		return nil, fmt.Errorf("listing not found: %w", err)
	}
	if !listing.IsActive {
		return nil, fmt.Errorf("listing %s is not active", listing.ID)
	}

	amount := in.AmountNano
	if amount <= 0 {
		amount = listing.PriceNano
	}
	if amount <= 0 {
		return nil, fmt.Errorf("listing %s has no price and no amount was given", listing.ID)
	}

	idleExpires := time.Now().Add(s.cfg.DealIdleTimeout)
	deal := &models.Deal{
		AdvertiserUserID: in.AdvertiserUserID,
		PublisherUserID:  in.PublisherUserID,
		CreatorUserID:    in.CreatorUserID,
		InitiatorSide:    in.InitiatorSide,
		ChannelID:        listing.ChannelID,
		ListingID:        &listing.ID,
		ListingSnapshot:  listing.Snapshot(),
		Brief:            in.Brief,
		EscrowStatus:     models.StatusDraft,
		EscrowAmountNano: amount,
		EscrowCurrency:   listing.Currency,
		ScheduledAt:      in.ScheduledAt,
		IdleExpiresAt:    &idleExpires,
	}

	if err := s.dealRepo.Create(ctx, deal); err != nil {
		return nil, fmt.Errorf("create deal: %w", err)
	}

	_ = s.auditRepo.Log(ctx, models.AuditLog{
		ActorUserID: &in.CreatorUserID,
		ActorType:   "user",
		Action:      "deal_created",
		EntityType:  "deal",
		EntityID:    &deal.ID,
		Meta:        map[string]any{"listing_id": listing.ID, "amount_nano": amount},
	})

	s.log.Info("deal created",
		zap.String("deal_id", deal.ID.String()),
		zap.String("listing_id", listing.ID.String()),
		zap.Int64("amount_nano", amount),
	)
	return deal, nil
}

// ProposeSchedule moves the deal into slot negotiation with a concrete
// proposed time.
func (s *DealService) ProposeSchedule(ctx context.Context, dealID uuid.UUID, actorID uuid.UUID, scheduledAt time.Time) (*models.Deal, error) {
	if scheduledAt.Before(time.Now()) {
		return nil, fmt.Errorf("scheduled time %s is in the past", scheduledAt)
	}
	return s.sm.Transition(ctx, dealID,
		[]models.EscrowStatus{models.StatusDraft, models.StatusWaitingSchedule},
		models.StatusSchedulingPending, &actorID, "user",
		func(ctx context.Context, tx pgx.Tx, deal *models.Deal) error {
			deal.ScheduledAt = &scheduledAt
			return nil
		})
}

// ConfirmSchedule accepts the proposed slot; the deal now waits on the
// creative.
func (s *DealService) ConfirmSchedule(ctx context.Context, dealID uuid.UUID, actorID uuid.UUID) (*models.Deal, error) {
	return s.sm.Transition(ctx, dealID,
		[]models.EscrowStatus{models.StatusSchedulingPending},
		models.StatusWaitingCreative, &actorID, "user", nil)
}

// SubmitCreative attaches the ad creative and queues it for counterparty
// review.
func (s *DealService) SubmitCreative(ctx context.Context, dealID uuid.UUID, actorID uuid.UUID, brief string) (*models.Deal, error) {
	if strings.TrimSpace(brief) == "" {
		return nil, fmt.Errorf("creative brief is empty")
	}
	return s.sm.Transition(ctx, dealID,
		[]models.EscrowStatus{models.StatusWaitingCreative, models.StatusCreativeChangesRequested},
		models.StatusCreativeSubmitted, &actorID, "user",
		func(ctx context.Context, tx pgx.Tx, deal *models.Deal) error {
			deal.Brief = &brief
			return nil
		})
}

// RequestCreativeChanges sends the creative back. Without notes the deal
// first waits for the reviewer to spell out what must change.
func (s *DealService) RequestCreativeChanges(ctx context.Context, dealID uuid.UUID, actorID uuid.UUID, notes *string) (*models.Deal, error) {
	target := models.StatusCreativeChangesNotesPending
	if notes != nil && strings.TrimSpace(*notes) != "" {
		target = models.StatusCreativeChangesRequested
	}
	deal, err := s.sm.Transition(ctx, dealID,
		[]models.EscrowStatus{models.StatusCreativeSubmitted},
		target, &actorID, "user", nil)
	if err != nil {
		return nil, err
	}
	if target == models.StatusCreativeChangesRequested {
		s.notifyParticipant(ctx, deal, "change_notes", map[string]any{"notes": *notes})
	}
	return deal, nil
}

// ProvideChangeNotes supplies the missing change notes.
func (s *DealService) ProvideChangeNotes(ctx context.Context, dealID uuid.UUID, actorID uuid.UUID, notes string) (*models.Deal, error) {
	if strings.TrimSpace(notes) == "" {
		return nil, fmt.Errorf("change notes are empty")
	}
	deal, err := s.sm.Transition(ctx, dealID,
		[]models.EscrowStatus{models.StatusCreativeChangesNotesPending},
		models.StatusCreativeChangesRequested, &actorID, "user", nil)
	if err != nil {
		return nil, err
	}
	s.notifyParticipant(ctx, deal, "change_notes", map[string]any{"notes": notes})
	return deal, nil
}

// SubmitForAdminReview hands the approved creative to platform moderation.
func (s *DealService) SubmitForAdminReview(ctx context.Context, dealID uuid.UUID, actorID uuid.UUID) (*models.Deal, error) {
	return s.sm.Transition(ctx, dealID,
		[]models.EscrowStatus{models.StatusCreativeSubmitted, models.StatusCreativeChangesRequested},
		models.StatusAdminReview, &actorID, "user", nil)
}

// AdminApprove clears moderation and opens the payment window. A dedicated
// escrow wallet is issued for the deal and a deposit ledger row is created
// with the expected observation window; both commit atomically with the
// transition.
func (s *DealService) AdminApprove(ctx context.Context, dealID uuid.UUID, adminID uuid.UUID) (*models.Deal, error) {
	// Key derivation is chain-free, so the wallet can be provisioned before
	// the transaction opens. If the transition fails the seed is discarded.
	provisioned, err := ton.ProvisionWallet(s.api, s.ks)
	if err != nil {
		return nil, fmt.Errorf("provision escrow wallet: %w", err)
	}

	return s.sm.Transition(ctx, dealID,
		[]models.EscrowStatus{models.StatusAdminReview},
		models.StatusAwaitingPayment, &adminID, "admin",
		func(ctx context.Context, tx pgx.Tx, deal *models.Deal) error {
			wallet := &models.EscrowWallet{
				Scope:    models.WalletScopeDeal,
				DealID:   &deal.ID,
				Address:  provisioned.Address,
				Status:   models.WalletStatusActive,
				Provider: "internal",
			}
			if err := s.walletRepo.CreateWithKeyInTx(ctx, tx, wallet, provisioned.EncryptedSeed, 1); err != nil {
				if errors.Is(err, repositories.ErrDuplicateExternalEvent) {
					return fmt.Errorf("deal %s already has an escrow wallet", deal.ID)
				}
				return fmt.Errorf("create escrow wallet: %w", err)
			}

			now := time.Now()
			windowEnd := now.Add(s.cfg.DealPaymentTimeout)
			hold := &models.Transaction{
				Type:                   models.TxTypeEscrowHold,
				Direction:              models.TxDirectionIn,
				Status:                 models.TxStatusPending,
				AmountNano:             deal.EscrowAmountNano,
				Currency:               deal.EscrowCurrency,
				DealID:                 &deal.ID,
				ChannelID:              &deal.ChannelID,
				CounterpartyUserID:     &deal.AdvertiserUserID,
				DepositAddress:         &provisioned.Address,
				IdempotencyKey:         fmt.Sprintf("deposit:%s", deal.ID),
				ExpectedObservedAfter:  &now,
				ExpectedObservedBefore: &windowEnd,
			}
			if err := s.txRepo.CreateInTx(ctx, tx, hold); err != nil {
				return fmt.Errorf("create deposit row: %w", err)
			}

			deal.EscrowPaymentAddress = &provisioned.Address
			return nil
		})
}

// AdminReject cancels the deal at moderation.
func (s *DealService) AdminReject(ctx context.Context, dealID uuid.UUID, adminID uuid.UUID, reason string) (*models.Deal, error) {
	return s.sm.Transition(ctx, dealID,
		[]models.EscrowStatus{models.StatusAdminReview},
		models.StatusCanceled, &adminID, "admin",
		func(ctx context.Context, tx pgx.Tx, deal *models.Deal) error {
			deal.CancelReason = &reason
			return nil
		})
}

// ConfirmSlot acknowledges the funded deal's posting slot. Driven by the
// worker once funds are confirmed and the scheduled time still holds.
func (s *DealService) ConfirmSlot(ctx context.Context, dealID uuid.UUID) (*models.Deal, error) {
	return s.sm.Transition(ctx, dealID,
		[]models.EscrowStatus{models.StatusFundsConfirmed},
		models.StatusScheduled, nil, "system",
		func(ctx context.Context, tx pgx.Tx, deal *models.Deal) error {
			if deal.ScheduledAt == nil {
				return fmt.Errorf("deal %s has no scheduled time", deal.ID)
			}
			return nil
		})
}

// StartPosting claims a due deal for publication and calls the bot. On
// success the deal moves to POSTED_VERIFYING with the published message
// recorded and the hold window started; on bot failure the deal stays in
// POSTING with the error recorded for the next sweep.
func (s *DealService) StartPosting(ctx context.Context, dealID uuid.UUID) (*models.Deal, error) {
	deal, err := s.sm.Transition(ctx, dealID,
		[]models.EscrowStatus{models.StatusScheduled},
		models.StatusPosting, nil, "system", nil)
	if err != nil {
		return nil, err
	}

	brief := ""
	if deal.Brief != nil {
		brief = *deal.Brief
	}
	result, err := s.botClient.PostToDeal(ctx, PostRequest{
		DealID: deal.ID.String(),
		ChatID: deal.ListingSnapshot.ChannelChatID,
		Text:   brief,
	})
	if err != nil {
		s.log.Error("posting failed", zap.String("deal_id", deal.ID.String()), zap.Error(err))
		if upErr := s.dealRepo.SetDeliveryError(ctx, dealID, err.Error()); upErr != nil {
			s.log.Error("record delivery error", zap.String("deal_id", dealID.String()), zap.Error(upErr))
		}
		return deal, fmt.Errorf("post to channel: %w", err)
	}

	return s.sm.Transition(ctx, dealID,
		[]models.EscrowStatus{models.StatusPosting},
		models.StatusPostedVerifying, nil, "system",
		func(ctx context.Context, tx pgx.Tx, d *models.Deal) error {
			now := time.Now()
			remain := now.Add(s.cfg.DealHoldPeriod)
			d.PublishedMessageID = &result.MessageID
			d.PublishedAt = &now
			d.MustRemainUntil = &remain
			d.DeliveryError = nil
			return nil
		})
}

// Cancel aborts a deal before funds are locked in. Open deposit rows are
// canceled in the same transaction so late transfers stay unmatched.
func (s *DealService) Cancel(ctx context.Context, dealID uuid.UUID, actorID *uuid.UUID, actorType, reason string) (*models.Deal, error) {
	return s.sm.Transition(ctx, dealID, cancellableStatuses,
		models.StatusCanceled, actorID, actorType,
		func(ctx context.Context, tx pgx.Tx, deal *models.Deal) error {
			deal.CancelReason = &reason
			return s.txRepo.CancelOpenDeposits(ctx, tx, deal.ID)
		})
}

// Dispute freezes the deal for manual adjudication.
func (s *DealService) Dispute(ctx context.Context, dealID uuid.UUID, actorID uuid.UUID, reason string) (*models.Deal, error) {
	deal, err := s.sm.Transition(ctx, dealID,
		[]models.EscrowStatus{
			models.StatusAdminReview,
			models.StatusFundsConfirmed,
			models.StatusScheduled,
			models.StatusPosting,
			models.StatusPostedVerifying,
		},
		models.StatusDisputed, &actorID, "user", nil)
	if err != nil {
		return nil, err
	}
	_ = s.auditRepo.Log(ctx, models.AuditLog{
		ActorUserID: &actorID,
		ActorType:   "user",
		Action:      "deal_disputed",
		EntityType:  "deal",
		EntityID:    &deal.ID,
		Meta:        map[string]any{"reason": reason},
	})
	return deal, nil
}

// Release pays the publisher. Outside a dispute the hold window must have
// elapsed and delivery must have been verified. The payout ledger row is
// created atomically with the transition; fees are computed at execution.
func (s *DealService) Release(ctx context.Context, dealID uuid.UUID, actorID *uuid.UUID, actorType, destinationAddress string) (*models.Deal, error) {
	if destinationAddress == "" {
		return nil, fmt.Errorf("destination address is required")
	}

	var payoutID uuid.UUID
	deal, err := s.sm.Transition(ctx, dealID,
		[]models.EscrowStatus{models.StatusPostedVerifying, models.StatusDisputed},
		models.StatusReleased, actorID, actorType,
		func(ctx context.Context, tx pgx.Tx, deal *models.Deal) error {
			if deal.EscrowStatus == models.StatusPostedVerifying {
				if deal.MustRemainUntil != nil && time.Now().Before(*deal.MustRemainUntil) {
					return fmt.Errorf("hold period runs until %s", deal.MustRemainUntil)
				}
				if deal.DeliveryVerifiedAt == nil {
					return fmt.Errorf("delivery not verified for deal %s", deal.ID)
				}
			}

			payout := &models.Transaction{
				Type:               models.TxTypeEscrowRelease,
				Direction:          models.TxDirectionOut,
				Status:             models.TxStatusPending,
				AmountNano:         deal.EscrowAmountNano,
				Currency:           deal.EscrowCurrency,
				DealID:             &deal.ID,
				ChannelID:          &deal.ChannelID,
				CounterpartyUserID: &deal.PublisherUserID,
				DestinationAddress: &destinationAddress,
				IdempotencyKey:     fmt.Sprintf("escrow_release:%s", deal.ID),
			}
			if err := s.txRepo.CreateInTx(ctx, tx, payout); err != nil {
				if errors.Is(err, repositories.ErrDuplicateExternalEvent) {
					return fmt.Errorf("release already recorded for deal %s", deal.ID)
				}
				return err
			}
			payoutID = payout.ID
			return nil
		})
	if err != nil {
		return nil, err
	}

	s.triggerPayout(payoutID)
	return deal, nil
}

// Refund returns held funds to the advertiser. With no explicit
// destination the refund goes back to the address the deposit came from.
func (s *DealService) Refund(ctx context.Context, dealID uuid.UUID, actorID *uuid.UUID, actorType string, destinationAddress *string) (*models.Deal, error) {
	var payoutID uuid.UUID
	deal, err := s.sm.Transition(ctx, dealID, refundableStatuses,
		models.StatusRefunded, actorID, actorType,
		func(ctx context.Context, tx pgx.Tx, deal *models.Deal) error {
			received, payer, err := s.depositState(ctx, deal.ID)
			if err != nil {
				return err
			}
			if received <= 0 {
				// Nothing arrived; the transition alone closes the deal out.
				return nil
			}

			dest := destinationAddress
			if dest == nil || *dest == "" {
				if payer == "" {
					return fmt.Errorf("no refund destination known for deal %s", deal.ID)
				}
				dest = &payer
			}

			refund := &models.Transaction{
				Type:               models.TxTypeEscrowRefund,
				Direction:          models.TxDirectionOut,
				Status:             models.TxStatusPending,
				AmountNano:         received,
				Currency:           deal.EscrowCurrency,
				DealID:             &deal.ID,
				ChannelID:          &deal.ChannelID,
				CounterpartyUserID: &deal.AdvertiserUserID,
				DestinationAddress: dest,
				IdempotencyKey:     fmt.Sprintf("withdraw:%s", deal.ID),
			}
			if err := s.txRepo.CreateInTx(ctx, tx, refund); err != nil {
				if errors.Is(err, repositories.ErrDuplicateExternalEvent) {
					return fmt.Errorf("refund already recorded for deal %s", deal.ID)
				}
				return err
			}
			payoutID = refund.ID
			return nil
		})
	if err != nil {
		return nil, err
	}

	if payoutID != uuid.Nil {
		s.triggerPayout(payoutID)
	}
	return deal, nil
}

// ResolveDispute closes a disputed deal in either direction.
func (s *DealService) ResolveDispute(ctx context.Context, dealID uuid.UUID, adminID uuid.UUID, releaseToPublisher bool, destinationAddress *string) (*models.Deal, error) {
	if releaseToPublisher {
		if destinationAddress == nil || *destinationAddress == "" {
			return nil, fmt.Errorf("destination address is required to release")
		}
		return s.Release(ctx, dealID, &adminID, "admin", *destinationAddress)
	}
	return s.Refund(ctx, dealID, &adminID, "admin", destinationAddress)
}

// MarkDeliveryVerified records a successful delivery check.
func (s *DealService) MarkDeliveryVerified(ctx context.Context, dealID uuid.UUID) error {
	return s.dealRepo.SetDeliveryVerified(ctx, dealID, time.Now())
}

// depositState sums what actually arrived for the deal and recovers the
// payer address recorded at credit time.
func (s *DealService) depositState(ctx context.Context, dealID uuid.UUID) (int64, string, error) {
	rows, err := s.txRepo.ListByDeal(ctx, dealID)
	if err != nil {
		return 0, "", fmt.Errorf("list deal ledger: %w", err)
	}

	var received int64
	payer := ""
	for _, row := range rows {
		if row.Direction != models.TxDirectionIn {
			continue
		}
		received += row.ReceivedNano
		if meta, ok := row.Metadata.(map[string]any); ok {
			if p, ok := meta["payer_address"].(string); ok && p != "" {
				payer = p
			}
		}
	}
	return received, payer, nil
}

// triggerPayout runs the executor off the request path. The outgoing
// watcher re-executes any PENDING row whose trigger never ran.
func (s *DealService) triggerPayout(id uuid.UUID) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.BroadcastTimeout+30*time.Second)
		defer cancel()
		if err := s.payouts.Execute(ctx, id); err != nil {
			s.log.Error("payout trigger failed", zap.String("transaction_id", id.String()), zap.Error(err))
		}
	}()
}

func (s *DealService) notifyParticipant(ctx context.Context, deal *models.Deal, kind string, payload map[string]any) {
	payload["deal_id"] = deal.ID.String()
	payload["kind"] = kind
	_ = s.publisher.Publish(ctx, "events:deal", events.Event{
		Type:    events.EventBotNotification,
		Payload: payload,
	})
}
