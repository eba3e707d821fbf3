package watcher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/promoplace/backend/internal/config"
	"github.com/promoplace/backend/internal/events"
	"github.com/promoplace/backend/internal/models"
)

type fakeOutgoingStore struct {
	hashes   map[uuid.UUID]string
	hashErr  error
	statuses []string
}

func (f *fakeOutgoingStore) ListByStatus(ctx context.Context, status, direction string, limit int) ([]models.Transaction, error) {
	return nil, nil
}

func (f *fakeOutgoingStore) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	f.statuses = append(f.statuses, status)
	return nil
}

func (f *fakeOutgoingStore) MarkFailed(ctx context.Context, id uuid.UUID, code, msg string) error {
	return nil
}

func (f *fakeOutgoingStore) AdoptBroadcast(ctx context.Context, id uuid.UUID, hash string) (bool, error) {
	return true, nil
}

func (f *fakeOutgoingStore) PrepareRetry(ctx context.Context, id uuid.UUID, newKey string) (bool, error) {
	return true, nil
}

func (f *fakeOutgoingStore) HasOpenOutgoing(ctx context.Context, dealID uuid.UUID) (bool, error) {
	return true, nil
}

func (f *fakeOutgoingStore) SetExternalTxHash(ctx context.Context, id uuid.UUID, hash string) error {
	if f.hashErr != nil {
		return f.hashErr
	}
	if f.hashes == nil {
		f.hashes = map[uuid.UUID]string{}
	}
	f.hashes[id] = hash
	return nil
}

type fakeWalletStore struct{}

func (fakeWalletStore) GetByDealID(ctx context.Context, dealID uuid.UUID) (*models.EscrowWallet, error) {
	return nil, errors.New("not implemented")
}

func (fakeWalletStore) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	return nil
}

type fakePublisher struct {
	published []events.Event
}

func (p *fakePublisher) Publish(ctx context.Context, stream string, event events.Event) error {
	p.published = append(p.published, event)
	return nil
}

func awaitingRow() *models.Transaction {
	dealID := uuid.New()
	return &models.Transaction{
		ID:             uuid.New(),
		Type:           models.TxTypeEscrowRelease,
		Direction:      models.TxDirectionOut,
		Status:         models.TxStatusAwaitingConfirmation,
		AmountNano:     2_500_000_000,
		Currency:       "TON",
		DealID:         &dealID,
		IdempotencyKey: "payout:" + uuid.NewString() + ":0",
		CreatedAt:      time.Now().Add(-5 * time.Minute),
		UpdatedAt:      time.Now().Add(-time.Minute),
	}
}

// A row that lost its hash at broadcast time must get the recovered one
// persisted, not just logged, before being driven to COMPLETED.
func TestConfirmAndCompletePersistsRecoveredHash(t *testing.T) {
	store := &fakeOutgoingStore{}
	pub := &fakePublisher{}
	w := &OutgoingWatcher{
		txRepo:     store,
		walletRepo: fakeWalletStore{},
		publisher:  pub,
		cfg:        &config.Config{},
		log:        zap.NewNop(),
	}
	row := awaitingRow()

	w.confirmAndComplete(context.Background(), row, "cafebabe")

	if store.hashes[row.ID] != "cafebabe" {
		t.Errorf("recovered hash not persisted, got %q", store.hashes[row.ID])
	}
	want := []string{models.TxStatusConfirmed, models.TxStatusCompleted}
	if len(store.statuses) != 2 || store.statuses[0] != want[0] || store.statuses[1] != want[1] {
		t.Errorf("status sequence %v, want %v", store.statuses, want)
	}
	if len(pub.published) != 1 || pub.published[0].Type != events.EventPayoutCompleted {
		t.Errorf("expected one payout-completed event, got %v", pub.published)
	}
}

func TestConfirmAndCompleteStopsWhenHashWriteFails(t *testing.T) {
	store := &fakeOutgoingStore{hashErr: errors.New("connection reset")}
	w := &OutgoingWatcher{
		txRepo:     store,
		walletRepo: fakeWalletStore{},
		publisher:  &fakePublisher{},
		cfg:        &config.Config{},
		log:        zap.NewNop(),
	}

	w.confirmAndComplete(context.Background(), awaitingRow(), "cafebabe")

	if len(store.statuses) != 0 {
		t.Errorf("row advanced despite unrecorded hash: %v", store.statuses)
	}
}
