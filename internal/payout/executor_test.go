package payout

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/xssnick/tonutils-go/address"
	"go.uber.org/zap"

	"github.com/promoplace/backend/internal/config"
	"github.com/promoplace/backend/internal/models"
)

const testWalletAddr = "EQD4FPq-PRD4YtG87wgL7AErgQwHUMFQ-JxyYw8jzBPhqsm3"

type fakeTxStore struct {
	adoptedID   uuid.UUID
	adoptedHash string
	markedHash  string
	failedCode  string
}

func (f *fakeTxStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeTxStore) Create(ctx context.Context, t *models.Transaction) error { return nil }

func (f *fakeTxStore) MarkBroadcast(ctx context.Context, id uuid.UUID, hash string) (bool, error) {
	f.markedHash = hash
	return true, nil
}

func (f *fakeTxStore) MarkFailed(ctx context.Context, id uuid.UUID, code, msg string) error {
	f.failedCode = code
	return nil
}

func (f *fakeTxStore) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	return nil
}

func (f *fakeTxStore) AdoptBroadcast(ctx context.Context, id uuid.UUID, hash string) (bool, error) {
	f.adoptedID = id
	f.adoptedHash = hash
	return true, nil
}

type fakeWalletStore struct {
	wallet      *models.EscrowWallet
	keyRequests int
}

func (f *fakeWalletStore) GetByDealID(ctx context.Context, dealID uuid.UUID) (*models.EscrowWallet, error) {
	return f.wallet, nil
}

func (f *fakeWalletStore) GetKey(ctx context.Context, walletID uuid.UUID) (*models.EscrowWalletKey, error) {
	f.keyRequests++
	return nil, errors.New("no key")
}

type fakeScanner struct {
	hash    string
	found   bool
	err     error
	comment string
}

func (f *fakeScanner) FindTransferByComment(ctx context.Context, addr *address.Address, comment string, horizon time.Time) (string, bool, error) {
	f.comment = comment
	return f.hash, f.found, f.err
}

func pendingReleaseRow() *models.Transaction {
	dealID := uuid.New()
	dst := testWalletAddr
	return &models.Transaction{
		ID:                 uuid.New(),
		Type:               models.TxTypeEscrowRelease,
		Direction:          models.TxDirectionOut,
		Status:             models.TxStatusPending,
		AmountNano:         1_000_000_000,
		Currency:           "TON",
		DealID:             &dealID,
		DestinationAddress: &dst,
		IdempotencyKey:     "payout:" + uuid.NewString() + ":0",
		CreatedAt:          time.Now().Add(-10 * time.Minute),
	}
}

// A PENDING row whose earlier attempt already landed on chain must be
// adopted, not broadcast again under a fresh seqno.
func TestBroadcastAdoptsLandedTransfer(t *testing.T) {
	row := pendingReleaseRow()
	txs := &fakeTxStore{}
	wallets := &fakeWalletStore{wallet: &models.EscrowWallet{ID: uuid.New(), Address: testWalletAddr}}
	scan := &fakeScanner{hash: "deadbeef", found: true}
	e := &Executor{
		scanner:    scan,
		txRepo:     txs,
		walletRepo: wallets,
		cfg:        &config.Config{},
		log:        zap.NewNop(),
	}

	if err := e.broadcast(context.Background(), row, row.AmountNano); err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	if txs.adoptedID != row.ID || txs.adoptedHash != "deadbeef" {
		t.Errorf("landed transfer not adopted: id=%s hash=%q", txs.adoptedID, txs.adoptedHash)
	}
	if scan.comment != row.IdempotencyKey {
		t.Errorf("scanned comment %q, want row key %q", scan.comment, row.IdempotencyKey)
	}
	if wallets.keyRequests != 0 {
		t.Errorf("signing key loaded for an already-landed transfer")
	}
	if txs.markedHash != "" {
		t.Errorf("unexpected MarkBroadcast with hash %q", txs.markedHash)
	}
}

// An unreadable chain leaves the row PENDING for the next cycle; sending
// without the landed check could double-pay.
func TestBroadcastScanErrorStopsSend(t *testing.T) {
	row := pendingReleaseRow()
	txs := &fakeTxStore{}
	wallets := &fakeWalletStore{wallet: &models.EscrowWallet{ID: uuid.New(), Address: testWalletAddr}}
	scanErr := errors.New("liteserver unavailable")
	e := &Executor{
		scanner:    &fakeScanner{err: scanErr},
		txRepo:     txs,
		walletRepo: wallets,
		cfg:        &config.Config{},
		log:        zap.NewNop(),
	}

	err := e.broadcast(context.Background(), row, row.AmountNano)
	if !errors.Is(err, scanErr) {
		t.Fatalf("expected scan error, got %v", err)
	}
	if wallets.keyRequests != 0 {
		t.Errorf("send attempted with prior attempt unverified")
	}
	if txs.adoptedHash != "" || txs.markedHash != "" || txs.failedCode != "" {
		t.Errorf("row status touched on scan failure: %+v", txs)
	}
}
