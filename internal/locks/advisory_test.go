package locks

import (
	"testing"

	"github.com/google/uuid"
)

func TestLockKeyDeterministic(t *testing.T) {
	if LockKey(NameIncomingPayments) != LockKey("ton:incoming-payments") {
		t.Error("same name must map to same key")
	}
	if LockKey(NameIncomingPayments) == LockKey(NameOutgoingTransfers) {
		t.Error("distinct lock names collided")
	}
}

func TestEntityLockNames(t *testing.T) {
	id := uuid.MustParse("11111111-2222-3333-4444-555555555555")

	if got, want := PayoutName(id), "payout:11111111-2222-3333-4444-555555555555"; got != want {
		t.Errorf("PayoutName = %q, want %q", got, want)
	}
	if got, want := EscrowReleaseName(id), "escrow_release:11111111-2222-3333-4444-555555555555"; got != want {
		t.Errorf("EscrowReleaseName = %q, want %q", got, want)
	}
	if LockKey(PayoutName(id)) == LockKey(EscrowReleaseName(id)) {
		t.Error("payout and escrow_release locks for same id must not collide")
	}
}
