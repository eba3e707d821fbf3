// Package watcher reconciles on-chain TON activity with the ledger: the
// incoming watcher credits escrow deposits, the outgoing watcher confirms
// broadcast payouts and drives retries.
package watcher

import (
	"github.com/promoplace/backend/internal/models"
)

// MatchOutcome classifies a deposit-matching attempt.
type MatchOutcome int

const (
	MatchNone MatchOutcome = iota
	MatchOne
	MatchAmbiguous
)

// SelectDepositCandidate picks the ledger row an observed transfer pays
// into. A row is eligible when its expected-observation window contains
// the transfer time and it still expects at least the transferred amount.
// Exactly one eligible row is a match; zero leaves the transfer unmatched;
// more than one is ambiguous and must not be auto-credited.
func SelectDepositCandidate(open []models.Transaction, transfer *models.TonTransfer) (*models.Transaction, MatchOutcome) {
	var match *models.Transaction
	count := 0
	for i := range open {
		t := &open[i]
		if !depositEligible(t, transfer) {
			continue
		}
		count++
		if match == nil {
			match = t
		}
	}
	switch count {
	case 0:
		return nil, MatchNone
	case 1:
		return match, MatchOne
	default:
		return nil, MatchAmbiguous
	}
}

func depositEligible(t *models.Transaction, transfer *models.TonTransfer) bool {
	if t.Status != models.TxStatusPending && t.Status != models.TxStatusPartial {
		return false
	}
	if t.ExpectedObservedAfter != nil && transfer.ObservedAt.Before(*t.ExpectedObservedAfter) {
		return false
	}
	if t.ExpectedObservedBefore != nil && transfer.ObservedAt.After(*t.ExpectedObservedBefore) {
		return false
	}
	return t.Outstanding() >= transfer.AmountNano
}
