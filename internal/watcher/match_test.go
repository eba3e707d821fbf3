package watcher

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/promoplace/backend/internal/models"
)

func depositRow(id string, amount, received int64, after, before *time.Time) models.Transaction {
	status := models.TxStatusPending
	if received > 0 {
		status = models.TxStatusPartial
	}
	return models.Transaction{
		ID:                     uuid.MustParse(id),
		Type:                   models.TxTypeDeposit,
		Direction:              models.TxDirectionIn,
		Status:                 status,
		AmountNano:             amount,
		ReceivedNano:           received,
		Currency:               "TON",
		ExpectedObservedAfter:  after,
		ExpectedObservedBefore: before,
	}
}

func transferAt(amount int64, observedAt time.Time) *models.TonTransfer {
	return &models.TonTransfer{
		TxHash:     "abc",
		AmountNano: amount,
		ObservedAt: observedAt,
	}
}

func TestSelectDepositCandidate(t *testing.T) {
	now := time.Now()
	windowStart := now.Add(-time.Hour)
	windowEnd := now.Add(time.Hour)

	idA := "11111111-1111-1111-1111-111111111111"
	idB := "22222222-2222-2222-2222-222222222222"

	t.Run("single candidate matches", func(t *testing.T) {
		open := []models.Transaction{depositRow(idA, 1_000_000_000, 0, &windowStart, &windowEnd)}
		got, outcome := SelectDepositCandidate(open, transferAt(1_000_000_000, now))
		if outcome != MatchOne {
			t.Fatalf("outcome = %v, want MatchOne", outcome)
		}
		if got.ID.String() != idA {
			t.Errorf("matched wrong row %s", got.ID)
		}
	})

	t.Run("no candidates", func(t *testing.T) {
		got, outcome := SelectDepositCandidate(nil, transferAt(500, now))
		if outcome != MatchNone || got != nil {
			t.Errorf("outcome = %v, row = %v, want MatchNone and nil", outcome, got)
		}
	})

	t.Run("two eligible rows is ambiguous", func(t *testing.T) {
		open := []models.Transaction{
			depositRow(idA, 1_000_000_000, 0, &windowStart, &windowEnd),
			depositRow(idB, 2_000_000_000, 0, &windowStart, &windowEnd),
		}
		got, outcome := SelectDepositCandidate(open, transferAt(1_000_000_000, now))
		if outcome != MatchAmbiguous || got != nil {
			t.Errorf("outcome = %v, row = %v, want MatchAmbiguous and nil", outcome, got)
		}
	})

	t.Run("window excludes early and late transfers", func(t *testing.T) {
		open := []models.Transaction{depositRow(idA, 1_000_000_000, 0, &windowStart, &windowEnd)}

		if _, outcome := SelectDepositCandidate(open, transferAt(100, windowStart.Add(-time.Minute))); outcome != MatchNone {
			t.Errorf("early transfer: outcome = %v, want MatchNone", outcome)
		}
		if _, outcome := SelectDepositCandidate(open, transferAt(100, windowEnd.Add(time.Minute))); outcome != MatchNone {
			t.Errorf("late transfer: outcome = %v, want MatchNone", outcome)
		}
	})

	t.Run("overpayment is not credited", func(t *testing.T) {
		open := []models.Transaction{depositRow(idA, 1_000_000_000, 900_000_000, &windowStart, &windowEnd)}
		_, outcome := SelectDepositCandidate(open, transferAt(200_000_000, now))
		if outcome != MatchNone {
			t.Errorf("outcome = %v, want MatchNone for transfer exceeding outstanding", outcome)
		}
	})

	t.Run("partial row still receives the remainder", func(t *testing.T) {
		open := []models.Transaction{depositRow(idA, 1_000_000_000, 400_000_000, &windowStart, &windowEnd)}
		got, outcome := SelectDepositCandidate(open, transferAt(600_000_000, now))
		if outcome != MatchOne || got == nil {
			t.Fatalf("outcome = %v, want MatchOne", outcome)
		}
	})

	t.Run("ineligible statuses are skipped", func(t *testing.T) {
		row := depositRow(idA, 1_000_000_000, 0, &windowStart, &windowEnd)
		row.Status = models.TxStatusConfirmed
		_, outcome := SelectDepositCandidate([]models.Transaction{row}, transferAt(100, now))
		if outcome != MatchNone {
			t.Errorf("outcome = %v, want MatchNone for confirmed row", outcome)
		}
	})

	t.Run("nil window bounds accept any time", func(t *testing.T) {
		open := []models.Transaction{depositRow(idA, 1_000_000_000, 0, nil, nil)}
		_, outcome := SelectDepositCandidate(open, transferAt(100, now.Add(-240*time.Hour)))
		if outcome != MatchOne {
			t.Errorf("outcome = %v, want MatchOne with open window", outcome)
		}
	})
}
