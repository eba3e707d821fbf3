package watcher

import (
	"testing"

	"github.com/promoplace/backend/internal/models"
)

func TestTransferForMatching(t *testing.T) {
	fresh := &models.TonTransfer{TxHash: "aa"}
	unmatched := &models.TonTransfer{TxHash: "aa", Matched: false}
	matched := &models.TonTransfer{TxHash: "aa", Matched: true}

	tests := []struct {
		name     string
		inserted bool
		stored   *models.TonTransfer
		want     *models.TonTransfer
	}{
		{name: "freshly inserted", inserted: true, want: fresh},
		{name: "recorded earlier but never credited", stored: unmatched, want: unmatched},
		{name: "already matched", stored: matched, want: nil},
		{name: "no stored row", stored: nil, want: nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := transferForMatching(tc.inserted, fresh, tc.stored); got != tc.want {
				t.Errorf("transferForMatching(%v) = %v, want %v", tc.inserted, got, tc.want)
			}
		})
	}
}
