package ton

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/xssnick/tonutils-go/address"
	"github.com/xssnick/tonutils-go/tlb"
	"github.com/xssnick/tonutils-go/ton"
)

const scanPageSize = 16

// Scanner pages backwards through an account's transaction history looking
// for outgoing transfers by their text comment. The payout executor uses it
// to check whether a prior broadcast landed before sending again, and the
// outgoing watcher uses it to recover transaction hashes.
type Scanner struct {
	api ton.APIClientWrapped
}

func NewScanner(api ton.APIClientWrapped) *Scanner {
	return &Scanner{api: api}
}

// FindTransferByComment scans addr's transactions, newest first, for an
// outgoing transfer whose text comment equals comment. The scan stops once
// it pages past horizon. Returns the hex transaction hash on a match.
func (s *Scanner) FindTransferByComment(ctx context.Context, addr *address.Address, comment string, horizon time.Time) (string, bool, error) {
	account, err := AccountState(ctx, s.api, addr)
	if err != nil {
		return "", false, err
	}
	if account == nil {
		return "", false, nil
	}

	lt := account.LastTxLT
	hash := account.LastTxHash

	for {
		txs, err := s.api.ListTransactions(ctx, addr, scanPageSize, lt, hash)
		if err != nil {
			return "", false, fmt.Errorf("list transactions: %w", err)
		}
		if len(txs) == 0 {
			return "", false, nil
		}

		for i := len(txs) - 1; i >= 0; i-- {
			tx := txs[i]
			if time.Unix(int64(tx.Now), 0).Before(horizon) {
				return "", false, nil
			}
			if transactionCarriesComment(tx, comment) {
				return hex.EncodeToString(tx.Hash), true, nil
			}
		}

		oldest := txs[0]
		if oldest.PrevTxLT == 0 {
			return "", false, nil
		}
		lt = oldest.PrevTxLT
		hash = oldest.PrevTxHash
	}
}

func transactionCarriesComment(tx *tlb.Transaction, comment string) bool {
	if tx.IO.Out == nil {
		return false
	}
	msgs, err := tx.IO.Out.ToSlice()
	if err != nil {
		return false
	}
	return messagesCarryComment(msgs, comment)
}

// messagesCarryComment reports whether any outgoing internal message in
// msgs carries comment as its text comment. Non-internal messages (logs,
// external-out) never match.
func messagesCarryComment(msgs []tlb.Message, comment string) bool {
	for _, m := range msgs {
		out, ok := m.Msg.(*tlb.InternalMessage)
		if !ok || out == nil {
			continue
		}
		if ExtractComment(out) == comment {
			return true
		}
	}
	return false
}
