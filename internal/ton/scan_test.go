package ton

import (
	"testing"

	"github.com/xssnick/tonutils-go/tlb"
)

func internalMsg(t *testing.T, comment string) tlb.Message {
	t.Helper()
	return tlb.Message{
		MsgType: tlb.MsgTypeInternal,
		Msg:     &tlb.InternalMessage{Body: commentCell(t, comment)},
	}
}

func TestMessagesCarryComment(t *testing.T) {
	key := "payout:11111111-2222-3333-4444-555555555555:0"

	tests := []struct {
		name string
		msgs []tlb.Message
		want bool
	}{
		{
			name: "matching comment",
			msgs: []tlb.Message{internalMsg(t, key)},
			want: true,
		},
		{
			name: "match among several outputs",
			msgs: []tlb.Message{internalMsg(t, "other"), internalMsg(t, key)},
			want: true,
		},
		{
			name: "different comment",
			msgs: []tlb.Message{internalMsg(t, "payout:11111111-2222-3333-4444-555555555555:1")},
			want: false,
		},
		{
			name: "non-internal output skipped",
			msgs: []tlb.Message{{
				MsgType: tlb.MsgTypeExternalOut,
				Msg:     &tlb.ExternalMessageOut{Body: commentCell(t, key)},
			}},
			want: false,
		},
		{
			name: "no outputs",
			msgs: nil,
			want: false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := messagesCarryComment(tc.msgs, key); got != tc.want {
				t.Errorf("messagesCarryComment() = %v, want %v", got, tc.want)
			}
		})
	}
}
