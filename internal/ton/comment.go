package ton

import (
	"strings"

	"github.com/xssnick/tonutils-go/tlb"
	"github.com/xssnick/tonutils-go/tvm/cell"
)

// ExtractComment parses a text comment from an InternalMessage body.
// TON text comments carry opcode 0x00000000 followed by UTF-8 text.
func ExtractComment(inMsg *tlb.InternalMessage) string {
	if inMsg == nil || inMsg.Body == nil {
		return ""
	}
	return ExtractCommentFromBody(inMsg.Body)
}

// ExtractCommentFromBody reads a single-cell text comment from a message body.
func ExtractCommentFromBody(body *cell.Cell) string {
	slice := body.BeginParse()
	if slice.BitsLeft() < 32 {
		return ""
	}

	op, err := slice.LoadUInt(32)
	if err != nil || op != 0 {
		return ""
	}

	remaining := slice.BitsLeft()
	if remaining < 8 {
		return ""
	}

	data, err := slice.LoadSlice(remaining)
	if err != nil {
		return ""
	}

	return strings.TrimSpace(string(data))
}
