package ton

import (
	"testing"

	"github.com/xssnick/tonutils-go/tvm/cell"
)

func commentCell(t *testing.T, text string) *cell.Cell {
	t.Helper()
	b := cell.BeginCell()
	if err := b.StoreUInt(0, 32); err != nil {
		t.Fatalf("store opcode: %v", err)
	}
	if err := b.StoreSlice([]byte(text), uint(len(text))*8); err != nil {
		t.Fatalf("store text: %v", err)
	}
	return b.EndCell()
}

func TestExtractCommentFromBody(t *testing.T) {
	got := ExtractCommentFromBody(commentCell(t, "deal:11111111-2222-3333-4444-555555555555"))
	if got != "deal:11111111-2222-3333-4444-555555555555" {
		t.Errorf("unexpected comment %q", got)
	}

	if got := ExtractCommentFromBody(commentCell(t, "  padded  ")); got != "padded" {
		t.Errorf("expected trimmed comment, got %q", got)
	}
}

func TestExtractCommentNonText(t *testing.T) {
	// Non-zero opcode is not a text comment.
	b := cell.BeginCell()
	_ = b.StoreUInt(0x5fcc3d14, 32)
	if got := ExtractCommentFromBody(b.EndCell()); got != "" {
		t.Errorf("expected empty comment for non-text body, got %q", got)
	}

	// Opcode with no payload.
	b = cell.BeginCell()
	_ = b.StoreUInt(0, 32)
	if got := ExtractCommentFromBody(b.EndCell()); got != "" {
		t.Errorf("expected empty comment for empty payload, got %q", got)
	}

	if got := ExtractComment(nil); got != "" {
		t.Errorf("expected empty comment for nil message, got %q", got)
	}
}
