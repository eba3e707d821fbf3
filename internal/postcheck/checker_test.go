package postcheck

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
)

func TestParseViews(t *testing.T) {
	tests := []struct {
		input    string
		expected int
	}{
		{"1.2K", 1200},
		{"1.5M", 1500000},
		{"123", 123},
		{"12,345", 12345},
		{"5.6K views", 5600},
		{"42k", 42000},
		{"0", 0},
		{"", 0},
		{"no number", 0},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseViews(tt.input); got != tt.expected {
				t.Errorf("parseViews(%q) = %d, want %d", tt.input, got, tt.expected)
			}
		})
	}
}

func TestMatchesCreative(t *testing.T) {
	tests := []struct {
		name  string
		post  string
		brief string
		want  bool
	}{
		{"exact match", "Buy TON now!", "Buy TON now!", true},
		{"whitespace differences", "Buy   TON\nnow!", "Buy TON now!", true},
		{"post truncated beyond prefix", strings.Repeat("a", 64) + " truncated", strings.Repeat("a", 64) + " full original creative text", true},
		{"different text", "Something else entirely", "Buy TON now!", false},
		{"empty brief always matches", "whatever was posted", "", true},
		{"empty post never matches a brief", "", "Buy TON now!", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MatchesCreative(tt.post, tt.brief); got != tt.want {
				t.Errorf("MatchesCreative(%q, %q) = %v, want %v", tt.post, tt.brief, got, tt.want)
			}
		})
	}
}

func TestParseEmbed(t *testing.T) {
	t.Run("live post", func(t *testing.T) {
		html := `<div class="tgme_widget_message" data-post="chan/42">
			<div class="tgme_widget_message_text">Promo post text</div>
			<span class="tgme_widget_message_views">1.2K</span>
		</div>`
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
		if err != nil {
			t.Fatalf("parse fixture: %v", err)
		}
		status := parseEmbed(doc)
		if !status.Present {
			t.Fatal("expected post to be present")
		}
		if status.Text != "Promo post text" {
			t.Errorf("text = %q", status.Text)
		}
		if status.Views == nil || *status.Views != 1200 {
			t.Errorf("views = %v, want 1200", status.Views)
		}
	})

	t.Run("deleted post", func(t *testing.T) {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(`<div class="tgme_page">Post not found</div>`))
		if err != nil {
			t.Fatalf("parse fixture: %v", err)
		}
		if status := parseEmbed(doc); status.Present {
			t.Error("expected deleted post to be absent")
		}
	})
}
