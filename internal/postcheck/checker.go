// Package postcheck verifies that a published ad post is still live on
// the channel by scraping its public t.me embed page.
package postcheck

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

// PostStatus is the observed state of a published post.
type PostStatus struct {
	Present   bool      `json:"present"`
	Text      string    `json:"text"`
	Views     *int      `json:"views,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

type Checker struct {
	httpClient *http.Client
	maxRetries int
	log        *zap.Logger
}

func NewChecker(timeoutMS, maxRetries int, log *zap.Logger) *Checker {
	return &Checker{
		httpClient: &http.Client{
			Timeout: time.Duration(timeoutMS) * time.Millisecond,
		},
		maxRetries: maxRetries,
		log:        log,
	}
}

// CheckPost fetches the post's embed page. A 404 or a page without the
// message widget means the post was deleted; transport errors are retried
// and surface as errors, never as "deleted".
func (c *Checker) CheckPost(ctx context.Context, channelUsername string, messageID int64) (*PostStatus, error) {
	url := fmt.Sprintf("https://t.me/%s/%d?embed=1", channelUsername, messageID)

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(time.Duration(attempt) * 500 * time.Millisecond)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
		req.Header.Set("Accept-Language", "en-US,en;q=0.9")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode == http.StatusNotFound {
			resp.Body.Close()
			return &PostStatus{Present: false, CheckedAt: time.Now()}, nil
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			lastErr = fmt.Errorf("HTTP %d for %s", resp.StatusCode, url)
			continue
		}

		doc, err := goquery.NewDocumentFromReader(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}

		return parseEmbed(doc), nil
	}

	return nil, lastErr
}

func parseEmbed(doc *goquery.Document) *PostStatus {
	status := &PostStatus{CheckedAt: time.Now()}

	if doc.Find(".tgme_widget_message").Length() == 0 {
		return status
	}
	status.Present = true
	status.Text = strings.TrimSpace(doc.Find(".tgme_widget_message_text").Text())

	doc.Find(".tgme_widget_message_views").Each(func(_ int, s *goquery.Selection) {
		if n := parseViews(strings.TrimSpace(s.Text())); n > 0 {
			status.Views = &n
		}
	})

	return status
}

// MatchesCreative reports whether the live post still carries the agreed
// creative. The comparison is lenient: whitespace is collapsed and only a
// prefix is compared, since Telegram truncates long embeds.
func MatchesCreative(postText, brief string) bool {
	post := normalize(postText)
	want := normalize(brief)
	if want == "" {
		return true
	}
	if post == "" {
		return false
	}

	const prefixLen = 64
	if len(want) > prefixLen {
		want = want[:prefixLen]
	}
	return strings.Contains(post, want)
}

var spaceRE = regexp.MustCompile(`\s+`)

func normalize(s string) string {
	return spaceRE.ReplaceAllString(strings.TrimSpace(s), " ")
}

var viewCountRE = regexp.MustCompile(`[\d,.]+[KkMm]?`)

func parseViews(text string) int {
	text = strings.ReplaceAll(text, " ", "")
	text = strings.ReplaceAll(text, ",", "")

	match := viewCountRE.FindString(text)
	if match == "" {
		return 0
	}

	multiplier := 1
	switch {
	case strings.HasSuffix(match, "K"), strings.HasSuffix(match, "k"):
		multiplier = 1000
		match = match[:len(match)-1]
	case strings.HasSuffix(match, "M"), strings.HasSuffix(match, "m"):
		multiplier = 1000000
		match = match[:len(match)-1]
	}

	f, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return 0
	}
	return int(f * float64(multiplier))
}
