package extract

import (
	"crypto/sha1" //nolint:gosec // non-cryptographic id generation
	"encoding/hex"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/pointfeed-hq/pointfeed/internal/domain"
)

// timeLayouts are tried in order when interpreting an item's raw date text.
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	time.RFC1123Z,
	time.RFC1123,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"January 2, 2006",
	"Jan 2, 2006",
	"02 Jan 2006",
}

// Normalize converts a raw extracted item into the feed post shape. Items
// without a parseable date are stamped with now and flagged estimated so
// downstream consumers can prefer real timestamps. For a fixed now the
// result is deterministic.
func Normalize(item domain.ExtractedItem, sourceURL string, now time.Time) domain.NormalizedPost {
	ts, estimated := parseTimestamp(item.Date, now)

	permalink := resolveAgainst(item.Link, sourceURL)
	if permalink == "" {
		permalink = sourceURL
	}

	caption := item.Title
	if caption == "" {
		caption = item.Text
	}

	return domain.NormalizedPost{
		ID:                 hashItem(permalink, item.Title, item.Date),
		Caption:            caption,
		Timestamp:          ts,
		TimestampEstimated: estimated,
		ImageURL:           resolveAgainst(item.Image, sourceURL),
		Permalink:          permalink,
	}
}

// Posts runs the extraction pipeline over every element the locator matches.
func Posts(doc *goquery.Document, selector, sourceURL string, now time.Time) []domain.NormalizedPost {
	if doc == nil || strings.TrimSpace(selector) == "" {
		return nil
	}

	var posts []domain.NormalizedPost
	doc.Find(selector).Each(func(_ int, sel *goquery.Selection) {
		posts = append(posts, Normalize(Extract(sel), sourceURL, now))
	})
	return posts
}

func parseTimestamp(raw string, now time.Time) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return now, true
	}

	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, false
		}
	}

	if n, err := strconv.ParseInt(raw, 10, 64); err == nil && n > 0 {
		// 13-digit values are millisecond stamps.
		if n >= 1e12 {
			return time.UnixMilli(n).UTC(), false
		}
		return time.Unix(n, 0).UTC(), false
	}

	return now, true
}

// resolveAgainst resolves raw against the feed's source URL, returning raw
// unchanged when either side does not parse.
func resolveAgainst(raw, base string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	baseURL, err := url.Parse(base)
	if err != nil {
		return raw
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return baseURL.ResolveReference(ref).String()
}

func hashItem(permalink, title, date string) string {
	sum := sha1.Sum([]byte(permalink + "|" + title + "|" + date))
	return hex.EncodeToString(sum[:])
}
