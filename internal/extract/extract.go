// Package extract turns matched content items into normalized feed posts.
// It is the single extraction path shared by the wizard preview and the
// headless executor, so both always agree on what an item contains.
package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/pointfeed-hq/pointfeed/internal/domain"
)

// maxTextChars caps an item's caption text.
const maxTextChars = 500

// Extract pulls the feed-relevant fields out of one matched content item.
func Extract(sel *goquery.Selection) domain.ExtractedItem {
	if sel == nil || sel.Length() == 0 {
		return domain.ExtractedItem{}
	}

	item := domain.ExtractedItem{
		Title: itemTitle(sel),
		Link:  itemLink(sel),
		Image: itemImage(sel),
		Date:  itemDate(sel),
	}
	item.Text = itemText(sel, item.Title)
	return item
}

// itemLink returns the first anchor with a real destination. Items that are
// themselves anchors (card-as-link markup) count before their descendants.
func itemLink(sel *goquery.Selection) string {
	if goquery.NodeName(sel) == "a" {
		if href := realHref(sel.AttrOr("href", "")); href != "" {
			return href
		}
	}

	var link string
	sel.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		if href := realHref(a.AttrOr("href", "")); href != "" {
			link = href
			return false
		}
		return true
	})
	return link
}

// realHref filters out non-destinations: empty, "#", and javascript: hrefs.
func realHref(raw string) string {
	href := strings.TrimSpace(raw)
	if href == "" || href == "#" || strings.HasPrefix(href, "javascript:") {
		return ""
	}
	return href
}

// itemTitle probes headings, then anchors, then emphasis tags for the first
// non-empty text.
func itemTitle(sel *goquery.Selection) string {
	for _, probe := range []string{"h1, h2, h3, h4, h5, h6", "a", "b, strong, em"} {
		if t := firstText(sel, probe); t != "" {
			return t
		}
	}
	return ""
}

func firstText(sel *goquery.Selection, selector string) string {
	var out string
	sel.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if t := collapseSpace(s.Text()); t != "" {
			out = t
			return false
		}
		return true
	})
	return out
}

// itemImage returns the first image source, falling back to data-src when
// src is absent or a lazy-load data: placeholder.
func itemImage(sel *goquery.Selection) string {
	img := sel.Find("img").First()
	if img.Length() == 0 {
		return ""
	}

	src := strings.TrimSpace(img.AttrOr("src", ""))
	if src == "" || strings.HasPrefix(src, "data:") {
		if lazy := strings.TrimSpace(img.AttrOr("data-src", "")); lazy != "" {
			return lazy
		}
	}
	return src
}

// itemDate returns the first machine-readable time value: a datetime or
// data-timestamp attribute anywhere in the item, else the text of the first
// time element.
func itemDate(sel *goquery.Selection) string {
	if v := strings.TrimSpace(sel.Find("[datetime]").First().AttrOr("datetime", "")); v != "" {
		return v
	}
	if v := strings.TrimSpace(sel.Find("[data-timestamp]").First().AttrOr("data-timestamp", "")); v != "" {
		return v
	}
	return collapseSpace(sel.Find("time").First().Text())
}

// itemText collapses the item's visible text, with script and style bodies
// stripped. Text identical to the title is dropped so captions do not repeat
// it.
func itemText(sel *goquery.Selection, title string) string {
	clone := sel.Clone()
	clone.Find("script, style, noscript, template").Remove()

	text := collapseSpace(clone.Text())
	if runes := []rune(text); len(runes) > maxTextChars {
		text = string(runes[:maxTextChars])
	}
	if text == title {
		return ""
	}
	return text
}

// Meta returns the page's display title and description, preferring
// OpenGraph tags over plain ones.
func Meta(doc *goquery.Document) (title, description string) {
	if doc == nil {
		return "", ""
	}

	og := func(sel string) string {
		if node := doc.Find(sel).First(); node.Length() > 0 {
			if val, ok := node.Attr("content"); ok {
				return strings.TrimSpace(val)
			}
		}
		return ""
	}

	title = og(`meta[property="og:title"]`)
	if title == "" {
		title = collapseSpace(doc.Find("title").First().Text())
	}
	description = og(`meta[property="og:description"]`)
	if description == "" {
		description = og(`meta[name="description"]`)
	}
	return title, description
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
