package extract

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"

	"github.com/pointfeed-hq/pointfeed/internal/domain"
)

func itemSelection(t *testing.T, body string) *goquery.Selection {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader("<html><body>" + body + "</body></html>"))
	if err != nil {
		t.Fatalf("parse html: %v", err)
	}
	sel := doc.Find("body > *").First()
	if sel.Length() == 0 {
		t.Fatalf("no item element in %q", body)
	}
	return sel
}

func TestExtractCard(t *testing.T) {
	sel := itemSelection(t, `
<div class="card">
  <a href="#">skip</a>
  <a href="javascript:void(0)">skip too</a>
  <h3>  Big   Story </h3>
  <a href="/posts/42"><img src="data:image/gif;base64,R0lGOD" data-src="/img/42.png"></a>
  <time datetime="2024-01-01T00:00:00Z">Jan 1</time>
  <p>Some teaser text.</p>
</div>`)

	item := Extract(sel)
	if item.Title != "Big Story" {
		t.Fatalf("title = %q", item.Title)
	}
	if item.Link != "/posts/42" {
		t.Fatalf("link = %q", item.Link)
	}
	if item.Image != "/img/42.png" {
		t.Fatalf("image = %q", item.Image)
	}
	if item.Date != "2024-01-01T00:00:00Z" {
		t.Fatalf("date = %q", item.Date)
	}
	if !strings.Contains(item.Text, "Some teaser text.") {
		t.Fatalf("text = %q", item.Text)
	}
}

func TestExtractTitleFallbacks(t *testing.T) {
	sel := itemSelection(t, `<div><a href="/p">Anchor Title</a></div>`)
	if got := Extract(sel).Title; got != "Anchor Title" {
		t.Fatalf("anchor fallback = %q", got)
	}

	sel = itemSelection(t, `<div><strong>Bold Title</strong> and more</div>`)
	if got := Extract(sel).Title; got != "Bold Title" {
		t.Fatalf("emphasis fallback = %q", got)
	}

	sel = itemSelection(t, `<div><p>plain text only</p></div>`)
	if got := Extract(sel).Title; got != "" {
		t.Fatalf("expected no title, got %q", got)
	}
}

func TestExtractLinkOnRootAnchor(t *testing.T) {
	sel := itemSelection(t, `<a class="card" href="/story/7"><h2>Story</h2></a>`)
	if got := Extract(sel).Link; got != "/story/7" {
		t.Fatalf("link = %q", got)
	}
}

func TestExtractDateFallbacks(t *testing.T) {
	sel := itemSelection(t, `<div><span data-timestamp="1704067200">x</span></div>`)
	if got := Extract(sel).Date; got != "1704067200" {
		t.Fatalf("data-timestamp = %q", got)
	}

	sel = itemSelection(t, `<div><time>  March 3, 2024 </time></div>`)
	if got := Extract(sel).Date; got != "March 3, 2024" {
		t.Fatalf("time text = %q", got)
	}

	sel = itemSelection(t, `<div><p>undated</p></div>`)
	if got := Extract(sel).Date; got != "" {
		t.Fatalf("expected empty date, got %q", got)
	}
}

func TestExtractTextStripsScriptsAndTruncates(t *testing.T) {
	long := strings.Repeat("x", maxTextChars+50)
	sel := itemSelection(t, `<div><script>var hidden = 1;</script><style>.a{}</style><p>`+long+`</p></div>`)

	item := Extract(sel)
	if strings.Contains(item.Text, "hidden") {
		t.Fatalf("script text leaked into %q", item.Text)
	}
	if len([]rune(item.Text)) != maxTextChars {
		t.Fatalf("text length = %d, want %d", len([]rune(item.Text)), maxTextChars)
	}
}

func TestExtractTextOmittedWhenSameAsTitle(t *testing.T) {
	sel := itemSelection(t, `<div><h2>Only Title</h2></div>`)

	item := Extract(sel)
	if item.Title != "Only Title" {
		t.Fatalf("title = %q", item.Title)
	}
	if item.Text != "" {
		t.Fatalf("text should be omitted, got %q", item.Text)
	}
}

func TestMetaPrefersOGTags(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(`
<html><head>
  <title>Fallback</title>
  <meta property="og:title" content="OG Title">
  <meta property="og:description" content="OG Desc">
</head><body></body></html>`))
	if err != nil {
		t.Fatalf("parse html: %v", err)
	}

	title, desc := Meta(doc)
	if title != "OG Title" || desc != "OG Desc" {
		t.Fatalf("meta = %q / %q", title, desc)
	}

	doc, err = goquery.NewDocumentFromReader(strings.NewReader(
		`<html><head><title> Plain  Title </title></head><body></body></html>`))
	if err != nil {
		t.Fatalf("parse html: %v", err)
	}
	if title, _ := Meta(doc); title != "Plain Title" {
		t.Fatalf("title fallback = %q", title)
	}
}

func TestExtractEmptySelection(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader("<html><body></body></html>"))
	if err != nil {
		t.Fatalf("parse html: %v", err)
	}

	item := Extract(doc.Find(".missing"))
	if item != (domain.ExtractedItem{}) {
		t.Fatalf("empty selection should extract nothing, got %#v", item)
	}
}
