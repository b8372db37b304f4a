package feedstore

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pointfeed-hq/pointfeed/internal/domain"
)

const seedYAML = `feeds:
  - id: example
    kind: Page
    source_url: "  https://example.com/news  "
    display_name: Example News
    locator:
      selector: div.card
      match_count: 20
    scroll:
      target: "#feed"
      count: 3
  - source_url: https://other.example.com/blog
    locator:
      selector: article.post
`

func writeSeed(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write seed file: %v", err)
	}
	return path
}

func TestLoadSeedFileYAML(t *testing.T) {
	feeds, err := LoadSeedFile(writeSeed(t, "feeds.yaml", seedYAML))
	if err != nil {
		t.Fatalf("LoadSeedFile: %v", err)
	}
	if len(feeds) != 2 {
		t.Fatalf("got %d feeds, want 2", len(feeds))
	}

	first := feeds[0]
	if first.ID != "example" || first.Kind != domain.KindPage {
		t.Fatalf("first feed not sanitized: %#v", first)
	}
	if first.SourceURL != "https://example.com/news" {
		t.Fatalf("source url not trimmed: %q", first.SourceURL)
	}
	if first.Scroll.Target != "#feed" || first.Scroll.Count != 3 {
		t.Fatalf("scroll config wrong: %#v", first.Scroll)
	}

	second := feeds[1]
	if second.Kind != domain.KindPage {
		t.Fatalf("kind should default to page, got %q", second.Kind)
	}
	if second.ID == "" || second.ID == second.SourceURL {
		t.Fatalf("missing id should be derived from the source, got %q", second.ID)
	}
	if second.ID != hashFeedID(domain.KindPage, second.SourceURL) {
		t.Fatalf("derived id is not stable: %q", second.ID)
	}
}

func TestLoadSeedFileJSON(t *testing.T) {
	content := `{"feeds":[{"id":"j1","kind":"page","source_url":"https://example.com/j","locator":{"selector":"li.item","match_count":4}}]}`
	feeds, err := LoadSeedFile(writeSeed(t, "feeds.json", content))
	if err != nil {
		t.Fatalf("LoadSeedFile: %v", err)
	}
	if len(feeds) != 1 || feeds[0].ID != "j1" || feeds[0].Locator.Selector != "li.item" {
		t.Fatalf("unexpected feeds: %#v", feeds)
	}
}

func TestLoadSeedFileRejectsDuplicateIDs(t *testing.T) {
	content := `feeds:
  - id: dup
    source_url: https://example.com/a
    locator: {selector: div.a}
  - id: dup
    source_url: https://example.com/b
    locator: {selector: div.b}
`
	_, err := LoadSeedFile(writeSeed(t, "feeds.yaml", content))
	if err == nil || !strings.Contains(err.Error(), "duplicate feed id") {
		t.Fatalf("want duplicate id error, got %v", err)
	}
}

func TestLoadSeedFileRequiresLocatorForPages(t *testing.T) {
	content := `feeds:
  - id: nolocator
    source_url: https://example.com/x
`
	_, err := LoadSeedFile(writeSeed(t, "feeds.yaml", content))
	if err == nil || !strings.Contains(err.Error(), "locator") {
		t.Fatalf("want locator validation error, got %v", err)
	}
}

func TestSeedMergePreservesRefreshState(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	checked := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	existing := domain.FeedRegistration{
		ID:            "keep",
		Kind:          domain.KindPage,
		SourceURL:     "https://example.com/old",
		DisplayName:   "Old Name",
		Locator:       domain.Locator{Selector: "div.old", MatchCount: 5},
		LastCheckedAt: checked,
		PostCount:     7,
	}
	if err := store.Set(ctx, []domain.FeedRegistration{existing}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	defs := []domain.FeedRegistration{
		{
			ID:          "keep",
			Kind:        domain.KindPage,
			SourceURL:   "https://example.com/old",
			DisplayName: "New Name",
			Locator:     domain.Locator{Selector: "div.new", MatchCount: 9},
		},
		{
			ID:        "added",
			Kind:      domain.KindPage,
			SourceURL: "https://example.com/new",
			Locator:   domain.Locator{Selector: "li.row", MatchCount: 3},
		},
	}

	added, err := Seed(ctx, store, defs)
	if err != nil {
		t.Fatalf("Seed: %v", err)
	}
	if added != 1 {
		t.Fatalf("added = %d, want 1", added)
	}

	feeds, err := store.Get(ctx)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(feeds) != 2 {
		t.Fatalf("got %d feeds, want 2", len(feeds))
	}

	kept := feeds[0]
	if kept.DisplayName != "New Name" || kept.Locator.Selector != "div.new" {
		t.Fatalf("definition fields not refreshed: %#v", kept)
	}
	if !kept.LastCheckedAt.Equal(checked) || kept.PostCount != 7 {
		t.Fatalf("refresh state must be preserved across seeding: %#v", kept)
	}
}

func TestRegisterStoresWizardOutcome(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	outcome := domain.WizardOutcome{
		SourceURL:   "https://example.com/news",
		DisplayName: "Example News",
		Locator:     domain.Locator{Selector: "div.card", MatchCount: 20},
		Scroll:      domain.ScrollConfig{Count: 2},
	}

	reg, err := Register(ctx, store, outcome)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if reg.ID != hashFeedID(domain.KindPage, outcome.SourceURL) {
		t.Fatalf("registration id = %q, want the derived hash", reg.ID)
	}

	feeds, err := store.Get(ctx)
	if err != nil || len(feeds) != 1 {
		t.Fatalf("store contents = %#v, %v", feeds, err)
	}
	if feeds[0].Locator != outcome.Locator || feeds[0].Scroll != outcome.Scroll {
		t.Fatalf("stored registration differs: %#v", feeds[0])
	}

	// Registering the same source again must not create a second feed.
	if _, err := Register(ctx, store, outcome); err != nil {
		t.Fatalf("re-Register: %v", err)
	}
	feeds, _ = store.Get(ctx)
	if len(feeds) != 1 {
		t.Fatalf("re-registration duplicated the feed: %#v", feeds)
	}
}

func TestRegisterRejectsOutcomeWithoutLocator(t *testing.T) {
	_, err := Register(context.Background(), NewMemory(), domain.WizardOutcome{
		SourceURL: "https://example.com/news",
	})
	if err == nil {
		t.Fatalf("outcome without a locator must be rejected")
	}
}
