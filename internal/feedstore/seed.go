package feedstore

import (
	"context"
	"crypto/sha1" //nolint:gosec // non-cryptographic id generation
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pointfeed-hq/pointfeed/internal/domain"
)

type seedFile struct {
	Feeds []domain.FeedRegistration `json:"feeds" yaml:"feeds"`
}

// LoadSeedFile reads feed definitions from a YAML or JSON file. Definitions
// are sanitized and validated; duplicate IDs are an error.
func LoadSeedFile(path string) ([]domain.FeedRegistration, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("feeds file path is empty")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open feeds file: %w", err)
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read feeds file: %w", err)
	}

	seed, err := parseSeed(raw, filepath.Ext(path))
	if err != nil {
		return nil, err
	}
	if len(seed.Feeds) == 0 {
		return nil, errors.New("feeds file contains no feed entries")
	}

	seen := make(map[string]struct{}, len(seed.Feeds))
	for i := range seed.Feeds {
		f := sanitizeFeed(seed.Feeds[i])
		if err := validateFeed(f); err != nil {
			return nil, fmt.Errorf("feed[%d]: %w", i, err)
		}
		if _, exists := seen[f.ID]; exists {
			return nil, fmt.Errorf("duplicate feed id %q", f.ID)
		}
		seen[f.ID] = struct{}{}
		seed.Feeds[i] = f
	}

	return seed.Feeds, nil
}

func parseSeed(data []byte, ext string) (seedFile, error) {
	ext = strings.ToLower(strings.TrimSpace(ext))

	decoders := []struct {
		name string
		ext  string
		fn   unmarshalFn
	}{
		{name: "yaml", ext: ".yaml", fn: yaml.Unmarshal},
		{name: "yaml", ext: ".yml", fn: yaml.Unmarshal},
		{name: "json", ext: ".json", fn: json.Unmarshal},
	}

	for _, d := range decoders {
		if ext != "" && ext != d.ext {
			continue
		}
		if seed, err := unmarshalSeed(d.name, data, d.fn); err == nil {
			return seed, nil
		}
	}

	return seedFile{}, errors.New("feeds file format not recognized (expected YAML or JSON)")
}

type unmarshalFn func([]byte, any) error

func unmarshalSeed(name string, data []byte, fn unmarshalFn) (seedFile, error) {
	var seed seedFile
	if err := fn(data, &seed); err != nil {
		return seedFile{}, fmt.Errorf("decode %s feeds: %w", name, err)
	}
	return seed, nil
}

// Seed merges definitions into the store. New feeds are added; feeds already
// present (matched by ID) get their definition fields refreshed while
// refresh state is preserved. Returns the number of feeds added.
func Seed(ctx context.Context, store Store, defs []domain.FeedRegistration) (int, error) {
	if len(defs) == 0 {
		return 0, nil
	}

	feeds, err := store.Get(ctx)
	if err != nil {
		return 0, fmt.Errorf("read feed registry: %w", err)
	}

	idx := make(map[string]int, len(feeds))
	for i, f := range feeds {
		idx[f.ID] = i
	}

	added := 0
	for _, def := range defs {
		if i, ok := idx[def.ID]; ok {
			feeds[i].Kind = def.Kind
			feeds[i].SourceURL = def.SourceURL
			feeds[i].DisplayName = def.DisplayName
			feeds[i].Locator = def.Locator
			feeds[i].Scroll = def.Scroll
			continue
		}
		feeds = append(feeds, def)
		idx[def.ID] = len(feeds) - 1
		added++
	}

	if err := store.Set(ctx, feeds); err != nil {
		return 0, fmt.Errorf("write feed registry: %w", err)
	}
	return added, nil
}

// Register stores the feed assembled from a completed wizard session and
// returns it. Re-registering the same source refreshes its definition.
func Register(ctx context.Context, store Store, outcome domain.WizardOutcome) (domain.FeedRegistration, error) {
	reg := sanitizeFeed(domain.FeedRegistration{
		Kind:        domain.KindPage,
		SourceURL:   outcome.SourceURL,
		DisplayName: outcome.DisplayName,
		Locator:     outcome.Locator,
		Scroll:      outcome.Scroll,
	})
	if err := validateFeed(reg); err != nil {
		return domain.FeedRegistration{}, err
	}

	if _, err := Seed(ctx, store, []domain.FeedRegistration{reg}); err != nil {
		return domain.FeedRegistration{}, err
	}
	return reg, nil
}

func sanitizeFeed(f domain.FeedRegistration) domain.FeedRegistration {
	f.ID = strings.TrimSpace(f.ID)
	f.Kind = strings.ToLower(strings.TrimSpace(f.Kind))
	f.SourceURL = strings.TrimSpace(f.SourceURL)
	f.DisplayName = strings.TrimSpace(f.DisplayName)
	f.Locator.Selector = strings.TrimSpace(f.Locator.Selector)
	f.Scroll.Target = strings.TrimSpace(f.Scroll.Target)

	if f.Kind == "" {
		f.Kind = domain.KindPage
	}
	if f.ID == "" {
		f.ID = hashFeedID(f.Kind, f.SourceURL)
	}
	if f.Scroll.Count < 0 {
		f.Scroll.Count = 0
	}

	// Refresh state never comes from definitions.
	f.LastCheckedAt = time.Time{}
	f.PostCount = 0
	f.LatestPostTimestamp = time.Time{}

	return f
}

func validateFeed(f domain.FeedRegistration) error {
	if f.SourceURL == "" {
		return errors.New("source_url is required")
	}
	if f.Kind == domain.KindPage && f.Locator.IsZero() {
		return fmt.Errorf("locator selector is required for feed %q", f.ID)
	}
	return nil
}

func hashFeedID(kind, sourceURL string) string {
	sum := sha1.Sum([]byte(kind + "|" + sourceURL))
	return hex.EncodeToString(sum[:])
}
