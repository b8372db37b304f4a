package domain

// Domain contains core models shared across inference, extraction, the wizard,
// the headless executor, and the scheduler.

import "time"

// Locator is a structural expression identifying a repeating set of page
// elements, plus the match count observed when it was accepted. Locators are
// produced by inference and never mutated afterwards.
type Locator struct {
	Selector   string `json:"selector" yaml:"selector"`
	MatchCount int    `json:"match_count" yaml:"match_count"`
}

// IsZero reports whether the locator is unset.
func (l Locator) IsZero() bool { return l.Selector == "" }

// ScrollConfig describes scroll-triggered lazy loading for one source.
// An empty Target scrolls the whole page viewport.
type ScrollConfig struct {
	Target string `json:"target,omitempty" yaml:"target,omitempty"`
	Count  int    `json:"count" yaml:"count"`
}

// ExtractedItem is the raw field set pulled from one matched element.
// Items live only for the duration of an extraction pass.
type ExtractedItem struct {
	Title string
	Text  string
	Link  string
	Image string
	Date  string
}

// NormalizedPost is the common output shape every content source produces.
// Timestamp is always resolvable; when the source carried no parseable date
// it falls back to the extraction time and TimestampEstimated is set.
type NormalizedPost struct {
	ID                 string    `json:"id"`
	Caption            string    `json:"caption"`
	Timestamp          time.Time `json:"timestamp"`
	TimestampEstimated bool      `json:"timestampEstimated"`
	ImageURL           string    `json:"imageUrl,omitempty"`
	IsVideo            bool      `json:"isVideo"`
	VideoURL           string    `json:"videoUrl,omitempty"`
	Likes              int       `json:"likes"`
	Comments           int       `json:"comments"`
	Permalink          string    `json:"permalink"`
}

// ScrapeResult is the hand-off shape from every content source into
// downstream feed rendering. Zero posts with a nil error is a valid,
// distinguishable success.
type ScrapeResult struct {
	DisplayName string           `json:"displayName"`
	Description string           `json:"description"`
	Posts       []NormalizedPost `json:"posts"`
}

// Feed registration kinds. KindPage is served by the headless executor;
// any other kind is dispatched to an externally registered adapter.
const (
	KindPage = "page"
)

// FeedRegistration is one registered source. LastCheckedAt advances
// monotonically except for the explicit failure penalty bump applied by the
// scheduler.
type FeedRegistration struct {
	ID                  string       `json:"id" yaml:"id"`
	Kind                string       `json:"kind" yaml:"kind"`
	SourceURL           string       `json:"source_url" yaml:"source_url"`
	DisplayName         string       `json:"display_name" yaml:"display_name"`
	Locator             Locator      `json:"locator" yaml:"locator"`
	Scroll              ScrollConfig `json:"scroll" yaml:"scroll"`
	LastCheckedAt       time.Time    `json:"last_checked_at" yaml:"-"`
	PostCount           int          `json:"post_count" yaml:"-"`
	LatestPostTimestamp time.Time    `json:"latest_post_timestamp" yaml:"-"`
}

// WizardOutcome is the resolved result of a completed wizard session: the
// data needed to register the source as a feed, plus the posts already
// extracted during the session.
type WizardOutcome struct {
	SourceURL   string
	DisplayName string
	Locator     Locator
	Scroll      ScrollConfig
	Posts       []NormalizedPost
}
