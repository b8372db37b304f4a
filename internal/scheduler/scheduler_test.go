package scheduler

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pointfeed-hq/pointfeed/internal/domain"
)

var testNow = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

type fakeStore struct {
	mu     sync.Mutex
	feeds  []domain.FeedRegistration
	sets   int
	getErr error
}

func (f *fakeStore) Get(context.Context) ([]domain.FeedRegistration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	out := make([]domain.FeedRegistration, len(f.feeds))
	copy(out, f.feeds)
	return out, nil
}

func (f *fakeStore) Set(_ context.Context, feeds []domain.FeedRegistration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.feeds = make([]domain.FeedRegistration, len(feeds))
	copy(f.feeds, feeds)
	f.sets++
	return nil
}

func (f *fakeStore) feed(t *testing.T, id string) domain.FeedRegistration {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, reg := range f.feeds {
		if reg.ID == id {
			return reg
		}
	}
	t.Fatalf("feed %q not in store", id)
	return domain.FeedRegistration{}
}

func (f *fakeStore) setCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sets
}

type fakeDispatcher struct {
	mu      sync.Mutex
	calls   []domain.FeedRegistration
	res     domain.ScrapeResult
	err     error
	onEnter func()
}

func (f *fakeDispatcher) Dispatch(_ context.Context, reg domain.FeedRegistration) (domain.ScrapeResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, reg)
	f.mu.Unlock()
	if f.onEnter != nil {
		f.onEnter()
	}
	return f.res, f.err
}

func (f *fakeDispatcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeDispatcher) lastCall(t *testing.T) domain.FeedRegistration {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		t.Fatalf("dispatcher was never called")
	}
	return f.calls[len(f.calls)-1]
}

// fakeNotifier signals on done once per recorded outcome, after the store
// mutation has already been applied.
type fakeNotifier struct {
	mu        sync.Mutex
	failed    []string
	succeeded []string
	lastErr   error
	done      chan struct{}
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{done: make(chan struct{}, 8)}
}

func (f *fakeNotifier) RefreshFailed(_ context.Context, reg domain.FeedRegistration, err error) {
	f.mu.Lock()
	f.failed = append(f.failed, reg.ID)
	f.lastErr = err
	f.mu.Unlock()
	f.done <- struct{}{}
}

func (f *fakeNotifier) RefreshSucceeded(_ context.Context, reg domain.FeedRegistration) {
	f.mu.Lock()
	f.succeeded = append(f.succeeded, reg.ID)
	f.mu.Unlock()
	f.done <- struct{}{}
}

func waitOutcome(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for a refresh outcome")
	}
}

func newTestScheduler(store Store, d Dispatcher, n Notifier) *Scheduler {
	s := New(store, d, n, nil)
	s.now = func() time.Time { return testNow }
	s.rng = rand.New(rand.NewSource(1))
	return s
}

func TestTickRefreshesOldestFeed(t *testing.T) {
	store := &fakeStore{feeds: []domain.FeedRegistration{
		{ID: "recent", Kind: domain.KindPage, LastCheckedAt: testNow.Add(-10 * time.Minute)},
		{ID: "never", Kind: domain.KindPage, SourceURL: "https://example.com/new"},
		{ID: "old", Kind: domain.KindPage, LastCheckedAt: testNow.Add(-3 * time.Hour)},
	}}
	dispatch := &fakeDispatcher{res: domain.ScrapeResult{Posts: []domain.NormalizedPost{
		{ID: "a", Timestamp: testNow.Add(-time.Hour)},
		{ID: "b", Timestamp: testNow.Add(-5 * time.Minute)},
		{ID: "c", TimestampEstimated: true, Timestamp: testNow},
	}}}
	notif := newFakeNotifier()

	s := newTestScheduler(store, dispatch, notif)
	s.tick(context.Background())
	waitOutcome(t, notif.done)

	if got := dispatch.lastCall(t).ID; got != "never" {
		t.Fatalf("dispatched feed %q, want the never-checked one", got)
	}

	reg := store.feed(t, "never")
	if !reg.LastCheckedAt.Equal(testNow) {
		t.Fatalf("LastCheckedAt = %v, want %v", reg.LastCheckedAt, testNow)
	}
	if reg.PostCount != 3 {
		t.Fatalf("PostCount = %d, want 3", reg.PostCount)
	}
	wantLatest := testNow.Add(-5 * time.Minute)
	if !reg.LatestPostTimestamp.Equal(wantLatest) {
		t.Fatalf("LatestPostTimestamp = %v, want %v (estimated stamps must not win)", reg.LatestPostTimestamp, wantLatest)
	}

	notif.mu.Lock()
	defer notif.mu.Unlock()
	if len(notif.succeeded) != 1 || notif.succeeded[0] != "never" {
		t.Fatalf("succeeded notifications = %v, want [never]", notif.succeeded)
	}
	if len(notif.failed) != 0 {
		t.Fatalf("unexpected failure notifications: %v", notif.failed)
	}
}

func TestTickSkipsWhenRefreshInFlight(t *testing.T) {
	store := &fakeStore{feeds: []domain.FeedRegistration{{ID: "only", Kind: domain.KindPage}}}
	entered := make(chan struct{}, 4)
	release := make(chan struct{})
	dispatch := &fakeDispatcher{onEnter: func() {
		entered <- struct{}{}
		<-release
	}}
	notif := newFakeNotifier()

	s := newTestScheduler(store, dispatch, notif)
	s.tick(context.Background())

	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatalf("refresh never started")
	}

	s.tick(context.Background())
	s.tick(context.Background())
	if got := dispatch.callCount(); got != 1 {
		t.Fatalf("dispatch count = %d while a refresh was in flight, want 1", got)
	}

	close(release)
	waitOutcome(t, notif.done)

	// The in-flight flag clears just after the outcome signal, so keep
	// ticking until the next refresh is accepted.
	deadline := time.Now().Add(2 * time.Second)
	for dispatch.callCount() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("no refresh accepted after the first completed, dispatch count = %d", dispatch.callCount())
		}
		s.tick(context.Background())
		time.Sleep(2 * time.Millisecond)
	}
}

func TestSuccessRetainsTimestampWhenAllEstimated(t *testing.T) {
	prior := testNow.Add(-48 * time.Hour)
	store := &fakeStore{feeds: []domain.FeedRegistration{{
		ID:                  "feed",
		Kind:                domain.KindPage,
		LastCheckedAt:       testNow.Add(-time.Hour),
		LatestPostTimestamp: prior,
	}}}
	dispatch := &fakeDispatcher{res: domain.ScrapeResult{Posts: []domain.NormalizedPost{
		{ID: "a", Timestamp: testNow, TimestampEstimated: true},
		{ID: "b", Timestamp: testNow, TimestampEstimated: true},
	}}}
	notif := newFakeNotifier()

	s := newTestScheduler(store, dispatch, notif)
	s.tick(context.Background())
	waitOutcome(t, notif.done)

	reg := store.feed(t, "feed")
	if !reg.LatestPostTimestamp.Equal(prior) {
		t.Fatalf("LatestPostTimestamp = %v, want the prior value %v retained", reg.LatestPostTimestamp, prior)
	}
	if reg.PostCount != 2 {
		t.Fatalf("PostCount = %d, want 2", reg.PostCount)
	}
}

func TestFailurePenaltyAdvancesFromPreviousValue(t *testing.T) {
	prev := testNow.Add(-4 * time.Hour)
	store := &fakeStore{feeds: []domain.FeedRegistration{{
		ID:            "broken",
		Kind:          domain.KindPage,
		SourceURL:     "https://example.com/broken",
		LastCheckedAt: prev,
	}}}
	dispatch := &fakeDispatcher{err: fmt.Errorf("boom: %w", domain.ErrLoadTimeout)}
	notif := newFakeNotifier()

	s := newTestScheduler(store, dispatch, notif)
	s.tick(context.Background())
	waitOutcome(t, notif.done)

	reg := store.feed(t, "broken")
	want := prev.Add(30 * time.Minute)
	if !reg.LastCheckedAt.Equal(want) {
		t.Fatalf("LastCheckedAt = %v, want previous value + 30m = %v", reg.LastCheckedAt, want)
	}
	if reg.LastCheckedAt.Equal(testNow) {
		t.Fatalf("failure must not stamp LastCheckedAt to now")
	}

	notif.mu.Lock()
	defer notif.mu.Unlock()
	if len(notif.failed) != 1 || notif.failed[0] != "broken" {
		t.Fatalf("failed notifications = %v, want [broken]", notif.failed)
	}
	if notif.lastErr == nil || !strings.Contains(notif.lastErr.Error(), "boom") {
		t.Fatalf("notifier error = %v, want the dispatch error", notif.lastErr)
	}
}

func TestFailurePenaltyFromNeverChecked(t *testing.T) {
	store := &fakeStore{feeds: []domain.FeedRegistration{{ID: "fresh", Kind: domain.KindPage}}}
	dispatch := &fakeDispatcher{err: fmt.Errorf("unreachable")}
	notif := newFakeNotifier()

	s := newTestScheduler(store, dispatch, notif)
	s.tick(context.Background())
	waitOutcome(t, notif.done)

	reg := store.feed(t, "fresh")
	want := time.Time{}.Add(30 * time.Minute)
	if !reg.LastCheckedAt.Equal(want) {
		t.Fatalf("LastCheckedAt = %v, want zero value + 30m = %v", reg.LastCheckedAt, want)
	}
}

func TestTickStoreErrorDoesNotWedgeTheLoop(t *testing.T) {
	store := &fakeStore{getErr: fmt.Errorf("registry unavailable")}
	dispatch := &fakeDispatcher{}
	notif := newFakeNotifier()
	s := newTestScheduler(store, dispatch, notif)

	s.tick(context.Background())
	if dispatch.callCount() != 0 {
		t.Fatalf("dispatched despite a registry read failure")
	}

	store.mu.Lock()
	store.getErr = nil
	store.feeds = []domain.FeedRegistration{{ID: "late", Kind: domain.KindPage}}
	store.mu.Unlock()

	s.tick(context.Background())
	waitOutcome(t, notif.done)
	if dispatch.callCount() != 1 {
		t.Fatalf("dispatch count = %d after the registry recovered, want 1", dispatch.callCount())
	}
}

func TestMutateFeedDropsWriteWhenFeedDeleted(t *testing.T) {
	store := &fakeStore{feeds: []domain.FeedRegistration{{ID: "other", Kind: domain.KindPage}}}
	s := newTestScheduler(store, &fakeDispatcher{}, newFakeNotifier())

	s.mutateFeed(context.Background(), "gone", func(f *domain.FeedRegistration) {
		f.PostCount = 99
	})

	if got := store.setCount(); got != 0 {
		t.Fatalf("store.Set called %d times for a deleted feed, want 0", got)
	}
}

func TestNextInterval(t *testing.T) {
	cases := []struct {
		name      string
		drawn     time.Duration
		oldestAge time.Duration
		want      time.Duration
	}{
		{"well inside ceiling", 30 * time.Minute, time.Hour, 30 * time.Minute},
		{"crossing shortens with margin", 30 * time.Minute, 5*time.Hour + 50*time.Minute, 8 * time.Minute},
		{"already past ceiling", 30 * time.Minute, 7 * time.Hour, 5 * time.Second},
		{"exactly at ceiling", 30 * time.Minute, 6 * time.Hour, 5 * time.Second},
		{"margin under floor", 30 * time.Minute, 5*time.Hour + 59*time.Minute + 30*time.Second, 5 * time.Second},
	}

	for _, tc := range cases {
		if got := nextInterval(tc.drawn, tc.oldestAge); got != tc.want {
			t.Fatalf("%s: nextInterval(%v, %v) = %v, want %v", tc.name, tc.drawn, tc.oldestAge, got, tc.want)
		}
	}
}

func TestDrawIntervalStaysInBounds(t *testing.T) {
	s := newTestScheduler(&fakeStore{}, &fakeDispatcher{}, newFakeNotifier())
	for i := 0; i < 500; i++ {
		d := s.drawInterval()
		if d < minRefreshInterval || d >= maxRefreshInterval {
			t.Fatalf("draw %d: %v outside [%v, %v)", i, d, minRefreshInterval, maxRefreshInterval)
		}
	}
}

func TestPlanNextWithEmptyStoreUsesPlainDraw(t *testing.T) {
	s := newTestScheduler(&fakeStore{}, &fakeDispatcher{}, newFakeNotifier())
	d := s.planNext(context.Background())
	if d < minRefreshInterval || d >= maxRefreshInterval {
		t.Fatalf("planNext with no feeds = %v, want a plain draw in [%v, %v)", d, minRefreshInterval, maxRefreshInterval)
	}
}

func TestPlanNextFiresFastForStaleFeed(t *testing.T) {
	store := &fakeStore{feeds: []domain.FeedRegistration{{
		ID:            "stale",
		Kind:          domain.KindPage,
		LastCheckedAt: testNow.Add(-7 * time.Hour),
	}}}
	s := newTestScheduler(store, &fakeDispatcher{}, newFakeNotifier())
	if d := s.planNext(context.Background()); d != minTickDelay {
		t.Fatalf("planNext with a feed past the ceiling = %v, want %v", d, minTickDelay)
	}
}

func TestOldestFeedPrefersNeverChecked(t *testing.T) {
	feeds := []domain.FeedRegistration{
		{ID: "a", LastCheckedAt: testNow.Add(-90 * time.Hour)},
		{ID: "b"},
		{ID: "c", LastCheckedAt: testNow.Add(-1 * time.Minute)},
	}
	got, ok := oldestFeed(feeds)
	if !ok || got.ID != "b" {
		t.Fatalf("oldestFeed = %q (ok=%v), want the never-checked feed b", got.ID, ok)
	}

	if _, ok := oldestFeed(nil); ok {
		t.Fatalf("oldestFeed(nil) reported a feed")
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := newTestScheduler(&fakeStore{}, &fakeDispatcher{}, newFakeNotifier())

	stopped := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(stopped)
	}()

	cancel()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not return after context cancellation")
	}
}

func TestDispatchRegistryRoutesByKind(t *testing.T) {
	reg := NewDispatchRegistry()
	page := &fakeDispatcher{res: domain.ScrapeResult{DisplayName: "paged"}}
	reg.Register("page", page)

	res, err := reg.Dispatch(context.Background(), domain.FeedRegistration{ID: "f1", Kind: " Page "})
	if err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}
	if res.DisplayName != "paged" {
		t.Fatalf("routed to the wrong dispatcher: %#v", res)
	}
	if page.lastCall(t).ID != "f1" {
		t.Fatalf("dispatcher saw %#v", page.lastCall(t))
	}

	_, err = reg.Dispatch(context.Background(), domain.FeedRegistration{ID: "f2", Kind: "rss"})
	if err == nil || !strings.Contains(err.Error(), `"rss"`) {
		t.Fatalf("unknown kind error = %v, want it to name the kind", err)
	}
}

func TestLatestPostTimestampSkipsEstimates(t *testing.T) {
	posts := []domain.NormalizedPost{
		{Timestamp: testNow, TimestampEstimated: true},
		{Timestamp: testNow.Add(-2 * time.Hour)},
		{Timestamp: testNow.Add(-time.Hour)},
	}
	got, ok := latestPostTimestamp(posts)
	if !ok || !got.Equal(testNow.Add(-time.Hour)) {
		t.Fatalf("latestPostTimestamp = %v (ok=%v), want %v", got, ok, testNow.Add(-time.Hour))
	}

	if _, ok := latestPostTimestamp([]domain.NormalizedPost{{Timestamp: testNow, TimestampEstimated: true}}); ok {
		t.Fatalf("all-estimated posts must report no timestamp")
	}
}
