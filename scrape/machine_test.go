package scrape

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"testing"
	"time"

	"marketradar/config"
	"marketradar/extract"
	"marketradar/metrics"
	"marketradar/models"
	"marketradar/pacing"
	"marketradar/status"
)

type noopSleeper struct{}

func (noopSleeper) Sleep(ctx context.Context, d time.Duration) error { return ctx.Err() }

type nullPointer struct{}

func (nullPointer) Viewport() (int, int)                   { return 0, 0 }
func (nullPointer) MoveTo(context.Context, int, int) error { return nil }

// fakeSession serves a scripted sequence of pages.
type fakeSession struct {
	pages []*extract.Page
	err   error
	urls  []string
}

func (s *fakeSession) FetchPage(ctx context.Context, pageURL string) (*extract.Page, error) {
	s.urls = append(s.urls, pageURL)
	if s.err != nil {
		return nil, s.err
	}
	if len(s.pages) == 0 {
		return &extract.Page{URL: pageURL, GridFound: true}, nil
	}
	page := s.pages[0]
	s.pages = s.pages[1:]
	page.URL = pageURL
	return page, nil
}

func (s *fakeSession) Pointer() pacing.PointerMover { return nullPointer{} }
func (s *fakeSession) Close() error                 { return nil }

// recordingReconciler captures reconciled listing ids in arrival order.
type recordingReconciler struct {
	listings []string
}

func (r *recordingReconciler) Reconcile(ctx context.Context, profile *models.SearchProfile, item models.ScrapedItem) {
	r.listings = append(r.listings, item.ListingID)
}

func pageOf(n int, prefix string) *extract.Page {
	page := &extract.Page{GridFound: true}
	for i := 1; i <= n; i++ {
		page.Items = append(page.Items, models.ScrapedItem{
			ListingID: fmt.Sprintf("%s-%d", prefix, i),
			Title:     "Item",
			Price:     float64(i),
		})
	}
	return page
}

func newTestMachine(rec Reconciler) (*Machine, *status.Broadcaster) {
	cfg := config.DefaultConfig()
	cfg.BaseURL = "http://market.test/catalog"
	bcast := status.NewBroadcaster()
	return NewMachine(cfg, rec, bcast, metrics.New(), nil), bcast
}

func testPacer() *pacing.Controller {
	return pacing.NewController(time.Millisecond).WithSleeper(noopSleeper{})
}

func TestCrawlProfileStopsOnEmptyPage(t *testing.T) {
	rec := &recordingReconciler{}
	machine, _ := newTestMachine(rec)
	sess := &fakeSession{pages: []*extract.Page{
		pageOf(25, "a"),
		pageOf(12, "b"),
		{GridFound: true}, // zero items ends the crawl
	}}
	profile := &models.SearchProfile{ID: "p1", Keywords: "coat"}

	stats, err := machine.CrawlProfile(context.Background(), sess, testPacer(), profile, 1, 1)
	if err != nil {
		t.Fatalf("crawl: %v", err)
	}
	if stats.Pages != 3 {
		t.Fatalf("pages = %d, want 3", stats.Pages)
	}
	if stats.Items != 37 {
		t.Fatalf("items = %d, want 37", stats.Items)
	}
	if len(rec.listings) != 37 {
		t.Fatalf("reconciled %d items, want 37", len(rec.listings))
	}
	if rec.listings[0] != "a-1" || rec.listings[25] != "b-1" {
		t.Fatalf("items reconciled out of page order: %v", rec.listings[:3])
	}

	for i, raw := range sess.urls {
		parsed, err := url.Parse(raw)
		if err != nil {
			t.Fatalf("parse fetched url: %v", err)
		}
		if got := parsed.Query().Get("page"); got != strconv.Itoa(i+1) {
			t.Fatalf("fetch %d requested page %q", i, got)
		}
	}
}

func TestCrawlProfileStopsWhenGridMissing(t *testing.T) {
	rec := &recordingReconciler{}
	machine, _ := newTestMachine(rec)
	sess := &fakeSession{pages: []*extract.Page{
		pageOf(5, "a"),
		{GridFound: false},
	}}
	profile := &models.SearchProfile{ID: "p1"}

	stats, err := machine.CrawlProfile(context.Background(), sess, testPacer(), profile, 1, 1)
	if err != nil {
		t.Fatalf("crawl: %v", err)
	}
	if stats.Pages != 2 || stats.Items != 5 {
		t.Fatalf("stats = %+v, want 2 pages, 5 items", stats)
	}
}

func TestCrawlProfileReturnsBlockError(t *testing.T) {
	rec := &recordingReconciler{}
	machine, _ := newTestMachine(rec)
	sess := &fakeSession{pages: []*extract.Page{
		{BlockMessage: "captcha required"},
	}}
	profile := &models.SearchProfile{ID: "p1"}

	_, err := machine.CrawlProfile(context.Background(), sess, testPacer(), profile, 1, 1)
	var blocked extract.ErrBlocked
	if !errors.As(err, &blocked) {
		t.Fatalf("error = %v, want ErrBlocked", err)
	}
	if len(rec.listings) != 0 {
		t.Fatalf("block page items must not be reconciled")
	}
}

func TestCrawlProfilePropagatesFetchError(t *testing.T) {
	rec := &recordingReconciler{}
	machine, _ := newTestMachine(rec)
	wantErr := extract.ErrTimeout{Err: context.DeadlineExceeded}
	sess := &fakeSession{err: wantErr}
	profile := &models.SearchProfile{ID: "p1"}

	stats, err := machine.CrawlProfile(context.Background(), sess, testPacer(), profile, 1, 1)
	if !extract.IsTimeout(err) {
		t.Fatalf("error = %v, want timeout", err)
	}
	if stats.Pages != 0 {
		t.Fatalf("failed navigation must not count as a page")
	}
}

func TestCrawlProfileHonorsCancellation(t *testing.T) {
	rec := &recordingReconciler{}
	machine, _ := newTestMachine(rec)
	sess := &fakeSession{pages: []*extract.Page{pageOf(3, "a")}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := machine.CrawlProfile(ctx, sess, testPacer(), &models.SearchProfile{ID: "p1"}, 1, 1)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
}

func TestCrawlProfileReportsProgress(t *testing.T) {
	rec := &recordingReconciler{}
	machine, bcast := newTestMachine(rec)
	sess := &fakeSession{pages: []*extract.Page{
		pageOf(10, "a"),
		{GridFound: true},
	}}
	profile := &models.SearchProfile{ID: "p1", Name: "Coats"}

	// Second of two profiles: finishing its items lands overall at 100.
	_, err := machine.CrawlProfile(context.Background(), sess, testPacer(), profile, 2, 2)
	if err != nil {
		t.Fatalf("crawl: %v", err)
	}

	snap := bcast.Snapshot()
	if snap.Progress != 100 {
		t.Fatalf("progress = %d, want 100", snap.Progress)
	}
	if snap.CurrentProfile != "Coats" {
		t.Fatalf("current profile = %q", snap.CurrentProfile)
	}
	if snap.TotalItemsFound != 10 {
		t.Fatalf("total items = %d, want 10", snap.TotalItemsFound)
	}
	if snap.CurrentPage != 2 {
		t.Fatalf("current page = %d, want 2", snap.CurrentPage)
	}
}
