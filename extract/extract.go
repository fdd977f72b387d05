// Package extract drives one scraping session against the marketplace:
// fetch a search page, detect block pages, and pull the item grid into
// typed records. Site markup knowledge lives here and nowhere else.
package extract

import (
	"context"

	"marketradar/models"
	"marketradar/pacing"
)

// Page is the outcome of one navigation.
type Page struct {
	URL string

	// BlockMessage is non-empty when the page carried an error banner,
	// CAPTCHA, or blocked marker. Items are meaningless in that case.
	BlockMessage string

	// GridFound reports whether the item grid rendered at all. A missing
	// grid is the graceful end-of-results signal, not an error.
	GridFound bool

	// Items are the well-formed listings on the page, in page order.
	// Malformed entries are dropped during extraction.
	Items []models.ScrapedItem
}

// Session is one scraping session. Sessions are not safe for concurrent
// use; the scheduler holds one per owner group.
type Session interface {
	// FetchPage navigates to url and extracts the page. Navigation
	// failures (including timeouts) are returned as errors; block pages
	// and empty grids are reported in the Page.
	FetchPage(ctx context.Context, url string) (*Page, error)

	// Pointer exposes the session's pointer for humanized movement.
	Pointer() pacing.PointerMover

	Close() error
}

// Factory opens sessions. The scheduler bounds how many are open at once.
type Factory interface {
	NewSession() (Session, error)
}
