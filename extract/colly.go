package extract

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/gocolly/colly/v2"

	"marketradar/config"
	"marketradar/models"
	"marketradar/pacing"
	"marketradar/parser"
)

// Marketplace selectors, mirrored from the live catalog markup.
const (
	selBlockMarkers = ".error-message, .blocked-message, .captcha"
	selGrid         = "div.feed-grid"
	selGridItem     = "div.feed-grid__item"
	selItemLink     = "a.new-item-box__overlay[data-testid^='product-item-id-']"
	selItemImage    = "img.web_ui__Image__content"
	selItemTitle    = "p[data-testid$='--description-title']"
	selItemSubtitle = "p[data-testid$='--description-subtitle']"
	selItemPrice    = "p[data-testid$='--price-text']"
	selItemTotal    = "[aria-label*='Proteção do Comprador']"
	selItemLikes    = "button[data-testid$='--favourite'] span.web_ui__Text__caption"
)

// HTTPSessionFactory opens colly-backed sessions against the marketplace.
type HTTPSessionFactory struct {
	cfg       *config.Config
	agents    *AgentPool
	transport http.RoundTripper
	host      string
}

// NewHTTPSessionFactory validates the catalog URL and prepares the factory.
func NewHTTPSessionFactory(cfg *config.Config) (*HTTPSessionFactory, error) {
	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("base url must include a host")
	}
	return &HTTPSessionFactory{
		cfg:    cfg,
		agents: NewAgentPool(),
		host:   parsed.Host,
	}, nil
}

// WithTransport overrides the HTTP transport; used by tests.
func (f *HTTPSessionFactory) WithTransport(rt http.RoundTripper) *HTTPSessionFactory {
	f.transport = rt
	return f
}

// NewSession opens one scraping session.
func (f *HTTPSessionFactory) NewSession() (Session, error) {
	return &httpSession{
		factory: f,
		pointer: &recordedPointer{width: 1920, height: 1080},
	}, nil
}

// httpSession fetches pages over plain HTTP. Each page load uses a fresh
// collector so extraction state never leaks between pages, and a freshly
// rotated user agent.
type httpSession struct {
	factory *HTTPSessionFactory
	pointer *recordedPointer
	closed  bool
}

func (s *httpSession) FetchPage(ctx context.Context, pageURL string) (*Page, error) {
	if s.closed {
		return nil, fmt.Errorf("session closed")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	collector := colly.NewCollector(
		colly.AllowedDomains(s.factory.host),
		colly.UserAgent(s.factory.agents.Next()),
	)
	collector.SetRequestTimeout(s.factory.cfg.NavTimeout)
	if s.factory.transport != nil {
		collector.WithTransport(s.factory.transport)
	}

	page := &Page{URL: pageURL}

	collector.OnHTML(selBlockMarkers, func(e *colly.HTMLElement) {
		if page.BlockMessage == "" {
			page.BlockMessage = e.Text
		}
	})

	collector.OnHTML(selGrid, func(e *colly.HTMLElement) {
		page.GridFound = true
	})

	collector.OnHTML(selGridItem, func(e *colly.HTMLElement) {
		item := extractItem(e)
		if item == nil {
			return
		}
		if err := parser.ValidateItem(item); err != nil {
			// Partially rendered cards are expected; drop them silently.
			return
		}
		page.Items = append(page.Items, *item)
	})

	if err := collector.Visit(pageURL); err != nil {
		return nil, classifyNavError(err)
	}
	collector.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return page, nil
}

func (s *httpSession) Pointer() pacing.PointerMover {
	return s.pointer
}

func (s *httpSession) Close() error {
	s.closed = true
	return nil
}

// extractItem pulls one listing card into a typed record. Returns nil when
// the card lacks its product link.
func extractItem(e *colly.HTMLElement) *models.ScrapedItem {
	testID := e.ChildAttr(selItemLink, "data-testid")
	if testID == "" {
		return nil
	}

	item := &models.ScrapedItem{
		ListingID:  parser.ListingIDFromTestID(testID),
		ProductURL: e.Request.AbsoluteURL(e.ChildAttr(selItemLink, "href")),
		Title:      e.ChildText(selItemTitle),
		Condition:  e.ChildText(selItemSubtitle),
		Price:      parser.ParsePrice(e.ChildText(selItemPrice)),
		Likes:      parser.ParseLikes(e.ChildText(selItemLikes)),
	}

	if src := e.Request.AbsoluteURL(e.ChildAttr(selItemImage, "src")); src != "" {
		item.ImageURLs = []string{src}
	}

	if label := e.ChildAttr(selItemTotal, "aria-label"); label != "" {
		if total := parser.ParsePrice(label); total > 0 {
			item.TotalPrice = &total
		}
	}

	return item
}

// recordedPointer satisfies pacing.PointerMover for HTTP sessions. The
// movement itself has no network effect; only its timing matters.
type recordedPointer struct {
	width  int
	height int

	mu    sync.Mutex
	moves int
}

func (p *recordedPointer) Viewport() (int, int) {
	return p.width, p.height
}

func (p *recordedPointer) MoveTo(ctx context.Context, x, y int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	p.moves++
	p.mu.Unlock()
	return nil
}

func (p *recordedPointer) Moves() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.moves
}
