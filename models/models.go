// Package models defines the data structures shared across the crawl pipeline.
package models

import "time"

// Priority orders search profiles within a run. Higher ranks are crawled first.
type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
)

// Rank maps a priority to a comparable weight. Unknown values sort last.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

// AutoActions holds the unattended follow-ups configured for a profile.
// AutoOfferPrice is the price an OFFER action is created at, not a threshold
// on its own: an offer fires only when the listing price is at or below it.
type AutoActions struct {
	AutoFavorite   bool
	AutoOffer      bool
	AutoOfferPrice *float64
	AutoBuy        bool
}

// SearchProfile is an immutable snapshot of a saved search, loaded fresh at
// the start of every run. CRUD mutations never affect an in-flight run.
type SearchProfile struct {
	ID          string
	OwnerID     string
	Name        string
	Keywords    string
	MinPrice    *float64
	MaxPrice    *float64
	Condition   string
	BrandID     *int64
	Order       string
	Priority    Priority
	IsActive    bool
	AutoActions *AutoActions
	CreatedAt   time.Time
}

// Label returns a human-readable identifier for status reporting.
func (p *SearchProfile) Label() string {
	if p.Name != "" {
		return p.Name
	}
	if p.Keywords != "" {
		return p.Keywords
	}
	return "Unnamed profile"
}

// ScrapedItem is the ephemeral extraction result for one listing on one page.
// It exists only between extraction and reconciliation.
type ScrapedItem struct {
	ListingID  string
	Title      string
	Price      float64
	TotalPrice *float64
	ImageURLs  []string
	ProductURL string
	Condition  string
	Size       string
	Brand      string
	Likes      int
}

// Match is the durable record of a listing that satisfied a profile at least
// once, keyed by (ListingID, SearchProfileID). At most one exists per pair.
type Match struct {
	ID              string
	ListingID       string
	SearchProfileID string
	Title           string
	Price           float64
	TotalPrice      *float64
	ImageURLs       []string
	ProductURL      string
	Condition       string
	Likes           int
	MatchedAt       time.Time
	UpdatedAt       time.Time
}

// NotificationType distinguishes the two in-app notification kinds.
type NotificationType string

const (
	NotifyNewMatch  NotificationType = "NEW_MATCH"
	NotifyPriceDrop NotificationType = "PRICE_DROP"
)

// Notification is an append-only in-app message. Read state is owned by the
// CRUD layer.
type Notification struct {
	ID        string
	Type      NotificationType
	Message   string
	UserID    string
	MatchID   string
	IsRead    bool
	CreatedAt time.Time
}

// ActionType identifies an unattended follow-up request.
type ActionType string

const (
	ActionFavorite ActionType = "FAVORITE"
	ActionOffer    ActionType = "OFFER"
	ActionBuy      ActionType = "BUY"
)

// ActionPending is the only status the pipeline writes; a separate consumer
// executes pending actions against the marketplace.
const ActionPending = "PENDING"

// Action is an append-only request record created when a new match satisfies
// a profile's auto-action conditions.
type Action struct {
	ID        string
	Type      ActionType
	Price     *float64
	Status    string
	UserID    string
	MatchID   string
	CreatedAt time.Time
}

// OutboundNotification carries one webhook message through the dispatcher
// queue. It is destroyed on delivery or after exhausting its single retry.
type OutboundNotification struct {
	Type       NotificationType
	Title      string
	Price      float64
	OldPrice   *float64
	ImageURL   string
	ProductURL string
	Condition  string
	Size       string
	Brand      string
	WebhookURL string
}

// Run lifecycle values surfaced through RunStatus.
const (
	RunIdle      = "idle"
	RunRunning   = "running"
	RunCompleted = "completed"
	RunError     = "error"
)

// Stage values surfaced through RunStatus.
const (
	StageInitializing  = "initializing"
	StageProfiles      = "processing_profiles"
	StageItems         = "processing_items"
	StageNotifications = "sending_notifications"
	StageCompleted     = "completed"
)

// RunStatus is the single process-wide, most-recent-wins description of the
// current crawl. It is rebuilt each run and never persisted.
type RunStatus struct {
	Status               string        `json:"status"`
	Stage                string        `json:"stage"`
	Progress             int           `json:"progress"`
	TotalProfiles        int           `json:"totalProfiles"`
	ProfileID            string        `json:"profileId"`
	CurrentProfile       string        `json:"currentProfile"`
	CurrentProfileIndex  int           `json:"currentProfileIndex"`
	CurrentPage          int           `json:"currentPage"`
	ItemsProcessedOnPage int           `json:"itemsProcessedOnCurrentPage"`
	ItemsForProfile      int           `json:"totalItemsProcessedForProfile"`
	TotalItemsFound      int           `json:"totalItemsFound"`
	QueueDepth           int           `json:"notificationQueueSize"`
	RateLimited          bool          `json:"rateLimit"`
	RateLimitWait        time.Duration `json:"rateLimitWaitTime"`
	LastError            string        `json:"lastError,omitempty"`
	LastRun              time.Time     `json:"lastRun"`
	LastUpdate           time.Time     `json:"lastUpdate"`
}

// RunSummary aggregates the outcome of one scheduler pass.
type RunSummary struct {
	StartedAt      time.Time
	FinishedAt     time.Time
	TotalProfiles  int
	CompletedCount int
	FailedCount    int
	ItemsProcessed int
}
