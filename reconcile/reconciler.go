// Package reconcile decides new-vs-update-vs-unchanged for every extracted
// item, persists the outcome, and emits notification and auto-action events.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"marketradar/metrics"
	"marketradar/models"
	"marketradar/store"
)

// priceCacheSize bounds the in-process last-seen-price cache. At the default
// size a run over tens of profiles stays entirely in cache.
const priceCacheSize = 16384

// Enqueuer is the outbound notification sink. Reconcilers only enqueue,
// never block on delivery.
type Enqueuer interface {
	Enqueue(n models.OutboundNotification)
}

// Reconciler applies one extracted item to the durable match state. It
// never lets an error escape: single-item failures are logged and skipped.
type Reconciler struct {
	store    store.Store
	outbound Enqueuer
	metrics  *metrics.Metrics

	// lastPrice short-circuits items whose price matches the last
	// reconciled value, skipping the store round-trip entirely.
	lastPrice *lru.Cache[string, float64]

	clock func() time.Time
	newID func() string
}

// New builds a reconciler writing through st and queueing webhooks on out.
func New(st store.Store, out Enqueuer, m *metrics.Metrics) (*Reconciler, error) {
	cache, err := lru.New[string, float64](priceCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create price cache: %w", err)
	}
	return &Reconciler{
		store:     st,
		outbound:  out,
		metrics:   m,
		lastPrice: cache,
		clock:     time.Now,
		newID:     uuid.NewString,
	}, nil
}

func cacheKey(listingID, profileID string) string {
	return listingID + "|" + profileID
}

// Reconcile processes one item for one profile.
func (r *Reconciler) Reconcile(ctx context.Context, profile *models.SearchProfile, item models.ScrapedItem) {
	key := cacheKey(item.ListingID, profile.ID)
	if cached, ok := r.lastPrice.Get(key); ok && cached == item.Price {
		return
	}

	match, err := r.store.FindMatch(ctx, item.ListingID, profile.ID)
	if err != nil {
		slog.Error("match lookup failed",
			slog.String("profile", profile.ID),
			slog.String("listing", item.ListingID),
			slog.Any("error", err),
		)
		return
	}

	if match == nil {
		r.createMatch(ctx, profile, item, key)
		return
	}

	if match.Price != item.Price {
		r.updateMatch(ctx, profile, item, match, key)
		return
	}

	// Nothing material changed; remember the price so the next sighting
	// skips the lookup.
	r.lastPrice.Add(key, item.Price)
}

func (r *Reconciler) createMatch(ctx context.Context, profile *models.SearchProfile, item models.ScrapedItem, key string) {
	now := r.clock()
	match := &models.Match{
		ID:              r.newID(),
		ListingID:       item.ListingID,
		SearchProfileID: profile.ID,
		Title:           item.Title,
		Price:           item.Price,
		TotalPrice:      item.TotalPrice,
		ImageURLs:       item.ImageURLs,
		ProductURL:      item.ProductURL,
		Condition:       item.Condition,
		Likes:           item.Likes,
		MatchedAt:       now,
		UpdatedAt:       now,
	}

	if err := r.store.CreateMatch(ctx, match); err != nil {
		slog.Error("create match failed",
			slog.String("profile", profile.ID),
			slog.String("listing", item.ListingID),
			slog.Any("error", err),
		)
		return
	}
	r.lastPrice.Add(key, item.Price)
	r.metrics.IncMatchCreated()
	slog.Info("new match",
		slog.String("profile", profile.ID),
		slog.String("listing", item.ListingID),
		slog.Float64("price", item.Price),
	)

	r.notify(ctx, profile, match.ID, models.Notification{
		Type:    models.NotifyNewMatch,
		Message: fmt.Sprintf("New match found: %s", item.Title),
	}, item, nil)

	r.evaluateAutoActions(ctx, profile, match.ID, item)
}

func (r *Reconciler) updateMatch(ctx context.Context, profile *models.SearchProfile, item models.ScrapedItem, match *models.Match, key string) {
	if err := r.store.UpdateMatch(ctx, match.ID, item.Price, item.TotalPrice, item.Likes); err != nil {
		slog.Error("update match failed",
			slog.String("profile", profile.ID),
			slog.String("listing", item.ListingID),
			slog.Any("error", err),
		)
		return
	}
	r.lastPrice.Add(key, item.Price)
	r.metrics.IncMatchUpdated()
	slog.Info("price change",
		slog.String("profile", profile.ID),
		slog.String("listing", item.ListingID),
		slog.Float64("old", match.Price),
		slog.Float64("new", item.Price),
	)

	oldPrice := match.Price
	r.notify(ctx, profile, match.ID, models.Notification{
		Type: models.NotifyPriceDrop,
		Message: fmt.Sprintf("Price changed for %s: From €%.2f to €%.2f",
			item.Title, oldPrice, item.Price),
	}, item, &oldPrice)
}

// notify creates the in-app notification and, when the owner has a webhook
// configured, enqueues the outbound message. Failures here never undo the
// match write; they are logged and the item remains reconciled.
func (r *Reconciler) notify(ctx context.Context, profile *models.SearchProfile, matchID string, n models.Notification, item models.ScrapedItem, oldPrice *float64) {
	n.ID = r.newID()
	n.UserID = profile.OwnerID
	n.MatchID = matchID
	n.CreatedAt = r.clock()

	if err := r.store.CreateNotification(ctx, &n); err != nil {
		slog.Error("create notification failed",
			slog.String("profile", profile.ID),
			slog.Any("error", err),
		)
	}

	webhookURL, err := r.store.OwnerWebhookURL(ctx, profile.OwnerID)
	if err != nil {
		slog.Error("webhook lookup failed",
			slog.String("owner", profile.OwnerID),
			slog.Any("error", err),
		)
		return
	}
	if webhookURL == "" {
		return
	}

	imageURL := ""
	if len(item.ImageURLs) > 0 {
		imageURL = item.ImageURLs[0]
	}
	r.outbound.Enqueue(models.OutboundNotification{
		Type:       n.Type,
		Title:      item.Title,
		Price:      item.Price,
		OldPrice:   oldPrice,
		ImageURL:   imageURL,
		ProductURL: item.ProductURL,
		Condition:  item.Condition,
		Size:       item.Size,
		Brand:      item.Brand,
		WebhookURL: webhookURL,
	})
}

// evaluateAutoActions fires for new matches only. Each action is
// independent; several can fire for the same match.
func (r *Reconciler) evaluateAutoActions(ctx context.Context, profile *models.SearchProfile, matchID string, item models.ScrapedItem) {
	actions := profile.AutoActions
	if actions == nil {
		return
	}

	if actions.AutoFavorite {
		r.createAction(ctx, profile, matchID, models.ActionFavorite, nil)
	}
	if actions.AutoOffer && actions.AutoOfferPrice != nil && item.Price <= *actions.AutoOfferPrice {
		// Offers go out at the configured price, not the listing price.
		r.createAction(ctx, profile, matchID, models.ActionOffer, actions.AutoOfferPrice)
	}
	if actions.AutoBuy {
		r.createAction(ctx, profile, matchID, models.ActionBuy, nil)
	}
}

func (r *Reconciler) createAction(ctx context.Context, profile *models.SearchProfile, matchID string, kind models.ActionType, price *float64) {
	action := &models.Action{
		ID:        r.newID(),
		Type:      kind,
		Price:     price,
		Status:    models.ActionPending,
		UserID:    profile.OwnerID,
		MatchID:   matchID,
		CreatedAt: r.clock(),
	}
	if err := r.store.CreateAction(ctx, action); err != nil {
		slog.Error("create action failed",
			slog.String("profile", profile.ID),
			slog.String("type", string(kind)),
			slog.Any("error", err),
		)
		return
	}
	slog.Info("auto action recorded",
		slog.String("profile", profile.ID),
		slog.String("type", string(kind)),
	)
}
