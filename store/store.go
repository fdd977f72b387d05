// Package store is the persistence boundary of the pipeline. The crawl
// never talks SQL directly; it consumes this interface, satisfied by the
// Postgres implementation in production and the in-memory one in tests.
package store

import (
	"context"

	"marketradar/models"
)

// Store is the subset of the CRUD layer the pipeline consumes.
type Store interface {
	// LoadActiveProfiles returns all active profiles ordered by priority
	// descending, then creation time ascending.
	LoadActiveProfiles(ctx context.Context) ([]models.SearchProfile, error)

	// FindMatch returns the match for (listingID, profileID), or nil when
	// none exists.
	FindMatch(ctx context.Context, listingID, profileID string) (*models.Match, error)

	CreateMatch(ctx context.Context, match *models.Match) error

	// UpdateMatch refreshes the drifting fields of an existing match.
	UpdateMatch(ctx context.Context, id string, price float64, totalPrice *float64, likes int) error

	CreateNotification(ctx context.Context, n *models.Notification) error

	CreateAction(ctx context.Context, a *models.Action) error

	// OwnerWebhookURL returns the owner's configured webhook URL, or ""
	// when none is set.
	OwnerWebhookURL(ctx context.Context, ownerID string) (string, error)
}
