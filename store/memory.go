package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"marketradar/models"
)

// Memory is an in-process Store used by tests and credential-less demo runs.
type Memory struct {
	mu            sync.Mutex
	profiles      []models.SearchProfile
	matches       map[string]*models.Match // keyed by listingID|profileID
	notifications []models.Notification
	actions       []models.Action
	webhooks      map[string]string
}

// NewMemory builds an empty store.
func NewMemory() *Memory {
	return &Memory{
		matches:  make(map[string]*models.Match),
		webhooks: make(map[string]string),
	}
}

func matchKey(listingID, profileID string) string {
	return listingID + "|" + profileID
}

// AddProfile registers a profile for subsequent runs.
func (m *Memory) AddProfile(p models.SearchProfile) {
	m.mu.Lock()
	m.profiles = append(m.profiles, p)
	m.mu.Unlock()
}

// SetWebhookURL configures an owner's webhook endpoint.
func (m *Memory) SetWebhookURL(ownerID, url string) {
	m.mu.Lock()
	m.webhooks[ownerID] = url
	m.mu.Unlock()
}

func (m *Memory) LoadActiveProfiles(ctx context.Context) ([]models.SearchProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.SearchProfile, 0, len(m.profiles))
	for _, p := range m.profiles {
		if p.IsActive {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority.Rank() != out[j].Priority.Rank() {
			return out[i].Priority.Rank() > out[j].Priority.Rank()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (m *Memory) FindMatch(ctx context.Context, listingID, profileID string) (*models.Match, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	match, ok := m.matches[matchKey(listingID, profileID)]
	if !ok {
		return nil, nil
	}
	snapshot := *match
	return &snapshot, nil
}

func (m *Memory) CreateMatch(ctx context.Context, match *models.Match) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := matchKey(match.ListingID, match.SearchProfileID)
	if _, exists := m.matches[key]; exists {
		return nil
	}
	snapshot := *match
	m.matches[key] = &snapshot
	return nil
}

func (m *Memory) UpdateMatch(ctx context.Context, id string, price float64, totalPrice *float64, likes int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, match := range m.matches {
		if match.ID == id {
			match.Price = price
			match.TotalPrice = totalPrice
			match.Likes = likes
			match.UpdatedAt = time.Now()
			return nil
		}
	}
	return nil
}

func (m *Memory) CreateNotification(ctx context.Context, n *models.Notification) error {
	m.mu.Lock()
	m.notifications = append(m.notifications, *n)
	m.mu.Unlock()
	return nil
}

func (m *Memory) CreateAction(ctx context.Context, a *models.Action) error {
	m.mu.Lock()
	m.actions = append(m.actions, *a)
	m.mu.Unlock()
	return nil
}

func (m *Memory) OwnerWebhookURL(ctx context.Context, ownerID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.webhooks[ownerID], nil
}

// Notifications returns a copy of all recorded notifications.
func (m *Memory) Notifications() []models.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Notification, len(m.notifications))
	copy(out, m.notifications)
	return out
}

// Actions returns a copy of all recorded actions.
func (m *Memory) Actions() []models.Action {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Action, len(m.actions))
	copy(out, m.actions)
	return out
}

// Matches returns a copy of all stored matches.
func (m *Memory) Matches() []models.Match {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Match, 0, len(m.matches))
	for _, match := range m.matches {
		out = append(out, *match)
	}
	return out
}
