package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"marketradar/models"
)

// Postgres implements Store on a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects and pings the database.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// Close releases the pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

func (p *Postgres) LoadActiveProfiles(ctx context.Context) ([]models.SearchProfile, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT sp.id, sp.owner_id, sp.name, sp.keywords, sp.min_price, sp.max_price,
		        sp.condition, sp.brand_id, sp.sort_order, sp.priority, sp.created_at,
		        aa.auto_favorite, aa.auto_offer, aa.auto_offer_price, aa.auto_buy
		 FROM search_profiles sp
		 LEFT JOIN auto_actions aa ON aa.search_profile_id = sp.id
		 WHERE sp.is_active = true
		 ORDER BY CASE sp.priority
		            WHEN 'HIGH' THEN 3
		            WHEN 'MEDIUM' THEN 2
		            ELSE 1
		          END DESC,
		          sp.created_at ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("query search_profiles: %w", err)
	}
	defer rows.Close()

	var profiles []models.SearchProfile
	for rows.Next() {
		var (
			prof           models.SearchProfile
			priority       string
			autoFavorite   *bool
			autoOffer      *bool
			autoOfferPrice *float64
			autoBuy        *bool
		)
		if err := rows.Scan(
			&prof.ID, &prof.OwnerID, &prof.Name, &prof.Keywords,
			&prof.MinPrice, &prof.MaxPrice, &prof.Condition, &prof.BrandID,
			&prof.Order, &priority, &prof.CreatedAt,
			&autoFavorite, &autoOffer, &autoOfferPrice, &autoBuy,
		); err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		prof.Priority = models.Priority(priority)
		prof.IsActive = true
		if autoFavorite != nil || autoOffer != nil || autoBuy != nil {
			prof.AutoActions = &models.AutoActions{
				AutoFavorite:   autoFavorite != nil && *autoFavorite,
				AutoOffer:      autoOffer != nil && *autoOffer,
				AutoOfferPrice: autoOfferPrice,
				AutoBuy:        autoBuy != nil && *autoBuy,
			}
		}
		profiles = append(profiles, prof)
	}
	return profiles, rows.Err()
}

func (p *Postgres) FindMatch(ctx context.Context, listingID, profileID string) (*models.Match, error) {
	var (
		match     models.Match
		imageJSON []byte
	)
	err := p.pool.QueryRow(ctx,
		`SELECT id, listing_id, search_profile_id, title, price, total_price,
		        image_urls, product_url, condition, likes, matched_at, updated_at
		 FROM matches
		 WHERE listing_id = $1 AND search_profile_id = $2`,
		listingID, profileID,
	).Scan(
		&match.ID, &match.ListingID, &match.SearchProfileID, &match.Title,
		&match.Price, &match.TotalPrice, &imageJSON, &match.ProductURL,
		&match.Condition, &match.Likes, &match.MatchedAt, &match.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query match: %w", err)
	}
	if len(imageJSON) > 0 {
		if err := json.Unmarshal(imageJSON, &match.ImageURLs); err != nil {
			return nil, fmt.Errorf("decode image urls: %w", err)
		}
	}
	return &match, nil
}

func (p *Postgres) CreateMatch(ctx context.Context, match *models.Match) error {
	imageJSON, err := json.Marshal(match.ImageURLs)
	if err != nil {
		return fmt.Errorf("encode image urls: %w", err)
	}

	// The WHERE NOT EXISTS guard keeps (listing_id, search_profile_id)
	// unique even if two runs ever raced.
	_, err = p.pool.Exec(ctx,
		`INSERT INTO matches
		   (id, listing_id, search_profile_id, title, price, total_price,
		    image_urls, product_url, condition, likes, matched_at, updated_at)
		 SELECT $1, $2, $3, $4, $5, $6, $7::jsonb, $8, $9, $10, $11, $11
		 WHERE NOT EXISTS (
		   SELECT 1 FROM matches WHERE listing_id = $2 AND search_profile_id = $3
		 )`,
		match.ID, match.ListingID, match.SearchProfileID, match.Title,
		match.Price, match.TotalPrice, string(imageJSON), match.ProductURL,
		match.Condition, match.Likes, match.MatchedAt,
	)
	if err != nil {
		return fmt.Errorf("insert match: %w", err)
	}
	return nil
}

func (p *Postgres) UpdateMatch(ctx context.Context, id string, price float64, totalPrice *float64, likes int) error {
	_, err := p.pool.Exec(ctx,
		`UPDATE matches
		 SET price = $2, total_price = $3, likes = $4, updated_at = $5
		 WHERE id = $1`,
		id, price, totalPrice, likes, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("update match: %w", err)
	}
	return nil
}

func (p *Postgres) CreateNotification(ctx context.Context, n *models.Notification) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO notifications (id, type, message, user_id, match_id, is_read, created_at)
		 VALUES ($1, $2, $3, $4, $5, false, $6)`,
		n.ID, string(n.Type), n.Message, n.UserID, n.MatchID, n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (p *Postgres) CreateAction(ctx context.Context, a *models.Action) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO actions (id, type, price, status, user_id, match_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		a.ID, string(a.Type), a.Price, a.Status, a.UserID, a.MatchID, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert action: %w", err)
	}
	return nil
}

func (p *Postgres) OwnerWebhookURL(ctx context.Context, ownerID string) (string, error) {
	var webhookURL *string
	err := p.pool.QueryRow(ctx,
		`SELECT webhook_url FROM users WHERE id = $1`,
		ownerID,
	).Scan(&webhookURL)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("query webhook url: %w", err)
	}
	if webhookURL == nil {
		return "", nil
	}
	return *webhookURL, nil
}
