// Package scrape runs the per-profile pagination loop: build the search
// URL, pace and fetch each page, and hand extracted items to reconciliation
// until a zero-item page ends the crawl.
package scrape

import (
	"context"
	"log/slog"
	"time"

	"marketradar/config"
	"marketradar/extract"
	"marketradar/metrics"
	"marketradar/models"
	"marketradar/pacing"
	"marketradar/status"
)

// progressEvery is how many reconciled items pass between status updates.
const progressEvery = 10

// Reconciler consumes extracted items one at a time, in page order.
type Reconciler interface {
	Reconcile(ctx context.Context, profile *models.SearchProfile, item models.ScrapedItem)
}

// Stats summarizes one profile's crawl.
type Stats struct {
	Pages int
	Items int
}

// Machine drives the pagination loop for single profiles. One machine
// serves the whole run; per-profile state lives on the stack.
type Machine struct {
	cfg        *config.Config
	reconciler Reconciler
	status     *status.Broadcaster
	metrics    *metrics.Metrics
	queueDepth func() int
}

// NewMachine wires the loop.
func NewMachine(cfg *config.Config, rec Reconciler, bcast *status.Broadcaster, m *metrics.Metrics, queueDepth func() int) *Machine {
	if queueDepth == nil {
		queueDepth = func() int { return 0 }
	}
	return &Machine{
		cfg:        cfg,
		reconciler: rec,
		status:     bcast,
		metrics:    m,
		queueDepth: queueDepth,
	}
}

// CrawlProfile walks a profile's result pages in increasing order until a
// page yields zero items. Navigation timeouts and block pages terminate only
// this profile's crawl; the error is returned for the scheduler to log.
// profileIndex is 1-based across the whole run and drives overall progress.
func (mc *Machine) CrawlProfile(ctx context.Context, sess extract.Session, pacer *pacing.Controller, profile *models.SearchProfile, profileIndex, totalProfiles int) (Stats, error) {
	var stats Stats
	totalProcessed := 0

	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		searchURL := BuildSearchURL(mc.cfg.BaseURL, profile, page)
		slog.Info("scraping page",
			slog.String("profile", profile.ID),
			slog.Int("page", page),
			slog.String("url", searchURL),
		)
		mc.status.Update(func(s *models.RunStatus) {
			s.ProfileID = profile.ID
			s.CurrentProfile = profile.Label()
			s.CurrentPage = page
			s.ItemsProcessedOnPage = 0
			s.ItemsForProfile = totalProcessed
			s.QueueDepth = mc.queueDepth()
			s.Stage = models.StageItems
		})

		if err := pacer.Acquire(ctx); err != nil {
			return stats, err
		}
		if err := pacer.RandomDelay(ctx, mc.cfg.PreNavDelayMin, mc.cfg.PreNavDelayMax); err != nil {
			return stats, err
		}

		fetchStart := time.Now()
		result, err := sess.FetchPage(ctx, searchURL)
		mc.metrics.ObserveFetch(time.Since(fetchStart))
		if err != nil {
			if extract.IsTimeout(err) {
				mc.metrics.IncProfileError("timeout")
			} else {
				mc.metrics.IncProfileError("navigation")
			}
			return stats, err
		}
		stats.Pages++
		mc.metrics.IncPage()

		if err := pacer.Humanize(ctx, sess.Pointer()); err != nil {
			return stats, err
		}

		if result.BlockMessage != "" {
			mc.metrics.IncProfileError("blocked")
			// Cool down before giving up so the next profile does not hit
			// the detector while it is hot.
			pacer.RandomDelay(ctx, mc.cfg.BlockCooldownMin, mc.cfg.BlockCooldownMax)
			return stats, extract.ErrBlocked{Message: result.BlockMessage}
		}

		if !result.GridFound {
			slog.Warn("item grid missing, treating as end of results",
				slog.String("profile", profile.ID),
				slog.Int("page", page),
			)
			break
		}

		found := len(result.Items)
		if found == 0 {
			break
		}
		mc.metrics.IncItems(found)
		stats.Items += found
		slog.Info("page extracted",
			slog.String("profile", profile.ID),
			slog.Int("page", page),
			slog.Int("items", found),
		)

		processed := 0
		for _, item := range result.Items {
			if err := ctx.Err(); err != nil {
				return stats, err
			}
			mc.reconciler.Reconcile(ctx, profile, item)
			processed++
			totalProcessed++

			if processed%progressEvery == 0 || processed == found {
				pageProgress := processed * 100 / found
				overall := ((profileIndex-1)*100 + pageProgress) / totalProfiles
				itemsOnPage := processed
				totalForProfile := totalProcessed
				mc.status.Update(func(s *models.RunStatus) {
					s.ItemsProcessedOnPage = itemsOnPage
					s.ItemsForProfile = totalForProfile
					s.Progress = overall
					s.QueueDepth = mc.queueDepth()
				})
			}
		}

		if err := pacer.RandomDelay(ctx, mc.cfg.InterPageDelay, mc.cfg.InterPageDelay); err != nil {
			return stats, err
		}
	}

	slog.Info("profile crawl complete",
		slog.String("profile", profile.ID),
		slog.Int("pages", stats.Pages),
		slog.Int("items", stats.Items),
	)
	mc.status.Update(func(s *models.RunStatus) {
		s.ItemsForProfile = totalProcessed
		s.TotalItemsFound += totalProcessed
		s.QueueDepth = mc.queueDepth()
	})
	return stats, nil
}
