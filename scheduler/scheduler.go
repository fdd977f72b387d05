// Package scheduler owns the run lifecycle: loading profiles, ordering
// owner groups by priority, bounding concurrent scraping sessions, and the
// recurring trigger. At most one run is ever active.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"marketradar/config"
	"marketradar/extract"
	"marketradar/metrics"
	"marketradar/models"
	"marketradar/pacing"
	"marketradar/scrape"
	"marketradar/status"
	"marketradar/store"
)

// ErrRunActive is returned when a trigger arrives while a run is in flight.
var ErrRunActive = errors.New("scheduler: run already active")

// Scheduler coordinates one crawl run at a time.
type Scheduler struct {
	cfg      *config.Config
	store    store.Store
	sessions extract.Factory
	machine  *scrape.Machine
	status   *status.Broadcaster
	metrics  *metrics.Metrics

	cron    *cron.Cron
	running atomic.Bool

	// sessionSlots bounds concurrent scraping sessions system-wide.
	sessionSlots chan struct{}
}

// New wires a scheduler.
func New(cfg *config.Config, st store.Store, sessions extract.Factory, machine *scrape.Machine, bcast *status.Broadcaster, m *metrics.Metrics) *Scheduler {
	return &Scheduler{
		cfg:          cfg,
		store:        st,
		sessions:     sessions,
		machine:      machine,
		status:       bcast,
		metrics:      m,
		cron:         cron.New(),
		sessionSlots: make(chan struct{}, cfg.MaxSessions),
	}
}

// Start registers the recurring trigger and starts the cron loop.
func (s *Scheduler) Start(ctx context.Context) error {
	spec := fmt.Sprintf("@every %s", s.cfg.ScrapeInterval)
	if _, err := s.cron.AddFunc(spec, func() {
		if !s.TriggerRun(ctx) {
			slog.Info("scheduled trigger skipped, run already active")
		}
	}); err != nil {
		return fmt.Errorf("register cron job: %w", err)
	}
	s.cron.Start()
	slog.Info("scheduler started", slog.String("spec", spec))
	return nil
}

// Stop halts the cron loop. An in-flight run keeps going until its context
// is cancelled.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}

// TriggerRun starts a run in the background. Returns false when a run is
// already active; the trigger is rejected, never queued.
func (s *Scheduler) TriggerRun(ctx context.Context) bool {
	if !s.running.CompareAndSwap(false, true) {
		return false
	}
	go func() {
		defer s.running.Store(false)
		s.run(ctx)
	}()
	return true
}

// RunOnce executes a run synchronously. It fails fast with ErrRunActive if
// another run holds the guard.
func (s *Scheduler) RunOnce(ctx context.Context) (*models.RunSummary, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrRunActive
	}
	defer s.running.Store(false)
	return s.run(ctx)
}

// ownerGroup is one owner's profiles, crawled over a single session.
type ownerGroup struct {
	ownerID  string
	profiles []models.SearchProfile
	rank     int
}

// groupByOwner buckets profiles per owner, preserving first-appearance
// order, and sorts groups by their highest member priority. The sort is
// stable so equal-priority groups keep their load order.
func groupByOwner(profiles []models.SearchProfile) []ownerGroup {
	index := make(map[string]int)
	var groups []ownerGroup
	for _, p := range profiles {
		i, ok := index[p.OwnerID]
		if !ok {
			i = len(groups)
			index[p.OwnerID] = i
			groups = append(groups, ownerGroup{ownerID: p.OwnerID})
		}
		groups[i].profiles = append(groups[i].profiles, p)
		if rank := p.Priority.Rank(); rank > groups[i].rank {
			groups[i].rank = rank
		}
	}
	sort.SliceStable(groups, func(a, b int) bool {
		return groups[a].rank > groups[b].rank
	})
	return groups
}

// run executes one full pass. The caller holds the run guard.
func (s *Scheduler) run(ctx context.Context) (*models.RunSummary, error) {
	startedAt := time.Now()
	s.status.Reset(startedAt)
	slog.Info("crawl run starting")

	profiles, err := s.store.LoadActiveProfiles(ctx)
	if err != nil {
		slog.Error("loading profiles failed", slog.Any("error", err))
		s.status.Update(func(st *models.RunStatus) {
			st.Status = models.RunError
			st.Stage = models.StageCompleted
			st.LastError = err.Error()
		})
		s.metrics.IncRun("error")
		return nil, fmt.Errorf("load active profiles: %w", err)
	}

	summary := &models.RunSummary{
		StartedAt:     startedAt,
		TotalProfiles: len(profiles),
	}
	s.status.Update(func(st *models.RunStatus) {
		st.TotalProfiles = len(profiles)
		st.Stage = models.StageProfiles
	})
	slog.Info("profiles loaded", slog.Int("count", len(profiles)))

	if len(profiles) == 0 {
		s.finish(summary, "")
		return summary, nil
	}

	groups := groupByOwner(profiles)
	runErr := ""
	profileIndex := 0

	for _, group := range groups {
		if ctx.Err() != nil {
			runErr = ctx.Err().Error()
			break
		}
		if err := s.processGroup(ctx, group, &profileIndex, len(profiles), summary); err != nil {
			// A group-level failure (session setup, cancellation) marks
			// the run but never aborts groups still queued behind it.
			slog.Error("owner group failed",
				slog.String("owner", group.ownerID),
				slog.Any("error", err),
			)
			runErr = err.Error()
		}
	}

	s.finish(summary, runErr)
	return summary, nil
}

func (s *Scheduler) finish(summary *models.RunSummary, runErr string) {
	summary.FinishedAt = time.Now()
	if runErr != "" {
		s.status.Update(func(st *models.RunStatus) {
			st.Status = models.RunError
			st.Stage = models.StageCompleted
			st.LastError = runErr
		})
		s.metrics.IncRun("error")
	} else {
		s.status.Update(func(st *models.RunStatus) {
			st.Status = models.RunCompleted
			st.Stage = models.StageCompleted
			st.Progress = 100
		})
		s.metrics.IncRun("completed")
	}
	slog.Info("crawl run finished",
		slog.Int("profiles", summary.TotalProfiles),
		slog.Int("completed", summary.CompletedCount),
		slog.Int("failed", summary.FailedCount),
		slog.Int("items", summary.ItemsProcessed),
		slog.Duration("took", summary.FinishedAt.Sub(summary.StartedAt)),
	)
}

// processGroup holds one session slot for the duration of one owner's
// profile list. Per-profile failures are logged and isolated; only session
// setup failures escape.
func (s *Scheduler) processGroup(ctx context.Context, group ownerGroup, profileIndex *int, totalProfiles int, summary *models.RunSummary) error {
	select {
	case s.sessionSlots <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-s.sessionSlots }()

	sess, err := s.sessions.NewSession()
	if err != nil {
		*profileIndex += len(group.profiles)
		summary.FailedCount += len(group.profiles)
		return fmt.Errorf("open session for owner %s: %w", group.ownerID, err)
	}
	defer sess.Close()

	pacer := pacing.NewController(s.cfg.TokenInterval)

	for i := range group.profiles {
		profile := &group.profiles[i]
		if ctx.Err() != nil {
			return ctx.Err()
		}
		*profileIndex++
		index := *profileIndex

		s.status.Update(func(st *models.RunStatus) {
			st.CurrentProfileIndex = index
			st.Progress = (index - 1) * 100 / totalProfiles
			st.ProfileID = profile.ID
			st.CurrentProfile = profile.Label()
			st.Stage = models.StageItems
		})
		slog.Info("processing profile",
			slog.String("profile", profile.ID),
			slog.String("owner", group.ownerID),
			slog.String("priority", string(profile.Priority)),
		)

		stats, err := s.machine.CrawlProfile(ctx, sess, pacer, profile, index, totalProfiles)
		summary.ItemsProcessed += stats.Items
		if err != nil {
			summary.FailedCount++
			slog.Error("profile crawl failed",
				slog.String("profile", profile.ID),
				slog.Any("error", err),
			)
		} else {
			summary.CompletedCount++
		}

		s.status.Update(func(st *models.RunStatus) {
			st.Progress = index * 100 / totalProfiles
		})
	}
	return nil
}
