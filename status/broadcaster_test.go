package status

import (
	"testing"
	"time"

	"marketradar/models"
)

func TestUpdateClampsProgress(t *testing.T) {
	b := NewBroadcaster()

	b.Update(func(s *models.RunStatus) { s.Progress = 40 })
	b.Update(func(s *models.RunStatus) { s.Progress = 25 })

	if got := b.Snapshot().Progress; got != 40 {
		t.Fatalf("progress regressed to %d, want clamp at 40", got)
	}

	b.Update(func(s *models.RunStatus) { s.Progress = 60 })
	if got := b.Snapshot().Progress; got != 60 {
		t.Fatalf("progress = %d, want 60", got)
	}
}

func TestResetStartsFreshRun(t *testing.T) {
	b := NewBroadcaster()
	b.Update(func(s *models.RunStatus) {
		s.Progress = 90
		s.LastError = "boom"
	})

	startedAt := time.Now()
	b.Reset(startedAt)

	snap := b.Snapshot()
	if snap.Progress != 0 {
		t.Fatalf("reset should zero progress, got %d", snap.Progress)
	}
	if snap.Status != models.RunRunning {
		t.Fatalf("status = %q, want %q", snap.Status, models.RunRunning)
	}
	if snap.LastError != "" {
		t.Fatalf("reset should clear last error, got %q", snap.LastError)
	}
	if !snap.LastRun.Equal(startedAt) {
		t.Fatalf("last run = %v, want %v", snap.LastRun, startedAt)
	}
}

func TestUpdateStampsLastUpdate(t *testing.T) {
	b := NewBroadcaster()
	stamp := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	b.clock = func() time.Time { return stamp }

	b.Update(func(s *models.RunStatus) { s.Stage = models.StageItems })

	if got := b.Snapshot().LastUpdate; !got.Equal(stamp) {
		t.Fatalf("last update = %v, want %v", got, stamp)
	}
}

func TestSubscribeDeliversSnapshotFirst(t *testing.T) {
	b := NewBroadcaster()
	b.Update(func(s *models.RunStatus) {
		s.Status = models.RunRunning
		s.Progress = 30
	})

	updates, cancel := b.Subscribe()
	defer cancel()

	first := <-updates
	if first.Progress != 30 || first.Status != models.RunRunning {
		t.Fatalf("late joiner got %+v, want current snapshot", first)
	}

	b.Update(func(s *models.RunStatus) { s.Progress = 45 })
	second := <-updates
	if second.Progress != 45 {
		t.Fatalf("subscriber missed update, got progress %d", second.Progress)
	}
}

func TestSlowSubscriberNeverBlocksUpdates(t *testing.T) {
	b := NewBroadcaster()
	_, cancel := b.Subscribe()
	defer cancel()

	// Far more updates than the subscriber buffer holds; Update must keep
	// returning promptly, dropping what the reader never consumed.
	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*4; i++ {
			progress := i
			b.Update(func(s *models.RunStatus) { s.Progress = progress })
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("updates blocked on a slow subscriber")
	}
}

func TestCancelClosesSubscription(t *testing.T) {
	b := NewBroadcaster()
	updates, cancel := b.Subscribe()

	<-updates // initial snapshot
	cancel()
	cancel() // idempotent

	if _, ok := <-updates; ok {
		t.Fatalf("channel should be closed after cancel")
	}

	// Updates after cancel must not panic on the removed subscriber.
	b.Update(func(s *models.RunStatus) { s.Progress = 10 })
}
