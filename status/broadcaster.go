// Package status owns the single mutable run-status record and its fanout
// to live subscribers. Updates are most-recent-write-wins; no history is
// retained.
package status

import (
	"sync"
	"time"

	"marketradar/models"
)

// subscriber buffers a handful of updates; a subscriber that falls behind
// skips intermediate states, which is acceptable for a most-recent-wins feed.
const subscriberBuffer = 16

// Broadcaster holds the current RunStatus and pushes every mutation to all
// subscribers. Late joiners receive the current snapshot on subscribe.
type Broadcaster struct {
	mu    sync.Mutex
	cur   models.RunStatus
	subs  map[int]chan models.RunStatus
	next  int
	clock func() time.Time
}

// NewBroadcaster starts from an idle status.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		cur: models.RunStatus{
			Status:         models.RunIdle,
			Stage:          models.StageInitializing,
			CurrentProfile: "N/A",
		},
		subs:  make(map[int]chan models.RunStatus),
		clock: time.Now,
	}
}

// Update applies a mutation to the status under the single-writer lock,
// stamps the update time, clamps progress so it never regresses within a
// run, and fans the full record out.
func (b *Broadcaster) Update(mutate func(*models.RunStatus)) {
	b.mu.Lock()
	before := b.cur.Progress
	mutate(&b.cur)
	if b.cur.Progress < before {
		b.cur.Progress = before
	}
	b.cur.LastUpdate = b.clock()
	snapshot := b.cur
	b.fanOutLocked(snapshot)
	b.mu.Unlock()
}

// Reset rebuilds the status for a new run. This is the only path that may
// move progress backwards.
func (b *Broadcaster) Reset(startedAt time.Time) {
	b.mu.Lock()
	b.cur = models.RunStatus{
		Status:         models.RunRunning,
		Stage:          models.StageInitializing,
		CurrentProfile: "N/A",
		LastRun:        startedAt,
		LastUpdate:     b.clock(),
	}
	b.fanOutLocked(b.cur)
	b.mu.Unlock()
}

// Snapshot returns the latest status value.
func (b *Broadcaster) Snapshot() models.RunStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cur
}

// Subscribe registers a listener. The current status is delivered first,
// then every subsequent update until cancel is called.
func (b *Broadcaster) Subscribe() (<-chan models.RunStatus, func()) {
	ch := make(chan models.RunStatus, subscriberBuffer)

	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = ch
	ch <- b.cur
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

func (b *Broadcaster) fanOutLocked(snapshot models.RunStatus) {
	for _, sub := range b.subs {
		select {
		case sub <- snapshot:
		default:
			// Slow subscriber: drop this update, it will catch up on the
			// next one.
		}
	}
}
