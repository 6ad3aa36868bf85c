// Package viewcount turns cumulative venue view counts into a "recent
// increase" signal. A baseline snapshot of counts is taken at most every
// window; the increase of a venue is its current count minus the baseline.
// Snapshots persist across reloads through a BlobStore and are only reused
// while younger than the window.
package viewcount

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/CES-Eats-2026/cesfront/internal/venue"
)

// DefaultWindow is both the snapshot validity and the rotation period.
const DefaultWindow = 10 * time.Minute

// BlobStore persists opaque blobs. Get returns nil, nil on a miss.
// *cache.Cache and *storage.Repository satisfy it.
type BlobStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// Snapshot is a baseline of view counts captured at Timestamp.
type Snapshot struct {
	Counts    map[string]int `json:"counts"`
	Timestamp int64          `json:"timestamp"` // unix millis
}

// TakenAt returns the snapshot time.
func (s Snapshot) TakenAt() time.Time {
	return time.UnixMilli(s.Timestamp)
}

// Tracker owns the baseline for one browser client.
type Tracker struct {
	mu       sync.RWMutex
	store    BlobStore
	key      string
	window   time.Duration
	now      func() time.Time
	log      *slog.Logger
	baseline *Snapshot
	loaded   *Snapshot
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithWindow overrides DefaultWindow.
func WithWindow(d time.Duration) Option {
	return func(t *Tracker) { t.window = d }
}

// SnapshotKey returns the storage key for a client's snapshot.
func SnapshotKey(clientID string) string {
	return "viewcount:snapshot:" + clientID
}

// NewTracker constructs a Tracker. A nil store keeps the baseline in memory only.
func NewTracker(store BlobStore, clientID string, log *slog.Logger, opts ...Option) *Tracker {
	t := &Tracker{
		store:  store,
		key:    SnapshotKey(clientID),
		window: DefaultWindow,
		now:    time.Now,
		log:    log,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Window returns the rotation period.
func (t *Tracker) Window() time.Duration {
	return t.window
}

// Load reads the persisted snapshot so the next Initialize can reuse it.
// Missing, unreadable, or malformed snapshots are logged and ignored.
func (t *Tracker) Load(ctx context.Context) {
	snap := t.read(ctx)

	t.mu.Lock()
	t.loaded = snap
	t.mu.Unlock()
}

// Initialize establishes the baseline for a fresh venue list. It is a no-op
// while the current baseline is still valid. Otherwise a valid persisted
// snapshot is adopted, and failing that a new one is seeded from the current
// counts and persisted.
func (t *Tracker) Initialize(ctx context.Context, venues []venue.Venue) {
	t.mu.Lock()
	now := t.now()
	if t.baseline != nil && t.valid(*t.baseline, now) {
		t.mu.Unlock()
		return
	}
	loaded := t.loaded
	t.loaded = nil
	t.mu.Unlock()

	if loaded == nil {
		loaded = t.read(ctx)
	}

	if loaded != nil && t.valid(*loaded, now) {
		t.mu.Lock()
		t.baseline = loaded
		t.mu.Unlock()
		return
	}

	t.Rotate(ctx, venues)
}

// Rotate unconditionally replaces the baseline with the current counts and
// persists it.
func (t *Tracker) Rotate(ctx context.Context, venues []venue.Venue) {
	snap := Snapshot{
		Counts:    make(map[string]int, len(venues)),
		Timestamp: t.now().UnixMilli(),
	}
	for _, v := range venues {
		snap.Counts[v.ID] = v.Views()
	}

	t.mu.Lock()
	t.baseline = &snap
	t.mu.Unlock()

	t.write(ctx, snap)
}

// Run rotates the baseline every window until ctx is cancelled. source is
// called at each tick for the current venue list.
func (t *Tracker) Run(ctx context.Context, source func() []venue.Venue) {
	ticker := time.NewTicker(t.window)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Rotate(ctx, source())
		}
	}
}

// Increase returns the views v gained since the baseline. A non-zero
// backend-supplied increase is authoritative. Venues missing from the
// baseline report zero; the result is never negative.
func (t *Tracker) Increase(v venue.Venue) int {
	if v.ViewCountIncrease != nil && *v.ViewCountIncrease != 0 {
		return *v.ViewCountIncrease
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.baseline == nil {
		return 0
	}
	base, ok := t.baseline.Counts[v.ID]
	if !ok {
		return 0
	}
	return max(0, v.Views()-base)
}

// Baseline returns a copy of the current snapshot, or nil before Initialize.
func (t *Tracker) Baseline() *Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.baseline == nil {
		return nil
	}
	c := Snapshot{Counts: make(map[string]int, len(t.baseline.Counts)), Timestamp: t.baseline.Timestamp}
	for k, v := range t.baseline.Counts {
		c.Counts[k] = v
	}
	return &c
}

func (t *Tracker) valid(s Snapshot, now time.Time) bool {
	return now.Sub(s.TakenAt()) < t.window
}

func (t *Tracker) read(ctx context.Context) *Snapshot {
	if t.store == nil {
		return nil
	}

	raw, err := t.store.Get(ctx, t.key)
	if err != nil {
		t.log.Warn("reading view-count snapshot failed", "key", t.key, "err", err)
		return nil
	}
	if raw == nil {
		return nil
	}

	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil || snap.Counts == nil || snap.Timestamp <= 0 {
		t.log.Warn("discarding malformed view-count snapshot", "key", t.key, "err", err)
		return nil
	}

	return &snap
}

func (t *Tracker) write(ctx context.Context, snap Snapshot) {
	if t.store == nil {
		return
	}

	b, err := json.Marshal(snap)
	if err != nil {
		t.log.Warn("encoding view-count snapshot failed", "err", err)
		return
	}

	if err := t.store.Set(ctx, t.key, b); err != nil {
		t.log.Warn("persisting view-count snapshot failed", "key", t.key, "err", err)
	}
}
