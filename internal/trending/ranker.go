// Package trending ranks the venues people are looking at right now.
package trending

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"

	"github.com/CES-Eats-2026/cesfront/internal/venue"
)

// TopK is the number of trending venues shown.
const TopK = 3

// Movement describes how an entry moved since the previous published ranking.
type Movement string

const (
	MovementNew  Movement = "new"
	MovementUp   Movement = "up"
	MovementDown Movement = "down"
	MovementSame Movement = "same"
)

// Entry is one ranked venue.
type Entry struct {
	Venue        venue.Venue `json:"venue"`
	Increase     int         `json:"increase"`
	Rank         int         `json:"rank"`
	Message      string      `json:"message"`
	PreviousRank int         `json:"previousRank,omitempty"`
	Movement     Movement    `json:"movement,omitempty"`
}

// IncreaseFunc resolves the recent view increase of a venue.
type IncreaseFunc func(venue.Venue) int

// Rank returns up to TopK venues ordered by increase, then by total views.
// Equal keys keep their input order.
func Rank(venues []venue.Venue, increase IncreaseFunc) []Entry {
	entries := make([]Entry, 0, len(venues))
	for _, v := range venues {
		entries = append(entries, Entry{Venue: v, Increase: increase(v)})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Increase != entries[j].Increase {
			return entries[i].Increase > entries[j].Increase
		}
		return entries[i].Venue.Views() > entries[j].Venue.Views()
	})

	if len(entries) > TopK {
		entries = entries[:TopK]
	}

	for i := range entries {
		entries[i].Rank = i + 1
		entries[i].Message = Message(entries[i].Rank, entries[i].Increase, entries[i].Venue.Views())
	}

	return entries
}

// Message returns the rank-specific blurb shown under a trending card.
func Message(rank, increase, views int) string {
	switch rank {
	case 1:
		switch {
		case views >= 50:
			return "Most people are looking at this place right now"
		case views >= 20:
			return "Many people are interested in this place"
		default:
			return "A popular place right now"
		}
	case 2:
		switch {
		case increase >= 5:
			return fmt.Sprintf("Surging: %d more views in the last 10 minutes", increase)
		case increase > 0:
			return fmt.Sprintf("Rising in popularity: %d more views", increase)
		default:
			return "A popular place right now"
		}
	default:
		switch {
		case increase >= 3:
			return fmt.Sprintf("%d+ more people viewing in the last 10 minutes", increase)
		case increase > 0:
			return fmt.Sprintf("%d more people looking", increase)
		default:
			return "Many people are searching for this place"
		}
	}
}

// BlobStore persists opaque blobs. Get returns nil, nil on a miss.
type BlobStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// RanksKey returns the storage key of a client's previous-rank map.
func RanksKey(clientID string) string {
	return "trending:ranks:" + clientID
}

// Board ranks venues and annotates entries with movement against the last
// published ranking of the same client.
type Board struct {
	store BlobStore
	key   string
	log   *slog.Logger
}

// NewBoard constructs a Board. A nil store disables movement tracking.
func NewBoard(store BlobStore, clientID string, log *slog.Logger) *Board {
	return &Board{store: store, key: RanksKey(clientID), log: log}
}

// Publish ranks venues, compares them with the previous ranks, and saves the
// new ranks. Persistence failures are logged only.
func (b *Board) Publish(ctx context.Context, venues []venue.Venue, increase IncreaseFunc) []Entry {
	entries := Rank(venues, increase)
	if b.store == nil {
		return entries
	}

	prev := b.previous(ctx)
	for i := range entries {
		e := &entries[i]
		old, ok := prev[e.Venue.ID]
		switch {
		case !ok:
			e.Movement = MovementNew
		case old > e.Rank:
			e.Movement = MovementUp
		case old < e.Rank:
			e.Movement = MovementDown
		default:
			e.Movement = MovementSame
		}
		if ok {
			e.PreviousRank = old
		}
	}

	current := make(map[string]int, len(entries))
	for _, e := range entries {
		current[e.Venue.ID] = e.Rank
	}
	raw, err := json.Marshal(current)
	if err != nil {
		b.log.Warn("encoding trending ranks failed", "err", err)
		return entries
	}
	if err := b.store.Set(ctx, b.key, raw); err != nil {
		b.log.Warn("persisting trending ranks failed", "key", b.key, "err", err)
	}

	return entries
}

func (b *Board) previous(ctx context.Context) map[string]int {
	raw, err := b.store.Get(ctx, b.key)
	if err != nil {
		b.log.Warn("reading trending ranks failed", "key", b.key, "err", err)
		return nil
	}
	if raw == nil {
		return nil
	}

	var ranks map[string]int
	if err := json.Unmarshal(raw, &ranks); err != nil {
		b.log.Warn("discarding malformed trending ranks", "key", b.key, "err", err)
		return nil
	}
	return ranks
}
