package trending_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CES-Eats-2026/cesfront/internal/trending"
	"github.com/CES-Eats-2026/cesfront/internal/venue"
)

func v(id string, increase, views int) venue.Venue {
	return venue.Venue{ID: id, ViewCount: venue.IntPtr(views), ViewCountIncrease: venue.IntPtr(increase)}
}

func backendIncrease(x venue.Venue) int {
	if x.ViewCountIncrease == nil {
		return 0
	}
	return *x.ViewCountIncrease
}

func ids(entries []trending.Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Venue.ID
	}
	return out
}

func TestRank_OrderAndTieBreak(t *testing.T) {
	venues := []venue.Venue{v("1", 2, 30), v("2", 5, 10), v("3", 5, 20)}

	got := trending.Rank(venues, backendIncrease)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"3", "2", "1"}, ids(got))
	assert.Equal(t, []int{1, 2, 3}, []int{got[0].Rank, got[1].Rank, got[2].Rank})

	// Rank 1 has 20 views: the "many interested" tier.
	assert.Equal(t, "Many people are interested in this place", got[0].Message)
}

func TestRank_TopThreeOnly(t *testing.T) {
	venues := []venue.Venue{v("a", 1, 0), v("b", 2, 0), v("c", 3, 0), v("d", 4, 0), v("e", 0, 100)}

	got := trending.Rank(venues, backendIncrease)
	assert.Equal(t, []string{"d", "c", "b"}, ids(got))
}

func TestRank_StableOnFullTie(t *testing.T) {
	venues := []venue.Venue{v("x", 1, 5), v("y", 1, 5), v("z", 1, 5)}
	assert.Equal(t, []string{"x", "y", "z"}, ids(trending.Rank(venues, backendIncrease)))
}

func TestRank_FewerThanThree(t *testing.T) {
	assert.Empty(t, trending.Rank(nil, backendIncrease))

	got := trending.Rank([]venue.Venue{{ID: "solo"}}, backendIncrease)
	require.Len(t, got, 1)
	assert.Equal(t, 1, got[0].Rank)
	assert.Equal(t, "A popular place right now", got[0].Message)
}

func TestRank_DoesNotReorderInput(t *testing.T) {
	venues := []venue.Venue{v("1", 2, 30), v("2", 5, 10)}
	_ = trending.Rank(venues, backendIncrease)
	assert.Equal(t, "1", venues[0].ID)
}

func TestMessage_Tiers(t *testing.T) {
	tests := []struct {
		rank, increase, views int
		want                  string
	}{
		{1, 0, 50, "Most people are looking at this place right now"},
		{1, 0, 49, "Many people are interested in this place"},
		{1, 0, 20, "Many people are interested in this place"},
		{1, 9, 19, "A popular place right now"},
		{2, 5, 0, "Surging: 5 more views in the last 10 minutes"},
		{2, 4, 0, "Rising in popularity: 4 more views"},
		{2, 0, 99, "A popular place right now"},
		{3, 3, 0, "3+ more people viewing in the last 10 minutes"},
		{3, 2, 0, "2 more people looking"},
		{3, 0, 0, "Many people are searching for this place"},
		{4, 0, 0, "Many people are searching for this place"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, trending.Message(tt.rank, tt.increase, tt.views), "rank=%d inc=%d views=%d", tt.rank, tt.increase, tt.views)
	}
}

// ---- Board ----

type mapStore struct {
	data   map[string][]byte
	getErr error
	setErr error
}

func (m *mapStore) Get(_ context.Context, k string) ([]byte, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.data[k], nil
}

func (m *mapStore) Set(_ context.Context, k string, val []byte) error {
	if m.setErr != nil {
		return m.setErr
	}
	m.data[k] = val
	return nil
}

func discardLog() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBoard_Movement(t *testing.T) {
	store := &mapStore{data: map[string][]byte{}}
	board := trending.NewBoard(store, "c1", discardLog())
	ctx := context.Background()

	first := board.Publish(ctx, []venue.Venue{v("a", 5, 0), v("b", 3, 0), v("c", 1, 0)}, backendIncrease)
	for _, e := range first {
		assert.Equal(t, trending.MovementNew, e.Movement)
	}
	assert.JSONEq(t, `{"a":1,"b":2,"c":3}`, string(store.data[trending.RanksKey("c1")]))

	second := board.Publish(ctx, []venue.Venue{v("a", 1, 0), v("b", 6, 0), v("d", 2, 0)}, backendIncrease)
	require.Len(t, second, 3)

	assert.Equal(t, "b", second[0].Venue.ID)
	assert.Equal(t, trending.MovementUp, second[0].Movement)
	assert.Equal(t, 2, second[0].PreviousRank)

	assert.Equal(t, "d", second[1].Venue.ID)
	assert.Equal(t, trending.MovementNew, second[1].Movement)

	assert.Equal(t, "a", second[2].Venue.ID)
	assert.Equal(t, trending.MovementDown, second[2].Movement)
	assert.Equal(t, 1, second[2].PreviousRank)
}

func TestBoard_SameRank(t *testing.T) {
	store := &mapStore{data: map[string][]byte{trending.RanksKey("c1"): []byte(`{"a":1}`)}}
	got := trending.NewBoard(store, "c1", discardLog()).Publish(context.Background(), []venue.Venue{v("a", 1, 0)}, backendIncrease)
	assert.Equal(t, trending.MovementSame, got[0].Movement)
}

func TestBoard_StoreFailuresAreSoft(t *testing.T) {
	store := &mapStore{data: map[string][]byte{}, getErr: errors.New("down"), setErr: errors.New("down")}
	got := trending.NewBoard(store, "c1", discardLog()).Publish(context.Background(), []venue.Venue{v("a", 1, 0)}, backendIncrease)
	require.Len(t, got, 1)
	assert.Equal(t, trending.MovementNew, got[0].Movement)
}

func TestBoard_CorruptRanksIgnored(t *testing.T) {
	store := &mapStore{data: map[string][]byte{trending.RanksKey("c1"): []byte(`[1,2]`)}}
	got := trending.NewBoard(store, "c1", discardLog()).Publish(context.Background(), []venue.Venue{v("a", 1, 0)}, backendIncrease)
	assert.Equal(t, trending.MovementNew, got[0].Movement)
}

func TestBoard_NilStore(t *testing.T) {
	got := trending.NewBoard(nil, "c1", discardLog()).Publish(context.Background(), []venue.Venue{v("a", 1, 0)}, backendIncrease)
	require.Len(t, got, 1)
	assert.Empty(t, got[0].Movement)
}
