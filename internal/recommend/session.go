// Package recommend holds the per-tab recommendation state: search
// parameters, the fetched venue list, the selection cursor and the views
// derived from them.
package recommend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/CES-Eats-2026/cesfront/internal/backend"
	"github.com/CES-Eats-2026/cesfront/internal/geo"
	"github.com/CES-Eats-2026/cesfront/internal/trending"
	"github.com/CES-Eats-2026/cesfront/internal/venue"
	"github.com/CES-Eats-2026/cesfront/internal/viewcount"
)

const (
	// PageSize is how many venues are rendered per page of the list.
	PageSize = 10

	DefaultTimeOptionMinutes = 15
)

var (
	ErrNoOrigin      = errors.New("origin not set")
	ErrSuperseded    = errors.New("response superseded by a newer request")
	ErrVenueNotFound = errors.New("venue not found")
	ErrClosed        = errors.New("session closed")
)

// State is the fetch lifecycle of a session.
type State string

const (
	StateIdle     State = "idle"
	StateFetching State = "fetching"
	StateReady    State = "ready"
	StateError    State = "error"
)

// Backend is the subset of backend.Client used by a session.
type Backend interface {
	Recommendations(ctx context.Context, r backend.RecommendationRequest) ([]venue.Venue, error)
	IncrementView(ctx context.Context, placeID string) (int, error)
	RAGRecommendations(ctx context.Context, r backend.RAGRequest) (*backend.RAGResult, error)
}

// Options seed a new session.
type Options struct {
	ID                string
	ClientID          string
	Origin            *geo.Location
	TimeOptionMinutes int
	Type              venue.Type
}

// Session is the recommendation state of one browser tab. All methods are
// safe for concurrent use; a response only lands if it answers the most
// recently dispatched request.
type Session struct {
	id       string
	clientID string
	backend  Backend
	tracker  *viewcount.Tracker
	board    *trending.Board
	log      *slog.Logger
	now      func() time.Time

	mu        sync.Mutex
	params    venue.SearchParameters
	hasOrigin bool
	state     State
	errMsg    string
	venues    []venue.Venue
	selected  *venue.Venue
	mapPin    *geo.Location
	display   int
	seq       uint64
	rag       *backend.RAGResult
	lastUsed  time.Time
	closed    bool

	stopOnce sync.Once
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewSession constructs a session in the idle state. Call Start to run the
// first fetch and the snapshot rotation loop.
func NewSession(b Backend, tracker *viewcount.Tracker, board *trending.Board, opts Options, log *slog.Logger) *Session {
	if opts.TimeOptionMinutes <= 0 {
		opts.TimeOptionMinutes = DefaultTimeOptionMinutes
	}
	if opts.Type == "" {
		opts.Type = venue.TypeAll
	}
	if opts.ClientID == "" {
		opts.ClientID = opts.ID
	}

	s := &Session{
		id:       opts.ID,
		clientID: opts.ClientID,
		backend:  b,
		tracker:  tracker,
		board:    board,
		log:      log.With("session", opts.ID),
		now:      time.Now,
		params: venue.SearchParameters{
			TimeOptionMinutes: opts.TimeOptionMinutes,
			Type:              opts.Type,
		},
		state:   StateIdle,
		display: PageSize,
	}
	if opts.Origin != nil {
		s.params.Origin = *opts.Origin
		s.hasOrigin = true
	}
	s.lastUsed = s.now()
	return s
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Start loads the persisted view-count snapshot and runs the first fetch
// concurrently, initializes the baseline, then starts the rotation loop.
// The returned error is the first fetch's error, if any; the session stays
// usable either way.
func (s *Session) Start(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("snapshot load panicked", "recover", r)
				err = fmt.Errorf("snapshot load panicked: %v", r)
			}
		}()
		s.tracker.Load(gCtx)
		return nil
	})

	var venues []venue.Venue
	var fetchErr error
	g.Go(func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("initial fetch panicked", "recover", r)
				err = fmt.Errorf("initial fetch panicked: %v", r)
			}
		}()
		venues, fetchErr = s.fetch(ctx)
		return nil
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("starting session %s: %w", s.id, err)
	}

	if fetchErr == nil {
		s.tracker.Initialize(ctx, venues)
	} else if errors.Is(fetchErr, ErrNoOrigin) {
		fetchErr = nil
	}

	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		cancel()
		return ErrClosed
	}
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	go func() {
		defer close(done)
		s.tracker.Run(runCtx, s.Venues)
	}()

	return fetchErr
}

// Close stops the rotation loop. Responses arriving afterwards are dropped.
func (s *Session) Close() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		cancel, done := s.cancel, s.done
		s.mu.Unlock()

		if cancel != nil {
			cancel()
			<-done
		}
	})
}

// TriggerFetch requests the full venue set for the current origin and time
// option. Type filtering happens locally, so the list is replaced wholesale.
func (s *Session) TriggerFetch(ctx context.Context) error {
	venues, err := s.fetch(ctx)
	if err != nil {
		return err
	}
	s.tracker.Initialize(ctx, venues)
	return nil
}

func (s *Session) fetch(ctx context.Context) ([]venue.Venue, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	if !s.hasOrigin {
		s.mu.Unlock()
		return nil, ErrNoOrigin
	}
	s.seq++
	seq := s.seq
	req := backend.RecommendationRequest{
		Latitude:   s.params.Origin.Latitude,
		Longitude:  s.params.Origin.Longitude,
		TimeOption: s.params.TimeOptionMinutes,
		Type:       s.params.Type,
	}
	s.state = StateFetching
	s.lastUsed = s.now()
	s.mu.Unlock()

	stores, err := s.backend.Recommendations(ctx, req)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}
	if seq != s.seq {
		s.log.Debug("discarding superseded recommendation response", "seq", seq, "latest", s.seq)
		return nil, ErrSuperseded
	}

	if err != nil {
		s.venues = nil
		s.selected = nil
		s.state = StateError
		s.errMsg = UserMessage(err)
		s.log.Error("recommendation fetch failed", "err", err)
		return nil, fmt.Errorf("fetching recommendations: %w", err)
	}

	s.venues = stores
	s.selected = nil
	s.display = PageSize
	s.state = StateReady
	s.errMsg = ""
	s.log.Info("recommendations loaded", "count", len(stores), "timeOption", req.TimeOption, "type", req.Type)

	return cloneAll(stores), nil
}

// Update is a partial change of search parameters.
type Update struct {
	Origin            *geo.Location
	TimeOptionMinutes *int
	DistanceMeters    *float64
	Type              *venue.Type
}

// Apply changes the given parameters and, if anything changed while an origin
// is set, triggers exactly one fetch. DistanceMeters is the slider proxy: it
// is clamped to the slider range and converted to minutes, and wins over
// TimeOptionMinutes when both are given.
func (s *Session) Apply(ctx context.Context, u Update) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	changed := false

	if u.Origin != nil && (!s.hasOrigin || *u.Origin != s.params.Origin) {
		s.params.Origin = *u.Origin
		s.hasOrigin = true
		changed = true
	}

	minutes := u.TimeOptionMinutes
	if u.DistanceMeters != nil {
		m := geo.DistanceToTimeMinutes(geo.ClampDistanceMeters(*u.DistanceMeters))
		minutes = &m
	}
	if minutes != nil {
		if *minutes < 0 {
			s.mu.Unlock()
			return fmt.Errorf("time option must not be negative: %d", *minutes)
		}
		if *minutes != s.params.TimeOptionMinutes {
			s.params.TimeOptionMinutes = *minutes
			changed = true
		}
	}

	if u.Type != nil && *u.Type != s.params.Type {
		s.params.Type = *u.Type
		changed = true
	}

	hasOrigin := s.hasOrigin
	s.mu.Unlock()

	if !changed || !hasOrigin {
		return nil
	}
	return s.TriggerFetch(ctx)
}

// SetOrigin sets the search anchor.
func (s *Session) SetOrigin(ctx context.Context, loc geo.Location) error {
	return s.Apply(ctx, Update{Origin: &loc})
}

// SetTimeOption sets the walking time in minutes.
func (s *Session) SetTimeOption(ctx context.Context, minutes int) error {
	return s.Apply(ctx, Update{TimeOptionMinutes: &minutes})
}

// SetDistanceMeters sets the walking distance slider.
func (s *Session) SetDistanceMeters(ctx context.Context, meters float64) error {
	return s.Apply(ctx, Update{DistanceMeters: &meters})
}

// SetTypeFilter sets the venue type filter.
func (s *Session) SetTypeFilter(ctx context.Context, t venue.Type) error {
	return s.Apply(ctx, Update{Type: &t})
}

// Select makes v the selected venue; nil clears the selection and the map
// pin. A view is recorded first (best effort); on success the new count is
// patched into the list and into the returned copy. When v's type differs
// from the filter, the filter follows the selection. The filter change does
// not refetch: the list is never type-scoped by the backend.
func (s *Session) Select(ctx context.Context, v *venue.Venue) (*venue.Venue, error) {
	if v == nil {
		s.mu.Lock()
		s.selected = nil
		s.mapPin = nil
		s.mu.Unlock()
		return nil, nil
	}

	sel := v.Clone()

	count, err := s.backend.IncrementView(ctx, v.ID)
	if err != nil {
		s.log.Warn("view increment failed", "venue", v.ID, "err", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}

	if err == nil {
		sel.ViewCount = venue.IntPtr(count)
		for i := range s.venues {
			if s.venues[i].ID == v.ID {
				s.venues[i].ViewCount = venue.IntPtr(count)
			}
		}
	}

	t := sel.Type
	if t == "" {
		t = venue.TypeOther
	}
	if t != venue.TypeAll && t != s.params.Type {
		s.log.Info("filter follows selection", "from", s.params.Type, "to", t)
		s.params.Type = t
	}

	s.selected = &sel
	s.lastUsed = s.now()

	out := sel.Clone()
	return &out, nil
}

// SelectByID selects a venue from the current list.
func (s *Session) SelectByID(ctx context.Context, id string) (*venue.Venue, error) {
	s.mu.Lock()
	var found *venue.Venue
	for i := range s.venues {
		if s.venues[i].ID == id {
			c := s.venues[i].Clone()
			found = &c
			break
		}
	}
	s.mu.Unlock()

	if found == nil {
		return nil, fmt.Errorf("selecting %s: %w", id, ErrVenueNotFound)
	}
	return s.Select(ctx, found)
}

// Discover appends a venue found through direct map interaction unless its
// id is already listed. It reports whether the venue was added.
func (s *Session) Discover(v venue.Venue) bool {
	v.Type = venue.Normalize(v.Type)

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.venues {
		if existing.ID == v.ID {
			return false
		}
	}
	s.venues = append(s.venues, v.Clone())
	return true
}

// SetMapPin records a click-originated map location.
func (s *Session) SetMapPin(loc geo.Location) {
	s.mu.Lock()
	s.mapPin = &loc
	s.mu.Unlock()
}

// Venues returns a copy of the full fetched list.
func (s *Session) Venues() []venue.Venue {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneAll(s.venues)
}

// Filtered returns the venues matching the type filter, in backend order.
func (s *Session) Filtered() []venue.Venue {
	s.mu.Lock()
	defer s.mu.Unlock()
	return FilterByType(s.venues, s.params.Type)
}

// Displayed returns the currently rendered page prefix of Filtered.
func (s *Session) Displayed() []venue.Venue {
	s.mu.Lock()
	defer s.mu.Unlock()

	f := FilterByType(s.venues, s.params.Type)
	return f[:min(s.display, len(f))]
}

// LoadMore grows the rendered prefix by PageSize, capped at the filtered
// length. It is a no-op once everything is rendered.
func (s *Session) LoadMore() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := len(FilterByType(s.venues, s.params.Type))
	if s.display < total {
		s.display = min(s.display+PageSize, total)
	}
	return min(s.display, total)
}

// Trending ranks the current list by recent view increase.
func (s *Session) Trending(ctx context.Context) []trending.Entry {
	return s.board.Publish(ctx, s.Venues(), s.tracker.Increase)
}

// AskRAG runs a natural-language query around the current origin and radius.
// The answer is kept beside the main list, which is left untouched.
func (s *Session) AskRAG(ctx context.Context, preference string) (*backend.RAGResult, error) {
	if preference == "" {
		return nil, fmt.Errorf("preference is required")
	}

	s.mu.Lock()
	if !s.hasOrigin {
		s.mu.Unlock()
		return nil, ErrNoOrigin
	}
	req := backend.RAGRequest{
		Latitude:       s.params.Origin.Latitude,
		Longitude:      s.params.Origin.Longitude,
		MaxDistanceKm:  s.params.RadiusKm(),
		UserPreference: preference,
	}
	s.mu.Unlock()

	res, err := s.backend.RAGRecommendations(ctx, req)
	if err != nil {
		s.log.Error("rag query failed", "err", err)
		return nil, fmt.Errorf("asking rag: %w", err)
	}

	s.mu.Lock()
	s.rag = res
	s.mu.Unlock()

	return res, nil
}

// IdleSince returns the last time the session was used.
func (s *Session) IdleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastUsed = s.now()
	s.mu.Unlock()
}

// View is a read-only snapshot of the session for rendering.
type View struct {
	ID             string                 `json:"sessionId"`
	ClientID       string                 `json:"clientId"`
	State          State                  `json:"state"`
	Error          string                 `json:"error,omitempty"`
	Params         venue.SearchParameters `json:"params"`
	RadiusKm       float64                `json:"radiusKm"`
	DistanceMeters int                    `json:"distanceMeters"`
	Selected       *venue.Venue           `json:"selected,omitempty"`
	MapPin         *geo.Location          `json:"mapPin,omitempty"`
	Total          int                    `json:"total"`
	Filtered       int                    `json:"filtered"`
	Displayed      int                    `json:"displayed"`
	RAG            *backend.RAGResult     `json:"rag,omitempty"`
}

// View returns the current snapshot.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	filtered := len(FilterByType(s.venues, s.params.Type))
	v := View{
		ID:             s.id,
		ClientID:       s.clientID,
		State:          s.state,
		Error:          s.errMsg,
		Params:         s.params,
		RadiusKm:       s.params.RadiusKm(),
		DistanceMeters: geo.TimeToDistanceMeters(float64(s.params.TimeOptionMinutes)),
		Total:          len(s.venues),
		Filtered:       filtered,
		Displayed:      min(s.display, filtered),
		RAG:            s.rag,
	}
	if s.selected != nil {
		c := s.selected.Clone()
		v.Selected = &c
	}
	if s.mapPin != nil {
		p := *s.mapPin
		v.MapPin = &p
	}
	return v
}

// FilterByType keeps venues matching t: everything for TypeAll, untagged and
// "other" venues for TypeOther, exact matches otherwise. Order is preserved
// and the result shares no memory with the input.
func FilterByType(venues []venue.Venue, t venue.Type) []venue.Venue {
	out := make([]venue.Venue, 0, len(venues))
	for _, v := range venues {
		if matches(v.Type, t) {
			out = append(out, v.Clone())
		}
	}
	return out
}

func matches(vt, filter venue.Type) bool {
	switch {
	case filter == venue.TypeAll:
		return true
	case vt == filter:
		return true
	case filter == venue.TypeOther:
		return vt == "" || vt == venue.TypeOther
	}
	return false
}

// UserMessage turns a fetch error into text fit for the blocking error banner.
func UserMessage(err error) string {
	var se *backend.StatusError
	switch {
	case errors.Is(err, backend.ErrUnreachable):
		return "Cannot reach the recommendation server. Check your connection and try again."
	case errors.As(err, &se):
		return fmt.Sprintf("The recommendation server returned an error (status %d). Please try again.", se.Code)
	default:
		return "Failed to load recommendations. Please try again."
	}
}

func cloneAll(venues []venue.Venue) []venue.Venue {
	if venues == nil {
		return nil
	}
	out := make([]venue.Venue, len(venues))
	for i, v := range venues {
		out[i] = v.Clone()
	}
	return out
}
