package venue

import (
	"fmt"
	"strings"

	"github.com/CES-Eats-2026/cesfront/internal/geo"
)

// Type is a venue category tag.
type Type string

const (
	TypeAll        Type = "all"
	TypeRestaurant Type = "restaurant"
	TypeCafe       Type = "cafe"
	TypeFastFood   Type = "fastfood"
	TypeBar        Type = "bar"
	TypeBakery     Type = "bakery"
	TypeDessert    Type = "dessert"
	TypeOther      Type = "other"
)

var knownTypes = map[Type]struct{}{
	TypeRestaurant: {},
	TypeCafe:       {},
	TypeFastFood:   {},
	TypeBar:        {},
	TypeBakery:     {},
	TypeDessert:    {},
	TypeOther:      {},
}

// Normalize maps a venue's raw tag onto the enumeration. Empty or unknown
// tags become TypeOther.
func Normalize(t Type) Type {
	t = Type(strings.ToLower(strings.TrimSpace(string(t))))
	if _, ok := knownTypes[t]; ok {
		return t
	}
	return TypeOther
}

// ParseFilter validates a user-supplied filter value. Unlike Normalize it
// accepts TypeAll and rejects unknown tags.
func ParseFilter(s string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(s)))
	if t == TypeAll {
		return t, nil
	}
	if _, ok := knownTypes[t]; ok {
		return t, nil
	}
	return "", fmt.Errorf("unknown venue type %q", s)
}

// Review is a single user review attached to a venue.
type Review struct {
	AuthorName              string `json:"authorName"`
	Rating                  int    `json:"rating"`
	Text                    string `json:"text"`
	Time                    *int64 `json:"time,omitempty"`
	RelativeTimeDescription string `json:"relativeTimeDescription,omitempty"`
}

// Venue is a recommended place as returned by the recommendation backend.
type Venue struct {
	ID                string   `json:"id"`
	Name              string   `json:"name"`
	Type              Type     `json:"type"`
	WalkingTime       int      `json:"walkingTime"`
	PriceLevel        int      `json:"priceLevel"`
	Latitude          float64  `json:"latitude"`
	Longitude         float64  `json:"longitude"`
	Address           string   `json:"address,omitempty"`
	Photos            []string `json:"photos,omitempty"`
	Reviews           []Review `json:"reviews,omitempty"`
	ViewCount         *int     `json:"viewCount,omitempty"`
	ViewCountIncrease *int     `json:"viewCountIncrease,omitempty"`
}

// Views returns the total view count, 0 when unknown.
func (v Venue) Views() int {
	if v.ViewCount == nil {
		return 0
	}
	return *v.ViewCount
}

// Location returns the venue coordinate.
func (v Venue) Location() geo.Location {
	return geo.Location{Latitude: v.Latitude, Longitude: v.Longitude}
}

// Clone returns a deep copy that shares no slices or pointers with v.
func (v Venue) Clone() Venue {
	c := v
	if v.Photos != nil {
		c.Photos = append([]string(nil), v.Photos...)
	}
	if v.Reviews != nil {
		c.Reviews = make([]Review, len(v.Reviews))
		for i, r := range v.Reviews {
			c.Reviews[i] = r
			if r.Time != nil {
				ts := *r.Time
				c.Reviews[i].Time = &ts
			}
		}
	}
	if v.ViewCount != nil {
		n := *v.ViewCount
		c.ViewCount = &n
	}
	if v.ViewCountIncrease != nil {
		n := *v.ViewCountIncrease
		c.ViewCountIncrease = &n
	}
	return c
}

// SearchParameters are the inputs of a recommendation search.
type SearchParameters struct {
	TimeOptionMinutes int          `json:"timeOption"`
	Type              Type         `json:"type"`
	Origin            geo.Location `json:"origin"`
}

// RadiusKm returns the clamped search radius for the time option.
func (p SearchParameters) RadiusKm() float64 {
	return geo.RadiusKm(p.TimeOptionMinutes)
}

// IntPtr is a convenience for optional counts.
func IntPtr(n int) *int {
	return &n
}
