package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/CES-Eats-2026/cesfront/internal/venue"
)

const (
	httpTimeout = 10 * time.Second

	// DefaultBaseURL is the production recommendation API.
	DefaultBaseURL = "https://api.ceseats.store/api"
)

var (
	// ErrUnreachable wraps transport-level failures (DNS, refused, timeout).
	ErrUnreachable = errors.New("backend unreachable")

	// ErrMalformedResponse is returned when a 2xx body cannot be decoded.
	ErrMalformedResponse = errors.New("malformed backend response")
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend returned status %d: %s", e.Code, e.Body)
}

// newHTTPClient returns an http.Client with a 10-second timeout.
func newHTTPClient() *http.Client {
	return &http.Client{Timeout: httpTimeout}
}

// doPost sends body as JSON and decodes the response into dst.
// A nil body sends an empty request; a nil dst skips decoding.
func doPost(ctx context.Context, client *http.Client, rawURL string, body, dst any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request for %s: %w", rawURL, err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, reader)
	if err != nil {
		return fmt.Errorf("creating request for %s: %w", rawURL, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("POST %s: %w: %w", rawURL, ErrUnreachable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response from %s: %w: %w", rawURL, ErrUnreachable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	if dst == nil {
		return nil
	}

	if len(bytes.TrimSpace(raw)) == 0 {
		return fmt.Errorf("empty response from %s: %w", rawURL, ErrMalformedResponse)
	}

	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decoding response from %s: %w: %w", rawURL, ErrMalformedResponse, err)
	}

	return nil
}

// Client talks to the recommendation backend.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient constructs a Client for baseURL, falling back to DefaultBaseURL.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), client: newHTTPClient()}
}

// RecommendationRequest is the body of POST /recommendations.
type RecommendationRequest struct {
	Latitude   float64    `json:"latitude"`
	Longitude  float64    `json:"longitude"`
	TimeOption int        `json:"timeOption"`
	Type       venue.Type `json:"type"`
}

type storesResponse struct {
	Stores []venue.Venue `json:"stores"`
}

// Recommendations returns the ranked venue list for an origin and time option.
func (c *Client) Recommendations(ctx context.Context, r RecommendationRequest) ([]venue.Venue, error) {
	var raw storesResponse
	if err := doPost(ctx, c.client, c.baseURL+"/recommendations", r, &raw); err != nil {
		return nil, fmt.Errorf("fetching recommendations: %w", err)
	}

	stores := make([]venue.Venue, 0, len(raw.Stores))
	for _, s := range raw.Stores {
		if s.ID == "" {
			continue
		}
		s.Type = venue.Normalize(s.Type)
		stores = append(stores, s)
	}

	return stores, nil
}

// IncrementView records a view for placeID and returns the new total.
func (c *Client) IncrementView(ctx context.Context, placeID string) (int, error) {
	endpoint := c.baseURL + "/places/" + url.PathEscape(placeID) + "/view"

	var count int
	if err := doPost(ctx, c.client, endpoint, nil, &count); err != nil {
		return 0, fmt.Errorf("incrementing views for %s: %w", placeID, err)
	}

	return count, nil
}

// RAGRequest is the body of POST /rag/recommendations.
type RAGRequest struct {
	Latitude       float64 `json:"latitude"`
	Longitude      float64 `json:"longitude"`
	MaxDistanceKm  float64 `json:"maxDistanceKm"`
	UserPreference string  `json:"userPreference"`
}

// RAGResult is a natural-language recommendation answer.
type RAGResult struct {
	Stores []venue.Venue `json:"stores"`
	Reason string        `json:"reason"`
}

// RAGRecommendations asks the RAG engine for venues matching a free-text preference.
func (c *Client) RAGRecommendations(ctx context.Context, r RAGRequest) (*RAGResult, error) {
	var res RAGResult
	if err := doPost(ctx, c.client, c.baseURL+"/rag/recommendations", r, &res); err != nil {
		return nil, fmt.Errorf("fetching rag recommendations: %w", err)
	}

	for i := range res.Stores {
		res.Stores[i].Type = venue.Normalize(res.Stores[i].Type)
	}

	return &res, nil
}

// Feedback is a user feedback submission.
type Feedback struct {
	Feedback    string `json:"feedback"`
	ImageBase64 string `json:"imageBase64,omitempty"`
	ImageName   string `json:"imageName,omitempty"`
}

type feedbackResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// SubmitFeedback posts feedback; a success=false answer is an error.
func (c *Client) SubmitFeedback(ctx context.Context, f Feedback) error {
	var res feedbackResponse
	if err := doPost(ctx, c.client, c.baseURL+"/feedback", f, &res); err != nil {
		return fmt.Errorf("submitting feedback: %w", err)
	}

	if !res.Success {
		msg := res.Message
		if msg == "" {
			msg = "feedback rejected"
		}
		return fmt.Errorf("submitting feedback: %s", msg)
	}

	return nil
}
