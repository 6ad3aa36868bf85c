package api

import (
	"context"

	"github.com/CES-Eats-2026/cesfront/internal/backend"
	"github.com/CES-Eats-2026/cesfront/internal/recommend"
)

// SessionManager defines the session lifecycle operations needed by handlers.
type SessionManager interface {
	Create(ctx context.Context, req recommend.CreateRequest) (*recommend.Session, error)
	Get(id string) (*recommend.Session, error)
	Close(id string) error
}

// FeedbackSubmitter defines the feedback delivery needed by handlers.
type FeedbackSubmitter interface {
	Submit(ctx context.Context, f backend.Feedback) error
}

// Pinger is a dependency the health check can probe.
type Pinger interface {
	Ping(ctx context.Context) error
}
