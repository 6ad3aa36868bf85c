package backend

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"golang.org/x/sync/errgroup"
)

const webhookPreviewLen = 1500

// feedbackSubmitter is the interface satisfied by Client.
type feedbackSubmitter interface {
	SubmitFeedback(ctx context.Context, f Feedback) error
}

// feedbackNotifier is the interface satisfied by WebhookNotifier.
type feedbackNotifier interface {
	Notify(ctx context.Context, f Feedback) error
}

// WebhookNotifier posts a short text copy of feedback to a chat webhook.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

// NewWebhookNotifier returns nil when url is empty so callers can skip it.
func NewWebhookNotifier(url string) *WebhookNotifier {
	if url == "" {
		return nil
	}
	return &WebhookNotifier{url: url, client: newHTTPClient()}
}

type webhookMessage struct {
	Content string `json:"content"`
}

// Notify posts the feedback text. Attached images are mentioned by name only.
func (n *WebhookNotifier) Notify(ctx context.Context, f Feedback) error {
	text := f.Feedback
	if r := []rune(text); len(r) > webhookPreviewLen {
		text = string(r[:webhookPreviewLen]) + "…"
	}
	msg := "New feedback:\n" + text
	if f.ImageName != "" {
		msg += "\n(attachment: " + f.ImageName + ")"
	}

	if err := doPost(ctx, n.client, n.url, webhookMessage{Content: msg}, nil); err != nil {
		return fmt.Errorf("posting feedback webhook: %w", err)
	}
	return nil
}

// FeedbackService forwards feedback to the backend and, when configured, to
// the feedback webhook in parallel.
type FeedbackService struct {
	backend  feedbackSubmitter
	notifier feedbackNotifier
	log      *slog.Logger
}

// NewFeedbackService wires a submitter and an optional notifier.
func NewFeedbackService(backend feedbackSubmitter, notifier *WebhookNotifier, log *slog.Logger) *FeedbackService {
	s := &FeedbackService{backend: backend, log: log}
	if notifier != nil {
		s.notifier = notifier
	}
	return s
}

// NewFeedbackServiceWithNotifier constructs a FeedbackService with an injectable notifier (used in tests).
func NewFeedbackServiceWithNotifier(backend feedbackSubmitter, notifier feedbackNotifier, log *slog.Logger) *FeedbackService {
	return &FeedbackService{backend: backend, notifier: notifier, log: log}
}

// Submit delivers f. The backend result is authoritative; webhook failures
// are logged and dropped.
func (s *FeedbackService) Submit(ctx context.Context, f Feedback) error {
	if f.Feedback == "" {
		return fmt.Errorf("feedback text is required")
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("feedback submit panicked", "recover", r)
				err = fmt.Errorf("feedback submit panicked: %v", r)
			}
		}()
		return s.backend.SubmitFeedback(gCtx, f)
	})

	if s.notifier != nil {
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					s.log.Error("feedback webhook panicked", "recover", r)
				}
			}()
			// Detached from gCtx so a backend failure does not cancel the notification.
			if notifyErr := s.notifier.Notify(ctx, f); notifyErr != nil {
				s.log.Warn("feedback webhook failed", "err", notifyErr)
			}
			return nil
		})
	}

	return g.Wait()
}
