package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/go-github/v73/github"

	"pr-reaction-bridge/internal/events"
	"pr-reaction-bridge/internal/log"
	"pr-reaction-bridge/internal/middleware"
	"pr-reaction-bridge/internal/models"
	"pr-reaction-bridge/internal/services"
)

// Dispatcher reacts to the Slack messages tracked for a pull request event.
type Dispatcher interface {
	Dispatch(ctx context.Context, event *models.CodeEvent) ([]services.ReactionResult, error)
}

// GitHubHandler turns GitHub webhooks into pull request reactions.
type GitHubHandler struct {
	dispatcher Dispatcher
}

// NewGitHubHandler creates a handler that hands parsed events to dispatcher.
func NewGitHubHandler(dispatcher Dispatcher) *GitHubHandler {
	return &GitHubHandler{dispatcher: dispatcher}
}

// HandleWebhook handles GitHub webhook deliveries. The signature has already been verified.
// Every authenticated, well-formed delivery gets an empty 200, whatever happens to the reactions.
func (h *GitHubHandler) HandleWebhook(c *gin.Context) {
	startTime := time.Now()

	eventType := github.WebHookType(c.Request)
	deliveryID := github.DeliveryID(c.Request)

	// Add request metadata to context for all log calls
	ctx := log.WithFields(c.Request.Context(), log.LogFields{
		"github_event":    eventType,
		"github_delivery": deliveryID,
	})
	c.Request = c.Request.WithContext(ctx)

	if eventType == "" {
		log.Warn(ctx, "Missing GitHub event type header")
		respondError(c, http.StatusBadRequest, "missing X-GitHub-Event header")
		return
	}

	body, err := middleware.RawBody(c)
	if err != nil {
		log.Error(ctx, "Failed to read GitHub request body", "error", err)
		respondError(c, http.StatusBadRequest, "failed to read request body")
		return
	}
	if !json.Valid(body) {
		log.Warn(ctx, "GitHub payload is not valid JSON")
		respondError(c, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	if !events.IsInterestingGitHubEvent(eventType) {
		log.Debug(ctx, "Ignoring uninteresting GitHub event")
		c.Status(http.StatusOK)
		return
	}

	payload, err := events.ParseGitHubPayload(body)
	if err != nil {
		log.Warn(ctx, "Failed to parse GitHub payload", "error", err)
		respondError(c, http.StatusBadRequest, "invalid payload")
		return
	}

	event := events.NormalizeGitHubEvent(eventType, payload)
	if event == nil {
		log.Debug(ctx, "GitHub event does not produce a reaction", "action", payload.GetAction())
		c.Status(http.StatusOK)
		return
	}

	results, err := h.dispatcher.Dispatch(ctx, event)
	switch {
	case errors.Is(err, services.ErrNoEmoji):
		// Nothing to react with; already logged by the dispatcher.
	case err != nil:
		log.Error(ctx, "Failed to dispatch pull request reactions",
			"error", err,
			"pr_url", event.URL,
			"event_kind", string(event.Kind),
		)
		respondError(c, http.StatusInternalServerError, "failed to look up tracked messages")
		return
	}

	log.Info(ctx, "GitHub webhook processed",
		"pr_url", event.URL,
		"event_kind", string(event.Kind),
		"reactions", len(results),
		"processing_time_ms", time.Since(startTime).Milliseconds(),
	)
	c.Status(http.StatusOK)
}
