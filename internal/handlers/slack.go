package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/slack-go/slack/slackevents"

	"pr-reaction-bridge/internal/clock"
	"pr-reaction-bridge/internal/events"
	"pr-reaction-bridge/internal/log"
	"pr-reaction-bridge/internal/middleware"
	"pr-reaction-bridge/internal/models"
	"pr-reaction-bridge/internal/services"
	"pr-reaction-bridge/internal/utils"
)

// slackEnvelope is the minimal outer shape needed to route a Slack request before full parsing.
type slackEnvelope struct {
	Type  string `json:"type"`
	Event struct {
		Type string `json:"type"`
	} `json:"event"`
}

// SlackHandler keeps the tracking store in sync with the pull request links posted in Slack.
type SlackHandler struct {
	store           services.TrackingStore
	extractor       *utils.PRURLExtractor
	clock           clock.Clock
	trackDuplicates bool
}

// NewSlackHandler creates a SlackHandler. With trackDuplicates unset, repeated links in one
// message collapse to a single record.
func NewSlackHandler(
	store services.TrackingStore, extractor *utils.PRURLExtractor, clk clock.Clock, trackDuplicates bool,
) *SlackHandler {
	return &SlackHandler{
		store:           store,
		extractor:       extractor,
		clock:           clk,
		trackDuplicates: trackDuplicates,
	}
}

// HandleWebhook handles the Slack Events API endpoint. The signature has already been verified.
func (sh *SlackHandler) HandleWebhook(c *gin.Context) {
	ctx := c.Request.Context()

	body, err := middleware.RawBody(c)
	if err != nil {
		log.Error(ctx, "Failed to read Slack request body", "error", err)
		respondError(c, http.StatusBadRequest, "failed to read request body")
		return
	}

	var envelope slackEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		log.Warn(ctx, "Failed to decode Slack envelope", "error", err)
		respondError(c, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	// slackevents refuses inner event types it has no mapping for, so anything that is not a
	// message is acknowledged before parsing.
	if envelope.Type == slackevents.CallbackEvent && envelope.Event.Type != string(slackevents.Message) {
		log.Debug(ctx, "Ignoring non-message Slack event", "inner_event_type", envelope.Event.Type)
		c.JSON(http.StatusOK, gin.H{"ok": true})
		return
	}

	event, err := slackevents.ParseEvent(json.RawMessage(body), slackevents.OptionNoVerifyToken())
	if err != nil {
		log.Warn(ctx, "Failed to parse Slack event", "error", err, "envelope_type", envelope.Type)
		respondError(c, http.StatusBadRequest, "invalid Slack event payload")
		return
	}

	switch event.Type {
	case slackevents.URLVerification:
		verification, ok := event.Data.(*slackevents.EventsAPIURLVerificationEvent)
		if !ok {
			respondError(c, http.StatusBadRequest, "invalid url_verification payload")
			return
		}
		log.Info(ctx, "Answering Slack URL verification")
		c.JSON(http.StatusOK, gin.H{"challenge": verification.Challenge})

	case slackevents.CallbackEvent:
		message, ok := event.InnerEvent.Data.(*slackevents.MessageEvent)
		if !ok {
			c.JSON(http.StatusOK, gin.H{"ok": true})
			return
		}
		if err := sh.applyChatEvent(ctx, events.NormalizeSlackMessage(message)); err != nil {
			log.Error(ctx, "Failed to update tracking records for Slack message",
				"error", err,
				"channel", message.Channel,
				"subtype", message.SubType,
			)
			respondError(c, http.StatusInternalServerError, "failed to update tracking records")
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true})

	default:
		log.Debug(ctx, "Ignoring unsupported Slack envelope", "envelope_type", event.Type)
		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}

// applyChatEvent turns a chat event into the matching store mutation.
func (sh *SlackHandler) applyChatEvent(ctx context.Context, event models.ChatEvent) error {
	switch ev := event.(type) {
	case models.MessageCreated:
		urls := sh.extractURLs(ev.Text)
		if len(urls) == 0 {
			return nil
		}
		log.Info(ctx, "Tracking pull request links in new Slack message",
			"channel", ev.Location.Channel,
			"message_timestamp", ev.Location.Timestamp,
			"url_count", len(urls),
		)
		return sh.store.InsertAll(ctx, urls, ev.Location, sh.clock.Now())

	case models.MessageChanged:
		before := sh.extractURLs(ev.PreviousText)
		after := sh.extractURLs(ev.Text)
		if len(before) == 0 && len(after) == 0 {
			return nil
		}
		log.Info(ctx, "Reconciling pull request links in edited Slack message",
			"channel", ev.Location.Channel,
			"message_timestamp", ev.Location.Timestamp,
			"previous_url_count", len(before),
			"url_count", len(after),
		)
		return sh.store.Reconcile(ctx,
			&services.Retraction{URLs: before, Location: ev.Location},
			&services.Assertion{URLs: after, Location: ev.Location, InsertedAt: sh.clock.Now()},
		)

	case models.MessageDeleted:
		urls := sh.extractURLs(ev.PreviousText)
		if len(urls) == 0 {
			return nil
		}
		log.Info(ctx, "Removing pull request links of deleted Slack message",
			"channel", ev.Location.Channel,
			"message_timestamp", ev.Location.Timestamp,
			"url_count", len(urls),
		)
		return sh.store.DeleteAll(ctx, urls, ev.Location)

	default:
		return fmt.Errorf("unsupported chat event %T", event)
	}
}

func (sh *SlackHandler) extractURLs(text string) []string {
	urls := sh.extractor.Extract(text)
	if !sh.trackDuplicates {
		urls = utils.UniqueURLs(urls)
	}
	return urls
}

func respondError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, models.APIError{Message: message, StatusCode: status})
}
