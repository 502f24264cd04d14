package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sourcegraph/conc"

	"pr-reaction-bridge/internal/config"
	"pr-reaction-bridge/internal/log"
	"pr-reaction-bridge/internal/models"
	"pr-reaction-bridge/internal/utils"
)

// ErrNoEmoji is reported when an event kind has no configured reaction.
var ErrNoEmoji = errors.New("no emoji configured for event")

// ReactionResult is the outcome of one reaction call.
type ReactionResult struct {
	Record *models.TrackingRecord
	Emoji  string
	Err    error
}

// NotificationService reacts to every Slack message that mentioned a pull request.
type NotificationService struct {
	store   TrackingStore
	reactor Reactor
	emoji   config.EmojiConfig
	timeout time.Duration
}

// NewNotificationService creates a dispatcher. timeout bounds each individual reaction call.
func NewNotificationService(
	store TrackingStore, reactor Reactor, emoji config.EmojiConfig, timeout time.Duration,
) *NotificationService {
	return &NotificationService{
		store:   store,
		reactor: reactor,
		emoji:   emoji,
		timeout: timeout,
	}
}

// Dispatch looks up the records for the event's pull request and adds the event's reaction to
// each one concurrently. Only a failed lookup is returned as an error; reaction failures are
// logged and reported per record in the results.
func (n *NotificationService) Dispatch(ctx context.Context, event *models.CodeEvent) ([]ReactionResult, error) {
	emoji := utils.GetEmojiForCodeEvent(event.Kind, n.emoji)
	if emoji == "" {
		log.Warn(ctx, "No emoji configured for pull request event",
			"event_kind", string(event.Kind),
			"pr_url", event.URL,
		)
		return nil, fmt.Errorf("%w: %s", ErrNoEmoji, event.Kind)
	}

	records, err := n.store.FindByURL(ctx, event.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to look up tracking records for %s: %w", event.URL, err)
	}

	if len(records) == 0 {
		log.Debug(ctx, "No tracked Slack messages for pull request",
			"pr_url", event.URL,
			"event_kind", string(event.Kind),
		)
		return []ReactionResult{}, nil
	}

	results := make([]ReactionResult, len(records))
	var wg conc.WaitGroup
	for i, record := range records {
		wg.Go(func() {
			results[i] = n.react(ctx, record, emoji, event)
		})
	}
	wg.Wait()

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	log.Info(ctx, "Dispatched pull request reactions",
		"pr_url", event.URL,
		"event_kind", string(event.Kind),
		"emoji", emoji,
		"total", len(results),
		"failed", failed,
	)

	return results, nil
}

func (n *NotificationService) react(
	ctx context.Context, record *models.TrackingRecord, emoji string, event *models.CodeEvent,
) ReactionResult {
	callCtx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	err := n.reactor.AddReaction(callCtx, record.Channel, record.Timestamp, emoji)
	if err != nil {
		log.Error(ctx, "Failed to react to tracked Slack message",
			"error", err,
			"record_id", record.ID,
			"channel", record.Channel,
			"message_timestamp", record.Timestamp,
			"emoji", emoji,
			"pr_url", event.URL,
			"operation", "dispatch_reaction",
		)
	} else {
		log.Info(ctx, "Reacted to tracked Slack message",
			"record_id", record.ID,
			"channel", record.Channel,
			"message_timestamp", record.Timestamp,
			"emoji", emoji,
			"actor", event.Actor,
		)
	}

	return ReactionResult{Record: record, Emoji: emoji, Err: err}
}
