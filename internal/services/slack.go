// Package services provides tracking storage, the Slack reaction client and reaction dispatch.
package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/slack-go/slack"

	"pr-reaction-bridge/internal/log"
)

const errAlreadyReacted = "already_reacted"

// Reactor adds emoji reactions to Slack messages.
type Reactor interface {
	AddReaction(ctx context.Context, channel, timestamp, emoji string) error
}

// NewSlackClient builds a Slack Web API client. An empty apiURL keeps the public endpoint.
func NewSlackClient(token, apiURL string, httpClient *http.Client) *slack.Client {
	opts := []slack.Option{}
	if apiURL != "" {
		if !strings.HasSuffix(apiURL, "/") {
			apiURL += "/"
		}
		opts = append(opts, slack.OptionAPIURL(apiURL))
	}
	if httpClient != nil {
		opts = append(opts, slack.OptionHTTPClient(httpClient))
	}
	return slack.New(token, opts...)
}

// SlackService adds reactions through the Slack Web API.
type SlackService struct {
	client *slack.Client
}

// NewSlackService wraps an authenticated Slack client.
func NewSlackService(client *slack.Client) *SlackService {
	return &SlackService{client: client}
}

// AddReaction reacts to the message at channel/timestamp. A reaction that is already present
// counts as success.
func (s *SlackService) AddReaction(ctx context.Context, channel, timestamp, emoji string) error {
	msgRef := slack.NewRefToMessage(channel, timestamp)
	err := s.client.AddReactionContext(ctx, emoji, msgRef)
	if err == nil {
		return nil
	}

	if isAlreadyReacted(err) {
		log.Info(ctx, "Reaction already exists on Slack message",
			"channel", channel,
			"message_timestamp", timestamp,
			"emoji", emoji,
		)
		return nil
	}

	log.Error(ctx, "Failed to add reaction to Slack message",
		"error", err,
		"channel", channel,
		"message_timestamp", timestamp,
		"emoji", emoji,
		"operation", "add_reaction",
	)
	return fmt.Errorf("failed to add reaction %s to message %s in channel %s: %w", emoji, timestamp, channel, err)
}

func isAlreadyReacted(err error) bool {
	var slackErr slack.SlackErrorResponse
	if errors.As(err, &slackErr) && slackErr.Err == errAlreadyReacted {
		return true
	}
	var slackErrPtr *slack.SlackErrorResponse
	if errors.As(err, &slackErrPtr) && slackErrPtr.Err == errAlreadyReacted {
		return true
	}
	return strings.Contains(err.Error(), errAlreadyReacted)
}
