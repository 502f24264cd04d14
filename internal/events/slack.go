// Package events turns raw Slack and GitHub webhook payloads into normalized domain events.
package events

import (
	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"

	"pr-reaction-bridge/internal/models"
)

// NormalizeSlackMessage maps a Slack message event onto exactly one chat event.
// The subtype decides the variant; any subtype other than an edit or a deletion is a new message.
func NormalizeSlackMessage(ev *slackevents.MessageEvent) models.ChatEvent {
	switch ev.SubType {
	case slack.MsgSubTypeMessageChanged:
		changed := models.MessageChanged{
			Location:       models.ChatLocation{Channel: ev.Channel},
			EventTimestamp: ev.EventTimeStamp,
		}
		if ev.Message != nil {
			changed.Text = ev.Message.Text
			changed.Location.Timestamp = ev.Message.TimeStamp
		}
		if ev.PreviousMessage != nil {
			changed.PreviousText = ev.PreviousMessage.Text
			if changed.Location.Timestamp == "" {
				changed.Location.Timestamp = ev.PreviousMessage.TimeStamp
			}
		}
		return changed

	case slack.MsgSubTypeMessageDeleted:
		deleted := models.MessageDeleted{
			Location:       models.ChatLocation{Channel: ev.Channel, Timestamp: ev.TimeStamp},
			EventTimestamp: ev.EventTimeStamp,
		}
		if ev.PreviousMessage != nil {
			deleted.PreviousText = ev.PreviousMessage.Text
			if ev.PreviousMessage.TimeStamp != "" {
				deleted.Location.Timestamp = ev.PreviousMessage.TimeStamp
			}
		}
		return deleted

	default:
		return models.MessageCreated{
			Location:       models.ChatLocation{Channel: ev.Channel, Timestamp: ev.TimeStamp},
			Text:           ev.Text,
			EventTimestamp: ev.EventTimeStamp,
		}
	}
}
