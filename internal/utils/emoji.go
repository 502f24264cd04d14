package utils

import (
	"strings"

	"pr-reaction-bridge/internal/config"
	"pr-reaction-bridge/internal/models"
)

// GetEmojiForCodeEvent returns the configured reaction for a pull request event.
// Returns an empty string for unknown kinds.
func GetEmojiForCodeEvent(kind models.CodeEventKind, emojiConfig config.EmojiConfig) string {
	var emoji string
	switch kind {
	case models.CodeEventMerged:
		emoji = emojiConfig.Merged
	case models.CodeEventClosed:
		emoji = emojiConfig.Closed
	case models.CodeEventCommented:
		emoji = emojiConfig.Commented
	case models.CodeEventChangesRequested:
		emoji = emojiConfig.ChangesRequested
	case models.CodeEventApproved:
		emoji = emojiConfig.Approved
	}
	return NormalizeEmojiName(emoji)
}

// NormalizeEmojiName strips surrounding colons so ":tada:" and "tada" both work with reactions.add.
func NormalizeEmojiName(emoji string) string {
	return strings.Trim(strings.TrimSpace(emoji), ":")
}
