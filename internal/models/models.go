package models

import (
	"errors"
	"time"
)

var (
	ErrURLRequired            = errors.New("pull request URL is required")
	ErrSlackChannelRequired   = errors.New("slack channel is required")
	ErrSlackMessageTSRequired = errors.New("slack message timestamp is required")
)

// ChatLocation identifies a single Slack message.
type ChatLocation struct {
	Channel   string `json:"channel"`
	Timestamp string `json:"ts"`
}

func (l ChatLocation) Validate() error {
	if l.Channel == "" {
		return ErrSlackChannelRequired
	}
	if l.Timestamp == "" {
		return ErrSlackMessageTSRequired
	}
	return nil
}

// TrackingRecord remembers that a pull request URL was mentioned in a Slack message.
type TrackingRecord struct {
	ID         string    `json:"id"          firestore:"id"          db:"id"`
	URL        string    `json:"url"         firestore:"url"         db:"url"`
	Channel    string    `json:"channel"     firestore:"channel"     db:"channel"`
	Timestamp  string    `json:"ts"          firestore:"message_ts"  db:"message_ts"`
	InsertedAt time.Time `json:"inserted_at" firestore:"inserted_at" db:"inserted_at"`
}

// Location returns the Slack message the record points at.
func (r *TrackingRecord) Location() ChatLocation {
	return ChatLocation{Channel: r.Channel, Timestamp: r.Timestamp}
}

func (r *TrackingRecord) Validate() error {
	if r.URL == "" {
		return ErrURLRequired
	}
	return r.Location().Validate()
}

// APIError is the JSON body of every non-2xx webhook response.
type APIError struct {
	Message    string `json:"message"`
	StatusCode int    `json:"status_code"`
}
