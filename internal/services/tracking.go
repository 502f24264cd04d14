package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"pr-reaction-bridge/internal/models"
	"pr-reaction-bridge/internal/utils"
)

var (
	ErrEmptyURL    = models.ErrURLRequired
	ErrInvalidURL  = errors.New("not a pull request URL")
	ErrDuplicateID = errors.New("tracking record ID already exists")
)

// Retraction removes URLs previously recorded for one Slack message.
type Retraction struct {
	URLs     []string
	Location models.ChatLocation
}

// Assertion records URLs mentioned by one Slack message.
type Assertion struct {
	URLs       []string
	Location   models.ChatLocation
	InsertedAt time.Time
}

// TrackingStore persists which Slack messages mention which pull requests.
//
// DeleteAll and the retraction side of Reconcile only remove records whose channel and
// message timestamp both match the given location. Reconcile applies its retraction and
// assertion as one unit: a failure leaves the store as it was before the call.
type TrackingStore interface {
	ListAll(ctx context.Context) ([]*models.TrackingRecord, error)
	FindByURL(ctx context.Context, url string) ([]*models.TrackingRecord, error)
	InsertAll(ctx context.Context, urls []string, location models.ChatLocation, insertedAt time.Time) error
	DeleteAll(ctx context.Context, urls []string, location models.ChatLocation) error
	Reconcile(ctx context.Context, retract *Retraction, assert *Assertion) error
}

// StoreOption configures a TrackingStore implementation.
type StoreOption func(*storeConfig)

type storeConfig struct {
	newID     func() string
	extractor *utils.PRURLExtractor
}

// WithIDGenerator overrides how record IDs are generated. Defaults to random UUIDs.
func WithIDGenerator(fn func() string) StoreOption {
	return func(c *storeConfig) {
		c.newID = fn
	}
}

// WithURLExtractor sets the pattern inserted URLs must match. Defaults to github.com pull requests.
func WithURLExtractor(e *utils.PRURLExtractor) StoreOption {
	return func(c *storeConfig) {
		c.extractor = e
	}
}

func newStoreConfig(opts []StoreOption) storeConfig {
	cfg := storeConfig{
		newID:     uuid.NewString,
		extractor: utils.NewPRURLExtractor(utils.DefaultGitHubHost),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// normalize drops empty sides and validates the remaining ones.
func (r *Retraction) normalize() (*Retraction, error) {
	if r == nil || len(r.URLs) == 0 {
		return nil, nil
	}
	if err := validateMutation(r.URLs, r.Location); err != nil {
		return nil, err
	}
	return r, nil
}

func (a *Assertion) normalize(cfg storeConfig) (*Assertion, error) {
	if a == nil || len(a.URLs) == 0 {
		return nil, nil
	}
	if err := validateMutation(a.URLs, a.Location); err != nil {
		return nil, err
	}
	if err := cfg.checkPattern(a.URLs); err != nil {
		return nil, err
	}
	return a, nil
}

// records builds one fresh record per URL.
func (a *Assertion) records(newID func() string) []*models.TrackingRecord {
	records := make([]*models.TrackingRecord, 0, len(a.URLs))
	for _, url := range a.URLs {
		records = append(records, &models.TrackingRecord{
			ID:         newID(),
			URL:        url,
			Channel:    a.Location.Channel,
			Timestamp:  a.Location.Timestamp,
			InsertedAt: a.InsertedAt.UTC(),
		})
	}
	return records
}

// validateMutation checks every URL as the record it would become.
func validateMutation(urls []string, location models.ChatLocation) error {
	if err := location.Validate(); err != nil {
		return fmt.Errorf("invalid chat location: %w", err)
	}
	for i, url := range urls {
		record := models.TrackingRecord{URL: url, Channel: location.Channel, Timestamp: location.Timestamp}
		if err := record.Validate(); err != nil {
			return fmt.Errorf("position %d: %w", i, err)
		}
	}
	return nil
}

// checkPattern rejects URLs the extractor would never have produced.
func (c storeConfig) checkPattern(urls []string) error {
	if c.extractor == nil {
		return nil
	}
	for _, url := range urls {
		if _, ok := c.extractor.Parse(url); !ok {
			return fmt.Errorf("%w: %q", ErrInvalidURL, url)
		}
	}
	return nil
}

func urlSet(urls []string) map[string]struct{} {
	set := make(map[string]struct{}, len(urls))
	for _, u := range urls {
		set[u] = struct{}{}
	}
	return set
}

// matchesRetraction reports whether record is removed by r.
func matchesRetraction(record *models.TrackingRecord, r *Retraction, urls map[string]struct{}) bool {
	if record.Channel != r.Location.Channel || record.Timestamp != r.Location.Timestamp {
		return false
	}
	_, ok := urls[record.URL]
	return ok
}
