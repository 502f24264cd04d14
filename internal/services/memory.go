package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"pr-reaction-bridge/internal/log"
	"pr-reaction-bridge/internal/models"
)

// MemoryTrackingStore keeps tracking records in process memory.
// Records are lost on restart; it backs tests and single-instance development setups.
type MemoryTrackingStore struct {
	mu      sync.RWMutex
	records []*models.TrackingRecord
	ids     map[string]struct{}
	cfg     storeConfig
}

// NewMemoryTrackingStore creates an empty store.
func NewMemoryTrackingStore(opts ...StoreOption) *MemoryTrackingStore {
	return &MemoryTrackingStore{
		ids: make(map[string]struct{}),
		cfg: newStoreConfig(opts),
	}
}

// ListAll returns every record in insertion order.
func (m *MemoryTrackingStore) ListAll(_ context.Context) ([]*models.TrackingRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*models.TrackingRecord, 0, len(m.records))
	for _, r := range m.records {
		out = append(out, copyRecord(r))
	}
	return out, nil
}

// FindByURL returns the records for url in insertion order.
func (m *MemoryTrackingStore) FindByURL(_ context.Context, url string) ([]*models.TrackingRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*models.TrackingRecord, 0)
	for _, r := range m.records {
		if r.URL == url {
			out = append(out, copyRecord(r))
		}
	}
	return out, nil
}

// InsertAll records every URL for location, all or nothing.
func (m *MemoryTrackingStore) InsertAll(
	ctx context.Context, urls []string, location models.ChatLocation, insertedAt time.Time,
) error {
	return m.Reconcile(ctx, nil, &Assertion{URLs: urls, Location: location, InsertedAt: insertedAt})
}

// DeleteAll removes the records of urls posted at location.
func (m *MemoryTrackingStore) DeleteAll(ctx context.Context, urls []string, location models.ChatLocation) error {
	return m.Reconcile(ctx, &Retraction{URLs: urls, Location: location}, nil)
}

// Reconcile computes the next state off to the side and swaps it in under the write lock,
// so readers see either the old or the new record set.
func (m *MemoryTrackingStore) Reconcile(ctx context.Context, retract *Retraction, assert *Assertion) error {
	retract, err := retract.normalize()
	if err != nil {
		return err
	}
	assert, err = assert.normalize(m.cfg)
	if err != nil {
		return err
	}
	if retract == nil && assert == nil {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	next := m.records
	nextIDs := m.ids
	removed, inserted := 0, 0

	if retract != nil {
		urls := urlSet(retract.URLs)
		next = make([]*models.TrackingRecord, 0, len(m.records))
		nextIDs = make(map[string]struct{}, len(m.ids))
		for _, r := range m.records {
			if matchesRetraction(r, retract, urls) {
				removed++
				continue
			}
			next = append(next, r)
			nextIDs[r.ID] = struct{}{}
		}
	}

	if assert != nil {
		if retract == nil {
			next = append(make([]*models.TrackingRecord, 0, len(m.records)+len(assert.URLs)), m.records...)
			nextIDs = make(map[string]struct{}, len(m.ids)+len(assert.URLs))
			for id := range m.ids {
				nextIDs[id] = struct{}{}
			}
		}
		for _, r := range assert.records(m.cfg.newID) {
			if _, exists := nextIDs[r.ID]; exists {
				log.Error(ctx, "Failed to insert tracking record",
					"error", ErrDuplicateID,
					"record_id", r.ID,
					"url", r.URL,
					"operation", "reconcile_tracking_records",
				)
				return fmt.Errorf("failed to insert tracking record %s: %w", r.ID, ErrDuplicateID)
			}
			nextIDs[r.ID] = struct{}{}
			next = append(next, r)
			inserted++
		}
	}

	m.records = next
	m.ids = nextIDs

	log.Debug(ctx, "Reconciled tracking records in memory",
		"removed", removed,
		"inserted", inserted,
	)
	return nil
}

func copyRecord(r *models.TrackingRecord) *models.TrackingRecord {
	c := *r
	return &c
}
