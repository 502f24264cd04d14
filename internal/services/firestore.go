package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"pr-reaction-bridge/internal/log"
	"pr-reaction-bridge/internal/models"
)

// FirestoreService provides tracking record storage in Firestore.
// Each record is a document in the tracking_records collection keyed by its ID.
type FirestoreService struct {
	client *firestore.Client
	cfg    storeConfig
}

// NewFirestoreService creates a new FirestoreService with the provided client.
func NewFirestoreService(client *firestore.Client, opts ...StoreOption) *FirestoreService {
	return &FirestoreService{client: client, cfg: newStoreConfig(opts)}
}

func (fs *FirestoreService) collection() *firestore.CollectionRef {
	return fs.client.Collection(trackingTable)
}

// ListAll returns every tracking record ordered by insertion time.
func (fs *FirestoreService) ListAll(ctx context.Context) ([]*models.TrackingRecord, error) {
	records, err := fs.collect(ctx, fs.collection().OrderBy("inserted_at", firestore.Asc).Documents(ctx))
	if err != nil {
		log.Error(ctx, "Failed to list tracking records",
			"error", err,
			"operation", "list_tracking_records",
		)
		return nil, fmt.Errorf("failed to list tracking records: %w", err)
	}
	return records, nil
}

// FindByURL returns the tracking records for a pull request URL ordered by insertion time.
func (fs *FirestoreService) FindByURL(ctx context.Context, url string) ([]*models.TrackingRecord, error) {
	records, err := fs.collect(ctx, fs.collection().Where("url", "==", url).Documents(ctx))
	if err != nil {
		log.Error(ctx, "Failed to query tracking records by URL",
			"error", err,
			"url", url,
			"operation", "find_tracking_records_by_url",
		)
		return nil, fmt.Errorf("failed to query tracking records for %s: %w", url, err)
	}

	// Sorted here rather than in the query so no composite index is needed.
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].InsertedAt.Before(records[j].InsertedAt)
	})
	return records, nil
}

// InsertAll records every URL for location in one Firestore transaction.
func (fs *FirestoreService) InsertAll(
	ctx context.Context, urls []string, location models.ChatLocation, insertedAt time.Time,
) error {
	return fs.Reconcile(ctx, nil, &Assertion{URLs: urls, Location: location, InsertedAt: insertedAt})
}

// DeleteAll removes the documents of urls posted at location.
func (fs *FirestoreService) DeleteAll(ctx context.Context, urls []string, location models.ChatLocation) error {
	return fs.Reconcile(ctx, &Retraction{URLs: urls, Location: location}, nil)
}

// Reconcile deletes and inserts records inside one Firestore transaction.
func (fs *FirestoreService) Reconcile(ctx context.Context, retract *Retraction, assert *Assertion) error {
	retract, err := retract.normalize()
	if err != nil {
		return err
	}
	assert, err = assert.normalize(fs.cfg)
	if err != nil {
		return err
	}
	if retract == nil && assert == nil {
		return nil
	}

	var removed int
	err = fs.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		removed = 0

		// All reads happen before any write in a Firestore transaction.
		var stale []*firestore.DocumentRef
		if retract != nil {
			query := fs.collection().
				Where("channel", "==", retract.Location.Channel).
				Where("message_ts", "==", retract.Location.Timestamp)
			docs, err := tx.Documents(query).GetAll()
			if err != nil {
				return fmt.Errorf("failed to query records at location: %w", err)
			}
			urls := urlSet(retract.URLs)
			for _, doc := range docs {
				var record models.TrackingRecord
				if err := doc.DataTo(&record); err != nil {
					return fmt.Errorf("failed to unmarshal tracking record %s: %w", doc.Ref.ID, err)
				}
				if matchesRetraction(&record, retract, urls) {
					stale = append(stale, doc.Ref)
				}
			}
		}

		for _, ref := range stale {
			if err := tx.Delete(ref); err != nil {
				return fmt.Errorf("failed to delete tracking record %s: %w", ref.ID, err)
			}
			removed++
		}

		if assert != nil {
			for _, record := range assert.records(fs.cfg.newID) {
				if err := tx.Create(fs.collection().Doc(record.ID), record); err != nil {
					return fmt.Errorf("failed to create tracking record %s: %w", record.ID, err)
				}
			}
		}
		return nil
	})
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			err = fmt.Errorf("%w: %w", ErrDuplicateID, err)
		}
		log.Error(ctx, "Failed to reconcile tracking records",
			"error", err,
			"operation", "reconcile_tracking_records",
		)
		return fmt.Errorf("failed to reconcile tracking records: %w", err)
	}

	log.Debug(ctx, "Reconciled tracking records",
		"removed", removed,
		"inserted", assertedCount(assert),
	)
	return nil
}

func (fs *FirestoreService) collect(ctx context.Context, iter *firestore.DocumentIterator) ([]*models.TrackingRecord, error) {
	defer iter.Stop()

	records := make([]*models.TrackingRecord, 0)
	for {
		doc, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}

		var record models.TrackingRecord
		if err := doc.DataTo(&record); err != nil {
			log.Warn(ctx, "Skipping unreadable tracking record",
				"error", err,
				"doc_id", doc.Ref.ID,
			)
			continue
		}
		records = append(records, &record)
	}
	return records, nil
}
