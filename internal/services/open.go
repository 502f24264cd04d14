package services

import (
	"context"
	"fmt"
	"io"

	"cloud.google.com/go/firestore"

	"pr-reaction-bridge/internal/config"
	"pr-reaction-bridge/internal/log"
	"pr-reaction-bridge/internal/utils"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// OpenTrackingStore builds the store selected by cfg.StoreBackend. The returned closer releases
// the underlying client or connection pool. SQL schemas are not migrated here.
func OpenTrackingStore(ctx context.Context, cfg *config.Config) (TrackingStore, io.Closer, error) {
	opts := []StoreOption{WithURLExtractor(utils.NewPRURLExtractor(cfg.GitHubHost))}
	switch cfg.StoreBackend {
	case config.StoreBackendFirestore:
		log.Info(ctx, "Connecting to Firestore",
			"project_id", cfg.FirestoreProjectID,
			"database_id", cfg.FirestoreDatabaseID,
		)
		client, err := firestore.NewClientWithDatabase(ctx, cfg.FirestoreProjectID, cfg.FirestoreDatabaseID)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create Firestore client: %w", err)
		}
		return NewFirestoreService(client, opts...), client, nil

	case config.StoreBackendSQL:
		log.Info(ctx, "Connecting to database", "driver", cfg.DatabaseDriver)
		db, err := OpenSQL(ctx, SQLConfig{
			Driver:       cfg.DatabaseDriver,
			DSN:          cfg.DatabaseURL,
			MaxOpenConns: cfg.DatabaseMaxOpenConns,
		})
		if err != nil {
			return nil, nil, err
		}
		return NewSQLService(db, opts...), db, nil

	case config.StoreBackendMemory:
		return NewMemoryTrackingStore(opts...), nopCloser{}, nil

	default:
		return nil, nil, fmt.Errorf("unsupported store backend %q", cfg.StoreBackend)
	}
}
