package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/emonview/emonview/pkg/types"
	"github.com/levenlabs/go-lflag"
)

var (
	ErrAppNotFound = errors.New("app not found")
)

// Database defines the interface for persisting app configurations.
type Database interface {
	// GetAppConfig returns the app config with the given id or ErrAppNotFound.
	GetAppConfig(ctx context.Context, id string) (types.AppConfig, error)
	// ListAppConfigs returns every stored app config.
	ListAppConfigs(ctx context.Context) ([]types.AppConfig, error)
	// CreateAppConfig stores a new app config, assigning an id if it has none.
	CreateAppConfig(ctx context.Context, cfg types.AppConfig) (types.AppConfig, error)
	// UpdateAppConfig applies a partial update in a single transaction.
	UpdateAppConfig(ctx context.Context, id string, update types.AppConfigUpdate) error
	// WatchAppConfig sends the current app config and then the full record
	// every time it changes. The channel is closed once ctx is done.
	WatchAppConfig(ctx context.Context, id string) (<-chan types.AppConfig, error)

	// Lifecycle
	Close() error
}

// Configured sets up the Storage provider based on flags.
func Configured() Database {
	provider := lflag.String("storage-provider", "sqlite", "Storage provider to use (available: firestore, sqlite)")

	var p struct{ Database }

	fs := configuredFirestore()
	sq := configuredSQLite()

	lflag.Do(func() {
		switch *provider {
		case "firestore":
			if err := fs.Validate(); err != nil {
				panic(fmt.Sprintf("firestore validation failed: %v", err))
			}
			p.Database = fs
			if err := fs.Init(context.Background()); err != nil {
				panic(fmt.Sprintf("firestore init failed: %v", err))
			}
		case "sqlite":
			if err := sq.Validate(); err != nil {
				panic(fmt.Sprintf("sqlite validation failed: %v", err))
			}
			p.Database = sq
			if err := sq.Init(context.Background()); err != nil {
				panic(fmt.Sprintf("sqlite init failed: %v", err))
			}
		default:
			panic(fmt.Sprintf("unknown storage provider: %s", *provider))
		}
	})

	return &p
}
