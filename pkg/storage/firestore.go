package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"cloud.google.com/go/firestore"
	"github.com/emonview/emonview/pkg/log"
	"github.com/emonview/emonview/pkg/types"
	"github.com/google/uuid"
	"github.com/levenlabs/go-lflag"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const firestoreAppsCollection = "apps"

// FirestoreProvider implements the Database interface using Google Cloud Firestore.
// Each app config is a document in the "apps" collection holding a JSON blob.
type FirestoreProvider struct {
	client    *firestore.Client
	projectID string
	database  string
}

var _ Database = (*FirestoreProvider)(nil)

// configuredFirestore sets up the Firestore provider.
// It registers flags for configuration.
func configuredFirestore() *FirestoreProvider {
	projectID := lflag.String("firestore-project-id", "", "Google Cloud Project ID for Firestore")
	database := lflag.String("firestore-database", "", "Google Cloud Firestore Database")
	emulator := lflag.String("firestore-emulator", "", "Use Firestore emulator")

	f := &FirestoreProvider{}

	lflag.Do(func() {
		f.projectID = *projectID
		f.database = *database

		// set this because that's how firestore client expects it
		if *emulator != "" {
			os.Setenv("FIRESTORE_EMULATOR_HOST", *emulator)
		}
	})

	return f
}

// Validate checks if the provider is properly configured.
func (f *FirestoreProvider) Validate() error {
	// Project ID can be empty since it's detected from the environment.
	return nil
}

// Init initializes the Firestore client.
// This must be called before using the provider methods.
func (f *FirestoreProvider) Init(ctx context.Context) error {
	projectID := f.projectID
	if projectID == "" {
		projectID = firestore.DetectProjectID
	}
	database := f.database
	if database == "" {
		database = firestore.DefaultDatabaseID
	}
	client, err := firestore.NewClientWithDatabase(ctx, projectID, database)
	if err != nil {
		return fmt.Errorf("failed to create firestore client (project=%s, database=%s): %w", projectID, database, err)
	}
	f.client = client
	return nil
}

// Close closes the Firestore client connection.
func (f *FirestoreProvider) Close() error {
	if f.client != nil {
		return f.client.Close()
	}
	return nil
}

func (f *FirestoreProvider) appDoc(id string) (*firestore.DocumentRef, error) {
	if id == "" {
		return nil, errors.New("app id cannot be empty")
	}
	return f.client.Collection(firestoreAppsCollection).Doc(id), nil
}

func decodeAppSnapshot(ctx context.Context, doc *firestore.DocumentSnapshot) (types.AppConfig, error) {
	// Read version if available (default 0)
	var version int
	if v, err := doc.DataAt("version"); err == nil {
		if vInt, ok := v.(int64); ok {
			version = int(vInt)
		}
	}

	val, err := doc.DataAt("json")
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "app doc missing json", slog.String("appID", doc.Ref.ID))
		return types.AppConfig{}, fmt.Errorf("app document %s missing 'json' field: %w", doc.Ref.ID, err)
	}
	jsonStr, ok := val.(string)
	if !ok {
		log.Ctx(ctx).WarnContext(ctx, "app doc json not string", slog.String("appID", doc.Ref.ID))
		return types.AppConfig{}, fmt.Errorf("app document %s 'json' field is not a string", doc.Ref.ID)
	}
	return decodeAppConfig(ctx, doc.Ref.ID, jsonStr, version)
}

// GetAppConfig retrieves the app config from the "apps/<id>" document.
func (f *FirestoreProvider) GetAppConfig(ctx context.Context, id string) (types.AppConfig, error) {
	ref, err := f.appDoc(id)
	if err != nil {
		return types.AppConfig{}, err
	}
	doc, err := ref.Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return types.AppConfig{}, ErrAppNotFound
		}
		return types.AppConfig{}, fmt.Errorf("failed to fetch app doc: %w", err)
	}
	return decodeAppSnapshot(ctx, doc)
}

// ListAppConfigs returns every document in the "apps" collection.
func (f *FirestoreProvider) ListAppConfigs(ctx context.Context) ([]types.AppConfig, error) {
	iter := f.client.Collection(firestoreAppsCollection).
		OrderBy(firestore.DocumentID, firestore.Asc).
		Documents(ctx)
	defer iter.Stop()

	var apps []types.AppConfig
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error iterating apps: %w", err)
		}
		cfg, err := decodeAppSnapshot(ctx, doc)
		if err != nil {
			return nil, err
		}
		apps = append(apps, cfg)
	}
	return apps, nil
}

// CreateAppConfig creates a new "apps/<id>" document. It fails if the document
// already exists.
func (f *FirestoreProvider) CreateAppConfig(ctx context.Context, cfg types.AppConfig) (types.AppConfig, error) {
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	ref, err := f.appDoc(cfg.ID)
	if err != nil {
		return types.AppConfig{}, err
	}
	jsonStr, err := encodeAppConfig(cfg)
	if err != nil {
		return types.AppConfig{}, err
	}
	_, err = ref.Create(ctx, map[string]interface{}{
		"json":    jsonStr,
		"version": types.CurrentAppConfigVersion,
	})
	if err != nil {
		return types.AppConfig{}, fmt.Errorf("failed to create app: %w", err)
	}
	return cfg, nil
}

// UpdateAppConfig reads, modifies and writes the app document inside a
// transaction so concurrent partial updates don't clobber each other.
func (f *FirestoreProvider) UpdateAppConfig(ctx context.Context, id string, update types.AppConfigUpdate) error {
	ref, err := f.appDoc(id)
	if err != nil {
		return err
	}
	err = f.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return ErrAppNotFound
			}
			return err
		}
		cfg, err := decodeAppSnapshot(ctx, doc)
		if err != nil {
			return err
		}
		jsonStr, err := encodeAppConfig(cfg.Apply(update))
		if err != nil {
			return err
		}
		return tx.Set(ref, map[string]interface{}{
			"json":    jsonStr,
			"version": types.CurrentAppConfigVersion,
		})
	})
	if err != nil {
		if errors.Is(err, ErrAppNotFound) {
			return err
		}
		return fmt.Errorf("failed to update app: %w", err)
	}
	return nil
}

// WatchAppConfig streams the app document using firestore snapshot listeners.
func (f *FirestoreProvider) WatchAppConfig(ctx context.Context, id string) (<-chan types.AppConfig, error) {
	ref, err := f.appDoc(id)
	if err != nil {
		return nil, err
	}

	iter := ref.Snapshots(ctx)
	ch := make(chan types.AppConfig, 1)
	go func() {
		defer close(ch)
		defer iter.Stop()
		for {
			snap, err := iter.Next()
			if err != nil {
				if err != iterator.Done && ctx.Err() == nil {
					log.Ctx(ctx).ErrorContext(ctx, "app snapshot listener failed", slog.String("appID", id), slog.Any("error", err))
				}
				return
			}
			if !snap.Exists() {
				log.Ctx(ctx).WarnContext(ctx, "watched app was deleted", slog.String("appID", id))
				continue
			}
			cfg, err := decodeAppSnapshot(ctx, snap)
			if err != nil {
				continue
			}
			select {
			case ch <- cfg:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

func encodeAppConfig(cfg types.AppConfig) (string, error) {
	b, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("failed to marshal app config: %w", err)
	}
	return string(b), nil
}

func decodeAppConfig(ctx context.Context, id, jsonStr string, version int) (types.AppConfig, error) {
	var cfg types.AppConfig
	if err := json.Unmarshal([]byte(jsonStr), &cfg); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to unmarshal app config", slog.String("appID", id), slog.Any("error", err))
		return types.AppConfig{}, fmt.Errorf("failed to unmarshal app config (id=%s): %w", id, err)
	}
	cfg, _, err := types.MigrateAppConfig(cfg, version)
	if err != nil {
		return types.AppConfig{}, err
	}
	// the document id is authoritative
	cfg.ID = id
	return cfg, nil
}
