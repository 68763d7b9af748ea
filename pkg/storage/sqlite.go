package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/emonview/emonview/pkg/log"
	"github.com/emonview/emonview/pkg/types"
	"github.com/google/uuid"
	"github.com/levenlabs/go-lflag"
	_ "modernc.org/sqlite"
)

// SQLiteProvider implements the Database interface on a local sqlite file.
// Change notifications are delivered in-process after each committed update.
type SQLiteProvider struct {
	path string
	conn *sql.DB

	mu       sync.Mutex
	watchers map[string]map[chan types.AppConfig]struct{}
}

var _ Database = (*SQLiteProvider)(nil)

// configuredSQLite sets up the SQLite provider.
// It registers flags for configuration.
func configuredSQLite() *SQLiteProvider {
	path := lflag.String("sqlite-path", "emonview.db", "Path to the sqlite database file")

	s := NewSQLite("")
	lflag.Do(func() {
		s.path = *path
	})
	return s
}

// NewSQLite returns a provider for the database file at path. Init must be
// called before use.
func NewSQLite(path string) *SQLiteProvider {
	return &SQLiteProvider{
		path:     path,
		watchers: make(map[string]map[chan types.AppConfig]struct{}),
	}
}

// Validate checks if the provider is properly configured.
func (s *SQLiteProvider) Validate() error {
	if s.path == "" {
		return errors.New("sqlite-path is required")
	}
	return nil
}

// Init opens the database and creates the schema.
func (s *SQLiteProvider) Init(ctx context.Context) error {
	conn, err := sql.Open("sqlite", s.path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	// sqlite only allows one writer at a time
	conn.SetMaxOpenConns(1)

	schema := `
	CREATE TABLE IF NOT EXISTS app_configs (
		id TEXT PRIMARY KEY,
		version INTEGER NOT NULL DEFAULT 0,
		json TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	`
	if _, err := conn.ExecContext(ctx, schema); err != nil {
		conn.Close()
		return fmt.Errorf("initializing schema: %w", err)
	}
	s.conn = conn
	return nil
}

// Close closes the database connection.
func (s *SQLiteProvider) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *SQLiteProvider) scanApp(ctx context.Context, row rowScanner) (types.AppConfig, error) {
	var id, jsonStr string
	var version int
	if err := row.Scan(&id, &version, &jsonStr); err != nil {
		return types.AppConfig{}, err
	}
	return decodeAppConfig(ctx, id, jsonStr, version)
}

// GetAppConfig retrieves the app config with the given id.
func (s *SQLiteProvider) GetAppConfig(ctx context.Context, id string) (types.AppConfig, error) {
	if id == "" {
		return types.AppConfig{}, errors.New("app id cannot be empty")
	}
	row := s.conn.QueryRowContext(ctx, `SELECT id, version, json FROM app_configs WHERE id = ?`, id)
	cfg, err := s.scanApp(ctx, row)
	if errors.Is(err, sql.ErrNoRows) {
		return types.AppConfig{}, ErrAppNotFound
	}
	if err != nil {
		return types.AppConfig{}, fmt.Errorf("querying app config: %w", err)
	}
	return cfg, nil
}

// ListAppConfigs returns all app configs ordered by id.
func (s *SQLiteProvider) ListAppConfigs(ctx context.Context) ([]types.AppConfig, error) {
	rows, err := s.conn.QueryContext(ctx, `SELECT id, version, json FROM app_configs ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying app configs: %w", err)
	}
	defer rows.Close()

	var apps []types.AppConfig
	for rows.Next() {
		cfg, err := s.scanApp(ctx, rows)
		if err != nil {
			return nil, fmt.Errorf("scanning app config: %w", err)
		}
		apps = append(apps, cfg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating app configs: %w", err)
	}
	return apps, nil
}

// CreateAppConfig inserts a new app config. It fails if the id already exists.
func (s *SQLiteProvider) CreateAppConfig(ctx context.Context, cfg types.AppConfig) (types.AppConfig, error) {
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	jsonStr, err := encodeAppConfig(cfg)
	if err != nil {
		return types.AppConfig{}, err
	}
	_, err = s.conn.ExecContext(
		ctx,
		`INSERT INTO app_configs (id, version, json, updated_at) VALUES (?, ?, ?, ?)`,
		cfg.ID, types.CurrentAppConfigVersion, jsonStr, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return types.AppConfig{}, fmt.Errorf("inserting app config: %w", err)
	}
	return cfg, nil
}

// UpdateAppConfig applies the partial update inside a transaction and notifies
// watchers once it is committed.
func (s *SQLiteProvider) UpdateAppConfig(ctx context.Context, id string, update types.AppConfigUpdate) error {
	if id == "" {
		return errors.New("app id cannot be empty")
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `SELECT id, version, json FROM app_configs WHERE id = ?`, id)
	cfg, err := s.scanApp(ctx, row)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrAppNotFound
	}
	if err != nil {
		return fmt.Errorf("querying app config: %w", err)
	}

	cfg = cfg.Apply(update)
	jsonStr, err := encodeAppConfig(cfg)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(
		ctx,
		`UPDATE app_configs SET version = ?, json = ?, updated_at = ? WHERE id = ?`,
		types.CurrentAppConfigVersion, jsonStr, time.Now().UTC().Format(time.RFC3339), id,
	)
	if err != nil {
		return fmt.Errorf("updating app config: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing app config: %w", err)
	}

	s.notify(ctx, cfg)
	return nil
}

// WatchAppConfig sends the current app config and then every committed update.
// Only the most recent record is kept for a slow reader.
func (s *SQLiteProvider) WatchAppConfig(ctx context.Context, id string) (<-chan types.AppConfig, error) {
	cfg, err := s.GetAppConfig(ctx, id)
	if err != nil {
		return nil, err
	}

	ch := make(chan types.AppConfig, 1)
	ch <- cfg

	s.mu.Lock()
	if s.watchers[id] == nil {
		s.watchers[id] = make(map[chan types.AppConfig]struct{})
	}
	s.watchers[id][ch] = struct{}{}
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.watchers[id], ch)
		if len(s.watchers[id]) == 0 {
			delete(s.watchers, id)
		}
		close(ch)
		s.mu.Unlock()
	}()
	return ch, nil
}

func (s *SQLiteProvider) notify(ctx context.Context, cfg types.AppConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for ch := range s.watchers[cfg.ID] {
		select {
		case ch <- cfg:
			continue
		default:
		}
		// replace the unread record with the newer one
		select {
		case <-ch:
		default:
		}
		ch <- cfg
	}
	log.Ctx(ctx).DebugContext(ctx, "notified app watchers", slog.String("appID", cfg.ID), slog.Int("watchers", len(s.watchers[cfg.ID])))
}
