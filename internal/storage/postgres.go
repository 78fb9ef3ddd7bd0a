package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

//go:embed migrations.sql
var migrations embed.FS

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// PostgresKV stores documents in a single (parent, key) keyed table.
type PostgresKV struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewPostgresKV(ctx context.Context, config DatabaseConfig, logger *zap.Logger) (*PostgresKV, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, config.DBName, config.SSLMode)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	// Test the connection
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("error connecting to the database: %w", err)
	}

	storage := &PostgresKV{db: db, logger: logger.Named("postgres_kv")}

	if err := storage.initializeSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("error initializing database schema: %w", err)
	}

	return storage, nil
}

func (s *PostgresKV) initializeSchema(ctx context.Context) error {
	migrationSQL, err := migrations.ReadFile("migrations.sql")
	if err != nil {
		return fmt.Errorf("error reading migrations file: %w", err)
	}

	if _, err = s.db.ExecContext(ctx, string(migrationSQL)); err != nil {
		return fmt.Errorf("error executing migrations: %w", err)
	}

	s.logger.Info("Database schema ready")
	return nil
}

func (s *PostgresKV) Get(ctx context.Context, parent, key string) ([]byte, error) {
	query := `
		SELECT value
		FROM kv_documents
		WHERE parent = $1 AND key = $2`

	var value []byte
	err := s.db.QueryRowContext(ctx, query, parent, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error reading document: %w", err)
	}
	return value, nil
}

func (s *PostgresKV) Set(ctx context.Context, parent, key string, value []byte) error {
	query := `
		INSERT INTO kv_documents (parent, key, value, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (parent, key)
		DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`

	if _, err := s.db.ExecContext(ctx, query, parent, key, value, time.Now()); err != nil {
		return fmt.Errorf("error writing document: %w", err)
	}
	return nil
}

func (s *PostgresKV) Delete(ctx context.Context, parent, key string) error {
	query := `
		DELETE FROM kv_documents
		WHERE parent = $1 AND key = $2`

	result, err := s.db.ExecContext(ctx, query, parent, key)
	if err != nil {
		return fmt.Errorf("error deleting document: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("error getting rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

func (s *PostgresKV) List(ctx context.Context, parent string) (map[string][]byte, error) {
	query := `
		SELECT key, value
		FROM kv_documents
		WHERE parent = $1
		ORDER BY updated_at DESC`

	rows, err := s.db.QueryContext(ctx, query, parent)
	if err != nil {
		return nil, fmt.Errorf("error querying documents: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]byte)
	for rows.Next() {
		var (
			key   string
			value []byte
		)
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("error scanning document: %w", err)
		}
		out[key] = value
	}

	return out, rows.Err()
}

func (s *PostgresKV) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresKV) Close() error {
	return s.db.Close()
}
