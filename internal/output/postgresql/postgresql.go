package postgresql

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/movementlabsxyz/suzuka/internal/models"
	"github.com/movementlabsxyz/suzuka/internal/output"
)

//go:embed migrations/*.sql
var migrations embed.FS

type PostgresOutputHandler struct {
	db *sql.DB
}

var _ output.OutputHandler = (*PostgresOutputHandler)(nil)

// NewPostgresOutputHandler applies pending migrations and opens a connection pool.
func NewPostgresOutputHandler(ctx context.Context, connString string) (*PostgresOutputHandler, error) {
	if err := Migrate(connString); err != nil {
		return nil, err
	}
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return NewWithDB(db), nil
}

// NewWithDB wraps an already migrated database.
func NewWithDB(db *sql.DB) *PostgresOutputHandler {
	return &PostgresOutputHandler{db: db}
}

// Migrate brings the schema up to date. It uses its own connection because closing the
// migrator closes the database it was given.
func Migrate(connString string) error {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return fmt.Errorf("failed to open database for migrations: %w", err)
	}
	driver, err := migratepgx.WithInstance(db, &migratepgx.Config{})
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to create migration driver: %w", err)
	}
	source, err := iofs.New(migrations, "migrations")
	if err != nil {
		_ = driver.Close()
		return fmt.Errorf("failed to load migrations: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "pgx5", driver)
	if err != nil {
		_ = driver.Close()
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	version, dirty, err := m.Version()
	if err == nil {
		slog.Info("Database schema up to date", "version", version, "dirty", dirty)
	}
	return nil
}

func (h *PostgresOutputHandler) WriteExecutedBlock(ctx context.Context, block *models.ExecutedBlock) error {
	_, err := h.db.ExecContext(ctx, `
		INSERT INTO executed_blocks (height, block_id, block_hash, transactions, commitment)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (height) DO UPDATE
		SET block_id = EXCLUDED.block_id,
		    block_hash = EXCLUDED.block_hash,
		    transactions = EXCLUDED.transactions,
		    commitment = EXCLUDED.commitment`,
		block.Height, block.BlockID[:], block.BlockHash[:], block.Transactions, block.Commitment[:])
	if err != nil {
		return fmt.Errorf("failed to insert executed block %d: %w", block.Height, err)
	}
	return nil
}

func (h *PostgresOutputHandler) WriteCommitmentEvent(ctx context.Context, event models.BlockCommitmentEvent) error {
	var (
		accepted   bool
		blockID    []byte
		commitment []byte
		reason     sql.NullString
	)
	if c, ok := event.Accepted(); ok {
		accepted = true
		blockID = c.BlockID[:]
		commitment = c.Commitment[:]
	} else {
		_, r, _ := event.Rejected()
		reason = sql.NullString{String: r.String(), Valid: true}
	}

	_, err := h.db.ExecContext(ctx, `
		INSERT INTO commitment_events (height, accepted, block_id, commitment, reason)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (height) DO UPDATE
		SET accepted = EXCLUDED.accepted,
		    block_id = EXCLUDED.block_id,
		    commitment = EXCLUDED.commitment,
		    reason = EXCLUDED.reason,
		    recorded_at = now()`,
		event.Height(), accepted, blockID, commitment, reason)
	if err != nil {
		return fmt.Errorf("failed to insert commitment event %d: %w", event.Height(), err)
	}
	return nil
}

func (h *PostgresOutputHandler) GetLatestCommitment(ctx context.Context) (*models.BlockCommitment, error) {
	var (
		height     uint64
		blockID    []byte
		commitment []byte
	)
	err := h.db.QueryRowContext(ctx, `
		SELECT height, block_id, commitment
		FROM commitment_events
		WHERE accepted
		ORDER BY height DESC
		LIMIT 1`).Scan(&height, &blockID, &commitment)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest commitment: %w", err)
	}

	c := &models.BlockCommitment{Height: height}
	if c.BlockID, err = models.HashValueFromSlice(blockID); err != nil {
		return nil, fmt.Errorf("corrupt block id at height %d: %w", height, err)
	}
	if c.Commitment, err = models.HashValueFromSlice(commitment); err != nil {
		return nil, fmt.Errorf("corrupt commitment at height %d: %w", height, err)
	}
	return c, nil
}

func (h *PostgresOutputHandler) Close() error {
	return h.db.Close()
}
