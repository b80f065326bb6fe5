package state

import (
	"context"
	stderrors "errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ajitpratap0/emarsys-tap/pkg/errors"
)

// querier is the subset of pgxpool.Pool used by PostgresStore
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const createStateTable = `
CREATE TABLE IF NOT EXISTS tap_state (
  tap_id text PRIMARY KEY,
  state jsonb NOT NULL,
  updated_at timestamptz NOT NULL DEFAULT now()
)`

const selectState = `SELECT state FROM tap_state WHERE tap_id = $1`

const upsertState = `
INSERT INTO tap_state (tap_id, state, updated_at) VALUES ($1, $2, now())
ON CONFLICT (tap_id) DO UPDATE SET state = EXCLUDED.state, updated_at = now()`

// PostgresStore keeps the checkpoint as one jsonb row per tap id.
type PostgresStore struct {
	db    querier
	pool  *pgxpool.Pool
	tapID string
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore connects with dsn and ensures the table exists
func NewPostgresStore(ctx context.Context, dsn, tapID string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "postgres dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to create postgres pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to connect to postgres")
	}
	store, err := newPostgresStore(ctx, pool, tapID)
	if err != nil {
		pool.Close()
		return nil, err
	}
	store.pool = pool
	return store, nil
}

func newPostgresStore(ctx context.Context, db querier, tapID string) (*PostgresStore, error) {
	if tapID == "" {
		tapID = "emarsys"
	}
	if _, err := db.Exec(ctx, createStateTable); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeState, "failed to create tap_state table")
	}
	return &PostgresStore{db: db, tapID: tapID}, nil
}

// Read loads the checkpoint row. A missing row is an empty document.
func (p *PostgresStore) Read(ctx context.Context) (*Document, error) {
	var data []byte
	err := p.db.QueryRow(ctx, selectState, p.tapID).Scan(&data)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return New(), nil
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeState, "failed to read state from postgres").
			WithDetail("tap_id", p.tapID)
	}
	return Decode(data)
}

// Write upserts the checkpoint row. The statement commits on return.
func (p *PostgresStore) Write(ctx context.Context, doc *Document) error {
	data, err := Encode(doc)
	if err == nil {
		_, err = p.db.Exec(ctx, upsertState, p.tapID, string(data))
		if err != nil {
			err = errors.Wrap(err, errors.ErrorTypeState, "failed to write state to postgres").
				WithDetail("tap_id", p.tapID)
		}
	}
	recordWrite("postgres", err)
	return err
}

// Close closes the pool when the store owns one
func (p *PostgresStore) Close() error {
	if p.pool != nil {
		p.pool.Close()
	}
	return nil
}
