package kv

import (
    "context"
    "database/sql"
    "errors"

    _ "github.com/jackc/pgx/v5/stdlib"
)

// Postgres implements Store over a single kv_entries table. Used for
// gateway deployments where dispatch state must survive host restarts.
type Postgres struct {
    db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
    db, err := sql.Open("pgx", dsn)
    if err != nil {
        return nil, err
    }
    if err := db.Ping(); err != nil {
        return nil, err
    }
    p := &Postgres{db: db}
    if err := p.migrate(); err != nil {
        return nil, err
    }
    return p, nil
}

func (p *Postgres) migrate() error {
    _, err := p.db.Exec(`CREATE TABLE IF NOT EXISTS kv_entries (
        key TEXT PRIMARY KEY,
        value TEXT NOT NULL,
        updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
    )`)
    return err
}

func (p *Postgres) Get(ctx context.Context, key string) (string, error) {
    var v string
    err := p.db.QueryRowContext(ctx, `SELECT value FROM kv_entries WHERE key=$1`, key).Scan(&v)
    if errors.Is(err, sql.ErrNoRows) { return "", ErrNotFound }
    if err != nil { return "", err }
    return v, nil
}

func (p *Postgres) Set(ctx context.Context, key, value string) error {
    _, err := p.db.ExecContext(ctx,
        `INSERT INTO kv_entries (key, value, updated_at) VALUES ($1,$2,now())
         ON CONFLICT (key) DO UPDATE SET value=EXCLUDED.value, updated_at=now()`, key, value)
    return err
}

func (p *Postgres) Remove(ctx context.Context, key string) error {
    _, err := p.db.ExecContext(ctx, `DELETE FROM kv_entries WHERE key=$1`, key)
    return err
}

// Ping verifies connectivity; used by the agent's readiness probe.
func (p *Postgres) Ping(ctx context.Context) error {
    return p.db.PingContext(ctx)
}
