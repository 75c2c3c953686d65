package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"campaign-engine/internal/campaign"
	"campaign-engine/internal/config"
)

var ErrNotFound = errors.New("campaign not found")

// Store persists campaign definitions. The engine itself never writes
// here; the authoring API does, and every mutation emits a NOTIFY so
// running engines rebuild their registry.
type Store struct {
	pool    *pgxpool.Pool
	channel string
}

func New(ctx context.Context, cfg config.Config) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres DSN: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.Postgres.MaxOpenConns)
	poolCfg.MinConns = int32(cfg.Postgres.MaxIdleConns)
	poolCfg.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	return &Store{pool: pool, channel: cfg.Listener.Channel}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Save upserts a campaign. The definition is compiled first so invalid
// chains are rejected before they touch the store.
func (s *Store) Save(ctx context.Context, c campaign.Campaign) error {
	if _, err := campaign.Compile(c); err != nil {
		return err
	}
	nodes, err := json.Marshal(c.Nodes)
	if err != nil {
		return fmt.Errorf("marshal nodes: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err = s.pool.Exec(ctx, `
		INSERT INTO campaigns (id, name, enabled, tags, lifetime_ms, nodes)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE
		SET name = $2, enabled = $3, tags = $4, lifetime_ms = $5, nodes = $6
	`, c.ID, c.Name, c.Enabled, c.Tags, c.LifetimeMS, nodes)
	if err != nil {
		return fmt.Errorf("save campaign: %w", err)
	}
	return s.notify(ctx)
}

func (s *Store) Get(ctx context.Context, id string) (campaign.Campaign, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, name, enabled, tags, lifetime_ms, nodes
		FROM campaigns WHERE id = $1
	`, id)
	return scanCampaign(row)
}

func (s *Store) List(ctx context.Context) ([]campaign.Campaign, error) {
	return s.query(ctx, `
		SELECT id, name, enabled, tags, lifetime_ms, nodes
		FROM campaigns ORDER BY id
	`)
}

// LoadEnabled loads only enabled campaigns, the registry's input.
func (s *Store) LoadEnabled(ctx context.Context) ([]campaign.Campaign, error) {
	return s.query(ctx, `
		SELECT id, name, enabled, tags, lifetime_ms, nodes
		FROM campaigns WHERE enabled ORDER BY id
	`)
}

// SetEnabled toggles a campaign; this is the only path controlling
// router subscription.
func (s *Store) SetEnabled(ctx context.Context, id string, enabled bool) error {
	tag, err := s.pool.Exec(ctx, `UPDATE campaigns SET enabled = $2 WHERE id = $1`, id, enabled)
	if err != nil {
		return fmt.Errorf("set enabled: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return s.notify(ctx)
}

func (s *Store) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM campaigns WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete campaign: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return s.notify(ctx)
}

func (s *Store) notify(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, "SELECT pg_notify($1, '')", s.channel); err != nil {
		return fmt.Errorf("notify %s: %w", s.channel, err)
	}
	return nil
}

func (s *Store) query(ctx context.Context, sql string) ([]campaign.Campaign, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := s.pool.Query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("query campaigns: %w", err)
	}
	defer rows.Close()

	var out []campaign.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanCampaign(row pgx.Row) (campaign.Campaign, error) {
	var (
		c     campaign.Campaign
		nodes []byte
	)
	if err := row.Scan(&c.ID, &c.Name, &c.Enabled, &c.Tags, &c.LifetimeMS, &nodes); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return c, ErrNotFound
		}
		return c, fmt.Errorf("scan campaign: %w", err)
	}
	if err := json.Unmarshal(nodes, &c.Nodes); err != nil {
		return c, fmt.Errorf("decode nodes for %s: %w", c.ID, err)
	}
	return c, nil
}

func (s *Store) ListenChannel() string { return s.channel }

func (s *Store) PgxPool() *pgxpool.Pool {
	if s.pool == nil {
		panic(errors.New("pgx pool is nil"))
	}
	return s.pool
}
