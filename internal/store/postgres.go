package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresConfig holds service database connection settings.
type PostgresConfig struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string
	MaxConns int32
}

// DefaultPostgresConfig returns connection defaults.
func DefaultPostgresConfig() PostgresConfig {
	return PostgresConfig{
		Host:     "localhost",
		Port:     5432,
		Database: "counseling",
		User:     "counseling",
		SSLMode:  "prefer",
		MaxConns: 10,
	}
}

// ConnString renders the pgx connection string.
func (c PostgresConfig) ConnString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s&pool_max_conns=%d",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode, c.MaxConns,
	)
}

// Postgres implements Relational on a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

var _ Relational = (*Postgres)(nil)

// NewPostgres connects and verifies the connection with a ping.
func NewPostgres(ctx context.Context, cfg PostgresConfig) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, cfg.ConnString())
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging service database: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// Ping verifies the connection.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Close releases the pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

// StaleSessionBacklogs implements Relational. Status 0 is an incoming
// enquiry, status 1 an assigned but unanswered one.
func (p *Postgres) StaleSessionBacklogs(ctx context.Context, cutoff time.Time) ([]AgencyBacklog, error) {
	const q = `
		SELECT a.id, a.name, count(s.id),
		       array_agg(s.id), array_agg(s.rc_group_id)
		FROM agencyservice.agency a
		JOIN userservice.session s ON s.agency_id = a.id
		WHERE s.status IN (0, 1)
		  AND a.is_offline = false
		  AND s.create_date < $1
		GROUP BY a.id, a.name
		ORDER BY a.id`

	rows, err := p.pool.Query(ctx, q, cutoff)
	if err != nil {
		return nil, fmt.Errorf("querying stale session backlogs: %w", err)
	}
	defer rows.Close()

	var out []AgencyBacklog
	for rows.Next() {
		var b AgencyBacklog
		var unanswered int64
		if err := rows.Scan(&b.AgencyID, &b.AgencyName, &unanswered, &b.SessionIDs, &b.RoomIDs); err != nil {
			return nil, fmt.Errorf("scanning stale session backlog: %w", err)
		}
		b.Unanswered = int(unanswered)
		out = append(out, b)
	}
	return out, rows.Err()
}

// TeamFlaggedAgencies implements Relational.
func (p *Postgres) TeamFlaggedAgencies(ctx context.Context) ([]Agency, error) {
	const q = `
		SELECT a.id, a.name
		FROM agencyservice.agency a
		WHERE a.is_team_agency = true
		ORDER BY a.id`

	rows, err := p.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("querying team-flagged agencies: %w", err)
	}
	defer rows.Close()

	var out []Agency
	for rows.Next() {
		var a Agency
		if err := rows.Scan(&a.ID, &a.Name); err != nil {
			return nil, fmt.Errorf("scanning agency: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// RoomReferenceCount implements Relational. Both the session and the
// group chat tables can hold a room id, each in a primary and a feedback
// column.
func (p *Postgres) RoomReferenceCount(ctx context.Context, roomID string) (int, error) {
	const q = `
		SELECT
			(SELECT count(*) FROM userservice.session s
			 WHERE s.rc_group_id = $1 OR s.rc_feedback_group_id = $1)
			+
			(SELECT count(*) FROM userservice.chat c
			 WHERE c.rc_group_id = $1)`

	var n int64
	if err := p.pool.QueryRow(ctx, q, roomID).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting room references for %s: %w", roomID, err)
	}
	return int(n), nil
}
