package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/commonground/newscrawler/internal/crawl"
)

// ErrNotArchived signals that no archived row exists for the session.
var ErrNotArchived = errors.New("session not archived")

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// PostgresConfig controls the connection pool for the postgres archiver.
type PostgresConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pgClient interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// Postgres inserts one row per completed session, with the article payload
// stored as JSONB.
type Postgres struct {
	pool  pgClient
	table string
}

// NewPostgres connects a pool and returns a Postgres archiver.
func NewPostgres(ctx context.Context, cfg PostgresConfig) (*Postgres, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("archive.dsn is required")
	}
	table := cfg.Table
	if table == "" {
		table = "crawl_sessions"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Postgres{pool: pool, table: table}, nil
}

// NewPostgresWithPool constructs an archiver from an existing pool,
// primarily for testing.
func NewPostgresWithPool(pool pgClient, table string) (*Postgres, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "crawl_sessions"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &Postgres{pool: pool, table: table}, nil
}

// Save inserts the session row.
func (p *Postgres) Save(ctx context.Context, snap crawl.Snapshot) error {
	articles, err := json.Marshal(snap.Data)
	if err != nil {
		return fmt.Errorf("marshal articles: %w", err)
	}
	errorsJSON, err := json.Marshal(snap.Errors)
	if err != nil {
		return fmt.Errorf("marshal errors: %w", err)
	}
	query := fmt.Sprintf(`INSERT INTO %s
		(session_id, status, total_requested, total_found, total_processed,
		 success_count, fail_count, articles, errors, started_at, finished_at, duration_seconds)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`, p.table)
	_, err = p.pool.Exec(ctx, query,
		snap.SessionID,
		string(snap.Status),
		snap.TotalRequested,
		snap.TotalFound,
		snap.TotalProcessed,
		snap.SuccessCount,
		snap.FailCount,
		articles,
		errorsJSON,
		snap.StartTime,
		snap.EndTime,
		snap.DurationSeconds,
	)
	if err != nil {
		return fmt.Errorf("insert session %s: %w", snap.SessionID, err)
	}
	return nil
}

// HistoryRecord is one archived session row, without the article payload.
type HistoryRecord struct {
	SessionID       string     `json:"sessionId"`
	Status          string     `json:"status"`
	TotalRequested  int        `json:"totalRequested"`
	TotalFound      int        `json:"totalFound"`
	TotalProcessed  int        `json:"totalProcessed"`
	SuccessCount    int        `json:"successCount"`
	FailCount       int        `json:"failCount"`
	StartTime       time.Time  `json:"startTime"`
	EndTime         *time.Time `json:"endTime,omitempty"`
	DurationSeconds float64    `json:"durationSeconds"`
}

// HistoryReader serves archived session rows for the read API.
type HistoryReader interface {
	ListSessions(ctx context.Context, status string, limit, offset int) ([]HistoryRecord, error)
	GetSession(ctx context.Context, sessionID string) (HistoryRecord, error)
}

const historyColumns = `session_id, status, total_requested, total_found,
	total_processed, success_count, fail_count, started_at, finished_at, duration_seconds`

// ListSessions returns archived sessions newest first, optionally filtered
// by status.
func (p *Postgres) ListSessions(ctx context.Context, status string, limit, offset int) ([]HistoryRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s`, historyColumns, p.table)
	args := []any{}
	if status != "" {
		query += ` WHERE status = $1 ORDER BY started_at DESC LIMIT $2 OFFSET $3`
		args = append(args, status, limit, offset)
	} else {
		query += ` ORDER BY started_at DESC LIMIT $1 OFFSET $2`
		args = append(args, limit, offset)
	}
	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var records []HistoryRecord
	for rows.Next() {
		var rec HistoryRecord
		if err := rows.Scan(
			&rec.SessionID, &rec.Status, &rec.TotalRequested, &rec.TotalFound,
			&rec.TotalProcessed, &rec.SuccessCount, &rec.FailCount,
			&rec.StartTime, &rec.EndTime, &rec.DurationSeconds,
		); err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate session rows: %w", err)
	}
	return records, nil
}

// GetSession returns a single archived session or ErrNotArchived.
func (p *Postgres) GetSession(ctx context.Context, sessionID string) (HistoryRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE session_id = $1`, historyColumns, p.table)
	var rec HistoryRecord
	err := p.pool.QueryRow(ctx, query, sessionID).Scan(
		&rec.SessionID, &rec.Status, &rec.TotalRequested, &rec.TotalFound,
		&rec.TotalProcessed, &rec.SuccessCount, &rec.FailCount,
		&rec.StartTime, &rec.EndTime, &rec.DurationSeconds,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return HistoryRecord{}, ErrNotArchived
		}
		return HistoryRecord{}, fmt.Errorf("query session %s: %w", sessionID, err)
	}
	return rec, nil
}

// Close releases the pool.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
