package flowstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements FlowStore on a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// SQLiteConfig configures the SQLite store.
type SQLiteConfig struct {
	// Path is the database file, or ":memory:".
	Path string

	// MaxOpenConns defaults to 1 for ":memory:" and 5 otherwise.
	MaxOpenConns int
}

// NewSQLiteStore opens the database and creates the schema.
func NewSQLiteStore(cfg SQLiteConfig) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, errors.New("sqlite path is required")
	}

	connStr := cfg.Path
	maxConns := cfg.MaxOpenConns
	if cfg.Path == ":memory:" {
		// Each connection would otherwise see its own empty database.
		maxConns = 1
	} else {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, fmt.Errorf("create directory for %s: %w", cfg.Path, err)
		}
		connStr += "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
		if maxConns == 0 {
			maxConns = 5
		}
	}

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(maxConns)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS flows (
		agent_id TEXT PRIMARY KEY,
		provider TEXT NOT NULL,
		revision INTEGER NOT NULL,
		data TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_flows_provider ON flows(provider);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Create saves a new flow.
func (s *SQLiteStore) Create(ctx context.Context, flow *Flow) (*Flow, error) {
	if err := flow.Validate(); err != nil {
		return nil, err
	}

	stored := flow.Clone()
	if stored.AgentID == "" {
		stored.AgentID = uuid.New().String()
	}
	now := time.Now().UTC()
	stored.Revision = 1
	stored.CreatedAt = now
	stored.UpdatedAt = now

	data, err := json.Marshal(stored)
	if err != nil {
		return nil, fmt.Errorf("marshal flow: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO flows (agent_id, provider, revision, data, updated_at) VALUES (?, ?, ?, ?, ?)`,
		stored.AgentID, stored.Provider, stored.Revision, string(data), now.Format(time.RFC3339Nano),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrFlowExists
		}
		return nil, fmt.Errorf("insert flow: %w", err)
	}
	return stored, nil
}

// Get retrieves a flow by agent id.
func (s *SQLiteStore) Get(ctx context.Context, agentID string) (*Flow, error) {
	return s.get(ctx, s.db, agentID)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLiteStore) get(ctx context.Context, q queryer, agentID string) (*Flow, error) {
	var data string
	err := q.QueryRowContext(ctx, `SELECT data FROM flows WHERE agent_id = ?`, agentID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrFlowNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get flow: %w", err)
	}

	var flow Flow
	if err := json.Unmarshal([]byte(data), &flow); err != nil {
		return nil, fmt.Errorf("unmarshal flow: %w", err)
	}
	return &flow, nil
}

// Update replaces an existing flow inside a transaction.
func (s *SQLiteStore) Update(ctx context.Context, agentID string, flow *Flow) (*Flow, error) {
	if err := flow.Validate(); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stored, err := s.get(ctx, tx, agentID)
	if err != nil {
		return nil, err
	}
	replaceContent(stored, flow)

	data, err := json.Marshal(stored)
	if err != nil {
		return nil, fmt.Errorf("marshal flow: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE flows SET provider = ?, revision = ?, data = ?, updated_at = ? WHERE agent_id = ?`,
		stored.Provider, stored.Revision, string(data), stored.UpdatedAt.Format(time.RFC3339Nano), agentID,
	)
	if err != nil {
		return nil, fmt.Errorf("update flow: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return stored, nil
}

// Delete removes a flow.
func (s *SQLiteStore) Delete(ctx context.Context, agentID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM flows WHERE agent_id = ?`, agentID)
	if err != nil {
		return fmt.Errorf("delete flow: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete flow: %w", err)
	}
	if n == 0 {
		return ErrFlowNotFound
	}
	return nil
}

// List returns all flows matching the options.
func (s *SQLiteStore) List(ctx context.Context, opts *ListOptions) ([]*Flow, error) {
	query := `SELECT data FROM flows`
	var args []any
	if opts != nil && opts.Provider != "" {
		query += ` WHERE provider = ?`
		args = append(args, opts.Provider)
	}
	query += ` ORDER BY agent_id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list flows: %w", err)
	}
	defer rows.Close()

	var flows []*Flow
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan flow: %w", err)
		}
		var flow Flow
		if err := json.Unmarshal([]byte(data), &flow); err != nil {
			return nil, fmt.Errorf("unmarshal flow: %w", err)
		}
		flows = append(flows, &flow)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list flows: %w", err)
	}

	return filterPage(flows, opts), nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
