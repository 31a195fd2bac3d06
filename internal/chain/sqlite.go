package chain

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS chains (
	id TEXT PRIMARY KEY,
	created_at INTEGER NOT NULL,
	body TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS segments (
	chain_id TEXT NOT NULL,
	id INTEGER NOT NULL,
	state TEXT NOT NULL,
	begin_at_micros INTEGER NOT NULL,
	body TEXT NOT NULL,
	PRIMARY KEY (chain_id, id)
);
CREATE INDEX IF NOT EXISTS idx_segments_state ON segments(chain_id, state);
`

// SQLiteStore persists chains in a single SQLite file. Rows hold the JSON
// encoding of the model next to the columns queries filter on.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("chain: ensure db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("chain: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("chain: create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateChain(ctx context.Context, c Chain) error {
	body, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("chain: encode chain: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO chains (id, created_at, body) VALUES (?, ?, ?)`,
		c.ID, c.CreatedAt.UnixNano(), string(body))
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "unique") {
			return fmt.Errorf("%w: %s", ErrChainExists, c.ID)
		}
		return fmt.Errorf("chain: insert chain: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Chain(ctx context.Context, id string) (Chain, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT body FROM chains WHERE id = ?`, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return Chain{}, fmt.Errorf("%w: %s", ErrChainNotFound, id)
	}
	if err != nil {
		return Chain{}, fmt.Errorf("chain: load chain: %w", err)
	}
	var c Chain
	if err := json.Unmarshal([]byte(body), &c); err != nil {
		return Chain{}, fmt.Errorf("chain: decode chain %s: %w", id, err)
	}
	return c, nil
}

func (s *SQLiteStore) Chains(ctx context.Context) ([]Chain, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT body FROM chains ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("chain: list chains: %w", err)
	}
	defer rows.Close()
	var out []Chain
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("chain: scan chain: %w", err)
		}
		var c Chain
		if err := json.Unmarshal([]byte(body), &c); err != nil {
			return nil, fmt.Errorf("chain: decode chain: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) UpdateChain(ctx context.Context, c Chain) error {
	body, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("chain: encode chain: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `UPDATE chains SET body = ? WHERE id = ?`, string(body), c.ID)
	if err != nil {
		return fmt.Errorf("chain: update chain: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrChainNotFound, c.ID)
	}
	return nil
}

func (s *SQLiteStore) PutSegment(ctx context.Context, seg Segment) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("chain: begin: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM chains WHERE id = ?`, seg.ChainID).Scan(&exists); err != nil {
		return fmt.Errorf("chain: lookup chain: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("%w: %s", ErrChainNotFound, seg.ChainID)
	}
	last, hasLast, err := lastSegment(ctx, tx, seg.ChainID)
	if err != nil {
		return err
	}
	if err := checkAppend(last, hasLast, seg); err != nil {
		return err
	}
	body, err := json.Marshal(seg)
	if err != nil {
		return fmt.Errorf("chain: encode segment: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO segments (chain_id, id, state, begin_at_micros, body) VALUES (?, ?, ?, ?, ?)`,
		seg.ChainID, seg.ID, string(seg.State), seg.BeginAtChainMicros, string(body)); err != nil {
		return fmt.Errorf("chain: insert segment: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) UpdateSegment(ctx context.Context, seg Segment) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("chain: begin: %w", err)
	}
	defer tx.Rollback()
	prev, err := segmentRow(ctx, tx, seg.ChainID, seg.ID)
	if err != nil {
		return err
	}
	if err := checkUpdate(prev, seg); err != nil {
		return err
	}
	body, err := json.Marshal(seg)
	if err != nil {
		return fmt.Errorf("chain: encode segment: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE segments SET state = ?, body = ? WHERE chain_id = ? AND id = ?`,
		string(seg.State), string(body), seg.ChainID, seg.ID); err != nil {
		return fmt.Errorf("chain: update segment: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) Segment(ctx context.Context, chainID string, id int) (Segment, error) {
	return segmentRow(ctx, s.db, chainID, id)
}

func (s *SQLiteStore) Segments(ctx context.Context, chainID string, states ...SegmentState) ([]Segment, error) {
	query := `SELECT body FROM segments WHERE chain_id = ?`
	args := []any{chainID}
	if len(states) > 0 {
		marks := make([]string, len(states))
		for i, st := range states {
			marks[i] = "?"
			args = append(args, string(st))
		}
		query += ` AND state IN (` + strings.Join(marks, ",") + `)`
	}
	query += ` ORDER BY id`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("chain: list segments: %w", err)
	}
	defer rows.Close()
	var out []Segment
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("chain: scan segment: %w", err)
		}
		seg, err := decodeSegment(body)
		if err != nil {
			return nil, err
		}
		out = append(out, seg)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) LastSegment(ctx context.Context, chainID string) (Segment, bool, error) {
	return lastSegment(ctx, s.db, chainID)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func lastSegment(ctx context.Context, q queryer, chainID string) (Segment, bool, error) {
	var body string
	err := q.QueryRowContext(ctx, `SELECT body FROM segments WHERE chain_id = ? ORDER BY id DESC LIMIT 1`, chainID).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return Segment{}, false, nil
	}
	if err != nil {
		return Segment{}, false, fmt.Errorf("chain: last segment: %w", err)
	}
	seg, err := decodeSegment(body)
	if err != nil {
		return Segment{}, false, err
	}
	return seg, true, nil
}

func segmentRow(ctx context.Context, q queryer, chainID string, id int) (Segment, error) {
	var body string
	err := q.QueryRowContext(ctx, `SELECT body FROM segments WHERE chain_id = ? AND id = ?`, chainID, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return Segment{}, fmt.Errorf("%w: %s/%d", ErrSegmentNotFound, chainID, id)
	}
	if err != nil {
		return Segment{}, fmt.Errorf("chain: load segment: %w", err)
	}
	return decodeSegment(body)
}

func decodeSegment(body string) (Segment, error) {
	var seg Segment
	if err := json.Unmarshal([]byte(body), &seg); err != nil {
		return Segment{}, fmt.Errorf("chain: decode segment: %w", err)
	}
	return seg, nil
}
