package approval

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/glebarez/go-sqlite"
)

// SQLiteStore persists approval records to a local sqlite database.
type SQLiteStore struct {
	dsn string

	mu sync.Mutex
	db *sql.DB
}

func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("missing sqlite dsn")
	}
	s := &SQLiteStore{dsn: dsn}
	if err := s.open(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) Create(ctx context.Context, rec Record) error {
	if s == nil {
		return fmt.Errorf("nil approval store")
	}
	if err := s.ensureOpen(); err != nil {
		return err
	}
	if strings.TrimSpace(rec.ID) == "" {
		return fmt.Errorf("missing approval id")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if rec.Status == "" {
		rec.Status = RecordPending
	}

	reasonsJSON, _ := json.Marshal(rec.RiskReasons)
	_, err := s.db.ExecContext(ctx, `
INSERT INTO exec_approvals (
  id, call_id, approval_key, command, risk_level, risk_reasons_json,
  created_at_unix, resolved_at_unix,
  status, source, approver_id, approver_name, comment, edited_command
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`, rec.ID, strings.TrimSpace(rec.CallID), strings.TrimSpace(rec.Key), rec.Command,
		rec.RiskLevel, string(reasonsJSON),
		rec.CreatedAt.Unix(), nullTimeUnix(rec.ResolvedAt),
		string(rec.Status), rec.Source, rec.ApproverID, rec.ApproverName,
		rec.Comment, rec.EditedCommand,
	)
	return err
}

func (s *SQLiteStore) Resolve(ctx context.Context, id string, out Outcome) error {
	if s == nil {
		return fmt.Errorf("nil approval store")
	}
	if err := s.ensureOpen(); err != nil {
		return err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("missing approval id")
	}

	now := time.Now().UTC().Unix()
	_, err := s.db.ExecContext(ctx, `
UPDATE exec_approvals
SET status = ?, source = ?, approver_id = ?, approver_name = ?,
    comment = ?, edited_command = ?, resolved_at_unix = ?
WHERE id = ? AND status = ?
`, string(statusForDecision(out.Decision)), string(out.Metadata.Source),
		out.Metadata.ApproverID, out.Metadata.ApproverName,
		out.Comment, out.Command, now, id, string(RecordPending))
	return err
}

func (s *SQLiteStore) List(ctx context.Context, limit int) ([]Record, error) {
	if s == nil {
		return nil, fmt.Errorf("nil approval store")
	}
	if err := s.ensureOpen(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT
  id, call_id, approval_key, command, risk_level, risk_reasons_json,
  created_at_unix, resolved_at_unix,
  status, source, approver_id, approver_name, comment, edited_command
FROM exec_approvals
ORDER BY created_at_unix DESC
LIMIT ?
`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			rec            Record
			reasonsJSON    string
			createdAtUnix  int64
			resolvedAtUnix sql.NullInt64
			status         string
		)
		err := rows.Scan(
			&rec.ID, &rec.CallID, &rec.Key, &rec.Command, &rec.RiskLevel, &reasonsJSON,
			&createdAtUnix, &resolvedAtUnix,
			&status, &rec.Source, &rec.ApproverID, &rec.ApproverName,
			&rec.Comment, &rec.EditedCommand,
		)
		if err != nil {
			return nil, err
		}
		rec.CreatedAt = time.Unix(createdAtUnix, 0).UTC()
		if resolvedAtUnix.Valid {
			t := time.Unix(resolvedAtUnix.Int64, 0).UTC()
			rec.ResolvedAt = &t
		}
		rec.Status = RecordStatus(status)
		_ = json.Unmarshal([]byte(reasonsJSON), &rec.RiskReasons)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLiteStore) open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		return nil
	}
	db, err := sql.Open("sqlite", s.dsn)
	if err != nil {
		return err
	}
	s.db = db
	return s.migrate()
}

func (s *SQLiteStore) ensureOpen() error {
	if s.db != nil {
		return nil
	}
	return s.open()
}

func (s *SQLiteStore) migrate() error {
	if s.db == nil {
		return fmt.Errorf("sqlite db is not open")
	}
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS exec_approvals (
  id TEXT PRIMARY KEY,
  call_id TEXT,
  approval_key TEXT,
  command TEXT,
  risk_level TEXT,
  risk_reasons_json TEXT,
  created_at_unix INTEGER NOT NULL,
  resolved_at_unix INTEGER,
  status TEXT NOT NULL,
  source TEXT,
  approver_id TEXT,
  approver_name TEXT,
  comment TEXT,
  edited_command TEXT
);
CREATE INDEX IF NOT EXISTS idx_exec_approvals_status ON exec_approvals(status);
CREATE INDEX IF NOT EXISTS idx_exec_approvals_key ON exec_approvals(approval_key);
`)
	return err
}

func nullTimeUnix(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return t.UTC().Unix()
}
