package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"kite_guard/internal/models"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS audit_log (
	id         TEXT PRIMARY KEY,
	kind       TEXT NOT NULL,
	symbol     TEXT NOT NULL,
	order_id   TEXT NOT NULL DEFAULT '',
	pnl        TEXT NOT NULL DEFAULT '0',
	message    TEXT NOT NULL,
	payload    TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS audit_log_created_at_idx ON audit_log (created_at);

CREATE TABLE IF NOT EXISTS script_status (
	script     TEXT PRIMARY KEY,
	run_id     TEXT NOT NULL,
	state      TEXT NOT NULL,
	updated_at TEXT NOT NULL
);`

// фиксированная ширина, чтобы ORDER BY по тексту совпадал с хронологией
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLite: журнал в локальном файле для запуска без Postgres.
type SQLite struct {
	db *sql.DB
}

func NewSQLite(ctx context.Context, path string) (*SQLite, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// один писатель, иначе SQLITE_BUSY
	conn.SetMaxOpenConns(1)

	if _, err := conn.ExecContext(ctx, sqliteSchema); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("migrate journal: %w", err)
	}
	return &SQLite{db: conn}, nil
}

func (s *SQLite) Append(ctx context.Context, rec models.AuditRecord) error {
	body, err := encodePayload(rec)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, kind, symbol, order_id, pnl, message, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID.String(), string(rec.Kind), rec.Symbol, rec.OrderID, rec.PnL.String(), rec.Message, body,
		rec.CreatedAt.UTC().Format(sqliteTimeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert audit_log: %w", err)
	}
	return nil
}

func (s *SQLite) Recent(ctx context.Context, limit int) ([]models.AuditRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, symbol, order_id, pnl, message, created_at
		FROM audit_log ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("select audit_log: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var out []models.AuditRecord
	for rows.Next() {
		var (
			rec                 models.AuditRecord
			id, kind, pnl, when string
		)
		if err := rows.Scan(&id, &kind, &rec.Symbol, &rec.OrderID, &pnl, &rec.Message, &when); err != nil {
			return nil, fmt.Errorf("scan audit_log: %w", err)
		}
		if rec.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("audit_log id %q: %w", id, err)
		}
		if rec.CreatedAt, err = time.Parse(sqliteTimeLayout, when); err != nil {
			return nil, fmt.Errorf("audit_log created_at %q: %w", when, err)
		}
		rec.Kind = models.AuditKind(kind)
		rec.PnL = parsePnL(pnl)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLite) Status(ctx context.Context, script string) (models.RunStatus, bool, error) {
	st := models.RunStatus{Script: script}
	var state, when string
	err := s.db.QueryRowContext(ctx,
		`SELECT run_id, state, updated_at FROM script_status WHERE script = ?`, script,
	).Scan(&st.RunID, &state, &when)
	if errors.Is(err, sql.ErrNoRows) {
		return models.RunStatus{}, false, nil
	}
	if err != nil {
		return models.RunStatus{}, false, fmt.Errorf("select script_status: %w", err)
	}
	st.State = models.RunState(state)
	if st.UpdatedAt, err = time.Parse(sqliteTimeLayout, when); err != nil {
		return models.RunStatus{}, false, fmt.Errorf("script_status updated_at %q: %w", when, err)
	}
	return st, true, nil
}

func (s *SQLite) SetStatus(ctx context.Context, st models.RunStatus) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO script_status (script, run_id, state, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (script) DO UPDATE
		SET run_id = excluded.run_id, state = excluded.state, updated_at = excluded.updated_at`,
		st.Script, st.RunID, string(st.State), st.UpdatedAt.UTC().Format(sqliteTimeLayout),
	)
	if err != nil {
		return fmt.Errorf("upsert script_status: %w", err)
	}
	return nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
