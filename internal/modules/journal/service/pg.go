package service

import (
	"context"
	"errors"
	"fmt"

	"kite_guard/internal/models"
	"kite_guard/pkg/db"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const pgSchema = `
CREATE TABLE IF NOT EXISTS audit_log (
	id         UUID PRIMARY KEY,
	kind       TEXT NOT NULL,
	symbol     TEXT NOT NULL,
	order_id   TEXT NOT NULL DEFAULT '',
	pnl        NUMERIC NOT NULL DEFAULT 0,
	message    TEXT NOT NULL,
	payload    JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS audit_log_created_at_idx ON audit_log (created_at DESC);

CREATE TABLE IF NOT EXISTS script_status (
	script     TEXT PRIMARY KEY,
	run_id     TEXT NOT NULL,
	state      TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);`

type Postgres struct {
	db *db.PgTxManager
}

func NewPostgres(ctx context.Context, tx *db.PgTxManager) (*Postgres, error) {
	if _, err := tx.Conn().Exec(ctx, pgSchema); err != nil {
		return nil, fmt.Errorf("migrate journal: %w", err)
	}
	return &Postgres{db: tx}, nil
}

func (p *Postgres) Append(ctx context.Context, rec models.AuditRecord) error {
	body, err := encodePayload(rec)
	if err != nil {
		return err
	}
	_, err = p.db.Conn().Exec(ctx, `
		INSERT INTO audit_log (id, kind, symbol, order_id, pnl, message, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.ID, string(rec.Kind), rec.Symbol, rec.OrderID, rec.PnL.String(), rec.Message, body, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit_log: %w", err)
	}
	return nil
}

func (p *Postgres) Recent(ctx context.Context, limit int) ([]models.AuditRecord, error) {
	rows, err := p.db.Conn().Query(ctx, `
		SELECT id, kind, symbol, order_id, pnl::text, message, created_at
		FROM audit_log ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("select audit_log: %w", err)
	}
	defer rows.Close()

	var out []models.AuditRecord
	for rows.Next() {
		var (
			rec  models.AuditRecord
			id   uuid.UUID
			kind string
			pnl  string
		)
		if err := rows.Scan(&id, &kind, &rec.Symbol, &rec.OrderID, &pnl, &rec.Message, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit_log: %w", err)
		}
		rec.ID = id
		rec.Kind = models.AuditKind(kind)
		rec.PnL = parsePnL(pnl)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (p *Postgres) Status(ctx context.Context, script string) (models.RunStatus, bool, error) {
	st := models.RunStatus{Script: script}
	var state string
	err := p.db.Conn().QueryRow(ctx,
		`SELECT run_id, state, updated_at FROM script_status WHERE script = $1`, script,
	).Scan(&st.RunID, &state, &st.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.RunStatus{}, false, nil
	}
	if err != nil {
		return models.RunStatus{}, false, fmt.Errorf("select script_status: %w", err)
	}
	st.State = models.RunState(state)
	return st, true, nil
}

func (p *Postgres) SetStatus(ctx context.Context, st models.RunStatus) error {
	return p.db.RunMaster(ctx, func(ctxTx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctxTx, `
			INSERT INTO script_status (script, run_id, state, updated_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (script) DO UPDATE
			SET run_id = EXCLUDED.run_id, state = EXCLUDED.state, updated_at = EXCLUDED.updated_at`,
			st.Script, st.RunID, string(st.State), st.UpdatedAt,
		)
		return err
	})
}

func (p *Postgres) Close() error {
	p.db.Close()
	return nil
}
