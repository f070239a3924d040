package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type AuditKind string

const (
	AuditTrailArmed    AuditKind = "trail_armed"
	AuditTrailRaised   AuditKind = "trail_raised"
	AuditExitSubmitted AuditKind = "exit_submitted"
	AuditExitFailed    AuditKind = "exit_failed"
	AuditExitFilled    AuditKind = "exit_filled"
	AuditExitAborted   AuditKind = "exit_aborted"
)

type AuditRecord struct {
	ID        uuid.UUID       `json:"id"`
	Kind      AuditKind       `json:"kind"`
	Symbol    string          `json:"symbol"`
	OrderID   string          `json:"order_id,omitempty"`
	PnL       decimal.Decimal `json:"pnl"`
	Message   string          `json:"message"`
	CreatedAt time.Time       `json:"created_at"`
}
