package risk

import "github.com/shopspring/decimal"

type Phase string

const (
	PhaseFlat        Phase = "FLAT"
	PhaseTracking    Phase = "TRACKING"
	PhaseExitPending Phase = "EXIT_PENDING"
)

// ExitState живёт, пока по символу взведён трейл или висит выходной ордер.
type ExitState struct {
	// TrailFloor только растёт.
	TrailFloor     decimal.NullDecimal
	PendingOrderID string
	BaseStop       decimal.Decimal

	// ордер ушёл в шлюз, ответа ещё нет
	submitting bool
}

func (s *ExitState) phase() Phase {
	if s == nil {
		return PhaseFlat
	}
	if s.submitting || s.PendingOrderID != "" {
		return PhaseExitPending
	}
	return PhaseTracking
}

// raiseFloor поднимает пол, никогда не опуская его. Возвращает true, если пол изменился.
func (s *ExitState) raiseFloor(candidate decimal.Decimal) bool {
	if s.TrailFloor.Valid && !candidate.GreaterThan(s.TrailFloor.Decimal) {
		return false
	}
	s.TrailFloor = decimal.NewNullDecimal(candidate)
	return true
}

// idle: состояние ничего не держит и его можно выбросить.
func (s *ExitState) idle() bool {
	return !s.TrailFloor.Valid && s.PendingOrderID == "" && !s.submitting
}
