package risk

import (
	"errors"
	"fmt"
	"strings"

	"kite_guard/internal/models"

	"github.com/shopspring/decimal"
)

const (
	PolicyFixed        = "fixed"
	PolicyProportional = "proportional"
)

var hundred = decimal.NewFromInt(100)

// Limits: пороги в рупиях для одной позиции на одну оценку.
type Limits struct {
	// StopLoss: уровень P&L, ниже которого позиция закрывается (обычно < 0).
	StopLoss decimal.Decimal
	// TrailTrigger: P&L, выше которого включается трейлинг.
	TrailTrigger decimal.Decimal
	// TrailGap: расстояние между P&L и полом трейла.
	TrailGap decimal.Decimal
}

// Policy считает Limits для позиции. reference: цена, от которой считается P&L.
type Policy interface {
	Limits(pos models.Position, reference decimal.Decimal) Limits
}

// FixedPolicy отдаёт одни и те же абсолютные пороги для любой позиции.
type FixedPolicy struct {
	Fixed Limits
}

func (p FixedPolicy) Limits(models.Position, decimal.Decimal) Limits {
	return p.Fixed
}

func DefaultFixedPolicy() FixedPolicy {
	return FixedPolicy{Fixed: Limits{
		StopLoss:     decimal.NewFromInt(-5000),
		TrailTrigger: decimal.NewFromInt(3750),
		TrailGap:     decimal.NewFromInt(250),
	}}
}

// ProportionalPolicy задаёт пороги в процентах от номинала позиции
// (reference × |qty|).
type ProportionalPolicy struct {
	StopLossPct     decimal.Decimal
	TrailTriggerPct decimal.Decimal
	TrailGapPct     decimal.Decimal
}

func (p ProportionalPolicy) Limits(pos models.Position, reference decimal.Decimal) Limits {
	notional := reference.Mul(decimal.NewFromInt(pos.AbsQuantity()))
	pct := func(v decimal.Decimal) decimal.Decimal {
		return notional.Mul(v).Div(hundred)
	}
	return Limits{
		StopLoss:     pct(p.StopLossPct).Neg(),
		TrailTrigger: pct(p.TrailTriggerPct),
		TrailGap:     pct(p.TrailGapPct),
	}
}

// PolicyConfig: плоское представление политики из конфига.
type PolicyConfig struct {
	Kind string

	StopLoss     float64
	TrailTrigger float64
	TrailGap     float64

	StopLossPct     float64
	TrailTriggerPct float64
	TrailGapPct     float64
}

var ErrInvalidPolicy = errors.New("invalid exit policy")

func NewPolicy(cfg PolicyConfig) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Kind)) {
	case "", PolicyFixed:
		if cfg.TrailGap <= 0 {
			return nil, fmt.Errorf("%w: trail gap must be positive, got %v", ErrInvalidPolicy, cfg.TrailGap)
		}
		if cfg.TrailTrigger <= cfg.StopLoss {
			return nil, fmt.Errorf("%w: trail trigger %v must be above stop loss %v", ErrInvalidPolicy, cfg.TrailTrigger, cfg.StopLoss)
		}
		return FixedPolicy{Fixed: Limits{
			StopLoss:     decimal.NewFromFloat(cfg.StopLoss),
			TrailTrigger: decimal.NewFromFloat(cfg.TrailTrigger),
			TrailGap:     decimal.NewFromFloat(cfg.TrailGap),
		}}, nil
	case PolicyProportional:
		if cfg.StopLossPct <= 0 || cfg.TrailTriggerPct <= 0 || cfg.TrailGapPct <= 0 {
			return nil, fmt.Errorf("%w: proportional percentages must be positive", ErrInvalidPolicy)
		}
		return ProportionalPolicy{
			StopLossPct:     decimal.NewFromFloat(cfg.StopLossPct),
			TrailTriggerPct: decimal.NewFromFloat(cfg.TrailTriggerPct),
			TrailGapPct:     decimal.NewFromFloat(cfg.TrailGapPct),
		}, nil
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidPolicy, cfg.Kind)
	}
}
