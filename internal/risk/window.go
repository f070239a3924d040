package risk

import (
	"fmt"
	"time"
	_ "time/tzdata" // Asia/Kolkata в контейнерах без zoneinfo
)

// TradingWindow: торговая сессия в локальном времени биржи.
type TradingWindow struct {
	Location *time.Location
	Open     time.Duration // от полуночи
	Close    time.Duration
}

// ParseTradingWindow разбирает "09:15", "15:30" и имя таймзоны.
func ParseTradingWindow(open, close, tz string) (*TradingWindow, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("load location %q: %w", tz, err)
	}
	o, err := parseClock(open)
	if err != nil {
		return nil, err
	}
	c, err := parseClock(close)
	if err != nil {
		return nil, err
	}
	if c <= o {
		return nil, fmt.Errorf("session close %s is not after open %s", close, open)
	}
	return &TradingWindow{Location: loc, Open: o, Close: c}, nil
}

func parseClock(v string) (time.Duration, error) {
	t, err := time.Parse("15:04", v)
	if err != nil {
		return 0, fmt.Errorf("parse clock %q: %w", v, err)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

// Contains: открыта ли сессия в момент t. nil-окно открыто всегда.
func (w *TradingWindow) Contains(t time.Time) bool {
	if w == nil {
		return true
	}
	local := t.In(w.Location)
	y, m, d := local.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, w.Location)
	since := local.Sub(midnight)
	return since >= w.Open && since < w.Close
}
