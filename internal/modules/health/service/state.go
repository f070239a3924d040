package service

import (
	"sync/atomic"
	"time"
)

// State: флаги живости, которые обновляет runner.
type State struct {
	ready     atomic.Bool
	startedAt time.Time

	wsConnected       atomic.Bool
	lastTickUnix      atomic.Int64 // unix seconds
	lastPositionsUnix atomic.Int64
	reconnects        atomic.Int64
}

func NewState() *State {
	return &State{startedAt: time.Now()}
}

func (s *State) SetReady(v bool) { s.ready.Store(v) }
func (s *State) Ready() bool     { return s.ready.Load() }

func (s *State) SetWSConnected(v bool) { s.wsConnected.Store(v) }
func (s *State) WSConnected() bool     { return s.wsConnected.Load() }

func (s *State) IncReconnects()    { s.reconnects.Add(1) }
func (s *State) Reconnects() int64 { return s.reconnects.Load() }

func (s *State) TouchTick(t time.Time)      { s.lastTickUnix.Store(t.Unix()) }
func (s *State) LastTick() time.Time        { return fromUnix(s.lastTickUnix.Load()) }
func (s *State) TouchPositions(t time.Time) { s.lastPositionsUnix.Store(t.Unix()) }
func (s *State) LastPositions() time.Time   { return fromUnix(s.lastPositionsUnix.Load()) }

func (s *State) Uptime() time.Duration { return time.Since(s.startedAt) }

func fromUnix(u int64) time.Time {
	if u == 0 {
		return time.Time{}
	}
	return time.Unix(u, 0)
}
