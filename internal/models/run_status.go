package models

import "time"

type RunState string

const (
	RunStateRunning RunState = "RUNNING"
	RunStateStopped RunState = "STOPPED"
)

// RunStatus: строка script_status: кто и когда последний раз отметился.
type RunStatus struct {
	Script    string
	RunID     string
	State     RunState
	UpdatedAt time.Time
}
