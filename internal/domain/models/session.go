package models

import "time"

// EngineState is the orchestrator lifecycle state.
type EngineState string

const (
	StateStopped           EngineState = "STOPPED"
	StateInitializing      EngineState = "INITIALIZING"
	StateRunning           EngineState = "RUNNING"
	StateEmergencyShutdown EngineState = "EMERGENCY_SHUTDOWN"
)

// Session identifies one trading session. Sessions are first-class: the
// registry keys orchestrators by session id, there are no singletons.
type Session struct {
	ID         string      `json:"id"`
	Symbols    []string    `json:"symbols"`
	State      EngineState `json:"state"`
	StartedAt  time.Time   `json:"started_at"`
	StoppedAt  *time.Time  `json:"stopped_at,omitempty"`
	StopReason string      `json:"stop_reason,omitempty"`
}

// SessionSnapshot is the durable image of a session written by the detached
// background saver and re-hydrated on start.
type SessionSnapshot struct {
	Session    Session         `json:"session"`
	Positions  []Position      `json:"positions"`
	KillSwitch KillSwitchState `json:"kill_switch"`
	Metrics    RiskMetrics     `json:"metrics"`
	SavedAt    time.Time       `json:"saved_at"`
}
