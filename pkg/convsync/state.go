package convsync

import "time"

// Phase is the session lifecycle: Idle -> Seeding -> Running -> Stopped.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseSeeding
	PhaseRunning
	PhaseStopped
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseSeeding:
		return "seeding"
	case PhaseRunning:
		return "running"
	case PhaseStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// PushPhase tracks the push loop: Connecting -> Connected -> Disconnected -> Connecting.
type PushPhase string

const (
	PushIdle         PushPhase = ""
	PushConnecting   PushPhase = "connecting"
	PushConnected    PushPhase = "connected"
	PushDisconnected PushPhase = "disconnected"
)

// SubscriptionState is a point-in-time copy of the session's sync state.
type SubscriptionState struct {
	Connected          bool
	Phase              PushPhase
	LastKnownMessageID string
	RetryDelay         time.Duration
	Reconnects         int
	LastError          string
}
