package kettle

import (
	"context"

	"stagg_bridge/internal/models"
)

// CommandKind identifies a device write operation.
type CommandKind int

const (
	CmdSetPower CommandKind = iota + 1
	CmdSetTemperature
	CmdSetHold
	CmdSetScheduleTime
	CmdSetScheduleEnabled
	CmdSetScheduleTemperature
)

func (k CommandKind) String() string {
	switch k {
	case CmdSetPower:
		return "set_power"
	case CmdSetTemperature:
		return "set_temperature"
	case CmdSetHold:
		return "set_hold"
	case CmdSetScheduleTime:
		return "set_schedule_time"
	case CmdSetScheduleEnabled:
		return "set_schedule_enabled"
	case CmdSetScheduleTemperature:
		return "set_schedule_temperature"
	}
	return "unknown"
}

// Command is one logical write, encoded per transport by the wire codecs.
// Only the fields relevant to Kind are read.
type Command struct {
	Kind    CommandKind
	On      bool    // CmdSetPower, CmdSetScheduleEnabled
	TempC   float64 // CmdSetTemperature, CmdSetScheduleTemperature
	Minutes int     // CmdSetHold
	Hour    int     // CmdSetScheduleTime
	Minute  int     // CmdSetScheduleTime
}

// HoldMinutesAllowed is the set of hold durations the firmware accepts.
var HoldMinutesAllowed = []int{0, 15, 30, 45, 60}

// ValidHoldMinutes reports whether m is one of the firmware's hold steps.
func ValidHoldMinutes(m int) bool {
	for _, v := range HoldMinutesAllowed {
		if v == m {
			return true
		}
	}
	return false
}

// Transport is the capability surface the coordinator is written against.
// The BLE and HTTP clients implement it; the choice is made once at
// construction and never inspected at runtime.
type Transport interface {
	// Poll reads fresh device state. An empty delta with a nil error means
	// the device reported nothing usable; the coordinator counts that
	// against its failure threshold like any other failed poll.
	Poll(ctx context.Context) (models.StateDelta, error)

	// Send writes one command. It returns an error result, never panics.
	Send(ctx context.Context, cmd Command) error

	// Close releases the underlying connection. Best effort.
	Close() error
}

// ConnPhase is the BLE client's connection lifecycle phase. It is owned by
// the transport client alone; the coordinator only observes call results.
type ConnPhase int

const (
	PhaseDisconnected ConnPhase = iota
	PhaseConnecting
	PhaseConnected
	PhaseAuthenticating
)

func (p ConnPhase) String() string {
	switch p {
	case PhaseConnecting:
		return "connecting"
	case PhaseConnected:
		return "connected"
	case PhaseAuthenticating:
		return "authenticating"
	}
	return "disconnected"
}

// ConnectionState pairs the phase with the attempt counter while connecting.
type ConnectionState struct {
	Phase   ConnPhase
	Attempt int
}
