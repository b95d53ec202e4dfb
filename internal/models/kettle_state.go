package models

import "time"

// Temperature unit tags reported by the kettle.
const (
	UnitCelsius    = "C"
	UnitFahrenheit = "F"
)

// Schedule is the kettle's wake-up schedule as reported by the device.
type Schedule struct {
	Hour    int    `json:"hour"`
	Minute  int    `json:"minute"`
	Enabled bool   `json:"enabled"`
	Mode    string `json:"mode"` // off | once | daily
}

// KettleState is the coordinator's canonical snapshot of one kettle.
//
// Optional fields are pointers: nil means the protocol never reported a
// value. An absent Power must not be read as "off"; callers that need a
// boolean have to check for presence first.
type KettleState struct {
	CurrentTemp *float64  `json:"current_temp,omitempty"` // °C
	TargetTemp  *float64  `json:"target_temp,omitempty"`  // °C
	Units       string    `json:"units"`                  // C | F, display tag only
	Power       *bool     `json:"power,omitempty"`
	Hold        *bool     `json:"hold,omitempty"`
	HoldMinutes *int      `json:"hold_minutes,omitempty"` // 0, 15, 30, 45 or 60
	Lifted      *bool     `json:"lifted,omitempty"`       // kettle off its base
	Countdown   *int      `json:"countdown,omitempty"`
	Clock       *string   `json:"clock,omitempty"` // "HH:MM"
	Schedule    *Schedule `json:"schedule,omitempty"`
	Connected   bool      `json:"connected"`
	Raw         string    `json:"raw,omitempty"` // last raw CLI body, HTTP transport only
	UpdatedAt   time.Time `json:"updated_at"`
}

// StateDelta is a partial state decoded from a single wire response or
// notification. Nil fields were not present in the payload.
type StateDelta struct {
	CurrentTemp *float64
	TargetTemp  *float64
	Units       string // "" when the payload carried no unit information
	Power       *bool
	Hold        *bool
	HoldMinutes *int
	Lifted      *bool
	Countdown   *int
	Clock       *string
	Schedule    *Schedule
	Raw         string
}

// Empty reports whether the delta carries no fields at all.
func (d StateDelta) Empty() bool {
	return d.CurrentTemp == nil && d.TargetTemp == nil && d.Units == "" &&
		d.Power == nil && d.Hold == nil && d.HoldMinutes == nil &&
		d.Lifted == nil && d.Countdown == nil && d.Clock == nil &&
		d.Schedule == nil && d.Raw == ""
}

// Apply overlays every present field of src onto d. Later notifications win,
// which keeps a drained notification backlog in arrival order.
func (d *StateDelta) Apply(src StateDelta) {
	if src.CurrentTemp != nil {
		d.CurrentTemp = src.CurrentTemp
	}
	if src.TargetTemp != nil {
		d.TargetTemp = src.TargetTemp
	}
	if src.Units != "" {
		d.Units = src.Units
	}
	if src.Power != nil {
		d.Power = src.Power
	}
	if src.Hold != nil {
		d.Hold = src.Hold
	}
	if src.HoldMinutes != nil {
		d.HoldMinutes = src.HoldMinutes
	}
	if src.Lifted != nil {
		d.Lifted = src.Lifted
	}
	if src.Countdown != nil {
		d.Countdown = src.Countdown
	}
	if src.Clock != nil {
		d.Clock = src.Clock
	}
	if src.Schedule != nil {
		d.Schedule = src.Schedule
	}
	if src.Raw != "" {
		d.Raw = src.Raw
	}
}

// Merge applies every present field of the delta onto the snapshot.
// Absent delta fields leave the snapshot untouched.
func (s *KettleState) Merge(d StateDelta, now time.Time) {
	if d.CurrentTemp != nil {
		s.CurrentTemp = d.CurrentTemp
	}
	if d.TargetTemp != nil {
		s.TargetTemp = d.TargetTemp
	}
	if d.Units != "" {
		s.Units = d.Units
	}
	if d.Power != nil {
		s.Power = d.Power
	}
	if d.Hold != nil {
		s.Hold = d.Hold
	}
	if d.HoldMinutes != nil {
		s.HoldMinutes = d.HoldMinutes
	}
	if d.Lifted != nil {
		s.Lifted = d.Lifted
	}
	if d.Countdown != nil {
		s.Countdown = d.Countdown
	}
	if d.Clock != nil {
		s.Clock = d.Clock
	}
	if d.Schedule != nil {
		s.Schedule = d.Schedule
	}
	if d.Raw != "" {
		s.Raw = d.Raw
	}
	s.UpdatedAt = now
}

// Reset returns the documented default-on-failure snapshot: everything
// absent, unit tag Celsius. Used when polling has failed persistently so the
// API never shows confidently stale data.
func ResetState(now time.Time) KettleState {
	return KettleState{
		Units:     UnitCelsius,
		Connected: false,
		UpdatedAt: now,
	}
}
