package kettle

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"stagg_bridge/internal/models"
)

// CLI verbs polled every cycle. prtsettings values win over state values for
// settings-type fields because the state body can lag behind a fresh write.
const (
	cliPollState    = "state"
	cliPollSettings = "prtsettings"
)

// EncodeCLICommand renders a command the way the CLI endpoint expects it:
// spaces become '+', newlines are percent-escaped, nothing else is touched.
func EncodeCLICommand(command string) string {
	return strings.ReplaceAll(strings.ReplaceAll(command, " ", "+"), "\n", "%0A")
}

// CLICommandFor maps a logical command to its CLI text form. Temperatures go
// over the wire in Fahrenheit regardless of the display unit.
func CLICommandFor(cmd Command) (string, error) {
	switch cmd.Kind {
	case CmdSetPower:
		if cmd.On {
			return "setstate S_Heat", nil
		}
		return "setstate S_Off", nil
	case CmdSetTemperature:
		f := int(math.Round(CelsiusToFahrenheit(ClampCelsius(cmd.TempC))))
		return fmt.Sprintf("setsetting settempr %d", f), nil
	case CmdSetHold:
		return fmt.Sprintf("setsetting hold %d", cmd.Minutes), nil
	case CmdSetScheduleTime:
		// Firmware packs the time as (hour << 8) | minute.
		return fmt.Sprintf("setsetting schtime %d", cmd.Hour<<8|cmd.Minute), nil
	case CmdSetScheduleEnabled:
		v := 0
		if cmd.On {
			v = 1
		}
		return fmt.Sprintf("setsetting schedon %d", v), nil
	case CmdSetScheduleTemperature:
		f := int(math.Round(CelsiusToFahrenheit(ClampCelsius(cmd.TempC))))
		return fmt.Sprintf("setsetting schtempr %d", f), nil
	}
	return "", fmt.Errorf("%w: unknown command kind %d", ErrInvalidParameter, cmd.Kind)
}

// The CLI answers with loosely formatted key=value text, order-independent
// and interleaved with firmware chatter. Everything is extracted by pattern
// search; tokens we do not recognize are ignored.
var (
	reMode     = regexp.MustCompile(`(?i)\bmode\s*=\s*([A-Za-z0-9_+]+)`)
	reUnits    = regexp.MustCompile(`(?i)\bunits\s*=?\s*(\d+)`)
	reIPB      = regexp.MustCompile(`(?i)\bipb\s*=?\s*(\d+)`)
	reTemprNan = regexp.MustCompile(`(?i)\btempr\s*=\s*nan\b`)
	reClock    = regexp.MustCompile(`(?i)\bclock\s*=\s*(\d{1,2}):(\d{1,2})`)
	reHoldSet  = regexp.MustCompile(`(?i)\bhold\s*=?\s*(\d+)`)
	reValue    = regexp.MustCompile(`(?i)\bvalue\s*=\s*(\d+)`)
	reSchTime  = regexp.MustCompile(`(?i)\bschtime\s*=\s*(\d{1,2}):(\d{1,2})`)
	reSchRaw   = regexp.MustCompile(`(?i)\bschtime\s*=\s*(\d+)`)
	reSchedOn  = regexp.MustCompile(`(?i)\bschedon\s*=\s*(\d+)`)
)

// Field name priority when the same quantity appears under several keys.
var (
	currentTempKeys = []string{"tempr", "tempsc", "temps"}
	targetTempKeys  = []string{"temprT", "tempsc", "temps"}

	tempPatterns = func() map[string]*regexp.Regexp {
		m := make(map[string]*regexp.Regexp)
		for _, key := range []string{"tempr", "temprT", "tempsc", "temps"} {
			m[key] = regexp.MustCompile(fmt.Sprintf(`(?i)\b%s\s*=\s*(-?\d+(?:\.\d+)?|nan)\s*([CF])?\b`, regexp.QuoteMeta(key)))
		}
		return m
	}()
)

// Modes that definitively mean "not holding". Any other non-hold mode leaves
// the hold flag absent rather than guessing false.
var nonHoldModes = map[string]bool{
	"S_HEAT":           true,
	"S_OFF":            true,
	"S_STANDBY":        true,
	"S_STARTUPTOTEMPR": true,
}

// ParseCLIResponse decodes one CLI body into a partial state. Unparseable or
// out-of-range values leave their field absent; the function never fails.
func ParseCLIResponse(body string) models.StateDelta {
	var delta models.StateDelta
	if body == "" {
		return delta
	}
	delta.Raw = body

	mode := parseMode(body)
	if mode != "" {
		power := mode != "S_OFF"
		delta.Power = &power
		if hold, ok := parseHoldMode(mode); ok {
			delta.Hold = &hold
		}
	}

	// Celsius sanity bounds. The target lower bound sits well under the
	// device's 40C floor because Fahrenheit targets convert down to the
	// low twenties and must survive.
	cur, curUnit := parseTempByPriority(body, currentTempKeys, 0, 120)
	tgt, tgtUnit := parseTempByPriority(body, targetTempKeys, 0, 100)
	delta.CurrentTemp = cur
	delta.TargetTemp = tgt

	// An explicit C/F suffix on a temperature token wins; the units flag is
	// only consulted when no token carried one.
	switch {
	case curUnit != "":
		delta.Units = curUnit
	case tgtUnit != "":
		delta.Units = tgtUnit
	default:
		if m := reUnits.FindStringSubmatch(body); m != nil {
			if m[1] == "1" {
				delta.Units = models.UnitCelsius
			} else {
				delta.Units = models.UnitFahrenheit
			}
		}
	}

	if m := reIPB.FindStringSubmatch(body); m != nil {
		lifted := m[1] == "1" // inverted: 1 means off the base
		delta.Lifted = &lifted
	} else if reTemprNan.MatchString(body) {
		// Sensor reads nan while the kettle is off its base.
		lifted := true
		delta.Lifted = &lifted
	}

	if m := reClock.FindStringSubmatch(body); m != nil {
		h, _ := strconv.Atoi(m[1])
		mi, _ := strconv.Atoi(m[2])
		clock := fmt.Sprintf("%02d:%02d", h%24, mi%60)
		delta.Clock = &clock
	}

	if m := reHoldSet.FindStringSubmatch(body); m != nil {
		if minutes, err := strconv.Atoi(m[1]); err == nil && ValidHoldMinutes(minutes) {
			delta.HoldMinutes = &minutes
		}
	}

	if mode == "S_HEAT" || mode == "S_HOLD" {
		if m := reValue.FindStringSubmatch(body); m != nil {
			if v, err := strconv.Atoi(m[1]); err == nil {
				delta.Countdown = &v
			}
		}
	}

	delta.Schedule = parseSchedule(body)
	return delta
}

// parseMode returns the upper-cased base mode, with any "+timer" style
// suffix stripped. Empty string when no mode token is present.
func parseMode(body string) string {
	m := reMode.FindStringSubmatch(body)
	if m == nil {
		return ""
	}
	mode := strings.ToUpper(m[1])
	if i := strings.IndexByte(mode, '+'); i >= 0 {
		mode = mode[:i]
	}
	return mode
}

func parseHoldMode(mode string) (bool, bool) {
	if mode == "S_HOLD" {
		return true, true
	}
	if nonHoldModes[mode] {
		return false, true
	}
	return false, false
}

// parseTempByPriority tries each candidate field name in order and returns
// the first value that parses, converted to Celsius, together with the
// explicit unit suffix ("" when the token carried none). Fahrenheit-suffixed
// values are converted first; the sanity bounds are Celsius bounds applied
// after conversion, so an in-range Fahrenheit reading is never mistaken for
// garbage. A value outside the bounds leaves the field absent.
func parseTempByPriority(body string, keys []string, lo, hi float64) (*float64, string) {
	for _, key := range keys {
		m := tempPatterns[key].FindStringSubmatch(body)
		if m == nil || strings.EqualFold(m[1], "nan") {
			continue
		}
		v, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		unit := strings.ToUpper(m[2])
		if unit == models.UnitFahrenheit {
			v = FahrenheitToCelsius(v)
		}
		if v < lo || v > hi {
			continue
		}
		return &v, unit
	}
	return nil, ""
}

func parseSchedule(body string) *models.Schedule {
	var (
		sched models.Schedule
		found bool
	)
	if m := reSchTime.FindStringSubmatch(body); m != nil {
		h, _ := strconv.Atoi(m[1])
		mi, _ := strconv.Atoi(m[2])
		sched.Hour, sched.Minute = h%24, mi%60
		found = true
	} else if m := reSchRaw.FindStringSubmatch(body); m != nil {
		v, _ := strconv.Atoi(m[1])
		sched.Hour, sched.Minute = (v/256)%24, v%256
		found = true
	}
	if m := reSchedOn.FindStringSubmatch(body); m != nil {
		found = true
		switch m[1] {
		case "1":
			sched.Enabled, sched.Mode = true, "once"
		case "2":
			sched.Enabled, sched.Mode = true, "daily"
		default:
			sched.Mode = "off"
		}
	}
	if !found {
		return nil
	}
	if sched.Mode == "" {
		sched.Mode = "off"
	}
	return &sched
}
