package kettle

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"stagg_bridge/internal/models"
)

// Primary framing: fixed 9-byte frames [0xF7, opcode, 0x00, 0x00, payload x4,
// checksum]. The same layout is used for outgoing commands and for the status
// notifications the kettle pushes back.
const (
	frameHeader = 0xF7
	frameSize   = 9

	opPower   = 0x01
	opSetTemp = 0x02
	opHold    = 0x03
)

// FrameLayout holds the byte offsets and scaling of the primary framing.
//
// The values below come from captured traffic, not a published protocol, and
// different captures disagree on details. Treat them as defaults to validate
// against a real device; configs/config.yml can override every field.
type FrameLayout struct {
	CurrentTempOffset int     // little-endian 16-bit field
	TargetTempOffset  int     // little-endian 16-bit field
	TempScale         float64 // raw value divided by this gives degrees
	FahrenheitBit     uint16  // set when the raw value is Fahrenheit-scaled
	StateOffset       int     // single-byte power / hold-minutes sentinel
}

// DefaultFrameLayout returns the layout observed on EKG Pro firmware.
func DefaultFrameLayout() FrameLayout {
	return FrameLayout{
		CurrentTempOffset: 4,
		TargetTempOffset:  6,
		TempScale:         100.0,
		FahrenheitBit:     0x8000,
		StateOffset:       4,
	}
}

// Observed sentinel bytes for power and hold duration. Unknown sentinels are
// decoded as "absent", never guessed.
var (
	powerSentinels = map[byte]bool{
		0x00: false,
		0x01: true,
	}
	holdMinuteSentinels = map[byte]int{
		0x00: 0,
		0x0F: 15,
		0x1E: 30,
		0x2D: 45,
		0x3C: 60,
	}
)

// BLECodec encodes commands into and decodes notifications out of the
// primary framing. It is pure: no I/O, no logging, safe for concurrent use.
type BLECodec struct {
	layout FrameLayout
}

func NewBLECodec(layout FrameLayout) *BLECodec {
	return &BLECodec{layout: layout}
}

// EncodeCommand builds the 9-byte frame for a command. Identical logical
// input always yields an identical frame, so captured traffic can be
// replayed against the encoder in tests.
func (c *BLECodec) EncodeCommand(cmd Command) ([]byte, error) {
	frame := make([]byte, frameSize)
	frame[0] = frameHeader

	switch cmd.Kind {
	case CmdSetPower:
		frame[1] = opPower
		if cmd.On {
			frame[4] = 0x01
		}
	case CmdSetTemperature:
		frame[1] = opSetTemp
		raw := uint16(math.Round(ClampCelsius(cmd.TempC) * c.layout.TempScale))
		binary.LittleEndian.PutUint16(frame[c.layout.CurrentTempOffset:], raw)
		binary.LittleEndian.PutUint16(frame[c.layout.TargetTempOffset:], raw)
	case CmdSetHold:
		frame[1] = opHold
		frame[4] = holdMinutesToSentinel(cmd.Minutes)
	default:
		return nil, fmt.Errorf("%w: %s is not a BLE command", ErrInvalidParameter, cmd.Kind)
	}

	frame[frameSize-1] = checksum(frame[:frameSize-1])
	return frame, nil
}

// DecodeNotification parses one notification buffer into a partial state.
// It never panics and never returns an error: a malformed buffer yields
// (zero delta, false) and the caller decides whether to log it. Feeding the
// identical buffer twice yields the identical delta.
func (c *BLECodec) DecodeNotification(buf []byte) (models.StateDelta, bool) {
	var delta models.StateDelta
	if len(buf) < 8 || buf[0] != frameHeader {
		return delta, false
	}

	switch buf[1] {
	case opPower:
		if len(buf) <= c.layout.StateOffset {
			return delta, false
		}
		on, ok := powerSentinels[buf[c.layout.StateOffset]]
		if !ok {
			return delta, false
		}
		delta.Power = &on
	case opSetTemp:
		if len(buf) < c.layout.TargetTempOffset+2 {
			return delta, false
		}
		curRaw := binary.LittleEndian.Uint16(buf[c.layout.CurrentTempOffset:])
		tgtRaw := binary.LittleEndian.Uint16(buf[c.layout.TargetTempOffset:])
		cur, curF := c.decodeTemp(curRaw)
		tgt, tgtF := c.decodeTemp(tgtRaw)
		delta.CurrentTemp = &cur
		delta.TargetTemp = &tgt
		if curF || tgtF {
			delta.Units = models.UnitFahrenheit
		} else {
			delta.Units = models.UnitCelsius
		}
	case opHold:
		if len(buf) <= c.layout.StateOffset {
			return delta, false
		}
		minutes, ok := holdMinuteSentinels[buf[c.layout.StateOffset]]
		if !ok {
			return delta, false
		}
		hold := minutes > 0
		delta.HoldMinutes = &minutes
		delta.Hold = &hold
	default:
		return delta, false
	}
	return delta, true
}

// decodeTemp converts a raw 16-bit field to Celsius. A set Fahrenheit bit is
// cleared before scaling and the scaled value converted; the bool reports
// whether the field was Fahrenheit-tagged.
func (c *BLECodec) decodeTemp(raw uint16) (float64, bool) {
	if raw&c.layout.FahrenheitBit != 0 {
		raw &^= c.layout.FahrenheitBit
		return FahrenheitToCelsius(float64(raw) / c.layout.TempScale), true
	}
	return float64(raw) / c.layout.TempScale, false
}

func holdMinutesToSentinel(minutes int) byte {
	for b, m := range holdMinuteSentinels {
		if m == minutes {
			return b
		}
	}
	return 0x00
}

func checksum(b []byte) byte {
	var sum byte
	for _, v := range b {
		sum += v
	}
	return sum
}

// Tagged framing: the older EKG+ firmware speaks an 0xEF 0xDD framed
// protocol instead. Notifications arrive as a header [0xEF 0xDD type]
// followed by a separate payload buffer; commands are 8 bytes with a
// per-client sequence counter.
const (
	taggedMagic0 = 0xEF
	taggedMagic1 = 0xDD

	tagPower       = 0
	tagHold        = 1
	tagTargetTemp  = 2
	tagCurrentTemp = 3
	tagCountdown   = 4
	tagLifted      = 8

	taggedCmdPower = 0
	taggedCmdTemp  = 1
)

// InitSequence authenticates a freshly opened tagged-framing connection.
var InitSequence = []byte{
	0xEF, 0xDD, 0x0B,
	0x30, 0x31, 0x32, 0x33, 0x34, 0x35, 0x36, 0x37,
	0x38, 0x39, 0x30, 0x31, 0x32, 0x33, 0x34,
	0x9A, 0x6D,
}

// ShortAuthSequence is the fallback handshake some firmware revisions accept
// when the full init sequence is rejected.
var ShortAuthSequence = []byte{0xEF, 0xDD, 0x0B, 0x9A, 0x6D}

// TaggedEncoder builds tagged-framing commands. The sequence counter is
// scoped to the encoder instance so independent clients never share state.
type TaggedEncoder struct {
	mu  sync.Mutex
	seq byte
}

// Encode builds one 8-byte command and advances the sequence counter.
func (e *TaggedEncoder) Encode(cmdType, value byte) []byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	cmd := []byte{
		taggedMagic0, taggedMagic1,
		0x0A,
		e.seq,
		cmdType,
		value,
		(e.seq + value) & 0xFF,
		cmdType,
	}
	e.seq++
	return cmd
}

// EncodeCommand maps a logical command onto the tagged command table.
func (e *TaggedEncoder) EncodeCommand(cmd Command) ([]byte, error) {
	switch cmd.Kind {
	case CmdSetPower:
		v := byte(0x00)
		if cmd.On {
			v = 0x01
		}
		return e.Encode(taggedCmdPower, v), nil
	case CmdSetTemperature:
		return e.Encode(taggedCmdTemp, byte(math.Round(ClampCelsius(cmd.TempC)))), nil
	default:
		return nil, fmt.Errorf("%w: %s is not a tagged BLE command", ErrInvalidParameter, cmd.Kind)
	}
}

// DecodeTaggedPair parses a header/payload notification pair. A buffer that
// is not a tagged header, or a payload too short for its type, yields
// (zero delta, false).
func DecodeTaggedPair(header, payload []byte) (models.StateDelta, bool) {
	if len(header) < 3 || header[0] != taggedMagic0 || header[1] != taggedMagic1 {
		return models.StateDelta{}, false
	}
	return DecodeTagged(header[2], payload)
}

// DecodeTagged interprets one tagged message per the fixed opcode table.
func DecodeTagged(msgType byte, payload []byte) (models.StateDelta, bool) {
	var delta models.StateDelta
	switch msgType {
	case tagPower:
		if len(payload) < 1 {
			return delta, false
		}
		on := payload[0] == 1
		delta.Power = &on
	case tagHold:
		if len(payload) < 1 {
			return delta, false
		}
		hold := payload[0] == 1
		delta.Hold = &hold
	case tagTargetTemp, tagCurrentTemp:
		if len(payload) < 2 {
			return delta, false
		}
		temp := float64(payload[0])
		if payload[1] == 1 {
			temp = FahrenheitToCelsius(temp)
			delta.Units = models.UnitFahrenheit
		} else {
			delta.Units = models.UnitCelsius
		}
		if msgType == tagTargetTemp {
			delta.TargetTemp = &temp
		} else {
			delta.CurrentTemp = &temp
		}
	case tagCountdown:
		if len(payload) < 1 {
			return delta, false
		}
		countdown := int(payload[0])
		delta.Countdown = &countdown
	case tagLifted:
		if len(payload) < 1 {
			return delta, false
		}
		lifted := payload[0] == 0
		delta.Lifted = &lifted
	default:
		return delta, false
	}
	return delta, true
}
