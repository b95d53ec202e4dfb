package kettle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"tinygo.org/x/bluetooth"

	"stagg_bridge/internal/logger"
	"stagg_bridge/internal/models"
)

// GATT endpoints on the EKG Pro, discovered by probing a real device. The
// same characteristic carries commands out and status notifications back.
const (
	DefaultServiceUUID = "021a9004-0382-4aea-bff4-6b3f1c5adfb4"
	DefaultCharUUID    = "021aff53-0382-4aea-bff4-6b3f1c5adfb4"
)

// Framing selects which BLE wire protocol the client speaks.
const (
	FramingPrimary = "f7"     // 9-byte 0xF7 frames, EKG Pro firmware
	FramingTagged  = "tagged" // 0xEF 0xDD frames, older EKG+ firmware
)

const (
	connectAttempts   = 3
	connectBackoff    = 2 * time.Second
	notifyBuffer      = 32
	pollWait          = 2 * time.Second
	defaultBLETimeout = 10 * time.Second
)

// BLEConfig configures the GATT transport.
type BLEConfig struct {
	Address     string // device MAC, empty means discover by name
	ServiceUUID string // default DefaultServiceUUID
	CharUUID    string // default DefaultCharUUID
	Framing     string // FramingPrimary (default) or FramingTagged
	ScanTimeout time.Duration
	Layout      FrameLayout // zero value means DefaultFrameLayout
}

// BLEClient owns one GATT connection to the kettle. Connection state lives
// entirely inside the client; callers see only definite success or failure
// per operation. All methods are safe for concurrent use.
type BLEClient struct {
	cfg     BLEConfig
	adapter *bluetooth.Adapter
	log     *logger.Logger

	codec  *BLECodec
	tagged *TaggedEncoder

	// serializes connect / write / disconnect against each other
	opCh chan struct{}

	device    bluetooth.Device
	char      bluetooth.DeviceCharacteristic
	addr      string // MAC of the device currently connected to
	connected bool
	conn      ConnectionState

	// decoded notifications, drained by Poll in arrival order
	notifications chan models.StateDelta

	// tagged framing splits one status update across a header and a
	// payload notification; the header is held until its payload arrives
	pendingHeader []byte
}

var _ Transport = (*BLEClient)(nil)

// NewBLEClient validates the configuration and enables the BLE adapter. No
// connection is made yet; the first Poll or Send connects on demand.
func NewBLEClient(cfg BLEConfig, log *logger.Logger) (*BLEClient, error) {
	if cfg.ServiceUUID == "" {
		cfg.ServiceUUID = DefaultServiceUUID
	}
	if cfg.CharUUID == "" {
		cfg.CharUUID = DefaultCharUUID
	}
	switch cfg.Framing {
	case "":
		cfg.Framing = FramingPrimary
	case FramingPrimary, FramingTagged:
	default:
		return nil, invalidParam("unknown BLE framing %q", cfg.Framing)
	}
	if (cfg.Layout == FrameLayout{}) {
		cfg.Layout = DefaultFrameLayout()
	}

	adapter := bluetooth.DefaultAdapter

	c := &BLEClient{
		cfg:           cfg,
		adapter:       adapter,
		log:           log,
		codec:         NewBLECodec(cfg.Layout),
		tagged:        &TaggedEncoder{},
		opCh:          make(chan struct{}, 1),
		notifications: make(chan models.StateDelta, notifyBuffer),
	}

	// The stack reports unexpected link loss here; without this a dropped
	// connection would only be noticed on the next failed write.
	adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		if connected {
			return
		}
		// Never block the stack's callback goroutine on our op lock.
		go c.onAdapterDisconnect(device.Address.String())
	})

	if err := adapter.Enable(); err != nil {
		return nil, fmt.Errorf("enable adapter: %w", err)
	}
	return c, nil
}

// ConnectionInfo reports the current lifecycle phase for diagnostics.
func (c *BLEClient) ConnectionInfo() ConnectionState {
	if !c.acquire(context.Background()) {
		return ConnectionState{}
	}
	defer c.release()
	return c.conn
}

// Poll returns the state accumulated from notifications since the previous
// poll. When nothing is buffered it waits a short window for the next
// notification; if nothing arrives the delta comes back empty, which the
// coordinator treats as a failed poll.
func (c *BLEClient) Poll(ctx context.Context) (models.StateDelta, error) {
	if err := c.ensureConnected(ctx); err != nil {
		return models.StateDelta{}, err
	}

	var delta models.StateDelta
	drained := false
	for {
		select {
		case d := <-c.notifications:
			delta.Apply(d)
			drained = true
			continue
		default:
		}
		break
	}
	if drained {
		return delta, nil
	}

	wait := time.NewTimer(pollWait)
	defer wait.Stop()
	select {
	case d := <-c.notifications:
		delta.Apply(d)
		return delta, nil
	case <-wait.C:
		return delta, nil
	case <-ctx.Done():
		return models.StateDelta{}, ctx.Err()
	}
}

// Send encodes one command for the configured framing and writes it.
func (c *BLEClient) Send(ctx context.Context, cmd Command) error {
	if err := c.ensureConnected(ctx); err != nil {
		return err
	}

	var (
		frame []byte
		err   error
	)
	if c.cfg.Framing == FramingTagged {
		frame, err = c.tagged.EncodeCommand(cmd)
	} else {
		frame, err = c.codec.EncodeCommand(cmd)
	}
	if err != nil {
		return err
	}

	if !c.acquire(ctx) {
		return ctx.Err()
	}
	defer c.release()
	if !c.connected {
		return ErrNotConnected
	}
	if _, err := c.char.WriteWithoutResponse(frame); err != nil {
		// A failed write is the only disconnect signal some stacks give.
		c.dropConnection()
		return fmt.Errorf("%w: write %s: %v", ErrNotConnected, cmd.Kind, err)
	}
	c.log.Debugw("ble command written", "kind", cmd.Kind.String(), "bytes", len(frame))
	return nil
}

// Close disconnects. Errors from the stack are logged, not returned, since
// there is nothing a caller can do about a failed disconnect.
func (c *BLEClient) Close() error {
	if !c.acquire(context.Background()) {
		return nil
	}
	defer c.release()
	if c.connected {
		if err := c.device.Disconnect(); err != nil {
			c.log.Debugw("ble disconnect failed", "error", err)
		}
	}
	c.connected = false
	c.conn = ConnectionState{Phase: PhaseDisconnected}
	return nil
}

// ensureConnected establishes the connection if needed: scan, connect,
// characteristic discovery, notification subscription and, for the tagged
// framing, authentication. Up to three attempts with a growing backoff.
func (c *BLEClient) ensureConnected(ctx context.Context) error {
	if !c.acquire(ctx) {
		return ctx.Err()
	}
	defer c.release()
	if c.connected {
		return nil
	}

	var lastErr error
	for attempt := 1; attempt <= connectAttempts; attempt++ {
		if attempt > 1 {
			backoff := time.Duration(attempt-1) * connectBackoff
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		c.conn = ConnectionState{Phase: PhaseConnecting, Attempt: attempt}

		if err := c.connectOnce(ctx); err != nil {
			lastErr = err
			c.log.Warnw("ble connect attempt failed",
				"attempt", attempt, "address", c.cfg.Address, "error", err)
			continue
		}
		c.connected = true
		c.conn = ConnectionState{Phase: PhaseConnected}
		c.log.Infow("ble connected", "address", c.cfg.Address, "framing", c.cfg.Framing)
		return nil
	}
	c.conn = ConnectionState{Phase: PhaseDisconnected}
	return fmt.Errorf("%w: %v", ErrConnectionFailed, lastErr)
}

func (c *BLEClient) connectOnce(ctx context.Context) error {
	result, err := Discover(ctx, c.adapter, c.cfg.Address, c.cfg.ScanTimeout)
	if err != nil {
		return err
	}

	device, err := c.adapter.Connect(result.Address, bluetooth.ConnectionParams{})
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	char, err := c.findCharacteristic(device)
	if err != nil {
		device.Disconnect()
		return err
	}

	if err := char.EnableNotifications(c.handleNotification); err != nil {
		device.Disconnect()
		return fmt.Errorf("enable notifications: %w", err)
	}

	if c.cfg.Framing == FramingTagged {
		c.conn = ConnectionState{Phase: PhaseAuthenticating, Attempt: c.conn.Attempt}
		if err := authenticate(char); err != nil {
			device.Disconnect()
			return err
		}
	}

	c.device = device
	c.char = char
	c.addr = result.Address.String()
	c.pendingHeader = nil
	return nil
}

// onAdapterDisconnect resets connection state after the stack reports link
// loss for our device. A stale event racing a reconnect at worst forces one
// extra reconnect on the next operation.
func (c *BLEClient) onAdapterDisconnect(mac string) {
	if !c.acquire(context.Background()) {
		return
	}
	defer c.release()
	if !c.connected || !strings.EqualFold(mac, c.addr) {
		return
	}
	c.log.Warnw("ble link lost", "address", mac)
	c.connected = false
	c.conn = ConnectionState{Phase: PhaseDisconnected}
	c.pendingHeader = nil
}

func (c *BLEClient) findCharacteristic(device bluetooth.Device) (bluetooth.DeviceCharacteristic, error) {
	var zero bluetooth.DeviceCharacteristic

	svcUUID, err := bluetooth.ParseUUID(c.cfg.ServiceUUID)
	if err != nil {
		return zero, invalidParam("service uuid %q: %v", c.cfg.ServiceUUID, err)
	}
	charUUID, err := bluetooth.ParseUUID(c.cfg.CharUUID)
	if err != nil {
		return zero, invalidParam("characteristic uuid %q: %v", c.cfg.CharUUID, err)
	}

	services, err := device.DiscoverServices([]bluetooth.UUID{svcUUID})
	if err != nil {
		return zero, fmt.Errorf("discover services: %w", err)
	}
	if len(services) == 0 {
		return zero, fmt.Errorf("%w: service %s not offered", ErrConnectionFailed, c.cfg.ServiceUUID)
	}

	chars, err := services[0].DiscoverCharacteristics([]bluetooth.UUID{charUUID})
	if err != nil {
		return zero, fmt.Errorf("discover characteristics: %w", err)
	}
	for _, ch := range chars {
		if strings.EqualFold(ch.UUID().String(), c.cfg.CharUUID) {
			return ch, nil
		}
	}
	return zero, fmt.Errorf("%w: characteristic %s not offered", ErrConnectionFailed, c.cfg.CharUUID)
}

// authenticate tries the full init sequence, then the short fallback some
// firmware revisions expect. Both rejected means the kettle will ignore
// every subsequent command, so that is a hard failure.
func authenticate(char bluetooth.DeviceCharacteristic) error {
	for _, seq := range [][]byte{InitSequence, ShortAuthSequence} {
		if _, err := char.WriteWithoutResponse(seq); err == nil {
			return nil
		}
	}
	return ErrAuthenticationFailed
}

// handleNotification runs on the BLE stack's callback goroutine. It only
// decodes and forwards into the buffered channel; when the buffer is full
// the oldest delta is dropped so the stack is never blocked.
func (c *BLEClient) handleNotification(buf []byte) {
	var (
		delta models.StateDelta
		ok    bool
	)
	if c.cfg.Framing == FramingTagged {
		delta, ok = c.consumeTagged(buf)
	} else {
		delta, ok = c.codec.DecodeNotification(buf)
	}
	if !ok || delta.Empty() {
		return
	}
	for {
		select {
		case c.notifications <- delta:
			return
		default:
			select {
			case <-c.notifications:
			default:
			}
		}
	}
}

// consumeTagged pairs up header and payload buffers. Headers without a
// following payload are replaced by the next header.
func (c *BLEClient) consumeTagged(buf []byte) (models.StateDelta, bool) {
	if len(buf) >= 2 && buf[0] == taggedMagic0 && buf[1] == taggedMagic1 {
		c.pendingHeader = append(c.pendingHeader[:0], buf...)
		return models.StateDelta{}, false
	}
	if c.pendingHeader == nil {
		return models.StateDelta{}, false
	}
	header := c.pendingHeader
	c.pendingHeader = nil
	return DecodeTaggedPair(header, buf)
}

func (c *BLEClient) acquire(ctx context.Context) bool {
	select {
	case c.opCh <- struct{}{}:
		return true
	case <-ctx.Done():
		return false
	}
}

func (c *BLEClient) release() {
	<-c.opCh
}

func (c *BLEClient) dropConnection() {
	if c.connected {
		c.device.Disconnect()
	}
	c.connected = false
	c.conn = ConnectionState{Phase: PhaseDisconnected}
	c.pendingHeader = nil
}
