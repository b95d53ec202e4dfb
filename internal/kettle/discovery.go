package kettle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"tinygo.org/x/bluetooth"
)

const defaultScanTimeout = 15 * time.Second

// Discover scans for the kettle and returns its advertisement. A device
// matches on its MAC address when one is configured, otherwise on an
// advertised local name containing "EKG". The scan stops at the first match,
// on timeout, or when ctx is cancelled.
func Discover(ctx context.Context, adapter *bluetooth.Adapter, address string, timeout time.Duration) (bluetooth.ScanResult, error) {
	if timeout <= 0 {
		timeout = defaultScanTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	found := make(chan bluetooth.ScanResult, 1)
	scanErr := make(chan error, 1)
	go func() {
		scanErr <- adapter.Scan(func(a *bluetooth.Adapter, result bluetooth.ScanResult) {
			if !matchesKettle(result, address) {
				return
			}
			select {
			case found <- result:
			default:
			}
			a.StopScan()
		})
	}()

	select {
	case result := <-found:
		return result, nil
	case err := <-scanErr:
		if err != nil {
			return bluetooth.ScanResult{}, fmt.Errorf("scan: %w", err)
		}
		// Scan ended without a match.
		return bluetooth.ScanResult{}, ErrDeviceNotFound
	case <-ctx.Done():
		adapter.StopScan()
		return bluetooth.ScanResult{}, fmt.Errorf("%w: no advertisement from %q", ErrDeviceNotFound, address)
	}
}

func matchesKettle(result bluetooth.ScanResult, address string) bool {
	if address != "" {
		return strings.EqualFold(result.Address.String(), address)
	}
	return strings.Contains(strings.ToUpper(result.LocalName()), "EKG")
}
