//go:build linux

package transport

import (
	"context"
	"os"
	"time"
)

// Monitor polls for the disappearance of portName every 2s, as required
// by the transport contract's port-monitor clause, and invokes onGone
// exactly once when it first notices the port is no longer present.
// On Linux this checks the port path directly, which is cheaper than a
// full re-enumeration for the common /dev/ttyUSB*, /dev/ttyACM* case.
type Monitor struct {
	portName string
	interval time.Duration
}

func NewMonitor(portName string) *Monitor {
	return &Monitor{portName: portName, interval: 2 * time.Second}
}

// Run blocks until ctx is cancelled or the port disappears, in which case
// onGone is invoked once before Run returns.
func (m *Monitor) Run(ctx context.Context, onGone func()) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := os.Stat(m.portName); os.IsNotExist(err) {
				onGone()
				return
			}
		}
	}
}
