//go:build !linux

package transport

import (
	"context"
	"time"

	"go.bug.st/serial"
)

// Monitor polls serial.GetPortsList() every 2s on non-Linux hosts, in
// place of the os.Stat check of the port path that the Linux Monitor
// uses.
type Monitor struct {
	portName string
	interval time.Duration
}

func NewMonitor(portName string) *Monitor {
	return &Monitor{portName: portName, interval: 2 * time.Second}
}

func (m *Monitor) Run(ctx context.Context, onGone func()) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ports, err := serial.GetPortsList()
			if err != nil {
				continue
			}
			if !contains(ports, m.portName) {
				onGone()
				return
			}
		}
	}
}

func contains(ports []string, name string) bool {
	for _, p := range ports {
		if p == name {
			return true
		}
	}
	return false
}
