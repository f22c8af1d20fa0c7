//go:build linux

package power

import (
	"context"
	"fmt"
	"syscall"

	"github.com/godbus/dbus/v5"

	"fingermon/internal/logging"
)

const (
	login1Service   = "org.freedesktop.login1"
	login1Path      = "/org/freedesktop/login1"
	login1Manager   = "org.freedesktop.login1.Manager"
	prepareForSleep = login1Manager + ".PrepareForSleep"
)

// sleepMonitor listens for logind PrepareForSleep and runs the
// callback while holding a delay inhibitor, so the flush completes
// before the kernel suspends.
type sleepMonitor struct {
	conn        *dbus.Conn
	beforeSleep func()
	inhibitFD   int
}

// NewMonitor connects to the system bus. beforeSleep runs once per
// suspend, on the monitor goroutine.
func NewMonitor(beforeSleep func()) (Monitor, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("connect system bus: %w", err)
	}

	if err := conn.AddMatchSignal(
		dbus.WithMatchInterface(login1Manager),
		dbus.WithMatchMember("PrepareForSleep"),
	); err != nil {
		conn.Close()
		return nil, fmt.Errorf("subscribe to sleep signal: %w", err)
	}

	m := &sleepMonitor{
		conn:        conn,
		beforeSleep: beforeSleep,
		inhibitFD:   -1,
	}
	m.acquireInhibitor()
	return m, nil
}

// acquireInhibitor takes a delay lock. Failure is non-fatal; logind
// then gives no grace period but the signal still arrives.
func (m *sleepMonitor) acquireInhibitor() {
	obj := m.conn.Object(login1Service, login1Path)
	var fd dbus.UnixFD
	err := obj.Call(login1Manager+".Inhibit", 0,
		"sleep", "fingermond", "flushing usage statistics", "delay").Store(&fd)
	if err != nil {
		logging.Warn("sleep inhibitor unavailable", "error", err)
		return
	}
	m.inhibitFD = int(fd)
}

func (m *sleepMonitor) releaseInhibitor() {
	if m.inhibitFD >= 0 {
		syscall.Close(m.inhibitFD)
		m.inhibitFD = -1
	}
}

func (m *sleepMonitor) Run(ctx context.Context) error {
	signals := make(chan *dbus.Signal, 8)
	m.conn.Signal(signals)
	defer m.conn.RemoveSignal(signals)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sig, ok := <-signals:
			if !ok {
				return fmt.Errorf("system bus connection lost")
			}
			if sig.Name != prepareForSleep || len(sig.Body) != 1 {
				continue
			}
			entering, ok := sig.Body[0].(bool)
			if !ok {
				continue
			}
			if entering {
				logging.Info("system entering sleep, flushing state")
				if m.beforeSleep != nil {
					m.beforeSleep()
				}
				m.releaseInhibitor()
			} else {
				logging.Info("system resumed from sleep")
				m.acquireInhibitor()
			}
		}
	}
}

func (m *sleepMonitor) Close() error {
	m.releaseInhibitor()
	return m.conn.Close()
}
