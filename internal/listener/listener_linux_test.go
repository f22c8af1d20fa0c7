//go:build linux

package listener

import (
	"os"
	"path/filepath"
	"testing"

	"fingermon/internal/event"
)

func TestIgnoredDevice(t *testing.T) {
	ignore := []string{"event7", "/dev/input/event9"}

	cases := []struct {
		dev  string
		want bool
	}{
		{"/dev/input/event7", true},
		{"/dev/input/event9", true},
		{"/dev/input/event8", false},
		{"/dev/input/event70", false},
	}
	for _, tc := range cases {
		if got := ignoredDevice(tc.dev, ignore); got != tc.want {
			t.Errorf("ignoredDevice(%q) = %v, want %v", tc.dev, got, tc.want)
		}
	}
}

func TestFindInputDevicesHonorsIgnoreList(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root opens mode-0 files, cannot exercise the permission path")
	}

	// An unreadable node is kept as a candidate so Available can report the
	// permission problem; ignoring it must drop it before the probe.
	dir := t.TempDir()
	dev := filepath.Join(dir, "event7")
	if err := os.WriteFile(dev, nil, 0o000); err != nil {
		t.Fatal(err)
	}
	pattern := filepath.Join(dir, "event*")

	devices, err := findInputDevices(pattern, nil)
	if err != nil {
		t.Fatalf("findInputDevices: %v", err)
	}
	if len(devices) != 1 || devices[0] != dev {
		t.Fatalf("devices = %v, want [%s]", devices, dev)
	}

	devices, err = findInputDevices(pattern, []string{"event7"})
	if err != nil {
		t.Fatalf("findInputDevices with ignore: %v", err)
	}
	if len(devices) != 0 {
		t.Fatalf("devices = %v, want none after ignoring event7", devices)
	}
}

func TestNewUsesConfiguredPattern(t *testing.T) {
	// Regular files fail the capability probe, so a pattern over plain
	// files yields an empty device set and Start reports unavailability.
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "event0"), nil, 0o644); err != nil {
		t.Fatal(err)
	}

	l := New(make(chan event.Event, 1), Options{
		DevicePattern: filepath.Join(dir, "event*"),
	})
	if ok, _ := l.Available(); ok {
		t.Error("regular files must not pass the device probe")
	}
}
