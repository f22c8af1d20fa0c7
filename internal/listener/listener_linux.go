//go:build linux

package listener

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"fingermon/internal/event"
)

// evdev constants from linux/input-event-codes.h.
const (
	evKey = 0x01
	evRel = 0x02

	relX      = 0x00
	relY      = 0x01
	relHWheel = 0x06
	relWheel  = 0x08

	btnLeft   = 0x110
	btnRight  = 0x111
	btnMiddle = 0x112
	btnTask   = 0x117 // end of the button range we classify

	// input_event.value for EV_KEY: 0=release, 1=press, 2=autorepeat.
	valuePress = 1
)

// eventSize is sizeof(struct input_event) on 64-bit Linux:
// two 8-byte time fields plus type, code, value.
const eventSize = 24

// defaultDevicePattern matches every evdev node.
const defaultDevicePattern = "/dev/input/event*"

// LinuxListener reads /dev/input/event* devices.
type LinuxListener struct {
	BaseListener
	opts   Options
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.Mutex
	files []*os.File
}

func newPlatformListener(sink chan<- event.Event, opts Options) Listener {
	if opts.DevicePattern == "" {
		opts.DevicePattern = defaultDevicePattern
	}
	return &LinuxListener{BaseListener: NewBase(sink), opts: opts}
}

// Available checks whether any input device can be opened.
func (l *LinuxListener) Available() (bool, string) {
	devices, err := findInputDevices(l.opts.DevicePattern, l.opts.IgnoreDevices)
	if err != nil {
		return false, fmt.Sprintf("cannot enumerate input devices: %v", err)
	}
	if len(devices) == 0 {
		return false, "no keyboard or mouse devices found"
	}
	for _, dev := range devices {
		f, err := os.OpenFile(dev, os.O_RDONLY, 0)
		if err == nil {
			f.Close()
			return true, fmt.Sprintf("found input device: %s", dev)
		}
	}
	return false, "cannot read input devices (need to be in 'input' group or run as root)"
}

// ignoredDevice reports whether dev matches an ignore entry, by base
// name or full path.
func ignoredDevice(dev string, ignore []string) bool {
	base := filepath.Base(dev)
	for _, name := range ignore {
		if dev == name || base == name {
			return true
		}
	}
	return false
}

// findInputDevices returns event devices matching pattern that advertise
// key or relative capabilities (keyboards and pointers).
func findInputDevices(pattern string, ignore []string) ([]string, error) {
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, err
	}

	var devices []string
	for _, dev := range matches {
		if ignoredDevice(dev, ignore) {
			continue
		}
		f, err := os.OpenFile(dev, os.O_RDONLY, 0)
		if err != nil {
			// Unreadable devices are reported by Available, not here.
			if os.IsPermission(err) {
				devices = append(devices, dev)
			}
			continue
		}
		types, err := eventTypeBits(f.Fd())
		f.Close()
		if err != nil {
			continue
		}
		if types&(1<<evKey) != 0 || types&(1<<evRel) != 0 {
			devices = append(devices, dev)
		}
	}
	return devices, nil
}

// eventTypeBits reads the device's supported event-type bitmask via
// EVIOCGBIT(0, ...).
func eventTypeBits(fd uintptr) (uint64, error) {
	var bits uint64
	// _IOC(_IOC_READ, 'E', 0x20, sizeof(bits))
	req := uintptr(2)<<30 | uintptr(unsafe.Sizeof(bits))<<16 | uintptr('E')<<8 | 0x20
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, req, uintptr(unsafe.Pointer(&bits)))
	if errno != 0 {
		return 0, errno
	}
	return bits, nil
}

// Start opens all input devices and begins the per-device read loops.
func (l *LinuxListener) Start(ctx context.Context) error {
	if l.IsRunning() {
		return ErrAlreadyRunning
	}

	devices, err := findInputDevices(l.opts.DevicePattern, l.opts.IgnoreDevices)
	if err != nil || len(devices) == 0 {
		return ErrNotAvailable
	}

	var files []*os.File
	permissionRefused := false
	for _, dev := range devices {
		f, err := os.OpenFile(dev, os.O_RDONLY, 0)
		if err != nil {
			if os.IsPermission(err) {
				permissionRefused = true
			}
			continue
		}
		files = append(files, f)
	}
	if len(files) == 0 {
		if permissionRefused {
			return ErrPermissionDenied
		}
		return ErrNotAvailable
	}

	l.ctx, l.cancel = context.WithCancel(ctx)
	l.mu.Lock()
	l.files = files
	l.mu.Unlock()
	l.SetRunning(true)

	for _, f := range files {
		l.wg.Add(1)
		go l.readLoop(f)
	}
	return nil
}

// readLoop reads raw input_event records from one device and emits the
// normalized events. Reads block; Stop closes the file to unblock.
func (l *LinuxListener) readLoop(f *os.File) {
	defer l.wg.Done()

	buf := make([]byte, eventSize*64)
	for {
		n, err := f.Read(buf)
		if err != nil {
			// Closed on Stop, or the device went away.
			return
		}
		now := time.Now()
		for off := 0; off+eventSize <= n; off += eventSize {
			typ := binary.LittleEndian.Uint16(buf[off+16 : off+18])
			code := binary.LittleEndian.Uint16(buf[off+18 : off+20])
			value := int32(binary.LittleEndian.Uint32(buf[off+20 : off+24]))
			l.handle(typ, code, value, now)
		}
	}
}

// handle normalizes one raw record. Key releases and auto-repeat are
// dropped here so downstream only ever sees discrete presses.
func (l *LinuxListener) handle(typ, code uint16, value int32, now time.Time) {
	switch typ {
	case evKey:
		if value != valuePress {
			return
		}
		if code >= btnLeft && code <= btnTask {
			l.Emit(event.MouseClick(buttonFor(code), now))
			return
		}
		l.Emit(event.KeyPress(code, now))
	case evRel:
		switch code {
		case relX:
			l.Emit(event.MouseMove(float64(value), 0, now))
		case relY:
			l.Emit(event.MouseMove(0, float64(value), now))
		case relWheel, relHWheel:
			l.Emit(event.ScrollTick(value, now))
		}
	}
}

func buttonFor(code uint16) event.Button {
	switch code {
	case btnLeft:
		return event.ButtonLeft
	case btnRight:
		return event.ButtonRight
	case btnMiddle:
		return event.ButtonMiddle
	default:
		return event.ButtonOther
	}
}

// Devices returns the number of device files currently open.
func (l *LinuxListener) Devices() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.files)
}

// Stop closes the devices and waits for the read loops to exit.
func (l *LinuxListener) Stop() error {
	if !l.IsRunning() {
		return nil
	}

	if l.cancel != nil {
		l.cancel()
	}

	l.mu.Lock()
	for _, f := range l.files {
		f.Close()
	}
	l.files = nil
	l.mu.Unlock()

	l.wg.Wait()
	l.SetRunning(false)
	return nil
}
