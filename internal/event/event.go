// Package event defines the normalized input events produced by the
// platform listeners and consumed by the stats aggregator.
//
// IMPORTANT: events carry key codes only so that per-key frequency can be
// counted - the text being typed is never reconstructed or stored. This is
// the same privacy distinction a keystroke counter makes:
// - Keylogger: records "h", "e", "l", "l", "o" -> "hello"
// - fingermon: records "the H key was pressed 5041 times today"
package event

import "time"

// Kind discriminates the closed set of normalized input events.
type Kind uint8

const (
	// KindKeyPress is a keyboard key-down event. Releases and auto-repeat
	// are filtered out by the listener.
	KindKeyPress Kind = iota + 1
	// KindMouseClick is a mouse button-down event.
	KindMouseClick
	// KindMouseMove is a relative pointer movement.
	KindMouseMove
	// KindScrollTick is a wheel notch in either axis.
	KindScrollTick
)

// String returns the kind name for logs.
func (k Kind) String() string {
	switch k {
	case KindKeyPress:
		return "key_press"
	case KindMouseClick:
		return "mouse_click"
	case KindMouseMove:
		return "mouse_move"
	case KindScrollTick:
		return "scroll_tick"
	default:
		return "unknown"
	}
}

// Button identifies a mouse button.
type Button uint8

const (
	ButtonLeft Button = iota + 1
	ButtonRight
	ButtonMiddle
	// ButtonOther is the catch-all for side/extra buttons.
	ButtonOther
)

// String returns the stable display name used as the click-count map key.
func (b Button) String() string {
	switch b {
	case ButtonLeft:
		return "Left"
	case ButtonRight:
		return "Right"
	case ButtonMiddle:
		return "Middle"
	default:
		return "Other"
	}
}

// Event is a single normalized input event. An Event is immutable once
// produced; the listener owns it until it is handed to the aggregator's
// channel, after which the aggregator is the sole consumer.
type Event struct {
	Kind Kind
	// Time is a monotonic timestamp attached at normalization time.
	Time time.Time

	// KeyCode is the platform-normalized key code (KindKeyPress only).
	KeyCode uint16
	// Button is the mouse button (KindMouseClick only).
	Button Button
	// DeltaX and DeltaY are relative pointer deltas (KindMouseMove only).
	DeltaX, DeltaY float64
	// ScrollDelta is the signed notch count (KindScrollTick only).
	ScrollDelta int32
}

// KeyPress builds a key-press event stamped with the given time.
func KeyPress(code uint16, ts time.Time) Event {
	return Event{Kind: KindKeyPress, KeyCode: code, Time: ts}
}

// MouseClick builds a mouse-click event.
func MouseClick(b Button, ts time.Time) Event {
	return Event{Kind: KindMouseClick, Button: b, Time: ts}
}

// MouseMove builds a relative pointer-movement event.
func MouseMove(dx, dy float64, ts time.Time) Event {
	return Event{Kind: KindMouseMove, DeltaX: dx, DeltaY: dy, Time: ts}
}

// ScrollTick builds a wheel event.
func ScrollTick(delta int32, ts time.Time) Event {
	return Event{Kind: KindScrollTick, ScrollDelta: delta, Time: ts}
}
