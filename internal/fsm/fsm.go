// Package fsm defines the recognizer status machine and its legal transitions.
package fsm

import "fmt"

// Status is the recognizer lifecycle state. It is stored in an atomic.Int32
// by its owner, so the zero value must be Stopped.
type Status int32

type Event string

const (
	StatusStopped Status = iota
	StatusRecognizing
	StatusWaitingDevice
)

const (
	EventStart          Event = "start"
	EventStop           Event = "stop"
	EventDeviceLost     Event = "device_lost"
	EventDeviceRestored Event = "device_restored"
)

func (s Status) String() string {
	switch s {
	case StatusStopped:
		return "stopped"
	case StatusRecognizing:
		return "recognizing"
	case StatusWaitingDevice:
		return "waiting_device"
	default:
		return fmt.Sprintf("unknown(%d)", int32(s))
	}
}

// Transition returns the status reached by applying event to current.
func Transition(current Status, event Event) (Status, error) {
	switch current {
	case StatusStopped:
		switch event {
		case EventStart:
			return StatusRecognizing, nil
		case EventDeviceLost:
			// Begin can fail before any audio flowed because no input exists.
			return StatusWaitingDevice, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StatusRecognizing:
		switch event {
		case EventStop:
			return StatusStopped, nil
		case EventDeviceLost:
			return StatusWaitingDevice, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StatusWaitingDevice:
		switch event {
		case EventDeviceRestored, EventStop:
			return StatusStopped, nil
		default:
			return current, invalidTransition(current, event)
		}
	default:
		return current, fmt.Errorf("unknown status %q", current)
	}
}

func invalidTransition(status Status, event Event) error {
	return fmt.Errorf("invalid transition: %s --(%s)--> ?", status, event)
}
