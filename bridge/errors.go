package bridge

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidState is returned for operations that the current state
	// does not allow.
	ErrInvalidState = errors.New("invalid bridge state")

	// ErrNoMailbox is returned when the to-host and from-host addresses are
	// neither configured nor found in the primary payload.
	ErrNoMailbox = errors.New("no to-host/from-host address")
)

// A DeviceFault is a device that could not proceed. It stops the bridge.
type DeviceFault struct {
	Device string
	Word   uint64
	Err    error
}

func (f *DeviceFault) Error() string {
	return fmt.Sprintf("device %s failed on word 0x%016x: %v",
		f.Device, f.Word, f.Err)
}

func (f *DeviceFault) Unwrap() error {
	return f.Err
}

// A TargetFault is a target model that failed to reset, arm or run.
type TargetFault struct {
	Op  string
	Err error
}

func (f *TargetFault) Error() string {
	return fmt.Sprintf("target %s: %v", f.Op, f.Err)
}

func (f *TargetFault) Unwrap() error {
	return f.Err
}
