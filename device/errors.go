package device

import (
	"errors"
	"fmt"
)

var (
	// ErrSlotTaken is returned when a device claims a slot that is in use.
	ErrSlotTaken = errors.New("device slot already taken")

	// ErrNoFreeSlot is returned when the encoding cannot address another
	// device.
	ErrNoFreeSlot = errors.New("no free device slot")

	// ErrSealed is returned when registering after the bridge started.
	ErrSealed = errors.New("device registry is sealed")

	// ErrUnknownFactory is returned for a dynamic device of unknown kind.
	ErrUnknownFactory = errors.New("unknown device kind")
)

// A ProtocolError is a malformed or unroutable request. The bridge counts it
// and carries on.
type ProtocolError struct {
	Word   uint64
	Reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error on word 0x%016x: %s", e.Word, e.Reason)
}
