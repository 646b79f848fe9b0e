// Package device defines the host-side devices that service requests posted
// by the target through the to-host word, and the registry that routes those
// requests by slot.
package device

// A Command is a decoded device request.
type Command struct {
	// Slot identifies the device.
	Slot uint64

	// Cmd selects the operation of the device.
	Cmd uint64

	// Payload is the payload field as an address, with the bits that hold
	// the other fields cleared.
	Payload uint64

	// Arg is the payload field as a plain number.
	Arg uint64
}

// A Response is what a device answers to a command.
type Response struct {
	Value uint64
	Valid bool
}

// Respond creates a response that carries a value.
func Respond(value uint64) Response {
	return Response{Value: value, Valid: true}
}

// NoResponse is returned by devices that do not answer a command, or that
// answer it later through Poll.
var NoResponse = Response{}

// A Device is a host-side handler bound to a slot. The command number
// Encoding.MaxCmd (3 with the default packed layout) is taken by the Registry
// to identify the device, and is not passed to Handle.
type Device interface {
	// Name returns the identity of the device.
	Name() string

	// Handle services a command. An error means that the device cannot
	// proceed; it stops the bridge.
	Handle(cmd Command) (Response, error)
}

// A Reply is a response that a device produced outside of Handle.
type Reply struct {
	Cmd   Command
	Value uint64
}

// A Poller is a device that can complete commands later.
type Poller interface {
	Device

	// Poll returns a deferred reply if one is ready.
	Poll() (Reply, bool)
}

// A Terminator is a device that can end the run, for example a syscall
// device that handles exit.
type Terminator interface {
	Device

	// ExitCode returns the exit code posted through the device, if any.
	// Negative codes are reserved for the bridge; only the low byte of a
	// negative code is kept.
	ExitCode() (int, bool)
}
