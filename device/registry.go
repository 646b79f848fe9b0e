package device

import (
	"fmt"
	"log"
	"sort"

	"github.com/sarchlab/htif/mem"
)

// IdentityNameSize is the number of bytes, including the terminator, that
// the identify command writes.
const IdentityNameSize = 64

// An Identity tells which device owns a slot.
type Identity struct {
	Slot uint64
	Name string
}

// A Registry owns the devices of a bridge and routes commands to them by
// slot. Slots are assigned densely in registration order unless a device
// claims a specific slot.
type Registry struct {
	encoding Encoding
	memif    *mem.Memif
	devices  map[uint64]Device
	sealed   bool

	unknownCommands uint64
	reportedSlots   map[uint64]bool
}

// Encoding returns the word layout that the registry routes by.
func (r *Registry) Encoding() Encoding {
	return r.encoding
}

// Register assigns the lowest free slot to the device.
func (r *Registry) Register(d Device) (uint64, error) {
	if r.sealed {
		return 0, fmt.Errorf("%w: cannot register %s", ErrSealed, d.Name())
	}

	for slot := uint64(0); slot < r.encoding.MaxSlots(); slot++ {
		if _, taken := r.devices[slot]; !taken {
			r.devices[slot] = d
			return slot, nil
		}
	}

	return 0, fmt.Errorf("%w for %s, the %s encoding has %d slots",
		ErrNoFreeSlot, d.Name(), r.encoding.Name(), r.encoding.MaxSlots())
}

// RegisterAt binds the device to a specific slot.
func (r *Registry) RegisterAt(slot uint64, d Device) error {
	if r.sealed {
		return fmt.Errorf("%w: cannot register %s", ErrSealed, d.Name())
	}

	if slot >= r.encoding.MaxSlots() {
		return fmt.Errorf("%w: slot %d of %s is beyond the %d slots of the %s encoding",
			ErrNoFreeSlot, slot, d.Name(), r.encoding.MaxSlots(), r.encoding.Name())
	}

	if owner, taken := r.devices[slot]; taken {
		return fmt.Errorf("%w: slot %d is owned by %s, wanted by %s",
			ErrSlotTaken, slot, owner.Name(), d.Name())
	}

	r.devices[slot] = d

	return nil
}

// Seal prevents further registration.
func (r *Registry) Seal() {
	r.sealed = true
}

// IsSealed tells if the registry no longer accepts devices.
func (r *Registry) IsSealed() bool {
	return r.sealed
}

// Lookup returns the device at a slot.
func (r *Registry) Lookup(slot uint64) (Device, bool) {
	d, ok := r.devices[slot]
	return d, ok
}

// Identities lists slot owners ordered by slot.
func (r *Registry) Identities() []Identity {
	ids := make([]Identity, 0, len(r.devices))
	for slot, d := range r.devices {
		ids = append(ids, Identity{Slot: slot, Name: d.Name()})
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i].Slot < ids[j].Slot })

	return ids
}

// Devices lists the devices ordered by slot.
func (r *Registry) Devices() []Device {
	ids := r.Identities()
	devices := make([]Device, len(ids))

	for i, id := range ids {
		devices[i] = r.devices[id.Slot]
	}

	return devices
}

// UnknownCommands returns how many commands targeted an empty slot.
func (r *Registry) UnknownCommands() uint64 {
	return r.unknownCommands
}

// Dispatch routes a command to the device that owns its slot. Commands for an
// empty slot and identify requests that cannot be served return a
// *ProtocolError. Any other error comes from the device itself.
func (r *Registry) Dispatch(word uint64, cmd Command) (Device, Response, error) {
	d, ok := r.devices[cmd.Slot]
	if !ok {
		r.unknownCommands++
		if !r.reportedSlots[cmd.Slot] {
			r.reportedSlots[cmd.Slot] = true
			log.Printf("htif: command 0x%016x for empty device slot %d ignored",
				word, cmd.Slot)
		}

		return nil, NoResponse, &ProtocolError{
			Word:   word,
			Reason: fmt.Sprintf("no device in slot %d", cmd.Slot),
		}
	}

	if cmd.Cmd == r.encoding.MaxCmd() && r.memif != nil {
		rsp, err := r.identify(d, cmd)
		if err != nil {
			return d, NoResponse, &ProtocolError{Word: word, Reason: err.Error()}
		}

		return d, rsp, nil
	}

	rsp, err := d.Handle(cmd)

	return d, rsp, err
}

// identify writes the device name, NUL-terminated, at the payload address.
func (r *Registry) identify(d Device, cmd Command) (Response, error) {
	buf := make([]byte, IdentityNameSize)
	copy(buf[:IdentityNameSize-1], d.Name())

	if err := r.memif.Write(cmd.Payload, buf); err != nil {
		return NoResponse, err
	}

	return Respond(1), nil
}

// Poll collects the first deferred reply of the devices, in slot order.
func (r *Registry) Poll() (Reply, bool) {
	for _, d := range r.Devices() {
		p, ok := d.(Poller)
		if !ok {
			continue
		}

		if reply, ok := p.Poll(); ok {
			return reply, true
		}
	}

	return Reply{}, false
}
