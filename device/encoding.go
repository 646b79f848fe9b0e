package device

import (
	"fmt"
	"sort"
)

// MessageKind tells what a to-host word asks for.
type MessageKind int

// The kinds of to-host messages.
const (
	MessageIdle MessageKind = iota
	MessageExit
	MessageCommand
)

// A Message is a decoded to-host word.
type Message struct {
	Kind     MessageKind
	ExitCode uint64
	Command  Command
}

// An Encoding is one version of the bit layout of the to-host and from-host
// words.
type Encoding interface {
	// Name identifies the layout.
	Name() string

	// MaxSlots returns how many device slots the layout can address.
	MaxSlots() uint64

	// MaxCmd returns the largest command number the layout can carry. A
	// Registry with target memory reserves it on every slot for the identify
	// command, so devices never see it.
	MaxCmd() uint64

	// Decode interprets a to-host word.
	Decode(word uint64) Message

	// EncodeCommand builds the to-host word for a command.
	EncodeCommand(cmd Command) uint64

	// EncodeExit builds the to-host word that finishes the run.
	EncodeExit(code uint64) uint64

	// EncodeResponse builds the from-host word that answers a command.
	EncodeResponse(cmd Command, value uint64) uint64
}

// PackedEncoding keeps the routing fields in the low bits. Bit 0 is the
// finish flag, followed by SlotBits of slot and CmdBits of command. The
// remaining high bits are the payload, so a payload address must be aligned
// to 1<<(1+SlotBits+CmdBits) and is carried in place.
type PackedEncoding struct {
	SlotBits uint
	CmdBits  uint
}

// DefaultPackedEncoding addresses 8 devices with 4 commands each, which
// requires 64-byte aligned payload addresses.
var DefaultPackedEncoding = PackedEncoding{SlotBits: 3, CmdBits: 2}

func (e PackedEncoding) lowBits() uint {
	return 1 + e.SlotBits + e.CmdBits
}

// Name identifies the layout.
func (e PackedEncoding) Name() string {
	return "packed"
}

// MaxSlots returns how many device slots the layout can address.
func (e PackedEncoding) MaxSlots() uint64 {
	return 1 << e.SlotBits
}

// MaxCmd returns the largest command number the layout can carry.
func (e PackedEncoding) MaxCmd() uint64 {
	return 1<<e.CmdBits - 1
}

// Decode interprets a to-host word.
func (e PackedEncoding) Decode(word uint64) Message {
	switch {
	case word == 0:
		return Message{Kind: MessageIdle}
	case word&1 == 1:
		return Message{Kind: MessageExit, ExitCode: word >> 1}
	}

	cmd := Command{
		Slot:    (word >> 1) & (e.MaxSlots() - 1),
		Cmd:     (word >> (1 + e.SlotBits)) & e.MaxCmd(),
		Payload: word &^ (1<<e.lowBits() - 1),
		Arg:     word >> e.lowBits(),
	}

	return Message{Kind: MessageCommand, Command: cmd}
}

// EncodeCommand builds the to-host word for a command. The Arg field is used
// when Payload is zero.
func (e PackedEncoding) EncodeCommand(cmd Command) uint64 {
	payload := cmd.Payload &^ (1<<e.lowBits() - 1)
	if payload == 0 {
		payload = cmd.Arg << e.lowBits()
	}

	return payload | e.routing(cmd)
}

// EncodeExit builds the to-host word that finishes the run.
func (e PackedEncoding) EncodeExit(code uint64) uint64 {
	return code<<1 | 1
}

// EncodeResponse builds the from-host word that answers a command.
func (e PackedEncoding) EncodeResponse(cmd Command, value uint64) uint64 {
	return value<<e.lowBits() | e.routing(cmd)
}

func (e PackedEncoding) routing(cmd Command) uint64 {
	return (cmd.Cmd&e.MaxCmd())<<(1+e.SlotBits) |
		(cmd.Slot&(e.MaxSlots()-1))<<1
}

// FesvrEncoding is the layout of the classic RISC-V front-end server: the
// device in bits 63:56, the command in bits 55:48 and a 48-bit payload. A
// word is a finish request only if device and command are zero and the
// payload is odd.
type FesvrEncoding struct{}

const fesvrPayloadMask = 1<<48 - 1

// Name identifies the layout.
func (FesvrEncoding) Name() string {
	return "fesvr"
}

// MaxSlots returns how many device slots the layout can address.
func (FesvrEncoding) MaxSlots() uint64 {
	return 256
}

// MaxCmd returns the largest command number the layout can carry.
func (FesvrEncoding) MaxCmd() uint64 {
	return 255
}

// Decode interprets a to-host word.
func (FesvrEncoding) Decode(word uint64) Message {
	if word == 0 {
		return Message{Kind: MessageIdle}
	}

	cmd := Command{
		Slot:    word >> 56,
		Cmd:     (word >> 48) & 0xff,
		Payload: word & fesvrPayloadMask,
	}
	cmd.Arg = cmd.Payload

	if cmd.Slot == 0 && cmd.Cmd == 0 && cmd.Payload&1 == 1 {
		return Message{Kind: MessageExit, ExitCode: cmd.Payload >> 1}
	}

	return Message{Kind: MessageCommand, Command: cmd}
}

// EncodeCommand builds the to-host word for a command.
func (e FesvrEncoding) EncodeCommand(cmd Command) uint64 {
	payload := cmd.Payload
	if payload == 0 {
		payload = cmd.Arg
	}

	return e.EncodeResponse(cmd, payload)
}

// EncodeExit builds the to-host word that finishes the run.
func (FesvrEncoding) EncodeExit(code uint64) uint64 {
	return (code<<1 | 1) & fesvrPayloadMask
}

// EncodeResponse builds the from-host word that answers a command.
func (FesvrEncoding) EncodeResponse(cmd Command, value uint64) uint64 {
	return cmd.Slot<<56 | (cmd.Cmd&0xff)<<48 | value&fesvrPayloadMask
}

var encodings = map[string]Encoding{
	"packed": DefaultPackedEncoding,
	"fesvr":  FesvrEncoding{},
}

// EncodingByName returns a known layout.
func EncodingByName(name string) (Encoding, error) {
	e, ok := encodings[name]
	if !ok {
		return nil, fmt.Errorf("unknown to-host encoding %q, known: %v",
			name, EncodingNames())
	}

	return e, nil
}

// EncodingNames lists the known layouts.
func EncodingNames() []string {
	names := make([]string, 0, len(encodings))
	for n := range encodings {
		names = append(names, n)
	}

	sort.Strings(names)

	return names
}
