package bridge

import (
	"bufio"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/sarchlab/htif/device"
	"github.com/sarchlab/htif/mem"
)

// ErrReplayExhausted is returned by a replay target that ran out of
// operations before the bridge stopped.
var ErrReplayExhausted = errors.New("replay script exhausted")

// A MailboxUser is a target that needs to know where the mailbox words are.
// The controller tells it before arming it.
type MailboxUser interface {
	UseMailbox(m Mailbox)
}

// ReplayOpKind is what a replay operation does.
type ReplayOpKind int

// The replay operations.
const (
	// ReplayWrite stores raw bytes.
	ReplayWrite ReplayOpKind = iota
	// ReplayStore64 stores a 64-bit value in target byte order.
	ReplayStore64
	// ReplayPost waits for the to-host word to be clear and posts a word.
	ReplayPost
	// ReplayAwait waits for a from-host word and consumes it.
	ReplayAwait
	// ReplayExit posts an exit code.
	ReplayExit
)

var replayOpNames = map[string]ReplayOpKind{
	"write":   ReplayWrite,
	"store64": ReplayStore64,
	"post":    ReplayPost,
	"await":   ReplayAwait,
	"exit":    ReplayExit,
}

var replayOpArgs = map[ReplayOpKind]int{
	ReplayWrite:   2,
	ReplayStore64: 2,
	ReplayPost:    1,
	ReplayAwait:   0,
	ReplayExit:    1,
}

// A ReplayOp is one line of a replay script.
type ReplayOp struct {
	Line  int
	Kind  ReplayOpKind
	Addr  uint64
	Value uint64
	Data  []byte
}

// ParseReplay reads a replay script. Each line holds one operation:
//
//	write <addr> <hex bytes>
//	store64 <addr> <value>
//	post <word>
//	await
//	exit <code>
//
// Numbers take Go literal prefixes. Blank lines and lines starting with #
// are skipped.
func ParseReplay(r io.Reader) ([]ReplayOp, error) {
	var ops []ReplayOp

	scanner := bufio.NewScanner(r)
	line := 0

	for scanner.Scan() {
		line++

		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
			continue
		}

		op, err := parseReplayOp(line, fields)
		if err != nil {
			return nil, err
		}

		ops = append(ops, op)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}

	return ops, nil
}

func parseReplayOp(line int, fields []string) (ReplayOp, error) {
	kind, ok := replayOpNames[fields[0]]
	if !ok {
		return ReplayOp{}, fmt.Errorf("replay line %d: unknown operation %q",
			line, fields[0])
	}

	if len(fields)-1 != replayOpArgs[kind] {
		return ReplayOp{}, fmt.Errorf("replay line %d: %s takes %d arguments",
			line, fields[0], replayOpArgs[kind])
	}

	op := ReplayOp{Line: line, Kind: kind}

	var err error

	switch kind {
	case ReplayWrite:
		op.Addr, err = strconv.ParseUint(fields[1], 0, 64)
		if err == nil {
			op.Data, err = hex.DecodeString(fields[2])
		}
	case ReplayStore64:
		op.Addr, err = strconv.ParseUint(fields[1], 0, 64)
		if err == nil {
			op.Value, err = strconv.ParseUint(fields[2], 0, 64)
		}
	case ReplayPost, ReplayExit:
		op.Value, err = strconv.ParseUint(fields[1], 0, 64)
	}

	if err != nil {
		return ReplayOp{}, fmt.Errorf("replay line %d: %w", line, err)
	}

	return op, nil
}

// A ReplayTarget is a Target that acts out a script instead of executing
// instructions. It performs at most one operation per quantum and waits on
// the mailbox the way target software polls it.
type ReplayTarget struct {
	ops      []ReplayOp
	next     int
	memif    *mem.Memif
	encoding device.Encoding
	mailbox  Mailbox
	armed    bool
	entry    uint64
}

// NewReplayTarget creates a target that replays ops.
func NewReplayTarget(
	ops []ReplayOp,
	memif *mem.Memif,
	encoding device.Encoding,
) *ReplayTarget {
	return &ReplayTarget{
		ops:      ops,
		memif:    memif,
		encoding: encoding,
		mailbox:  Mailbox{WordSize: 8},
	}
}

// UseMailbox implements MailboxUser.
func (t *ReplayTarget) UseMailbox(m Mailbox) {
	t.mailbox = m
}

// Reset rewinds the script.
func (t *ReplayTarget) Reset() error {
	t.next = 0
	t.armed = false

	return nil
}

// Arm records the entry point. A replay does not jump there.
func (t *ReplayTarget) Arm(entry uint64) error {
	t.entry = entry
	t.armed = true

	return nil
}

// Entry returns the address the target was armed at.
func (t *ReplayTarget) Entry() uint64 {
	return t.entry
}

// Remaining returns the number of operations not yet performed.
func (t *ReplayTarget) Remaining() int {
	return len(t.ops) - t.next
}

// Idle performs the next operation, unless it has to wait for the mailbox.
func (t *ReplayTarget) Idle() error {
	if !t.armed {
		return errors.New("replay target is not armed")
	}

	if t.next >= len(t.ops) {
		return ErrReplayExhausted
	}

	op := t.ops[t.next]

	done, err := t.perform(op)
	if err != nil {
		return fmt.Errorf("replay line %d: %w", op.Line, err)
	}

	if done {
		t.next++
	}

	return nil
}

func (t *ReplayTarget) perform(op ReplayOp) (bool, error) {
	switch op.Kind {
	case ReplayWrite:
		return true, t.memif.Write(op.Addr, op.Data)
	case ReplayStore64:
		return true, t.memif.WriteUint64(op.Addr, op.Value)
	case ReplayPost:
		return t.post(op.Value)
	case ReplayExit:
		return t.post(t.encoding.EncodeExit(op.Value))
	case ReplayAwait:
		return t.await()
	}

	return false, fmt.Errorf("unknown operation %d", op.Kind)
}

func (t *ReplayTarget) post(word uint64) (bool, error) {
	current, err := t.memif.ReadWord(t.mailbox.ToHost, t.mailbox.WordSize)
	if err != nil || current != 0 {
		return false, err
	}

	err = t.memif.WriteWord(t.mailbox.ToHost, t.mailbox.WordSize, word)

	return err == nil, err
}

func (t *ReplayTarget) await() (bool, error) {
	current, err := t.memif.ReadWord(t.mailbox.FromHost, t.mailbox.WordSize)
	if err != nil || current == 0 {
		return false, err
	}

	err = t.memif.WriteWord(t.mailbox.FromHost, t.mailbox.WordSize, 0)

	return err == nil, err
}
