// Package bridge runs a target and services the requests it posts through
// the to-host word.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"

	"github.com/sarchlab/htif/device"
	"github.com/sarchlab/htif/hooking"
	"github.com/sarchlab/htif/idgen"
	"github.com/sarchlab/htif/loader"
	"github.com/sarchlab/htif/mem"
	"github.com/sarchlab/htif/tracing"
)

// Symbols that a payload may define.
const (
	SymbolToHost         = "tohost"
	SymbolFromHost       = "fromhost"
	SymbolBeginSignature = "begin_signature"
	SymbolEndSignature   = "end_signature"
)

// HookPosStateChange is invoked after every state transition. The item is
// the new State.
var HookPosStateChange = &hooking.HookPos{Name: "StateChange"}

// A Mailbox locates the to-host and from-host words.
type Mailbox struct {
	ToHost   uint64
	FromHost uint64
	WordSize int
}

// Stats counts what the run loop did.
type Stats struct {
	Steps          uint64
	Commands       uint64
	Responses      uint64
	ProtocolErrors uint64
}

// SignatureConfig asks for a signature dump when the run ends.
type SignatureConfig struct {
	Path        string
	Granularity int
}

// A Controller owns the life cycle of a bridge: it resets the target,
// installs the boot image and the payloads, and then alternates between
// letting the target run and servicing the to-host word. A controller is
// driven from one goroutine. Stop, and the queries, may be called from any
// goroutine.
type Controller struct {
	hooking.HookableBase

	name string
	mu   sync.Mutex

	state    State
	exitCode int
	fault    error

	target    Target
	memif     *mem.Memif
	registry  *device.Registry
	loader    *loader.Loader
	bootImage BootImage

	primary       *loader.Payload
	secondary     []*loader.Payload
	entryOverride *uint64
	entry         uint64

	mailbox         Mailbox
	mailboxSet      bool
	acknowledgeExit bool
	fromHostQueue   []uint64

	signature        SignatureConfig
	sigBegin, sigEnd uint64
	sigFromSymbols   bool

	idGen idgen.Generator
	now   atomic.Uint64
	stats Stats
}

// Name returns the name of the bridge.
func (c *Controller) Name() string {
	return c.name
}

// CurrentTime returns the number of quanta the target has run.
func (c *Controller) CurrentTime() tracing.VTime {
	return tracing.VTime(c.now.Load())
}

// Registry returns the device registry.
func (c *Controller) Registry() *device.Registry {
	return c.registry
}

// Memif returns the interface to target memory.
func (c *Controller) Memif() *mem.Memif {
	return c.memif
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state
}

// Done tells whether the bridge has stopped.
func (c *Controller) Done() bool {
	return c.State() == StateStopped
}

// ExitCode returns the exit code of a stopped bridge. Calling it before the
// bridge stops is a programming error.
func (c *Controller) ExitCode() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateStopped {
		log.Panicf("bridge %s: exit code requested in state %s",
			c.name, c.state)
	}

	return c.exitCode
}

// Fault returns the fatal error that stopped the bridge, if any.
func (c *Controller) Fault() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.fault
}

// Entry returns the address the target is armed at.
func (c *Controller) Entry() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.entry
}

// Mailbox returns the location of the to-host and from-host words. It is
// known once the bridge is loaded.
func (c *Controller) Mailbox() Mailbox {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.mailbox
}

// Stats returns the counters of the run loop.
func (c *Controller) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.stats
}

// Load resets the target, installs the boot image and the payloads, and
// seals the registry. A failure stops the bridge with FatalExitCode.
func (c *Controller) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.loadLocked()
}

func (c *Controller) loadLocked() error {
	if c.state != StateCreated {
		return fmt.Errorf("%w: cannot load in state %s", ErrInvalidState, c.state)
	}

	if err := c.target.Reset(); err != nil {
		return c.failLocked(&TargetFault{Op: "reset", Err: err})
	}

	if c.bootImage != nil && len(c.bootImage.Bytes()) > 0 {
		err := c.memif.Write(c.bootImage.Base(), c.bootImage.Bytes())
		if err != nil {
			return c.failLocked(fmt.Errorf("installing boot image: %w", err))
		}
	}

	entry, err := c.loader.LoadAll(c.primary, c.secondary, c.entryOverride)
	if err != nil {
		return c.failLocked(err)
	}

	if err := c.resolveMailbox(); err != nil {
		return c.failLocked(err)
	}

	c.resolveSignature()
	c.registry.Seal()

	c.entry = entry
	c.setStateLocked(StateLoaded)

	return nil
}

func (c *Controller) resolveMailbox() error {
	if !c.mailboxSet {
		toHost, okTo := c.primary.Symbol(SymbolToHost)
		fromHost, okFrom := c.primary.Symbol(SymbolFromHost)

		if !okTo || !okFrom {
			return fmt.Errorf("%w in %s", ErrNoMailbox, c.primary.Name)
		}

		c.mailbox.ToHost, c.mailbox.FromHost = toHost, fromHost
	}

	validator, ok := c.memif.Transport().(mem.RangeValidator)
	if !ok {
		return nil
	}

	size := uint64(c.mailbox.WordSize)
	for _, addr := range []uint64{c.mailbox.ToHost, c.mailbox.FromHost} {
		if err := validator.Validate(addr, size); err != nil {
			return fmt.Errorf("mailbox word at 0x%x: %w", addr, err)
		}
	}

	return nil
}

func (c *Controller) resolveSignature() {
	begin, okBegin := c.primary.Symbol(SymbolBeginSignature)
	end, okEnd := c.primary.Symbol(SymbolEndSignature)

	if okBegin && okEnd && begin <= end {
		c.sigBegin, c.sigEnd, c.sigFromSymbols = begin, end, true
	}
}

// Start loads the bridge if it is not loaded yet, arms the target at the
// entry point and enters the running state.
func (c *Controller) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateCreated {
		if err := c.loadLocked(); err != nil {
			return err
		}
	}

	if c.state != StateLoaded {
		return fmt.Errorf("%w: cannot start in state %s", ErrInvalidState, c.state)
	}

	if u, ok := c.target.(MailboxUser); ok {
		u.UseMailbox(c.mailbox)
	}

	if err := c.target.Arm(c.entry); err != nil {
		return c.failLocked(&TargetFault{Op: "arm", Err: err})
	}

	c.setStateLocked(StateRunning)

	return nil
}

// Step lets the target run one quantum and then services the to-host word
// once. It returns an error when the bridge is not running or when a fatal
// error stops it.
func (c *Controller) Step() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateRunning {
		return fmt.Errorf("%w: cannot step in state %s", ErrInvalidState, c.state)
	}

	if err := c.target.Idle(); err != nil {
		return c.failLocked(&TargetFault{Op: "idle", Err: err})
	}

	c.now.Add(1)
	c.stats.Steps++

	if err := c.poll(); err != nil {
		return err
	}

	if c.state == StateRunning {
		return c.flushFromHost()
	}

	return nil
}

// Run steps the bridge until it stops or ctx is cancelled. A cancelled run
// is stopped with StopExitCode and returns the context error.
func (c *Controller) Run(ctx context.Context) error {
	if c.State() != StateRunning {
		if err := c.Start(); err != nil {
			return err
		}
	}

	for !c.Done() {
		select {
		case <-ctx.Done():
			c.Stop()
			return ctx.Err()
		default:
		}

		if err := c.Step(); err != nil {
			if errors.Is(err, ErrInvalidState) && c.Done() {
				return nil
			}

			return err
		}
	}

	return nil
}

// Stop ends the run. If the target has not posted an exit code, the bridge
// records StopExitCode. It waits for an in-flight step to complete.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateStopped {
		return
	}

	if err := c.stopLocked(StopExitCode); err != nil {
		log.Printf("htif: %s: %v", c.name, err)
	}
}

func (c *Controller) poll() error {
	word, err := c.memif.ReadWord(c.mailbox.ToHost, c.mailbox.WordSize)
	if err != nil {
		return c.failLocked(fmt.Errorf("reading to-host word: %w", err))
	}

	if word == 0 {
		c.collectReplies()
		return nil
	}

	if err := c.memif.WriteWord(c.mailbox.ToHost, c.mailbox.WordSize, 0); err != nil {
		return c.failLocked(fmt.Errorf("clearing to-host word: %w", err))
	}

	msg := c.registry.Encoding().Decode(word)

	switch msg.Kind {
	case device.MessageExit:
		if c.acknowledgeExit {
			err := c.memif.WriteWord(c.mailbox.FromHost, c.mailbox.WordSize, 1)
			if err != nil {
				return c.failLocked(fmt.Errorf("acknowledging exit: %w", err))
			}
		}

		return c.stopLocked(int(msg.ExitCode))
	case device.MessageCommand:
		if err := c.dispatch(word, msg.Command); err != nil {
			return err
		}
	}

	if c.state == StateRunning {
		c.collectReplies()
	}

	return nil
}

// collectReplies queues the deferred replies that are ready.
func (c *Controller) collectReplies() {
	for {
		reply, ok := c.registry.Poll()
		if !ok {
			return
		}

		c.enqueueFromHost(
			c.registry.Encoding().EncodeResponse(reply.Cmd, reply.Value))
	}
}

func (c *Controller) dispatch(word uint64, cmd device.Command) error {
	c.stats.Commands++

	what := fmt.Sprintf("slot %d", cmd.Slot)
	if d, ok := c.registry.Lookup(cmd.Slot); ok {
		what = d.Name()
	}

	taskID := c.idGen.Generate()
	tracing.StartTask(taskID, "", c, "dispatch", what, cmd)
	defer tracing.EndTask(taskID, c)

	d, rsp, err := c.registry.Dispatch(word, cmd)

	var protocolErr *device.ProtocolError

	switch {
	case errors.As(err, &protocolErr):
		c.stats.ProtocolErrors++
		tracing.AddTaskStep(taskID, c, "protocol_error")

		return nil
	case err != nil:
		tracing.AddTaskStep(taskID, c, "fault")
		return c.failLocked(&DeviceFault{Device: what, Word: word, Err: err})
	}

	if rsp.Valid {
		c.stats.Responses++
		tracing.AddTaskStep(taskID, c, "respond")
		c.enqueueFromHost(c.registry.Encoding().EncodeResponse(cmd, rsp.Value))
	}

	if t, ok := d.(device.Terminator); ok {
		if code, exited := t.ExitCode(); exited {
			tracing.AddTaskStep(taskID, c, "exit")

			if code < 0 {
				code = int(uint8(code))
			}

			return c.stopLocked(code)
		}
	}

	return nil
}

func (c *Controller) enqueueFromHost(word uint64) {
	c.fromHostQueue = append(c.fromHostQueue, word)
}

// flushFromHost writes the next queued response once the target has
// consumed the previous one.
func (c *Controller) flushFromHost() error {
	if len(c.fromHostQueue) == 0 {
		return nil
	}

	current, err := c.memif.ReadWord(c.mailbox.FromHost, c.mailbox.WordSize)
	if err != nil {
		return c.failLocked(fmt.Errorf("reading from-host word: %w", err))
	}

	if current != 0 {
		return nil
	}

	next := c.fromHostQueue[0]
	c.fromHostQueue = c.fromHostQueue[1:]

	err = c.memif.WriteWord(c.mailbox.FromHost, c.mailbox.WordSize, next)
	if err != nil {
		return c.failLocked(fmt.Errorf("writing from-host word: %w", err))
	}

	return nil
}

// failLocked stops the bridge because of a fatal error and returns the
// error.
func (c *Controller) failLocked(err error) error {
	c.fault = err
	c.exitCode = FatalExitCode
	c.setStateLocked(StateStopped)

	return err
}

// stopLocked stops the bridge with an exit code and dumps the signature.
func (c *Controller) stopLocked(code int) error {
	c.exitCode = code
	c.setStateLocked(StateStopped)

	if err := c.dumpSignature(); err != nil {
		c.fault = err
		return err
	}

	return nil
}

func (c *Controller) setStateLocked(s State) {
	c.state = s

	c.InvokeHook(hooking.HookCtx{
		Domain: c,
		Pos:    HookPosStateChange,
		Item:   s,
	})
}

func (c *Controller) signatureRange() (uint64, uint64, bool) {
	for _, d := range c.registry.Devices() {
		if sig, ok := d.(*device.SignatureDevice); ok {
			if begin, end, ok := sig.Range(); ok {
				return begin, end, true
			}
		}
	}

	return c.sigBegin, c.sigEnd, c.sigFromSymbols
}

func (c *Controller) dumpSignature() error {
	if c.signature.Path == "" {
		return nil
	}

	begin, end, ok := c.signatureRange()
	if !ok {
		fmt.Fprintf(os.Stderr,
			"htif: no signature range is known, %s is not written\n",
			c.signature.Path)

		return nil
	}

	f, err := os.Create(c.signature.Path)
	if err != nil {
		return fmt.Errorf("signature: %w", err)
	}

	err = device.WriteSignature(f, c.memif, begin, end, c.signature.Granularity)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}

	if err != nil {
		return fmt.Errorf("signature: %w", err)
	}

	return nil
}
