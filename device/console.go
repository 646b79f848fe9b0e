package device

import (
	"bufio"
	"fmt"
	"io"
)

// Console commands.
const (
	ConsoleCmdRead  = 0
	ConsoleCmdWrite = 1
)

// consoleValid marks a console reply that carries a character.
const consoleValid = 0x100

// Console is the blocking character device. A read command is answered when
// a host input byte becomes available; a write command prints the low byte
// of its argument.
type Console struct {
	name    string
	out     *bufio.Writer
	in      io.Reader
	input   chan byte
	reads   []Command
	started bool
}

// NewConsole creates a console that prints to out and reads from in. A nil in
// means that reads are never answered.
func NewConsole(name string, in io.Reader, out io.Writer) *Console {
	return &Console{
		name: name,
		in:   in,
		out:  bufio.NewWriter(out),
	}
}

// Name returns the identity of the device.
func (c *Console) Name() string {
	return c.name
}

// Handle services a console command.
func (c *Console) Handle(cmd Command) (Response, error) {
	switch cmd.Cmd {
	case ConsoleCmdRead:
		c.startReading()
		c.reads = append(c.reads, cmd)

		return NoResponse, nil
	case ConsoleCmdWrite:
		ch := byte(cmd.Arg)
		if err := c.out.WriteByte(ch); err != nil {
			return NoResponse, fmt.Errorf("console %s: %w", c.name, err)
		}

		if err := c.out.Flush(); err != nil {
			return NoResponse, fmt.Errorf("console %s: %w", c.name, err)
		}

		return Respond(consoleValid | uint64(ch)), nil
	default:
		return NoResponse, nil
	}
}

// Poll answers the oldest pending read if a byte has arrived.
func (c *Console) Poll() (Reply, bool) {
	if len(c.reads) == 0 || c.input == nil {
		return Reply{}, false
	}

	select {
	case ch, ok := <-c.input:
		if !ok {
			c.input = nil
			return Reply{}, false
		}

		cmd := c.reads[0]
		c.reads = c.reads[1:]

		return Reply{Cmd: cmd, Value: consoleValid | uint64(ch)}, true
	default:
		return Reply{}, false
	}
}

// PendingReads returns the number of reads waiting for input.
func (c *Console) PendingReads() int {
	return len(c.reads)
}

func (c *Console) startReading() {
	if c.input != nil || c.in == nil || c.started {
		return
	}

	c.started = true
	c.input = make(chan byte, 256)

	go func(in io.Reader, input chan<- byte) {
		defer close(input)

		buf := make([]byte, 1)
		for {
			n, err := in.Read(buf)
			if n == 1 {
				input <- buf[0]
			}

			if err != nil {
				return
			}
		}
	}(c.in, c.input)
}
