package bridge

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/sarchlab/htif/device"
	"github.com/sarchlab/htif/loader"
	"github.com/sarchlab/htif/mem"
	"github.com/sarchlab/htif/tracing"
)

type failingDevice struct{}

func (failingDevice) Name() string { return "failing" }

func (failingDevice) Handle(device.Command) (device.Response, error) {
	return device.NoResponse, errors.New("disk on fire")
}

type exitingDevice struct {
	code   int
	exited bool
}

func (d *exitingDevice) Name() string { return "exiting" }

func (d *exitingDevice) Handle(cmd device.Command) (device.Response, error) {
	d.code = int(cmd.Arg)
	d.exited = true

	return device.NoResponse, nil
}

func (d *exitingDevice) ExitCode() (int, bool) {
	return d.code, d.exited
}

// rawStatusDevice posts its status without any truncation.
type rawStatusDevice struct {
	status int
	exited bool
}

func (d *rawStatusDevice) Name() string { return "raw-status" }

func (d *rawStatusDevice) Handle(device.Command) (device.Response, error) {
	d.exited = true

	return device.NoResponse, nil
}

func (d *rawStatusDevice) ExitCode() (int, bool) {
	return d.status, d.exited
}

var _ = Describe("Controller", func() {
	var (
		mockCtrl *gomock.Controller
		target   *MockTarget
		memif    *mem.Memif
		registry *device.Registry
		console  *device.Console
		output   *bytes.Buffer
		program  *loader.Payload
		builder  Builder
	)

	encoding := device.DefaultPackedEncoding

	post := func(word uint64) {
		Expect(memif.WriteUint64(toHostAddr, word)).To(Succeed())
	}

	readWord := func(addr uint64) uint64 {
		v, err := memif.ReadUint64(addr)
		Expect(err).NotTo(HaveOccurred())

		return v
	}

	start := func(c *Controller) {
		target.EXPECT().Reset()
		target.EXPECT().Arm(ramBase)
		Expect(c.Start()).To(Succeed())
	}

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		target = NewMockTarget(mockCtrl)
		memif = newTestMemif()
		output = new(bytes.Buffer)

		registry = device.MakeRegistryBuilder().WithMemif(memif).Build()
		console = device.NewConsole("console", nil, output)
		Expect(registry.RegisterAt(0, console)).To(Succeed())

		program = loader.NewRawPayload("prog", []byte{1, 2, 3, 4}, ramBase)

		builder = MakeBuilder().
			WithTarget(target).
			WithMemif(memif).
			WithRegistry(registry).
			WithPayload(program).
			WithMailbox(toHostAddr, fromHostAddr)
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should be created by the builder", func() {
		c := builder.Build("bridge")

		Expect(c.Name()).To(Equal("bridge"))
		Expect(c.State()).To(Equal(StateCreated))
		Expect(c.Done()).To(BeFalse())
	})

	It("should panic without a payload", func() {
		Expect(func() {
			builder.WithPayload(nil).Build("bridge")
		}).To(Panic())
	})

	It("should panic on an unsupported word size", func() {
		Expect(func() {
			builder.WithWordSize(2).Build("bridge")
		}).To(Panic())
	})

	It("should load and start the target", func() {
		c := builder.Build("bridge")

		start(c)

		Expect(c.State()).To(Equal(StateRunning))
		Expect(c.Entry()).To(Equal(ramBase))
		Expect(registry.IsSealed()).To(BeTrue())

		buf := make([]byte, 4)
		Expect(memif.Read(ramBase, buf)).To(Succeed())
		Expect(buf).To(Equal([]byte{1, 2, 3, 4}))
	})

	It("should arm the target at the entry override", func() {
		c := builder.WithEntry(ramBase + 0x100).Build("bridge")

		target.EXPECT().Reset()
		target.EXPECT().Arm(ramBase + 0x100)

		Expect(c.Start()).To(Succeed())
	})

	It("should stage a load before starting", func() {
		c := builder.Build("bridge")

		target.EXPECT().Reset()
		Expect(c.Load()).To(Succeed())
		Expect(c.State()).To(Equal(StateLoaded))

		target.EXPECT().Arm(ramBase)
		Expect(c.Start()).To(Succeed())
		Expect(c.State()).To(Equal(StateRunning))
	})

	It("should refuse to step before it starts", func() {
		c := builder.Build("bridge")

		Expect(c.Step()).To(MatchError(ErrInvalidState))
	})

	It("should panic when the exit code is asked too early", func() {
		c := builder.Build("bridge")

		Expect(func() { c.ExitCode() }).To(Panic())
	})

	It("should fail to load a payload outside memory", func() {
		outside := loader.NewRawPayload("far", []byte{1}, 0x10)
		c := builder.WithPayload(outside).Build("bridge")

		target.EXPECT().Reset()

		err := c.Start()

		var loadErr *loader.LoadError
		Expect(errors.As(err, &loadErr)).To(BeTrue())
		Expect(c.Done()).To(BeTrue())
		Expect(c.ExitCode()).To(Equal(FatalExitCode))
		Expect(c.Fault()).To(HaveOccurred())
	})

	It("should need a mailbox", func() {
		c := MakeBuilder().
			WithTarget(target).
			WithMemif(memif).
			WithRegistry(registry).
			WithPayload(program).
			Build("bridge")

		target.EXPECT().Reset()

		Expect(c.Start()).To(MatchError(ErrNoMailbox))
		Expect(c.ExitCode()).To(Equal(FatalExitCode))
	})

	It("should reject a mailbox outside memory", func() {
		c := builder.WithMailbox(0x10, 0x20).Build("bridge")

		target.EXPECT().Reset()

		Expect(c.Start()).To(MatchError(mem.ErrOutOfRange))
	})

	It("should report a target that fails to reset", func() {
		c := builder.Build("bridge")

		target.EXPECT().Reset().Return(errors.New("stuck"))

		err := c.Start()

		var fault *TargetFault
		Expect(errors.As(err, &fault)).To(BeTrue())
		Expect(fault.Op).To(Equal("reset"))
	})

	It("should do nothing while the to-host word is clear", func() {
		c := builder.Build("bridge")
		start(c)

		target.EXPECT().Idle()

		Expect(c.Step()).To(Succeed())
		Expect(c.State()).To(Equal(StateRunning))
		Expect(c.Stats().Steps).To(Equal(uint64(1)))
		Expect(c.CurrentTime()).To(Equal(tracing.VTime(1)))
	})

	It("should stop when the target posts an exit code", func() {
		c := builder.Build("bridge")
		start(c)

		target.EXPECT().Idle().DoAndReturn(func() error {
			post(encoding.EncodeExit(41))
			return nil
		})

		Expect(c.Step()).To(Succeed())
		Expect(c.Done()).To(BeTrue())
		Expect(c.ExitCode()).To(Equal(41))
		Expect(readWord(toHostAddr)).To(BeZero())
		Expect(readWord(fromHostAddr)).To(BeZero())
	})

	It("should acknowledge the exit if asked to", func() {
		c := builder.WithExitAcknowledge().Build("bridge")
		start(c)

		target.EXPECT().Idle().DoAndReturn(func() error {
			post(encoding.EncodeExit(0))
			return nil
		})

		Expect(c.Step()).To(Succeed())
		Expect(readWord(fromHostAddr)).To(Equal(uint64(1)))
	})

	It("should serve a console write", func() {
		c := builder.Build("bridge")
		start(c)

		cmd := device.Command{Slot: 0, Cmd: device.ConsoleCmdWrite, Arg: 'A'}
		target.EXPECT().Idle().DoAndReturn(func() error {
			post(encoding.EncodeCommand(cmd))
			return nil
		})

		Expect(c.Step()).To(Succeed())
		Expect(output.String()).To(Equal("A"))
		Expect(readWord(toHostAddr)).To(BeZero())
		Expect(readWord(fromHostAddr)).To(
			Equal(encoding.EncodeResponse(cmd, 0x100|'A')))
		Expect(c.Stats().Responses).To(Equal(uint64(1)))
	})

	It("should queue responses until the target consumes them", func() {
		c := builder.Build("bridge")
		start(c)

		first := device.Command{Cmd: device.ConsoleCmdWrite, Arg: 'x'}
		second := device.Command{Cmd: device.ConsoleCmdWrite, Arg: 'y'}

		gomock.InOrder(
			target.EXPECT().Idle().DoAndReturn(func() error {
				post(encoding.EncodeCommand(first))
				return nil
			}),
			target.EXPECT().Idle().DoAndReturn(func() error {
				post(encoding.EncodeCommand(second))
				return nil
			}),
			target.EXPECT().Idle().DoAndReturn(func() error {
				return memif.WriteUint64(fromHostAddr, 0)
			}),
		)

		Expect(c.Step()).To(Succeed())
		Expect(c.Step()).To(Succeed())
		Expect(readWord(fromHostAddr)).To(
			Equal(encoding.EncodeResponse(first, 0x100|'x')))

		Expect(c.Step()).To(Succeed())
		Expect(readWord(fromHostAddr)).To(
			Equal(encoding.EncodeResponse(second, 0x100|'y')))
		Expect(output.String()).To(Equal("xy"))
	})

	It("should carry on after a command for an empty slot", func() {
		c := builder.Build("bridge")
		start(c)

		target.EXPECT().Idle().DoAndReturn(func() error {
			post(encoding.EncodeCommand(device.Command{Slot: 5, Cmd: 1}))
			return nil
		})

		Expect(c.Step()).To(Succeed())
		Expect(c.State()).To(Equal(StateRunning))
		Expect(c.Stats().ProtocolErrors).To(Equal(uint64(1)))
		Expect(registry.UnknownCommands()).To(Equal(uint64(1)))
		Expect(readWord(toHostAddr)).To(BeZero())
	})

	It("should stop with a fatal exit code when a device fails", func() {
		Expect(registry.RegisterAt(1, failingDevice{})).To(Succeed())

		c := builder.Build("bridge")
		start(c)

		target.EXPECT().Idle().DoAndReturn(func() error {
			post(encoding.EncodeCommand(device.Command{Slot: 1}))
			return nil
		})

		err := c.Step()

		var fault *DeviceFault
		Expect(errors.As(err, &fault)).To(BeTrue())
		Expect(fault.Device).To(Equal("failing"))
		Expect(c.Done()).To(BeTrue())
		Expect(c.ExitCode()).To(Equal(FatalExitCode))
	})

	It("should stop with a fatal exit code when the target fails", func() {
		c := builder.Build("bridge")
		start(c)

		target.EXPECT().Idle().Return(errors.New("illegal instruction"))

		var fault *TargetFault
		Expect(errors.As(c.Step(), &fault)).To(BeTrue())
		Expect(c.ExitCode()).To(Equal(FatalExitCode))
	})

	It("should stop when a device takes the exit", func() {
		d := &exitingDevice{}
		Expect(registry.RegisterAt(2, d)).To(Succeed())

		c := builder.Build("bridge")
		start(c)

		target.EXPECT().Idle().DoAndReturn(func() error {
			post(encoding.EncodeCommand(device.Command{Slot: 2, Arg: 3}))
			return nil
		})

		Expect(c.Step()).To(Succeed())
		Expect(c.ExitCode()).To(Equal(3))
	})

	It("should not let a device post a fatal exit code", func() {
		d := &rawStatusDevice{status: FatalExitCode}
		Expect(registry.RegisterAt(2, d)).To(Succeed())

		c := builder.Build("bridge")
		start(c)

		target.EXPECT().Idle().DoAndReturn(func() error {
			post(encoding.EncodeCommand(device.Command{Slot: 2}))
			return nil
		})

		Expect(c.Step()).To(Succeed())
		Expect(c.Done()).To(BeTrue())
		Expect(c.Fault()).To(BeNil())
		Expect(c.ExitCode()).To(Equal(255))
	})

	It("should identify devices", func() {
		c := builder.Build("bridge")
		start(c)

		cmd := device.Command{
			Slot:    0,
			Cmd:     encoding.MaxCmd(),
			Payload: scratchAddr,
		}
		target.EXPECT().Idle().DoAndReturn(func() error {
			post(encoding.EncodeCommand(cmd))
			return nil
		})

		Expect(c.Step()).To(Succeed())

		name, err := memif.ReadCString(scratchAddr, device.IdentityNameSize)
		Expect(err).NotTo(HaveOccurred())
		Expect(name).To(Equal("console"))
	})

	It("should keep the boot image over an overlapping payload", func() {
		boot := StaticBootImage{Addr: bootAddr, Data: []byte{0xaa, 0xbb}}
		overlay := loader.NewRawPayload("overlay", []byte{1, 1}, bootAddr)

		c := builder.
			WithBootImage(boot).
			WithSecondaryPayloads(overlay).
			Build("bridge")
		start(c)

		buf := make([]byte, 2)
		Expect(memif.Read(bootAddr, buf)).To(Succeed())
		Expect(buf).To(Equal([]byte{0xaa, 0xbb}))
	})

	It("should dump the signature when the run ends", func() {
		sig := device.NewSignatureDevice("signature", memif)
		sig.SetRange(scratchAddr, scratchAddr+8)
		Expect(registry.RegisterAt(1, sig)).To(Succeed())

		path := filepath.Join(GinkgoT().TempDir(), "run.signature")
		c := builder.WithSignature(path, 4).Build("bridge")
		start(c)

		target.EXPECT().Idle().DoAndReturn(func() error {
			Expect(memif.Write(scratchAddr,
				[]byte{1, 2, 3, 4, 5, 6, 7, 8})).To(Succeed())
			post(encoding.EncodeExit(0))

			return nil
		})

		Expect(c.Step()).To(Succeed())

		content, err := os.ReadFile(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(content)).To(Equal("04030201\n08070605\n"))
	})

	It("should stop from the host", func() {
		c := builder.Build("bridge")
		start(c)

		c.Stop()

		Expect(c.Done()).To(BeTrue())
		Expect(c.ExitCode()).To(Equal(StopExitCode))
		Expect(c.Step()).To(MatchError(ErrInvalidState))
	})

	It("should run until the target exits", func() {
		c := builder.Build("bridge")
		start(c)

		n := 0
		target.EXPECT().Idle().DoAndReturn(func() error {
			n++
			if n == 10 {
				post(encoding.EncodeExit(7))
			}

			return nil
		}).Times(10)

		Expect(c.Run(context.Background())).To(Succeed())
		Expect(c.ExitCode()).To(Equal(7))
		Expect(c.Stats().Steps).To(Equal(uint64(10)))
	})

	It("should be stopped by another goroutine", func() {
		c := builder.Build("bridge")
		start(c)

		target.EXPECT().Idle().AnyTimes()

		done := make(chan error)
		go func() {
			done <- c.Run(context.Background())
		}()

		Eventually(func() uint64 { return c.Stats().Steps }).
			Should(BeNumerically(">", 0))
		c.Stop()

		Eventually(done).Should(Receive(BeNil()))
		Expect(c.ExitCode()).To(Equal(StopExitCode))
	})

	It("should stop when the context is cancelled", func() {
		c := builder.Build("bridge")
		start(c)

		ctx, cancel := context.WithCancel(context.Background())
		target.EXPECT().Idle().DoAndReturn(func() error {
			cancel()
			return nil
		})

		Expect(c.Run(ctx)).To(MatchError(context.Canceled))
		Expect(c.ExitCode()).To(Equal(StopExitCode))
	})

	It("should trace dispatched commands", func() {
		c := builder.Build("bridge")
		tracer := tracing.NewStepCountTracer(tracing.AllTasks)
		tracing.CollectTrace(c, tracer)
		start(c)

		target.EXPECT().Idle().DoAndReturn(func() error {
			post(encoding.EncodeCommand(
				device.Command{Cmd: device.ConsoleCmdWrite, Arg: 'z'}))
			return nil
		})

		Expect(c.Step()).To(Succeed())
		Expect(tracer.CompletedTasks("dispatch")).To(Equal(uint64(1)))
		Expect(tracer.TaskCount("respond")).To(Equal(uint64(1)))
	})
})
