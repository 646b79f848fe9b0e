package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"

	"github.com/sarchlab/htif/bridge"
	"github.com/sarchlab/htif/config"
	"github.com/sarchlab/htif/datarecording"
	"github.com/sarchlab/htif/device"
	"github.com/sarchlab/htif/hostfs"
	"github.com/sarchlab/htif/idgen"
	"github.com/sarchlab/htif/loader"
	"github.com/sarchlab/htif/mem"
	"github.com/sarchlab/htif/monitoring"
	"github.com/sarchlab/htif/syscallproxy"
	"github.com/sarchlab/htif/tracing"
)

// Device slots. The syscall proxy and the console sit where target
// software expects them.
const (
	slotSyscall = 0
	slotConsole = 1
)

type stdio struct {
	in     io.Reader
	out    io.Writer
	errOut io.Writer
}

// A session is one bridge run and everything attached to it.
type session struct {
	cfg        config.Config
	memif      *mem.Memif
	registry   *device.Registry
	proxy      *syscallproxy.Proxy
	target     *bridge.ReplayTarget
	controller *bridge.Controller

	recorder    datarecording.DataRecorder
	runRecorder *datarecording.RunRecorder
	tracer      *tracing.DBTracer
	monitor     *monitoring.Monitor

	notices io.Writer
}

func newSession(cfg config.Config, sio stdio) (*session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &session{cfg: cfg, notices: io.Discard}

	payloads, err := openPayloads(cfg)
	if err != nil {
		return nil, err
	}

	primary := payloads[0]
	wordSize := cfg.WordSize

	if wordSize == 0 {
		wordSize = primary.WordSize
	}

	if wordSize == 0 {
		wordSize = 8
	}

	if err := s.buildMemory(primary); err != nil {
		return nil, err
	}

	if err := s.buildDevices(wordSize, sio); err != nil {
		return nil, err
	}

	if err := s.buildTarget(); err != nil {
		return nil, err
	}

	b, err := s.bridgeBuilder(payloads, wordSize)
	if err != nil {
		return nil, err
	}

	s.controller = b.Build("bridge")

	s.attachRecording()

	return s, nil
}

func openPayloads(cfg config.Config) ([]*loader.Payload, error) {
	payloads := make([]*loader.Payload, 0, len(cfg.Payloads))

	for _, path := range cfg.Payloads {
		p, err := loader.Open(path, cfg.RawAddr)
		if err != nil {
			return nil, err
		}

		payloads = append(payloads, p)
	}

	return payloads, nil
}

func (s *session) buildMemory(primary *loader.Payload) error {
	specs, err := mem.ParseRegions(s.cfg.Memory)
	if err != nil {
		return &config.Error{Field: "memory", Reason: err.Error()}
	}

	space, err := mem.BuildAddressSpace(specs)
	if err != nil {
		return &config.Error{Field: "memory", Reason: err.Error()}
	}

	transport, err := mem.NewAddressSpaceTransport(space,
		mem.DefaultChunkGeometry)
	if err != nil {
		return err
	}

	chunked, err := mem.NewChunkedMemory(transport)
	if err != nil {
		return err
	}

	s.memif = mem.NewMemif(chunked, primary.ByteOrder)

	return nil
}

func (s *session) buildDevices(wordSize int, sio stdio) error {
	encoding, err := device.EncodingByName(s.cfg.Encoding)
	if err != nil {
		return &config.Error{Field: "encoding", Reason: err.Error()}
	}

	abi, err := syscallproxy.ABIByName(s.cfg.ABI)
	if err != nil {
		return &config.Error{Field: "abi", Reason: err.Error()}
	}

	fsys, err := hostfs.NewDirFS(s.cfg.Chroot)
	if err != nil {
		return &config.Error{Field: "chroot", Reason: err.Error()}
	}

	argv := s.cfg.Args
	if len(argv) == 0 {
		argv = s.cfg.Payloads[:1]
	}

	s.registry = device.MakeRegistryBuilder().
		WithEncoding(encoding).
		WithMemif(s.memif).
		Build()

	s.proxy = syscallproxy.MakeBuilder().
		WithMemif(s.memif).
		WithSandbox(hostfs.NewSandbox(fsys)).
		WithABI(abi).
		WithWordSize(wordSize).
		WithArgs(argv).
		WithStdio(sio.in, sio.out, sio.errOut).
		Build("syscall")

	if err := s.registry.RegisterAt(slotSyscall, s.proxy); err != nil {
		return err
	}

	console := device.NewConsole("console", sio.in, sio.out)
	if err := s.registry.RegisterAt(slotConsole, console); err != nil {
		return err
	}

	factories := device.NewFactorySet()
	for _, spec := range s.cfg.Devices {
		d, err := factories.Create(spec, s.memif)
		if err != nil {
			return &config.Error{Field: "device", Reason: err.Error()}
		}

		if _, err := s.registry.Register(d); err != nil {
			return &config.Error{Field: "device", Reason: err.Error()}
		}
	}

	return nil
}

func (s *session) buildTarget() error {
	if s.cfg.Replay == "" {
		return &config.Error{
			Field:  "replay",
			Reason: "a replay script is needed to drive the target",
		}
	}

	f, err := os.Open(s.cfg.Replay)
	if err != nil {
		return &config.Error{Field: "replay", Reason: err.Error()}
	}
	defer f.Close()

	ops, err := bridge.ParseReplay(f)
	if err != nil {
		return &config.Error{Field: "replay", Reason: err.Error()}
	}

	s.target = bridge.NewReplayTarget(ops, s.memif, s.registry.Encoding())

	return nil
}

func (s *session) bridgeBuilder(
	payloads []*loader.Payload,
	wordSize int,
) (bridge.Builder, error) {
	zeroFill, err := loader.ParseZeroFill(s.cfg.ZeroFill)
	if err != nil {
		return bridge.Builder{}, &config.Error{
			Field:  "zero-fill",
			Reason: err.Error(),
		}
	}

	b := bridge.MakeBuilder().
		WithTarget(s.target).
		WithMemif(s.memif).
		WithRegistry(s.registry).
		WithPayload(payloads[0]).
		WithSecondaryPayloads(payloads[1:]...).
		WithZeroFill(zeroFill).
		WithWordSize(wordSize)

	if s.cfg.Entry != nil {
		b = b.WithEntry(*s.cfg.Entry)
	}

	if s.cfg.ToHost != 0 {
		b = b.WithMailbox(s.cfg.ToHost, s.cfg.FromHost)
	}

	if s.cfg.Signature != "" {
		b = b.WithSignature(s.cfg.Signature, s.cfg.SignatureGranularity)
	}

	if s.cfg.BootImage != "" {
		data, err := os.ReadFile(s.cfg.BootImage)
		if err != nil {
			return bridge.Builder{}, &config.Error{
				Field:  "boot-image",
				Reason: err.Error(),
			}
		}

		b = b.WithBootImage(bridge.StaticBootImage{
			Addr: s.cfg.BootAddr,
			Data: data,
		})
	}

	if s.cfg.Record != "" {
		b = b.WithIDGenerator(idgen.NewUnique())
	}

	return b, nil
}

func (s *session) attachRecording() {
	if s.cfg.Record == "" {
		return
	}

	s.recorder = datarecording.New(s.cfg.Record)
	s.runRecorder = datarecording.NewRunRecorder(s.recorder)
	s.runRecorder.Start()

	s.tracer = tracing.NewDBTracer(s.controller, s.recorder)
	tracing.CollectTrace(s.controller, s.tracer)

	s.proxy.AcceptHook(syscallproxy.NewSyscallRecorder(s.recorder))
}

func (s *session) startMonitor() error {
	if !s.cfg.Monitor {
		return nil
	}

	s.monitor = monitoring.NewMonitor().WithPortNumber(s.cfg.MonitorPort)
	s.monitor.RegisterBridge(s.controller)

	url, err := s.monitor.StartServer()
	if err != nil {
		return err
	}

	if s.cfg.OpenMonitor {
		if err := s.monitor.OpenInBrowser(url); err != nil {
			log.Printf("htif: cannot open the monitor: %v", err)
		}
	}

	return nil
}

// run drives the bridge to the end and returns its exit code. A cancelled
// context stops the bridge without an error.
func (s *session) run(ctx context.Context) (int, error) {
	if err := s.startMonitor(); err != nil {
		return bridge.FatalExitCode, err
	}

	if err := s.controller.Start(); err != nil {
		if !s.controller.Done() {
			s.controller.Stop()
		}

		return s.controller.ExitCode(), err
	}

	fmt.Fprintf(s.notices, "htif: %s\n", s.describe())

	err := s.controller.Run(ctx)
	if errors.Is(err, context.Canceled) {
		err = nil
	}

	if !s.controller.Done() {
		s.controller.Stop()
	}

	return s.controller.ExitCode(), err
}

// close releases the host resources of the session and writes the records.
func (s *session) close(code int) {
	s.proxy.Close()

	if s.monitor != nil {
		if err := s.monitor.Close(); err != nil {
			log.Printf("htif: %v", err)
		}
	}

	if s.recorder == nil {
		return
	}

	s.tracer.Terminate()

	stats := s.controller.Stats()
	s.runRecorder.Add("Exit Code", strconv.Itoa(code))
	s.runRecorder.Add("Steps", strconv.FormatUint(stats.Steps, 10))
	s.runRecorder.Add("Commands", strconv.FormatUint(stats.Commands, 10))
	s.runRecorder.Add("Protocol Errors",
		strconv.FormatUint(stats.ProtocolErrors, 10))
	s.runRecorder.Add("Syscalls", strconv.FormatUint(s.proxy.NumCalls(), 10))
	s.runRecorder.End()

	if err := s.recorder.Close(); err != nil {
		log.Printf("htif: %v", err)
	}
}

func (s *session) describe() string {
	m := s.controller.Mailbox()

	return fmt.Sprintf("entry 0x%x, tohost 0x%x, fromhost 0x%x",
		s.controller.Entry(), m.ToHost, m.FromHost)
}
