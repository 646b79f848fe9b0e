package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/sarchlab/htif/config"
)

var runCmd = &cobra.Command{
	Use:   "run [flags] [++key=value ...] payload [target args ...]",
	Short: "Load payloads and serve the requests of the target.",
	Long: "`run` loads the payload into target memory and drives the target " +
		"with a replay script, serving its device commands and system calls " +
		"until it posts an exit code.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := configFromCommand(cmd, args)
		if err != nil {
			exitStatus = StatusUsage
			return err
		}

		status, err := runSession(cmd, cfg)
		exitStatus = status

		return err
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	def := config.Default()
	f := runCmd.Flags()

	f.SetInterspersed(false)
	f.String("env-file", "", "Load HTIF_* variables from this dotenv file")
	f.String("memory", def.Memory,
		"Memory size in MiB, or base:size regions separated by commas")
	f.StringArray("payload", nil, "Load an extra payload after the primary one")
	f.String("raw-addr", fmt.Sprintf("%#x", def.RawAddr),
		"Load address of payloads that are not ELF files")
	f.String("entry", "", "Override the entry point")
	f.String("zero-fill", def.ZeroFill, "Zero-fill policy: always or never")
	f.String("boot-image", "", "Blob installed before the payloads")
	f.String("boot-addr", fmt.Sprintf("%#x", def.BootAddr),
		"Install address of the boot image")
	f.String("tohost", "", "Address of the tohost word")
	f.String("fromhost", "", "Address of the fromhost word")
	f.Int("word-size", def.WordSize,
		"Mailbox and syscall word size in bytes, 0 to follow the payload")
	f.String("encoding", def.Encoding, "Layout of the tohost word")
	f.String("abi", def.ABI, "System call table")
	f.String("chroot", def.Chroot, "Host directory that holds target files")
	f.StringArray("device", nil, "Add a device given as kind[:args]")
	f.String("signature", "", "Write the signature to this file")
	f.Int("signature-granularity", def.SignatureGranularity,
		"Bytes per signature line")
	f.String("replay", "", "Script that drives the target")
	f.String("record", "", "Record a trace into this SQLite file")
	f.Bool("monitor", false, "Serve the monitor over HTTP")
	f.Int("monitor-port", 0, "Port of the monitor, 0 for any")
	f.Bool("open-monitor", false, "Open the monitor in a browser")
	f.BoolP("verbose", "v", false, "Print the entry point and mailbox")
}

// configFromCommand layers the defaults, the environment, the flags that were
// given and the positional arguments.
func configFromCommand(cmd *cobra.Command, args []string) (config.Config, error) {
	cfg := config.Default()
	f := cmd.Flags()

	envFile, _ := f.GetString("env-file")

	var envFiles []string
	if envFile != "" {
		envFiles = append(envFiles, envFile)
	}

	if err := config.LoadEnvFiles(envFiles...); err != nil {
		return cfg, err
	}

	if err := cfg.ApplyEnv(); err != nil {
		return cfg, err
	}

	if err := applyFlags(cmd, &cfg); err != nil {
		return cfg, err
	}

	rest, err := cfg.SplitDirectives(args)
	if err != nil {
		return cfg, err
	}

	if len(rest) > 0 {
		extra, _ := f.GetStringArray("payload")
		cfg.Payloads = append([]string{rest[0]}, extra...)
		cfg.Args = rest
	}

	return cfg, nil
}

func applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	f := cmd.Flags()

	strs := map[string]*string{
		"memory":     &cfg.Memory,
		"zero-fill":  &cfg.ZeroFill,
		"boot-image": &cfg.BootImage,
		"encoding":   &cfg.Encoding,
		"abi":        &cfg.ABI,
		"chroot":     &cfg.Chroot,
		"signature":  &cfg.Signature,
		"replay":     &cfg.Replay,
		"record":     &cfg.Record,
	}

	for name, dst := range strs {
		if f.Changed(name) {
			*dst, _ = f.GetString(name)
		}
	}

	addrs := map[string]*uint64{
		"raw-addr":  &cfg.RawAddr,
		"boot-addr": &cfg.BootAddr,
		"tohost":    &cfg.ToHost,
		"fromhost":  &cfg.FromHost,
	}

	for name, dst := range addrs {
		if !f.Changed(name) {
			continue
		}

		s, _ := f.GetString(name)

		addr, err := config.ParseAddress(s)
		if err != nil {
			return &config.Error{Field: name, Reason: err.Error()}
		}

		*dst = addr
	}

	if f.Changed("entry") {
		s, _ := f.GetString("entry")

		entry, err := config.ParseAddress(s)
		if err != nil {
			return &config.Error{Field: "entry", Reason: err.Error()}
		}

		cfg.Entry = &entry
	}

	ints := map[string]*int{
		"word-size":             &cfg.WordSize,
		"signature-granularity": &cfg.SignatureGranularity,
		"monitor-port":          &cfg.MonitorPort,
	}

	for name, dst := range ints {
		if f.Changed(name) {
			*dst, _ = f.GetInt(name)
		}
	}

	if f.Changed("device") {
		cfg.Devices, _ = f.GetStringArray("device")
	}

	if f.Changed("monitor") || f.Changed("monitor-port") {
		cfg.Monitor, _ = f.GetBool("monitor")
		cfg.Monitor = cfg.Monitor || f.Changed("monitor-port")
	}

	cfg.OpenMonitor, _ = f.GetBool("open-monitor")
	if cfg.OpenMonitor {
		cfg.Monitor = true
	}

	return nil
}

func runSession(cmd *cobra.Command, cfg config.Config) (int, error) {
	s, err := newSession(cfg, stdio{
		in:     cmd.InOrStdin(),
		out:    cmd.OutOrStdout(),
		errOut: cmd.ErrOrStderr(),
	})
	if err != nil {
		var cfgErr *config.Error
		if errors.As(err, &cfgErr) {
			return StatusUsage, err
		}

		return StatusFatal, err
	}

	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		s.notices = cmd.ErrOrStderr()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	code, err := s.run(ctx)
	s.close(code)

	return statusOf(code), err
}
