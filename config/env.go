package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// The environment variables a run reads.
const (
	EnvChroot      = "HTIF_CHROOT"
	EnvSignature   = "HTIF_SIGNATURE"
	EnvMemory      = "HTIF_MEMORY"
	EnvPayloads    = "HTIF_PAYLOADS"
	EnvToHost      = "HTIF_TOHOST"
	EnvFromHost    = "HTIF_FROMHOST"
	EnvEncoding    = "HTIF_ENCODING"
	EnvABI         = "HTIF_ABI"
	EnvZeroFill    = "HTIF_ZERO_FILL"
	EnvMonitorPort = "HTIF_MONITOR_PORT"
	EnvRecord      = "HTIF_RECORD"
)

// DefaultEnvFile is loaded when it exists and no other file is named.
const DefaultEnvFile = ".env"

// LoadEnvFiles loads variables from dotenv files into the process
// environment. Variables that are already set win. Without files, .env is
// loaded if it exists.
func LoadEnvFiles(files ...string) error {
	if len(files) == 0 {
		if _, err := os.Stat(DefaultEnvFile); errors.Is(err, fs.ErrNotExist) {
			return nil
		}

		files = []string{DefaultEnvFile}
	}

	if err := godotenv.Load(files...); err != nil {
		return &Error{Field: "env", Reason: err.Error()}
	}

	return nil
}

// ApplyEnv overrides settings with the HTIF_* variables of the process.
func (c *Config) ApplyEnv() error {
	env := map[string]string{}

	for _, key := range []string{
		EnvChroot, EnvSignature, EnvMemory, EnvPayloads, EnvToHost,
		EnvFromHost, EnvEncoding, EnvABI, EnvZeroFill, EnvMonitorPort,
		EnvRecord,
	} {
		if v, ok := os.LookupEnv(key); ok {
			env[key] = v
		}
	}

	return c.ApplyEnvMap(env)
}

// ApplyEnvMap overrides settings with the HTIF_* entries of env.
func (c *Config) ApplyEnvMap(env map[string]string) error {
	strs := map[string]*string{
		EnvChroot:    &c.Chroot,
		EnvSignature: &c.Signature,
		EnvMemory:    &c.Memory,
		EnvEncoding:  &c.Encoding,
		EnvABI:       &c.ABI,
		EnvZeroFill:  &c.ZeroFill,
		EnvRecord:    &c.Record,
	}

	for key, dst := range strs {
		if v, ok := env[key]; ok {
			*dst = v
		}
	}

	if v, ok := env[EnvPayloads]; ok {
		c.Payloads = splitList(v)
	}

	addrs := map[string]*uint64{
		EnvToHost:   &c.ToHost,
		EnvFromHost: &c.FromHost,
	}

	for key, dst := range addrs {
		v, ok := env[key]
		if !ok {
			continue
		}

		addr, err := ParseAddress(v)
		if err != nil {
			return &Error{Field: key, Reason: err.Error()}
		}

		*dst = addr
	}

	if v, ok := env[EnvMonitorPort]; ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return &Error{
				Field:  EnvMonitorPort,
				Reason: fmt.Sprintf("%q is not a number", v),
			}
		}

		c.MonitorPort = port
		c.Monitor = true
	}

	return nil
}

func splitList(s string) []string {
	var items []string

	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}

	return items
}
