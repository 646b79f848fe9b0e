// Package cmd provides the command-line interface of the host bridge.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sarchlab/htif/bridge"
)

// Exit statuses that do not come from the target.
const (
	StatusUsage   = 1
	StatusStopped = 130
	StatusFatal   = 255
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "htif",
	Short: "htif runs target programs that talk to the host through tohost.",
	Long: `htif loads programs into target memory and serves the devices and ` +
		`system calls that the target requests through the tohost and ` +
		`fromhost words.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// exitStatus is set by a command that wants a specific process status.
var exitStatus int

// Execute runs the command line and returns the process exit status.
func Execute() int {
	exitStatus = 0

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(rootCmd.ErrOrStderr(), "htif: %v\n", err)

		if exitStatus == 0 {
			exitStatus = StatusUsage
		}
	}

	return exitStatus
}

// statusOf maps a bridge exit code to a process exit status.
func statusOf(code int) int {
	switch code {
	case bridge.FatalExitCode:
		return StatusFatal
	case bridge.StopExitCode:
		return StatusStopped
	}

	return code
}
