// Package main provides the htif command.
package main

import (
	"github.com/tebeka/atexit"

	"github.com/sarchlab/htif/htif/cmd"
)

func main() {
	atexit.Exit(cmd.Execute())
}
