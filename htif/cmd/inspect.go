package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sarchlab/htif/loader"
	"github.com/sarchlab/htif/mem"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect payload",
	Short: "Print the kind, entry point, segments and symbols of a payload.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rawAddr, _ := cmd.Flags().GetUint64("raw-addr")
		symbols, _ := cmd.Flags().GetBool("symbols")

		p, err := loader.Open(args[0], rawAddr)
		if err != nil {
			exitStatus = StatusFatal
			return err
		}

		return printPayload(cmd.OutOrStdout(), p, symbols)
	},
}

func init() {
	rootCmd.AddCommand(inspectCmd)

	inspectCmd.Flags().Uint64("raw-addr", mem.DRAMBase,
		"Load address of payloads that are not ELF files")
	inspectCmd.Flags().Bool("symbols", false, "List all the symbols")
}

// mailboxSymbols are always shown when present.
var mailboxSymbols = []string{
	"tohost", "fromhost", "begin_signature", "end_signature",
}

func printPayload(w io.Writer, p *loader.Payload, allSymbols bool) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprintf(tw, "Payload:\t%s\n", p.Name)
	fmt.Fprintf(tw, "Kind:\t%s\n", p.Kind)
	fmt.Fprintf(tw, "Entry:\t0x%x\n", p.Entry)

	if p.WordSize != 0 {
		fmt.Fprintf(tw, "Class:\t%d-bit %s\n", p.WordSize*8, p.ByteOrder)
	}

	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "Segment\tAddress\tFile size\tMemory size\tFlags")

	for i, seg := range p.Segments {
		fmt.Fprintf(tw, "%d\t0x%x\t0x%x\t0x%x\t%s\n",
			i, seg.Addr, seg.FileSize(), seg.MemSize, seg.Flags)
	}

	names := p.SymbolNames()
	if !allSymbols {
		names = nil

		for _, name := range mailboxSymbols {
			if _, ok := p.Symbol(name); ok {
				names = append(names, name)
			}
		}
	}

	if len(names) > 0 {
		fmt.Fprintln(tw)
		fmt.Fprintln(tw, "Symbol\tValue")

		for _, name := range names {
			v, _ := p.Symbol(name)
			fmt.Fprintf(tw, "%s\t0x%x\n", name, v)
		}
	}

	return tw.Flush()
}
