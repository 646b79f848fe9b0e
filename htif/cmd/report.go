package cmd

import (
	"context"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sarchlab/htif/datarecording"
	"github.com/sarchlab/htif/syscallproxy"
)

var reportCmd = &cobra.Command{
	Use:   "report database",
	Short: "Summarize a run recorded with run --record.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reader, err := datarecording.NewReader(args[0])
		if err != nil {
			return err
		}
		defer reader.Close()

		return printReport(cmd.Context(), cmd.OutOrStdout(), reader)
	},
}

func init() {
	rootCmd.AddCommand(reportCmd)
}

func printReport(
	ctx context.Context,
	w io.Writer,
	reader datarecording.DataReader,
) error {
	if ctx == nil {
		ctx = context.Background()
	}

	reader.MapTable(datarecording.RunInfoTable, datarecording.RunInfo{})
	reader.MapTable(syscallproxy.SyscallTable, syscallproxy.SyscallRecord{})

	infos, _, err := reader.Query(ctx, datarecording.RunInfoTable,
		datarecording.QueryParams{})
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	for _, row := range infos {
		info := row.(*datarecording.RunInfo)
		fmt.Fprintf(tw, "%s:\t%s\n", info.Property, info.Value)
	}

	calls, total, err := reader.Query(ctx, syscallproxy.SyscallTable,
		datarecording.QueryParams{})
	if err != nil {
		return err
	}

	if total > 0 {
		counts := map[string]int{}
		failed := map[string]int{}

		for _, row := range calls {
			rec := row.(*syscallproxy.SyscallRecord)
			counts[rec.Call]++

			if rec.Result < 0 {
				failed[rec.Call]++
			}
		}

		names := make([]string, 0, len(counts))
		for name := range counts {
			names = append(names, name)
		}

		sort.Strings(names)

		fmt.Fprintln(tw)
		fmt.Fprintln(tw, "Syscall\tCalls\tFailed")

		for _, name := range names {
			fmt.Fprintf(tw, "%s\t%d\t%d\n", name, counts[name], failed[name])
		}
	}

	return tw.Flush()
}
