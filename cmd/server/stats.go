package main

import (
	"fmt"
	"io"
	"sort"

	"oee-copilot/pkg/models"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print the total number of status log rows and rows per equipment",
	Long: `Print row counts using an explicit count query.

Use this to check whether the stored row count exceeds the store's default page size.`,
	Args: cobra.NoArgs,
	RunE: runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, _ []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.Close()

	stats, err := a.Store.LogStats(commandContext(cmd))
	if err != nil {
		return err
	}
	writeStats(cmd.OutOrStdout(), stats, a.Config.HistoryRowLimit)
	return nil
}

func writeStats(w io.Writer, stats models.LogStats, historyLimit int) {
	fmt.Fprintf(w, "Total rows: %d\n", stats.TotalRows)

	names := make([]string, 0, len(stats.ByEquipment))
	for name := range stats.ByEquipment {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-30s %d\n", name, stats.ByEquipment[name])
	}

	if historyLimit > 0 && stats.TotalRows > historyLimit {
		fmt.Fprintf(w, "Warning: only the latest %d rows are used for analysis (HISTORY_ROW_LIMIT)\n", historyLimit)
	}
}
