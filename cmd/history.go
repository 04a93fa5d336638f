package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sells-group/medcode-cli/internal/pipeline"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show appended performance logs, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		logs, err := st.ListPerformanceLogs(ctx, historyLimit)
		if err != nil {
			return err
		}
		_, err = fmt.Fprint(cmd.OutOrStdout(), pipeline.FormatHistory(logs))
		return err
	},
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "number of runs to show (0 for all)")
	rootCmd.AddCommand(historyCmd)
}
