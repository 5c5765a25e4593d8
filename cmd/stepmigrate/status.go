package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	statusHistory      bool
	statusHistoryAll   bool
	statusHistoryLimit int
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show current migration version, applied versions, and optionally history",
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, err := loadConfig(viper.GetViper().GetString("config"))
		if err != nil {
			return err
		}
		if err := doc.SetupLogging(); err != nil {
			return err
		}
		m, err := doc.Migrator()
		if err != nil {
			return err
		}
		info, err := m.Status(cmd.Context())
		if err != nil {
			return err
		}
		if statusHistory {
			_, _ = fmt.Fprint(cmd.OutOrStdout(), info.FormatHumanWithLimit(true, statusHistoryLimit, statusHistoryAll))
		} else {
			_, _ = fmt.Fprint(cmd.OutOrStdout(), info.FormatHuman(false))
		}
		return nil
	},
}

func init() {
	statusCmd.Flags().BoolVar(&statusHistory, "history", false, "show step run history as well")
	statusCmd.Flags().BoolVar(&statusHistoryAll, "history-all", false, "when used with --history, show all history entries (newest first)")
	statusCmd.Flags().IntVar(&statusHistoryLimit, "history-limit", 10, "when used with --history, show up to N latest entries (default 10)")
}
