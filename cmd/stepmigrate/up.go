package main

import (
	"fmt"
	"io"
	"time"

	"github.com/loykin/stepmigrate"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply pending migration steps up to a target version (0 = all)",
	RunE: func(cmd *cobra.Command, args []string) error {
		v := viper.GetViper()
		doc, err := loadConfig(v.GetString("config"))
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
		m.DryRun = v.GetBool("dry_run")

		ctx := cmd.Context()
		if v.GetBool("progress") && !m.DryRun {
			bar := newProgressReporter(cmd.ErrOrStderr(), "converting measures")
			ctx = stepmigrate.WithProgress(ctx, bar)
		}
		results, err := m.MigrateUp(ctx, v.GetInt("to"))
		printResults(cmd.OutOrStdout(), results)
		return err
	},
}

func printResults(w io.Writer, results []*stepmigrate.Result) {
	if len(results) == 0 {
		_, _ = fmt.Fprintln(w, "no pending migration steps")
		return
	}
	for _, r := range results {
		switch {
		case r.DryRun:
			_, _ = fmt.Fprintf(w, "[dry-run] %d %s\n", r.Version, r.Description)
		case r.Err != nil:
			_, _ = fmt.Fprintf(w, "FAILED  %d %s (phase %s): %v\n", r.Version, r.Description, r.Phase, r.Err)
		default:
			_, _ = fmt.Fprintf(w, "applied %d %s (%s)\n", r.Version, r.Description, r.Elapsed.Round(time.Millisecond))
		}
	}
}
