package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:           "stepmigrate",
	Short:         "Apply versioned data migration steps to a quality-metrics database",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	// Defaults
	v := viper.GetViper()
	v.SetDefault("config", defaultConfigPath)
	v.SetDefault("to", 0)
	v.SetDefault("dry_run", false)
	v.SetDefault("progress", false)

	// Environment variables support: STEPMIGRATE_CONFIG, STEPMIGRATE_TO, ...
	v.SetEnvPrefix("STEPMIGRATE")
	v.AutomaticEnv()
	// Bind flags via Cobra and then bind to Viper
	rootCmd.PersistentFlags().String("config", v.GetString("config"), "path to a config yaml")
	upCmd.Flags().Int("to", v.GetInt("to"), "target version to migrate up to (0 = all)")
	upCmd.Flags().Bool("dry-run", v.GetBool("dry_run"), "list the steps that would run without executing them")
	upCmd.Flags().Bool("progress", v.GetBool("progress"), "render a progress bar for bulk data transforms")

	_ = v.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = v.BindPFlag("to", upCmd.Flags().Lookup("to"))
	_ = v.BindPFlag("dry_run", upCmd.Flags().Lookup("dry-run"))
	_ = v.BindPFlag("progress", upCmd.Flags().Lookup("progress"))

	rootCmd.AddCommand(upCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(listCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		exitHandler.LogFatalError(err, "command execution failed")
	}
}
