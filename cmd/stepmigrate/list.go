package main

import (
	"fmt"
	"io"

	"github.com/loykin/stepmigrate"
	"github.com/loykin/stepmigrate/internal/step"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List known migration steps and whether they are applied",
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
		steps, err := m.Steps()
		if err != nil {
			return err
		}
		pending, err := m.Pending(cmd.Context())
		if err != nil {
			return err
		}
		printSteps(cmd.OutOrStdout(), steps, pending)
		return nil
	},
}

type actionLister interface {
	Actions() []step.Action
}

func printSteps(w io.Writer, steps, pending []stepmigrate.Step) {
	isPending := map[int]bool{}
	for _, s := range pending {
		isPending[s.Version()] = true
	}
	for _, s := range steps {
		state := "applied"
		if isPending[s.Version()] {
			state = "pending"
		}
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\n", s.Version(), state, s.Description())
		if al, ok := s.(actionLister); ok {
			for _, a := range al.Actions() {
				_, _ = fmt.Fprintf(w, "\t- %s: %s\n", a.Phase, a.Summary)
			}
		}
	}
}
