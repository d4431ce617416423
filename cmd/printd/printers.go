package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/orrn/printd/internal/spooler"
)

func newPrintersCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "printers",
		Short: "List the printers known to the local spooler",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			sp, err := spooler.New(cfg.Spooler.Backend, cfg.Spooler.LpstatPath)
			if err != nil {
				return err
			}

			printers, err := sp.Printers(cmd.Context())
			if err != nil {
				return fmt.Errorf("list printers: %w", err)
			}
			def, err := sp.DefaultPrinter(cmd.Context())
			if err != nil && !errors.Is(err, spooler.ErrNoDefaultPrinter) {
				return fmt.Errorf("default printer: %w", err)
			}

			if len(printers) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No printers found")
				return nil
			}

			rows := make([][]string, 0, len(printers))
			for _, name := range printers {
				mark := ""
				if name == def {
					mark = "yes"
				}
				rows = append(rows, []string{name, mark})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Printer", "Default"}, rows))
			return nil
		},
	}
}
