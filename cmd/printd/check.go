package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/orrn/printd/internal/core"
	"github.com/orrn/printd/internal/spooler"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify the renderer binary and spooler access",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			var failed bool
			rows := make([][]string, 0, 3)

			renderer := core.NewGhostscriptRenderer(cfg.Renderer)
			if err := renderer.Available(); err != nil {
				failed = true
				rows = append(rows, []string{"ghostscript", "missing", err.Error()})
			} else {
				rows = append(rows, []string{"ghostscript", "ok", renderer.Path()})
			}

			sp, err := spooler.New(cfg.Spooler.Backend, cfg.Spooler.LpstatPath)
			if err != nil {
				failed = true
				rows = append(rows, []string{"spooler", "error", err.Error()})
			} else {
				printers, err := sp.Printers(cmd.Context())
				if err != nil {
					failed = true
					rows = append(rows, []string{"spooler", "error", err.Error()})
				} else {
					rows = append(rows, []string{"spooler", "ok", fmt.Sprintf("%s, %d printers", cfg.Spooler.Backend, len(printers))})
				}
				def, err := sp.DefaultPrinter(cmd.Context())
				switch {
				case errors.Is(err, spooler.ErrNoDefaultPrinter):
					rows = append(rows, []string{"default printer", "none", "jobs must name a printer"})
				case err != nil:
					failed = true
					rows = append(rows, []string{"default printer", "error", err.Error()})
				default:
					rows = append(rows, []string{"default printer", "ok", def})
				}
			}

			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Check", "Status", "Detail"}, rows))
			if failed {
				return errors.New("one or more checks failed")
			}
			return nil
		},
	}
}
