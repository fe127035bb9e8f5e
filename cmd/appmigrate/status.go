package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newStatusCmd(load func() (Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "status [app]",
		Short: "Show migration status",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}

			rt, err := newRuntime(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer func() {
				_ = rt.Close()
			}()

			statuses, err := rt.engine.Statuses(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to get status: %w", err)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "APPLICATION\tINDEX\tMIGRATION\tKIND\tSTATUS")

			for _, status := range statuses {
				if len(args) == 1 && status.Application != args[0] {
					continue
				}

				index := "-"
				if status.Index >= 0 {
					index = fmt.Sprint(status.Index)
				}

				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					status.Application,
					index,
					status.ID,
					status.Kind,
					status.Status,
				)
			}

			return w.Flush()
		},
	}
}
