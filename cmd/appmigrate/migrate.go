package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newMigrateCmd(load func() (Config, error)) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "migrate <app>",
		Short: "Apply all outstanding migrations of an application",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if _, err := cfg.application(args[0]); err != nil {
				return err
			}

			rt, err := newRuntime(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer func() {
				_ = rt.Close()
			}()

			if err := rt.engine.Migrate(cmd.Context(), args[0], force); err != nil {
				return fmt.Errorf("failed to run migrations: %w", err)
			}

			if err := rt.settle(cmd.Context()); err != nil {
				return fmt.Errorf("failed to record statuses: %w", err)
			}

			fmt.Println("All migrations applied successfully")
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "log and ignore every migration error")
	return cmd
}
