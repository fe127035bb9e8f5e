package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"go.kirha.ai/appmigrate"
)

// newRequestCmd enqueues the first step of an apply, rollback or reapply
// chain. A worker carries the chain on; with the in-memory queue it runs
// before the command returns.
func newRequestCmd(load func() (Config, error), name, short string) *cobra.Command {
	return &cobra.Command{
		Use:   name + " <app> <index>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			action, err := appmigrate.ParseAction(name)
			if err != nil {
				return err
			}

			index, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid index: %w", err)
			}

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

			if err := rt.engine.Request(cmd.Context(), args[0], action, index); err != nil {
				return fmt.Errorf("failed to request %s: %w", action, err)
			}

			if err := rt.settle(cmd.Context()); err != nil {
				return fmt.Errorf("failed to run %s: %w", action, err)
			}

			fmt.Printf("Requested %s of %s up to index %d\n", action, args[0], index)
			return nil
		},
	}
}
