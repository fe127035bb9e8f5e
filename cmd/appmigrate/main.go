package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const configEnv = "APPMIGRATE_CONFIG"

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "appmigrate",
		Short:         "Multi-application migration tool",
		Long:          "appmigrate applies and rolls back the migrations of several applications against a shared store",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv(configEnv),
		"path to the YAML configuration file (env "+configEnv+")")

	load := func() (Config, error) {
		return loadConfig(configPath)
	}

	cmd.AddCommand(newStatusCmd(load))
	cmd.AddCommand(newRequestCmd(load, "apply", "Apply migrations up to and including <index>"))
	cmd.AddCommand(newRequestCmd(load, "rollback", "Roll back migrations down to and including <index>"))
	cmd.AddCommand(newRequestCmd(load, "reapply", "Roll back and apply the migration at <index>"))
	cmd.AddCommand(newMigrateCmd(load))
	cmd.AddCommand(newWorkerCmd(load))
	cmd.AddCommand(newCreateCmd(load))
	cmd.AddCommand(newVersionCmd())

	return cmd
}
