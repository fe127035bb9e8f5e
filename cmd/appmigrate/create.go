package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
)

const declarationTemplate = `# Each step runs in its own transaction unless grouped below.
steps:
  - name: first
    apply: |
      -- apply statement
    rollback: |
      -- rollback statement
    # ignore_errors: apply | rollback | all
    # atomic: false

# transactions:
#   - steps: [first]
`

func newCreateCmd(load func() (Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "create <app> <name>",
		Short: "Create a new migration declaration file",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}

			app, err := cfg.application(args[0])
			if err != nil {
				return err
			}

			path, err := createDeclaration(app.Dir, args[1], time.Now())
			if err != nil {
				return err
			}

			fmt.Printf("Created migration: %s\n", path)
			return nil
		},
	}
}

// createDeclaration writes a declaration template named after now and name
// into dir and returns its path.
func createDeclaration(dir, name string, now time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return "", fmt.Errorf("failed to create migrations directory: %w", err)
	}

	filename := fmt.Sprintf("%s_%s.yaml", now.UTC().Format("20060102150405"), name)
	path := filepath.Join(dir, filename)

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return "", fmt.Errorf("failed to create migration file: %w", err)
	}
	defer file.Close()

	if _, err := file.WriteString(declarationTemplate); err != nil {
		return "", fmt.Errorf("failed to write migration file: %w", err)
	}
	return path, nil
}
