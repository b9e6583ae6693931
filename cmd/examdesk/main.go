// Command examdesk runs the exam desk API and its admin tasks.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mind-engage/examdesk/internal/config"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:           "examdesk",
	Short:         "Question bank, exams and grading over HTTP",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().String("env-file", ".env", "dotenv file loaded before reading the environment")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(addUserCmd)
	rootCmd.AddCommand(resetPasswordCmd)
	rootCmd.AddCommand(autofillCmd)
}

// loadConfig reads --env-file and then the process environment.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	if p, _ := cmd.Flags().GetString("env-file"); p != "" && p != ".env" {
		if err := config.LoadDotEnv(p); err != nil {
			return config.Config{}, fmt.Errorf("env file: %w", err)
		}
	}
	return config.FromEnv(), nil
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "examdesk:", err)
		os.Exit(1)
	}
}
