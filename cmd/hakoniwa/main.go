// Hakoniwa — sandbox container registry and lifecycle engine for AI coding agents.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/bdobrica/Hakoniwa/common/version"
	"github.com/bdobrica/Hakoniwa/internal/hakoniwa/lifecycle"
)

var rootCmd = &cobra.Command{
	Use:   "hakoniwa",
	Short: "Hakoniwa — manage the fleet of session-scoped sandbox containers.",
	Long: `Hakoniwa keeps a durable registry of the sandbox containers AI coding
agents run their workloads in, reconciles it against live Docker state,
prunes stale containers on a policy, and supports operator-driven bulk
recreation.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Println(version.Info())
	},
}

func init() {
	rootCmd.AddCommand(listCmd, recreateCmd, createCmd, daemonCmd, versionCmd)
	_ = godotenv.Load()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "hakoniwa: %v\n", err)
		if errors.Is(err, lifecycle.ErrUsage) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
