package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var createSession string

var createCmd = &cobra.Command{
	Use:   "create --session <key>",
	Short: "Provision a fresh sandbox container for a session",
	RunE:  runCreate,
}

func init() {
	createCmd.Flags().StringVar(&createSession, "session", "", "owning session key (e.g. agent:kairo or agent:kairo:review)")
	createCmd.MarkFlagRequired("session")
}

func runCreate(cmd *cobra.Command, _ []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.rt.EnsureNetwork(cmd.Context()); err != nil {
		return err
	}

	entry, err := a.ctrl.Provision(cmd.Context(), createSession)
	if err != nil {
		return err
	}

	fmt.Printf("Created %s (image %s) for %s\n", entry.Name, entry.Image, entry.SessionKey)
	return nil
}
