package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bdobrica/Hakoniwa/internal/hakoniwa/lifecycle"
	"github.com/bdobrica/Hakoniwa/internal/hakoniwa/render"
)

var (
	recreateAll     bool
	recreateSession string
	recreateAgent   string
	recreateForce   bool
)

var recreateCmd = &cobra.Command{
	Use:   "recreate (--all | --session <key> | --agent <id>) [--force]",
	Short: "Remove selected sandbox containers so they are re-provisioned on next use",
	RunE:  runRecreate,
}

func init() {
	recreateCmd.Flags().BoolVar(&recreateAll, "all", false, "select every registered container")
	recreateCmd.Flags().StringVar(&recreateSession, "session", "", "select containers with this exact session key")
	recreateCmd.Flags().StringVar(&recreateAgent, "agent", "", "select containers owned by this agent")
	recreateCmd.Flags().BoolVar(&recreateForce, "force", false, "skip the confirmation prompt")
}

func runRecreate(cmd *cobra.Command, _ []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.ctrl.Recreate(cmd.Context(), lifecycle.RecreateOptions{
		All:        recreateAll,
		SessionKey: recreateSession,
		AgentID:    recreateAgent,
		Force:      recreateForce,
		Confirm: func(selected []lifecycle.ContainerInfo) bool {
			render.Preview(os.Stdout, selected)
			return render.Confirm(os.Stdin, os.Stdout, "Remove these containers?")
		},
	})
	if err != nil {
		return err
	}

	if res.Aborted {
		fmt.Println("Aborted.")
		return nil
	}
	if len(res.Selected) == 0 {
		fmt.Println("No matching sandbox containers, nothing to do.")
		return nil
	}

	fmt.Printf("Removed %d container(s), %d failed.\n", res.Succeeded, res.Failed)
	if res.Failed > 0 {
		return fmt.Errorf("%d of %d removals failed", res.Failed, len(res.Selected))
	}
	return nil
}
