package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/bdobrica/Hakoniwa/internal/hakoniwa/render"
)

var listJSON bool

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered sandbox containers with live runtime status",
	RunE:  runList,
}

func init() {
	listCmd.Flags().BoolVar(&listJSON, "json", false, "emit machine-readable JSON")
}

func runList(cmd *cobra.Command, _ []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	infos := a.ctrl.List(cmd.Context())
	if listJSON {
		return render.JSON(os.Stdout, infos)
	}
	render.Table(os.Stdout, infos)
	return nil
}
