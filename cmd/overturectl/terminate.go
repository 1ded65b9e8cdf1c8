package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var terminateCmd = &cobra.Command{
	Use:   "terminate <environment-id>",
	Short: "Stop an environment and remove it from the registry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newClient()
		var result struct {
			ID         string `json:"id"`
			Terminated bool   `json:"terminated"`
		}
		if err := client.delete("/api/environments/"+args[0], &result); err != nil {
			return err
		}
		fmt.Printf("%s %s\n", ui.ID.Render(result.ID), renderState("terminated"))
		return nil
	},
}
