package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"overture/internal/supervisor"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all environments on the server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newClient()
		var summaries []supervisor.Summary
		if err := client.get("/api/environments", &summaries); err != nil {
			return err
		}
		if len(summaries) == 0 {
			fmt.Println(ui.Dim.Render("no environments"))
			return nil
		}

		fmt.Println(ui.Header.Render(padRight("ID", 14) + padRight("STATE", 12) + padRight("NODES", 7) + padRight("LAUNCHED", 10) + "TEMPLATE"))
		for _, summary := range summaries {
			row := padRight(summary.ID, 14) +
				padRight(string(summary.State), 12) +
				padRight(fmt.Sprintf("%d", summary.NodeCount), 7) +
				padRight(summary.LaunchedAt.Local().Format("15:04:05"), 10) +
				summary.Template
			fmt.Println(stateStyle(string(summary.State)).Render(row))
		}
		return nil
	},
}
