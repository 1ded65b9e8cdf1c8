package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"overture/internal/supervisor"
)

var statusLines int

var statusCmd = &cobra.Command{
	Use:   "status <environment-id>",
	Short: "Show one environment's processes and recent output",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newClient()
		var snap supervisor.Snapshot
		if err := client.get(fmt.Sprintf("/api/environments/%s?lines=%d", args[0], statusLines), &snap); err != nil {
			return err
		}
		printSnapshot(snap)
		return nil
	},
}

func init() {
	statusCmd.Flags().IntVar(&statusLines, "lines", 10, "output lines to show per process")
}

func printSnapshot(snap supervisor.Snapshot) {
	fmt.Printf("%s  %s", ui.ID.Render(snap.ID), renderState(string(snap.State)))
	if snap.Template != "" {
		fmt.Printf("  %s", ui.Dim.Render("template="+snap.Template))
	}
	if snap.EndedBy != "" {
		fmt.Printf("  %s", ui.Dim.Render("ended_by="+snap.EndedBy))
	}
	fmt.Println()
	fmt.Printf("%s launched %s, timeout %s\n",
		ui.Dim.Render("   "),
		snap.LaunchedAt.Local().Format("15:04:05"),
		formatSeconds(snap.Timeout))

	fmt.Println()
	fmt.Println(ui.Header.Render(padRight("PROCESS", 14) + padRight("STATE", 11) + padRight("PID", 8) + padRight("EXIT", 6) + "RESOURCES"))
	for _, node := range snap.Nodes {
		pid := "-"
		if node.PID > 0 {
			pid = fmt.Sprintf("%d", node.PID)
		}
		exit := "-"
		if node.ExitCode != nil {
			exit = fmt.Sprintf("%d", *node.ExitCode)
		}
		resources := ""
		if node.Resources != nil {
			resources = fmt.Sprintf("%.1f%% cpu, %s", node.Resources.CPUPercent, formatBytes(node.Resources.RSSBytes))
		}
		row := padRight(node.Name, 14) + padRight(string(node.State), 11) + padRight(pid, 8) + padRight(exit, 6) + resources
		fmt.Println(stateStyle(string(node.State)).Render(row))
		if node.Reason != "" {
			fmt.Println(ui.Dim.Render("  reason: " + string(node.Reason)))
		}
	}

	for _, node := range snap.Nodes {
		if len(node.Output) == 0 {
			continue
		}
		fmt.Println()
		for _, line := range node.Output {
			fmt.Println(renderOutputLine(node.Name, string(node.Color), string(line.Stream), line.Text))
		}
	}
}

func formatBytes(n uint64) string {
	switch {
	case n >= 1<<30:
		return fmt.Sprintf("%.1fGiB", float64(n)/(1<<30))
	case n >= 1<<20:
		return fmt.Sprintf("%.1fMiB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1fKiB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%dB", n)
	}
}
