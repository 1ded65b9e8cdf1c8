package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"overture/internal/template"
)

var templatesShowDirectives bool

var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "List the templates the server knows",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newClient()
		var templates []template.Template
		if err := client.get("/api/templates", &templates); err != nil {
			return err
		}

		for _, tpl := range templates {
			origin := ""
			if tpl.Builtin {
				origin = ui.Dim.Render("  (builtin)")
			}
			fmt.Printf("%s%s\n", ui.Header.Render(tpl.Name), origin)
			if tpl.Description != "" {
				fmt.Println("  " + tpl.Description)
			}
			if templatesShowDirectives {
				for _, line := range tpl.Directives {
					fmt.Println(ui.Dim.Render("    " + line))
				}
			}
		}
		return nil
	},
}

func init() {
	templatesCmd.Flags().BoolVar(&templatesShowDirectives, "directives", false, "also print each template's directives")
}
