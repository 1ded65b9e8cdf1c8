package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var (
	launchTemplate string
	launchValues   []string
	launchTimeout  time.Duration
	launchFollow   bool
)

var launchCmd = &cobra.Command{
	Use:   "launch [directive]...",
	Short: "Launch an environment from directives or a template",
	Example: `  overturectl launch "API#green=myserver --port 8001" "UI+API=myui"
  overturectl launch --template full_stack --set backend_port=9000
  overturectl launch --follow "BUILD=make" "TEST+BUILD|end=make test"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if launchTemplate == "" && len(args) == 0 {
			return fmt.Errorf("either directive arguments or --template is required")
		}
		if launchTemplate != "" && len(args) > 0 {
			return fmt.Errorf("directive arguments and --template are mutually exclusive")
		}

		client := newClient()
		var launched struct {
			ID string `json:"id"`
		}

		if launchTemplate != "" {
			values, err := parseValues(launchValues)
			if err != nil {
				return err
			}
			body := map[string]any{
				"values":          values,
				"timeout_seconds": launchTimeout.Seconds(),
			}
			if err := client.post("/api/templates/"+launchTemplate+"/launch", body, &launched); err != nil {
				return err
			}
		} else {
			body := map[string]any{
				"directives":      args,
				"timeout_seconds": launchTimeout.Seconds(),
			}
			if err := client.post("/api/environments", body, &launched); err != nil {
				return err
			}
		}

		fmt.Println(ui.ID.Render(launched.ID))
		if launchFollow {
			return followOutput(client, launched.ID)
		}
		return nil
	},
}

func init() {
	launchCmd.Flags().StringVarP(&launchTemplate, "template", "t", "", "launch a named template instead of raw directives")
	launchCmd.Flags().StringArrayVar(&launchValues, "set", nil, "template value as key=value (repeatable)")
	launchCmd.Flags().DurationVar(&launchTimeout, "timeout", 0, "environment timeout (0 uses the server default)")
	launchCmd.Flags().BoolVarP(&launchFollow, "follow", "f", false, "stream output after launching")
}

func parseValues(pairs []string) (map[string]string, error) {
	values := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, found := strings.Cut(pair, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("invalid --set %q, want key=value", pair)
		}
		values[key] = value
	}
	return values, nil
}
