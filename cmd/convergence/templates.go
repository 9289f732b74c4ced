package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/dukex/convergence/pkg/catalog"
	cli "github.com/urfave/cli/v3"
)

func TemplatesCommand() *cli.Command {
	return &cli.Command{
		Name:    "templates",
		Aliases: []string{"ls"},
		Usage:   "List the built-in workflow templates",
		Action: func(_ context.Context, _ *cli.Command) error {
			templates := catalog.Templates()

			fmt.Println("Available Templates:")
			fmt.Println("====================")

			for _, tmpl := range templates {
				fmt.Printf("\n%s (%s)\n", tmpl.Name, tmpl.ID)
				fmt.Printf("Sector: %s\n", tmpl.Sector)
				fmt.Printf("Compliance: %s\n", strings.Join(tmpl.ComplianceTags, ", "))
				fmt.Printf("Triggers:\n")

				for _, trigger := range tmpl.Triggers {
					fmt.Printf("  - %s (%s)\n", trigger.EventType, trigger.ID)

					for _, condition := range trigger.Conditions {
						fmt.Printf("    When: %s %s %v\n", condition.Field, condition.Operator, condition.Value)
					}

					if trigger.Cooldown > 0 {
						fmt.Printf("    Cooldown: %s\n", trigger.Cooldown)
					}
				}

				fmt.Printf("Steps:\n")

				for i, step := range tmpl.Steps {
					fmt.Printf("  %d. %s: %s\n", i+1, step.Label, step.Action)
				}
			}

			fmt.Printf("\nTotal: %d templates\n", len(templates))

			return nil
		},
	}
}
