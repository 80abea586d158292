package commands

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/buildandburn/buildandburn/pkg/engine/lifecycle"
	"github.com/buildandburn/buildandburn/pkg/provision"
)

func newInfoCommand() *cobra.Command {
	var detailed bool

	cmd := &cobra.Command{
		Use:   "info <env-id>",
		Short: "Show an environment's access details",
		Long: `Show how to reach an environment: namespace, service endpoints,
ingress URLs, infrastructure outputs, and the cost estimate.

Access details are refreshed from the cluster when it is still
reachable; otherwise the last recorded values are shown.`,
		Example: `  # Show environment details
  buildandburn info abc12345

  # Include the operation history
  buildandburn info abc12345 --detailed`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			controller, cleanup, err := newController(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			result, err := controller.Info(cmd.Context(), args[0], detailed)
			if err != nil {
				return err
			}

			printInfo(result)
			return nil
		},
	}

	cmd.Flags().BoolVar(&detailed, "detailed", false, "include operation history")

	return cmd
}

func printInfo(result *lifecycle.InfoResult) {
	record := result.Record
	fmt.Printf("Environment %s\n", record.ID)
	fmt.Printf("  Project: %s\n", record.Project)
	fmt.Printf("  Region:  %s\n", record.Region)
	fmt.Printf("  Status:  %s\n", record.Status)
	fmt.Printf("  Created: %s\n", record.CreatedAt.Format("2006-01-02 15:04:05"))
	if record.DestroyedAt != nil {
		fmt.Printf("  Destroyed: %s\n", record.DestroyedAt.Format("2006-01-02 15:04:05"))
	}

	if result.Access != nil {
		fmt.Printf("\nAccess\n")
		fmt.Printf("  Namespace: %s\n", result.Access.Namespace)
		for _, svc := range result.Access.Services {
			line := fmt.Sprintf("  Service %s (%s)", svc.Name, svc.Type)
			if svc.URL != "" {
				line += " " + svc.URL
			} else if svc.ClusterIP != "" {
				line += " " + svc.ClusterIP
			}
			fmt.Println(line)
		}
		for _, ing := range result.Access.Ingresses {
			fmt.Printf("  Ingress %s %s\n", ing.Name, ing.URL)
		}
	}

	if record.Outputs != "" {
		outputs := provision.Outputs{}
		if err := json.Unmarshal([]byte(record.Outputs), &outputs); err == nil && len(outputs) > 0 {
			fmt.Printf("\nOutputs\n")
			for _, line := range outputLines(outputs) {
				fmt.Println(line)
			}
		}
	}

	if result.Estimate != nil {
		fmt.Printf("\nEstimated cost: $%.2f/hour ($%.0f/month)\n",
			result.Estimate.Hourly, result.Estimate.Monthly)
	}

	if len(result.Operations) > 0 {
		fmt.Printf("\nOperations\n")
		for _, op := range result.Operations {
			line := fmt.Sprintf("  %s %s %s (%s)",
				op.StartedAt.Format("2006-01-02 15:04:05"), op.Kind, op.Outcome, op.Duration.Round(time.Second))
			if op.Error != nil {
				line += " " + *op.Error
			}
			fmt.Println(line)
		}
	}
}

// outputLines renders terraform outputs in name order. Values marked
// sensitive by terraform are hidden regardless of their name.
func outputLines(outputs provision.Outputs) []string {
	names := make([]string, 0, len(outputs))
	for name := range outputs {
		names = append(names, name)
	}
	sort.Strings(names)

	lines := make([]string, 0, len(names))
	for _, name := range names {
		value := outputs.String(name)
		if outputs[name].Sensitive {
			value = "(hidden for security)"
		} else {
			value = maskSensitive(name, value)
		}
		lines = append(lines, fmt.Sprintf("  %s: %s", name, value))
	}
	return lines
}
