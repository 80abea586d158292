package commands

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/buildandburn/buildandburn/pkg/engine/lifecycle"
)

func newUpCommand() *cobra.Command {
	var (
		manifestPath           string
		modulesDir             string
		chartDir               string
		envID                  string
		autoApprove            bool
		dryRun                 bool
		skipDeploy             bool
		skipModuleConfirmation bool
	)

	cmd := &cobra.Command{
		Use:   "up",
		Short: "Create an environment from a manifest",
		Long: `Create a complete environment from a manifest: provision the cluster
and infrastructure dependencies, then deploy the declared services.

Rerunning up with --env-id resumes an earlier environment from its
preserved state instead of starting over.`,
		Example: `  # Bring up an environment
  buildandburn up -m manifest.yaml

  # Resume a previous environment
  buildandburn up -m manifest.yaml -i abc12345

  # Plan only, touch nothing
  buildandburn up -m manifest.yaml --dry-run

  # Provision infrastructure without deploying services
  buildandburn up -m manifest.yaml --skip-deploy`,
		RunE: func(cmd *cobra.Command, args []string) error {
			controller, cleanup, err := newController(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			result, err := controller.Up(cmd.Context(), lifecycle.UpOptions{
				ManifestPath:           manifestPath,
				ModulesDir:             modulesDir,
				ChartDir:               chartDir,
				EnvID:                  envID,
				AutoApprove:            autoApprove,
				DryRun:                 dryRun,
				SkipDeploy:             skipDeploy,
				SkipModuleConfirmation: skipModuleConfirmation,
			})
			if err != nil {
				return err
			}

			printUpResult(result)
			return nil
		},
	}

	cmd.Flags().StringVarP(&manifestPath, "manifest", "m", "", "manifest file path (required)")
	cmd.Flags().StringVar(&modulesDir, "modules-dir", "terraform", "terraform configuration directory")
	cmd.Flags().StringVar(&chartDir, "chart-dir", "", "helm chart directory (kubectl apply when empty)")
	cmd.Flags().StringVarP(&envID, "env-id", "i", "", "resume an existing environment")
	cmd.Flags().BoolVarP(&autoApprove, "auto-approve", "a", false, "skip interactive prompts")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "validate and plan without applying")
	cmd.Flags().BoolVar(&skipDeploy, "skip-deploy", false, "provision infrastructure only")
	cmd.Flags().BoolVar(&skipModuleConfirmation, "skip-module-confirmation", false, "apply module fixes without asking")
	_ = cmd.MarkFlagRequired("manifest")

	return cmd
}

func printUpResult(result *lifecycle.UpResult) {
	for _, w := range result.Warnings {
		log.Warn().Msg(w)
	}
	if result.PlanOnly {
		fmt.Println("Dry run complete. No resources were created.")
		return
	}

	record := result.Record
	fmt.Printf("\nEnvironment %s is up\n", record.ID)
	fmt.Printf("  Project: %s\n", record.Project)
	fmt.Printf("  Region:  %s\n", record.Region)
	fmt.Printf("  Status:  %s\n", record.Status)

	if result.Access != nil {
		fmt.Printf("  Namespace: %s\n", result.Access.Namespace)
		if url := result.Access.PrimaryURL(); url != "" {
			fmt.Printf("  URL: %s\n", url)
		}
	}
	if result.Estimate != nil {
		fmt.Printf("  Estimated cost: $%.2f/hour ($%.0f/month)\n",
			result.Estimate.Hourly, result.Estimate.Monthly)
	}
	fmt.Fprintf(os.Stdout, "\nTear it down with: buildandburn down %s\n", record.ID)
}
