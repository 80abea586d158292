package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/buildandburn/buildandburn/pkg/engine/lifecycle"
)

func newValidateCommand() *cobra.Command {
	var (
		manifestPath string
		modulesDir   string
	)

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a manifest without creating anything",
		Long: `Validate a manifest: schema and field checks, admission policies,
and (when a terraform directory is given) module coverage for the
declared dependencies. Nothing is provisioned.`,
		Example: `  # Validate the manifest alone
  buildandburn validate -m manifest.yaml

  # Also check the terraform modules
  buildandburn validate -m manifest.yaml --modules-dir ./terraform`,
		RunE: func(cmd *cobra.Command, args []string) error {
			controller, cleanup, err := newController(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			result, err := controller.Validate(cmd.Context(), manifestPath, modulesDir)
			if err != nil {
				return err
			}

			return printValidation(result)
		},
	}

	cmd.Flags().StringVarP(&manifestPath, "manifest", "m", "", "manifest file path (required)")
	cmd.Flags().StringVar(&modulesDir, "modules-dir", "", "terraform configuration directory to check")
	_ = cmd.MarkFlagRequired("manifest")

	return cmd
}

func printValidation(result *lifecycle.ValidateResult) error {
	fmt.Printf("Manifest %s: syntax OK\n", result.Manifest.Name)
	for _, w := range result.Warnings {
		fmt.Printf("  warning: %s\n", w)
	}

	failed := false
	if result.Policy != nil {
		for _, v := range result.Policy.Violations {
			fmt.Printf("  policy %s: %s\n", v.Policy, v.Message)
		}
		for _, w := range result.Policy.Warnings {
			fmt.Printf("  policy %s (advisory): %s\n", w.Policy, w.Message)
		}
		if !result.Policy.Allowed {
			failed = true
		}
	}

	if result.Modules != nil {
		for _, w := range result.Modules.Warnings() {
			fmt.Printf("  modules: %s\n", w)
		}
		switch {
		case result.Modules.Valid:
			fmt.Println("Modules: OK")
		case result.Modules.AutoFixable:
			fmt.Printf("Modules: %d fixable issues (up will offer to fix them)\n", len(result.Modules.Fixes))
		default:
			fmt.Printf("Modules: missing core modules %v\n", result.Modules.MissingCore)
			failed = true
		}
	}

	if failed {
		return fmt.Errorf("validation failed")
	}
	fmt.Println("Validation passed")
	return nil
}
