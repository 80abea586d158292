package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/buildandburn/buildandburn/pkg/engine/lifecycle"
)

func newDownCommand() *cobra.Command {
	var (
		force       bool
		autoApprove bool
		keepLocal   bool
	)

	cmd := &cobra.Command{
		Use:   "down <env-id>",
		Short: "Destroy an environment",
		Long: `Destroy an environment's infrastructure and remove its local files.

On failure the local state is preserved so the destroy can be retried.
--force removes local files even when the destroy fails; the cloud
resources must then be cleaned up by hand.`,
		Example: `  # Destroy an environment
  buildandburn down abc12345

  # Destroy without the confirmation prompt
  buildandburn down abc12345 -a

  # Give up on a wedged destroy and drop local state
  buildandburn down abc12345 --force`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			controller, cleanup, err := newController(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			err = controller.Down(cmd.Context(), lifecycle.DownOptions{
				EnvID:       args[0],
				Force:       force,
				AutoApprove: autoApprove,
				KeepLocal:   keepLocal,
			})
			if err != nil {
				return err
			}

			fmt.Printf("Environment %s destroyed\n", args[0])
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "remove local state even if the destroy fails")
	cmd.Flags().BoolVarP(&autoApprove, "auto-approve", "a", false, "skip the confirmation prompt")
	cmd.Flags().BoolVarP(&keepLocal, "keep-local", "k", false, "keep the local environment directory")

	return cmd
}
