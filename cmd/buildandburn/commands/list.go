package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List environments",
		Long:  `List the environments recorded in the local index, newest first.`,
		Example: `  # Show all live environments
  buildandburn list`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			controller, cleanup, err := newController(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			envs, err := controller.List(cmd.Context())
			if err != nil {
				return err
			}
			if len(envs) == 0 {
				fmt.Println("No environments found.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tPROJECT\tREGION\tSTATUS\tCREATED")
			for _, env := range envs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					env.ID, env.Project, env.Region, env.Status,
					env.CreatedAt.Format("2006-01-02 15:04"))
			}
			return w.Flush()
		},
	}

	return cmd
}
