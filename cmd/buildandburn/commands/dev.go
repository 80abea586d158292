package commands

import (
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newDevCommand() *cobra.Command {
	var (
		manifestPath string
		modulesDir   string
	)

	cmd := &cobra.Command{
		Use:   "dev",
		Short: "Watch a manifest and re-validate on every change",
		Long: `Watch a manifest file and run the full validation pass whenever it
changes. Useful while iterating on a manifest before running up.`,
		Example: `  # Re-validate on save
  buildandburn dev -m manifest.yaml

  # Also check the terraform modules on each change
  buildandburn dev -m manifest.yaml --modules-dir ./terraform`,
		RunE: func(cmd *cobra.Command, args []string) error {
			controller, cleanup, err := newController(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			watcher, err := fsnotify.NewWatcher()
			if err != nil {
				return err
			}
			defer watcher.Close()

			// Watch the directory: editors replace files on save, which
			// drops a watch registered on the file itself.
			dir := filepath.Dir(manifestPath)
			if err := watcher.Add(dir); err != nil {
				return err
			}
			target := filepath.Clean(manifestPath)

			runValidation := func() {
				result, validateErr := controller.Validate(cmd.Context(), manifestPath, modulesDir)
				if validateErr != nil {
					log.Error().Err(validateErr).Msg("Validation failed")
					return
				}
				if printErr := printValidation(result); printErr != nil {
					log.Warn().Msg("Manifest has blocking findings")
				}
			}

			log.Info().Str("manifest", manifestPath).Msg("Watching for changes, Ctrl+C to stop")
			runValidation()

			// Editors fire bursts of events per save; coalesce them.
			var debounce *time.Timer
			ctx := cmd.Context()
			for {
				select {
				case <-ctx.Done():
					return nil
				case event, ok := <-watcher.Events:
					if !ok {
						return nil
					}
					if filepath.Clean(event.Name) != target {
						continue
					}
					if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
						continue
					}
					if debounce != nil {
						debounce.Stop()
					}
					debounce = time.AfterFunc(200*time.Millisecond, runValidation)
				case watchErr, ok := <-watcher.Errors:
					if !ok {
						return nil
					}
					log.Warn().Err(watchErr).Msg("Watcher error")
				}
			}
		},
	}

	cmd.Flags().StringVarP(&manifestPath, "manifest", "m", "", "manifest file path (required)")
	cmd.Flags().StringVar(&modulesDir, "modules-dir", "", "terraform configuration directory to check")
	_ = cmd.MarkFlagRequired("manifest")

	return cmd
}
