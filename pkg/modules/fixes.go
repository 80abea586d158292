package modules

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// Fixer applies validation remediations to the root configuration.
type Fixer struct {
	dir    string
	logger zerolog.Logger
}

// NewFixer creates a fixer for the given module directory.
func NewFixer(dir string, logger zerolog.Logger) *Fixer {
	return &Fixer{
		dir:    dir,
		logger: logger.With().Str("component", "module-fixer").Logger(),
	}
}

// Apply inserts a module block into the root configuration for every
// fix action. Blocks land just before the kubernetes provider block so
// they evaluate with the rest of the module graph; when no provider
// block exists they are appended. Applying the same fixes twice is a
// no-op.
func (f *Fixer) Apply(fixes []Fix) error {
	if len(fixes) == 0 {
		return nil
	}

	path := filepath.Join(f.dir, "main.tf")
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to read root main.tf: %w", err)
	}
	content := string(data)

	applied := 0
	for _, fix := range fixes {
		if referencesModule(content, fix.Module) {
			continue
		}
		block := renderModuleBlock(fix)
		content = insertBeforeKubernetesProvider(content, block)
		applied++

		f.logger.Info().
			Str("module", fix.Module).
			Str("fix", string(fix.Type)).
			Msg("Inserted module block")
	}

	if applied == 0 {
		return nil
	}

	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write root main.tf: %w", err)
	}
	return nil
}

// renderModuleBlock produces the module block for a fix. The count
// expression keeps the module inert unless its dependency is declared,
// and depends_on serialises it after the cluster module.
func renderModuleBlock(fix Fix) string {
	var b strings.Builder
	fmt.Fprintf(&b, "\nmodule %q {\n", fix.Module)
	fmt.Fprintf(&b, "  source = \"./modules/%s\"\n", fix.Module)
	fmt.Fprintf(&b, "  count  = contains(var.dependencies, %q) ? 1 : 0\n\n", string(fix.Dependency))
	fmt.Fprintf(&b, "  project_name = var.project_name\n")
	fmt.Fprintf(&b, "  env_id       = var.env_id\n")
	if fix.Type == FixAddPolicyModule {
		fmt.Fprintf(&b, "  cluster_name = module.eks.cluster_name\n")
	} else {
		fmt.Fprintf(&b, "  %s = module.eks.cluster_security_group_id\n", connectivitySymbol)
	}
	fmt.Fprintf(&b, "\n  depends_on = [module.eks]\n")
	fmt.Fprintf(&b, "}\n")
	return b.String()
}

// insertBeforeKubernetesProvider places the block ahead of the
// kubernetes provider declaration, or appends it when none exists.
func insertBeforeKubernetesProvider(content, block string) string {
	marker := `provider "kubernetes"`
	idx := strings.Index(content, marker)
	if idx < 0 {
		return content + block
	}
	return content[:idx] + block + "\n" + content[idx:]
}
