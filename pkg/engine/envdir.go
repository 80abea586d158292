package engine

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/buildandburn/buildandburn/pkg/manifest"
)

// EnvPaths is the on-disk layout of one environment directory. The
// terraform working copy, local state, and deployment artifacts all
// live under a single root so `down` can remove everything at once.
type EnvPaths struct {
	Root         string
	TerraformDir string
	StateDir     string
	StateFile    string
	PlanFile     string
	VarsFile     string
	Kubeconfig   string
	ValuesFile   string
	ManifestFile string
	LogsDir      string
	LockFile     string
}

// Home returns the buildandburn home directory, BB_HOME or
// ~/.buildandburn.
func Home() (string, error) {
	if home := os.Getenv("BB_HOME"); home != "" {
		return home, nil
	}
	userHome, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(userHome, ".buildandburn"), nil
}

// IndexPath returns the path of the environment index database.
func IndexPath(home string) string {
	return filepath.Join(home, "buildandburn.db")
}

// PathsFor computes the directory layout for an environment ID.
func PathsFor(home, envID string) EnvPaths {
	root := filepath.Join(home, envID)
	return EnvPaths{
		Root:         root,
		TerraformDir: filepath.Join(root, "terraform"),
		StateDir:     filepath.Join(root, "state"),
		StateFile:    filepath.Join(root, "state", "terraform.tfstate"),
		PlanFile:     filepath.Join(root, "terraform", "tfplan"),
		VarsFile:     filepath.Join(root, "terraform", "terraform.tfvars.json"),
		Kubeconfig:   filepath.Join(root, "kubeconfig"),
		ValuesFile:   filepath.Join(root, "values.yaml"),
		ManifestFile: filepath.Join(root, "manifest.yaml"),
		LogsDir:      filepath.Join(root, "logs"),
		LockFile:     filepath.Join(root, ".lock"),
	}
}

// backendOverride pins terraform state into the environment directory
// regardless of any backend the source configuration declares.
const backendOverride = `terraform {
  backend "local" {
    path = "../state/terraform.tfstate"
  }
}
`

// PrepareEnvDir builds (or refreshes) the environment directory: a
// working copy of the terraform configuration, the local backend
// override, and the compiled variable file. Existing state is left
// untouched so a rerun resumes rather than restarts.
func PrepareEnvDir(home, envID, terraformSrc string, vars manifest.Variables) (EnvPaths, error) {
	paths := PathsFor(home, envID)

	for _, dir := range []string{paths.Root, paths.StateDir, paths.LogsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return paths, fmt.Errorf("failed to create environment directory: %w", err)
		}
	}

	if err := copyTree(terraformSrc, paths.TerraformDir); err != nil {
		return paths, fmt.Errorf("failed to copy terraform configuration: %w", err)
	}

	overridePath := filepath.Join(paths.TerraformDir, "backend_override.tf")
	if err := os.WriteFile(overridePath, []byte(backendOverride), 0o644); err != nil {
		return paths, fmt.Errorf("failed to write backend override: %w", err)
	}

	data, err := vars.MarshalIndent()
	if err != nil {
		return paths, fmt.Errorf("failed to encode variables: %w", err)
	}
	if err := os.WriteFile(paths.VarsFile, data, 0o644); err != nil {
		return paths, fmt.Errorf("failed to write variable file: %w", err)
	}

	return paths, nil
}

// copyTree copies a terraform configuration tree, skipping provider
// caches, state, and plan artifacts from the source.
func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return os.MkdirAll(dst, 0o755)
		}

		name := d.Name()
		if d.IsDir() {
			if name == ".terraform" || name == ".git" {
				return filepath.SkipDir
			}
			return os.MkdirAll(filepath.Join(dst, rel), 0o755)
		}
		if strings.HasSuffix(name, ".tfstate") || strings.HasSuffix(name, ".tfstate.backup") ||
			name == "tfplan" || name == ".terraform.lock.hcl" {
			return nil
		}

		return copyFile(path, filepath.Join(dst, rel))
	})
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

// RemoveEnvDir deletes the environment directory and everything in it.
func RemoveEnvDir(home, envID string) error {
	if envID == "" {
		return fmt.Errorf("refusing to remove environment directory for empty ID")
	}
	return os.RemoveAll(filepath.Join(home, envID))
}
