package modules

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/buildandburn/buildandburn/pkg/manifest"
	"github.com/rs/zerolog"
)

// connectivitySymbol is the cluster security group reference every
// dependency module must consume to allow cluster-to-dependency traffic.
const connectivitySymbol = "eks_security_group_id"

// Validator checks a provisioner module directory against a manifest's
// declared dependencies.
type Validator struct {
	dir    string
	logger zerolog.Logger
}

// NewValidator creates a validator for the given module directory.
func NewValidator(dir string, logger zerolog.Logger) *Validator {
	return &Validator{
		dir:    dir,
		logger: logger.With().Str("component", "module-validator").Logger(),
	}
}

// Validate computes the required module set for the manifest and checks
// presence, completeness, root references, connectivity and IAM
// coverage. It never mutates the filesystem, so running it twice against
// the same tree yields the same result.
func (v *Validator) Validate(m *manifest.Manifest) (*Result, error) {
	if _, err := os.Stat(v.dir); err != nil {
		return nil, fmt.Errorf("failed to read module directory %s: %w", v.dir, err)
	}

	res := &Result{}
	types := m.DeclaredTypes()

	res.Required = append(res.Required, CoreModules...)
	for _, t := range types {
		res.Required = append(res.Required, DependencyModule(t))
	}
	for _, t := range types {
		res.Required = append(res.Required, PolicyModule(t))
	}

	rootMain, err := v.readRootMain()
	if err != nil {
		return nil, err
	}

	for _, name := range CoreModules {
		if v.checkModule(res, name) {
			res.Available = append(res.Available, name)
		} else {
			res.MissingCore = append(res.MissingCore, name)
		}
	}

	for _, t := range types {
		name := DependencyModule(t)
		if v.checkModule(res, name) {
			res.Available = append(res.Available, name)
			v.checkConnectivity(res, name)
			if !referencesModule(rootMain, name) {
				res.Unreferenced = append(res.Unreferenced, name)
				res.Fixes = append(res.Fixes, Fix{Type: FixAddModuleReference, Module: name, Dependency: t})
			}
		} else {
			res.MissingDependency = append(res.MissingDependency, name)
		}
	}

	for _, t := range types {
		name := PolicyModule(t)
		if v.checkModule(res, name) {
			res.Available = append(res.Available, name)
			if !referencesModule(rootMain, name) {
				res.Unreferenced = append(res.Unreferenced, name)
				res.Fixes = append(res.Fixes, Fix{Type: FixAddPolicyModule, Module: name, Dependency: t})
			}
		} else {
			res.MissingPolicy = append(res.MissingPolicy, name)
			res.Fixes = append(res.Fixes, Fix{Type: FixAddPolicyModule, Module: name, Dependency: t})
		}
	}

	v.checkIAMCoverage(res, types)

	res.Valid = len(res.MissingCore) == 0 && len(res.MissingDependency) == 0 &&
		len(res.MissingPolicy) == 0 && len(res.Unreferenced) == 0
	res.AutoFixable = !res.Valid &&
		len(res.MissingCore) == 0 && len(res.MissingDependency) == 0 &&
		len(res.Fixes) > 0

	v.logger.Debug().
		Int("required", len(res.Required)).
		Int("available", len(res.Available)).
		Int("fixes", len(res.Fixes)).
		Bool("valid", res.Valid).
		Msg("Module validation completed")

	return res, nil
}

// checkModule reports whether the module directory exists, recording
// file-set warnings for present modules.
func (v *Validator) checkModule(res *Result, name string) bool {
	dir := filepath.Join(v.dir, "modules", name)
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return false
	}

	for _, f := range moduleFiles {
		if _, err := os.Stat(filepath.Join(dir, f)); err != nil {
			res.FileIssues = append(res.FileIssues, Issue{
				Module:  name,
				Message: fmt.Sprintf("missing %s", f),
			})
		}
	}
	return true
}

// checkConnectivity verifies a dependency module consumes the cluster
// security group.
func (v *Validator) checkConnectivity(res *Result, name string) {
	main, err := os.ReadFile(filepath.Join(v.dir, "modules", name, "main.tf"))
	if err != nil {
		return
	}
	if !strings.Contains(string(main), connectivitySymbol) {
		res.ConnectivityIssues = append(res.ConnectivityIssues, Issue{
			Module:  name,
			Message: fmt.Sprintf("does not reference %s, cluster traffic will be blocked", connectivitySymbol),
		})
	}
}

// checkIAMCoverage verifies the cluster module attaches the managed IAM
// policy for each declared dependency type.
func (v *Validator) checkIAMCoverage(res *Result, types []manifest.DependencyType) {
	main, err := os.ReadFile(filepath.Join(v.dir, "modules", "eks", "main.tf"))
	if err != nil {
		return
	}
	content := string(main)
	for _, t := range types {
		policy := IAMPolicyName(t)
		if policy != "" && !strings.Contains(content, policy) {
			res.IAMIssues = append(res.IAMIssues, Issue{
				Module:  "eks",
				Message: fmt.Sprintf("missing IAM policy %s for %s dependency", policy, t),
			})
		}
	}
}

func (v *Validator) readRootMain() (string, error) {
	data, err := os.ReadFile(filepath.Join(v.dir, "main.tf"))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read root main.tf: %w", err)
	}
	return string(data), nil
}

// referencesModule reports whether the root configuration declares a
// module block with the given name.
func referencesModule(rootMain, name string) bool {
	return strings.Contains(rootMain, fmt.Sprintf("module %q", name))
}
