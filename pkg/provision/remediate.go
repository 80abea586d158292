package provision

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/buildandburn/buildandburn/pkg/engine"
)

// Remediator applies automated fixes to a provisioner working
// directory. Every fix is idempotent, and the retry loop grants each
// fix at most one attempt per failure.
type Remediator struct {
	dir    string
	runner *Runner
	logger zerolog.Logger
}

// NewRemediator creates a remediator sharing the runner's directory.
func NewRemediator(runner *Runner, logger zerolog.Logger) *Remediator {
	return &Remediator{
		dir:    runner.dir,
		runner: runner,
		logger: logger.With().Str("component", "remediator").Logger(),
	}
}

// RunWithRemediation executes op, and on failure classifies the output,
// applies each matched fix once, and retries. A fix that already ran
// for this invocation is never applied again, which bounds the loop at
// one retry per distinct fix.
func (r *Remediator) RunWithRemediation(ctx context.Context, op func(context.Context) *CommandResult) (*CommandResult, error) {
	attempted := make(map[FixID]struct{})
	for {
		res := op(ctx)
		if res.Success() {
			return res, nil
		}
		if res.TimedOut || res.Err != nil {
			return res, nil
		}

		c := Classify(res.CombinedOutput())
		if c.CredentialFailure {
			return res, engine.NewCredentialError(
				fmt.Sprintf("%s: %s", c.Diagnoses[0].Problem, c.Diagnoses[0].Suggestion), nil,
			).WithOperation(string(res.Op))
		}

		applied := false
		for _, fix := range c.Fixes() {
			if _, done := attempted[fix]; done {
				continue
			}
			attempted[fix] = struct{}{}
			r.logger.Info().Str("fix", string(fix)).Str("operation", string(res.Op)).Msg("Applying automated fix")
			if err := r.Apply(ctx, fix, res); err != nil {
				r.logger.Warn().Err(err).Str("fix", string(fix)).Msg("Automated fix failed")
				continue
			}
			applied = true
		}
		if !applied {
			return res, nil
		}
	}
}

// Apply executes a single fix against the working directory.
func (r *Remediator) Apply(ctx context.Context, fix FixID, failure *CommandResult) error {
	switch fix {
	case FixInjectProviderConfig:
		return r.injectProviderConfig()
	case FixReinitUpgrade:
		res := r.runner.Init(ctx, true, false)
		if !res.Success() {
			return fmt.Errorf("failed to re-initialise with upgrades: %s", res.Tail(5))
		}
		return nil
	case FixInjectRequiredVars:
		return r.injectRequiredVars(failure.CombinedOutput())
	case FixDeduplicateProviders:
		return r.deduplicateProviders()
	case FixClearPluginCache:
		if err := os.RemoveAll(filepath.Join(r.dir, ".terraform")); err != nil {
			return fmt.Errorf("failed to clear plugin cache: %w", err)
		}
		res := r.runner.Init(ctx, false, false)
		if !res.Success() {
			return fmt.Errorf("failed to re-initialise after cache clear: %s", res.Tail(5))
		}
		return nil
	case FixFormatConfig:
		res := r.runner.Fmt(ctx)
		if !res.Success() {
			return fmt.Errorf("failed to format configuration: %s", res.Tail(5))
		}
		return nil
	default:
		return fmt.Errorf("unknown fix %q", fix)
	}
}

// injectProviderConfig writes a default AWS provider block unless one
// already exists somewhere in the root configuration.
func (r *Remediator) injectProviderConfig() error {
	files, err := filepath.Glob(filepath.Join(r.dir, "*.tf"))
	if err != nil {
		return err
	}
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", filepath.Base(file), err)
		}
		if strings.Contains(string(data), `provider "aws"`) {
			return nil
		}
	}
	block := "provider \"aws\" {\n  region = var.region\n}\n"
	path := filepath.Join(r.dir, "provider_override.tf")
	if err := os.WriteFile(path, []byte(block), 0644); err != nil {
		return fmt.Errorf("failed to write provider block: %w", err)
	}
	return nil
}

var requiredVarPattern = regexp.MustCompile(`No value for required variable[\s\S]*?variable "([^"]+)"`)

// injectRequiredVars generates placeholder values for variables the
// failure output names. Values merge into an auto-loaded vars file and
// re-running the fix with the same output changes nothing.
func (r *Remediator) injectRequiredVars(output string) error {
	names := make(map[string]struct{})
	for _, m := range requiredVarPattern.FindAllStringSubmatch(output, -1) {
		names[m[1]] = struct{}{}
	}
	if len(names) == 0 {
		return fmt.Errorf("no variable names found in failure output")
	}

	path := filepath.Join(r.dir, "generated.auto.tfvars.json")
	vars := make(map[string]interface{})
	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, &vars); err != nil {
			return fmt.Errorf("failed to decode %s: %w", filepath.Base(path), err)
		}
	}
	for name := range names {
		if _, ok := vars[name]; !ok {
			vars[name] = ""
		}
	}

	data, err := json.MarshalIndent(vars, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write placeholder vars: %w", err)
	}

	sorted := make([]string, 0, len(names))
	for name := range names {
		sorted = append(sorted, name)
	}
	sort.Strings(sorted)
	r.logger.Info().Strs("variables", sorted).Msg("Generated placeholder variable values")
	return nil
}

// deduplicateProviders keeps the first aws provider block encountered
// and comments out the rest.
func (r *Remediator) deduplicateProviders() error {
	files, err := filepath.Glob(filepath.Join(r.dir, "*.tf"))
	if err != nil {
		return err
	}
	sort.Strings(files)

	kept := false
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", filepath.Base(file), err)
		}
		updated, changed := disableExtraProviderBlocks(string(data), &kept)
		if !changed {
			continue
		}
		if err := os.WriteFile(file, []byte(updated), 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", filepath.Base(file), err)
		}
		r.logger.Info().Str("file", filepath.Base(file)).Msg("Disabled duplicate provider block")
	}
	return nil
}

// disableExtraProviderBlocks comments out every aws provider block
// after the first across the whole configuration. kept tracks whether
// the first block has been seen in an earlier file.
func disableExtraProviderBlocks(content string, kept *bool) (string, bool) {
	lines := strings.Split(content, "\n")
	changed := false
	depth := 0
	disabling := false

	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if !disabling && depth == 0 && strings.HasPrefix(trimmed, `provider "aws"`) {
			if !*kept {
				*kept = true
			} else {
				disabling = true
			}
		}
		if disabling {
			if !strings.HasPrefix(trimmed, "#") {
				lines[i] = "# " + line
				changed = true
			}
			depth += strings.Count(line, "{") - strings.Count(line, "}")
			if depth <= 0 {
				disabling = false
				depth = 0
			}
			continue
		}
		depth += strings.Count(line, "{") - strings.Count(line, "}")
	}
	return strings.Join(lines, "\n"), changed
}
