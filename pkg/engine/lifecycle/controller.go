package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/buildandburn/buildandburn/pkg/engine"
	"github.com/buildandburn/buildandburn/pkg/kube"
	"github.com/buildandburn/buildandburn/pkg/manifest"
	"github.com/buildandburn/buildandburn/pkg/modules"
	"github.com/buildandburn/buildandburn/pkg/policy"
	"github.com/buildandburn/buildandburn/pkg/pricing"
	"github.com/buildandburn/buildandburn/pkg/provision"
	"github.com/buildandburn/buildandburn/pkg/stores"
	"github.com/buildandburn/buildandburn/pkg/telemetry"
)

// ConfirmFunc asks the operator a yes/no question. A nil ConfirmFunc
// answers yes, which keeps non-interactive callers working.
type ConfirmFunc func(prompt string) bool

// Controller sequences environment lifecycle operations: it owns the
// phase ordering, persists the record after every phase, and holds the
// per-environment lock for the duration of an operation.
type Controller struct {
	store    stores.Store
	policies *policy.Engine
	timeouts provision.Timeouts
	home     string
	logger   zerolog.Logger
	tel      *telemetry.Telemetry
	confirm  ConfirmFunc
}

// Config assembles a Controller.
type Config struct {
	Store    stores.Store
	Policies *policy.Engine
	Timeouts provision.Timeouts
	Home     string
	Logger   zerolog.Logger
	// Telemetry is optional; nil disables tracing, metrics, and events.
	Telemetry *telemetry.Telemetry
	// Confirm is optional; nil auto-approves interactive prompts.
	Confirm ConfirmFunc
}

// NewController creates a lifecycle controller.
func NewController(cfg Config) *Controller {
	return &Controller{
		store:    cfg.Store,
		policies: cfg.Policies,
		timeouts: cfg.Timeouts,
		home:     cfg.Home,
		logger:   cfg.Logger.With().Str("component", "lifecycle").Logger(),
		tel:      cfg.Telemetry,
		confirm:  cfg.Confirm,
	}
}

// Telemetry returns the telemetry bundle the controller was built
// with, or nil when none was configured.
func (c *Controller) Telemetry() *telemetry.Telemetry {
	return c.tel
}

// UpOptions controls an up run.
type UpOptions struct {
	ManifestPath string
	ModulesDir   string
	ChartDir     string
	EnvID        string
	AutoApprove  bool
	DryRun       bool
	SkipDeploy   bool
	// SkipModuleConfirmation applies module fixes without prompting.
	SkipModuleConfirmation bool
}

// UpResult is what an up run produced.
type UpResult struct {
	Record   *stores.Environment
	Access   *kube.AccessInfo
	Estimate *pricing.Estimate
	Warnings []string
	// PlanOnly is true when --dry-run stopped the run after planning.
	PlanOnly bool
}

// NewEnvID mints a short environment identifier.
func NewEnvID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// Up provisions infrastructure and deploys workloads for a manifest.
func (c *Controller) Up(ctx context.Context, opts UpOptions) (*UpResult, error) {
	start := time.Now()

	if err := provision.CheckPrerequisites(provision.RequiredTools...); err != nil {
		return nil, err
	}

	m, err := manifest.NewLoader().Load(opts.ManifestPath)
	if err != nil {
		return nil, engine.NewValidationError("manifest rejected", err)
	}

	envID := opts.EnvID
	resuming := false
	if envID == "" {
		envID = NewEnvID()
	} else if _, getErr := c.store.GetEnvironment(ctx, envID); getErr == nil {
		resuming = true
	}
	logger := c.logger.With().Str("env_id", envID).Logger()
	logger.Info().Str("project", m.Name).Bool("resuming", resuming).Msg("Starting up")
	if c.tel != nil {
		c.tel.Metrics.RecordOperationStarted("up")
		_ = c.tel.Events.PublishOperationStarted(envID, "up")
	}

	result := &UpResult{}
	if err := c.admit(ctx, m, envID, "up", result); err != nil {
		return nil, err
	}

	vars, warnings := manifest.Compile(m, envID)
	for _, w := range warnings {
		logger.Warn().Str("dependency", string(w.Dependency)).Msg(w.Message)
		result.Warnings = append(result.Warnings, w.String())
	}

	if err := c.validateModules(m, opts, logger); err != nil {
		return nil, err
	}

	paths, err := engine.PrepareEnvDir(c.home, envID, opts.ModulesDir, vars)
	if err != nil {
		return nil, engine.NewStateError("failed to prepare environment directory", err).WithEnvID(envID)
	}

	lock, err := engine.AcquireLock(paths.LockFile)
	if err != nil {
		return nil, err
	}
	defer func() {
		if relErr := lock.Release(); relErr != nil {
			logger.Warn().Err(relErr).Msg("Failed to release environment lock")
		}
	}()

	record, err := c.ensureRecord(ctx, m, envID, vars, paths, opts.ManifestPath, resuming)
	if err != nil {
		return nil, err
	}
	result.Record = record

	if repaired, stateErr := provision.EnsureValidState(paths.StateFile); stateErr != nil {
		return nil, stateErr
	} else if repaired {
		logger.Warn().Str("state_file", paths.StateFile).Msg("State file was missing or corrupt, wrote empty state")
	}

	runner := provision.NewRunner(paths.TerraformDir, c.timeouts, logger)
	remediator := provision.NewRemediator(runner, logger)

	if err := c.provisionPhase(ctx, remediator, runner, paths, record, opts.DryRun, logger); err != nil {
		c.failRecord(ctx, record, stores.OperationUp, start, err, paths, logger)
		return nil, err
	}
	if opts.DryRun {
		result.PlanOnly = true
		logger.Info().Msg("Dry run complete, nothing applied")
		return result, nil
	}

	outputs, err := runner.Output(ctx)
	if err != nil {
		c.failRecord(ctx, record, stores.OperationUp, start, err, paths, logger)
		return nil, err
	}
	if data, marshalErr := json.Marshal(outputs); marshalErr == nil {
		record.Outputs = string(data)
	}
	record.Status = stores.StatusProvisioned
	if err := c.store.UpdateEnvironment(ctx, record); err != nil {
		return nil, engine.NewStateError("failed to persist environment record", err).WithEnvID(envID)
	}

	if !opts.SkipDeploy {
		access, deployErr := c.deployPhase(ctx, m, outputs, paths, opts.ChartDir, record, logger)
		if deployErr != nil {
			c.failRecord(ctx, record, stores.OperationUp, start, deployErr, paths, logger)
			return nil, deployErr
		}
		result.Access = access
	}

	result.Estimate = pricing.Summarize(vars)
	if data, marshalErr := json.Marshal(result.Estimate); marshalErr == nil {
		record.Cost = string(data)
	}
	record.Status = stores.StatusDeployed
	if opts.SkipDeploy {
		record.Status = stores.StatusProvisioned
	}
	if err := c.store.UpdateEnvironment(ctx, record); err != nil {
		return nil, engine.NewStateError("failed to persist environment record", err).WithEnvID(envID)
	}

	c.recordOperation(ctx, envID, stores.OperationUp, start, nil)
	if c.tel != nil {
		c.tel.Metrics.RecordOperationCompleted("up", "succeeded", time.Since(start))
		_ = c.tel.Events.PublishOperationCompleted(envID, "up", time.Since(start))
	}
	logger.Info().Dur("duration", time.Since(start)).Msg("Environment is up")
	return result, nil
}

// admit evaluates admission policies and rejects the run on blocking
// violations.
func (c *Controller) admit(ctx context.Context, m *manifest.Manifest, envID, operation string, result *UpResult) error {
	if c.policies == nil {
		return nil
	}
	res, err := c.policies.Evaluate(ctx, m, nil, operation)
	if err != nil {
		return engine.NewValidationError("policy evaluation failed", err).WithEnvID(envID)
	}
	for _, w := range res.Warnings {
		c.logger.Warn().Str("policy", w.Policy).Msg(w.Message)
		if result != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("%s: %s", w.Policy, w.Message))
		}
		if c.tel != nil {
			c.tel.Metrics.RecordPolicyFinding(w.Policy, string(w.Severity))
		}
	}
	if !res.Allowed {
		var msgs []string
		for _, v := range res.Violations {
			msgs = append(msgs, fmt.Sprintf("%s: %s", v.Policy, v.Message))
			if c.tel != nil {
				c.tel.Metrics.RecordPolicyFinding(v.Policy, string(v.Severity))
				_ = c.tel.Events.PublishPolicyViolation(envID, v.Policy, v.Message)
			}
		}
		return engine.NewValidationError(
			fmt.Sprintf("manifest rejected by policy: %s", strings.Join(msgs, "; ")), nil).
			WithEnvID(envID).WithCode("POLICY_VIOLATION")
	}
	return nil
}

// validateModules checks the module directory against the manifest and
// applies fixes when allowed.
func (c *Controller) validateModules(m *manifest.Manifest, opts UpOptions, logger zerolog.Logger) error {
	validator := modules.NewValidator(opts.ModulesDir, logger)
	res, err := validator.Validate(m)
	if err != nil {
		return err
	}
	for _, w := range res.Warnings() {
		logger.Warn().Msg(w)
	}
	if res.Valid {
		return nil
	}

	if len(res.MissingCore) > 0 {
		return engine.NewValidationError(
			fmt.Sprintf("missing core modules: %s", strings.Join(res.MissingCore, ", ")), nil).
			WithCode(engine.ErrCodeMissingCoreModule).
			WithSuggestion("core modules cannot be generated, add them to " + opts.ModulesDir)
	}
	if !res.AutoFixable {
		return engine.NewValidationError("module validation failed and cannot be fixed automatically", nil).
			WithDetail("missing_dependency", res.MissingDependency).
			WithDetail("missing_policy", res.MissingPolicy)
	}

	approved := opts.SkipModuleConfirmation || opts.AutoApprove
	if !approved && c.confirm != nil {
		approved = c.confirm(fmt.Sprintf("Apply %d module fixes to %s?", len(res.Fixes), opts.ModulesDir))
	} else if c.confirm == nil {
		approved = true
	}
	if !approved {
		return engine.NewValidationError("module fixes declined", nil)
	}

	if err := modules.NewFixer(opts.ModulesDir, logger).Apply(res.Fixes); err != nil {
		return err
	}
	if c.tel != nil {
		for _, fix := range res.Fixes {
			c.tel.Metrics.RecordRemediationFix(string(fix.Type))
		}
	}

	recheck, err := validator.Validate(m)
	if err != nil {
		return err
	}
	if !recheck.Valid {
		return engine.NewValidationError("module validation still failing after fixes", nil)
	}
	return nil
}

// ensureRecord creates or refreshes the index record for this run.
func (c *Controller) ensureRecord(ctx context.Context, m *manifest.Manifest, envID string, vars manifest.Variables, paths engine.EnvPaths, manifestPath string, resuming bool) (*stores.Environment, error) {
	varsJSON, err := json.Marshal(vars)
	if err != nil {
		return nil, engine.NewStateError("failed to encode variables", err)
	}

	manifestYAML := ""
	if data, readErr := os.ReadFile(manifestPath); readErr == nil {
		manifestYAML = string(data)
	}

	if resuming {
		record, getErr := c.store.GetEnvironment(ctx, envID)
		if getErr != nil {
			return nil, engine.NewStateError("failed to load environment record", getErr).WithEnvID(envID)
		}
		record.Status = stores.StatusProvisioning
		record.Variables = string(varsJSON)
		if updErr := c.store.UpdateEnvironment(ctx, record); updErr != nil {
			return nil, engine.NewStateError("failed to persist environment record", updErr).WithEnvID(envID)
		}
		return record, nil
	}

	now := time.Now().UTC()
	region, _ := vars["region"].(string)
	record := &stores.Environment{
		ID:        envID,
		Project:   m.Name,
		Region:    region,
		Status:    stores.StatusProvisioning,
		Manifest:  manifestYAML,
		Variables: string(varsJSON),
		StateFile: paths.StateFile,
		EnvDir:    paths.Root,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if createErr := c.store.CreateEnvironment(ctx, record); createErr != nil {
		return nil, engine.NewStateError("failed to create environment record", createErr).WithEnvID(envID)
	}
	return record, nil
}

// provisionPhase runs init, plan, and (unless dryRun) apply under the
// remediating supervisor.
func (c *Controller) provisionPhase(ctx context.Context, remediator *provision.Remediator, runner *provision.Runner, paths engine.EnvPaths, record *stores.Environment, dryRun bool, logger zerolog.Logger) error {
	done := c.startPhase(ctx, record.ID, "provision")
	var phaseErr error
	defer func() { done(phaseErr) }()

	res, err := remediator.RunWithRemediation(ctx, func(ctx context.Context) *provision.CommandResult {
		return runner.Init(ctx, false, false)
	})
	if phaseErr = commandError(res, err, record.ID, paths.StateFile); phaseErr != nil {
		return phaseErr
	}

	res, err = remediator.RunWithRemediation(ctx, func(ctx context.Context) *provision.CommandResult {
		return runner.Plan(ctx, paths.VarsFile, paths.PlanFile, false)
	})
	if phaseErr = commandError(res, err, record.ID, paths.StateFile); phaseErr != nil {
		return phaseErr
	}
	if dryRun {
		return nil
	}

	res, err = remediator.RunWithRemediation(ctx, func(ctx context.Context) *provision.CommandResult {
		return runner.Apply(ctx, paths.PlanFile)
	})
	if phaseErr = commandError(res, err, record.ID, paths.StateFile); phaseErr != nil {
		return phaseErr
	}
	if res.Extended {
		logger.Info().Msg("Apply finished after a deadline extension")
		if c.tel != nil {
			c.tel.Metrics.RecordTimeoutExtension()
			_ = c.tel.Events.PublishTimeoutExtended(record.ID, res.InFlight)
		}
	}
	return nil
}

// deployPhase writes the kubeconfig, synthesizes resources, deploys
// them, and gathers access info.
func (c *Controller) deployPhase(ctx context.Context, m *manifest.Manifest, outputs provision.Outputs, paths engine.EnvPaths, chartDir string, record *stores.Environment, logger zerolog.Logger) (*kube.AccessInfo, error) {
	done := c.startPhase(ctx, record.ID, "deploy")
	var phaseErr error
	defer func() { done(phaseErr) }()

	record.Status = stores.StatusDeploying
	if err := c.store.UpdateEnvironment(ctx, record); err != nil {
		phaseErr = engine.NewStateError("failed to persist environment record", err).WithEnvID(record.ID)
		return nil, phaseErr
	}

	kubeconfig := outputs.String("kubeconfig")
	if kubeconfig == "" {
		phaseErr = engine.NewDeployError("provisioning outputs carry no kubeconfig", nil).WithEnvID(record.ID)
		return nil, phaseErr
	}
	if err := os.WriteFile(paths.Kubeconfig, []byte(kubeconfig), 0o600); err != nil {
		phaseErr = engine.NewDeployError("failed to write kubeconfig", err).WithEnvID(record.ID)
		return nil, phaseErr
	}

	graph, err := kube.NewSynthesizer(logger).Synthesize(m, outputs)
	if err != nil {
		phaseErr = err
		return nil, phaseErr
	}
	var rendered strings.Builder
	if err := graph.Encode(&rendered); err != nil {
		phaseErr = engine.NewDeployError("failed to render deployment resources", err).WithEnvID(record.ID)
		return nil, phaseErr
	}
	if err := os.WriteFile(paths.ManifestFile, []byte(rendered.String()), 0o644); err != nil {
		phaseErr = engine.NewDeployError("failed to write rendered resources", err).WithEnvID(record.ID)
		return nil, phaseErr
	}

	ns := kube.NamespaceFor(m.Name)
	deployer := kube.NewDeployer(paths.Kubeconfig, ns, logger)
	if err := deployer.EnsureNamespace(ctx); err != nil {
		phaseErr = err
		return nil, phaseErr
	}

	method := "kubectl"
	if chartDir != "" {
		method = "helm"
		if err := kube.WriteValues(paths.ValuesFile, m, outputs); err != nil {
			phaseErr = err
			return nil, phaseErr
		}
		if err := deployer.DeployHelm(ctx, m.Name, chartDir, paths.ValuesFile); err != nil {
			logger.Warn().Err(err).Msg("Helm deploy failed, falling back to kubectl apply")
			method = "kubectl"
			if applyErr := deployer.ApplyManifests(ctx, rendered.String()); applyErr != nil {
				phaseErr = applyErr
				return nil, phaseErr
			}
		}
	} else if err := deployer.ApplyManifests(ctx, rendered.String()); err != nil {
		phaseErr = err
		return nil, phaseErr
	}

	var deployments []string
	for _, svc := range m.Services {
		deployments = append(deployments, svc.Name)
	}
	if err := deployer.WaitRollout(ctx, deployments); err != nil {
		phaseErr = err
		return nil, phaseErr
	}
	if c.tel != nil {
		c.tel.Metrics.RecordDeploy(method, "succeeded")
	}

	access, err := deployer.GatherAccess(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to gather access info")
		access = &kube.AccessInfo{Namespace: ns}
	}
	if data, marshalErr := json.Marshal(access); marshalErr == nil {
		record.Access = string(data)
	}
	return access, nil
}

// DownOptions controls a down run.
type DownOptions struct {
	EnvID       string
	Force       bool
	AutoApprove bool
	KeepLocal   bool
}

// Down destroys an environment's infrastructure and removes its local
// files.
func (c *Controller) Down(ctx context.Context, opts DownOptions) error {
	start := time.Now()

	record, err := c.store.GetEnvironment(ctx, opts.EnvID)
	if err != nil {
		return engine.NewStateError("environment not found in index", err).WithEnvID(opts.EnvID).
			WithSuggestion("run `buildandburn list` to see known environments")
	}
	if err := provision.CheckPrerequisites("terraform"); err != nil {
		return err
	}
	logger := c.logger.With().Str("env_id", record.ID).Logger()
	if c.tel != nil {
		c.tel.Metrics.RecordOperationStarted("down")
		_ = c.tel.Events.PublishOperationStarted(record.ID, "down")
	}

	if !opts.AutoApprove && c.confirm != nil {
		if !c.confirm(fmt.Sprintf("Destroy environment %s (%s)?", record.ID, record.Project)) {
			return engine.NewValidationError("destroy aborted", nil).WithEnvID(record.ID)
		}
	}

	paths := engine.PathsFor(c.home, record.ID)
	lock, err := engine.AcquireLock(paths.LockFile)
	if err != nil {
		return err
	}
	defer func() {
		_ = lock.Release()
	}()

	record.Status = stores.StatusDestroying
	if err := c.store.UpdateEnvironment(ctx, record); err != nil {
		return engine.NewStateError("failed to persist environment record", err).WithEnvID(record.ID)
	}

	destroyErr := c.destroyPhase(ctx, paths, record, logger)
	if destroyErr != nil {
		c.recordOperation(ctx, record.ID, stores.OperationDown, start, destroyErr)
		if !opts.Force {
			record.Status = stores.StatusFailed
			_ = c.store.UpdateEnvironment(ctx, record)
			logger.Error().Str("state_file", paths.StateFile).
				Msg("Destroy failed, state preserved for a retry")
			return destroyErr
		}
		logger.Warn().Err(destroyErr).Msg("Destroy failed, removing local state anyway (--force)")
	}

	if err := c.store.MarkDestroyed(ctx, record.ID); err != nil {
		return engine.NewStateError("failed to mark environment destroyed", err).WithEnvID(record.ID)
	}
	if !opts.KeepLocal {
		_ = lock.Release()
		if err := engine.RemoveEnvDir(c.home, record.ID); err != nil {
			logger.Warn().Err(err).Msg("Failed to remove environment directory")
		}
	}

	if destroyErr == nil {
		c.recordOperation(ctx, record.ID, stores.OperationDown, start, nil)
		if c.tel != nil {
			c.tel.Metrics.RecordOperationCompleted("down", "succeeded", time.Since(start))
			_ = c.tel.Events.PublishOperationCompleted(record.ID, "down", time.Since(start))
		}
	}
	logger.Info().Dur("duration", time.Since(start)).Msg("Environment is down")
	return destroyErr
}

// destroyPhase plans and applies a destroy, falling back to a direct
// destroy when planning fails.
func (c *Controller) destroyPhase(ctx context.Context, paths engine.EnvPaths, record *stores.Environment, logger zerolog.Logger) error {
	done := c.startPhase(ctx, record.ID, "destroy")
	var phaseErr error
	defer func() { done(phaseErr) }()

	if repaired, err := provision.EnsureValidState(paths.StateFile); err != nil {
		phaseErr = err
		return phaseErr
	} else if repaired {
		logger.Warn().Msg("State file was missing or corrupt, wrote empty state before destroy")
	}

	runner := provision.NewRunner(paths.TerraformDir, c.timeouts, logger)
	remediator := provision.NewRemediator(runner, logger)

	res, err := remediator.RunWithRemediation(ctx, func(ctx context.Context) *provision.CommandResult {
		return runner.Init(ctx, false, true)
	})
	if phaseErr = commandError(res, err, record.ID, paths.StateFile); phaseErr != nil {
		return phaseErr
	}

	planRes, err := remediator.RunWithRemediation(ctx, func(ctx context.Context) *provision.CommandResult {
		return runner.Plan(ctx, paths.VarsFile, paths.PlanFile, true)
	})
	if err == nil && planRes.Success() {
		applyRes, applyErr := remediator.RunWithRemediation(ctx, func(ctx context.Context) *provision.CommandResult {
			return runner.Apply(ctx, paths.PlanFile)
		})
		if phaseErr = commandError(applyRes, applyErr, record.ID, paths.StateFile); phaseErr == nil {
			return nil
		}
		logger.Warn().Msg("Destroy plan apply failed, attempting direct destroy")
	} else {
		logger.Warn().Msg("Destroy planning failed, attempting direct destroy")
	}

	directRes, directErr := remediator.RunWithRemediation(ctx, func(ctx context.Context) *provision.CommandResult {
		return runner.Destroy(ctx, paths.VarsFile)
	})
	phaseErr = commandError(directRes, directErr, record.ID, paths.StateFile)
	return phaseErr
}

// InfoResult is the rendered view of one environment.
type InfoResult struct {
	Record     *stores.Environment
	Access     *kube.AccessInfo
	Estimate   *pricing.Estimate
	Operations []*stores.Operation
}

// Info loads an environment record and refreshes its access info when
// the cluster is still reachable.
func (c *Controller) Info(ctx context.Context, envID string, detailed bool) (*InfoResult, error) {
	record, err := c.store.GetEnvironment(ctx, envID)
	if err != nil {
		return nil, engine.NewStateError("environment not found in index", err).WithEnvID(envID)
	}

	result := &InfoResult{Record: record}
	if record.Access != "" {
		access := &kube.AccessInfo{}
		if err := json.Unmarshal([]byte(record.Access), access); err == nil {
			result.Access = access
		}
	}
	if record.Cost != "" {
		estimate := &pricing.Estimate{}
		if err := json.Unmarshal([]byte(record.Cost), estimate); err == nil {
			result.Estimate = estimate
		}
	}

	paths := engine.PathsFor(c.home, envID)
	if record.DestroyedAt == nil {
		if _, statErr := os.Stat(paths.Kubeconfig); statErr == nil {
			ns := kube.NamespaceFor(record.Project)
			deployer := kube.NewDeployer(paths.Kubeconfig, ns, c.logger)
			if live, liveErr := deployer.GatherAccess(ctx); liveErr == nil {
				result.Access = live
			}
		}
	}

	if detailed {
		ops, opsErr := c.store.ListOperations(ctx, envID, 20, 0)
		if opsErr == nil {
			result.Operations = ops
		}
	}
	return result, nil
}

// List returns the live environments, newest first.
func (c *Controller) List(ctx context.Context) ([]*stores.Environment, error) {
	envs, err := c.store.ListEnvironments(ctx, false)
	if err != nil {
		return nil, engine.NewStateError("failed to list environments", err)
	}
	if c.tel != nil {
		c.tel.Metrics.SetActiveEnvironments(float64(len(envs)))
	}
	return envs, nil
}

// ValidateResult is the outcome of an offline validation pass.
type ValidateResult struct {
	Manifest *manifest.Manifest
	Vars     manifest.Variables
	Warnings []string
	Modules  *modules.Result
	Policy   *policy.Result
}

// Validate compiles and checks a manifest without provisioning
// anything. Used by `validate` and the `dev` watch loop.
func (c *Controller) Validate(ctx context.Context, manifestPath, modulesDir string) (*ValidateResult, error) {
	m, err := manifest.NewLoader().Load(manifestPath)
	if err != nil {
		return nil, engine.NewValidationError("manifest rejected", err)
	}

	vars, warnings := manifest.Compile(m, "preview")
	result := &ValidateResult{Manifest: m, Vars: vars}
	for _, w := range warnings {
		result.Warnings = append(result.Warnings, w.String())
	}

	if c.policies != nil {
		policyRes, policyErr := c.policies.Evaluate(ctx, m, vars, "validate")
		if policyErr != nil {
			return nil, engine.NewValidationError("policy evaluation failed", policyErr)
		}
		result.Policy = policyRes
	}

	if modulesDir != "" {
		moduleRes, moduleErr := modules.NewValidator(modulesDir, c.logger).Validate(m)
		if moduleErr != nil {
			return nil, moduleErr
		}
		result.Modules = moduleRes
	}
	return result, nil
}

// startPhase opens a telemetry phase when telemetry is wired, and
// returns a completion callback either way.
func (c *Controller) startPhase(ctx context.Context, envID, phase string) func(error) {
	if c.tel == nil {
		return func(error) {}
	}
	_, done := c.tel.StartPhase(ctx, envID, phase)
	return done
}

// recordOperation appends an audit row; failures only log.
func (c *Controller) recordOperation(ctx context.Context, envID string, kind stores.OperationKind, start time.Time, opErr error) {
	op := &stores.Operation{
		EnvID:       envID,
		Kind:        kind,
		Outcome:     stores.OutcomeSucceeded,
		StartedAt:   start.UTC(),
		CompletedAt: time.Now().UTC(),
		Duration:    time.Since(start),
	}
	if opErr != nil {
		op.Outcome = stores.OutcomeFailed
		msg := opErr.Error()
		op.Error = &msg
	}
	if err := c.store.RecordOperation(ctx, op); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to record operation")
	}
}

// failRecord marks the record failed and records the failed operation.
func (c *Controller) failRecord(ctx context.Context, record *stores.Environment, kind stores.OperationKind, start time.Time, cause error, paths engine.EnvPaths, logger zerolog.Logger) {
	record.Status = stores.StatusFailed
	if err := c.store.UpdateEnvironment(ctx, record); err != nil {
		logger.Warn().Err(err).Msg("Failed to persist failure status")
	}
	c.recordOperation(ctx, record.ID, kind, start, cause)
	if c.tel != nil {
		var ee *engine.EngineError
		if errors.As(cause, &ee) {
			c.tel.Metrics.RecordError(string(ee.Class))
		}
		c.tel.Metrics.RecordOperationCompleted(string(kind), "failed", time.Since(start))
		_ = c.tel.Events.PublishOperationFailed(record.ID, string(kind), cause.Error())
	}
	logger.Error().Err(cause).Str("state_file", paths.StateFile).
		Msg("Operation failed, state preserved")
}

// commandError converts an unsuccessful command result into a
// classified error; a successful result yields nil.
func commandError(res *provision.CommandResult, err error, envID, stateFile string) error {
	if err != nil {
		var ee *engine.EngineError
		if errors.As(err, &ee) {
			return ee.WithEnvID(envID)
		}
		return engine.NewProvisionError("provisioner failed", err).WithEnvID(envID)
	}
	if res.Success() {
		return nil
	}
	if res.TimedOut {
		return engine.NewTimeoutError(
			fmt.Sprintf("%s exceeded its deadline", res.Op), nil).
			WithEnvID(envID).WithOperation(string(res.Op)).
			WithDetail("in_flight", res.InFlight).
			WithSuggestion("state is preserved at " + stateFile + ", rerun to resume")
	}
	if res.Err != nil {
		return engine.NewProvisionError(fmt.Sprintf("failed to run %s", res.Op), res.Err).
			WithEnvID(envID).WithOperation(string(res.Op))
	}
	return engine.NewProvisionError(
		fmt.Sprintf("%s exited with code %d", res.Op, res.ExitCode), nil).
		WithEnvID(envID).WithOperation(string(res.Op)).
		WithDetail("output_tail", res.Tail(20))
}
