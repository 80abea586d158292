package kube

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/buildandburn/buildandburn/pkg/engine"
)

// commandRunner abstracts kubectl and helm invocations so deployment
// logic is testable without a cluster.
type commandRunner interface {
	Run(ctx context.Context, name string, args []string, stdin string) (stdout, stderr string, err error)
}

// execRunner invokes real binaries with KUBECONFIG pointed at the
// environment's cluster.
type execRunner struct {
	kubeconfig string
}

func (r execRunner) Run(ctx context.Context, name string, args []string, stdin string) (string, string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = append(os.Environ(), "KUBECONFIG="+r.kubeconfig)
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}
	var out, errBuf bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errBuf
	err := cmd.Run()
	return out.String(), errBuf.String(), err
}

// Deployer drives workload deployment onto a provisioned cluster. Helm
// is the primary path; direct manifest application is the fallback.
type Deployer struct {
	namespace string
	runner    commandRunner
	logger    zerolog.Logger

	// rolloutTimeout bounds each workload's rollout wait.
	rolloutTimeout time.Duration
}

// NewDeployer creates a deployer for the given namespace, running
// kubectl and helm against the cluster the kubeconfig selects.
func NewDeployer(kubeconfig, namespace string, logger zerolog.Logger) *Deployer {
	return &Deployer{
		namespace:      namespace,
		runner:         execRunner{kubeconfig: kubeconfig},
		logger:         logger.With().Str("component", "deployer").Str("namespace", namespace).Logger(),
		rolloutTimeout: 5 * time.Minute,
	}
}

// EnsureNamespace creates the deployment namespace, tolerating one
// that already exists.
func (d *Deployer) EnsureNamespace(ctx context.Context) error {
	_, stderr, err := d.runner.Run(ctx, "kubectl", []string{"create", "namespace", d.namespace}, "")
	if err != nil && !strings.Contains(stderr, "already exists") {
		return engine.NewDeployError(
			fmt.Sprintf("failed to create namespace %s: %s", d.namespace, strings.TrimSpace(stderr)), err,
		)
	}
	return nil
}

// DeployHelm installs or upgrades the release. Releases that collide
// with objects helm does not own get one namespace reset and retry;
// any other failure returns for the caller to fall back on direct
// manifest application.
func (d *Deployer) DeployHelm(ctx context.Context, release, chartPath, valuesFile string) error {
	args := []string{
		"upgrade", "--install", release, chartPath,
		"--values", valuesFile,
		"--namespace", d.namespace,
		"--create-namespace",
	}

	_, stderr, err := d.runner.Run(ctx, "helm", args, "")
	if err == nil {
		d.logger.Info().Str("release", release).Msg("Helm release deployed")
		return nil
	}

	if strings.Contains(stderr, "invalid ownership metadata") {
		d.logger.Warn().Str("release", release).Msg("Namespace owned by another release, resetting and retrying once")
		if _, delErr, derr := d.runner.Run(ctx, "kubectl", []string{"delete", "namespace", d.namespace}, ""); derr != nil {
			return engine.NewDeployError(
				fmt.Sprintf("failed to reset namespace %s: %s", d.namespace, strings.TrimSpace(delErr)), derr,
			)
		}
		if _, stderr, err = d.runner.Run(ctx, "helm", args, ""); err == nil {
			d.logger.Info().Str("release", release).Msg("Helm release deployed after namespace reset")
			return nil
		}
	}

	return engine.NewDeployError(
		fmt.Sprintf("helm deployment failed: %s", strings.TrimSpace(stderr)), err,
	).WithSuggestion("check the deployment log; direct manifest application will be attempted")
}

// ApplyManifests applies a multi-document manifest stream directly.
func (d *Deployer) ApplyManifests(ctx context.Context, manifests string) error {
	_, stderr, err := d.runner.Run(ctx, "kubectl", []string{"apply", "-f", "-"}, manifests)
	if err != nil {
		return engine.NewDeployError(
			fmt.Sprintf("failed to apply manifests: %s", strings.TrimSpace(stderr)), err,
		)
	}
	d.logger.Info().Msg("Manifests applied")
	return nil
}

// WaitRollout blocks until every named workload reports a complete
// rollout. The first stalled workload fails the wait.
func (d *Deployer) WaitRollout(ctx context.Context, deployments []string) error {
	for _, name := range deployments {
		args := []string{
			"rollout", "status", "deployment/" + name,
			"--namespace", d.namespace,
			"--timeout", d.rolloutTimeout.String(),
		}
		if _, stderr, err := d.runner.Run(ctx, "kubectl", args, ""); err != nil {
			return engine.NewDeployError(
				fmt.Sprintf("rollout of %s did not complete: %s", name, strings.TrimSpace(stderr)), err,
			).WithSuggestion("inspect pod events with kubectl describe pods -n " + d.namespace)
		}
		d.logger.Info().Str("deployment", name).Msg("Rollout complete")
	}
	return nil
}
