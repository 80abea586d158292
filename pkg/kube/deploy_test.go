package kube

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// fakeRunner scripts command outcomes and records invocations.
type fakeRunner struct {
	calls     []string
	responses []fakeResponse
}

type fakeResponse struct {
	stdout string
	stderr string
	err    error
}

func (f *fakeRunner) Run(_ context.Context, name string, args []string, _ string) (string, string, error) {
	f.calls = append(f.calls, name+" "+strings.Join(args, " "))
	if len(f.responses) == 0 {
		return "", "", nil
	}
	resp := f.responses[0]
	f.responses = f.responses[1:]
	return resp.stdout, resp.stderr, resp.err
}

func testDeployer(runner *fakeRunner) *Deployer {
	return &Deployer{
		namespace:      "bb-demo",
		runner:         runner,
		logger:         zerolog.Nop(),
		rolloutTimeout: time.Minute,
	}
}

func TestDeployHelmSuccess(t *testing.T) {
	runner := &fakeRunner{}
	d := testDeployer(runner)

	if err := d.DeployHelm(context.Background(), "demo", "/chart", "/values.yaml"); err != nil {
		t.Fatalf("DeployHelm: %v", err)
	}
	if len(runner.calls) != 1 || !strings.HasPrefix(runner.calls[0], "helm upgrade --install demo") {
		t.Errorf("calls = %v", runner.calls)
	}
}

func TestDeployHelmOwnershipRetry(t *testing.T) {
	// First helm call fails on ownership, then the namespace delete and
	// the helm retry succeed.
	runner := &fakeRunner{responses: []fakeResponse{
		{stderr: "Error: rendered manifests contain a resource with invalid ownership metadata", err: errors.New("exit 1")},
		{},
		{},
	}}
	d := testDeployer(runner)

	if err := d.DeployHelm(context.Background(), "demo", "/chart", "/values.yaml"); err != nil {
		t.Fatalf("DeployHelm after retry: %v", err)
	}
	if len(runner.calls) != 3 {
		t.Fatalf("calls = %v, want helm, delete, helm", runner.calls)
	}
	if !strings.HasPrefix(runner.calls[1], "kubectl delete namespace bb-demo") {
		t.Errorf("second call = %s", runner.calls[1])
	}
}

func TestDeployHelmRetriesOnlyOnce(t *testing.T) {
	failure := fakeResponse{stderr: "invalid ownership metadata", err: errors.New("exit 1")}
	runner := &fakeRunner{responses: []fakeResponse{failure, {}, failure}}
	d := testDeployer(runner)

	if err := d.DeployHelm(context.Background(), "demo", "/chart", "/values.yaml"); err == nil {
		t.Fatal("expected error when retry also fails")
	}
	if len(runner.calls) != 3 {
		t.Errorf("calls = %d, want exactly one retry", len(runner.calls))
	}
}

func TestDeployHelmOtherFailureNoRetry(t *testing.T) {
	runner := &fakeRunner{responses: []fakeResponse{
		{stderr: "Error: chart not found", err: errors.New("exit 1")},
	}}
	d := testDeployer(runner)

	if err := d.DeployHelm(context.Background(), "demo", "/chart", "/values.yaml"); err == nil {
		t.Fatal("expected error")
	}
	if len(runner.calls) != 1 {
		t.Errorf("calls = %v, unrelated failures must not trigger the namespace reset", runner.calls)
	}
}

func TestEnsureNamespaceToleratesExisting(t *testing.T) {
	runner := &fakeRunner{responses: []fakeResponse{
		{stderr: `namespaces "bb-demo" already exists`, err: errors.New("exit 1")},
	}}
	d := testDeployer(runner)

	if err := d.EnsureNamespace(context.Background()); err != nil {
		t.Fatalf("EnsureNamespace: %v", err)
	}
}

func TestWaitRolloutFailure(t *testing.T) {
	runner := &fakeRunner{responses: []fakeResponse{
		{},
		{stderr: "error: deployment \"worker\" exceeded its progress deadline", err: errors.New("exit 1")},
	}}
	d := testDeployer(runner)

	err := d.WaitRollout(context.Background(), []string{"api", "worker"})
	if err == nil {
		t.Fatal("expected rollout failure")
	}
	if !strings.Contains(err.Error(), "worker") {
		t.Errorf("error does not name the stalled deployment: %v", err)
	}
}

func TestGatherAccess(t *testing.T) {
	svcJSON := `{"items":[
		{"metadata":{"name":"api"},"spec":{"type":"LoadBalancer","clusterIP":"10.0.0.5","ports":[{"port":80}]},
		 "status":{"loadBalancer":{"ingress":[{"hostname":"lb.example.com"}]}}},
		{"metadata":{"name":"worker"},"spec":{"type":"ClusterIP","clusterIP":"10.0.0.6","ports":[{"port":9000}]},"status":{}}
	]}`
	ingJSON := `{"items":[
		{"metadata":{"name":"api"},"spec":{"rules":[{"host":"api.dev.example.org"}]},
		 "status":{"loadBalancer":{"ingress":[{"hostname":"ing.example.com"}]}}}
	]}`
	runner := &fakeRunner{responses: []fakeResponse{
		{stdout: svcJSON},
		{stdout: ingJSON},
	}}
	d := testDeployer(runner)

	info, err := d.GatherAccess(context.Background())
	if err != nil {
		t.Fatalf("GatherAccess: %v", err)
	}
	if len(info.Services) != 2 {
		t.Fatalf("Services = %+v", info.Services)
	}
	if info.Services[0].URL != "http://lb.example.com:80" {
		t.Errorf("load balancer URL = %s", info.Services[0].URL)
	}
	if got := info.PrimaryURL(); got != "http://api.dev.example.org" {
		t.Errorf("PrimaryURL = %s, ingress should win", got)
	}
}
