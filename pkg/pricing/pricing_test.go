package pricing

import (
	"math"
	"reflect"
	"testing"

	"github.com/buildandburn/buildandburn/pkg/manifest"
)

func near(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestSummarizeCoreOnly(t *testing.T) {
	vars := manifest.Variables{
		"project_name":       "demo",
		"env_id":             "abc123",
		"eks_instance_types": []string{"t3.medium"},
		"eks_node_min":       2,
		"dependencies":       []string{},
	}

	est := Summarize(vars)
	if len(est.Items) != 2 {
		t.Fatalf("Items = %+v, want cluster and nodes", est.Items)
	}
	if !near(est.Items[0].Hourly, 0.10) {
		t.Errorf("control plane = %v", est.Items[0].Hourly)
	}
	if !near(est.Items[1].Hourly, 2*0.0416) {
		t.Errorf("nodes = %v, want 2 x t3.medium", est.Items[1].Hourly)
	}
	if !near(est.Hourly, 0.10+2*0.0416) {
		t.Errorf("Hourly = %v", est.Hourly)
	}
	if !near(est.Monthly, est.Hourly*720) {
		t.Errorf("Monthly = %v", est.Monthly)
	}
}

func TestSummarizeWithDependencies(t *testing.T) {
	m := &manifest.Manifest{
		Name: "demo",
		Dependencies: []manifest.Dependency{
			{Type: manifest.DependencyDatabase},
			{Type: manifest.DependencyQueue},
			{Type: manifest.DependencyRedis},
		},
	}
	vars, _ := manifest.Compile(m, "abc123")

	est := Summarize(vars)
	var resources []string
	for _, item := range est.Items {
		resources = append(resources, item.Resource)
	}
	want := []string{"EKS Cluster", "EC2 Instance", "RDS Instance", "MQ Broker", "ElastiCache Node"}
	if !reflect.DeepEqual(resources, want) {
		t.Errorf("resources = %v, want %v", resources, want)
	}

	wantHourly := 0.10 + 0.0416 + 0.034 + 0.028 + 0.017
	if !near(est.Hourly, wantHourly) {
		t.Errorf("Hourly = %v, want %v", est.Hourly, wantHourly)
	}
}

func TestSummarizeUnknownClassFallback(t *testing.T) {
	vars := manifest.Variables{
		"project_name":       "demo",
		"env_id":             "abc123",
		"eks_instance_types": []string{"m7i.48xlarge"},
		"eks_node_min":       1,
		"dependencies":       []string{"database"},
		"db_instance_class":  "db.r6g.16xlarge",
	}

	est := Summarize(vars)
	if !near(est.Items[1].Hourly, 0.05) {
		t.Errorf("unknown node rate = %v, want fallback", est.Items[1].Hourly)
	}
	if !near(est.Items[2].Hourly, 0.04) {
		t.Errorf("unknown db rate = %v, want fallback", est.Items[2].Hourly)
	}
}

func TestSummarizeDeterministic(t *testing.T) {
	m := &manifest.Manifest{
		Name:         "demo",
		Dependencies: []manifest.Dependency{{Type: manifest.DependencyKafka}},
	}
	vars, _ := manifest.Compile(m, "abc123")

	first := Summarize(vars)
	second := Summarize(vars)
	if !reflect.DeepEqual(first, second) {
		t.Error("estimate is not deterministic")
	}
	// Two brokers by default.
	if !near(first.Items[2].Hourly, 2*0.0456) {
		t.Errorf("kafka = %v, want 2 brokers", first.Items[2].Hourly)
	}
}
