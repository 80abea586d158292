package kube

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/buildandburn/buildandburn/pkg/manifest"
	"github.com/buildandburn/buildandburn/pkg/provision"
)

// chartValues is the values document rendered for chart-based
// deployments. It mirrors the manifest with provisioning outputs
// folded into each service's environment.
type chartValues struct {
	Name     string                `yaml:"name"`
	Ingress  *manifest.IngressSpec `yaml:"ingress,omitempty"`
	Services []manifest.Service    `yaml:"services,omitempty"`
}

// WriteValues renders the helm values file for an environment. Service
// definitions pass through from the manifest; infrastructure
// connection variables from provisioning outputs are appended to each
// dependent service's env list.
func WriteValues(path string, m *manifest.Manifest, outputs provision.Outputs) error {
	values := chartValues{
		Name:    m.Name,
		Ingress: m.Ingress,
	}

	for i := range m.Services {
		svc := m.Services[i]
		for _, dep := range svc.Dependencies {
			var extra []EnvVar
			switch dependencyTypeFor(dep) {
			case manifest.DependencyDatabase:
				extra = databaseEnv(outputs, nil)
			case manifest.DependencyQueue:
				extra = queueEnv(outputs, nil)
			case manifest.DependencyRedis:
				extra = redisEnv(outputs)
			case manifest.DependencyKafka:
				extra = kafkaEnv(outputs)
			}
			for _, e := range extra {
				svc.Env = append(svc.Env, manifest.EnvVar{Name: e.Name, Value: e.Value})
			}
		}
		values.Services = append(values.Services, svc)
	}

	data, err := yaml.Marshal(values)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}
