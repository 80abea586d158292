package kube

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/buildandburn/buildandburn/pkg/engine"
	"github.com/buildandburn/buildandburn/pkg/manifest"
	"github.com/buildandburn/buildandburn/pkg/provision"
)

const managedByLabel = "buildandburn"

const (
	defaultServicePort   = 80
	defaultContainerPort = 8080
	defaultIngressDomain = "example.com"
)

// NamespaceFor returns the deployment namespace for a project.
func NamespaceFor(projectName string) string {
	return "bb-" + projectName
}

// Synthesizer turns a manifest and provisioning outputs into the
// kubernetes objects of an environment.
type Synthesizer struct {
	logger zerolog.Logger
}

// NewSynthesizer creates a synthesizer.
func NewSynthesizer(logger zerolog.Logger) *Synthesizer {
	return &Synthesizer{logger: logger.With().Str("component", "synthesizer").Logger()}
}

// Synthesize builds the full resource graph. Credentials from
// provisioning outputs land in one environment secret; container env
// vars reference that secret rather than carrying literals.
func (s *Synthesizer) Synthesize(m *manifest.Manifest, outputs provision.Outputs) (*ResourceGraph, error) {
	if m.Name == "" {
		return nil, engine.NewValidationError("manifest has no name", nil)
	}
	ns := NamespaceFor(m.Name)

	graph := &ResourceGraph{
		Namespace: &Namespace{
			APIVersion: "v1",
			Kind:       "Namespace",
			Metadata: Metadata{
				Name:   ns,
				Labels: map[string]string{"managed-by": managedByLabel},
			},
		},
	}

	infra := s.infraSecret(m, outputs, ns)
	if infra != nil {
		graph.Secrets = append(graph.Secrets, infra)
	}

	for i := range m.Services {
		svc := &m.Services[i]
		meta := objectMeta(svc.Name, ns, svc.Name)

		if svc.ServiceAccount {
			graph.ServiceAccounts = append(graph.ServiceAccounts, &ServiceAccount{
				APIVersion: "v1", Kind: "ServiceAccount", Metadata: meta,
			})
		}
		if len(svc.Config) > 0 {
			graph.ConfigMaps = append(graph.ConfigMaps, &ConfigMap{
				APIVersion: "v1", Kind: "ConfigMap",
				Metadata: objectMeta(svc.Name+"-config", ns, svc.Name),
				Data:     svc.Config,
			})
		}
		if len(svc.Secrets) > 0 {
			graph.Secrets = append(graph.Secrets, &Secret{
				APIVersion: "v1", Kind: "Secret",
				Metadata:   objectMeta(svc.Name+"-secret", ns, svc.Name),
				Type:       "Opaque",
				StringData: svc.Secrets,
			})
		}
		if svc.Persistence != nil && svc.Persistence.Enabled {
			graph.Claims = append(graph.Claims, claimFor(svc, ns))
		}

		graph.Deployments = append(graph.Deployments, s.deploymentFor(m, svc, ns, outputs, infra))
		graph.Services = append(graph.Services, serviceFor(svc, ns))

		if svc.Ingress != nil && svc.Ingress.Enabled {
			graph.Ingresses = append(graph.Ingresses, ingressFor(m, svc, ns))
		}
	}

	return graph, nil
}

func objectMeta(name, namespace, app string) Metadata {
	return Metadata{
		Name:      name,
		Namespace: namespace,
		Labels: map[string]string{
			"app":        app,
			"managed-by": managedByLabel,
		},
	}
}

// deploymentFor synthesizes the workload with its full environment:
// user-declared vars, dependency wiring, config and secret mounts, and
// identity vars.
func (s *Synthesizer) deploymentFor(m *manifest.Manifest, svc *manifest.Service, ns string, outputs provision.Outputs, infra *Secret) *Deployment {
	container := Container{
		Name:           svc.Name,
		Image:          svc.Image,
		Command:        svc.Command,
		Args:           svc.Args,
		Ports:          containerPorts(svc),
		Resources:      svc.Resources,
		ReadinessProbe: svc.ReadinessProbe,
		LivenessProbe:  svc.LivenessProbe,
		StartupProbe:   svc.StartupProbe,
	}

	var volumes []Volume

	env := userEnv(svc)
	env = append(env, s.dependencyEnv(m, svc, ns, outputs, infra)...)

	if len(svc.Config) > 0 {
		volumes = append(volumes, Volume{
			Name:      svc.Name + "-config-volume",
			ConfigMap: &ConfigMapSource{Name: svc.Name + "-config"},
		})
		container.VolumeMounts = append(container.VolumeMounts, VolumeMount{
			Name: svc.Name + "-config-volume", MountPath: "/etc/config",
		})
		env = append(env, EnvVar{Name: "CONFIG_PATH", Value: "/etc/config"})
	}

	if len(svc.Secrets) > 0 {
		volumes = append(volumes, Volume{
			Name:   svc.Name + "-secret-volume",
			Secret: &SecretSource{SecretName: svc.Name + "-secret"},
		})
		container.VolumeMounts = append(container.VolumeMounts, VolumeMount{
			Name: svc.Name + "-secret-volume", MountPath: "/etc/secrets", ReadOnly: true,
		})
		env = append(env, EnvVar{Name: "SECRETS_PATH", Value: "/etc/secrets"})

		keys := make([]string, 0, len(svc.Secrets))
		for key := range svc.Secrets {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			env = append(env, EnvVar{
				Name: key,
				ValueFrom: &EnvSource{SecretKeyRef: &SecretKeySelector{
					Name: svc.Name + "-secret", Key: key,
				}},
			})
		}
	}

	if svc.Persistence != nil && svc.Persistence.Enabled {
		mountPath := svc.Persistence.MountPath
		if mountPath == "" {
			mountPath = "/data"
		}
		volumes = append(volumes, Volume{
			Name: svc.Name + "-data",
			PVC:  &PVCSource{ClaimName: svc.Name + "-data"},
		})
		container.VolumeMounts = append(container.VolumeMounts, VolumeMount{
			Name: svc.Name + "-data", MountPath: mountPath, SubPath: svc.Persistence.SubPath,
		})
	}

	env = append(env,
		EnvVar{Name: "APP_NAME", Value: svc.Name},
		EnvVar{Name: "APP_NAMESPACE", Value: ns},
		EnvVar{Name: "ENV", Value: "development"},
	)
	container.Env = env

	replicas := svc.Replicas
	if replicas <= 0 {
		replicas = 1
	}

	spec := PodSpec{
		Containers:   []Container{container},
		Volumes:      volumes,
		NodeSelector: svc.NodeSelector,
	}
	if svc.ServiceAccount {
		spec.ServiceAccountName = svc.Name
	}

	return &Deployment{
		APIVersion: "apps/v1",
		Kind:       "Deployment",
		Metadata:   objectMeta(svc.Name, ns, svc.Name),
		Spec: DeploymentSpec{
			Replicas: replicas,
			Selector: Selector{MatchLabels: map[string]string{"app": svc.Name}},
			Template: PodTemplate{
				Metadata: Metadata{Labels: map[string]string{"app": svc.Name}},
				Spec:     spec,
			},
		},
	}
}

// userEnv converts the manifest's declared env vars, preserving secret
// references.
func userEnv(svc *manifest.Service) []EnvVar {
	var env []EnvVar
	for _, v := range svc.Env {
		out := EnvVar{Name: v.Name, Value: v.Value}
		if ref, ok := v.ValueFrom["secretKeyRef"].(map[string]interface{}); ok {
			name, _ := ref["name"].(string)
			key, _ := ref["key"].(string)
			if name != "" && key != "" {
				out.Value = ""
				out.ValueFrom = &EnvSource{SecretKeyRef: &SecretKeySelector{Name: name, Key: key}}
			}
		}
		env = append(env, out)
	}
	return env
}

// dependencyEnv wires a service to the things it declares dependencies
// on: sibling services get discovery vars, infrastructure dependencies
// get connection vars with credentials referenced from the environment
// secret.
func (s *Synthesizer) dependencyEnv(m *manifest.Manifest, svc *manifest.Service, ns string, outputs provision.Outputs, infra *Secret) []EnvVar {
	var env []EnvVar
	for _, dep := range svc.Dependencies {
		if peer := m.ServiceByName(dep); peer != nil && dep != svc.Name {
			prefix := envPrefix(dep)
			env = append(env,
				EnvVar{Name: prefix + "_SERVICE_HOST", Value: fmt.Sprintf("%s.%s.svc.cluster.local", dep, ns)},
				EnvVar{Name: prefix + "_SERVICE_PORT", Value: fmt.Sprintf("%d", peerPort(peer))},
			)
			continue
		}

		switch dependencyTypeFor(dep) {
		case manifest.DependencyDatabase:
			env = append(env, databaseEnv(outputs, infra)...)
		case manifest.DependencyQueue:
			env = append(env, queueEnv(outputs, infra)...)
		case manifest.DependencyRedis:
			env = append(env, redisEnv(outputs)...)
		case manifest.DependencyKafka:
			env = append(env, kafkaEnv(outputs)...)
		default:
			s.logger.Warn().
				Str("service", svc.Name).
				Str("dependency", dep).
				Msg("Dependency matches no service or infrastructure type, skipping wiring")
		}
	}
	return env
}

// dependencyTypeFor maps a service dependency name to an
// infrastructure type, accepting common aliases.
func dependencyTypeFor(name string) manifest.DependencyType {
	switch strings.ToLower(name) {
	case "database", "db", "postgres", "rds":
		return manifest.DependencyDatabase
	case "queue", "mq", "rabbitmq":
		return manifest.DependencyQueue
	case "redis", "cache":
		return manifest.DependencyRedis
	case "kafka", "msk":
		return manifest.DependencyKafka
	}
	return ""
}

func envPrefix(name string) string {
	return strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
}

// peerPort picks the port a sibling service listens on.
func peerPort(svc *manifest.Service) int {
	if svc.Service != nil {
		for _, p := range svc.Service.Ports {
			if p.Port > 0 {
				return p.Port
			}
		}
	}
	for _, p := range svc.Ports {
		if p.Port > 0 {
			return p.Port
		}
		if p.ContainerPort > 0 {
			return p.ContainerPort
		}
	}
	if svc.Port > 0 {
		return svc.Port
	}
	return defaultServicePort
}

// infraSecret collects every sensitive provisioning output into one
// environment secret so workloads reference credentials instead of
// embedding them.
func (s *Synthesizer) infraSecret(m *manifest.Manifest, outputs provision.Outputs, ns string) *Secret {
	data := make(map[string]string)

	if m.HasDependencyType(manifest.DependencyDatabase) {
		host, port := splitEndpoint(outputs.String("database_endpoint"), "5432")
		user := outputs.String("database_username")
		pass := outputs.String("database_password")
		name := outputs.String("database_name")
		if name == "" {
			name = "app"
		}
		if pass != "" {
			data["DATABASE_PASSWORD"] = pass
			if host != "" {
				data["DATABASE_URL"] = fmt.Sprintf("postgresql://%s:%s@%s:%s/%s", user, pass, host, port, name)
			}
		}
	}

	if m.HasDependencyType(manifest.DependencyQueue) {
		host, port := splitEndpoint(outputs.String("mq_endpoint"), "5672")
		user := outputs.String("mq_username")
		pass := outputs.String("mq_password")
		if pass != "" {
			data["RABBITMQ_PASSWORD"] = pass
			if host != "" {
				data["RABBITMQ_URL"] = fmt.Sprintf("amqp://%s:%s@%s:%s/", user, pass, host, port)
			}
		}
	}

	if m.HasDependencyType(manifest.DependencyRedis) {
		if token := outputs.String("redis_auth_token"); token != "" {
			data["REDIS_AUTH_TOKEN"] = token
		}
	}

	if len(data) == 0 {
		return nil
	}
	return &Secret{
		APIVersion: "v1",
		Kind:       "Secret",
		Metadata:   objectMeta(m.Name+"-infra", ns, m.Name),
		Type:       "Opaque",
		StringData: data,
	}
}

func infraRef(infra *Secret, key string) *EnvSource {
	return &EnvSource{SecretKeyRef: &SecretKeySelector{Name: infra.Metadata.Name, Key: key}}
}

func databaseEnv(outputs provision.Outputs, infra *Secret) []EnvVar {
	host, port := splitEndpoint(outputs.String("database_endpoint"), "5432")
	if host == "" {
		return nil
	}
	name := outputs.String("database_name")
	if name == "" {
		name = "app"
	}
	env := []EnvVar{
		{Name: "DATABASE_HOST", Value: host},
		{Name: "DATABASE_PORT", Value: port},
		{Name: "DATABASE_NAME", Value: name},
		{Name: "DATABASE_USER", Value: outputs.String("database_username")},
	}
	if infra != nil {
		if _, ok := infra.StringData["DATABASE_PASSWORD"]; ok {
			env = append(env, EnvVar{Name: "DATABASE_PASSWORD", ValueFrom: infraRef(infra, "DATABASE_PASSWORD")})
		}
		if _, ok := infra.StringData["DATABASE_URL"]; ok {
			env = append(env, EnvVar{Name: "DATABASE_URL", ValueFrom: infraRef(infra, "DATABASE_URL")})
		}
	}
	return env
}

func queueEnv(outputs provision.Outputs, infra *Secret) []EnvVar {
	host, port := splitEndpoint(outputs.String("mq_endpoint"), "5672")
	if host == "" {
		return nil
	}
	env := []EnvVar{
		{Name: "RABBITMQ_HOST", Value: host},
		{Name: "RABBITMQ_PORT", Value: port},
		{Name: "RABBITMQ_USER", Value: outputs.String("mq_username")},
	}
	if infra != nil {
		if _, ok := infra.StringData["RABBITMQ_PASSWORD"]; ok {
			env = append(env, EnvVar{Name: "RABBITMQ_PASSWORD", ValueFrom: infraRef(infra, "RABBITMQ_PASSWORD")})
		}
		if _, ok := infra.StringData["RABBITMQ_URL"]; ok {
			env = append(env, EnvVar{Name: "RABBITMQ_URL", ValueFrom: infraRef(infra, "RABBITMQ_URL")})
		}
	}
	return env
}

func redisEnv(outputs provision.Outputs) []EnvVar {
	host := outputs.String("redis_primary_endpoint")
	if host == "" {
		return nil
	}
	port := outputs.String("redis_port")
	if port == "" {
		if n, ok := outputs["redis_port"]; ok {
			if f, isNum := n.Value.(float64); isNum {
				port = fmt.Sprintf("%d", int(f))
			}
		}
	}
	if port == "" {
		port = "6379"
	}
	env := []EnvVar{
		{Name: "REDIS_HOST", Value: host},
		{Name: "REDIS_PORT", Value: port},
		{Name: "REDIS_URL", Value: fmt.Sprintf("redis://%s:%s", host, port)},
	}
	if reader := outputs.String("redis_reader_endpoint"); reader != "" {
		env = append(env, EnvVar{Name: "REDIS_READER_HOST", Value: reader})
	}
	return env
}

func kafkaEnv(outputs provision.Outputs) []EnvVar {
	brokers := outputs.String("kafka_bootstrap_brokers")
	if brokers == "" {
		return nil
	}
	return []EnvVar{{Name: "KAFKA_BROKERS", Value: brokers}}
}

// splitEndpoint separates host:port endpoints, falling back to the
// given default port.
func splitEndpoint(endpoint, defaultPort string) (string, string) {
	if endpoint == "" {
		return "", defaultPort
	}
	if idx := strings.LastIndex(endpoint, ":"); idx > 0 && !strings.Contains(endpoint[idx+1:], "/") {
		if endpoint[idx+1:] != "" && isDigits(endpoint[idx+1:]) {
			return endpoint[:idx], endpoint[idx+1:]
		}
	}
	return endpoint, defaultPort
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

// serviceFor synthesizes the ClusterIP service, mapping container
// ports when no explicit service ports are declared.
func serviceFor(svc *manifest.Service, ns string) *Service {
	spec := ServiceSpec{
		Selector: map[string]string{"app": svc.Name},
		Type:     "ClusterIP",
	}
	if svc.Service != nil && svc.Service.Type != "" {
		spec.Type = svc.Service.Type
	}

	switch {
	case svc.Service != nil && len(svc.Service.Ports) > 0:
		for _, p := range svc.Service.Ports {
			spec.Ports = append(spec.Ports, convertServicePort(p))
		}
	case len(svc.Ports) > 0:
		for _, p := range svc.Ports {
			spec.Ports = append(spec.Ports, convertServicePort(p))
		}
	case svc.Port > 0:
		spec.Ports = []ServicePort{{Port: svc.Port, TargetPort: svc.Port, Protocol: "TCP"}}
	default:
		spec.Ports = []ServicePort{{Port: defaultServicePort, TargetPort: defaultContainerPort, Protocol: "TCP"}}
	}

	return &Service{
		APIVersion: "v1",
		Kind:       "Service",
		Metadata:   objectMeta(svc.Name, ns, svc.Name),
		Spec:       spec,
	}
}

func convertServicePort(p manifest.ServicePort) ServicePort {
	out := ServicePort{Name: p.Name, Protocol: p.Protocol}
	if out.Protocol == "" {
		out.Protocol = "TCP"
	}
	out.Port = p.Port
	if out.Port == 0 {
		out.Port = p.ContainerPort
	}
	if out.Port == 0 {
		out.Port = defaultServicePort
	}
	out.TargetPort = p.ContainerPort
	if out.TargetPort == 0 {
		out.TargetPort = p.Port
	}
	if out.TargetPort == 0 {
		out.TargetPort = defaultContainerPort
	}
	return out
}

func containerPorts(svc *manifest.Service) []ContainerPort {
	var ports []ContainerPort
	for _, p := range svc.Ports {
		cp := p.ContainerPort
		if cp == 0 {
			cp = p.Port
		}
		if cp == 0 {
			cp = defaultContainerPort
		}
		protocol := p.Protocol
		if protocol == "" {
			protocol = "TCP"
		}
		ports = append(ports, ContainerPort{Name: p.Name, ContainerPort: cp, Protocol: protocol})
	}
	if len(ports) == 0 && svc.Port > 0 {
		ports = []ContainerPort{{ContainerPort: svc.Port, Protocol: "TCP"}}
	}
	return ports
}

// ingressFor synthesizes the ingress with a generated host when none
// is declared: <service>.<domain> under the manifest domain, falling
// back to a placeholder domain.
func ingressFor(m *manifest.Manifest, svc *manifest.Service, ns string) *Ingress {
	ing := svc.Ingress

	className := ing.ClassName
	if className == "" {
		className = "nginx"
	}
	annotations := map[string]string{"kubernetes.io/ingress.class": className}
	for k, v := range ing.Annotations {
		annotations[k] = v
	}

	host := ing.Host
	if host == "" {
		domain := defaultIngressDomain
		if m.Ingress != nil && m.Ingress.Domain != "" {
			domain = m.Ingress.Domain
		}
		host = fmt.Sprintf("%s.%s", svc.Name, domain)
	}

	path := ing.Path
	if path == "" {
		path = "/"
	}
	pathType := ing.PathType
	if pathType == "" {
		pathType = "Prefix"
	}
	port := ing.Port
	if port == 0 {
		port = defaultServicePort
	}

	meta := objectMeta(svc.Name, ns, svc.Name)
	meta.Annotations = annotations

	return &Ingress{
		APIVersion: "networking.k8s.io/v1",
		Kind:       "Ingress",
		Metadata:   meta,
		Spec: IngressSpec{
			TLS: ing.TLS,
			Rules: []IngressRule{{
				Host: host,
				HTTP: IngressHTTP{Paths: []IngressPath{{
					Path:     path,
					PathType: pathType,
					Backend: IngressBackend{Service: IngressServiceRef{
						Name: svc.Name,
						Port: IngressPort{Number: port},
					}},
				}}},
			}},
		},
	}
}

func claimFor(svc *manifest.Service, ns string) *PersistentVolumeClaim {
	p := svc.Persistence
	size := p.Size
	if size == "" {
		size = "1Gi"
	}
	modes := p.AccessModes
	if len(modes) == 0 {
		modes = []string{"ReadWriteOnce"}
	}
	return &PersistentVolumeClaim{
		APIVersion: "v1",
		Kind:       "PersistentVolumeClaim",
		Metadata:   objectMeta(svc.Name+"-data", ns, svc.Name),
		Spec: PVCSpec{
			AccessModes:      modes,
			Resources:        ResourceRequests{Requests: map[string]string{"storage": size}},
			StorageClassName: p.StorageClass,
		},
	}
}
