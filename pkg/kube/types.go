package kube

import (
	"io"

	"gopkg.in/yaml.v3"
)

// Metadata is the object metadata subset the synthesizer emits.
type Metadata struct {
	Name        string            `yaml:"name"`
	Namespace   string            `yaml:"namespace,omitempty"`
	Labels      map[string]string `yaml:"labels,omitempty"`
	Annotations map[string]string `yaml:"annotations,omitempty"`
}

// Namespace is a v1 Namespace document.
type Namespace struct {
	APIVersion string   `yaml:"apiVersion"`
	Kind       string   `yaml:"kind"`
	Metadata   Metadata `yaml:"metadata"`
}

// EnvVar is a container environment variable, either a literal value
// or a reference into a secret.
type EnvVar struct {
	Name      string     `yaml:"name"`
	Value     string     `yaml:"value,omitempty"`
	ValueFrom *EnvSource `yaml:"valueFrom,omitempty"`
}

// EnvSource selects an environment value from another object.
type EnvSource struct {
	SecretKeyRef *SecretKeySelector `yaml:"secretKeyRef,omitempty"`
}

// SecretKeySelector names one key of one secret.
type SecretKeySelector struct {
	Name string `yaml:"name"`
	Key  string `yaml:"key"`
}

// ContainerPort is one exposed container port.
type ContainerPort struct {
	Name          string `yaml:"name,omitempty"`
	ContainerPort int    `yaml:"containerPort"`
	Protocol      string `yaml:"protocol,omitempty"`
}

// VolumeMount mounts a named volume into a container.
type VolumeMount struct {
	Name      string `yaml:"name"`
	MountPath string `yaml:"mountPath"`
	SubPath   string `yaml:"subPath,omitempty"`
	ReadOnly  bool   `yaml:"readOnly,omitempty"`
}

// Volume is a pod volume backed by a config map, secret, or claim.
type Volume struct {
	Name      string           `yaml:"name"`
	ConfigMap *ConfigMapSource `yaml:"configMap,omitempty"`
	Secret    *SecretSource    `yaml:"secret,omitempty"`
	PVC       *PVCSource       `yaml:"persistentVolumeClaim,omitempty"`
}

type ConfigMapSource struct {
	Name string `yaml:"name"`
}

type SecretSource struct {
	SecretName string `yaml:"secretName"`
}

type PVCSource struct {
	ClaimName string `yaml:"claimName"`
}

// Container is the single application container of a synthesized pod.
// Resources and probes pass through from the manifest untyped.
type Container struct {
	Name           string                 `yaml:"name"`
	Image          string                 `yaml:"image"`
	Command        []string               `yaml:"command,omitempty"`
	Args           []string               `yaml:"args,omitempty"`
	Ports          []ContainerPort        `yaml:"ports,omitempty"`
	Env            []EnvVar               `yaml:"env,omitempty"`
	Resources      map[string]interface{} `yaml:"resources,omitempty"`
	VolumeMounts   []VolumeMount          `yaml:"volumeMounts,omitempty"`
	ReadinessProbe map[string]interface{} `yaml:"readinessProbe,omitempty"`
	LivenessProbe  map[string]interface{} `yaml:"livenessProbe,omitempty"`
	StartupProbe   map[string]interface{} `yaml:"startupProbe,omitempty"`
}

// PodSpec is the synthesized pod template spec.
type PodSpec struct {
	Containers         []Container       `yaml:"containers"`
	Volumes            []Volume          `yaml:"volumes,omitempty"`
	ServiceAccountName string            `yaml:"serviceAccountName,omitempty"`
	NodeSelector       map[string]string `yaml:"nodeSelector,omitempty"`
}

// PodTemplate is the deployment's pod template.
type PodTemplate struct {
	Metadata Metadata `yaml:"metadata"`
	Spec     PodSpec  `yaml:"spec"`
}

// Selector matches pods by label.
type Selector struct {
	MatchLabels map[string]string `yaml:"matchLabels"`
}

// DeploymentSpec is the apps/v1 deployment spec subset.
type DeploymentSpec struct {
	Replicas int         `yaml:"replicas"`
	Selector Selector    `yaml:"selector"`
	Template PodTemplate `yaml:"template"`
}

// Deployment is an apps/v1 Deployment document.
type Deployment struct {
	APIVersion string         `yaml:"apiVersion"`
	Kind       string         `yaml:"kind"`
	Metadata   Metadata       `yaml:"metadata"`
	Spec       DeploymentSpec `yaml:"spec"`
}

// ServicePort maps a service port to a container port.
type ServicePort struct {
	Name       string `yaml:"name,omitempty"`
	Port       int    `yaml:"port"`
	TargetPort int    `yaml:"targetPort"`
	Protocol   string `yaml:"protocol,omitempty"`
}

// ServiceSpec is the v1 service spec subset.
type ServiceSpec struct {
	Selector map[string]string `yaml:"selector"`
	Type     string            `yaml:"type"`
	Ports    []ServicePort     `yaml:"ports"`
}

// Service is a v1 Service document.
type Service struct {
	APIVersion string      `yaml:"apiVersion"`
	Kind       string      `yaml:"kind"`
	Metadata   Metadata    `yaml:"metadata"`
	Spec       ServiceSpec `yaml:"spec"`
}

// IngressBackend routes to one service port.
type IngressBackend struct {
	Service IngressServiceRef `yaml:"service"`
}

type IngressServiceRef struct {
	Name string      `yaml:"name"`
	Port IngressPort `yaml:"port"`
}

type IngressPort struct {
	Number int `yaml:"number"`
}

// IngressPath is one routed path.
type IngressPath struct {
	Path     string         `yaml:"path"`
	PathType string         `yaml:"pathType"`
	Backend  IngressBackend `yaml:"backend"`
}

// IngressRule routes one host.
type IngressRule struct {
	Host string      `yaml:"host"`
	HTTP IngressHTTP `yaml:"http"`
}

type IngressHTTP struct {
	Paths []IngressPath `yaml:"paths"`
}

// IngressSpec is the networking.k8s.io/v1 spec subset. TLS passes
// through from the manifest untyped.
type IngressSpec struct {
	TLS   []interface{} `yaml:"tls,omitempty"`
	Rules []IngressRule `yaml:"rules"`
}

// Ingress is a networking.k8s.io/v1 Ingress document.
type Ingress struct {
	APIVersion string      `yaml:"apiVersion"`
	Kind       string      `yaml:"kind"`
	Metadata   Metadata    `yaml:"metadata"`
	Spec       IngressSpec `yaml:"spec"`
}

// ConfigMap is a v1 ConfigMap document.
type ConfigMap struct {
	APIVersion string            `yaml:"apiVersion"`
	Kind       string            `yaml:"kind"`
	Metadata   Metadata          `yaml:"metadata"`
	Data       map[string]string `yaml:"data"`
}

// Secret is a v1 Secret document. Values go through stringData so the
// server handles encoding.
type Secret struct {
	APIVersion string            `yaml:"apiVersion"`
	Kind       string            `yaml:"kind"`
	Metadata   Metadata          `yaml:"metadata"`
	Type       string            `yaml:"type"`
	StringData map[string]string `yaml:"stringData"`
}

// PVCSpec is the claim spec subset.
type PVCSpec struct {
	AccessModes      []string         `yaml:"accessModes"`
	Resources        ResourceRequests `yaml:"resources"`
	StorageClassName string           `yaml:"storageClassName,omitempty"`
}

type ResourceRequests struct {
	Requests map[string]string `yaml:"requests"`
}

// PersistentVolumeClaim is a v1 PersistentVolumeClaim document.
type PersistentVolumeClaim struct {
	APIVersion string   `yaml:"apiVersion"`
	Kind       string   `yaml:"kind"`
	Metadata   Metadata `yaml:"metadata"`
	Spec       PVCSpec  `yaml:"spec"`
}

// ServiceAccount is a v1 ServiceAccount document.
type ServiceAccount struct {
	APIVersion string   `yaml:"apiVersion"`
	Kind       string   `yaml:"kind"`
	Metadata   Metadata `yaml:"metadata"`
}

// ResourceGraph is the full set of documents synthesized for an
// environment, in apply order.
type ResourceGraph struct {
	Namespace       *Namespace
	ServiceAccounts []*ServiceAccount
	ConfigMaps      []*ConfigMap
	Secrets         []*Secret
	Claims          []*PersistentVolumeClaim
	Deployments     []*Deployment
	Services        []*Service
	Ingresses       []*Ingress
}

// Documents returns every object in apply order: namespace first, then
// configuration, storage, workloads, and finally networking.
func (g *ResourceGraph) Documents() []interface{} {
	var docs []interface{}
	if g.Namespace != nil {
		docs = append(docs, g.Namespace)
	}
	for _, sa := range g.ServiceAccounts {
		docs = append(docs, sa)
	}
	for _, cm := range g.ConfigMaps {
		docs = append(docs, cm)
	}
	for _, s := range g.Secrets {
		docs = append(docs, s)
	}
	for _, c := range g.Claims {
		docs = append(docs, c)
	}
	for _, d := range g.Deployments {
		docs = append(docs, d)
	}
	for _, s := range g.Services {
		docs = append(docs, s)
	}
	for _, i := range g.Ingresses {
		docs = append(docs, i)
	}
	return docs
}

// Encode writes the graph as a multi-document YAML stream.
func (g *ResourceGraph) Encode(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	for _, doc := range g.Documents() {
		if err := enc.Encode(doc); err != nil {
			return err
		}
	}
	return enc.Close()
}
