package manifest

// DependencyType identifies a managed infrastructure capability.
type DependencyType string

const (
	// DependencyDatabase is a managed relational database (RDS).
	DependencyDatabase DependencyType = "database"

	// DependencyQueue is a managed message broker (Amazon MQ).
	DependencyQueue DependencyType = "queue"

	// DependencyRedis is a managed cache (ElastiCache).
	DependencyRedis DependencyType = "redis"

	// DependencyKafka is a managed streaming cluster (MSK).
	DependencyKafka DependencyType = "kafka"
)

// DependencyTypes lists every supported dependency type.
func DependencyTypes() []DependencyType {
	return []DependencyType{DependencyDatabase, DependencyQueue, DependencyRedis, DependencyKafka}
}

// Manifest is the operator-authored description of an application:
// its services and the managed infrastructure they depend on.
type Manifest struct {
	// Name identifies the project. It seeds resource names and the
	// deployment namespace.
	Name string `yaml:"name" json:"name" validate:"required,max=40"`

	// Region is the cloud region to provision into.
	Region string `yaml:"region,omitempty" json:"region,omitempty"`

	// Dependencies are the managed infrastructure capabilities to provision.
	Dependencies []Dependency `yaml:"dependencies,omitempty" json:"dependencies,omitempty" validate:"dive"`

	// Services are the application workloads to deploy.
	Services []Service `yaml:"services,omitempty" json:"services,omitempty" validate:"dive"`

	// Ingress is the manifest-level ingress setting.
	Ingress *IngressSpec `yaml:"ingress,omitempty" json:"ingress,omitempty"`
}

// IngressSpec controls external routing for the whole environment.
type IngressSpec struct {
	// Enabled forces ingress provisioning on or off. Nil leaves the
	// decision to the per-service declarations.
	Enabled *bool `yaml:"enabled,omitempty" json:"enabled,omitempty"`

	// Domain is the base domain for generated ingress hosts.
	Domain string `yaml:"domain,omitempty" json:"domain,omitempty"`
}

// Dependency declares one managed infrastructure capability.
type Dependency struct {
	// Type is the capability kind.
	Type DependencyType `yaml:"type" json:"type" validate:"required,oneof=database queue redis kafka"`

	// Provider is the engine for the capability (e.g. postgres, rabbitmq).
	Provider string `yaml:"provider,omitempty" json:"provider,omitempty"`

	// Version is the engine version.
	Version string `yaml:"version,omitempty" json:"version,omitempty"`

	// InstanceClass is the instance sizing (e.g. db.t3.small).
	InstanceClass string `yaml:"instance_class,omitempty" json:"instance_class,omitempty"`

	// Storage is the allocated storage in GB, where applicable.
	Storage int `yaml:"storage,omitempty" json:"storage,omitempty" validate:"min=0"`

	// ClusterSize is the node count for clustered capabilities.
	ClusterSize int `yaml:"cluster_size,omitempty" json:"cluster_size,omitempty" validate:"min=0"`

	// AuthEnabled toggles authentication where the capability supports it.
	AuthEnabled *bool `yaml:"auth_enabled,omitempty" json:"auth_enabled,omitempty"`

	// MultiAZ enables multi-availability-zone deployment.
	MultiAZ bool `yaml:"multi_az,omitempty" json:"multi_az,omitempty"`
}

// Service declares one application workload.
type Service struct {
	// Name is the workload name, unique within the manifest.
	Name string `yaml:"name" json:"name" validate:"required,max=63"`

	// Image is the container image reference.
	Image string `yaml:"image" json:"image" validate:"required"`

	// Port is a shorthand for a single container port.
	Port int `yaml:"port,omitempty" json:"port,omitempty" validate:"min=0,max=65535"`

	// Replicas is the desired replica count (default 1).
	Replicas int `yaml:"replicas,omitempty" json:"replicas,omitempty" validate:"min=0"`

	// Command overrides the container entrypoint.
	Command []string `yaml:"command,omitempty" json:"command,omitempty"`

	// Args overrides the container arguments.
	Args []string `yaml:"args,omitempty" json:"args,omitempty"`

	// Ports declares the container ports.
	Ports []ServicePort `yaml:"ports,omitempty" json:"ports,omitempty"`

	// Env are additional environment variables for the container.
	Env []EnvVar `yaml:"env,omitempty" json:"env,omitempty"`

	// Dependencies reference other services by name or declared
	// infrastructure dependency types.
	Dependencies []string `yaml:"dependencies,omitempty" json:"dependencies,omitempty"`

	// Resources are container resource requests and limits, passed
	// through to the workload unchanged.
	Resources map[string]interface{} `yaml:"resources,omitempty" json:"resources,omitempty"`

	// ReadinessProbe, LivenessProbe and StartupProbe pass through
	// kubernetes probe definitions unchanged.
	ReadinessProbe map[string]interface{} `yaml:"readinessProbe,omitempty" json:"readinessProbe,omitempty"`
	LivenessProbe  map[string]interface{} `yaml:"livenessProbe,omitempty" json:"livenessProbe,omitempty"`
	StartupProbe   map[string]interface{} `yaml:"startupProbe,omitempty" json:"startupProbe,omitempty"`

	// Service customises the generated network service.
	Service *NetworkService `yaml:"service,omitempty" json:"service,omitempty"`

	// Ingress enables external routing to this workload.
	Ingress *ServiceIngress `yaml:"ingress,omitempty" json:"ingress,omitempty"`

	// Config is inline configuration data, materialised as a config
	// object mounted into the workload.
	Config map[string]string `yaml:"config,omitempty" json:"config,omitempty"`

	// Secrets are sensitive key/value pairs, materialised as a secret
	// object mounted into the workload and exposed as env references.
	Secrets map[string]string `yaml:"secrets,omitempty" json:"secrets,omitempty"`

	// Persistence declares a storage claim for the workload.
	Persistence *Persistence `yaml:"persistence,omitempty" json:"persistence,omitempty"`

	// ServiceAccount requests a dedicated execution identity.
	ServiceAccount bool `yaml:"serviceAccount,omitempty" json:"serviceAccount,omitempty"`

	// NodeSelector constrains workload placement.
	NodeSelector map[string]string `yaml:"nodeSelector,omitempty" json:"nodeSelector,omitempty"`
}

// ServicePort declares one port mapping.
type ServicePort struct {
	// Name is an optional port name.
	Name string `yaml:"name,omitempty" json:"name,omitempty"`

	// Port is the service-facing port.
	Port int `yaml:"port,omitempty" json:"port,omitempty" validate:"min=0,max=65535"`

	// ContainerPort is the container-facing port.
	ContainerPort int `yaml:"containerPort,omitempty" json:"containerPort,omitempty" validate:"min=0,max=65535"`

	// Protocol is TCP or UDP (default TCP).
	Protocol string `yaml:"protocol,omitempty" json:"protocol,omitempty" validate:"omitempty,oneof=TCP UDP"`
}

// EnvVar is one environment variable, literal or referenced.
type EnvVar struct {
	Name      string                 `yaml:"name" json:"name" validate:"required"`
	Value     string                 `yaml:"value,omitempty" json:"value,omitempty"`
	ValueFrom map[string]interface{} `yaml:"valueFrom,omitempty" json:"valueFrom,omitempty"`
}

// NetworkService customises the generated network service resource.
type NetworkService struct {
	// Type is the kubernetes service type (default ClusterIP).
	Type string `yaml:"type,omitempty" json:"type,omitempty" validate:"omitempty,oneof=ClusterIP NodePort LoadBalancer"`

	// Ports overrides the generated service ports.
	Ports []ServicePort `yaml:"ports,omitempty" json:"ports,omitempty"`
}

// ServiceIngress enables and configures external routing for a service.
type ServiceIngress struct {
	Enabled     bool              `yaml:"enabled" json:"enabled"`
	Host        string            `yaml:"host,omitempty" json:"host,omitempty"`
	Path        string            `yaml:"path,omitempty" json:"path,omitempty"`
	PathType    string            `yaml:"pathType,omitempty" json:"pathType,omitempty"`
	Port        int               `yaml:"port,omitempty" json:"port,omitempty" validate:"min=0,max=65535"`
	ClassName   string            `yaml:"className,omitempty" json:"className,omitempty"`
	Annotations map[string]string `yaml:"annotations,omitempty" json:"annotations,omitempty"`
	TLS         []interface{}     `yaml:"tls,omitempty" json:"tls,omitempty"`
}

// Persistence declares persistent storage for a service.
type Persistence struct {
	Enabled      bool     `yaml:"enabled" json:"enabled"`
	Size         string   `yaml:"size,omitempty" json:"size,omitempty"`
	MountPath    string   `yaml:"mountPath,omitempty" json:"mountPath,omitempty"`
	SubPath      string   `yaml:"subPath,omitempty" json:"subPath,omitempty"`
	StorageClass string   `yaml:"storageClass,omitempty" json:"storageClass,omitempty"`
	AccessModes  []string `yaml:"accessModes,omitempty" json:"accessModes,omitempty"`
}

// HasDependencyType reports whether the manifest declares a dependency
// of the given type.
func (m *Manifest) HasDependencyType(t DependencyType) bool {
	for i := range m.Dependencies {
		if m.Dependencies[i].Type == t {
			return true
		}
	}
	return false
}

// DependencyByType returns the first declared dependency of the given
// type, or nil.
func (m *Manifest) DependencyByType(t DependencyType) *Dependency {
	for i := range m.Dependencies {
		if m.Dependencies[i].Type == t {
			return &m.Dependencies[i]
		}
	}
	return nil
}

// ServiceByName returns the named service, or nil.
func (m *Manifest) ServiceByName(name string) *Service {
	for i := range m.Services {
		if m.Services[i].Name == name {
			return &m.Services[i]
		}
	}
	return nil
}

// DeclaredTypes returns the distinct dependency types in declaration order.
func (m *Manifest) DeclaredTypes() []DependencyType {
	seen := make(map[DependencyType]bool, len(m.Dependencies))
	var types []DependencyType
	for i := range m.Dependencies {
		t := m.Dependencies[i].Type
		if !seen[t] {
			seen[t] = true
			types = append(types, t)
		}
	}
	return types
}
