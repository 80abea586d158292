package manifest

import (
	"encoding/json"
	"fmt"
)

// Built-in defaults applied when the manifest leaves a field unset.
const (
	DefaultRegion      = "us-west-2"
	DefaultVPCCIDR     = "10.0.0.0/16"
	DefaultK8sVersion  = "1.27"
	DefaultNodeMin     = 1
	DefaultNodeMax     = 3
	DefaultDBEngine    = "postgres"
	DefaultDBVersion   = "13"
	DefaultDBClass     = "db.t3.small"
	DefaultDBStorageGB = 20
	DefaultMQEngine    = "RabbitMQ"
	DefaultMQVersion   = "3.13"
	DefaultMQClass     = "mq.t3.micro"
	DefaultRedisClass  = "cache.t3.micro"
	DefaultRedisVersion = "6.2"
	DefaultKafkaVersion = "3.5.1"
	DefaultKafkaClass   = "kafka.t3.small"
	DefaultKafkaBrokers = 2
)

// DefaultInstanceTypes is the default cluster node sizing.
func DefaultInstanceTypes() []string { return []string{"t3.medium"} }

// Variables is the flat variable set handed to the provisioner.
type Variables map[string]interface{}

// Warning is a non-fatal signal raised during compilation.
type Warning struct {
	// Dependency is the dependency type the warning concerns, if any.
	Dependency DependencyType

	// Message describes the condition.
	Message string
}

func (w Warning) String() string {
	if w.Dependency != "" {
		return fmt.Sprintf("%s: %s", w.Dependency, w.Message)
	}
	return w.Message
}

// Compile turns a manifest and environment ID into provisioner variables.
// It is deterministic: the same manifest and ID always produce the same
// variable set. Every declared dependency type receives its complete
// variable subset, defaults filling any field the manifest leaves unset.
func Compile(m *Manifest, envID string) (Variables, []Warning) {
	var warnings []Warning

	region := m.Region
	if region == "" {
		region = DefaultRegion
	}

	types := m.DeclaredTypes()
	typeNames := make([]string, len(types))
	for i, t := range types {
		typeNames[i] = string(t)
	}

	vars := Variables{
		"project_name":       m.Name,
		"env_id":             envID,
		"region":             region,
		"dependencies":       typeNames,
		"vpc_cidr":           DefaultVPCCIDR,
		"eks_instance_types": DefaultInstanceTypes(),
		"eks_node_min":       DefaultNodeMin,
		"eks_node_max":       DefaultNodeMax,
		"k8s_version":        DefaultK8sVersion,
		"provision_ingress":  ingressRequested(m),
	}

	for _, t := range types {
		dep := m.DependencyByType(t)
		if depUnconfigured(dep) {
			warnings = append(warnings, Warning{
				Dependency: t,
				Message:    "dependency declared without configuration, using defaults",
			})
		}
		switch t {
		case DependencyDatabase:
			compileDatabase(vars, dep)
		case DependencyQueue:
			compileQueue(vars, dep)
		case DependencyRedis:
			compileRedis(vars, dep)
		case DependencyKafka:
			compileKafka(vars, dep)
		}
	}

	return vars, warnings
}

// depUnconfigured reports whether a dependency declaration carries no
// configuration beyond its type.
func depUnconfigured(d *Dependency) bool {
	if d == nil {
		return true
	}
	return d.Provider == "" && d.Version == "" && d.InstanceClass == "" &&
		d.Storage == 0 && d.ClusterSize == 0 && d.AuthEnabled == nil && !d.MultiAZ
}

func compileDatabase(vars Variables, dep *Dependency) {
	vars["db_engine"] = orDefault(dep.Provider, DefaultDBEngine)
	vars["db_engine_version"] = orDefault(dep.Version, DefaultDBVersion)
	vars["db_instance_class"] = orDefault(dep.InstanceClass, DefaultDBClass)
	storage := dep.Storage
	if storage == 0 {
		storage = DefaultDBStorageGB
	}
	vars["db_allocated_storage"] = storage
}

func compileQueue(vars Variables, dep *Dependency) {
	vars["mq_engine"] = orDefault(dep.Provider, DefaultMQEngine)
	vars["mq_engine_version"] = orDefault(dep.Version, DefaultMQVersion)
	vars["mq_instance_class"] = orDefault(dep.InstanceClass, DefaultMQClass)
}

func compileRedis(vars Variables, dep *Dependency) {
	vars["redis_node_type"] = orDefault(dep.InstanceClass, DefaultRedisClass)
	vars["redis_engine_version"] = orDefault(dep.Version, DefaultRedisVersion)
	size := dep.ClusterSize
	if size == 0 {
		size = 1
	}
	vars["redis_cluster_size"] = size
	auth := true
	if dep.AuthEnabled != nil {
		auth = *dep.AuthEnabled
	}
	vars["redis_auth_enabled"] = auth
	vars["redis_multi_az"] = dep.MultiAZ
}

func compileKafka(vars Variables, dep *Dependency) {
	vars["kafka_version"] = orDefault(dep.Version, DefaultKafkaVersion)
	vars["kafka_instance_class"] = orDefault(dep.InstanceClass, DefaultKafkaClass)
	brokers := dep.ClusterSize
	if brokers == 0 {
		brokers = DefaultKafkaBrokers
	}
	vars["kafka_broker_count"] = brokers
}

// ingressRequested decides whether ingress infrastructure should be
// provisioned: an explicit manifest-level setting wins, any service
// declaring ingress turns it on, and a manifest that never mentions
// ingress gets it by default.
func ingressRequested(m *Manifest) bool {
	if m.Ingress != nil && m.Ingress.Enabled != nil {
		if *m.Ingress.Enabled {
			return true
		}
	}

	declared := m.Ingress != nil
	for i := range m.Services {
		if m.Services[i].Ingress != nil {
			declared = true
			if m.Services[i].Ingress.Enabled {
				return true
			}
		}
	}
	return !declared
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// MarshalJSON renders the variables as a provisioner tfvars document.
// Map keys marshal in sorted order, so the output is stable.
func (v Variables) MarshalIndent() ([]byte, error) {
	data, err := json.MarshalIndent(map[string]interface{}(v), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal variables: %w", err)
	}
	return append(data, '\n'), nil
}
