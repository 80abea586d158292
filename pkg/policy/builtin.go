package policy

// BuiltinPolicies returns the admission policies every environment is
// checked against.
func BuiltinPolicies() []Policy {
	return []Policy{
		regionAllowlistPolicy(),
		imageTagPolicy(),
		replicaCeilingPolicy(),
		instanceClassPolicy(),
		secretHygienePolicy(),
	}
}

// regionAllowlistPolicy keeps throwaway environments in the regions
// the module library supports.
func regionAllowlistPolicy() Policy {
	return Policy{
		Name:        "region-allowlist",
		Description: "Restricts environments to supported regions",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"region", "placement"},
		Rego: `package buildandburn.admission.region

import rego.v1

allowed_regions := {"us-west-2", "us-east-1", "eu-west-1", "eu-central-1"}

deny contains violation if {
	region := input.manifest.region
	region != ""
	not allowed_regions[region]
	violation := {
		"message": sprintf("region %q is not in the supported set", [region]),
		"severity": "error",
	}
}
`,
	}
}

// imageTagPolicy rejects images without an explicit tag, including the
// implicit and explicit latest.
func imageTagPolicy() Policy {
	return Policy{
		Name:        "image-tag-required",
		Description: "Requires every service image to carry a non-latest tag",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"images", "reproducibility"},
		Rego: `package buildandburn.admission.images

import rego.v1

deny contains violation if {
	some service in input.manifest.services
	not contains(service.image, ":")
	violation := {
		"message": sprintf("service %q image %q has no tag", [service.name, service.image]),
		"severity": "error",
		"service": service.name,
	}
}

deny contains violation if {
	some service in input.manifest.services
	endswith(service.image, ":latest")
	violation := {
		"message": sprintf("service %q must not use the latest tag", [service.name]),
		"severity": "error",
		"service": service.name,
	}
}
`,
	}
}

// replicaCeilingPolicy caps replica counts; these are disposable
// environments, not production.
func replicaCeilingPolicy() Policy {
	return Policy{
		Name:        "replica-ceiling",
		Description: "Caps per-service replicas at 10",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"capacity", "cost"},
		Rego: `package buildandburn.admission.replicas

import rego.v1

max_replicas := 10

deny contains violation if {
	some service in input.manifest.services
	service.replicas > max_replicas
	violation := {
		"message": sprintf("service %q requests %d replicas, limit is %d", [service.name, service.replicas, max_replicas]),
		"severity": "error",
		"service": service.name,
	}
}
`,
	}
}

// instanceClassPolicy warns on expensive dependency sizing.
func instanceClassPolicy() Policy {
	return Policy{
		Name:        "instance-class-advisory",
		Description: "Warns when dependency instance classes look production-sized",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"cost"},
		Rego: `package buildandburn.admission.sizing

import rego.v1

large_markers := ["large", "xlarge", "2xlarge", "4xlarge"]

deny contains violation if {
	some dep in input.manifest.dependencies
	some marker in large_markers
	contains(dep.instance_class, marker)
	violation := {
		"message": sprintf("%s instance class %q is production-sized for a disposable environment", [dep.type, dep.instance_class]),
		"severity": "warning",
	}
}
`,
	}
}

// secretHygienePolicy flags credentials pasted into plain env vars.
func secretHygienePolicy() Policy {
	return Policy{
		Name:        "secret-hygiene",
		Description: "Warns when env var names suggest secrets carried as literals",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"secrets"},
		Rego: `package buildandburn.admission.secrets

import rego.v1

suspect_fragments := ["PASSWORD", "SECRET", "TOKEN", "API_KEY"]

deny contains violation if {
	some service in input.manifest.services
	some env in service.env
	env.value != ""
	some fragment in suspect_fragments
	contains(upper(env.name), fragment)
	violation := {
		"message": sprintf("service %q env %q looks like a secret literal, declare it under secrets instead", [service.name, env.name]),
		"severity": "warning",
		"service": service.name,
	}
}
`,
	}
}
