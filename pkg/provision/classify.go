package provision

import "strings"

// FixID names an automated remediation.
type FixID string

const (
	FixInjectProviderConfig FixID = "inject_provider_config"
	FixReinitUpgrade        FixID = "reinit_upgrade"
	FixInjectRequiredVars   FixID = "inject_required_vars"
	FixDeduplicateProviders FixID = "deduplicate_providers"
	FixClearPluginCache     FixID = "clear_plugin_cache"
	FixFormatConfig         FixID = "format_config"
)

// Diagnosis pairs a recognised failure signature with guidance and an
// optional automated fix.
type Diagnosis struct {
	Pattern    string
	Problem    string
	Suggestion string
	Fix        FixID

	// Credential marks failures that no automated fix can address and
	// that should surface as credential errors.
	Credential bool
}

// signatures is matched in order against failure output; the first
// credential match short-circuits automated remediation.
var signatures = []Diagnosis{
	{
		Pattern:    "No valid credential sources found",
		Problem:    "no AWS credentials available to the provisioner",
		Suggestion: "configure AWS credentials (aws configure, AWS_PROFILE, or instance role) and retry",
		Credential: true,
	},
	{
		Pattern:    "error configuring Terraform AWS Provider",
		Problem:    "the AWS provider could not authenticate",
		Suggestion: "verify AWS credentials and region configuration, then retry",
		Credential: true,
	},
	{
		Pattern:    "ExpiredToken",
		Problem:    "the AWS session token has expired",
		Suggestion: "refresh your AWS session and retry",
		Credential: true,
	},
	{
		Pattern:    "provider configuration not present",
		Problem:    "a resource references a provider with no configuration block",
		Suggestion: "a default AWS provider block will be added",
		Fix:        FixInjectProviderConfig,
	},
	{
		Pattern:    "registry.terraform.io",
		Problem:    "provider plugins are missing or out of date",
		Suggestion: "initialisation will be re-run with plugin upgrades",
		Fix:        FixReinitUpgrade,
	},
	{
		Pattern:    "No value for required variable",
		Problem:    "required input variables have no value",
		Suggestion: "placeholder values will be generated for the missing variables",
		Fix:        FixInjectRequiredVars,
	},
	{
		Pattern:    "provider configuration block for provider",
		Problem:    "duplicate provider configuration blocks",
		Suggestion: "redundant provider blocks will be disabled",
		Fix:        FixDeduplicateProviders,
	},
	{
		Pattern:    "Cannot process schema for this provider",
		Problem:    "the local provider plugin cache is corrupt",
		Suggestion: "the plugin cache will be cleared and re-initialised",
		Fix:        FixClearPluginCache,
	},
	{
		Pattern:    "Invalid block",
		Problem:    "malformed configuration syntax",
		Suggestion: "configuration files will be re-formatted",
		Fix:        FixFormatConfig,
	},
}

// Classification is the outcome of matching failure output against the
// known signature table.
type Classification struct {
	Diagnoses []Diagnosis

	// CredentialFailure is set when the output matched a credential
	// signature. Such failures are never auto-fixed.
	CredentialFailure bool
}

// AutoFixable reports whether at least one matched signature carries a
// fix and no credential failure blocks remediation.
func (c *Classification) AutoFixable() bool {
	if c.CredentialFailure {
		return false
	}
	for _, d := range c.Diagnoses {
		if d.Fix != "" {
			return true
		}
	}
	return false
}

// Fixes returns the fix identifiers of all matched signatures, in
// table order without duplicates.
func (c *Classification) Fixes() []FixID {
	seen := make(map[FixID]struct{})
	var out []FixID
	for _, d := range c.Diagnoses {
		if d.Fix == "" {
			continue
		}
		if _, ok := seen[d.Fix]; ok {
			continue
		}
		seen[d.Fix] = struct{}{}
		out = append(out, d.Fix)
	}
	return out
}

// Classify matches failure output against the signature table. The
// same input always yields the same classification.
func Classify(output string) *Classification {
	c := &Classification{}
	for _, sig := range signatures {
		if !strings.Contains(output, sig.Pattern) {
			continue
		}
		c.Diagnoses = append(c.Diagnoses, sig)
		if sig.Credential {
			c.CredentialFailure = true
		}
	}
	return c
}
