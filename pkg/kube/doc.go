// Package kube synthesizes the kubernetes objects for an environment
// and deploys them onto the provisioned cluster.
//
// The Synthesizer derives a complete ResourceGraph from the manifest:
// one namespace, a deployment and service per workload, and ingress,
// config, secret, claim, and service account objects where declared.
// Dependency wiring injects discovery variables for sibling services
// and connection variables for managed infrastructure, with
// credentials referenced from a single environment secret rather than
// embedded in pod specs. The Deployer drives helm with a namespace
// reset retry for ownership conflicts and direct manifest application
// as the fallback.
package kube
