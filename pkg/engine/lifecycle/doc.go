// Package lifecycle sequences the environment operations behind the
// CLI: up, down, info, list, and validate. The Controller loads and
// admits the manifest, prepares the environment directory, drives the
// provisioner through the remediating supervisor, deploys workloads,
// and keeps the environment index current after every phase.
package lifecycle
