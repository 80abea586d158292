// Package policy evaluates manifests against Rego admission rules
// before any infrastructure is provisioned.
//
// The engine ships with built-in policies for region placement, image
// tag hygiene, replica ceilings, dependency sizing, and secret
// hygiene, and loads operator-supplied .rego or .json policies from
// disk. Each policy's package exposes a deny set; error and critical
// findings block provisioning while info and warning findings are
// advisory. The loader can watch policy paths and hot-reload on
// change.
package policy
