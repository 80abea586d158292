// Package provision drives the infrastructure provisioner for an
// environment and keeps its runs observable and bounded.
//
// The Supervisor streams process output through an EventParser to track
// which resources are in flight, enforces explicit Timeouts with an
// activity grace window and a one-time extension for known-slow
// resource types, and escalates from SIGTERM to SIGKILL on
// termination. The Remediator matches failure output against a table
// of known signatures and applies each automated fix at most once
// before retrying. EnsureValidState repairs missing or corrupt state
// files so destruction always has a state document to work from.
package provision
