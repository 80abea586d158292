// Package engine holds the shared machinery of a lifecycle run: the
// classified error type every layer reports through, the on-disk
// environment directory layout, and the per-environment lock.
//
// # Error Classification
//
// Failures carry an ErrorClass so callers can decide between retrying,
// remediating, and giving up:
//
//	if engine.IsFatal(err) {
//	    // missing tool, bad credentials, missing core module
//	}
//
// # Environment Directories
//
// Every environment owns a directory under the buildandburn home
// (BB_HOME or ~/.buildandburn) keyed by its ID. PrepareEnvDir copies
// the terraform configuration into it, pins a local backend, and
// writes the compiled variable file. The layout is described by
// EnvPaths; RemoveEnvDir tears the whole directory down after a
// successful destroy.
//
// # Locking
//
// AcquireLock takes an advisory lock file inside the environment
// directory so that concurrent up and down runs against the same
// environment fail fast instead of corrupting state.
package engine
