// Package manifest defines the operator-authored application manifest and
// compiles it into the flat variable set consumed by the provisioner.
//
// A manifest names the project, declares managed infrastructure
// dependencies (database, queue, redis, kafka) and describes the
// application services to deploy. Loading is strict: unknown fields,
// duplicate service names and out-of-range values are rejected up front.
//
// Compilation is a pure function of the manifest and the environment ID.
// Every declared dependency type always receives its complete variable
// subset; fields the manifest leaves unset are filled from built-in
// defaults and a dependency declared with no configuration at all raises
// a warning rather than an error.
//
//	loader := manifest.NewLoader()
//	m, err := loader.Load("manifest.yaml")
//	if err != nil {
//	    return err
//	}
//	vars, warnings := manifest.Compile(m, envID)
package manifest
