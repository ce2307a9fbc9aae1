// Package services builds and holds the remediation pipeline's
// collaborators.
//
// New constructs everything a pipeline run needs from one configuration:
// the log source, the embedding provider, the fix memory on top of it, the
// repository index, the completion client, and the git stager. Construction
// follows dependency order and fails fast with the first wrapped error;
// Close releases resources in reverse.
//
// Both the remedyd daemon and the remedy CLI assemble their pipelines
// through this package, so the wiring between configuration and services
// lives in exactly one place.
package services
