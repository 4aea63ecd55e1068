// Package registry provides the local dev instance of the component serving
// registry. It holds an immutable configuration snapshot, registers plugins
// (including static mocks loaded from loom.config.json), serves packaged
// artifacts and plugin executions over HTTP, and emits typed diagnostic
// events that the orchestrator translates into remediation hints.
//
// The production registry is a separate system; this package implements only
// what local development needs.
package registry
