// Package devserver is the top-level orchestration loop for local component
// development. One Run sequences: discover components, ensure their runtime
// dependencies (installing what is missing), package everything, start the
// local dev registry with mock plugins, and watch the component tree,
// repackaging the full set on every change until the context is cancelled.
//
// Control flow is strictly linear until the registry starts, then becomes
// event-driven with file-change notifications as the only event source.
package devserver
