// Package component defines the component model for the Loom dev loop.
// A component is a self-contained unit of servable content identified by its
// directory under the configured root. Each component directory carries a
// component.yaml manifest declaring the runtime modules it depends on and the
// registry plugins it uses.
//
// Discovery happens once at process start; the discovered set is immutable
// for the life of a watch cycle. File changes trigger re-packaging of the
// same set, never re-discovery.
package component
