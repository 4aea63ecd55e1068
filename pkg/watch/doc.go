// Package watch delivers debounced file-change events for the component
// tree. Every directory under every component is watched recursively,
// directories created later are added on the fly, and a burst of filesystem
// events inside the debounce window collapses into a single notification.
package watch
