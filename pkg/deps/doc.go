// Package deps resolves the runtime module dependencies of discovered
// components. The resolver computes the deduplicated dependency set, probes
// each module against the local environment, and hands any missing modules to
// an Installer before re-resolving from scratch. The loop has no retry bound:
// it runs until a pass yields zero missing modules or the installer itself
// fails, which is fatal.
package deps
