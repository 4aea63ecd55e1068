// Package packaging serializes the packaging of discovered components into
// servable artifacts. The Coordinator guarantees at most one batch runs at a
// time, packages components strictly in discovery order, aborts a batch on
// the first failure, and retries the whole batch after a fixed delay.
// Overlapping triggers are absorbed: a PackageAll call while a batch is
// active starts nothing and reports no error.
package packaging
