// Package buildlog persists packaging batch outcomes to a local SQLite
// database. The dev loop records every batch (trigger, status, failed
// component, error) so `loom status` can show what the loop has been doing
// across restarts. Storage uses WAL mode with embedded migrations.
package buildlog
