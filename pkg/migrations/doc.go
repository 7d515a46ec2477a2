// Package migrations provides SQL migration generation for the controller's
// membership journal. It generates database schema migrations for the
// append-only membership events table across PostgreSQL, MySQL/MariaDB, and
// SQLite databases.
package migrations
