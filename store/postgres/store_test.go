package postgres

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTableConfig(t *testing.T) {
	t.Run("default table name", func(t *testing.T) {
		j := New(nil)
		assert.Equal(t, "controller_membership_events", j.eventsTable)
	})

	t.Run("custom table name is used", func(t *testing.T) {
		j := NewWithConfig(nil, TableConfig{EventsTable: "custom_events"})
		assert.Equal(t, "custom_events", j.eventsTable)
	})
}

func TestMigrationUp(t *testing.T) {
	sql := MigrationUp(DefaultTableConfig())

	assert.Contains(t, sql, "CREATE TABLE controller_membership_events")
	assert.Contains(t, sql, "worker_registered")
	assert.Contains(t, sql, "registration_failed")
	assert.Contains(t, sql, "worker_failed")
	assert.Contains(t, sql, "idx_membership_events_occurred")
}

func TestMigrationDown(t *testing.T) {
	sql := MigrationDown(TableConfig{EventsTable: "custom_events"})

	assert.True(t, strings.HasPrefix(sql, "DROP TABLE IF EXISTS custom_events"))
}
