package migrate_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readMigration(t *testing.T, pattern string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", pattern))
	require.NoError(t, err)
	require.Len(t, matches, 1, "expected exactly one migration matching %s", pattern)

	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	return string(data)
}

func TestProductsMigrationContainsSchemas(t *testing.T) {
	content := readMigration(t, "*_create_products.sql")

	for _, stmt := range []string{
		"CREATE TABLE IF NOT EXISTS products",
		"CHECK (unit_price >= 0)",
		"CHECK (quantity >= 0)",
		"CREATE INDEX IF NOT EXISTS idx_products_category_name",
		"DROP TABLE IF EXISTS products",
	} {
		assert.Contains(t, content, stmt)
	}
}

func TestOrderMigrationsEnforceUniqueness(t *testing.T) {
	pending := readMigration(t, "*_create_pending_orders.sql")
	assert.Contains(t, pending, "CREATE UNIQUE INDEX IF NOT EXISTS idx_pending_orders_payment_reference")

	orders := readMigration(t, "*_create_orders.sql")
	for _, stmt := range []string{
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_orders_pending_order_id",
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_orders_order_number",
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_orders_invoice_number",
	} {
		assert.Contains(t, orders, stmt)
	}

	outbox := readMigration(t, "*_create_outbox_events.sql")
	assert.Contains(t, outbox, "CREATE UNIQUE INDEX IF NOT EXISTS ux_outbox_events_event_aggregate")
}
