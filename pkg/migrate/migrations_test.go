package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/angelmondragon/stockhold-backend/pkg/migrate"
)

func readMigration(t *testing.T, suffix string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", "*_"+suffix+".sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected one %s migration, got %d", suffix, len(matches))
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}

func assertContains(t *testing.T, content string, checks ...string) {
	t.Helper()
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestMigrationsDirIsValid(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("validate migrations: %v", err)
	}
}

func TestProductsMigrationGuardsStockCounters(t *testing.T) {
	assertContains(t, readMigration(t, "create_products_table"),
		"CREATE TABLE IF NOT EXISTS products",
		"CHECK (available_stock >= 0)",
		"CHECK (reserved_stock >= 0)",
		"price numeric(12,2) NOT NULL",
	)
}

func TestOrdersMigrationContainsHistoryAndRefs(t *testing.T) {
	assertContains(t, readMigration(t, "create_orders_table"),
		"CREATE TABLE IF NOT EXISTS orders",
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_orders_gateway_order_ref",
		"CREATE TABLE IF NOT EXISTS order_items",
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_order_status_events_order_seq ON order_status_events (order_id, seq)",
		"expires_at timestamptz NOT NULL",
	)
}

func TestPaymentsMigrationAllowsOneSuccessPerOrder(t *testing.T) {
	assertContains(t, readMigration(t, "create_payments_table"),
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_payments_order_success ON payments (order_id) WHERE status = 'SUCCESS'",
	)
}

func TestCreateSQLMigrationSanitizesName(t *testing.T) {
	dir := t.TempDir()
	path, err := migrate.CreateSQLMigration(dir, "Add Order Notes!")
	if err != nil {
		t.Fatalf("create migration: %v", err)
	}
	if !strings.HasSuffix(path, "_add_order_notes.sql") {
		t.Fatalf("unexpected filename %s", path)
	}
	if err := migrate.ValidateDir(dir); err != nil {
		t.Fatalf("created migration should validate: %v", err)
	}
}

func TestNotificationsMigrationDedupesEvents(t *testing.T) {
	assertContains(t, readMigration(t, "create_notifications_table"),
		"CREATE TABLE IF NOT EXISTS notifications",
		"REFERENCES orders(id) ON DELETE SET NULL",
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_notifications_event_id ON notifications (event_id)",
	)
}
