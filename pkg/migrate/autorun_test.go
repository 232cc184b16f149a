package migrate

import (
	"context"
	"io"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockhold-backend/pkg/config"
	"github.com/angelmondragon/stockhold-backend/pkg/db"
	"github.com/angelmondragon/stockhold-backend/pkg/db/models"
	"github.com/angelmondragon/stockhold-backend/pkg/logger"
)

func sqliteClient(t *testing.T) (*db.Client, *gorm.DB) {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file:autorun_"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	return db.NewWithConn(conn, db.Options{}, nil), conn
}

func TestMaybeRunDevBuildsSQLiteSchema(t *testing.T) {
	client, conn := sqliteClient(t)
	cfg := &config.Config{}
	cfg.App.Env = config.AppEnvDev
	cfg.FeatureFlags.AutoMigrate = true
	cfg.FeatureFlags.UseSQLite = true

	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	if err := MaybeRunDev(context.Background(), cfg, logg, client); err != nil {
		t.Fatalf("maybe run dev: %v", err)
	}
	for _, model := range models.All() {
		if !conn.Migrator().HasTable(model) {
			t.Fatalf("expected table for %T", model)
		}
	}
}

func TestMaybeRunDevSkipsOutsideDev(t *testing.T) {
	client, conn := sqliteClient(t)
	cfg := &config.Config{}
	cfg.App.Env = "prod"
	cfg.FeatureFlags.AutoMigrate = true
	cfg.FeatureFlags.UseSQLite = true

	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	if err := MaybeRunDev(context.Background(), cfg, logg, client); err != nil {
		t.Fatalf("maybe run dev: %v", err)
	}
	if conn.Migrator().HasTable(&models.Order{}) {
		t.Fatal("expected no schema outside dev")
	}
}
