//go:build integration

package ledger

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/angelmondragon/stockhold-backend/pkg/config"
	"github.com/angelmondragon/stockhold-backend/pkg/db"
	"github.com/angelmondragon/stockhold-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/stockhold-backend/pkg/errors"
	"github.com/angelmondragon/stockhold-backend/pkg/migrate"
)

func setupPostgres(t *testing.T) *db.Client {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "stockhold",
				"POSTGRES_PASSWORD": "stockhold",
				"POSTGRES_DB":       "stockhold",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("container port: %v", err)
	}

	client, err := db.New(ctx, config.DBConfig{
		DSN:          fmt.Sprintf("postgres://stockhold:stockhold@%s:%s/stockhold?sslmode=disable", host, port.Port()),
		Driver:       "postgres",
		MaxOpenConns: 20,
		MaxIdleConns: 5,
		Transactions: true,
		TxRetries:    3,
	}, nil)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	sqlDB, err := client.DB().DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	if err := migrate.Run(ctx, sqlDB, "../../"+migrate.DefaultDir, "up"); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return client
}

func TestConcurrentReservationsNeverOversell(t *testing.T) {
	client := setupPostgres(t)
	svc := newTestService(t)

	product := models.Product{
		ID:             uuid.New(),
		Name:           "limited run",
		Price:          decimal.RequireFromString("19.99"),
		AvailableStock: 5,
	}
	if err := client.DB().Create(&product).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}

	const buyers = 20
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		soldOut   int
		other     []error
	)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := client.Atomic(context.Background(), func(u *db.Unit) error {
				return svc.Reserve(context.Background(), u, product.ID, 1)
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock):
				soldOut++
			default:
				other = append(other, err)
			}
		}()
	}
	wg.Wait()

	if len(other) > 0 {
		t.Fatalf("unexpected errors: %v", other)
	}
	if succeeded != 5 || soldOut != buyers-5 {
		t.Fatalf("expected 5 reservations and %d sold out, got %d/%d", buyers-5, succeeded, soldOut)
	}

	counters, err := svc.Counters(context.Background(), client.DB(), product.ID)
	if err != nil {
		t.Fatalf("counters: %v", err)
	}
	if counters.Available != 0 || counters.Reserved != 5 {
		t.Fatalf("expected 0/5, got %d/%d", counters.Available, counters.Reserved)
	}
}
