package idempotency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

type fakeStore struct {
	setNXResult bool
	setNXError  error
	lastKey     string
	lastTTL     time.Duration
	lastDeleted string
}

func (f *fakeStore) Get(context.Context, string) (string, error) {
	return "", nil
}

func (f *fakeStore) SetNX(_ context.Context, key string, _ any, ttl time.Duration) (bool, error) {
	f.lastKey = key
	f.lastTTL = ttl
	return f.setNXResult, f.setNXError
}

func (f *fakeStore) IdempotencyKey(scope, id string) string {
	return "sh:idempotency:" + scope + ":" + id
}

func (f *fakeStore) Del(_ context.Context, keys ...string) error {
	if len(keys) > 0 {
		f.lastDeleted = keys[0]
	}
	return nil
}

func TestCheckAndMarkProcessed_FirstTime(t *testing.T) {
	store := &fakeStore{setNXResult: true}
	manager, err := NewManager(store, 24*time.Hour)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	eventID := uuid.New()
	already, err := manager.CheckAndMarkProcessed(context.Background(), "outbox-publisher", eventID)
	if err != nil {
		t.Fatalf("CheckAndMarkProcessed: %v", err)
	}
	if already {
		t.Fatalf("expected first call to return false")
	}
	if store.lastKey != "sh:idempotency:evt:outbox-publisher:"+eventID.String() {
		t.Fatalf("unexpected key: %q", store.lastKey)
	}
	if store.lastTTL != 24*time.Hour {
		t.Fatalf("unexpected ttl: %v", store.lastTTL)
	}
}

func TestCheckAndMarkProcessed_AlreadyProcessed(t *testing.T) {
	manager, _ := NewManager(&fakeStore{setNXResult: false}, time.Hour)
	already, err := manager.CheckAndMarkProcessed(context.Background(), "outbox-publisher", uuid.New())
	if err != nil {
		t.Fatalf("CheckAndMarkProcessed: %v", err)
	}
	if !already {
		t.Fatalf("expected already processed")
	}
}

func TestCheckAndMarkProcessed_Errors(t *testing.T) {
	manager, _ := NewManager(&fakeStore{setNXError: errors.New("boom")}, time.Hour)
	if _, err := manager.CheckAndMarkProcessed(context.Background(), "outbox-publisher", uuid.New()); err == nil {
		t.Fatal("expected store error")
	}
	if _, err := manager.CheckAndMarkProcessed(context.Background(), "", uuid.New()); err == nil {
		t.Fatal("expected missing consumer error")
	}
	if _, err := manager.CheckAndMarkProcessed(context.Background(), "outbox-publisher", uuid.Nil); err == nil {
		t.Fatal("expected missing event id error")
	}
	if _, err := NewManager(nil, time.Hour); err == nil {
		t.Fatal("expected nil store error")
	}
}

func TestDeleteProcessed(t *testing.T) {
	store := &fakeStore{}
	manager, _ := NewManager(store, time.Hour)

	eventID := uuid.New()
	if err := manager.Delete(context.Background(), "outbox-publisher", eventID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if store.lastDeleted != "sh:idempotency:evt:outbox-publisher:"+eventID.String() {
		t.Fatalf("unexpected deleted key %q", store.lastDeleted)
	}
}
