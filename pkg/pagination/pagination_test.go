package pagination

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestCursorRoundTrip(t *testing.T) {
	want := Cursor{CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 123, time.UTC), ID: uuid.New()}
	got, err := ParseCursor(EncodeCursor(want))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !got.CreatedAt.Equal(want.CreatedAt) || got.ID != want.ID {
		t.Fatalf("cursor mismatch: %+v vs %+v", got, want)
	}
}

func TestParseCursorRejectsGarbage(t *testing.T) {
	if c, err := ParseCursor("   "); err != nil || c != nil {
		t.Fatalf("expected nil cursor for blank input, got %v %v", c, err)
	}
	for _, value := range []string{"!!!", "bm8tc2VwYXJhdG9y", "eHxub3QtYS11dWlk"} {
		if _, err := ParseCursor(value); err == nil {
			t.Fatalf("expected error for %q", value)
		}
	}
}

func TestPage(t *testing.T) {
	rows := []int{5, 4, 3}
	key := func(v int) Cursor { return Cursor{ID: uuid.NewSHA1(uuid.Nil, []byte{byte(v)})} }

	page, next := Page(rows, 2, key)
	if len(page) != 2 || next == nil || next.ID != key(4).ID {
		t.Fatalf("unexpected page %v next %v", page, next)
	}

	page, next = Page(rows[:2], 2, key)
	if len(page) != 2 || next != nil {
		t.Fatalf("expected last page, got %v next %v", page, next)
	}
}

func TestNormalizeLimit(t *testing.T) {
	cases := map[int]int{0: DefaultLimit, -3: DefaultLimit, 7: 7, MaxLimit + 1: MaxLimit}
	for in, want := range cases {
		if got := NormalizeLimit(in); got != want {
			t.Fatalf("NormalizeLimit(%d) = %d, want %d", in, got, want)
		}
	}
}
