package analytics

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type insertCall struct {
	table    string
	rowCount int
}

type fakeInserter struct {
	responses []error
	calls     []insertCall
}

func (f *fakeInserter) InsertRows(_ context.Context, table string, rows []any) error {
	var err error
	if len(f.calls) < len(f.responses) {
		err = f.responses[len(f.calls)]
	}
	f.calls = append(f.calls, insertCall{table: table, rowCount: len(rows)})
	return err
}

func newTestWriter(t *testing.T, fake *fakeInserter) *Writer {
	t.Helper()
	w, err := NewWriter(fake, " order_events ", RetryPolicy{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaximumBackoff: 2 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("construct writer: %v", err)
	}
	return w
}

func TestNewWriterValidation(t *testing.T) {
	if _, err := NewWriter(nil, "order_events", RetryPolicy{}); err == nil {
		t.Fatal("expected error when client missing")
	}
	if _, err := NewWriter(&fakeInserter{}, " ", RetryPolicy{}); err == nil {
		t.Fatal("expected error when table missing")
	}
}

func TestWriterRetriesOnTransientError(t *testing.T) {
	fake := &fakeInserter{responses: []error{&googleapi.Error{Code: http.StatusServiceUnavailable}, nil}}
	w := newTestWriter(t, fake)

	if err := w.Insert(context.Background(), &OrderEventRow{EventID: "1"}, &OrderEventRow{EventID: "2"}); err != nil {
		t.Fatalf("unexpected error writing rows: %v", err)
	}
	if len(fake.calls) != 2 {
		t.Fatalf("expected two insert attempts, got %d", len(fake.calls))
	}
	if fake.calls[1].table != "order_events" || fake.calls[1].rowCount != 2 {
		t.Fatalf("unexpected retry call %+v", fake.calls[1])
	}
}

func TestWriterStopsOnPermanentError(t *testing.T) {
	fake := &fakeInserter{responses: []error{&googleapi.Error{Code: http.StatusBadRequest}}}
	w := newTestWriter(t, fake)

	if err := w.Insert(context.Background(), &OrderEventRow{EventID: "1"}); err == nil {
		t.Fatal("expected error")
	}
	if len(fake.calls) != 1 {
		t.Fatalf("expected a single attempt, got %d", len(fake.calls))
	}
}

func TestWriterGivesUpAfterMaxAttempts(t *testing.T) {
	transient := status.Error(codes.Unavailable, "try later")
	fake := &fakeInserter{responses: []error{transient, transient, transient, nil}}
	w := newTestWriter(t, fake)

	if err := w.Insert(context.Background(), &OrderEventRow{EventID: "1"}); err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if len(fake.calls) != 3 {
		t.Fatalf("expected 3 attempts, got %d", len(fake.calls))
	}
}

func TestIsRetryableBigQueryError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("boom"), false},
		{"http 503", &googleapi.Error{Code: http.StatusServiceUnavailable}, true},
		{"http 400", &googleapi.Error{Code: http.StatusBadRequest}, false},
		{"grpc unavailable", status.Error(codes.Unavailable, "x"), true},
		{"grpc invalid", status.Error(codes.InvalidArgument, "x"), false},
		{"row errors all transient", bigquery.PutMultiError{
			{InsertID: "1", Errors: bigquery.MultiError{&googleapi.Error{Code: http.StatusInternalServerError}}},
		}, true},
		{"row errors mixed", bigquery.PutMultiError{
			{InsertID: "1", Errors: bigquery.MultiError{&googleapi.Error{Code: http.StatusInternalServerError}}},
			{InsertID: "2", Errors: bigquery.MultiError{errors.New("invalid field")}},
		}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := isRetryableBigQueryError(tc.err); got != tc.want {
				t.Fatalf("expected %v got %v", tc.want, got)
			}
		})
	}
}
