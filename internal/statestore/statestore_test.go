package statestore_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/natfields/skybridge/internal/statestore"
)

// TestMemoryStoreRoundTrip verifies Read returns the last written bytes
// verbatim and that writes fully replace prior state.
func TestMemoryStoreRoundTrip(t *testing.T) {
	t.Parallel()

	store := statestore.NewMemoryStore()
	ctx := context.Background()
	key := statestore.Key{Subject: "conv-1", WidgetID: "shopping-cart"}

	first := json.RawMessage(`{"lastItemCount":2,"note":"keep"}`)
	if err := store.Write(ctx, key, first); err != nil {
		t.Fatalf("Write: %v", err)
	}
	second := json.RawMessage(`{"lastItemCount":3}`)
	if err := store.Write(ctx, key, second); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := store.Read(ctx, key)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(got, second) {
		t.Errorf("Read = %s, want %s (full replacement, no merge)", got, second)
	}
}

// TestMemoryStoreCopiesBuffers verifies the store is immune to callers
// mutating the slice after Write or Read.
func TestMemoryStoreCopiesBuffers(t *testing.T) {
	t.Parallel()

	store := statestore.NewMemoryStore()
	ctx := context.Background()
	key := statestore.Key{Subject: "conv-1", WidgetID: "w"}

	buf := json.RawMessage(`{"a":1}`)
	if err := store.Write(ctx, key, buf); err != nil {
		t.Fatalf("Write: %v", err)
	}
	copy(buf, []byte(`{"b":2}`))

	got, err := store.Read(ctx, key)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != `{"a":1}` {
		t.Errorf("Read = %s after caller mutation, want {\"a\":1}", got)
	}
}

// TestMemoryStoreNotFound verifies unknown keys yield ErrNotFound and that
// keys are scoped by both subject and widget.
func TestMemoryStoreNotFound(t *testing.T) {
	t.Parallel()

	store := statestore.NewMemoryStore()
	ctx := context.Background()
	if err := store.Write(ctx, statestore.Key{Subject: "conv-1", WidgetID: "w"}, json.RawMessage(`{}`)); err != nil {
		t.Fatalf("Write: %v", err)
	}

	for _, key := range []statestore.Key{
		{Subject: "conv-2", WidgetID: "w"},
		{Subject: "conv-1", WidgetID: "other"},
	} {
		if _, err := store.Read(ctx, key); !errors.Is(err, statestore.ErrNotFound) {
			t.Errorf("Read(%+v) err = %v, want ErrNotFound", key, err)
		}
	}
}

// TestMemoryStoreDelete verifies delete removes state and is idempotent.
func TestMemoryStoreDelete(t *testing.T) {
	t.Parallel()

	store := statestore.NewMemoryStore()
	ctx := context.Background()
	key := statestore.Key{Subject: "conv-1", WidgetID: "w"}

	if err := store.Write(ctx, key, json.RawMessage(`{}`)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := store.Delete(ctx, key); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Read(ctx, key); !errors.Is(err, statestore.ErrNotFound) {
		t.Errorf("Read after delete err = %v, want ErrNotFound", err)
	}
	if err := store.Delete(ctx, key); err != nil {
		t.Errorf("second Delete err = %v, want nil", err)
	}
}

// fakeDB records executed SQL and serves canned rows.
type fakeDB struct {
	execSQL  []string
	execArgs [][]any
	row      fakeRow
}

func (f *fakeDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.execSQL = append(f.execSQL, sql)
	f.execArgs = append(f.execArgs, args)
	return pgconn.CommandTag{}, nil
}

func (f *fakeDB) QueryRow(context.Context, string, ...any) pgx.Row {
	return f.row
}

type fakeRow struct {
	state json.RawMessage
	err   error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*dest[0].(*json.RawMessage) = r.state
	return nil
}

// TestPostgresWriteUpserts verifies Write issues a single upsert keyed on
// subject and widget.
func TestPostgresWriteUpserts(t *testing.T) {
	t.Parallel()

	db := &fakeDB{}
	store := statestore.NewPostgresStoreWithDB(db)
	key := statestore.Key{Subject: "conv-1", WidgetID: "shopping-cart"}

	if err := store.Write(context.Background(), key, json.RawMessage(`{"n":1}`)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if len(db.execSQL) != 1 {
		t.Fatalf("executed %d statements, want 1", len(db.execSQL))
	}
	if !strings.Contains(db.execSQL[0], "ON CONFLICT (subject, widget_id)") {
		t.Errorf("write SQL is not an upsert: %s", db.execSQL[0])
	}
	if db.execArgs[0][0] != "conv-1" || db.execArgs[0][1] != "shopping-cart" {
		t.Errorf("write args = %v", db.execArgs[0])
	}
}

// TestPostgresReadNotFound verifies pgx.ErrNoRows maps to ErrNotFound.
func TestPostgresReadNotFound(t *testing.T) {
	t.Parallel()

	db := &fakeDB{row: fakeRow{err: pgx.ErrNoRows}}
	store := statestore.NewPostgresStoreWithDB(db)

	_, err := store.Read(context.Background(), statestore.Key{Subject: "s", WidgetID: "w"})
	if !errors.Is(err, statestore.ErrNotFound) {
		t.Errorf("Read err = %v, want ErrNotFound", err)
	}
}

// TestPostgresReadReturnsState verifies the stored document comes back as
// written.
func TestPostgresReadReturnsState(t *testing.T) {
	t.Parallel()

	db := &fakeDB{row: fakeRow{state: json.RawMessage(`{"n":7}`)}}
	store := statestore.NewPostgresStoreWithDB(db)

	got, err := store.Read(context.Background(), statestore.Key{Subject: "s", WidgetID: "w"})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != `{"n":7}` {
		t.Errorf("Read = %s", got)
	}
}
