package leaselock

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type fakeRow struct {
	key string
	err error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*dest[0].(*string) = r.key
	return nil
}

// fakeLocks emulates the index_leases table without expiry.
type fakeLocks struct {
	mu       sync.Mutex
	owners   map[string]string
	released int
	loseAll  bool
}

func newFakeLocks() *fakeLocks {
	return &fakeLocks{owners: map[string]string{}}
}

func (f *fakeLocks) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	f.mu.Lock()
	defer f.mu.Unlock()
	key, token := args[0].(string), args[1].(string)
	switch {
	case strings.Contains(sql, "INSERT INTO index_leases"):
		if owner, ok := f.owners[key]; ok && owner != token {
			return fakeRow{err: pgx.ErrNoRows}
		}
		f.owners[key] = token
		return fakeRow{key: key}
	case strings.Contains(sql, "UPDATE index_leases"):
		if f.loseAll || f.owners[key] != token {
			return fakeRow{err: pgx.ErrNoRows}
		}
		return fakeRow{key: key}
	}
	return fakeRow{err: errors.New("unexpected query")}
}

func (f *fakeLocks) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key, token := args[0].(string), args[1].(string)
	if f.owners[key] == token {
		delete(f.owners, key)
		f.released++
	}
	return pgconn.CommandTag{}, nil
}

func TestAcquireBusyAndRelease(t *testing.T) {
	ctx := context.Background()
	db := newFakeLocks()
	c := New(db)

	first, err := c.Acquire(ctx, GraphKey("g1"), Options{})
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if _, err := c.Acquire(ctx, GraphKey("g1"), Options{}); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	if _, err := c.Acquire(ctx, GraphKey("g2"), Options{}); err != nil {
		t.Fatalf("other key should be free, got %v", err)
	}

	if err := first.Release(ctx); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if first.Context.Err() == nil {
		t.Fatal("expected lease context to be canceled after release")
	}
	if _, err := c.Acquire(ctx, GraphKey("g1"), Options{}); err != nil {
		t.Fatalf("expected lock to be free after release, got %v", err)
	}
}

func TestAcquireWaitsUntilCanceled(t *testing.T) {
	db := newFakeLocks()
	c := New(db)
	if _, err := c.Acquire(context.Background(), "k", Options{}); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := c.Acquire(ctx, "k", Options{Wait: true, WaitInterval: 5 * time.Millisecond})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestWithLeaseReleases(t *testing.T) {
	db := newFakeLocks()
	c := New(db)
	ran := false
	err := c.WithLease(context.Background(), "k", Options{}, func(ctx context.Context) error {
		ran = true
		if ctx.Err() != nil {
			t.Fatalf("lease context already done: %v", ctx.Err())
		}
		return nil
	})
	if err != nil || !ran {
		t.Fatalf("WithLease() err = %v, ran = %v", err, ran)
	}
	if db.released != 1 {
		t.Fatalf("expected one release, got %d", db.released)
	}
}

func TestLeaseLostCancelsContext(t *testing.T) {
	db := newFakeLocks()
	db.loseAll = true
	c := New(db)
	lease, err := c.Acquire(context.Background(), "k", Options{TTL: 2 * time.Second, RenewEvery: 10 * time.Millisecond})
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	select {
	case <-lease.Context.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("expected lease context to be canceled")
	}
	if !errors.Is(context.Cause(lease.Context), ErrLost) {
		t.Fatalf("expected ErrLost cause, got %v", context.Cause(lease.Context))
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	db := newFakeLocks()
	c := New(db)
	lease, err := c.Acquire(context.Background(), GraphKey("harbor"), Options{})
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	for range 2 {
		if err := lease.Release(context.Background()); err != nil {
			t.Fatalf("Release() error = %v", err)
		}
	}
	if db.released != 1 {
		t.Fatalf("expected one deleted row, got %d", db.released)
	}
}

func TestWithLeaseReportsLostLease(t *testing.T) {
	db := newFakeLocks()
	db.loseAll = true
	c := New(db)
	boom := errors.New("aborted")
	err := c.WithLease(context.Background(), "k", Options{TTL: 2 * time.Second, RenewEvery: 10 * time.Millisecond}, func(ctx context.Context) error {
		<-ctx.Done()
		return boom
	})
	if !errors.Is(err, boom) || !errors.Is(err, ErrLost) {
		t.Fatalf("expected run error joined with ErrLost, got %v", err)
	}
}
