package storage

import (
	"context"
	"errors"
	"testing"
)

func TestDirRoundTrip(t *testing.T) {
	ctx := context.Background()
	d, err := NewDir(t.TempDir())
	if err != nil {
		t.Fatalf("NewDir() error = %v", err)
	}

	if _, err := d.Get(ctx, "g/entities.jsonl"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := d.Put(ctx, "g/entities.jsonl", []byte("one")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := d.Put(ctx, "g/entities.jsonl", []byte("two")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	got, err := d.Get(ctx, "g/entities.jsonl")
	if err != nil || string(got) != "two" {
		t.Fatalf("Get() = %q, %v", got, err)
	}

	if err := d.DeletePrefix(ctx, "g"); err != nil {
		t.Fatalf("DeletePrefix() error = %v", err)
	}
	if _, err := d.Get(ctx, "g/entities.jsonl"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}
