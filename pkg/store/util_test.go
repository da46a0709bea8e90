package store

import (
	"errors"
	"slices"
	"testing"
)

func TestChunkRange(t *testing.T) {
	tests := []struct {
		name      string
		total     int
		chunkSize int
		want      [][2]int
	}{
		{"empty", 0, 3, nil},
		{"exact", 6, 3, [][2]int{{0, 3}, {3, 6}}},
		{"remainder", 7, 3, [][2]int{{0, 3}, {3, 6}, {6, 7}}},
		{"no chunk size", 4, 0, [][2]int{{0, 4}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var got [][2]int
			err := ChunkRange(tc.total, tc.chunkSize, func(start, end int) error {
				got = append(got, [2]int{start, end})
				return nil
			})
			if err != nil {
				t.Fatalf("ChunkRange() error = %v", err)
			}
			if !slices.Equal(got, tc.want) {
				t.Fatalf("ChunkRange() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestChunkRangeStopsOnError(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	err := ChunkRange(10, 2, func(start, end int) error {
		calls++
		return boom
	})
	if !errors.Is(err, boom) || calls != 1 {
		t.Fatalf("ChunkRange() err = %v, calls = %d", err, calls)
	}
}

func TestDedupeStrings(t *testing.T) {
	got := DedupeStrings([]string{"b", "", "a", "b", "c", "a"})
	want := []string{"b", "a", "c"}
	if !slices.Equal(got, want) {
		t.Fatalf("DedupeStrings() = %v, want %v", got, want)
	}
	if DedupeStrings(nil) != nil {
		t.Fatal("expected nil for empty input")
	}
}

func TestSanitizeText(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Harbor Town", "Harbor Town"},
		{"Har\x00bor", "Harbor"},
		{string([]byte{'A', 0xff, 'B'}), "AB"},
		{"Straße �", "Straße �"},
	}
	for _, tc := range tests {
		if got := SanitizeText(tc.in); got != tc.want {
			t.Fatalf("SanitizeText(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
	if got := SanitizeTexts([]string{"a\x00", "b"}); !slices.Equal(got, []string{"a", "b"}) {
		t.Fatalf("SanitizeTexts() = %q", got)
	}
}
