package store

import "strings"

// ChunkRange calls fn for consecutive [start, end) windows of at most
// chunkSize items. chunkSize <= 0 means a single window.
func ChunkRange(total, chunkSize int, fn func(start, end int) error) error {
	if chunkSize <= 0 {
		chunkSize = max(total, 1)
	}
	for start := 0; start < total; start = min(start+chunkSize, total) {
		if err := fn(start, min(start+chunkSize, total)); err != nil {
			return err
		}
	}
	return nil
}

// DedupeStrings drops empty and repeated values, keeping first occurrences.
// The result is nil when nothing is left.
func DedupeStrings(in []string) []string {
	var out []string
	seen := make(map[string]bool, len(in))
	for _, v := range in {
		if v != "" && !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

// SanitizeText makes s storable in a Postgres text column: invalid UTF-8
// sequences and NUL bytes are removed.
func SanitizeText(s string) string {
	s = strings.ToValidUTF8(s, "")
	if strings.IndexByte(s, 0) < 0 {
		return s
	}
	return strings.Map(func(r rune) rune {
		if r == 0 {
			return -1
		}
		return r
	}, s)
}

// SanitizeTexts applies SanitizeText to every value. The result is never
// nil, so it maps to an empty array rather than NULL.
func SanitizeTexts(values []string) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = SanitizeText(v)
	}
	return out
}
