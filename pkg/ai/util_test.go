package ai

import (
	"errors"
	"fmt"
	"testing"
)

type testFinding struct {
	Summary     string `json:"summary"`
	Explanation string `json:"explanation"`
}

type testReport struct {
	Title    string        `json:"title"`
	Rating   float64       `json:"rating,omitempty"`
	Findings []testFinding `json:"findings,omitempty"`
}

func TestUnmarshalFlexible_ObjectVariants(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  testReport
	}{
		{
			name:  "valid json object",
			input: `{"title":"Harbor"}`,
			want:  testReport{Title: "Harbor"},
		},
		{
			name:  "unquoted key and single quotes",
			input: `{title: 'Harbor'}`,
			want:  testReport{Title: "Harbor"},
		},
		{
			name:  "trailing comma",
			input: `{"title":"Harbor","rating":4.5,}`,
			want:  testReport{Title: "Harbor", Rating: 4.5},
		},
		{
			name:  "missing endbracket",
			input: `{"title":"Harbor`,
			want:  testReport{Title: "Harbor"},
		},
		{
			name:  "stringified invalid json object",
			input: `"{title: 'Harbor'}"`,
			want:  testReport{Title: "Harbor"},
		},
		{
			name:  "duplicate leading brace",
			input: "{\n{\n  \"title\": \"Harbor\"\n}\n",
			want:  testReport{Title: "Harbor"},
		},
		{
			name:  "markdown code fence",
			input: "```json\n{\"title\": \"Harbor\", \"rating\": 7}\n```",
			want:  testReport{Title: "Harbor", Rating: 7},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var got testReport
			if err := UnmarshalFlexible(tc.input, &got); err != nil {
				t.Fatalf("UnmarshalFlexible() error = %v", err)
			}
			if got.Title != tc.want.Title || got.Rating != tc.want.Rating {
				t.Fatalf("UnmarshalFlexible() got = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestUnmarshalFlexible_NestedFindings(t *testing.T) {
	input := `{title:'Port', findings:[{summary:'a',explanation:'b'},{summary:'c',explanation:'d',}]}`
	var got testReport
	if err := UnmarshalFlexible(input, &got); err != nil {
		t.Fatalf("UnmarshalFlexible() error = %v", err)
	}
	if len(got.Findings) != 2 || got.Findings[0].Summary != "a" || got.Findings[1].Explanation != "d" {
		t.Fatalf("UnmarshalFlexible() got = %+v", got)
	}
}

func TestUnmarshalFlexible_Unrecoverable(t *testing.T) {
	var got testReport
	if err := UnmarshalFlexible("hello", &got); err == nil {
		t.Fatalf("UnmarshalFlexible() expected error for unrecoverable input")
	}
	if err := UnmarshalFlexible("   ", &got); err == nil {
		t.Fatalf("UnmarshalFlexible() expected error for empty input")
	}
}

func TestNormalizeWhitespace(t *testing.T) {
	got := NormalizeWhitespace("  Alpha\r\nis   a\tcompany.\n\nIt trades.  ")
	want := "Alpha is a company. It trades."
	if got != want {
		t.Fatalf("NormalizeWhitespace() = %q, want %q", got, want)
	}
}

func TestWrapInvocation(t *testing.T) {
	if WrapInvocation("completion", "m", nil) != nil {
		t.Fatal("expected nil for nil error")
	}

	base := errors.New("boom")
	err := WrapInvocation("completion", "gpt", base)
	if !IsInvocationError(err) {
		t.Fatalf("expected invocation error, got %T", err)
	}
	if !errors.Is(err, base) {
		t.Fatal("expected wrapped error to unwrap to base")
	}

	again := WrapInvocation("embedding", "other", fmt.Errorf("ctx: %w", err))
	var ie *LLMInvocationError
	if !errors.As(again, &ie) || ie.Op != "completion" {
		t.Fatalf("expected original invocation error to be kept, got %v", again)
	}
}
