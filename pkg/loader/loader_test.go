package loader

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
)

type mapSource map[string]string

func (m mapSource) Fetch(_ context.Context, ref DocumentRef) ([]byte, error) {
	content, ok := m[ref.Path]
	if !ok {
		return nil, errors.New("not found")
	}
	return []byte(content), nil
}

func TestFormatFromPath(t *testing.T) {
	tests := []struct {
		path string
		want Format
		ok   bool
	}{
		{"notes.txt", FormatText, true},
		{"dir/README.MD", FormatMarkdown, true},
		{"page.htm", FormatHTML, true},
		{"table.csv", FormatCSV, true},
		{"report.docx", FormatDocx, true},
		{"image.png", "", false},
		{"noext", "", false},
	}
	for _, tc := range tests {
		got, ok := FormatFromPath(tc.path)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("FormatFromPath(%q) = %q, %v; want %q, %v", tc.path, got, ok, tc.want, tc.ok)
		}
	}
}

func TestCSVToText(t *testing.T) {
	input := "name,city\n\nAlpha,  Harbor   Town\n,,\nBeta,\n"
	got, err := CSVToText([]byte(input))
	if err != nil {
		t.Fatalf("CSVToText() error = %v", err)
	}
	want := "name: Alpha; city: Harbor Town.\nname: Beta.\n"
	if string(got) != want {
		t.Fatalf("CSVToText() = %q, want %q", got, want)
	}

	if _, err := CSVToText([]byte("only,header\n")); err == nil {
		t.Fatal("expected error for csv without data rows")
	}
}

func TestCleanMarkdown(t *testing.T) {
	input := "# Title\n<!-- hidden -->\nSee [the docs](http://x) and ![a chart](c.png) ![](d.png)\n\n\n\nEnd"
	got := CleanMarkdown(input)
	want := "# Title\n\nSee the docs and <image>a chart</image> \n\nEnd"
	if got != want {
		t.Fatalf("CleanMarkdown() = %q, want %q", got, want)
	}
}

func buildDocx(t *testing.T, body string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	if err != nil {
		t.Fatalf("zip create: %v", err)
	}
	doc := `<?xml version="1.0" encoding="UTF-8"?>` +
		`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
		body + `</w:body></w:document>`
	if _, err := w.Write([]byte(doc)); err != nil {
		t.Fatalf("zip write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}

func TestParseDocx(t *testing.T) {
	body := `<w:p><w:r><w:t>Alpha is a company.</w:t></w:r></w:p>` +
		`<w:p><w:r><w:t>Kept</w:t></w:r><w:del><w:r><w:t>Removed</w:t></w:r></w:del></w:p>` +
		`<w:tbl><w:tr><w:tc><w:p><w:r><w:t>a</w:t></w:r></w:p></w:tc><w:tc><w:p><w:r><w:t>b</w:t></w:r></w:p></w:tc></w:tr></w:tbl>`

	got, err := ParseDocx(buildDocx(t, body))
	if err != nil {
		t.Fatalf("ParseDocx() error = %v", err)
	}
	text := string(got)
	for _, want := range []string{"Alpha is a company.", "Kept", "a", "b"} {
		if !strings.Contains(text, want) {
			t.Fatalf("ParseDocx() = %q, missing %q", text, want)
		}
	}
	if strings.Contains(text, "Removed") {
		t.Fatalf("ParseDocx() kept deleted run: %q", text)
	}

	if _, err := ParseDocx([]byte("not a zip")); err == nil {
		t.Fatal("expected error for invalid archive")
	}
}

func TestLoadAll(t *testing.T) {
	src := mapSource{
		"a.md":  "# A\n[link](x)",
		"b.txt": "   ",
		"c.csv": "k,v\n1,2\n",
		"d.txt": "plain",
	}
	refs := []DocumentRef{
		{Path: "a.md", Format: FormatMarkdown, Source: src},
		{Path: "b.txt", Format: FormatText, Source: src},
		{ID: "custom", Title: "C", Path: "c.csv", Format: FormatCSV, Source: src},
		{Path: "d.txt", Format: FormatText, Source: src},
	}

	docs, err := LoadAll(context.Background(), refs, 2)
	if err != nil {
		t.Fatalf("LoadAll() error = %v", err)
	}
	if len(docs) != 3 {
		t.Fatalf("expected 3 documents, got %d", len(docs))
	}
	if docs[0].Text != "# A\nlink" || docs[0].Title != "a.md" || docs[0].ID != DocumentID("a.md") {
		t.Fatalf("unexpected first document: %+v", docs[0])
	}
	if docs[1].ID != "custom" || docs[1].Title != "C" || docs[1].Text != "k: 1; v: 2.\n" {
		t.Fatalf("unexpected csv document: %+v", docs[1])
	}
	if docs[2].Text != "plain" {
		t.Fatalf("unexpected last document: %+v", docs[2])
	}
}

func TestLoadAllFailsOnFetchError(t *testing.T) {
	refs := []DocumentRef{{Path: "missing.txt", Format: FormatText, Source: mapSource{}}}
	if _, err := LoadAll(context.Background(), refs, 1); err == nil {
		t.Fatal("expected fetch error")
	}
	if _, err := (DocumentRef{Path: "x"}).Load(context.Background()); err == nil {
		t.Fatal("expected error for ref without source")
	}
}
