package loader

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
)

const docXMLMax = 50 << 20

var blankLines = regexp.MustCompile(`\n{3,}`)

// docxText collects the visible text of word/document.xml. Deleted runs of
// tracked changes are skipped and table cells are separated by tabs.
type docxText struct {
	sb       strings.Builder
	inText   bool
	deleted  int
	inTable  bool
	cellSeen bool
}

func (d *docxText) newline() {
	if d.sb.Len() > 0 && !strings.HasSuffix(d.sb.String(), "\n") {
		d.sb.WriteByte('\n')
	}
}

func (d *docxText) start(name string) {
	if name == "del" {
		d.deleted++
		return
	}
	if d.deleted > 0 {
		return
	}
	switch name {
	case "t":
		d.inText = true
	case "tab":
		d.sb.WriteByte('\t')
	case "br", "cr":
		d.sb.WriteByte('\n')
	case "noBreakHyphen":
		d.sb.WriteByte('-')
	case "tbl":
		d.inTable = true
		d.newline()
	case "tr":
		d.cellSeen = false
	case "tc":
		if d.inTable && d.cellSeen {
			d.sb.WriteByte('\t')
		}
		d.cellSeen = true
	}
}

func (d *docxText) end(name string) {
	switch name {
	case "del":
		if d.deleted > 0 {
			d.deleted--
		}
	case "t":
		d.inText = false
	case "p", "tr":
		if d.deleted == 0 {
			d.sb.WriteByte('\n')
		}
	case "tbl":
		d.inTable = false
		if d.deleted == 0 {
			d.sb.WriteByte('\n')
		}
	}
}

// ParseDocx extracts the paragraph and table text of a .docx file.
func ParseDocx(content []byte) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("failed to open docx: %w", err)
	}

	var doc *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			doc = f
			break
		}
	}
	if doc == nil {
		return nil, errors.New("document.xml not found in docx")
	}
	if doc.UncompressedSize64 > docXMLMax {
		return nil, fmt.Errorf("document.xml too large: %d bytes", doc.UncompressedSize64)
	}

	rc, err := doc.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open document.xml: %w", err)
	}
	defer rc.Close()

	var text docxText
	dec := xml.NewDecoder(io.LimitReader(rc, docXMLMax))
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse XML: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			text.start(t.Name.Local)
		case xml.EndElement:
			text.end(t.Name.Local)
		case xml.CharData:
			if text.inText && text.deleted == 0 {
				text.sb.Write(t)
			}
		}
	}

	out := strings.TrimSpace(blankLines.ReplaceAllString(text.sb.String(), "\n\n"))
	if out == "" {
		return nil, nil
	}
	return []byte(out + "\n"), nil
}
