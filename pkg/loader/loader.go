// Package loader reads input documents from local files, S3 or the web and
// converts them into plain text documents for chunking.
package loader

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/OFFIS-RIT/graphrag/pkg/common"
	"github.com/OFFIS-RIT/graphrag/pkg/logger"

	"codeberg.org/readeck/go-readability/v2"
	"golang.org/x/sync/errgroup"
)

type Format string

const (
	FormatText     Format = "text"
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
	FormatCSV      Format = "csv"
	FormatDocx     Format = "docx"
)

// FormatFromPath derives the format from a file extension. Unknown
// extensions report false.
func FormatFromPath(p string) (Format, bool) {
	switch strings.ToLower(path.Ext(p)) {
	case ".txt", ".text":
		return FormatText, true
	case ".md", ".markdown":
		return FormatMarkdown, true
	case ".html", ".htm":
		return FormatHTML, true
	case ".csv":
		return FormatCSV, true
	case ".docx":
		return FormatDocx, true
	}
	return "", false
}

// Source fetches the raw bytes of a document.
type Source interface {
	Fetch(ctx context.Context, ref DocumentRef) ([]byte, error)
}

// DocumentRef points to one input document. ID and Title are derived from
// Path when empty.
type DocumentRef struct {
	ID     string
	Path   string
	Title  string
	Format Format
	Source Source
}

// CacheKey is the key sources cache fetched content under.
func CacheKey(ref DocumentRef) string {
	return ref.ID + ":" + ref.Path
}

// DocumentID returns the stable document id of a path.
func DocumentID(p string) string {
	sum := sha256.Sum256([]byte(p))
	return hex.EncodeToString(sum[:12])
}

// Load fetches the document and converts it to text.
func (r DocumentRef) Load(ctx context.Context) (common.Document, error) {
	if r.Source == nil {
		return common.Document{}, fmt.Errorf("document %s has no source", r.Path)
	}
	raw, err := r.Source.Fetch(ctx, r)
	if err != nil {
		return common.Document{}, fmt.Errorf("fetch %s: %w", r.Path, err)
	}
	text, err := ToText(r.Format, raw, r.Path)
	if err != nil {
		return common.Document{}, fmt.Errorf("convert %s: %w", r.Path, err)
	}

	id := r.ID
	if id == "" {
		id = DocumentID(r.Path)
	}
	title := r.Title
	if title == "" {
		title = filepath.Base(r.Path)
	}
	return common.Document{ID: id, Title: title, Text: text}, nil
}

// ToText converts raw content of the given format to plain text.
func ToText(format Format, raw []byte, p string) (string, error) {
	switch format {
	case FormatText, "":
		return string(raw), nil
	case FormatMarkdown:
		return CleanMarkdown(string(raw)), nil
	case FormatHTML:
		return htmlToText(raw, p)
	case FormatCSV:
		out, err := CSVToText(raw)
		return string(out), err
	case FormatDocx:
		out, err := ParseDocx(raw)
		return string(out), err
	}
	return "", fmt.Errorf("unsupported format %q", format)
}

func htmlToText(raw []byte, p string) (string, error) {
	u, err := url.Parse(p)
	if err != nil || u.Scheme == "" {
		u = &url.URL{Scheme: "file", Path: p}
	}
	article, err := readability.FromReader(bytes.NewReader(raw), u)
	if err != nil {
		return "", fmt.Errorf("failed to parse html: %w", err)
	}
	var sb strings.Builder
	if err := article.RenderText(&sb); err != nil {
		return "", fmt.Errorf("failed to render article text: %w", err)
	}
	return sb.String(), nil
}

// LoadAll loads refs with at most parallel concurrent fetches. Documents are
// returned in ref order; empty documents are skipped.
func LoadAll(ctx context.Context, refs []DocumentRef, parallel int) ([]common.Document, error) {
	if parallel <= 0 {
		parallel = 4
	}
	docs := make([]common.Document, len(refs))

	eg, gCtx := errgroup.WithContext(ctx)
	eg.SetLimit(parallel)
	for i, ref := range refs {
		eg.Go(func() error {
			doc, err := ref.Load(gCtx)
			if err != nil {
				return err
			}
			docs[i] = doc
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	out := make([]common.Document, 0, len(docs))
	for _, d := range docs {
		if strings.TrimSpace(d.Text) == "" {
			logger.Warn("[Loader] Skipping empty document", "document_id", d.ID, "title", d.Title)
			continue
		}
		out = append(out, d)
	}
	logger.Info("[Loader] Documents loaded", "documents", len(out), "skipped", len(docs)-len(out))
	return out, nil
}
