package graph

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"github.com/OFFIS-RIT/graphrag/pkg/common"
	"github.com/OFFIS-RIT/graphrag/pkg/prompt"
)

var tableDelim = regexp.MustCompile(`^\s*\|?\s*:?-{3,}:?\s*(\|\s*:?-{3,}:?\s*)+\|?\s*$`)

const sentenceClosers = "\"')]}"

// ChunkOptions controls how documents are split into text units.
type ChunkOptions struct {
	MaxTokens     int
	OverlapTokens int
}

// ChunkDocument splits a document into text units of whole sentences. A
// sentence longer than MaxTokens becomes a unit of its own. Markdown tables
// are kept together as one sentence.
//
// Unit ids are derived from the document id and the sentence range, so
// rechunking the same document yields the same ids.
func ChunkDocument(doc common.Document, tok *prompt.Tokenizer, opts ChunkOptions) []common.TextUnit {
	sentences := splitIntoSentences(doc.Text)
	if len(sentences) == 0 {
		return nil
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1200
	}

	counts := make([]int, len(sentences))
	for i, s := range sentences {
		counts[i] = tok.Count(s)
	}

	var units []common.TextUnit
	start, tokens := 0, 0
	flush := func(end int) {
		text := strings.Join(sentences[start:end], " ")
		units = append(units, common.TextUnit{
			ID:         unitID(doc.ID, start, end),
			DocumentID: doc.ID,
			Start:      start,
			End:        end,
			Text:       text,
			Tokens:     tok.Count(text),
		})
	}

	for i := range sentences {
		if i > start && tokens+counts[i] > maxTokens {
			flush(i)
			next := i
			overlap := 0
			for next > start+1 && overlap+counts[next-1] <= opts.OverlapTokens &&
				overlap+counts[next-1]+counts[i] <= maxTokens {
				next--
				overlap += counts[next]
			}
			start, tokens = next, overlap
		}
		tokens += counts[i]
	}
	flush(len(sentences))

	return units
}

// ChunkDocuments chunks every document and returns the units in document
// order.
func ChunkDocuments(docs []common.Document, tok *prompt.Tokenizer, opts ChunkOptions) []common.TextUnit {
	var units []common.TextUnit
	for _, doc := range docs {
		units = append(units, ChunkDocument(doc, tok, opts)...)
	}
	return units
}

func unitID(docID string, start, end int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d:%d", docID, start, end)))
	return hex.EncodeToString(sum[:16])
}

func isTableRow(line string) bool {
	return strings.Contains(line, "|")
}

func splitIntoSentences(text string) []string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")

	var out []string
	var cur strings.Builder
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			out = append(out, s)
		}
		cur.Reset()
	}

	for i := 0; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		switch {
		case line == "":
			flush()
		case isTableRow(line):
			flush()
			if i+1 < len(lines) && tableDelim.MatchString(lines[i+1]) {
				block := []string{lines[i]}
				for i+1 < len(lines) && isTableRow(strings.TrimSpace(lines[i+1])) {
					i++
					block = append(block, lines[i])
				}
				out = append(out, strings.TrimSpace(strings.Join(block, "\n")))
				continue
			}
			out = append(out, line)
		default:
			for _, s := range splitLine(line) {
				if cur.Len() > 0 {
					cur.WriteByte(' ')
				}
				cur.WriteString(s)
				if endsSentence(s) {
					flush()
				}
			}
		}
	}
	flush()

	return out
}

func isTerminator(b byte) bool {
	return b == '.' || b == '!' || b == '?'
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

func endsSentence(s string) bool {
	s = strings.TrimRight(strings.TrimSpace(s), sentenceClosers)
	return s != "" && isTerminator(s[len(s)-1])
}

// splitLine cuts a single line after sentence terminators. "1. " style
// list markers do not end a sentence.
func splitLine(line string) []string {
	var out []string
	start := 0
	for i := 0; i < len(line); i++ {
		if !isTerminator(line[i]) {
			continue
		}
		if i > 0 && isDigit(line[i-1]) && i+1 < len(line) && line[i+1] == ' ' {
			continue
		}
		j := i + 1
		for j < len(line) && (isTerminator(line[j]) || strings.IndexByte(sentenceClosers, line[j]) >= 0) {
			j++
		}
		if s := strings.TrimSpace(line[start:j]); s != "" {
			out = append(out, s)
		}
		start = j
		i = j - 1
	}
	if s := strings.TrimSpace(line[start:]); s != "" {
		out = append(out, s)
	}
	return out
}
