package prompt

import (
	"strings"
	"sync"

	"github.com/OFFIS-RIT/graphrag/pkg/logger"

	"github.com/pkoukk/tiktoken-go"
)

// Tokenizer counts and truncates text by tokens. When the BPE encoding
// cannot be loaded it falls back to counting whitespace separated words.
type Tokenizer struct {
	enc *tiktoken.Tiktoken
}

var (
	encMu    sync.Mutex
	encCache = map[string]*tiktoken.Tiktoken{}
)

// NewTokenizer returns a tokenizer for the named tiktoken encoding, e.g.
// "o200k_base". An empty name selects the word count heuristic directly.
func NewTokenizer(encoding string) *Tokenizer {
	if encoding == "" {
		return &Tokenizer{}
	}

	encMu.Lock()
	defer encMu.Unlock()

	if enc, ok := encCache[encoding]; ok {
		return &Tokenizer{enc: enc}
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		logger.Warn("[Tokens] Encoding unavailable, counting words instead", "encoding", encoding, "err", err)
		encCache[encoding] = nil
		return &Tokenizer{}
	}
	encCache[encoding] = enc
	return &Tokenizer{enc: enc}
}

// Exact reports whether counts come from a real BPE encoding.
func (t *Tokenizer) Exact() bool {
	return t != nil && t.enc != nil
}

// Count returns the number of tokens in s.
func (t *Tokenizer) Count(s string) int {
	if t.Exact() {
		return len(t.enc.Encode(s, nil, nil))
	}
	return len(strings.Fields(s))
}

// Truncate cuts s to at most max tokens. max <= 0 disables truncation.
func (t *Tokenizer) Truncate(s string, max int) string {
	if max <= 0 {
		return s
	}
	if t.Exact() {
		tokens := t.enc.Encode(s, nil, nil)
		if len(tokens) <= max {
			return s
		}
		return t.enc.Decode(tokens[:max])
	}

	words := strings.Fields(s)
	if len(words) <= max {
		return s
	}
	return strings.Join(words[:max], " ")
}
