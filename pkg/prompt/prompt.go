// Package prompt builds the templates used by every LLM-driven indexing
// step. A Builder resolves where its template text comes from once, at
// construction; each step supplies an Input that validates its own
// required arguments before rendering.
package prompt

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"text/template"
)

// ErrMissingArgument is returned when a required template input is absent.
var ErrMissingArgument = errors.New("missing prompt argument")

// Kind identifies where a Builder takes its template text from.
type Kind int

const (
	KindDefault Kind = iota
	KindInline
	KindFile
)

func (k Kind) String() string {
	switch k {
	case KindInline:
		return "inline"
	case KindFile:
		return "file"
	default:
		return "default"
	}
}

// Input is the explicit argument set of one prompt variant.
type Input interface {
	Validate() error
}

// Builder turns a prompt source into a renderable template.
type Builder struct {
	name string
	kind Kind
	text string
	path string
}

// New resolves the prompt source. A non-empty inline text wins over a
// path; with neither, def is used.
func New(name, inline, path, def string) *Builder {
	b := &Builder{name: name}
	switch {
	case strings.TrimSpace(inline) != "":
		b.kind = KindInline
		b.text = inline
	case path != "":
		b.kind = KindFile
		b.path = path
	default:
		b.kind = KindDefault
		b.text = def
	}
	return b
}

// Kind returns the resolved source variant.
func (b *Builder) Kind() Kind {
	return b.kind
}

// Name returns the template name.
func (b *Builder) Name() string {
	return b.name
}

// Build parses the template. File sources are read here.
func (b *Builder) Build() (*template.Template, error) {
	text := b.text
	if b.kind == KindFile {
		data, err := os.ReadFile(b.path)
		if err != nil {
			return nil, fmt.Errorf("read prompt %s: %w", b.path, err)
		}
		text = string(data)
	}

	tmpl, err := template.New(b.name).
		Option("missingkey=error").
		Funcs(funcs).
		Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parse prompt %s (%s): %w", b.name, b.kind, err)
	}
	return tmpl, nil
}

// Render validates in and executes tmpl with it.
func Render(tmpl *template.Template, in Input) (string, error) {
	if tmpl == nil {
		return "", errors.New("nil template")
	}
	if err := in.Validate(); err != nil {
		return "", err
	}

	var sb strings.Builder
	if err := tmpl.Execute(&sb, in); err != nil {
		return "", fmt.Errorf("render prompt %s: %w", tmpl.Name(), err)
	}
	return sb.String(), nil
}

func missing(field string) error {
	return fmt.Errorf("%w: %s", ErrMissingArgument, field)
}

var funcs = template.FuncMap{
	"join": strings.Join,
	"oneline": func(s string) string {
		return strings.Join(strings.Fields(s), " ")
	},
}
