package ai

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"unicode"

	"github.com/invopop/jsonschema"
	"github.com/kaptinlin/jsonrepair"
)

// GenerateSchema returns the inline JSON schema of value's type for
// structured output requests. Pointers are dereferenced.
func GenerateSchema(value any) any {
	t := reflect.TypeOf(value)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	r := &jsonschema.Reflector{AllowAdditionalProperties: false, DoNotReference: true}
	return r.ReflectFromType(t)
}

// UnmarshalFlexible decodes model output into out. Models wrap JSON in
// markdown fences, return it as a quoted string or emit slightly broken
// JSON, so each of these is tried in turn before giving up:
//
//	{"title": "Harbor"}
//	```json {"title": "Harbor"} ```
//	"{\"title\": \"Harbor\"}"
//	{title: 'Harbor',}
func UnmarshalFlexible(input string, out any) error {
	text := trimFence(strings.TrimSpace(input))
	if text == "" {
		return errors.New("empty model output")
	}
	if json.Unmarshal([]byte(text), out) == nil {
		return nil
	}

	var quoted string
	if json.Unmarshal([]byte(text), &quoted) == nil {
		text = strings.TrimSpace(quoted)
		if json.Unmarshal([]byte(text), out) == nil {
			return nil
		}
	}

	repaired, err := jsonrepair.JSONRepair(collapseOpeningBrace(text))
	if err != nil {
		return fmt.Errorf("repair model output: %w", err)
	}
	if err := json.Unmarshal([]byte(repaired), out); err != nil {
		return fmt.Errorf("decode repaired model output %q: %w", repaired, err)
	}
	return nil
}

// trimFence removes a surrounding ``` fence and its language tag.
func trimFence(s string) string {
	if len(s) < 6 || !strings.HasPrefix(s, "```") || !strings.HasSuffix(s, "```") {
		return s
	}
	body := strings.TrimLeftFunc(s[3:len(s)-3], unicode.IsLetter)
	return strings.TrimSpace(body)
}

// collapseOpeningBrace fixes output that opens the object twice ("{ {").
func collapseOpeningBrace(s string) string {
	rest, ok := strings.CutPrefix(s, "{")
	if !ok {
		return s
	}
	if rest = strings.TrimSpace(rest); strings.HasPrefix(rest, "{") {
		return rest
	}
	return s
}

// NormalizeWhitespace collapses line breaks and runs of whitespace into
// single spaces.
func NormalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
