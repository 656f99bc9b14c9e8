package generation

import (
	"encoding/json"
	"regexp"
	"strings"
)

var (
	jsonFence = regexp.MustCompile("(?is)```json\\s*(.*?)```")
	anyFence  = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*(.*?)```")
)

// ExtractJSON recovers a JSON document from model text. It tries, in order:
// the whole text, a ```json fence, any ``` fence, and finally the span from
// the first '{' to the last '}'.
func ExtractJSON(text string) (json.RawMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyContent
	}
	if json.Valid([]byte(text)) {
		return json.RawMessage(text), nil
	}

	candidate := text
	for _, fence := range []*regexp.Regexp{jsonFence, anyFence} {
		if m := fence.FindStringSubmatch(text); m != nil {
			inner := strings.TrimSpace(m[1])
			if json.Valid([]byte(inner)) {
				return json.RawMessage(inner), nil
			}
			candidate = inner
			break
		}
	}

	for _, s := range []string{candidate, text} {
		start := strings.Index(s, "{")
		end := strings.LastIndex(s, "}")
		if start >= 0 && end > start {
			if span := s[start : end+1]; json.Valid([]byte(span)) {
				return json.RawMessage(span), nil
			}
		}
	}
	return nil, ErrUnparsable
}
