package plan

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrMalformedResponse reports a model reply without a usable fenced JSON
// block.
var ErrMalformedResponse = errors.New("malformed response")

// DecodeError is returned when a reply cannot be decoded into a Plan. The
// narrative the model wrote before the block is kept so callers can still
// show it, but no partial Plan exists.
type DecodeError struct {
	Narrative string
	Cause     error
}

func (e *DecodeError) Error() string {
	if e.Cause == nil {
		return ErrMalformedResponse.Error()
	}
	return ErrMalformedResponse.Error() + ": " + e.Cause.Error()
}

func (e *DecodeError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrMalformedResponse}
	}
	return []error{ErrMalformedResponse, e.Cause}
}

var (
	lineFenceRe = regexp.MustCompile("(?m)^[ \t]*(```)")
	infoRe      = regexp.MustCompile("^[ \t]*[A-Za-z0-9_-]*[ \t]*\r?\n?")
)

// ExtractBlock finds the last fenced code block in text. The block is
// anchored on the final closing fence and the fence before it, preferring
// fences that start a line so a stray ``` in the prose cannot shift the
// pairing. narrative is the trimmed text before the opening fence.
func ExtractBlock(text string) (narrative, block string, ok bool) {
	fences := fencePositions(text)
	if len(fences) < 2 {
		return strings.TrimSpace(text), "", false
	}
	open, closing := fences[len(fences)-2], fences[len(fences)-1]
	inner := text[open+3 : closing]
	inner = inner[len(infoRe.FindString(inner)):]
	return strings.TrimSpace(text[:open]), strings.TrimSpace(inner), true
}

func fencePositions(text string) []int {
	var fences []int
	for _, m := range lineFenceRe.FindAllStringSubmatchIndex(text, -1) {
		fences = append(fences, m[2])
	}
	if len(fences) >= 2 {
		return fences
	}

	fences = fences[:0]
	for i := 0; ; {
		j := strings.Index(text[i:], "```")
		if j < 0 {
			return fences
		}
		fences = append(fences, i+j)
		i += j + 3
	}
}

// Decode turns a full model reply into a sanitized Plan. Any failure is a
// *DecodeError wrapping ErrMalformedResponse. ID, GeneratedAt and Sources
// are left for the caller.
func Decode(text string) (Plan, error) {
	narrative, block, ok := ExtractBlock(text)
	if !ok {
		return Plan{}, &DecodeError{Narrative: narrative, Cause: errors.New("no fenced block found")}
	}

	var raw any
	if err := json.Unmarshal([]byte(block), &raw); err != nil {
		return Plan{}, &DecodeError{Narrative: narrative, Cause: fmt.Errorf("parsing fenced block: %w", err)}
	}
	if _, isObject := raw.(map[string]any); !isObject {
		return Plan{}, &DecodeError{Narrative: narrative, Cause: fmt.Errorf("fenced block is %s, want object", jsonKind(raw))}
	}

	return Sanitize(raw, narrative), nil
}

func jsonKind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case []any:
		return "array"
	case string:
		return "string"
	case float64:
		return "number"
	case bool:
		return "boolean"
	default:
		return fmt.Sprintf("%T", v)
	}
}
