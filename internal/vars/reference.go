package vars

import (
	"strings"

	"github.com/sqlflow-dev/sqlflow/internal/stringutil"
)

// QuoteContext describes where a reference sits relative to the
// surrounding string literals of the text it appears in.
type QuoteContext int

const (
	ContextBare QuoteContext = iota
	ContextSingleQuoted
	ContextDoubleQuoted
)

// Reference is one parsed ${name} or ${name|default} occurrence.
type Reference struct {
	Name       string
	Default    string
	HasDefault bool
	// Start and End are the byte span [Start, End) of the full reference
	// including the delimiters.
	Start int
	End   int
	// Context is the quote state at Start.
	Context QuoteContext
	// Raw is the literal reference text.
	Raw string
	// Invalid holds the reason the reference is malformed; malformed
	// references are left in place and reported as warnings.
	Invalid string
}

// ParseReferences scans text left to right and returns every variable
// reference it contains. Malformed references are returned with Invalid
// set rather than dropped, so callers can surface warnings with spans.
func ParseReferences(text string) []Reference {
	var refs []Reference
	pos := 0
	for {
		idx := strings.Index(text[pos:], "${")
		if idx < 0 {
			break
		}
		start := pos + idx
		close := strings.IndexByte(text[start:], '}')
		if close < 0 {
			refs = append(refs, Reference{
				Start:   start,
				End:     len(text),
				Context: quoteContextAt(text, start),
				Raw:     text[start:],
				Invalid: "unclosed variable reference",
			})
			break
		}
		end := start + close + 1
		ref := parseReference(text, start, end)
		if ref.Invalid != "" && strings.Contains(text[start+2:end-1], "${") {
			// A malformed reference swallowed the opener of a nested one;
			// resume right after the outer delimiter.
			pos = start + 2
			refs = append(refs, ref)
			continue
		}
		refs = append(refs, ref)
		pos = end
	}
	return refs
}

func parseReference(text string, start, end int) Reference {
	ref := Reference{
		Start:   start,
		End:     end,
		Context: quoteContextAt(text, start),
		Raw:     text[start:end],
	}
	body := text[start+2 : end-1]

	name := body
	if bar := strings.IndexByte(body, '|'); bar >= 0 {
		name = body[:bar]
		ref.HasDefault = true
		ref.Default = body[bar+1:]
	}

	ref.Name = strings.TrimSpace(name)
	switch {
	case ref.Name == "":
		ref.Invalid = "empty variable name"
	case !stringutil.IsIdentifier(ref.Name):
		ref.Invalid = "variable name is not an identifier"
	case ref.HasDefault && !defaultIsValid(ref.Default):
		ref.Invalid = "default value with whitespace must be quoted"
	}
	return ref
}

// defaultIsValid enforces the default-literal rule: a default containing
// whitespace is only valid when wrapped in matching quotes.
func defaultIsValid(def string) bool {
	trimmed := strings.TrimSpace(def)
	if !strings.ContainsAny(trimmed, " \t") {
		return true
	}
	return stringutil.IsQuoted(trimmed)
}

// DefaultValue returns the default literal with surrounding quotes
// stripped.
func (r *Reference) DefaultValue() string {
	return stringutil.Unquote(strings.TrimSpace(r.Default))
}

// quoteContextAt scans from position 0 up to pos, tracking single and
// double quote state with backslash-escape awareness.
func quoteContextAt(text string, pos int) QuoteContext {
	inSingle, inDouble := false, false
	for i := 0; i < pos; i++ {
		switch text[i] {
		case '\\':
			i++ // skip the escaped character
		case '\'':
			if !inDouble {
				inSingle = !inSingle
			}
		case '"':
			if !inSingle {
				inDouble = !inDouble
			}
		}
	}
	switch {
	case inSingle:
		return ContextSingleQuoted
	case inDouble:
		return ContextDoubleQuoted
	default:
		return ContextBare
	}
}
