package vars

import (
	"regexp"
	"strconv"
	"strings"
)

// Kind is the type of a variable value.
type Kind int

const (
	KindString Kind = iota
	KindInt
	KindFloat
	KindBool
	KindNull
	// KindFragment marks a string that is already a formatted SQL
	// fragment (a quoted comma list or a function call) and must not be
	// re-quoted on substitution.
	KindFragment
)

// Value is a typed variable value.
type Value struct {
	kind Kind
	str  string
	i    int64
	f    float64
	b    bool
}

func String(s string) Value {
	if looksLikeSQLExpr(s) {
		return Value{kind: KindFragment, str: s}
	}
	return Value{kind: KindString, str: s}
}

func Int(i int64) Value     { return Value{kind: KindInt, i: i} }
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }
func Bool(b bool) Value     { return Value{kind: KindBool, b: b} }
func Null() Value           { return Value{kind: KindNull} }

// Parse interprets a literal the way SET values and CLI overrides are
// read: integers, floats, booleans and None get their typed form, quoted
// strings are unwrapped, everything else stays a string.
func Parse(literal string) Value {
	trimmed := strings.TrimSpace(literal)
	switch {
	case trimmed == "":
		return String("")
	case strings.EqualFold(trimmed, "true"):
		return Bool(true)
	case strings.EqualFold(trimmed, "false"):
		return Bool(false)
	case trimmed == "None" || strings.EqualFold(trimmed, "null"):
		return Null()
	}
	if i, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return Int(i)
	}
	if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return Float(f)
	}
	if len(trimmed) >= 2 {
		first, last := trimmed[0], trimmed[len(trimmed)-1]
		if (first == '\'' && last == '\'') || (first == '"' && last == '"') {
			return String(trimmed[1 : len(trimmed)-1])
		}
	}
	return String(trimmed)
}

func (v Value) Kind() Kind { return v.kind }

// Raw returns the value as a plain string with no SQL formatting.
func (v Value) Raw() string {
	switch v.kind {
	case KindString, KindFragment:
		return v.str
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindBool:
		if v.b {
			return "True"
		}
		return "False"
	case KindNull:
		return "None"
	default:
		return ""
	}
}

// SQLLiteral formats the value for injection into SQL or condition text.
// When insideQuotes is true the surrounding literal supplies the quotes
// and the raw value is injected as-is.
func (v Value) SQLLiteral(insideQuotes bool) string {
	if insideQuotes {
		return v.Raw()
	}
	switch v.kind {
	case KindString:
		return "'" + strings.ReplaceAll(v.str, "'", "''") + "'"
	case KindFragment:
		return v.str
	default:
		return v.Raw()
	}
}

// Bool returns the boolean content; meaningful only for KindBool.
func (v Value) BoolVal() bool { return v.b }

// IntVal returns the integer content; meaningful only for KindInt.
func (v Value) IntVal() int64 { return v.i }

// FloatVal returns the float content; meaningful only for KindFloat.
func (v Value) FloatVal() float64 { return v.f }

var (
	// A comma-separated list of quoted literals, e.g. 'a', 'b', 'c'.
	reQuotedList = regexp.MustCompile(`^\s*'[^']*'(\s*,\s*'[^']*')+\s*$`)
	// An identifier followed by a call, e.g. date_trunc('day', ts).
	reFuncCall = regexp.MustCompile(`^\s*[A-Za-z_][A-Za-z0-9_]*\s*\(.*\)\s*$`)
)

// looksLikeSQLExpr reports whether s already reads as a SQL expression
// and therefore must not be wrapped in quotes on substitution.
func looksLikeSQLExpr(s string) bool {
	return reQuotedList.MatchString(s) || reFuncCall.MatchString(s)
}
