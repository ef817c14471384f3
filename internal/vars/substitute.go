package vars

import (
	"context"
	"strings"
	"sync"

	"github.com/sqlflow-dev/sqlflow/internal/core"
	"github.com/sqlflow-dev/sqlflow/internal/logger"
)

// Options controls how references are resolved and formatted.
type Options struct {
	// SQL enables context-sensitive formatting for text handed to the
	// SQL engine or the condition evaluator.
	SQL bool
	// Strict makes unresolvable references an error instead of the
	// literal None.
	Strict bool
}

type Option func(*Options)

// ForSQL formats substituted values for the surrounding SQL context:
// raw inside string literals, quoted or bare outside them.
func ForSQL() Option {
	return func(o *Options) { o.SQL = true }
}

// Strict raises a SubstitutionError for unresolvable references.
func Strict() Option {
	return func(o *Options) { o.Strict = true }
}

// templateCache memoizes parsed references per input string, for
// repeated substitutions of the same text.
var templateCache sync.Map // string -> []Reference

func parsedReferences(text string) []Reference {
	if cached, ok := templateCache.Load(text); ok {
		return cached.([]Reference)
	}
	refs := ParseReferences(text)
	templateCache.Store(text, refs)
	return refs
}

// Substitute resolves every variable reference in text against the
// store. Malformed references are left in place and logged as warnings;
// they never fail the substitution.
func Substitute(ctx context.Context, text string, store *Store, opts ...Option) (string, error) {
	// Fast path: nothing to do.
	if !strings.Contains(text, "${") {
		return text, nil
	}

	var options Options
	for _, opt := range opts {
		opt(&options)
	}

	refs := parsedReferences(text)
	var sb strings.Builder
	sb.Grow(len(text))
	last := 0

	for _, ref := range refs {
		if ref.Invalid != "" {
			logger.Warn(ctx, "Malformed variable reference left as-is",
				"reference", ref.Raw, "reason", ref.Invalid)
			continue
		}

		replacement, err := resolveReference(ref, store, options, text)
		if err != nil {
			return "", err
		}

		sb.WriteString(text[last:ref.Start])
		sb.WriteString(replacement)
		last = ref.End
	}
	sb.WriteString(text[last:])
	return sb.String(), nil
}

func resolveReference(ref Reference, store *Store, options Options, text string) (string, error) {
	value, found := store.Resolve(ref.Name)
	if !found {
		if ref.HasDefault {
			value = Parse(ref.DefaultValue())
			found = true
		}
	}

	if !found {
		if options.Strict {
			return "", &core.SubstitutionError{Name: ref.Name, Text: text}
		}
		value = Null()
	}

	if options.SQL {
		return value.SQLLiteral(ref.Context != ContextBare), nil
	}
	return value.Raw(), nil
}

// SubstituteAny applies substitution recursively through maps, slices
// and scalars. Originals are never mutated; a new container is returned.
// Non-string leaves keep their original type.
func SubstituteAny(ctx context.Context, value any, store *Store, opts ...Option) (any, error) {
	switch v := value.(type) {
	case string:
		return Substitute(ctx, v, store, opts...)
	case map[string]any:
		return SubstituteInMap(ctx, v, store, opts...)
	case []any:
		out := make([]any, len(v))
		for i, elem := range v {
			sub, err := SubstituteAny(ctx, elem, store, opts...)
			if err != nil {
				return nil, err
			}
			out[i] = sub
		}
		return out, nil
	default:
		return value, nil
	}
}

// SubstituteInMap substitutes into every string leaf of m, returning a
// new map.
func SubstituteInMap(ctx context.Context, m map[string]any, store *Store, opts ...Option) (map[string]any, error) {
	out := make(map[string]any, len(m))
	for key, val := range m {
		sub, err := SubstituteAny(ctx, val, store, opts...)
		if err != nil {
			return nil, err
		}
		out[key] = sub
	}
	return out, nil
}
