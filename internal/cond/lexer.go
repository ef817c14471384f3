package cond

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/sqlflow-dev/sqlflow/internal/core"
)

type tokenKind int

const (
	tokenEOF tokenKind = iota
	tokenString
	tokenInt
	tokenFloat
	tokenIdent
	tokenOp     // == != < <= > >=
	tokenMinus  // binary '-' (string hyphen repair)
	tokenLParen
	tokenRParen
	tokenAnd
	tokenOr
	tokenNot
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

// lex splits a condition expression into tokens under the restricted
// grammar. A bare '=' (not part of ==, !=, <=, >=) is rejected
// immediately with a hint, as it is the most common authoring mistake.
func lex(expr string) ([]token, error) {
	var tokens []token
	i := 0
	for i < len(expr) {
		c := expr[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++

		case c == '(':
			tokens = append(tokens, token{tokenLParen, "(", i})
			i++
		case c == ')':
			tokens = append(tokens, token{tokenRParen, ")", i})
			i++

		case c == '\'' || c == '"':
			lit, next, err := lexString(expr, i)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, token{tokenString, lit, i})
			i = next

		case c == '=':
			if i+1 < len(expr) && expr[i+1] == '=' {
				tokens = append(tokens, token{tokenOp, "==", i})
				i += 2
			} else {
				return nil, &core.EvaluationError{
					Expression: expr,
					Reason:     "bare '=' is not a comparison; use '==' instead",
				}
			}

		case c == '!':
			if i+1 < len(expr) && expr[i+1] == '=' {
				tokens = append(tokens, token{tokenOp, "!=", i})
				i += 2
			} else {
				return nil, &core.EvaluationError{Expression: expr, Reason: "unexpected '!'"}
			}

		case c == '<' || c == '>':
			op := string(c)
			i++
			if i < len(expr) && expr[i] == '=' {
				op += "="
				i++
			}
			tokens = append(tokens, token{tokenOp, op, i - len(op)})

		case c == '-':
			tokens = append(tokens, token{tokenMinus, "-", i})
			i++

		case c >= '0' && c <= '9':
			start := i
			isFloat := false
			for i < len(expr) && (expr[i] >= '0' && expr[i] <= '9' || expr[i] == '.') {
				if expr[i] == '.' {
					isFloat = true
				}
				i++
			}
			kind := tokenInt
			if isFloat {
				kind = tokenFloat
			}
			tokens = append(tokens, token{kind, expr[start:i], start})

		case isIdentStart(rune(c)):
			start := i
			for i < len(expr) && isIdentPart(rune(expr[i])) {
				i++
			}
			word := expr[start:i]
			switch strings.ToLower(word) {
			case "and":
				tokens = append(tokens, token{tokenAnd, word, start})
			case "or":
				tokens = append(tokens, token{tokenOr, word, start})
			case "not":
				tokens = append(tokens, token{tokenNot, word, start})
			default:
				tokens = append(tokens, token{tokenIdent, word, start})
			}

		default:
			return nil, &core.EvaluationError{
				Expression: expr,
				Reason:     fmt.Sprintf("unexpected character %q at position %d", string(c), i),
			}
		}
	}
	tokens = append(tokens, token{tokenEOF, "", len(expr)})
	return tokens, nil
}

func lexString(expr string, start int) (string, int, error) {
	quote := expr[start]
	var sb strings.Builder
	i := start + 1
	for i < len(expr) {
		c := expr[i]
		if c == '\\' && i+1 < len(expr) {
			sb.WriteByte(expr[i+1])
			i += 2
			continue
		}
		if c == quote {
			return sb.String(), i + 1, nil
		}
		sb.WriteByte(c)
		i++
	}
	return "", 0, &core.EvaluationError{Expression: expr, Reason: "unclosed string literal"}
}

func isIdentStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isIdentPart(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
