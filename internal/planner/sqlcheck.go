package planner

import (
	"strings"

	"github.com/sqlflow-dev/sqlflow/internal/core"
)

// sqlSanityPass runs cheap lexical checks over every SQL text and
// returns warnings attached to the step id. These never block plan
// emission; the engine is the final authority on validity.
func sqlSanityPass(entries []*planEntry) []Warning {
	var warnings []Warning
	for _, entry := range entries {
		var sql string
		switch entry.step.Kind {
		case core.StepTransform:
			sql = entry.step.SQL
		case core.StepExport:
			sql = entry.step.SQL
		}
		if strings.TrimSpace(sql) == "" {
			continue
		}
		for _, message := range checkSQL(sql) {
			warnings = append(warnings, Warning{StepID: entry.id, Message: message})
		}
	}
	return warnings
}

func checkSQL(sql string) []string {
	var problems []string

	depth := 0
	inSingle, inDouble := false, false
	semicolons := 0
	for i := 0; i < len(sql); i++ {
		c := sql[i]
		switch {
		case c == '\\' && (inSingle || inDouble):
			i++
		case c == '\'' && !inDouble:
			inSingle = !inSingle
		case c == '"' && !inSingle:
			inDouble = !inDouble
		case inSingle || inDouble:
			// string content
		case c == '(':
			depth++
		case c == ')':
			depth--
		case c == ';':
			semicolons++
		}
	}

	if depth != 0 {
		problems = append(problems, "mismatched parentheses")
	}
	if inSingle || inDouble {
		problems = append(problems, "unclosed string literal")
	}
	if semicolons > 1 {
		problems = append(problems, "multiple terminating semicolons")
	}

	upper := strings.ToUpper(sql)
	if !strings.Contains(upper, "SELECT") {
		problems = append(problems, "statement contains no SELECT")
	}
	if from := strings.Index(upper, "FROM"); from >= 0 {
		rest := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(upper[from+4:]), ";"))
		if rest == "" {
			problems = append(problems, "empty FROM clause")
		}
	}
	return problems
}
