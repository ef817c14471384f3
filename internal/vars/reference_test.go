package vars

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseReferencesBasic(t *testing.T) {
	refs := ParseReferences("a ${x} b ${y|10} c")
	require.Len(t, refs, 2)

	assert.Equal(t, "x", refs[0].Name)
	assert.False(t, refs[0].HasDefault)
	assert.Equal(t, "${x}", refs[0].Raw)

	assert.Equal(t, "y", refs[1].Name)
	assert.True(t, refs[1].HasDefault)
	assert.Equal(t, "10", refs[1].DefaultValue())
}

func TestParseReferencesQuoteContext(t *testing.T) {
	refs := ParseReferences(`${a} '${b}' "${c}"`)
	require.Len(t, refs, 3)
	assert.Equal(t, ContextBare, refs[0].Context)
	assert.Equal(t, ContextSingleQuoted, refs[1].Context)
	assert.Equal(t, ContextDoubleQuoted, refs[2].Context)
}

func TestParseReferencesEscapedQuotes(t *testing.T) {
	// The escaped quote does not open a string context.
	refs := ParseReferences(`it\'s ${x}`)
	require.Len(t, refs, 1)
	assert.Equal(t, ContextBare, refs[0].Context)
}

func TestParseReferencesUnclosed(t *testing.T) {
	refs := ParseReferences("x=${name")
	require.Len(t, refs, 1)
	assert.Equal(t, "unclosed variable reference", refs[0].Invalid)
}

func TestParseReferencesInvalidName(t *testing.T) {
	refs := ParseReferences("${not a name}")
	require.Len(t, refs, 1)
	assert.NotEmpty(t, refs[0].Invalid)
}

func TestParseReferencesQuotedDefaultWithSpaces(t *testing.T) {
	refs := ParseReferences("${greeting|'hello world'}")
	require.Len(t, refs, 1)
	assert.Empty(t, refs[0].Invalid)
	assert.Equal(t, "hello world", refs[0].DefaultValue())

	refs = ParseReferences("${greeting|hello world}")
	require.Len(t, refs, 1)
	assert.Equal(t, "default value with whitespace must be quoted", refs[0].Invalid)
}

func TestParseReferencesNestedRecovery(t *testing.T) {
	// The outer reference is malformed; the inner one must still be found.
	refs := ParseReferences("${outer ${inner}}")
	require.Len(t, refs, 2)
	assert.NotEmpty(t, refs[0].Invalid)
	assert.Equal(t, "inner", refs[1].Name)
	assert.Empty(t, refs[1].Invalid)
}
