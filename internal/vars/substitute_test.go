package vars

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sqlflow-dev/sqlflow/internal/core"
)

func TestSubstitutePrecedence(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	store.Set(TierEnv, "region", String("env"))
	store.Set(TierProfile, "region", String("profile"))
	store.Set(TierSet, "region", String("set"))
	store.Set(TierCLI, "region", String("cli"))

	out, err := Substitute(ctx, "r=${region}", store)
	require.NoError(t, err)
	assert.Equal(t, "r=cli", out)

	tier, ok := store.Source("region")
	require.True(t, ok)
	assert.Equal(t, TierCLI, tier)
}

func TestSubstituteDefaults(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	out, err := Substitute(ctx, "v=${missing|fallback}", store)
	require.NoError(t, err)
	assert.Equal(t, "v=fallback", out)

	// A defined variable wins over the reference default.
	store.Set(TierSet, "missing", Int(7))
	out, err = Substitute(ctx, "v=${missing|fallback}", store)
	require.NoError(t, err)
	assert.Equal(t, "v=7", out)

	// Typed defaults parse like SET values.
	out, err = Substitute(ctx, "v=${n|42}", store, ForSQL())
	require.NoError(t, err)
	assert.Equal(t, "v=42", out)
}

func TestSubstituteMissingIsNone(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	out, err := Substitute(ctx, "v=${nope}", store)
	require.NoError(t, err)
	assert.Equal(t, "v=None", out)
}

func TestSubstituteStrict(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	_, err := Substitute(ctx, "v=${nope}", store, Strict())
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrVariableSubstitution))

	var subErr *core.SubstitutionError
	require.True(t, errors.As(err, &subErr))
	assert.Equal(t, "nope", subErr.Name)
}

func TestSubstituteSQLQuoteContexts(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	store.Set(TierSet, "name", String("alice"))
	store.Set(TierSet, "age", Int(30))

	// Bare strings get single quotes; numbers stay bare.
	out, err := Substitute(ctx, "WHERE name = ${name} AND age > ${age}", store, ForSQL())
	require.NoError(t, err)
	assert.Equal(t, "WHERE name = 'alice' AND age > 30", out)

	// Inside single quotes the literal supplies the quoting.
	out, err = Substitute(ctx, "WHERE name = '${name}'", store, ForSQL())
	require.NoError(t, err)
	assert.Equal(t, "WHERE name = 'alice'", out)

	// Same for double quotes.
	out, err = Substitute(ctx, `WHERE path = "/data/${name}.csv"`, store, ForSQL())
	require.NoError(t, err)
	assert.Equal(t, `WHERE path = "/data/alice.csv"`, out)
}

func TestSubstituteSQLEscapesQuotes(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	store.Set(TierSet, "name", String("o'brien"))

	out, err := Substitute(ctx, "WHERE name = ${name}", store, ForSQL())
	require.NoError(t, err)
	assert.Equal(t, "WHERE name = 'o''brien'", out)
}

func TestSubstituteFragments(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	store.Set(TierSet, "statuses", String("'active', 'trial'"))
	store.Set(TierSet, "bucket", String("date_trunc('day', created_at)"))

	out, err := Substitute(ctx, "WHERE status IN (${statuses})", store, ForSQL())
	require.NoError(t, err)
	assert.Equal(t, "WHERE status IN ('active', 'trial')", out)

	out, err = Substitute(ctx, "GROUP BY ${bucket}", store, ForSQL())
	require.NoError(t, err)
	assert.Equal(t, "GROUP BY date_trunc('day', created_at)", out)
}

func TestSubstituteBooleansAndNull(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	store.Set(TierSet, "flag", Bool(true))
	store.Set(TierSet, "off", Bool(false))
	store.Set(TierSet, "nothing", Null())

	out, err := Substitute(ctx, "${flag} ${off} ${nothing}", store)
	require.NoError(t, err)
	assert.Equal(t, "True False None", out)
}

func TestSubstituteMalformedLeftInPlace(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	store.Set(TierSet, "b", String("ok"))

	// Unterminated reference stays literal.
	out, err := Substitute(ctx, "x=${unterminated", store)
	require.NoError(t, err)
	assert.Equal(t, "x=${unterminated", out)

	// A valid reference after a malformed one still resolves.
	out, err = Substitute(ctx, "${bad name} and ${b}", store)
	require.NoError(t, err)
	assert.Equal(t, "${bad name} and ok", out)
}

func TestSubstituteNoReferencesFastPath(t *testing.T) {
	ctx := context.Background()
	out, err := Substitute(ctx, "SELECT 1", NewStore())
	require.NoError(t, err)
	assert.Equal(t, "SELECT 1", out)
}

func TestSubstituteInMapPreservesNonStrings(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	store.Set(TierSet, "host", String("db.internal"))

	in := map[string]any{
		"host":  "${host}",
		"port":  5432,
		"flags": []any{"${host}", true},
	}
	out, err := SubstituteInMap(ctx, in, store)
	require.NoError(t, err)
	assert.Equal(t, "db.internal", out["host"])
	assert.Equal(t, 5432, out["port"])
	assert.Equal(t, []any{"db.internal", true}, out["flags"])

	// The original map is untouched.
	assert.Equal(t, "${host}", in["host"])
}

func TestParseLiterals(t *testing.T) {
	assert.Equal(t, KindBool, Parse("true").Kind())
	assert.Equal(t, KindBool, Parse("False").Kind())
	assert.Equal(t, KindNull, Parse("None").Kind())
	assert.Equal(t, KindInt, Parse("42").Kind())
	assert.Equal(t, KindFloat, Parse("3.14").Kind())
	assert.Equal(t, KindString, Parse("plain").Kind())
	assert.Equal(t, "quoted", Parse("'quoted'").Raw())
	assert.Equal(t, "quoted", Parse(`"quoted"`).Raw())
}
