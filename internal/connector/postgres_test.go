package connector

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCursorAfter(t *testing.T) {
	// Numeric cursors compare numerically across digit-length
	// boundaries.
	assert.True(t, CursorAfter("100", "99"))
	assert.False(t, CursorAfter("99", "100"))
	assert.False(t, CursorAfter("100", "100"))

	// Timestamps in the watermark format order as strings.
	assert.True(t, CursorAfter("2026-02-01 00:00:00", "2026-01-31 23:59:59"))
	assert.False(t, CursorAfter("2026-01-01 00:00:00", "2026-02-01 00:00:00"))

	// An empty current always loses; an empty candidate never wins.
	assert.True(t, CursorAfter("1", ""))
	assert.False(t, CursorAfter("", "1"))
}

func TestPostgresCursorNumericAdvance(t *testing.T) {
	p := NewPostgres()
	p.trackCursor(int64(99))
	p.trackCursor(int64(100))
	assert.Equal(t, "100", p.CursorValue())

	// A smaller value never moves the cursor backwards.
	p.trackCursor(int64(5))
	assert.Equal(t, "100", p.CursorValue())
}

func TestPostgresCursorTimestampFormat(t *testing.T) {
	p := NewPostgres()
	p.trackCursor(time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC))
	assert.Equal(t, "2026-03-01 12:30:00", p.CursorValue())
}

func TestPostgresConfigureErrors(t *testing.T) {
	errs := NewPostgres().Configure(map[string]any{})
	assert.Len(t, errs, 2)

	errs = NewPostgres().Configure(map[string]any{"dsn": "postgres://u@h/db"})
	assert.Empty(t, errs)
}
