package sqlstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRebind(t *testing.T) {
	pg := &Store{dialect: Postgres}
	lite := &Store{dialect: SQLite}

	q := `UPDATE posts SET title = ?, slug = ? WHERE id IN (?, ?)`
	assert.Equal(t, `UPDATE posts SET title = $1, slug = $2 WHERE id IN ($3, $4)`, pg.rebind(q))
	assert.Equal(t, q, lite.rebind(q))
}

func TestTimeArg_SortsAsText(t *testing.T) {
	s := &Store{dialect: SQLite}
	whole := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	frac := whole.Add(100 * time.Millisecond)

	a := s.timeArg(whole).(string)
	b := s.timeArg(frac).(string)
	assert.Less(t, a, b)
	assert.Len(t, a, len(b))

	var d dbTime
	require.NoError(t, d.Scan(b))
	assert.True(t, d.Time.Equal(frac))

	pg := &Store{dialect: Postgres}
	native, ok := pg.timeArg(frac.In(time.FixedZone("x", 3600))).(time.Time)
	require.True(t, ok)
	assert.True(t, native.Equal(frac))
	assert.Equal(t, time.UTC, native.Location())
}

func TestDBTime_Scan(t *testing.T) {
	now := time.Date(2025, 5, 6, 7, 8, 9, 0, time.UTC)

	var d dbTime
	require.NoError(t, d.Scan(now))
	assert.Equal(t, now, d.Time)

	require.NoError(t, d.Scan([]byte("2025-05-06T07:08:09Z")))
	assert.Equal(t, now, d.Time)

	require.NoError(t, d.Scan(nil))
	assert.True(t, d.Time.IsZero())

	assert.Error(t, d.Scan(42))
	assert.Error(t, d.Scan("yesterday"))
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, "", placeholders(0))
	assert.Equal(t, "?", placeholders(1))
	assert.Equal(t, "?, ?, ?", placeholders(3))
}
