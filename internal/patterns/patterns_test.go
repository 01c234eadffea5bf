package patterns

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenMissingFileStartsEmpty(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "patterns.json"))
	require.NoError(t, err)
	assert.Empty(t, s.All())
}

func TestSaveThenOpenRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "patterns.json")
	s, err := Open(path)
	require.NoError(t, err)

	p := NewDefault("u.us")
	p.Opened = true
	p.ExtraCharts = []string{"sma", "ema"}
	p.PriceLimits = PriceLimits{XMin: 1, XMax: 2, YMin: 3, YMax: 4}
	p.Checks[0] = true
	p.Checks[7] = true
	s.Put(p)
	require.NoError(t, s.Save())

	reopened, err := Open(path)
	require.NoError(t, err)
	got, ok := reopened.Get("U.US")
	require.True(t, ok)
	assert.True(t, got.Opened)
	assert.Equal(t, []string{"sma", "ema"}, got.ExtraCharts)
	assert.Equal(t, PriceLimits{XMin: 1, XMax: 2, YMin: 3, YMax: 4}, got.PriceLimits)
	assert.True(t, got.Checks[0])
	assert.True(t, got.Checks[7])
	assert.False(t, got.Checks[1])
}

func TestGetIsCaseInsensitive(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "patterns.json"))
	require.NoError(t, err)
	s.Put(NewDefault("BB.TO"))

	_, ok := s.Get("bb.to")
	assert.True(t, ok)
}

func TestDeleteIsIdempotent(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "patterns.json"))
	require.NoError(t, err)
	s.Put(NewDefault("U.US"))
	s.Delete("U.US")
	s.Delete("U.US")

	_, ok := s.Get("U.US")
	assert.False(t, ok)
}

func TestNewDefaultHasLineGraphType(t *testing.T) {
	p := NewDefault("u.us")
	assert.Equal(t, "line", p.GraphType)
	assert.Equal(t, "U.US", p.Code)
}
