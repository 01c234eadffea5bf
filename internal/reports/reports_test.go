package reports

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenMissingFileStartsEmpty(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "reports.json"))
	require.NoError(t, err)
	assert.Empty(t, s.All())
}

func TestSaveThenOpenRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reports.json")
	s, err := Open(path)
	require.NoError(t, err)

	s.Put(&Report{Name: "FLEX", Titles: []*Title{
		{Code: "BB.TO", AverageQuantity: 100},
		{Code: "U.US", AverageQuantity: 0},
	}})
	require.NoError(t, s.Save())

	reopened, err := Open(path)
	require.NoError(t, err)
	rep, ok := reopened.FindNoCase("flex")
	require.True(t, ok)
	assert.Len(t, rep.Titles, 2)
	assert.Equal(t, "BB.TO", rep.Find("bb.to").Code)
}

func TestFindNoCaseStripsUnderscorePrefix(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "reports.json"))
	require.NoError(t, err)
	s.Put(&Report{Name: "300K", Titles: nil})

	rep, ok := s.FindNoCase("_300K")
	require.True(t, ok)
	assert.Equal(t, "300K", rep.Name)
}

func TestSoldAndActive(t *testing.T) {
	closed := &Title{AverageQuantity: 0}
	open := &Title{AverageQuantity: 50}
	assert.True(t, closed.Sold())
	assert.False(t, closed.Active())
	assert.True(t, open.Active())
	assert.False(t, open.Sold())
}
