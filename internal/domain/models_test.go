package domain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashSymbolStable(t *testing.T) {
	a := HashSymbol("u.us")
	b := HashSymbol(" U.US ")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, HashSymbol("BB.TO"))
}

func TestFetchLevelDisjointness(t *testing.T) {
	s := &Stock{}
	s.MarkFetching(LevelEOD, 1)
	assert.True(t, s.FetchLevel.Has(LevelEOD))
	assert.False(t, s.ResolvedLevel.Has(LevelEOD))

	s.MarkResolved(LevelEOD, 2)
	assert.True(t, s.ResolvedLevel.Has(LevelEOD))
	assert.False(t, s.FetchLevel.Has(LevelEOD))
	assert.Zero(t, s.FetchLevel&s.ResolvedLevel)
}

func TestMarkFetchingSkipsAlreadyResolved(t *testing.T) {
	s := &Stock{ResolvedLevel: LevelRealtime}
	s.MarkFetching(LevelRealtime|LevelEOD, 1)
	assert.False(t, s.FetchLevel.Has(LevelRealtime))
	assert.True(t, s.FetchLevel.Has(LevelEOD))
}

func TestPoisoned(t *testing.T) {
	s := &Stock{FetchErrors: 19}
	assert.False(t, s.Poisoned())
	s.FetchErrors = 20
	assert.True(t, s.Poisoned())
}

func TestNilStockAllNaN(t *testing.T) {
	s := NilStock()
	assert.True(t, math.IsNaN(s.PE))
	assert.True(t, math.IsNaN(s.Current.Close))
}

func TestAlertEligible(t *testing.T) {
	a := &AlertEvaluator{Expression: "S(\"U.US\", price) > 1", FrequencySecs: 5, LastRunTime: 0}
	assert.True(t, a.Eligible(10))
	assert.False(t, a.Eligible(3))

	a.Discarded = true
	assert.False(t, a.Eligible(10))

	a.Discarded = false
	a.TriggeredTime = 5
	assert.False(t, a.Eligible(10))
}

func TestLazyComputesOnce(t *testing.T) {
	calls := 0
	l := NewLazy(func() (int, error) {
		calls++
		return 42, nil
	})
	v1, _ := l.Value()
	v2, _ := l.Value()
	assert.Equal(t, 42, v1)
	assert.Equal(t, 42, v2)
	assert.Equal(t, 1, calls)
}

func TestErrorIsByKind(t *testing.T) {
	err := NewError("resolve", KindPoisoned, nil)
	assert.ErrorIs(t, err, ErrPoisoned)
	assert.NotErrorIs(t, err, ErrFetchError)
}
