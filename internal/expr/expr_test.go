package expr

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stockworks/workbench/internal/marketdata"
	"github.com/stockworks/workbench/internal/reports"
	"github.com/stockworks/workbench/internal/resolver"
	"github.com/stockworks/workbench/internal/stockdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestContext(t *testing.T, handler http.HandlerFunc) *Context {
	t.Helper()
	var server *httptest.Server
	if handler != nil {
		server = httptest.NewServer(handler)
		t.Cleanup(server.Close)
	}
	baseURL := ""
	if server != nil {
		baseURL = server.URL
	}
	db := stockdb.New()
	market := marketdata.New(baseURL, "tok", nil, zerolog.Nop())
	dispatcher := resolver.New(db, market, nil, zerolog.Nop())
	repStore, err := reports.Open(filepath.Join(t.TempDir(), "reports.json"))
	require.NoError(t, err)
	return NewContext(context.Background(), db, dispatcher, market, repStore, zerolog.Nop())
}

func quoteAndEODHandler(price, open float64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch {
		case contains(r.URL.Path, "real-time"):
			w.Write([]byte(`{"code":"U.US","timestamp":` + strconv.FormatInt(time.Now().Unix(), 10) +
				`,"close":` + strconv.FormatFloat(price, 'f', -1, 64) +
				`,"open":` + strconv.FormatFloat(open, 'f', -1, 64) + `,"volume":1000}`))
		case contains(r.URL.Path, "eod"):
			w.Write([]byte(`[
				{"date":"2022-10-12","open":36.0,"close":37.1,"high":37.5,"low":35.8,"volume":500},
				{"date":"2022-10-11","open":35.0,"close":36.0,"high":36.2,"low":34.9,"volume":400}
			]`))
		default:
			w.Write([]byte(`{}`))
		}
	}
}

func contains(s, sub string) bool {
	return len(s) >= len(sub) && (func() bool {
		for i := 0; i+len(sub) <= len(s); i++ {
			if s[i:i+len(sub)] == sub {
				return true
			}
		}
		return false
	})()
}

func TestSComputesCloseMinusOpen(t *testing.T) {
	ctx := newTestContext(t, quoteAndEODHandler(12.5, 10))
	v, err := Eval(ctx, `S("U.US", close, "2022-10-12") - S("U.US", open, "2022-10-12")`)
	require.NoError(t, err)
	assert.InDelta(t, 1.1, v.AsNumber(), 1e-9)
}

func TestSByDateReturnsHistoricalClose(t *testing.T) {
	ctx := newTestContext(t, quoteAndEODHandler(12.5, 10))
	v, err := Eval(ctx, `S("U.US", close, "2022-10-12")`)
	require.NoError(t, err)
	assert.InDelta(t, 37.1, v.AsNumber(), 1e-9)
}

func TestSAllReturnsHistoryPlusCurrentCount(t *testing.T) {
	ctx := newTestContext(t, quoteAndEODHandler(12.5, 10))
	v, err := Eval(ctx, `S("U.US", close, ALL)`)
	require.NoError(t, err)
	require.Equal(t, KindList, v.Kind)
	assert.Len(t, v.List, 3) // current + 2 history bars
}

func TestTruthinessRules(t *testing.T) {
	ctx := newTestContext(t, nil)
	truthy, err := Eval(ctx, `TRUE`)
	require.NoError(t, err)
	assert.True(t, truthy.Truthy())

	falsy, err := Eval(ctx, `FALSE`)
	require.NoError(t, err)
	assert.False(t, falsy.Truthy())

	nonzero, err := Eval(ctx, `1`)
	require.NoError(t, err)
	assert.True(t, nonzero.Truthy())

	zero, err := Eval(ctx, `0`)
	require.NoError(t, err)
	assert.False(t, zero.Truthy())
}

func TestGlobalsAndComparison(t *testing.T) {
	ctx := newTestContext(t, quoteAndEODHandler(50, 10))
	ctx.SetGlobal("TITLE", String("U.US"))
	v, err := Eval(ctx, `S($TITLE, price) >= 45`)
	require.NoError(t, err)
	assert.True(t, v.Truthy())
}

func TestBuiltinAggregations(t *testing.T) {
	ctx := newTestContext(t, nil)

	v, err := Eval(ctx, `MAX(1, 5, 3)`)
	require.NoError(t, err)
	assert.Equal(t, 5.0, v.AsNumber())

	v, err = Eval(ctx, `MIN(1, 5, 3)`)
	require.NoError(t, err)
	assert.Equal(t, 1.0, v.AsNumber())

	v, err = Eval(ctx, `AVG(2, 4, 6)`)
	require.NoError(t, err)
	assert.InDelta(t, 4.0, v.AsNumber(), 1e-9)

	v, err = Eval(ctx, `COUNT(1, 2, 3, 4)`)
	require.NoError(t, err)
	assert.Equal(t, 4.0, v.AsNumber())
}

func TestRFiltersZeroQuantityTitles(t *testing.T) {
	ctx := newTestContext(t, nil)
	ctx.Reports.Put(&reports.Report{Name: "FLEX", Titles: []*reports.Title{
		{Code: "BB.TO", AverageQuantity: 100},
		{Code: "SOLD.TO", AverageQuantity: 0},
	}})

	v, err := Eval(ctx, `R("FLEX", "qty")`)
	require.NoError(t, err)
	assert.Equal(t, 100.0, v.AsNumber())
}

func TestRWithTitleFilterIgnoresFilterOut(t *testing.T) {
	ctx := newTestContext(t, nil)
	ctx.Reports.Put(&reports.Report{Name: "FLEX", Titles: []*reports.Title{
		{Code: "SOLD.TO", AverageQuantity: 0},
	}})

	v, err := Eval(ctx, `R("FLEX", "SOLD.TO", "qty")`)
	require.NoError(t, err)
	assert.Equal(t, 0.0, v.AsNumber())
}

func TestUnknownFieldIsInvalidArgument(t *testing.T) {
	ctx := newTestContext(t, quoteAndEODHandler(1, 1))
	_, err := Eval(ctx, `S("U.US", nonsense)`)
	require.Error(t, err)
	var exprErr *Error
	require.ErrorAs(t, err, &exprErr)
	assert.Equal(t, ErrKindInvalidArgument, exprErr.Kind)
}
