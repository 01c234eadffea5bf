package alerts

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stockworks/workbench/internal/domain"
	"github.com/stockworks/workbench/internal/expr"
	"github.com/stockworks/workbench/internal/marketdata"
	"github.com/stockworks/workbench/internal/reports"
	"github.com/stockworks/workbench/internal/resolver"
	"github.com/stockworks/workbench/internal/stockdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	pushes []string
}

func (n *recordingNotifier) Push(title, description string) error {
	n.pushes = append(n.pushes, title+": "+description)
	return nil
}

func newTestEngine(t *testing.T, handler http.HandlerFunc) (*Engine, *Store, *recordingNotifier) {
	t.Helper()
	var server *httptest.Server
	baseURL := ""
	if handler != nil {
		server = httptest.NewServer(handler)
		t.Cleanup(server.Close)
		baseURL = server.URL
	}

	db := stockdb.New()
	market := marketdata.New(baseURL, "tok", nil, zerolog.Nop())
	dispatcher := resolver.New(db, market, nil, zerolog.Nop())
	repStore, err := reports.Open(filepath.Join(t.TempDir(), "reports.json"))
	require.NoError(t, err)
	evalCtx := expr.NewContext(context.Background(), db, dispatcher, market, repStore, zerolog.Nop())

	store, err := Open(filepath.Join(t.TempDir(), "alerts.json"))
	require.NoError(t, err)

	notifier := &recordingNotifier{}
	engine := New(store, evalCtx, notifier, nil, zerolog.Nop())
	return engine, store, notifier
}

func fundamentalsHandler(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"General":{"Name":"` + name + `"},"Highlights":{},"Technicals":{}}`))
	}
}

func newAlert(title, expression string, frequency float64) *domain.AlertEvaluator {
	return &domain.AlertEvaluator{
		Title:         title,
		Description:   "desc " + title,
		Expression:    expression,
		FrequencySecs: frequency,
		CreationDate:  1,
	}
}

func TestRunEvaluatesAtMostOneAlertPerTick(t *testing.T) {
	engine, store, notifier := newTestEngine(t, nil)
	store.Insert(newAlert("A", "FALSE", 0))
	store.Insert(newAlert("B", "TRUE", 0))

	require.NoError(t, engine.Run())
	assert.Len(t, notifier.pushes, 1)
}

func TestTriggeredAlertFiresNotificationAndEvent(t *testing.T) {
	engine, store, notifier := newTestEngine(t, nil)
	a := newAlert("PRICE", "TRUE", 0)
	store.Insert(a)

	require.NoError(t, engine.Run())
	require.Len(t, notifier.pushes, 1)
	assert.True(t, strings.HasPrefix(notifier.pushes[0], "PRICE:"))

	all := store.All()
	require.Len(t, all, 1)
	assert.NotZero(t, all[0].TriggeredTime)
	assert.False(t, all[0].Discarded)
}

func TestTriggeredAlertIsNotReEvaluated(t *testing.T) {
	engine, store, notifier := newTestEngine(t, nil)
	store.Insert(newAlert("ONLY", "TRUE", 0))

	require.NoError(t, engine.Run())
	require.Len(t, notifier.pushes, 1)

	engine.lastEvaluation = time.Time{}
	require.NoError(t, engine.Run())
	assert.Len(t, notifier.pushes, 1, "a triggered alert must never fire twice")
}

func TestRunThrottlesToMinimumInterval(t *testing.T) {
	engine, store, notifier := newTestEngine(t, nil)
	store.Insert(newAlert("A", "TRUE", 0))
	store.Insert(newAlert("B", "TRUE", 0))

	require.NoError(t, engine.Run())
	require.Len(t, notifier.pushes, 1)

	require.NoError(t, engine.Run())
	assert.Len(t, notifier.pushes, 1, "a second tick inside the throttle window must be a no-op")
}

// TestRoundRobinFairnessOverWindow grounds the round-robin cursor's
// fairness property: given N eligible, always-true alerts and N ticks (with
// the throttle bypassed between them, as the real 5s gate would enforce
// naturally), every alert is evaluated exactly once and none is skipped or
// visited twice.
func TestRoundRobinFairnessOverWindow(t *testing.T) {
	engine, store, notifier := newTestEngine(t, nil)
	const n = 5
	for i := 0; i < n; i++ {
		store.Insert(newAlert(strings.Repeat("X", i+1), "TRUE", 0))
	}

	seen := map[string]int{}
	for i := 0; i < n; i++ {
		engine.lastEvaluation = time.Time{}
		require.NoError(t, engine.Run())
	}
	for _, p := range notifier.pushes {
		title := strings.SplitN(p, ":", 2)[0]
		seen[title]++
	}
	assert.Len(t, seen, n)
	for title, count := range seen {
		assert.Equal(t, 1, count, "title %s evaluated %d times, want 1", title, count)
	}
}

func TestNotYetDueAlertIsSkippedWithoutConsumingTheTick(t *testing.T) {
	engine, store, notifier := newTestEngine(t, nil)
	notDue := newAlert("NOTDUE", "TRUE", 3600)
	notDue.LastRunTime = time.Now().Unix()
	// Insert is newest-first, so inserting DUE then NOTDUE leaves NOTDUE at
	// the front of the cursor's path, ahead of DUE.
	store.Insert(newAlert("DUE", "TRUE", 0))
	store.Insert(notDue)

	require.NoError(t, engine.Run())
	require.Len(t, notifier.pushes, 1)
	assert.True(t, strings.HasPrefix(notifier.pushes[0], "DUE:"))
}

func TestAddPriceIncreaseDedupesByPrefix(t *testing.T) {
	engine, store, _ := newTestEngine(t, fundamentalsHandler("United Stocks Inc"))

	_, err := engine.AddPriceIncrease(context.Background(), "U.US", 40)
	require.NoError(t, err)
	require.Equal(t, 1, store.Len())

	a, err := engine.AddPriceIncrease(context.Background(), "U.US", 45)
	require.NoError(t, err)
	assert.Equal(t, 1, store.Len(), "a new watch on the same symbol/direction replaces the old one")
	assert.Contains(t, a.Expression, "45.0000")
	assert.Contains(t, a.Description, "United Stocks Inc")
}

func TestAddPriceIncreaseAndDecreaseCoexist(t *testing.T) {
	engine, store, _ := newTestEngine(t, fundamentalsHandler("U Inc"))

	_, err := engine.AddPriceIncrease(context.Background(), "U.US", 50)
	require.NoError(t, err)
	_, err = engine.AddPriceDecrease(context.Background(), "U.US", 10)
	require.NoError(t, err)

	assert.Equal(t, 2, store.Len())
}

func TestStripLeadingNonASCII(t *testing.T) {
	assert.Equal(t, "price reached", stripLeadingNonASCII("price reached"))
	assert.Equal(t, "price reached", stripLeadingNonASCII("\xe2\x86\x91price reached"))
	assert.Equal(t, "", stripLeadingNonASCII("\x80\x81\x82"))
}
