package alerts

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/stockworks/workbench/internal/domain"
	"github.com/stockworks/workbench/internal/events"
	"github.com/stockworks/workbench/internal/expr"
	"github.com/stockworks/workbench/internal/notify"
	"github.com/stockworks/workbench/internal/scheduler/base"
)

// minTickInterval mirrors alerts_run_evaluators's 5-second no-op guard: the
// scheduler's own cadence may be tighter than that, so the tick enforces it
// itself rather than trusting the schedule string.
const minTickInterval = 5 * time.Second

// Engine is the round-robin alert tick: at most one alert is evaluated per
// Run(), cycling through the store in order and wrapping back to the front,
// grounded on alerts_run_evaluators's async_index cursor.
type Engine struct {
	base.JobBase

	store    *Store
	evalCtx  *expr.Context
	notifier notify.Notifier
	events   *events.Manager
	log      zerolog.Logger

	mu             sync.Mutex
	cursor         int
	lastEvaluation time.Time
}

// New builds the alert engine. evalCtx supplies the S/F/R/FIELDS/TABLE
// surface the stored expressions run against.
func New(store *Store, evalCtx *expr.Context, notifier notify.Notifier, mgr *events.Manager, log zerolog.Logger) *Engine {
	return &Engine{
		JobBase:  base.NewJobBase("alerts-tick"),
		store:    store,
		evalCtx:  evalCtx,
		notifier: notifier,
		events:   mgr,
		log:      log.With().Str("component", "alerts").Logger(),
	}
}

// Run implements scheduler.Job. It evaluates at most one eligible alert,
// advancing the round-robin cursor past every entry it visits (eligible or
// not) so a long run of discarded/not-yet-due alerts doesn't stall the
// cycle, matching alerts_run_evaluators's inner for loop.
func (e *Engine) Run() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if time.Since(e.lastEvaluation) < minTickInterval {
		return nil
	}

	alerts := e.store.All()
	if len(alerts) == 0 {
		return nil
	}
	if e.cursor >= len(alerts) {
		e.cursor = 0
	}

	for e.cursor < len(alerts) {
		a := alerts[e.cursor]
		e.cursor++

		now := time.Now().Unix()
		if !a.Eligible(now) {
			continue
		}
		a.LastRunTime = now
		e.lastEvaluation = time.Now()

		triggered, err := e.evaluate(a)
		if err != nil {
			e.log.Warn().Err(err).Str("title", a.Title).Msg("alert evaluation failed")
			break
		}
		if triggered {
			e.fire(a)
		}
		break
	}

	if e.cursor >= len(alerts) {
		e.cursor = 0
	}
	if err := e.store.Save(); err != nil {
		e.log.Warn().Err(err).Msg("failed to persist alerts after tick")
	}
	return nil
}

// evaluate binds $TITLE/$DESCRIPTION and runs a's expression.
func (e *Engine) evaluate(a *domain.AlertEvaluator) (bool, error) {
	e.evalCtx.SetGlobal("TITLE", expr.String(a.Title))
	e.evalCtx.SetGlobal("DESCRIPTION", expr.String(a.Description))

	result, err := expr.Eval(e.evalCtx, a.Expression)
	if err != nil {
		return false, err
	}
	return result.Truthy(), nil
}

// fire marks a triggered and pushes its notification, matching
// alerts_push_notification: the description's leading non-ASCII bytes are
// stripped before display.
func (e *Engine) fire(a *domain.AlertEvaluator) {
	a.Discarded = false
	a.TriggeredTime = time.Now().Unix()

	description := stripLeadingNonASCII(a.Description)
	if err := e.notifier.Push(a.Title, description); err != nil {
		e.log.Warn().Err(err).Str("title", a.Title).Msg("notification push failed")
	}
	if e.events != nil {
		e.events.Emit("alerts", &events.AlertTriggeredData{
			Title:         a.Title,
			Description:   a.Description,
			Expression:    a.Expression,
			TriggeredTime: a.TriggeredTime,
		})
	}
	e.log.Info().Str("title", a.Title).Str("expression", a.Expression).Msg("alert triggered")
}

// stripLeadingNonASCII drops every leading byte with the high bit set,
// matching alerts_push_notification's `(uint8_t)str[0] & 0x80 == 0x80` loop.
func stripLeadingNonASCII(s string) string {
	i := 0
	for i < len(s) && s[i]&0x80 == 0x80 {
		i++
	}
	return s[i:]
}

// priceChangeOp is one of the two comparison tokens the price-change helpers
// embed in the generated expression.
type priceChangeOp string

const (
	opPriceIncrease priceChangeOp = ">="
	opPriceDecrease priceChangeOp = "<="
)

// AddPriceIncrease adds (or replaces) a watch that fires the first time
// code's price reaches or exceeds price.
func (e *Engine) AddPriceIncrease(ctx context.Context, code string, price float64) (*domain.AlertEvaluator, error) {
	return e.addPriceChange(ctx, code, price, opPriceIncrease, "reached")
}

// AddPriceDecrease adds (or replaces) a watch that fires the first time
// code's price falls to or below price.
func (e *Engine) AddPriceDecrease(ctx context.Context, code string, price float64) (*domain.AlertEvaluator, error) {
	return e.addPriceChange(ctx, code, price, opPriceDecrease, "dropped to")
}

// addPriceChange grounds alerts_add_price_change: resolve the stock's name
// for the description, build the expression prefix shared by every watch on
// this (code, op) pair, drop any existing alert with that prefix, and insert
// the new one at the front of the store.
func (e *Engine) addPriceChange(ctx context.Context, code string, price float64, op priceChangeOp, verb string) (*domain.AlertEvaluator, error) {
	handle, err := e.evalCtx.DB.ResolveSymbol(code)
	if err != nil {
		return nil, fmt.Errorf("alerts: resolve %s: %w", code, err)
	}
	if e.evalCtx.Resolver != nil {
		if _, _, err := e.evalCtx.Resolver.Request(ctx, handle.CodeSymbol, domain.LevelFundamentals); err != nil {
			return nil, fmt.Errorf("alerts: resolve fundamentals for %s: %w", code, err)
		}
	}
	name := e.evalCtx.DB.Get(handle).Name
	if name == "" {
		name = handle.CodeSymbol
	}

	prefix := fmt.Sprintf("S(%q, price)%s", handle.CodeSymbol, op)
	if i := e.store.IndexOfExpressionPrefix(prefix); i >= 0 {
		e.store.DeleteAt(i)
	}

	description := fmt.Sprintf("%s price %s %.2f $", name, verb, price)
	a := &domain.AlertEvaluator{
		Title:         handle.CodeSymbol,
		Description:   description,
		Expression:    fmt.Sprintf("%s%.4f", prefix, price),
		FrequencySecs: minTickInterval.Seconds() * 60, // 300s, alerts.cpp's default evaluator frequency
		CreationDate:  time.Now().Unix(),
	}
	e.store.Insert(a)
	return a, e.store.Save()
}
