package expr

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/stockworks/workbench/internal/domain"
	"github.com/stockworks/workbench/internal/marketdata"
	"github.com/stockworks/workbench/internal/reports"
	"github.com/stockworks/workbench/internal/resolver"
	"github.com/stockworks/workbench/internal/stockdb"
)

const (
	fieldWaitTimeout = 60 * time.Second
	fieldWaitPoll    = 100 * time.Millisecond
)

// Context carries everything a running expression needs to reach live
// data: the stock database and dispatcher (for S), the market client (for
// F and FIELDS), the report store (for R), and the global variables the
// alerts engine and TABLE() bind before evaluation.
type Context struct {
	DB       *stockdb.DB
	Resolver *resolver.Dispatcher
	Market   *marketdata.Client
	Reports  *reports.Store
	Log      zerolog.Logger

	globals map[string]Value
	goCtx   context.Context
}

// NewContext builds a root Context. goCtx bounds every on-demand fetch and
// spin-wait an evaluation triggers.
func NewContext(goCtx context.Context, db *stockdb.DB, rs *resolver.Dispatcher, market *marketdata.Client, rep *reports.Store, log zerolog.Logger) *Context {
	return &Context{
		DB: db, Resolver: rs, Market: market, Reports: rep, Log: log,
		globals: make(map[string]Value),
		goCtx:   goCtx,
	}
}

// SetGlobal binds a $NAME reference, e.g. $TITLE/$DESCRIPTION before
// evaluating an alert expression.
func (c *Context) SetGlobal(name string, v Value) {
	c.globals[name] = v
}

// child returns a shallow copy of c with its own globals map, used by
// TABLE() to bind $1, $2… per row without leaking bindings across rows.
func (c *Context) child() *Context {
	cp := *c
	cp.globals = make(map[string]Value, len(c.globals))
	for k, v := range c.globals {
		cp.globals[k] = v
	}
	return &cp
}

// Eval parses and evaluates src against ctx.
func Eval(ctx *Context, src string) (Value, error) {
	n, err := Parse(src)
	if err != nil {
		return Value{}, &Error{Kind: ErrKindInvalidArgument, Message: err.Error()}
	}
	return n.eval(ctx)
}

// resolveHandle interns code into the database without blocking.
func (c *Context) resolveHandle(code string) (domain.Handle, error) {
	return c.DB.ResolveSymbol(code)
}

// ensureLevel makes sure handle has resolved every bit of levels,
// requesting it if necessary and spin-waiting up to fieldWaitTimeout —
// "loading TECHNICAL_EOD on demand with a 60s timeout" per §4.4.
func (c *Context) ensureLevel(handle domain.Handle, levels domain.FetchLevel) error {
	if levels == domain.LevelNone {
		return nil
	}
	if c.DB.Get(handle).Resolved(levels) {
		return nil
	}
	if c.Resolver == nil {
		return evalTimeout("no resolver configured, cannot resolve %s for %s", levels, handle.CodeSymbol)
	}
	if _, _, err := c.Resolver.Request(c.goCtx, handle.CodeSymbol, levels); err != nil {
		return invalidArg("failed to resolve %s for %s: %v", levels, handle.CodeSymbol, err)
	}

	deadline := time.Now().Add(fieldWaitTimeout)
	ticker := time.NewTicker(fieldWaitPoll)
	defer ticker.Stop()
	for {
		if c.DB.Get(handle).Resolved(levels) {
			return nil
		}
		if time.Now().After(deadline) {
			return evalTimeout("timed out waiting for %s on %s", levels, handle.CodeSymbol)
		}
		select {
		case <-c.goCtx.Done():
			return c.goCtx.Err()
		case <-ticker.C:
		}
	}
}
