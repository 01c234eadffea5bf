package expr

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/stockworks/workbench/internal/domain"
	"gonum.org/v1/gonum/stat"
)

type builtinFn func(ctx *Context, args []node) (Value, error)

var builtins map[string]builtinFn

func init() {
	builtins = map[string]builtinFn{
		"S":      fnS,
		"F":      fnF,
		"R":      fnR,
		"FIELDS": fnFields,
		"TABLE":  fnTable,
		"MAX":    fnMax,
		"MIN":    fnMin,
		"AVG":    fnAvg,
		"COUNT":  fnCount,
	}
}

func evalArgs(ctx *Context, args []node) ([]Value, error) {
	out := make([]Value, len(args))
	for i, a := range args {
		v, err := a.eval(ctx)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// fnS implements S(code, field [, date | "ALL"]).
func fnS(ctx *Context, args []node) (Value, error) {
	if len(args) < 2 || len(args) > 3 {
		return Value{}, invalidArg("S() takes 2 or 3 arguments, got %d", len(args))
	}
	vals, err := evalArgs(ctx, args)
	if err != nil {
		return Value{}, err
	}
	code := vals[0].AsString()
	fieldName := vals[1].AsString()

	handle, herr := ctx.resolveHandle(code)
	if herr != nil {
		return Value{}, invalidArg("invalid symbol %q: %v", code, herr)
	}
	if err := ctx.ensureLevel(handle, domain.LevelRealtime); err != nil {
		return Value{}, err
	}

	if len(args) == 2 {
		field, ok := findScalarField(fieldName)
		if !ok {
			return Value{}, invalidArg("unknown field %q", fieldName)
		}
		if err := ctx.ensureLevel(handle, field.requires); err != nil {
			return Value{}, err
		}
		return field.fn(ctx.DB.Get(handle)), nil
	}

	field, ok := findDayField(fieldName)
	if !ok {
		return Value{}, invalidArg("unknown day field %q", fieldName)
	}
	if err := ctx.ensureLevel(handle, field.requires); err != nil {
		return Value{}, err
	}
	stock := ctx.DB.Get(handle)

	if strings.EqualFold(vals[2].AsString(), "ALL") {
		pairs := make([]Value, 0, len(stock.History)+1)
		pairs = append(pairs, Pair(strconv.FormatInt(stock.Current.Date, 10), field.fn(&stock.Current)))
		for i := range stock.History {
			d := &stock.History[i]
			pairs = append(pairs, Pair(strconv.FormatInt(d.Date, 10), field.fn(d)))
		}
		return List(pairs), nil
	}

	target, err := parseDateArg(vals[2])
	if err != nil {
		return Value{}, invalidArg("failed to parse date argument %q", vals[2].AsString())
	}
	if target >= stock.Current.Date {
		return field.fn(&stock.Current), nil
	}
	for i := range stock.History {
		d := &stock.History[i]
		if d.Date <= target {
			return field.fn(d), nil
		}
	}
	return Value{}, invalidArg("no history at or before date %d for %s", target, code)
}

func parseDateArg(v Value) (int64, error) {
	if v.Kind == KindNumber {
		return int64(v.Num), nil
	}
	s := v.AsString()
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t.Unix(), nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	return 0, fmt.Errorf("unrecognized date %q", s)
}

// fnF implements F(code, dotted_path).
func fnF(ctx *Context, args []node) (Value, error) {
	if len(args) != 2 {
		return Value{}, invalidArg("F() takes exactly 2 arguments, got %d", len(args))
	}
	vals, err := evalArgs(ctx, args)
	if err != nil {
		return Value{}, err
	}
	code := vals[0].AsString()
	path := vals[1].AsString()

	tree, ferr := ctx.Market.Fundamentals(ctx.goCtx, code)
	if ferr != nil {
		return Value{}, invalidArg("failed to fetch fundamentals for %q: %v", code, ferr)
	}

	leaf, ok := walkDottedPath(tree, strings.Split(path, "."))
	if !ok {
		return Value{}, invalidArg("fundamentals path %q not found for %q", path, code)
	}
	return jsonToValue(leaf), nil
}

func walkDottedPath(tree map[string]interface{}, parts []string) (interface{}, bool) {
	var cur interface{} = tree
	for _, part := range parts {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		v, ok := m[part]
		if !ok {
			return nil, false
		}
		cur = v
	}
	return cur, true
}

func jsonToValue(v interface{}) Value {
	switch t := v.(type) {
	case nil:
		return NaN()
	case string:
		return String(t)
	case float64:
		return Number(t)
	case bool:
		return Boolean(t)
	case []interface{}:
		out := make([]Value, len(t))
		for i, e := range t {
			out[i] = jsonToValue(e)
		}
		return List(out)
	case map[string]interface{}:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make([]Value, 0, len(keys))
		for _, k := range keys {
			out = append(out, Pair(k, jsonToValue(t[k])))
		}
		return List(out)
	default:
		return NaN()
	}
}

// fnR implements R(report, [title,] field).
func fnR(ctx *Context, args []node) (Value, error) {
	if len(args) < 2 || len(args) > 3 {
		return Value{}, invalidArg("R() takes 2 or 3 arguments, got %d", len(args))
	}
	vals, err := evalArgs(ctx, args)
	if err != nil {
		return Value{}, err
	}
	reportName := vals[0].AsString()
	if ctx.Reports == nil {
		return Value{}, invalidArg("no report store configured")
	}
	report, ok := ctx.Reports.FindNoCase(reportName)
	if !ok {
		return Value{}, invalidArg("cannot find report %q", reportName)
	}

	var titleFilter, fieldName string
	if len(vals) == 3 {
		titleFilter = vals[1].AsString()
		fieldName = vals[2].AsString()
	} else {
		fieldName = vals[1].AsString()
	}

	field, ok := findTitleField(fieldName)
	if !ok {
		return Value{}, &Error{Kind: ErrKindNotImplemented, Message: fmt.Sprintf("field %q not supported by R()", fieldName)}
	}

	var results []Value
	for _, t := range report.Titles {
		if titleFilter != "" && !strings.EqualFold(t.Code, titleFilter) {
			continue
		}
		value := field.fn(t)
		if titleFilter == "" && field.filterOut != nil && field.filterOut(value) {
			continue
		}
		results = append(results, Pair(t.Code, value))
		if titleFilter != "" {
			break
		}
	}

	if len(results) == 1 {
		return *results[0].PairVal, nil
	}
	return List(results), nil
}

// fnFields implements FIELDS(code, api): the flat list of field paths a
// given endpoint exposes, for client-side discovery.
func fnFields(ctx *Context, args []node) (Value, error) {
	if len(args) != 2 {
		return Value{}, invalidArg("FIELDS() takes exactly 2 arguments, got %d", len(args))
	}
	vals, err := evalArgs(ctx, args)
	if err != nil {
		return Value{}, err
	}
	code := vals[0].AsString()
	api := strings.ToLower(vals[1].AsString())

	switch api {
	case "fundamentals":
		tree, ferr := ctx.Market.Fundamentals(ctx.goCtx, code)
		if ferr != nil {
			return Value{}, invalidArg("failed to fetch fundamentals for %q: %v", code, ferr)
		}
		var names []string
		collectFieldPaths(tree, "", &names)
		sort.Strings(names)
		out := make([]Value, len(names))
		for i, n := range names {
			out[i] = String(n)
		}
		return List(out), nil
	case "real-time", "realtime":
		out := make([]Value, len(scalarFields))
		for i, f := range scalarFields {
			out[i] = String(f.name)
		}
		return List(out), nil
	case "eod", "technical":
		out := make([]Value, len(dayFields))
		for i, f := range dayFields {
			out[i] = String(f.name)
		}
		return List(out), nil
	default:
		return Value{}, invalidArg("unknown API endpoint %q", api)
	}
}

func collectFieldPaths(v interface{}, prefix string, out *[]string) {
	m, ok := v.(map[string]interface{})
	if !ok {
		if prefix != "" {
			*out = append(*out, prefix)
		}
		return
	}
	for k, child := range m {
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}
		if _, isObj := child.(map[string]interface{}); isObj {
			collectFieldPaths(child, path, out)
		} else {
			*out = append(*out, path)
		}
	}
}

// fnTable implements TABLE(name, data_set, [header, column_expr, format?]…).
// The original opens a modal window backed by the built table; that GUI
// surface is out of scope here — this returns the rows the table would
// have shown, each as a list of (header, value) pairs.
func fnTable(ctx *Context, args []node) (Value, error) {
	if len(args) < 4 {
		return Value{}, invalidArg("TABLE() requires at least a name, data set and one column")
	}
	dataVal, err := args[1].eval(ctx)
	if err != nil {
		return Value{}, err
	}

	rest := args[2:]
	arity := 2
	if len(rest)%3 == 0 && len(rest)%2 != 0 {
		arity = 3
	}
	if len(rest)%arity != 0 {
		return Value{}, invalidArg("TABLE() column arguments must come in (header, expr[, format]) groups")
	}

	type column struct {
		header string
		expr   node
	}
	var columns []column
	for i := 0; i < len(rest); i += arity {
		headerVal, err := rest[i].eval(ctx)
		if err != nil {
			return Value{}, err
		}
		columns = append(columns, column{header: headerVal.AsString(), expr: rest[i+1]})
	}

	rows := make([]Value, 0, len(dataVal.List))
	for _, elem := range dataVal.List {
		rowCtx := ctx.child()
		bindRowGlobals(rowCtx, elem)

		row := make([]Value, 0, len(columns))
		for _, col := range columns {
			v, err := col.expr.eval(rowCtx)
			if err != nil {
				return Value{}, err
			}
			row = append(row, Pair(col.header, v))
		}
		rows = append(rows, List(row))
	}
	return List(rows), nil
}

// bindRowGlobals binds $1, $2… to elem's tuple for one TABLE() row.
func bindRowGlobals(ctx *Context, elem Value) {
	switch elem.Kind {
	case KindList:
		for i, v := range elem.List {
			ctx.SetGlobal(strconv.Itoa(i+1), v)
		}
	case KindPair:
		ctx.SetGlobal("1", String(elem.PairKey))
		if elem.PairVal != nil {
			ctx.SetGlobal("2", *elem.PairVal)
		}
	default:
		ctx.SetGlobal("1", elem)
	}
}

func fnMax(ctx *Context, args []node) (Value, error) {
	nums, err := flattenArgs(ctx, args)
	if err != nil {
		return Value{}, err
	}
	if len(nums) == 0 {
		return NaN(), nil
	}
	max := nums[0]
	for _, n := range nums[1:] {
		if n > max {
			max = n
		}
	}
	return Number(max), nil
}

func fnMin(ctx *Context, args []node) (Value, error) {
	nums, err := flattenArgs(ctx, args)
	if err != nil {
		return Value{}, err
	}
	if len(nums) == 0 {
		return NaN(), nil
	}
	min := nums[0]
	for _, n := range nums[1:] {
		if n < min {
			min = n
		}
	}
	return Number(min), nil
}

// fnAvg is grounded on gonum/stat.Mean per the domain-stack commitment to
// use gonum for numeric aggregation rather than a hand-rolled mean.
func fnAvg(ctx *Context, args []node) (Value, error) {
	nums, err := flattenArgs(ctx, args)
	if err != nil {
		return Value{}, err
	}
	if len(nums) == 0 {
		return NaN(), nil
	}
	return Number(stat.Mean(nums, nil)), nil
}

func fnCount(ctx *Context, args []node) (Value, error) {
	nums, err := flattenArgs(ctx, args)
	if err != nil {
		return Value{}, err
	}
	return Number(float64(len(nums))), nil
}

func flattenArgs(ctx *Context, args []node) ([]float64, error) {
	vals, err := evalArgs(ctx, args)
	if err != nil {
		return nil, err
	}
	var nums []float64
	for _, v := range vals {
		nums = append(nums, v.Flatten()...)
	}
	return nums, nil
}
