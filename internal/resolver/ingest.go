package resolver

import (
	"context"
	"math"
	"strconv"
	"time"

	"github.com/stockworks/workbench/internal/domain"
	"github.com/stockworks/workbench/internal/marketdata"
	"github.com/stockworks/workbench/internal/technical"
	"gonum.org/v1/gonum/stat"
)

// averageVolumeWindow is "the last ~63 sessions" (roughly 3 trading months)
// the original eod.cpp rolls average_volume_3m over.
const averageVolumeWindow = 63

// dependentLevels is what TECHNICAL_INDEXED_PRICE and every locally-computed
// indicator level wait on before they can run: either the plain EOD series
// or its split-adjusted twin, whichever resolves first.
const dependentLevels = domain.LevelEOD | domain.LevelTechnicalEOD

// ingestRealtime fetches the latest quote and rolls the current bar forward
// onto Previous when a new trading day starts.
func (d *Dispatcher) ingestRealtime(ctx context.Context, handle domain.Handle) error {
	quote, err := d.market.Realtime(ctx, handle.CodeSymbol)
	if err != nil {
		return err
	}

	day := quote.Timestamp - quote.Timestamp%86400
	return d.db.Mutate(handle, func(s *domain.Stock) {
		if s.Current.Date != 0 && s.Current.Date != day {
			s.Previous = append([]domain.DayResult{s.Current}, s.Previous...)
			s.Current = domain.NewDayResult()
		}
		s.Current.Date = day
		s.Current.Close = quote.Price
		s.Current.Volume = quote.Volume
	})
}

// ingestFundamentals populates the scalar descriptor fields from the
// provider's fundamentals tree, plus the lazily-computed fields (§3's
// double_option_t/string_option_t pattern) which re-query the (cached)
// tree only the first time they're actually read.
func (d *Dispatcher) ingestFundamentals(ctx context.Context, handle domain.Handle) error {
	tree, err := d.market.Fundamentals(ctx, handle.CodeSymbol)
	if err != nil {
		return err
	}

	general, _ := tree["General"].(map[string]interface{})
	highlights, _ := tree["Highlights"].(map[string]interface{})
	technicals, _ := tree["Technicals"].(map[string]interface{})

	return d.db.Mutate(handle, func(s *domain.Stock) {
		s.Name = stringField(general, "Name")
		s.Country = stringField(general, "CountryName")
		s.Currency = stringField(general, "CurrencyCode")
		s.Type = stringField(general, "Type")
		s.Exchange = stringField(general, "Exchange")
		s.ISIN = stringField(general, "ISIN")
		s.Sector = stringField(general, "Sector")
		s.Industry = stringField(general, "Industry")
		s.LogoURL = stringField(general, "LogoURL")
		s.UpdatedAt = stringField(general, "UpdatedAt")

		s.SharesCount = numField(highlights, "SharesOutstanding")
		s.PE = numField(highlights, "PERatio")
		s.PEG = numField(highlights, "PEGRatio")
		s.DividendYield = numField(highlights, "DividendYield")
		s.ProfitMargin = numField(highlights, "ProfitMargin")
		s.EPS = numField(highlights, "EarningsShare")

		s.Beta = numField(technicals, "Beta")
		s.Low52 = numField(technicals, "52WeekLow")
		s.High52 = numField(technicals, "52WeekHigh")
		s.DMA50 = numField(technicals, "50DayMA")
		s.DMA200 = numField(technicals, "200DayMA")
		s.ShortRatio = numField(technicals, "ShortRatio")

		symbol := handle.CodeSymbol
		s.Description = domain.NewLazy(func() (string, error) {
			return d.lazyFundamentalString(symbol, "General", "Description")
		})
		s.ShortName = domain.NewLazy(func() (string, error) {
			return d.lazyFundamentalString(symbol, "General", "Code")
		})
		s.DividendsYield = domain.NewLazy(func() (float64, error) {
			return d.lazyFundamentalFloat(symbol, "Highlights", "DividendYield")
		})
		s.EarningTrendTrailingYear = domain.NewLazy(func() (float64, error) {
			return d.lazyFundamentalFloat(symbol, "Highlights", "EPSEstimateCurrentYear")
		})
		s.EarningTrendCurrentYear = domain.NewLazy(func() (float64, error) {
			return d.lazyFundamentalFloat(symbol, "Highlights", "EPSEstimateNextYear")
		})
	})
}

// lazyFundamentalString/lazyFundamentalFloat re-fetch the fundamentals tree
// (cheap: a fresh HTTP cache entry was just written by ingestFundamentals)
// for a Lazy field's first, deferred read.
func (d *Dispatcher) lazyFundamentalString(symbol, section, key string) (string, error) {
	tree, err := d.market.Fundamentals(context.Background(), symbol)
	if err != nil {
		return "", err
	}
	m, _ := tree[section].(map[string]interface{})
	return stringField(m, key), nil
}

func (d *Dispatcher) lazyFundamentalFloat(symbol, section, key string) (float64, error) {
	tree, err := d.market.Fundamentals(context.Background(), symbol)
	if err != nil {
		return math.NaN(), err
	}
	m, _ := tree[section].(map[string]interface{})
	return numField(m, key), nil
}

// ingestEOD fetches the plain EOD series and also implicitly satisfies
// TECHNICAL_INDEXED_PRICE, since price_factor only needs Close/AdjustedClose
// from whichever of EOD/TECHNICAL_EOD lands first.
func (d *Dispatcher) ingestEOD(ctx context.Context, handle domain.Handle) error {
	bars, err := d.market.EOD(ctx, handle.CodeSymbol)
	if err != nil {
		return err
	}
	history := buildHistory(bars)
	avgVolume := averageVolume(history, averageVolumeWindow)

	d.dispatchMu.Lock()
	defer d.dispatchMu.Unlock()
	return d.db.Mutate(handle, func(s *domain.Stock) {
		s.History = history
		if len(history) > 0 {
			s.Current.PreviousClose = history[0].Close
		}
		s.AverageVolume3M = avgVolume
		s.ResolvedLevel |= domain.LevelTechnicalIndexedPrice
		s.FetchLevel &^= domain.LevelTechnicalIndexedPrice
	})
}

// averageVolume means the most recent n sessions' volume (history is
// newest-first, so that's simply the leading slice).
func averageVolume(history []domain.DayResult, n int) float64 {
	if len(history) == 0 {
		return math.NaN()
	}
	if n > len(history) {
		n = len(history)
	}
	volumes := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		if !math.IsNaN(history[i].Volume) {
			volumes = append(volumes, history[i].Volume)
		}
	}
	if len(volumes) == 0 {
		return math.NaN()
	}
	return stat.Mean(volumes, nil)
}

// ingestTechnicalEOD fetches the split-adjusted series. Per §4.1, if EOD was
// already resolved it's stale against the new adjustment factors and is
// re-fetched.
func (d *Dispatcher) ingestTechnicalEOD(ctx context.Context, handle domain.Handle) error {
	bars, err := d.market.Technical(ctx, handle.CodeSymbol, "splitadjusted")
	if err != nil {
		return err
	}
	history := buildHistory(bars)

	var refetchEOD bool
	d.dispatchMu.Lock()
	err = d.db.Mutate(handle, func(s *domain.Stock) {
		s.History = history
		s.ResolvedLevel |= domain.LevelTechnicalIndexedPrice
		s.FetchLevel &^= domain.LevelTechnicalIndexedPrice
		if s.Resolved(domain.LevelEOD) {
			refetchEOD = true
			s.ResolvedLevel &^= domain.LevelEOD
		}
	})
	d.dispatchMu.Unlock()
	if err != nil {
		return err
	}
	if refetchEOD {
		if _, resolveErr := d.Resolve(ctx, handle, domain.LevelEOD); resolveErr != nil {
			d.log.Warn().Str("symbol", handle.CodeSymbol).Err(resolveErr).
				Msg("failed to schedule EOD re-fetch after TECHNICAL_EOD update")
		}
	}
	return nil
}

// ingestTechnicalIndexedPrice waits for EOD or TECHNICAL_EOD history to
// exist, then fills in each day's price_factor (adjusted_close / close).
func (d *Dispatcher) ingestTechnicalIndexedPrice(ctx context.Context, handle domain.Handle) error {
	if err := d.waitForLevel(ctx, handle, dependentLevels); err != nil {
		return err
	}
	return d.db.Mutate(handle, func(s *domain.Stock) {
		for i := range s.History {
			if s.History[i].Close != 0 {
				s.History[i].PriceFactor = s.History[i].AdjustedClose / s.History[i].Close
			}
		}
		if len(s.History) > 0 {
			s.Current.PriceFactor = s.History[0].PriceFactor
		}
	})
}

// ingestIndicator computes one of the go-talib-backed technical levels
// locally from the resolved history, per SPEC_FULL's local-computation
// decision, mirroring the day's value into Current for the most recent bar.
func (d *Dispatcher) ingestIndicator(ctx context.Context, handle domain.Handle, level domain.FetchLevel) error {
	if err := d.waitForLevel(ctx, handle, dependentLevels); err != nil {
		return err
	}

	stock := d.db.Get(handle)
	n := len(stock.History)
	closes := make([]float64, n)
	highs := make([]float64, n)
	lows := make([]float64, n)
	for i, bar := range stock.History {
		j := n - 1 - i // History is newest-first, go-talib wants oldest-first
		closes[j] = bar.Close
		highs[j] = bar.High
		lows[j] = bar.Low
	}

	switch level {
	case domain.LevelTechnicalSMA:
		return d.writeSeries(handle, technical.SMA(closes, technical.DefaultPeriod), func(dr *domain.DayResult, v float64) { dr.SMA = v })
	case domain.LevelTechnicalEMA:
		return d.writeSeries(handle, technical.EMA(closes, technical.DefaultPeriod), func(dr *domain.DayResult, v float64) { dr.EMA = v })
	case domain.LevelTechnicalWMA:
		return d.writeSeries(handle, technical.WMA(closes, technical.DefaultPeriod), func(dr *domain.DayResult, v float64) { dr.WMA = v })
	case domain.LevelTechnicalSAR:
		values := technical.SAR(highs, lows, technical.DefaultSARAcceleration, technical.DefaultSARMaximum)
		return d.writeSeries(handle, values, func(dr *domain.DayResult, v float64) { dr.SAR = v })
	case domain.LevelTechnicalSlope:
		return d.writeSeries(handle, technical.Slope(closes, technical.DefaultPeriod), func(dr *domain.DayResult, v float64) { dr.Slope = v })
	case domain.LevelTechnicalCCI:
		values := technical.CCI(highs, lows, closes, technical.DefaultPeriod)
		return d.writeSeries(handle, values, func(dr *domain.DayResult, v float64) { dr.CCI = v })
	case domain.LevelTechnicalBBANDS:
		upper, middle, lower := technical.BBands(closes, technical.DefaultPeriod, technical.DefaultBBandsDevUp, technical.DefaultBBandsDevDown)
		return d.db.Mutate(handle, func(s *domain.Stock) {
			m := len(s.History)
			for i := range s.History {
				j := m - 1 - i
				if j >= 0 && j < len(upper) {
					s.History[i].UBand = upper[j]
					s.History[i].MBand = middle[j]
					s.History[i].LBand = lower[j]
				}
			}
			if m > 0 {
				s.Current.UBand = s.History[0].UBand
				s.Current.MBand = s.History[0].MBand
				s.Current.LBand = s.History[0].LBand
			}
		})
	}
	return domain.NewError("ingest_indicator", domain.KindInvalidArgument, nil)
}

// writeSeries zips a chronological (oldest-first) indicator series back onto
// the newest-first History, then mirrors the most recent value into Current.
func (d *Dispatcher) writeSeries(handle domain.Handle, values []float64, set func(*domain.DayResult, float64)) error {
	return d.db.Mutate(handle, func(s *domain.Stock) {
		n := len(s.History)
		for i := range s.History {
			j := n - 1 - i
			if j >= 0 && j < len(values) {
				set(&s.History[i], values[j])
			}
		}
		if n > 0 && n-1 < len(values) {
			set(&s.Current, values[n-1])
		}
	})
}

// buildHistory converts the provider's wire rows into newest-first
// DayResults, computing change/change_p/change_p_high/price_factor from
// each day and its predecessor, and drops any zero-volume entry past the
// seven most recent days: a stale padding row, not a real halted session.
func buildHistory(bars []marketdata.RawDayResult) []domain.DayResult {
	history := make([]domain.DayResult, 0, len(bars))
	for _, bar := range bars {
		dr := domain.NewDayResult()
		dr.Date = parseBarDate(bar.Date)
		dr.Open = bar.Open
		dr.High = bar.High
		dr.Low = bar.Low
		dr.Close = bar.Close
		dr.AdjustedClose = bar.AdjustedClose
		dr.Volume = bar.Volume
		if bar.Close != 0 {
			dr.PriceFactor = bar.AdjustedClose / bar.Close
		}
		history = append(history, dr)
	}

	for i := range history {
		if i+1 >= len(history) {
			continue
		}
		prevClose := history[i+1].Close
		history[i].PreviousClose = prevClose
		if prevClose == 0 {
			continue
		}
		history[i].Change = history[i].Close - prevClose
		history[i].ChangeP = history[i].Change / prevClose * 100
		maxCloseHigh := math.Max(history[i].Close, history[i].High)
		minOpenLow := math.Min(history[i].Open, history[i].Low)
		history[i].ChangePHigh = (maxCloseHigh - minOpenLow) / prevClose * 100
	}

	filtered := history[:0]
	for i, dr := range history {
		if i >= 7 && dr.Volume == 0 {
			continue
		}
		filtered = append(filtered, dr)
	}
	return filtered
}

// parseBarDate turns the provider's "2026-01-02" date into unix seconds at
// midnight UTC; a malformed date degrades to zero rather than failing the
// whole ingestion.
func parseBarDate(date string) int64 {
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		return 0
	}
	return t.Unix()
}

func stringField(m map[string]interface{}, key string) string {
	if m == nil {
		return ""
	}
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func numField(m map[string]interface{}, key string) float64 {
	if m == nil {
		return math.NaN()
	}
	switch v := m[key].(type) {
	case float64:
		return v
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return math.NaN()
		}
		return f
	default:
		return math.NaN()
	}
}
