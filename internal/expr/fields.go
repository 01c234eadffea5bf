package expr

import (
	"math"
	"strings"

	"github.com/stockworks/workbench/internal/domain"
	"github.com/stockworks/workbench/internal/reports"
)

// dayField is one entry of the per-day field table S(code, field, date|ALL)
// walks — grounded on report_expr.cpp's stock_end_of_day_property_evalutors,
// one row per DayResult field.
type dayField struct {
	name     string
	fn       func(d *domain.DayResult) Value
	requires domain.FetchLevel
}

var dayFields = []dayField{
	{"date", func(d *domain.DayResult) Value { return Number(float64(d.Date)) }, domain.LevelEOD},
	{"gmtoffset", func(d *domain.DayResult) Value { return Number(float64(d.GMTOffset)) }, domain.LevelEOD},
	{"open", func(d *domain.DayResult) Value { return Number(d.Open) }, domain.LevelEOD},
	{"close", func(d *domain.DayResult) Value { return Number(d.Close) }, domain.LevelEOD},
	{"previous_close", func(d *domain.DayResult) Value { return Number(d.PreviousClose) }, domain.LevelEOD},
	{"price_factor", func(d *domain.DayResult) Value { return Number(d.PriceFactor) }, domain.LevelEOD},
	{"low", func(d *domain.DayResult) Value { return Number(d.Low) }, domain.LevelEOD},
	{"high", func(d *domain.DayResult) Value { return Number(d.High) }, domain.LevelEOD},
	{"change", func(d *domain.DayResult) Value { return Number(d.Change) }, domain.LevelEOD},
	{"change_p", func(d *domain.DayResult) Value { return Number(d.ChangeP) }, domain.LevelEOD},
	{"change_p_high", func(d *domain.DayResult) Value { return Number(d.ChangePHigh) }, domain.LevelEOD},
	{"volume", func(d *domain.DayResult) Value { return Number(d.Volume) }, domain.LevelEOD},
	{"wma", func(d *domain.DayResult) Value { return Number(d.WMA) }, domain.LevelTechnicalWMA},
	{"ema", func(d *domain.DayResult) Value { return Number(d.EMA) }, domain.LevelTechnicalEMA},
	{"sma", func(d *domain.DayResult) Value { return Number(d.SMA) }, domain.LevelTechnicalSMA},
	{"uband", func(d *domain.DayResult) Value { return Number(d.UBand) }, domain.LevelTechnicalBBANDS},
	{"mband", func(d *domain.DayResult) Value { return Number(d.MBand) }, domain.LevelTechnicalBBANDS},
	{"lband", func(d *domain.DayResult) Value { return Number(d.LBand) }, domain.LevelTechnicalBBANDS},
	{"sar", func(d *domain.DayResult) Value { return Number(d.SAR) }, domain.LevelTechnicalSAR},
	{"slope", func(d *domain.DayResult) Value { return Number(d.Slope) }, domain.LevelTechnicalSlope},
	{"cci", func(d *domain.DayResult) Value { return Number(d.CCI) }, domain.LevelTechnicalCCI},
}

func findDayField(name string) (dayField, bool) {
	for _, f := range dayFields {
		if strings.EqualFold(f.name, name) {
			return f, true
		}
	}
	return dayField{}, false
}

// scalarField is one entry of the stock-wide field table S(code, field)
// reads, grounded on the "Stock only" half of report_field_property_evalutors.
type scalarField struct {
	name     string
	fn       func(s *domain.Stock) Value
	requires domain.FetchLevel
}

func lazyString(l *domain.Lazy[string]) Value {
	if l == nil {
		return String("")
	}
	v, err := l.Value()
	if err != nil {
		return String("")
	}
	return String(v)
}

func lazyNumber(l *domain.Lazy[float64]) Value {
	if l == nil {
		return NaN()
	}
	v, err := l.Value()
	if err != nil {
		return NaN()
	}
	return Number(v)
}

var scalarFields = []scalarField{
	{"price", func(s *domain.Stock) Value { return Number(s.Current.Close) }, domain.LevelRealtime},
	{"date", func(s *domain.Stock) Value { return Number(float64(s.Current.Date)) }, domain.LevelRealtime},
	{"gmt", func(s *domain.Stock) Value { return Number(float64(s.Current.GMTOffset)) }, domain.LevelRealtime},
	{"open", func(s *domain.Stock) Value { return Number(s.Current.Open) }, domain.LevelRealtime},
	{"close", func(s *domain.Stock) Value { return Number(s.Current.Close) }, domain.LevelRealtime},
	{"yesterday", func(s *domain.Stock) Value { return Number(s.Current.PreviousClose) }, domain.LevelRealtime},
	{"low", func(s *domain.Stock) Value { return Number(s.Current.Low) }, domain.LevelRealtime},
	{"high", func(s *domain.Stock) Value { return Number(s.Current.High) }, domain.LevelRealtime},
	{"change", func(s *domain.Stock) Value { return Number(s.Current.Change) }, domain.LevelRealtime},
	{"change_p", func(s *domain.Stock) Value { return Number(s.Current.ChangeP) }, domain.LevelRealtime},
	{"volume", func(s *domain.Stock) Value { return Number(s.Current.Volume) }, domain.LevelRealtime},
	{"price_factor", func(s *domain.Stock) Value { return Number(s.Current.PriceFactor) }, domain.LevelEOD},
	{"change_p_high", func(s *domain.Stock) Value { return Number(s.Current.ChangePHigh) }, domain.LevelEOD},
	{"wma", func(s *domain.Stock) Value { return Number(s.Current.WMA) }, domain.LevelTechnicalWMA},
	{"ema", func(s *domain.Stock) Value { return Number(s.Current.EMA) }, domain.LevelTechnicalEMA},
	{"sma", func(s *domain.Stock) Value { return Number(s.Current.SMA) }, domain.LevelTechnicalSMA},
	{"uband", func(s *domain.Stock) Value { return Number(s.Current.UBand) }, domain.LevelTechnicalBBANDS},
	{"mband", func(s *domain.Stock) Value { return Number(s.Current.MBand) }, domain.LevelTechnicalBBANDS},
	{"lband", func(s *domain.Stock) Value { return Number(s.Current.LBand) }, domain.LevelTechnicalBBANDS},
	{"sar", func(s *domain.Stock) Value { return Number(s.Current.SAR) }, domain.LevelTechnicalSAR},
	{"slope", func(s *domain.Stock) Value { return Number(s.Current.Slope) }, domain.LevelTechnicalSlope},
	{"cci", func(s *domain.Stock) Value { return Number(s.Current.CCI) }, domain.LevelTechnicalCCI},
	{"dividends", func(s *domain.Stock) Value { return Number(s.DividendYield) }, domain.LevelFundamentals},
	{"earning_trend_trailing_year", func(s *domain.Stock) Value { return lazyNumber(s.EarningTrendTrailingYear) }, domain.LevelFundamentals},
	{"earning_trend_current_year", func(s *domain.Stock) Value { return lazyNumber(s.EarningTrendCurrentYear) }, domain.LevelFundamentals},
	{"name", func(s *domain.Stock) Value { return String(s.Name) }, domain.LevelFundamentals},
	{"short_name", func(s *domain.Stock) Value { return lazyString(s.ShortName) }, domain.LevelFundamentals},
	{"description", func(s *domain.Stock) Value { return lazyString(s.Description) }, domain.LevelFundamentals},
	{"country", func(s *domain.Stock) Value { return String(s.Country) }, domain.LevelFundamentals},
	{"type", func(s *domain.Stock) Value { return String(s.Type) }, domain.LevelFundamentals},
	{"currency", func(s *domain.Stock) Value { return String(s.Currency) }, domain.LevelFundamentals},
	{"url", func(s *domain.Stock) Value { return String(s.LogoURL) }, domain.LevelFundamentals},
	{"updated_at", func(s *domain.Stock) Value { return String(s.UpdatedAt) }, domain.LevelFundamentals},
	{"exchange", func(s *domain.Stock) Value { return String(s.Exchange) }, domain.LevelFundamentals},
	{"symbol", func(s *domain.Stock) Value { return String(s.CodeSymbol) }, domain.LevelNone},
	{"isin", func(s *domain.Stock) Value { return String(s.ISIN) }, domain.LevelFundamentals},
	{"sector", func(s *domain.Stock) Value { return String(s.Sector) }, domain.LevelFundamentals},
	{"industry", func(s *domain.Stock) Value { return String(s.Industry) }, domain.LevelFundamentals},
	{"shares_count", func(s *domain.Stock) Value { return Number(s.SharesCount) }, domain.LevelFundamentals},
	{"low_52", func(s *domain.Stock) Value { return Number(s.Low52) }, domain.LevelFundamentals},
	{"high_52", func(s *domain.Stock) Value { return Number(s.High52) }, domain.LevelFundamentals},
	{"pe", func(s *domain.Stock) Value { return Number(s.PE) }, domain.LevelFundamentals},
	{"peg", func(s *domain.Stock) Value { return Number(s.PEG) }, domain.LevelFundamentals},
	{"beta", func(s *domain.Stock) Value { return Number(s.Beta) }, domain.LevelFundamentals},
	{"dma_50", func(s *domain.Stock) Value { return Number(s.DMA50) }, domain.LevelFundamentals},
	{"dma_200", func(s *domain.Stock) Value { return Number(s.DMA200) }, domain.LevelFundamentals},
	{"short_ratio", func(s *domain.Stock) Value { return Number(s.ShortRatio) }, domain.LevelFundamentals},
	{"eps", func(s *domain.Stock) Value { return Number(s.EPS) }, domain.LevelFundamentals},
	{"profit_margin", func(s *domain.Stock) Value { return Number(s.ProfitMargin) }, domain.LevelFundamentals},
	{"average_volume_3m", func(s *domain.Stock) Value { return Number(s.AverageVolume3M) }, domain.LevelEOD},
}

func findScalarField(name string) (scalarField, bool) {
	for _, f := range scalarFields {
		if strings.EqualFold(f.name, name) {
			return f, true
		}
	}
	return scalarField{}, false
}

// titleField is one entry of R()'s field table, grounded on the "Title &
// Stocks" half of report_field_property_evalutors.
type titleField struct {
	name      string
	fn        func(t *reports.Title) Value
	filterOut func(v Value) bool
}

func isZeroOrNaN(v Value) bool {
	n := v.AsNumber()
	return n == 0 || math.IsNaN(n)
}

var titleFields = []titleField{
	{"sold", func(t *reports.Title) Value { return Boolean(t.Sold()) }, nil},
	{"active", func(t *reports.Title) Value { return Boolean(t.Active()) }, nil},
	{"qty", func(t *reports.Title) Value { return Number(t.AverageQuantity) }, isZeroOrNaN},
	{"buy", func(t *reports.Title) Value { return Number(t.BuyAdjustedPrice) }, nil},
	{"buy_total_adjusted_qty", func(t *reports.Title) Value { return Number(t.BuyTotalAdjustedQty) }, nil},
	{"buy_total_adjusted_price", func(t *reports.Title) Value { return Number(t.BuyTotalAdjustedPrice) }, nil},
	{"sell_total_adjusted_qty", func(t *reports.Title) Value { return Number(t.SellTotalAdjustedQty) }, nil},
	{"sell_total_adjusted_price", func(t *reports.Title) Value { return Number(t.SellTotalAdjustedPrice) }, nil},
	{"buy_total_price", func(t *reports.Title) Value { return Number(t.BuyTotalPrice) }, nil},
	{"buy_total_quantity", func(t *reports.Title) Value { return Number(t.BuyTotalQuantity) }, nil},
	{"sell_total_price", func(t *reports.Title) Value { return Number(t.SellTotalPrice) }, nil},
	{"sell_total_quantity", func(t *reports.Title) Value { return Number(t.SellTotalQuantity) }, nil},
	{"buy_total_price_rated_adjusted", func(t *reports.Title) Value { return Number(t.BuyTotalPriceRatedAdjusted) }, nil},
	{"sell_total_price_rated_adjusted", func(t *reports.Title) Value { return Number(t.SellTotalPriceRatedAdjusted) }, nil},
	{"buy_total_price_rated", func(t *reports.Title) Value { return Number(t.BuyTotalPriceRated) }, nil},
	{"sell_total_price_rated", func(t *reports.Title) Value { return Number(t.SellTotalPriceRated) }, nil},
	{"buy_adjusted_price", func(t *reports.Title) Value { return Number(t.BuyAdjustedPrice) }, nil},
	{"sell_adjusted_price", func(t *reports.Title) Value { return Number(t.SellAdjustedPrice) }, nil},
	{"average_price", func(t *reports.Title) Value { return Number(t.AveragePrice) }, nil},
	{"average_price_rated", func(t *reports.Title) Value { return Number(t.AveragePriceRated) }, nil},
	{"average_quantity", func(t *reports.Title) Value { return Number(t.AverageQuantity) }, nil},
	{"average_buy_price", func(t *reports.Title) Value { return Number(t.AverageBuyPrice) }, nil},
	{"average_buy_price_rated", func(t *reports.Title) Value { return Number(t.AverageBuyPriceRated) }, nil},
	{"remaining_shares", func(t *reports.Title) Value { return Number(t.RemainingShares) }, nil},
	{"total_dividends", func(t *reports.Title) Value { return Number(t.TotalDividends) }, nil},
	{"average_ask_price", func(t *reports.Title) Value { return Number(t.AverageAskPrice) }, nil},
	{"average_exchange_rate", func(t *reports.Title) Value { return Number(t.AverageExchangeRate) }, nil},
	{"date_min", func(t *reports.Title) Value { return Number(float64(t.DateMin)) }, nil},
	{"date_max", func(t *reports.Title) Value { return Number(float64(t.DateMax)) }, nil},
	{"date_average", func(t *reports.Title) Value { return Number(float64(t.DateAverage)) }, nil},
	{"title", func(t *reports.Title) Value { return String(t.Code) }, nil},
}

func findTitleField(name string) (titleField, bool) {
	for _, f := range titleFields {
		if strings.EqualFold(f.name, name) {
			return f, true
		}
	}
	return titleField{}, false
}
