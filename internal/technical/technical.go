// Package technical computes the TECHNICAL_{SMA,EMA,WMA,BBANDS,SAR,CCI}
// levels locally from a resolved EOD/TECHNICAL_EOD history via go-talib,
// instead of round-tripping to the provider's technical endpoint once per
// function per symbol. All functions take and return chronological
// (oldest-first) slices; the resolver is responsible for reversing its
// newest-first history before calling in and zipping the result back.
package technical

import (
	"math"

	"github.com/markcheno/go-talib"
)

// Default periods, matching the conventional values the provider's own
// technical endpoint uses when no period is specified.
const (
	DefaultPeriod          = 20
	DefaultBBandsDevUp     = 2.0
	DefaultBBandsDevDown   = 2.0
	DefaultSARAcceleration = 0.02
	DefaultSARMaximum      = 0.2
)

// SMA computes the simple moving average over period days. The first
// period-1 values, before the window fills, are NaN.
func SMA(closes []float64, period int) []float64 {
	out := talib.Sma(closes, period)
	for i := 0; i < period-1 && i < len(out); i++ {
		out[i] = math.NaN()
	}
	return out
}

// EMA computes the exponential moving average over period days.
func EMA(closes []float64, period int) []float64 {
	return talib.Ema(closes, period)
}

// WMA computes the weighted moving average over period days.
func WMA(closes []float64, period int) []float64 {
	return talib.Wma(closes, period)
}

// CCI computes the commodity channel index over period days.
func CCI(highs, lows, closes []float64, period int) []float64 {
	return talib.Cci(highs, lows, closes, period)
}

// SAR computes the parabolic stop-and-reverse indicator.
func SAR(highs, lows []float64, acceleration, maximum float64) []float64 {
	return talib.Sar(highs, lows, acceleration, maximum)
}

// BBands computes Bollinger Bands, returning the upper, middle and lower
// bands in that order.
func BBands(closes []float64, period int, devUp, devDown float64) (upper, middle, lower []float64) {
	return talib.BBands(closes, period, devUp, devDown, talib.SMA)
}

// Slope computes the linear regression slope over period days.
func Slope(closes []float64, period int) []float64 {
	return talib.LinearRegSlope(closes, period)
}
