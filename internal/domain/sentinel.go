package domain

import "math"

var nanValue = math.NaN()

// NilStock is the sentinel returned when a Handle fails to resolve: every
// numeric field reads as NaN rather than zero, so arithmetic on an
// unresolved stock silently propagates NaN instead of reading as a real
// zero price.
func NilStock() *Stock {
	return &Stock{
		Current:         NewDayResult(),
		SharesCount:     nanValue,
		PE:              nanValue,
		PEG:             nanValue,
		Beta:            nanValue,
		Low52:           nanValue,
		High52:          nanValue,
		DMA50:           nanValue,
		DMA200:          nanValue,
		DividendYield:   nanValue,
		ProfitMargin:    nanValue,
		ShortRatio:      nanValue,
		EPS:             nanValue,
		AverageVolume3M: nanValue,
	}
}
