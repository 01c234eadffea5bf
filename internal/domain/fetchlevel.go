package domain

// FetchLevel is a bitset of the data classes that can be resolved for a
// Stock. Bits are disjoint; a level is either in flight (set in
// Stock.FetchLevel) or resolved (set in Stock.ResolvedLevel), never both.
type FetchLevel uint32

const LevelNone FetchLevel = 0

const (
	LevelRealtime FetchLevel = 1 << iota
	LevelFundamentals
	LevelEOD
	LevelTechnicalEOD
	LevelTechnicalIndexedPrice
	LevelTechnicalSMA
	LevelTechnicalEMA
	LevelTechnicalWMA
	LevelTechnicalBBANDS
	LevelTechnicalSAR
	LevelTechnicalSlope
	LevelTechnicalCCI
)

// LevelTechnicalCharts is the illustrative union of the trailing technical
// levels; it is never tested against directly, just a convenience OR.
const LevelTechnicalCharts = LevelTechnicalSMA | LevelTechnicalEMA | LevelTechnicalWMA |
	LevelTechnicalBBANDS | LevelTechnicalSAR | LevelTechnicalSlope | LevelTechnicalCCI

// AllLevels returns every individual (non-composite) FetchLevel bit, in
// declaration order, for callers that need to split a mask into the single
// bits it was built from.
func AllLevels() []FetchLevel {
	return []FetchLevel{
		LevelRealtime,
		LevelFundamentals,
		LevelEOD,
		LevelTechnicalEOD,
		LevelTechnicalIndexedPrice,
		LevelTechnicalSMA,
		LevelTechnicalEMA,
		LevelTechnicalWMA,
		LevelTechnicalBBANDS,
		LevelTechnicalSAR,
		LevelTechnicalSlope,
		LevelTechnicalCCI,
	}
}

// Has reports whether all bits of other are set in l.
func (l FetchLevel) Has(other FetchLevel) bool {
	return l&other == other
}

// String renders the set bits for logging.
func (l FetchLevel) String() string {
	if l == LevelNone {
		return "NONE"
	}
	names := []struct {
		bit  FetchLevel
		name string
	}{
		{LevelRealtime, "REALTIME"},
		{LevelFundamentals, "FUNDAMENTALS"},
		{LevelEOD, "EOD"},
		{LevelTechnicalEOD, "TECHNICAL_EOD"},
		{LevelTechnicalIndexedPrice, "TECHNICAL_INDEXED_PRICE"},
		{LevelTechnicalSMA, "TECHNICAL_SMA"},
		{LevelTechnicalEMA, "TECHNICAL_EMA"},
		{LevelTechnicalWMA, "TECHNICAL_WMA"},
		{LevelTechnicalBBANDS, "TECHNICAL_BBANDS"},
		{LevelTechnicalSAR, "TECHNICAL_SAR"},
		{LevelTechnicalSlope, "TECHNICAL_SLOPE"},
		{LevelTechnicalCCI, "TECHNICAL_CCI"},
	}
	out := ""
	for _, n := range names {
		if l.Has(n.bit) {
			if out != "" {
				out += "|"
			}
			out += n.name
		}
	}
	if out == "" {
		return "NONE"
	}
	return out
}
