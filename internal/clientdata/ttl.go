package clientdata

import "time"

// TTL constants, one per fetch level the HTTP/JSON layer serves (spec §6).
const (
	TTLRealtime        = 30 * time.Second     // quotes move fast between polls
	TTLFundamentals    = 3 * 24 * time.Hour    // spec §4.1: fundamentals cache 3 days
	TTLEOD             = time.Hour             // historical bars, cheap to refresh
	TTLTechnical       = time.Hour             // indicator series recomputed upstream hourly
	TTLExchangeSymbols = 24 * time.Hour        // exchange symbol lists rarely change intraday
	TTLNews            = 15 * time.Minute      // news feed, short-lived
)
