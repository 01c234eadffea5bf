// Package marketdata is the HTTP client for the provider endpoints behind
// the resolution dispatcher: real-time quotes, EOD/technical series,
// fundamentals, exchange symbol lists and news. Every response is cached
// to disk through clientdata before being returned, and a stale cache
// entry is served if the live request fails (stale data beats no data).
package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/stockworks/workbench/internal/clientdata"
)

// Client talks to the market-data provider's JSON API.
type Client struct {
	baseURL   string
	apiToken  string
	http      *http.Client
	log       zerolog.Logger
	cacheRepo *clientdata.Repository
}

// New creates a market-data client. cacheRepo is optional; a nil repo
// disables caching and every call hits the network.
func New(baseURL, apiToken string, cacheRepo *clientdata.Repository, log zerolog.Logger) *Client {
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiToken:  apiToken,
		http:      &http.Client{Timeout: 15 * time.Second},
		log:       log.With().Str("component", "marketdata").Logger(),
		cacheRepo: cacheRepo,
	}
}

// RealtimeQuote is one symbol's latest tick.
type RealtimeQuote struct {
	Code      string  `json:"code"`
	Timestamp int64   `json:"timestamp"`
	Price     float64 `json:"close"`
	Volume    float64 `json:"volume"`
}

// RawDayResult is the provider's wire shape for one EOD/technical bar; the
// resolver maps this onto domain.DayResult field-by-field.
type RawDayResult struct {
	Date          string  `json:"date"`
	Open          float64 `json:"open"`
	High          float64 `json:"high"`
	Low           float64 `json:"low"`
	Close         float64 `json:"close"`
	AdjustedClose float64 `json:"adjusted_close"`
	Volume        float64 `json:"volume"`
	SMA           float64 `json:"sma"`
	EMA           float64 `json:"ema"`
	WMA           float64 `json:"wma"`
	UBand         float64 `json:"upper_band"`
	MBand         float64 `json:"middle_band"`
	LBand         float64 `json:"lower_band"`
	SAR           float64 `json:"sar"`
	Slope         float64 `json:"slope"`
	CCI           float64 `json:"cci"`
}

// DecodeError marks a response that was fetched successfully but failed to
// unmarshal into the expected shape (and for which no stale cache entry was
// available); the undecodable body is not cached. The resolver treats this differently from a transport
// failure: a dispatcher marks the level resolved anyway so a permanently
// malformed field doesn't loop forever, rather than counting it toward the
// fetch-error/poisoning threshold.
type DecodeError struct {
	URL string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("marketdata: decode %s: %v", e.URL, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Realtime fetches the latest quote for a single symbol.
func (c *Client) Realtime(ctx context.Context, symbol string) (*RealtimeQuote, error) {
	quotes, err := c.RealtimeBatch(ctx, []string{symbol})
	if err != nil {
		return nil, err
	}
	if len(quotes) == 0 {
		return nil, fmt.Errorf("marketdata: no quote returned for %s", symbol)
	}
	return &quotes[0], nil
}

// RealtimeBatch fetches quotes for up to 32 symbols in one request, per
// §4.3's batching rule.
func (c *Client) RealtimeBatch(ctx context.Context, symbols []string) ([]RealtimeQuote, error) {
	if len(symbols) == 0 {
		return nil, nil
	}
	q := url.Values{}
	if len(symbols) > 1 {
		q.Set("s", strings.Join(symbols[1:], ","))
	}
	requestURL := c.buildURL(fmt.Sprintf("real-time/%s", symbols[0]), q)

	var quotes []RealtimeQuote
	if err := c.getJSON(ctx, requestURL, clientdata.TTLRealtime, &quotes); err != nil {
		// The endpoint returns a single object for one symbol.
		var single RealtimeQuote
		if err2 := c.getJSON(ctx, requestURL, clientdata.TTLRealtime, &single); err2 != nil {
			return nil, err
		}
		return []RealtimeQuote{single}, nil
	}
	return quotes, nil
}

// EOD fetches the full historical series, newest-first (order=d).
func (c *Client) EOD(ctx context.Context, symbol string) ([]RawDayResult, error) {
	q := url.Values{"order": {"d"}}
	requestURL := c.buildURL(fmt.Sprintf("eod/%s", symbol), q)
	return c.getSeries(ctx, requestURL, clientdata.TTLEOD)
}

// Technical queries one technical indicator function (sma, ema, wma,
// bbands, sar, slope, cci, splitadjusted) for a symbol's full history.
func (c *Client) Technical(ctx context.Context, symbol, function string) ([]RawDayResult, error) {
	q := url.Values{"order": {"d"}, "function": {function}}
	requestURL := c.buildURL(fmt.Sprintf("technical/%s", symbol), q)
	return c.getSeries(ctx, requestURL, clientdata.TTLTechnical)
}

// Fundamentals fetches the raw fundamentals tree, left as a generic map so
// F()'s dotted-path evaluator can walk it without a fixed schema.
func (c *Client) Fundamentals(ctx context.Context, symbol string) (map[string]interface{}, error) {
	requestURL := c.buildURL(fmt.Sprintf("fundamentals/%s", symbol), nil)

	var tree map[string]interface{}
	if err := c.getJSON(ctx, requestURL, clientdata.TTLFundamentals, &tree); err != nil {
		return nil, err
	}
	return tree, nil
}

// ExchangeSymbolList enumerates every ticker on an exchange.
func (c *Client) ExchangeSymbolList(ctx context.Context, exchange string) ([]string, error) {
	requestURL := c.buildURL(fmt.Sprintf("exchange-symbol-list/%s", exchange), nil)

	var entries []struct {
		Code string `json:"Code"`
	}
	if err := c.getJSON(ctx, requestURL, clientdata.TTLExchangeSymbols, &entries); err != nil {
		return nil, err
	}
	symbols := make([]string, 0, len(entries))
	for _, e := range entries {
		symbols = append(symbols, e.Code)
	}
	return symbols, nil
}

// NewsItem is one article in the news feed.
type NewsItem struct {
	Date    string `json:"date"`
	Title   string `json:"title"`
	Content string `json:"content"`
	Link    string `json:"link"`
}

// News fetches up to limit recent articles mentioning symbol.
func (c *Client) News(ctx context.Context, symbol string, limit int) ([]NewsItem, error) {
	q := url.Values{"s": {symbol}, "limit": {strconv.Itoa(limit)}}
	requestURL := c.buildURL("news", q)

	var items []NewsItem
	if err := c.getJSON(ctx, requestURL, clientdata.TTLNews, &items); err != nil {
		return nil, err
	}
	return items, nil
}

func (c *Client) buildURL(path string, q url.Values) string {
	if q == nil {
		q = url.Values{}
	}
	q.Set("api_token", c.apiToken)
	q.Set("fmt", "json")
	return fmt.Sprintf("%s/%s?%s", c.baseURL, path, q.Encode())
}

// getJSON fetches url through the disk cache: fresh cache hit short-circuits
// the network; a network failure falls back to a stale cache entry before
// giving up.
func (c *Client) getJSON(ctx context.Context, requestURL string, ttl time.Duration, out interface{}) error {
	if c.cacheRepo != nil {
		if body, err := c.cacheRepo.GetIfFresh(requestURL); err == nil && body != nil {
			return json.Unmarshal(body, out)
		}
	}

	body, err := c.fetch(ctx, requestURL)
	if err != nil {
		if stale, ok := c.staleFromCache(requestURL); ok {
			c.log.Warn().Err(err).Str("url", requestURL).Msg("fetch failed, serving stale cache")
			return json.Unmarshal(stale, out)
		}
		return err
	}

	if err := json.Unmarshal(body, out); err != nil {
		if stale, ok := c.staleFromCache(requestURL); ok {
			c.log.Warn().Err(err).Str("url", requestURL).Msg("response parse failed, serving stale cache")
			return json.Unmarshal(stale, out)
		}
		return &DecodeError{URL: requestURL, Err: err}
	}

	if c.cacheRepo != nil {
		if err := c.cacheRepo.Store(requestURL, 0, body, ttl); err != nil {
			c.log.Warn().Err(err).Str("url", requestURL).Msg("failed to cache response")
		}
	}
	return nil
}

// getSeries fetches an EOD/technical bar series the same way getJSON does
// (cache-then-fetch-then-stale-fallback), but the cache blob is the decoded
// []RawDayResult msgpack-encoded rather than the provider's raw JSON body —
// the provider's wire format is re-parsed once on a cache miss and never
// again, instead of on every cache hit.
func (c *Client) getSeries(ctx context.Context, requestURL string, ttl time.Duration) ([]RawDayResult, error) {
	if c.cacheRepo != nil {
		if blob, err := c.cacheRepo.GetIfFresh(requestURL); err == nil && blob != nil {
			var bars []RawDayResult
			if err := msgpack.Unmarshal(blob, &bars); err == nil {
				return bars, nil
			}
		}
	}

	body, err := c.fetch(ctx, requestURL)
	if err != nil {
		if bars, ok := c.staleSeriesFromCache(requestURL); ok {
			c.log.Warn().Err(err).Str("url", requestURL).Msg("fetch failed, serving stale cache")
			return bars, nil
		}
		return nil, err
	}

	var bars []RawDayResult
	if err := json.Unmarshal(body, &bars); err != nil {
		if cached, ok := c.staleSeriesFromCache(requestURL); ok {
			c.log.Warn().Err(err).Str("url", requestURL).Msg("response parse failed, serving stale cache")
			return cached, nil
		}
		return nil, &DecodeError{URL: requestURL, Err: err}
	}

	if c.cacheRepo != nil {
		if blob, err := msgpack.Marshal(bars); err != nil {
			c.log.Warn().Err(err).Str("url", requestURL).Msg("failed to msgpack-encode series for cache")
		} else if err := c.cacheRepo.Store(requestURL, 0, blob, ttl); err != nil {
			c.log.Warn().Err(err).Str("url", requestURL).Msg("failed to cache response")
		}
	}
	return bars, nil
}

func (c *Client) staleSeriesFromCache(requestURL string) ([]RawDayResult, bool) {
	blob, ok := c.staleFromCache(requestURL)
	if !ok {
		return nil, false
	}
	var bars []RawDayResult
	if err := msgpack.Unmarshal(blob, &bars); err != nil {
		return nil, false
	}
	return bars, true
}

func (c *Client) fetch(ctx context.Context, requestURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("marketdata: build request %s: %w", requestURL, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("marketdata: request %s: %w", requestURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("marketdata: %s returned status %d", requestURL, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("marketdata: read %s: %w", requestURL, err)
	}
	return body, nil
}

func (c *Client) staleFromCache(requestURL string) ([]byte, bool) {
	if c.cacheRepo == nil {
		return nil, false
	}
	body, err := c.cacheRepo.Get(requestURL)
	if err != nil || body == nil {
		return nil, false
	}
	return body, true
}
