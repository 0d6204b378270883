// Package yahoo fetches candles from the Yahoo Finance v8 chart API.
package yahoo

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"regime-monitor/internal/apperr"
	"regime-monitor/internal/model"
)

const defaultBaseURL = "https://query1.finance.yahoo.com"

// Yahoo rejects the default Go agent with 429s.
const userAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Client fetches OHLCV candles from Yahoo's chart endpoint. Batches
// are returned in exchange-local time, ascending and deduplicated, with
// the in-progress bucket flagged Forming.
type Client struct {
	// BaseURL is the API endpoint, overridable in tests.
	BaseURL string

	client *http.Client
	log    zerolog.Logger
	now    func() time.Time
}

// New creates a chart API client.
func New(log zerolog.Logger) *Client {
	return &Client{
		BaseURL: defaultBaseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
		log:     log.With().Str("provider", "yahoo").Logger(),
		now:     time.Now,
	}
}

type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *chartError   `json:"error"`
	} `json:"chart"`
}

type chartResult struct {
	Meta struct {
		ExchangeTimezoneName string `json:"exchangeTimezoneName"`
	} `json:"meta"`
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []quote `json:"quote"`
	} `json:"indicators"`
}

// Yahoo emits JSON nulls inside the OHLCV arrays for halted or partial
// buckets, hence the pointer element types.
type quote struct {
	Open   []*float64 `json:"open"`
	High   []*float64 `json:"high"`
	Low    []*float64 `json:"low"`
	Close  []*float64 `json:"close"`
	Volume []*int64   `json:"volume"`
}

type chartError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// Candles implements marketdata.Provider.
func (c *Client) Candles(ctx context.Context, ticker string, interval model.Interval, lookbackDays int) ([]model.Candle, error) {
	u := c.BaseURL + "/v8/finance/chart/" + url.PathEscape(ticker) +
		"?interval=" + url.QueryEscape(interval.String()) +
		"&range=" + url.QueryEscape(rangeParam(lookbackDays))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindFetch, ticker, err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindFetch, ticker, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apperr.New(apperr.KindFetch, ticker, "chart request: status %d", resp.StatusCode)
	}

	var cr chartResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return nil, apperr.Wrap(apperr.KindFetch, ticker, err)
	}
	if cr.Chart.Error != nil {
		return nil, apperr.New(apperr.KindFetch, ticker, "chart error: %s (%s)",
			cr.Chart.Error.Code, cr.Chart.Error.Description)
	}
	if len(cr.Chart.Result) == 0 {
		return nil, apperr.New(apperr.KindFetch, ticker, "empty chart result")
	}

	res := cr.Chart.Result[0]
	if len(res.Indicators.Quote) == 0 {
		return nil, apperr.New(apperr.KindFetch, ticker, "chart result has no quote block")
	}

	batch := c.zip(res, interval)
	c.log.Debug().Str("ticker", ticker).Str("interval", interval.String()).
		Int("candles", len(batch)).Msg("batch fetched")
	return batch, nil
}

// zip pairs the timestamp array with the quote arrays, dropping rows
// with null OHLC entries and normalizing order and duplicates.
func (c *Client) zip(res chartResult, interval model.Interval) []model.Candle {
	loc := time.UTC
	if name := res.Meta.ExchangeTimezoneName; name != "" {
		if l, err := time.LoadLocation(name); err == nil {
			loc = l
		}
	}

	q := res.Indicators.Quote[0]
	now := c.now()

	batch := make([]model.Candle, 0, len(res.Timestamp))
	for i, ts := range res.Timestamp {
		if i >= len(q.Open) || i >= len(q.High) || i >= len(q.Low) || i >= len(q.Close) {
			break
		}
		if q.Open[i] == nil || q.High[i] == nil || q.Low[i] == nil || q.Close[i] == nil {
			continue
		}
		var vol int64
		if i < len(q.Volume) && q.Volume[i] != nil {
			vol = *q.Volume[i]
		}
		start := time.Unix(ts, 0).In(loc)
		batch = append(batch, model.Candle{
			TS:      start,
			Open:    *q.Open[i],
			High:    *q.High[i],
			Low:     *q.Low[i],
			Close:   *q.Close[i],
			Volume:  vol,
			Forming: !now.Before(start) && now.Before(start.Add(interval.Duration())),
		})
	}

	sort.SliceStable(batch, func(i, j int) bool { return batch[i].TS.Before(batch[j].TS) })

	// Duplicate buckets keep the later upstream row.
	out := batch[:0]
	for _, cd := range batch {
		if n := len(out); n > 0 && out[n-1].TS.Equal(cd.TS) {
			out[n-1] = cd
			continue
		}
		out = append(out, cd)
	}
	return out
}

// rangeParam maps a lookback in days onto Yahoo's range syntax.
func rangeParam(days int) string {
	if days < 1 {
		days = 1
	}
	return strconv.Itoa(days) + "d"
}
