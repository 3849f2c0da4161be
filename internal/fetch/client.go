package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"time"

	"golang.org/x/time/rate"

	"featcli/internal/config"
	apperrors "featcli/internal/errors"
	"featcli/pkg/contracts/domain"
)

const (
	// granularitySeconds selects daily buckets on the candles endpoint.
	granularitySeconds = 86400

	// candleFields is the arity of one candle row:
	// [ time, low, high, open, close, volume ].
	candleFields = 6

	day = 24 * time.Hour

	defaultBackoffBase = 500 * time.Millisecond
	maxBackoff         = 8 * time.Second

	userAgent = "featcli-fetch/1.0"
)

// Client downloads daily candles for one product from an exchange REST API.
// It is safe for use by a single goroutine at a time.
type Client struct {
	cfg     config.FetchConfig
	httpc   *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger

	// backoffBase is the first retry delay; it doubles per attempt.
	backoffBase time.Duration

	// OnProgress, when set, is invoked after each fetched page.
	OnProgress func(pagesDone, pagesTotal int)

	// OnRequest, when set, is invoked after every candles request
	// attempt with the response status (0 for transport failures) and
	// whether the attempt was a retry.
	OnRequest func(statusCode int, retried bool)
}

// NewClient builds a client from fetch configuration. A nil logger
// falls back to slog.Default().
func NewClient(cfg config.FetchConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 300
	}
	if cfg.RPS <= 0 {
		cfg.RPS = 1
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	return &Client{
		cfg:         cfg,
		httpc:       &http.Client{Timeout: cfg.RequestTimeout},
		limiter:     rate.NewLimiter(rate.Limit(cfg.RPS), 1),
		logger:      logger.With(slog.String("component", "fetch")),
		backoffBase: defaultBackoffBase,
	}
}

// FetchLookback fetches the configured lookback window ending today.
func (c *Client) FetchLookback(ctx context.Context) (*domain.BarSeries, error) {
	to := time.Now().UTC().Truncate(day)
	from := to.AddDate(0, 0, -c.cfg.LookbackYears*365)
	return c.Fetch(ctx, from, to)
}

// Fetch downloads daily candles for the closed range [from, to] and
// returns them as an ascending, de-duplicated series. The range is
// split into pages of at most PageSize days; cancellation is honoured
// between pages and while backing off.
func (c *Client) Fetch(ctx context.Context, from, to time.Time) (*domain.BarSeries, error) {
	from = from.UTC().Truncate(day)
	to = to.UTC().Truncate(day)
	if to.Before(from) {
		return nil, apperrors.NewAppValidationError(
			fmt.Sprintf("fetch range end %s precedes start %s",
				to.Format("2006-01-02"), from.Format("2006-01-02")))
	}

	windows := pageWindows(from, to, c.cfg.PageSize)
	c.logger.InfoContext(ctx, "starting candle download",
		slog.String("symbol", c.cfg.Symbol),
		slog.String("from", from.Format("2006-01-02")),
		slog.String("to", to.Format("2006-01-02")),
		slog.Int("pages", len(windows)))

	bars := make([]domain.Bar, 0, int(to.Sub(from)/day)+1)
	for i, w := range windows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page, err := c.fetchPage(ctx, w.start, w.end)
		if err != nil {
			return nil, err
		}
		bars = append(bars, page...)
		if c.OnProgress != nil {
			c.OnProgress(i+1, len(windows))
		}
	}

	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
	bars = dedupeAscending(bars)

	c.logger.InfoContext(ctx, "candle download complete",
		slog.String("symbol", c.cfg.Symbol),
		slog.Int("bars", len(bars)))
	return &domain.BarSeries{Symbol: c.cfg.Symbol, Bars: bars}, nil
}

// window is one inclusive request range of at most PageSize daily buckets.
type window struct {
	start, end time.Time
}

// pageWindows splits [from, to] into consecutive non-overlapping
// inclusive windows of at most pageSize days.
func pageWindows(from, to time.Time, pageSize int) []window {
	span := time.Duration(pageSize-1) * day
	var out []window
	for start := from; !start.After(to); {
		end := start.Add(span)
		if end.After(to) {
			end = to
		}
		out = append(out, window{start: start, end: end})
		start = end.Add(day)
	}
	return out
}

// fetchPage requests one candle window, retrying transient failures.
func (c *Client) fetchPage(ctx context.Context, start, end time.Time) ([]domain.Bar, error) {
	reqURL := c.candlesURL(start, end)

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := c.backoffBase << (attempt - 1)
			if delay > maxBackoff {
				delay = maxBackoff
			}
			c.logger.WarnContext(ctx, "candles request failed, backing off",
				slog.Int("attempt", attempt),
				slog.Duration("delay", delay),
				slog.String("error", lastErr.Error()))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		bars, err := c.doRequest(ctx, reqURL)
		c.reportRequest(err, attempt)
		if err == nil {
			return bars, nil
		}
		if !isRetryable(err) {
			var se *statusError
			if errors.As(err, &se) {
				return nil, apperrors.NewNetworkError("candles request rejected", err)
			}
			return nil, err
		}
		lastErr = err
	}

	return nil, apperrors.NewNetworkError(
		fmt.Sprintf("candles request for %s failed after %d attempts",
			start.Format("2006-01-02"), c.cfg.MaxRetries+1), lastErr)
}

// doRequest performs a single candles request and decodes the response.
func (c *Client) doRequest(ctx context.Context, reqURL string) ([]domain.Bar, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, apperrors.NewNetworkError("building candles request", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &statusError{code: resp.StatusCode, body: string(body)}
	}

	// The exchange returns rows newest-first:
	// [[ time, low, high, open, close, volume ], ...]
	var rows [][]float64
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, apperrors.NewParsingError("decoding candles response", err)
	}

	bars := make([]domain.Bar, 0, len(rows))
	for _, row := range rows {
		if len(row) < candleFields {
			c.logger.WarnContext(ctx, "skipping malformed candle row",
				slog.Int("fields", len(row)))
			continue
		}
		bars = append(bars, domain.Bar{
			Date:   time.Unix(int64(row[0]), 0).UTC().Truncate(day),
			Open:   row[3],
			High:   row[2],
			Low:    row[1],
			Close:  row[4],
			Volume: row[5],
		})
	}
	return bars, nil
}

// reportRequest invokes the OnRequest hook for one finished attempt.
func (c *Client) reportRequest(err error, attempt int) {
	if c.OnRequest == nil {
		return
	}
	status := http.StatusOK
	if err != nil {
		status = 0
		var se *statusError
		if errors.As(err, &se) {
			status = se.code
		}
	}
	c.OnRequest(status, attempt > 0)
}

// candlesURL builds the candles endpoint URL for one window.
func (c *Client) candlesURL(start, end time.Time) string {
	q := url.Values{}
	q.Set("granularity", fmt.Sprintf("%d", granularitySeconds))
	q.Set("start", start.Format(time.RFC3339))
	q.Set("end", end.Format(time.RFC3339))
	return fmt.Sprintf("%s/products/%s/candles?%s", c.cfg.BaseURL, c.cfg.Symbol, q.Encode())
}

// statusError is a non-200 response. 429 and 5xx are retryable.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	if e.body == "" {
		return fmt.Sprintf("unexpected status %d", e.code)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.code, e.body)
}

// isRetryable reports whether a request error is worth another attempt.
// Transport errors are retryable unless caused by cancellation.
func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.code == http.StatusTooManyRequests ||
			se.code >= http.StatusInternalServerError
	}
	var ue *url.Error
	return errors.As(err, &ue)
}

// dedupeAscending collapses equal-date runs in a sorted slice, keeping
// the last occurrence so a re-fetched page wins over a stale one.
func dedupeAscending(bars []domain.Bar) []domain.Bar {
	if len(bars) < 2 {
		return bars
	}
	out := bars[:1]
	for _, b := range bars[1:] {
		if b.Date.Equal(out[len(out)-1].Date) {
			out[len(out)-1] = b
			continue
		}
		out = append(out, b)
	}
	return out
}
