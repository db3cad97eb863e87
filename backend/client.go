package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// APIError is returned for any non-2xx response from the API.
type APIError struct {
	Endpoint   string
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %d %s: %s", e.Endpoint, e.StatusCode, http.StatusText(e.StatusCode), e.Detail)
	}
	return fmt.Sprintf("%s: %d %s", e.Endpoint, e.StatusCode, http.StatusText(e.StatusCode))
}

// Unauthorized reports whether the server rejected the credentials.
func (e *APIError) Unauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// EntriesQuery selects which entries to fetch. A Start/End pair takes
// precedence on the server over Hours, which takes precedence over Count.
type EntriesQuery struct {
	Hours int
	Count int
	Start time.Time
	End   time.Time
}

// Values encodes the query. Start and End are sent as epoch milliseconds.
func (q EntriesQuery) Values() url.Values {
	v := url.Values{}
	if q.Hours > 0 {
		v.Set("hours", strconv.Itoa(q.Hours))
	} else if q.Count > 0 {
		v.Set("count", strconv.Itoa(q.Count))
	}
	if !q.Start.IsZero() {
		v.Set("start", strconv.FormatInt(q.Start.UnixMilli(), 10))
	}
	if !q.End.IsZero() {
		v.Set("end", strconv.FormatInt(q.End.UnixMilli(), 10))
	}
	return v
}

// DayQuery returns the query covering the calendar day containing t, from
// 00:00 through 23:59:59.999 in t's location.
func DayQuery(t time.Time) EntriesQuery {
	y, m, d := t.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, t.Location())
	return EntriesQuery{
		Start: start,
		End:   start.AddDate(0, 0, 1).Add(-time.Millisecond),
	}
}

// ServerStatus is the subset of the status endpoint the dashboard uses.
type ServerStatus struct {
	Name       string
	Thresholds Thresholds
}

type statusResponse struct {
	Name       string `json:"name"`
	Units      string `json:"units"`
	Thresholds struct {
		High         *float64 `json:"bg_high"`
		TargetTop    *float64 `json:"bg_target_top"`
		TargetBottom *float64 `json:"bg_target_bottom"`
		Low          *float64 `json:"bg_low"`
	} `json:"thresholds"`
}

func (r statusResponse) status() ServerStatus {
	th := DefaultThresholds()
	th.Units = ParseUnits(r.Units)
	if r.Thresholds.High != nil {
		th.AlarmHigh = *r.Thresholds.High
	}
	if r.Thresholds.TargetTop != nil {
		th.TargetTop = *r.Thresholds.TargetTop
	}
	if r.Thresholds.TargetBottom != nil {
		th.TargetBottom = *r.Thresholds.TargetBottom
	}
	if r.Thresholds.Low != nil {
		th.AlarmLow = *r.Thresholds.Low
	}
	return ServerStatus{Name: r.Name, Thresholds: th}
}

// Client talks to a Nightscout-compatible REST API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *Metrics
}

// NewClient constructs a client for the API rooted at baseURL, for example
// "http://localhost:8000/api/v1".
func NewClient(baseURL, token string, timeout time.Duration, logger *slog.Logger, metrics *Metrics) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger:  logger,
		metrics: metrics,
	}
}

// GetEntries fetches glucose entries. Entries that cannot be converted into a
// sample are logged and skipped.
func (c *Client) GetEntries(ctx context.Context, q EntriesQuery) ([]Sample, error) {
	var entries []Entry
	if err := c.getJSON(ctx, "entries", q.Values(), &entries); err != nil {
		return nil, err
	}
	samples := make([]Sample, 0, len(entries))
	for _, e := range entries {
		if e.Type != "" && e.Type != "sgv" {
			continue
		}
		s, err := e.Sample()
		if err != nil {
			c.logger.Warn("skipping entry", "err", err)
			continue
		}
		samples = append(samples, s)
	}
	return samples, nil
}

// GetStatus fetches the server name, display units, and thresholds. Missing
// threshold fields fall back to the defaults.
func (c *Client) GetStatus(ctx context.Context) (ServerStatus, error) {
	var resp statusResponse
	if err := c.getJSON(ctx, "status", nil, &resp); err != nil {
		return ServerStatus{}, err
	}
	return resp.status(), nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, query url.Values, out any) error {
	if c == nil {
		return fmt.Errorf("api client not initialised")
	}
	if c.baseURL == "" {
		return fmt.Errorf("api base URL not configured")
	}
	u := c.baseURL + "/" + endpoint
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("build %s request: %w", endpoint, err)
	}
	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.ObserveRequest(endpoint, "error", time.Since(start))
		return fmt.Errorf("%s request: %w", endpoint, err)
	}
	defer resp.Body.Close()
	c.metrics.ObserveRequest(endpoint, strconv.Itoa(resp.StatusCode), time.Since(start))
	c.logger.Debug("api request", "endpoint", endpoint, "status", resp.StatusCode, "request_id", requestID, "elapsed", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Detail:     readDetail(resp.Body),
		}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%s: empty response body", endpoint)
		}
		return fmt.Errorf("decode %s response: %w", endpoint, err)
	}
	return nil
}

// readDetail extracts the "detail" field of an error body, falling back to
// the raw text.
func readDetail(r io.Reader) string {
	body, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil || len(body) == 0 {
		return ""
	}
	var payload struct {
		Detail any `json:"detail"`
	}
	if json.Unmarshal(body, &payload) == nil && payload.Detail != nil {
		if s, ok := payload.Detail.(string); ok {
			return s
		}
		b, _ := json.Marshal(payload.Detail)
		return string(b)
	}
	return strings.TrimSpace(string(body))
}
