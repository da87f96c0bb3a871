// Package elevation looks up ground elevation for coordinates via the USGS
// Elevation Point Query Service (EPQS).
package elevation

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// DefaultBaseURL is the public EPQS endpoint.
const DefaultBaseURL = "https://epqs.nationalmap.gov/v1/json"

// noData is the value EPQS returns for points outside its coverage.
const noData = -1000000

// ErrNoData is returned when EPQS has no elevation for a point.
var ErrNoData = eris.New("elevation: no data for point")

// Client looks up elevations in feet.
type Client interface {
	// Feet returns the ground elevation at lat/lng in feet.
	Feet(ctx context.Context, lat, lng float64) (float64, error)
}

// Option configures the client.
type Option func(*client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *client) {
		c.httpClient = hc
	}
}

// WithBaseURL points the client at a different EPQS deployment.
func WithBaseURL(u string) Option {
	return func(c *client) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithRateLimit sets the requests-per-second limit.
func WithRateLimit(rps float64) Option {
	return func(c *client) {
		if rps <= 0 {
			return
		}
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithBreaker stops calling EPQS for resetAfter once threshold consecutive
// requests have failed.
func WithBreaker(threshold int, resetAfter time.Duration) Option {
	return func(c *client) {
		c.breaker = newBreaker(threshold, resetAfter)
	}
}

type client struct {
	httpClient *http.Client
	baseURL    string
	limiter    *rate.Limiter
	breaker    *breaker
}

// NewClient creates an EPQS client.
func NewClient(opts ...Option) Client {
	c := &client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    DefaultBaseURL,
		limiter:    rate.NewLimiter(10, 10),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// epqsResponse is the JSON response from EPQS. The value field has been
// served both as a number and as a string.
type epqsResponse struct {
	Value      json.RawMessage `json:"value"`
	Resolution float64         `json:"resolution"`
}

// Feet implements Client.
func (c *client) Feet(ctx context.Context, lat, lng float64) (float64, error) {
	if c.breaker == nil {
		return c.fetch(ctx, lat, lng)
	}
	if err := c.breaker.allow(); err != nil {
		return 0, err
	}
	v, err := c.fetch(ctx, lat, lng)
	if ctx.Err() != nil {
		c.breaker.abandon()
		return v, err
	}
	c.breaker.record(err)
	return v, err
}

func (c *client) fetch(ctx context.Context, lat, lng float64) (float64, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, eris.Wrap(err, "elevation: rate limit")
	}

	params := url.Values{
		"x":           {strconv.FormatFloat(lng, 'f', -1, 64)},
		"y":           {strconv.FormatFloat(lat, 'f', -1, 64)},
		"units":       {"Feet"},
		"wkid":        {"4326"},
		"includeDate": {"false"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return 0, eris.Wrap(err, "elevation: build request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, eris.Wrap(err, "elevation: request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return 0, eris.Errorf("elevation: epqs returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, eris.Wrap(err, "elevation: read body")
	}

	var parsed epqsResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return 0, eris.Wrap(err, "elevation: parse response")
	}
	v, err := parseValue(parsed.Value)
	if err != nil {
		return 0, err
	}
	if v <= noData {
		return 0, eris.Wrapf(ErrNoData, "elevation: %v,%v", lat, lng)
	}
	return v, nil
}

func parseValue(raw json.RawMessage) (float64, error) {
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	if s == "" || s == "null" {
		return 0, ErrNoData
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, eris.Wrapf(err, "elevation: parse value %q", s)
	}
	return v, nil
}
