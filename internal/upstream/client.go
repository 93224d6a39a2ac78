package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"aquamon/internal/logger"
	"aquamon/internal/models"
)

// Kind tells genuine telemetry apart from synthesized continuity data
type Kind int

const (
	KindReal Kind = iota
	KindPlaceholder
)

func (k Kind) String() string {
	if k == KindPlaceholder {
		return "placeholder"
	}
	return "real"
}

// FetchResult is the outcome of FetchLatest. It always carries a reading.
type FetchResult struct {
	Reading models.Reading
	Kind    Kind
	// Attempts is the number of HTTP requests issued
	Attempts int
	// Err is the last failure when Kind is KindPlaceholder, nil otherwise
	Err error
}

// Real wraps a reading obtained from the channel
func Real(r models.Reading) FetchResult {
	r.Placeholder = false
	return FetchResult{Reading: r, Kind: KindReal}
}

// Placeholder wraps a synthesized reading
func Placeholder(r models.Reading) FetchResult {
	r.Placeholder = true
	return FetchResult{Reading: r, Kind: KindPlaceholder}
}

// IsPlaceholder reports whether the reading was synthesized
func (r FetchResult) IsPlaceholder() bool {
	return r.Kind == KindPlaceholder
}

// errNoPayload means the channel answered but has nothing to normalize
var errNoPayload = errors.New("no usable payload")

// Options configures a Client
type Options struct {
	BaseURL    string
	ChannelID  string
	ReadAPIKey string
	Timeout    time.Duration // per attempt
	MaxRetries int           // retries after the first attempt
	RetryDelay time.Duration // backoff unit, multiplied by the attempt number
	HTTPClient *http.Client
	Now        func() time.Time
}

// Client reads the most recent feed entry of a ThingSpeak channel
type Client struct {
	endpoint   string
	httpClient *http.Client
	timeout    time.Duration
	maxRetries int
	retryDelay time.Duration
	now        func() time.Time
	logger     *logger.Logger
}

// NewClient creates a new channel client
func NewClient(opts Options, log *logger.Logger) (*Client, error) {
	base, err := url.Parse(opts.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", opts.BaseURL)
	}
	endpoint := base.JoinPath("channels", opts.ChannelID, "feeds", "last.json")
	if opts.ReadAPIKey != "" {
		q := endpoint.Query()
		q.Set("api_key", opts.ReadAPIKey)
		endpoint.RawQuery = q.Encode()
	}

	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: opts.Timeout}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if log == nil {
		log = logger.Nop()
	}

	return &Client{
		endpoint:   endpoint.String(),
		httpClient: opts.HTTPClient,
		timeout:    opts.Timeout,
		maxRetries: opts.MaxRetries,
		retryDelay: opts.RetryDelay,
		now:        opts.Now,
		logger:     log.WithComponent("upstream"),
	}, nil
}

// FetchLatest returns the newest channel entry. Transient failures are retried
// with linear backoff; when retries run out, or the channel has no usable
// entry, a placeholder reading is returned instead of an error.
func (c *Client) FetchLatest(ctx context.Context) FetchResult {
	var lastErr error
	attempts := 0

retry:
	for attempt := 1; attempt <= c.maxRetries+1; attempt++ {
		attempts = attempt
		c.logger.Debug().Int("attempt", attempt).Int("max_attempts", c.maxRetries+1).Msg("fetching channel feed")

		payload, err := c.fetchOnce(ctx)
		if err == nil {
			reading := Normalize(payload, c.now())
			c.logger.Debug().
				Float64("temperature", reading.Temperature).
				Float64("level", reading.Level).
				Time("timestamp", reading.Timestamp).
				Msg("channel feed normalized")
			res := Real(reading)
			res.Attempts = attempts
			return res
		}

		if errors.Is(err, errNoPayload) {
			c.logger.Warn().Msg("channel returned no data, using placeholder reading")
			lastErr = err
			break retry
		}

		lastErr = err
		c.logger.Warn().Err(err).Int("attempt", attempt).Msg("channel fetch failed")

		// Don't wait after the last attempt
		if attempt > c.maxRetries {
			break
		}

		delay := time.Duration(attempt) * c.retryDelay
		select {
		case <-ctx.Done():
			lastErr = ctx.Err()
			break retry
		case <-time.After(delay):
		}
	}

	if !errors.Is(lastErr, errNoPayload) {
		c.logger.Error().Err(lastErr).Int("attempts", attempts).Msg("all channel fetch attempts failed, using placeholder reading")
	}
	res := Placeholder(DefaultReading(c.now()))
	res.Attempts = attempts
	res.Err = lastErr
	return res
}

// fetchOnce performs a single bounded GET and decodes the body
func (c *Client) fetchOnce(ctx context.Context) (Payload, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return decodePayload(body)
}

// decodePayload parses a feed body. Malformed JSON is a transient error;
// valid JSON that is not an object (null, -1) means the channel is empty.
func decodePayload(body []byte) (Payload, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var raw interface{}
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("invalid JSON response: %w", err)
	}
	obj, ok := raw.(map[string]interface{})
	if !ok {
		return nil, errNoPayload
	}
	return Payload(obj), nil
}
