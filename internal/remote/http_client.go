package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/nhle/reminders/internal/model"
)

// Defaults applied by NewHTTPClient.
const (
	DefaultTimeout         = 10 * time.Second
	DefaultDownloadLimit   = 5
	DefaultPlaceholderDate = "2025-01-01"
	DefaultPlaceholderTime = "12:00"

	// DefaultMaxResponseBytes caps how much of a response body is read.
	DefaultMaxResponseBytes int64 = 4 << 20
)

// HTTPClient is a thin JSON client for the remote posts API. It handles
// bearer or OAuth2 client-credentials authentication and retries with
// exponential backoff on HTTP 429.
type HTTPClient struct {
	baseURL         string
	userID          int
	httpClient      *http.Client
	timeout         time.Duration
	maxRetries      int
	downloadLimit   int
	placeholderDate string
	placeholderTime string
	maxBody         int64
	now             func() time.Time
	log             *zap.Logger
}

// HTTPOption customizes an HTTPClient.
type HTTPOption func(*HTTPClient)

// WithUserID scopes uploads and downloads to a remote user.
func WithUserID(id int) HTTPOption {
	return func(c *HTTPClient) { c.userID = id }
}

// WithTimeout bounds each remote call.
func WithTimeout(d time.Duration) HTTPOption {
	return func(c *HTTPClient) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithMaxRetries sets how many times a rate-limited call is retried.
func WithMaxRetries(n int) HTTPOption {
	return func(c *HTTPClient) {
		if n >= 0 {
			c.maxRetries = n
		}
	}
}

// WithDownloadLimit truncates downloads; 0 means unlimited.
func WithDownloadLimit(n int) HTTPOption {
	return func(c *HTTPClient) {
		if n >= 0 {
			c.downloadLimit = n
		}
	}
}

// WithMaxResponseBytes caps response bodies; larger ones fail the call.
func WithMaxResponseBytes(n int64) HTTPOption {
	return func(c *HTTPClient) {
		if n > 0 {
			c.maxBody = n
		}
	}
}

// WithPlaceholders sets the date and time given to downloaded rows.
func WithPlaceholders(date, hhmm string) HTTPOption {
	return func(c *HTTPClient) {
		if date != "" {
			c.placeholderDate = date
		}
		if hhmm != "" {
			c.placeholderTime = hhmm
		}
	}
}

// WithBearerToken authenticates every request with a static token.
func WithBearerToken(token string) HTTPOption {
	return func(c *HTTPClient) {
		if token == "" {
			return
		}
		src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"})
		c.httpClient.Transport = &oauth2.Transport{Source: src, Base: c.httpClient.Transport}
	}
}

// WithClientCredentials authenticates using the OAuth2 client-credentials
// grant. Tokens are fetched and refreshed on demand.
func WithClientCredentials(cfg model.OAuthConfig) HTTPOption {
	return func(c *HTTPClient) {
		if cfg.ClientID == "" || cfg.TokenURL == "" {
			return
		}
		cc := clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
			Scopes:       cfg.Scopes,
		}
		base := &http.Client{Timeout: c.httpClient.Timeout, Transport: c.httpClient.Transport}
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
		c.httpClient.Transport = &oauth2.Transport{Source: cc.TokenSource(ctx), Base: c.httpClient.Transport}
	}
}

// WithHTTPClient replaces the underlying transport client. Apply it before
// any auth option.
func WithHTTPClient(hc *http.Client) HTTPOption {
	return func(c *HTTPClient) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithClock overrides the clock used for synthesized ids.
func WithClock(now func() time.Time) HTTPOption {
	return func(c *HTTPClient) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(log *zap.Logger) HTTPOption {
	return func(c *HTTPClient) {
		if log != nil {
			c.log = log
		}
	}
}

// NewHTTPClient creates a client rooted at baseURL, e.g. the address of
// `reminders serve-mock`. A remote that answers every POST with the same
// id leaves all but the first of those rows unsynced.
func NewHTTPClient(baseURL string, opts ...HTTPOption) *HTTPClient {
	c := &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		userID:  1,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		timeout:         DefaultTimeout,
		maxRetries:      3,
		downloadLimit:   DefaultDownloadLimit,
		placeholderDate: DefaultPlaceholderDate,
		placeholderTime: DefaultPlaceholderTime,
		maxBody:         DefaultMaxResponseBytes,
		now:             time.Now,
		log:             zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewFromConfig builds a client from application config. token is the
// stored bearer token and is ignored when OAuth2 is configured.
func NewFromConfig(cfg model.RemoteConfig, token string, log *zap.Logger) *HTTPClient {
	opts := []HTTPOption{
		WithUserID(cfg.UserID),
		WithTimeout(cfg.Timeout),
		WithMaxRetries(cfg.MaxRetries),
		WithDownloadLimit(cfg.DownloadLimit),
		WithPlaceholders(cfg.PlaceholderDate, cfg.PlaceholderTime),
		WithLogger(log),
	}
	if cfg.OAuth.ClientID != "" {
		opts = append(opts, WithClientCredentials(cfg.OAuth))
	} else {
		opts = append(opts, WithBearerToken(token))
	}
	return NewHTTPClient(cfg.BaseURL, opts...)
}

// Upload posts each event and reports per-item outcomes in input order.
func (c *HTTPClient) Upload(ctx context.Context, events []model.Event) ([]UploadResult, error) {
	results := make([]UploadResult, len(events))
	accepted, transportFailures := 0, 0

	for i, e := range events {
		if err := ctx.Err(); err != nil {
			for j := i; j < len(events); j++ {
				results[j] = UploadResult{Err: err}
			}
			if accepted == 0 {
				return nil, fmt.Errorf("uploading events: %w", err)
			}
			break
		}

		var created Post
		err := c.do(ctx, http.MethodPost, "/posts", NewPost(e, c.userID), &created)
		switch {
		case errors.Is(err, ErrAuth):
			return nil, err
		case err != nil:
			var statusErr *StatusError
			if !errors.As(err, &statusErr) {
				transportFailures++
			}
			c.log.Warn("upload failed", zap.Int64("event_id", e.ID), zap.Error(err))
			results[i] = UploadResult{Err: err}
		default:
			id := string(created.ID)
			if id == "" {
				id = fmt.Sprintf("remote_%d_%d", c.now().UnixMilli(), e.ID)
			}
			results[i] = UploadResult{RemoteID: id}
			accepted++
		}
	}

	if len(events) > 0 && transportFailures == len(events) {
		return nil, fmt.Errorf("uploading events: remote unreachable: %w", results[0].Err)
	}
	return results, nil
}

// Download fetches the user's posts, truncated to the download limit.
func (c *HTTPClient) Download(ctx context.Context) ([]model.RemoteEvent, error) {
	var posts []Post
	path := "/posts?userId=" + url.QueryEscape(strconv.Itoa(c.userID))
	if err := c.do(ctx, http.MethodGet, path, nil, &posts); err != nil {
		return nil, fmt.Errorf("downloading events: %w", err)
	}

	if c.downloadLimit > 0 && len(posts) > c.downloadLimit {
		posts = posts[:c.downloadLimit]
	}

	events := make([]model.RemoteEvent, 0, len(posts))
	for _, p := range posts {
		if p.ID == "" {
			c.log.Warn("skipping remote post without id", zap.String("title", p.Title))
			continue
		}
		rec, err := DecodeRecurrence(p.RRule)
		if err != nil {
			c.log.Warn("ignoring remote recurrence", zap.String("remote_id", string(p.ID)), zap.Error(err))
		}
		events = append(events, model.RemoteEvent{
			RemoteID:    string(p.ID),
			Name:        p.Title,
			Date:        c.placeholderDate,
			Time:        c.placeholderTime,
			Description: p.Body,
			Recurrence:  rec,
		})
	}
	return events, nil
}

// do builds the request, bounds it with the call timeout, retries on 429
// and decodes the JSON response into result.
func (c *HTTPClient) do(
	ctx context.Context,
	method string,
	path string,
	body interface{},
	result interface{},
) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var data []byte
	if body != nil {
		var err error
		data, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		var bodyReader io.Reader
		if data != nil {
			bodyReader = bytes.NewReader(data)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		if data != nil {
			req.Header.Set("Content-Type", "application/json; charset=UTF-8")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("executing request %s %s: %w", method, path, err)
		}

		respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
		resp.Body.Close()
		if readErr != nil {
			return fmt.Errorf("reading response body: %w", readErr)
		}
		if int64(len(respBody)) > c.maxBody {
			return fmt.Errorf("response to %s %s exceeds %d bytes", method, path, c.maxBody)
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("rate limited (429) on %s %s", method, path)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryAfterDuration(resp, attempt)):
				continue
			}
		}

		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return fmt.Errorf("%w (%d) on %s %s", ErrAuth, resp.StatusCode, method, path)
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return &StatusError{
				Method: method,
				Path:   path,
				Code:   resp.StatusCode,
				Body:   strings.TrimSpace(string(respBody)),
			}
		}

		// No content to parse (e.g. 204).
		if result == nil || resp.StatusCode == http.StatusNoContent || len(bytes.TrimSpace(respBody)) == 0 {
			return nil
		}

		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshaling response from %s %s: %w", method, path, err)
		}
		return nil
	}

	return fmt.Errorf("max retries (%d) exceeded: %w", c.maxRetries, lastErr)
}

// retryAfterDuration reads the Retry-After header and computes a wait
// duration. Falls back to exponential backoff if the header is missing.
func retryAfterDuration(resp *http.Response, attempt int) time.Duration {
	if header := resp.Header.Get("Retry-After"); header != "" {
		if seconds, err := strconv.Atoi(header); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}

	// Exponential backoff: 1s, 2s, 4s, ...
	backoff := time.Duration(1<<uint(attempt)) * time.Second
	if backoff > 30*time.Second {
		backoff = 30 * time.Second
	}
	return backoff
}
