package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	appLog "meetfeed/internal/log"
	"meetfeed/internal/model"
)

const defaultTimeout = 15 * time.Second

// FetchError is returned for any failed fetch: transport error, non-2xx
// status, or an undecodable body. No partial data accompanies it.
type FetchError struct {
	URL        string
	StatusCode int // 0 when no response was received
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch meetings from %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch meetings from %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Fetcher retrieves the raw meeting list. It does not retry or cache.
type Fetcher struct {
	client *http.Client
	url    string
}

type FetcherOption func(*Fetcher)

// WithHTTPClient replaces the default client (15s timeout).
func WithHTTPClient(c *http.Client) FetcherOption {
	return func(f *Fetcher) { f.client = c }
}

func WithTimeout(d time.Duration) FetcherOption {
	return func(f *Fetcher) {
		if d > 0 {
			f.client = &http.Client{Timeout: d}
		}
	}
}

func NewFetcher(feedURL string, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		client: &http.Client{Timeout: defaultTimeout},
		url:    feedURL,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch issues a single GET with the bearer token and decodes the JSON
// array of meetings.
func (f *Fetcher) Fetch(ctx context.Context, bearerToken string) ([]model.Meeting, error) {
	if f.url == "" {
		return nil, &FetchError{Err: errors.New("feed URL is empty")}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, &FetchError{URL: redactURL(f.url), Err: err}
	}

	requestID := uuid.NewString()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+bearerToken)
	req.Header.Set("X-Request-ID", requestID)

	appLog.Debug("feed fetch start", "url", redactURL(f.url), "request_id", requestID)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: redactURL(f.url), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &FetchError{
			URL:        redactURL(f.url),
			StatusCode: resp.StatusCode,
			Err:        errors.New(resp.Status),
		}
	}

	var meetings []model.Meeting
	if err := json.NewDecoder(resp.Body).Decode(&meetings); err != nil {
		return nil, &FetchError{
			URL:        redactURL(f.url),
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("decode body: %w", err),
		}
	}
	if meetings == nil {
		meetings = []model.Meeting{}
	}

	appLog.Info("feed fetch success", "url", redactURL(f.url), "request_id", requestID, "status", resp.StatusCode, "count", len(meetings))
	return meetings, nil
}

// redactURL keeps scheme and host only, so tokens or ids in the path or
// query never reach the logs.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "(redacted)"
	}
	if u.Path == "" && u.RawQuery == "" {
		return u.Scheme + "://" + u.Host
	}
	return u.Scheme + "://" + u.Host + "/...(redacted)"
}
