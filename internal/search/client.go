package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
)

// DefaultBaseURL is the Tavily API root.
const DefaultBaseURL = "https://api.tavily.com"

var (
	// ErrEmptyQuery is returned when the query is blank.
	ErrEmptyQuery = errors.New("query is required")
	// ErrDisabled is returned when search is not configured.
	ErrDisabled = errors.New("search is disabled")
)

// DefaultIncludeDomains restricts results to New Zealand sites.
var DefaultIncludeDomains = []string{"govt.nz", "co.nz", "org.nz", "ac.nz"}

// unavailablePlaceholder is handed to the model when search fails.
const unavailablePlaceholder = `[{"error":"Search temporarily unavailable"}]`

// Result is one search hit as returned by Tavily.
type Result struct {
	Title         string  `json:"title"`
	URL           string  `json:"url"`
	Content       string  `json:"content"`
	Score         float64 `json:"score,omitempty"`
	PublishedDate string  `json:"published_date,omitempty"`
}

// Options configure the Tavily client.
type Options struct {
	APIKey         string
	BaseURL        string
	IncludeDomains []string
	MaxResults     int
	SearchDepth    string
	Timeout        time.Duration
	MaxRetries     uint64
}

// Client calls the Tavily search API.
type Client struct {
	apiKey         string
	endpoint       string
	includeDomains []string
	maxResults     int
	searchDepth    string
	maxRetries     uint64
	httpClient     *http.Client
}

// New returns a client, or nil when no API key is configured.
func New(opts Options) *Client {
	apiKey := strings.TrimSpace(opts.APIKey)
	if apiKey == "" {
		return nil
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	domains := opts.IncludeDomains
	if len(domains) == 0 {
		domains = DefaultIncludeDomains
	}
	maxResults := opts.MaxResults
	if maxResults <= 0 {
		maxResults = 5
	}
	depth := strings.TrimSpace(opts.SearchDepth)
	if depth == "" {
		depth = "advanced"
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		apiKey:         apiKey,
		endpoint:       baseURL + "/search",
		includeDomains: domains,
		maxResults:     maxResults,
		searchDepth:    depth,
		maxRetries:     opts.MaxRetries,
		httpClient:     &http.Client{Timeout: timeout},
	}
}

type searchRequest struct {
	APIKey         string   `json:"api_key"`
	Query          string   `json:"query"`
	SearchDepth    string   `json:"search_depth"`
	IncludeDomains []string `json:"include_domains"`
	MaxResults     int      `json:"max_results"`
}

type searchResponse struct {
	Results []Result `json:"results"`
}

// Search runs query against Tavily. Server errors are retried.
func (c *Client) Search(ctx context.Context, query string) ([]Result, error) {
	if c == nil {
		return nil, ErrDisabled
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	body, err := json.Marshal(searchRequest{
		APIKey:         c.apiKey,
		Query:          query,
		SearchDepth:    c.searchDepth,
		IncludeDomains: c.includeDomains,
		MaxResults:     c.maxResults,
	})
	if err != nil {
		return nil, err
	}

	var out searchResponse
	backoff := retry.WithMaxRetries(c.maxRetries, retry.NewExponential(250*time.Millisecond))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return retry.RetryableError(err)
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 400 {
			snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			statusErr := fmt.Errorf("tavily api error: %d %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
			if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
				return retry.RetryableError(statusErr)
			}
			return statusErr
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return fmt.Errorf("decode tavily response: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if out.Results == nil {
		out.Results = []Result{}
	}
	return out.Results, nil
}

// ResultsJSON renders results for a tool message. Any error yields the
// unavailable placeholder so the model can still answer.
func ResultsJSON(results []Result, err error) string {
	if err != nil {
		return unavailablePlaceholder
	}
	if results == nil {
		results = []Result{}
	}
	data, err := json.Marshal(results)
	if err != nil {
		return unavailablePlaceholder
	}
	return string(data)
}
