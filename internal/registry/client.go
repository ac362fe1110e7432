// Package registry queries the CNPJA business registry for newly founded offices.
package registry

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	appErrors "github.com/unclebandit/prospect-pipeline/internal/errors"
)

const serviceName = "cnpja"

// Client lists offices by founding date.
type Client interface {
	// FetchOffices returns one page of offices founded in [from, to]. token is
	// the cursor from the previous page, empty for the first one.
	FetchOffices(ctx context.Context, from, to time.Time, token string) (*Page, error)
}

// Page is one decoded /office response.
type Page struct {
	Offices []Office
	Next    string
}

// Option configures the CNPJA client.
type Option func(*httpClient)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithPageSize sets the limit query parameter.
func WithPageSize(n int) Option {
	return func(c *httpClient) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

type httpClient struct {
	baseURL  string
	apiKey   string
	pageSize int
	http     *http.Client
}

// NewClient creates a CNPJA client. A missing API key is reported on first use.
func NewClient(baseURL, apiKey string, timeout time.Duration, opts ...Option) Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &httpClient{
		baseURL:  strings.TrimRight(baseURL, "/"),
		apiKey:   apiKey,
		pageSize: 50,
		http:     &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) FetchOffices(ctx context.Context, from, to time.Time, token string) (*Page, error) {
	if c.apiKey == "" {
		return nil, appErrors.NewConfigError("CNPJA_API_KEY")
	}

	q := url.Values{}
	q.Set("founded.gte", from.Format(time.DateOnly))
	q.Set("founded.lte", to.Format(time.DateOnly))
	q.Set("limit", strconv.Itoa(c.pageSize))
	if token != "" {
		q.Set("token", token)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/office?"+q.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "cnpja: create request")
	}
	req.Header.Set("Authorization", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, appErrors.NewUnreachable(serviceName, eris.Wrap(err, "cnpja: request failed"))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, appErrors.NewUnreachable(serviceName, eris.Wrap(err, "cnpja: read response body"))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, appErrors.NewCollaboratorError(serviceName, resp.StatusCode, string(body))
	}

	items, next := ExtractItems(body)
	page := &Page{Next: next, Offices: make([]Office, 0, len(items))}
	for _, item := range items {
		page.Offices = append(page.Offices, NormalizeOffice(item))
	}
	return page, nil
}
