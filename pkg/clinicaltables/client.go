// Package clinicaltables is a client for the NLM Clinical Table Search
// Service, which serves ICD-10-CM and HCPCS code descriptions.
package clinicaltables

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

	"github.com/rotisserie/eris"
)

// Table is a searchable code table.
type Table string

const (
	// ICD10CM is the ICD-10-CM diagnosis code table.
	ICD10CM Table = "icd10cm"
	// HCPCS is the HCPCS Level II code table.
	HCPCS Table = "hcpcs"
)

// Client searches code tables.
type Client interface {
	Search(ctx context.Context, table Table, terms string, maxList int) (*SearchResult, error)
}

// Match is one code with its display text.
type Match struct {
	Code    string
	Display string
}

// SearchResult is a decoded search response.
type SearchResult struct {
	Total   int
	Matches []Match
}

// Exact returns the match whose code equals code, ignoring case.
func (r *SearchResult) Exact(code string) (Match, bool) {
	for _, m := range r.Matches {
		if strings.EqualFold(m.Code, code) {
			return m, true
		}
	}
	return Match{}, false
}

// APIError is a non-200 response.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("clinicaltables: unexpected status %d: %s", e.StatusCode, e.Body)
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the API base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a Clinical Tables client. The service needs no key.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL: "https://clinicaltables.nlm.nih.gov/api",
		http:    &http.Client{Timeout: 20 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// tableParams returns the per-table query parameters that make the fourth
// response element a [code, display] pair.
func tableParams(table Table) (url.Values, error) {
	v := url.Values{}
	switch table {
	case ICD10CM:
		v.Set("sf", "code,name")
		v.Set("df", "code,name")
	case HCPCS:
		v.Set("df", "code,display")
	default:
		return nil, eris.Errorf("clinicaltables: unknown table %q", table)
	}
	return v, nil
}

func (c *httpClient) Search(ctx context.Context, table Table, terms string, maxList int) (*SearchResult, error) {
	q, err := tableParams(table)
	if err != nil {
		return nil, err
	}
	q.Set("terms", terms)
	if maxList > 0 {
		q.Set("maxList", strconv.Itoa(maxList))
	}
	reqURL := fmt.Sprintf("%s/%s/v3/search?%s", c.baseURL, table, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "clinicaltables: create request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "clinicaltables: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "clinicaltables: read response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return decodeSearch(body)
}

// decodeSearch parses [total, codes, extra, displays]. displays is a list of
// string arrays whose first element is the code.
func decodeSearch(body []byte) (*SearchResult, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(body, &parts); err != nil {
		return nil, eris.Wrap(err, "clinicaltables: decode response")
	}
	if len(parts) < 4 {
		return nil, eris.Errorf("clinicaltables: response has %d elements, want 4", len(parts))
	}

	var out SearchResult
	if err := json.Unmarshal(parts[0], &out.Total); err != nil {
		return nil, eris.Wrap(err, "clinicaltables: decode total")
	}

	var rows [][]string
	if string(parts[3]) != "null" {
		if err := json.Unmarshal(parts[3], &rows); err != nil {
			return nil, eris.Wrap(err, "clinicaltables: decode displays")
		}
	}
	for _, row := range rows {
		if len(row) < 2 {
			continue
		}
		out.Matches = append(out.Matches, Match{Code: row[0], Display: strings.Join(row[1:], " ")})
	}
	return &out, nil
}
