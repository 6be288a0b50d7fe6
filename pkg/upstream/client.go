package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Record is one raw upstream object. The full payload is kept verbatim so
// fields the mirror does not model yet stay accessible.
type Record map[string]interface{}

// Page is one page of the upstream's paginated listing. Remaining is the
// upstream's count of records beyond this page; the client never computes
// total pages on its own.
type Page struct {
	Results   []Record
	Cursor    int
	Remaining int
}

// Constraint predicate types understood by the upstream.
const (
	ConstraintEquals       = "equals"
	ConstraintTextContains = "text contains"
	ConstraintGreaterThan  = "greater than"
	ConstraintLessThan     = "less than"
)

type Constraint struct {
	Key            string `json:"key"`
	ConstraintType string `json:"constraint_type"`
	Value          string `json:"value"`
}

// ModifiedAfter builds the incremental-sync watermark constraint.
func ModifiedAfter(t time.Time) Constraint {
	return Constraint{
		Key:            "Modified Date",
		ConstraintType: ConstraintGreaterThan,
		Value:          t.UTC().Format("2006-01-02T15:04:05.000Z"),
	}
}

// FetchOptions carries optional listing parameters.
type FetchOptions struct {
	SortField  string
	Descending bool
}

var (
	// ErrAuthMissing means no API credential is configured. Fatal, never retried.
	ErrAuthMissing = errors.New("upstream: API key not configured")
	// ErrTimeout means the per-call deadline was exceeded. The caller may retry
	// the same cursor.
	ErrTimeout = errors.New("upstream: request timed out")
)

// HTTPError is a non-200 response from the upstream.
type HTTPError struct {
	Status int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("upstream: API error: status %d", e.Status)
}

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// HasCredential reports whether an API key is configured.
func (c *Client) HasCredential() bool {
	return c.apiKey != ""
}

// envelope is the standard response wrapper. Legacy deployments return the
// page fields at the top level instead; both shapes are accepted.
type envelope struct {
	Response *pageBody `json:"response"`
	pageBody
}

type pageBody struct {
	Results   []Record `json:"results"`
	Cursor    int      `json:"cursor"`
	Remaining int      `json:"remaining"`
}

// FetchPage issues one paginated GET against {base}/{dataType}. Stateless per
// call; the caller owns cursor advancement.
func (c *Client) FetchPage(ctx context.Context, dataType string, cursor, limit int, constraints []Constraint, opts *FetchOptions) (*Page, error) {
	if c.apiKey == "" {
		return nil, ErrAuthMissing
	}

	params := url.Values{}
	params.Set("cursor", strconv.Itoa(cursor))
	params.Set("limit", strconv.Itoa(limit))
	if len(constraints) > 0 {
		encoded, err := json.Marshal(constraints)
		if err != nil {
			return nil, fmt.Errorf("upstream: encoding constraints: %w", err)
		}
		params.Set("constraints", string(encoded))
	}
	if opts != nil && opts.SortField != "" {
		params.Set("sort_field", opts.SortField)
		params.Set("descending", strconv.FormatBool(opts.Descending))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+dataType+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, ErrTimeout
		}
		return nil, fmt.Errorf("upstream: fetching %s: %w", dataType, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, &HTTPError{Status: resp.StatusCode}
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("upstream: decoding %s response: %w", dataType, err)
	}

	body := env.pageBody
	if env.Response != nil {
		body = *env.Response
	}
	return &Page{
		Results:   body.Results,
		Cursor:    body.Cursor,
		Remaining: body.Remaining,
	}, nil
}

// GetTotalCount fetches a 1-item page and adds the reported remainder.
func (c *Client) GetTotalCount(ctx context.Context, dataType string, constraints []Constraint) (int, error) {
	page, err := c.FetchPage(ctx, dataType, 0, 1, constraints, nil)
	if err != nil {
		return 0, err
	}
	return len(page.Results) + page.Remaining, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
