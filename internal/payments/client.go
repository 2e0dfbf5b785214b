// Package payments fetches charges from the external payment provider
// for reconciliation.
package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/ovalline/opsdesk/internal/domain"
)

// Client lists provider charges. Implementations must page internally:
// callers get the complete window, never just the first page.
type Client interface {
	ListChargesSince(ctx context.Context, since time.Time) ([]domain.ProviderCharge, error)
}

// HTTPClient is the production implementation against the provider's
// cursor-paginated charges endpoint.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	pageSize   int
	httpClient *http.Client
}

func NewHTTPClient(baseURL, apiKey string) *HTTPClient {
	return &HTTPClient{
		baseURL:  baseURL,
		apiKey:   apiKey,
		pageSize: 100,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

type chargesPage struct {
	Data    []domain.ProviderCharge `json:"data"`
	HasMore bool                    `json:"has_more"`
}

// ListChargesSince walks the cursor until the provider reports no more
// pages, so a reconciliation window is always exhaustive.
func (c *HTTPClient) ListChargesSince(ctx context.Context, since time.Time) ([]domain.ProviderCharge, error) {
	var charges []domain.ProviderCharge
	startingAfter := ""

	for {
		page, err := c.fetchPage(ctx, since, startingAfter)
		if err != nil {
			return nil, err
		}

		charges = append(charges, page.Data...)

		if !page.HasMore || len(page.Data) == 0 {
			return charges, nil
		}
		startingAfter = page.Data[len(page.Data)-1].ID
	}
}

func (c *HTTPClient) fetchPage(ctx context.Context, since time.Time, startingAfter string) (*chargesPage, error) {
	q := url.Values{}
	q.Set("created_after", strconv.FormatInt(since.Unix(), 10))
	q.Set("limit", strconv.Itoa(c.pageSize))
	if startingAfter != "" {
		q.Set("starting_after", startingAfter)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/charges?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating charges request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("charges request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		// Summarize; provider bodies stay opaque.
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("charges request failed with status %d", resp.StatusCode)
	}

	var page chargesPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("decoding charges page: %w", err)
	}
	return &page, nil
}
