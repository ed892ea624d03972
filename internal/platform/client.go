package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fieldops/fieldsync/internal/config"
	"github.com/fieldops/fieldsync/internal/errors"
	"github.com/fieldops/fieldsync/internal/models"
)

// PageRequest identifies one bounded fetch against the external platform
type PageRequest struct {
	// ModifiedSince filters to records modified on or after this instant.
	// Nil requests the full collection.
	ModifiedSince *time.Time
	// Cursor is the continuation token from the previous page. Empty for
	// the first page of a run.
	Cursor string
}

// Fetcher is the page-level read boundary to the external platform
type Fetcher interface {
	FetchPage(ctx context.Context, desc *Descriptor, req PageRequest) (*models.Page, error)
}

// Client fetches entity pages from the external platform. It is a pure I/O
// boundary: one request per FetchPage call, typed errors, no internal
// retries. The retry policy belongs to the sync loop.
type Client struct {
	httpClient *http.Client
	creds      CredentialProvider
	baseURL    string
	logger     *logrus.Logger
	buffer     int

	// rlMu guards rateLimit; FetchPage is called from concurrent entity loops
	rlMu      sync.Mutex
	rateLimit RateLimitInfo
}

// NewClient creates a new platform client
func NewClient(cfg *config.PlatformConfig, creds CredentialProvider, logger *logrus.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		creds:      creds,
		baseURL:    cfg.BaseURL,
		logger:     logger,
		buffer:     cfg.RateLimit.RemainingBuffer,
	}
}

// pageEnvelope is the platform's pagination wire shape
type pageEnvelope struct {
	Data         []json.RawMessage `json:"data"`
	HasMore      bool              `json:"hasMore"`
	ContinueFrom *string           `json:"continueFrom"`
}

// FetchPage performs one bounded request for one entity type
func (c *Client) FetchPage(ctx context.Context, desc *Descriptor, req PageRequest) (*models.Page, error) {
	c.waitForRateLimit()

	endpoint, err := c.pageURL(desc, req)
	if err != nil {
		return nil, errors.WithContext(err, desc.Name, "fetch_page")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, errors.WithContext(errors.NewValidationError("failed to build request", err), desc.Name, "fetch_page")
	}

	token, err := c.creds.Token(ctx)
	if err != nil {
		return nil, errors.WithContext(err, desc.Name, "fetch_page")
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.WithContext(errors.NewTransientError("request cancelled or timed out", err), desc.Name, "fetch_page")
		}
		return nil, errors.WithContext(errors.NewTransientError("request failed", err), desc.Name, "fetch_page")
	}
	defer resp.Body.Close()

	c.updateRateLimitInfo(resp)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.WithContext(errors.NewTransientError("failed to read response body", err), desc.Name, "fetch_page")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, errors.WithContext(classify(resp.StatusCode, string(body)), desc.Name, "fetch_page")
	}

	var envelope pageEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, errors.WithContext(errors.NewValidationError("failed to decode page envelope", err), desc.Name, "fetch_page")
	}

	page := &models.Page{
		Records: make([]models.NormalizedRecord, 0, len(envelope.Data)),
		HasMore: envelope.HasMore,
	}
	if envelope.ContinueFrom != nil {
		page.NextCursor = *envelope.ContinueFrom
	}
	for _, raw := range envelope.Data {
		rec, err := desc.MapRecord(raw)
		if err != nil {
			return nil, errors.WithContext(err, desc.Name, "map_record")
		}
		page.Records = append(page.Records, *rec)
	}

	c.logger.WithFields(logrus.Fields{
		"entity":   desc.Name,
		"records":  len(page.Records),
		"has_more": page.HasMore,
	}).Debug("Fetched page from platform")

	return page, nil
}

func (c *Client) pageURL(desc *Descriptor, req PageRequest) (string, error) {
	u, err := url.Parse(c.baseURL + desc.Endpoint)
	if err != nil {
		return "", errors.NewValidationError(fmt.Sprintf("invalid endpoint for %s", desc.Name), err)
	}

	query := url.Values{}
	query.Set("pageSize", strconv.Itoa(desc.PageSize))
	if req.ModifiedSince != nil {
		query.Set("modifiedOnOrAfter", req.ModifiedSince.UTC().Format(time.RFC3339))
	}
	if req.Cursor != "" {
		query.Set("continueFrom", req.Cursor)
	}
	u.RawQuery = query.Encode()
	return u.String(), nil
}

// updateRateLimitInfo records rate limit state from response headers
func (c *Client) updateRateLimitInfo(resp *http.Response) {
	c.rlMu.Lock()
	defer c.rlMu.Unlock()

	if limit := resp.Header.Get("X-RateLimit-Limit"); limit != "" {
		c.rateLimit.Limit, _ = strconv.Atoi(limit)
	}
	if remaining := resp.Header.Get("X-RateLimit-Remaining"); remaining != "" {
		c.rateLimit.Remaining, _ = strconv.Atoi(remaining)
	}
	if reset := resp.Header.Get("X-RateLimit-Reset"); reset != "" {
		if resetUnix, err := strconv.ParseInt(reset, 10, 64); err == nil {
			c.rateLimit.ResetTime = time.Unix(resetUnix, 0)
		}
	}
	if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
		if seconds, err := strconv.ParseInt(retryAfter, 10, 64); err == nil {
			c.rateLimit.RetryAfter = time.Now().Add(time.Duration(seconds) * time.Second)
		}
	}
}

// waitForRateLimit blocks before a request when the platform has signalled
// we are close to the limit, instead of burning a request on a 429. The wait
// is computed under the lock but slept outside it so other loops are not
// serialized behind one waiter.
func (c *Client) waitForRateLimit() {
	c.rlMu.Lock()
	var wait time.Duration
	if c.rateLimit.Limit > 0 && c.rateLimit.Remaining <= c.buffer {
		if d := time.Until(c.rateLimit.ResetTime); d > wait {
			wait = d
		}
	}
	if !c.rateLimit.RetryAfter.IsZero() {
		if d := time.Until(c.rateLimit.RetryAfter); d > wait {
			wait = d
		}
		c.rateLimit.RetryAfter = time.Time{}
	}
	c.rlMu.Unlock()

	if wait > 0 {
		c.logger.Warnf("Rate limit nearly exceeded, waiting %v before next request", wait)
		time.Sleep(wait)
	}
}
