// Package square fetches entity records from the Square REST API.
package square

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

	"github.com/mrlokans/possync/internal/config"
	"github.com/mrlokans/possync/internal/logger"
	"github.com/mrlokans/possync/internal/registry"
)

const (
	defaultTimeout     = 30 * time.Second
	defaultMaxAttempts = 4
	locationChunkSize = 10
	maxErrorBodyBytes = 4096
)

// MirroredLocation is a location already stored in the mirror. FirstSeen is
// the time the mirror first stored it.
type MirroredLocation struct {
	ID        string
	FirstSeen time.Time
}

// LocationSource lists the mirrored locations. Endpoints that must be scoped
// by location read them from here.
type LocationSource interface {
	MirroredLocations(ctx context.Context) ([]MirroredLocation, error)
}

// Record is one remote object as returned by the API.
type Record struct {
	ID      string
	SubType string
	Raw     json.RawMessage
}

type FetchResult struct {
	Records []Record
	Pages   int
}

// Client interfaces with the Square API
type Client struct {
	httpClient     *http.Client
	baseURL        string
	token          string
	apiVersion     string
	requestTimeout time.Duration
	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	pageLimit      int
	locations      LocationSource
	log            logger.Logger
	jitter         func(time.Duration) time.Duration
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithLocationSource(src LocationSource) Option {
	return func(c *Client) { c.locations = src }
}

// NewClient creates a new Square API client
func NewClient(cfg config.Square, log logger.Logger, opts ...Option) *Client {
	c := &Client{
		httpClient:     &http.Client{},
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		token:          cfg.AccessToken,
		apiVersion:     cfg.APIVersion,
		requestTimeout: cfg.RequestTimeout,
		maxAttempts:    cfg.MaxAttempts,
		initialBackoff: cfg.InitialBackoff,
		maxBackoff:     cfg.MaxBackoff,
		pageLimit:      cfg.PageLimit,
		log:            log.With("component", "square"),
		jitter:         fullJitter,
	}
	if c.requestTimeout <= 0 {
		c.requestTimeout = defaultTimeout
	}
	if c.maxAttempts <= 0 {
		c.maxAttempts = defaultMaxAttempts
	}
	if c.maxBackoff < c.initialBackoff {
		c.maxBackoff = c.initialBackoff
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Ready reports whether the client can make authenticated calls.
func (c *Client) Ready() error {
	if strings.TrimSpace(c.token) == "" {
		return ErrMissingCredentials
	}
	if c.baseURL == "" {
		return errors.New("square base URL is not configured")
	}
	return nil
}

// Fetch retrieves every record of one entity type changed at or after the
// watermark. A nil watermark, or a type without watermark support, fetches
// the full remote set. The context is checked between pages.
//
// Location scoped types fail with ErrNoLocations while the mirror holds no
// locations. Locations first mirrored at or after the watermark are fetched
// without it, since the watermark never covered them.
func (c *Client) Fetch(ctx context.Context, desc registry.Descriptor, watermark *time.Time) (*FetchResult, error) {
	if err := c.Ready(); err != nil {
		return nil, err
	}
	if !desc.SupportsWatermark {
		watermark = nil
	}

	scopes := []fetchScope{{watermark: watermark}}
	if desc.ScopeByLocation {
		var err error
		if scopes, err = c.locationScopes(ctx, watermark); err != nil {
			return nil, err
		}
	}

	subTypes := desc.SubObjectTypes
	if len(subTypes) == 0 {
		subTypes = []string{""}
	}

	result := &FetchResult{}
	for _, scope := range scopes {
		for _, subType := range subTypes {
			if err := c.fetchAll(ctx, desc, pageQuery{
				watermark:   scope.watermark,
				subType:     subType,
				locationIDs: scope.locationIDs,
				limit:       c.limitFor(desc),
			}, result); err != nil {
				return nil, err
			}
		}
	}

	c.log.Debug("fetch complete",
		"entity_type", desc.Type,
		"records", len(result.Records),
		"pages", result.Pages,
	)
	return result, nil
}

func (c *Client) fetchAll(ctx context.Context, desc registry.Descriptor, q pageQuery, result *FetchResult) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		page, err := c.fetchPage(ctx, desc, q)
		if err != nil {
			return err
		}

		result.Records = append(result.Records, page.records...)
		result.Pages++

		if page.cursor == "" {
			return nil
		}
		q.cursor = page.cursor
	}
}

// fetchScope is one request sequence: a chunk of location ids and the
// watermark that applies to all of them.
type fetchScope struct {
	locationIDs []string
	watermark   *time.Time
}

func (c *Client) locationScopes(ctx context.Context, watermark *time.Time) ([]fetchScope, error) {
	if c.locations == nil {
		return nil, errors.New("no location source configured for location scoped fetch")
	}
	locations, err := c.locations.MirroredLocations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list locations: %w", err)
	}
	if len(locations) == 0 {
		return nil, ErrNoLocations
	}

	var covered, fresh []string
	for _, loc := range locations {
		if watermark != nil && loc.FirstSeen.Before(*watermark) {
			covered = append(covered, loc.ID)
		} else {
			fresh = append(fresh, loc.ID)
		}
	}
	if watermark != nil && len(fresh) > 0 {
		c.log.Info("fetching full history for new locations", "locations", fresh)
	}

	scopes := chunkLocations(covered, watermark)
	return append(scopes, chunkLocations(fresh, nil)...), nil
}

func chunkLocations(ids []string, watermark *time.Time) []fetchScope {
	var scopes []fetchScope
	for start := 0; start < len(ids); start += locationChunkSize {
		end := min(start+locationChunkSize, len(ids))
		scopes = append(scopes, fetchScope{locationIDs: ids[start:end], watermark: watermark})
	}
	return scopes
}

func (c *Client) limitFor(desc registry.Descriptor) int {
	if desc.PageLimit <= 0 {
		return 0
	}
	if c.pageLimit > 0 && c.pageLimit < desc.PageLimit {
		return c.pageLimit
	}
	return desc.PageLimit
}

// fetchPage performs one page request, retrying transient failures with
// jittered exponential backoff.
func (c *Client) fetchPage(ctx context.Context, desc registry.Descriptor, q pageQuery) (*page, error) {
	var lastErr error

	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if attempt > 0 {
			delay := c.retryDelay(attempt)
			c.log.Warn("retrying request",
				"entity_type", desc.Type,
				"attempt", attempt+1,
				"delay", delay.String(),
				"error", lastErr,
			)
			if err := sleepContext(ctx, delay); err != nil {
				return nil, err
			}
		}

		p, err := c.doRequest(ctx, desc, q)
		if err == nil {
			return p, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err

		if !isRetryableError(err) {
			return nil, err
		}
	}

	return nil, fmt.Errorf("gave up after %d attempts: %w", c.maxAttempts, lastErr)
}

func (c *Client) doRequest(ctx context.Context, desc registry.Descriptor, q pageQuery) (*page, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	target, body, err := buildRequest(c.baseURL, desc, q)
	if err != nil {
		return nil, err
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(reqCtx, desc.Method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if c.apiVersion != "" {
		req.Header.Set("Square-Version", c.apiVersion)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, ErrUnauthorized
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, ErrRateLimited
	}
	if resp.StatusCode >= 500 {
		return nil, &ServerError{StatusCode: resp.StatusCode}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, decodeAPIError(resp)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	return decodePage(raw, desc.ResultKey)
}

func decodeAPIError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))

	var envelope struct {
		Errors []struct {
			Code   string `json:"code"`
			Detail string `json:"detail"`
		} `json:"errors"`
	}
	apiErr := &APIError{StatusCode: resp.StatusCode, Detail: strings.TrimSpace(string(body))}
	if json.Unmarshal(body, &envelope) == nil && len(envelope.Errors) > 0 {
		apiErr.Code = envelope.Errors[0].Code
		apiErr.Detail = envelope.Errors[0].Detail
	}
	return apiErr
}
