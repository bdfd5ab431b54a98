package unsplash

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	apperrors "github.com/alisonjoe/unsplash-downloader/pkg/errors"
	"github.com/alisonjoe/unsplash-downloader/pkg/logger"
	"github.com/alisonjoe/unsplash-downloader/pkg/ratelimit"
	"github.com/alisonjoe/unsplash-downloader/pkg/retry"
)

// Client talks to the Unsplash API. Every request is paced by the limiter
// and authenticated with the application's access key.
type Client struct {
	httpClient *http.Client
	accessKey  string
	baseURL    string
	limiter    ratelimit.Limiter
	retrier    *retry.APIRetrier
	logger     logger.Logger
}

// Options configures a Client
type Options struct {
	AccessKey          string
	BaseURL            string
	Timeout            time.Duration
	RequestsPerHour    int
	MinRequestInterval time.Duration
	MaxRetries         int
	Logger             logger.Logger
}

// NewClient creates a new Unsplash API client
func NewClient(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = logger.GetLogger()
	}

	var limiters []ratelimit.Limiter
	if opts.RequestsPerHour > 0 {
		limiters = append(limiters, ratelimit.NewSlidingWindow(opts.RequestsPerHour, time.Hour))
	}
	if opts.MinRequestInterval > 0 {
		limiters = append(limiters, ratelimit.NewPacer(opts.MinRequestInterval))
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: opts.Timeout,
		},
		accessKey: opts.AccessKey,
		baseURL:   opts.BaseURL,
		limiter:   ratelimit.NewCombined(limiters...),
		retrier:   retry.NewAPIRetrier(opts.MaxRetries, opts.Logger),
		logger:    opts.Logger,
	}
}

// SetRetrier replaces the retrier, mainly to shorten backoffs in tests
func (c *Client) SetRetrier(r *retry.APIRetrier) {
	c.retrier = r
}

// doRequest performs a paced, authenticated HTTP request
func (c *Client) doRequest(ctx context.Context, url string) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &apperrors.Error{
			Type:    apperrors.ErrorTypeUnknown,
			Message: fmt.Sprintf("failed to create request: %v", err),
		}
	}

	req.Header.Set("Authorization", "Client-ID "+c.accessKey)
	req.Header.Set("Accept-Version", APIVersion)

	start := time.Now()
	c.logger.DebugWithFields("sending HTTP request", map[string]interface{}{
		"method": req.Method,
		"url":    req.URL.String(),
	})

	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)

	if err != nil {
		c.logger.ErrorWithFields("HTTP request failed", map[string]interface{}{
			"method":   req.Method,
			"url":      req.URL.String(),
			"error":    err.Error(),
			"duration": duration,
		})
		return nil, &apperrors.Error{
			Type:    apperrors.ErrorTypeNetwork,
			Message: fmt.Sprintf("network error: %v", err),
			Code:    0,
		}
	}

	logger.LogRequest(c.logger, req.Method, req.URL.String(), resp.StatusCode, duration)

	return resp, nil
}

// GetJSON performs a GET request with retry and decodes the JSON response
func (c *Client) GetJSON(ctx context.Context, url string, target interface{}) error {
	return c.retrier.Do(ctx, func() error {
		return c.getJSONOnce(ctx, url, target)
	})
}

func (c *Client) getJSONOnce(ctx context.Context, url string, target interface{}) error {
	resp, err := c.doRequest(ctx, url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkResponseStatus(resp); err != nil {
		return err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &apperrors.Error{
			Type:    apperrors.ErrorTypeNetwork,
			Message: fmt.Sprintf("failed to read response body: %v", err),
			Code:    resp.StatusCode,
		}
	}

	if err := json.Unmarshal(body, target); err != nil {
		bodyPreview := string(body)
		if len(bodyPreview) > 200 {
			bodyPreview = bodyPreview[:200] + "..."
		}

		c.logger.ErrorWithFields("failed to parse JSON response", map[string]interface{}{
			"url":          url,
			"status":       resp.StatusCode,
			"error":        err.Error(),
			"body_preview": bodyPreview,
		})
		return &apperrors.Error{
			Type:    apperrors.ErrorTypeParsing,
			Message: fmt.Sprintf("failed to parse JSON: %v", err),
			Code:    resp.StatusCode,
		}
	}

	return nil
}

// checkResponseStatus maps HTTP status codes to typed errors
func (c *Client) checkResponseStatus(resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusUnauthorized, http.StatusForbidden:
		c.logger.WarnWithFields("authentication error", map[string]interface{}{
			"status": resp.StatusCode,
			"url":    resp.Request.URL.String(),
		})
		return &apperrors.Error{
			Type:    apperrors.ErrorTypeAuth,
			Message: "invalid or missing access key",
			Code:    resp.StatusCode,
		}
	case http.StatusNotFound:
		return &apperrors.Error{
			Type:    apperrors.ErrorTypeNotFound,
			Message: "resource not found",
			Code:    resp.StatusCode,
		}
	case http.StatusTooManyRequests:
		logger.LogRateLimit(c.logger, resp.Request.URL.Path, resp.Header.Get("X-Ratelimit-Remaining"))
		return &apperrors.Error{
			Type:    apperrors.ErrorTypeRateLimit,
			Message: "rate limit exceeded",
			Code:    resp.StatusCode,
		}
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		c.logger.ErrorWithFields("server error", map[string]interface{}{
			"status": resp.StatusCode,
			"url":    resp.Request.URL.String(),
		})
		return &apperrors.Error{
			Type:    apperrors.ErrorTypeServerError,
			Message: "server error",
			Code:    resp.StatusCode,
		}
	default:
		if resp.StatusCode >= 400 {
			// Unlisted but retryable codes still get another attempt
			errType := apperrors.ErrorTypeUnknown
			if apperrors.IsRetryableStatusCode(resp.StatusCode) {
				errType = apperrors.ErrorTypeServerError
			}
			return &apperrors.Error{
				Type:    errType,
				Message: fmt.Sprintf("unexpected status code: %d", resp.StatusCode),
				Code:    resp.StatusCode,
			}
		}
		return nil
	}
}

// ListPhotos fetches one page of the editorial feed. An empty slice with a
// nil error means the feed is exhausted.
func (c *Client) ListPhotos(ctx context.Context, page, perPage int) ([]Photo, error) {
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}

	url := listPhotosURL(c.baseURL, page, perPage)

	c.logger.DebugWithFields("fetching photo page", map[string]interface{}{
		"page":     page,
		"per_page": perPage,
	})

	var photos []Photo
	if err := c.GetJSON(ctx, url, &photos); err != nil {
		c.logger.ErrorWithFields("failed to fetch photo page", map[string]interface{}{
			"page":  page,
			"error": err.Error(),
		})
		return nil, err
	}

	c.logger.DebugWithFields("fetched photo page", map[string]interface{}{
		"page":  page,
		"count": len(photos),
	})

	return photos, nil
}
