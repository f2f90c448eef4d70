package classroom

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"classroom-sync-service/internal/config"
	"classroom-sync-service/internal/logger"
	syncerrors "classroom-sync-service/pkg/errors"
)

// Client calls the remote classroom API. The credential handle is passed
// in at construction and threaded through every request; there is no
// package-level client state.
type Client struct {
	cfg         config.ClassroomConfig
	httpClient  *http.Client
	tokenSource oauth2.TokenSource
}

func NewClient(cfg config.ClassroomConfig, ts oauth2.TokenSource) *Client {
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.GetTimeout(),
		},
		tokenSource: ts,
	}
}

// ListCourses pages through all courses in server-returned order.
func (c *Client) ListCourses(ctx context.Context) ([]Course, error) {
	var all []Course
	pageToken := ""
	for {
		var resp coursesResponse
		err := c.getPage(ctx, "/v1/courses", pageToken, &resp)
		if err != nil {
			return nil, err
		}
		all = append(all, resp.Courses...)
		if resp.NextPageToken == "" {
			return all, nil
		}
		pageToken = resp.NextPageToken
	}
}

// ListCourseWork pages through all coursework for one course.
func (c *Client) ListCourseWork(ctx context.Context, courseID string) ([]CourseWork, error) {
	path := fmt.Sprintf("/v1/courses/%s/courseWork", url.PathEscape(courseID))

	var all []CourseWork
	pageToken := ""
	for {
		var resp courseWorkResponse
		err := c.getPage(ctx, path, pageToken, &resp)
		if err != nil {
			return nil, err
		}
		all = append(all, resp.CourseWork...)
		if resp.NextPageToken == "" {
			return all, nil
		}
		pageToken = resp.NextPageToken
	}
}

// ListSubmissions pages through submissions for one coursework item.
func (c *Client) ListSubmissions(ctx context.Context, courseID, courseWorkID string) ([]StudentSubmission, error) {
	path := fmt.Sprintf("/v1/courses/%s/courseWork/%s/studentSubmissions",
		url.PathEscape(courseID), url.PathEscape(courseWorkID))

	var all []StudentSubmission
	pageToken := ""
	for {
		var resp submissionsResponse
		err := c.getPage(ctx, path, pageToken, &resp)
		if err != nil {
			return nil, err
		}
		all = append(all, resp.StudentSubmissions...)
		if resp.NextPageToken == "" {
			return all, nil
		}
		pageToken = resp.NextPageToken
	}
}

// getPage fetches one page, retrying transient failures with backoff. A
// non-transient failure or an exhausted retry budget escalates so the
// caller never sees a silently truncated page set.
func (c *Client) getPage(ctx context.Context, path, pageToken string, out interface{}) error {
	attempts := c.cfg.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}
	delay := c.cfg.GetRetryDelay()

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			logger.Log.Debug("Retrying page fetch",
				zap.String("path", path),
				zap.Int("attempt", attempt),
			)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
			delay *= 2
		}

		err := c.doGet(ctx, path, pageToken, out)
		if err == nil {
			return nil
		}
		if !syncerrors.IsTransient(err) {
			return err
		}
		lastErr = err
	}

	return fmt.Errorf("retries exhausted after %d attempts: %w", attempts, lastErr)
}

func (c *Client) doGet(ctx context.Context, path, pageToken string, out interface{}) error {
	u, err := url.Parse(c.cfg.BaseURL + path)
	if err != nil {
		return fmt.Errorf("invalid request URL: %w", err)
	}
	q := u.Query()
	if c.cfg.PageSize > 0 {
		q.Set("pageSize", strconv.Itoa(c.cfg.PageSize))
	}
	if pageToken != "" {
		q.Set("pageToken", pageToken)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	token, err := c.tokenSource.Token()
	if err != nil {
		return fmt.Errorf("failed to get credential: %w", err)
	}
	token.SetAuthHeader(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return syncerrors.NewTransientError(err, "HTTP request failed")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return syncerrors.NewTransientError(fmt.Errorf("HTTP %d", resp.StatusCode), "rate limited")
	case resp.StatusCode >= 500:
		return syncerrors.NewTransientError(fmt.Errorf("HTTP %d", resp.StatusCode), "remote server error")
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("remote API returned status %d: %s", resp.StatusCode, string(body))
	}
}
