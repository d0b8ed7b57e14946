package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"biometric-attendance-sync/internal/config"
	"biometric-attendance-sync/internal/logger"
	"biometric-attendance-sync/internal/model"
	"biometric-attendance-sync/pkg/errors"

	"github.com/rs/zerolog"
)

// Client reads students and class schedules from the host school system's
// REST API. It implements StudentLookup and ScheduleLookup.
type Client struct {
	cfg         config.DirectoryConfig
	httpClient  *http.Client
	authManager *AuthManager
	log         zerolog.Logger
}

func NewClient(cfg config.DirectoryConfig) *Client {
	httpClient := &http.Client{
		Timeout: cfg.Timeout,
	}
	return &Client{
		cfg:         cfg,
		httpClient:  httpClient,
		authManager: NewAuthManager(cfg, httpClient),
		log:         logger.Get(),
	}
}

func (c *Client) GetStudent(ctx context.Context, tenantID string, studentID int64) (*model.Student, error) {
	endpoint := fmt.Sprintf("%s%s/%d", c.cfg.BaseURL, c.cfg.StudentsEndpoint, studentID)

	var student model.Student
	found, err := c.getJSON(ctx, tenantID, endpoint, &student)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch student %d: %w", studentID, err)
	}
	if !found {
		return nil, errors.NewNotFoundError("student", studentID)
	}

	return &student, nil
}

func (c *Client) FindByClassAndDay(ctx context.Context, tenantID string, classID int64, dayOfWeek int) (*model.Schedule, error) {
	params := url.Values{}
	params.Add("classId", strconv.FormatInt(classID, 10))
	params.Add("dayOfWeek", strconv.Itoa(dayOfWeek))
	endpoint := c.cfg.BaseURL + c.cfg.SchedulesEndpoint + "?" + params.Encode()

	var schedules []model.Schedule
	found, err := c.getJSON(ctx, tenantID, endpoint, &schedules)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch schedules for class %d: %w", classID, err)
	}
	if !found {
		return nil, nil
	}

	return Earliest(schedules), nil
}

// getJSON GETs endpoint into out, retrying transient failures with a linear
// backoff. found is false on 404.
func (c *Client) getJSON(ctx context.Context, tenantID, endpoint string, out interface{}) (bool, error) {
	attempts := c.cfg.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return false, ctx.Err()
			case <-time.After(c.cfg.RetryDelay * time.Duration(attempt)):
			}
		}

		found, err := c.doGet(ctx, tenantID, endpoint, out)
		if err == nil {
			return found, nil
		}
		if !errors.IsRetryable(err) {
			return false, err
		}

		lastErr = err
		c.log.Warn().Err(err).Int("attempt", attempt+1).Str("url", endpoint).Msg("Directory request failed, retrying")
	}

	return false, lastErr
}

func (c *Client) doGet(ctx context.Context, tenantID, endpoint string, out interface{}) (bool, error) {
	token, err := c.authManager.GetToken(ctx)
	if err != nil {
		return false, errors.NewRetryableError(err, "failed to get auth token")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Tenant-ID", tenantID)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, errors.NewRetryableError(err, "HTTP request failed")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return false, fmt.Errorf("failed to decode response: %w", err)
		}
		return true, nil
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	case resp.StatusCode == http.StatusUnauthorized:
		c.authManager.Invalidate()
		return false, errors.NewRetryableError(fmt.Errorf("unauthorized"), "authentication failed")
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return false, errors.NewRetryableError(fmt.Errorf("HTTP %d", resp.StatusCode), "directory unavailable")
	default:
		body, _ := io.ReadAll(resp.Body)
		return false, fmt.Errorf("%w: status %d: %s", errors.ErrDirectoryAPIError, resp.StatusCode, string(body))
	}
}
