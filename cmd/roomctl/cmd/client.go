package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"roomplane/pkg/api"
)

// AdminClient handles API calls to the roomplane admin API.
type AdminClient struct {
	BaseURL    string
	Key        string
	HTTPClient *http.Client
}

// NewAdminClient creates a new client with the given base URL and admin key.
func NewAdminClient(baseURL, key string) *AdminClient {
	return &AdminClient{
		BaseURL: baseURL,
		Key:     key,
		HTTPClient: &http.Client{
			// Build and start triggers wait for the phase to finish.
			Timeout: 3 * time.Minute,
		},
	}
}

// APIError represents an error response from the API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
}

func (c *AdminClient) do(method, path string, out interface{}) error {
	httpReq, err := http.NewRequest(method, c.BaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Add("X-Admin-Key", c.Key)
	httpReq.Header.Add("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		var apiErr api.ErrorResponse
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error != "" {
			return &APIError{StatusCode: resp.StatusCode, Message: apiErr.Error}
		}
		return &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// RoomsStatus sends GET /admin/rooms/status.
func (c *AdminClient) RoomsStatus() (*api.RoomsStatusResponse, error) {
	var result api.RoomsStatusResponse
	if err := c.do(http.MethodGet, "/admin/rooms/status", &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Scheduler sends GET /admin/scheduler.
func (c *AdminClient) Scheduler() (*api.SchedulerStateResponse, error) {
	var result api.SchedulerStateResponse
	if err := c.do(http.MethodGet, "/admin/scheduler", &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SetScheduler sends POST /admin/scheduler/{enable|disable}.
func (c *AdminClient) SetScheduler(enabled bool) (*api.SchedulerStateResponse, error) {
	action := "disable"
	if enabled {
		action = "enable"
	}
	var result api.SchedulerStateResponse
	if err := c.do(http.MethodPost, "/admin/scheduler/"+action, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Schedule sends POST /admin/rooms/{id}/schedule.
func (c *AdminClient) Schedule(roomID string) (*api.ScheduleResponse, error) {
	var result api.ScheduleResponse
	if err := c.do(http.MethodPost, fmt.Sprintf("/admin/rooms/%s/schedule", url.PathEscape(roomID)), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Trigger sends POST /admin/rooms/{id}/{phase}. lead is only sent for notify.
func (c *AdminClient) Trigger(phase, roomID string, lead int) (*api.TriggerResponse, error) {
	path := fmt.Sprintf("/admin/rooms/%s/%s", url.PathEscape(roomID), phase)
	if phase == "notify" {
		path += "?lead=" + strconv.Itoa(lead)
	}
	var result api.TriggerResponse
	if err := c.do(http.MethodPost, path, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
