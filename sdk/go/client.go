package coursewire

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"
)

var sessionIDPattern = regexp.MustCompile(`^[a-f0-9]{8}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{4}-[a-f0-9]{12}$`)

// Client is the coursewire API client.
type Client struct {
	baseURL     string
	accessToken string
	httpClient  *http.Client
}

// NewClient creates a new coursewire client.
//
// Example:
//
//	client, err := coursewire.NewClient(coursewire.ClientConfig{
//	    BaseURL:     "https://media.example.com",
//	    AccessToken: "cwire_abc123...",
//	})
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, &ValidationError{Field: "BaseURL", Message: "is required"}
	}

	parsedURL, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, &ValidationError{Field: "BaseURL", Message: "must be a valid URL"}
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, &ValidationError{Field: "BaseURL", Message: "must use http or https protocol"}
	}
	if parsedURL.Host == "" {
		return nil, &ValidationError{Field: "BaseURL", Message: "must include a host"}
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 5 * time.Minute
	}

	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.InsecureSkipVerify,
		},
	}
	if cfg.InsecureSkipVerify {
		fmt.Fprintln(os.Stderr, "[coursewire SDK] WARNING: TLS certificate verification is disabled. This is insecure.")
	}

	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		accessToken: cfg.AccessToken,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
	}, nil
}

// String returns a string representation with the access token redacted.
func (c *Client) String() string {
	tokenDisplay := "none"
	if c.accessToken != "" {
		tokenDisplay = "***redacted***"
	}
	return fmt.Sprintf("CoursewireClient(baseURL=%q, accessToken=%s)", c.baseURL, tokenDisplay)
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// validateSessionID validates a session ID format (UUID v4).
func validateSessionID(id string) error {
	if id == "" || !sessionIDPattern.MatchString(id) {
		return &ValidationError{
			Field:   "sessionID",
			Message: "must be a valid UUID",
		}
	}
	return nil
}

// request makes an HTTP request to the API.
func (c *Client) request(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	if c.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}

	return resp, nil
}

// handleResponse checks for errors and unwraps the {data, success} envelope
// into target.
func handleResponse(resp *http.Response, target any) error {
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
			errResp.Error = resp.Status
		}
		return newAPIError(resp.StatusCode, errResp.Error, errResp.Code)
	}

	if target != nil {
		var env struct {
			Data    json.RawMessage `json:"data"`
			Success bool            `json:"success"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
		if !env.Success {
			return fmt.Errorf("server reported failure without an error status")
		}
		if err := json.Unmarshal(env.Data, target); err != nil {
			return fmt.Errorf("decoding response data: %w", err)
		}
	}

	return nil
}

// GetUploadStatus retrieves the current state of an upload session.
func (c *Client) GetUploadStatus(ctx context.Context, sessionID string) (*UploadSession, error) {
	if err := validateSessionID(sessionID); err != nil {
		return nil, err
	}

	resp, err := c.request(ctx, http.MethodGet, "/api/storage/chunk-upload/status/"+sessionID, nil, "")
	if err != nil {
		return nil, err
	}

	var session UploadSession
	if err := handleResponse(resp, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// CancelUpload cancels an upload session, discarding its chunks server-side.
func (c *Client) CancelUpload(ctx context.Context, sessionID string) error {
	if err := validateSessionID(sessionID); err != nil {
		return err
	}

	resp, err := c.request(ctx, http.MethodDelete, "/api/storage/chunk-upload/cancel/"+sessionID, nil, "")
	if err != nil {
		return err
	}
	return handleResponse(resp, nil)
}

// GetVideoProgress fetches the saved playhead position for a video.
// A video with no saved progress reports 0.
func (c *Client) GetVideoProgress(ctx context.Context, videoID string) (float64, error) {
	if videoID == "" {
		return 0, &ValidationError{Field: "videoID", Message: "cannot be empty"}
	}

	resp, err := c.request(ctx, http.MethodGet, "/api/video-progress/"+url.PathEscape(videoID), nil, "")
	if err != nil {
		return 0, err
	}

	var progress VideoProgress
	if err := handleResponse(resp, &progress); err != nil {
		return 0, err
	}
	return progress.LastWatchedTime, nil
}

// SaveVideoProgress persists the playhead position for a video.
func (c *Client) SaveVideoProgress(ctx context.Context, videoID string, lastWatchedTime float64) error {
	if videoID == "" {
		return &ValidationError{Field: "videoID", Message: "cannot be empty"}
	}
	if lastWatchedTime < 0 {
		return &ValidationError{Field: "lastWatchedTime", Message: "cannot be negative"}
	}

	path := fmt.Sprintf("/api/video-progress/%s?lastWatchedTime=%s",
		url.PathEscape(videoID), formatSeconds(lastWatchedTime))
	resp, err := c.request(ctx, http.MethodPost, path, nil, "")
	if err != nil {
		return err
	}
	return handleResponse(resp, nil)
}

// MarkLessonComplete records that the subject finished a lesson.
// The call is idempotent server-side.
func (c *Client) MarkLessonComplete(ctx context.Context, lessonID string) error {
	if lessonID == "" {
		return &ValidationError{Field: "lessonID", Message: "cannot be empty"}
	}

	resp, err := c.request(ctx, http.MethodPost, "/api/lessons/"+url.PathEscape(lessonID)+"/complete", nil, "")
	if err != nil {
		return err
	}

	var result completeResponse
	return handleResponse(resp, &result)
}

// formatSeconds renders a playhead value without exponent notation.
func formatSeconds(v float64) string {
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.3f", v), "0"), ".")
}
