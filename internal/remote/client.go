// internal/remote/client.go
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	appErrors "github.com/unclebandit/campaign-engine/internal/errors"
)

// JobDetail carries the per-outcome counters of a remote job.
type JobDetail struct {
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
}

// JobStatusSnapshot is the transient value of one status poll. It is
// consumed once and never stored.
type JobStatusSnapshot struct {
	Status    string    `json:"status"`
	Cancelled bool      `json:"-"`
	Detail    JobDetail `json:"jobDetail"`
}

// Total is the number of items the backend reports as done.
func (s JobStatusSnapshot) Total() int {
	return s.Detail.Completed + s.Detail.Failed + s.Detail.Cancelled
}

// Terminal reports whether the remote job will make no further progress.
func (s JobStatusSnapshot) Terminal() bool {
	switch s.Status {
	case "completed", "cancelled", "failed":
		return true
	}
	return s.Cancelled
}

type CreateJobParams struct {
	Site        string
	Country     string
	OTPType     string
	DailyAmount string
	ListName    string
	List        []byte
}

// Client is the stateless adapter for the backend job API. It performs no
// retries; retry policy belongs to the poller.
type Client struct {
	BaseURL string
	AuthKey string
	HTTP    *http.Client
}

func NewClient(baseURL, authKey string) *Client {
	return &Client{
		BaseURL: baseURL,
		AuthKey: authKey,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
	}
}

// envelope is the backend's {success, data, message} wrapper.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

func (c *Client) do(req *http.Request, op string) (json.RawMessage, int, error) {
	if c.AuthKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.AuthKey)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, 0, appErrors.NewTransport(op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, appErrors.NewTransport(op, err)
	}
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil && resp.StatusCode < 400 {
		return nil, resp.StatusCode, appErrors.NewTransport(op, fmt.Errorf("bad response body: %w", err))
	}
	if resp.StatusCode < 300 && !env.Success {
		// backend reports failures inside the envelope too
		msg := env.Message
		if msg == "" {
			msg = op + " failed"
		}
		return nil, resp.StatusCode, appErrors.NewValidation("%s", msg)
	}
	return env.Data, resp.StatusCode, c.checkStatus(resp.StatusCode, op, env.Message)
}

func (c *Client) checkStatus(code int, op, message string) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusNotFound:
		return appErrors.NewNotFound("")
	case code >= 400 && code < 500:
		if message == "" {
			message = fmt.Sprintf("%s rejected with status %d", op, code)
		}
		return appErrors.NewValidation("%s", message)
	default:
		return appErrors.NewTransport(op, fmt.Errorf("backend returned status %d", code))
	}
}

// CreateJob uploads the campaign parameters and number list as multipart
// form data and returns the remote job id.
func (c *Client) CreateJob(ctx context.Context, p CreateJobParams) (string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fields := map[string]string{
		"siteName":    p.Site,
		"country":     p.Country,
		"otpType":     p.OTPType,
		"dailyAmount": p.DailyAmount,
	}
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return "", appErrors.NewTransport("createJob", err)
		}
	}
	part, err := w.CreateFormFile("numberList", p.ListName)
	if err != nil {
		return "", appErrors.NewTransport("createJob", err)
	}
	if _, err := part.Write(p.List); err != nil {
		return "", appErrors.NewTransport("createJob", err)
	}
	if err := w.Close(); err != nil {
		return "", appErrors.NewTransport("createJob", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/api/jobs", &buf)
	if err != nil {
		return "", appErrors.NewTransport("createJob", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	data, _, err := c.do(req, "createJob")
	if err != nil {
		return "", err
	}
	var out struct {
		JobID string `json:"jobId"`
	}
	if err := json.Unmarshal(data, &out); err != nil || out.JobID == "" {
		return "", appErrors.NewTransport("createJob", fmt.Errorf("no job id in response"))
	}
	return out.JobID, nil
}

// GetStatus fetches the current snapshot of a remote job.
func (c *Client) GetStatus(ctx context.Context, jobID string) (JobStatusSnapshot, error) {
	url := fmt.Sprintf("%s/api/jobs/%s/status", c.BaseURL, jobID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return JobStatusSnapshot{}, appErrors.NewTransport("getStatus", err)
	}
	data, code, err := c.do(req, "getStatus")
	if err != nil {
		if code == http.StatusNotFound {
			return JobStatusSnapshot{}, appErrors.NewNotFound(jobID)
		}
		return JobStatusSnapshot{}, err
	}
	// cancelled comes over the wire as 0/1
	var raw struct {
		Status    string    `json:"status"`
		Cancelled int       `json:"cancelled"`
		JobDetail JobDetail `json:"jobDetail"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return JobStatusSnapshot{}, appErrors.NewTransport("getStatus", err)
	}
	return JobStatusSnapshot{
		Status:    raw.Status,
		Cancelled: raw.Cancelled != 0,
		Detail:    raw.JobDetail,
	}, nil
}

// CancelJob asks the backend to cancel a job. Cancelling a job that is
// already finished or already gone is not a hard failure.
func (c *Client) CancelJob(ctx context.Context, jobID string) (string, error) {
	url := fmt.Sprintf("%s/api/jobs/%s", c.BaseURL, jobID)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return "", appErrors.NewTransport("cancelJob", err)
	}
	data, code, err := c.do(req, "cancelJob")
	if err != nil {
		if code == http.StatusNotFound {
			return "cancelled", nil
		}
		return "", err
	}
	var out struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return "", appErrors.NewTransport("cancelJob", err)
	}
	return out.Status, nil
}

// ListSites returns the backend's service catalog.
func (c *Client) ListSites(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/api/sites", nil)
	if err != nil {
		return nil, appErrors.NewTransport("listSites", err)
	}
	data, _, err := c.do(req, "listSites")
	if err != nil {
		return nil, err
	}
	var out struct {
		Sites []string `json:"sites"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, appErrors.NewTransport("listSites", err)
	}
	return out.Sites, nil
}
