// Package cloudgrade wraps the external batch-grading service: instance
// lookup, homework file upload and analysis, grade submission, and task
// polling.
package cloudgrade

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Default base URL for the grading service.
const defaultBaseURL = "https://cloudapi.polymas.com"

// Client defines the grading-service operations used by the batch path.
type Client interface {
	InstanceDetails(ctx context.Context, instanceNid string) (*InstanceContext, error)
	Upload(ctx context.Context, filePath string) (*FileInfo, error)
	AnalyzeHomework(ctx context.Context, file FileInfo, ictx *InstanceContext) (string, error)
	SubmitGrade(ctx context.Context, textInput string, ictx *InstanceContext) (*Submission, error)
	TaskResult(ctx context.Context, taskID, instanceNid string) (*TaskResult, error)
}

// Option configures the httpClient.
type Option func(*httpClient)

// WithBaseURL overrides the default base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit overrides the default request rate (5 req/s shared across
// all operations). rps <= 0 disables throttling.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		} else {
			c.limiter = nil
		}
	}
}

// httpClient implements Client using net/http.
type httpClient struct {
	authorization string
	cookie        string
	baseURL       string
	http          *http.Client
	limiter       *rate.Limiter
}

// NewClient creates a grading-service client. Both the Authorization and
// Cookie credentials are required by every endpoint.
func NewClient(authorization, cookie string, opts ...Option) Client {
	c := &httpClient{
		authorization: authorization,
		cookie:        cookie,
		baseURL:       defaultBaseURL,
		http: &http.Client{
			Timeout: 120 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(5, 5),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// wait blocks until the rate limiter allows one event, or ctx is cancelled.
func (c *httpClient) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

func (c *httpClient) InstanceDetails(ctx context.Context, instanceNid string) (*InstanceContext, error) {
	payload := map[string]any{
		"instanceIds":      []string{instanceNid},
		"needToToolSchema": false,
	}

	data, err := c.post(ctx, "/agents/v1/agent/details", payload)
	if err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("cloudgrade: instance details %s", instanceNid))
	}

	var resp struct {
		InstanceDetails []instanceDetail `json:"instanceDetails"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, eris.Wrap(err, "cloudgrade: decode instance details")
	}
	if len(resp.InstanceDetails) == 0 {
		return nil, eris.Errorf("cloudgrade: instance %s: empty instanceDetails", instanceNid)
	}

	d := resp.InstanceDetails[0]
	agentID := d.AgentNid
	if agentID == "" {
		agentID = d.AgentID
	}
	if d.UserID == "" {
		return nil, eris.Errorf("cloudgrade: instance %s: missing userId", instanceNid)
	}
	if agentID == "" {
		return nil, eris.Errorf("cloudgrade: instance %s: missing agentNid", instanceNid)
	}

	version := d.Version
	if version == 0 {
		version = 2
	}
	return &InstanceContext{
		InstanceNid:        instanceNid,
		UserID:             d.UserID,
		AgentID:            agentID,
		WritingRequirement: d.writingRequirement(),
		Version:            version,
		InstanceName:       d.InstanceName,
		Desc:               d.Desc,
	}, nil
}

// instanceDetail is one entry of the agent/details response.
type instanceDetail struct {
	UserID         string          `json:"userId"`
	AgentNid       string          `json:"agentNid"`
	AgentID        string          `json:"agentId"`
	InstanceName   string          `json:"instanceName"`
	Desc           string          `json:"desc"`
	Version        int             `json:"version"`
	BusinessConfig json.RawMessage `json:"businessConfig"`
}

// writingRequirement digs the assignment requirement out of businessConfig,
// falling back to the instance description. businessConfig is sometimes a
// JSON object and sometimes a JSON-encoded string of one.
func (d *instanceDetail) writingRequirement() string {
	raw := d.BusinessConfig
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		raw = json.RawMessage(asString)
	}

	var cfg struct {
		CompositionRequirement struct {
			WritingRequirement string `json:"writingRequirement"`
			RequirementFile    struct {
				Content string `json:"content"`
			} `json:"requirementFile"`
		} `json:"compositionRequirement"`
	}
	if err := json.Unmarshal(raw, &cfg); err == nil {
		if wr := cfg.CompositionRequirement.WritingRequirement; wr != "" {
			return wr
		}
		if content := cfg.CompositionRequirement.RequirementFile.Content; content != "" {
			return content
		}
	}
	return d.Desc
}

func (c *httpClient) AnalyzeHomework(ctx context.Context, file FileInfo, ictx *InstanceContext) (string, error) {
	payload := map[string]any{
		"agentId":            ictx.AgentID,
		"instanceNid":        ictx.InstanceNid,
		"userNid":            ictx.UserID,
		"version":            ictx.Version,
		"writingRequirement": ictx.WritingRequirement,
		"activeMode":         "upload",
		"editorContent":      "",
		"fileList":           []FileInfo{file},
	}

	data, err := c.post(ctx, "/agents/v1/file/homeworkFileAnalysis", payload)
	if err != nil {
		return "", eris.Wrap(err, fmt.Sprintf("cloudgrade: analyze %s", file.FileName))
	}

	textInput, err := NormalizeTextInput(data)
	if err != nil {
		return "", eris.Wrap(err, fmt.Sprintf("cloudgrade: normalize analysis of %s", file.FileName))
	}
	if textInput == "" {
		return "", eris.Errorf("cloudgrade: analyze %s: no usable textInput in response", file.FileName)
	}
	return textInput, nil
}

func (c *httpClient) SubmitGrade(ctx context.Context, textInput string, ictx *InstanceContext) (*Submission, error) {
	payload := map[string]any{
		"metadata": map[string]any{
			"dimension":   "NONE",
			"instanceNid": ictx.InstanceNid,
			"userIds":     []string{ictx.UserID},
			"version":     ictx.Version,
			"async":       true,
		},
		"sendParams": map[string]any{
			"message": map[string]any{
				"kind": "message",
				"parts": []map[string]any{
					{
						"kind": "data",
						"data": map[string]any{
							"writingRequirement": ictx.WritingRequirement,
							"fileList":           nil,
							"textInput":          textInput,
							"submitType":         "TEXT_INPUT",
						},
					},
				},
			},
		},
	}

	data, err := c.post(ctx, "/agents/v1/execute/agent", payload)
	if err != nil {
		return nil, eris.Wrap(err, "cloudgrade: submit grade")
	}

	var sub Submission
	if err := json.Unmarshal(data, &sub); err != nil {
		return nil, eris.Wrap(err, "cloudgrade: decode submission")
	}
	sub.Raw = data
	if sub.IsTask() && sub.ID == "" {
		return nil, eris.New("cloudgrade: submit grade: task handle without id")
	}
	return &sub, nil
}

func (c *httpClient) TaskResult(ctx context.Context, taskID, instanceNid string) (*TaskResult, error) {
	payload := map[string]any{
		"taskId": taskID,
		"metadata": map[string]any{
			"instanceNid": instanceNid,
		},
	}

	data, err := c.post(ctx, "/agents/v1/get/task", payload)
	if err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("cloudgrade: task result %s", taskID))
	}

	var result TaskResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("cloudgrade: decode task result %s", taskID))
	}
	result.Raw = data
	return &result, nil
}

// post sends a JSON payload and returns the envelope's data on success.
func (c *httpClient) post(ctx context.Context, path string, body any) (json.RawMessage, error) {
	if err := c.wait(ctx); err != nil {
		return nil, eris.Wrap(err, "rate limit")
	}

	buf, err := json.Marshal(body)
	if err != nil {
		return nil, eris.Wrap(err, "marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return nil, eris.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	c.setAuth(req)

	return c.do(req)
}

func (c *httpClient) setAuth(req *http.Request) {
	req.Header.Set("Authorization", c.authorization)
	req.Header.Set("Cookie", c.cookie)
}

func (c *httpClient) do(req *http.Request) (json.RawMessage, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "execute request")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "read response body")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: truncate(string(data), 500)}
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, eris.Wrap(err, "decode response envelope")
	}
	if !env.ok() {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Code:       env.Code,
			Msg:        env.Msg,
			TraceID:    env.TraceID,
			Body:       truncate(string(data), 500),
		}
	}
	return env.Data, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
