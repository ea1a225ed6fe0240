package cloudgrade

import (
	"encoding/json"
	"fmt"
	"strings"
)

// envelope is the common wrapper on every service response. Older endpoints
// report success via `success`, newer ones via `code == 200`.
type envelope struct {
	Success *bool           `json:"success"`
	Code    int             `json:"code"`
	Msg     string          `json:"msg"`
	TraceID string          `json:"traceId"`
	Data    json.RawMessage `json:"data"`
}

func (e *envelope) ok() bool {
	if e.Success != nil {
		return *e.Success
	}
	return e.Code == 200
}

// APIError is returned when the service responds with a non-2xx status or a
// failed envelope.
type APIError struct {
	StatusCode int
	Code       int
	Msg        string
	TraceID    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("cloudgrade: HTTP %d: %s (code=%d traceId=%s)", e.StatusCode, e.Msg, e.Code, e.TraceID)
	}
	return fmt.Sprintf("cloudgrade: HTTP %d: %s", e.StatusCode, e.Body)
}

// InstanceContext carries the identity of one homework instance, resolved
// once per run via InstanceDetails.
type InstanceContext struct {
	InstanceNid        string
	UserID             string
	AgentID            string
	WritingRequirement string
	Version            int
	InstanceName       string
	Desc               string
}

// FileInfo identifies an uploaded artifact.
type FileInfo struct {
	FileName string `json:"fileName"`
	FileURL  string `json:"fileUrl"`
}

// AnswerItem is one extracted answer from a homework document. The analysis
// endpoint emits both camelCase and snake_case key spellings; they are
// normalized here and nowhere else.
type AnswerItem struct {
	ItemID           string `json:"itemId"`
	ItemName         string `json:"itemName"`
	StuAnswerContent string `json:"stuAnswerContent"`
}

func (a *AnswerItem) UnmarshalJSON(data []byte) error {
	// Bare strings become answer content with no item identity.
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*a = AnswerItem{StuAnswerContent: s}
		return nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	a.ItemID = firstString(raw, "itemId", "item_id")
	a.ItemName = firstString(raw, "itemName", "item_name")
	a.StuAnswerContent = firstString(raw, "stuAnswerContent", "stu_answer_content", "content")
	return nil
}

func firstString(raw map[string]json.RawMessage, keys ...string) string {
	for _, k := range keys {
		v, ok := raw[k]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(v, &s); err == nil && s != "" {
			return s
		}
	}
	return ""
}

// Submission is the response to an execute-agent call: either a task handle
// requiring polling, or an immediate result payload.
type Submission struct {
	Kind string          `json:"kind"`
	ID   string          `json:"id"`
	Raw  json.RawMessage `json:"-"`
}

// IsTask reports whether the submission must be polled for completion.
func (s *Submission) IsTask() bool {
	return s.Kind == "task"
}

// Task states reported by the polling endpoint.
const (
	StateQueued    = "queued"
	StateRunning   = "running"
	StateCompleted = "completed"
	StateFailed    = "failed"
	StateError     = "error"
	StateCancelled = "cancelled"
)

// TaskResult is one poll response for an async grading task.
type TaskResult struct {
	Kind      string          `json:"kind"`
	ID        string          `json:"id"`
	Artifacts []Artifact      `json:"artifacts"`
	Status    *TaskStatus     `json:"status"`
	Raw       json.RawMessage `json:"-"`
}

// TaskStatus wraps the task state string.
type TaskStatus struct {
	State string `json:"state"`
}

// Artifact is one output unit of a completed grading task.
type Artifact struct {
	Parts []ArtifactPart `json:"parts"`
}

// ArtifactPart carries the typed payload of an artifact.
type ArtifactPart struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// State returns the reported state, or "" when the response carries none.
func (r *TaskResult) State() string {
	if r.Status == nil {
		return ""
	}
	return r.Status.State
}

// Done reports whether the task has produced its result: either an artifacts
// payload or a completed state.
func (r *TaskResult) Done() bool {
	return len(r.Artifacts) > 0 || r.State() == StateCompleted
}

// Terminal reports whether the task has stopped without a result.
func (r *TaskResult) Terminal() bool {
	switch r.State() {
	case StateFailed, StateError, StateCancelled:
		return true
	}
	return false
}

// NormalizeTextInput converts the analysis payload into the canonical
// text-input JSON for grading submission: a list of AnswerItem objects. The
// payload may be a JSON string, a {content: [...]} wrapper, a bare list, or
// free text (returned as is).
func NormalizeTextInput(data json.RawMessage) (string, error) {
	if len(data) == 0 {
		return "", nil
	}

	raw := data
	var asString string
	if err := json.Unmarshal(data, &asString); err == nil {
		trimmed := strings.TrimSpace(asString)
		if !strings.HasPrefix(trimmed, "{") && !strings.HasPrefix(trimmed, "[") {
			return asString, nil
		}
		raw = json.RawMessage(trimmed)
	}

	var wrapper struct {
		Content []AnswerItem `json:"content"`
	}
	if err := json.Unmarshal(raw, &wrapper); err == nil && wrapper.Content != nil {
		return marshalItems(wrapper.Content)
	}

	var items []AnswerItem
	if err := json.Unmarshal(raw, &items); err == nil {
		return marshalItems(items)
	}

	// Any other JSON shape passes through verbatim.
	return string(raw), nil
}

func marshalItems(items []AnswerItem) (string, error) {
	if items == nil {
		items = []AnswerItem{}
	}
	out, err := json.Marshal(items)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
