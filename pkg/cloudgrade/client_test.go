package cloudgrade

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient("Bearer test-token", "session=abc", WithBaseURL(srv.URL), WithRateLimit(0))
}

func TestInstanceDetails(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/agents/v1/agent/details", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.Equal(t, "session=abc", r.Header.Get("Cookie"))

		var payload struct {
			InstanceIds []string `json:"instanceIds"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, []string{"inst-1"}, payload.InstanceIds)

		_, _ = w.Write([]byte(`{
			"success": true,
			"data": {"instanceDetails": [{
				"userId": "u-1",
				"agentNid": "a-1",
				"instanceName": "期末作业",
				"desc": "写一篇议论文",
				"version": 3,
				"businessConfig": "{\"compositionRequirement\":{\"writingRequirement\":\"论点明确\"}}"
			}]}
		}`))
	})

	ictx, err := client.InstanceDetails(context.Background(), "inst-1")
	require.NoError(t, err)
	assert.Equal(t, "u-1", ictx.UserID)
	assert.Equal(t, "a-1", ictx.AgentID)
	assert.Equal(t, "inst-1", ictx.InstanceNid)
	assert.Equal(t, 3, ictx.Version)
	assert.Equal(t, "论点明确", ictx.WritingRequirement)
}

func TestInstanceDetails_FallbackAgentIDAndDesc(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"success": true,
			"data": {"instanceDetails": [{"userId": "u-1", "agentId": "legacy-a", "desc": "描述要求"}]}
		}`))
	})

	ictx, err := client.InstanceDetails(context.Background(), "inst-2")
	require.NoError(t, err)
	assert.Equal(t, "legacy-a", ictx.AgentID)
	assert.Equal(t, "描述要求", ictx.WritingRequirement)
	assert.Equal(t, 2, ictx.Version, "version defaults to 2")
}

func TestInstanceDetails_Empty(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success": true, "data": {"instanceDetails": []}}`))
	})

	_, err := client.InstanceDetails(context.Background(), "inst-3")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty instanceDetails")
}

func TestAnalyzeHomework(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/agents/v1/file/homeworkFileAnalysis", r.URL.Path)

		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "upload", payload["activeMode"])
		assert.Equal(t, "a-1", payload["agentId"])

		_, _ = w.Write([]byte(`{
			"success": true,
			"data": {"content": [
				{"item_id": "q1", "item_name": "单项选择题第1题", "stu_answer_content": "B"},
				{"itemId": "q2", "itemName": "简答题第1题", "stuAnswerContent": "略"}
			]}
		}`))
	})

	ictx := &InstanceContext{InstanceNid: "inst-1", UserID: "u-1", AgentID: "a-1", Version: 2}
	textInput, err := client.AnalyzeHomework(context.Background(), FileInfo{FileName: "a.docx"}, ictx)
	require.NoError(t, err)

	var items []AnswerItem
	require.NoError(t, json.Unmarshal([]byte(textInput), &items))
	require.Len(t, items, 2)
	assert.Equal(t, "q1", items[0].ItemID)
	assert.Equal(t, "单项选择题第1题", items[0].ItemName)
	assert.Equal(t, "B", items[0].StuAnswerContent)
	assert.Equal(t, "q2", items[1].ItemID)
}

func TestSubmitGrade_TaskHandle(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/agents/v1/execute/agent", r.URL.Path)

		var payload struct {
			Metadata struct {
				InstanceNid string   `json:"instanceNid"`
				UserIds     []string `json:"userIds"`
				Async       bool     `json:"async"`
			} `json:"metadata"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "inst-1", payload.Metadata.InstanceNid)
		assert.Equal(t, []string{"u-1"}, payload.Metadata.UserIds)
		assert.True(t, payload.Metadata.Async)

		_, _ = w.Write([]byte(`{"code": 200, "data": {"kind": "task", "id": "task-1"}}`))
	})

	ictx := &InstanceContext{InstanceNid: "inst-1", UserID: "u-1", Version: 2}
	sub, err := client.SubmitGrade(context.Background(), `[]`, ictx)
	require.NoError(t, err)
	assert.True(t, sub.IsTask())
	assert.Equal(t, "task-1", sub.ID)
}

func TestSubmitGrade_TaskWithoutID(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success": true, "data": {"kind": "task"}}`))
	})

	_, err := client.SubmitGrade(context.Background(), `[]`, &InstanceContext{InstanceNid: "inst-1", UserID: "u-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "without id")
}

func TestTaskResult_States(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/agents/v1/get/task", r.URL.Path)

		var payload struct {
			TaskID   string `json:"taskId"`
			Metadata struct {
				InstanceNid string `json:"instanceNid"`
			} `json:"metadata"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "task-1", payload.TaskID)
		assert.Equal(t, "inst-1", payload.Metadata.InstanceNid)

		_, _ = w.Write([]byte(`{"success": true, "data": {"status": {"state": "running"}}}`))
	})

	result, err := client.TaskResult(context.Background(), "task-1", "inst-1")
	require.NoError(t, err)
	assert.Equal(t, StateRunning, result.State())
	assert.False(t, result.Done())
	assert.False(t, result.Terminal())
}

func TestEnvelopeFailure(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success": false, "msg": "登录已过期", "code": 401, "traceId": "t-1"}`))
	})

	_, err := client.InstanceDetails(context.Background(), "inst-1")
	require.Error(t, err)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "登录已过期", apiErr.Msg)
	assert.Equal(t, 401, apiErr.Code)
	assert.Equal(t, "t-1", apiErr.TraceID)
}

func TestHTTPError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream down"))
	})

	_, err := client.TaskResult(context.Background(), "task-1", "inst-1")
	require.Error(t, err)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
}

func TestUpload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "作业.docx")
	require.NoError(t, os.WriteFile(path, []byte("fake document bytes"), 0o644))

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/basic-resource/file/upload", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))

		assert.NotEmpty(t, r.FormValue("identifyCode"))
		assert.Equal(t, "作业.docx", r.FormValue("name"))
		assert.Equal(t, "0", r.FormValue("chunk"))
		assert.Equal(t, "1", r.FormValue("chunks"))
		assert.Equal(t, "19", r.FormValue("size"))

		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "作业.docx", header.Filename)

		_, _ = w.Write([]byte(`{"success": true, "data": {"ossUrl": "https://oss.example.com/作业.docx"}}`))
	})

	info, err := client.Upload(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "作业.docx", info.FileName)
	assert.Equal(t, "https://oss.example.com/作业.docx", info.FileURL)
}

func TestUpload_MissingFile(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected for missing file")
	})

	_, err := client.Upload(context.Background(), filepath.Join(t.TempDir(), "nope.docx"))
	require.Error(t, err)
}
