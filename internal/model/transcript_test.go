package model

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadTranscript(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transcript.json")
	data := `{
		"metadata": {"task_id": "task-9", "total_rounds": 3},
		"stages": [
			{"stage_name": "概念讲解", "messages": [
				{"role": "assistant", "content": "我们先看什么是嫁接。", "round": 1},
				{"role": "user", "content": "好的。", "round": 1}
			]}
		]
	}`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	tr, err := LoadTranscript(path)
	require.NoError(t, err)
	assert.Equal(t, "task-9", tr.Metadata.TaskID)
	assert.Equal(t, 3, tr.Metadata.TotalRounds)
	require.Len(t, tr.Stages, 1)
	assert.Equal(t, "概念讲解", tr.Stages[0].StageName)
	require.Len(t, tr.Stages[0].Messages, 2)
	assert.Equal(t, "assistant", tr.Stages[0].Messages[0].Role)
}

func TestLoadTranscript_MissingFile(t *testing.T) {
	_, err := LoadTranscript(filepath.Join(t.TempDir(), "absent.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read transcript")
}

func TestLoadTranscript_MalformedJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := LoadTranscript(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse transcript")
}

func TestLoadTeacherDoc(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lesson.md")
	require.NoError(t, os.WriteFile(path, []byte("# 嫁接要点\n砧木切口深度为茎粗的1/3。"), 0o644))

	doc, err := LoadTeacherDoc(path)
	require.NoError(t, err)
	assert.Contains(t, doc, "嫁接要点")

	_, err = LoadTeacherDoc(filepath.Join(t.TempDir(), "absent.md"))
	require.Error(t, err)
}
