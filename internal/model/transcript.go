package model

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
)

// Message is a single turn in a tutoring dialogue.
type Message struct {
	Role    string `json:"role"` // "assistant" or "user"
	Content string `json:"content"`
	Round   int    `json:"round"`
}

// Stage groups the messages of one teaching stage, in chronological order.
type Stage struct {
	StageName string    `json:"stage_name"`
	Messages  []Message `json:"messages"`
}

// TranscriptMetadata identifies the dialogue being evaluated.
type TranscriptMetadata struct {
	TaskID              string `json:"task_id"`
	TotalRounds         int    `json:"total_rounds"`
	WorkflowStartTime   string `json:"workflow_start_time,omitempty"`
	StudentProfileLabel string `json:"student_profile_label,omitempty"`
}

// Transcript is the structured dialogue record consumed by the evaluator.
// It is read-only input: nothing in the evaluation path mutates it.
type Transcript struct {
	Metadata TranscriptMetadata `json:"metadata"`
	Stages   []Stage            `json:"stages"`
}

// LoadTranscript reads a dialogue record from a JSON file.
func LoadTranscript(path string) (*Transcript, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "model: read transcript")
	}
	var t Transcript
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, eris.Wrap(err, "model: parse transcript")
	}
	return &t, nil
}

// LoadTeacherDoc reads the reference document used as the grading standard.
func LoadTeacherDoc(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", eris.Wrap(err, "model: read teacher doc")
	}
	return string(data), nil
}
