package oracle

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"
)

const systemPrompt = "你是一位资深的教学质量评估专家，擅长分析教学智能体的对话质量。你的评价客观、专业、有建设性。"

// Judgment is the structured verdict for one dimension, normalized from the
// oracle's raw JSON. Level stays a raw label here; the evaluator maps it into
// the closed rating set at the boundary.
type Judgment struct {
	Score       float64  `json:"score"`
	Level       string   `json:"level"`
	Analysis    string   `json:"analysis"`
	Evidence    []string `json:"evidence"`
	Issues      []string `json:"issues"`
	Suggestions []string `json:"suggestions"`
}

// Judge turns a prompt into a Judgment. Transport failures, non-200 statuses,
// malformed JSON, and missing required fields all collapse into a fixed
// default judgment so a single bad oracle response can never abort an
// evaluation run.
type Judge struct {
	client    Client
	model     string
	maxTokens int
}

// NewJudge creates a Judge on top of an oracle client.
func NewJudge(client Client, model string, maxTokens int) *Judge {
	if maxTokens <= 0 {
		maxTokens = 4000
	}
	return &Judge{client: client, model: model, maxTokens: maxTokens}
}

// Score sends one prompt at the given temperature and returns the parsed
// judgment. Exactly one request is sent; there are no retries at this layer.
func (j *Judge) Score(ctx context.Context, prompt string, temperature float64) Judgment {
	resp, err := j.client.ChatCompletion(ctx, ChatCompletionRequest{
		Model:       j.model,
		MaxTokens:   &j.maxTokens,
		Temperature: &temperature,
		N:           1,
		Messages: []Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		zap.L().Warn("oracle call failed, using default judgment", zap.Error(err))
		return DefaultJudgment("LLM调用失败: " + err.Error())
	}

	if len(resp.Choices) == 0 {
		zap.L().Warn("oracle returned no choices, using default judgment")
		return DefaultJudgment("LLM返回内容为空")
	}

	judgment, err := ParseJudgment(resp.Choices[0].Message.Content)
	if err != nil {
		zap.L().Warn("oracle judgment malformed, using default judgment",
			zap.Error(err),
			zap.String("content", truncate(resp.Choices[0].Message.Content, 500)),
		)
		return DefaultJudgment("JSON解析失败，使用默认分数。错误: " + err.Error())
	}

	return judgment
}

// DefaultJudgment is the safe fallback for any oracle contract violation:
// a neutral pass score with the failure recorded in the analysis text.
func DefaultJudgment(reason string) Judgment {
	return Judgment{
		Score:       50,
		Level:       "合格",
		Analysis:    reason,
		Evidence:    []string{},
		Issues:      []string{"LLM返回格式错误"},
		Suggestions: []string{"需要修复LLM提示词或响应解析"},
	}
}

// ParseJudgment strips markdown fences from the oracle's text response and
// decodes the judgment JSON, enforcing the required-field contract.
func ParseJudgment(text string) (Judgment, error) {
	cleaned := CleanJSON(text)

	var probe map[string]json.RawMessage
	if err := json.Unmarshal([]byte(cleaned), &probe); err != nil {
		return Judgment{}, err
	}
	for _, field := range []string{"score", "level", "analysis", "evidence", "issues", "suggestions"} {
		if _, ok := probe[field]; !ok {
			return Judgment{}, errMissingField(field)
		}
	}

	var j Judgment
	if err := json.Unmarshal([]byte(cleaned), &j); err != nil {
		return Judgment{}, err
	}
	if j.Evidence == nil {
		j.Evidence = []string{}
	}
	if j.Issues == nil {
		j.Issues = []string{}
	}
	if j.Suggestions == nil {
		j.Suggestions = []string{}
	}
	return j, nil
}

type errMissingField string

func (e errMissingField) Error() string {
	return "oracle: judgment missing required field: " + string(e)
}

// CleanJSON strips markdown fences and slices out the outermost JSON object.
func CleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}
