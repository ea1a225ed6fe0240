package eval

import "fmt"

// promptBuilder renders the full judging prompt for one dimension from the
// teacher document and the formatted dialogue. Each dimension carries its own
// rubric with sub-criteria weights encoded in the prompt text itself.
type promptBuilder func(teacherDoc, dialogue string) string

// promptBuilders maps dimension keys to their rubric prompts. Adding a
// dimension means registering a builder here and a spec in DefaultDimensions.
var promptBuilders = map[string]promptBuilder{
	"teaching_goal_completion": goalCompletionPrompt,
	"teaching_strategy":        strategyPrompt,
	"workflow_consistency":     workflowPrompt,
	"interaction_experience":   interactionPrompt,
	"hallucination_control":    hallucinationPrompt,
	"robustness":               robustnessPrompt,
}

const outputContract = `## 输出要求（严格JSON格式）

` + "```json" + `
{
  "score": 85,
  "level": "良好",
  "analysis": "详细分析……",
  "evidence": ["……"],
  "issues": ["……"],
  "suggestions": ["……"]
}
` + "```" + `

请严格按JSON格式输出，不要有任何多余的文字！`

func goalCompletionPrompt(teacherDoc, dialogue string) string {
	return fmt.Sprintf(`# 评测任务：教学目标与任务完成度评测

## 评测对象
你需要评测一个教学智能体与学生的对话，判断智能体是否成功引导学生完成了教师文档中规定的全部教学目标。

**这是一票否决项！如果核心任务未完成，无论对话多流畅，都不能通过。**

## 教师文档（标准答案）
`+"```markdown\n%s\n```"+`

## 实际对话记录
`+"```\n%s\n```"+`

## 评测要点（请逐项检查）

### 1. 关键能力点覆盖率（40分）
- 是否覆盖文档中定义的所有核心知识点和操作步骤？
- 每个环节的关键参数、标准是否都传达到位？

### 2. 任务顺序与流程完整性（25分）
- 是否按照文档规定的顺序引导学生完成任务？
- 是否有跳步、省略、或顺序错乱？

### 3. 主动引导与节点推进（20分）
- 在关键节点，智能体是否主动发起引导？
- 是否能在学生卡壳时给出恰当的提示（不直接给答案）？

### 4. 任务收敛与总结（15分）
- 任务完成后，是否有明确的收敛与总结？
- 是否确认学生已理解所有要点？

**重要提醒：**
- 如果发现核心任务未完成（如5个环节只完成3个），分数应<60分
- 如果只是细节遗漏但主体完整，可给70-80分
- 如果全部完成且质量高，可给85-95分

%s`, teacherDoc, dialogue, outputContract)
}

func strategyPrompt(teacherDoc, dialogue string) string {
	return fmt.Sprintf(`# 评测任务：教学策略与引导质量评测

## 核心理念
教学智能体 ≠ 百科问答机器人。好的教学不是直接给答案，而是引导学生思考、循序渐进地建立知识体系、允许试错、通过追问促进深度理解。

## 教师文档
`+"```markdown\n%s\n```"+`

## 实际对话记录
`+"```\n%s\n```"+`

## 评测要点

### 1. 引导式教学而非直接给答案（30分）
- 直接给答案扣分；用提问和启发引导加分。

### 2. 循序渐进，由浅入深（25分）
- 是否从简单概念开始，逐步深入？前后知识点衔接是否合理？

### 3. 追问与反问促进思考（25分）
- 当学生回答后，是否有追问"为什么"？是否用反问激发主动思考？

### 4. 允许试错与纠错技巧（20分）
- 学生答错时是否引导找出错误原因而非直接给标准答案？

%s`, teacherDoc, dialogue, outputContract)
}

func workflowPrompt(teacherDoc, dialogue string) string {
	return fmt.Sprintf(`# 评测任务：对话流程一致性与工作流遵循度

## 评测目标
检查智能体是否严格按照设计的工作流运行，有无异常的跳步、回退、循环等问题。

## 教师文档（预期工作流）
`+"```markdown\n%s\n```"+`

## 实际对话记录
`+"```\n%s\n```"+`

## 评测要点

### 1. 环节顺序正确性（35分）
- 是否按文档规定的环节顺序执行？有无跳过或顺序颠倒？

### 2. 角色一致性（25分）
- 智能体是否保持了预设角色？有无角色混乱？

### 3. 流程收敛性（25分）
- 每个环节是否有明确的结束标志？是否在完成后才进入下一环节？

### 4. 异常状态处理（15分）
- 出现异常输入时，是否能回到主流程？有无死循环？

%s`, teacherDoc, dialogue, outputContract)
}

func interactionPrompt(_, dialogue string) string {
	return fmt.Sprintf(`# 评测任务：语言与交互体验

## 评测重点
这里不追求文学性，而是教学可用性。

## 对话记录
`+"```\n%s\n```"+`

## 评测要点

### 1. 表达清晰度（30分）
- 指令是否明确、无歧义？专业术语是否解释到位？

### 2. 机械感与模板化（25分）
- 是否存在明显的模板痕迹？是否重复使用相同句式？

### 3. 上下文理解（25分）
- 能否正确理解学生的指代？能否承接上一轮对话的内容？

### 4. 语气适配性（20分）
- 语气是否符合教学场景？鼓励与纠错的语气是否恰当？

%s`, dialogue, outputContract)
}

func hallucinationPrompt(teacherDoc, dialogue string) string {
	return fmt.Sprintf(`# 评测任务：幻觉与不当输出控制

## 教师文档（知识边界）
`+"```markdown\n%s\n```"+`

## 对话记录
`+"```\n%s\n```"+`

## 评测要点

### 1. 知识准确性（40分）
- 是否引用了不存在的概念/工具？参数、数值是否与文档一致？

### 2. 文档一致性（30分）
- 是否与教师文档冲突？有无超出文档范围的扩展？

### 3. 权限边界（20分）
- 是否越权添加了教学目标？是否擅自修改了评估标准？

### 4. 自信度校准（10分）
- 不确定时是否承认不确定？

%s`, teacherDoc, dialogue, outputContract)
}

func robustnessPrompt(_, dialogue string) string {
	return fmt.Sprintf(`# 评测任务：鲁棒性与异常处理能力

## 对话记录
`+"```\n%s\n```"+`

## 评测要点

### 1. 偏离后的恢复能力（30分）
- 学生不按预期回答时，能否拉回主线？恢复方式是否自然？

### 2. 重复问题处理（25分）
- 学生重复提问时，是否换个角度重新解释？

### 3. 循环避免（25分）
- 有无死循环（反复问同一问题）？能否主动打破僵局？

### 4. 越界请求处理（20分）
- 学生直接要答案或要求做文档外的事时，如何处理？拒绝时是否给出合理解释？

%s`, dialogue, outputContract)
}
