package compose

import (
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/healthqa/internal/evidence"
)

// Disclaimer accompanies every answer.
const Disclaimer = "本系统为课程设计原型，其提供的信息仅供学术研究和参考，不能作为专业的医疗诊断和治疗建议。如有任何健康问题，请务必咨询执业医师。"

// Apology is the answer when no evidence could be found or retrieved.
const Apology = "抱歉，在知识库中未找到与您问题直接相关的内容。建议您咨询专业医生获取更准确的建议。"

const systemPrompt = `你是一位专业的健康咨询助手。你的任务是基于用户问题和提供的参考资料，生成准确、有帮助的健康建议。

重要规则：
1. 你必须严格基于提供的参考资料回答，不得编造信息。
2. 如果参考资料不足以回答某方面，请明确说明"根据现有资料无法确定"。
3. 对于用药建议，务必提醒用户咨询医生，不可推荐具体处方药。
4. 回答要清晰、结构合理，适当分段。
5. 在回答末尾，引用你使用的证据来源（对应参考资料编号）。
`

const ungroundedSystemPrompt = `你是一位专业的健康咨询助手。当前知识库中没有检索到相关参考资料。

重要规则：
1. 只提供一般性的健康常识，不得给出诊断或具体处方。
2. 在回答开头明确说明"以下内容未基于知识库参考资料"。
3. 对于用药问题，务必提醒用户咨询医生。
4. 回答要简洁，适当分段。
`

const userPromptTemplate = `## 用户问题
%s

## 参考资料（请基于以下内容回答，并注明引用来源编号）
%s

请根据上述参考资料，为用户提供专业、负责任的健康建议。`

// formatContext numbers each passage with its evidence tag and source.
func formatContext(graded []evidence.Graded) string {
	blocks := make([]string, len(graded))
	for i, g := range graded {
		source := g.SourceName
		if source == "" {
			source = "未知来源"
		}
		blocks[i] = fmt.Sprintf("[%d] [证据等级: Level %d - %s]\n来源: %s\n%s\n",
			i+1, g.Level, g.LevelName, source, g.Content)
	}
	return strings.Join(blocks, "\n")
}

func userPrompt(question string, graded []evidence.Graded) string {
	return fmt.Sprintf(userPromptTemplate, question, formatContext(graded))
}
