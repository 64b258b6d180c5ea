package extract

import (
	"strings"

	"github.com/sells-group/policy-tracker/internal/model"
)

const verifySystem = "你是台灣政治政見分析專家。請分析使用者提供的內容，判斷是否與台灣選舉相關，是否包含具體政見。只回傳 JSON，不要其他文字。"

const verifyFormat = `請以 JSON 格式回答：
{
  "is_election_related": boolean,
  "is_policy_content": boolean,
  "politician_name": string | null,
  "election_year": number | null,
  "position": string | null,
  "policies": [
    {
      "title": string,
      "description": string,
      "category": "交通建設" | "社會福利" | "經濟發展" | "環境保護" | "教育文化" | "居住正義" | "其他",
      "tags": string[]
    }
  ],
  "summary": string,
  "confidence": number
}
confidence 介於 0 與 1 之間。`

// buildVerifyPrompt embeds the message and optional page text, each cut to
// maxChars runes.
func buildVerifyPrompt(message, content string, maxChars int) string {
	var b strings.Builder
	b.WriteString("用戶提交的訊息：\n")
	b.WriteString(model.Truncate(strings.TrimSpace(message), maxChars))
	b.WriteString("\n\n")
	if content = strings.TrimSpace(content); content != "" {
		b.WriteString("相關網址內容：\n")
		b.WriteString(model.Truncate(content, maxChars))
		b.WriteString("\n\n")
	}
	b.WriteString(verifyFormat)
	return b.String()
}
