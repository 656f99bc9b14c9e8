package generation

import (
	"fmt"
	"strings"

	"timed-quiz-service/internal/domain"
)

// BuildPrompt renders the instructor prompt for a topic list.
func BuildPrompt(topics []string) string {
	topics = domain.CleanTopics(topics)
	return fmt.Sprintf(`You are a senior instructor. Build a beginner-to-intermediate multiple choice quiz strictly in JSON.
Topics: %s
Return JSON only with this shape:
{
  "questions": [
    {
      "id": "q1",
      "topic": "<one of topics>",
      "level": "beginner|intermediate",
      "question": "text",
      "choices": ["A","B","C","D"],
      "answerIndex": 0,
      "explanation": "why the answer is correct"
    }
  ]
}
Rules:
- 8 to 12 questions total.
- Use clear, concise wording.
- Vary between beginner and intermediate.
- choices length 4.
- Ensure answerIndex is an integer 0-3 and matches choices.
- Do NOT include any prose outside the JSON.`, strings.Join(topics, ", "))
}
