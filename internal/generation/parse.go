package generation

import (
	"encoding/json"
	"fmt"
	"log"
	"math"

	"timed-quiz-service/internal/domain"
)

type rawQuestion struct {
	ID          string          `json:"id"`
	Topic       string          `json:"topic"`
	Level       string          `json:"level"`
	Question    string          `json:"question"`
	Choices     []string        `json:"choices"`
	AnswerIndex json.RawMessage `json:"answerIndex"`
	Explanation string          `json:"explanation"`
}

// ParseQuestions extracts a {"questions": [...]} document from model text, fills in
// missing fields and drops items that still break the question invariant.
func ParseQuestions(text string, topics []string) ([]domain.Question, error) {
	raw, err := ExtractJSON(text)
	if err != nil {
		return nil, err
	}
	var doc struct {
		Questions []json.RawMessage `json:"questions"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnparsable, err)
	}

	total := len(doc.Questions)
	seen := make(map[string]struct{}, total)
	out := make([]domain.Question, 0, total)
	for idx, item := range doc.Questions {
		var rq rawQuestion
		if err := json.Unmarshal(item, &rq); err != nil {
			log.Printf("generation: dropping question %d: %v", idx+1, err)
			continue
		}
		q := normalize(rq, idx, total, topics, seen)
		if err := validateQuestion(q); err != nil {
			log.Printf("generation: dropping question %d: %v", idx+1, err)
			continue
		}
		seen[q.ID] = struct{}{}
		out = append(out, q)
	}
	if len(out) == 0 {
		return nil, ErrNoQuestions
	}
	return out, nil
}

func normalize(rq rawQuestion, idx, total int, topics []string, seen map[string]struct{}) domain.Question {
	id := rq.ID
	if _, dup := seen[id]; id == "" || dup {
		for n := idx + 1; ; n++ {
			id = fmt.Sprintf("q%d", n)
			if _, taken := seen[id]; !taken {
				break
			}
		}
	}

	topic := rq.Topic
	if topic == "" && len(topics) > 0 {
		topic = topics[idx%len(topics)]
	}

	level := domain.Level(rq.Level)
	if !level.Valid() {
		level = domain.LevelIntermediate
		if idx*2 < total {
			level = domain.LevelBeginner
		}
	}

	choices := rq.Choices
	if len(choices) > domain.ChoiceCount {
		choices = choices[:domain.ChoiceCount]
	}

	return domain.Question{
		ID:          id,
		Topic:       topic,
		Level:       level,
		Prompt:      rq.Question,
		Choices:     append([]string(nil), choices...),
		AnswerIndex: answerIndex(rq.AnswerIndex),
		Explanation: rq.Explanation,
	}
}

// answerIndex accepts JSON integers only; anything else becomes 0.
func answerIndex(raw json.RawMessage) int {
	var f float64
	if len(raw) == 0 || json.Unmarshal(raw, &f) != nil || f != math.Trunc(f) {
		return 0
	}
	return int(f)
}
