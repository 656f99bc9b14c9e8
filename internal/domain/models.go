package domain

import (
	"fmt"
	"strings"
	"time"
)

// ChoiceCount is the number of options every question carries.
const ChoiceCount = 4

// MaxTopics is how many topics are forwarded to question generation.
const MaxTopics = 12

// CleanTopics trims topics, drops blanks and keeps at most MaxTopics.
func CleanTopics(topics []string) []string {
	out := make([]string, 0, len(topics))
	for _, t := range topics {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		out = append(out, t)
		if len(out) == MaxTopics {
			break
		}
	}
	return out
}

// Level is the difficulty label attached to a question.
type Level string

const (
	LevelBeginner     Level = "beginner"
	LevelIntermediate Level = "intermediate"
)

// Valid reports whether l is one of the known levels.
func (l Level) Valid() bool {
	return l == LevelBeginner || l == LevelIntermediate
}

// Question models an MCQ question with exactly four choices and one correct index.
type Question struct {
	ID          string   `json:"id"`
	Topic       string   `json:"topic"`
	Level       Level    `json:"level"`
	Prompt      string   `json:"question"`
	Choices     []string `json:"choices"`
	AnswerIndex int      `json:"answerIndex"`
	Explanation string   `json:"explanation,omitempty"`
}

// Validate checks the question invariant. It never repairs the question.
func (q Question) Validate() error {
	if q.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidQuestion)
	}
	if q.Prompt == "" {
		return fmt.Errorf("%w: question %s has no prompt", ErrInvalidQuestion, q.ID)
	}
	if !q.Level.Valid() {
		return fmt.Errorf("%w: question %s has unknown level %q", ErrInvalidQuestion, q.ID, q.Level)
	}
	if len(q.Choices) != ChoiceCount {
		return fmt.Errorf("%w: question %s has %d choices", ErrInvalidQuestion, q.ID, len(q.Choices))
	}
	seen := make(map[string]struct{}, len(q.Choices))
	for _, c := range q.Choices {
		if _, dup := seen[c]; dup {
			return fmt.Errorf("%w: question %s repeats choice %q", ErrInvalidQuestion, q.ID, c)
		}
		seen[c] = struct{}{}
	}
	if q.AnswerIndex < 0 || q.AnswerIndex >= ChoiceCount {
		return fmt.Errorf("%w: question %s answer index %d out of range", ErrInvalidQuestion, q.ID, q.AnswerIndex)
	}
	return nil
}

// ValidateQuestionSet rejects empty sets, duplicate ids and any invalid question.
func ValidateQuestionSet(questions []Question) error {
	if len(questions) == 0 {
		return ErrNoQuestions
	}
	ids := make(map[string]struct{}, len(questions))
	for _, q := range questions {
		if err := q.Validate(); err != nil {
			return err
		}
		if _, dup := ids[q.ID]; dup {
			return fmt.Errorf("%w: duplicate id %s", ErrInvalidQuestion, q.ID)
		}
		ids[q.ID] = struct{}{}
	}
	return nil
}

// CloneQuestions deep-copies a question set so sessions never share slices.
func CloneQuestions(questions []Question) []Question {
	out := make([]Question, len(questions))
	for i, q := range questions {
		q.Choices = append([]string(nil), q.Choices...)
		out[i] = q
	}
	return out
}

// Phase is the lifecycle state of a session.
type Phase string

const (
	PhaseLoading    Phase = "loading"
	PhaseError      Phase = "error"
	PhaseInProgress Phase = "in_progress"
	PhaseSubmitted  Phase = "submitted"
)

// GatingMode selects where the "answer everything" rule is enforced.
type GatingMode string

const (
	// GatingStrict blocks forward navigation past an unanswered question.
	GatingStrict GatingMode = "strict"
	// GatingFree allows any navigation and only blocks submission.
	GatingFree GatingMode = "free"
)

// ParseGatingMode maps a config value to a mode, defaulting to strict.
func ParseGatingMode(raw string) (GatingMode, error) {
	switch GatingMode(raw) {
	case "", GatingStrict:
		return GatingStrict, nil
	case GatingFree:
		return GatingFree, nil
	}
	return "", fmt.Errorf("unknown gating mode %q", raw)
}

// DurationPolicy derives the quiz length from the question count.
type DurationPolicy struct {
	FloorSec       int `yaml:"floor_sec" json:"floorSec"`
	PerQuestionSec int `yaml:"per_question_sec" json:"perQuestionSec"`
}

// DefaultDurationPolicy gives five minutes minimum and thirty seconds per question.
var DefaultDurationPolicy = DurationPolicy{FloorSec: 300, PerQuestionSec: 30}

// Validate rejects negative values and a policy that can never produce a running clock.
func (p DurationPolicy) Validate() error {
	if p.FloorSec < 0 || p.PerQuestionSec < 0 {
		return fmt.Errorf("%w: floor_sec and per_question_sec must not be negative", ErrInvalidDuration)
	}
	if p.FloorSec == 0 && p.PerQuestionSec == 0 {
		return fmt.Errorf("%w: floor_sec or per_question_sec must be positive", ErrInvalidDuration)
	}
	return nil
}

// Total returns max(FloorSec, count*PerQuestionSec), never less than one second.
func (p DurationPolicy) Total(count int) int {
	total := count * p.PerQuestionSec
	if total < p.FloorSec {
		total = p.FloorSec
	}
	if total < 1 {
		total = 1
	}
	return total
}

// Score counts questions whose recorded answer matches the correct index.
// Missing answers score as incorrect.
func Score(questions []Question, answers map[string]int) int {
	score := 0
	for _, q := range questions {
		if selected, ok := answers[q.ID]; ok && selected == q.AnswerIndex {
			score++
		}
	}
	return score
}

// Outcome is the per-question breakdown shown after submission.
type Outcome struct {
	QuestionID   string   `json:"questionId"`
	Topic        string   `json:"topic"`
	Level        Level    `json:"level"`
	Prompt       string   `json:"question"`
	Choices      []string `json:"choices"`
	Selected     int      `json:"selected"` // -1 when unanswered
	Answered     bool     `json:"answered"`
	CorrectIndex int      `json:"correctIndex"`
	Correct      bool     `json:"correct"`
	Explanation  string   `json:"explanation,omitempty"`
}

// Result is the frozen outcome of a submission.
type Result struct {
	Score       int       `json:"score"`
	Total       int       `json:"total"`
	AccuracyPct int       `json:"accuracyPct"`
	ElapsedSec  int       `json:"elapsedSec"`
	TimeTaken   string    `json:"timeTaken"`
	Forced      bool      `json:"forced"`
	Outcomes    []Outcome `json:"outcomes"`
}

// BuildResult scores a question set and assembles the breakdown.
func BuildResult(questions []Question, answers map[string]int, elapsedSec int, forced bool) Result {
	outcomes := make([]Outcome, len(questions))
	for i, q := range questions {
		selected, answered := answers[q.ID]
		if !answered {
			selected = -1
		}
		outcomes[i] = Outcome{
			QuestionID:   q.ID,
			Topic:        q.Topic,
			Level:        q.Level,
			Prompt:       q.Prompt,
			Choices:      append([]string(nil), q.Choices...),
			Selected:     selected,
			Answered:     answered,
			CorrectIndex: q.AnswerIndex,
			Correct:      answered && selected == q.AnswerIndex,
			Explanation:  q.Explanation,
		}
	}
	score := Score(questions, answers)
	accuracy := 0
	if len(questions) > 0 {
		accuracy = (score*100 + len(questions)/2) / len(questions)
	}
	return Result{
		Score:       score,
		Total:       len(questions),
		AccuracyPct: accuracy,
		ElapsedSec:  elapsedSec,
		TimeTaken:   FormatClock(elapsedSec),
		Forced:      forced,
		Outcomes:    outcomes,
	}
}

// FormatClock renders seconds as mm:ss.
func FormatClock(sec int) string {
	if sec < 0 {
		sec = 0
	}
	return fmt.Sprintf("%02d:%02d", sec/60, sec%60)
}

// Attention classifies how urgent the remaining time is.
type Attention string

const (
	AttentionOK     Attention = "ok"
	AttentionWarn   Attention = "warn"
	AttentionDanger Attention = "danger"
)

// AttentionFor maps a remaining-time ratio to an attention level.
func AttentionFor(ratio float64) Attention {
	switch {
	case ratio <= 0.2:
		return AttentionDanger
	case ratio <= 0.5:
		return AttentionWarn
	default:
		return AttentionOK
	}
}

// QuestionView is a question as shown while the quiz is running (no answer key).
type QuestionView struct {
	ID      string   `json:"id"`
	Topic   string   `json:"topic"`
	Level   Level    `json:"level"`
	Prompt  string   `json:"question"`
	Choices []string `json:"choices"`
}

// Hint is a user-facing gating message tied to a question index.
type Hint struct {
	QuestionIndex int    `json:"questionIndex"`
	QuestionID    string `json:"questionId"`
	Message       string `json:"message"`
}

// Snapshot is the read model handed to the hosting view.
type Snapshot struct {
	SessionID     string        `json:"sessionId"`
	Phase         Phase         `json:"phase"`
	Error         string        `json:"error,omitempty"`
	Gating        GatingMode    `json:"gating"`
	CurrentIndex  int           `json:"currentIndex"`
	Count         int           `json:"count"`
	AnsweredCount int           `json:"answeredCount"`
	RemainingSec  int           `json:"remainingSec"`
	TotalSec      int           `json:"totalSec"`
	TimeRatio     float64       `json:"timeRatio"`
	Attention     Attention     `json:"attention"`
	Clock         string        `json:"clock"`
	Current       *QuestionView `json:"current,omitempty"`
	Selected      *int          `json:"selected,omitempty"`
	Hint          *Hint         `json:"hint,omitempty"`
	Result        *Result       `json:"result,omitempty"`
	UpdatedAt     time.Time     `json:"updatedAt"`
}

// Attempt is the summary recorded once per submission.
type Attempt struct {
	SessionID   string    `json:"sessionId"`
	Number      int       `json:"number"`
	Topics      []string  `json:"topics"`
	Score       int       `json:"score"`
	Total       int       `json:"total"`
	ElapsedSec  int       `json:"elapsedSec"`
	TotalSec    int       `json:"totalSec"`
	Forced      bool      `json:"forced"`
	SubmittedAt time.Time `json:"submittedAt"`
}
