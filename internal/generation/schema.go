package generation

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"timed-quiz-service/internal/domain"
)

func questionItemDefinition() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"id":    map[string]any{"type": "string", "minLength": 1},
			"topic": map[string]any{"type": "string"},
			"level": map[string]any{
				"type": "string",
				"enum": []any{string(domain.LevelBeginner), string(domain.LevelIntermediate)},
			},
			"question": map[string]any{"type": "string", "minLength": 1},
			"choices": map[string]any{
				"type":     "array",
				"minItems": domain.ChoiceCount,
				"maxItems": domain.ChoiceCount,
				"items":    map[string]any{"type": "string", "minLength": 1},
			},
			"answerIndex": map[string]any{"type": "integer", "minimum": 0, "maximum": domain.ChoiceCount - 1},
			"explanation": map[string]any{"type": "string"},
		},
		"required": []any{"id", "level", "question", "choices", "answerIndex"},
	}
}

// QuestionSetSchema is sent to providers that support structured output.
var QuestionSetSchema = &Schema{
	Name:        "quiz-questions",
	Description: "A multiple choice quiz with four choices per question.",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"questions": map[string]any{
				"type":  "array",
				"items": questionItemDefinition(),
			},
		},
		"required": []any{"questions"},
	},
}

var (
	itemSchemaOnce sync.Once
	itemSchema     *jsonschema.Schema
	itemSchemaErr  error
)

func compiledItemSchema() (*jsonschema.Schema, error) {
	itemSchemaOnce.Do(func() {
		// The compiler wants plain decoded JSON, not Go ints.
		defBytes, err := json.Marshal(questionItemDefinition())
		if err != nil {
			itemSchemaErr = fmt.Errorf("marshal schema definition: %w", err)
			return
		}
		var def any
		if err := json.Unmarshal(defBytes, &def); err != nil {
			itemSchemaErr = fmt.Errorf("parse schema definition: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		const url = "schema://quiz-question.json"
		if err := c.AddResource(url, def); err != nil {
			itemSchemaErr = fmt.Errorf("add resource: %w", err)
			return
		}
		itemSchema, itemSchemaErr = c.Compile(url)
	})
	return itemSchema, itemSchemaErr
}

// validateQuestion checks a normalised question against the item schema and the domain invariant.
func validateQuestion(q domain.Question) error {
	schema, err := compiledItemSchema()
	if err != nil {
		return err
	}
	raw, err := json.Marshal(q)
	if err != nil {
		return fmt.Errorf("marshal question: %w", err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("parse question: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidQuestion, err)
	}
	return q.Validate()
}
