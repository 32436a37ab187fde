package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/casemind/casemind-go/internal/models"
)

// maxPromptChars caps how much document text is sent to the model. Court
// judgments routinely exceed context windows; the head of the document
// carries the metadata and the operative parts.
const maxPromptChars = 48000

// Extractor produces structured summaries and template facts from raw
// document text.
type Extractor interface {
	ExtractSummary(ctx context.Context, text string) (*models.CaseSummary, error)
	ExtractTemplateFacts(ctx context.Context, text, templateID string) (*models.TemplateFacts, error)
}

// Generator is the text-generation surface the extractor needs from a model.
type Generator interface {
	GenerateWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	Model() string
}

// SummaryExtractor implements Extractor on top of a chat model. The model is
// asked for strict JSON; responses wrapped in markdown fences are unwrapped
// before parsing.
type SummaryExtractor struct {
	model Generator
}

var _ Extractor = (*SummaryExtractor)(nil)

// NewExtractor creates an extractor backed by the given model.
func NewExtractor(model Generator) *SummaryExtractor {
	return &SummaryExtractor{model: model}
}

const summarySystemPrompt = `You are a legal analyst summarizing Indian court judgments.
Respond with a single JSON object and nothing else. The object has a
"metadata" object (case_number, case_title, court_name, judgment_date,
sections_invoked, judges_coram, appellant_or_petitioner, respondent,
case_type, citation, counsel_for_appellant, counsel_for_respondent,
most_appropriate_section) and six string arrays: case_facts,
issues_for_determination, evidence, arguments, reasoning, judgement.
Each array entry is one complete sentence. Use empty strings or empty
arrays for facts the document does not state. Never invent facts.`

const templateSystemPrompt = `You are a legal analyst extracting template-specific facts from an
Indian court judgment. Respond with a single JSON object mapping fact
names to values. Values may be strings, numbers, arrays, or nested
objects. Only include facts the document actually states.`

// ExtractSummary runs the primary extraction pass over the document text.
func (e *SummaryExtractor) ExtractSummary(ctx context.Context, text string) (*models.CaseSummary, error) {
	start := time.Now()
	response, err := e.model.GenerateWithSystem(ctx, summarySystemPrompt, truncate(text))
	if err != nil {
		return nil, fmt.Errorf("extract summary: %w", err)
	}

	var summary models.CaseSummary
	if err := json.Unmarshal([]byte(extractJSON(response)), &summary); err != nil {
		slog.Warn("summary response not parseable", "model", e.model.Model(), "error", err)
		return nil, fmt.Errorf("extract summary: %w: %w", ErrMalformedResponse, err)
	}

	slog.Debug("summary extracted",
		"model", e.model.Model(),
		"case_number", summary.Metadata.CaseNumber,
		"duration_ms", time.Since(start).Milliseconds())
	return &summary, nil
}

// ExtractTemplateFacts runs the secondary extraction pass for a template.
func (e *SummaryExtractor) ExtractTemplateFacts(ctx context.Context, text, templateID string) (*models.TemplateFacts, error) {
	prompt := fmt.Sprintf("Template: %s\n\nDocument:\n%s", templateID, truncate(text))
	response, err := e.model.GenerateWithSystem(ctx, templateSystemPrompt, prompt)
	if err != nil {
		return nil, fmt.Errorf("extract template facts: %w", err)
	}

	var facts map[string]any
	if err := json.Unmarshal([]byte(extractJSON(response)), &facts); err != nil {
		return nil, fmt.Errorf("extract template facts: %w: %w", ErrMalformedResponse, err)
	}

	return &models.TemplateFacts{
		TemplateID:     templateID,
		ExtractedFacts: facts,
	}, nil
}

func truncate(text string) string {
	if len(text) <= maxPromptChars {
		return text
	}
	return text[:maxPromptChars]
}

// extractJSON unwraps markdown code fences and trims chatter around the
// outermost JSON object.
func extractJSON(response string) string {
	s := strings.TrimSpace(response)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}

	first := strings.Index(s, "{")
	last := strings.LastIndex(s, "}")
	if first >= 0 && last > first {
		return s[first : last+1]
	}
	return s
}
