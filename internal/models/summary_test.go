package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSummarySections(t *testing.T) {
	summary := &CaseSummary{
		CaseFacts: []string{"The accused was arrested.", "Charges were framed."},
		Reasoning: []string{"The evidence is consistent."},
		Judgement: []string{"The appeal is dismissed."},
	}

	sections := summary.Sections(nil)

	assert.Len(t, sections, 3)
	assert.Equal(t, "case_facts", sections[0].Name)
	assert.Equal(t, 0, sections[0].Sequence)
	assert.Equal(t, "The accused was arrested.\nCharges were framed.", sections[0].Text)

	// Empty bodies are skipped but sequence numbers keep their slot.
	assert.Equal(t, "reasoning", sections[1].Name)
	assert.Equal(t, 4, sections[1].Sequence)
	assert.Equal(t, "judgement", sections[2].Name)
	assert.Equal(t, 5, sections[2].Sequence)
}

func TestSummarySectionsWithTemplateFacts(t *testing.T) {
	summary := &CaseSummary{Judgement: []string{"Dismissed."}}
	facts := &TemplateFacts{
		TemplateID: "writ_petition",
		ExtractedFacts: map[string]any{
			"relief_sought": "quashing of the order",
		},
	}

	sections := summary.Sections(facts)

	assert.Len(t, sections, 2)
	last := sections[len(sections)-1]
	assert.Equal(t, "template_facts", last.Name)
	assert.Equal(t, 6, last.Sequence)
	assert.Contains(t, last.Text, "writ_petition")
	assert.Contains(t, last.Text, "relief_sought: quashing of the order")
}

func TestSummarySectionsAllEmpty(t *testing.T) {
	assert.Empty(t, (&CaseSummary{}).Sections(nil))
}

func TestTemplateFactsRender(t *testing.T) {
	facts := &TemplateFacts{
		TemplateID: "bail_application",
		ExtractedFacts: map[string]any{
			"offence_sections": []any{"302", "34"},
			"custody": map[string]any{
				"duration_days": 90,
				"location":      "Tihar",
			},
			"bail_granted": true,
		},
	}

	out := facts.Render()

	assert.Contains(t, out, "Template: bail_application")
	assert.Contains(t, out, "bail_granted: true")
	assert.Contains(t, out, "offence_sections: 302, 34")
	assert.Contains(t, out, "CUSTODY:\n")
	assert.Contains(t, out, "  duration_days: 90")
	assert.Contains(t, out, "  location: Tihar")

	// Map iteration must not change the rendered order.
	assert.Equal(t, out, facts.Render())
}
