package models

import (
	"fmt"
	"sort"
	"strings"
)

// CaseMetadata is the structured metadata block of an extraction result.
type CaseMetadata struct {
	CaseNumber           string   `json:"case_number,omitempty"`
	CaseTitle            string   `json:"case_title,omitempty"`
	CourtName            string   `json:"court_name,omitempty"`
	JudgmentDate         string   `json:"judgment_date,omitempty"`
	SectionsInvoked      []string `json:"sections_invoked,omitempty"`
	JudgesCoram          []string `json:"judges_coram,omitempty"`
	Appellant            string   `json:"appellant_or_petitioner,omitempty"`
	Respondent           string   `json:"respondent,omitempty"`
	CaseType             string   `json:"case_type,omitempty"`
	Citation             string   `json:"citation,omitempty"`
	CounselForAppellant  string   `json:"counsel_for_appellant,omitempty"`
	CounselForRespondent string   `json:"counsel_for_respondent,omitempty"`
	MostAppropriateSect  string   `json:"most_appropriate_section,omitempty"`
}

// CaseSummary is the structured summary extracted from a case document.
type CaseSummary struct {
	Metadata               CaseMetadata `json:"metadata"`
	CaseFacts              []string     `json:"case_facts,omitempty"`
	IssuesForDetermination []string     `json:"issues_for_determination,omitempty"`
	Evidence               []string     `json:"evidence,omitempty"`
	Arguments              []string     `json:"arguments,omitempty"`
	Reasoning              []string     `json:"reasoning,omitempty"`
	Judgement              []string     `json:"judgement,omitempty"`
}

// TemplateFacts holds template-specific facts extracted in a second pass.
// ExtractedFacts is free-form because each template defines its own shape.
type TemplateFacts struct {
	TemplateID     string         `json:"template_id"`
	ExtractedFacts map[string]any `json:"extracted_facts,omitempty"`
}

// SectionText is one derived section body, ready for embedding and storage.
type SectionText struct {
	Name     string
	Sequence int
	Text     string
}

// sectionNames fixes the order of the six summary-derived sections.
var sectionNames = []string{
	"case_facts",
	"issues_for_determination",
	"evidence",
	"arguments",
	"reasoning",
	"judgement",
}

// Sections flattens the summary into ordered section texts, skipping empty
// bodies. Template facts, when present, are appended as a seventh section.
func (s *CaseSummary) Sections(facts *TemplateFacts) []SectionText {
	bodies := [][]string{
		s.CaseFacts,
		s.IssuesForDetermination,
		s.Evidence,
		s.Arguments,
		s.Reasoning,
		s.Judgement,
	}

	var sections []SectionText
	for i, name := range sectionNames {
		if len(bodies[i]) == 0 {
			continue
		}
		sections = append(sections, SectionText{
			Name:     name,
			Sequence: i,
			Text:     strings.Join(bodies[i], "\n"),
		})
	}

	if facts != nil {
		sections = append(sections, SectionText{
			Name:     "template_facts",
			Sequence: len(sectionNames),
			Text:     facts.Render(),
		})
	}

	return sections
}

// Render formats the template facts as readable text for storage and
// embedding.
func (f *TemplateFacts) Render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Template: %s\n\n", f.TemplateID)

	keys := make([]string, 0, len(f.ExtractedFacts))
	for k := range f.ExtractedFacts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		renderFact(&b, key, f.ExtractedFacts[key], 0)
	}
	return b.String()
}

func renderFact(b *strings.Builder, key string, value any, depth int) {
	indent := strings.Repeat("  ", depth)
	switch v := value.(type) {
	case map[string]any:
		fmt.Fprintf(b, "%s%s:\n", indent, strings.ToUpper(key))
		subKeys := make([]string, 0, len(v))
		for k := range v {
			subKeys = append(subKeys, k)
		}
		sort.Strings(subKeys)
		for _, k := range subKeys {
			renderFact(b, k, v[k], depth+1)
		}
	case []any:
		parts := make([]string, len(v))
		for i, item := range v {
			parts[i] = fmt.Sprint(item)
		}
		fmt.Fprintf(b, "%s%s: %s\n", indent, key, strings.Join(parts, ", "))
	default:
		fmt.Fprintf(b, "%s%s: %v\n", indent, key, v)
	}
}
