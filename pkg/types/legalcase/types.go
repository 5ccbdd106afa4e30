// Package legalcase holds value types describing a legal case document that
// are shared between the domain, application and transport layers.
package legalcase

import (
	"strings"
	"time"
)

// CaseMetadata is the structured header extracted from a judgment.
type CaseMetadata struct {
	CaseNumber             string   `json:"case_number" yaml:"case_number"`
	Title                  string   `json:"case_title" yaml:"case_title"`
	Court                  string   `json:"court_name" yaml:"court_name"`
	JudgmentDate           string   `json:"judgment_date,omitempty" yaml:"judgment_date,omitempty"`
	CaseType               string   `json:"case_type,omitempty" yaml:"case_type,omitempty"`
	Appellants             []string `json:"appellants,omitempty" yaml:"appellants,omitempty"`
	Respondents            []string `json:"respondents,omitempty" yaml:"respondents,omitempty"`
	Judges                 []string `json:"judges,omitempty" yaml:"judges,omitempty"`
	SectionsInvoked        []string `json:"sections_invoked" yaml:"sections_invoked"`
	MostAppropriateSection string   `json:"most_appropriate_section,omitempty" yaml:"most_appropriate_section,omitempty"`
}

// QueryText renders the metadata as retrieval text:
// "{sections joined by space} {court} {title}".  Empty parts are skipped.
func (m CaseMetadata) QueryText() string {
	parts := make([]string, 0, 3)
	if s := strings.TrimSpace(strings.Join(m.SectionsInvoked, " ")); s != "" {
		parts = append(parts, s)
	}
	if c := strings.TrimSpace(m.Court); c != "" {
		parts = append(parts, c)
	}
	if t := strings.TrimSpace(m.Title); t != "" {
		parts = append(parts, t)
	}
	return strings.Join(parts, " ")
}

// ParsedDate parses JudgmentDate in the formats judgments commonly use.
func (m CaseMetadata) ParsedDate() (time.Time, bool) {
	for _, layout := range []string{"2006-01-02", "02.01.2006", "02-01-2006", "02/01/2006", "2 January 2006", "January 2, 2006"} {
		if t, err := time.Parse(layout, strings.TrimSpace(m.JudgmentDate)); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// TierFacts maps a field name to its extracted value.
type TierFacts map[string]interface{}

// ExtractedFacts holds template-driven facts grouped by tier, plus a free-text
// summary used as the default retrieval text.
type ExtractedFacts struct {
	TemplateID string               `json:"template_id"`
	Tiers      map[string]TierFacts `json:"tiers"`
	Residual   TierFacts            `json:"residual_details,omitempty"`
	Summary    string               `json:"summary"`
}

// FieldCount returns the number of non-empty extracted fields.
func (f ExtractedFacts) FieldCount() int {
	n := 0
	for _, tier := range f.Tiers {
		for _, v := range tier {
			if !isEmptyValue(v) {
				n++
			}
		}
	}
	return n
}

func isEmptyValue(v interface{}) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(x) == ""
	case []string:
		return len(x) == 0
	case []interface{}:
		return len(x) == 0
	}
	return false
}

//Personal.AI order the ending
