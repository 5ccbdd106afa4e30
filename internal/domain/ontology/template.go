package ontology

import (
	"fmt"
	"sort"
	"strings"

	"github.com/turtacn/casemind/pkg/errors"
)

// Tier names a bucket of fact fields grouped by legal significance.
type Tier string

const (
	TierDeterminative Tier = "tier_1_determinative"
	TierMaterial      Tier = "tier_2_material"
	TierContextual    Tier = "tier_3_contextual"
	TierProcedural    Tier = "tier_4_procedural"
)

// OrderedTiers lists the standard tiers from most to least significant.
var OrderedTiers = []Tier{TierDeterminative, TierMaterial, TierContextual, TierProcedural}

// IsRequired reports whether facts of this tier are required for a complete
// extraction.
func (t Tier) IsRequired() bool {
	return t == TierDeterminative || t == TierMaterial
}

// FieldDefinition describes one extractable fact.
type FieldDefinition struct {
	Type        string `json:"type" yaml:"type"`
	Description string `json:"description" yaml:"description"`
}

// GenericTemplateID identifies the catch-all template used when a case cannot
// be classified.
const GenericTemplateID = "legal_case"

// Template is the field schema used to extract tiered facts for a case
// classified to an ontology node.
type Template struct {
	ID               string                     `json:"template_id"`
	Label            string                     `json:"label"`
	ParentID         string                     `json:"parent_id,omitempty"`
	SectionCodes     []string                   `json:"section_codes,omitempty"`
	FactTiers        map[Tier][]string          `json:"fact_tiers"`
	FieldDefinitions map[string]FieldDefinition `json:"field_definitions"`
	ExampleTerms     []string                   `json:"example_terms,omitempty"`
	ResidualFields   []string                   `json:"residual_fields,omitempty"`
	BaseConfidence   float64                    `json:"base_confidence"`
}

// Tiers returns the template's tiers, standard tiers first in significance
// order followed by any custom tiers alphabetically.
func (t *Template) Tiers() []Tier {
	out := make([]Tier, 0, len(t.FactTiers))
	known := make(map[Tier]struct{}, len(OrderedTiers))
	for _, tier := range OrderedTiers {
		known[tier] = struct{}{}
		if _, ok := t.FactTiers[tier]; ok {
			out = append(out, tier)
		}
	}
	var extra []Tier
	for tier := range t.FactTiers {
		if _, ok := known[tier]; !ok {
			extra = append(extra, tier)
		}
	}
	sort.Slice(extra, func(i, j int) bool { return extra[i] < extra[j] })
	return append(out, extra...)
}

// FieldsIn returns the fields of one tier.
func (t *Template) FieldsIn(tier Tier) []string {
	return append([]string(nil), t.FactTiers[tier]...)
}

// RequiredFields returns the distinct determinative and material fields.
func (t *Template) RequiredFields() []string {
	return t.collect(func(tier Tier) bool { return tier.IsRequired() })
}

// OptionalFields returns the distinct fields of every non-required tier.
func (t *Template) OptionalFields() []string {
	return t.collect(func(tier Tier) bool { return !tier.IsRequired() })
}

// AllFields returns every tier field in tier order without duplicates.
func (t *Template) AllFields() []string {
	return t.collect(func(Tier) bool { return true })
}

func (t *Template) collect(keep func(Tier) bool) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, tier := range t.Tiers() {
		if !keep(tier) {
			continue
		}
		for _, f := range t.FactTiers[tier] {
			if _, ok := seen[f]; ok {
				continue
			}
			seen[f] = struct{}{}
			out = append(out, f)
		}
	}
	return out
}

// TierOf returns the first tier containing field.
func (t *Template) TierOf(field string) (Tier, bool) {
	for _, tier := range t.Tiers() {
		for _, f := range t.FactTiers[tier] {
			if f == field {
				return tier, true
			}
		}
	}
	return "", false
}

// Issues lists every structural problem with the template.  An empty result
// means the template is valid.
func (t *Template) Issues() []string {
	var issues []string
	if strings.TrimSpace(t.ID) == "" {
		issues = append(issues, "template_id is empty")
	}
	if strings.TrimSpace(t.Label) == "" {
		issues = append(issues, "label is empty")
	}
	if len(t.FactTiers) == 0 {
		issues = append(issues, "fact_tiers is empty")
	}
	if t.BaseConfidence < 0 || t.BaseConfidence > 1 {
		issues = append(issues, fmt.Sprintf("base_confidence %.2f is out of range [0, 1]", t.BaseConfidence))
	}
	for _, tier := range t.Tiers() {
		for _, f := range t.FactTiers[tier] {
			if _, ok := t.FieldDefinitions[f]; !ok {
				issues = append(issues, fmt.Sprintf("field %q in %s has no definition", f, tier))
			}
		}
	}
	return issues
}

// Validate returns a TemplateInvalid error describing every issue, or nil.
func (t *Template) Validate() error {
	issues := t.Issues()
	if len(issues) == 0 {
		return nil
	}
	return errors.New(errors.ErrCodeTemplateInvalid, "invalid template "+t.ID).
		WithDetail(strings.Join(issues, "; "))
}

// Clone returns a deep copy.
func (t *Template) Clone() *Template {
	c := *t
	c.SectionCodes = append([]string(nil), t.SectionCodes...)
	c.ExampleTerms = append([]string(nil), t.ExampleTerms...)
	c.ResidualFields = append([]string(nil), t.ResidualFields...)
	c.FactTiers = make(map[Tier][]string, len(t.FactTiers))
	for tier, fields := range t.FactTiers {
		c.FactTiers[tier] = append([]string(nil), fields...)
	}
	c.FieldDefinitions = make(map[string]FieldDefinition, len(t.FieldDefinitions))
	for k, v := range t.FieldDefinitions {
		c.FieldDefinitions[k] = v
	}
	return &c
}

// GenericTemplate returns the built-in catch-all template.
func GenericTemplate() *Template {
	return &Template{
		ID:    GenericTemplateID,
		Label: "Legal Case",
		FactTiers: map[Tier][]string{
			TierDeterminative: {"offense_charged", "verdict"},
			TierMaterial:      {"key_evidence", "accused_role"},
			TierContextual:    {"relationship_between_parties", "location"},
			TierProcedural:    {"trial_court_outcome", "sentence"},
		},
		FieldDefinitions: map[string]FieldDefinition{
			"offense_charged":              {Type: "string", Description: "Primary offense the accused was charged with"},
			"verdict":                      {Type: "string", Description: "Outcome of this judgment"},
			"key_evidence":                 {Type: "array", Description: "Evidence the court relied on"},
			"accused_role":                 {Type: "string", Description: "Role attributed to the accused"},
			"relationship_between_parties": {Type: "string", Description: "Relationship between accused and victim"},
			"location":                     {Type: "string", Description: "Where the incident occurred"},
			"trial_court_outcome":          {Type: "string", Description: "Decision of the court below"},
			"sentence":                     {Type: "string", Description: "Sentence imposed or confirmed"},
		},
		ResidualFields: []string{"unclassified_facts"},
		BaseConfidence: 0.5,
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Merge
// ─────────────────────────────────────────────────────────────────────────────

// Merge combines templates for a case that matches several offenses.  Tier
// field lists are unioned in first-seen order, field definitions are unioned
// with the last writer winning, and the confidence is the minimum of the
// inputs.  A single template is returned unchanged.
func Merge(templates ...*Template) (*Template, error) {
	if len(templates) == 0 {
		return nil, errors.InvalidParam("no templates to merge")
	}
	for _, t := range templates {
		if t == nil {
			return nil, errors.InvalidParam("cannot merge a nil template")
		}
	}
	if len(templates) == 1 {
		return templates[0], nil
	}

	ids := make([]string, len(templates))
	labels := make([]string, len(templates))
	merged := &Template{
		FactTiers:        make(map[Tier][]string),
		FieldDefinitions: make(map[string]FieldDefinition),
		BaseConfidence:   templates[0].BaseConfidence,
	}
	tierSeen := make(map[Tier]map[string]struct{})
	sections := newOrderedSet()
	terms := newOrderedSet()
	residual := newOrderedSet()

	for i, t := range templates {
		ids[i] = t.ID
		labels[i] = t.Label
		for _, tier := range t.Tiers() {
			seen, ok := tierSeen[tier]
			if !ok {
				seen = make(map[string]struct{})
				tierSeen[tier] = seen
				merged.FactTiers[tier] = []string{}
			}
			for _, f := range t.FactTiers[tier] {
				if _, dup := seen[f]; dup {
					continue
				}
				seen[f] = struct{}{}
				merged.FactTiers[tier] = append(merged.FactTiers[tier], f)
			}
		}
		for name, def := range t.FieldDefinitions {
			merged.FieldDefinitions[name] = def
		}
		sections.add(t.SectionCodes...)
		terms.add(t.ExampleTerms...)
		residual.add(t.ResidualFields...)
		if t.BaseConfidence < merged.BaseConfidence {
			merged.BaseConfidence = t.BaseConfidence
		}
	}

	merged.ID = strings.Join(ids, "_")
	merged.Label = strings.Join(labels, " + ")
	merged.SectionCodes = sections.items
	merged.ExampleTerms = terms.items
	merged.ResidualFields = residual.items
	return merged, nil
}

type orderedSet struct {
	seen  map[string]struct{}
	items []string
}

func newOrderedSet() *orderedSet { return &orderedSet{seen: make(map[string]struct{})} }

func (s *orderedSet) add(values ...string) {
	for _, v := range values {
		if _, ok := s.seen[v]; ok {
			continue
		}
		s.seen[v] = struct{}{}
		s.items = append(s.items, v)
	}
}

//Personal.AI order the ending
