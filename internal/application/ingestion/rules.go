package ingestion

import (
	"context"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/turtacn/casemind/internal/domain/ontology"
	apperrors "github.com/turtacn/casemind/pkg/errors"
	"github.com/turtacn/casemind/pkg/types/legalcase"
)

// ---------------------------------------------------------------------------
// PlainTextSource
// ---------------------------------------------------------------------------

// PlainTextSource accepts documents that are already UTF-8 text (markdown or
// plain text converted upstream).
type PlainTextSource struct{}

func (PlainTextSource) Text(_ context.Context, raw []byte, name string) (string, error) {
	if !utf8.Valid(raw) {
		return "", apperrors.New(apperrors.ErrCodeExtractionFailed, "document is not UTF-8 text").WithDetail(name)
	}
	text := strings.TrimSpace(strings.ReplaceAll(string(raw), "\r\n", "\n"))
	if text == "" {
		return "", apperrors.New(apperrors.ErrCodeExtractionFailed, "document has no text").WithDetail(name)
	}
	return text, nil
}

// ---------------------------------------------------------------------------
// RuleExtractor
// ---------------------------------------------------------------------------

// RuleExtractor is a deterministic, pattern-based Extractor.  It recognises
// the usual layout of Indian court judgments and labelled "field: value"
// lines; anything it cannot find is left empty.
type RuleExtractor struct {
	// MaxSummaryChars caps the summary length. Zero means 1200.
	MaxSummaryChars int
}

var (
	titleRe      = regexp.MustCompile(`(?i)^(.{2,200}?)\s+(?:vs\.?|v\.|versus)\s+(.{2,200})$`)
	courtRe      = regexp.MustCompile(`(?i)\b(supreme court|high court|sessions court|district court|court of)\b`)
	caseNumberRe = regexp.MustCompile(`(?i)\b((?:crl\.?\s*a\.?|criminal appeal|crl\.?\s*rev\.?\s*p\.?|w\.?p\.?\s*\(?c(?:rl)?\)?|bail appln\.?|cr\.?\s*appeal|mat\.?\s*app\.?)\s*(?:no\.?\s*)?\d+\s*(?:/|of)\s*\d{4})`)
	dateRe       = regexp.MustCompile(`(?i)(?:date of (?:decision|judgment|judgement|pronouncement)|decided on|pronounced on)\s*[:\-]?\s*(\d{1,2}[./-]\d{1,2}[./-]\d{4}|\d{4}-\d{2}-\d{2}|\d{1,2}\s+[A-Za-z]+,?\s+\d{4})`)
	sectionsRe   = regexp.MustCompile(`(?i)\b(?:sections?|secs?\.?|u/s\.?)\s+((?:\d+[A-Z]?\s*(?:,|/|&|and)?\s*)+?)\s*(?:of\s+(?:the\s+)?)?(IPC|Indian Penal Code|Cr\.?\s?P\.?\s?C\.?|POCSO(?: Act)?|NDPS(?: Act)?|Arms Act)\b`)
	sectionSepRe = regexp.MustCompile(`(?i)\s*(?:,|/|&|\band\b)\s*`)
	factsHeadRe  = regexp.MustCompile(`(?i)(brief facts|facts of the case|prosecution case|case of the prosecution)`)
	sentenceRe   = regexp.MustCompile(`[^.!?]+[.!?]+`)
)

var actAliases = map[string]string{
	"INDIAN PENAL CODE": "IPC",
	"POCSO ACT":         "POCSO",
	"NDPS ACT":          "NDPS",
	"ARMS ACT":          "ARMS",
}

func (e RuleExtractor) ExtractMetadata(_ context.Context, text, sourceName string) (legalcase.CaseMetadata, error) {
	var meta legalcase.CaseMetadata
	lines := nonEmptyLines(text, 60)

	for _, line := range lines {
		if meta.Title == "" {
			if m := titleRe.FindStringSubmatch(line); m != nil {
				meta.Title = line
				meta.Appellants = []string{strings.TrimSpace(m[1])}
				meta.Respondents = []string{strings.TrimSpace(m[2])}
			}
		}
		if meta.Court == "" && courtRe.MatchString(line) && len(line) <= 160 {
			meta.Court = strings.Trim(line, " :-")
		}
	}
	if meta.Title == "" {
		meta.Title = titleFromName(sourceName)
	}
	if m := caseNumberRe.FindStringSubmatch(text); m != nil {
		meta.CaseNumber = strings.Join(strings.Fields(m[1]), " ")
	}
	if m := dateRe.FindStringSubmatch(text); m != nil {
		meta.JudgmentDate = m[1]
	}

	meta.SectionsInvoked = extractSections(text)
	if len(meta.SectionsInvoked) > 0 {
		meta.MostAppropriateSection = meta.SectionsInvoked[0]
	}
	meta.CaseType = inferCaseType(text, meta.SectionsInvoked)
	return meta, nil
}

func (e RuleExtractor) Summarize(_ context.Context, text string) (string, error) {
	limit := e.MaxSummaryChars
	if limit <= 0 {
		limit = 1200
	}
	paras := paragraphs(text)
	start := -1
	for i, p := range paras {
		if factsHeadRe.MatchString(p) {
			start = i
			break
		}
	}
	if start < 0 {
		for i, p := range paras {
			if len(p) >= 80 {
				start = i
				break
			}
		}
	}
	if start < 0 {
		return "", nil
	}

	var b strings.Builder
	for _, p := range paras[start:] {
		for _, s := range sentenceRe.FindAllString(p, -1) {
			s = strings.TrimSpace(s)
			if b.Len()+len(s)+1 > limit {
				return strings.TrimSpace(b.String()), nil
			}
			b.WriteString(s)
			b.WriteByte(' ')
		}
	}
	return strings.TrimSpace(b.String()), nil
}

// ExtractFacts looks for "field name: value" lines for every template field.
// Boolean fields are set when their name appears anywhere in the text.
func (e RuleExtractor) ExtractFacts(ctx context.Context, text string, tmpl *ontology.Template) (legalcase.ExtractedFacts, error) {
	if tmpl == nil {
		return legalcase.ExtractedFacts{}, apperrors.InvalidParam("template is required for fact extraction")
	}
	facts := legalcase.ExtractedFacts{
		TemplateID: tmpl.ID,
		Tiers:      make(map[string]legalcase.TierFacts),
	}
	for _, tier := range tmpl.Tiers() {
		facts.Tiers[string(tier)] = legalcase.TierFacts{}
	}

	lower := strings.ToLower(text)
	labelled := labelledValues(text)
	for _, field := range tmpl.AllFields() {
		label := strings.ReplaceAll(strings.ToLower(field), "_", " ")
		tier, _ := tmpl.TierOf(field)

		if v, ok := labelled[label]; ok {
			facts.Tiers[string(tier)][field] = v
			continue
		}
		if def, ok := tmpl.FieldDefinitions[field]; ok && strings.EqualFold(def.Type, "boolean") && strings.Contains(lower, label) {
			facts.Tiers[string(tier)][field] = true
		}
	}

	if len(tmpl.ResidualFields) > 0 {
		facts.Residual = legalcase.TierFacts{}
		for _, field := range tmpl.ResidualFields {
			if v, ok := labelled[strings.ReplaceAll(strings.ToLower(field), "_", " ")]; ok {
				facts.Residual[field] = v
			}
		}
	}

	summary, err := e.Summarize(ctx, text)
	if err != nil {
		return facts, err
	}
	facts.Summary = summary
	return facts, nil
}

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

func nonEmptyLines(text string, max int) []string {
	var out []string
	for _, l := range strings.Split(text, "\n") {
		l = strings.TrimSpace(strings.Trim(strings.TrimSpace(l), "#*"))
		if l == "" {
			continue
		}
		out = append(out, l)
		if len(out) == max {
			break
		}
	}
	return out
}

func paragraphs(text string) []string {
	var out []string
	for _, p := range strings.Split(text, "\n\n") {
		p = strings.Join(strings.Fields(p), " ")
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func labelledValues(text string) map[string]string {
	out := make(map[string]string)
	for _, l := range strings.Split(text, "\n") {
		key, val, ok := strings.Cut(l, ":")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(strings.Trim(strings.TrimSpace(key), "-*#")))
		val = strings.TrimSpace(val)
		if key == "" || val == "" || len(key) > 60 {
			continue
		}
		if _, dup := out[key]; !dup {
			out[key] = val
		}
	}
	return out
}

func extractSections(text string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, m := range sectionsRe.FindAllStringSubmatch(text, -1) {
		act := strings.ToUpper(strings.Join(strings.Fields(strings.ReplaceAll(m[2], ".", "")), " "))
		act = strings.ReplaceAll(act, "CR P C", "CRPC")
		act = strings.ReplaceAll(act, "CRP C", "CRPC")
		if alias, ok := actAliases[act]; ok {
			act = alias
		}
		for _, num := range sectionSepRe.Split(strings.TrimSpace(m[1]), -1) {
			num = strings.TrimSpace(num)
			if num == "" {
				continue
			}
			code := ontology.NormalizeSection(act + " " + num)
			if _, dup := seen[code]; dup {
				continue
			}
			seen[code] = struct{}{}
			out = append(out, code)
		}
	}
	return out
}

func inferCaseType(text string, sections []string) string {
	lower := strings.ToLower(text)
	for _, s := range sections {
		if strings.HasPrefix(s, "IPC") || strings.HasPrefix(s, "CRPC") || strings.HasPrefix(s, "POCSO") || strings.HasPrefix(s, "NDPS") {
			return "criminal"
		}
	}
	switch {
	case strings.Contains(lower, "criminal appeal") || strings.Contains(lower, "crl.a"):
		return "criminal"
	case strings.Contains(lower, "maintenance") || strings.Contains(lower, "divorce") || strings.Contains(lower, "custody"):
		return "family"
	case strings.Contains(lower, "civil"):
		return "civil"
	}
	return ""
}

func titleFromName(name string) string {
	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	base = strings.TrimSpace(strings.ReplaceAll(base, "_", " "))
	if base == "" || base == "." {
		return "Unknown Case"
	}
	return base
}

//Personal.AI order the ending
