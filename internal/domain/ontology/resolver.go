package ontology

import (
	"sort"
	"strings"

	"github.com/turtacn/casemind/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/casemind/pkg/errors"
	"github.com/turtacn/casemind/pkg/types/legalcase"
)

// Confidence assigned by each matching strategy.
const (
	SectionMatchConfidence = 0.9
	TermMatchConfidence    = 0.6
	TermMatchStep          = 0.1
	TermMatchCap           = 0.85
	FallbackConfidence     = 0.3

	// DefaultMergeFloor merges every leaf matched by section.
	DefaultMergeFloor = SectionMatchConfidence
)

// Strategy names the rule that produced a match.
type Strategy string

const (
	StrategySection  Strategy = "section"
	StrategyTerm     Strategy = "term"
	StrategyFallback Strategy = "fallback"
	StrategyNone     Strategy = "none"
)

// MatchResult is one candidate classification of a case.
type MatchResult struct {
	NodeID          string   `json:"node_id"`
	Label           string   `json:"label"`
	Confidence      float64  `json:"confidence"`
	MatchedSections []string `json:"matched_sections"`
	MatchedTerms    []string `json:"matched_terms"`
	AncestorPath    []string `json:"ancestor_path"`
	Strategy        Strategy `json:"strategy"`
}

// Resolver classifies cases against an immutable ontology.  It is safe for
// concurrent use.
type Resolver struct {
	ontology     *Ontology
	criminalNode string
	familyNode   string
	mergeFloor   float64
	logger       logging.Logger
}

// ResolverOption customises a Resolver.
type ResolverOption func(*Resolver)

// WithDefaultNodes sets the nodes used by the case-type fallback.
func WithDefaultNodes(criminal, family string) ResolverOption {
	return func(r *Resolver) {
		if criminal != "" {
			r.criminalNode = criminal
		}
		if family != "" {
			r.familyNode = family
		}
	}
}

// WithMergeFloor sets the confidence a leaf match needs to be merged into the
// selected template.  Values outside (0, 1] are ignored.
func WithMergeFloor(floor float64) ResolverOption {
	return func(r *Resolver) {
		if floor > 0 && floor <= 1 {
			r.mergeFloor = floor
		}
	}
}

// WithLogger sets the resolver's logger.
func WithLogger(l logging.Logger) ResolverOption {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewResolver builds a resolver over ont.
func NewResolver(ont *Ontology, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		ontology:     ont,
		criminalNode: "criminal_case",
		familyNode:   "family_law_dispute",
		mergeFloor:   DefaultMergeFloor,
		logger:       logging.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Ontology returns the ontology the resolver classifies against.
func (r *Resolver) Ontology() *Ontology { return r.ontology }

// FindMatches runs section matching and term matching, falling back to the
// case-type default only when both are empty.  The result has one entry per
// node, sorted by confidence descending with node id ascending on ties.
func (r *Resolver) FindMatches(meta legalcase.CaseMetadata, caseText string) []MatchResult {
	var matches []MatchResult
	matches = append(matches, r.matchSections(meta.SectionsInvoked)...)
	matches = append(matches, r.matchTerms(caseText)...)
	if len(matches) == 0 {
		matches = r.matchFallback(meta.CaseType)
	}

	out := dedupe(matches)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].NodeID < out[j].NodeID
	})

	r.logger.Debug("ontology matches computed",
		logging.Int("sections", len(meta.SectionsInvoked)),
		logging.Int("matches", len(out)))
	return out
}

// BestMatch picks the first leaf among ranked matches, or the top match when
// no leaf matched.  ok is false only for an empty slice.
func (r *Resolver) BestMatch(matches []MatchResult) (MatchResult, bool) {
	if len(matches) == 0 {
		return MatchResult{}, false
	}
	for _, m := range matches {
		if r.ontology.IsLeaf(m.NodeID) {
			return m, true
		}
	}
	return matches[0], true
}

// Resolve classifies a case.  It returns a ClassificationMiss error when no
// strategy produced a match.
func (r *Resolver) Resolve(meta legalcase.CaseMetadata, caseText string) (MatchResult, error) {
	best, ok := r.BestMatch(r.FindMatches(meta, caseText))
	if !ok {
		return MatchResult{}, errors.New(errors.ErrCodeClassificationMiss, "no ontology node matched the case").
			WithDetail(meta.CaseNumber)
	}
	return best, nil
}

func (r *Resolver) newMatch(id string, confidence float64, strategy Strategy) MatchResult {
	n, _ := r.ontology.Get(id)
	return MatchResult{
		NodeID:          id,
		Label:           n.Label,
		Confidence:      confidence,
		MatchedSections: []string{},
		MatchedTerms:    []string{},
		AncestorPath:    r.ontology.AncestorPath(id),
		Strategy:        strategy,
	}
}

func (r *Resolver) matchSections(sections []string) []MatchResult {
	var out []MatchResult
	for _, raw := range sections {
		code := NormalizeSection(raw)
		if code == "" {
			continue
		}
		for _, id := range r.ontology.nodesForSection(code) {
			m := r.newMatch(id, SectionMatchConfidence, StrategySection)
			m.MatchedSections = []string{code}
			out = append(out, m)
		}
	}
	return out
}

func (r *Resolver) matchTerms(caseText string) []MatchResult {
	text := strings.ToLower(caseText)
	if strings.TrimSpace(text) == "" {
		return nil
	}
	var out []MatchResult
	for _, id := range r.ontology.IDs() {
		var hit []string
		for _, term := range r.ontology.termsFor(id) {
			if strings.Contains(text, term) {
				hit = append(hit, term)
			}
		}
		if len(hit) == 0 {
			continue
		}
		conf := TermMatchConfidence + TermMatchStep*float64(len(hit)-1)
		if conf > TermMatchCap {
			conf = TermMatchCap
		}
		m := r.newMatch(id, conf, StrategyTerm)
		m.MatchedTerms = hit
		out = append(out, m)
	}
	return out
}

func (r *Resolver) matchFallback(caseType string) []MatchResult {
	ct := strings.ToLower(caseType)
	var id string
	switch {
	case strings.Contains(ct, "criminal") || strings.Contains(ct, "crl"):
		id = r.criminalNode
	case strings.Contains(ct, "civil") || strings.Contains(ct, "family"):
		id = r.familyNode
	default:
		return nil
	}
	if !r.ontology.Has(id) {
		r.logger.Warn("fallback node missing from ontology", logging.String("node_id", id))
		return nil
	}
	return []MatchResult{r.newMatch(id, FallbackConfidence, StrategyFallback)}
}

// dedupe folds matches by node id: the highest confidence wins and matched
// sections and terms are unioned.
func dedupe(matches []MatchResult) []MatchResult {
	byID := make(map[string]*MatchResult, len(matches))
	order := make([]string, 0, len(matches))
	for _, m := range matches {
		cur, ok := byID[m.NodeID]
		if !ok {
			c := m
			c.MatchedSections = append([]string{}, m.MatchedSections...)
			c.MatchedTerms = append([]string{}, m.MatchedTerms...)
			byID[m.NodeID] = &c
			order = append(order, m.NodeID)
			continue
		}
		if m.Confidence > cur.Confidence {
			cur.Confidence = m.Confidence
			cur.Strategy = m.Strategy
		}
		cur.MatchedSections = unionSorted(cur.MatchedSections, m.MatchedSections)
		cur.MatchedTerms = unionSorted(cur.MatchedTerms, m.MatchedTerms)
	}
	out := make([]MatchResult, 0, len(order))
	for _, id := range order {
		m := byID[id]
		m.MatchedSections = unionSorted(m.MatchedSections, nil)
		m.MatchedTerms = unionSorted(m.MatchedTerms, nil)
		out = append(out, *m)
	}
	return out
}

func unionSorted(a, b []string) []string {
	set := make(map[string]struct{}, len(a)+len(b))
	for _, v := range a {
		set[v] = struct{}{}
	}
	for _, v := range b {
		set[v] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// ─────────────────────────────────────────────────────────────────────────────
// Template selection
// ─────────────────────────────────────────────────────────────────────────────

// Selection is the template chosen for a case.
type Selection struct {
	Template   *Template     `json:"template"`
	Match      *MatchResult  `json:"match,omitempty"`
	Matches    []MatchResult `json:"matches"`
	Confidence float64       `json:"confidence"`
	// Fallback is true when the generic template was used.
	Fallback bool `json:"fallback"`
	// Merged is true when several leaf templates were merged.
	Merged bool `json:"merged"`
}

// Select classifies a case and loads its template.  When the best match is a
// leaf at or above the merge floor, every other leaf match at or above the
// floor is merged into one template and the selection takes the lowest
// confidence among the merged matches.  A node without its own
// template borrows the nearest ancestor's.  When classification misses or no
// template is found the store's generic template is returned with Fallback
// set; the error is never a ClassificationMiss.
func (r *Resolver) Select(meta legalcase.CaseMetadata, caseText string, store *TemplateStore) (*Selection, error) {
	matches := r.FindMatches(meta, caseText)
	best, ok := r.BestMatch(matches)
	if !ok {
		r.logger.Info("classification miss, using generic template",
			logging.String("case_number", meta.CaseNumber))
		return &Selection{Template: store.Generic(), Matches: matches, Fallback: true}, nil
	}

	var templates []*Template
	seen := make(map[string]struct{})
	addFor := func(nodeID string) {
		if t := r.templateFor(nodeID, store); t != nil {
			if _, dup := seen[t.ID]; !dup {
				seen[t.ID] = struct{}{}
				templates = append(templates, t)
			}
		}
	}
	confidence := best.Confidence
	addFor(best.NodeID)
	if r.ontology.IsLeaf(best.NodeID) && best.Confidence >= r.mergeFloor {
		for _, m := range matches {
			if m.NodeID == best.NodeID || m.Confidence < r.mergeFloor || !r.ontology.IsLeaf(m.NodeID) {
				continue
			}
			before := len(templates)
			addFor(m.NodeID)
			if len(templates) > before && m.Confidence < confidence {
				confidence = m.Confidence
			}
		}
	}

	if len(templates) == 0 {
		r.logger.Warn("no template for matched node, using generic template",
			logging.String("node_id", best.NodeID))
		return &Selection{Template: store.Generic(), Match: &best, Matches: matches, Confidence: best.Confidence, Fallback: true}, nil
	}

	merged, err := Merge(templates...)
	if err != nil {
		return nil, err
	}
	return &Selection{
		Template:   merged,
		Match:      &best,
		Matches:    matches,
		Confidence: confidence,
		Merged:     len(templates) > 1,
	}, nil
}

// templateFor returns the template for nodeID or its nearest ancestor.
func (r *Resolver) templateFor(nodeID string, store *TemplateStore) *Template {
	ids := r.ontology.ancestorIDs(nodeID)
	for i := len(ids) - 1; i >= 0; i-- {
		if store.Has(ids[i]) {
			t, err := store.Get(ids[i])
			if err == nil {
				return t
			}
		}
	}
	return nil
}

//Personal.AI order the ending
